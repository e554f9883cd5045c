package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testGamePage = `<html><body><form>
<input type="hidden" id="ROUND_DRAW_DATE" value="2025/08/30"/>
<input type="hidden" id="WAMT_PAY_TLMT_END_DT" value="2026/08/30"/>
<input type="hidden" id="curRound" value="1187"/>
</form></body></html>`

func newTestLotto(t *testing.T, handler http.Handler) (*Lotto645, *AuthController) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	transport := newTestTransport(t)

	lotto := NewLotto645(transport, testLogger{t})
	lotto.mainURL = srv.URL
	lotto.gameURL = srv.URL
	lotto.maxAttempts = 3
	lotto.backoffBase = time.Millisecond
	lotto.now = func() time.Time {
		return time.Date(2025, time.August, 27, 12, 0, 0, 0, time.UTC)
	}

	auth := NewAuthController(transport, testLogger{t})
	auth.baseURL = srv.URL
	auth.sessionID = "test-session"
	auth.cachedCookieHeader = "JSESSIONID=test-session"

	return lotto, auth
}

// gameMux wires the purchase endpoints with a configurable execBuy handler.
func gameMux(t *testing.T, execBuy http.HandlerFunc) (*http.ServeMux, *int) {
	t.Helper()
	buyHits := new(int)

	mux := http.NewServeMux()
	mux.HandleFunc("/olotto/game/egovUserReadySocket.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ready_ip":"172.17.20.52"}`))
	})
	mux.HandleFunc("/olotto/game/game645.do", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(testGamePage))
	})
	mux.HandleFunc("/olotto/game/execBuy.do", func(w http.ResponseWriter, r *http.Request) {
		*buyHits++
		execBuy(w, r)
	})
	return mux, buyHits
}

func TestBuyRejectsInvalidRequestsBeforeAnyNetworkCall(t *testing.T) {
	var networkHits int
	lotto, auth := newTestLotto(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		networkHits++
	}))

	cases := []struct {
		name   string
		count  int
		mode   Lotto645Mode
		manual [][]int
	}{
		{name: "count too low", count: 0, mode: ModeAuto},
		{name: "count too high", count: 6, mode: ModeAuto},
		{name: "set count mismatch", count: 2, mode: ModeManual, manual: [][]int{{1, 2, 3, 4, 5, 6}}},
		{name: "set too short", count: 1, mode: ModeManual, manual: [][]int{{1, 2, 3, 4, 5}}},
		{name: "number too high", count: 1, mode: ModeManual, manual: [][]int{{1, 2, 3, 4, 5, 46}}},
		{name: "number too low", count: 1, mode: ModeManual, manual: [][]int{{0, 2, 3, 4, 5, 6}}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := lotto.Buy(auth, tc.count, tc.mode, tc.manual, nil)
			var validation *ValidationError
			require.ErrorAs(t, err, &validation)
		})
	}

	assert.Zero(t, networkHits, "validation failures must not reach the network")
}

func TestBuyAutoSuccess(t *testing.T) {
	var gotForm map[string]string
	mux, buyHits := gameMux(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotForm = map[string]string{
			"round":      r.PostFormValue("round"),
			"direct":     r.PostFormValue("direct"),
			"nBuyAmount": r.PostFormValue("nBuyAmount"),
			"gameCnt":    r.PostFormValue("gameCnt"),
			"param":      r.PostFormValue("param"),
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"loginYn":"Y","result":{"resultMsg":"SUCCESS","buyRound":"1234","arrGameChoiceNum":["01|02|03|04|05|06|A3"]}}`))
	})
	lotto, auth := newTestLotto(t, mux)

	result, err := lotto.Buy(auth, 2, ModeAuto, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, "1234", result.Round)
	assert.Equal(t, []string{"01|02|03|04|05|06|A3"}, result.Numbers)
	assert.Equal(t, 1, *buyHits)

	assert.Equal(t, "1187", gotForm["round"], "round scraped from the purchase page")
	assert.Equal(t, "172.17.20.52", gotForm["direct"], "readiness token from the pre-flight call")
	assert.Equal(t, "2000", gotForm["nBuyAmount"])
	assert.Equal(t, "2", gotForm["gameCnt"])

	var params []slotParam
	require.NoError(t, json.Unmarshal([]byte(gotForm["param"]), &params))
	require.Len(t, params, 2)
	assert.Equal(t, "0", params[0].GenType)
	assert.Nil(t, params[0].ArrGameChoiceNum)
	assert.Equal(t, "A", params[0].Alpabet)
	assert.Equal(t, "B", params[1].Alpabet)
}

func TestBuyManualFormatsNumbers(t *testing.T) {
	var gotParam string
	mux, _ := gameMux(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotParam = r.PostFormValue("param")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"loginYn":"Y","result":{"resultMsg":"SUCCESS","buyRound":"1234","arrGameChoiceNum":["01|07|19|23|31|44|A1"]}}`))
	})
	lotto, auth := newTestLotto(t, mux)

	_, err := lotto.Buy(auth, 1, ModeManual, [][]int{{1, 7, 19, 23, 31, 44}}, nil)
	require.NoError(t, err)

	var params []slotParam
	require.NoError(t, json.Unmarshal([]byte(gotParam), &params))
	require.Len(t, params, 1)
	assert.Equal(t, "1", params[0].GenType)
	require.NotNil(t, params[0].ArrGameChoiceNum)
	assert.Equal(t, "01,07,19,23,31,44", *params[0].ArrGameChoiceNum, "numbers must be zero-padded to two digits")
}

func TestBuyBusinessFailureIsNotRetried(t *testing.T) {
	mux, buyHits := gameMux(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"loginYn":"Y","result":{"resultMsg":"예치금이 부족합니다","buyRound":"1187"}}`))
	})
	lotto, auth := newTestLotto(t, mux)

	_, err := lotto.Buy(auth, 1, ModeAuto, nil, nil)

	var business *BusinessFailureError
	require.ErrorAs(t, err, &business)
	assert.Equal(t, "예치금이 부족합니다", business.Message)
	assert.Equal(t, "1187", business.Round)
	assert.Equal(t, 1, *buyHits, "a well-formed domain rejection must not be retried")
}

func TestBuyMalformedResponseRetriesAndReauthenticatesOnce(t *testing.T) {
	mux, buyHits := gameMux(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte("<html><body>system error</body></html>"))
	})
	lotto, auth := newTestLotto(t, mux)

	reloginCalls := 0
	relogin := func() error {
		reloginCalls++
		return nil
	}

	_, err := lotto.Buy(auth, 1, ModeAuto, nil, relogin)

	var malformed *MalformedResponseError
	require.ErrorAs(t, err, &malformed)
	assert.Equal(t, "text/html", malformed.ContentType)
	assert.Contains(t, malformed.BodyExcerpt, "system error")

	assert.Equal(t, lotto.maxAttempts, *buyHits, "malformed responses count toward the retry budget")
	assert.Equal(t, 1, reloginCalls, "re-login must happen exactly once per purchase call")
}

func TestBuyClassifiesHTMLBodyWithoutHTMLContentType(t *testing.T) {
	mux, _ := gameMux(t, func(w http.ResponseWriter, r *http.Request) {
		// HTML error page served with a JSON content type.
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte("  <!DOCTYPE html><html>error</html>"))
	})
	lotto, auth := newTestLotto(t, mux)

	_, err := lotto.Buy(auth, 1, ModeAuto, nil, nil)

	var malformed *MalformedResponseError
	require.ErrorAs(t, err, &malformed)
}

func TestBuyNetworkFailureSurfacesLastError(t *testing.T) {
	mux, _ := gameMux(t, func(w http.ResponseWriter, r *http.Request) {})
	srv := httptest.NewServer(mux)
	srv.Close() // all requests now fail at connect time

	transport := newTestTransport(t)
	lotto := NewLotto645(transport, testLogger{t})
	lotto.mainURL = srv.URL
	lotto.gameURL = srv.URL
	lotto.maxAttempts = 2
	lotto.backoffBase = time.Millisecond

	auth := NewAuthController(transport, testLogger{t})
	auth.sessionID = "s"

	_, err := lotto.Buy(auth, 1, ModeAuto, nil, nil)
	require.Error(t, err)

	var reqErr *RequestError
	assert.True(t, errors.As(err, &reqErr), "exhausted network failures surface the transport error, got %v", err)
}

func TestRequirementsFallbackWhenPageLayoutDrifts(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/olotto/game/egovUserReadySocket.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ready_ip":"10.0.0.1"}`))
	})
	mux.HandleFunc("/olotto/game/game645.do", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body>redesigned page without the form fields</body></html>"))
	})
	lotto, auth := newTestLotto(t, mux)

	headers := auth.AddAuthCredToHeaders(lotto.gameHeaders())
	reqs, err := lotto.getRequirements(headers)
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.1", reqs.Direct)
	// now is pinned to Wed 2025-08-27; the draw is Sat 2025-08-30, which is
	// round 1187 counted from the round-1 anchor (2002-12-07).
	assert.Equal(t, "2025/08/30", reqs.DrawDate)
	assert.Equal(t, "2026/08/30", reqs.PayDeadline)
	assert.Equal(t, "1187", reqs.Round)
}

func TestNextSaturday(t *testing.T) {
	wed := time.Date(2025, time.August, 27, 9, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, time.August, 30, 9, 0, 0, 0, time.UTC), nextSaturday(wed))

	sat := time.Date(2025, time.August, 30, 9, 0, 0, 0, time.UTC)
	assert.Equal(t, sat, nextSaturday(sat), "a Saturday is its own draw day")
}
