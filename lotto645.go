package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	http "github.com/bogdanfinn/fhttp"
	"github.com/google/uuid"
)

// Lotto645Mode selects who picks the numbers for each slot.
type Lotto645Mode int

const (
	// ModeAuto lets the server generate the numbers.
	ModeAuto Lotto645Mode = iota
	// ModeManual submits caller-supplied sets of six numbers.
	ModeManual
)

const (
	lottoProductCode = "LO40"
	pricePerGame     = 1000

	// maxBuyAttempts bounds retries for malformed responses and network
	// failures during a single purchase call.
	maxBuyAttempts = 5
	buyBackoffCap  = 2 * time.Second
)

// Lotto645 drives the purchase and verification workflows against the
// Lotto 6/45 endpoints. It holds no session state of its own; authentication
// is threaded in explicitly per call.
type Lotto645 struct {
	http   *HTTPClient
	logger Logger

	mainURL string
	gameURL string

	anchor      RoundAnchor
	maxAttempts int
	backoffBase time.Duration
	backoffCap  time.Duration
	now         func() time.Time
}

func NewLotto645(client *HTTPClient, logger Logger) *Lotto645 {
	return &Lotto645{
		http:        client,
		logger:      logger,
		mainURL:     mainBaseURL,
		gameURL:     gameBaseURL,
		anchor:      roundAnchorFromEnv(),
		maxAttempts: maxBuyAttempts,
		backoffBase: 250 * time.Millisecond,
		backoffCap:  buyBackoffCap,
		now:         time.Now,
	}
}

// PurchaseRequirements are the per-attempt dynamic tokens the purchase form
// needs. The site may rotate them per session, so they are re-scraped on
// every attempt and never reused.
type PurchaseRequirements struct {
	Direct      string // readiness token from the pre-flight endpoint
	DrawDate    string
	PayDeadline string
	Round       string
}

// PurchaseResult reports a successful purchase. Numbers holds the raw
// per-slot strings as the server returns them (e.g. "01|07|19|23|31|44|A3").
type PurchaseResult struct {
	Round   string
	Numbers []string
	Balance string
}

// Buy submits one purchase of count slots. For ModeManual, manualNumbers must
// contain exactly count sets of six numbers in [1,45]; validation failures
// reject the call before any network traffic.
//
// relogin, when non-nil, is invoked at most once per call if the site starts
// answering with HTML error pages, since that usually means the session
// silently expired.
func (l *Lotto645) Buy(auth *AuthController, count int, mode Lotto645Mode, manualNumbers [][]int, relogin func() error) (*PurchaseResult, error) {
	if err := validatePurchase(count, mode, manualNumbers); err != nil {
		return nil, err
	}

	// Correlation id ties every attempt of this purchase together in the
	// logs. A malformed response does not prove the purchase was not
	// executed, so operators need a handle to reconcile against the ledger.
	correlationID := uuid.NewString()[:8]

	reloginUsed := false
	var lastErr error

	for attempt := 1; attempt <= l.maxAttempts; attempt++ {
		if attempt > 1 {
			time.Sleep(l.backoff(attempt))
		}

		result, err := l.tryBuying(auth, count, mode, manualNumbers)
		if err == nil {
			l.logger.Log("[lotto645] purchase %s succeeded round=%s attempt=%d", correlationID, result.Round, attempt)
			return result, nil
		}

		var business *BusinessFailureError
		if errors.As(err, &business) {
			// Well-formed domain rejection: retrying would double-submit.
			return nil, err
		}

		lastErr = err
		l.logger.Log("[lotto645] purchase %s attempt %d/%d failed: %v", correlationID, attempt, l.maxAttempts, err)

		if isMalformed(err) && relogin != nil && !reloginUsed {
			reloginUsed = true
			l.logger.Log("[lotto645] purchase %s re-authenticating after malformed response", correlationID)
			if rerr := relogin(); rerr != nil {
				l.logger.Log("[lotto645] purchase %s re-login failed: %v", correlationID, rerr)
			}
		}
	}

	return nil, lastErr
}

func (l *Lotto645) backoff(attempt int) time.Duration {
	d := l.backoffBase << (attempt - 2)
	if d > l.backoffCap {
		d = l.backoffCap
	}
	return d
}

func (l *Lotto645) tryBuying(auth *AuthController, count int, mode Lotto645Mode, manualNumbers [][]int) (*PurchaseResult, error) {
	headers := auth.AddAuthCredToHeaders(l.gameHeaders())

	reqs, err := l.getRequirements(headers)
	if err != nil {
		return nil, err
	}

	data := buildPurchaseBody(count, mode, manualNumbers, reqs)

	buyHeaders := cloneHeader(headers)
	buyHeaders.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")

	resp, err := l.http.Post(l.gameURL+"/olotto/game/execBuy.do", buyHeaders, data)
	if err != nil {
		return nil, err
	}

	if isHTMLResponse(resp) {
		return nil, NewMalformedResponseError(resp.StatusCode, resp.ContentType(), resp.Body)
	}

	var payload struct {
		LoginYn string `json:"loginYn"`
		Result  struct {
			ResultMsg        string   `json:"resultMsg"`
			BuyRound         string   `json:"buyRound"`
			ArrGameChoiceNum []string `json:"arrGameChoiceNum"`
		} `json:"result"`
	}
	if err := json.Unmarshal(resp.Body, &payload); err != nil {
		return nil, NewMalformedResponseError(resp.StatusCode, resp.ContentType(), resp.Body)
	}

	if !strings.EqualFold(payload.Result.ResultMsg, "SUCCESS") {
		return nil, &BusinessFailureError{
			Message: payload.Result.ResultMsg,
			Round:   payload.Result.BuyRound,
		}
	}

	return &PurchaseResult{
		Round:   payload.Result.BuyRound,
		Numbers: payload.Result.ArrGameChoiceNum,
	}, nil
}

func validatePurchase(count int, mode Lotto645Mode, manualNumbers [][]int) error {
	if count < 1 || count > 5 {
		return &ValidationError{Reason: fmt.Sprintf("slot count %d out of range [1,5]", count)}
	}
	if mode != ModeManual {
		return nil
	}

	if len(manualNumbers) != count {
		return &ValidationError{Reason: fmt.Sprintf("%d number sets supplied for %d slots", len(manualNumbers), count)}
	}
	for i, set := range manualNumbers {
		if len(set) != 6 {
			return &ValidationError{Reason: fmt.Sprintf("slot %s has %d numbers, want 6", slotLabels[i], len(set))}
		}
		for _, n := range set {
			if n < 1 || n > 45 {
				return &ValidationError{Reason: fmt.Sprintf("slot %s number %d out of range [1,45]", slotLabels[i], n)}
			}
		}
	}
	return nil
}

// slotParam is one entry of the purchase form's param field. The misspelled
// "alpabet" key is what the server expects.
type slotParam struct {
	GenType          string  `json:"genType"`
	ArrGameChoiceNum *string `json:"arrGameChoiceNum"`
	Alpabet          string  `json:"alpabet"`
}

func buildPurchaseBody(count int, mode Lotto645Mode, manualNumbers [][]int, reqs *PurchaseRequirements) url.Values {
	params := make([]slotParam, count)
	for i := range count {
		if mode == ModeAuto {
			params[i] = slotParam{GenType: "0", Alpabet: slotLabels[i]}
			continue
		}
		formatted := make([]string, 6)
		for j, n := range manualNumbers[i] {
			formatted[j] = fmt.Sprintf("%02d", n)
		}
		nums := strings.Join(formatted, ",")
		params[i] = slotParam{GenType: "1", ArrGameChoiceNum: &nums, Alpabet: slotLabels[i]}
	}

	paramJSON, _ := json.Marshal(params)

	return url.Values{
		"round":                {reqs.Round},
		"direct":               {reqs.Direct},
		"nBuyAmount":           {strconv.Itoa(pricePerGame * count)},
		"param":                {string(paramJSON)},
		"ROUND_DRAW_DATE":      {reqs.DrawDate},
		"WAMT_PAY_TLMT_END_DT": {reqs.PayDeadline},
		"gameCnt":              {strconv.Itoa(count)},
	}
}

// getRequirements gathers the dynamic purchase form tokens: the readiness
// token from the pre-flight endpoint and the draw date, payment deadline and
// round from the purchase page HTML.
func (l *Lotto645) getRequirements(headers http.Header) (*PurchaseRequirements, error) {
	readyHeaders := cloneHeader(headers)
	readyHeaders.Set("Referer", l.gameURL+"/olotto/game/game645.do")
	readyHeaders.Set("Content-Type", "application/json; charset=UTF-8")
	readyHeaders.Set("X-Requested-With", "XMLHttpRequest")

	resp, err := l.http.Post(l.gameURL+"/olotto/game/egovUserReadySocket.json", readyHeaders, nil)
	if err != nil {
		return nil, err
	}
	if isHTMLResponse(resp) {
		return nil, NewMalformedResponseError(resp.StatusCode, resp.ContentType(), resp.Body)
	}

	var ready struct {
		ReadyIP string `json:"ready_ip"`
	}
	if err := json.Unmarshal(resp.Body, &ready); err != nil {
		return nil, NewMalformedResponseError(resp.StatusCode, resp.ContentType(), resp.Body)
	}

	reqs := &PurchaseRequirements{Direct: ready.ReadyIP}

	pageResp, err := l.http.Post(l.gameURL+"/olotto/game/game645.do", headers, nil)
	if err != nil {
		return nil, err
	}

	if !l.scrapeRequirements(pageResp.Body, reqs) {
		// Layout drift: fall back to calendar arithmetic so the workflow
		// stays functional until the scraper catches up with the page.
		l.fallbackRequirements(reqs)
	}
	return reqs, nil
}

// scrapeRequirements extracts the embedded form fields from the purchase
// page. Returns false when any field is missing so the caller can degrade.
func (l *Lotto645) scrapeRequirements(page []byte, reqs *PurchaseRequirements) bool {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return false
	}

	drawDate, _ := doc.Find("input#ROUND_DRAW_DATE").Attr("value")
	payDeadline, _ := doc.Find("input#WAMT_PAY_TLMT_END_DT").Attr("value")
	round, _ := doc.Find("input#curRound").Attr("value")

	if drawDate == "" || payDeadline == "" || round == "" {
		return false
	}

	reqs.DrawDate = drawDate
	reqs.PayDeadline = payDeadline
	reqs.Round = round
	return true
}

func (l *Lotto645) fallbackRequirements(reqs *PurchaseRequirements) {
	now := l.now()
	draw := nextSaturday(now)
	reqs.DrawDate = draw.Format(drawDateLayout)
	reqs.PayDeadline = draw.AddDate(1, 0, 0).Format(drawDateLayout)
	reqs.Round = strconv.Itoa(l.anchor.roundForDate(now))
	l.logger.Log("[lotto645] purchase page scrape failed, using computed round=%s draw=%s", reqs.Round, reqs.DrawDate)
}

func (l *Lotto645) gameHeaders() http.Header {
	h := gameHeaders()
	h.Set("Origin", l.gameURL)
	h.Set("Referer", l.gameURL+"/olotto/game/game645.do")
	return h
}

// GetBalance scrapes the deposit balance from the my-page. Best-effort
// decoration for notifications; callers tolerate an error.
func (l *Lotto645) GetBalance(auth *AuthController) (string, error) {
	headers := auth.AddAuthCredToHeaders(baseHeaders())

	resp, err := l.http.Post(l.mainURL+"/userSsl.do?method=myPage", headers, nil)
	if err != nil {
		return "", err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return "", err
	}

	balance := strings.TrimSpace(doc.Find("p.total_new strong").First().Text())
	if balance == "" {
		return "", fmt.Errorf("balance not found on my-page")
	}
	return balance, nil
}

func isHTMLResponse(resp *Response) bool {
	if strings.Contains(strings.ToLower(resp.ContentType()), "text/html") {
		return true
	}
	trimmed := bytes.TrimSpace(resp.Body)
	return len(trimmed) > 0 && trimmed[0] == '<'
}

func isMalformed(err error) bool {
	var malformed *MalformedResponseError
	return errors.As(err, &malformed)
}
