package main

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	fhttp "github.com/bogdanfinn/fhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptCredentialRoundTrip(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	modulusHex := key.N.Text(16)
	exponentHex := fmt.Sprintf("%x", key.E)

	ciphertext, err := encryptCredential("s3cret-password", modulusHex, exponentHex)
	require.NoError(t, err)

	raw, err := hex.DecodeString(ciphertext)
	require.NoError(t, err)

	plaintext, err := rsa.DecryptPKCS1v15(rand.Reader, key, raw)
	require.NoError(t, err)
	assert.Equal(t, "s3cret-password", string(plaintext))
}

func TestEncryptCredentialRejectsBadKeyMaterial(t *testing.T) {
	_, err := encryptCredential("pw", "not-hex!", "10001")
	assert.Error(t, err)

	_, err = encryptCredential("pw", "abcdef", "zz")
	assert.Error(t, err)
}

// fakeSite is a minimal login backend: it serves real RSA key material and
// verifies that the credentials it receives decrypt to what was submitted.
type fakeSite struct {
	key         *rsa.PrivateKey
	failLogin   bool
	omitCookie  bool
	gotUserID   string
	gotPassword string
	loginHits   int
}

func (f *fakeSite) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "WMONID", Value: "warmup-cookie", Path: "/"})
		w.Write([]byte("<html>login page</html>"))
	})

	mux.HandleFunc("/login/selectRsaModulus.do", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]string{
				"rsaModulus":     f.key.N.Text(16),
				"publicExponent": fmt.Sprintf("%x", f.key.E),
			},
		})
	})

	mux.HandleFunc("/login/securityLoginCheck.do", func(w http.ResponseWriter, r *http.Request) {
		f.loginHits++
		require.NoError(t, r.ParseForm())

		f.gotUserID = f.decrypt(t, r.PostFormValue("userId"))
		f.gotPassword = f.decrypt(t, r.PostFormValue("userPswdEncn"))

		if f.failLogin {
			w.Write([]byte("<html>loginFail</html>"))
			return
		}
		if !f.omitCookie {
			http.SetCookie(w, &http.Cookie{Name: "JSESSIONID", Value: "session-xyz", Path: "/"})
		}
		w.Write([]byte("<html>welcome</html>"))
	})

	return mux
}

func (f *fakeSite) decrypt(t *testing.T, ciphertextHex string) string {
	t.Helper()
	raw, err := hex.DecodeString(ciphertextHex)
	require.NoError(t, err)
	plaintext, err := rsa.DecryptPKCS1v15(rand.Reader, f.key, raw)
	require.NoError(t, err)
	return string(plaintext)
}

func newFakeSite(t *testing.T) *fakeSite {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return &fakeSite{key: key}
}

func newTestAuth(t *testing.T, site *fakeSite) (*AuthController, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(site.handler(t))
	t.Cleanup(srv.Close)

	auth := NewAuthController(newTestTransport(t), testLogger{t})
	auth.baseURL = srv.URL
	return auth, srv
}

func TestLoginHappyPath(t *testing.T) {
	site := newFakeSite(t)
	auth, _ := newTestAuth(t, site)

	require.NoError(t, auth.Login("user1", "hunter2"))

	assert.Equal(t, "user1", site.gotUserID)
	assert.Equal(t, "hunter2", site.gotPassword)
	assert.Equal(t, "session-xyz", auth.sessionID)

	// The aggregate header keeps auxiliary cookies alongside the session id.
	assert.Contains(t, auth.cachedCookieHeader, "JSESSIONID=session-xyz")
	assert.Contains(t, auth.cachedCookieHeader, "WMONID=warmup-cookie")
}

func TestLoginInvalidCredentials(t *testing.T) {
	site := newFakeSite(t)
	site.failLogin = true
	auth, _ := newTestAuth(t, site)

	err := auth.Login("user1", "wrong")
	require.ErrorIs(t, err, ErrPermissionDenied)
}

func TestLoginMissingKeyMaterial(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html></html>"))
	})
	mux.HandleFunc("/login/selectRsaModulus.do", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{}}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	auth := NewAuthController(newTestTransport(t), testLogger{t})
	auth.baseURL = srv.URL

	err := auth.Login("user1", "pw")
	require.ErrorIs(t, err, ErrMissingKeyMaterial)
}

func TestLoginSessionCookieMissing(t *testing.T) {
	site := newFakeSite(t)
	site.omitCookie = true
	auth, _ := newTestAuth(t, site)

	err := auth.Login("user1", "pw")
	require.ErrorIs(t, err, ErrSessionCookieMissing)
}

func TestSessionIDFromResponseSetCookieFallback(t *testing.T) {
	resp := &Response{
		Header: fhttp.Header{
			"Set-Cookie": {"JSESSIONID_ETC=abc123; Path=/; HttpOnly"},
		},
	}

	id, ok := sessionIDFromResponse(resp)
	require.True(t, ok)
	assert.Equal(t, "abc123", id)
}

func TestBuildCookieHeaderIdempotentAndOrderPreserving(t *testing.T) {
	auth := NewAuthController(newTestTransport(t), testLogger{t})
	auth.baseURL = "http://127.0.0.1:1" // jar stays empty
	auth.sessionID = "sess-1"

	resp := &Response{
		Header: fhttp.Header{
			"Set-Cookie": {"WMONID=aaa; Path=/, WMONID=aaa; Path=/, extra=bbb"},
		},
		SetCookies: []*fhttp.Cookie{
			{Name: "WMONID", Value: "aaa"},
		},
	}

	first := auth.buildCookieHeader(resp)
	second := auth.buildCookieHeader(resp)

	assert.Equal(t, first, second, "merging the same sources twice must be stable")
	assert.Equal(t, "WMONID=aaa; extra=bbb; JSESSIONID=sess-1", first)
}

func TestBuildCookieHeaderAlwaysKeepsSessionCookie(t *testing.T) {
	auth := NewAuthController(newTestTransport(t), testLogger{t})
	auth.baseURL = "http://127.0.0.1:1"
	auth.sessionID = "sess-kept"

	// No source mentions the session cookie anymore; it must survive anyway.
	header := auth.buildCookieHeader(&Response{Header: fhttp.Header{}})
	assert.Equal(t, "JSESSIONID=sess-kept", header)
}

func TestAddAuthCredToHeadersDoesNotMutateInput(t *testing.T) {
	auth := NewAuthController(newTestTransport(t), testLogger{t})
	auth.sessionID = "abc"
	auth.cachedCookieHeader = "JSESSIONID=abc; WMONID=x"

	original := baseHeaders()
	require.Empty(t, original.Get("Cookie"))

	withAuth := auth.AddAuthCredToHeaders(original)

	assert.Equal(t, "JSESSIONID=abc; WMONID=x", withAuth.Get("Cookie"))
	assert.Empty(t, original.Get("Cookie"), "caller's headers must stay untouched")
}

func TestAddAuthCredToHeadersMinimalFallback(t *testing.T) {
	auth := NewAuthController(newTestTransport(t), testLogger{t})
	auth.sessionID = "only-session"

	withAuth := auth.AddAuthCredToHeaders(baseHeaders())
	assert.Equal(t, "JSESSIONID=only-session", withAuth.Get("Cookie"))
}
