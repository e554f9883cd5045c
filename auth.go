package main

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	http "github.com/bogdanfinn/fhttp"
)

// sessionCookiePrefix identifies the session cookie. The site occasionally
// suffixes the name (e.g. JSESSIONID_ETC), so matching is by prefix.
const sessionCookiePrefix = "JSESSIONID"

var sessionCookiePattern = regexp.MustCompile(`(?i)JSESSIONID[^=]*=([^;\s]+)`)

// loginFailurePhrases are the markers the login endpoint embeds in an HTML
// body when credentials are wrong, regardless of HTTP status.
var loginFailurePhrases = []string{
	"아이디 또는 비밀번호를 확인해주세요",
	"로그인에 실패",
	"loginFail",
}

// AuthController performs the RSA-encrypted login and owns the resulting
// session: the session cookie plus an aggregated Cookie header covering every
// auxiliary cookie discovered during login.
//
// A login attempt moves through unauthenticated -> key fetched ->
// authenticating -> authenticated; any failure past key fetch is terminal for
// that attempt and the caller decides whether to retry the whole login.
type AuthController struct {
	http    *HTTPClient
	logger  Logger
	baseURL string

	sessionID          string
	cachedCookieHeader string
}

func NewAuthController(client *HTTPClient, logger Logger) *AuthController {
	return &AuthController{
		http:    client,
		logger:  logger,
		baseURL: mainBaseURL,
	}
}

// Reset clears the session state and the transport's cookie jar. Must be
// called before logging in a different account on the same transport.
func (a *AuthController) Reset() {
	a.sessionID = ""
	a.cachedCookieHeader = ""
	a.http.ClearCookies()
}

// Login authenticates the given account and caches the session cookies.
func (a *AuthController) Login(userID, password string) error {
	a.warmSession()

	modulus, exponent, err := a.fetchRSAKey()
	if err != nil {
		return err
	}

	encryptedID, err := encryptCredential(userID, modulus, exponent)
	if err != nil {
		return fmt.Errorf("encrypt user id: %w", err)
	}
	encryptedPW, err := encryptCredential(password, modulus, exponent)
	if err != nil {
		return fmt.Errorf("encrypt password: %w", err)
	}

	data := url.Values{
		"userId":       {encryptedID},
		"userPswdEncn": {encryptedPW},
	}

	resp, err := a.http.Post(a.baseURL+"/login/securityLoginCheck.do", a.loginHeaders(true), data)
	if err != nil {
		return err
	}

	body := string(resp.Body)
	for _, phrase := range loginFailurePhrases {
		if strings.Contains(body, phrase) {
			return ErrPermissionDenied
		}
	}

	return a.updateAuthCred(resp)
}

// AddAuthCredToHeaders returns a copy of the headers with the Cookie header
// set to the cached aggregate (or a minimal session-id-only header when no
// aggregate was ever built). The input headers are never mutated.
func (a *AuthController) AddAuthCredToHeaders(headers http.Header) http.Header {
	copied := cloneHeader(headers)
	cookie := a.cachedCookieHeader
	if cookie == "" {
		cookie = sessionCookiePrefix + "=" + a.sessionID
	}
	copied.Set("Cookie", cookie)
	return copied
}

// warmSession fetches the login page so the jar picks up realistic cookies
// (WMONID and friends). Best-effort: a failure here only loses cookie
// seeding, it does not block the login.
func (a *AuthController) warmSession() {
	if _, err := a.http.Get(a.baseURL+"/login", a.loginHeaders(false), nil); err != nil {
		a.logger.Log("[auth] login page warmup failed: %v", err)
	}
}

// fetchRSAKey retrieves the per-login RSA modulus and public exponent. The
// server may rotate keys, so the pair is never cached across logins.
func (a *AuthController) fetchRSAKey() (modulus, exponent string, err error) {
	resp, err := a.http.Get(a.baseURL+"/login/selectRsaModulus.do", a.loginHeaders(false), nil)
	if err != nil {
		return "", "", err
	}

	var payload struct {
		Data struct {
			RSAModulus     string `json:"rsaModulus"`
			PublicExponent string `json:"publicExponent"`
		} `json:"data"`
	}
	if err := json.Unmarshal(resp.Body, &payload); err != nil {
		return "", "", fmt.Errorf("decode rsa key payload: %w", err)
	}

	if payload.Data.RSAModulus == "" || payload.Data.PublicExponent == "" {
		return "", "", fmt.Errorf("%w: %s", ErrMissingKeyMaterial, string(resp.Body))
	}

	return payload.Data.RSAModulus, payload.Data.PublicExponent, nil
}

// encryptCredential RSA-encrypts a credential with PKCS1 v1.5 padding and
// returns the hex-encoded ciphertext, matching what the login form's
// client-side script produces.
func encryptCredential(credential, modulusHex, exponentHex string) (string, error) {
	n, ok := new(big.Int).SetString(modulusHex, 16)
	if !ok {
		return "", fmt.Errorf("invalid rsa modulus %q", modulusHex)
	}
	e, err := strconv.ParseInt(exponentHex, 16, 64)
	if err != nil {
		return "", fmt.Errorf("invalid rsa exponent %q: %w", exponentHex, err)
	}

	pub := &rsa.PublicKey{N: n, E: int(e)}
	encrypted, err := rsa.EncryptPKCS1v15(rand.Reader, pub, []byte(credential))
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(encrypted), nil
}

func (a *AuthController) loginHeaders(includeContentType bool) http.Header {
	h := loginHeaders(includeContentType)
	h.Set("Referer", a.baseURL+"/login")
	h.Set("Origin", a.baseURL)
	return h
}

// updateAuthCred refreshes the cached session cookie after login.
//
// The jar is preferred over the raw response because redirects may set the
// cookie on a later hop the direct response object does not see. The response
// (cookies, then a tolerant Set-Cookie parse) is the fallback so one missed
// Set-Cookie during redirect handling does not fail the login.
func (a *AuthController) updateAuthCred(loginResp *Response) error {
	if id, ok := a.sessionIDFromJar(); ok {
		a.sessionID = id
		a.cachedCookieHeader = a.buildCookieHeader(nil)
		return nil
	}

	id, ok := sessionIDFromResponse(loginResp)
	if !ok {
		setCookie := strings.Join(loginResp.Header.Values("Set-Cookie"), ", ")
		excerpt := string(loginResp.Body)
		if len(excerpt) > 500 {
			excerpt = excerpt[:500]
		}
		return fmt.Errorf("%w (status=%d set-cookie=%q body=%q)",
			ErrSessionCookieMissing, loginResp.StatusCode, setCookie, excerpt)
	}

	a.sessionID = id
	a.cachedCookieHeader = a.buildCookieHeader(loginResp)
	return nil
}

func (a *AuthController) sessionIDFromJar() (string, bool) {
	for _, cookie := range a.http.Cookies(a.baseURL) {
		if cookie.Value != "" && strings.HasPrefix(strings.ToUpper(cookie.Name), sessionCookiePrefix) {
			return cookie.Value, true
		}
	}
	return "", false
}

func sessionIDFromResponse(resp *Response) (string, bool) {
	for _, cookie := range resp.SetCookies {
		if strings.HasPrefix(strings.ToUpper(cookie.Name), sessionCookiePrefix) {
			return cookie.Value, true
		}
	}

	for _, setCookie := range resp.Header.Values("Set-Cookie") {
		if m := sessionCookiePattern.FindStringSubmatch(setCookie); m != nil {
			return m[1], true
		}
	}

	return "", false
}

// buildCookieHeader assembles one Cookie header from every cookie source
// discovered during login: the jar, the direct response cookies, and raw
// Set-Cookie headers. Some endpoints depend on cookies beyond the session id,
// and the site's redirect behavior is inconsistent enough that no single
// source can be trusted to hold them all.
//
// The result is deduplicated by cookie name, order-preserving, and always
// contains the session cookie once one has been discovered.
func (a *AuthController) buildCookieHeader(resp *Response) string {
	var pairs []string
	seen := make(map[string]bool)

	appendCookie := func(name, value string) {
		name = strings.TrimSpace(name)
		if name == "" || value == "" || seen[name] {
			return
		}
		seen[name] = true
		pairs = append(pairs, name+"="+value)
	}

	for _, cookie := range a.http.Cookies(a.baseURL) {
		appendCookie(cookie.Name, cookie.Value)
	}

	if resp != nil {
		for _, cookie := range resp.SetCookies {
			appendCookie(cookie.Name, cookie.Value)
		}
		for _, setCookie := range resp.Header.Values("Set-Cookie") {
			for part := range strings.SplitSeq(setCookie, ",") {
				name, rest, ok := strings.Cut(part, "=")
				if !ok {
					continue
				}
				value, _, _ := strings.Cut(rest, ";")
				appendCookie(name, strings.TrimSpace(value))
			}
		}
	}

	if a.sessionID != "" {
		hasSession := false
		for name := range seen {
			if strings.HasPrefix(strings.ToUpper(name), sessionCookiePrefix) {
				hasSession = true
				break
			}
		}
		if !hasSession {
			appendCookie(sessionCookiePrefix, a.sessionID)
		}
	}

	return strings.Join(pairs, "; ")
}
