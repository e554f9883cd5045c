package main

import (
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	http "github.com/bogdanfinn/fhttp"
	tls_client "github.com/bogdanfinn/tls-client"
	"github.com/bogdanfinn/tls-client/profiles"
)

// retryStatuses are the transient HTTP statuses worth retrying on GET.
var retryStatuses = map[int]bool{
	429: true,
	500: true,
	502: true,
	503: true,
	504: true,
}

// TransportConfig controls pacing, timeouts and the GET retry policy.
type TransportConfig struct {
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	// RequestDelay is a fixed politeness delay applied before every call.
	RequestDelay time.Duration
	// MaxRetries is the total number of GET attempts, not extra attempts.
	MaxRetries  int
	BackoffBase time.Duration
}

// DefaultTransportConfig reads the environment-level defaults.
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		ConnectTimeout: getenvDuration("CONNECT_TIMEOUT", 20*time.Second),
		ReadTimeout:    getenvDuration("READ_TIMEOUT", 20*time.Second),
		RequestDelay:   getenvDuration("REQUEST_DELAY", 200*time.Millisecond),
		MaxRetries:     getenvInt("MAX_RETRIES", 3),
		BackoffBase:    500 * time.Millisecond,
	}
}

// Response is a fully read HTTP response. The body is consumed before any
// retry decision, so callers never deal with a half-read stream.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	// SetCookies holds the cookies the final response itself carried,
	// independent of whatever the shared jar has accumulated.
	SetCookies []*http.Cookie
}

// ContentType returns the media type of the response without parameters.
func (r *Response) ContentType() string {
	ct := r.Header.Get("Content-Type")
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.TrimSpace(ct)
}

// HTTPClient issues paced GET/POST requests against the lottery site.
//
// One long-lived instance is constructed in main and injected into the auth
// controller and workflows; its cookie jar is shared mutable state, so the
// auth controller must reset it between accounts.
type HTTPClient struct {
	client tls_client.HttpClient
	logger Logger
	cfg    TransportConfig
}

func NewHTTPClient(logger Logger, cfg TransportConfig) (*HTTPClient, error) {
	jar := tls_client.NewCookieJar()
	options := []tls_client.HttpClientOption{
		// tls-client exposes a single deadline; connect+read bounds the
		// whole exchange, which is the stricter of the two budgets.
		tls_client.WithTimeoutSeconds(int((cfg.ConnectTimeout + cfg.ReadTimeout) / time.Second)),
		tls_client.WithClientProfile(profiles.Chrome_133),
		tls_client.WithRandomTLSExtensionOrder(),
		tls_client.WithCookieJar(jar),
	}

	client, err := tls_client.NewHttpClient(tls_client.NewNoopLogger(), options...)
	if err != nil {
		return nil, err
	}

	return &HTTPClient{
		client: client,
		logger: logger,
		cfg:    cfg,
	}, nil
}

// Get issues a GET with automatic retry for connection failures, timeouts and
// transient statuses. It returns the last response received even when the
// retry budget is exhausted on a bad status, alongside a RequestError.
func (h *HTTPClient) Get(rawURL string, headers http.Header, params url.Values) (*Response, error) {
	target := rawURL
	if len(params) > 0 {
		sep := "?"
		if strings.Contains(rawURL, "?") {
			sep = "&"
		}
		target = rawURL + sep + params.Encode()
	}

	attempts := h.cfg.MaxRetries
	if attempts < 1 {
		attempts = 1
	}

	var lastResp *Response
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			time.Sleep(h.cfg.BackoffBase << (attempt - 2))
		}

		resp, err := h.do(http.MethodGet, target, headers, "")
		if err != nil {
			lastResp, lastErr = nil, err
			if !IsRetryableError(err) {
				break
			}
			continue
		}

		lastResp, lastErr = resp, nil
		if !retryStatuses[resp.StatusCode] {
			return resp, nil
		}
		lastErr = fmt.Errorf("transient status %d", resp.StatusCode)
	}

	return lastResp, &RequestError{Method: http.MethodGet, URL: rawURL, Err: lastErr}
}

// Post issues a single form-encoded POST. POST is never auto-retried here:
// retry-on-POST is a workflow decision made only where idempotency can be
// reasoned about.
func (h *HTTPClient) Post(rawURL string, headers http.Header, data url.Values) (*Response, error) {
	body := ""
	if data != nil {
		body = data.Encode()
	}

	resp, err := h.do(http.MethodPost, rawURL, headers, body)
	if err != nil {
		return nil, &RequestError{Method: http.MethodPost, URL: rawURL, Err: err}
	}
	return resp, nil
}

func (h *HTTPClient) do(method, rawURL string, headers http.Header, body string) (*Response, error) {
	if h.cfg.RequestDelay > 0 {
		time.Sleep(h.cfg.RequestDelay)
	}

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, rawURL, reader)
	if err != nil {
		return nil, err
	}
	if headers != nil {
		req.Header = cloneHeader(headers)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		h.logger.Log("[http] %s %s -> error: %v", method, rawURL, err)
		return nil, err
	}
	defer resp.Body.Close()

	bodyBytes, err := readResponseBody(resp)
	if err != nil {
		h.logger.Log("[http] %s %s -> read error: %v", method, rawURL, err)
		return nil, err
	}
	h.logger.Log("[http] %s %s -> %d", method, rawURL, resp.StatusCode)

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       bodyBytes,
		SetCookies: resp.Cookies(),
	}, nil
}

// Cookies returns the jar's cookies for the given URL.
func (h *HTTPClient) Cookies(rawURL string) []*http.Cookie {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}
	return h.client.GetCookies(u)
}

// ClearCookies swaps in a fresh jar. Required between different accounts
// sharing this transport so cookies never bleed across logins.
func (h *HTTPClient) ClearCookies() {
	h.client.SetCookieJar(tls_client.NewCookieJar())
}
