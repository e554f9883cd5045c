package main

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrPermissionDenied indicates the site rejected the supplied credentials.
// Retrying the same login will not help.
var ErrPermissionDenied = errors.New("login rejected: invalid user id or password")

// ErrMissingKeyMaterial indicates the RSA key endpoint answered without a
// modulus or public exponent, so credentials cannot be encrypted.
var ErrMissingKeyMaterial = errors.New("rsa modulus or exponent missing in response")

// ErrSessionCookieMissing indicates no session cookie could be found after a
// login that did not otherwise fail. Terminal for the login attempt.
var ErrSessionCookieMissing = errors.New("session cookie not set after login")

// RequestError is the uniform transport-level failure: it carries the method,
// URL and underlying cause so callers can decide whether to retry further.
type RequestError struct {
	Method string
	URL    string
	Err    error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s %s failed: %v", e.Method, e.URL, e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// MalformedResponseError is raised when the site returns an HTML page on an
// endpoint that should answer JSON. The excerpt lets operators distinguish
// "site is down" from "site changed shape".
type MalformedResponseError struct {
	StatusCode  int
	ContentType string
	BodyExcerpt string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("expected JSON but got status=%d content-type=%q body=%q",
		e.StatusCode, e.ContentType, e.BodyExcerpt)
}

// NewMalformedResponseError truncates the body to a diagnostic excerpt.
func NewMalformedResponseError(statusCode int, contentType string, body []byte) *MalformedResponseError {
	excerpt := string(body)
	if len(excerpt) > 300 {
		excerpt = excerpt[:300]
	}
	return &MalformedResponseError{
		StatusCode:  statusCode,
		ContentType: contentType,
		BodyExcerpt: excerpt,
	}
}

// BusinessFailureError is a well-formed server response reporting that the
// purchase was not executed for a domain reason (funds, duplicate, timing).
// Never retried.
type BusinessFailureError struct {
	Message string
	Round   string
}

func (e *BusinessFailureError) Error() string {
	return fmt.Sprintf("purchase not executed: %s", e.Message)
}

// ValidationError rejects caller-supplied input before any network call.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid purchase request: " + e.Reason
}

// retryableErrorPatterns contains error message substrings that indicate
// transient network failures.
var retryableErrorPatterns = []string{
	"connection refused",
	"connection reset",
	"no such host",
	"i/o timeout",
	"context deadline exceeded",
	"TLS handshake timeout",
	"EOF",
	"malformed HTTP response",
	"transport connection broken",
	"use of closed network connection",
}

// IsRetryableError reports whether the error is a transient network failure
// worth retrying. Malformed responses and business failures are not network
// failures and are handled at the workflow layer instead.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var malformed *MalformedResponseError
	if errors.As(err, &malformed) {
		return false
	}
	var business *BusinessFailureError
	if errors.As(err, &business) {
		return false
	}

	if isNetworkTimeout(err) {
		return true
	}

	return containsRetryablePattern(err.Error())
}

func isNetworkTimeout(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}

func containsRetryablePattern(errStr string) bool {
	for _, pattern := range retryableErrorPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}
