package main

import (
	http "github.com/bogdanfinn/fhttp"
)

const (
	mainBaseURL = "https://www.dhlottery.co.kr"
	gameBaseURL = "https://ol.dhlottery.co.kr"

	browserUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/133.0.0.0 Safari/537.36"
	browserSecChUa   = `"Not(A:Brand";v="99", "Google Chrome";v="133", "Chromium";v="133"`
)

// browserHeaderOrder is the order Chrome sends these headers in for a
// navigation request; the site fronts requests with a WAF that has been seen
// rejecting obviously non-browser header sets.
var browserHeaderOrder = []string{
	"Host",
	"Connection",
	"Cache-Control",
	"sec-ch-ua",
	"sec-ch-ua-mobile",
	"Upgrade-Insecure-Requests",
	"Origin",
	"Content-Type",
	"X-Requested-With",
	"Accept",
	"Referer",
	"Sec-Fetch-Site",
	"Sec-Fetch-Mode",
	"Sec-Fetch-User",
	"Sec-Fetch-Dest",
	"Accept-Encoding",
	"Accept-Language",
	"Cookie",
}

// baseHeaders returns a fresh browser-like header set for site requests.
func baseHeaders() http.Header {
	return http.Header{
		"User-Agent":                {browserUserAgent},
		"Connection":                {"keep-alive"},
		"Cache-Control":             {"max-age=0"},
		"sec-ch-ua":                 {browserSecChUa},
		"sec-ch-ua-mobile":          {"?0"},
		"Upgrade-Insecure-Requests": {"1"},
		"Origin":                    {mainBaseURL},
		"Content-Type":              {"application/x-www-form-urlencoded"},
		"Accept":                    {"text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8,application/signed-exchange;v=b3;q=0.9"},
		"Referer":                   {mainBaseURL + "/"},
		"Sec-Fetch-Site":            {"same-site"},
		"Sec-Fetch-Mode":            {"navigate"},
		"Sec-Fetch-User":            {"?1"},
		"Sec-Fetch-Dest":            {"document"},
		"Accept-Language":           {"ko,en-US;q=0.9,en;q=0.8,ko-KR;q=0.7"},
		http.HeaderOrderKey:         browserHeaderOrder,
		http.PHeaderOrderKey:        PseudoHeaderOrder,
	}
}

// loginHeaders returns headers for the login flow. The key and warmup GETs
// must not carry a form content type, only the credential POST does.
func loginHeaders(includeContentType bool) http.Header {
	h := baseHeaders()
	h.Set("Referer", mainBaseURL+"/login")
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	if !includeContentType {
		h.Del("Content-Type")
	}
	return h
}

// gameHeaders returns headers for the purchase/verification endpoints, which
// live on the game host.
func gameHeaders() http.Header {
	h := baseHeaders()
	h.Set("Origin", gameBaseURL)
	h.Set("Referer", gameBaseURL+"/olotto/game/game645.do")
	return h
}
