package main

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

const telegramAPIBase = "https://api.telegram.org"

// Notifier delivers purchase and winning reports to a Telegram chat. It is a
// boundary collaborator: delivery failures are logged, never fatal to a run.
//
// It deliberately uses its own small HTTP client instead of the site
// transport; the Bot API needs none of the browser plumbing.
type Notifier struct {
	token   string
	chatID  string
	logger  Logger
	apiBase string
	timeout time.Duration
}

func NewNotifier(token, chatID string, logger Logger) *Notifier {
	return &Notifier{
		token:   token,
		chatID:  chatID,
		logger:  logger,
		apiBase: telegramAPIBase,
		timeout: 10 * time.Second,
	}
}

// SendPurchaseReport reports a buy outcome for one account. err describes why
// the purchase failed when result is nil.
func (n *Notifier) SendPurchaseReport(userID string, result *PurchaseResult, err error) {
	var message string
	switch {
	case err != nil:
		message = fmt.Sprintf("%s: lotto purchase failed\n%s",
			html.EscapeString(userID), html.EscapeString(err.Error()))
	case result != nil:
		numbers := formatPurchaseNumbers(result.Numbers)
		message = fmt.Sprintf("%s: round %s lotto purchased (balance %s)\n<pre>%s</pre>",
			html.EscapeString(userID),
			html.EscapeString(result.Round),
			html.EscapeString(result.Balance),
			html.EscapeString(numbers))
	default:
		return
	}

	n.send(message)
}

// SendLoginFailure reports that an account could not be logged in.
func (n *Notifier) SendLoginFailure(userID string, err error) {
	n.send(fmt.Sprintf("%s: login failed\n%s",
		html.EscapeString(userID), html.EscapeString(err.Error())))
}

// SendWinningReport reports the verification outcome. A nil record means no
// recent winning data was found.
func (n *Notifier) SendWinningReport(userID string, record *WinningRecord) {
	if record == nil {
		n.send(html.EscapeString(userID + ": no recent lotto purchases found"))
		return
	}

	header := fmt.Sprintf("%s: round %s result, prize %s (bought %s, drawn %s)",
		userID, record.Round, record.Money, record.PurchasedDate, record.WinningDate)

	n.send(fmt.Sprintf("%s\n<pre>%s</pre>",
		html.EscapeString(header),
		html.EscapeString(formatWinningLines(record.Lines))))
}

// formatPurchaseNumbers renders the server's raw slot strings, dropping the
// trailing selection-mode digit and the pipe separators.
func formatPurchaseNumbers(numbers []string) string {
	lines := make([]string, 0, len(numbers))
	for _, raw := range numbers {
		if len(raw) > 1 {
			raw = raw[:len(raw)-1]
		}
		lines = append(lines, strings.ReplaceAll(raw, "|", " "))
	}
	return strings.Join(lines, "\n")
}

func formatWinningLines(lines []WinningLine) string {
	if len(lines) == 0 {
		return "no detail lines"
	}

	rendered := make([]string, 0, len(lines))
	for _, line := range lines {
		balls := make([]string, 0, len(line.Numbers))
		for _, num := range line.Numbers {
			if num.Matched {
				balls = append(balls, "["+num.Value+"]")
			} else {
				balls = append(balls, num.Value)
			}
		}
		rendered = append(rendered, fmt.Sprintf("%s %s (%s) %s",
			line.Label, line.Status, line.Method, strings.Join(balls, " ")))
	}
	return strings.Join(rendered, "\n")
}

func (n *Notifier) send(text string) {
	if n.token == "" || n.chatID == "" {
		n.logger.Log("[notify] telegram not configured, skipping message")
		return
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(n.apiBase + "/bot" + n.token + "/sendMessage")
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/x-www-form-urlencoded")
	req.PostArgs().Set("chat_id", n.chatID)
	req.PostArgs().Set("text", text)
	req.PostArgs().Set("parse_mode", "HTML")
	req.PostArgs().Set("disable_web_page_preview", "true")

	if err := fasthttp.DoTimeout(req, resp, n.timeout); err != nil {
		n.logger.Log("[notify] telegram delivery failed: %v", err)
		return
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		n.logger.Log("[notify] telegram answered %d: %s", resp.StatusCode(), resp.Body())
	}
}
