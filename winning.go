package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	http "github.com/bogdanfinn/fhttp"
)

// WinningNumber is one ball of a slot line; Matched marks balls that hit the
// draw numbers.
type WinningNumber struct {
	Value   string
	Matched bool
}

// WinningLine is one slot of a historical ticket.
type WinningLine struct {
	Label   string
	Status  string
	Method  string // auto | manual | semi | unknown
	Numbers []WinningNumber
}

// WinningRecord is the normalized projection of the most recent round's
// purchases. A nil record means no winning data was found; that is a
// legitimate result, not an error.
type WinningRecord struct {
	Round         string
	Money         string
	PurchasedDate string
	WinningDate   string
	Lines         []WinningLine
}

// CheckWinning queries the purchase ledger for the trailing week, selects the
// entries of the most recent round, and resolves each ticket's detail into a
// normalized record. Per-entry failures are skipped, never fatal; only
// transport failure of the ledger query itself is surfaced.
func (l *Lotto645) CheckWinning(auth *AuthController) (*WinningRecord, error) {
	headers := auth.AddAuthCredToHeaders(baseHeaders())

	// Session warmup. Failure only costs realism, not correctness.
	if _, err := l.http.Get(l.mainURL+"/common.do?method=main", headers, nil); err != nil {
		l.logger.Log("[lotto645] verification warmup failed: %v", err)
	}

	start, end := searchDateRange(l.now())
	params := url.Values{
		"nowPage":         {"1"},
		"searchStartDate": {start},
		"searchEndDate":   {end},
		"winGrade":        {"2"},
		"lottoId":         {lottoProductCode},
		"sortOrder":       {"DESC"},
	}

	resp, err := l.http.Get(l.mainURL+"/myPage.do?method=lottoBuyListJson", headers, params)
	if err != nil {
		return nil, err
	}

	var ledger struct {
		Data struct {
			List []map[string]any `json:"list"`
		} `json:"data"`
	}
	if err := json.Unmarshal(resp.Body, &ledger); err != nil {
		l.logger.Log("[lotto645] ledger response not parseable: %v", err)
		return nil, nil
	}
	if len(ledger.Data.List) == 0 {
		// The endpoint has been seen answering without the data envelope.
		var bare struct {
			List []map[string]any `json:"list"`
		}
		if json.Unmarshal(resp.Body, &bare) == nil {
			ledger.Data.List = bare.List
		}
	}
	if len(ledger.Data.List) == 0 {
		return nil, nil
	}

	entries := selectLatestRound(ledger.Data.List)
	if len(entries.list) == 0 {
		return nil, nil
	}

	record := &WinningRecord{Round: strconv.Itoa(entries.round)}

	var totalPrize int64
	for _, entry := range entries.list {
		if amount, ok := parseAmount(fieldString(entry, "winAmount", "money", "winAmt", "prizeAmount")); ok {
			totalPrize += amount
		}

		if purchased := fieldString(entry, "purchasedDate", "buyDate", "orderDate", "saleDate"); purchased > record.PurchasedDate {
			record.PurchasedDate = purchased
		}
		if record.WinningDate == "" {
			record.WinningDate = fieldString(entry, "winningDate", "announceDate", "drawDate", "presentDate")
		}

		lines, err := l.fetchTicketDetail(headers, entry)
		if err != nil {
			l.logger.Log("[lotto645] ticket detail fetch skipped: %v", err)
			continue
		}
		record.Lines = append(record.Lines, lines...)
	}

	record.Money = formatMoney(totalPrize)
	return record, nil
}

// roundGroup holds the ledger entries of one round. A purchase may contain
// multiple lines in the same round, so ties keep every entry.
type roundGroup struct {
	round int
	list  []map[string]any
}

func selectLatestRound(list []map[string]any) roundGroup {
	groups := make(map[int][]map[string]any)
	maxRound := -1

	for _, entry := range list {
		raw := fieldString(entry, "round", "buyRound", "lottoRound", "drwNo")
		round, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			continue
		}
		groups[round] = append(groups[round], entry)
		if round > maxRound {
			maxRound = round
		}
	}

	return roundGroup{round: maxRound, list: groups[maxRound]}
}

// fetchTicketDetail resolves one ledger entry into its per-slot lines.
func (l *Lotto645) fetchTicketDetail(headers http.Header, entry map[string]any) ([]WinningLine, error) {
	orderNo := fieldString(entry, "orderNo", "ordrNo", "orderNumber")
	barcode := fieldString(entry, "barcode", "barCd", "barCode")
	issueNo := fieldString(entry, "issueNo", "issueNum", "issueNumber")
	if orderNo == "" || barcode == "" || issueNo == "" {
		return nil, fmt.Errorf("ledger entry missing detail keys: %v", entry)
	}

	params := url.Values{
		"orderNo": {orderNo},
		"barcode": {barcode},
		"issueNo": {issueNo},
	}
	resp, err := l.http.Get(l.mainURL+"/myPage.do?method=lotto645DetailJson", headers, params)
	if err != nil {
		return nil, err
	}

	var detail struct {
		Data map[string]any `json:"data"`
	}
	if err := json.Unmarshal(resp.Body, &detail); err != nil {
		return nil, fmt.Errorf("ticket detail not parseable: %w", err)
	}

	games := listField(detail.Data, "games", "gameList", "list")
	if games == nil {
		return nil, fmt.Errorf("ticket detail has no game list")
	}

	var lines []WinningLine
	for i, raw := range games {
		game, ok := raw.(map[string]any)
		if !ok {
			continue
		}

		label := fieldString(game, "alpabet", "alphabet", "slot", "label")
		if label == "" && i < len(slotLabels) {
			label = slotLabels[i]
		}

		lines = append(lines, WinningLine{
			Label:   label,
			Status:  normalizeWinStatus(fieldString(game, "winGrade", "rank", "status", "result")),
			Method:  resolveSelectionMethod(game),
			Numbers: extractNumbers(game),
		})
	}
	return lines, nil
}

// normalizeWinStatus collapses the site's "no win" wording into the zero
// grade the notifications expect.
func normalizeWinStatus(status string) string {
	status = strings.Join(strings.Fields(status), " ")
	if status == "" {
		return "-"
	}
	return strings.ReplaceAll(status, "낙첨", "0등")
}

// Selection-method resolution. The site is inconsistent about where and how
// it reports whether a slot was auto, manual or semi-auto picked, so this is
// a prioritized candidate search with "unknown" as a legitimate terminal
// outcome rather than an error.
var (
	methodFieldCandidates = []string{"genType", "gen_type", "buyMethod", "selMethod", "selectionMethod"}
	methodFieldKeywords   = []string{"gentype", "method"}
	paramBlobCandidates   = []string{"param", "gameParam", "slotParam", "params"}

	selectionMethodNames = map[string]string{
		"0":   "auto",
		"1":   "manual",
		"2":   "semi",
		"자동":  "auto",
		"수동":  "manual",
		"반자동": "semi",
	}
)

func resolveSelectionMethod(game map[string]any) string {
	if method, ok := methodFromFields(game); ok {
		return method
	}

	// Per-slot parameter blobs, which may themselves be JSON-encoded strings.
	for _, key := range paramBlobCandidates {
		raw, ok := game[key]
		if !ok {
			continue
		}

		var nested map[string]any
		switch blob := raw.(type) {
		case map[string]any:
			nested = blob
		case string:
			if json.Unmarshal([]byte(blob), &nested) != nil {
				continue
			}
		default:
			continue
		}

		if method, ok := methodFromFields(nested); ok {
			return method
		}
	}

	return "unknown"
}

func methodFromFields(m map[string]any) (string, bool) {
	if raw := fieldString(m, methodFieldCandidates...); raw != "" {
		if method, ok := selectionMethodNames[strings.TrimSpace(raw)]; ok {
			return method, true
		}
	}

	for key, value := range m {
		lower := strings.ToLower(key)
		for _, keyword := range methodFieldKeywords {
			if !strings.Contains(lower, keyword) {
				continue
			}
			if method, ok := selectionMethodNames[strings.TrimSpace(anyToString(value))]; ok {
				return method, true
			}
		}
	}

	return "", false
}

// extractNumbers pulls the six numbers of a slot, flagging the ones the site
// reports as matched. Numbers arrive either as a pipe-joined string or as a
// JSON list.
func extractNumbers(game map[string]any) []WinningNumber {
	matched := make(map[string]bool)
	for _, v := range listField(game, "matchedNumbers", "winNums", "matchNum") {
		if s := normalizeBall(anyToString(v)); s != "" {
			matched[s] = true
		}
	}

	var values []string
	if raw := listField(game, "arrGameChoiceNum", "gameNumbers", "numbers", "nums"); raw != nil {
		for _, v := range raw {
			values = append(values, anyToString(v))
		}
	} else if joined := fieldString(game, "arrGameChoiceNum", "gameChoiceNum", "numbers", "nums"); joined != "" {
		values = strings.Split(joined, "|")
	}

	var numbers []WinningNumber
	for _, v := range values {
		ball := normalizeBall(v)
		if ball == "" {
			continue
		}
		numbers = append(numbers, WinningNumber{Value: ball, Matched: matched[ball]})
	}
	return numbers
}

// normalizeBall turns a raw ball value into a zero-padded two-digit string,
// dropping slot letters and marker characters the site mixes in.
func normalizeBall(v string) string {
	digits := strings.Builder{}
	for _, r := range v {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	s := digits.String()
	if s == "" || len(s) > 2 {
		return ""
	}
	if len(s) == 1 {
		return "0" + s
	}
	return s
}

// fieldString searches the exact candidate names in order and returns the
// first non-empty value, stringified.
func fieldString(m map[string]any, names ...string) string {
	for _, name := range names {
		if v, ok := m[name]; ok {
			if s := anyToString(v); s != "" {
				return s
			}
		}
	}
	return ""
}

// listField returns the first candidate field holding a list.
func listField(m map[string]any, names ...string) []any {
	for _, name := range names {
		if v, ok := m[name]; ok {
			if list, ok := v.([]any); ok {
				return list
			}
		}
	}
	return nil
}

func anyToString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	default:
		return ""
	}
}

// parseAmount extracts a money amount from strings like "5,000원". Non-numeric
// amounts are skipped, not fatal.
func parseAmount(s string) (int64, bool) {
	digits := strings.Builder{}
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	if digits.Len() == 0 {
		return 0, false
	}
	n, err := strconv.ParseInt(digits.String(), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func formatMoney(amount int64) string {
	s := strconv.FormatInt(amount, 10)
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return b.String() + "원"
}
