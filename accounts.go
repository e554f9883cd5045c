package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Account is one lottery-site credential pair. Credentials are never
// persisted; they only exist in env and transiently encrypted on login.
type Account struct {
	UserID   string
	Password string
}

// loadAccounts reads DHLOTTERY_ACCOUNTS ("id:pw[,id:pw...]"), falling back to
// the single-account USERNAME/PASSWORD pair.
func loadAccounts() ([]Account, error) {
	if raw := os.Getenv("DHLOTTERY_ACCOUNTS"); raw != "" {
		var accounts []Account
		for entry := range strings.SplitSeq(raw, ",") {
			entry = strings.TrimSpace(entry)
			if entry == "" {
				continue
			}
			id, pw, ok := strings.Cut(entry, ":")
			if !ok || id == "" || pw == "" {
				return nil, fmt.Errorf("malformed DHLOTTERY_ACCOUNTS entry %q, want id:pw", entry)
			}
			accounts = append(accounts, Account{UserID: id, Password: pw})
		}
		if len(accounts) == 0 {
			return nil, fmt.Errorf("DHLOTTERY_ACCOUNTS set but contains no accounts")
		}
		return accounts, nil
	}

	id := os.Getenv("USERNAME")
	pw := os.Getenv("PASSWORD")
	if id == "" || pw == "" {
		return nil, fmt.Errorf("no accounts configured: set DHLOTTERY_ACCOUNTS or USERNAME/PASSWORD")
	}
	return []Account{{UserID: id, Password: pw}}, nil
}

// parseManualNumbers parses LOTTO_MANUAL_NUMBERS, e.g.
// "1,7,19,23,31,44;2,8,20,24,32,45" for two manual slots. Range validation
// happens at purchase time; this only checks the shape.
func parseManualNumbers(raw string) ([][]int, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	var sets [][]int
	for group := range strings.SplitSeq(raw, ";") {
		group = strings.TrimSpace(group)
		if group == "" {
			continue
		}

		var set []int
		for field := range strings.SplitSeq(group, ",") {
			n, err := strconv.Atoi(strings.TrimSpace(field))
			if err != nil {
				return nil, fmt.Errorf("manual number %q is not a number", field)
			}
			set = append(set, n)
		}
		if len(set) != 6 {
			return nil, fmt.Errorf("manual set %q has %d numbers, want 6", group, len(set))
		}
		sets = append(sets, set)
	}
	return sets, nil
}
