package main

import (
	"os"
	"strconv"
	"time"
)

func getenvInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

// getenvDuration reads a duration given in seconds (fractions allowed),
// falling back on parse failure.
func getenvDuration(name string, fallback time.Duration) time.Duration {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	secs, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return time.Duration(secs * float64(time.Second))
}

func getenvBool(name string) bool {
	switch os.Getenv(name) {
	case "1", "true", "TRUE", "True", "yes", "y":
		return true
	}
	return false
}

// roundAnchorFromEnv returns the round/draw-date anchor used for the
// degraded-mode round computation. The default pins the very first draw;
// override LOTTO_ROUND_ANCHOR / LOTTO_ROUND_ANCHOR_DATE (YYYY-MM-DD) if the
// site's numbering ever drifts.
func roundAnchorFromEnv() RoundAnchor {
	anchor := defaultRoundAnchor

	if round := getenvInt("LOTTO_ROUND_ANCHOR", 0); round > 0 {
		if raw := os.Getenv("LOTTO_ROUND_ANCHOR_DATE"); raw != "" {
			if date, err := time.Parse("2006-01-02", raw); err == nil {
				anchor = RoundAnchor{Round: round, Date: date}
			}
		}
	}

	return anchor
}
