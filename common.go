package main

import (
	"time"
)

// slotLabels are the per-line labels of a single purchase, assigned by
// position. The site caps one purchase at five lines.
var slotLabels = [5]string{"A", "B", "C", "D", "E"}

const (
	ledgerDateLayout = "20060102"
	drawDateLayout   = "2006/01/02"
)

// searchDateRange returns the trailing window the ledger endpoint is queried
// with: the last seven days, formatted the way the site expects.
func searchDateRange(now time.Time) (start, end string) {
	return now.AddDate(0, 0, -7).Format(ledgerDateLayout), now.Format(ledgerDateLayout)
}

// nextSaturday returns the upcoming draw day (draws happen every Saturday).
// A Saturday counts as its own draw day.
func nextSaturday(now time.Time) time.Time {
	daysAhead := (int(time.Saturday) - int(now.Weekday()) + 7) % 7
	return now.AddDate(0, 0, daysAhead)
}

// RoundAnchor pins a known draw round to its draw date so the current round
// can be computed by counting weeks when the purchase page cannot be scraped.
// The pair is site trivia that may drift, hence env-overridable.
type RoundAnchor struct {
	Round int
	Date  time.Time
}

// defaultRoundAnchor is the very first draw.
var defaultRoundAnchor = RoundAnchor{
	Round: 1,
	Date:  time.Date(2002, time.December, 7, 0, 0, 0, 0, time.UTC),
}

// roundForDate computes the round whose draw covers the given time.
func (a RoundAnchor) roundForDate(now time.Time) int {
	draw := nextSaturday(now.UTC())
	weeks := int(draw.Sub(a.Date).Hours() / (24 * 7))
	return a.Round + weeks
}
