package pricing

import "time"

// Cadence decides which calendar days run the price refresh.
type Cadence struct {
	// Every is the period in days. Values below 1 run daily.
	Every int
	// Anchor is the first due day.
	Anchor time.Time
	Loc    *time.Location
}

// DefaultAnchor is the first refresh day of the cycle.
var DefaultAnchor = time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)

// Due reports whether the calendar day of t, in the business timezone, is a
// whole number of periods after the anchor.
func (c Cadence) Due(t time.Time) bool {
	if c.Every <= 1 {
		return true
	}
	loc := c.Loc
	if loc == nil {
		loc = time.UTC
	}
	anchor := c.Anchor
	if anchor.IsZero() {
		anchor = DefaultAnchor
	}
	local := t.In(loc)
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
	start := time.Date(anchor.Year(), anchor.Month(), anchor.Day(), 0, 0, 0, 0, time.UTC)
	days := int(day.Sub(start).Hours() / 24)
	return days >= 0 && days%c.Every == 0
}
