package models

import (
	"fmt"
	"time"
)

// Granularity selects how wide a statistical period is.
type Granularity string

const (
	GranDay     Granularity = "day"
	GranWeek    Granularity = "week"
	GranMonth   Granularity = "month"
	GranYear    Granularity = "year"
	GranAllTime Granularity = "alltime"
)

// BoundaryRule decides where a weather "day" and week begin. Day start is a
// local-time hour, not necessarily midnight; overnight-minimum stations
// commonly shift it to 09:00.
type BoundaryRule struct {
	DayStartHour int
	WeekStart    time.Weekday
	Location     *time.Location
}

// DefaultBoundaries is midnight-anchored, Sunday-starting, UTC.
func DefaultBoundaries() BoundaryRule {
	return BoundaryRule{DayStartHour: 0, WeekStart: time.Sunday, Location: time.UTC}
}

func (b BoundaryRule) Loc() *time.Location {
	if b.Location == nil {
		return time.UTC
	}
	return b.Location
}

// DayStart returns the start of the weather day containing t. A timestamp
// exactly on the boundary belongs to the day it starts.
func (b BoundaryRule) DayStart(t time.Time) time.Time {
	lt := t.In(b.Loc())
	start := time.Date(lt.Year(), lt.Month(), lt.Day(), b.DayStartHour, 0, 0, 0, b.Loc())
	if lt.Before(start) {
		start = start.AddDate(0, 0, -1)
	}
	return start
}

// WeekStartTime returns the start of the week containing t, honoring both
// the configured first weekday and the day-start hour.
func (b BoundaryRule) WeekStartTime(t time.Time) time.Time {
	day := b.DayStart(t)
	delta := int(day.Weekday()) - int(b.WeekStart)
	if delta < 0 {
		delta += 7
	}
	return day.AddDate(0, 0, -delta)
}

// Period bounds a statistical query: the week/month/year/day containing
// Anchor, or all of history.
type Period struct {
	Granularity Granularity
	Anchor      time.Time
	Bounds      BoundaryRule
}

// NewPeriod builds a period of the given granularity containing anchor.
func NewPeriod(g Granularity, anchor time.Time, b BoundaryRule) Period {
	return Period{Granularity: g, Anchor: anchor, Bounds: b}
}

// Start returns the inclusive lower bound of the period.
func (p Period) Start() time.Time {
	switch p.Granularity {
	case GranDay:
		return p.Bounds.DayStart(p.Anchor)
	case GranWeek:
		return p.Bounds.WeekStartTime(p.Anchor)
	case GranMonth:
		day := p.Bounds.DayStart(p.Anchor)
		return time.Date(day.Year(), day.Month(), 1, p.Bounds.DayStartHour, 0, 0, 0, p.Bounds.Loc())
	case GranYear:
		day := p.Bounds.DayStart(p.Anchor)
		return time.Date(day.Year(), time.January, 1, p.Bounds.DayStartHour, 0, 0, 0, p.Bounds.Loc())
	default: // alltime
		return time.Time{}
	}
}

// End returns the exclusive upper bound of the period.
func (p Period) End() time.Time {
	switch p.Granularity {
	case GranDay:
		return p.Start().AddDate(0, 0, 1)
	case GranWeek:
		return p.Start().AddDate(0, 0, 7)
	case GranMonth:
		return p.Start().AddDate(0, 1, 0)
	case GranYear:
		return p.Start().AddDate(1, 0, 0)
	default: // alltime: everything up to and including the anchor's day
		return p.Bounds.DayStart(p.Anchor).AddDate(0, 0, 1)
	}
}

// Shift returns the period n granularity units away, calendar-aware: a year
// back keeps the same day-of-month rather than subtracting elapsed seconds.
// Makes no sense for alltime and returns p unchanged there.
func (p Period) Shift(n int) Period {
	out := p
	switch p.Granularity {
	case GranDay:
		out.Anchor = p.Anchor.AddDate(0, 0, n)
	case GranWeek:
		out.Anchor = p.Anchor.AddDate(0, 0, 7*n)
	case GranMonth:
		out.Anchor = p.Anchor.AddDate(0, n, 0)
	case GranYear:
		out.Anchor = p.Anchor.AddDate(n, 0, 0)
	}
	return out
}

// Days yields the start of every weather day that overlaps [Start, End) and
// is not after the anchor's day. earliest is a floor for alltime periods so
// scans stay bounded by actual data.
func (p Period) Days(earliest time.Time) []time.Time {
	start := p.Start()
	if p.Granularity == GranAllTime || start.IsZero() {
		start = p.Bounds.DayStart(earliest)
	}
	last := p.Bounds.DayStart(p.Anchor)
	if end := p.End(); last.Add(24 * time.Hour).After(end) {
		last = end.AddDate(0, 0, -1)
	}
	var days []time.Time
	for d := start; !d.After(last); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

func (p Period) String() string {
	return fmt.Sprintf("%s@%s", p.Granularity, p.Anchor.Format(time.RFC3339))
}

// Extremum is a max/min query result: the value and when it first occurred.
// Ties within a period resolve to the earliest occurrence.
type Extremum struct {
	Value float64
	Unit  Unit
	Time  time.Time
}

// TagValue is what the tag resolution layer hands to report generators.
type TagValue struct {
	Value     float64
	Unit      Unit
	Formatted string
	Text      string // set for text-valued tags; Value is meaningless then
}
