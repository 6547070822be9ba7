package stats

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/afroash/weatherwd/internal/host"
	"github.com/afroash/weatherwd/internal/models"
	"github.com/afroash/weatherwd/internal/storage"
)

// ExtremumKind selects the direction of an extremum query.
type ExtremumKind string

const (
	ExtremumMax ExtremumKind = "max"
	ExtremumMin ExtremumKind = "min"
)

// DegreeDayKind selects which degree-day accumulation to compute.
type DegreeDayKind string

const (
	DegreeDaysGrowing DegreeDayKind = "growing"
	DegreeDaysHeating DegreeDayKind = "heating"
	DegreeDaysCooling DegreeDayKind = "cooling"
)

// Run is a streak of consecutive weather days matching a predicate, plus the
// day it began.
type Run struct {
	Length int
	Start  time.Time
}

// DayPredicate decides whether a single weather day matches. present is
// false when the day has no data at all; an absent day always terminates a
// run rather than being skipped.
type DayPredicate func(day time.Time) (match, present bool, err error)

// Params carries the thresholds and bases the engine evaluates against.
type Params struct {
	Bounds models.BoundaryRule

	WetDayThresholdMm float64 // rain sum at or above this makes a wet day
	GrowingBaseC      float64
	HeatingBaseC      float64
	CoolingBaseC      float64

	// SameInstantTolerance bounds how far a nearest-record lookup may
	// stray from the aligned instant.
	SameInstantTolerance time.Duration
}

// Engine answers period-bounded statistical queries over the supplementary
// store and the host's day summaries. All reads are streaming; no query
// materializes a full period in memory.
type Engine struct {
	store  storage.Store
	hostc  host.Client
	params Params
	logger zerolog.Logger
}

// New creates a statistics engine.
func New(store storage.Store, hostc host.Client, params Params, logger zerolog.Logger) *Engine {
	if params.SameInstantTolerance <= 0 {
		params.SameInstantTolerance = 30 * time.Minute
	}
	return &Engine{store: store, hostc: hostc, params: params, logger: logger}
}

// Extremum returns the max or min of a field over a period, with the time it
// first occurred. Ties resolve to the earliest occurrence. Returns (nil, nil)
// when no value exists in the period.
func (e *Engine) Extremum(field models.Field, period models.Period, kind ExtremumKind) (*models.Extremum, error) {
	if models.SuppField(field) {
		return e.suppExtremum(field, period, kind)
	}
	return e.hostExtremum(field, period, kind)
}

func (e *Engine) suppExtremum(field models.Field, period models.Period, kind ExtremumKind) (*models.Extremum, error) {
	start, end := e.scanBounds(period)
	var best *models.Extremum
	err := e.store.RangeScan(start, end, func(r *models.Record) error {
		v := r.FieldValue(field)
		if v == nil {
			return nil
		}
		// Strict comparison keeps the earliest occurrence on ties.
		if best == nil ||
			(kind == ExtremumMax && *v > best.Value) ||
			(kind == ExtremumMin && *v < best.Value) {
			best = &models.Extremum{Value: *v, Unit: models.FieldUnit(field), Time: r.Time}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("extremum %s over %s: %w", field, period, err)
	}
	return best, nil
}

func (e *Engine) hostExtremum(field models.Field, period models.Period, kind ExtremumKind) (*models.Extremum, error) {
	days, err := e.periodDays(period)
	if err != nil {
		return nil, err
	}

	var best *models.Extremum
	for _, day := range days {
		s, err := e.hostc.DaySummary(field, day)
		if err != nil {
			return nil, fmt.Errorf("extremum %s over %s: %w", field, period, err)
		}
		if s == nil {
			continue
		}

		var v *float64
		var at *time.Time
		if kind == ExtremumMax {
			v, at = s.Max, s.MaxTime
		} else {
			v, at = s.Min, s.MinTime
		}
		if v == nil {
			continue
		}
		if best == nil ||
			(kind == ExtremumMax && *v > best.Value) ||
			(kind == ExtremumMin && *v < best.Value) {
			when := day
			if at != nil {
				when = *at
			}
			best = &models.Extremum{Value: *v, Unit: models.FieldUnit(field), Time: when}
		}
	}
	return best, nil
}

// Sum totals a field over a period. Supplementary fields sum the stored
// per-record values; host fields sum the day summary sums. Returns (nil, nil)
// when the period holds no data.
func (e *Engine) Sum(field models.Field, period models.Period) (*float64, error) {
	var total float64
	any := false

	if models.SuppField(field) {
		start, end := e.scanBounds(period)
		err := e.store.RangeScan(start, end, func(r *models.Record) error {
			if v := r.FieldValue(field); v != nil {
				total += *v
				any = true
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("sum %s over %s: %w", field, period, err)
		}
	} else {
		days, err := e.periodDays(period)
		if err != nil {
			return nil, err
		}
		for _, day := range days {
			s, err := e.hostc.DaySummary(field, day)
			if err != nil {
				return nil, fmt.Errorf("sum %s over %s: %w", field, period, err)
			}
			if s == nil || s.Count == 0 {
				continue
			}
			total += s.Sum
			any = true
		}
	}

	if !any {
		return nil, nil
	}
	return &total, nil
}

// ConsecutiveRun walks backward day by day from asOf while pred matches.
// The first non-matching or absent day stops the count.
func (e *Engine) ConsecutiveRun(pred DayPredicate, asOf time.Time) (Run, error) {
	run := Run{}
	day := e.params.Bounds.DayStart(asOf)

	for {
		match, present, err := pred(day)
		if err != nil {
			return Run{}, fmt.Errorf("consecutive run at %s: %w", day.Format("2006-01-02"), err)
		}
		if !present || !match {
			return run, nil
		}
		run.Length++
		run.Start = day
		day = day.AddDate(0, 0, -1)
	}
}

// LongestRun finds the longest streak of matching days within a period.
func (e *Engine) LongestRun(pred DayPredicate, period models.Period) (Run, error) {
	days, err := e.periodDays(period)
	if err != nil {
		return Run{}, err
	}

	var longest, current Run
	for _, day := range days {
		match, present, err := pred(day)
		if err != nil {
			return Run{}, fmt.Errorf("longest run at %s: %w", day.Format("2006-01-02"), err)
		}
		if present && match {
			if current.Length == 0 {
				current.Start = day
			}
			current.Length++
			if current.Length > longest.Length {
				longest = current
			}
		} else {
			current = Run{}
		}
	}
	return longest, nil
}

// WetDay matches days whose rain sum meets the configured wet-day threshold.
func (e *Engine) WetDay(day time.Time) (bool, bool, error) {
	s, err := e.hostc.DaySummary(models.FieldRain, day)
	if err != nil {
		return false, false, err
	}
	if s == nil || s.Count == 0 {
		return false, false, nil
	}
	return s.Wet(e.params.WetDayThresholdMm), true, nil
}

// DryDay matches days with data whose rain sum is below the threshold.
func (e *Engine) DryDay(day time.Time) (bool, bool, error) {
	s, err := e.hostc.DaySummary(models.FieldRain, day)
	if err != nil {
		return false, false, err
	}
	if s == nil || s.Count == 0 {
		return false, false, nil
	}
	return !s.Wet(e.params.WetDayThresholdMm), true, nil
}

// SameInstantLastPeriod returns the supplementary field value nearest to the
// period's anchor shifted back one granularity unit, calendar-aware. Returns
// (nil, nil) when no record falls within the tolerance.
func (e *Engine) SameInstantLastPeriod(field models.Field, period models.Period) (*models.Extremum, error) {
	if !models.SuppField(field) {
		return nil, fmt.Errorf("same-instant lookup needs a supplementary field, got %q", field)
	}
	if period.Granularity == models.GranAllTime {
		return nil, fmt.Errorf("same-instant lookup has no previous alltime period")
	}

	target := period.Shift(-1).Anchor
	tol := e.params.SameInstantTolerance

	var best *models.Extremum
	var bestDist time.Duration
	err := e.store.RangeScan(target.Add(-tol), target.Add(tol+time.Second), func(r *models.Record) error {
		v := r.FieldValue(field)
		if v == nil {
			return nil
		}
		dist := r.Time.Sub(target)
		if dist < 0 {
			dist = -dist
		}
		if best == nil || dist < bestDist {
			best = &models.Extremum{Value: *v, Unit: models.FieldUnit(field), Time: r.Time}
			bestDist = dist
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("same instant %s before %s: %w", field, target, err)
	}
	return best, nil
}

// DegreeDays accumulates degree-days over a period from the host's daily
// temperature extremes: each day contributes max(0, mean - base) for growing
// and cooling, max(0, base - mean) for heating, where mean = (Tmax+Tmin)/2.
// Days without both extremes contribute nothing.
func (e *Engine) DegreeDays(kind DegreeDayKind, period models.Period) (*float64, error) {
	var base float64
	switch kind {
	case DegreeDaysGrowing:
		base = e.params.GrowingBaseC
	case DegreeDaysHeating:
		base = e.params.HeatingBaseC
	case DegreeDaysCooling:
		base = e.params.CoolingBaseC
	default:
		return nil, fmt.Errorf("unknown degree-day kind %q", kind)
	}

	days, err := e.periodDays(period)
	if err != nil {
		return nil, err
	}

	var total float64
	any := false
	for _, day := range days {
		s, err := e.hostc.DaySummary(models.FieldOutTemp, day)
		if err != nil {
			return nil, fmt.Errorf("degree days at %s: %w", day.Format("2006-01-02"), err)
		}
		mean, ok := s.Mean()
		if !ok {
			continue
		}
		any = true

		var dd float64
		if kind == DegreeDaysHeating {
			dd = base - mean
		} else {
			dd = mean - base
		}
		if dd > 0 {
			total += dd
		}
	}

	if !any {
		return nil, nil
	}
	return &total, nil
}

// WindrunTotal sums wind travel over a period. The stored windrun value is
// cumulative within each weather day, so the period total is the sum of each
// day's final value.
func (e *Engine) WindrunTotal(period models.Period) (*float64, error) {
	days, err := e.periodDays(period)
	if err != nil {
		return nil, err
	}

	var total float64
	any := false
	for _, day := range days {
		var last *float64
		err := e.store.RangeScan(day, day.AddDate(0, 0, 1), func(r *models.Record) error {
			if v := r.WindrunDay; v != nil {
				last = v
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("windrun at %s: %w", day.Format("2006-01-02"), err)
		}
		if last != nil {
			total += *last
			any = true
		}
	}

	if !any {
		return nil, nil
	}
	return &total, nil
}

// scanBounds clamps an alltime period to concrete scan bounds.
func (e *Engine) scanBounds(period models.Period) (time.Time, time.Time) {
	start := period.Start()
	if start.IsZero() {
		start = time.Unix(0, 0).UTC()
	}
	return start, period.End()
}

// periodDays enumerates the weather days of a period, flooring alltime at
// the host's first day of record.
func (e *Engine) periodDays(period models.Period) ([]time.Time, error) {
	earliest := period.Anchor
	if period.Granularity == models.GranAllTime {
		first, ok, err := e.hostc.Earliest()
		if err != nil {
			return nil, fmt.Errorf("resolving first day of record: %w", err)
		}
		if !ok {
			return nil, nil
		}
		earliest = first
	}
	return period.Days(earliest), nil
}
