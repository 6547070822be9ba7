package tags

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/afroash/weatherwd/internal/models"
	"github.com/afroash/weatherwd/internal/observability"
	"github.com/afroash/weatherwd/internal/stats"
	"github.com/afroash/weatherwd/internal/storage"
)

// ErrAbsent marks a tag that resolved cleanly to no value: the underlying
// data simply does not exist. Template layers render it as a dash.
var ErrAbsent = errors.New("tag value absent")

// ErrUnknownTag marks a name no variant was registered for.
var ErrUnknownTag = errors.New("unknown tag")

// tagFunc resolves one tag within a pass.
type tagFunc func(p *Pass) (models.TagValue, error)

// Resolver answers symbolic tag lookups for report generation. The variant
// table is built once at startup; resolution itself is side-effect-free.
type Resolver struct {
	store   storage.Store
	engine  *stats.Engine
	bounds  models.BoundaryRule
	system  UnitSystem
	clock   clockwork.Clock
	metrics *observability.Metrics
	logger  zerolog.Logger

	funcs map[string]tagFunc
}

// New builds the resolver and registers every tag variant.
func New(
	store storage.Store,
	engine *stats.Engine,
	bounds models.BoundaryRule,
	system UnitSystem,
	clock clockwork.Clock,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *Resolver {
	if system == "" {
		system = UnitsMetric
	}
	r := &Resolver{
		store:   store,
		engine:  engine,
		bounds:  bounds,
		system:  system,
		clock:   clock,
		metrics: metrics,
		logger:  logger,
		funcs:   make(map[string]tagFunc),
	}
	r.registerAll()
	logger.Info().Int("tags", len(r.funcs)).Str("units", string(system)).Msg("Tag resolver built")
	return r
}

// Names returns every registered tag name, sorted.
func (r *Resolver) Names() []string {
	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Pass is one report generation's view of the tag set. Every tag is resolved
// at most once per pass, so a template referencing day.windrun twice sees
// identical values even while new records arrive.
type Pass struct {
	ID   uuid.UUID
	AsOf time.Time

	r         *Resolver
	memo      map[string]memoEntry
	latestRec *models.Record
}

type memoEntry struct {
	value models.TagValue
	err   error
}

// NewPass opens a resolution pass anchored at the current time.
func (r *Resolver) NewPass() *Pass {
	return r.NewPassAt(r.clock.Now())
}

// NewPassAt opens a pass anchored at an explicit instant.
func (r *Resolver) NewPassAt(asOf time.Time) *Pass {
	return &Pass{
		ID:   uuid.New(),
		AsOf: asOf,
		r:    r,
		memo: make(map[string]memoEntry),
	}
}

// Resolve looks up one tag, memoized for the life of the pass.
func (p *Pass) Resolve(name string) (models.TagValue, error) {
	if e, ok := p.memo[name]; ok {
		return e.value, e.err
	}

	fn, ok := p.r.funcs[name]
	if !ok {
		err := fmt.Errorf("%w: %q", ErrUnknownTag, name)
		p.memo[name] = memoEntry{err: err}
		p.r.metrics.TagResolutions.WithLabelValues("error").Inc()
		return models.TagValue{}, err
	}

	v, err := fn(p)
	p.memo[name] = memoEntry{value: v, err: err}
	switch {
	case errors.Is(err, ErrAbsent):
		p.r.metrics.TagResolutions.WithLabelValues("absent").Inc()
	case err != nil:
		p.r.metrics.TagResolutions.WithLabelValues("error").Inc()
		p.r.logger.Warn().Err(err).Str("tag", name).Stringer("pass", p.ID).Msg("Tag resolution failed")
	default:
		p.r.metrics.TagResolutions.WithLabelValues("hit").Inc()
	}
	return v, err
}

// period builds a period of the given granularity anchored at the pass.
func (p *Pass) period(g models.Granularity) models.Period {
	return models.NewPeriod(g, p.AsOf, p.r.bounds)
}

// latest fetches the newest supplementary record once per pass.
func (p *Pass) latest() (*models.Record, error) {
	const key = "\x00latest"
	if e, ok := p.memo[key]; ok {
		if e.err != nil {
			return nil, e.err
		}
		return p.latestRec, nil
	}
	rec, err := p.r.store.Latest()
	p.memo[key] = memoEntry{err: err}
	p.latestRec = rec
	return rec, err
}

// registerAll wires the full tag set into the dispatch table.
func (r *Resolver) registerAll() {
	// Current values from the newest supplementary record
	currentFields := []models.Field{
		models.FieldHumidex, models.FieldAppTemp, models.FieldWindChill,
		models.FieldHeatIndex, models.FieldWetBulb, models.FieldDewPoint,
		models.FieldAirDensity, models.FieldWindrunDay, models.FieldRainRate,
		models.FieldMaxSolarRad, models.FieldStormRain,
	}
	for _, f := range currentFields {
		field := f
		r.funcs["current."+string(field)] = func(p *Pass) (models.TagValue, error) {
			rec, err := p.latest()
			if err != nil {
				return models.TagValue{}, err
			}
			if rec == nil {
				return models.TagValue{}, ErrAbsent
			}
			v := rec.FieldValue(field)
			if v == nil {
				return models.TagValue{}, ErrAbsent
			}
			return render(*v, models.FieldUnit(field), r.system), nil
		}
	}

	r.funcs["current.forecastText"] = func(p *Pass) (models.TagValue, error) {
		rec, err := p.latest()
		if err != nil {
			return models.TagValue{}, err
		}
		if rec == nil || rec.ForecastText == nil {
			return models.TagValue{}, ErrAbsent
		}
		return models.TagValue{Text: *rec.ForecastText}, nil
	}
	r.funcs["current.currentText"] = func(p *Pass) (models.TagValue, error) {
		rec, err := p.latest()
		if err != nil {
			return models.TagValue{}, err
		}
		if rec == nil || rec.CurrentText == nil {
			return models.TagValue{}, ErrAbsent
		}
		return models.TagValue{Text: *rec.CurrentText}, nil
	}
	r.funcs["current.stormStart"] = func(p *Pass) (models.TagValue, error) {
		rec, err := p.latest()
		if err != nil {
			return models.TagValue{}, err
		}
		if rec == nil || rec.StormStart == nil {
			return models.TagValue{}, ErrAbsent
		}
		return timeTag(*rec.StormStart, r.bounds.Loc()), nil
	}

	// Windrun totals per granularity
	for _, g := range []models.Granularity{
		models.GranDay, models.GranWeek, models.GranMonth, models.GranYear, models.GranAllTime,
	} {
		gran := g
		r.funcs[string(gran)+".windrun"] = func(p *Pass) (models.TagValue, error) {
			total, err := r.engine.WindrunTotal(p.period(gran))
			if err != nil {
				return models.TagValue{}, err
			}
			if total == nil {
				return models.TagValue{}, ErrAbsent
			}
			return render(*total, models.UnitKm, r.system), nil
		}
	}

	// Period extrema and sums over host fields
	r.registerExtremum("day.windGust.max", models.FieldWindGust, models.GranDay, stats.ExtremumMax)
	r.registerExtremum("month.windGust.max", models.FieldWindGust, models.GranMonth, stats.ExtremumMax)
	r.registerExtremum("year.windGust.max", models.FieldWindGust, models.GranYear, stats.ExtremumMax)
	r.registerExtremum("day.outTemp.max", models.FieldOutTemp, models.GranDay, stats.ExtremumMax)
	r.registerExtremum("day.outTemp.min", models.FieldOutTemp, models.GranDay, stats.ExtremumMin)
	r.registerExtremum("year.outTemp.max", models.FieldOutTemp, models.GranYear, stats.ExtremumMax)
	r.registerExtremum("year.outTemp.min", models.FieldOutTemp, models.GranYear, stats.ExtremumMin)

	// Supplementary extrema
	r.registerExtremum("day.humidex.max", models.FieldHumidex, models.GranDay, stats.ExtremumMax)
	r.registerExtremum("day.appTemp.max", models.FieldAppTemp, models.GranDay, stats.ExtremumMax)
	r.registerExtremum("day.appTemp.min", models.FieldAppTemp, models.GranDay, stats.ExtremumMin)
	r.registerExtremum("day.windChill.min", models.FieldWindChill, models.GranDay, stats.ExtremumMin)

	r.registerSum("day.rain.sum", models.FieldRain, models.GranDay)
	r.registerSum("week.rain.sum", models.FieldRain, models.GranWeek)
	r.registerSum("month.rain.sum", models.FieldRain, models.GranMonth)
	r.registerSum("year.rain.sum", models.FieldRain, models.GranYear)
	r.registerSum("day.sunshine.sum", models.FieldSunshineSecs, models.GranDay)

	// Consecutive wet/dry day runs ending now, and the longest in the year
	r.funcs["run.wetDays"] = r.runLength(func() stats.DayPredicate { return r.engine.WetDay })
	r.funcs["run.wetDays.start"] = r.runStart(func() stats.DayPredicate { return r.engine.WetDay })
	r.funcs["run.dryDays"] = r.runLength(func() stats.DayPredicate { return r.engine.DryDay })
	r.funcs["run.dryDays.start"] = r.runStart(func() stats.DayPredicate { return r.engine.DryDay })
	r.funcs["year.wetDays.longestRun"] = func(p *Pass) (models.TagValue, error) {
		run, err := r.engine.LongestRun(r.engine.WetDay, p.period(models.GranYear))
		if err != nil {
			return models.TagValue{}, err
		}
		return countTag(run.Length), nil
	}
	r.funcs["year.dryDays.longestRun"] = func(p *Pass) (models.TagValue, error) {
		run, err := r.engine.LongestRun(r.engine.DryDay, p.period(models.GranYear))
		if err != nil {
			return models.TagValue{}, err
		}
		return countTag(run.Length), nil
	}

	// Degree days
	r.registerDegreeDays("month.gdd", stats.DegreeDaysGrowing, models.GranMonth)
	r.registerDegreeDays("year.gdd", stats.DegreeDaysGrowing, models.GranYear)
	r.registerDegreeDays("month.hdd", stats.DegreeDaysHeating, models.GranMonth)
	r.registerDegreeDays("year.hdd", stats.DegreeDaysHeating, models.GranYear)
	r.registerDegreeDays("month.cdd", stats.DegreeDaysCooling, models.GranMonth)
	r.registerDegreeDays("year.cdd", stats.DegreeDaysCooling, models.GranYear)

	// Year-over-year comparisons
	r.funcs["yearAgo.outTemp.max"] = func(p *Pass) (models.TagValue, error) {
		lastYear := models.NewPeriod(models.GranDay, p.AsOf.AddDate(-1, 0, 0), r.bounds)
		ext, err := r.engine.Extremum(models.FieldOutTemp, lastYear, stats.ExtremumMax)
		if err != nil {
			return models.TagValue{}, err
		}
		if ext == nil {
			return models.TagValue{}, ErrAbsent
		}
		return render(ext.Value, ext.Unit, r.system), nil
	}
	r.funcs["yearAgo.rain.sum"] = func(p *Pass) (models.TagValue, error) {
		lastYear := models.NewPeriod(models.GranDay, p.AsOf.AddDate(-1, 0, 0), r.bounds)
		total, err := r.engine.Sum(models.FieldRain, lastYear)
		if err != nil {
			return models.TagValue{}, err
		}
		if total == nil {
			return models.TagValue{}, ErrAbsent
		}
		return render(*total, models.UnitMm, r.system), nil
	}
	r.funcs["yearAgo.humidex"] = func(p *Pass) (models.TagValue, error) {
		got, err := r.engine.SameInstantLastPeriod(models.FieldHumidex, p.period(models.GranYear))
		if err != nil {
			return models.TagValue{}, err
		}
		if got == nil {
			return models.TagValue{}, ErrAbsent
		}
		return render(got.Value, got.Unit, r.system), nil
	}
}

func (r *Resolver) registerExtremum(name string, field models.Field, g models.Granularity, kind stats.ExtremumKind) {
	r.funcs[name] = func(p *Pass) (models.TagValue, error) {
		ext, err := r.engine.Extremum(field, p.period(g), kind)
		if err != nil {
			return models.TagValue{}, err
		}
		if ext == nil {
			return models.TagValue{}, ErrAbsent
		}
		return render(ext.Value, ext.Unit, r.system), nil
	}
	r.funcs[name+".time"] = func(p *Pass) (models.TagValue, error) {
		ext, err := r.engine.Extremum(field, p.period(g), kind)
		if err != nil {
			return models.TagValue{}, err
		}
		if ext == nil {
			return models.TagValue{}, ErrAbsent
		}
		return timeTag(ext.Time, r.bounds.Loc()), nil
	}
}

func (r *Resolver) registerSum(name string, field models.Field, g models.Granularity) {
	r.funcs[name] = func(p *Pass) (models.TagValue, error) {
		total, err := r.engine.Sum(field, p.period(g))
		if err != nil {
			return models.TagValue{}, err
		}
		if total == nil {
			return models.TagValue{}, ErrAbsent
		}
		return render(*total, models.FieldUnit(field), r.system), nil
	}
}

func (r *Resolver) registerDegreeDays(name string, kind stats.DegreeDayKind, g models.Granularity) {
	r.funcs[name] = func(p *Pass) (models.TagValue, error) {
		total, err := r.engine.DegreeDays(kind, p.period(g))
		if err != nil {
			return models.TagValue{}, err
		}
		if total == nil {
			return models.TagValue{}, ErrAbsent
		}
		cv := *total
		unit := models.UnitCelsius
		if r.system == UnitsUS {
			// Degree-day totals scale by 9/5 without the +32 offset
			cv = cv * 9 / 5
			unit = models.UnitFahrenheit
		}
		return models.TagValue{Value: cv, Unit: unit, Formatted: fmt.Sprintf("%.1f", cv)}, nil
	}
}

func (r *Resolver) runLength(pred func() stats.DayPredicate) tagFunc {
	return func(p *Pass) (models.TagValue, error) {
		run, err := r.engine.ConsecutiveRun(pred(), p.AsOf)
		if err != nil {
			return models.TagValue{}, err
		}
		return countTag(run.Length), nil
	}
}

func (r *Resolver) runStart(pred func() stats.DayPredicate) tagFunc {
	return func(p *Pass) (models.TagValue, error) {
		run, err := r.engine.ConsecutiveRun(pred(), p.AsOf)
		if err != nil {
			return models.TagValue{}, err
		}
		if run.Length == 0 {
			return models.TagValue{}, ErrAbsent
		}
		return timeTag(run.Start, r.bounds.Loc()), nil
	}
}

func countTag(n int) models.TagValue {
	return models.TagValue{Value: float64(n), Unit: models.UnitCount, Formatted: fmt.Sprintf("%d", n)}
}

func timeTag(t time.Time, loc *time.Location) models.TagValue {
	lt := t.In(loc)
	return models.TagValue{
		Value:     float64(t.Unix()),
		Unit:      models.UnitSecond,
		Formatted: lt.Format("02/01/2006 15:04"),
		Text:      lt.Format(time.RFC3339),
	}
}
