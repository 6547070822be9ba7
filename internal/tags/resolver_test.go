package tags

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afroash/weatherwd/internal/host"
	"github.com/afroash/weatherwd/internal/models"
	"github.com/afroash/weatherwd/internal/observability"
	"github.com/afroash/weatherwd/internal/stats"
	"github.com/afroash/weatherwd/internal/storage"
)

func testLogger() zerolog.Logger {
	return zerolog.New(os.Stdout).Level(zerolog.Disabled)
}

// fakeHost backs the stats engine with canned day summaries.
type fakeHost struct {
	rain map[int64]float64
}

var _ host.Client = (*fakeHost)(nil)

func (f *fakeHost) DaySummary(field models.Field, day time.Time) (*host.Summary, error) {
	if field != models.FieldRain {
		return nil, nil
	}
	sum, ok := f.rain[day.Unix()]
	if !ok {
		return nil, nil
	}
	return &host.Summary{Sum: sum, Count: 288}, nil
}

func (f *fakeHost) Earliest() (time.Time, bool, error) { return time.Time{}, false, nil }
func (f *fakeHost) Close() error                       { return nil }

func setupResolver(t *testing.T, system UnitSystem, asOf time.Time) (*Resolver, storage.Store, *fakeHost, clockwork.Clock) {
	t.Helper()

	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "wd.db"), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	hostc := &fakeHost{rain: make(map[int64]float64)}
	engine := stats.New(store, hostc, stats.Params{
		Bounds:            models.DefaultBoundaries(),
		WetDayThresholdMm: 0.2,
		GrowingBaseC:      10,
		HeatingBaseC:      18.3,
		CoolingBaseC:      18.3,
	}, testLogger())

	clock := clockwork.NewFakeClockAt(asOf)
	r := New(store, engine, models.DefaultBoundaries(), system, clock,
		observability.NewMetricsForTesting(), testLogger())
	return r, store, hostc, clock
}

func TestResolveCurrentField(t *testing.T) {
	asOf := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	r, store, _, _ := setupResolver(t, UnitsMetric, asOf)

	require.NoError(t, store.Append(&models.Record{
		Time:    asOf.Add(-5 * time.Minute),
		Humidex: models.Float(30.0),
	}))

	pass := r.NewPass()
	got, err := pass.Resolve("current.humidex")
	require.NoError(t, err)
	assert.Equal(t, 30.0, got.Value)
	assert.Equal(t, models.UnitCelsius, got.Unit)
	assert.Equal(t, "30.0°C", got.Formatted)

	// A field the record does not carry is absent, not an error
	_, err = pass.Resolve("current.windChill")
	assert.ErrorIs(t, err, ErrAbsent)
}

func TestResolveUSUnits(t *testing.T) {
	asOf := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	r, store, _, _ := setupResolver(t, UnitsUS, asOf)

	require.NoError(t, store.Append(&models.Record{
		Time:       asOf.Add(-5 * time.Minute),
		Humidex:    models.Float(30.0),
		WindrunDay: models.Float(100.0),
	}))

	pass := r.NewPass()
	got, err := pass.Resolve("current.humidex")
	require.NoError(t, err)
	assert.InDelta(t, 86.0, got.Value, 1e-9)
	assert.Equal(t, models.UnitFahrenheit, got.Unit)
	assert.Equal(t, "86.0°F", got.Formatted)

	wr, err := pass.Resolve("day.windrun")
	require.NoError(t, err)
	assert.InDelta(t, 62.1371, wr.Value, 1e-3)
	assert.Equal(t, models.UnitMile, wr.Unit)
}

func TestPassMemoization(t *testing.T) {
	asOf := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	r, store, _, _ := setupResolver(t, UnitsMetric, asOf)

	require.NoError(t, store.Append(&models.Record{
		Time:       asOf.Add(-10 * time.Minute),
		WindrunDay: models.Float(40.0),
	}))

	pass := r.NewPass()
	first, err := pass.Resolve("day.windrun")
	require.NoError(t, err)
	assert.Equal(t, 40.0, first.Value)

	// New data arrives mid-pass; the open pass must not see it
	require.NoError(t, store.Append(&models.Record{
		Time:       asOf.Add(-5 * time.Minute),
		WindrunDay: models.Float(45.0),
	}))

	again, err := pass.Resolve("day.windrun")
	require.NoError(t, err)
	assert.Equal(t, first.Value, again.Value, "a pass must stay internally consistent")

	// A fresh pass sees the new record
	next, err := r.NewPass().Resolve("day.windrun")
	require.NoError(t, err)
	assert.Equal(t, 45.0, next.Value)

	assert.NotEqual(t, pass.ID, r.NewPass().ID)
}

func TestResolveUnknownTag(t *testing.T) {
	r, _, _, _ := setupResolver(t, UnitsMetric, time.Now())

	_, err := r.NewPass().Resolve("no.such.tag")
	assert.ErrorIs(t, err, ErrUnknownTag)
}

func TestResolveRunTags(t *testing.T) {
	asOf := time.Date(2025, 6, 10, 21, 0, 0, 0, time.UTC)
	r, _, hostc, _ := setupResolver(t, UnitsMetric, asOf)

	day := func(n int) time.Time { return time.Date(2025, 6, n, 0, 0, 0, 0, time.UTC) }
	for n := 8; n <= 10; n++ {
		hostc.rain[day(n).Unix()] = 4.0
	}
	hostc.rain[day(7).Unix()] = 0.0 // dry day ends the streak

	pass := r.NewPass()
	length, err := pass.Resolve("run.wetDays")
	require.NoError(t, err)
	assert.Equal(t, 3.0, length.Value)
	assert.Equal(t, "3", length.Formatted)

	start, err := pass.Resolve("run.wetDays.start")
	require.NoError(t, err)
	assert.Equal(t, float64(day(8).Unix()), start.Value)

	dry, err := pass.Resolve("run.dryDays")
	require.NoError(t, err)
	assert.Equal(t, 0.0, dry.Value)

	_, err = pass.Resolve("run.dryDays.start")
	assert.ErrorIs(t, err, ErrAbsent)
}

func TestResolveTextTags(t *testing.T) {
	asOf := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	r, store, _, _ := setupResolver(t, UnitsMetric, asOf)

	require.NoError(t, store.Append(&models.Record{
		Time:         asOf.Add(-5 * time.Minute),
		ForecastText: models.Str("Fairly fine, showers likely"),
	}))

	got, err := r.NewPass().Resolve("current.forecastText")
	require.NoError(t, err)
	assert.Equal(t, "Fairly fine, showers likely", got.Text)
}

func TestEmptyStoreIsAbsent(t *testing.T) {
	r, _, _, _ := setupResolver(t, UnitsMetric, time.Now())

	pass := r.NewPass()
	for _, name := range []string{"current.humidex", "day.windrun", "day.rain.sum"} {
		_, err := pass.Resolve(name)
		assert.ErrorIs(t, err, ErrAbsent, name)
	}
}

func TestNamesSortedAndComplete(t *testing.T) {
	r, _, _, _ := setupResolver(t, UnitsMetric, time.Now())

	names := r.Names()
	assert.True(t, len(names) > 30)
	assert.True(t, sortedStrings(names))

	for _, want := range []string{
		"current.humidex", "day.windrun", "alltime.windrun",
		"day.windGust.max", "day.windGust.max.time",
		"month.rain.sum", "run.wetDays", "year.gdd", "yearAgo.humidex",
	} {
		assert.Contains(t, names, want)
	}
}

func sortedStrings(s []string) bool {
	for i := 1; i < len(s); i++ {
		if s[i] < s[i-1] {
			return false
		}
	}
	return true
}
