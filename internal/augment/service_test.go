package augment

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afroash/weatherwd/internal/adapters"
	"github.com/afroash/weatherwd/internal/calc"
	"github.com/afroash/weatherwd/internal/host"
	"github.com/afroash/weatherwd/internal/models"
	"github.com/afroash/weatherwd/internal/observability"
	"github.com/afroash/weatherwd/internal/storage"
)

func testLogger() zerolog.Logger {
	return zerolog.New(os.Stdout).Level(zerolog.Disabled)
}

func testCalculator() *calc.Calculator {
	return calc.New(calc.Params{
		Latitude:             51.5,
		Longitude:            -0.1,
		AltitudeM:            35,
		Bounds:               models.DefaultBoundaries(),
		SunshineThresholdWm2: 120,
		RainRateWindow:       5,
	}, testLogger())
}

func setupService(t *testing.T) (*Service, storage.Store, *host.NotificationQueue) {
	return setupServiceWith(t, nil, clockwork.NewRealClock())
}

func setupServiceWith(t *testing.T, hostc host.Client, clock clockwork.Clock) (*Service, storage.Store, *host.NotificationQueue) {
	t.Helper()

	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "wd.db"), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	queue := host.NewNotificationQueue(16)
	svc := New(store, queue, testCalculator(), nil, hostc,
		Config{ColdStartDays: 32, RainRateWindow: 5, Bounds: models.DefaultBoundaries()},
		clock,
		observability.NewMetricsForTesting(),
		testLogger())

	return svc, store, queue
}

func archiveSnapshot(ts time.Time) *models.Snapshot {
	return models.NewSnapshot(ts, 5*time.Minute).
		Set(models.ObsOutTemp, 22.0, models.UnitCelsius).
		Set(models.ObsOutHumidity, 60.0, models.UnitPercent).
		Set(models.ObsWindSpeed, 4.0, models.UnitMps).
		Set(models.ObsRain, 0.0, models.UnitMm).
		Set(models.ObsBarometer, 1013.0, models.UnitHPa).
		Set(models.ObsSolarRadiation, 500.0, models.UnitWpm2)
}

func TestProcessAppendsRecord(t *testing.T) {
	svc, store, _ := setupService(t)
	require.NoError(t, svc.ColdStart())
	assert.Equal(t, StateIdle, svc.State())

	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc.Process(models.Notification{Snapshot: archiveSnapshot(ts)})

	rec, err := store.Latest()
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.True(t, rec.Time.Equal(ts))
	assert.NotNil(t, rec.DewPoint)
	assert.NotNil(t, rec.AppTemp)
	assert.NotNil(t, rec.WindrunDay)
	assert.NotNil(t, rec.MaxSolarRad)
	assert.Equal(t, StateIdle, svc.State())
}

func TestProcessSkipsOutOfOrder(t *testing.T) {
	svc, store, _ := setupService(t)
	require.NoError(t, svc.ColdStart())

	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc.Process(models.Notification{Snapshot: archiveSnapshot(ts)})

	// Same timestamp again: skipped, store keeps the original
	dup := archiveSnapshot(ts)
	dup.Set(models.ObsOutTemp, 30.0, models.UnitCelsius)
	svc.Process(models.Notification{Snapshot: dup})

	stats, err := store.Stats()
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalRecords)

	// An earlier timestamp is also skipped forever
	svc.Process(models.Notification{Snapshot: archiveSnapshot(ts.Add(-5 * time.Minute))})
	stats, _ = store.Stats()
	assert.Equal(t, int64(1), stats.TotalRecords)

	// The feed continues normally afterwards
	svc.Process(models.Notification{Snapshot: archiveSnapshot(ts.Add(5 * time.Minute))})
	stats, _ = store.Stats()
	assert.Equal(t, int64(2), stats.TotalRecords)
}

func TestWindrunAccumulatesWithinDay(t *testing.T) {
	svc, store, _ := setupService(t)
	require.NoError(t, svc.ColdStart())

	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		svc.Process(models.Notification{Snapshot: archiveSnapshot(ts.Add(time.Duration(i) * 5 * time.Minute))})
	}

	rec, err := store.Latest()
	require.NoError(t, err)
	// 4 m/s over 5 minutes is 1.2 km per interval
	assert.InDelta(t, 3.6, *rec.WindrunDay, 1e-9)

	// A record in the next weather day starts from zero again
	svc.Process(models.Notification{Snapshot: archiveSnapshot(ts.Add(13 * time.Hour))})
	rec, _ = store.Latest()
	assert.InDelta(t, 1.2, *rec.WindrunDay, 1e-9)
}

func TestColdStartIdempotent(t *testing.T) {
	svc, _, _ := setupService(t)
	require.NoError(t, svc.ColdStart())

	// Build up rolling state through a rainy stretch
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 6; i++ {
		snap := archiveSnapshot(ts.Add(time.Duration(i) * 5 * time.Minute))
		snap.Set(models.ObsRain, 0.8, models.UnitMm)
		svc.Process(models.Notification{Snapshot: snap})
	}

	require.NoError(t, svc.ColdStart())
	first := svc.RollingState()

	require.NoError(t, svc.ColdStart())
	second := svc.RollingState()

	assert.Equal(t, first.RainRates, second.RainRates)
	assert.Equal(t, first.StormRain, second.StormRain)
	assert.Equal(t, first.StormStart, second.StormStart)
	assert.Greater(t, first.StormRain, 0.0, "storm accumulation must survive the rebuild")
}

func TestColdStartEmptyStore(t *testing.T) {
	svc, _, _ := setupService(t)
	require.NoError(t, svc.ColdStart())

	st := svc.RollingState()
	assert.Empty(t, st.RainRates)
	assert.Zero(t, st.StormRain)
	assert.Equal(t, StateIdle, svc.State())
}

func TestColdStartWindowSpansArchiveIntervals(t *testing.T) {
	svc, _, _ := setupService(t)
	require.NoError(t, svc.ColdStart())

	// A rainy record two hours before the latest one sits far outside a
	// five-interval window at five-minute intervals and must not be swept
	// back into the smoothing window on rebuild.
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	stale := archiveSnapshot(ts.Add(-2 * time.Hour))
	stale.Set(models.ObsRain, 1.5, models.UnitMm)
	svc.Process(models.Notification{Snapshot: stale})

	fresh := archiveSnapshot(ts)
	fresh.Set(models.ObsRain, 0.4, models.UnitMm)
	svc.Process(models.Notification{Snapshot: fresh})

	require.NoError(t, svc.ColdStart())
	st := svc.RollingState()
	assert.Len(t, st.RainRates, 1, "only intervals inside the window belong in it")
}

func TestColdStartBackfillsFromHost(t *testing.T) {
	now := time.Date(2025, 6, 10, 8, 0, 0, 0, time.UTC)
	lastRain := time.Date(2025, 6, 10, 6, 30, 0, 0, time.UTC)
	fh := &fakeHost{rain: map[string]*host.Summary{
		"2025-06-10": {Sum: 2.4, Count: 12, MaxTime: &lastRain},
		"2025-06-09": {Sum: 5.0, Count: 20},
	}}

	svc, _, _ := setupServiceWith(t, fh, clockwork.NewFakeClockAt(now))
	require.NoError(t, svc.ColdStart())

	st := svc.RollingState()
	assert.True(t, st.LastRainTime.Equal(lastRain), "got last rain %v", st.LastRainTime)
	assert.InDelta(t, 7.4, st.StormRain, 1e-9)
	assert.True(t, st.StormStart.Equal(time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC)),
		"got storm start %v", st.StormStart)
}

func TestColdStartHostRainTooOldForStorm(t *testing.T) {
	now := time.Date(2025, 6, 10, 8, 0, 0, 0, time.UTC)
	lastRain := time.Date(2025, 6, 7, 14, 0, 0, 0, time.UTC)
	fh := &fakeHost{rain: map[string]*host.Summary{
		"2025-06-07": {Sum: 3.1, Count: 9, MaxTime: &lastRain},
	}}

	svc, _, _ := setupServiceWith(t, fh, clockwork.NewFakeClockAt(now))
	require.NoError(t, svc.ColdStart())

	// The last rain time is still worth knowing, but a storm that ended
	// days ago stays dead.
	st := svc.RollingState()
	assert.True(t, st.LastRainTime.Equal(lastRain))
	assert.Zero(t, st.StormRain)
	assert.True(t, st.StormStart.IsZero())
}

func TestColdStartSkipsHostWhenStoreFresh(t *testing.T) {
	ts := time.Date(2025, 6, 10, 7, 0, 0, 0, time.UTC)
	fh := &fakeHost{rain: map[string]*host.Summary{
		"2025-06-10": {Sum: 9.9, Count: 40},
	}}

	svc, _, _ := setupServiceWith(t, fh, clockwork.NewFakeClockAt(ts.Add(time.Hour)))
	require.NoError(t, svc.ColdStart())
	svc.Process(models.Notification{Snapshot: archiveSnapshot(ts)})

	fh.calls = 0
	require.NoError(t, svc.ColdStart())
	assert.Zero(t, fh.calls, "a store under a day old already carries the rain state")
}

func TestRunConsumesQueue(t *testing.T) {
	svc, store, queue := setupService(t)
	require.NoError(t, svc.ColdStart())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svc.Run(ctx)

	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	queue.Push(models.Notification{Snapshot: archiveSnapshot(ts)})
	queue.Push(models.Notification{Snapshot: archiveSnapshot(ts.Add(5 * time.Minute))})

	require.Eventually(t, func() bool {
		stats, err := store.Stats()
		return err == nil && stats.TotalRecords == 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestAdapterTextReachesRecord(t *testing.T) {
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "wd.db"), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	src := &fixedSource{
		text: map[models.ObsType]string{models.ObsForecastText: "Settled fine"},
	}
	merger := adapters.NewMerger([]adapters.Source{src}, testLogger())
	svc := New(store, host.NewNotificationQueue(4), testCalculator(), merger, nil,
		Config{}, clockwork.NewRealClock(), observability.NewMetricsForTesting(), testLogger())
	require.NoError(t, svc.ColdStart())

	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc.Process(models.Notification{Snapshot: archiveSnapshot(ts)})

	rec, err := store.Latest()
	require.NoError(t, err)
	require.NotNil(t, rec.ForecastText)
	assert.Equal(t, "Settled fine", *rec.ForecastText)
}

// fakeHost serves canned rain day summaries, keyed by the day's date.
type fakeHost struct {
	rain  map[string]*host.Summary
	calls int
}

func (f *fakeHost) DaySummary(field models.Field, day time.Time) (*host.Summary, error) {
	f.calls++
	if field != models.FieldRain {
		return nil, nil
	}
	return f.rain[day.Format("2006-01-02")], nil
}

func (f *fakeHost) Earliest() (time.Time, bool, error) { return time.Time{}, false, nil }
func (f *fakeHost) Close() error                       { return nil }

var _ host.Client = (*fakeHost)(nil)

type fixedSource struct {
	obs  map[models.ObsType]models.Value
	text map[models.ObsType]string
}

func (f *fixedSource) Name() string { return "fixed" }
func (f *fixedSource) Fields() (map[models.ObsType]models.Value, map[models.ObsType]string, bool) {
	return f.obs, f.text, true
}
