package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afroash/weatherwd/internal/adapters"
	"github.com/afroash/weatherwd/internal/augment"
	"github.com/afroash/weatherwd/internal/calc"
	"github.com/afroash/weatherwd/internal/host"
	"github.com/afroash/weatherwd/internal/models"
	"github.com/afroash/weatherwd/internal/observability"
	"github.com/afroash/weatherwd/internal/stats"
	"github.com/afroash/weatherwd/internal/storage"
	"github.com/afroash/weatherwd/internal/tags"
)

func testLogger() zerolog.Logger {
	return zerolog.New(os.Stdout).Level(zerolog.Disabled)
}

// nilHost satisfies host.Client with no archive data.
type nilHost struct{}

var _ host.Client = (*nilHost)(nil)

func (nilHost) DaySummary(models.Field, time.Time) (*host.Summary, error) { return nil, nil }
func (nilHost) Earliest() (time.Time, bool, error)                        { return time.Time{}, false, nil }
func (nilHost) Close() error                                              { return nil }

func setupAPI(t *testing.T, asOf time.Time) (*APIHandler, storage.Store) {
	t.Helper()

	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "wd.db"), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	metrics := observability.NewMetricsForTesting()
	clock := clockwork.NewFakeClockAt(asOf)

	engine := stats.New(store, nilHost{}, stats.Params{
		Bounds:            models.DefaultBoundaries(),
		WetDayThresholdMm: 0.2,
		GrowingBaseC:      10,
		HeatingBaseC:      18.3,
		CoolingBaseC:      18.3,
	}, testLogger())
	resolver := tags.New(store, engine, models.DefaultBoundaries(), tags.UnitsMetric,
		clock, metrics, testLogger())

	calculator := calc.New(calc.Params{Latitude: 51.5, Longitude: -0.1}, testLogger())
	queue := host.NewNotificationQueue(16)
	merger := adapters.NewMerger(nil, testLogger())
	service := augment.New(store, queue, calculator, merger, nilHost{}, augment.Config{},
		clock, metrics, testLogger())

	bridge := host.NewBridge("token", queue, testLogger())

	return NewAPIHandler(store, resolver, service, bridge, testLogger()), store
}

func TestHandleTagsListsNames(t *testing.T) {
	asOf := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	api, _ := setupAPI(t, asOf)

	req := httptest.NewRequest(http.MethodGet, "/api/tags", nil)
	w := httptest.NewRecorder()
	api.HandleTags(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Available []string `json:"available"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.NotEmpty(t, body.Available)
	assert.Contains(t, body.Available, "current.humidex")
}

func TestHandleTagsResolvesInOnePass(t *testing.T) {
	asOf := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	api, store := setupAPI(t, asOf)

	require.NoError(t, store.Append(&models.Record{
		Time:    asOf.Add(-5 * time.Minute),
		Humidex: models.Float(30.0),
	}))

	req := httptest.NewRequest(http.MethodGet,
		"/api/tags?names=current.humidex,current.windChill", nil)
	w := httptest.NewRecorder()
	api.HandleTags(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Pass string               `json:"pass"`
		Tags map[string]TagResult `json:"tags"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.NotEmpty(t, body.Pass)

	humidex := body.Tags["current.humidex"]
	require.NotNil(t, humidex.Value)
	assert.Equal(t, 30.0, *humidex.Value)
	assert.Equal(t, "30.0°C", humidex.Formatted)

	// Missing field reports absent rather than failing the whole request
	assert.True(t, body.Tags["current.windChill"].Absent)
}

func TestHandleTagsUnknownName(t *testing.T) {
	asOf := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	api, _ := setupAPI(t, asOf)

	req := httptest.NewRequest(http.MethodGet, "/api/tags?names=no.such.tag", nil)
	w := httptest.NewRecorder()
	api.HandleTags(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleTag(t *testing.T) {
	asOf := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	api, store := setupAPI(t, asOf)

	require.NoError(t, store.Append(&models.Record{
		Time:    asOf.Add(-5 * time.Minute),
		Humidex: models.Float(28.5),
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/tag?name=current.humidex", nil)
	w := httptest.NewRecorder()
	api.HandleTag(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var result TagResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	require.NotNil(t, result.Value)
	assert.Equal(t, 28.5, *result.Value)
}

func TestHandleTagMissingName(t *testing.T) {
	asOf := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	api, _ := setupAPI(t, asOf)

	req := httptest.NewRequest(http.MethodGet, "/api/tag", nil)
	w := httptest.NewRecorder()
	api.HandleTag(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleTagUnknownName(t *testing.T) {
	asOf := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	api, _ := setupAPI(t, asOf)

	req := httptest.NewRequest(http.MethodGet, "/api/tag?name=no.such.tag", nil)
	w := httptest.NewRecorder()
	api.HandleTag(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleLatest(t *testing.T) {
	asOf := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	api, store := setupAPI(t, asOf)

	req := httptest.NewRequest(http.MethodGet, "/api/latest", nil)
	w := httptest.NewRecorder()
	api.HandleLatest(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)

	require.NoError(t, store.Append(&models.Record{
		Time:    asOf.Add(-5 * time.Minute),
		Humidex: models.Float(25.0),
	}))

	w = httptest.NewRecorder()
	api.HandleLatest(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var record models.Record
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &record))
	require.NotNil(t, record.Humidex)
	assert.Equal(t, 25.0, *record.Humidex)
}

func TestHandleHistory(t *testing.T) {
	asOf := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	api, store := setupAPI(t, asOf)

	base := asOf.Add(-1 * time.Hour)
	for i := 0; i < 6; i++ {
		require.NoError(t, store.Append(&models.Record{
			Time:    base.Add(time.Duration(i) * 5 * time.Minute),
			Humidex: models.Float(20.0 + float64(i)),
		}))
	}

	// Window covering the middle four records, with a limit of two
	start := base.Add(5 * time.Minute).Unix()
	end := base.Add(25 * time.Minute).Unix()
	req := httptest.NewRequest(http.MethodGet,
		"/api/history?start="+itoa(start)+"&end="+itoa(end)+"&limit=2", nil)
	w := httptest.NewRecorder()
	api.HandleHistory(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var records []*models.Record
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &records))
	require.Len(t, records, 2)
	assert.Equal(t, 21.0, *records[0].Humidex)
	assert.Equal(t, 22.0, *records[1].Humidex)
}

func TestHandleHistoryBadParams(t *testing.T) {
	asOf := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	api, _ := setupAPI(t, asOf)

	req := httptest.NewRequest(http.MethodGet, "/api/history?start=yesterday", nil)
	w := httptest.NewRecorder()
	api.HandleHistory(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleStatus(t *testing.T) {
	asOf := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	api, store := setupAPI(t, asOf)

	require.NoError(t, store.Append(&models.Record{
		Time:    asOf.Add(-5 * time.Minute),
		Humidex: models.Float(25.0),
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	w := httptest.NewRecorder()
	api.HandleStatus(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var data StatusData
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &data))
	require.NotNil(t, data.Store)
	assert.Equal(t, int64(1), data.Store.TotalRecords)
	assert.Equal(t, augment.StateColdStart, data.State)
	assert.Empty(t, data.Feeds)
}

func TestHandleHealth(t *testing.T) {
	asOf := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	api, _ := setupAPI(t, asOf)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	api.HandleHealth(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
