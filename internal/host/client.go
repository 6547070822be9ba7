package host

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/afroash/weatherwd/internal/models"
)

// Summary holds one field's aggregates for one weather day, as maintained by
// the host archive engine in its per-field day summary tables.
type Summary struct {
	Min     *float64
	MinTime *time.Time
	Max     *float64
	MaxTime *time.Time
	Sum     float64
	Count   int64
}

// Mean returns the midrange (mean of min and max), the conventional daily
// temperature mean for degree-day arithmetic. Returns false when either
// extreme is absent.
func (s *Summary) Mean() (float64, bool) {
	if s == nil || s.Min == nil || s.Max == nil {
		return 0, false
	}
	return (*s.Min + *s.Max) / 2, true
}

// Wet reports whether the day's rain sum meets the threshold. Only meaningful
// on a rain summary.
func (s *Summary) Wet(threshold float64) bool {
	return s != nil && s.Sum >= threshold
}

// Client reads aggregates from the host's primary archive. An absent day
// yields (nil, nil): days before the station existed or gaps in the record.
type Client interface {
	// DaySummary returns the aggregates for field on the weather day
	// anchored at day (a day-start time per the configured boundary rule).
	DaySummary(field models.Field, day time.Time) (*Summary, error)

	// Earliest returns the start of the first day the host has data for.
	// ok is false when the host archive is empty.
	Earliest() (day time.Time, ok bool, err error)

	Close() error
}

// Compile-time interface checks
var (
	_ Client = (*SQLiteClient)(nil)
	_ Client = unavailableClient{}
)

// unavailableClient stands in when no host archive is configured. Every day
// is absent, so host-backed statistics degrade to absent rather than failing.
type unavailableClient struct{}

func (unavailableClient) DaySummary(models.Field, time.Time) (*Summary, error) { return nil, nil }
func (unavailableClient) Earliest() (time.Time, bool, error)                   { return time.Time{}, false, nil }
func (unavailableClient) Close() error                                         { return nil }

// Unavailable returns a Client for deployments without a readable host
// archive.
func Unavailable() Client { return unavailableClient{} }

// hostDayTables maps the fields this system consumes to the host's per-field
// summary table names.
var hostDayTables = map[models.Field]string{
	models.FieldOutTemp:   "archive_day_outTemp",
	models.FieldRain:      "archive_day_rain",
	models.FieldWindSpeed: "archive_day_windSpeed",
	models.FieldWindGust:  "archive_day_windGust",
}

// SQLiteClient reads the host's own SQLite archive read-only. The host owns
// that file; this client never writes to it.
type SQLiteClient struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewSQLiteClient opens the host archive database in read-only mode.
func NewSQLiteClient(dbPath string, logger zerolog.Logger) (*SQLiteClient, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?mode=ro", dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open host archive: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping host archive: %w", err)
	}

	logger.Info().Str("path", dbPath).Msg("Host archive opened read-only")
	return &SQLiteClient{db: db, logger: logger}, nil
}

// Close closes the database handle.
func (c *SQLiteClient) Close() error {
	return c.db.Close()
}

// DaySummary reads one day's aggregates for a host field.
func (c *SQLiteClient) DaySummary(field models.Field, day time.Time) (*Summary, error) {
	table, ok := hostDayTables[field]
	if !ok {
		return nil, fmt.Errorf("no host day summary for field %q", field)
	}

	var (
		mn, mx         sql.NullFloat64
		mnTime, mxTime sql.NullInt64
		sum            sql.NullFloat64
		count          int64
	)
	err := c.db.QueryRow(
		"SELECT min, mintime, max, maxtime, sum, count FROM "+table+" WHERE dateTime = ?",
		day.Unix(),
	).Scan(&mn, &mnTime, &mx, &mxTime, &sum, &count)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: day summary %s at %d: %v", models.ErrStoreUnavailable, table, day.Unix(), err)
	}

	summary := &Summary{Count: count}
	if sum.Valid {
		summary.Sum = sum.Float64
	}
	if mn.Valid {
		summary.Min = &mn.Float64
	}
	if mx.Valid {
		summary.Max = &mx.Float64
	}
	if mnTime.Valid {
		t := time.Unix(mnTime.Int64, 0).UTC()
		summary.MinTime = &t
	}
	if mxTime.Valid {
		t := time.Unix(mxTime.Int64, 0).UTC()
		summary.MaxTime = &t
	}
	return summary, nil
}

// Earliest returns the first day the host's outside temperature summary
// covers, the natural start-of-record marker.
func (c *SQLiteClient) Earliest() (time.Time, bool, error) {
	var first sql.NullInt64
	err := c.db.QueryRow("SELECT MIN(dateTime) FROM archive_day_outTemp").Scan(&first)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("%w: earliest day: %v", models.ErrStoreUnavailable, err)
	}
	if !first.Valid {
		return time.Time{}, false, nil
	}
	return time.Unix(first.Int64, 0).UTC(), true, nil
}
