package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/afroash/weatherwd/internal/models"
)

// Store defines the interface for the supplementary archive.
type Store interface {
	Close() error
	Migrate() error

	// Append inserts one record. Fails with models.ErrOutOfOrder when the
	// timestamp is at or before the latest stored record; the row insert
	// itself is atomic, so readers never observe a partial record.
	Append(record *models.Record) error

	// RangeScan streams records with start <= t < end in ascending
	// timestamp order, calling fn for each. Returning an error from fn
	// stops the scan and is passed through. The scan reflects a snapshot
	// as of its start; rows appended mid-scan may be excluded.
	RangeScan(start, end time.Time, fn func(*models.Record) error) error

	// RangeQuery collects a bounded range into memory. limit <= 0 means no
	// limit; use RangeScan for unbounded periods.
	RangeQuery(start, end time.Time, limit int) ([]*models.Record, error)

	// Latest returns the most recent record, or (nil, nil) when empty.
	Latest() (*models.Record, error)

	// DeleteAt removes the single record at ts (corrections are a delete
	// plus a fresh append).
	DeleteAt(ts time.Time) error

	DeleteOlderThan(days int) (int64, error)
	Vacuum() error
	Stats() (*StoreStats, error)
}

// Compile-time interface check
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore persists supplementary records in SQLite. One writer handle
// with a single connection enforces the single-dominant-writer model; a
// separate read-only handle serves range scans concurrent with appends off
// the WAL.
type SQLiteStore struct {
	db     *sql.DB // writer
	rdb    *sql.DB // read-only, for scans concurrent with appends
	logger zerolog.Logger

	mu     sync.Mutex
	lastTS int64 // unix seconds of the newest row, 0 when empty
}

// StoreStats contains information about the database.
type StoreStats struct {
	TotalRecords   int64     `json:"total_records"`
	OldestRecord   time.Time `json:"oldest_record,omitempty"`
	NewestRecord   time.Time `json:"newest_record,omitempty"`
	SchemaVersion  int       `json:"schema_version"`
	DatabaseSizeMB float64   `json:"database_size_mb"`
}

// NewSQLiteStore opens (creating if needed) the supplementary store and
// verifies the schema version. An incompatible version is fatal: the caller
// must not run against data it would misinterpret.
func NewSQLiteStore(dbPath string, logger zerolog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA cache_size=10000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	// Single writer connection; the append monotonicity check is the
	// concurrency control, not a lock.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	store := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := store.Migrate(); err != nil {
		db.Close()
		return nil, err
	}

	rdb, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?mode=ro", dbPath))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open read handle: %w", err)
	}
	store.rdb = rdb

	if err := store.loadLastTimestamp(); err != nil {
		store.Close()
		return nil, err
	}

	logger.Info().Str("path", dbPath).Int("schema_version", models.SchemaVersion).Msg("Supplementary store initialized")
	return store, nil
}

// Close closes both database handles.
func (s *SQLiteStore) Close() error {
	var firstErr error
	if s.rdb != nil {
		if err := s.rdb.Close(); err != nil {
			firstErr = err
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

const suppColumns = `date_time, interval_secs, humidex, app_temp, wind_chill, heat_index,
	wet_bulb, dew_point, air_density, out_temp_day, out_temp_night, windrun_day,
	rain_rate, sunshine_secs, max_solar_rad, storm_rain, storm_start,
	forecast_icon, forecast_text, current_icon, current_text`

// Migrate creates the schema if needed and enforces the version check.
func (s *SQLiteStore) Migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS wd_meta (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS wd_supp (
		date_time      INTEGER NOT NULL UNIQUE PRIMARY KEY,
		interval_secs  INTEGER NOT NULL,
		humidex        REAL,
		app_temp       REAL,
		wind_chill     REAL,
		heat_index     REAL,
		wet_bulb       REAL,
		dew_point      REAL,
		air_density    REAL,
		out_temp_day   REAL,
		out_temp_night REAL,
		windrun_day    REAL,
		rain_rate      REAL,
		sunshine_secs  REAL,
		max_solar_rad  REAL,
		storm_rain     REAL,
		storm_start    INTEGER,
		forecast_icon  INTEGER,
		forecast_text  TEXT,
		current_icon   INTEGER,
		current_text   TEXT
	);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	var stored string
	err := s.db.QueryRow("SELECT value FROM wd_meta WHERE key = 'schema_version'").Scan(&stored)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = s.db.Exec("INSERT INTO wd_meta (key, value) VALUES ('schema_version', ?)",
			strconv.Itoa(models.SchemaVersion))
		if err != nil {
			return fmt.Errorf("failed to record schema version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("failed to read schema version: %w", err)
	default:
		v, convErr := strconv.Atoi(stored)
		if convErr != nil || v != models.SchemaVersion {
			return fmt.Errorf("%w: store has %q, binary writes %d",
				models.ErrSchemaVersion, stored, models.SchemaVersion)
		}
	}

	s.logger.Debug().Msg("Database schema migrated")
	return nil
}

func (s *SQLiteStore) loadLastTimestamp() error {
	var last sql.NullInt64
	if err := s.db.QueryRow("SELECT MAX(date_time) FROM wd_supp").Scan(&last); err != nil {
		return fmt.Errorf("failed to load last timestamp: %w", err)
	}
	s.mu.Lock()
	s.lastTS = last.Int64
	s.mu.Unlock()
	return nil
}

// Append inserts one supplementary record, enforcing timestamp monotonicity.
func (s *SQLiteStore) Append(record *models.Record) error {
	ts := record.Time.Unix()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lastTS != 0 && ts <= s.lastTS {
		return fmt.Errorf("%w: record %d <= latest %d", models.ErrOutOfOrder, ts, s.lastTS)
	}

	var stormStart *int64
	if record.StormStart != nil {
		v := record.StormStart.Unix()
		stormStart = &v
	}

	_, err := s.db.Exec(`
		INSERT INTO wd_supp (`+suppColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		ts,
		int(record.Interval.Seconds()),
		record.Humidex, record.AppTemp, record.WindChill, record.HeatIndex,
		record.WetBulb, record.DewPoint, record.AirDensity,
		record.OutTempDay, record.OutTempNight, record.WindrunDay,
		record.RainRate, record.SunshineSecs, record.MaxSolarRad,
		record.StormRain, stormStart,
		record.ForecastIcon, record.ForecastText, record.CurrentIcon, record.CurrentText,
	)
	if err != nil {
		return fmt.Errorf("%w: insert at %d: %v", models.ErrStoreUnavailable, ts, err)
	}

	s.lastTS = ts
	return nil
}

// RangeScan streams records over [start, end) ascending by timestamp.
func (s *SQLiteStore) RangeScan(start, end time.Time, fn func(*models.Record) error) error {
	rows, err := s.rdb.Query(`
		SELECT `+suppColumns+`
		FROM wd_supp
		WHERE date_time >= ? AND date_time < ?
		ORDER BY date_time ASC
	`, start.Unix(), end.Unix())
	if err != nil {
		return fmt.Errorf("failed to query range: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return fmt.Errorf("failed to scan record: %w", err)
		}
		if err := fn(record); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating rows: %w", err)
	}
	return nil
}

var errScanDone = errors.New("scan limit reached")

// RangeQuery collects up to limit records over [start, end).
func (s *SQLiteStore) RangeQuery(start, end time.Time, limit int) ([]*models.Record, error) {
	var records []*models.Record
	err := s.RangeScan(start, end, func(r *models.Record) error {
		records = append(records, r)
		if limit > 0 && len(records) >= limit {
			return errScanDone
		}
		return nil
	})
	if err != nil && !errors.Is(err, errScanDone) {
		return nil, err
	}
	return records, nil
}

// Latest returns the most recent record, or nil when the store is empty.
func (s *SQLiteStore) Latest() (*models.Record, error) {
	row := s.db.QueryRow(`
		SELECT ` + suppColumns + `
		FROM wd_supp
		ORDER BY date_time DESC
		LIMIT 1
	`)
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest record: %w", err)
	}
	return record, nil
}

// DeleteAt removes the single record at the given timestamp.
func (s *SQLiteStore) DeleteAt(ts time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec("DELETE FROM wd_supp WHERE date_time = ?", ts.Unix())
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return nil
	}

	// deleting the newest record reopens its slot for a corrected append
	var last sql.NullInt64
	if err := s.db.QueryRow("SELECT MAX(date_time) FROM wd_supp").Scan(&last); err != nil {
		return fmt.Errorf("failed to reload last timestamp: %w", err)
	}
	s.lastTS = last.Int64

	s.logger.Info().Time("timestamp", ts).Msg("Deleted supplementary record")
	return nil
}

// DeleteOlderThan removes records whose timestamp is more than days old.
func (s *SQLiteStore) DeleteOlderThan(days int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days)

	result, err := s.db.Exec("DELETE FROM wd_supp WHERE date_time < ?", cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to delete old records: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if deleted > 0 {
		s.logger.Info().
			Int("days", days).
			Int64("deleted", deleted).
			Time("cutoff", cutoff).
			Msg("Deleted old supplementary records")
	}
	return deleted, nil
}

// Vacuum compacts the database file, worth running after retention deletes.
func (s *SQLiteStore) Vacuum() error {
	start := time.Now()
	if _, err := s.db.Exec("VACUUM"); err != nil {
		return fmt.Errorf("failed to vacuum: %w", err)
	}
	s.logger.Info().Dur("elapsed", time.Since(start)).Msg("Database vacuumed")
	return nil
}

// Stats returns statistics about the database.
func (s *SQLiteStore) Stats() (*StoreStats, error) {
	stats := &StoreStats{SchemaVersion: models.SchemaVersion}

	if err := s.db.QueryRow("SELECT COUNT(*) FROM wd_supp").Scan(&stats.TotalRecords); err != nil {
		return nil, fmt.Errorf("failed to count records: %w", err)
	}
	if stats.TotalRecords == 0 {
		return stats, nil
	}

	var oldest, newest int64
	err := s.db.QueryRow("SELECT MIN(date_time), MAX(date_time) FROM wd_supp").Scan(&oldest, &newest)
	if err != nil {
		return nil, fmt.Errorf("failed to get timestamp range: %w", err)
	}
	stats.OldestRecord = time.Unix(oldest, 0).UTC()
	stats.NewestRecord = time.Unix(newest, 0).UTC()

	var pageCount, pageSize int64
	s.db.QueryRow("PRAGMA page_count").Scan(&pageCount)
	s.db.QueryRow("PRAGMA page_size").Scan(&pageSize)
	stats.DatabaseSizeMB = float64(pageCount*pageSize) / (1024 * 1024)

	return stats, nil
}

// scanRecord reads one row into a Record.
func scanRecord(row interface{ Scan(...interface{}) error }) (*models.Record, error) {
	var (
		r            models.Record
		ts           int64
		intervalSecs int64
		stormStart   sql.NullInt64
	)

	err := row.Scan(
		&ts, &intervalSecs,
		&r.Humidex, &r.AppTemp, &r.WindChill, &r.HeatIndex,
		&r.WetBulb, &r.DewPoint, &r.AirDensity,
		&r.OutTempDay, &r.OutTempNight, &r.WindrunDay,
		&r.RainRate, &r.SunshineSecs, &r.MaxSolarRad,
		&r.StormRain, &stormStart,
		&r.ForecastIcon, &r.ForecastText, &r.CurrentIcon, &r.CurrentText,
	)
	if err != nil {
		return nil, err
	}

	r.Time = time.Unix(ts, 0).UTC()
	r.Interval = time.Duration(intervalSecs) * time.Second
	if stormStart.Valid {
		t := time.Unix(stormStart.Int64, 0).UTC()
		r.StormStart = &t
	}
	return &r, nil
}
