package feed

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/afroash/weatherwd/internal/models"
)

// archiveColumns are the host archive columns replayed to the bridge, in the
// order scanned. Keys are the observation names the augment pipeline expects.
var archiveColumns = []string{
	"outTemp",
	"outHumidity",
	"windSpeed",
	"windGust",
	"windDir",
	"rain",
	"barometer",
	"radiation",
	"inTemp",
	"inHumidity",
}

// Replayer streams committed host archive rows to the bridge, oldest first,
// for seeding a fresh supplementary archive from an existing station record.
// Rows at or before the resume point are skipped, so a replay can be rerun
// after an interruption without re-sending what the bridge already stored.
type Replayer struct {
	db     *sql.DB
	conn   *Connection
	buffer *RecordBuffer
	logger zerolog.Logger
}

// ReplayStats summarizes one replay run.
type ReplayStats struct {
	Read int64
	Sent int64
}

// NewReplayer opens the host archive read-only and prepares a replay over
// conn.
func NewReplayer(archivePath string, conn *Connection, bufferSize int, logger zerolog.Logger) (*Replayer, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?mode=ro", archivePath))
	if err != nil {
		return nil, fmt.Errorf("failed to open host archive: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping host archive: %w", err)
	}
	return &Replayer{
		db:     db,
		conn:   conn,
		buffer: NewRecordBuffer(bufferSize),
		logger: logger,
	}, nil
}

// Close releases the archive handle.
func (r *Replayer) Close() error {
	return r.db.Close()
}

// Run replays all archive rows after resumeAfter. It reads and sends
// concurrently: the reader fills the buffer, the sender drains it in
// lockstep with the bridge's acks, reconnecting on failure. Returns the run
// stats once every row has been acknowledged.
func (r *Replayer) Run(ctx context.Context, resumeAfter time.Time) (ReplayStats, error) {
	var stats ReplayStats

	readErr := make(chan error, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		readErr <- r.readRows(ctx, resumeAfter, &stats)
	}()

	if err := r.sendLoop(ctx, done, &stats); err != nil {
		return stats, err
	}
	if err := <-readErr; err != nil {
		return stats, err
	}

	r.logger.Info().
		Int64("read", stats.Read).
		Int64("sent", stats.Sent).
		Msg("Replay complete")
	return stats, nil
}

// readRows scans the archive ascending and fills the buffer, backing off
// while the sender is behind.
func (r *Replayer) readRows(ctx context.Context, resumeAfter time.Time, stats *ReplayStats) error {
	query := "SELECT dateTime, interval"
	for _, col := range archiveColumns {
		query += ", " + col
	}
	query += " FROM archive WHERE dateTime > ? ORDER BY dateTime ASC"

	rows, err := r.db.QueryContext(ctx, query, resumeAfter.Unix())
	if err != nil {
		return fmt.Errorf("failed to query archive: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			dateTime     int64
			intervalMins int
			values       = make([]sql.NullFloat64, len(archiveColumns))
		)
		dest := []interface{}{&dateTime, &intervalMins}
		for i := range values {
			dest = append(dest, &values[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return fmt.Errorf("failed to scan archive row: %w", err)
		}
		stats.Read++

		record := &models.ArchiveMessage{
			Timestamp:    dateTime,
			IntervalSecs: intervalMins * 60,
			Observations: make(map[string]float64),
		}
		for i, col := range archiveColumns {
			if values[i].Valid {
				record.Observations[col] = values[i].Float64
			}
		}

		for !r.buffer.Push(record) {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(100 * time.Millisecond):
			}
		}
	}
	return rows.Err()
}

// sendLoop drains the buffer in order. A record is committed only after the
// bridge acknowledges it; on a send failure the connection is torn down and
// the same record is retransmitted after reconnect.
func (r *Replayer) sendLoop(ctx context.Context, readerDone <-chan struct{}, stats *ReplayStats) error {
	for {
		record := r.buffer.Peek()
		if record == nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-readerDone:
				if r.buffer.IsEmpty() {
					return nil
				}
			case <-time.After(50 * time.Millisecond):
			}
			continue
		}

		if !r.conn.IsConnected() {
			if err := r.conn.Connect(ctx); err != nil {
				r.logger.Warn().Err(err).Msg("Connection failed")
				r.conn.WaitBeforeReconnect(ctx)
				if ctx.Err() != nil {
					return ctx.Err()
				}
				continue
			}
		}

		if err := r.conn.SendArchive(record); err != nil {
			r.logger.Warn().Err(err).Int64("timestamp", record.Timestamp).Msg("Send failed, will retry")
			r.conn.Disconnect()
			continue
		}

		r.buffer.Commit()
		stats.Sent++
		if stats.Sent%1000 == 0 {
			r.logger.Info().Int64("sent", stats.Sent).Msg("Replay progress")
		}
	}
}
