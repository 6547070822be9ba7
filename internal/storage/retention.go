package storage

import (
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"
)

// Maintainer periodically prunes old supplementary records and vacuums the
// database file so the archive stays bounded on small disks.
type Maintainer struct {
	store     Store
	logger    zerolog.Logger
	scheduler *gocron.Scheduler
	cfg       MaintainerConfig

	// Stats
	mu              sync.RWMutex
	totalDeleted    int64
	totalCleanups   int64
	lastCleanup     time.Time
	lastDeleteCount int64
	lastVacuum      time.Time
}

// MaintainerConfig holds configuration for the maintainer
type MaintainerConfig struct {
	RetentionDays int           // Number of days to keep data (0 = keep forever)
	CleanupPeriod time.Duration // How often to run cleanup (default: 1 hour)
	VacuumPeriod  time.Duration // How often to vacuum (0 = never)
}

// DefaultMaintainerConfig returns sensible defaults
func DefaultMaintainerConfig() MaintainerConfig {
	return MaintainerConfig{
		RetentionDays: 0,
		CleanupPeriod: 1 * time.Hour,
		VacuumPeriod:  24 * time.Hour,
	}
}

// MaintainerStats contains statistics about maintenance runs
type MaintainerStats struct {
	TotalDeleted    int64     `json:"total_deleted"`
	TotalCleanups   int64     `json:"total_cleanups"`
	LastCleanup     time.Time `json:"last_cleanup,omitempty"`
	LastDeleteCount int64     `json:"last_delete_count"`
	LastVacuum      time.Time `json:"last_vacuum,omitempty"`
	RetentionDays   int       `json:"retention_days"`
}

// NewMaintainer creates and starts a new store maintainer. Jobs run on a
// background scheduler until Stop is called.
func NewMaintainer(store Store, cfg MaintainerConfig, logger zerolog.Logger) (*Maintainer, error) {
	if cfg.CleanupPeriod <= 0 {
		defaultPeriod := 1 * time.Hour
		logger.Warn().
			Dur("provided_period", cfg.CleanupPeriod).
			Dur("default_period", defaultPeriod).
			Msg("Invalid CleanupPeriod provided (zero or negative), using default")
		cfg.CleanupPeriod = defaultPeriod
	}

	m := &Maintainer{
		store:     store,
		logger:    logger,
		scheduler: gocron.NewScheduler(time.UTC),
		cfg:       cfg,
	}

	if cfg.RetentionDays > 0 {
		if _, err := m.scheduler.Every(cfg.CleanupPeriod).Do(m.runCleanup); err != nil {
			return nil, err
		}
	}
	if cfg.VacuumPeriod > 0 {
		if _, err := m.scheduler.Every(cfg.VacuumPeriod).Do(m.runVacuum); err != nil {
			return nil, err
		}
	}
	m.scheduler.StartAsync()

	logger.Info().
		Int("retention_days", cfg.RetentionDays).
		Dur("cleanup_period", cfg.CleanupPeriod).
		Dur("vacuum_period", cfg.VacuumPeriod).
		Msg("Store maintainer started")

	return m, nil
}

// RunNow triggers an immediate cleanup outside the schedule
func (m *Maintainer) RunNow() {
	m.runCleanup()
}

// runCleanup performs a single cleanup operation
func (m *Maintainer) runCleanup() {
	deleted, err := m.store.DeleteOlderThan(m.cfg.RetentionDays)
	if err != nil {
		m.logger.Error().Err(err).Msg("Retention cleanup failed")
		return
	}

	m.mu.Lock()
	m.totalDeleted += deleted
	m.totalCleanups++
	m.lastCleanup = time.Now()
	m.lastDeleteCount = deleted
	m.mu.Unlock()

	if deleted > 0 {
		m.logger.Info().
			Int64("deleted", deleted).
			Int("retention_days", m.cfg.RetentionDays).
			Msg("Retention cleanup complete")
	}
}

// runVacuum compacts the database file
func (m *Maintainer) runVacuum() {
	start := time.Now()
	if err := m.store.Vacuum(); err != nil {
		m.logger.Error().Err(err).Msg("Vacuum failed")
		return
	}
	m.mu.Lock()
	m.lastVacuum = time.Now()
	m.mu.Unlock()

	m.logger.Info().Dur("took", time.Since(start)).Msg("Vacuum complete")
}

// Stats returns current maintainer statistics
func (m *Maintainer) Stats() MaintainerStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return MaintainerStats{
		TotalDeleted:    m.totalDeleted,
		TotalCleanups:   m.totalCleanups,
		LastCleanup:     m.lastCleanup,
		LastDeleteCount: m.lastDeleteCount,
		LastVacuum:      m.lastVacuum,
		RetentionDays:   m.cfg.RetentionDays,
	}
}

// Stop halts the scheduled maintenance jobs
func (m *Maintainer) Stop() {
	m.scheduler.Stop()
	m.logger.Info().Msg("Store maintainer stopped")
}
