package storage

import (
	"testing"
	"time"

	"github.com/afroash/weatherwd/internal/models"
)

// setupTestMaintainer creates a test store and maintainer
func setupTestMaintainer(t *testing.T, cfg MaintainerConfig) (*SQLiteStore, *Maintainer) {
	t.Helper()

	store, _ := setupTestDB(t)

	m, err := NewMaintainer(store, cfg, testLogger())
	if err != nil {
		t.Fatalf("Failed to create maintainer: %v", err)
	}
	t.Cleanup(m.Stop)

	return store, m
}

func TestNewMaintainer(t *testing.T) {
	_, m := setupTestMaintainer(t, DefaultMaintainerConfig())

	if m == nil {
		t.Fatal("Expected non-nil maintainer")
	}

	stats := m.Stats()
	if stats.RetentionDays != 0 {
		t.Errorf("RetentionDays = %d, want 0", stats.RetentionDays)
	}
}

func TestMaintainerRunNow(t *testing.T) {
	cfg := MaintainerConfig{
		RetentionDays: 30,
		CleanupPeriod: 1 * time.Hour, // Long period so we test manual trigger
	}
	store, m := setupTestMaintainer(t, cfg)

	now := time.Now().UTC()

	// Records from 35 days ago, oldest first to satisfy append ordering
	for i := 9; i >= 0; i-- {
		rec := testRecord(now.AddDate(0, 0, -35).Add(-time.Duration(i)*time.Hour), float64(i))
		if err := store.Append(rec); err != nil {
			t.Fatalf("Failed to append old record: %v", err)
		}
	}

	// Recent records
	for i := 9; i >= 0; i-- {
		rec := testRecord(now.Add(-time.Duration(i)*time.Hour), float64(i+100))
		if err := store.Append(rec); err != nil {
			t.Fatalf("Failed to append recent record: %v", err)
		}
	}

	stats, _ := store.Stats()
	if stats.TotalRecords != 20 {
		t.Fatalf("Expected 20 records, got %d", stats.TotalRecords)
	}

	m.RunNow()

	stats, _ = store.Stats()
	if stats.TotalRecords != 10 {
		t.Errorf("Expected 10 records after cleanup, got %d", stats.TotalRecords)
	}

	mStats := m.Stats()
	if mStats.LastDeleteCount != 10 {
		t.Errorf("LastDeleteCount = %d, want 10", mStats.LastDeleteCount)
	}
	if mStats.TotalCleanups != 1 {
		t.Errorf("TotalCleanups = %d, want 1", mStats.TotalCleanups)
	}
	if mStats.LastCleanup.IsZero() {
		t.Error("LastCleanup should not be zero")
	}
}

func TestMaintainerNoDataToDelete(t *testing.T) {
	cfg := MaintainerConfig{
		RetentionDays: 30,
		CleanupPeriod: 1 * time.Hour,
	}
	store, m := setupTestMaintainer(t, cfg)

	for i := 9; i >= 0; i-- {
		rec := testRecord(time.Now().UTC().Add(-time.Duration(i)*time.Hour), float64(i))
		if err := store.Append(rec); err != nil {
			t.Fatalf("Failed to append: %v", err)
		}
	}

	m.RunNow()

	stats, _ := store.Stats()
	if stats.TotalRecords != 10 {
		t.Errorf("TotalRecords = %d, want 10 (nothing should be deleted)", stats.TotalRecords)
	}

	mStats := m.Stats()
	if mStats.LastDeleteCount != 0 {
		t.Errorf("LastDeleteCount = %d, want 0", mStats.LastDeleteCount)
	}
}

func TestMaintainerStop(t *testing.T) {
	cfg := MaintainerConfig{
		RetentionDays: 30,
		CleanupPeriod: 50 * time.Millisecond,
	}
	_, m := setupTestMaintainer(t, cfg)

	// Let it run a few cycles
	time.Sleep(150 * time.Millisecond)

	done := make(chan bool)
	go func() {
		m.Stop()
		done <- true
	}()

	select {
	case <-done:
		// Good, stopped successfully
	case <-time.After(1 * time.Second):
		t.Fatal("Stop() timed out")
	}
}

func TestMaintainerRetentionBoundaries(t *testing.T) {
	testCases := []struct {
		name          string
		retentionDays int
		oldDataDays   int
		shouldDelete  bool
	}{
		{"30 day retention, 35 day old data", 30, 35, true},
		{"30 day retention, 25 day old data", 30, 25, false},
		{"7 day retention, 10 day old data", 7, 10, true},
		{"1 day retention, 2 day old data", 1, 2, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := MaintainerConfig{
				RetentionDays: tc.retentionDays,
				CleanupPeriod: 1 * time.Hour,
			}
			store, m := setupTestMaintainer(t, cfg)

			rec := testRecord(time.Now().UTC().AddDate(0, 0, -tc.oldDataDays), 20.0)
			if err := store.Append(rec); err != nil {
				t.Fatalf("Failed to append: %v", err)
			}

			m.RunNow()

			stats, _ := store.Stats()
			if tc.shouldDelete && stats.TotalRecords != 0 {
				t.Errorf("Expected record deleted, TotalRecords = %d", stats.TotalRecords)
			}
			if !tc.shouldDelete && stats.TotalRecords != 1 {
				t.Errorf("Expected record kept, TotalRecords = %d", stats.TotalRecords)
			}
		})
	}
}

func TestMaintainerDisabledRetention(t *testing.T) {
	// RetentionDays 0 means keep everything
	cfg := MaintainerConfig{
		RetentionDays: 0,
		CleanupPeriod: 50 * time.Millisecond,
	}
	store, _ := setupTestMaintainer(t, cfg)

	rec := &models.Record{
		Time:     time.Now().UTC().AddDate(-2, 0, 0),
		Interval: 5 * time.Minute,
	}
	if err := store.Append(rec); err != nil {
		t.Fatalf("Failed to append: %v", err)
	}

	time.Sleep(150 * time.Millisecond)

	stats, _ := store.Stats()
	if stats.TotalRecords != 1 {
		t.Errorf("Expected ancient record kept with retention disabled, got %d records", stats.TotalRecords)
	}
}
