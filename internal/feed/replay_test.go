package feed

import (
	"context"
	"database/sql"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/afroash/weatherwd/internal/host"
)

func testLogger() zerolog.Logger {
	return zerolog.New(os.Stdout).Level(zerolog.Disabled)
}

// setupArchive builds a small host archive with rows every 5 minutes.
func setupArchive(t *testing.T, base time.Time, count int) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "archive.db")
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("Failed to open archive: %v", err)
	}
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE archive (
		dateTime INTEGER NOT NULL PRIMARY KEY,
		interval INTEGER NOT NULL,
		outTemp REAL, outHumidity REAL,
		windSpeed REAL, windGust REAL, windDir REAL,
		rain REAL, barometer REAL, radiation REAL,
		inTemp REAL, inHumidity REAL
	)`)
	if err != nil {
		t.Fatalf("Failed to create archive table: %v", err)
	}

	for i := 0; i < count; i++ {
		ts := base.Add(time.Duration(i) * 5 * time.Minute).Unix()
		_, err := db.Exec(
			"INSERT INTO archive (dateTime, interval, outTemp, outHumidity, rain) VALUES (?, 5, ?, 60.0, 0.0)",
			ts, 20.0+float64(i),
		)
		if err != nil {
			t.Fatalf("Failed to insert archive row: %v", err)
		}
	}
	return path
}

func setupBridgeServer(t *testing.T, queueSize int) (*host.NotificationQueue, string) {
	t.Helper()

	queue := host.NewNotificationQueue(queueSize)
	bridge := host.NewBridge("feed-token", queue, testLogger())
	srv := httptest.NewServer(bridge)
	t.Cleanup(srv.Close)

	return queue, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func newTestConnection(url string) *Connection {
	return NewConnection(ConnectionConfig{
		URL:               url,
		AuthToken:         "feed-token",
		Station:           "test-station",
		ReconnectInterval: 10 * time.Millisecond,
		AckTimeout:        2 * time.Second,
	}, testLogger())
}

func TestReplayerStreamsArchiveInOrder(t *testing.T) {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	archivePath := setupArchive(t, base, 5)
	queue, url := setupBridgeServer(t, 32)

	conn := newTestConnection(url)
	defer conn.Close()

	replayer, err := NewReplayer(archivePath, conn, 8, testLogger())
	if err != nil {
		t.Fatalf("Failed to create replayer: %v", err)
	}
	defer replayer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stats, err := replayer.Run(ctx, time.Time{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if stats.Read != 5 || stats.Sent != 5 {
		t.Errorf("stats = %+v, want 5 read and 5 sent", stats)
	}

	for i := 0; i < 5; i++ {
		n, ok := queue.Pop()
		if !ok {
			t.Fatalf("Queue missing notification %d", i)
		}
		want := base.Add(time.Duration(i) * 5 * time.Minute)
		if !n.Snapshot.Time.Equal(want) {
			t.Errorf("Notification %d time = %v, want %v", i, n.Snapshot.Time, want)
		}
		temp, ok := n.Snapshot.Obs["outTemp"]
		if !ok {
			t.Fatalf("Notification %d missing outTemp", i)
		}
		if temp.Float != 20.0+float64(i) {
			t.Errorf("Notification %d outTemp = %v, want %v", i, temp.Float, 20.0+float64(i))
		}
	}
	if _, ok := queue.Pop(); ok {
		t.Error("Queue should be drained")
	}
}

func TestReplayerResumesAfterTimestamp(t *testing.T) {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	archivePath := setupArchive(t, base, 5)
	queue, url := setupBridgeServer(t, 32)

	conn := newTestConnection(url)
	defer conn.Close()

	replayer, err := NewReplayer(archivePath, conn, 8, testLogger())
	if err != nil {
		t.Fatalf("Failed to create replayer: %v", err)
	}
	defer replayer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Resume after the third row: only the last two are replayed
	resumeAfter := base.Add(10 * time.Minute)
	stats, err := replayer.Run(ctx, resumeAfter)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if stats.Sent != 2 {
		t.Errorf("Sent = %d, want 2", stats.Sent)
	}

	n, ok := queue.Pop()
	if !ok {
		t.Fatal("Queue missing first resumed notification")
	}
	want := base.Add(15 * time.Minute)
	if !n.Snapshot.Time.Equal(want) {
		t.Errorf("First resumed time = %v, want %v", n.Snapshot.Time, want)
	}
}

func TestReplayerEmptyRange(t *testing.T) {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	archivePath := setupArchive(t, base, 3)
	_, url := setupBridgeServer(t, 32)

	conn := newTestConnection(url)
	defer conn.Close()

	replayer, err := NewReplayer(archivePath, conn, 8, testLogger())
	if err != nil {
		t.Fatalf("Failed to create replayer: %v", err)
	}
	defer replayer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stats, err := replayer.Run(ctx, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if stats.Read != 0 || stats.Sent != 0 {
		t.Errorf("stats = %+v, want nothing read or sent", stats)
	}
}

func TestConnectionRejectedByBadToken(t *testing.T) {
	_, url := setupBridgeServer(t, 4)

	conn := NewConnection(ConnectionConfig{
		URL:       url,
		AuthToken: "wrong-token",
		Station:   "test-station",
	}, testLogger())
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := conn.Connect(ctx); err == nil {
		t.Fatal("Connect should fail with a bad token")
	}
	if conn.IsConnected() {
		t.Error("Connection should not report connected")
	}
}
