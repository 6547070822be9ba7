package host

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/afroash/weatherwd/internal/models"
)

// Constants for WebSocket timeouts
const (
	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second
)

// Bridge accepts WebSocket connections from the host archive engine and turns
// committed archive records into notifications for the augmentation service.
// The host pushes; this side never polls the archive.
type Bridge struct {
	upgrader       websocket.Upgrader
	authToken      string
	queue          *NotificationQueue
	logger         zerolog.Logger
	allowedOrigins []string

	mutex       sync.RWMutex
	activeFeeds map[string]*FeedConnection
	lastTS      int64 // cheap monotone gate ahead of the store's own check
}

// FeedConnection represents an active host feed connection
type FeedConnection struct {
	Station     string          `json:"station"`
	Conn        *websocket.Conn `json:"-"`
	LastSeen    time.Time       `json:"last_seen"`
	ConnectedAt time.Time       `json:"connected_at"`
}

// NewBridge creates a new archive-feed bridge publishing into queue.
func NewBridge(authToken string, queue *NotificationQueue, logger zerolog.Logger, allowedOrigins ...string) *Bridge {
	b := &Bridge{
		authToken:      authToken,
		queue:          queue,
		logger:         logger,
		activeFeeds:    make(map[string]*FeedConnection),
		allowedOrigins: allowedOrigins,
	}

	b.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     b.checkOrigin,
	}

	return b
}

// checkOrigin validates the incoming request's Origin against the configured allowlist
func (b *Bridge) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	// No Origin header means same-origin request
	if origin == "" {
		return true
	}

	if len(b.allowedOrigins) == 0 {
		b.logger.Warn().Str("origin", origin).Msg("Rejected WebSocket connection: no allowed origins configured")
		return false
	}

	for _, allowed := range b.allowedOrigins {
		if origin == allowed {
			return true
		}
	}

	b.logger.Warn().Str("origin", origin).Msg("Rejected WebSocket connection: origin not in allowlist")
	return false
}

// ServeHTTP handles WebSocket connection requests from the host.
func (b *Bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Expected format: "Bearer <token>"
	token := r.Header.Get("Authorization")
	if !b.validateToken(token) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}

	b.handleConnection(conn)
}

// validateToken checks if the auth token is valid
func (b *Bridge) validateToken(authHeader string) bool {
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return false
	}
	return strings.TrimPrefix(authHeader, "Bearer ") == b.authToken
}

// handleConnection manages a single host feed connection
func (b *Bridge) handleConnection(conn *websocket.Conn) {
	connKey := conn.RemoteAddr().String()
	feed := &FeedConnection{
		Station:     connKey, // Updated when a heartbeat names the station
		Conn:        conn,
		LastSeen:    time.Now(),
		ConnectedAt: time.Now(),
	}

	b.mutex.Lock()
	b.activeFeeds[connKey] = feed
	b.mutex.Unlock()

	defer conn.Close()
	defer b.removeFeed(connKey)

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg models.Message
		err := conn.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				b.logger.Warn().Err(err).Msg("WebSocket error")
			}
			break
		}
		b.handleMessage(conn, connKey, &msg)
	}
}

// handleMessage processes a single message from the host
func (b *Bridge) handleMessage(conn *websocket.Conn, connKey string, msg *models.Message) {
	b.logger.Debug().Str("type", string(msg.Type)).Msg("Received message")

	switch msg.Type {
	case models.MessageTypeArchive:
		b.handleArchive(msg)
	case models.MessageTypeHeartbeat:
		b.handleHeartbeat(connKey, msg)
	default:
		b.logger.Warn().Str("type", string(msg.Type)).Msg("Unknown message type")
	}

	b.touchFeed(connKey)
	b.sendAck(conn)
}

// handleArchive turns one archive record into a notification
func (b *Bridge) handleArchive(msg *models.Message) {
	var archive models.ArchiveMessage
	if err := msg.UnmarshalPayload(&archive); err != nil {
		b.logger.Error().Err(err).Msg("Failed to unmarshal archive record")
		return
	}
	if archive.Timestamp <= 0 || archive.IntervalSecs <= 0 {
		b.logger.Warn().
			Int64("timestamp", archive.Timestamp).
			Int("interval_secs", archive.IntervalSecs).
			Msg("Archive record ignored: invalid")
		return
	}

	// The store enforces ordering authoritatively; this gate just keeps
	// obviously stale records from waking the augmentation service.
	b.mutex.Lock()
	if archive.Timestamp <= b.lastTS {
		b.mutex.Unlock()
		b.logger.Warn().
			Int64("timestamp", archive.Timestamp).
			Int64("latest", b.lastTS).
			Msg("Archive record ignored: not newer than last seen")
		return
	}
	b.lastTS = archive.Timestamp
	b.mutex.Unlock()

	snapshot := archive.Snapshot()
	if !b.queue.Push(models.Notification{Snapshot: snapshot}) {
		b.logger.Warn().Time("timestamp", snapshot.Time).Msg("Notification queue full, oldest dropped")
	}
	b.logger.Info().
		Time("timestamp", snapshot.Time).
		Int("observations", len(snapshot.Obs)).
		Msg("Archive record queued")
}

// handleHeartbeat processes a heartbeat message
func (b *Bridge) handleHeartbeat(connKey string, msg *models.Message) {
	var heartbeat models.HeartbeatMessage
	if err := msg.UnmarshalPayload(&heartbeat); err != nil {
		b.logger.Error().Err(err).Msg("Failed to unmarshal heartbeat")
		return
	}

	b.mutex.Lock()
	if heartbeat.Station != "" {
		if feed, ok := b.activeFeeds[connKey]; ok {
			feed.Station = heartbeat.Station
		}
	}
	b.mutex.Unlock()

	b.logger.Debug().Str("station", heartbeat.Station).Int64("uptime", heartbeat.Uptime).Msg("Heartbeat received")
}

// sendAck sends an acknowledgment message
func (b *Bridge) sendAck(conn *websocket.Conn) {
	ack := models.AckMessage{Timestamp: time.Now().Unix(), Status: "ok"}
	msg, err := models.NewMessage(models.MessageTypeAck, ack)
	if err != nil {
		b.logger.Error().Err(err).Msg("Failed to create ack message")
		return
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(msg); err != nil {
		b.logger.Warn().Err(err).Msg("Failed to send ack")
	}
}

// touchFeed updates the last seen timestamp for a feed
func (b *Bridge) touchFeed(connKey string) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	if feed, ok := b.activeFeeds[connKey]; ok {
		feed.LastSeen = time.Now()
	}
}

// removeFeed removes a feed from the active feeds map
func (b *Bridge) removeFeed(connKey string) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	station := connKey
	if feed, ok := b.activeFeeds[connKey]; ok {
		station = feed.Station
	}
	delete(b.activeFeeds, connKey)
	b.logger.Info().Str("station", station).Msg("Host feed disconnected")
}

// ActiveFeeds returns a list of currently connected host feeds.
func (b *Bridge) ActiveFeeds() []FeedConnection {
	b.mutex.RLock()
	defer b.mutex.RUnlock()
	feeds := make([]FeedConnection, 0, len(b.activeFeeds))
	for _, feed := range b.activeFeeds {
		feeds = append(feeds, *feed)
	}
	return feeds
}

// SeedLastTimestamp primes the monotone gate from the store's latest record,
// so restarts do not requeue intervals already archived.
func (b *Bridge) SeedLastTimestamp(ts time.Time) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	if u := ts.Unix(); u > b.lastTS {
		b.lastTS = u
	}
}
