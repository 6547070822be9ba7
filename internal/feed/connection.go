package feed

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/afroash/weatherwd/internal/models"
)

// ConnectionState represents the current state of the bridge connection
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
)

func (cs ConnectionState) String() string {
	switch cs {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Connection manages the WebSocket connection to the archive bridge. Sends
// are lockstep: one archive record, then wait for the ack before the next.
type Connection struct {
	URL                      string
	AuthToken                string
	Station                  string
	conn                     *websocket.Conn
	state                    ConnectionState
	stateMutex               sync.RWMutex
	logger                   zerolog.Logger
	reconnectInterval        time.Duration
	maxReconnectInterval     time.Duration
	currentReconnectInterval time.Duration
	ackTimeout               time.Duration
	startedAt                time.Time
}

// ConnectionConfig holds configuration for the connection
type ConnectionConfig struct {
	URL                  string
	AuthToken            string
	Station              string
	ReconnectInterval    time.Duration
	MaxReconnectInterval time.Duration
	AckTimeout           time.Duration
}

// NewConnection creates a new connection manager
func NewConnection(config ConnectionConfig, logger zerolog.Logger) *Connection {
	if config.ReconnectInterval <= 0 {
		config.ReconnectInterval = 2 * time.Second
	}
	if config.MaxReconnectInterval <= 0 {
		config.MaxReconnectInterval = 2 * time.Minute
	}
	if config.AckTimeout <= 0 {
		config.AckTimeout = 30 * time.Second
	}
	return &Connection{
		URL:                      config.URL,
		AuthToken:                config.AuthToken,
		Station:                  config.Station,
		state:                    StateDisconnected,
		logger:                   logger,
		reconnectInterval:        config.ReconnectInterval,
		maxReconnectInterval:     config.MaxReconnectInterval,
		currentReconnectInterval: config.ReconnectInterval,
		ackTimeout:               config.AckTimeout,
		startedAt:                time.Now(),
	}
}

// setState safely updates the connection state
func (c *Connection) setState(state ConnectionState) {
	c.stateMutex.Lock()
	defer c.stateMutex.Unlock()
	c.state = state
	c.logger.Info().Str("state", state.String()).Msg("Connection state updated")
}

// State returns the current connection state
func (c *Connection) State() ConnectionState {
	c.stateMutex.RLock()
	defer c.stateMutex.RUnlock()
	return c.state
}

// IsConnected returns true if currently connected
func (c *Connection) IsConnected() bool {
	return c.State() == StateConnected
}

// Connect establishes a WebSocket connection to the bridge
func (c *Connection) Connect(ctx context.Context) error {
	c.setState(StateConnecting)
	c.logger.Info().Str("url", c.URL).Msg("Connecting to bridge...")

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.AuthToken)

	conn, resp, err := dialer.DialContext(ctx, c.URL, header)
	if err != nil {
		c.setState(StateDisconnected)
		return fmt.Errorf("dial failed: %w", err)
	}
	defer resp.Body.Close()

	c.conn = conn
	c.setState(StateConnected)
	c.currentReconnectInterval = c.reconnectInterval // reset backoff
	c.logger.Info().Msg("Connected to bridge")

	if err := c.sendHeartbeat(); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to announce station")
		return err
	}

	return nil
}

// WaitBeforeReconnect waits before next connection attempt with exponential
// backoff
func (c *Connection) WaitBeforeReconnect(ctx context.Context) {
	c.logger.Info().Dur("delay", c.currentReconnectInterval).Msg("Waiting before reconnect")
	select {
	case <-time.After(c.currentReconnectInterval):
	case <-ctx.Done():
		return
	}
	c.currentReconnectInterval *= 2
	if c.currentReconnectInterval > c.maxReconnectInterval {
		c.currentReconnectInterval = c.maxReconnectInterval
	}
}

// SendArchive sends one archive record and blocks until the bridge
// acknowledges it
func (c *Connection) SendArchive(record *models.ArchiveMessage) error {
	if !c.IsConnected() {
		return fmt.Errorf("not connected")
	}
	msg, err := models.NewMessage(models.MessageTypeArchive, record)
	if err != nil {
		return fmt.Errorf("failed to create archive message: %w", err)
	}
	if err := c.sendMessage(msg); err != nil {
		return err
	}
	return c.awaitAck()
}

// sendHeartbeat announces the station name
func (c *Connection) sendHeartbeat() error {
	heartbeat := models.HeartbeatMessage{
		Station: c.Station,
		Uptime:  int64(time.Since(c.startedAt).Seconds()),
	}
	msg, err := models.NewMessage(models.MessageTypeHeartbeat, heartbeat)
	if err != nil {
		return err
	}
	if err := c.sendMessage(msg); err != nil {
		return err
	}
	return c.awaitAck()
}

// sendMessage sends a message over the WebSocket
func (c *Connection) sendMessage(msg *models.Message) error {
	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteJSON(msg)
}

// awaitAck reads until the next ack, logging any server errors seen on the
// way
func (c *Connection) awaitAck() error {
	deadline := time.Now().Add(c.ackTimeout)
	for {
		c.conn.SetReadDeadline(deadline)
		var msg models.Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			return fmt.Errorf("awaiting ack: %w", err)
		}
		switch msg.Type {
		case models.MessageTypeAck:
			return nil
		case models.MessageTypeError:
			var errMsg models.ErrorMessage
			if err := msg.UnmarshalPayload(&errMsg); err == nil {
				c.logger.Warn().Str("code", errMsg.Code).Str("msg", errMsg.Message).Msg("Bridge error")
			}
		default:
			c.logger.Debug().Str("type", string(msg.Type)).Msg("Unexpected message type")
		}
	}
}

// Disconnect closes the WebSocket connection
func (c *Connection) Disconnect() {
	c.stateMutex.Lock()
	if c.conn != nil {
		c.conn.Close()
	}
	c.state = StateDisconnected
	c.stateMutex.Unlock()
	c.logger.Info().Msg("Connection disconnected")
}

// Close gracefully shuts down the connection
func (c *Connection) Close() error {
	c.logger.Info().Msg("Closing connection")

	if c.conn != nil {
		c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		c.conn.Close()
	}

	c.setState(StateDisconnected)
	return nil
}
