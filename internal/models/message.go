package models

import (
	"encoding/json"
	"time"
)

// MessageType represents the type of WebSocket message on the host bridge.
type MessageType string

const (
	MessageTypeArchive   MessageType = "archive"
	MessageTypeHeartbeat MessageType = "heartbeat"
	MessageTypeAck       MessageType = "ack"
	MessageTypeError     MessageType = "error"
)

// Message is the envelope for all bridge communications.
type Message struct {
	Type      MessageType     `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewMessage creates a new message with the given type and payload.
func NewMessage(msgType MessageType, payload interface{}) (*Message, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Message{
		Type:      msgType,
		Payload:   payloadJSON,
		Timestamp: time.Now(),
	}, nil
}

// ArchiveMessage is the payload for MessageTypeArchive: one committed host
// archive record. Observation keys use the host's field names; missing
// sensors are simply absent keys.
type ArchiveMessage struct {
	Timestamp    int64              `json:"timestamp"` // unix seconds, UTC
	IntervalSecs int                `json:"interval_secs"`
	Observations map[string]float64 `json:"observations"`
	Texts        map[string]string  `json:"texts,omitempty"`
}

// Snapshot converts the wire form into an observation snapshot in metric-wx
// units. The host is expected to send metric-wx already.
func (m *ArchiveMessage) Snapshot() *Snapshot {
	s := NewSnapshot(time.Unix(m.Timestamp, 0).UTC(), time.Duration(m.IntervalSecs)*time.Second)
	for k, v := range m.Observations {
		t := ObsType(k)
		s.Obs[t] = Value{Float: v, Unit: ObsUnit(t)}
	}
	for k, v := range m.Texts {
		s.Text[ObsType(k)] = v
	}
	return s
}

func ObsUnit(t ObsType) Unit {
	switch t {
	case ObsOutTemp, ObsInTemp:
		return UnitCelsius
	case ObsOutHumidity, ObsInHumidity:
		return UnitPercent
	case ObsWindSpeed, ObsWindGust:
		return UnitMps
	case ObsWindDir:
		return UnitDegree
	case ObsRain:
		return UnitMm
	case ObsBarometer:
		return UnitHPa
	case ObsSolarRadiation:
		return UnitWpm2
	}
	return UnitNone
}

// HeartbeatMessage is the payload for MessageTypeHeartbeat.
type HeartbeatMessage struct {
	Station string `json:"station"`
	Uptime  int64  `json:"uptime"`
}

// AckMessage is the payload for MessageTypeAck.
type AckMessage struct {
	Timestamp int64  `json:"timestamp"`
	Status    string `json:"status"`
}

// ErrorMessage is the payload for MessageTypeError.
type ErrorMessage struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// UnmarshalPayload unmarshals the message payload into the provided struct.
func (m *Message) UnmarshalPayload(v interface{}) error {
	return json.Unmarshal(m.Payload, v)
}
