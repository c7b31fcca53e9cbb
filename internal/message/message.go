// Package message defines the snaplens control protocol.
//
// All messages are newline-delimited JSON: exactly one line per message,
// <json>\n. The AUTH payload is base64-encoded so the token never needs
// JSON escaping.
package message

import (
	"encoding/json"
	"fmt"
	"time"
)

// Type identifies the kind of message.
type Type string

const (
	TypeArm             Type = "ARM"
	TypeArmed           Type = "ARMED"
	TypeMode            Type = "MODE"
	TypeStatus          Type = "STATUS"
	TypeStatusResponse  Type = "STATUS_RESPONSE"
	TypeHistory         Type = "HISTORY"
	TypeHistoryResponse Type = "HISTORY_RESPONSE"
	TypeAuth            Type = "AUTH"
	TypeError           Type = "ERROR"
)

// StatusInfo is the daemon state snapshot carried by a STATUS_RESPONSE.
type StatusInfo struct {
	Version      string     `json:"version"`
	Mode         string     `json:"mode"`
	Paused       bool       `json:"paused"`
	Armed        bool       `json:"armed"`
	Backend      string     `json:"backend"`
	StartedAt    time.Time  `json:"started_at"`
	LastSighting *time.Time `json:"last_sighting,omitempty"`
	LastURL      string     `json:"last_url,omitempty"`
	Scans        int64      `json:"scans"`
	Changes      int64      `json:"changes"`
	Accepted     int64      `json:"accepted"`
	Rejected     int64      `json:"rejected"`
	Delivered    int64      `json:"delivered"`
	Failed       int64      `json:"failed"`
}

// HistoryEntry is one delivery record in a HISTORY_RESPONSE.
type HistoryEntry struct {
	At          time.Time `json:"at"`
	Origin      string    `json:"origin"`
	Fingerprint string    `json:"fingerprint"`
	Reason      string    `json:"reason"`
	URL         string    `json:"url,omitempty"`
	Error       string    `json:"error,omitempty"`
	DurationMS  int64     `json:"duration_ms"`
}

// Message is the top-level wire envelope.
type Message struct {
	// Always present
	Type   Type   `json:"type"`
	Source string `json:"source,omitempty"`

	// ARM — Launch additionally asks the daemon to start the capture
	// tool. The ARMED reply carries the token that was armed.
	Launch bool   `json:"launch,omitempty"`
	Token  string `json:"token,omitempty"`

	// MODE — Mode or Paused set changes state; both unset queries it.
	Mode   string `json:"mode,omitempty"`
	Paused *bool  `json:"paused,omitempty"`

	// AUTH — token, base64-encoded
	Payload string `json:"payload,omitempty"`

	// HISTORY request
	Limit int `json:"limit,omitempty"`

	// STATUS_RESPONSE / HISTORY_RESPONSE
	Status  *StatusInfo    `json:"status,omitempty"`
	Entries []HistoryEntry `json:"entries,omitempty"`

	// ERROR
	Error string `json:"error,omitempty"`
}

// Encode serialises the message to JSON without a trailing newline.
func (m *Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// Decode deserialises a message from raw JSON bytes.
func Decode(b []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("message decode: %w", err)
	}
	return &m, nil
}
