package models

import (
	"encoding/json"
	"time"
)

// FrameSource identifies which transport delivered a raw frame.
type FrameSource string

const (
	SourcePush FrameSource = "push"
	SourcePoll FrameSource = "poll"
)

// RawFrame is the unit of work flowing from the stream manager and the
// pollers into the dispatcher. Data holds the untouched payload exactly as
// it arrived on the wire; normalization happens downstream so a malformed
// frame can never take the connection down.
type RawFrame struct {
	Event      string
	Source     FrameSource
	Data       json.RawMessage
	ReceivedAt time.Time
}

// ConnectionState is the lifecycle state of the push channel.
type ConnectionState string

const (
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateDisconnected ConnectionState = "disconnected"
)

// ConnectionStatus is the read-only snapshot of the stream manager exposed
// to consumers. The manager owns the mutable state; everyone else sees
// copies of this struct.
type ConnectionStatus struct {
	State      ConnectionState `json:"state"`
	LastError  string          `json:"last_error,omitempty"`
	LastUpdate time.Time       `json:"last_update"`
	Reconnects int64           `json:"reconnects"`
}
