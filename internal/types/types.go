package types

import "time"

// Frame represents a single encoded image received on a connection
type Frame struct {
	Seq        uint64
	Data       []byte
	ReceivedAt time.Time
	// Release hands the backing buffer back to its source. It may be nil.
	Release func()
}

// ConnState is the lifecycle of one stream connection
type ConnState int32

const (
	StateConnecting ConnState = iota
	StateOpen
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Binding ties a drawing surface to the stream path that feeds it
type Binding struct {
	Surface string `yaml:"surface" json:"surface"`
	Path    string `yaml:"path" json:"path"`
}

// SessionRecord is one journaled connection, as stored in Postgres
type SessionRecord struct {
	ID             string
	Surface        string
	Address        string
	OpenedAt       time.Time
	ClosedAt       *time.Time
	FramesReceived int64
	FramesDrawn    int64
	DecodeFailures int64
	CloseReason    string
}
