package tracelog

import (
	"time"
)

// Event represents one transport interaction captured by the pipeline.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// SessionID uniquely identifies the driver session (UUID).
	SessionID string `cbor:"2,keyasint"`

	// Driver is the registered driver name.
	Driver string `cbor:"3,keyasint,omitempty"`

	// Op classifies the interaction.
	Op Op `cbor:"4,keyasint"`

	// Property is the name of the property being served, if any.
	Property string `cbor:"5,keyasint,omitempty"`

	// Channel is the channel id the call was routed to, if any.
	Channel string `cbor:"6,keyasint,omitempty"`

	// Command is the formatted command that went on the wire.
	Command string `cbor:"7,keyasint,omitempty"`

	// Attempt counts retry attempts, starting at 1.
	Attempt int `cbor:"8,keyasint,omitempty"`

	// Value is the wire-level value sent or received.
	Value string `cbor:"9,keyasint,omitempty"`

	// Error is the failure text, empty on success.
	Error string `cbor:"10,keyasint,omitempty"`
}

// Op classifies a traced interaction.
type Op uint8

const (
	// OpQuery is a command with an answer.
	OpQuery Op = 0
	// OpWrite is a command without an answer.
	OpWrite Op = 1
	// OpReopen is a connection reopen between retry attempts.
	OpReopen Op = 2
	// OpVerify is a post-set operation check.
	OpVerify Op = 3
)

// String returns the operation name.
func (o Op) String() string {
	switch o {
	case OpQuery:
		return "QUERY"
	case OpWrite:
		return "WRITE"
	case OpReopen:
		return "REOPEN"
	case OpVerify:
		return "VERIFY"
	default:
		return "UNKNOWN"
	}
}
