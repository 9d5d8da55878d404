package comms

import "errors"

// Error classes the dispatch engine distinguishes.
var (
	// ErrCommunication marks a transient transport failure. Operations
	// failing with this class are candidates for the retry/reopen policy.
	ErrCommunication = errors.New("comms: communication failure")

	// ErrNotImplemented marks a pipeline stage the driver never provided.
	// It always propagates immediately and is never retried.
	ErrNotImplemented = errors.New("comms: not implemented")
)

// Transport is the wire-level collaborator of an instrument driver.
// Implementations live outside this module (VISA bindings, TCP sockets,
// serial ports, register buses) and must be safe to call from the single
// goroutine holding the owning instrument's lock.
type Transport interface {
	// Query sends a command and reads the instrument's reply.
	Query(cmd string) (string, error)

	// Write sends a command without reading a reply.
	Write(cmd string) error

	// Reopen tears down and re-establishes the connection. It is called
	// by the retry policy when a communication failure suggests the
	// connection state is suspect.
	Reopen() error

	// Close releases the connection.
	Close() error
}

// Retryable reports whether err belongs to the retryable communication
// class. It is the default classifier used by instruments.
func Retryable(err error) bool {
	return errors.Is(err, ErrCommunication)
}
