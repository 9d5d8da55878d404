// Package comms defines the contract between the property framework and
// the transport layer that actually talks to an instrument.
//
// The framework never implements a wire protocol. It formats command
// tokens, hands them to a Transport, and classifies the errors that come
// back. Two error classes matter to the dispatch engine:
//
//   - ErrCommunication marks transient transport failures. The retry
//     policy of a property treats these as recoverable: the connection is
//     reopened and the operation retried, up to the property's configured
//     attempt budget.
//   - ErrNotImplemented marks a missing driver implementation (a default
//     pipeline stage was reached that the driver never provided). It is
//     never retried.
//
// Transport implementations wrap their own failures with ErrCommunication:
//
//	return fmt.Errorf("%w: read timeout on %s", comms.ErrCommunication, addr)
package comms
