// Package instrument binds a component specification to a transport.
//
// An Instrument is the canonical component.Backend: it formats command
// tokens, dispatches them over a comms.Transport, verifies writes through
// a driver-supplied status check, and captures every wire interaction as
// a tracelog event correlated by a per-session UUID.
//
// Concrete drivers build a Spec once (package init is a good place),
// register a Factory under their model name, and hand construction to
// callers:
//
//	func init() {
//	    instrument.Register("yokogawa.7651", New7651)
//	}
//
// Command tokens are plain strings. Inside channels the token may carry
// the {ch} placeholder, replaced by the channel id before dispatch. Set
// tokens carry fmt verbs for the wire-level value ("VOLT %v").
package instrument
