// Package units defines the quantity abstraction used by unit-aware
// properties.
//
// The framework never performs unit arithmetic itself: it only tags float
// values with a unit on the way out of an instrument and converts
// user-supplied quantities to a property's native unit on the way in. Both
// operations go through the narrow Quantity and Registry interfaces, so an
// application can plug in any unit library it likes.
//
// A process-wide default registry is used by property constructors that
// parse unit expressions at declaration time. Applications that need a
// specific registry must install it once, before declaring any unit-aware
// property:
//
//	if err := units.SetDefault(myRegistry); err != nil {
//	    return err
//	}
//
// SetDefault follows a set-once contract: installing a second registry is a
// configuration error, because quantities from different registries cannot
// be converted into one another.
//
// The Linear registry shipped with this package handles SI-prefixed symbols
// (nV, mV, kHz, ...) with plain scale factors. It is sufficient for tests
// and simple drivers; real applications typically install an adapter over a
// full unit library.
package units
