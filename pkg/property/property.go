package property

import (
	"fmt"

	"github.com/instrkit/instrkit-go/pkg/validate"
)

// Custom marks a getter or setter whose behaviour is provided entirely by
// a bound hook rather than a command token: the property is readable (or
// writable) but reaching the default transport stage is a driver bug.
var Custom = customToken{}

type customToken struct{}

func (customToken) String() string { return "custom" }

// Owner is the view a property has of the component instance it runs
// against. The component package provides the canonical implementation;
// tests supply lightweight fakes.
//
// All methods are invoked with the instance's lock already held.
type Owner interface {
	// Member reads another property of the same component through the
	// full get pipeline, cache included. Used by declarative checks.
	Member(name string) (any, error)

	// RangeFor returns the named runtime range validator, computing and
	// caching it on first use.
	RangeFor(id string) (validate.RangeValidator, error)

	// InvalidateRange drops a cached runtime range. Pipeline hooks call
	// this when a set operation changes the instrument state the range
	// was computed from.
	InvalidateRange(id string)

	// DefaultGet performs the generic "send command, read reply"
	// operation for cmd (a property's getter token).
	DefaultGet(p *Property, cmd any) (any, error)

	// DefaultSet performs the generic "send command" operation for cmd
	// (a property's setter token) with the wire-level value.
	DefaultSet(p *Property, cmd any, value any) error

	// CheckOperation reports whether the last operation succeeded,
	// with optional instrument-specific detail.
	CheckOperation(p *Property) (ok bool, detail any, err error)

	// ReopenConnection re-establishes the transport connection between
	// retry attempts.
	ReopenConnection() error

	// Retryable reports whether err is a communication failure worth a
	// reopen-and-retry cycle.
	Retryable(err error) bool
}

// AttemptNotifier is an optional Owner extension. Owners that implement it
// are told which attempt (starting at 1) of the retry policy is about to
// run, so the attempt number can be carried into trace records.
type AttemptNotifier interface {
	NoteAttempt(attempt int)
}

// Hook signatures. The property comes first so a hook shared between
// several properties can still reach the name and configuration of the one
// it currently runs for.
type (
	// PreGetFunc validates that a read is currently allowed.
	PreGetFunc func(p *Property, o Owner) error

	// GetFunc fetches the raw value from the instrument.
	GetFunc func(p *Property, o Owner) (any, error)

	// PostGetFunc converts the raw value to its user representation.
	PostGetFunc func(p *Property, o Owner, value any) (any, error)

	// PreSetFunc validates and converts a user value to its wire form.
	PreSetFunc func(p *Property, o Owner, value any) (any, error)

	// SetFunc sends the wire value to the instrument.
	SetFunc func(p *Property, o Owner, value any) error

	// PostSetFunc verifies a completed set. value is the user form,
	// wire the converted form that was sent.
	PostSetFunc func(p *Property, o Owner, value, wire any) error
)

// Options configures the base behaviour of a property.
type Options struct {
	// Get is the getter command token. nil makes the property
	// write-only; Custom marks a hook-provided getter.
	Get any

	// Set is the setter command token. nil makes the property read-only;
	// Custom marks a hook-provided setter.
	Set any

	// Retries is the number of additional attempts after a
	// communication failure before giving up.
	Retries int

	// Checks holds `;`-separated assertions applied to both the get and
	// the set side (see package doc for the expression language).
	Checks string

	// GetChecks and SetChecks override Checks for one side only.
	GetChecks string
	SetChecks string
}

// Property is the descriptor for one instrument-controlled value. A
// Property is shared by every instance of its declaring component type;
// it must not be mutated after the type's spec is built.
type Property struct {
	name    string
	getter  any
	setter  any
	retries int

	checkGet *checkProgram
	checkSet *checkProgram

	preGet  PreGetFunc
	get     GetFunc
	postGet PostGetFunc
	preSet  PreSetFunc
	set     SetFunc
	postSet PostSetFunc

	// creation records the exact options the property was built with so
	// a derived declaration can rebuild it with modified parameters.
	creation any
}

// New builds a bare property. Most drivers use the specialized
// constructors instead; a bare property moves values verbatim.
//
// A property declared with neither getter nor setter is inert: reads fail
// with ErrNotReadable and writes with ErrNotWritable.
func New(opts Options) (*Property, error) {
	if opts.Retries < 0 {
		return nil, fmt.Errorf("%w: negative retry count %d", ErrDeclaration, opts.Retries)
	}

	p := &Property{
		getter:   opts.Get,
		setter:   opts.Set,
		retries:  opts.Retries,
		get:      defaultGet,
		postGet:  identityPostGet,
		preSet:   identityPreSet,
		set:      defaultSet,
		postSet:  defaultPostSet,
		creation: opts,
	}

	getExpr := opts.GetChecks
	if getExpr == "" {
		getExpr = opts.Checks
	}
	setExpr := opts.SetChecks
	if setExpr == "" {
		setExpr = opts.Checks
	}
	if getExpr != "" {
		prog, err := compileChecks(getExpr, false)
		if err != nil {
			return nil, err
		}
		p.checkGet = prog
	}
	if setExpr != "" {
		prog, err := compileChecks(setExpr, true)
		if err != nil {
			return nil, err
		}
		p.checkSet = prog
	}

	return p, nil
}

// Name returns the attribute name assigned by the owning spec.
func (p *Property) Name() string { return p.name }

// SetName assigns the property's name. It is called once by the spec
// builder; the name is immutable afterwards.
func (p *Property) SetName(name string) {
	if p.name == "" {
		p.name = name
	}
}

// Getter returns the getter command token (nil for write-only).
func (p *Property) Getter() any { return p.getter }

// Setter returns the setter command token (nil for read-only).
func (p *Property) Setter() any { return p.setter }

// Readable reports whether the property can be read.
func (p *Property) Readable() bool { return p.getter != nil }

// Writable reports whether the property can be written.
func (p *Property) Writable() bool { return p.setter != nil }

// Retries returns the configured retry budget.
func (p *Property) Retries() int { return p.retries }

// Creation returns the options value the property was constructed with
// (Options, or the specialized variant for typed constructors). Derived
// specs copy it, tweak fields, and call the constructor again.
func (p *Property) Creation() any { return p.creation }

// Clone returns a property with the same configuration and hook set.
// Spec derivation clones inherited properties before customizing them so
// the base type and its other descendants keep their behaviour.
func (p *Property) Clone() *Property {
	c := *p
	return &c
}

// Hook setters. These mutate the shared descriptor and must only be called
// while a spec is being built, before any instance exists. Per-instance
// customization goes through proxies instead.

// SetPreGetHook replaces the pre-get validation hook.
func (p *Property) SetPreGetHook(f PreGetFunc) { p.preGet = f }

// SetGetHook replaces the fetch stage.
func (p *Property) SetGetHook(f GetFunc) { p.get = f }

// SetPostGetHook replaces the raw-value conversion stage.
func (p *Property) SetPostGetHook(f PostGetFunc) { p.postGet = f }

// SetPreSetHook replaces the validation/conversion stage.
func (p *Property) SetPreSetHook(f PreSetFunc) { p.preSet = f }

// SetSetHook replaces the send stage.
func (p *Property) SetSetHook(f SetFunc) { p.set = f }

// SetPostSetHook replaces the verification stage.
func (p *Property) SetPostSetHook(f PostSetFunc) { p.postSet = f }

// Read runs the get chain against o: checks, PreGet, Get under the retry
// policy, then PostGet. Cache lookup and proxy dispatch happen in the
// component layer before Read is reached; the caller holds the instance
// lock.
func (p *Property) Read(o Owner) (any, error) {
	if p.getter == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotReadable, p.name)
	}

	if p.checkGet != nil {
		if err := p.checkGet.run(p, o, nil); err != nil {
			return nil, err
		}
	}
	if p.preGet != nil {
		if err := p.preGet(p, o); err != nil {
			return nil, err
		}
	}

	var raw any
	err := p.secured(o, func() error {
		var err error
		raw, err = p.get(p, o)
		return err
	})
	if err != nil {
		return nil, err
	}

	return p.postGet(p, o, raw)
}

// Write runs the set chain against o: checks, PreSet, Set under the retry
// policy, then PostSet. The idempotent-set short circuit happens in the
// component layer before Write is reached; the caller holds the instance
// lock.
func (p *Property) Write(o Owner, value any) error {
	if p.setter == nil {
		return fmt.Errorf("%w: %s", ErrNotWritable, p.name)
	}

	if p.checkSet != nil {
		if err := p.checkSet.run(p, o, value); err != nil {
			return err
		}
	}

	wire, err := p.preSet(p, o, value)
	if err != nil {
		return err
	}

	err = p.secured(o, func() error {
		return p.set(p, o, wire)
	})
	if err != nil {
		return err
	}

	if p.postSet != nil {
		return p.postSet(p, o, value, wire)
	}
	return nil
}

// secured runs op under the retry/reopen policy: up to retries+1 attempts,
// reopening the connection before each retry of a communication failure.
// Errors the owner does not classify as communication failures propagate
// immediately.
func (p *Property) secured(o Owner, op func() error) error {
	notify, _ := o.(AttemptNotifier)
	for attempt := 0; ; attempt++ {
		if notify != nil {
			notify.NoteAttempt(attempt + 1)
		}
		err := op()
		if err == nil {
			return nil
		}
		if attempt >= p.retries || !o.Retryable(err) {
			return err
		}
		if rerr := o.ReopenConnection(); rerr != nil {
			return fmt.Errorf("reopening connection for %s: %w", p.name, rerr)
		}
	}
}

// Default pipeline stages.

func defaultGet(p *Property, o Owner) (any, error) {
	return o.DefaultGet(p, p.getter)
}

func defaultSet(p *Property, o Owner, value any) error {
	return o.DefaultSet(p, p.setter, value)
}

func identityPostGet(_ *Property, _ Owner, value any) (any, error) {
	return value, nil
}

func identityPreSet(_ *Property, _ Owner, value any) (any, error) {
	return value, nil
}

func defaultPostSet(p *Property, o Owner, value, wire any) error {
	ok, detail, err := o.CheckOperation(p)
	if err != nil {
		return err
	}
	if !ok {
		return &CommError{Property: p.name, Value: value, Wire: wire, Detail: detail}
	}
	return nil
}

// SkipVerification is a PostSetFunc that disables the default
// post-operation check for one property.
func SkipVerification(_ *Property, _ Owner, _, _ any) error { return nil }

// DefaultPostSet runs the standard post-operation verification. Custom
// post-set hooks that add behaviour on top of it call it first:
//
//	func(p *Property, o Owner, value, wire any) error {
//	    if err := DefaultPostSet(p, o, value, wire); err != nil {
//	        return err
//	    }
//	    o.InvalidateRange("scale_range")
//	    return nil
//	}
func DefaultPostSet(p *Property, o Owner, value, wire any) error {
	return defaultPostSet(p, o, value, wire)
}
