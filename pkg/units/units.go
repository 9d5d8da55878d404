package units

import (
	"errors"
	"fmt"
	"sync"
)

// Unit identifies a parsed unit expression. Units are only meaningful
// within the registry that produced them.
type Unit interface {
	// String returns the unit symbol (e.g. "mV").
	String() string
}

// Quantity is a magnitude tagged with a unit.
type Quantity interface {
	// Magnitude returns the numeric value in the quantity's own unit.
	Magnitude() float64

	// Unit returns the unit the magnitude is expressed in.
	Unit() Unit

	// To converts the quantity to another unit of the same dimension.
	To(u Unit) (Quantity, error)
}

// Registry parses unit expressions and builds quantities.
type Registry interface {
	// Parse resolves a unit expression to a Unit.
	Parse(expr string) (Unit, error)

	// Quantity tags a magnitude with a unit from this registry.
	Quantity(magnitude float64, u Unit) Quantity
}

// Registry errors.
var (
	// ErrRegistrySet is returned when a default registry is installed twice.
	ErrRegistrySet = errors.New("units: default registry already set")

	// ErrUnknownUnit is returned when an expression cannot be parsed.
	ErrUnknownUnit = errors.New("units: unknown unit")

	// ErrIncompatibleUnits is returned when converting across dimensions.
	ErrIncompatibleUnits = errors.New("units: incompatible units")
)

var (
	defaultMu  sync.Mutex
	defaultReg Registry
)

// SetDefault installs the process-wide default registry.
// It returns ErrRegistrySet if a registry has already been installed
// (explicitly or lazily): conversion only works between units declared in
// the same registry, so the default cannot change once in use.
func SetDefault(r Registry) error {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultReg != nil {
		return ErrRegistrySet
	}
	defaultReg = r
	return nil
}

// Default returns the process-wide registry, lazily installing a Linear
// registry if none was set.
func Default() Registry {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultReg == nil {
		defaultReg = NewLinear()
	}
	return defaultReg
}

// resetDefault clears the default registry. Tests only.
func resetDefault() {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultReg = nil
}

// New builds a quantity from an expression using the default registry.
func New(magnitude float64, expr string) (Quantity, error) {
	reg := Default()
	u, err := reg.Parse(expr)
	if err != nil {
		return nil, err
	}
	return reg.Quantity(magnitude, u), nil
}

// linearUnit is a unit with a plain scale factor relative to its base symbol.
type linearUnit struct {
	symbol string
	base   string
	factor float64
	reg    *Linear
}

func (u *linearUnit) String() string { return u.symbol }

// linearQuantity implements Quantity for Linear registries.
type linearQuantity struct {
	mag  float64
	unit *linearUnit
}

func (q *linearQuantity) Magnitude() float64 { return q.mag }
func (q *linearQuantity) Unit() Unit         { return q.unit }

func (q *linearQuantity) To(u Unit) (Quantity, error) {
	target, ok := u.(*linearUnit)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a linear unit", ErrIncompatibleUnits, u)
	}
	if target.base != q.unit.base {
		return nil, fmt.Errorf("%w: cannot convert %s to %s",
			ErrIncompatibleUnits, q.unit.symbol, target.symbol)
	}
	return &linearQuantity{
		mag:  q.mag * q.unit.factor / target.factor,
		unit: target,
	}, nil
}

// Linear is a registry of SI-prefixed symbols with linear scale factors.
type Linear struct {
	mu    sync.Mutex
	bases map[string]struct{}
	cache map[string]*linearUnit
}

// siPrefixes maps SI prefix symbols to scale factors.
var siPrefixes = map[string]float64{
	"p": 1e-12,
	"n": 1e-9,
	"u": 1e-6,
	"m": 1e-3,
	"k": 1e3,
	"M": 1e6,
	"G": 1e9,
}

// defaultBases are the base symbols a Linear registry knows out of the box.
var defaultBases = []string{"V", "A", "W", "Hz", "Ohm", "s", "T", "K", "dB"}

// NewLinear creates a Linear registry with the default base symbols.
func NewLinear(extraBases ...string) *Linear {
	l := &Linear{
		bases: make(map[string]struct{}),
		cache: make(map[string]*linearUnit),
	}
	for _, b := range defaultBases {
		l.bases[b] = struct{}{}
	}
	for _, b := range extraBases {
		l.bases[b] = struct{}{}
	}
	return l
}

// Parse resolves a symbol such as "mV" or "Hz" to a unit.
func (l *Linear) Parse(expr string) (Unit, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if u, ok := l.cache[expr]; ok {
		return u, nil
	}

	// Bare base symbol first: "m" as a prefix must not shadow a base
	// symbol like "mV" parsing, but a plain base always wins.
	if _, ok := l.bases[expr]; ok {
		u := &linearUnit{symbol: expr, base: expr, factor: 1, reg: l}
		l.cache[expr] = u
		return u, nil
	}

	if len(expr) > 1 {
		prefix, rest := expr[:1], expr[1:]
		if factor, ok := siPrefixes[prefix]; ok {
			if _, ok := l.bases[rest]; ok {
				u := &linearUnit{symbol: expr, base: rest, factor: factor, reg: l}
				l.cache[expr] = u
				return u, nil
			}
		}
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownUnit, expr)
}

// Quantity tags a magnitude with a unit produced by this registry.
func (l *Linear) Quantity(magnitude float64, u Unit) Quantity {
	lu, ok := u.(*linearUnit)
	if !ok {
		// Foreign unit: wrap it as an opaque, non-convertible unit.
		lu = &linearUnit{symbol: u.String(), base: u.String(), factor: 1, reg: l}
	}
	return &linearQuantity{mag: magnitude, unit: lu}
}

// Compile-time interface satisfaction checks.
var (
	_ Registry = (*Linear)(nil)
	_ Quantity = (*linearQuantity)(nil)
	_ Unit     = (*linearUnit)(nil)
)
