package validate

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/instrkit/instrkit-go/pkg/units"
)

// Range errors.
var (
	// ErrNoBounds is returned when a range has neither minimum nor maximum.
	ErrNoBounds = errors.New("validate: range needs a minimum or a maximum")

	// ErrBoundType is returned when a bound has the wrong numeric type.
	ErrBoundType = errors.New("validate: invalid bound type")
)

// RangeValidator checks that a value lies within bounds and on a step grid.
type RangeValidator interface {
	// Validate reports whether the value satisfies the range.
	Validate(value any) bool

	// Describe returns a human-readable summary of the present bounds,
	// suitable for appending to validation error messages.
	Describe() string
}

// stepEpsilon is the tolerance of the float step-grid check.
const stepEpsilon = 1e-9

// IntRange validates integers against bounds and an exact step grid.
type IntRange struct {
	min, max, step          int64
	hasMin, hasMax, hasStep bool
}

// NewIntRange builds an integer range. min, max and step may each be nil;
// non-nil values must be of an integer kind and at least one bound must be
// present.
func NewIntRange(min, max, step any) (*IntRange, error) {
	r := &IntRange{}
	var err error
	if r.min, r.hasMin, err = intBound("min", min); err != nil {
		return nil, err
	}
	if r.max, r.hasMax, err = intBound("max", max); err != nil {
		return nil, err
	}
	if r.step, r.hasStep, err = intBound("step", step); err != nil {
		return nil, err
	}
	if !r.hasMin && !r.hasMax {
		return nil, ErrNoBounds
	}
	if r.hasStep && r.step == 0 {
		r.hasStep = false
	}
	return r, nil
}

// Validate reports whether value is an integer inside the range and on the
// step grid. The grid is anchored at the minimum when present, at the
// maximum otherwise.
func (r *IntRange) Validate(value any) bool {
	v, ok := toInt64(value)
	if !ok {
		return false
	}
	if r.hasMin && v < r.min {
		return false
	}
	if r.hasMax && v > r.max {
		return false
	}
	if r.hasStep {
		anchor := r.max
		if r.hasMin {
			anchor = r.min
		}
		if (v-anchor)%r.step != 0 {
			return false
		}
	}
	return true
}

// Describe returns the present bounds, e.g. " Minimum 1. Maximum 4. Step 2."
func (r *IntRange) Describe() string {
	var b strings.Builder
	if r.hasMin {
		fmt.Fprintf(&b, " Minimum %d.", r.min)
	}
	if r.hasMax {
		fmt.Fprintf(&b, " Maximum %d.", r.max)
	}
	if r.hasStep {
		fmt.Fprintf(&b, " Step %d.", r.step)
	}
	return b.String()
}

// FloatRange validates floats against bounds and a tolerant step grid.
// When a unit is declared, quantities are converted to it before
// validation; bare floats are assumed to already be in that unit.
type FloatRange struct {
	min, max, step          float64
	hasMin, hasMax, hasStep bool
	unit                    units.Unit
}

// NewFloatRange builds a float range. min, max and step may each be nil;
// non-nil values must be of a float kind and at least one bound must be
// present. unit is an optional unit expression resolved against the
// default registry.
func NewFloatRange(min, max, step any, unit string) (*FloatRange, error) {
	r := &FloatRange{}
	var err error
	if r.min, r.hasMin, err = floatBound("min", min); err != nil {
		return nil, err
	}
	if r.max, r.hasMax, err = floatBound("max", max); err != nil {
		return nil, err
	}
	if r.step, r.hasStep, err = floatBound("step", step); err != nil {
		return nil, err
	}
	if !r.hasMin && !r.hasMax {
		return nil, ErrNoBounds
	}
	if r.hasStep && r.step == 0 {
		r.hasStep = false
	}
	if unit != "" {
		u, err := units.Default().Parse(unit)
		if err != nil {
			return nil, err
		}
		r.unit = u
	}
	return r, nil
}

// Unit returns the unit the bounds are expressed in, or nil.
func (r *FloatRange) Unit() units.Unit { return r.unit }

// Validate reports whether value lies inside the range and on the step
// grid, within a fixed floating-point tolerance. Quantities are converted
// to the range's unit first; a quantity that cannot be converted fails
// validation.
func (r *FloatRange) Validate(value any) bool {
	var v float64
	switch q := value.(type) {
	case units.Quantity:
		if r.unit != nil {
			converted, err := q.To(r.unit)
			if err != nil {
				return false
			}
			v = converted.Magnitude()
		} else {
			v = q.Magnitude()
		}
	default:
		f, ok := toFloat64(value)
		if !ok {
			return false
		}
		v = f
	}

	if r.hasMin && v < r.min {
		return false
	}
	if r.hasMax && v > r.max {
		return false
	}
	if r.hasStep {
		anchor := r.max
		if r.hasMin {
			anchor = r.min
		}
		ratio := round9(math.Abs((v - anchor) / r.step))
		_, frac := math.Modf(ratio)
		if math.Abs(frac) >= stepEpsilon {
			return false
		}
	}
	return true
}

// Describe returns the present bounds, e.g. " Minimum 0.5. Maximum 2.5."
func (r *FloatRange) Describe() string {
	var b strings.Builder
	if r.hasMin {
		fmt.Fprintf(&b, " Minimum %g.", r.min)
	}
	if r.hasMax {
		fmt.Fprintf(&b, " Maximum %g.", r.max)
	}
	if r.hasStep {
		fmt.Fprintf(&b, " Step %g.", r.step)
	}
	if r.unit != nil {
		fmt.Fprintf(&b, " Unit %s.", r.unit)
	}
	return b.String()
}

// round9 rounds to 9 decimal places where float64 still has that much
// precision; larger magnitudes are returned unchanged, matching the
// tolerance of the step check.
func round9(x float64) float64 {
	scaled := x * 1e9
	if math.Abs(scaled) >= 1<<53 {
		return x
	}
	return math.Round(scaled) / 1e9
}

func intBound(name string, v any) (int64, bool, error) {
	if v == nil {
		return 0, false, nil
	}
	n, ok := toInt64(v)
	if !ok {
		return 0, false, fmt.Errorf("%w: %s of an int range must be an integer, got %T",
			ErrBoundType, name, v)
	}
	return n, true, nil
}

func floatBound(name string, v any) (float64, bool, error) {
	if v == nil {
		return 0, false, nil
	}
	f, ok := toFloat64(v)
	if !ok {
		return 0, false, fmt.Errorf("%w: %s of a float range must be numeric, got %T",
			ErrBoundType, name, v)
	}
	return f, true, nil
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), true
	default:
		return 0, false
	}
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		if i, ok := toInt64(v); ok {
			return float64(i), true
		}
		return 0, false
	}
}

// Compile-time interface satisfaction checks.
var (
	_ RangeValidator = (*IntRange)(nil)
	_ RangeValidator = (*FloatRange)(nil)
)
