package property

import (
	"fmt"
	"sort"
	"strings"

	"github.com/instrkit/instrkit-go/pkg/units"
	"github.com/instrkit/instrkit-go/pkg/validate"
)

// StringOptions configures a string-valued property, optionally restricted
// to an enumeration.
type StringOptions struct {
	Options

	// Values, when non-empty, is the set of accepted strings.
	Values []string
}

// NewString builds a property whose instrument answer is presented as a
// trimmed string.
func NewString(opts StringOptions) (*Property, error) {
	p, err := New(opts.Options)
	if err != nil {
		return nil, err
	}

	p.SetPostGetHook(func(_ *Property, _ Owner, value any) (any, error) {
		return stringify(value), nil
	})
	if len(opts.Values) > 0 {
		allowed := make(map[string]struct{}, len(opts.Values))
		for _, v := range opts.Values {
			allowed[v] = struct{}{}
		}
		p.SetPreSetHook(func(p *Property, _ Owner, value any) (any, error) {
			s := stringify(value)
			if _, ok := allowed[s]; !ok {
				return nil, fmt.Errorf("%w: allowed values for %s are %s, got %q",
					ErrValidation, p.name, describeStrings(opts.Values), s)
			}
			return s, nil
		})
	}
	p.creation = opts

	return p, nil
}

// IntOptions configures an integer-valued property. The value may be
// restricted either to an enumeration or to a range; when both are given
// the range takes precedence.
type IntOptions struct {
	Options

	// Values, when non-empty, is the set of accepted integers.
	Values []int64

	// Range is either a validate.RangeValidator applied as-is, or a
	// string identifier resolved at set time through the owner's range
	// hook (so the bounds can depend on instrument state).
	Range any
}

// NewInt builds a property whose instrument answer is parsed as an int64.
func NewInt(opts IntOptions) (*Property, error) {
	p, err := New(opts.Options)
	if err != nil {
		return nil, err
	}

	p.SetPostGetHook(func(p *Property, _ Owner, value any) (any, error) {
		n, ok := parseInt64(value)
		if !ok {
			return nil, fmt.Errorf("%s: cannot parse instrument answer %v as an integer",
				p.name, value)
		}
		return n, nil
	})

	switch {
	case opts.Range != nil:
		validateRange, err := rangePreSet(opts.Range, nil)
		if err != nil {
			return nil, err
		}
		p.SetPreSetHook(validateRange)
	case len(opts.Values) > 0:
		allowed := make(map[int64]struct{}, len(opts.Values))
		for _, v := range opts.Values {
			allowed[v] = struct{}{}
		}
		p.SetPreSetHook(func(p *Property, _ Owner, value any) (any, error) {
			n, ok := toInt64(value)
			if !ok {
				return nil, fmt.Errorf("%w: %s takes an integer, got %T",
					ErrValidation, p.name, value)
			}
			if _, ok := allowed[n]; !ok {
				return nil, fmt.Errorf("%w: allowed values for %s are %s, got %d",
					ErrValidation, p.name, describeInts(opts.Values), n)
			}
			return n, nil
		})
	}
	p.creation = opts

	return p, nil
}

// FloatOptions configures a float-valued property with optional
// enumeration or range restriction and optional unit handling.
type FloatOptions struct {
	Options

	// Values, when non-empty, is the set of accepted magnitudes.
	Values []float64

	// Range is either a validate.RangeValidator or a string range
	// identifier, as for IntOptions. It takes precedence over Values.
	Range any

	// Unit is the instrument's native unit for this property. When set,
	// reads return a tagged quantity and writes accept either a plain
	// magnitude (assumed native) or a quantity, which is converted to
	// the native unit before validation and stripped to its magnitude
	// for the wire.
	Unit string
}

// NewFloat builds a property whose instrument answer is parsed as a
// float64 or, with a unit declared, a units.Quantity.
func NewFloat(opts FloatOptions) (*Property, error) {
	p, err := New(opts.Options)
	if err != nil {
		return nil, err
	}

	var unit units.Unit
	if opts.Unit != "" {
		unit, err = units.Default().Parse(opts.Unit)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDeclaration, err)
		}
	}

	p.SetPostGetHook(func(p *Property, _ Owner, value any) (any, error) {
		f, ok := parseFloat64(value)
		if !ok {
			return nil, fmt.Errorf("%s: cannot parse instrument answer %v as a float",
				p.name, value)
		}
		if unit != nil {
			return units.Default().Quantity(f, unit), nil
		}
		return f, nil
	})

	// The validation stage, if any.
	var check PreSetFunc
	switch {
	case opts.Range != nil:
		check, err = rangePreSet(opts.Range, unit)
		if err != nil {
			return nil, err
		}
	case len(opts.Values) > 0:
		check = floatEnumPreSet(opts.Values)
	}

	if check != nil {
		p.SetPreSetHook(func(p *Property, o Owner, value any) (any, error) {
			converted, err := toNativeUnit(p, value, unit)
			if err != nil {
				return nil, err
			}
			checked := converted
			if unit != nil {
				// Tag plain magnitudes so a validator declared in a
				// different unit converts instead of misreading them.
				if f, ok := toFloat64(converted); ok {
					checked = units.Default().Quantity(f, unit)
				}
			}
			if _, err := check(p, o, checked); err != nil {
				return nil, err
			}
			return stripMagnitude(converted), nil
		})
	} else if unit != nil {
		p.SetPreSetHook(func(p *Property, _ Owner, value any) (any, error) {
			converted, err := toNativeUnit(p, value, unit)
			if err != nil {
				return nil, err
			}
			return stripMagnitude(converted), nil
		})
	}
	p.creation = opts

	return p, nil
}

// rangePreSet builds the validation stage for a Range option: a literal
// validator is applied directly, a string identifier is resolved through
// the owner on every set so state-dependent bounds stay current.
func rangePreSet(r any, unit units.Unit) (PreSetFunc, error) {
	switch ran := r.(type) {
	case validate.RangeValidator:
		return func(p *Property, _ Owner, value any) (any, error) {
			if !ran.Validate(value) {
				return nil, rangeError(p, value, ran)
			}
			return value, nil
		}, nil
	case string:
		if ran == "" {
			return nil, fmt.Errorf("%w: empty range identifier", ErrDeclaration)
		}
		return func(p *Property, o Owner, value any) (any, error) {
			current, err := o.RangeFor(ran)
			if err != nil {
				return nil, err
			}
			if !current.Validate(value) {
				return nil, rangeError(p, value, current)
			}
			return value, nil
		}, nil
	default:
		return nil, fmt.Errorf(
			"%w: the range option must be a range validator or a string identifier, got %T",
			ErrDeclaration, r)
	}
}

func rangeError(p *Property, value any, r validate.RangeValidator) error {
	return fmt.Errorf("%w: value %v is out of bounds for %s.%s",
		ErrValidation, value, p.name, r.Describe())
}

func floatEnumPreSet(values []float64) PreSetFunc {
	allowed := make(map[float64]struct{}, len(values))
	for _, v := range values {
		allowed[v] = struct{}{}
	}
	return func(p *Property, _ Owner, value any) (any, error) {
		f, ok := comparableFloat(value)
		if !ok {
			return nil, fmt.Errorf("%w: %s takes a number, got %T", ErrValidation, p.name, value)
		}
		if _, ok := allowed[f]; !ok {
			return nil, fmt.Errorf("%w: allowed values for %s are %s, got %g",
				ErrValidation, p.name, describeFloats(values), f)
		}
		return value, nil
	}
}

// toNativeUnit converts a quantity to the property's native unit; plain
// numbers are assumed native and pass through unchanged.
func toNativeUnit(p *Property, value any, unit units.Unit) (any, error) {
	q, ok := value.(units.Quantity)
	if !ok {
		return value, nil
	}
	if unit == nil {
		return value, nil
	}
	converted, err := q.To(unit)
	if err != nil {
		return nil, fmt.Errorf("%w: %s expects %s: %v", ErrValidation, p.name, unit, err)
	}
	return converted, nil
}

// stripMagnitude flattens a quantity to its magnitude for the wire.
func stripMagnitude(value any) any {
	if q, ok := value.(units.Quantity); ok {
		return q.Magnitude()
	}
	return value
}

func stringify(v any) string {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case []byte:
		return strings.TrimSpace(string(s))
	default:
		return fmt.Sprintf("%v", v)
	}
}

func describeStrings(values []string) string {
	sorted := append([]string(nil), values...)
	sort.Strings(sorted)
	return "{" + strings.Join(sorted, ", ") + "}"
}

func describeInts(values []int64) string {
	sorted := append([]int64(nil), values...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	parts := make([]string, len(sorted))
	for i, v := range sorted {
		parts[i] = fmt.Sprintf("%d", v)
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func describeFloats(values []float64) string {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	parts := make([]string, len(sorted))
	for i, v := range sorted {
		parts[i] = fmt.Sprintf("%g", v)
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
