package property

import (
	"fmt"
	"sort"
	"strings"
)

// RegisterOptions configures a property presenting an 8-bit status
// register as a name→bool map.
type RegisterOptions struct {
	Options

	// Names labels the register bits from bit 0 to bit 7. Exactly eight
	// entries are required; an empty string marks an unused bit, which
	// is omitted from read results and rejected on writes.
	Names []string

	// Bits is an alternative to Names for sparse registers: a label→bit
	// index map covering only the meaningful bits.
	Bits map[string]uint
}

// NewRegister builds a bit-register property. Reads parse the wire integer
// into a map marking each named bit; writes fold such a map back into a
// byte, leaving unnamed and unmentioned bits clear.
func NewRegister(opts RegisterOptions) (*Property, error) {
	p, err := New(opts.Options)
	if err != nil {
		return nil, err
	}

	bits, err := registerBits(opts)
	if err != nil {
		return nil, err
	}

	p.SetPostGetHook(func(p *Property, _ Owner, value any) (any, error) {
		raw, ok := parseInt64(value)
		if !ok {
			return nil, fmt.Errorf("%s: cannot parse instrument answer %v as a register byte",
				p.name, value)
		}
		fields := make(map[string]bool, len(bits))
		for name, bit := range bits {
			fields[name] = raw&(1<<bit) != 0
		}
		return fields, nil
	})
	p.SetPreSetHook(func(p *Property, _ Owner, value any) (any, error) {
		fields, ok := value.(map[string]bool)
		if !ok {
			return nil, fmt.Errorf("%w: %s takes a map[string]bool, got %T",
				ErrValidation, p.name, value)
		}
		var byteVal int64
		for name, set := range fields {
			bit, known := bits[name]
			if !known {
				return nil, fmt.Errorf("%w: %s has no bit named %q; known bits are %s",
					ErrValidation, p.name, name, describeBits(bits))
			}
			if set {
				byteVal |= 1 << bit
			}
		}
		return byteVal, nil
	})
	p.creation = opts

	return p, nil
}

func registerBits(opts RegisterOptions) (map[string]uint, error) {
	if len(opts.Bits) > 0 {
		if len(opts.Names) > 0 {
			return nil, fmt.Errorf("%w: a register takes either Names or Bits, not both",
				ErrDeclaration)
		}
		bits := make(map[string]uint, len(opts.Bits))
		seen := make(map[uint]string, len(opts.Bits))
		for name, bit := range opts.Bits {
			if name == "" {
				return nil, fmt.Errorf("%w: register bit labels cannot be empty", ErrDeclaration)
			}
			if bit > 7 {
				return nil, fmt.Errorf("%w: register bit %d for %q is out of range 0-7",
					ErrDeclaration, bit, name)
			}
			if other, dup := seen[bit]; dup {
				return nil, fmt.Errorf("%w: register bit %d labelled both %q and %q",
					ErrDeclaration, bit, other, name)
			}
			seen[bit] = name
			bits[name] = bit
		}
		return bits, nil
	}

	if len(opts.Names) != 8 {
		return nil, fmt.Errorf("%w: a register needs exactly 8 bit names, got %d",
			ErrDeclaration, len(opts.Names))
	}
	bits := make(map[string]uint, 8)
	for i, name := range opts.Names {
		if name == "" {
			continue
		}
		if _, dup := bits[name]; dup {
			return nil, fmt.Errorf("%w: duplicate register bit name %q", ErrDeclaration, name)
		}
		bits[name] = uint(i)
	}
	if len(bits) == 0 {
		return nil, fmt.Errorf("%w: a register needs at least one named bit", ErrDeclaration)
	}
	return bits, nil
}

func describeBits(bits map[string]uint) string {
	names := make([]string, 0, len(bits))
	for name := range bits {
		names = append(names, name)
	}
	sort.Strings(names)
	return "{" + strings.Join(names, ", ") + "}"
}
