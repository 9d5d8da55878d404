package property

import (
	"fmt"
	"sort"
	"strings"
)

// MappingOptions configures a property translating between user-level
// symbolic values and instrument codes.
type MappingOptions struct {
	Options

	// Mapping goes from user value to wire value; the inverse direction
	// is derived from it, so wire values must be unique.
	Mapping map[any]any
}

// NewMapping builds a property that maps user values to wire codes on set
// and wire codes back to user values on get.
//
//	NewMapping(MappingOptions{
//		Options: Options{Get: "OUTP?", Set: "OUTP %v"},
//		Mapping: map[any]any{"On": 1, "Off": 2},
//	})
func NewMapping(opts MappingOptions) (*Property, error) {
	p, err := New(opts.Options)
	if err != nil {
		return nil, err
	}
	if len(opts.Mapping) == 0 {
		return nil, fmt.Errorf("%w: mapping property needs a non-empty mapping", ErrDeclaration)
	}

	forward := make(map[any]any, len(opts.Mapping))
	inverse := make(map[any]any, len(opts.Mapping))
	for user, wire := range opts.Mapping {
		if _, dup := inverse[wire]; dup {
			return nil, fmt.Errorf("%w: duplicate wire value %v in mapping", ErrDeclaration, wire)
		}
		forward[user] = wire
		inverse[wire] = user
	}

	p.SetPostGetHook(func(p *Property, _ Owner, value any) (any, error) {
		user, ok := lookupWire(inverse, value)
		if !ok {
			return nil, fmt.Errorf("%s: instrument answered %v, which maps to no known value",
				p.name, value)
		}
		return user, nil
	})
	p.SetPreSetHook(func(p *Property, _ Owner, value any) (any, error) {
		wire, ok := forward[value]
		if !ok {
			return nil, fmt.Errorf("%w: allowed values for %s are %s, got %v",
				ErrValidation, p.name, describeKeys(forward), value)
		}
		return wire, nil
	})
	p.creation = opts

	return p, nil
}

// BoolOptions configures a boolean property. Aliases let user code pass
// instrument-specific tokens ("ON", 1) in place of true/false.
type BoolOptions struct {
	Options

	// Mapping goes from the boolean state to the wire value.
	Mapping map[bool]any

	// Aliases maps accepted stand-in values to the boolean they mean.
	Aliases map[any]bool
}

// NewBool builds a property presenting an instrument state as a bool.
func NewBool(opts BoolOptions) (*Property, error) {
	p, err := New(opts.Options)
	if err != nil {
		return nil, err
	}
	if len(opts.Mapping) == 0 {
		return nil, fmt.Errorf("%w: bool property needs a non-empty mapping", ErrDeclaration)
	}

	forward := make(map[any]any, len(opts.Mapping))
	inverse := make(map[any]any, len(opts.Mapping))
	for state, wire := range opts.Mapping {
		if _, dup := inverse[wire]; dup {
			return nil, fmt.Errorf("%w: duplicate wire value %v in mapping", ErrDeclaration, wire)
		}
		forward[state] = wire
		inverse[wire] = state
	}
	aliases := make(map[any]bool, len(opts.Aliases))
	for alias, state := range opts.Aliases {
		aliases[alias] = state
	}

	p.SetPostGetHook(func(p *Property, _ Owner, value any) (any, error) {
		state, ok := lookupWire(inverse, value)
		if !ok {
			return nil, fmt.Errorf("%s: instrument answered %v, which maps to no known state",
				p.name, value)
		}
		return state, nil
	})
	p.SetPreSetHook(func(p *Property, _ Owner, value any) (any, error) {
		state, ok := value.(bool)
		if !ok {
			if state, ok = aliases[value]; !ok {
				return nil, fmt.Errorf("%w: %s takes true, false or one of %s, got %v",
					ErrValidation, p.name, describeKeys(mapAnyKeys(aliases)), value)
			}
		}
		return forward[state], nil
	})
	p.creation = opts

	return p, nil
}

// lookupWire resolves a wire value against the inverse mapping. Instruments
// answer strings where drivers declare numbers, so a direct miss falls back
// to numeric equivalence.
func lookupWire(inverse map[any]any, value any) (any, bool) {
	if user, ok := inverse[value]; ok {
		return user, true
	}
	f, ok := parseFloat64(value)
	if !ok {
		if s, sok := value.(string); sok {
			if user, hit := inverse[strings.TrimSpace(s)]; hit {
				return user, true
			}
		}
		return nil, false
	}
	for wire, user := range inverse {
		if wf, wok := comparableFloat(wire); wok && wf == f {
			return user, true
		}
	}
	return nil, false
}

func mapAnyKeys(m map[any]bool) map[any]any {
	out := make(map[any]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// describeKeys renders a mapping's keys sorted, for error messages.
func describeKeys(m map[any]any) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, fmt.Sprintf("%v", k))
	}
	sort.Strings(keys)
	return "{" + strings.Join(keys, ", ") + "}"
}
