package testinstr

import (
	"fmt"

	"github.com/instrkit/instrkit-go/pkg/component"
	"github.com/instrkit/instrkit-go/pkg/property"
	"github.com/instrkit/instrkit-go/pkg/validate"
)

// SourceSpec builds the reference voltage-source spec used across the
// framework's tests. It is modeled on a programmable DC source: a
// function selector gating the voltage setpoint, a settable range that
// bounds it, a status register, and a family of output channels.
//
// Wire protocol understood by the scripted replies:
//
//	F?              -> function code (1 voltage, 5 current)
//	F<code>         <- select function
//	O?              -> output state (1 on, 0 off)
//	O<code>         <- switch output
//	SV?             -> voltage setpoint, e.g. +1.000000E+00
//	SV<value>       <- program setpoint
//	R?              -> voltage range in V
//	R<value>        <- select range
//	OC              -> status byte, decimal
//	CHAN<id>:STATE? -> per-channel output state
func SourceSpec() (*component.Spec, error) {
	outputs, err := component.NewBuilder("output_channel").
		Bool("enabled", property.BoolOptions{
			Options: property.Options{Get: "CHAN{ch}:STATE?", Set: "CHAN{ch}:STATE %v"},
			Mapping: map[bool]any{true: 1, false: 0},
		}).
		Caching("enabled", true).
		Build()
	if err != nil {
		return nil, err
	}

	return component.NewBuilder("source").
		Mapping("function", property.MappingOptions{
			Options: property.Options{Get: "F?", Set: "F%v"},
			Mapping: map[any]any{"Voltage": 1, "Current": 5},
		}).
		Bool("output", property.BoolOptions{
			Options: property.Options{Get: "O?", Set: "O%v"},
			Mapping: map[bool]any{true: 1, false: 0},
			Aliases: map[any]bool{"ON": true, "OFF": false},
		}).
		Float("voltage", property.FloatOptions{
			Options: property.Options{
				Get:    "SV?",
				Set:    "SV%v",
				Checks: `{function} == "Voltage"`,
			},
			Unit:  "V",
			Range: "voltage_range",
		}).
		Float("voltage_range", property.FloatOptions{
			Options: property.Options{Get: "R?", Set: "R%v"},
			Unit:    "V",
			Values:  []float64{0.01, 0.1, 1.0, 10.0, 30.0},
		}).
		Register("status", property.RegisterOptions{
			Options: property.Options{Get: "OC"},
			Names: []string{
				"program_setting", "program_running", "error", "output_stable",
				"output", "cal_mode", "ic_card", "cal_switch",
			},
		}).
		RangeHook("voltage_range", voltageRange).
		OnPostSet("voltage_range", discardVoltageRange).
		OnPostSet("function", discardVoltageRange).
		Caching("function", true).
		Caching("output", true).
		Caching("voltage", true).
		Caching("voltage_range", true).
		Channel("outputs", outputs).
		Build()
}

// discardVoltageRange verifies the write, then drops the cached setpoint
// validator: changing the selected range (or the function) moves the
// limits it was derived from.
func discardVoltageRange(p *property.Property, o property.Owner, value, wire any) error {
	if err := property.DefaultPostSet(p, o, value, wire); err != nil {
		return err
	}
	o.InvalidateRange("voltage_range")
	return nil
}

// voltageRange derives the setpoint limits from the selected range.
func voltageRange(o property.Owner) (validate.RangeValidator, error) {
	v, err := o.Member("voltage_range")
	if err != nil {
		return nil, err
	}
	max, ok := magnitude(v)
	if !ok {
		return nil, fmt.Errorf("voltage_range read back a %T, want a float", v)
	}
	return validate.NewFloatRange(-max, max, nil, "V")
}

func magnitude(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case interface{ Magnitude() float64 }:
		return x.Magnitude(), true
	default:
		return 0, false
	}
}
