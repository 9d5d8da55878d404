package property

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/instrkit/instrkit-go/pkg/units"
	"github.com/instrkit/instrkit-go/pkg/validate"
)

func TestMappingProperty(t *testing.T) {
	p, err := NewMapping(MappingOptions{
		Options: Options{Get: "OUTP?", Set: "OUTP %v"},
		Mapping: map[any]any{"On": 1, "Off": 2},
	})
	require.NoError(t, err)
	p.SetName("output")

	t.Run("wire codes come back as user values", func(t *testing.T) {
		o := newFakeOwner()
		o.reply = 1

		v, err := p.Read(o)
		require.NoError(t, err)
		assert.Equal(t, "On", v)
	})

	t.Run("string answers match numeric codes", func(t *testing.T) {
		o := newFakeOwner()
		o.reply = "2"

		v, err := p.Read(o)
		require.NoError(t, err)
		assert.Equal(t, "Off", v)
	})

	t.Run("user values are translated before sending", func(t *testing.T) {
		o := newFakeOwner()
		require.NoError(t, p.Write(o, "Off"))
		assert.Equal(t, 2, o.lastValue)
	})

	t.Run("unmapped user values fail validation", func(t *testing.T) {
		o := newFakeOwner()
		err := p.Write(o, "Standby")
		assert.ErrorIs(t, err, ErrValidation)
		assert.Equal(t, 0, o.sets)
	})

	t.Run("unexpected instrument answers are reported", func(t *testing.T) {
		o := newFakeOwner()
		o.reply = 9

		_, err := p.Read(o)
		assert.ErrorContains(t, err, "maps to no known value")
	})

	t.Run("empty mappings are declaration errors", func(t *testing.T) {
		_, err := NewMapping(MappingOptions{Options: Options{Get: "X?"}})
		assert.ErrorIs(t, err, ErrDeclaration)
	})
}

func TestBoolProperty(t *testing.T) {
	p, err := NewBool(BoolOptions{
		Options: Options{Get: "OUTP?", Set: "OUTP %v"},
		Mapping: map[bool]any{true: "ON", false: "OFF"},
		Aliases: map[any]bool{"High": true, "Low": false, 1: true, 0: false},
	})
	require.NoError(t, err)
	p.SetName("output")

	t.Run("answers become booleans", func(t *testing.T) {
		o := newFakeOwner()
		o.reply = "ON"

		v, err := p.Read(o)
		require.NoError(t, err)
		assert.Equal(t, true, v)
	})

	t.Run("booleans and aliases both set the state", func(t *testing.T) {
		o := newFakeOwner()
		require.NoError(t, p.Write(o, false))
		assert.Equal(t, "OFF", o.lastValue)

		require.NoError(t, p.Write(o, "High"))
		assert.Equal(t, "ON", o.lastValue)

		require.NoError(t, p.Write(o, 0))
		assert.Equal(t, "OFF", o.lastValue)
	})

	t.Run("unknown aliases fail validation", func(t *testing.T) {
		o := newFakeOwner()
		err := p.Write(o, "Maybe")
		assert.ErrorIs(t, err, ErrValidation)
	})
}

func TestStringProperty(t *testing.T) {
	p, err := NewString(StringOptions{
		Options: Options{Get: "MODE?", Set: "MODE %v"},
		Values:  []string{"voltage", "current"},
	})
	require.NoError(t, err)
	p.SetName("mode")

	t.Run("answers are trimmed strings", func(t *testing.T) {
		o := newFakeOwner()
		o.reply = "voltage\r\n"

		v, err := p.Read(o)
		require.NoError(t, err)
		assert.Equal(t, "voltage", v)
	})

	t.Run("enumeration restricts writes", func(t *testing.T) {
		o := newFakeOwner()
		require.NoError(t, p.Write(o, "current"))

		err := p.Write(o, "resistance")
		assert.ErrorIs(t, err, ErrValidation)
	})
}

func TestIntProperty(t *testing.T) {
	t.Run("answers parse as integers", func(t *testing.T) {
		p, err := NewInt(IntOptions{Options: Options{Get: "AVG?"}})
		require.NoError(t, err)
		p.SetName("averages")

		o := newFakeOwner()
		o.reply = "16"
		v, err := p.Read(o)
		require.NoError(t, err)
		assert.Equal(t, int64(16), v)

		// Instruments often answer integers in float notation.
		o.reply = "+1.000000E+00"
		v, err = p.Read(o)
		require.NoError(t, err)
		assert.Equal(t, int64(1), v)
	})

	t.Run("enumeration restricts writes", func(t *testing.T) {
		p, err := NewInt(IntOptions{
			Options: Options{Set: "AVG %v"},
			Values:  []int64{1, 2, 4, 8},
		})
		require.NoError(t, err)
		p.SetName("averages")

		o := newFakeOwner()
		require.NoError(t, p.Write(o, 4))
		assert.ErrorIs(t, p.Write(o, 3), ErrValidation)
	})

	t.Run("a literal range validates writes", func(t *testing.T) {
		r, err := validate.NewIntRange(1, 4, 2)
		require.NoError(t, err)
		p, err := NewInt(IntOptions{Options: Options{Set: "CHAN %v"}, Range: r})
		require.NoError(t, err)
		p.SetName("channel")

		o := newFakeOwner()
		require.NoError(t, p.Write(o, 3))
		assert.ErrorIs(t, p.Write(o, 2), ErrValidation)
		assert.ErrorIs(t, p.Write(o, 5), ErrValidation)
	})

	t.Run("a range identifier resolves through the owner", func(t *testing.T) {
		p, err := NewInt(IntOptions{Options: Options{Set: "CHAN %v"}, Range: "channels"})
		require.NoError(t, err)
		p.SetName("channel")

		r, err := validate.NewIntRange(1, 8, nil)
		require.NoError(t, err)
		o := newFakeOwner()
		o.ranges["channels"] = r

		require.NoError(t, p.Write(o, 8))
		assert.ErrorIs(t, p.Write(o, 9), ErrValidation)
	})

	t.Run("a range of the wrong type is a declaration error", func(t *testing.T) {
		_, err := NewInt(IntOptions{Options: Options{Set: "CHAN %v"}, Range: 42})
		assert.ErrorIs(t, err, ErrDeclaration)
	})
}

func TestFloatProperty(t *testing.T) {
	t.Run("answers parse as floats", func(t *testing.T) {
		p, err := NewFloat(FloatOptions{Options: Options{Get: "VOLT?"}})
		require.NoError(t, err)
		p.SetName("voltage")

		o := newFakeOwner()
		o.reply = "+1.500000E+00"
		v, err := p.Read(o)
		require.NoError(t, err)
		assert.Equal(t, 1.5, v)
	})

	t.Run("a unit tags the answer as a quantity", func(t *testing.T) {
		p, err := NewFloat(FloatOptions{Options: Options{Get: "VOLT?"}, Unit: "V"})
		require.NoError(t, err)
		p.SetName("voltage")

		o := newFakeOwner()
		o.reply = "1.5"
		v, err := p.Read(o)
		require.NoError(t, err)

		q, ok := v.(units.Quantity)
		require.True(t, ok)
		assert.Equal(t, 1.5, q.Magnitude())
		assert.Equal(t, "V", q.Unit().String())
	})

	t.Run("quantities convert to the native unit on write", func(t *testing.T) {
		p, err := NewFloat(FloatOptions{Options: Options{Set: "VOLT %v"}, Unit: "V"})
		require.NoError(t, err)
		p.SetName("voltage")

		mv, err := units.New(1500, "mV")
		require.NoError(t, err)

		o := newFakeOwner()
		require.NoError(t, p.Write(o, mv))
		assert.Equal(t, 1.5, o.lastValue)
	})

	t.Run("plain magnitudes are assumed native", func(t *testing.T) {
		p, err := NewFloat(FloatOptions{Options: Options{Set: "VOLT %v"}, Unit: "V"})
		require.NoError(t, err)
		p.SetName("voltage")

		o := newFakeOwner()
		require.NoError(t, p.Write(o, 2.5))
		assert.Equal(t, 2.5, o.lastValue)
	})

	t.Run("ranges validate after unit conversion", func(t *testing.T) {
		r, err := validate.NewFloatRange(0.0, 10.0, nil, "V")
		require.NoError(t, err)
		p, err := NewFloat(FloatOptions{Options: Options{Set: "VOLT %v"}, Range: r, Unit: "V"})
		require.NoError(t, err)
		p.SetName("voltage")

		o := newFakeOwner()
		mv, err := units.New(2500, "mV")
		require.NoError(t, err)
		require.NoError(t, p.Write(o, mv))
		assert.Equal(t, 2.5, o.lastValue)

		kv, err := units.New(1, "kV")
		require.NoError(t, err)
		assert.ErrorIs(t, p.Write(o, kv), ErrValidation)
	})

	t.Run("enumeration restricts writes", func(t *testing.T) {
		p, err := NewFloat(FloatOptions{
			Options: Options{Set: "NPLC %v"},
			Values:  []float64{0.02, 0.2, 1, 10},
		})
		require.NoError(t, err)
		p.SetName("nplc")

		o := newFakeOwner()
		require.NoError(t, p.Write(o, 0.2))
		assert.ErrorIs(t, p.Write(o, 0.5), ErrValidation)
	})

	t.Run("incompatible quantities fail validation", func(t *testing.T) {
		p, err := NewFloat(FloatOptions{Options: Options{Set: "VOLT %v"}, Unit: "V"})
		require.NoError(t, err)
		p.SetName("voltage")

		amps, err := units.New(1, "A")
		require.NoError(t, err)

		o := newFakeOwner()
		assert.ErrorIs(t, p.Write(o, amps), ErrValidation)
	})
}

func TestRegisterProperty(t *testing.T) {
	p, err := NewRegister(RegisterOptions{
		Options: Options{Get: "*ESR?", Set: "*ESR %v"},
		Names: []string{
			"operation complete", "", "query error", "device error",
			"execution error", "command error", "", "power on",
		},
	})
	require.NoError(t, err)
	p.SetName("event_status")

	t.Run("the wire byte becomes named bits", func(t *testing.T) {
		o := newFakeOwner()
		o.reply = "10" // 0b1010

		v, err := p.Read(o)
		require.NoError(t, err)
		fields, ok := v.(map[string]bool)
		require.True(t, ok)

		assert.True(t, fields["device error"])
		assert.False(t, fields["operation complete"])
		assert.False(t, fields["query error"])
		assert.NotContains(t, fields, "", "unnamed bits are omitted")
		assert.Len(t, fields, 6)
	})

	t.Run("named bits fold back into a byte", func(t *testing.T) {
		o := newFakeOwner()
		err := p.Write(o, map[string]bool{"device error": true, "operation complete": true})
		require.NoError(t, err)
		assert.Equal(t, int64(0b1001), o.lastValue)
	})

	t.Run("unknown bit names fail validation", func(t *testing.T) {
		o := newFakeOwner()
		err := p.Write(o, map[string]bool{"parity": true})
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("sparse registers declare labelled bits", func(t *testing.T) {
		p, err := NewRegister(RegisterOptions{
			Options: Options{Get: "OC"},
			Bits:    map[string]uint{"cal": 0, "overload": 3},
		})
		require.NoError(t, err)
		p.SetName("status")

		o := newFakeOwner()
		o.reply = 8
		v, err := p.Read(o)
		require.NoError(t, err)
		assert.Equal(t, map[string]bool{"cal": false, "overload": true}, v)
	})

	t.Run("wrong arity is a declaration error", func(t *testing.T) {
		_, err := NewRegister(RegisterOptions{
			Options: Options{Get: "X?"},
			Names:   []string{"a", "b"},
		})
		assert.ErrorIs(t, err, ErrDeclaration)
	})
}
