package component

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/instrkit/instrkit-go/pkg/comms"
	"github.com/instrkit/instrkit-go/pkg/property"
	"github.com/instrkit/instrkit-go/pkg/validate"
)

// scriptBackend answers transport calls from a cmd→reply table and records
// every call for inspection.
type scriptBackend struct {
	replies map[any]any

	calls   []Call
	values  []any
	reopens int
	fail    int

	verifyFail bool
}

func newScriptBackend() *scriptBackend {
	return &scriptBackend{replies: map[any]any{}}
}

func (s *scriptBackend) DefaultGet(c Call) (any, error) {
	s.calls = append(s.calls, c)
	if s.fail > 0 {
		s.fail--
		return nil, fmt.Errorf("%w: no answer", comms.ErrCommunication)
	}
	if r, ok := s.replies[c.Cmd]; ok {
		return r, nil
	}
	return nil, fmt.Errorf("unexpected command %v", c.Cmd)
}

func (s *scriptBackend) DefaultSet(c Call, value any) error {
	s.calls = append(s.calls, c)
	s.values = append(s.values, value)
	if s.fail > 0 {
		s.fail--
		return fmt.Errorf("%w: no answer", comms.ErrCommunication)
	}
	return nil
}

func (s *scriptBackend) CheckOperation(*property.Property) (bool, any, error) {
	return !s.verifyFail, nil, nil
}

func (s *scriptBackend) Reopen() error {
	s.reopens++
	return nil
}

func (s *scriptBackend) Retryable(err error) bool {
	return errors.Is(err, comms.ErrCommunication)
}

// dmmSpec builds a small reference component: a voltage source with a
// trigger subsystem and a measurement channel family.
func dmmSpec(t *testing.T) *Spec {
	t.Helper()

	trigger, err := NewBuilder("trigger").
		String("source", property.StringOptions{
			Options: property.Options{Get: "TRIG:SOUR?", Set: "TRIG:SOUR %v"},
			Values:  []string{"bus", "external", "immediate"},
		}).
		Caching("source", true).
		Build()
	require.NoError(t, err)

	channel, err := NewBuilder("measure_channel").
		Float("reading", property.FloatOptions{
			Options: property.Options{Get: "READ?"},
		}).
		Bool("enabled", property.BoolOptions{
			Options: property.Options{Get: "STATE?", Set: "STATE %v"},
			Mapping: map[bool]any{true: 1, false: 0},
		}).
		Caching("enabled", true).
		Build()
	require.NoError(t, err)

	spec, err := NewBuilder("dmm").
		Float("voltage", property.FloatOptions{
			Options: property.Options{Get: "VOLT?", Set: "VOLT %v"},
		}).
		Bool("output", property.BoolOptions{
			Options: property.Options{Get: "OUTP?", Set: "OUTP %v"},
			Mapping: map[bool]any{true: 1, false: 0},
		}).
		Caching("voltage", true).
		Caching("output", true).
		Sub("trigger", trigger).
		Channel("channels", channel).
		Build()
	require.NoError(t, err)

	return spec
}

func TestBuilder(t *testing.T) {
	t.Run("constructor errors surface from Build", func(t *testing.T) {
		_, err := NewBuilder("broken").
			Int("averages", property.IntOptions{
				Options: property.Options{Set: "AVG %v"},
				Range:   3.14,
			}).
			Build()
		assert.ErrorIs(t, err, ErrDeclaration)
	})

	t.Run("duplicate local declarations are rejected", func(t *testing.T) {
		_, err := NewBuilder("broken").
			Prop("voltage", property.Options{Get: "VOLT?"}).
			Prop("voltage", property.Options{Get: "VOLT2?"}).
			Build()
		assert.ErrorIs(t, err, ErrDeclaration)
	})

	t.Run("hooks must target a declared property", func(t *testing.T) {
		_, err := NewBuilder("broken").
			OnPostGet("ghost", func(_ *property.Property, _ property.Owner, v any) (any, error) {
				return v, nil
			}).
			Build()
		assert.ErrorIs(t, err, ErrDeclaration)
		assert.ErrorContains(t, err, "ghost")
	})

	t.Run("a name cannot be both sub-component and channel", func(t *testing.T) {
		aux, err := NewBuilder("aux").Build()
		require.NoError(t, err)
		_, err = NewBuilder("broken").Sub("io", aux).Channel("io", aux).Build()
		assert.ErrorIs(t, err, ErrDeclaration)
	})
}

func TestDerive(t *testing.T) {
	base, err := NewBuilder("base").
		String("mode", property.StringOptions{
			Options: property.Options{Get: "MODE?", Set: "MODE %v"},
		}).
		Build()
	require.NoError(t, err)

	derived, err := Derive("derived", base).
		OnPostGet("mode", func(_ *property.Property, _ property.Owner, v any) (any, error) {
			return "custom:" + v.(string), nil
		}).
		Build()
	require.NoError(t, err)

	back := newScriptBackend()
	back.replies["MODE?"] = "volt"

	t.Run("customizing clones the inherited property", func(t *testing.T) {
		assert.NotSame(t, base.Property("mode"), derived.Property("mode"))

		bi, err := New(base, back, Config{})
		require.NoError(t, err)
		di, err := New(derived, back, Config{})
		require.NoError(t, err)

		v, err := bi.Get("mode")
		require.NoError(t, err)
		assert.Equal(t, "volt", v, "the base keeps its behaviour")

		v, err = di.Get("mode")
		require.NoError(t, err)
		assert.Equal(t, "custom:volt", v)
	})

	t.Run("local redeclaration wins over the base", func(t *testing.T) {
		redecl, err := Derive("redecl", base).
			Prop("mode", property.Options{Get: "MODE:RAW?"}).
			Build()
		require.NoError(t, err)
		assert.Equal(t, "MODE:RAW?", redecl.Property("mode").Getter())
		assert.Equal(t, "MODE?", base.Property("mode").Getter())
	})

	t.Run("inherited properties stay shared until customized", func(t *testing.T) {
		plain, err := Derive("plain", base).Build()
		require.NoError(t, err)
		assert.Same(t, base.Property("mode"), plain.Property("mode"))
	})
}

func TestInstanceCaching(t *testing.T) {
	spec := dmmSpec(t)

	t.Run("permitted properties are read once", func(t *testing.T) {
		back := newScriptBackend()
		back.replies["VOLT?"] = "1.5"

		inst, err := New(spec, back, Config{})
		require.NoError(t, err)

		v, err := inst.Get("voltage")
		require.NoError(t, err)
		assert.Equal(t, 1.5, v)

		v, err = inst.Get("voltage")
		require.NoError(t, err)
		assert.Equal(t, 1.5, v)
		assert.Len(t, back.calls, 1, "the second read is served from cache")
	})

	t.Run("clearing one name restores transport reads", func(t *testing.T) {
		back := newScriptBackend()
		back.replies["VOLT?"] = "1.5"

		inst, err := New(spec, back, Config{})
		require.NoError(t, err)

		_, err = inst.Get("voltage")
		require.NoError(t, err)
		inst.ClearCache("voltage")

		_, err = inst.Get("voltage")
		require.NoError(t, err)
		assert.Len(t, back.calls, 2)
	})

	t.Run("permission overrides disable caching per name", func(t *testing.T) {
		back := newScriptBackend()
		back.replies["VOLT?"] = "1.5"

		inst, err := New(spec, back, Config{
			Permissions: map[string]any{"voltage": false},
		})
		require.NoError(t, err)

		_, err = inst.Get("voltage")
		require.NoError(t, err)
		_, err = inst.Get("voltage")
		require.NoError(t, err)
		assert.Len(t, back.calls, 2)
	})

	t.Run("disabling caching affects the whole tree", func(t *testing.T) {
		back := newScriptBackend()
		back.replies["TRIG:SOUR?"] = "bus"

		inst, err := New(spec, back, Config{DisableCaching: true})
		require.NoError(t, err)

		trig, err := inst.Sub("trigger")
		require.NoError(t, err)

		_, err = trig.Get("source")
		require.NoError(t, err)
		_, err = trig.Get("source")
		require.NoError(t, err)
		assert.Len(t, back.calls, 2)
	})

	t.Run("idempotent set skips the transport", func(t *testing.T) {
		back := newScriptBackend()

		inst, err := New(spec, back, Config{})
		require.NoError(t, err)

		require.NoError(t, inst.Set("voltage", 2.5))
		require.NoError(t, inst.Set("voltage", 2.5))
		assert.Len(t, back.values, 1)

		require.NoError(t, inst.Set("voltage", 3.0))
		assert.Len(t, back.values, 2)
	})

	t.Run("check cache reports the hierarchy", func(t *testing.T) {
		back := newScriptBackend()
		back.replies["VOLT?"] = "1.5"
		back.replies["TRIG:SOUR?"] = "bus"

		inst, err := New(spec, back, Config{
			Permissions: map[string]any{"trigger": true},
		})
		require.NoError(t, err)

		_, err = inst.Get("voltage")
		require.NoError(t, err)
		trig, err := inst.Sub("trigger")
		require.NoError(t, err)
		_, err = trig.Get("source")
		require.NoError(t, err)

		cache := inst.CheckCache()
		assert.Equal(t, 1.5, cache["voltage"])
		assert.Equal(t, map[string]any{"source": "bus"}, cache["trigger"])

		named := inst.CheckCache("voltage", "trigger.source")
		assert.Equal(t, 1.5, named["voltage"])
		assert.Equal(t, map[string]any{"source": "bus"}, named["trigger"])
	})

	t.Run("dotted names clear nested caches", func(t *testing.T) {
		back := newScriptBackend()
		back.replies["TRIG:SOUR?"] = "bus"

		inst, err := New(spec, back, Config{
			Permissions: map[string]any{"trigger": true},
		})
		require.NoError(t, err)

		trig, err := inst.Sub("trigger")
		require.NoError(t, err)
		_, err = trig.Get("source")
		require.NoError(t, err)

		inst.ClearCache("trigger.source")
		_, err = trig.Get("source")
		require.NoError(t, err)
		assert.Len(t, back.calls, 2)
	})
}

func TestSubsystems(t *testing.T) {
	spec := dmmSpec(t)
	back := newScriptBackend()
	back.replies["TRIG:SOUR?"] = "external"

	inst, err := New(spec, back, Config{})
	require.NoError(t, err)

	trig, err := inst.Sub("trigger")
	require.NoError(t, err)

	v, err := trig.Get("source")
	require.NoError(t, err)
	assert.Equal(t, "external", v)
	require.Len(t, back.calls, 1)
	assert.Nil(t, back.calls[0].Channel, "subsystem calls carry no channel id")

	_, err = inst.Sub("ghost")
	assert.Error(t, err)
}

func TestChannels(t *testing.T) {
	spec := dmmSpec(t)

	t.Run("instances are lazy and cached per id", func(t *testing.T) {
		back := newScriptBackend()
		inst, err := New(spec, back, Config{})
		require.NoError(t, err)

		ch1, err := inst.Channel("channels", 1)
		require.NoError(t, err)
		again, err := inst.Channel("channels", 1)
		require.NoError(t, err)
		assert.Same(t, ch1, again)

		ch2, err := inst.Channel("channels", 2)
		require.NoError(t, err)
		assert.NotSame(t, ch1, ch2)
		assert.Equal(t, 1, ch1.ChannelID())
		assert.Equal(t, 2, ch2.ChannelID())
	})

	t.Run("transport calls carry the channel id", func(t *testing.T) {
		back := newScriptBackend()
		back.replies["READ?"] = "4.2"

		inst, err := New(spec, back, Config{})
		require.NoError(t, err)
		ch, err := inst.Channel("channels", 3)
		require.NoError(t, err)

		v, err := ch.Get("reading")
		require.NoError(t, err)
		assert.Equal(t, 4.2, v)
		require.Len(t, back.calls, 1)
		assert.Equal(t, 3, back.calls[0].Channel)
	})

	t.Run("channel caching follows nested permissions", func(t *testing.T) {
		back := newScriptBackend()
		back.replies["STATE?"] = 1

		inst, err := New(spec, back, Config{
			Permissions: map[string]any{"channels": map[string]any{"enabled": true}},
		})
		require.NoError(t, err)
		ch, err := inst.Channel("channels", 1)
		require.NoError(t, err)

		_, err = ch.Get("enabled")
		require.NoError(t, err)
		_, err = ch.Get("enabled")
		require.NoError(t, err)
		assert.Len(t, back.calls, 1)
	})

	t.Run("channels are cache-disabled unless mentioned", func(t *testing.T) {
		back := newScriptBackend()
		back.replies["STATE?"] = 1

		inst, err := New(spec, back, Config{})
		require.NoError(t, err)
		ch, err := inst.Channel("channels", 1)
		require.NoError(t, err)

		_, err = ch.Get("enabled")
		require.NoError(t, err)
		_, err = ch.Get("enabled")
		require.NoError(t, err)
		assert.Len(t, back.calls, 2)
	})
}

func TestRangeHooks(t *testing.T) {
	calls := 0
	spec, err := NewBuilder("source").
		Float("scale", property.FloatOptions{
			Options: property.Options{Get: "SCAL?", Set: "SCAL %v"},
		}).
		Float("level", property.FloatOptions{
			Options: property.Options{Set: "LEV %v"},
			Range:   "level",
		}).
		Caching("scale", true).
		RangeHook("level", func(o property.Owner) (validate.RangeValidator, error) {
			calls++
			scale, err := o.Member("scale")
			if err != nil {
				return nil, err
			}
			return validate.NewFloatRange(0.0, scale.(float64), nil, "")
		}).
		Build()
	require.NoError(t, err)

	back := newScriptBackend()
	back.replies["SCAL?"] = "10"

	inst, err := New(spec, back, Config{})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"level"}, spec.DeclaredRanges())

	require.NoError(t, inst.Set("level", 5.0))
	assert.ErrorIs(t, inst.Set("level", 15.0), property.ErrValidation)
	assert.Equal(t, 1, calls, "the validator is cached")

	inst.DiscardRange("level")
	require.NoError(t, inst.Set("level", 5.0))
	assert.Equal(t, 2, calls)
}

func TestInstancePatching(t *testing.T) {
	spec := dmmSpec(t)
	back := newScriptBackend()
	back.replies["VOLT?"] = "1.5"

	a, err := New(spec, back, Config{DisableCaching: true})
	require.NoError(t, err)
	b, err := New(spec, back, Config{DisableCaching: true})
	require.NoError(t, err)

	require.NoError(t, a.PatchProperty("voltage", map[string]any{
		property.AttrPostGet: property.PostGetFunc(
			func(_ *property.Property, _ property.Owner, v any) (any, error) {
				return -1.0, nil
			}),
	}))

	v, err := a.Get("voltage")
	require.NoError(t, err)
	assert.Equal(t, -1.0, v)

	v, err = b.Get("voltage")
	require.NoError(t, err)
	assert.Equal(t, 1.5, v, "the sibling instance is unaffected")

	require.NoError(t, a.UnpatchProperty("voltage"))
	v, err = a.Get("voltage")
	require.NoError(t, err)
	assert.Equal(t, 1.5, v)

	assert.Error(t, a.UnpatchProperty("voltage"), "nothing left to unpatch")
}

func TestRetryThroughBackend(t *testing.T) {
	spec := dmmSpec(t)

	retried, err := Derive("retrying", spec).
		Float("voltage", property.FloatOptions{
			Options: property.Options{Get: "VOLT?", Retries: 2},
		}).
		Build()
	require.NoError(t, err)

	back := newScriptBackend()
	back.replies["VOLT?"] = "1.5"
	back.fail = 2

	inst, err := New(retried, back, Config{DisableCaching: true})
	require.NoError(t, err)

	v, err := inst.Get("voltage")
	require.NoError(t, err)
	assert.Equal(t, 1.5, v)
	assert.Equal(t, 2, back.reopens)

	require.Len(t, back.calls, 3)
	for n, c := range back.calls {
		assert.Equal(t, n+1, c.Attempt)
	}
}
