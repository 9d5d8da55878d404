package instrument_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/instrkit/instrkit-go/internal/testinstr"
	"github.com/instrkit/instrkit-go/pkg/comms"
	"github.com/instrkit/instrkit-go/pkg/component"
	"github.com/instrkit/instrkit-go/pkg/instrument"
	"github.com/instrkit/instrkit-go/pkg/property"
	"github.com/instrkit/instrkit-go/pkg/tracelog"
	"github.com/instrkit/instrkit-go/pkg/units"
)

// collectLogger keeps trace events in memory.
type collectLogger struct {
	mu     sync.Mutex
	events []tracelog.Event
}

func (c *collectLogger) Log(ev tracelog.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *collectLogger) byOp(op tracelog.Op) []tracelog.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []tracelog.Event
	for _, ev := range c.events {
		if ev.Op == op {
			out = append(out, ev)
		}
	}
	return out
}

func okStatus(*property.Property) (bool, any, error) { return true, nil, nil }

func newSource(t *testing.T, transport comms.Transport, opts instrument.Options) *instrument.Instrument {
	t.Helper()
	spec, err := testinstr.SourceSpec()
	require.NoError(t, err)
	in, err := instrument.New("yokogawa.7651", spec, transport, opts)
	require.NoError(t, err)
	return in
}

func TestNewNeedsTransport(t *testing.T) {
	spec, err := testinstr.SourceSpec()
	require.NoError(t, err)
	_, err = instrument.New("yokogawa.7651", spec, nil, instrument.Options{})
	assert.ErrorIs(t, err, component.ErrDeclaration)
}

func TestQueryPipeline(t *testing.T) {
	tr := testinstr.NewScriptedTransport()
	tr.Replies["F?"] = "1"
	tr.Replies["SV?"] = "+1.000000E+00"
	in := newSource(t, tr, instrument.Options{Status: okStatus})

	v, err := in.Get("voltage")
	require.NoError(t, err)
	q, ok := v.(units.Quantity)
	require.True(t, ok, "voltage should come back unit-tagged, got %T", v)
	assert.InDelta(t, 1.0, q.Magnitude(), 1e-9)
	assert.Equal(t, "V", q.Unit().String())

	// The gating check read function first, then the setpoint.
	assert.Equal(t, []string{"F?", "SV?"}, tr.Queries())

	f, err := in.Get("function")
	require.NoError(t, err)
	assert.Equal(t, "Voltage", f)
	// Served from the cache warmed by the check.
	assert.Equal(t, []string{"F?", "SV?"}, tr.Queries())
}

func TestWritePipeline(t *testing.T) {
	tr := testinstr.NewScriptedTransport()
	tr.Replies["F?"] = "1"
	tr.Replies["R?"] = "10.0"
	trace := &collectLogger{}
	in := newSource(t, tr, instrument.Options{Status: okStatus, Trace: trace})

	require.NoError(t, in.Set("voltage", 2.5))
	assert.Equal(t, []string{"SV2.5"}, tr.Writes())

	writes := trace.byOp(tracelog.OpWrite)
	require.Len(t, writes, 1)
	assert.Equal(t, in.Session(), writes[0].SessionID)
	assert.Equal(t, "yokogawa.7651", writes[0].Driver)
	assert.Equal(t, "voltage", writes[0].Property)
	assert.Equal(t, "SV2.5", writes[0].Command)
	require.Len(t, trace.byOp(tracelog.OpVerify), 1)

	// Out of the selected range.
	err := in.Set("voltage", 12.0)
	assert.ErrorIs(t, err, property.ErrValidation)
	assert.Equal(t, []string{"SV2.5"}, tr.Writes())
}

func TestStatusRegister(t *testing.T) {
	tr := testinstr.NewScriptedTransport()
	tr.Replies["OC"] = "8"
	in := newSource(t, tr, instrument.Options{Status: okStatus})

	v, err := in.Get("status")
	require.NoError(t, err)
	bits, ok := v.(map[string]bool)
	require.True(t, ok)
	assert.True(t, bits["output_stable"])
	assert.False(t, bits["error"])
}

func TestChannelCommands(t *testing.T) {
	tr := testinstr.NewScriptedTransport()
	tr.Replies["CHAN2:STATE?"] = "1"
	in := newSource(t, tr, instrument.Options{Status: okStatus})

	ch, err := in.Root().Channel("outputs", 2)
	require.NoError(t, err)

	enabled, err := ch.Get("enabled")
	require.NoError(t, err)
	assert.Equal(t, true, enabled)
	assert.Equal(t, []string{"CHAN2:STATE?"}, tr.Queries())

	require.NoError(t, ch.Set("enabled", false))
	assert.Equal(t, []string{"CHAN2:STATE 0"}, tr.Writes())
}

func TestVerifyFailure(t *testing.T) {
	tr := testinstr.NewScriptedTransport()
	failing := func(*property.Property) (bool, any, error) { return false, "limit error", nil }
	in := newSource(t, tr, instrument.Options{Status: failing})

	err := in.Set("output", true)
	var commErr *property.CommError
	require.ErrorAs(t, err, &commErr)
	assert.Equal(t, "output", commErr.Property)
	assert.Equal(t, "limit error", commErr.Detail)
}

func TestNoStatusCheck(t *testing.T) {
	tr := testinstr.NewScriptedTransport()
	in := newSource(t, tr, instrument.Options{})

	err := in.Set("output", true)
	assert.ErrorIs(t, err, comms.ErrNotImplemented)
}

func TestRetryReopens(t *testing.T) {
	tr := testinstr.NewScriptedTransport()
	tr.Replies["O?"] = "1"
	trace := &collectLogger{}
	in := newSource(t, tr, instrument.Options{Status: okStatus, Trace: trace})

	require.NoError(t, in.Root().PatchProperty("output", map[string]any{
		property.AttrRetries: 1,
	}))

	tr.FailNext = 1
	v, err := in.Get("output")
	require.NoError(t, err)
	assert.Equal(t, true, v)
	assert.Equal(t, 1, tr.Reopens())
	assert.Len(t, trace.byOp(tracelog.OpReopen), 1)

	queries := trace.byOp(tracelog.OpQuery)
	require.Len(t, queries, 2)
	assert.Equal(t, 1, queries[0].Attempt)
	assert.Equal(t, 2, queries[1].Attempt)
}

func TestShrinkingRangeRejectsSetpoint(t *testing.T) {
	tr := testinstr.NewScriptedTransport()
	tr.Replies["F?"] = "1"
	tr.Replies["R?"] = "10.0"
	in := newSource(t, tr, instrument.Options{Status: okStatus})

	require.NoError(t, in.Set("voltage", 5.0))
	require.NoError(t, in.Set("voltage_range", 0.01))

	// The setpoint limits follow the newly selected range.
	err := in.Set("voltage", 6.0)
	assert.ErrorIs(t, err, property.ErrValidation)
	assert.Equal(t, []string{"SV5", "R0.01"}, tr.Writes())
}

func TestReconnectClearsCache(t *testing.T) {
	tr := testinstr.NewScriptedTransport()
	tr.Replies["O?"] = "1"
	in := newSource(t, tr, instrument.Options{Status: okStatus})

	_, err := in.Get("output")
	require.NoError(t, err)
	_, err = in.Get("output")
	require.NoError(t, err)
	assert.Equal(t, []string{"O?"}, tr.Queries())

	require.NoError(t, in.Reconnect())
	assert.Equal(t, 1, tr.Reopens())

	_, err = in.Get("output")
	require.NoError(t, err)
	assert.Equal(t, []string{"O?", "O?"}, tr.Queries())
}

func TestCloseReleasesTransport(t *testing.T) {
	tr := testinstr.NewScriptedTransport()
	in := newSource(t, tr, instrument.Options{})
	require.NoError(t, in.Close())
	assert.True(t, tr.Closed())
}

func TestRegistry(t *testing.T) {
	factory := func(transport comms.Transport, opts instrument.Options) (*instrument.Instrument, error) {
		spec, err := testinstr.SourceSpec()
		if err != nil {
			return nil, err
		}
		return instrument.New("test.source", spec, transport, opts)
	}

	require.NoError(t, instrument.Register("test.source", factory))
	assert.Error(t, instrument.Register("test.source", factory))
	assert.Error(t, instrument.Register("", factory))

	got, ok := instrument.Lookup("test.source")
	require.True(t, ok)
	in, err := got(testinstr.NewScriptedTransport(), instrument.Options{})
	require.NoError(t, err)
	assert.Equal(t, "test.source", in.Driver())

	assert.Contains(t, instrument.Drivers(), "test.source")

	_, ok = instrument.Lookup("test.ghost")
	assert.False(t, ok)
}

func TestNonStringCommand(t *testing.T) {
	spec, err := component.NewBuilder("odd").
		Prop("raw", property.Options{Get: 42}).
		Build()
	require.NoError(t, err)

	tr := testinstr.NewScriptedTransport()
	in, err := instrument.New("odd", spec, tr, instrument.Options{})
	require.NoError(t, err)

	_, err = in.Get("raw")
	assert.ErrorIs(t, err, component.ErrDeclaration)
	assert.ErrorContains(t, err, fmt.Sprintf("%T", 42))
}
