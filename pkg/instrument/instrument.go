package instrument

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/instrkit/instrkit-go/pkg/comms"
	"github.com/instrkit/instrkit-go/pkg/component"
	"github.com/instrkit/instrkit-go/pkg/property"
	"github.com/instrkit/instrkit-go/pkg/tracelog"
)

// ChannelToken is the placeholder in command tokens replaced by the id of
// the enclosing channel, e.g. "CHAN{ch}:VOLT?".
const ChannelToken = "{ch}"

// StatusFunc checks whether the last operation succeeded on the physical
// instrument. Drivers typically query a status register here. The detail
// value ends up in the communication error when the check fails.
type StatusFunc func(p *property.Property) (ok bool, detail any, err error)

// Options configures an Instrument beyond its spec and transport. The
// zero value works: caching follows the spec, no tracing, no operation
// check, communication errors classified by comms.Retryable.
type Options struct {
	// Config tunes caching of the component tree.
	Config component.Config

	// Logger receives operational logs. May be nil.
	Logger *slog.Logger

	// Trace receives one event per wire interaction. May be nil.
	Trace tracelog.Logger

	// Status verifies writes. When nil, properties relying on the
	// default post-set stage fail with comms.ErrNotImplemented;
	// drivers either provide it or mark properties SkipVerification.
	Status StatusFunc

	// Retryable classifies errors for the retry policy. Defaults to
	// comms.Retryable.
	Retryable func(error) bool
}

// Instrument is a driver session: one component tree bound to one
// transport connection, identified by a session UUID.
type Instrument struct {
	driver    string
	session   string
	transport comms.Transport
	logger    *slog.Logger
	trace     tracelog.Logger
	status    StatusFunc
	retryable func(error) bool

	root *component.Instance
}

// New binds spec to a transport under the given driver name.
func New(driver string, spec *component.Spec, transport comms.Transport, opts Options) (*Instrument, error) {
	if transport == nil {
		return nil, fmt.Errorf("%w: instrument %s needs a transport", component.ErrDeclaration, driver)
	}
	in := &Instrument{
		driver:    driver,
		session:   uuid.NewString(),
		transport: transport,
		logger:    opts.Logger,
		trace:     opts.Trace,
		status:    opts.Status,
		retryable: opts.Retryable,
	}
	if in.trace == nil {
		in.trace = tracelog.NoopLogger{}
	}
	if in.retryable == nil {
		in.retryable = comms.Retryable
	}
	root, err := component.New(spec, in, opts.Config)
	if err != nil {
		return nil, err
	}
	in.root = root
	in.debug("instrument session opened", "driver", driver, "session", in.session)
	return in, nil
}

// Driver returns the driver name.
func (in *Instrument) Driver() string { return in.driver }

// Session returns the session UUID correlating trace events.
func (in *Instrument) Session() string { return in.session }

// Root returns the root component instance. Sub-components and channels
// hang off it.
func (in *Instrument) Root() *component.Instance { return in.root }

// Get reads a root-level property.
func (in *Instrument) Get(name string) (any, error) { return in.root.Get(name) }

// Set writes a root-level property.
func (in *Instrument) Set(name string, value any) error { return in.root.Set(name, value) }

// Reconnect reopens the transport and drops every cached value: the
// instrument state after a reconnect is suspect.
func (in *Instrument) Reconnect() error {
	if err := in.transport.Reopen(); err != nil {
		return err
	}
	in.root.ClearCache()
	in.debug("instrument reconnected", "driver", in.driver, "session", in.session)
	return nil
}

// Close releases the transport connection.
func (in *Instrument) Close() error {
	in.debug("instrument session closed", "driver", in.driver, "session", in.session)
	return in.transport.Close()
}

// DefaultGet formats the command token and queries the transport.
func (in *Instrument) DefaultGet(c component.Call) (any, error) {
	cmd, err := in.renderCommand(c)
	if err != nil {
		return nil, err
	}
	reply, err := in.transport.Query(cmd)
	in.emit(tracelog.OpQuery, c, cmd, reply, err)
	if err != nil {
		in.debug("query failed", "command", cmd, "error", err)
		return nil, err
	}
	return reply, nil
}

// DefaultSet formats the command token with the wire-level value and
// writes it to the transport.
func (in *Instrument) DefaultSet(c component.Call, value any) error {
	cmd, err := in.renderCommand(c)
	if err != nil {
		return err
	}
	if strings.ContainsRune(cmd, '%') {
		cmd = fmt.Sprintf(cmd, value)
	}
	err = in.transport.Write(cmd)
	in.emit(tracelog.OpWrite, c, cmd, fmt.Sprint(value), err)
	if err != nil {
		in.debug("write failed", "command", cmd, "error", err)
	}
	return err
}

// CheckOperation delegates to the configured status function.
func (in *Instrument) CheckOperation(p *property.Property) (bool, any, error) {
	if in.status == nil {
		return false, nil, fmt.Errorf("%w: instrument %s has no operation check",
			comms.ErrNotImplemented, in.driver)
	}
	ok, detail, err := in.status(p)
	ev := in.event(tracelog.OpVerify)
	ev.Property = p.Name()
	if !ok && detail != nil {
		ev.Value = fmt.Sprint(detail)
	}
	if err != nil {
		ev.Error = err.Error()
	} else if !ok {
		ev.Error = "operation check failed"
	}
	in.trace.Log(ev)
	return ok, detail, err
}

// Reopen re-establishes the transport connection between retry attempts.
// The value cache is left alone here; Reconnect handles user-initiated
// reconnects and the retry path re-reads whatever it needed anyway.
func (in *Instrument) Reopen() error {
	err := in.transport.Reopen()
	ev := in.event(tracelog.OpReopen)
	if err != nil {
		ev.Error = err.Error()
	}
	in.trace.Log(ev)
	if in.logger != nil {
		in.logger.Warn("reopened connection", "driver", in.driver, "session", in.session, "error", err)
	}
	return err
}

// Retryable reports whether err belongs to the retryable class.
func (in *Instrument) Retryable(err error) bool { return in.retryable(err) }

func (in *Instrument) renderCommand(c component.Call) (string, error) {
	cmd, ok := c.Cmd.(string)
	if !ok {
		return "", fmt.Errorf("%w: property %s carries a %T command token, want string",
			component.ErrDeclaration, c.Property.Name(), c.Cmd)
	}
	if strings.Contains(cmd, ChannelToken) {
		if c.Channel == nil {
			return "", fmt.Errorf("%w: command %q needs a channel id", component.ErrDeclaration, cmd)
		}
		cmd = strings.ReplaceAll(cmd, ChannelToken, fmt.Sprint(c.Channel))
	}
	return cmd, nil
}

func (in *Instrument) event(op tracelog.Op) tracelog.Event {
	return tracelog.Event{
		Timestamp: time.Now().UTC(),
		SessionID: in.session,
		Driver:    in.driver,
		Op:        op,
	}
}

func (in *Instrument) emit(op tracelog.Op, c component.Call, cmd, value string, err error) {
	ev := in.event(op)
	ev.Command = cmd
	ev.Value = value
	if c.Property != nil {
		ev.Property = c.Property.Name()
	}
	if c.Channel != nil {
		ev.Channel = fmt.Sprint(c.Channel)
	}
	ev.Attempt = c.Attempt
	if err != nil {
		ev.Error = err.Error()
	}
	in.trace.Log(ev)
}

func (in *Instrument) debug(msg string, args ...any) {
	if in.logger != nil {
		in.logger.Debug(msg, args...)
	}
}
