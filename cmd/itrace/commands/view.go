// Package commands implements the itrace CLI commands.
package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/instrkit/instrkit-go/pkg/tracelog"
)

// ViewOptions specifies criteria for filtering events in the view command.
type ViewOptions struct {
	SessionID  string
	Driver     string
	Property   string
	Channel    string
	Op         string
	ErrorsOnly bool
}

// RunView prints matching events in human-readable form.
func RunView(path string, opts ViewOptions, w io.Writer) error {
	filter := tracelog.Filter{
		SessionID:  opts.SessionID,
		Driver:     opts.Driver,
		Property:   opts.Property,
		Channel:    opts.Channel,
		ErrorsOnly: opts.ErrorsOnly,
	}
	if opts.Op != "" {
		op, err := parseOp(opts.Op)
		if err != nil {
			return err
		}
		filter.Op = &op
	}

	reader, err := tracelog.NewFilteredReader(path, filter)
	if err != nil {
		return fmt.Errorf("failed to open trace file: %w", err)
	}
	defer reader.Close()

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		formatEvent(w, event)
	}
	return nil
}

// formatEvent writes a human-readable representation of the event to w.
func formatEvent(w io.Writer, event tracelog.Event) {
	// Header line: timestamp [sess:id] OP property
	ts := event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z")
	target := event.Property
	if target == "" {
		target = "-"
	}
	if event.Channel != "" {
		target = fmt.Sprintf("%s@%s", target, event.Channel)
	}
	fmt.Fprintf(w, "%s [sess:%s] %-6s %s\n", ts, shortenSessionID(event.SessionID), event.Op, target)

	if event.Driver != "" {
		fmt.Fprintf(w, "  Driver:  %s\n", event.Driver)
	}
	if event.Command != "" {
		fmt.Fprintf(w, "  Command: %s\n", event.Command)
	}
	if event.Value != "" {
		fmt.Fprintf(w, "  Value:   %s\n", event.Value)
	}
	if event.Attempt > 0 {
		fmt.Fprintf(w, "  Attempt: %d\n", event.Attempt)
	}
	if event.Error != "" {
		fmt.Fprintf(w, "  Error:   %s\n", event.Error)
	}

	fmt.Fprintln(w) // Blank line between events
}

// shortenSessionID returns the first 8 characters of the session ID.
func shortenSessionID(id string) string {
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}

// parseOp resolves an operation name given on the command line.
func parseOp(s string) (tracelog.Op, error) {
	switch strings.ToLower(s) {
	case "query":
		return tracelog.OpQuery, nil
	case "write":
		return tracelog.OpWrite, nil
	case "reopen":
		return tracelog.OpReopen, nil
	case "verify":
		return tracelog.OpVerify, nil
	default:
		return 0, fmt.Errorf("unknown operation: %s (supported: query, write, reopen, verify)", s)
	}
}
