package commands

import (
	"fmt"
	"io"
	"time"

	"github.com/instrkit/instrkit-go/pkg/tracelog"
)

// FilterOptions specifies filtering criteria for the filter command.
type FilterOptions struct {
	Output     string
	SessionID  string
	Driver     string
	Property   string
	Channel    string
	Op         string
	TimeStart  string
	TimeEnd    string
	ErrorsOnly bool
}

// RunFilter filters the trace file and writes matching events to a new file.
func RunFilter(path string, opts FilterOptions) error {
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

	if opts.TimeStart != "" {
		t, err := time.Parse(time.RFC3339, opts.TimeStart)
		if err != nil {
			return fmt.Errorf("invalid time-start format: %w", err)
		}
		filter.TimeStart = &t
	}

	if opts.TimeEnd != "" {
		t, err := time.Parse(time.RFC3339, opts.TimeEnd)
		if err != nil {
			return fmt.Errorf("invalid time-end format: %w", err)
		}
		filter.TimeEnd = &t
	}

	reader, err := tracelog.NewFilteredReader(path, filter)
	if err != nil {
		return fmt.Errorf("failed to open trace file: %w", err)
	}
	defer reader.Close()

	logger, err := tracelog.NewFileLogger(opts.Output)
	if err != nil {
		return fmt.Errorf("failed to create output logger: %w", err)
	}
	defer logger.Close()

	count := 0
	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}

		logger.Log(event)
		count++
	}

	fmt.Printf("Filtered %d events to %s\n", count, opts.Output)
	return nil
}
