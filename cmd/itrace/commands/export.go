package commands

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/instrkit/instrkit-go/pkg/tracelog"
)

// RunExport exports the trace file to the specified format.
func RunExport(path, format, output string) error {
	reader, err := tracelog.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open trace file: %w", err)
	}
	defer reader.Close()

	// Determine output writer
	var w io.Writer = os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	switch format {
	case "jsonl":
		return exportJSONL(reader, w)
	case "csv":
		return exportCSV(reader, w)
	default:
		return fmt.Errorf("unknown format: %s (supported: jsonl, csv)", format)
	}
}

// jsonEvent mirrors tracelog.Event with stable JSON field names and a
// readable operation label.
type jsonEvent struct {
	Timestamp string `json:"timestamp"`
	SessionID string `json:"session_id"`
	Driver    string `json:"driver,omitempty"`
	Op        string `json:"op"`
	Property  string `json:"property,omitempty"`
	Channel   string `json:"channel,omitempty"`
	Command   string `json:"command,omitempty"`
	Attempt   int    `json:"attempt,omitempty"`
	Value     string `json:"value,omitempty"`
	Error     string `json:"error,omitempty"`
}

func exportJSONL(reader *tracelog.Reader, w io.Writer) error {
	encoder := json.NewEncoder(w)
	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		out := jsonEvent{
			Timestamp: event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z"),
			SessionID: event.SessionID,
			Driver:    event.Driver,
			Op:        event.Op.String(),
			Property:  event.Property,
			Channel:   event.Channel,
			Command:   event.Command,
			Attempt:   event.Attempt,
			Value:     event.Value,
			Error:     event.Error,
		}
		if err := encoder.Encode(out); err != nil {
			return fmt.Errorf("failed to encode event: %w", err)
		}
	}
	return nil
}

func exportCSV(reader *tracelog.Reader, w io.Writer) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	header := []string{"timestamp", "session_id", "driver", "op", "property", "channel", "command", "attempt", "value", "error"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}

		attempt := ""
		if event.Attempt > 0 {
			attempt = strconv.Itoa(event.Attempt)
		}
		row := []string{
			event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z"),
			event.SessionID,
			event.Driver,
			event.Op.String(),
			event.Property,
			event.Channel,
			event.Command,
			attempt,
			event.Value,
			event.Error,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	return nil
}
