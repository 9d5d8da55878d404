// Package tracelog provides structured communication tracing for
// instrument drivers.
//
// This package defines the Logger interface and Event type for capturing
// pipeline-level activity: queries, writes, reopen cycles and
// verification results. It is separate from operational logging (slog):
// the trace provides a complete machine-readable record of everything a
// driver said to an instrument, for debugging and analysis.
//
// # Basic Usage
//
// Drivers configure tracing by providing a Logger implementation:
//
//	// For development: log to console via slog
//	cfg.Trace = tracelog.NewSlogAdapter(slog.Default())
//
//	// For production: write to binary file
//	cfg.Trace, _ = tracelog.NewFileLogger("/var/log/instrkit/psu.itrace")
//
//	// Both: use MultiLogger
//	cfg.Trace = tracelog.NewMultiLogger(
//	    tracelog.NewSlogAdapter(slog.Default()),
//	    fileLogger,
//	)
//
// # File Format
//
// Trace files use CBOR encoding with .itrace extension; Reader streams
// them back, optionally filtered.
package tracelog
