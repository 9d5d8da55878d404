// Command itrace is a tool for viewing and analyzing instrument trace files.
//
// Trace files are created by attaching a tracelog.FileLogger to an
// instrument session.
//
// Usage:
//
//	itrace <command> [flags] <file.itrace>
//
// Commands:
//
//	view     View trace file in human-readable format
//	export   Export trace file to JSONL or CSV format
//	filter   Filter trace file and write to new file
//	stats    Show statistics about the trace file
//
// Examples:
//
//	# View all events
//	itrace view session.itrace
//
//	# View only writes
//	itrace view --op write session.itrace
//
//	# View failures across all operations
//	itrace view --errors session.itrace
//
//	# Export to JSONL
//	itrace export --format jsonl session.itrace
//
//	# Filter by property and save to new file
//	itrace filter --property voltage -o voltage.itrace session.itrace
//
//	# Show statistics
//	itrace stats session.itrace
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/instrkit/instrkit-go/cmd/itrace/commands"
)

const usage = `itrace - Instrument Trace Analyzer

Usage:
  itrace <command> [flags] <file.itrace>

Commands:
  view     View trace file in human-readable format
  export   Export trace file to JSONL or CSV format
  filter   Filter trace file and write to new file
  stats    Show statistics about the trace file

Use "itrace <command> -help" for more information about a command.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "view":
		runView(args)
	case "export":
		runExport(args)
	case "filter":
		runFilter(args)
	case "stats":
		runStats(args)
	case "-h", "-help", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
}

func runView(args []string) {
	fs := flag.NewFlagSet("view", flag.ExitOnError)
	session := fs.String("session", "", "only events of this session id")
	driver := fs.String("driver", "", "only events of this driver")
	prop := fs.String("property", "", "only events of this property")
	channel := fs.String("channel", "", "only events routed to this channel id")
	op := fs.String("op", "", "only events of this operation (query, write, reopen, verify)")
	errorsOnly := fs.Bool("errors", false, "only failed operations")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `itrace view - View trace file in human-readable format

Usage:
  itrace view [flags] <file.itrace>

Flags:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: trace file path required")
		fs.Usage()
		os.Exit(1)
	}

	opts := commands.ViewOptions{
		SessionID:  *session,
		Driver:     *driver,
		Property:   *prop,
		Channel:    *channel,
		Op:         *op,
		ErrorsOnly: *errorsOnly,
	}
	if err := commands.RunView(fs.Arg(0), opts, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runExport(args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	format := fs.String("format", "jsonl", "output format: jsonl or csv")
	output := fs.String("o", "", "output file (default stdout)")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `itrace export - Export trace file to JSONL or CSV format

Usage:
  itrace export [flags] <file.itrace>

Flags:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: trace file path required")
		fs.Usage()
		os.Exit(1)
	}

	if err := commands.RunExport(fs.Arg(0), *format, *output); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runFilter(args []string) {
	fs := flag.NewFlagSet("filter", flag.ExitOnError)
	output := fs.String("o", "", "output trace file (required)")
	session := fs.String("session", "", "only events of this session id")
	driver := fs.String("driver", "", "only events of this driver")
	prop := fs.String("property", "", "only events of this property")
	channel := fs.String("channel", "", "only events routed to this channel id")
	op := fs.String("op", "", "only events of this operation (query, write, reopen, verify)")
	timeStart := fs.String("time-start", "", "only events at or after this RFC3339 time")
	timeEnd := fs.String("time-end", "", "only events at or before this RFC3339 time")
	errorsOnly := fs.Bool("errors", false, "only failed operations")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `itrace filter - Filter trace file and write to new file

Usage:
  itrace filter [flags] -o <out.itrace> <file.itrace>

Flags:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: trace file path required")
		fs.Usage()
		os.Exit(1)
	}
	if *output == "" {
		fmt.Fprintln(os.Stderr, "Error: output file (-o) required")
		fs.Usage()
		os.Exit(1)
	}

	opts := commands.FilterOptions{
		Output:     *output,
		SessionID:  *session,
		Driver:     *driver,
		Property:   *prop,
		Channel:    *channel,
		Op:         *op,
		TimeStart:  *timeStart,
		TimeEnd:    *timeEnd,
		ErrorsOnly: *errorsOnly,
	}
	if err := commands.RunFilter(fs.Arg(0), opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runStats(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `itrace stats - Show statistics about the trace file

Usage:
  itrace stats <file.itrace>

`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: trace file path required")
		fs.Usage()
		os.Exit(1)
	}

	if err := commands.RunStats(fs.Arg(0), os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
