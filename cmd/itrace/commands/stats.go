package commands

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/instrkit/instrkit-go/pkg/tracelog"
)

// Stats holds aggregate statistics about a trace file.
type Stats struct {
	TotalEvents int
	EventsByOp  map[tracelog.Op]int
	Sessions    map[string]*SessionStats
	Errors      int
	TimeRange   struct {
		Start time.Time
		End   time.Time
	}
}

// SessionStats holds statistics for a single driver session.
type SessionStats struct {
	FirstSeen time.Time
	LastSeen  time.Time
	Events    int
	Driver    string
	Reopens   int
	Errors    int
}

// RunStats analyzes the trace file and prints statistics.
func RunStats(path string, w io.Writer) error {
	reader, err := tracelog.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open trace file: %w", err)
	}
	defer reader.Close()

	stats := &Stats{
		EventsByOp: make(map[tracelog.Op]int),
		Sessions:   make(map[string]*SessionStats),
	}

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}

		stats.TotalEvents++
		stats.EventsByOp[event.Op]++

		// Track time range
		if stats.TimeRange.Start.IsZero() || event.Timestamp.Before(stats.TimeRange.Start) {
			stats.TimeRange.Start = event.Timestamp
		}
		if event.Timestamp.After(stats.TimeRange.End) {
			stats.TimeRange.End = event.Timestamp
		}

		// Track session stats
		sess, ok := stats.Sessions[event.SessionID]
		if !ok {
			sess = &SessionStats{
				FirstSeen: event.Timestamp,
				LastSeen:  event.Timestamp,
			}
			stats.Sessions[event.SessionID] = sess
		}
		sess.Events++
		if event.Timestamp.After(sess.LastSeen) {
			sess.LastSeen = event.Timestamp
		}
		if event.Driver != "" && sess.Driver == "" {
			sess.Driver = event.Driver
		}
		if event.Op == tracelog.OpReopen {
			sess.Reopens++
		}

		if event.Error != "" {
			stats.Errors++
			sess.Errors++
		}
	}

	printStats(w, stats)
	return nil
}

func printStats(w io.Writer, stats *Stats) {
	fmt.Fprintln(w, "=== Instrument Trace Statistics ===")
	fmt.Fprintln(w)

	// Time range
	if stats.TotalEvents > 0 {
		fmt.Fprintf(w, "Time Range: %s to %s\n",
			stats.TimeRange.Start.Format(time.RFC3339),
			stats.TimeRange.End.Format(time.RFC3339))
		fmt.Fprintf(w, "Duration:   %s\n", stats.TimeRange.End.Sub(stats.TimeRange.Start).Round(time.Second))
		fmt.Fprintln(w)
	}

	// Total events
	fmt.Fprintf(w, "Total Events: %d\n", stats.TotalEvents)
	fmt.Fprintln(w)

	// Events by operation
	fmt.Fprintln(w, "Events by Operation:")
	for _, op := range []tracelog.Op{tracelog.OpQuery, tracelog.OpWrite, tracelog.OpReopen, tracelog.OpVerify} {
		if count := stats.EventsByOp[op]; count > 0 {
			fmt.Fprintf(w, "  %-8s %d\n", op.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	// Sessions
	fmt.Fprintf(w, "Sessions: %d\n", len(stats.Sessions))
	if len(stats.Sessions) > 0 {
		// Sort by first seen time
		type sessInfo struct {
			id    string
			stats *SessionStats
		}
		sessions := make([]sessInfo, 0, len(stats.Sessions))
		for id, ss := range stats.Sessions {
			sessions = append(sessions, sessInfo{id, ss})
		}
		sort.Slice(sessions, func(i, j int) bool {
			return sessions[i].stats.FirstSeen.Before(sessions[j].stats.FirstSeen)
		})

		fmt.Fprintln(w, "")
		for _, s := range sessions {
			duration := s.stats.LastSeen.Sub(s.stats.FirstSeen).Round(time.Millisecond)
			fmt.Fprintf(w, "  [%s] %d events, duration %s\n", shortenSessionID(s.id), s.stats.Events, duration)
			if s.stats.Driver != "" {
				fmt.Fprintf(w, "           Driver: %s\n", s.stats.Driver)
			}
			if s.stats.Reopens > 0 {
				fmt.Fprintf(w, "           Reopens: %d\n", s.stats.Reopens)
			}
			if s.stats.Errors > 0 {
				fmt.Fprintf(w, "           Errors: %d\n", s.stats.Errors)
			}
		}
	}

	// Errors
	if stats.Errors > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Errors: %d\n", stats.Errors)
	}
}
