// Package testinstr provides test doubles shared by the framework's own
// tests: a scripted transport and a reference voltage-source spec.
package testinstr

import (
	"fmt"
	"sync"

	"github.com/instrkit/instrkit-go/pkg/comms"
)

// ScriptedTransport answers queries from a canned reply table and records
// every interaction. It can be told to fail the next N operations with a
// communication error, which exercises the retry/reopen policy.
type ScriptedTransport struct {
	// Replies maps full command strings to their canned answers.
	Replies map[string]string

	// FailNext makes the next N queries and writes fail with a
	// communication error before the reply table is consulted.
	FailNext int

	mu      sync.Mutex
	queries []string
	writes  []string
	reopens int
	closed  bool
}

// NewScriptedTransport creates a transport with an empty reply table.
func NewScriptedTransport() *ScriptedTransport {
	return &ScriptedTransport{Replies: map[string]string{}}
}

// Query answers cmd from the reply table.
func (s *ScriptedTransport) Query(cmd string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, cmd)
	if s.FailNext > 0 {
		s.FailNext--
		return "", fmt.Errorf("%w: scripted failure", comms.ErrCommunication)
	}
	reply, ok := s.Replies[cmd]
	if !ok {
		return "", fmt.Errorf("%w: no scripted reply for %q", comms.ErrCommunication, cmd)
	}
	return reply, nil
}

// Write records cmd.
func (s *ScriptedTransport) Write(cmd string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes = append(s.writes, cmd)
	if s.FailNext > 0 {
		s.FailNext--
		return fmt.Errorf("%w: scripted failure", comms.ErrCommunication)
	}
	return nil
}

// Reopen counts reconnections.
func (s *ScriptedTransport) Reopen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reopens++
	return nil
}

// Close marks the transport closed.
func (s *ScriptedTransport) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Queries returns the commands queried so far.
func (s *ScriptedTransport) Queries() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.queries...)
}

// Writes returns the commands written so far.
func (s *ScriptedTransport) Writes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.writes...)
}

// Reopens returns how many times the connection was reopened.
func (s *ScriptedTransport) Reopens() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reopens
}

// Closed reports whether Close was called.
func (s *ScriptedTransport) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

var _ comms.Transport = (*ScriptedTransport)(nil)
