// Package diag collects human-readable status lines from the relay. Recorders
// accept free text and never feed anything back into the protocol path.
package diag

import "sync"

// Recorder receives diagnostic status lines.
type Recorder interface {
	Record(message string)
}

// Nop discards every line. Used when diagnostics are disabled.
type Nop struct{}

// Record implements Recorder.
func (Nop) Record(string) {}

// defaultMemoryLimit bounds the memory recorder so a long-lived relay does not
// accumulate status lines without end.
const defaultMemoryLimit = 512

// Memory keeps the most recent lines in a bounded in-memory buffer, served to
// operators over the diagnostics HTTP endpoint.
type Memory struct {
	mu    sync.Mutex
	limit int
	lines []string
}

// NewMemory creates a memory recorder retaining at most limit lines; a
// non-positive limit selects the default.
func NewMemory(limit int) *Memory {
	if limit <= 0 {
		limit = defaultMemoryLimit
	}
	return &Memory{limit: limit}
}

// Record implements Recorder, evicting the oldest line once full.
func (m *Memory) Record(message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lines = append(m.lines, message)
	if len(m.lines) > m.limit {
		m.lines = m.lines[len(m.lines)-m.limit:]
	}
}

// Lines returns a copy of the retained lines, oldest first.
func (m *Memory) Lines() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.lines))
	copy(out, m.lines)
	return out
}
