package trace

import (
	"maps"
	"sync"
	"time"

	"github.com/tjfontaine/research-copilot/internal/domain"
)

// Memory is an in-process Sink that keeps events in a slice.
type Memory struct {
	mu     sync.Mutex
	events []domain.TraceEvent
}

// NewMemory creates an empty in-memory sink.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Emit(eventType string, payload map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.events = append(m.events, domain.TraceEvent{
		Timestamp: time.Now().UTC(),
		Seq:       int64(len(m.events) + 1),
		EventType: eventType,
		Payload:   maps.Clone(payload),
	})
}

// Events returns a copy of the recorded events.
func (m *Memory) Events() []domain.TraceEvent {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]domain.TraceEvent, len(m.events))
	copy(out, m.events)
	return out
}

// Count returns how many events of the given type were recorded.
func (m *Memory) Count(eventType string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, e := range m.events {
		if e.EventType == eventType {
			n++
		}
	}
	return n
}
