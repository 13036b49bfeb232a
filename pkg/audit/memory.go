package audit

import (
	"context"
	"sync"
)

// MemoryLogger keeps the most recent events in a ring buffer so the console
// can show recent permission changes without any persisted state.
type MemoryLogger struct {
	mu       sync.RWMutex
	events   []*Event
	next     int
	capacity int
	full     bool
}

// NewMemoryLogger creates a ring buffer holding up to capacity events.
func NewMemoryLogger(capacity int) *MemoryLogger {
	if capacity <= 0 {
		capacity = 1024
	}
	return &MemoryLogger{
		events:   make([]*Event, capacity),
		capacity: capacity,
	}
}

// Log stores the event, evicting the oldest when full.
func (m *MemoryLogger) Log(ctx context.Context, event *Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[m.next] = event
	m.next = (m.next + 1) % m.capacity
	if m.next == 0 {
		m.full = true
	}
	return nil
}

// Close is a no-op for the memory logger.
func (m *MemoryLogger) Close() error { return nil }

// Search returns events matching the filter, newest first.
func (m *MemoryLogger) Search(filter Filter) []*Event {
	m.mu.RLock()
	defer m.mu.RUnlock()

	size := m.next
	if m.full {
		size = m.capacity
	}

	var out []*Event
	for i := 1; i <= size; i++ {
		// Walk backwards from the most recently written slot.
		idx := (m.next - i + m.capacity) % m.capacity
		e := m.events[idx]
		if e == nil || !filter.Matches(e) {
			continue
		}
		out = append(out, e)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out
}

// Len returns the number of stored events.
func (m *MemoryLogger) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.full {
		return m.capacity
	}
	return m.next
}
