package execctx

import "sync"

// MemoryListener records events in-memory. Used by tests and by anything
// that wants to inspect recent transitions.
type MemoryListener struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryListener() *MemoryListener { return &MemoryListener{} }

func (l *MemoryListener) OnStateChange(ev Event) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
}

func (l *MemoryListener) Events() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}
