package testutil

import (
	"context"
	"sync"

	"github.com/hupe1980/opmesh/core"
)

// RecordingSink is a core.EventSink that keeps every notification.
type RecordingSink struct {
	mu     sync.Mutex
	events []core.Event
}

// Notify implements core.EventSink.
func (s *RecordingSink) Notify(_ context.Context, ev core.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

// Events returns all events in arrival order.
func (s *RecordingSink) Events() []core.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Event(nil), s.events...)
}

// ByKind returns the events of one kind in arrival order.
func (s *RecordingSink) ByKind(kind core.EventKind) []core.Event {
	var out []core.Event
	for _, ev := range s.Events() {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}
