package outbox

import (
	"context"
	"log/slog"
	"sync"
)

// Recorder keeps appended events in memory. It backs the in-memory store mode, where
// there is no outbox table to drain, and lets tests assert on emitted events.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	logger *slog.Logger
}

func NewRecorder(logger *slog.Logger) *Recorder {
	return &Recorder{logger: logger}
}

func (r *Recorder) Append(ctx context.Context, evt Event) error {
	r.mu.Lock()
	r.events = append(r.events, evt)
	r.mu.Unlock()
	if r.logger != nil {
		r.logger.DebugContext(ctx, "event recorded", "event_type", evt.EventType, "aggregate_id", evt.AggregateID)
	}
	return nil
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Count returns how many recorded events have the given type.
func (r *Recorder) Count(eventType string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.EventType == eventType {
			n++
		}
	}
	return n
}
