package analytics

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Emitter publishes typed analytics events. Implementations must be
// safe for concurrent use and must never fail a caller's operation.
type Emitter interface {
	Emit(ctx context.Context, event Event)
}

// NopEmitter discards every event. It is the safe default.
type NopEmitter struct{}

func (NopEmitter) Emit(context.Context, Event) {}

// LogEmitter writes events to a structured logger.
type LogEmitter struct {
	logger *zap.Logger
}

// NewLogEmitter creates an emitter backed by the given logger.
func NewLogEmitter(logger *zap.Logger) *LogEmitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogEmitter{logger: logger}
}

func (e *LogEmitter) Emit(_ context.Context, event Event) {
	e.logger.Info("analytics event",
		zap.String("event", event.Name()),
		zap.Any("payload", event),
	)
}

// MemoryEmitter records events in memory for tests.
type MemoryEmitter struct {
	mu     sync.Mutex
	events []Event
}

func (e *MemoryEmitter) Emit(_ context.Context, event Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
}

// Events returns a snapshot of everything emitted so far.
func (e *MemoryEmitter) Events() []Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Event, len(e.events))
	copy(out, e.events)
	return out
}

// ByName filters the recorded events by event name.
func (e *MemoryEmitter) ByName(name string) []Event {
	var out []Event
	for _, ev := range e.Events() {
		if ev.Name() == name {
			out = append(out, ev)
		}
	}
	return out
}
