// Package telemetry is the append-only MessageEvent sink. The orchestrator
// writes one event per pipeline phase; nothing in this process ever reads
// them back — external analytics does.
package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"careline-agent/internal/domain"
)

// Recorder accepts telemetry events. Implementations must be safe for
// concurrent use; callers treat Record as fire-and-forget and only log
// failures.
type Recorder interface {
	Record(ctx context.Context, identity, stage string, payload map[string]any) error
	Close() error
}

func newEvent(identity, stage string, payload map[string]any) domain.MessageEvent {
	return domain.MessageEvent{
		ID:       uuid.NewString(),
		Identity: identity,
		Stage:    stage,
		Payload:  payload,
		At:       time.Now().UTC(),
	}
}

// MemoryRecorder collects events in memory. Test and local-dev sink.
type MemoryRecorder struct {
	mu     sync.Mutex
	events []domain.MessageEvent
}

func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{}
}

func (r *MemoryRecorder) Record(_ context.Context, identity, stage string, payload map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, newEvent(identity, stage, payload))
	return nil
}

// Events returns a snapshot of everything recorded so far.
func (r *MemoryRecorder) Events() []domain.MessageEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.MessageEvent, len(r.events))
	copy(out, r.events)
	return out
}

func (r *MemoryRecorder) Close() error { return nil }
