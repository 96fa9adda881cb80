package persistence

import (
	"context"
	"sync"

	"github.com/petrijr/conveyor/pkg/api"
)

// EventStore is an append-only history store for run execution events.
type EventStore interface {
	AppendEvent(ctx context.Context, ev api.RunEvent) error
	ListEvents(ctx context.Context, runID string) ([]api.RunEvent, error)
}

// NoopEventStore discards all events.
type NoopEventStore struct{}

func (NoopEventStore) AppendEvent(ctx context.Context, ev api.RunEvent) error { return nil }
func (NoopEventStore) ListEvents(ctx context.Context, runID string) ([]api.RunEvent, error) {
	return nil, nil
}

// MemoryEventStore keeps events in memory, in append order.
type MemoryEventStore struct {
	mu     sync.RWMutex
	events []api.RunEvent
}

func NewMemoryEventStore() *MemoryEventStore { return &MemoryEventStore{} }

var _ EventStore = (*MemoryEventStore)(nil)

func (s *MemoryEventStore) AppendEvent(ctx context.Context, ev api.RunEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *MemoryEventStore) ListEvents(ctx context.Context, runID string) ([]api.RunEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []api.RunEvent
	for _, ev := range s.events {
		if runID == "" || ev.RunID == runID {
			out = append(out, ev)
		}
	}
	return out, nil
}
