package eventlog

import (
	"context"
	"sort"
	"sync"
	"time"

	"noetl/internal/domain/event"
)

// MemoryStore is an in-memory Store used by unit tests and the mock/dry-run
// worker mode. It preserves the same ordering and idempotent-append
// semantics as the Postgres-backed implementation.
type MemoryStore struct {
	mu     sync.Mutex
	nextID map[string]int64
	events map[string]map[int64]event.Event
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nextID: make(map[string]int64),
		events: make(map[string]map[int64]event.Event),
	}
}

func (s *MemoryStore) Append(ctx context.Context, ev *event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	if ev.EventID == 0 {
		s.nextID[ev.ExecutionID]++
		ev.EventID = s.nextID[ev.ExecutionID]
	} else if ev.EventID > s.nextID[ev.ExecutionID] {
		s.nextID[ev.ExecutionID] = ev.EventID
	}

	bucket, ok := s.events[ev.ExecutionID]
	if !ok {
		bucket = make(map[int64]event.Event)
		s.events[ev.ExecutionID] = bucket
	}
	bucket[ev.EventID] = *ev
	return nil
}

func (s *MemoryStore) ByExecution(ctx context.Context, executionID string) ([]event.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bucket := s.events[executionID]
	out := make([]event.Event, 0, len(bucket))
	for _, ev := range bucket {
		out = append(out, ev)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EventID < out[j].EventID })
	return out, nil
}

func (s *MemoryStore) ByEvent(ctx context.Context, executionID string, eventID int64) (*event.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bucket := s.events[executionID]
	ev, ok := bucket[eventID]
	if !ok {
		return nil, nil
	}
	return &ev, nil
}

func (s *MemoryStore) LatestByLoop(ctx context.Context, executionID, loopName string) (*event.Event, error) {
	all, _ := s.ByExecution(ctx, executionID)
	var latest *event.Event
	for i := range all {
		ev := all[i]
		if ev.Loop != nil && ev.Loop.LoopName == loopName {
			latest = &ev
		}
	}
	return latest, nil
}

func (s *MemoryStore) ByType(ctx context.Context, executionID string, eventType event.Type) ([]event.Event, error) {
	all, _ := s.ByExecution(ctx, executionID)
	out := make([]event.Event, 0)
	for _, ev := range all {
		if ev.EventType == eventType {
			out = append(out, ev)
		}
	}
	return out, nil
}
