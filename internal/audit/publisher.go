package audit

import (
	"context"
	"sync"
	"time"

	id "examreg/pkg/domain"
)

// Publisher is what the workflow services emit through. A nil-safe no-op
// keeps audit optional in tests.
type Publisher interface {
	Emit(ctx context.Context, event Event) error
}

// StorePublisher appends events straight to a store. It stamps the time if
// the emitter did not.
type StorePublisher struct {
	store Store
}

func NewStorePublisher(store Store) *StorePublisher {
	return &StorePublisher{store: store}
}

func (p *StorePublisher) Emit(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	return p.store.Append(ctx, event)
}

// ChannelPublisher hands events to a Worker over a buffered channel. Emit
// never blocks the workflow: when the buffer is full the event is dropped,
// which is acceptable for a best-effort trail.
type ChannelPublisher struct {
	inbox chan<- Event
}

func NewChannelPublisher(inbox chan<- Event) *ChannelPublisher {
	return &ChannelPublisher{inbox: inbox}
}

func (p *ChannelPublisher) Emit(_ context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	select {
	case p.inbox <- event:
	default:
	}
	return nil
}

// MemoryStore keeps events in order. Used as the default sink and by tests
// to assert on emitted actions.
type MemoryStore struct {
	mu     sync.RWMutex
	events []Event
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// List returns a copy of all recorded events.
func (s *MemoryStore) List() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// ListByUser returns events concerning one candidate.
func (s *MemoryStore) ListByUser(userID id.UserID) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Event
	for _, e := range s.events {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out
}
