package memory

import (
	"context"
	"sync"
	"time"

	"github.com/BrandonDHaskell/Portcullis/internal/knock/store"
)

// GrantEventStore is an in-memory append-only log of grant/revoke
// outcomes, for tests and dev environments.
type GrantEventStore struct {
	mu     sync.Mutex
	events []store.GrantEventRecord
}

func NewGrantEventStore() *GrantEventStore {
	return &GrantEventStore{}
}

func (s *GrantEventStore) RecordGrantEvent(_ context.Context, rec store.GrantEventRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.At.IsZero() {
		rec.At = time.Now().UTC()
	}
	s.events = append(s.events, rec)
	return nil
}

// Events returns a copy of all recorded grant events.  Test-only helper.
func (s *GrantEventStore) Events() []store.GrantEventRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.GrantEventRecord, len(s.events))
	copy(out, s.events)
	return out
}
