package memory

import (
	"context"
	"sync"
	"time"

	"github.com/BrandonDHaskell/Portcullis/internal/knock/store"
)

// KnockEventStore is an in-memory append-only log of processed knocks.
// It is intended for use in tests and dev environments.
type KnockEventStore struct {
	mu     sync.Mutex
	events []store.KnockEventRecord
}

func NewKnockEventStore() *KnockEventStore {
	return &KnockEventStore{}
}

func (s *KnockEventStore) RecordKnock(_ context.Context, rec store.KnockEventRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.At.IsZero() {
		rec.At = time.Now().UTC()
	}
	s.events = append(s.events, rec)
	return nil
}

func (s *KnockEventStore) PruneOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.events[:0]
	var deleted int64
	for _, ev := range s.events {
		if ev.At.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, ev)
	}
	s.events = kept
	return deleted, nil
}

// Events returns a copy of all recorded knocks.  Test-only helper.
func (s *KnockEventStore) Events() []store.KnockEventRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.KnockEventRecord, len(s.events))
	copy(out, s.events)
	return out
}
