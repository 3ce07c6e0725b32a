package service

import (
	"sync"
	"time"

	"github.com/BrandonDHaskell/Portcullis/internal/knock/types"
)

// Outcome of applying one knock to a source's tracked state.
type Outcome int

const (
	// OutcomeIgnored: noise. Either a non-first port while the source
	// had no progress, or an empty source address.
	OutcomeIgnored Outcome = iota
	// OutcomeAdvanced: correct knock, sequence not yet complete.
	OutcomeAdvanced
	// OutcomeCompleted: correct final knock within the window. The
	// source's entry is gone; the caller owns the grant from here.
	OutcomeCompleted
	// OutcomeReset: wrong knock mid-sequence, progress discarded.
	OutcomeReset
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAdvanced:
		return "advanced"
	case OutcomeCompleted:
		return "completed"
	case OutcomeReset:
		return "reset"
	default:
		return "ignored"
	}
}

// Decision is the tracker's verdict on one knock. Position is the
// position the knock moved the source to: 0 for resets and ignored
// noise, the full sequence length on completion.
type Decision struct {
	Outcome  Outcome
	Position int
}

type sourceState struct {
	position    int
	windowStart time.Time
}

// SequenceTracker holds every source's progress through the knock
// sequence. It is the only mutable shared state in the system: the
// engine drives transitions and sweeps, the admin API reads counts.
// All timing decisions use the event's own timestamp, never the wall
// clock, which keeps transitions a pure function of (state, event).
type SequenceTracker struct {
	sequence []int
	window   time.Duration

	mu      sync.Mutex
	sources map[string]sourceState
}

func NewSequenceTracker(sequence []int, window time.Duration) *SequenceTracker {
	return &SequenceTracker{
		sequence: sequence,
		window:   window,
		sources:  make(map[string]sourceState),
	}
}

// HandleKnock applies one knock atomically and returns the resulting
// transition. Distinct addresses never affect each other.
func (t *SequenceTracker) HandleKnock(ev types.KnockEvent) Decision {
	if ev.Address == "" {
		return Decision{Outcome: OutcomeIgnored}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.sources[ev.Address]

	// An expired window is indistinguishable from never having knocked.
	if ok && ev.At.Sub(st.windowStart) > t.window {
		delete(t.sources, ev.Address)
		st, ok = sourceState{}, false
	}

	pos := 0
	if ok {
		pos = st.position
	}

	if ev.Port != t.sequence[pos] {
		if pos == 0 {
			// Nothing to reset; scanners hitting arbitrary knock ports
			// must not be able to churn the table.
			return Decision{Outcome: OutcomeIgnored}
		}
		delete(t.sources, ev.Address)
		return Decision{Outcome: OutcomeReset}
	}

	if pos == 0 {
		st.windowStart = ev.At
	}
	st.position = pos + 1

	if st.position == len(t.sequence) {
		// Completion is terminal: re-entry starts from the first port.
		delete(t.sources, ev.Address)
		return Decision{Outcome: OutcomeCompleted, Position: st.position}
	}

	t.sources[ev.Address] = st
	return Decision{Outcome: OutcomeAdvanced, Position: st.position}
}

// Sweep evicts every source whose window expired without completing and
// returns the eviction count. Bounds memory against abandoned or
// malicious partial sequences.
func (t *SequenceTracker) Sweep(now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	evicted := 0
	for addr, st := range t.sources {
		if now.Sub(st.windowStart) > t.window {
			delete(t.sources, addr)
			evicted++
		}
	}
	return evicted
}

// Position returns a source's current position, 0 if untracked.
func (t *SequenceTracker) Position(address string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sources[address].position
}

// TrackedCount returns the number of sources with in-progress sequences.
func (t *SequenceTracker) TrackedCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sources)
}

// SequenceLength exposes the configured sequence length for the status API.
func (t *SequenceTracker) SequenceLength() int {
	return len(t.sequence)
}
