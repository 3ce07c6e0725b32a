package service

import (
	"context"
	"log"
	"time"

	"github.com/BrandonDHaskell/Portcullis/internal/knock/store"
	"github.com/BrandonDHaskell/Portcullis/internal/knock/types"
)

// EngineConfig holds the parameters for NewEngine.
type EngineConfig struct {
	// TickEvery is the cadence of the housekeeping tick (window sweep,
	// due auto-revokes). Defaults to 1s.
	TickEvery time.Duration
}

// Engine is the orchestrator: the single consumer of the knock event
// stream. It drives the tracker, audits every processed knock, hands
// completions to the grant service, and owns the periodic tick that
// sweeps expired windows and fires due revokes. Firewall work is always
// dispatched to its own goroutine so the loop never waits on it.
type Engine struct {
	tracker *SequenceTracker
	grants  *GrantService
	knocks  store.KnockEventStore
	logger  *log.Logger
	tick    time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

func NewEngine(tracker *SequenceTracker, grants *GrantService, knocks store.KnockEventStore, cfg EngineConfig, logger *log.Logger) *Engine {
	tick := cfg.TickEvery
	if tick <= 0 {
		tick = time.Second
	}
	return &Engine{
		tracker: tracker,
		grants:  grants,
		knocks:  knocks,
		logger:  logger,
		tick:    tick,
		done:    make(chan struct{}),
	}
}

// Start begins consuming events in the background. The loop exits when
// ctx is cancelled, Stop is called, or events is closed.
func (e *Engine) Start(ctx context.Context, events <-chan types.KnockEvent) {
	ctx, e.cancel = context.WithCancel(ctx)
	go e.loop(ctx, events)
}

// Stop signals the loop to exit and waits for it to finish; if Start
// was never called it returns immediately. Active grants are
// deliberately left in place: a scheduled revoke that has not fired yet
// dies with the process, and cleanup is the operator's call (the
// default drop rule is re-ensured on the next start).
func (e *Engine) Stop() {
	if e.cancel == nil {
		return
	}
	e.cancel()
	<-e.done
}

func (e *Engine) loop(ctx context.Context, events <-chan types.KnockEvent) {
	defer close(e.done)

	ticker := time.NewTicker(e.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			e.handle(ctx, ev)
		case <-ticker.C:
			now := time.Now().UTC()
			if evicted := e.tracker.Sweep(now); evicted > 0 {
				e.logger.Printf("swept %d expired knock window(s)", evicted)
			}
			go e.grants.RevokeExpired(ctx, now)
		}
	}
}

func (e *Engine) handle(ctx context.Context, ev types.KnockEvent) {
	dec := e.tracker.HandleKnock(ev)

	switch dec.Outcome {
	case OutcomeAdvanced:
		e.logger.Printf("knock from %s on port %d (%d/%d)",
			ev.Address, ev.Port, dec.Position, e.tracker.SequenceLength())
	case OutcomeCompleted:
		e.logger.Printf("sequence complete for %s", ev.Address)
	case OutcomeReset:
		e.logger.Printf("wrong knock from %s on port %d, progress reset", ev.Address, ev.Port)
	}
	// Ignored knocks are scanner noise; audited, not logged.

	e.audit(ctx, ev, dec)

	if dec.Outcome == OutcomeCompleted {
		addr := ev.Address
		go func() {
			// Detached from the loop's lifetime: a grant in flight at
			// shutdown still lands.
			gctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			e.grants.Open(gctx, addr)
		}()
	}
}

func (e *Engine) audit(ctx context.Context, ev types.KnockEvent, dec Decision) {
	rec := store.KnockEventRecord{
		Address:  ev.Address,
		Port:     ev.Port,
		Position: dec.Position,
		Outcome:  dec.Outcome.String(),
		At:       ev.At,
	}
	if err := e.knocks.RecordKnock(ctx, rec); err != nil {
		e.logger.Printf("knock audit write failed for %s: %v", ev.Address, err)
	}
}
