package service

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/rs/xid"

	"github.com/BrandonDHaskell/Portcullis/internal/knock/firewall"
	"github.com/BrandonDHaskell/Portcullis/internal/knock/store"
	"github.com/BrandonDHaskell/Portcullis/internal/knock/types"
)

// Revoke reasons recorded in the audit log.
const (
	RevokeReasonExpired = "auto_expire"
	RevokeReasonManual  = "manual"
)

type grant struct {
	id        string
	openedAt  time.Time
	expiresAt time.Time // zero when auto-revoke is disabled
}

// GrantService owns the lifecycle of open grants: it invokes the
// firewall controller, keeps the table of active grants, and decides
// when an auto-revoke is due. It never sleeps — expiry is a deadline
// checked from the engine's ticker, so one address's open window can
// never stall another address's knocks.
type GrantService struct {
	fw      firewall.Controller
	events  store.GrantEventStore
	openFor time.Duration // 0 = never auto-revoke
	logger  *log.Logger

	mu     sync.Mutex
	active map[string]grant
}

func NewGrantService(fw firewall.Controller, events store.GrantEventStore, openFor time.Duration, logger *log.Logger) *GrantService {
	return &GrantService{
		fw:      fw,
		events:  events,
		openFor: openFor,
		logger:  logger,
		active:  make(map[string]grant),
	}
}

// Open grants address access to the protected port and arms the
// auto-revoke deadline. A failed grant is logged and audited but not
// retried — the completed sequence is already consumed either way, and
// the client may simply knock again. Completing the sequence again
// while a grant is active re-arms its deadline.
func (s *GrantService) Open(ctx context.Context, address string) {
	now := time.Now().UTC()
	err := s.fw.Grant(ctx, address)

	rec := store.GrantEventRecord{
		ID:      xid.New().String(),
		Address: address,
		Action:  store.ActionGrant,
		OK:      err == nil,
		At:      now,
	}
	if err != nil {
		rec.Reason = err.Error()
		s.logger.Printf("grant failed for %s: %v", address, err)
		s.recordEvent(ctx, rec)
		return
	}
	s.recordEvent(ctx, rec)

	g := grant{id: rec.ID, openedAt: now}
	if s.openFor > 0 {
		g.expiresAt = now.Add(s.openFor)
	}

	s.mu.Lock()
	if prev, ok := s.active[address]; ok {
		// Keep the original grant identity; only the deadline moves.
		g.id, g.openedAt = prev.id, prev.openedAt
	}
	s.active[address] = g
	s.mu.Unlock()

	if s.openFor > 0 {
		s.logger.Printf("granted %s for %s", address, s.openFor)
	} else {
		s.logger.Printf("granted %s (no auto-revoke)", address)
	}
}

// Revoke removes address's access. Revoking an address with no active
// grant is a no-op at the firewall and is still audited.
func (s *GrantService) Revoke(ctx context.Context, address, reason string) error {
	s.mu.Lock()
	delete(s.active, address)
	s.mu.Unlock()

	err := s.fw.Revoke(ctx, address)

	rec := store.GrantEventRecord{
		ID:      xid.New().String(),
		Address: address,
		Action:  store.ActionRevoke,
		OK:      err == nil,
		Reason:  reason,
		At:      time.Now().UTC(),
	}
	if err != nil {
		rec.Reason = err.Error()
		s.logger.Printf("revoke failed for %s: %v", address, err)
		s.recordEvent(ctx, rec)
		return err
	}
	s.recordEvent(ctx, rec)

	s.logger.Printf("revoked %s (%s)", address, reason)
	return nil
}

// RevokeExpired revokes every grant whose deadline has passed. Called
// from the engine's periodic tick, off the event-handling path.
func (s *GrantService) RevokeExpired(ctx context.Context, now time.Time) {
	s.mu.Lock()
	var due []string
	for addr, g := range s.active {
		if !g.expiresAt.IsZero() && !now.Before(g.expiresAt) {
			due = append(due, addr)
		}
	}
	s.mu.Unlock()

	for _, addr := range due {
		_ = s.Revoke(ctx, addr, RevokeReasonExpired)
	}
}

// Active returns the open grants sorted by address, for the status API.
func (s *GrantService) Active() []types.GrantInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]types.GrantInfo, 0, len(s.active))
	for addr, g := range s.active {
		info := types.GrantInfo{
			ID:       g.id,
			Address:  addr,
			OpenedAt: g.openedAt.Format(time.RFC3339Nano),
		}
		if !g.expiresAt.IsZero() {
			info.ExpiresAt = g.expiresAt.Format(time.RFC3339Nano)
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

// recordEvent persists the grant/revoke outcome to the audit log.
// Errors are intentionally not returned to the caller — a failed audit
// write must not affect the grant lifecycle.
func (s *GrantService) recordEvent(ctx context.Context, rec store.GrantEventRecord) {
	if err := s.events.RecordGrantEvent(ctx, rec); err != nil {
		s.logger.Printf("grant audit write failed for %s: %v", rec.Address, err)
	}
}
