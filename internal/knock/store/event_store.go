package store

import (
	"context"
	"time"
)

// Knock outcomes as recorded in the audit log.
const (
	OutcomeAdvanced  = "advanced"
	OutcomeCompleted = "completed"
	OutcomeReset     = "reset"
	OutcomeIgnored   = "ignored"
)

// KnockEventRecord captures one processed knock for the audit log.
// Position is the source's position after the knock was applied.
type KnockEventRecord struct {
	Address  string
	Port     int
	Position int
	Outcome  string
	At       time.Time
}

// KnockEventStore persists knocks as an append-only audit log. Knock
// volume is dominated by scanner noise, so the store must also support
// retention pruning.
type KnockEventStore interface {
	RecordKnock(ctx context.Context, rec KnockEventRecord) error
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Grant event actions.
const (
	ActionGrant  = "grant"
	ActionRevoke = "revoke"
)

// GrantEventRecord captures one firewall grant or revoke attempt,
// successful or not. Reason distinguishes why a revoke fired
// ("auto_expire", "manual") or carries the error text on failure.
type GrantEventRecord struct {
	ID      string // xid, assigned by the grant service
	Address string
	Action  string
	OK      bool
	Reason  string
	At      time.Time
}

// GrantEventStore persists grant/revoke outcomes. These are low volume
// and kept indefinitely.
type GrantEventStore interface {
	RecordGrantEvent(ctx context.Context, rec GrantEventRecord) error
}
