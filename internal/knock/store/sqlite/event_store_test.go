package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/BrandonDHaskell/Portcullis/internal/knock/store"
	"github.com/BrandonDHaskell/Portcullis/internal/knock/store/sqlite"
)

func TestKnockEventStore_RecordAndPrune(t *testing.T) {
	conn := openTestDB(t)
	writer := newTestWriter(t, conn)
	s := sqlite.NewKnockEventStore(conn, writer)
	ctx := context.Background()

	now := time.Now().UTC()
	recs := []store.KnockEventRecord{
		{Address: "10.0.0.5", Port: 1000, Position: 1, Outcome: store.OutcomeAdvanced, At: now.AddDate(0, 0, -40)},
		{Address: "10.0.0.5", Port: 2000, Position: 2, Outcome: store.OutcomeAdvanced, At: now.AddDate(0, 0, -40)},
		{Address: "10.0.0.6", Port: 1000, Position: 1, Outcome: store.OutcomeAdvanced, At: now},
	}
	for i, rec := range recs {
		if err := s.RecordKnock(ctx, rec); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}

	var count int
	if err := conn.QueryRow("SELECT COUNT(*) FROM knock_events;").Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 rows, got %d", count)
	}

	deleted, err := s.PruneOlderThan(ctx, now.AddDate(0, 0, -30))
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if deleted != 2 {
		t.Errorf("expected 2 deleted, got %d", deleted)
	}

	var addr string
	var outcome string
	if err := conn.QueryRow("SELECT address, outcome FROM knock_events;").Scan(&addr, &outcome); err != nil {
		t.Fatalf("select survivor: %v", err)
	}
	if addr != "10.0.0.6" || outcome != store.OutcomeAdvanced {
		t.Errorf("unexpected survivor %s/%s", addr, outcome)
	}
}

func TestKnockEventStore_EmptyAddressIsDropped(t *testing.T) {
	conn := openTestDB(t)
	writer := newTestWriter(t, conn)
	s := sqlite.NewKnockEventStore(conn, writer)

	if err := s.RecordKnock(context.Background(), store.KnockEventRecord{Port: 1000}); err != nil {
		t.Fatalf("record: %v", err)
	}

	var count int
	if err := conn.QueryRow("SELECT COUNT(*) FROM knock_events;").Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Errorf("expected no rows for empty address, got %d", count)
	}
}

func TestGrantEventStore_RecordsOutcome(t *testing.T) {
	conn := openTestDB(t)
	writer := newTestWriter(t, conn)
	s := sqlite.NewGrantEventStore(conn, writer)
	ctx := context.Background()

	rec := store.GrantEventRecord{
		ID:      "cdef01234567890abcdef012",
		Address: "10.0.0.5",
		Action:  store.ActionRevoke,
		OK:      false,
		Reason:  "iptables: permission denied",
		At:      time.Now().UTC(),
	}
	if err := s.RecordGrantEvent(ctx, rec); err != nil {
		t.Fatalf("record: %v", err)
	}

	var action, reason string
	var ok int
	err := conn.QueryRow(
		"SELECT action, ok, reason FROM grant_events WHERE event_id = ?;", rec.ID,
	).Scan(&action, &ok, &reason)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if action != store.ActionRevoke || ok != 0 || reason != rec.Reason {
		t.Errorf("unexpected row: action=%s ok=%d reason=%q", action, ok, reason)
	}
}
