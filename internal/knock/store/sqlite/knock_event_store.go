package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	dbpkg "github.com/BrandonDHaskell/Portcullis/internal/db"
	"github.com/BrandonDHaskell/Portcullis/internal/knock/store"
)

type KnockEventStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewKnockEventStore(db *sql.DB, writer *dbpkg.Worker) *KnockEventStore {
	return &KnockEventStore{db: db, writer: writer}
}

func (s *KnockEventStore) RecordKnock(ctx context.Context, rec store.KnockEventRecord) error {
	addr := strings.TrimSpace(rec.Address)
	if addr == "" {
		return nil
	}

	if rec.At.IsZero() {
		rec.At = time.Now().UTC()
	}
	atMs := rec.At.UTC().UnixMilli()

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO knock_events(
  address, port, position, outcome, at_ms
) VALUES (?, ?, ?, ?, ?);
`, addr, rec.Port, rec.Position, rec.Outcome, atMs); err != nil {
			return fmt.Errorf("RecordKnock insert: %w", err)
		}
		return nil
	})
}

// PruneOlderThan deletes knock rows with at_ms before the given cutoff
// time.  Returns the number of rows deleted.
//
// Uses the idx_knock_events_time index for an efficient range scan.
func (s *KnockEventStore) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	cutoffMs := cutoff.UTC().UnixMilli()

	var deleted int64
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
DELETE FROM knock_events
WHERE at_ms < ?;
`, cutoffMs)
		if err != nil {
			return fmt.Errorf("PruneOlderThan: %w", err)
		}
		deleted, _ = res.RowsAffected()
		return nil
	})
	return deleted, err
}
