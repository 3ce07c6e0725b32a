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

type GrantEventStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewGrantEventStore(db *sql.DB, writer *dbpkg.Worker) *GrantEventStore {
	return &GrantEventStore{db: db, writer: writer}
}

func (s *GrantEventStore) RecordGrantEvent(ctx context.Context, rec store.GrantEventRecord) error {
	addr := strings.TrimSpace(rec.Address)
	if addr == "" || rec.ID == "" {
		return nil
	}

	if rec.At.IsZero() {
		rec.At = time.Now().UTC()
	}
	atMs := rec.At.UTC().UnixMilli()

	var ok int
	if rec.OK {
		ok = 1
	}

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO grant_events(
  event_id, address, action, ok, reason, at_ms
) VALUES (?, ?, ?, ?, ?, ?);
`, rec.ID, addr, rec.Action, ok, rec.Reason, atMs); err != nil {
			return fmt.Errorf("RecordGrantEvent insert: %w", err)
		}
		return nil
	})
}
