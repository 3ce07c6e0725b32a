package db

import (
	"context"
	"database/sql"
)

type TxFn func(ctx context.Context, tx *sql.Tx) error

type task struct {
	ctx context.Context
	fn  TxFn
	ch  chan error
}

// Worker funnels every audit write through one goroutine. SQLite runs
// on a single connection here, so concurrent writers (engine audits,
// grant events, the pruner) become queued transactions instead of
// SQLITE_BUSY failures.
type Worker struct {
	db    *sql.DB
	queue chan task
	done  chan struct{}
}

func NewWorker(db *sql.DB) *Worker {
	w := &Worker{
		db:    db,
		queue: make(chan task, 256),
		done:  make(chan struct{}),
	}
	go w.loop()
	return w
}

// Close drains the queue and stops the worker. Pending tasks still run.
func (w *Worker) Close() {
	close(w.queue)
	<-w.done
}

// Do runs fn inside a transaction on the worker goroutine and returns
// its result. If the caller's context expires while the task is queued
// or executing, Do returns early; the worker still finishes the
// transaction and the discarded result lands in the buffered channel.
func (w *Worker) Do(ctx context.Context, fn TxFn) error {
	ch := make(chan error, 1)
	t := task{ctx: ctx, fn: fn, ch: ch}

	select {
	case w.queue <- t:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) loop() {
	defer close(w.done)

	for t := range w.queue {
		tx, err := w.db.BeginTx(t.ctx, nil)
		if err != nil {
			t.ch <- err
			continue
		}

		if err := t.fn(t.ctx, tx); err != nil {
			_ = tx.Rollback()
			t.ch <- err
			continue
		}

		t.ch <- tx.Commit()
	}
}
