// Package txn runs units of work inside a database transaction and notifies
// registered listeners at the begin, before-commit and after-completion
// points of every transaction.
package txn

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
)

// DBTX is the subset of database/sql used by repositories.
// Both *sql.DB and *sql.Tx satisfy this interface.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Hooks observe a transaction. Any field may be nil. Hooks cannot veto the
// transaction.
type Hooks struct {
	Begin        func(ctx context.Context)
	BeforeCommit func(ctx context.Context)
	AfterCommit  func(ctx context.Context, committed bool)
}

type hooksKey struct{}

// WithHooks returns a context carrying hooks for every transaction started
// with it, in addition to hooks already on ctx.
func WithHooks(ctx context.Context, hooks ...Hooks) context.Context {
	if len(hooks) == 0 {
		return ctx
	}
	existing, _ := ctx.Value(hooksKey{}).([]Hooks)
	merged := make([]Hooks, 0, len(existing)+len(hooks))
	merged = append(merged, existing...)
	merged = append(merged, hooks...)
	return context.WithValue(ctx, hooksKey{}, merged)
}

func hooksFromContext(ctx context.Context) []Hooks {
	hooks, _ := ctx.Value(hooksKey{}).([]Hooks)
	return hooks
}

// Source yields the database to run against. A resolver.Resolver over
// *sql.DB satisfies it.
type Source interface {
	Get(ctx context.Context) (*sql.DB, error)
}

type staticSource struct {
	db *sql.DB
}

func (s staticSource) Get(context.Context) (*sql.DB, error) {
	return s.db, nil
}

// Static wraps an already opened database as a Source.
func Static(db *sql.DB) Source {
	return staticSource{db: db}
}

// Runner starts transactions on a database.
type Runner struct {
	source Source
	opts   *sql.TxOptions

	mu    sync.RWMutex
	hooks []Hooks
}

// NewRunner constructs a Runner. opts may be nil.
func NewRunner(source Source, opts *sql.TxOptions) *Runner {
	return &Runner{source: source, opts: opts}
}

// Register adds hooks that fire for every transaction run by r.
func (r *Runner) Register(h Hooks) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks = append(r.hooks, h)
}

// Run executes fn directly on the database, outside any transaction.
// No hooks fire.
func (r *Runner) Run(ctx context.Context, fn func(ctx context.Context, db DBTX) error) error {
	db, err := r.source.Get(ctx)
	if err != nil {
		return err
	}
	return fn(ctx, db)
}

// WithTx begins a transaction, runs fn with it and commits on success or
// rolls back on error/panic. Panics are rethrown.
//
// Hook order: Begin after the transaction opens, BeforeCommit once fn has
// succeeded, AfterCommit(committed) once the outcome is known. Hooks run in
// registration order: runner hooks, then context hooks, then extra.
func (r *Runner) WithTx(ctx context.Context, fn func(ctx context.Context, tx DBTX) error, extra ...Hooks) (err error) {
	db, err := r.source.Get(ctx)
	if err != nil {
		return err
	}
	hooks := r.collect(ctx, extra)

	tx, err := db.BeginTx(ctx, r.opts)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	for _, h := range hooks {
		if h.Begin != nil {
			h.Begin(ctx)
		}
	}

	committed := false
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			afterCommit(ctx, hooks, false)
			panic(p)
		}
		if !committed {
			afterCommit(ctx, hooks, false)
			return
		}
		afterCommit(ctx, hooks, true)
	}()

	if err = fn(ctx, tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}

	for _, h := range hooks {
		if h.BeforeCommit != nil {
			h.BeforeCommit(ctx)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	committed = true
	return nil
}

func (r *Runner) collect(ctx context.Context, extra []Hooks) []Hooks {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fromCtx := hooksFromContext(ctx)
	out := make([]Hooks, 0, len(r.hooks)+len(fromCtx)+len(extra))
	out = append(out, r.hooks...)
	out = append(out, fromCtx...)
	out = append(out, extra...)
	return out
}

func afterCommit(ctx context.Context, hooks []Hooks, committed bool) {
	for _, h := range hooks {
		if h.AfterCommit != nil {
			h.AfterCommit(ctx, committed)
		}
	}
}
