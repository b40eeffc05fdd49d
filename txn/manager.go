// Package txn implements the Transaction Manager (C7): scope propagation,
// savepoints, isolation and timeout control, and per-row observation
// capture for the Write Planner (C5). It generalizes the teacher
// repository's session.go Begin/Commit/Rollback/Transaction pair — which
// only ever nests by reusing the same *Session — into the full seven-way
// propagation matrix spec.md §5 requires, using a context-carried scope
// stack instead of a single mutable Session field so RequiresNew and Nested
// scopes can coexist with a suspended outer scope.
package txn

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/storm-repo/storm-framework-sub012/driver"
	"github.com/storm-repo/storm-framework-sub012/observability"
	"github.com/storm-repo/storm-framework-sub012/stormerr"
)

// Isolation mirrors database/sql's isolation levels without requiring
// callers to import it directly.
type Isolation = sql.IsolationLevel

const (
	IsolationDefault        = sql.LevelDefault
	IsolationReadUncommited = sql.LevelReadUncommitted
	IsolationReadCommitted  = sql.LevelReadCommitted
	IsolationRepeatableRead = sql.LevelRepeatableRead
	IsolationSerializable   = sql.LevelSerializable
)

// Options configures one transactional scope.
type Options struct {
	Propagation Propagation
	Isolation   Isolation
	ReadOnly    bool
	// Timeout bounds the scope's lifetime; zero means no Storm-managed
	// deadline beyond whatever the caller's context already carries.
	Timeout time.Duration
}

type scopeKey struct{}

// scope is one entry in the propagation stack. A nil *scope stored on the
// context represents "no transaction active" (Supports/NotSupported).
type scope struct {
	tx       driver.Tx
	conn     driver.Conn
	depth    int // savepoint nesting depth within this physical transaction
	rollback bool
	cancel   context.CancelFunc

	mu    sync.Mutex
	obs   map[string]map[string]any // table -> column -> snapshot value, last-observed-wins
}

func (s *scope) MarkRollbackOnly() {
	s.mu.Lock()
	s.rollback = true
	s.mu.Unlock()
}

func (s *scope) IsRollbackOnly() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rollback
}

// Observe records table's column snapshots as read inside this scope, the
// baseline the Write Planner later dirty-checks against.
func (s *scope) Observe(table string, columns map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.obs == nil {
		s.obs = make(map[string]map[string]any)
	}
	cp := make(map[string]any, len(columns))
	for k, v := range columns {
		cp[k] = v
	}
	s.obs[table] = cp
}

// ObservationRecord implements plan.Observation against one table's
// captured baseline within a scope.
type ObservationRecord struct {
	snapshot map[string]any
}

func (o *ObservationRecord) ColumnSnapshot(column string) (any, bool) {
	if o == nil || o.snapshot == nil {
		return nil, false
	}
	v, ok := o.snapshot[column]
	return v, ok
}

// ObservationFor returns the baseline recorded for table in the scope
// active on ctx, or nil if nothing was ever observed (callers treat a nil
// Observation as "always full-row UPDATE", matching plan.Planner.PlanUpdate).
func ObservationFor(ctx context.Context, table string) *ObservationRecord {
	s, ok := ctx.Value(scopeKey{}).(*scope)
	if !ok || s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.obs[table]
	if !ok {
		return nil
	}
	return &ObservationRecord{snapshot: snap}
}

// Observe records table's column snapshots against the scope active on ctx;
// a no-op when no scope is active (code running under Supports/Never with
// no outer transaction never gets observation baselines).
func Observe(ctx context.Context, table string, columns map[string]any) {
	if s, ok := ctx.Value(scopeKey{}).(*scope); ok && s != nil {
		s.Observe(table, columns)
	}
}

// Manager runs functions within transactional scopes against one Driver.
type Manager struct {
	driver driver.Driver
	// Obs instruments every transaction and savepoint boundary this Manager
	// opens with tracing, metrics and structured logging; nil instruments
	// nothing.
	Obs *observability.Config
}

func NewManager(d driver.Driver) *Manager {
	return &Manager{driver: d}
}

// WithObservability sets the Manager's observability Config and returns m
// for chaining.
func (m *Manager) WithObservability(cfg *observability.Config) *Manager {
	m.Obs = cfg
	return m
}

// ConnFrom returns the Conn (transaction or top-level connection) the
// Execution Engine should issue statements against for ctx.
func (m *Manager) ConnFrom(ctx context.Context) driver.Conn {
	if s, ok := ctx.Value(scopeKey{}).(*scope); ok && s != nil && s.conn != nil {
		return s.conn
	}
	return m.driver.Conn()
}

// SetRollbackOnly marks the active scope (if any) so it rolls back even if
// fn later returns nil, spec.md §5's cooperative rollback-only signal.
func SetRollbackOnly(ctx context.Context) {
	if s, ok := ctx.Value(scopeKey{}).(*scope); ok && s != nil {
		s.MarkRollbackOnly()
	}
}

// Execute runs fn within a scope shaped by opts.Propagation, implementing
// the full matrix: Required joins-or-starts, RequiresNew always suspends
// and starts fresh, Nested opens a savepoint (or a fresh transaction if
// none is active yet), Supports/Never/NotSupported run without forcing a
// transaction, and Mandatory/Never reject a caller in the wrong state.
func (m *Manager) Execute(ctx context.Context, opts Options, fn func(ctx context.Context) error) (err error) {
	current, _ := ctx.Value(scopeKey{}).(*scope)
	active := current != nil && current.tx != nil

	switch opts.Propagation {
	case Mandatory:
		if !active {
			return &stormerr.PropagationViolation{Propagation: "MANDATORY", Reason: "no active transaction"}
		}
		return fn(ctx)

	case Never:
		if active {
			return &stormerr.PropagationViolation{Propagation: "NEVER", Reason: "a transaction is already active"}
		}
		return fn(ctx)

	case NotSupported:
		return fn(context.WithValue(ctx, scopeKey{}, (*scope)(nil)))

	case Supports:
		if active {
			return fn(ctx)
		}
		return fn(context.WithValue(ctx, scopeKey{}, (*scope)(nil)))

	case Nested:
		if active {
			return m.runSavepoint(ctx, current, fn)
		}
		return m.runNewTransaction(ctx, opts, fn)

	case RequiresNew:
		return m.runNewTransaction(ctx, opts, fn)

	default: // Required
		if active {
			return fn(ctx)
		}
		return m.runNewTransaction(ctx, opts, fn)
	}
}

// runNewTransaction opens a fresh physical transaction, instrumented as a
// single span/metric/log record covering begin through commit-or-rollback.
func (m *Manager) runNewTransaction(ctx context.Context, opts Options, fn func(ctx context.Context) error) error {
	return observability.Instrument(ctx, m.Obs, "storm.transaction", "transaction", "", func() error {
		return m.execNewTransaction(ctx, opts, fn)
	})
}

func (m *Manager) execNewTransaction(ctx context.Context, opts Options, fn func(ctx context.Context) error) (err error) {
	runCtx := ctx
	var cancel context.CancelFunc
	if opts.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
	}

	tx, err := m.driver.BeginTx(runCtx, driver.TxOptions{Isolation: opts.Isolation, ReadOnly: opts.ReadOnly})
	if err != nil {
		if cancel != nil {
			cancel()
		}
		return fmt.Errorf("begin transaction: %w", err)
	}

	s := &scope{tx: tx, conn: tx, cancel: cancel}
	runCtx = context.WithValue(runCtx, scopeKey{}, s)

	defer func() {
		if cancel != nil {
			cancel()
		}
	}()

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	err = fn(runCtx)

	if err != nil || s.IsRollbackOnly() {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("rollback after %w: %w", err, rbErr)
		}
		if err == nil {
			return &stormerr.UnexpectedRollback{Reason: "scope was marked rollback-only"}
		}
		return err
	}

	if runCtx.Err() != nil {
		_ = tx.Rollback()
		return &stormerr.TransactionTimedOut{Reason: runCtx.Err().Error()}
	}

	if cErr := tx.Commit(); cErr != nil {
		return fmt.Errorf("commit transaction: %w", cErr)
	}
	return nil
}

// runSavepoint implements Nested propagation when a physical transaction is
// already open: a named SAVEPOINT is created, and rolled back to (not the
// whole transaction) on error, using a uuid-suffixed name so concurrently
// nested scopes on the same connection never collide.
func (m *Manager) runSavepoint(ctx context.Context, parent *scope, fn func(ctx context.Context) error) error {
	return observability.Instrument(ctx, m.Obs, "storm.savepoint", "savepoint", "", func() error {
		return m.execSavepoint(ctx, parent, fn)
	})
}

func (m *Manager) execSavepoint(ctx context.Context, parent *scope, fn func(ctx context.Context) error) (err error) {
	// Hyphens are not valid in an unquoted SQL identifier.
	name := "storm_sp_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	if _, execErr := parent.conn.ExecContext(ctx, "SAVEPOINT "+name); execErr != nil {
		return fmt.Errorf("create savepoint: %w", execErr)
	}

	child := &scope{tx: parent.tx, conn: parent.conn, depth: parent.depth + 1}
	nestedCtx := context.WithValue(ctx, scopeKey{}, child)

	defer func() {
		if p := recover(); p != nil {
			_, _ = parent.conn.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name)
			panic(p)
		}
	}()

	err = fn(nestedCtx)

	if err != nil || child.IsRollbackOnly() {
		if _, rbErr := parent.conn.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name); rbErr != nil {
			if err == nil {
				return fmt.Errorf("rollback to savepoint: %w", rbErr)
			}
			return fmt.Errorf("%w (additionally, rollback to savepoint failed: %v)", err, rbErr)
		}
		if err == nil {
			return &stormerr.UnexpectedRollback{Reason: "nested scope was marked rollback-only"}
		}
		return err
	}

	_, err = parent.conn.ExecContext(ctx, "RELEASE SAVEPOINT "+name)
	return err
}
