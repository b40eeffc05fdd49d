package txn

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storm-repo/storm-framework-sub012/driver/sqlxdriver"
	"github.com/storm-repo/storm-framework-sub012/stormerr"
)

// newTxTestDB opens a shared-cache in-memory SQLite database so multiple
// pooled connections (needed to exercise RequiresNew's independent physical
// transaction) still see the same schema and data, unlike a bare ":memory:"
// DSN where every new connection gets its own throwaway database.
func newTxTestDB(t *testing.T) *Manager {
	t.Helper()
	db, err := sql.Open("sqlite3", "file::memory:?cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`CREATE TABLE tx_rows (id INTEGER PRIMARY KEY AUTOINCREMENT, label TEXT NOT NULL)`)
	require.NoError(t, err)

	d := sqlxdriver.Open(db, "sqlite3")
	return NewManager(d)
}

func insertLabel(ctx context.Context, conn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}, label string) error {
	_, err := conn.ExecContext(ctx, "INSERT INTO tx_rows (label) VALUES (?)", label)
	return err
}

func countLabels(t *testing.T, m *Manager, ctx context.Context) int {
	t.Helper()
	row := m.ConnFrom(ctx).QueryRowContext(ctx, "SELECT COUNT(*) FROM tx_rows")
	var n int
	require.NoError(t, row.Scan(&n))
	return n
}

func TestRequiredStartsTransactionAndCommits(t *testing.T) {
	m := newTxTestDB(t)
	ctx := context.Background()

	err := m.Execute(ctx, Options{Propagation: Required}, func(ctx context.Context) error {
		return insertLabel(ctx, m.ConnFrom(ctx), "a")
	})
	require.NoError(t, err)
	assert.Equal(t, 1, countLabels(t, m, ctx))
}

func TestRequiredRollsBackOnError(t *testing.T) {
	m := newTxTestDB(t)
	ctx := context.Background()
	wantErr := errors.New("boom")

	err := m.Execute(ctx, Options{Propagation: Required}, func(ctx context.Context) error {
		if insErr := insertLabel(ctx, m.ConnFrom(ctx), "a"); insErr != nil {
			return insErr
		}
		return wantErr
	})
	assert.Same(t, wantErr, err)
	assert.Equal(t, 0, countLabels(t, m, ctx))
}

func TestRequiredJoinsExistingScopeRatherThanNesting(t *testing.T) {
	m := newTxTestDB(t)
	ctx := context.Background()

	err := m.Execute(ctx, Options{Propagation: Required}, func(ctx context.Context) error {
		if err := insertLabel(ctx, m.ConnFrom(ctx), "outer"); err != nil {
			return err
		}
		return m.Execute(ctx, Options{Propagation: Required}, func(ctx context.Context) error {
			return insertLabel(ctx, m.ConnFrom(ctx), "inner")
		})
	})
	require.NoError(t, err)
	assert.Equal(t, 2, countLabels(t, m, ctx))
}

func TestNestedSavepointRollsBackOnlyItsOwnWork(t *testing.T) {
	m := newTxTestDB(t)
	ctx := context.Background()
	wantErr := errors.New("nested failure")

	err := m.Execute(ctx, Options{Propagation: Required}, func(ctx context.Context) error {
		if err := insertLabel(ctx, m.ConnFrom(ctx), "outer"); err != nil {
			return err
		}
		nestedErr := m.Execute(ctx, Options{Propagation: Nested}, func(ctx context.Context) error {
			if err := insertLabel(ctx, m.ConnFrom(ctx), "nested"); err != nil {
				return err
			}
			return wantErr
		})
		assert.Same(t, wantErr, nestedErr)
		// The outer scope must be unaffected by the savepoint rollback and
		// able to continue and commit its own work.
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, countLabels(t, m, ctx), "only the outer insert should have survived")
}

func TestRequiresNewCommitsIndependentlyOfOuterRollback(t *testing.T) {
	m := newTxTestDB(t)
	ctx := context.Background()
	outerErr := errors.New("outer rollback")

	err := m.Execute(ctx, Options{Propagation: Required}, func(ctx context.Context) error {
		innerErr := m.Execute(ctx, Options{Propagation: RequiresNew}, func(ctx context.Context) error {
			return insertLabel(ctx, m.ConnFrom(ctx), "independent")
		})
		require.NoError(t, innerErr)
		return outerErr
	})
	assert.Same(t, outerErr, err)

	// Query outside any scope to see committed state.
	assert.Equal(t, 1, countLabels(t, m, ctx), "RequiresNew's own transaction must survive the outer rollback")
}

func TestMandatoryFailsWithoutActiveTransaction(t *testing.T) {
	m := newTxTestDB(t)
	ctx := context.Background()

	err := m.Execute(ctx, Options{Propagation: Mandatory}, func(ctx context.Context) error {
		t.Fatal("fn must not run when MANDATORY has no active transaction")
		return nil
	})
	require.Error(t, err)
	var violation *stormerr.PropagationViolation
	require.True(t, errors.As(err, &violation))
	assert.Equal(t, "MANDATORY", violation.Propagation)
}

func TestMandatoryJoinsAnAlreadyActiveTransaction(t *testing.T) {
	m := newTxTestDB(t)
	ctx := context.Background()

	err := m.Execute(ctx, Options{Propagation: Required}, func(ctx context.Context) error {
		return m.Execute(ctx, Options{Propagation: Mandatory}, func(ctx context.Context) error {
			return insertLabel(ctx, m.ConnFrom(ctx), "mandatory")
		})
	})
	require.NoError(t, err)
	assert.Equal(t, 1, countLabels(t, m, ctx))
}

func TestNeverFailsWhenATransactionIsActive(t *testing.T) {
	m := newTxTestDB(t)
	ctx := context.Background()

	err := m.Execute(ctx, Options{Propagation: Required}, func(ctx context.Context) error {
		return m.Execute(ctx, Options{Propagation: Never}, func(ctx context.Context) error {
			t.Fatal("fn must not run when NEVER finds an active transaction")
			return nil
		})
	})
	require.Error(t, err)
	var violation *stormerr.PropagationViolation
	require.True(t, errors.As(err, &violation))
	assert.Equal(t, "NEVER", violation.Propagation)
}

func TestSupportsRunsWithoutForcingATransaction(t *testing.T) {
	m := newTxTestDB(t)
	ctx := context.Background()
	ran := false

	err := m.Execute(ctx, Options{Propagation: Supports}, func(ctx context.Context) error {
		ran = true
		s, _ := ctx.Value(scopeKey{}).(*scope)
		assert.Nil(t, s, "SUPPORTS must not start a transaction when none is active")
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
}

func TestNotSupportedSuspendsAnActiveTransaction(t *testing.T) {
	m := newTxTestDB(t)
	ctx := context.Background()

	err := m.Execute(ctx, Options{Propagation: Required}, func(ctx context.Context) error {
		if err := insertLabel(ctx, m.ConnFrom(ctx), "outer"); err != nil {
			return err
		}
		return m.Execute(ctx, Options{Propagation: NotSupported}, func(ctx context.Context) error {
			s, ok := ctx.Value(scopeKey{}).(*scope)
			assert.True(t, ok)
			assert.Nil(t, s, "NotSupported must suspend the active scope, not merely skip starting a new one")
			return nil
		})
	})
	require.NoError(t, err)
	assert.Equal(t, 1, countLabels(t, m, ctx))
}

func TestSetRollbackOnlyForcesRollbackDespiteNilReturn(t *testing.T) {
	m := newTxTestDB(t)
	ctx := context.Background()

	err := m.Execute(ctx, Options{Propagation: Required}, func(ctx context.Context) error {
		if err := insertLabel(ctx, m.ConnFrom(ctx), "doomed"); err != nil {
			return err
		}
		SetRollbackOnly(ctx)
		return nil
	})
	require.Error(t, err)
	var unexpected *stormerr.UnexpectedRollback
	assert.True(t, errors.As(err, &unexpected))
	assert.Equal(t, 0, countLabels(t, m, ctx))
}

func TestObservationForReturnsNilOutsideAnyScope(t *testing.T) {
	ctx := context.Background()
	assert.Nil(t, ObservationFor(ctx, "tx_rows"))
}

func TestObserveAndObservationForRoundTripWithinScope(t *testing.T) {
	m := newTxTestDB(t)
	ctx := context.Background()

	err := m.Execute(ctx, Options{Propagation: Required}, func(ctx context.Context) error {
		Observe(ctx, "tx_rows", map[string]any{"label": "baseline"})
		obs := ObservationFor(ctx, "tx_rows")
		require.NotNil(t, obs)
		v, ok := obs.ColumnSnapshot("label")
		assert.True(t, ok)
		assert.Equal(t, "baseline", v)

		_, missing := obs.ColumnSnapshot("nonexistent")
		assert.False(t, missing)
		return nil
	})
	require.NoError(t, err)
}
