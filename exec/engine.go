// Package exec implements the Execution Engine (C6): turns a planned
// statement (INSERT/UPDATE/DELETE or a query.Query SELECT) into SQL against
// a Dialect, runs it through the active txn.Manager scope's connection, and
// materialises results back into domain entities. It generalizes the
// teacher repository's repository.go (Create/BatchCreate/Upsert/Update/
// UpdateColumns/Delete/DeleteModel) from a single hard-coded dialect call
// per operation into an Engine parameterised by any dialect.Dialect and
// driven by the Write Planner's dirty-checking Decision instead of an
// always-full-row SetMap.
package exec

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/storm-repo/storm-framework-sub012/dialect"
	"github.com/storm-repo/storm-framework-sub012/hooks"
	"github.com/storm-repo/storm-framework-sub012/model"
	"github.com/storm-repo/storm-framework-sub012/observability"
	"github.com/storm-repo/storm-framework-sub012/plan"
	"github.com/storm-repo/storm-framework-sub012/query"
	"github.com/storm-repo/storm-framework-sub012/stormcfg"
	"github.com/storm-repo/storm-framework-sub012/stormerr"
	"github.com/storm-repo/storm-framework-sub012/template"
	"github.com/storm-repo/storm-framework-sub012/txn"
)

// Engine runs persistence operations for entity type T.
type Engine[T any] struct {
	Registry *model.Registry
	Typed    *model.TypedModel[T]
	Dialect  dialect.Dialect
	Txn      *txn.Manager
	Planner  *plan.Planner[T]
	Config   *stormcfg.Config
	// Hooks holds process-wide lifecycle hooks (registry path of the dual
	// hook mechanism); may be nil, in which case only the per-entity
	// BeforeCreateInterface-style interface hooks fire.
	Hooks *hooks.Registry
	// Unscoped bypasses the Model's SoftDelete column: Delete issues a hard
	// DELETE instead of the default soft-delete UPDATE.
	Unscoped bool
	// Obs instruments every statement this Engine runs with tracing, metrics
	// and structured logging; nil (the default) instruments nothing.
	Obs *observability.Config
}

// New constructs an Engine for tm, resolved from reg. cfg defaults to
// stormcfg.GlobalConfig.
func New[T any](reg *model.Registry, tm *model.TypedModel[T], d dialect.Dialect, tm7 *txn.Manager, cfg *stormcfg.Config) *Engine[T] {
	if cfg == nil {
		cfg = stormcfg.GlobalConfig
	}
	return &Engine[T]{
		Registry: reg,
		Typed:    tm,
		Dialect:  d,
		Txn:      tm7,
		Planner: plan.NewPlanner(tm, cfg),
		Config:  cfg,
	}
}

// WithHooks sets the Engine's registry-level hooks and returns e for chaining.
func (e *Engine[T]) WithHooks(r *hooks.Registry) *Engine[T] {
	e.Hooks = r
	return e
}

// WithUnscoped returns a copy of e that bypasses the Model's SoftDelete
// column: Delete on the returned Engine always hard-deletes.
func (e *Engine[T]) WithUnscoped() *Engine[T] {
	c := *e
	c.Unscoped = true
	return &c
}

// WithObservability sets the Engine's observability Config and returns e for
// chaining. cfg.DBSystem defaults to the Engine's Dialect name if unset.
func (e *Engine[T]) WithObservability(cfg *observability.Config) *Engine[T] {
	if cfg != nil && cfg.DBSystem == "" {
		cfg.DBSystem = e.Dialect.Name()
	}
	e.Obs = cfg
	return e
}

func (e *Engine[T]) table() string { return e.Typed.Table.Name }

// exec runs sqlStr through the active transaction scope's connection,
// instrumented via e.Obs.
func (e *Engine[T]) exec(ctx context.Context, op, sqlStr string, args ...any) (sql.Result, error) {
	var result sql.Result
	err := observability.Instrument(ctx, e.Obs, "storm."+op, op, sqlStr, func() error {
		var execErr error
		result, execErr = e.Txn.ConnFrom(ctx).ExecContext(ctx, sqlStr, args...)
		return execErr
	})
	return result, err
}

// queryRows runs sqlStr through the active transaction scope's connection,
// instrumented via e.Obs.
func (e *Engine[T]) queryRows(ctx context.Context, op, sqlStr string, args ...any) (*sql.Rows, error) {
	var rows *sql.Rows
	err := observability.Instrument(ctx, e.Obs, "storm."+op, op, sqlStr, func() error {
		var queryErr error
		rows, queryErr = e.Txn.ConnFrom(ctx).QueryContext(ctx, sqlStr, args...)
		return queryErr
	})
	return rows, err
}

// Insert runs a single-row INSERT, backfilling an IDENTITY primary key from
// the driver's last-insert-id when the Model declares one.
func (e *Engine[T]) Insert(ctx context.Context, rec *T) error {
	if err := hooks.Fire(ctx, e.Hooks, hooks.BeforeCreate, rec); err != nil {
		return err
	}
	cols, args, err := bindInsert[T](e.Typed.Model, e.Typed.Access, rec)
	if err != nil {
		return err
	}
	sqlStr, sqlArgs, err := sq.Insert(e.table()).Columns(cols...).Values(args...).
		PlaceholderFormat(e.Dialect.PlaceholderFormat()).ToSql()
	if err != nil {
		return err
	}
	result, err := e.exec(ctx, "insert", sqlStr, sqlArgs...)
	if err != nil {
		return &stormerr.Persistence{Op: "insert", SQL: sqlStr, Cause: err}
	}
	if e.Typed.PK.Kind == model.PKIdentity && len(e.Typed.PK.Columns) == 1 {
		if id, idErr := result.LastInsertId(); idErr == nil {
			_ = e.Typed.Access.SetColumnValue(rec, e.Typed.PK.Columns[0].Name, id)
		}
	}
	return hooks.Fire(ctx, e.Hooks, hooks.AfterCreate, rec)
}

// BatchInsert adds each record's binding to a statement batch and executes
// it in chunks of Config.BatchSize() rows (default 32), returning the
// concatenated per-row RowsAffected count in submission order. A row
// reporting 0 affected fails the whole batch, the same zero-rows-means-
// failure convention Update/Delete apply to their own version check.
// Because each record becomes its own INSERT statement (rather than one
// multi-row VALUES list per chunk), IDENTITY PKs are backfilled the same
// way a single Insert does, in submission order.
func (e *Engine[T]) BatchInsert(ctx context.Context, recs []*T) ([]int64, error) {
	if len(recs) == 0 {
		return nil, nil
	}
	for _, rec := range recs {
		if err := hooks.Fire(ctx, e.Hooks, hooks.BeforeCreate, rec); err != nil {
			return nil, err
		}
	}
	batchSize := e.Config.BatchSize()
	if batchSize <= 0 {
		batchSize = len(recs)
	}
	counts := make([]int64, 0, len(recs))
	for start := 0; start < len(recs); start += batchSize {
		end := start + batchSize
		if end > len(recs) {
			end = len(recs)
		}
		chunkCounts, err := e.insertBatch(ctx, recs[start:end])
		if err != nil {
			return nil, err
		}
		counts = append(counts, chunkCounts...)
	}
	for _, rec := range recs {
		if err := hooks.Fire(ctx, e.Hooks, hooks.AfterCreate, rec); err != nil {
			return counts, err
		}
	}
	return counts, nil
}

func (e *Engine[T]) insertBatch(ctx context.Context, recs []*T) ([]int64, error) {
	counts := make([]int64, 0, len(recs))
	for _, rec := range recs {
		cols, args, err := bindInsert[T](e.Typed.Model, e.Typed.Access, rec)
		if err != nil {
			return nil, err
		}
		sqlStr, sqlArgs, err := sq.Insert(e.table()).Columns(cols...).Values(args...).
			PlaceholderFormat(e.Dialect.PlaceholderFormat()).ToSql()
		if err != nil {
			return nil, err
		}
		result, err := e.exec(ctx, "batch insert", sqlStr, sqlArgs...)
		if err != nil {
			return nil, &stormerr.Persistence{Op: "batch insert", SQL: sqlStr, Cause: err}
		}
		n, _ := result.RowsAffected()
		if n == 0 {
			return nil, &stormerr.Persistence{Op: "batch insert", SQL: sqlStr, Cause: fmt.Errorf("storm: batch insert row affected 0 rows")}
		}
		if e.Typed.PK.Kind == model.PKIdentity && len(e.Typed.PK.Columns) == 1 {
			if id, idErr := result.LastInsertId(); idErr == nil {
				_ = e.Typed.Access.SetColumnValue(rec, e.Typed.PK.Columns[0].Name, id)
			}
		}
		counts = append(counts, n)
	}
	return counts, nil
}

// Upsert inserts rec, or updates updateCols on conflictCols if a
// conflicting row already exists. conflictCols defaults to the primary key,
// updateCols defaults to every insertable column not in conflictCols.
func (e *Engine[T]) Upsert(ctx context.Context, rec *T, conflictCols, updateCols []string) error {
	if err := hooks.Fire(ctx, e.Hooks, hooks.BeforeCreate, rec); err != nil {
		return err
	}
	cols, args, err := bindInsert[T](e.Typed.Model, e.Typed.Access, rec)
	if err != nil {
		return err
	}
	if len(conflictCols) == 0 {
		for _, c := range e.Typed.PK.Columns {
			conflictCols = append(conflictCols, c.Name)
		}
	}
	if len(updateCols) == 0 {
		for _, c := range cols {
			if !contains(conflictCols, c) {
				updateCols = append(updateCols, c)
			}
		}
	}
	upsertClause := e.Dialect.UpsertClause(e.table(), conflictCols, updateCols)
	builder := sq.Insert(e.table()).Columns(cols...).Values(args...).
		PlaceholderFormat(e.Dialect.PlaceholderFormat())
	if upsertClause != "" {
		builder = builder.Suffix(upsertClause)
	}
	sqlStr, sqlArgs, err := builder.ToSql()
	if err != nil {
		return err
	}
	_, err = e.exec(ctx, "upsert", sqlStr, sqlArgs...)
	if err != nil {
		return &stormerr.Persistence{Op: "upsert", SQL: sqlStr, Cause: err}
	}
	return hooks.Fire(ctx, e.Hooks, hooks.AfterCreate, rec)
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

// Update runs the Write Planner's dirty-checked UPDATE for rec, against any
// observation baseline captured for this table in the active transaction
// scope (txn.ObservationFor). A version column, if present, is always
// included and bumped, and a zero-rows-affected result after a version
// predicate is reported as stormerr.OptimisticLock.
func (e *Engine[T]) Update(ctx context.Context, rec *T) error {
	if err := hooks.Fire(ctx, e.Hooks, hooks.BeforeUpdate, rec); err != nil {
		return err
	}
	obs := txn.ObservationFor(ctx, e.table())
	decision, err := e.Planner.PlanUpdate(rec, obs)
	if err != nil {
		return err
	}
	if decision.Skip {
		return nil
	}

	builder := sq.Update(e.table())
	for _, col := range decision.Columns {
		v, err := e.Typed.Access.ColumnValue(rec, col)
		if err != nil {
			return err
		}
		dv, err := toDatabaseValue(e.Typed.Model, col, v)
		if err != nil {
			return err
		}
		builder = builder.Set(col, dv)
	}

	var currentVersion any
	if decision.BumpVersion {
		currentVersion, err = e.Typed.Access.ColumnValue(rec, decision.VersionColumn)
		if err != nil {
			return err
		}
		nextVersion, err := bumpVersion(currentVersion)
		if err != nil {
			return err
		}
		builder = builder.Set(decision.VersionColumn, nextVersion)
	}

	pkEq := sq.Eq{}
	for i, v := range e.Typed.Access.ExtractPK(rec) {
		pkEq[e.Typed.PK.Columns[i].Name] = v
	}
	builder = builder.Where(pkEq)
	if decision.BumpVersion {
		builder = builder.Where(sq.Eq{decision.VersionColumn: currentVersion})
	}
	builder = builder.PlaceholderFormat(e.Dialect.PlaceholderFormat())

	sqlStr, sqlArgs, err := builder.ToSql()
	if err != nil {
		return err
	}
	result, err := e.exec(ctx, "update", sqlStr, sqlArgs...)
	if err != nil {
		return &stormerr.Persistence{Op: "update", SQL: sqlStr, Cause: err}
	}
	if decision.BumpVersion {
		n, _ := result.RowsAffected()
		if n == 0 {
			return &stormerr.OptimisticLock{Table: e.table(), Version: currentVersion}
		}
		nextVersion, _ := bumpVersion(currentVersion)
		_ = e.Typed.Access.SetColumnValue(rec, decision.VersionColumn, nextVersion)
	}
	return hooks.Fire(ctx, e.Hooks, hooks.AfterUpdate, rec)
}

func bumpVersion(v any) (any, error) {
	switch n := v.(type) {
	case int:
		return n + 1, nil
	case int32:
		return n + 1, nil
	case int64:
		return n + 1, nil
	default:
		return nil, fmt.Errorf("storm: unsupported version column type %T", v)
	}
}

// Delete removes rec by primary key, enforcing a version predicate when the
// Model declares one (reporting stormerr.OptimisticLock on a zero-rows
// result, the same convention as Update). If the Model declares a
// SoftDelete column and the Engine isn't Unscoped, this issues an UPDATE
// marking the row deleted instead of removing it (the teacher's
// Delete/DeleteModel soft-delete branching, generalized to any model
// declaring the column rather than one hard-coded interface method).
func (e *Engine[T]) Delete(ctx context.Context, rec *T) error {
	if err := hooks.Fire(ctx, e.Hooks, hooks.BeforeDelete, rec); err != nil {
		return err
	}

	pkEq := sq.Eq{}
	for i, v := range e.Typed.Access.ExtractPK(rec) {
		pkEq[e.Typed.PK.Columns[i].Name] = v
	}

	var currentVersion any
	var versionErr error
	if e.Typed.Version != nil {
		currentVersion, versionErr = e.Typed.Access.ColumnValue(rec, e.Typed.Version.Name)
		if versionErr != nil {
			return versionErr
		}
	}

	var sqlStr string
	var sqlArgs []any
	var err error
	if sd := e.Typed.Model.SoftDelete; sd != nil && !e.Unscoped {
		deletedAt := softDeleteSentinel(e.Typed.Model.Type, sd.FieldIndex)
		builder := sq.Update(e.table()).Set(sd.Name, deletedAt).Where(pkEq)
		if e.Typed.Version != nil {
			builder = builder.Where(sq.Eq{e.Typed.Version.Name: currentVersion})
		}
		sqlStr, sqlArgs, err = builder.PlaceholderFormat(e.Dialect.PlaceholderFormat()).ToSql()
	} else {
		builder := sq.Delete(e.table()).Where(pkEq)
		if e.Typed.Version != nil {
			builder = builder.Where(sq.Eq{e.Typed.Version.Name: currentVersion})
		}
		sqlStr, sqlArgs, err = builder.PlaceholderFormat(e.Dialect.PlaceholderFormat()).ToSql()
	}
	if err != nil {
		return err
	}

	result, err := e.exec(ctx, "delete", sqlStr, sqlArgs...)
	if err != nil {
		return &stormerr.Persistence{Op: "delete", SQL: sqlStr, Cause: err}
	}
	if e.Typed.Version != nil {
		n, _ := result.RowsAffected()
		if n == 0 {
			return &stormerr.OptimisticLock{Table: e.table(), Version: currentVersion}
		}
	}
	return hooks.Fire(ctx, e.Hooks, hooks.AfterDelete, rec)
}

// Restore clears rec's SoftDelete column, undoing a prior soft Delete.
// A no-op (returns nil) on a model without a SoftDelete column.
func (e *Engine[T]) Restore(ctx context.Context, rec *T) error {
	sd := e.Typed.Model.SoftDelete
	if sd == nil {
		return nil
	}
	pkEq := sq.Eq{}
	for i, v := range e.Typed.Access.ExtractPK(rec) {
		pkEq[e.Typed.PK.Columns[i].Name] = v
	}
	sqlStr, sqlArgs, err := sq.Update(e.table()).Set(sd.Name, nil).Where(pkEq).
		PlaceholderFormat(e.Dialect.PlaceholderFormat()).ToSql()
	if err != nil {
		return err
	}
	if _, err := e.exec(ctx, "restore", sqlStr, sqlArgs...); err != nil {
		return &stormerr.Persistence{Op: "restore", SQL: sqlStr, Cause: err}
	}
	return nil
}

// DeleteByID hard- or soft-deletes (per Model.SoftDelete/Unscoped, same as
// Delete) the row identified by pkValues, without requiring a loaded *T.
// No lifecycle hooks fire, since there is no entity instance to pass them —
// matching the teacher's id-based Delete.
func (e *Engine[T]) DeleteByID(ctx context.Context, pkValues ...any) error {
	pkEq := sq.Eq{}
	for i, v := range pkValues {
		pkEq[e.Typed.PK.Columns[i].Name] = v
	}
	var sqlStr string
	var sqlArgs []any
	var err error
	if sd := e.Typed.Model.SoftDelete; sd != nil && !e.Unscoped {
		deletedAt := softDeleteSentinel(e.Typed.Model.Type, sd.FieldIndex)
		sqlStr, sqlArgs, err = sq.Update(e.table()).Set(sd.Name, deletedAt).Where(pkEq).
			PlaceholderFormat(e.Dialect.PlaceholderFormat()).ToSql()
	} else {
		sqlStr, sqlArgs, err = sq.Delete(e.table()).Where(pkEq).
			PlaceholderFormat(e.Dialect.PlaceholderFormat()).ToSql()
	}
	if err != nil {
		return err
	}
	if _, err := e.exec(ctx, "delete", sqlStr, sqlArgs...); err != nil {
		return &stormerr.Persistence{Op: "delete", SQL: sqlStr, Cause: err}
	}
	return nil
}

// UpdateColumns applies an explicit column->value SET list to the row
// identified by pkValues, bypassing the Write Planner's dirty-checking
// entirely — for callers that already know exactly which columns changed
// and don't have (or don't want to load) a full *T. No version check and no
// lifecycle hooks.
func (e *Engine[T]) UpdateColumns(ctx context.Context, pkValues []any, cols map[string]any) error {
	if len(cols) == 0 {
		return nil
	}
	pkEq := sq.Eq{}
	for i, v := range pkValues {
		pkEq[e.Typed.PK.Columns[i].Name] = v
	}
	builder := sq.Update(e.table()).Where(pkEq)
	for col, v := range cols {
		dv, err := toDatabaseValue(e.Typed.Model, col, v)
		if err != nil {
			return err
		}
		builder = builder.Set(col, dv)
	}
	sqlStr, sqlArgs, err := builder.PlaceholderFormat(e.Dialect.PlaceholderFormat()).ToSql()
	if err != nil {
		return err
	}
	if _, err := e.exec(ctx, "update columns", sqlStr, sqlArgs...); err != nil {
		return &stormerr.Persistence{Op: "update columns", SQL: sqlStr, Cause: err}
	}
	return nil
}

// FirstOrCreate returns the single row matching q, or Inserts defaults and
// returns it if none matched.
func (e *Engine[T]) FirstOrCreate(ctx context.Context, q *query.Query, defaults *T) (*T, error) {
	rec, err := e.GetSingleResult(ctx, q)
	if err == nil {
		return rec, nil
	}
	var noResult *stormerr.NoResult
	if !errors.As(err, &noResult) {
		return nil, err
	}
	if err := e.Insert(ctx, defaults); err != nil {
		return nil, fmt.Errorf("storm: first or create: %w", err)
	}
	return defaults, nil
}

// softDeleteSentinel picks the "deleted" mark for a soft-delete column from
// the underlying Go field's type: time.Time-kinded fields get the current
// timestamp, bool fields get true; anything else defaults to true as well,
// matching the teacher's SoftDeleteValue() contract of "any non-live value".
func softDeleteSentinel(t reflect.Type, fieldIndex []int) any {
	f := t.FieldByIndex(fieldIndex)
	if f.Type == reflect.TypeOf(time.Time{}) || f.Type == reflect.TypeOf(&time.Time{}) {
		return time.Now()
	}
	return true
}

// Get returns the single row matching pkValues (in Model.PK.Columns order),
// reporting stormerr.NoResult if none matched.
func (e *Engine[T]) Get(ctx context.Context, pkValues ...any) (*T, error) {
	q := query.SelectFrom(e.Registry, e.Typed.Type)
	for i, col := range e.Typed.PK.Columns {
		q = q.Where(rawEq{alias: q.Alias(), column: col.Name, value: pkValues[i]})
	}
	sqlStr, sqlArgs, err := q.PlaceholderFormat(e.Dialect.PlaceholderFormat())
	if err != nil {
		return nil, err
	}
	rows, err := e.queryRows(ctx, "get", sqlStr, sqlArgs...)
	if err != nil {
		return nil, &stormerr.Persistence{Op: "get", SQL: sqlStr, Cause: err}
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, &stormerr.NoResult{Query: sqlStr}
	}
	rec, err := scanRow[T](rows, e.Typed.Model, e.Typed.Access)
	if err != nil {
		return nil, err
	}
	return rec, rows.Err()
}

// rawEq is a raw equality predicate for a column already known by name
// (used for PK lookups, where the column is certain rather than resolved
// through a metamodel.Field); it satisfies template.Expression structurally
// without importing package template.
type rawEq struct {
	alias, column string
	value         any
}

func (r rawEq) Build() (string, []any) {
	return r.alias + "." + r.column + " = ?", []any{r.value}
}

// FindAll runs q and materialises every matching row as a *T.
func (e *Engine[T]) FindAll(ctx context.Context, q *query.Query) ([]*T, error) {
	sqlStr, sqlArgs, err := q.PlaceholderFormat(e.Dialect.PlaceholderFormat())
	if err != nil {
		return nil, err
	}
	sqlStr = appendLockClause(sqlStr, e.Dialect, q.LockMode())
	rows, err := e.queryRows(ctx, "query", sqlStr, sqlArgs...)
	if err != nil {
		return nil, &stormerr.Persistence{Op: "query", SQL: sqlStr, Cause: err}
	}
	defer rows.Close()
	var out []*T
	for rows.Next() {
		rec, err := scanRow[T](rows, e.Typed.Model, e.Typed.Access)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// QueryTemplate expands text — a {Type}-annotated template string parsed
// and rendered by package template's two-phase algorithm — against e.Registry
// and runs the resulting SELECT, materialising every matching row as a *T.
// This is the runtime entry point for the FK auto-join graph the Expander
// builds from Model.FKs: a caller writes "SELECT {Pet} FROM {Pet} WHERE
// {Pet}.id = {id}" once instead of chaining InnerJoin/LeftJoin by hand, and
// the referenced models' own PKs and joins come from the registered FK tags.
// Every argument must appear literally in text (as {value}); text has no
// separate bind-var slots.
func (e *Engine[T]) QueryTemplate(ctx context.Context, text string) ([]*T, error) {
	ts, err := template.Parse(text, e.Registry)
	if err != nil {
		return nil, err
	}
	expander := &template.Expander{Registry: e.Registry, Escape: e.Dialect.Quote}
	rawSQL, params, err := expander.Expand(ts)
	if err != nil {
		return nil, err
	}
	sqlStr, err := e.Dialect.PlaceholderFormat().ReplacePlaceholders(rawSQL)
	if err != nil {
		return nil, err
	}
	rows, err := e.queryRows(ctx, "query template", sqlStr, params...)
	if err != nil {
		return nil, &stormerr.Persistence{Op: "query template", SQL: sqlStr, Cause: err}
	}
	defer rows.Close()
	var out []*T
	for rows.Next() {
		rec, err := scanTemplateRow[T](rows, e.Typed.Model, e.Typed.Access)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// GetSingleResult runs q expecting exactly one matching row, reporting
// stormerr.NoResult or stormerr.NonUniqueResult otherwise (spec.md §4.6).
func (e *Engine[T]) GetSingleResult(ctx context.Context, q *query.Query) (*T, error) {
	recs, err := e.FindAll(ctx, q)
	if err != nil {
		return nil, err
	}
	sqlStr, _, _ := q.ToSQL()
	if len(recs) == 0 {
		return nil, &stormerr.NoResult{Query: sqlStr}
	}
	if len(recs) > 1 {
		return nil, &stormerr.NonUniqueResult{Query: sqlStr, Count: len(recs)}
	}
	return recs[0], nil
}

// Take returns the first row q matches (no implicit ORDER BY beyond
// whatever q already carries), or stormerr.NoResult if none matched.
func (e *Engine[T]) Take(ctx context.Context, q *query.Query) (*T, error) {
	recs, err := e.FindAll(ctx, q.Limit(1))
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		sqlStr, _, _ := q.ToSQL()
		return nil, &stormerr.NoResult{Query: sqlStr}
	}
	return recs[0], nil
}

// First orders q by every one of orderCols ascending and returns the first
// match, the teacher's First() convenience generalized to an explicit
// ordering instead of an assumed primary-key column.
func (e *Engine[T]) First(ctx context.Context, q *query.Query, orderCols ...string) (*T, error) {
	for _, col := range orderCols {
		q = q.OrderBy(col, false)
	}
	return e.Take(ctx, q)
}

// Last orders q by every one of orderCols descending and returns the first
// match (i.e. what would be last in ascending order).
func (e *Engine[T]) Last(ctx context.Context, q *query.Query, orderCols ...string) (*T, error) {
	for _, col := range orderCols {
		q = q.OrderBy(col, true)
	}
	return e.Take(ctx, q)
}

// FirstOr returns the first row q matches, or fallback() if none matched.
func (e *Engine[T]) FirstOr(ctx context.Context, q *query.Query, fallback func() *T) (*T, error) {
	rec, err := e.Take(ctx, q)
	if err == nil {
		return rec, nil
	}
	var noResult *stormerr.NoResult
	if !errors.As(err, &noResult) {
		return nil, err
	}
	return fallback(), nil
}

// Chunk runs q page by page (size rows per page, ordered by orderCols to
// keep pages stable across round trips) and calls fn with each page, the
// teacher's Chunk bulk-processing convenience: unlike Stream it issues one
// query per page rather than holding a single cursor open, trading memory
// for stream duration against extra round trips.
func (e *Engine[T]) Chunk(ctx context.Context, q *query.Query, size int, orderCols []string, fn func([]*T) error) error {
	if size == 0 {
		size = e.Config.ChunkSize()
	}
	if size < 0 {
		return fmt.Errorf("storm: chunk size must be positive, got %d", size)
	}
	for _, col := range orderCols {
		q = q.OrderBy(col, false)
	}
	for offset := uint64(0); ; offset += uint64(size) {
		page, err := e.FindAll(ctx, q.Limit(uint64(size)).Offset(offset))
		if err != nil {
			return err
		}
		if len(page) == 0 {
			return nil
		}
		if err := fn(page); err != nil {
			return err
		}
		if len(page) < size {
			return nil
		}
	}
}

// AggregateFloat runs q (built via Query.Sum/Avg/Count or similar) and
// scans its single aggregate result column into a float64.
func (e *Engine[T]) AggregateFloat(ctx context.Context, q *query.Query) (float64, error) {
	var result float64
	if err := e.aggregateScan(ctx, q, &result); err != nil {
		return 0, err
	}
	return result, nil
}

// AggregateAny runs q and scans its single aggregate result column into an
// any, for aggregates (MIN/MAX) whose result type tracks the aggregated
// column rather than always being numeric.
func (e *Engine[T]) AggregateAny(ctx context.Context, q *query.Query) (any, error) {
	var result any
	if err := e.aggregateScan(ctx, q, &result); err != nil {
		return nil, err
	}
	return result, nil
}

func (e *Engine[T]) aggregateScan(ctx context.Context, q *query.Query, dest any) error {
	sqlStr, sqlArgs, err := q.PlaceholderFormat(e.Dialect.PlaceholderFormat())
	if err != nil {
		return err
	}
	err = observability.Instrument(ctx, e.Obs, "storm.aggregate", "aggregate", sqlStr, func() error {
		return e.Txn.ConnFrom(ctx).QueryRowContext(ctx, sqlStr, sqlArgs...).Scan(dest)
	})
	if err != nil {
		return &stormerr.Persistence{Op: "aggregate", SQL: sqlStr, Cause: err}
	}
	return nil
}

// Rows is a forward-only iterator over streamed query results, the
// low-memory path for large result sets (spec.md §4.6's streaming
// operation), as opposed to FindAll's buffer-everything materialisation.
type Rows[T any] struct {
	rows   *sql.Rows
	model  *model.Model
	access model.RecordAccess[T]
}

// Stream opens q for row-at-a-time iteration. Callers must call Close.
func (e *Engine[T]) Stream(ctx context.Context, q *query.Query) (*Rows[T], error) {
	sqlStr, sqlArgs, err := q.PlaceholderFormat(e.Dialect.PlaceholderFormat())
	if err != nil {
		return nil, err
	}
	sqlStr = appendLockClause(sqlStr, e.Dialect, q.LockMode())
	rows, err := e.queryRows(ctx, "stream", sqlStr, sqlArgs...)
	if err != nil {
		return nil, &stormerr.Persistence{Op: "stream", SQL: sqlStr, Cause: err}
	}
	return &Rows[T]{rows: rows, model: e.Typed.Model, access: e.Typed.Access}, nil
}

// Next advances to and decodes the next row, returning (nil, nil) once the
// result set is exhausted.
func (r *Rows[T]) Next() (*T, error) {
	if !r.rows.Next() {
		return nil, r.rows.Err()
	}
	return scanRow[T](r.rows, r.model, r.access)
}

// Close releases the underlying *sql.Rows.
func (r *Rows[T]) Close() error { return r.rows.Close() }

// appendLockClause appends the dialect's row-lock hint to a rendered SELECT,
// after placeholder rewriting, since a lock hint binds no parameters of its
// own. LockNone, or a mode the dialect renders as "" (sqlite has no lock
// clause at all), leaves sqlStr untouched.
func appendLockClause(sqlStr string, d dialect.Dialect, mode query.LockMode) string {
	var dm dialect.LockMode
	switch mode {
	case query.LockForShare:
		dm = dialect.LockForShare
	case query.LockForUpdate:
		dm = dialect.LockForUpdate
	default:
		return sqlStr
	}
	clause := d.LockClause(dm)
	if clause == "" {
		return sqlStr
	}
	return sqlStr + " " + clause
}

// scanTemplateRow decodes the current row of rows into a new *T, matching
// only the leading columns against m's own non-FK columns in Columns order
// — the order the Expander's SelectNested mode always projects the main
// entity's columns in, before any joined tables' columns. Trailing columns
// contributed by FK auto-joins (e.g. a referenced table's own "name") are
// read off the wire so Scan's column count still matches, but aren't
// hydrated: a QueryTemplate caller gets rows of a single entity type T, so
// matching by name the way scanRow does would misattribute same-named
// columns from a joined table (e.g. two tables both having a "name" column).
func scanTemplateRow[T any](rows *sql.Rows, m *model.Model, access model.RecordAccess[T]) (*T, error) {
	names, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	dest := make([]any, len(names))
	for i := range dest {
		dest[i] = new(any)
	}
	if err := rows.Scan(dest...); err != nil {
		return nil, err
	}
	rec := access.New()
	pos := 0
	for i, c := range m.Columns {
		if _, isFK := m.FKs[i]; isFK {
			continue
		}
		if pos >= len(names) {
			break
		}
		raw := *(dest[pos].(*any))
		pos++
		v, err := fromDatabaseValue(m, c.Name, raw)
		if err != nil {
			return nil, err
		}
		if v == nil {
			continue
		}
		if err := access.SetColumnValue(rec, c.Name, v); err != nil {
			continue
		}
	}
	return rec, nil
}

// scanRow decodes the current row of rows into a new *T, matching returned
// column names against m.Columns and routing each value through its
// Converter.FromDatabase before writing it via access.
func scanRow[T any](rows *sql.Rows, m *model.Model, access model.RecordAccess[T]) (*T, error) {
	names, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	dest := make([]any, len(names))
	for i := range dest {
		dest[i] = new(any)
	}
	if err := rows.Scan(dest...); err != nil {
		return nil, err
	}
	rec := access.New()
	for i, name := range names {
		col, ok := m.ColumnByName(name)
		if !ok {
			continue
		}
		raw := *(dest[i].(*any))
		v, err := fromDatabaseValue(m, col.Name, raw)
		if err != nil {
			return nil, err
		}
		if v == nil {
			continue
		}
		if err := access.SetColumnValue(rec, col.Name, v); err != nil {
			// A type mismatch here usually means the driver returned a
			// native type (e.g. []byte for TEXT) that doesn't directly
			// convert to the struct field; leave the zero value rather
			// than failing the whole row.
			continue
		}
	}
	return rec, nil
}
