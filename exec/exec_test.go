package exec

import (
	"context"
	"database/sql"
	"reflect"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storm-repo/storm-framework-sub012/dialect/mysql"
	"github.com/storm-repo/storm-framework-sub012/dialect/postgres"
	"github.com/storm-repo/storm-framework-sub012/dialect/sqlite"
	"github.com/storm-repo/storm-framework-sub012/driver/sqlxdriver"
	"github.com/storm-repo/storm-framework-sub012/metamodel"
	"github.com/storm-repo/storm-framework-sub012/model"
	"github.com/storm-repo/storm-framework-sub012/query"
	"github.com/storm-repo/storm-framework-sub012/stormcfg"
	"github.com/storm-repo/storm-framework-sub012/stormerr"
	"github.com/storm-repo/storm-framework-sub012/txn"
)

type execUser struct {
	ID    int    `db:"id,identity"`
	Name  string `db:"name"`
	Email string `db:"email"`
}

type execPost struct {
	ID        int        `db:"id,identity"`
	Title     string     `db:"title"`
	DeletedAt *time.Time `db:"deleted_at,softDelete"`
}

// setupEngine opens an in-memory SQLite database, creates both fixture
// tables and returns a ready-to-use Engine for execUser, the way
// legacy/setup_test.go wired a *sqlc.Session against a raw *sql.DB.
func setupEngine(t *testing.T) (*Engine[execUser], *sql.DB) {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`CREATE TABLE exec_users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		email TEXT NOT NULL
	)`)
	require.NoError(t, err)

	reg := model.NewRegistry()
	typed, err := model.Typed[execUser](reg)
	require.NoError(t, err)

	d := sqlxdriver.Open(db, "sqlite3")
	tm := txn.NewManager(d)
	e := New[execUser](reg, typed, sqlite.Dialect{}, tm, nil)
	return e, db
}

func setupPostEngine(t *testing.T) *Engine[execPost] {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`CREATE TABLE exec_posts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		deleted_at DATETIME
	)`)
	require.NoError(t, err)

	reg := model.NewRegistry()
	typed, err := model.Typed[execPost](reg)
	require.NoError(t, err)

	d := sqlxdriver.Open(db, "sqlite3")
	tm := txn.NewManager(d)
	return New[execPost](reg, typed, sqlite.Dialect{}, tm, nil)
}

func TestInsertBackfillsIdentityPK(t *testing.T) {
	e, _ := setupEngine(t)
	ctx := context.Background()

	u := &execUser{Name: "Ada", Email: "ada@example.com"}
	require.NoError(t, e.Insert(ctx, u))
	assert.NotZero(t, u.ID)
}

func TestGetReturnsInsertedRow(t *testing.T) {
	e, _ := setupEngine(t)
	ctx := context.Background()

	u := &execUser{Name: "Grace", Email: "grace@example.com"}
	require.NoError(t, e.Insert(ctx, u))

	got, err := e.Get(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Grace", got.Name)
	assert.Equal(t, "grace@example.com", got.Email)
}

func TestGetReportsNoResult(t *testing.T) {
	e, _ := setupEngine(t)
	_, err := e.Get(context.Background(), 999)
	require.Error(t, err)
	var nr *stormerr.NoResult
	assert.ErrorAs(t, err, &nr)
}

func TestUpdatePersistsChangedColumns(t *testing.T) {
	e, _ := setupEngine(t)
	ctx := context.Background()

	u := &execUser{Name: "Linus", Email: "linus@example.com"}
	require.NoError(t, e.Insert(ctx, u))

	u.Email = "torvalds@example.com"
	require.NoError(t, e.Update(ctx, u))

	got, err := e.Get(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "torvalds@example.com", got.Email)
}

func TestUpdateColumnsAppliesExplicitSetListWithoutDirtyCheck(t *testing.T) {
	e, _ := setupEngine(t)
	ctx := context.Background()

	u := &execUser{Name: "Ada", Email: "ada@example.com"}
	require.NoError(t, e.Insert(ctx, u))

	require.NoError(t, e.UpdateColumns(ctx, []any{u.ID}, map[string]any{"email": "ada@new.com"}))

	got, err := e.Get(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "ada@new.com", got.Email)
	assert.Equal(t, "Ada", got.Name)
}

func TestBatchInsertInsertsAllRows(t *testing.T) {
	e, _ := setupEngine(t)
	ctx := context.Background()

	recs := []*execUser{
		{Name: "A", Email: "a@example.com"},
		{Name: "B", Email: "b@example.com"},
		{Name: "C", Email: "c@example.com"},
	}
	counts, err := e.BatchInsert(ctx, recs)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 1, 1}, counts)
	for _, rec := range recs {
		assert.NotZero(t, rec.ID, "IDENTITY PK should be backfilled per row, same as a single Insert")
	}

	all, err := e.FindAll(ctx, query.SelectFrom(e.Registry, reflect.TypeOf(execUser{})))
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestBatchInsertChunksAtConfiguredBatchSize(t *testing.T) {
	e, _ := setupEngine(t)
	e.Config = stormcfg.NewDefaultConfig()
	e.Config.Set(stormcfg.KeyBatchDefaultSize, "2")
	ctx := context.Background()

	recs := []*execUser{
		{Name: "A", Email: "a@example.com"},
		{Name: "B", Email: "b@example.com"},
		{Name: "C", Email: "c@example.com"},
	}
	counts, err := e.BatchInsert(ctx, recs)
	require.NoError(t, err)
	assert.Len(t, counts, 3, "one RowsAffected entry per record regardless of how many chunks it took")
}

func TestTakeFirstLast(t *testing.T) {
	e, _ := setupEngine(t)
	ctx := context.Background()

	for _, name := range []string{"Ann", "Bob", "Cid"} {
		require.NoError(t, e.Insert(ctx, &execUser{Name: name, Email: name + "@example.com"}))
	}

	first, err := e.First(ctx, query.SelectFrom(e.Registry, reflect.TypeOf(execUser{})), "name")
	require.NoError(t, err)
	assert.Equal(t, "Ann", first.Name)

	last, err := e.Last(ctx, query.SelectFrom(e.Registry, reflect.TypeOf(execUser{})), "name")
	require.NoError(t, err)
	assert.Equal(t, "Cid", last.Name)

	took, err := e.Take(ctx, query.SelectFrom(e.Registry, reflect.TypeOf(execUser{})))
	require.NoError(t, err)
	assert.NotNil(t, took)
}

func TestFirstOrFallsBackWhenNoMatch(t *testing.T) {
	e, _ := setupEngine(t)
	ctx := context.Background()

	fallback := &execUser{Name: "fallback"}
	q := query.SelectFrom(e.Registry, reflect.TypeOf(execUser{}))
	rec, err := e.FirstOr(ctx, q, func() *execUser { return fallback })
	require.NoError(t, err)
	assert.Same(t, fallback, rec)
}

func TestChunkProcessesAllPages(t *testing.T) {
	e, _ := setupEngine(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, e.Insert(ctx, &execUser{Name: "user", Email: "user@example.com"}))
	}

	var seen int
	var pages int
	err := e.Chunk(ctx, query.SelectFrom(e.Registry, reflect.TypeOf(execUser{})), 2, []string{"id"}, func(page []*execUser) error {
		pages++
		seen += len(page)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 5, seen)
	assert.Equal(t, 3, pages) // 2 + 2 + 1
}

func TestAggregateFloatCountsRows(t *testing.T) {
	e, _ := setupEngine(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		require.NoError(t, e.Insert(ctx, &execUser{Name: "n", Email: "n@example.com"}))
	}

	q := query.SelectFrom(e.Registry, reflect.TypeOf(execUser{})).CountAll()
	count, err := e.AggregateFloat(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, float64(4), count)
}

func TestFirstOrCreateInsertsWhenMissing(t *testing.T) {
	e, _ := setupEngine(t)
	ctx := context.Background()

	defaults := &execUser{Name: "Created", Email: "created@example.com"}
	userType := reflect.TypeOf(execUser{})
	q := query.SelectFrom(e.Registry, userType)
	q = q.Where(q.Predicates().Eq(metamodel.Of(userType, userType, "email"), "created@example.com"))
	rec, err := e.FirstOrCreate(ctx, q, defaults)
	require.NoError(t, err)
	assert.Equal(t, "Created", rec.Name)
	assert.NotZero(t, rec.ID)
}

func TestSoftDeleteExcludesByDefaultAndRestoreReverses(t *testing.T) {
	e := setupPostEngine(t)
	ctx := context.Background()

	p := &execPost{Title: "hello"}
	require.NoError(t, e.Insert(ctx, p))

	require.NoError(t, e.Delete(ctx, p))
	_, err := e.Get(ctx, p.ID)
	require.Error(t, err, "soft-deleted row must be excluded by default")

	require.NoError(t, e.Restore(ctx, p))
	got, err := e.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Title)
}

func TestWithTrashedSeesSoftDeletedRows(t *testing.T) {
	e := setupPostEngine(t)
	ctx := context.Background()

	p := &execPost{Title: "trashed"}
	require.NoError(t, e.Insert(ctx, p))
	require.NoError(t, e.Delete(ctx, p))

	q := query.SelectFrom(e.Registry, reflect.TypeOf(execPost{})).WithTrashed()
	all, err := e.FindAll(ctx, q)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestUnscopedHardDeletesDespiteSoftDeleteColumn(t *testing.T) {
	e := setupPostEngine(t)
	unscoped := e.WithUnscoped()
	ctx := context.Background()

	p := &execPost{Title: "gone"}
	require.NoError(t, unscoped.Insert(ctx, p))
	require.NoError(t, unscoped.Delete(ctx, p))

	q := query.SelectFrom(e.Registry, reflect.TypeOf(execPost{})).WithTrashed()
	all, err := e.FindAll(ctx, q)
	require.NoError(t, err)
	assert.Empty(t, all, "a hard delete leaves no row at all, even under WithTrashed")
}

func TestAppendLockClauseHonorsDialectAndMode(t *testing.T) {
	base := "SELECT id FROM users"

	assert.Equal(t, base, appendLockClause(base, postgres.Dialect{}, query.LockNone))
	assert.Equal(t, base+" FOR SHARE", appendLockClause(base, postgres.Dialect{}, query.LockForShare))
	assert.Equal(t, base+" FOR UPDATE", appendLockClause(base, postgres.Dialect{}, query.LockForUpdate))
	assert.Equal(t, base+" LOCK IN SHARE MODE", appendLockClause(base, mysql.Dialect{}, query.LockForShare))

	// sqlite renders every lock mode as "", so a ForUpdate query still runs
	// (no lock clause, not a syntax error) rather than being rejected.
	assert.Equal(t, base, appendLockClause(base, sqlite.Dialect{}, query.LockForUpdate))
}

type execPetType struct {
	ID   int    `db:"id,identity"`
	Name string `db:"name"`
}

func (execPetType) TableName() string { return "pet_type" }

type execOwner struct {
	ID        int    `db:"id,identity"`
	FirstName string `db:"first_name"`
}

func (execOwner) TableName() string { return "owner" }

type execPet struct {
	ID      int    `db:"id,identity"`
	Name    string `db:"name"`
	TypeID  int    `db:"type_id,fk:PetType:type_id:id"`
	OwnerID int    `db:"owner_id,optional,fk:Owner:owner_id:id"`
}

func (execPet) TableName() string { return "pet" }

// setupPetEngine wires a Pet/PetType/Owner schema (the §8 scenario 1
// walkthrough's fixture) against an in-memory SQLite database, exercising
// QueryTemplate's Registry-driven FK auto-join end to end.
func setupPetEngine(t *testing.T) *Engine[execPet] {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	for _, stmt := range []string{
		`CREATE TABLE pet_type (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT NOT NULL)`,
		`CREATE TABLE owner (id INTEGER PRIMARY KEY AUTOINCREMENT, first_name TEXT NOT NULL)`,
		`CREATE TABLE pet (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			type_id INTEGER NOT NULL,
			owner_id INTEGER
		)`,
	} {
		_, err = db.Exec(stmt)
		require.NoError(t, err)
	}

	reg := model.NewRegistry()
	reg.RegisterNamed("PetType", reflect.TypeOf(execPetType{}))
	reg.RegisterNamed("Owner", reflect.TypeOf(execOwner{}))
	reg.RegisterNamed("Pet", reflect.TypeOf(execPet{}))
	typed, err := model.Typed[execPet](reg)
	require.NoError(t, err)

	d := sqlxdriver.Open(db, "sqlite3")
	tm := txn.NewManager(d)
	return New[execPet](reg, typed, sqlite.Dialect{}, tm, nil)
}

func TestQueryTemplateExpandsFKAutoJoinAndRunsIt(t *testing.T) {
	e := setupPetEngine(t)
	ctx := context.Background()

	_, err := e.Txn.ConnFrom(ctx).ExecContext(ctx, `INSERT INTO pet_type (id, name) VALUES (1, 'Dog')`)
	require.NoError(t, err)
	_, err = e.Txn.ConnFrom(ctx).ExecContext(ctx, `INSERT INTO owner (id, first_name) VALUES (1, 'Sam')`)
	require.NoError(t, err)
	_, err = e.Txn.ConnFrom(ctx).ExecContext(ctx,
		`INSERT INTO pet (id, name, type_id, owner_id) VALUES (7, 'Rex', 1, 1)`)
	require.NoError(t, err)

	pets, err := e.QueryTemplate(ctx, "SELECT {Pet} FROM {Pet} WHERE {Pet}.id = {7}")
	require.NoError(t, err)
	require.Len(t, pets, 1)
	assert.Equal(t, "Rex", pets[0].Name)
}

func TestFindAllAppendsForUpdateLockClauseViaRealQuery(t *testing.T) {
	e, _ := setupEngine(t)
	ctx := context.Background()
	require.NoError(t, e.Insert(ctx, &execUser{Name: "Grace", Email: "grace@example.com"}))

	q := query.SelectFrom(e.Registry, reflect.TypeOf(execUser{})).ForUpdate()
	assert.Equal(t, query.LockForUpdate, q.LockMode())

	// sqlite's LockClause is always "", so the query still runs to
	// completion; the assertion that matters here is that FindAll consults
	// q.LockMode() at all rather than silently dropping it.
	rows, err := e.FindAll(ctx, q)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
