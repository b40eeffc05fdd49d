package exec

import (
	"context"
	"database/sql"
	"reflect"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storm-repo/storm-framework-sub012/dialect/sqlite"
	"github.com/storm-repo/storm-framework-sub012/driver/sqlxdriver"
	"github.com/storm-repo/storm-framework-sub012/metamodel"
	"github.com/storm-repo/storm-framework-sub012/model"
	"github.com/storm-repo/storm-framework-sub012/query"
	"github.com/storm-repo/storm-framework-sub012/template"
	"github.com/storm-repo/storm-framework-sub012/txn"
)

type joinDept struct {
	ID   int    `db:"id,identity"`
	Name string `db:"name"`
}

type joinMember struct {
	ID           int    `db:"id,identity"`
	Name         string `db:"name"`
	DepartmentID int    `db:"department_id"`
}

// TestInnerJoinFiltersOnJoinedTableColumn mirrors a join-then-filter query
// executed end to end against a real database (not just rendered SQL), the
// way legacy/integration_test.go's JoinQuery subtest found members by
// filtering on their joined department's name.
func TestInnerJoinFiltersOnJoinedTableColumn(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`CREATE TABLE join_depts (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT NOT NULL)`)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE join_members (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		department_id INTEGER NOT NULL
	)`)
	require.NoError(t, err)

	reg := model.NewRegistry()
	deptType := reflect.TypeOf(joinDept{})
	memberType := reflect.TypeOf(joinMember{})
	reg.RegisterNamed("joinDept", deptType)
	reg.RegisterNamed("joinMember", memberType)

	memberTyped, err := model.Typed[joinMember](reg)
	require.NoError(t, err)

	d := sqlxdriver.Open(db, "sqlite3")
	tm := txn.NewManager(d)
	members := New[joinMember](reg, memberTyped, sqlite.Dialect{}, tm, nil)

	ctx := context.Background()
	_, err = db.Exec(`INSERT INTO join_depts (name) VALUES ('Engineering'), ('Sales')`)
	require.NoError(t, err)
	require.NoError(t, members.Insert(ctx, &joinMember{Name: "Alice", DepartmentID: 1}))
	require.NoError(t, members.Insert(ctx, &joinMember{Name: "Bob", DepartmentID: 1}))
	require.NoError(t, members.Insert(ctx, &joinMember{Name: "Charlie", DepartmentID: 2}))

	// The join's ON condition spans both tables, one of which (join_depts)
	// isn't part of q's graph yet, so it can't be built via
	// q.Predicates().EqCol the way an already-resolvable predicate can (see
	// query_test.go's TestMultiJoinChainAccumulatesAliases). It's built
	// directly from the two sides' table aliases instead, computed the same
	// deterministic way InnerJoin itself will compute them.
	onDept := template.EqCol{
		Left:  template.Column{Table: template.AliasForTableName("join_members"), Name: "department_id"},
		Right: template.Column{Table: template.AliasForTableName("join_depts"), Name: "id"},
	}

	q := query.SelectFrom(reg, memberType).InnerJoin(deptType, onDept)
	q = q.Where(q.Predicates().Eq(metamodel.Of(deptType, deptType, "name"), "Engineering"))

	engineers, err := members.FindAll(ctx, q)
	require.NoError(t, err)
	assert.Len(t, engineers, 2)
	for _, m := range engineers {
		assert.NotEqual(t, "Charlie", m.Name)
	}
}
