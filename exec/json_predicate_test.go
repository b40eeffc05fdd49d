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
	"github.com/storm-repo/storm-framework-sub012/txn"
)

type jsonDoc struct {
	ID       int    `db:"id,identity"`
	Name     string `db:"name"`
	Settings string `db:"settings"`
}

// TestJSONPathEqFiltersOnNestedValue exercises a JSON-path predicate end to
// end against a real database, the way 05_json_type's fixtures stored
// structured preferences in a single text column and queried into them.
func TestJSONPathEqFiltersOnNestedValue(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`CREATE TABLE json_docs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		settings TEXT NOT NULL
	)`)
	require.NoError(t, err)

	reg := model.NewRegistry()
	docType := reflect.TypeOf(jsonDoc{})
	typed, err := model.Typed[jsonDoc](reg)
	require.NoError(t, err)

	d := sqlxdriver.Open(db, "sqlite3")
	tm := txn.NewManager(d)
	dialectImpl := sqlite.Dialect{}
	docs := New[jsonDoc](reg, typed, dialectImpl, tm, nil)

	ctx := context.Background()
	require.NoError(t, docs.Insert(ctx, &jsonDoc{Name: "ann", Settings: `{"theme":"dark","notifications":{"email":true}}`}))
	require.NoError(t, docs.Insert(ctx, &jsonDoc{Name: "bob", Settings: `{"theme":"light","notifications":{"email":false}}`}))

	q := query.SelectFrom(reg, docType)
	q = q.Where(q.Predicates().JSONPathEq(dialectImpl, metamodel.Of(docType, docType, "settings"), "$.theme", "dark"))

	matches, err := docs.FindAll(ctx, q)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "ann", matches[0].Name)
}
