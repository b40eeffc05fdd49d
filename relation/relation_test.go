package relation

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
	"github.com/storm-repo/storm-framework-sub012/exec"
	"github.com/storm-repo/storm-framework-sub012/metamodel"
	"github.com/storm-repo/storm-framework-sub012/model"
	"github.com/storm-repo/storm-framework-sub012/txn"
)

type relAuthor struct {
	ID      int    `db:"id,identity"`
	Name    string `db:"name"`
	Books   []*relBook
	Profile *relProfile
}

type relBook struct {
	ID       int    `db:"id,identity"`
	AuthorID int    `db:"author_id"`
	Title    string `db:"title"`
}

type relProfile struct {
	ID       int    `db:"id,identity"`
	AuthorID int    `db:"author_id"`
	Bio      string `db:"bio"`
}

// newChildEngine opens an in-memory SQLite database, creates the table
// for T, and returns a ready exec.Engine[T], mirroring exec_test.go's
// setupEngine helper but parameterized by the caller's DDL.
func newChildEngine[T any](t *testing.T, ddl string) *exec.Engine[T] {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(ddl)
	require.NoError(t, err)

	reg := model.NewRegistry()
	typed, err := model.Typed[T](reg)
	require.NoError(t, err)

	d := sqlxdriver.Open(db, "sqlite3")
	tm := txn.NewManager(d)
	return exec.New[T](reg, typed, sqlite.Dialect{}, tm, nil)
}

func bookRelation() Relation[relAuthor, relBook] {
	authorType := reflect.TypeOf(relAuthor{})
	bookType := reflect.TypeOf(relBook{})
	return HasMany[relAuthor, relBook](
		metamodel.Of(bookType, bookType, "author_id"),
		metamodel.Of(authorType, authorType, "id"),
		func(a *relAuthor, children []*relBook) { a.Books = children },
		func(a *relAuthor) any { return a.ID },
	)
}

func profileRelation() Relation[relAuthor, relProfile] {
	authorType := reflect.TypeOf(relAuthor{})
	profileType := reflect.TypeOf(relProfile{})
	return HasOne[relAuthor, relProfile](
		metamodel.Of(profileType, profileType, "author_id"),
		metamodel.Of(authorType, authorType, "id"),
		func(a *relAuthor, p *relProfile) { a.Profile = p },
		func(a *relAuthor) any { return a.ID },
	)
}

func TestPreloadHasManyBatchesAcrossParents(t *testing.T) {
	books := newChildEngine[relBook](t, `CREATE TABLE rel_books (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		author_id INTEGER NOT NULL,
		title TEXT NOT NULL
	)`)
	ctx := context.Background()

	require.NoError(t, books.Insert(ctx, &relBook{AuthorID: 1, Title: "Go in Practice"}))
	require.NoError(t, books.Insert(ctx, &relBook{AuthorID: 1, Title: "Go Further"}))
	require.NoError(t, books.Insert(ctx, &relBook{AuthorID: 2, Title: "Concurrency Patterns"}))

	authors := []*relAuthor{{ID: 1, Name: "Ann"}, {ID: 2, Name: "Bo"}, {ID: 3, Name: "Cid"}}
	require.NoError(t, Preload(ctx, books, bookRelation(), authors))

	assert.Len(t, authors[0].Books, 2)
	assert.Len(t, authors[1].Books, 1)
	assert.Empty(t, authors[2].Books, "an author with no matching rows still gets a non-nil empty slice")
	assert.NotNil(t, authors[2].Books)
}

func TestPreloadHasOneAssignsSingleChildOrNil(t *testing.T) {
	profiles := newChildEngine[relProfile](t, `CREATE TABLE rel_profiles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		author_id INTEGER NOT NULL,
		bio TEXT NOT NULL
	)`)
	ctx := context.Background()
	require.NoError(t, profiles.Insert(ctx, &relProfile{AuthorID: 1, Bio: "writes Go"}))

	authors := []*relAuthor{{ID: 1, Name: "Ann"}, {ID: 2, Name: "Bo"}}
	require.NoError(t, Preload(ctx, profiles, profileRelation(), authors))

	require.NotNil(t, authors[0].Profile)
	assert.Equal(t, "writes Go", authors[0].Profile.Bio)
	assert.Nil(t, authors[1].Profile, "an author with no matching profile stays nil")
}

func TestPreloadIsNoopForEmptyParentSlice(t *testing.T) {
	err := Preload[relAuthor, relBook](context.Background(), nil, bookRelation(), nil)
	assert.NoError(t, err, "an empty parent slice must short-circuit before touching the child engine")
}

func TestPreloadDedupesRepeatedLocalKeys(t *testing.T) {
	books := newChildEngine[relBook](t, `CREATE TABLE rel_books (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		author_id INTEGER NOT NULL,
		title TEXT NOT NULL
	)`)
	ctx := context.Background()
	require.NoError(t, books.Insert(ctx, &relBook{AuthorID: 7, Title: "Shared"}))

	// Two distinct *relAuthor values sharing the same local key (as would
	// happen if the same parent row were loaded twice into separate structs)
	// must not produce duplicate IN() placeholders or duplicate children.
	a1 := &relAuthor{ID: 7, Name: "Ann"}
	a2 := &relAuthor{ID: 7, Name: "Ann (dup)"}
	require.NoError(t, Preload(ctx, books, bookRelation(), []*relAuthor{a1, a2}))

	assert.Len(t, a1.Books, 1)
	assert.Len(t, a2.Books, 1)
}

type relTag struct {
	ID   string `db:"id,identity"`
	Name string `db:"name"`
}

type relItem struct {
	ID    int    `db:"id,identity"`
	TagID string `db:"tag_id"`
	Name  string `db:"name"`
}

// TestPreloadWithStringLocalKey guards against the normalize-every-key-to-
// int64 approach some preloaders use to make differently-typed keys
// comparable as map keys: a string primary key (as opposed to the int ones
// every other case in this file uses) must preload correctly on its own
// terms, not get silently coerced and lose its matches.
func TestPreloadWithStringLocalKey(t *testing.T) {
	items := newChildEngine[relItem](t, `CREATE TABLE rel_items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		tag_id TEXT NOT NULL,
		name TEXT NOT NULL
	)`)
	ctx := context.Background()
	require.NoError(t, items.Insert(ctx, &relItem{TagID: "golang", Name: "ORM"}))
	require.NoError(t, items.Insert(ctx, &relItem{TagID: "golang", Name: "Generics"}))

	tagType := reflect.TypeOf(relTag{})
	itemType := reflect.TypeOf(relItem{})
	var loaded []*relItem
	rel := HasMany[relTag, relItem](
		metamodel.Of(itemType, itemType, "tag_id"),
		metamodel.Of(tagType, tagType, "id"),
		func(tg *relTag, children []*relItem) { loaded = children },
		func(tg *relTag) any { return tg.ID },
	)

	tags := []*relTag{{ID: "golang", Name: "Go Programming"}}
	require.NoError(t, Preload(ctx, items, rel, tags))
	assert.Len(t, loaded, 2, "both items tagged 'golang' must preload under a string local key")
}
