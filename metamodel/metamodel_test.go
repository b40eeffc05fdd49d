package metamodel

import (
	"errors"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storm-repo/storm-framework-sub012/stormerr"
)

type author struct{}
type book struct{}
type tag struct{}

func TestGraphCloneIsIndependent(t *testing.T) {
	authorType := reflect.TypeOf(author{})
	bookType := reflect.TypeOf(book{})
	tagType := reflect.TypeOf(tag{})

	g := NewGraph(authorType, "a")
	g.Join(bookType, "b")

	clone := g.Clone()
	clone.Join(tagType, "t")

	// The clone's extra join must not leak back into g.
	_, ok := g.AliasOf(tagType)
	assert.False(t, ok, "joining the clone must not mutate the original graph")

	alias, ok := clone.AliasOf(tagType)
	require.True(t, ok)
	assert.Equal(t, "t", alias)

	// Both graphs still agree on what they shared before the clone.
	alias, ok = g.AliasOf(bookType)
	require.True(t, ok)
	assert.Equal(t, "b", alias)
	alias, ok = clone.AliasOf(bookType)
	require.True(t, ok)
	assert.Equal(t, "b", alias)
}

func TestGraphJoinExtendsRatherThanReplaces(t *testing.T) {
	// Regression test: Query.join used to rebuild the graph from scratch on
	// every join call, discarding earlier joins. Clone+Join is how query.go
	// now does it; this test pins the Graph-level contract that makes that
	// fix correct.
	authorType := reflect.TypeOf(author{})
	bookType := reflect.TypeOf(book{})
	tagType := reflect.TypeOf(tag{})

	g := NewGraph(authorType, "a")
	step1 := g.Clone()
	step1.Join(bookType, "b")

	step2 := step1.Clone()
	step2.Join(tagType, "t")

	for _, tc := range []struct {
		typ   reflect.Type
		alias string
	}{
		{authorType, "a"},
		{bookType, "b"},
		{tagType, "t"},
	} {
		alias, ok := step2.AliasOf(tc.typ)
		require.True(t, ok, "expected %v to resolve after two chained joins", tc.typ)
		assert.Equal(t, tc.alias, alias)
	}
}

func TestResolveAmbiguous(t *testing.T) {
	authorType := reflect.TypeOf(author{})
	bookType := reflect.TypeOf(book{})

	g := NewGraph(authorType, "a")
	g.Join(bookType, "b1")
	g.Join(bookType, "b2")

	_, _, err := g.Resolve(Field{TableType: bookType, Path: "book.id", Column: "id"}, CASCADE)
	require.Error(t, err)
	var amb *stormerr.AmbiguousTableError
	assert.True(t, errors.As(err, &amb))
}

func TestResolveOuterScope(t *testing.T) {
	authorType := reflect.TypeOf(author{})
	bookType := reflect.TypeOf(book{})

	outer := NewGraph(authorType, "a")
	inner := NewGraph(bookType, "b").WithOuter(outer)

	alias, col, err := inner.Resolve(Field{TableType: authorType, Path: "author.id", Column: "id"}, OUTER)
	require.NoError(t, err)
	assert.Equal(t, "a", alias)
	assert.Equal(t, "id", col)

	// LOCAL must not see the outer graph at all.
	_, _, err = inner.Resolve(Field{TableType: authorType, Path: "author.id", Column: "id"}, LOCAL)
	assert.Error(t, err)
}
