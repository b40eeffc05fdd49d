package template

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storm-repo/storm-framework-sub012/model"
)

// Pet/PetType/Owner mirror the basic-select-with-join walkthrough: Pet has a
// required FK to PetType (renders as an INNER JOIN) and an optional FK to
// Owner (renders as a LEFT JOIN), in that order.
type templatePet struct {
	ID        int    `db:"id,identity"`
	Name      string `db:"name"`
	BirthDate string `db:"birth_date"`
	TypeID    int    `db:"type_id,fk:PetType:type_id:id"`
	OwnerID   int    `db:"owner_id,optional,fk:Owner:owner_id:id"`
}

func (templatePet) TableName() string { return "pet" }

type templatePetType struct {
	ID   int    `db:"id,identity"`
	Name string `db:"name"`
}

func (templatePetType) TableName() string { return "pet_type" }

type templateOwner struct {
	ID        int    `db:"id,identity"`
	FirstName string `db:"first_name"`
}

func (templateOwner) TableName() string { return "owner" }

func newPetRegistry(t *testing.T) *model.Registry {
	t.Helper()
	reg := model.NewRegistry()
	reg.RegisterNamed("Pet", reflect.TypeOf(templatePet{}))
	reg.RegisterNamed("PetType", reflect.TypeOf(templatePetType{}))
	reg.RegisterNamed("Owner", reflect.TypeOf(templateOwner{}))
	return reg
}

func TestParseAndExpandBasicSelectWithJoin(t *testing.T) {
	reg := newPetRegistry(t)

	ts, err := Parse("SELECT {Pet} FROM {Pet} WHERE {Pet}.id = {7}", reg)
	require.NoError(t, err)

	expander := &Expander{Registry: reg}
	sqlStr, args, err := expander.Expand(ts)
	require.NoError(t, err)

	assert.Equal(t,
		"SELECT p.id, p.name, p.birth_date, pt.id, pt.name, o.id, o.first_name "+
			"FROM pet p INNER JOIN pet_type pt ON p.type_id=pt.id LEFT JOIN owner o ON p.owner_id=o.id "+
			"WHERE p.id = ?",
		sqlStr)
	assert.Equal(t, []any{int64(7)}, args)
}

// TestExpandIsIdempotent exercises the idempotency guarantee Expand's doc
// comment promises: expanding the same TemplateString against the same
// Registry state twice must yield byte-identical SQL and args both times.
func TestExpandIsIdempotent(t *testing.T) {
	reg := newPetRegistry(t)
	ts, err := Parse("SELECT {Pet} FROM {Pet} WHERE {Pet}.id = {7}", reg)
	require.NoError(t, err)

	expander := &Expander{Registry: reg}
	sql1, args1, err := expander.Expand(ts)
	require.NoError(t, err)
	sql2, args2, err := expander.Expand(ts)
	require.NoError(t, err)

	assert.Equal(t, sql1, sql2)
	assert.Equal(t, args1, args2)
}

func TestParseClassifiesAliasReferenceWhenFollowedByDot(t *testing.T) {
	reg := newPetRegistry(t)
	ts, err := Parse("{Pet}.name", reg)
	require.NoError(t, err)
	require.Len(t, ts.Elements, 1)
	_, ok := ts.Elements[0].(AliasElem)
	assert.True(t, ok, "a type token immediately followed by '.' should classify as an alias reference")
}

func TestParseClassifiesUpdateTargetAfterUpdateKeyword(t *testing.T) {
	reg := newPetRegistry(t)
	ts, err := Parse("UPDATE {Pet} SET name = {1}", reg)
	require.NoError(t, err)
	require.Len(t, ts.Elements, 2)
	_, ok := ts.Elements[0].(UpdateElem)
	assert.True(t, ok)
}

func TestParseRejectsUnterminatedPlaceholder(t *testing.T) {
	reg := newPetRegistry(t)
	_, err := Parse("SELECT {Pet FROM {Pet}", reg)
	assert.Error(t, err)
}

func TestParseRejectsUnknownTypeToken(t *testing.T) {
	reg := newPetRegistry(t)
	_, err := Parse("SELECT {Bogus} FROM {Bogus}", reg)
	assert.Error(t, err)
}

func TestAliasForTableNameTakesFirstLetterOfEachWord(t *testing.T) {
	assert.Equal(t, "p", AliasForTableName("pet"))
	assert.Equal(t, "pt", AliasForTableName("pet_type"))
	assert.Equal(t, "o", AliasForTableName("owner"))
}

func TestExpandEscapesIdentifiersThroughEscaper(t *testing.T) {
	reg := newPetRegistry(t)
	ts, err := Parse("SELECT {Pet} FROM {Pet}", reg)
	require.NoError(t, err)

	expander := &Expander{Registry: reg, Escape: func(ident string) string { return `"` + ident + `"` }}
	sqlStr, _, err := expander.Expand(ts)
	require.NoError(t, err)
	assert.Contains(t, sqlStr, `"pet"`)
	assert.Contains(t, sqlStr, `"id"`)
}
