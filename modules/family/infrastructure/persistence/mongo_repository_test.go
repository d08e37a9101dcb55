package persistence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/iota-uz/familytree/modules/family/domain/aggregates/member"
)

func lookup(d bson.D, key string) (any, bool) {
	for _, e := range d {
		if e.Key == key {
			return e.Value, true
		}
	}
	return nil, false
}

func TestMongoFilter_NameAndDate(t *testing.T) {
	t.Parallel()

	dob := time.Date(1980, 5, 12, 18, 0, 0, 0, time.UTC)
	d := mongoFilter(member.Filter{Name: " Anna ", DateOfBirth: &dob})

	require.Len(t, d, 2)
	name, _ := lookup(d, "name")
	assert.Equal(t, "Anna", name)
	got, _ := lookup(d, "dob")
	assert.Equal(t, time.Date(1980, 5, 12, 0, 0, 0, 0, time.UTC), got)
}

func TestMongoFilter_NullDateMatchesNull(t *testing.T) {
	t.Parallel()

	d := mongoFilter(member.Filter{Name: "Anna"})
	v, ok := lookup(d, "dob")
	require.True(t, ok)
	assert.Nil(t, v)
}

func TestMongoFilter_Bare(t *testing.T) {
	t.Parallel()

	d := mongoFilter(member.Filter{Name: "Anna", Bare: true})
	for _, key := range []string{"address", "occupation", "image", "spouse", "dob"} {
		v, ok := lookup(d, key)
		require.True(t, ok, key)
		assert.Nil(t, v, key)
	}
	phone, ok := lookup(d, "phone")
	require.True(t, ok)
	assert.Equal(t, bson.D{{Key: "$in", Value: bson.A{nil, ""}}}, phone)

	children, ok := lookup(d, "children")
	require.True(t, ok)
	assert.Equal(t, bson.D{{Key: "$in", Value: bson.A{nil, bson.A{}}}}, children)
}

func TestMongoSet_OnlySetFields(t *testing.T) {
	t.Parallel()

	spouse := member.ID(primitive.NewObjectID().Hex())
	set, err := mongoSet(member.Patch{
		Phone:      member.Null[string](),
		Occupation: member.Null[string](),
		Spouse:     member.Some(spouse),
		Children:   member.Some([]member.ID{}),
	})
	require.NoError(t, err)

	_, ok := lookup(set, "address")
	assert.False(t, ok)
	_, ok = lookup(set, "image")
	assert.False(t, ok)

	phone, _ := lookup(set, "phone")
	assert.Equal(t, "", phone)

	occupation, ok := lookup(set, "occupation")
	require.True(t, ok)
	assert.Nil(t, occupation)

	children, _ := lookup(set, "children")
	assert.Equal(t, []primitive.ObjectID{}, children)

	sp, _ := lookup(set, "spouse")
	oid, ok := sp.(*primitive.ObjectID)
	require.True(t, ok)
	assert.Equal(t, spouse.String(), oid.Hex())
}

func TestMongoSet_RejectsForeignID(t *testing.T) {
	t.Parallel()

	_, err := mongoSet(member.Patch{Spouse: member.Some(member.ID("not-an-object-id"))})
	require.ErrorIs(t, err, member.ErrInvalidID)
}

func TestMemberDocument_RoundTrip(t *testing.T) {
	t.Parallel()

	dob := time.Date(1950, 1, 2, 0, 0, 0, 0, time.UTC)
	child := member.ID(primitive.NewObjectID().Hex())
	addr := "12 Main St"
	m := member.New("Anna",
		member.WithDateOfBirth(&dob),
		member.WithPhone("98"),
		member.WithAddress(&addr),
		member.WithChildren([]member.ID{child}),
	)

	doc, err := toMemberDocument(m)
	require.NoError(t, err)
	assert.True(t, doc.ID.IsZero())
	assert.Nil(t, doc.Spouse)
	require.Len(t, doc.Children, 1)

	raw, err := bson.Marshal(doc)
	require.NoError(t, err)
	var decoded memberDocument
	require.NoError(t, bson.Unmarshal(raw, &decoded))
	decoded.ID = primitive.NewObjectID()

	back := toDomainMember(decoded)
	assert.Equal(t, "Anna", back.Name())
	require.NotNil(t, back.DateOfBirth())
	assert.True(t, dob.Equal(*back.DateOfBirth()))
	assert.Equal(t, "98", back.Phone())
	assert.Equal(t, []member.ID{child}, back.Children())
	assert.Nil(t, back.Occupation())
}

func TestMemberDocument_EmptyChildrenEncodeAsArray(t *testing.T) {
	t.Parallel()

	doc, err := toMemberDocument(member.New("Anna"))
	require.NoError(t, err)
	raw, err := bson.Marshal(doc)
	require.NoError(t, err)

	children := bson.Raw(raw).Lookup("children")
	assert.Equal(t, bson.TypeArray, children.Type)
}
