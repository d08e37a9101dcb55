package member

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestNew_NormalizesFields(t *testing.T) {
	t.Parallel()

	dob := time.Date(1980, 5, 12, 15, 30, 0, 0, time.FixedZone("IST", 5*3600+1800))
	m := New("  Anná ",
		WithDateOfBirth(&dob),
		WithPhone(" 98765 "),
		WithOccupation(strPtr("  ")),
		WithAddress(strPtr(" 12 Main St ")),
		WithChildren([]ID{"a", "b", "a", ""}),
	)

	assert.Equal(t, "Anná", m.Name())
	require.NotNil(t, m.DateOfBirth())
	assert.Equal(t, time.Date(1980, 5, 12, 0, 0, 0, 0, time.UTC), *m.DateOfBirth())
	assert.Equal(t, "98765", m.Phone())
	assert.Nil(t, m.Occupation())
	require.NotNil(t, m.Address())
	assert.Equal(t, "12 Main St", *m.Address())
	assert.Equal(t, []ID{"a", "b"}, m.Children())
}

func TestIsBare(t *testing.T) {
	t.Parallel()

	assert.True(t, New("Anna").IsBare())
	assert.True(t, New("Anna", WithPhone("")).IsBare())
	assert.False(t, New("Anna", WithPhone("1")).IsBare())
	assert.False(t, New("Anna", WithImage(strPtr("anna.jpg"))).IsBare())
	spouse := ID("s")
	assert.False(t, New("Anna", WithSpouse(&spouse)).IsBare())
	assert.False(t, New("Anna", WithChildren([]ID{"c"})).IsBare())
}

func TestAddChild_SetSemantics(t *testing.T) {
	t.Parallel()

	m := New("Anna").AddChild("c1").AddChild("c1").AddChild("c2")
	assert.Equal(t, []ID{"c1", "c2"}, m.Children())
}

func TestApply(t *testing.T) {
	t.Parallel()

	m := New("Anna",
		WithPhone("1"),
		WithOccupation(strPtr("Teacher")),
		WithAddress(strPtr("Old")),
		WithImage(strPtr("old.jpg")),
		WithChildren([]ID{"c1"}),
	)

	got := m.Apply(Patch{
		Phone:      Some(""),
		Occupation: Null[string](),
		Children:   Some([]ID{}),
	})

	assert.Equal(t, "", got.Phone())
	assert.Nil(t, got.Occupation())
	assert.Empty(t, got.Children())
	require.NotNil(t, got.Address())
	assert.Equal(t, "Old", *got.Address())
	require.NotNil(t, got.Image())
	assert.Equal(t, "old.jpg", *got.Image())

	// original is untouched
	assert.Equal(t, "1", m.Phone())
	assert.Equal(t, []ID{"c1"}, m.Children())
}

func TestFilter_Matches(t *testing.T) {
	t.Parallel()

	dob := time.Date(1980, 5, 12, 0, 0, 0, 0, time.UTC)
	other := time.Date(1981, 5, 12, 0, 0, 0, 0, time.UTC)

	withDOB := New("Anna", WithDateOfBirth(&dob), WithPhone("1"))
	noDOB := New("Anna", WithPhone("1"))
	bare := New("Anna")

	cases := []struct {
		name   string
		filter Filter
		m      Member
		want   bool
	}{
		{name: "exact date", filter: Filter{Name: "Anna", DateOfBirth: &dob}, m: withDOB, want: true},
		{name: "other date", filter: Filter{Name: "Anna", DateOfBirth: &other}, m: withDOB, want: false},
		{name: "date wanted, none stored", filter: Filter{Name: "Anna", DateOfBirth: &dob}, m: noDOB, want: false},
		{name: "null date", filter: Filter{Name: "Anna"}, m: noDOB, want: true},
		{name: "null date vs stored date", filter: Filter{Name: "Anna"}, m: withDOB, want: false},
		{name: "bare vs populated", filter: Filter{Name: "Anna", Bare: true}, m: noDOB, want: false},
		{name: "bare vs bare", filter: Filter{Name: "Anna", Bare: true}, m: bare, want: true},
		{name: "name trimmed", filter: Filter{Name: " Anna "}, m: bare, want: true},
		{name: "other name", filter: Filter{Name: "Anne"}, m: bare, want: false},
	}
	for _, tc := range cases {
		if got := tc.filter.Matches(tc.m); got != tc.want {
			t.Fatalf("%s: want %v got %v", tc.name, tc.want, got)
		}
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	require.ErrorIs(t, New("  ").Validate(), ErrNameRequired)
	require.NoError(t, New("Anna").Validate())
}
