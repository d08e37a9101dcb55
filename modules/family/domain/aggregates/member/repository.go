package member

import (
	"context"
	"time"
)

// Filter selects a stored member by name. The zero DateOfBirth matches only
// records without a birth date. Bare additionally requires every other field
// to be empty.
type Filter struct {
	Name        string
	DateOfBirth *time.Time
	Bare        bool
}

type Repository interface {
	// FindOne returns ErrNotFound when nothing matches.
	FindOne(ctx context.Context, f Filter) (Member, error)
	Insert(ctx context.Context, m Member) (ID, error)
	Update(ctx context.Context, id ID, p Patch) error
	// AddChild adds child to parent's children with set semantics.
	AddChild(ctx context.Context, parent, child ID) error
	// InTx runs fn as one unit of work where the store supports it.
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Matches applies f to m the way the stores evaluate it.
func (f Filter) Matches(m Member) bool {
	if m.Name() != NormalizeName(f.Name) {
		return false
	}
	dob := m.DateOfBirth()
	if f.DateOfBirth == nil {
		if dob != nil {
			return false
		}
	} else if dob == nil || !dob.Equal(DateOnlyUTC(*f.DateOfBirth)) {
		return false
	}
	if f.Bare && !m.IsBare() {
		return false
	}
	return true
}
