package persistence

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/iota-uz/familytree/modules/family/domain/aggregates/member"
)

// MemoryRepository keeps members in process memory. InTx snapshots the store
// and restores it when fn fails.
type MemoryRepository struct {
	mu      sync.RWMutex
	members map[member.ID]member.Member
	order   []member.ID
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{members: map[member.ID]member.Member{}}
}

func (r *MemoryRepository) FindOne(_ context.Context, f member.Filter) (member.Member, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, id := range r.order {
		m := r.members[id]
		if f.Matches(m) {
			return m, nil
		}
	}
	return member.Member{}, member.ErrNotFound
}

func (r *MemoryRepository) Insert(_ context.Context, m member.Member) (member.ID, error) {
	if err := m.Validate(); err != nil {
		return "", err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	id := member.ID(uuid.NewString())
	r.members[id] = member.New(m.Name(),
		member.WithID(id),
		member.WithDateOfBirth(m.DateOfBirth()),
		member.WithPhone(m.Phone()),
		member.WithOccupation(m.Occupation()),
		member.WithAddress(m.Address()),
		member.WithImage(m.Image()),
		member.WithSpouse(m.Spouse()),
		member.WithChildren(m.Children()),
	)
	r.order = append(r.order, id)
	return id, nil
}

func (r *MemoryRepository) Update(_ context.Context, id member.ID, p member.Patch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[id]
	if !ok {
		return member.ErrNotFound
	}
	r.members[id] = m.Apply(p)
	return nil
}

func (r *MemoryRepository) AddChild(_ context.Context, parent, child member.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[parent]
	if !ok {
		return member.ErrNotFound
	}
	r.members[parent] = m.AddChild(child)
	return nil
}

func (r *MemoryRepository) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	r.mu.RLock()
	snapshot := make(map[member.ID]member.Member, len(r.members))
	for k, v := range r.members {
		snapshot[k] = v
	}
	order := append([]member.ID(nil), r.order...)
	r.mu.RUnlock()

	if err := fn(ctx); err != nil {
		r.mu.Lock()
		r.members = snapshot
		r.order = order
		r.mu.Unlock()
		return err
	}
	return nil
}

// GetByID returns a stored member.
func (r *MemoryRepository) GetByID(id member.ID) (member.Member, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.members[id]
	if !ok {
		return member.Member{}, member.ErrNotFound
	}
	return m, nil
}

// All returns the members in insertion order.
func (r *MemoryRepository) All() []member.Member {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]member.Member, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.members[id])
	}
	return out
}

func (r *MemoryRepository) Ping(context.Context) error { return nil }

func (r *MemoryRepository) Inspect(context.Context) (Status, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Status{
		Backend:          BackendMemory,
		Database:         "memory",
		Collection:       "members",
		DatabaseExists:   true,
		CollectionExists: true,
		Members:          int64(len(r.members)),
	}, nil
}

func (r *MemoryRepository) Close(context.Context) error { return nil }
