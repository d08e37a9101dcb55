package member

import (
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// ID identifies a stored member. Its format belongs to the backing store
// (Mongo ObjectID hex, UUID).
type ID string

func (id ID) String() string { return string(id) }
func (id ID) IsZero() bool   { return id == "" }

type Member struct {
	id          ID
	name        string
	dateOfBirth *time.Time
	phone       string
	occupation  *string
	address     *string
	image       *string
	spouse      *ID
	children    []ID
}

type Option func(m *Member)

func WithID(id ID) Option {
	return func(m *Member) { m.id = id }
}

// WithDateOfBirth keeps the calendar date of t at UTC midnight. nil clears it.
func WithDateOfBirth(t *time.Time) Option {
	return func(m *Member) {
		if t == nil {
			m.dateOfBirth = nil
			return
		}
		d := DateOnlyUTC(*t)
		m.dateOfBirth = &d
	}
}

func WithPhone(phone string) Option {
	return func(m *Member) { m.phone = strings.TrimSpace(phone) }
}

func WithOccupation(v *string) Option {
	return func(m *Member) { m.occupation = normalizeText(v) }
}

func WithAddress(v *string) Option {
	return func(m *Member) { m.address = normalizeText(v) }
}

func WithImage(v *string) Option {
	return func(m *Member) { m.image = normalizeText(v) }
}

func WithSpouse(id *ID) Option {
	return func(m *Member) {
		if id == nil || id.IsZero() {
			m.spouse = nil
			return
		}
		v := *id
		m.spouse = &v
	}
}

// WithChildren sets the children, dropping repeated ids.
func WithChildren(ids []ID) Option {
	return func(m *Member) { m.children = uniqueIDs(ids) }
}

func New(name string, opts ...Option) Member {
	m := Member{
		name:     NormalizeName(name),
		children: []ID{},
	}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

func (m Member) ID() ID                  { return m.id }
func (m Member) Name() string            { return m.name }
func (m Member) DateOfBirth() *time.Time { return m.dateOfBirth }
func (m Member) Phone() string           { return m.phone }
func (m Member) Occupation() *string     { return m.occupation }
func (m Member) Address() *string        { return m.address }
func (m Member) Image() *string          { return m.image }
func (m Member) Spouse() *ID             { return m.spouse }
func (m Member) Children() []ID          { return append([]ID(nil), m.children...) }

// IsBare reports whether the member carries nothing beyond a name: no birth
// date, phone, occupation, address, image, spouse or children.
func (m Member) IsBare() bool {
	return m.dateOfBirth == nil &&
		m.phone == "" &&
		m.occupation == nil &&
		m.address == nil &&
		m.image == nil &&
		m.spouse == nil &&
		len(m.children) == 0
}

func (m Member) HasChild(id ID) bool {
	for _, c := range m.children {
		if c == id {
			return true
		}
	}
	return false
}

// Apply returns a copy of m with the set fields of p overwritten.
func (m Member) Apply(p Patch) Member {
	if p.Address.Set {
		m.address = normalizeText(p.Address.Value)
	}
	if p.Phone.Set {
		m.phone = ""
		if p.Phone.Value != nil {
			m.phone = strings.TrimSpace(*p.Phone.Value)
		}
	}
	if p.Occupation.Set {
		m.occupation = normalizeText(p.Occupation.Value)
	}
	if p.Image.Set {
		m.image = normalizeText(p.Image.Value)
	}
	if p.Spouse.Set {
		WithSpouse(p.Spouse.Value)(&m)
	}
	if p.Children.Set {
		m.children = []ID{}
		if p.Children.Value != nil {
			m.children = uniqueIDs(*p.Children.Value)
		}
	}
	return m
}

// AddChild adds id to the children unless it is already there.
func (m Member) AddChild(id ID) Member {
	if m.HasChild(id) {
		return m
	}
	m.children = append(m.Children(), id)
	return m
}

// NormalizeName trims and NFC-normalises a name so equal names compare equal.
func NormalizeName(v string) string {
	return strings.TrimSpace(norm.NFC.String(v))
}

func DateOnlyUTC(t time.Time) time.Time {
	u := t.UTC()
	y, mo, d := u.Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, time.UTC)
}

func normalizeText(v *string) *string {
	if v == nil {
		return nil
	}
	s := strings.TrimSpace(norm.NFC.String(*v))
	if s == "" {
		return nil
	}
	return &s
}

func uniqueIDs(ids []ID) []ID {
	out := make([]ID, 0, len(ids))
	seen := make(map[ID]struct{}, len(ids))
	for _, id := range ids {
		if id.IsZero() {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func (m Member) Validate() error {
	if m.name == "" {
		return ErrNameRequired
	}
	return nil
}
