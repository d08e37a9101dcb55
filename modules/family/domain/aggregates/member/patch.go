package member

// Optional is one field of a Patch. Set marks the field for writing; a nil
// Value writes null (or the empty value for fields that cannot be null).
type Optional[T any] struct {
	Set   bool
	Value *T
}

func Some[T any](v T) Optional[T] {
	return Optional[T]{Set: true, Value: &v}
}

// Null sets the field to null.
func Null[T any]() Optional[T] {
	return Optional[T]{Set: true}
}

// Maybe sets the field to v, which may be nil.
func Maybe[T any](v *T) Optional[T] {
	return Optional[T]{Set: true, Value: v}
}

// Patch is a partial update. Fields left unset keep their stored value.
type Patch struct {
	Address    Optional[string]
	Phone      Optional[string]
	Occupation Optional[string]
	Image      Optional[string]
	Spouse     Optional[ID]
	Children   Optional[[]ID]
}

func (p Patch) IsEmpty() bool {
	return !p.Address.Set &&
		!p.Phone.Set &&
		!p.Occupation.Set &&
		!p.Image.Set &&
		!p.Spouse.Set &&
		!p.Children.Set
}
