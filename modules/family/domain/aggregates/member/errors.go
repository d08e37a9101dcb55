package member

import "errors"

var (
	ErrNotFound     = errors.New("member not found")
	ErrInvalidID    = errors.New("invalid member id")
	ErrNameRequired = errors.New("member name is required")
)
