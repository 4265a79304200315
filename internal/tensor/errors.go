package tensor

import "github.com/pkg/errors"

// Common errors.
var (
	ErrInvalidShape  = errors.New("invalid shape")
	ErrOutOfBounds   = errors.New("index out of bounds")
	ErrDTypeMismatch = errors.New("dtype mismatch")
)
