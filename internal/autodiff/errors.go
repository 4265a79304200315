package autodiff

import "github.com/pkg/errors"

// Common errors.
var (
	ErrTapeConsumed  = errors.New("tape already executed")
	ErrGhostMismatch = errors.New("gradient layout does not match tensor")
	ErrNoGradient    = errors.New("no gradient recorded")
)
