package conv

import "errors"

// Sentinel errors returned by stage validation.
var (
	// ErrInvalidShape is returned when a stage's source or derived output
	// has a dimension that is not positive.
	ErrInvalidShape = errors.New("conv: invalid shape")
)
