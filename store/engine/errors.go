package engine

import "errors"

// Errors for engines.
var (
	ErrNotFound       = errors.New("record could not be found")
	ErrAlreadyExists  = errors.New("record already exists")
	ErrReadOnly       = errors.New("engine is read only")
	ErrNotImplemented = errors.New("not implemented by this engine")
)
