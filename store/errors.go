package store

import "errors"

// Errors.
var (
	ErrNotFound           = errors.New("record could not be found")
	ErrAlreadyExists      = errors.New("record already exists")
	ErrDowngrade          = errors.New("persisted store version is newer than the code version")
	ErrUnsupportedVersion = errors.New("persisted store version is no longer supported")
	ErrInsideTransaction  = errors.New("operation not permitted inside a transaction")
	ErrShuttingDown       = errors.New("store is shutting down")
	ErrReadOnly           = errors.New("store is read only")
)
