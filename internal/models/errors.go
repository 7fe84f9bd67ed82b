package models

import "errors"

// Error kinds shared by the storage, registry, identity and transfer layers.
// Callers match them with errors.Is; layers add context with %w.
var (
	ErrMissingCredential = errors.New("missing credential")
	ErrInvalidCredential = errors.New("invalid credential")
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("forbidden")
	ErrPayloadTooLarge   = errors.New("payload too large")
	ErrIncompleteWrite   = errors.New("incomplete write")
	ErrStoreUnavailable  = errors.New("store unavailable")
	ErrConflict          = errors.New("conflict")
	ErrInvalidArgument   = errors.New("invalid argument")
)
