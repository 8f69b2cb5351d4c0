package domain

import "errors"

var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")

	// ErrInvalidDestination is returned for malformed destinations. No provider is contacted.
	ErrInvalidDestination  = errors.New("invalid destination")
	ErrNoProviderAvailable = errors.New("no providers available (daily limits reached)")
	ErrAdapter             = errors.New("provider send failed")
	ErrPersistence         = errors.New("usage ledger write failed")
)
