package domain

import "errors"

// Sentinel errors for the domain layer.
var (
	ErrNotFound        = errors.New("domain: not found")
	ErrConflict        = errors.New("domain: conflict")
	ErrVersionConflict = errors.New("domain: version conflict")
	ErrUnauthorized    = errors.New("domain: unauthorized")
	ErrInvalidRoom     = errors.New("domain: invalid room name")
)
