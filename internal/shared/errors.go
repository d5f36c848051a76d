package shared

import "errors"

var (
	// ErrNotFound indicates resource not found. Lookups that miss because the
	// row belongs to another tenant surface this same error, so a caller can
	// never distinguish "absent" from "exists under someone else".
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates an input that failed domain validation.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
)
