package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound      = errors.New("race result not found")
	ErrInvalidLimit  = errors.New("invalid limit")
	ErrInvalidResult = errors.New("invalid race result")
	ErrUnknownStore  = errors.New("unknown store")
)
