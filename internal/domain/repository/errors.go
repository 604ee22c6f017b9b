package repository

import "errors"

var (
	// ErrNotFound is returned when a requested record does not exist
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput is returned for malformed addresses or arguments
	ErrInvalidInput = errors.New("invalid input")
)
