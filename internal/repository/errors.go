package repository

import "errors"

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("repository: not found")
	// ErrInvalidArgument signals the caller supplied an unusable identifier or policy.
	ErrInvalidArgument = errors.New("repository: invalid argument")
)
