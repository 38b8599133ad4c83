package storage

import "errors"

var (
	// ErrNotFound indicates that the requested resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrDuplicateURL indicates an InsertItem call whose canonical URL
	// already exists in the MetaStore. This is the one recoverable error
	// the dedup pass is built around.
	ErrDuplicateURL = errors.New("canonical url already exists")
)
