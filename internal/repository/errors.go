package repository

import "errors"

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("repository: not found")
	// ErrUnknownCollection indicates a collection outside the configured allow-list.
	ErrUnknownCollection = errors.New("repository: unknown collection")
)
