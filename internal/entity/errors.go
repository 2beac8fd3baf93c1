package entity

import "errors"

var (
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned by repositories when a unique constraint rejects a write.
	ErrConflict = errors.New("unique constraint conflict")
)
