// Package apperr defines the sentinel errors shared across packages.
package apperr

import "errors"

var (
	ErrNotFound    = errors.New("not found")
	ErrWrite       = errors.New("write failed")
	ErrInvalidPath = errors.New("invalid property path")
	ErrNoDocument  = errors.New("no document")
)
