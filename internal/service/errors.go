package service

import "errors"

// Validation errors rejected before any job record is created.
var (
	ErrEmptyFile         = errors.New("import file is empty")
	ErrNoRecords         = errors.New("import file contains no records")
	ErrFileTooLarge      = errors.New("import file exceeds the maximum allowed size")
	ErrStoreCodeRequired = errors.New("store code is required for this import type")
	ErrStoreNotFound     = errors.New("store not found")
	ErrNoProducts        = errors.New("no products exist yet; run a products import first")
	ErrJobNotFound       = errors.New("import job not found")
)

// BlockedError is the admission conflict: another import job is active. The
// message names the blocking job so the caller knows what to wait for.
type BlockedError struct {
	Message string
}

// Error implements the error interface.
func (e *BlockedError) Error() string {
	return e.Message
}

// IsBlocked reports whether err is an admission conflict.
func IsBlocked(err error) bool {
	var blocked *BlockedError
	return errors.As(err, &blocked)
}
