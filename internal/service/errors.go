package service

import "errors"

var (
	// ErrCheckFailed means a conflict decision could not be made because
	// storage failed. It never means "no conflict".
	ErrCheckFailed         = errors.New("conflict check failed")
	ErrInvalidRange        = errors.New("invalid booking range")
	ErrInvalidTransition   = errors.New("invalid booking status transition")
	ErrSlotConflict        = errors.New("requested slot overlaps another booking")
	ErrResourceUnavailable = errors.New("requested equipment is not available")
	ErrUnknownAction       = errors.New("unknown maintenance action")
)
