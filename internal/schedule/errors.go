package schedule

import "errors"

var (
	ErrNegativeInterval = errors.New("negative repeat interval")
	ErrInvalidInterval  = errors.New("repeat interval must be a whole number of seconds")
	ErrWorkPanic        = errors.New("work panicked")
	ErrEmptyID          = errors.New("event id required")
)
