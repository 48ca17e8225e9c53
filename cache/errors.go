package cache

import "errors"

var (
	// Configuration errors
	ErrUnknownPolicy = errors.New("unknown eviction policy")
	ErrInvalidConfig = errors.New("invalid configuration")
)
