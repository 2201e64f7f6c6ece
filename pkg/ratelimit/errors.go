package ratelimit

import "errors"

var (
	ErrInvalidConfig     = errors.New("invalid rate limit config")
	ErrInvalidTokenCount = errors.New("invalid token count")
	ErrKeyRequired       = errors.New("key is required")
	ErrStoreRequired     = errors.New("store is required")
)
