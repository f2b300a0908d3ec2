package errs

import "errors"

var (
	ErrValidation       = errors.New("validation failed")
	ErrInvalidToken     = errors.New("invalid vote token")
	ErrNotFound         = errors.New("not found")
	ErrInactivePoll     = errors.New("poll is not active")
	ErrRateLimited      = errors.New("rate limit exceeded")
	ErrUnavailable      = errors.New("dependency unavailable")
	ErrMalformedMessage = errors.New("malformed queue message")
)
