package domain

import "errors"

var (
	ErrNotFound              = errors.New("not found")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrInvalidInput          = errors.New("invalid input")
	ErrTaskNotFound          = errors.New("task not found")
	ErrQuotaExceeded         = errors.New("quota exceeded")
	ErrProviderUnavailable   = errors.New("provider unavailable")
	ErrUnparseableResponse   = errors.New("unparseable response")
	ErrAllProvidersExhausted = errors.New("all providers exhausted")
)
