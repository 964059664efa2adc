package store

import "errors"

// Sentinel errors surfaced across the store package, mapped onto spec.md's
// error taxonomy (ORDER_VIOLATION, NOT_FOUND, EXISTS, ...) by callers in
// internal/gateway.
var (
	ErrNotFound       = errors.New("store: not found")
	ErrExists         = errors.New("store: already exists")
	ErrOrderViolation = errors.New("store: conversation role must alternate user/assistant")
)
