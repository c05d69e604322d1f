package message

import "errors"

var (
	// ErrNotFound is returned when no record exists for a key.
	ErrNotFound = errors.New("message not found")
	// ErrStoreUnavailable wraps transient storage failures; callers may retry with backoff.
	ErrStoreUnavailable = errors.New("message store unavailable")
	// ErrCorrupt wraps stored data that can no longer be decoded.
	ErrCorrupt = errors.New("message store corrupt")
	// ErrInvalidRecord wraps values the database refused to store (bad encoding, oversized fields).
	// The write is dropped; retrying the same record fails the same way.
	ErrInvalidRecord = errors.New("message record rejected")
	// ErrInvalidKey is returned when a conversation or message id is missing.
	ErrInvalidKey = errors.New("conversation id and message id are required")
)
