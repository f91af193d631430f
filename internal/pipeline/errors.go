package pipeline

import "errors"

// Sentinel errors matched with errors.Is at the transport layer.
var (
	// ErrNotFound marks a missing or mismatched session/turn.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput marks structurally bad input (empty text, no chunks).
	ErrInvalidInput = errors.New("invalid input")

	// ErrConsistency marks a turn claimed by a prior finalize that never
	// recorded an assistant message. This is a bug, not a user error.
	ErrConsistency = errors.New("consistency fault")
)
