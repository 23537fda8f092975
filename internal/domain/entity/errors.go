package entity

import "errors"

// Error taxonomy for the workflow engine. Callers classify failures with
// errors.Is; the lifecycle service never masks one kind as another.
var (
	// ErrValidation marks malformed input. Caller's fault, never retried.
	ErrValidation = errors.New("validation failed")

	// ErrAuthorization marks an actor without permission for the action
	ErrAuthorization = errors.New("not authorized")

	// ErrConflict marks an already-finalized request, a duplicate approval,
	// or a lost optimistic-concurrency race
	ErrConflict = errors.New("conflict")

	// ErrNotFound marks an unknown request or user id
	ErrNotFound = errors.New("not found")

	// ErrAdapter marks a document intelligence failure or timeout. The only
	// kind that can accompany a committed write: the upload is durable, the
	// derived data is missing, and a caller-invoked retry path exists.
	ErrAdapter = errors.New("document intelligence failed")
)
