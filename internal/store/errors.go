package store

import "errors"

var (
	// ErrNotFound is returned when the target row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned on uniqueness violations.
	ErrConflict = errors.New("conflict")
	// ErrVersionMismatch is returned when a conditional update names a
	// stale row version.
	ErrVersionMismatch = errors.New("version mismatch")
	// ErrTokenLookupCollision is returned when a freshly generated
	// token lookup prefix collides with an existing row.
	ErrTokenLookupCollision = errors.New("token lookup collision")
	// ErrRepoLimitExceeded is returned when creating a repo would
	// exceed the namespace's repo_limit.
	ErrRepoLimitExceeded = errors.New("repo limit exceeded")
)
