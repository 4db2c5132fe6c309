package directory

import "errors"

// Errors mapped from platform responses.
var (
	// ErrNotFound: the requested resource does not exist (HTTP 404).
	ErrNotFound = errors.New("directory: not found")

	// ErrAlreadyExists: conflicting write, e.g. the external identity is
	// already linked to another user (HTTP 409).
	ErrAlreadyExists = errors.New("directory: already exists")

	// ErrUnauthorized: the service token was rejected (HTTP 401/403).
	ErrUnauthorized = errors.New("directory: unauthorized")
)
