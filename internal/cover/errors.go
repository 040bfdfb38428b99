package cover

import "errors"

// Package errors. Wrapped with fmt.Errorf("%w") where context is added, so
// callers can test with errors.Is.
var (
	// ErrUnknownType indicates a cover type outside the closed variant set.
	ErrUnknownType = errors.New("cover: unknown cover type")

	// ErrIncompleteGeometry indicates a required geometry measurement for
	// the chosen cover type is missing or non-positive.
	ErrIncompleteGeometry = errors.New("cover: incomplete geometry for cover type")

	// ErrGroupNotFound indicates the requested group does not exist.
	ErrGroupNotFound = errors.New("cover: group not found")

	// ErrGroupExists indicates a create collided with an existing group id.
	ErrGroupExists = errors.New("cover: group already exists")

	// ErrInvalidGroup indicates group validation failed.
	ErrInvalidGroup = errors.New("cover: invalid group configuration")
)
