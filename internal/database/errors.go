package database

import "errors"

var (
	// ErrSlugExists is returned when an attempt is made to persist a tracking
	// link with a pretty slug that is already reserved by another link.
	ErrSlugExists = errors.New("pretty slug exists")
	// ErrLinkNotFound is returned when no tracking link matches the requested
	// id or slug. Inactive links resolve to the same error as unknown ones.
	ErrLinkNotFound = errors.New("tracking link not found")
)
