package models

import "errors"

// ErrNotFound is returned by every store when a document does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when a unique key is already taken.
var ErrDuplicate = errors.New("duplicate key")
