package upstream

import "errors"

// ErrInvalidParameter is returned (and reported to the invoking link as a
// closed response carrying the string "invalidParameter") when
// add_connection is missing a required field or its name collides with an
// existing sibling entry.
var ErrInvalidParameter = errors.New("invalidParameter")

// ErrNotFound is returned when an operation names an upstream entry that
// does not exist in the registry.
var ErrNotFound = errors.New("upstream entry not found")
