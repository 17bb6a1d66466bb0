package storage

import (
	"errors"
	"strings"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// isConstraintErr reports whether err is a SQLite constraint violation of the
// given kind, e.g. "UNIQUE" or "FOREIGN KEY". The pure-Go driver surfaces
// these only as error strings.
func isConstraintErr(err error, kind string) bool {
	return err != nil && strings.Contains(err.Error(), kind+" constraint failed")
}
