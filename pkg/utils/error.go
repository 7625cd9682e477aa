package utils

import (
	"errors"
)

var (
	ErrBadRequest = errors.New("Bad request")
	ErrNotFound   = errors.New("Not found")
	ErrParse      = errors.New("Parse error")
)

// An error carrying extra diagnostic text, e.g. the tail of a log file.
type DetailedError interface {
	error
	Details() string
}

// Returns the details of the first DetailedError in the chain of err.
func Details(err error) string {
	var detailed DetailedError
	if errors.As(err, &detailed) {
		return detailed.Details()
	}
	return ""
}
