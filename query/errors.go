package query

import (
	"errors"
	"fmt"
)

// ErrInvalidQuery is wrapped by every DecodeError.
var ErrInvalidQuery = errors.New("invalid query")

// DecodeError reports why a declarative document was rejected.
//
// Path locates the offending element in the document, for example
// "$and[1].user.age"; it is empty for the document root. Key is the
// keyword or field name at fault, if any.
type DecodeError struct {
	Path   string
	Key    string
	Reason string
}

func (e *DecodeError) Error() string {
	loc := e.Path
	if loc == "" {
		loc = "<root>"
	}
	if e.Key != "" {
		return fmt.Sprintf("%s at %s: %s: %s", ErrInvalidQuery, loc, e.Key, e.Reason)
	}
	return fmt.Sprintf("%s at %s: %s", ErrInvalidQuery, loc, e.Reason)
}

func (e *DecodeError) Unwrap() error { return ErrInvalidQuery }

func decodeErrorf(path, key, format string, args ...any) error {
	return &DecodeError{Path: path, Key: key, Reason: fmt.Sprintf(format, args...)}
}
