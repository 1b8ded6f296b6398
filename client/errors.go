package client

import (
	"errors"
	"fmt"
)

// ErrInvalidArgument is returned before any I/O when a call is made with an
// empty network, a non-positive limit or page, or a negative offset.
var ErrInvalidArgument = errors.New("invalid argument")

// TransportError reports a failure to reach the query API or a non-success
// HTTP status from it.
type TransportError struct {
	Op         string
	Network    string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (%s): status %d: %v", e.Op, e.Network, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s (%s): %v", e.Op, e.Network, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// MalformedResponseError reports a payload that could not be decoded into
// the expected shape.
type MalformedResponseError struct {
	Op      string
	Network string
	Err     error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("%s (%s): malformed response: %v", e.Op, e.Network, e.Err)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

func invalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
