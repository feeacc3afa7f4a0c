package rpc

import (
	"errors"
	"fmt"
)

// ErrAllEndpointsUnavailable matches every *AllEndpointsUnavailableError.
var ErrAllEndpointsUnavailable = errors.New("all endpoints unavailable")

// ErrMissingResult is returned for a decodable response without a result field.
var ErrMissingResult = errors.New("missing result field")

// TransportError is one endpoint's failure for one call: a network error,
// a non-200 status, an undecodable body or a missing result field.
type TransportError struct {
	Endpoint string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("endpoint %s: %v", e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// AllEndpointsUnavailableError is returned when every configured endpoint
// failed for one call. It carries every attempt in rotation order.
type AllEndpointsUnavailableError struct {
	Method   string
	Attempts []*TransportError
}

func (e *AllEndpointsUnavailableError) Error() string {
	last := e.Last()
	if last == nil {
		return fmt.Sprintf("%s: %s: no endpoints configured", e.Method, ErrAllEndpointsUnavailable)
	}
	return fmt.Sprintf("%s: %s after %d attempts: last error: %v", e.Method, ErrAllEndpointsUnavailable, len(e.Attempts), last)
}

func (e *AllEndpointsUnavailableError) Is(target error) bool {
	return target == ErrAllEndpointsUnavailable
}

func (e *AllEndpointsUnavailableError) Unwrap() error {
	if last := e.Last(); last != nil {
		return last
	}
	return nil
}

// Last returns the final attempt's failure, or nil when nothing was attempted.
func (e *AllEndpointsUnavailableError) Last() *TransportError {
	if len(e.Attempts) == 0 {
		return nil
	}
	return e.Attempts[len(e.Attempts)-1]
}

// RemoteError is an error the server reported inside a successful result,
// e.g. {"status":"error","error":"actNotFound"}.
type RemoteError struct {
	Method  string
	Code    string
	Message string
}

func (e *RemoteError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s: %s", e.Method, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Method, e.Code)
}
