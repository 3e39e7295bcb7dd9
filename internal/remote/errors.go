package remote

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized is returned for a 401, or when no credential is held.
	ErrUnauthorized = errors.New("remote: unauthorized")
	// ErrNotFound covers both absent records and records owned by someone else.
	ErrNotFound   = errors.New("remote: not found")
	ErrValidation = errors.New("remote: validation failed")
)

// RequestError is a non-2xx response other than 401.
type RequestError struct {
	Status  int
	Message string
}

func (e *RequestError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("remote %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("remote status %d", e.Status)
}

func (e *RequestError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Status == 404
	case ErrValidation:
		return e.Status == 400 || e.Status == 422
	}
	return false
}

// NetworkError is a transport failure where no response was received.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string { return "remote " + e.Op + ": " + e.Err.Error() }
func (e *NetworkError) Unwrap() error { return e.Err }

// Kind is the failure taxonomy the sync engine logs and reports.
type Kind string

const (
	KindNone             Kind = ""
	KindUnauthorized     Kind = "unauthorized"
	KindNotFound         Kind = "not_found_or_forbidden"
	KindValidation       Kind = "validation_failed"
	KindRequestFailed    Kind = "request_failed"
	KindTransientNetwork Kind = "transient_network"
	KindUnexpected       Kind = "unexpected"
)

func Classify(err error) Kind {
	if err == nil {
		return KindNone
	}
	var netErr *NetworkError
	var reqErr *RequestError
	switch {
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.As(err, &netErr):
		return KindTransientNetwork
	case errors.As(err, &reqErr):
		return KindRequestFailed
	}
	return KindUnexpected
}
