package services

import (
	"github.com/pkg/errors"
)

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrForbidden          = errors.New("forbidden")
	ErrAccountDisabled    = errors.New("account disabled")
	ErrRegistrationClosed = errors.New("registration is disabled")
	ErrSessionNotFound    = errors.New("session not found or no access")
)

// ValidationError is a caller mistake reported as 400.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func invalid(msg string) error { return &ValidationError{Message: msg} }
