package checkin

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotFound matches a LookupError for an unknown registration number.
	ErrNotFound = errors.New("participant not found")
	// ErrEmptyQuery is returned for a blank registration number. No request
	// is issued.
	ErrEmptyQuery = errors.New("registration number is empty")
)

const (
	fallbackLookupMessage  = "Lookup failed"
	fallbackCheckinMessage = "Check-in failed"
)

// LookupError is a non-success search response. Its message echoes the
// query back to the operator.
type LookupError struct {
	Query   string
	Status  int
	Message string
}

func (e *LookupError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = fallbackLookupMessage
	}
	return fmt.Sprintf("%s (searched: \"%s\")", msg, e.Query)
}

func (e *LookupError) Is(target error) bool {
	return target == ErrNotFound && e.Status == http.StatusNotFound
}

// ConflictError is returned when the participant was already checked in.
type ConflictError struct {
	ScannedAt string
}

func (e *ConflictError) Error() string {
	return "Already checked in at " + e.ScannedAt
}

// ServerError is any other non-success response.
type ServerError struct {
	Status  int
	Message string
}

func (e *ServerError) Error() string {
	if e.Message == "" {
		return fallbackCheckinMessage
	}
	return e.Message
}

// NetworkError means the backend could not be reached at all.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: cannot connect to server: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }
