package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates resource not found
	ErrNotFound = errors.New("resource not found")
	// ErrInvalidRequest indicates invalid request
	ErrInvalidRequest = errors.New("invalid request")
	// ErrUnauthorized indicates unauthorized access
	ErrUnauthorized = errors.New("unauthorized")
	// ErrEmptyInput indicates there was nothing to chunk, embed or rank
	ErrEmptyInput = errors.New("empty input")
)

// TransportError reports an unreachable or failing backend
type TransportError struct {
	Backend string
	Status  int
	Err     error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s backend returned status %d: %v", e.Backend, e.Status, e.Err)
	}
	return fmt.Sprintf("%s backend unreachable: %v", e.Backend, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// DecodeError reports a malformed vector or stream line
type DecodeError struct {
	Source string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Source, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// EmptyInputError names what was empty
type EmptyInputError struct {
	What string
}

func (e *EmptyInputError) Error() string {
	return fmt.Sprintf("empty input: %s", e.What)
}

func (e *EmptyInputError) Unwrap() error { return ErrEmptyInput }

// PersistenceError reports a storage failure
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// DimensionMismatchError reports stored vectors that cannot be compared with the query
type DimensionMismatchError struct {
	Want  int
	Got   int
	Count int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("embedding dimension mismatch: query has %d, %d stored vectors have %d", e.Want, e.Count, e.Got)
}
