package firestore

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type errorCategory int

const (
	categoryUnknown errorCategory = iota
	categoryNotFound
	categoryConflict
	categoryUnavailable
)

// Error carries repository semantics for Firestore failures so callers can
// branch on category without importing grpc status codes.
type Error struct {
	op       string
	err      error
	category errorCategory
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.op != "" {
		return fmt.Sprintf("%s: %v", e.op, e.err)
	}
	return e.err.Error()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

// IsNotFound reports whether the error represents a missing document.
func (e *Error) IsNotFound() bool {
	return e != nil && e.category == categoryNotFound
}

// IsConflict reports whether the error represents a lost write race.
func (e *Error) IsConflict() bool {
	return e != nil && e.category == categoryConflict
}

// IsUnavailable reports whether the error represents a transient outage.
func (e *Error) IsUnavailable() bool {
	return e != nil && e.category == categoryUnavailable
}

// NotFoundError builds a not-found repository error without a grpc source.
func NotFoundError(op string, err error) *Error {
	return &Error{op: op, err: err, category: categoryNotFound}
}

// ConflictError builds a conflict repository error without a grpc source.
func ConflictError(op string, err error) *Error {
	return &Error{op: op, err: err, category: categoryConflict}
}

func categorize(err error) errorCategory {
	switch status.Code(err) {
	case codes.NotFound:
		return categoryNotFound
	case codes.AlreadyExists, codes.FailedPrecondition, codes.Aborted, codes.OutOfRange:
		return categoryConflict
	case codes.Unavailable, codes.ResourceExhausted, codes.Internal, codes.DeadlineExceeded:
		return categoryUnavailable
	}
	return categoryUnknown
}

// WrapError annotates Firestore errors with repository semantics. Context
// cancellations are passed through untouched.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	switch status.Code(err) {
	case codes.Canceled:
		return context.Canceled
	case codes.DeadlineExceeded:
		return context.DeadlineExceeded
	}

	var repoErr *Error
	if errors.As(err, &repoErr) {
		if op != "" && repoErr.op == "" {
			repoErr.op = op
		}
		return repoErr
	}
	return &Error{op: op, err: err, category: categorize(err)}
}
