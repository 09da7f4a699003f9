package storage

import (
	"errors"
	"fmt"
)

// NotFoundError reports a missing row.
type NotFoundError struct {
	Entity string
	Ref    string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.Ref)
}

// AlreadyExistsError reports a uniqueness violation on uuid or on name among
// live rows.
type AlreadyExistsError struct {
	Entity string
	Ref    string
}

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("%s %s already exists", e.Entity, e.Ref)
}

// ReferencedError blocks a destroy while referencing rows exist.
type ReferencedError struct {
	Entity string
	Ref    string
	By     string
}

func (e *ReferencedError) Error() string {
	return fmt.Sprintf("%s %s is referenced by one or more %s", e.Entity, e.Ref, e.By)
}

// InvalidError reports bad input: immutable field updates, malformed
// filters, unknown operators.
type InvalidError struct {
	Reason string
}

func (e *InvalidError) Error() string {
	return fmt.Sprintf("invalid request: %s", e.Reason)
}

// DatabaseError wraps any backend failure that is not a not-found or
// already-exists condition.
type DatabaseError struct {
	Op  string
	Err error
}

func (e *DatabaseError) Error() string {
	return fmt.Sprintf("database error during %s: %v", e.Op, e.Err)
}

func (e *DatabaseError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsAlreadyExists reports whether err is an AlreadyExistsError.
func IsAlreadyExists(err error) bool {
	var ae *AlreadyExistsError
	return errors.As(err, &ae)
}

// IsReferenced reports whether err is a ReferencedError.
func IsReferenced(err error) bool {
	var re *ReferencedError
	return errors.As(err, &re)
}

// IsInvalid reports whether err is an InvalidError.
func IsInvalid(err error) bool {
	var ie *InvalidError
	return errors.As(err, &ie)
}
