package models

import (
	"errors"
	"fmt"
)

var (
	ErrMalformedOperation      = errors.New("malformed operation")
	ErrEntityConflictExhausted = errors.New("entity conflict retries exhausted")
	ErrUnknownPrevOperation    = errors.New("unknown prev operation")
	ErrHandleNotFound          = errors.New("handle not found in aliases")
	ErrBrokenOperationTree     = errors.New("broken operation tree")
)

// MalformedOperationError names the field that failed decoding.
type MalformedOperationError struct {
	Field  string
	Reason string
}

func (e *MalformedOperationError) Error() string {
	reason := e.Reason
	if reason == "" {
		reason = "missing"
	}
	return fmt.Sprintf("%s: %s %s", ErrMalformedOperation, e.Field, reason)
}

func (e *MalformedOperationError) Is(target error) bool {
	return target == ErrMalformedOperation
}

func Missing(field string) error {
	return &MalformedOperationError{Field: field, Reason: "missing"}
}

func Invalid(field, reason string) error {
	return &MalformedOperationError{Field: field, Reason: reason}
}

// BrokenTreeError reports why an identifier's operations do not form a single rooted tree.
type BrokenTreeError struct {
	DID    string
	Reason string
}

func (e *BrokenTreeError) Error() string {
	return fmt.Sprintf("%s for %s: %s", ErrBrokenOperationTree, e.DID, e.Reason)
}

func (e *BrokenTreeError) Is(target error) bool {
	return target == ErrBrokenOperationTree
}
