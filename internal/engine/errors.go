package engine

import (
	"errors"
	"fmt"
)

// InvariantError is a bug-class condition detected while reconciling a
// file. Reconcile never returns it to the caller as a failure: the file's
// diagnostics pass through unchanged and a bug notice is appended.
type InvariantError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// File is the record key of the file being reconciled.
	File string

	// RuleID is the rule involved, when known.
	RuleID string
}

// ErrorCode categorizes engine errors.
type ErrorCode string

const (
	// ErrCodeInternalInvariant indicates reconciliation state that should be
	// impossible, such as a counted rule with no classification.
	ErrCodeInternalInvariant ErrorCode = "INTERNAL_INVARIANT"
)

// Error implements the error interface.
func (e *InvariantError) Error() string {
	if e.RuleID != "" {
		return fmt.Sprintf("%s: %s (file=%s, rule=%s)", e.Code, e.Message, e.File, e.RuleID)
	}
	return fmt.Sprintf("%s: %s (file=%s)", e.Code, e.Message, e.File)
}

// IsInvariantError returns true if err is an internal invariant violation.
// Uses errors.As to handle wrapped errors.
func IsInvariantError(err error) bool {
	var ie *InvariantError
	if errors.As(err, &ie) {
		return ie.Code == ErrCodeInternalInvariant
	}
	return false
}

// NewInvariantError creates an InvariantError for file.
func NewInvariantError(file, ruleID, message string) *InvariantError {
	return &InvariantError{
		Code:    ErrCodeInternalInvariant,
		Message: message,
		File:    file,
		RuleID:  ruleID,
	}
}
