package record

import (
	"errors"
	"fmt"
)

// CodeMalformedLine identifies record decode failures.
const CodeMalformedLine = "MALFORMED_RECORD_LINE"

// Field names reported by MalformedLineError.
const (
	FieldLine       = "line"
	FieldSourceFile = "sourceFile"
	FieldRuleID     = "ruleId"
	FieldMaxErrors  = "maxErrors"
)

// MalformedLineError reports a record line that could not be decoded.
//
// Decoding stops at the first malformed line; no partial document is
// returned. Line is 1-based and counts every physical line of the input,
// including header and blank lines, so it matches what an editor shows.
type MalformedLineError struct {
	// Line is the 1-based line number.
	Line int

	// Content is the raw line without its trailing newline.
	Content string

	// Field names the field that failed (FieldLine for a wrong field count).
	Field string

	// Reason is a human-readable description of the failure.
	Reason string

	// Err is the underlying parse error, if any.
	Err error
}

func (e *MalformedLineError) Error() string {
	msg := fmt.Sprintf("%s: line %d: %s: %s", CodeMalformedLine, e.Line, e.Field, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return fmt.Sprintf("%s (content %q)", msg, e.Content)
}

func (e *MalformedLineError) Unwrap() error {
	return e.Err
}

// IsMalformedLine returns true if err is or wraps a *MalformedLineError.
func IsMalformedLine(err error) bool {
	var me *MalformedLineError
	return errors.As(err, &me)
}
