package lint

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/go-playground/validator/v10"
)

// FileResult is one file's entry in an ESLint-style JSON report.
type FileResult struct {
	// FilePath is the linted file, usually absolute.
	FilePath string `json:"filePath" validate:"required"`

	// Messages are active diagnostics.
	Messages []Diagnostic `json:"messages" validate:"dive"`

	// SuppressedMessages are diagnostics silenced by inline directives.
	SuppressedMessages []Diagnostic `json:"suppressedMessages,omitempty" validate:"dive"`
}

// Diagnostics returns Messages followed by SuppressedMessages, the latter
// marked suppressed so they are never counted.
func (r FileResult) Diagnostics() []Diagnostic {
	out := make([]Diagnostic, 0, len(r.Messages)+len(r.SuppressedMessages))
	out = append(out, r.Messages...)
	for _, d := range r.SuppressedMessages {
		d.Suppressed = true
		out = append(out, d)
	}
	return out
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// ParseReport decodes and validates an ESLint-style JSON report.
//
// The report is a JSON array of file results. Unknown fields are ignored so
// full ESLint output (fixableErrorCount, source, ...) is accepted as-is.
func ParseReport(r io.Reader) ([]FileResult, error) {
	var results []FileResult
	if err := json.NewDecoder(r).Decode(&results); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	if err := ValidateReport(results); err != nil {
		return nil, err
	}
	return results, nil
}

// ValidateReport checks required fields and value ranges on every entry.
func ValidateReport(results []FileResult) error {
	v := getValidator()
	for i := range results {
		if err := v.Struct(&results[i]); err != nil {
			return fmt.Errorf("invalid report entry %d (%s): %w", i, results[i].FilePath, err)
		}
	}
	return nil
}
