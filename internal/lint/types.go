package lint

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// =============================================================================
// SEVERITY
// =============================================================================

// Severity is the level of a diagnostic. Values match ESLint's numeric
// severities so reports round-trip unchanged.
type Severity int

const (
	// SeverityInfo is informational output. Never counted.
	SeverityInfo Severity = iota

	// SeverityWarning does not fail a run.
	SeverityWarning

	// SeverityError fails a run unless seatbelt demotes it.
	SeverityError
)

// String returns the lower-case name of the severity.
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "unknown"
	}
}

// ParseSeverity accepts the names used by common linters.
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "error", "err", "fatal", "2":
		return SeverityError, nil
	case "warning", "warn", "1":
		return SeverityWarning, nil
	case "info", "note", "hint", "off", "0":
		return SeverityInfo, nil
	default:
		return SeverityInfo, fmt.Errorf("unknown severity %q", s)
	}
}

// MarshalJSON writes the numeric form.
func (s Severity) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Itoa(int(s))), nil
}

// UnmarshalJSON accepts either a number or a severity name.
func (s *Severity) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		*s = Severity(n)
		return nil
	}
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return fmt.Errorf("severity must be a number or a string: %s", data)
	}
	parsed, err := ParseSeverity(name)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// =============================================================================
// DIAGNOSTIC
// =============================================================================

// Diagnostic is one lint message for a file.
type Diagnostic struct {
	// RuleID is the rule that produced the message. Empty for parser errors
	// and other rule-less messages, which seatbelt never counts.
	RuleID string `json:"ruleId"`

	// Severity is the message level.
	Severity Severity `json:"severity" validate:"min=0,max=2"`

	// Message is the human-readable text, including any seatbelt annotation.
	Message string `json:"message" validate:"required"`

	// Line is 1-based; 0 means "file level".
	Line int `json:"line" validate:"gte=0"`

	// Column is 1-based for host diagnostics; 0 for file-level notices.
	Column int `json:"column" validate:"gte=0"`

	EndLine   int `json:"endLine,omitempty" validate:"gte=0"`
	EndColumn int `json:"endColumn,omitempty" validate:"gte=0"`

	// Suppressed is set for messages silenced by inline directives.
	Suppressed bool `json:"suppressed,omitempty"`

	// Synthetic marks notices created by seatbelt itself.
	Synthetic bool `json:"synthetic,omitempty"`
}

// Countable reports whether the diagnostic counts toward a rule's allowance:
// error severity, not suppressed, and attributed to a rule. Seatbelt's own
// notices never count.
func (d Diagnostic) Countable() bool {
	return d.Severity == SeverityError && !d.Suppressed && d.RuleID != "" && !d.Synthetic
}

// Location formats "line:column".
func (d Diagnostic) Location() string {
	return strconv.Itoa(d.Line) + ":" + strconv.Itoa(d.Column)
}

// CountErrors tallies countable diagnostics per rule.
func CountErrors(diags []Diagnostic) map[string]int {
	counts := make(map[string]int)
	for _, d := range diags {
		if d.Countable() {
			counts[d.RuleID]++
		}
	}
	return counts
}

// HasErrors reports whether any diagnostic is at error severity and active.
func HasErrors(diags []Diagnostic) bool {
	for _, d := range diags {
		if d.Severity == SeverityError && !d.Suppressed {
			return true
		}
	}
	return false
}
