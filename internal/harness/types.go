package harness

import (
	"fmt"
	"strings"
)

// TraceEvent is one ratchet decision made while running a scenario.
type TraceEvent struct {
	Step     int    `json:"step"`
	File     string `json:"file"`
	Rule     string `json:"rule"`
	Observed int    `json:"observed"`
	Allowed  int    `json:"allowed"`
	Outcome  string `json:"outcome"`
}

// String renders the event as one golden-file line.
func (e TraceEvent) String() string {
	return fmt.Sprintf("%d %s %s %d/%d %s", e.Step, e.File, e.Rule, e.Observed, e.Allowed, e.Outcome)
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall scenario success.
	// True if every step expectation and assertion matched.
	Pass bool `json:"pass"`

	// Trace contains every decision in processing order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains expectation and assertion failures.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Record is the record file content after the last step ("" if the
	// file was never written).
	Record string `json:"record"`

	// InitialRecord is the record file content before the first step.
	InitialRecord string `json:"initial_record"`

	// Removed lists keys dropped by finish steps, in order.
	Removed []string `json:"removed,omitempty"`

	// Stats is the session's statistics snapshot after the last step.
	Stats map[string]int `json:"stats"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		Stats:  map[string]int{},
	}
}

// AddError adds a failure and marks the result as failed.
func (r *Result) AddError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	r.Pass = false
}

// Summary joins the errors for test output.
func (r *Result) Summary() string {
	return strings.Join(r.Errors, "\n")
}
