package harness

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/roach88/seatbelt/internal/store"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  %s\n", event)
		}
	}
	return buf.String()
}

// EvaluateAssertions runs every assertion and returns the failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluate(result, a); err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

func evaluate(result *Result, a Assertion) error {
	switch a.Type {
	case AssertRecord:
		return assertRecord(result, a)
	case AssertRecordUnchanged:
		if result.Record != result.InitialRecord {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("record unchanged:\n%s", result.InitialRecord),
				Actual:   result.Record,
				Trace:    result.Trace,
			}
		}
	case AssertNoRecord:
		if result.Record != "" {
			return &AssertionError{Type: a.Type, Expected: "no record file", Actual: result.Record}
		}
	case AssertStats:
		for _, name := range slices.Sorted(maps.Keys(a.Stats)) {
			got, ok := result.Stats[name]
			if !ok {
				return &AssertionError{Type: a.Type, Expected: "known stat " + name, Actual: "no such stat"}
			}
			if got != a.Stats[name] {
				return &AssertionError{
					Type:     a.Type,
					Expected: fmt.Sprintf("%s = %d", name, a.Stats[name]),
					Actual:   fmt.Sprintf("%s = %d", name, got),
					Trace:    result.Trace,
				}
			}
		}
	case AssertRemoved:
		if !slices.Equal(a.Removed, result.Removed) && (len(a.Removed) > 0 || len(result.Removed) > 0) {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("%v", a.Removed),
				Actual:   fmt.Sprintf("%v", result.Removed),
			}
		}
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}

// assertRecord compares the final record with the expected tree.
func assertRecord(result *Result, a Assertion) error {
	st, err := store.Parse("", []byte(result.Record))
	if err != nil {
		return &AssertionError{Type: a.Type, Expected: "a readable record", Actual: err.Error()}
	}
	got := st.Export()
	if !treesEqual(got, a.Record) {
		return &AssertionError{
			Type:     a.Type,
			Expected: formatTree(a.Record),
			Actual:   formatTree(got),
			Trace:    result.Trace,
		}
	}
	return nil
}

func treesEqual(a, b map[string]map[string]int) bool {
	if len(a) != len(b) {
		return false
	}
	for file, rules := range a {
		other, ok := b[file]
		if !ok || !maps.Equal(rules, other) {
			return false
		}
	}
	return true
}

func formatTree(tree map[string]map[string]int) string {
	if len(tree) == 0 {
		return "{}"
	}
	var parts []string
	for _, file := range slices.Sorted(maps.Keys(tree)) {
		rules := tree[file]
		var rs []string
		for _, rule := range slices.Sorted(maps.Keys(rules)) {
			rs = append(rs, fmt.Sprintf("%s: %d", rule, rules[rule]))
		}
		parts = append(parts, fmt.Sprintf("%s {%s}", file, strings.Join(rs, ", ")))
	}
	return strings.Join(parts, "; ")
}
