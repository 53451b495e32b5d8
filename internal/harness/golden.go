package harness

import (
	"context"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// Snapshot renders a result as golden-file text: the decision trace, the
// swept files and the final record content.
func Snapshot(name string, result *Result) []byte {
	var b strings.Builder
	b.WriteString("scenario: " + name + "\n")
	b.WriteString("trace:\n")
	for _, e := range result.Trace {
		b.WriteString("  " + e.String() + "\n")
	}
	if len(result.Removed) > 0 {
		b.WriteString("removed:\n")
		for _, key := range result.Removed {
			b.WriteString("  " + key + "\n")
		}
	}
	b.WriteString("record:\n")
	b.WriteString(result.Record)
	return []byte(b.String())
}

// RunWithGolden executes a scenario in a temp dir, fails the test on any
// expectation or assertion error, and compares the snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario, t.TempDir())
	if err != nil {
		return nil, err
	}
	if !result.Pass {
		t.Errorf("scenario %s failed:\n%s", scenario.Name, result.Summary())
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, Snapshot(scenario.Name, result))
	return result, nil
}
