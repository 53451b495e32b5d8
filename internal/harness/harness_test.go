package harness

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenarios_Golden(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("testdata", "scenarios", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		scenario, err := LoadScenario(path)
		require.NoError(t, err, path)

		t.Run(scenario.Name, func(t *testing.T) {
			_, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
		})
	}
}

func TestRun_ReportsExpectationMismatch(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: wrong_expectation
description: "expects the wrong outcome"
record:
  src/a.ts: { no-any: 2 }
steps:
  - file: src/a.ts
    errors: { no-any: 1 }
    expect:
      outcomes: { no-any: violation }
      changed: false
assertions:
  - type: record_unchanged
`))
	require.NoError(t, err)

	result, err := Run(context.Background(), scenario, t.TempDir())
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 3)
	assert.Contains(t, result.Errors[0], `outcome "improved", want "violation"`)
	assert.Contains(t, result.Errors[1], "changed true, want false")
	assert.Contains(t, result.Errors[2], "record_unchanged")
}

func TestRun_UnexpectedError(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: unexpected_error
description: "malformed record without an expected error"
record_text: "not a record line\n"
steps:
  - file: src/a.ts
    errors: { no-any: 1 }
`))
	require.NoError(t, err)

	result, err := Run(context.Background(), scenario, t.TempDir())
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Contains(t, result.Summary(), "unexpected error")
	assert.Empty(t, result.Trace)
}

func TestRun_NoRecordForUntrackedFile(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: untracked
description: "a file without a record is left alone"
steps:
  - file: src/new.ts
    errors: { no-any: 2 }
    expect:
      errors: 2
      changed: false
  - finish: true
assertions:
  - type: no_record
  - type: stats
    stats: { files: 1, flushes: 0 }
`))
	require.NoError(t, err)

	result, err := Run(context.Background(), scenario, t.TempDir())
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Summary())
	assert.Empty(t, result.Trace)
	assert.Empty(t, result.Record)
}

func TestRun_BadConfig(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: bad_config
description: "schema violations surface as setup errors"
config:
  frozen: "sometimes"
steps:
  - file: src/a.ts
`))
	require.NoError(t, err)

	_, err = Run(context.Background(), scenario, t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CONFIG_SCHEMA")
}

func TestRun_CreatesSourceFiles(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: files
description: "recorded and linted files exist unless missing"
record:
  src/kept.ts: { r: 1 }
  src/gone.ts: { r: 1 }
missing: [src/gone.ts]
steps:
  - file: lib/x.ts
`))
	require.NoError(t, err)

	dir := t.TempDir()
	_, err = Run(context.Background(), scenario, dir)
	require.NoError(t, err)

	for _, rel := range []string{"src/kept.ts", "lib/x.ts"} {
		_, err := os.Stat(filepath.Join(dir, filepath.FromSlash(rel)))
		assert.NoError(t, err, rel)
	}
	_, err = os.Stat(filepath.Join(dir, "src", "gone.ts"))
	assert.True(t, os.IsNotExist(err))
}

func TestAssertionError_Format(t *testing.T) {
	err := &AssertionError{
		Type:     AssertRecord,
		Expected: "a.ts {r: 1}",
		Actual:   "{}",
		Trace:    []TraceEvent{{Step: 1, File: "a.ts", Rule: "r", Observed: 0, Allowed: 1, Outcome: "removed"}},
	}
	msg := err.Error()
	assert.True(t, strings.HasPrefix(msg, "Assertion failed: record\n"))
	assert.Contains(t, msg, "Expected: a.ts {r: 1}")
	assert.Contains(t, msg, "1 a.ts r 0/1 removed")
}

func TestEvaluateAssertions(t *testing.T) {
	result := NewResult()
	result.Record = "\"a.ts\"\t\"r\"\t2\n"
	result.InitialRecord = result.Record
	result.Stats = map[string]int{"files": 1}
	result.Removed = []string{"gone.ts"}

	assert.Empty(t, EvaluateAssertions(result, []Assertion{
		{Type: AssertRecord, Record: map[string]map[string]int{"a.ts": {"r": 2}}},
		{Type: AssertRecordUnchanged},
		{Type: AssertStats, Stats: map[string]int{"files": 1}},
		{Type: AssertRemoved, Removed: []string{"gone.ts"}},
	}))

	errs := EvaluateAssertions(result, []Assertion{
		{Type: AssertRecord, Record: map[string]map[string]int{"a.ts": {"r": 1}}},
		{Type: AssertNoRecord},
		{Type: AssertStats, Stats: map[string]int{"nope": 1}},
		{Type: AssertRemoved},
	})
	require.Len(t, errs, 4)
	assert.Contains(t, errs[0], "assertions[0]")
	assert.Contains(t, errs[2], "known stat nope")
}
