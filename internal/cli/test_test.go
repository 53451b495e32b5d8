package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const passingScenario = `name: tighten
description: "Fewer errors lower the allowance"
record:
  src/a.ts: { no-any: 3 }
steps:
  - file: src/a.ts
    errors: { no-any: 1 }
    expect:
      outcomes: { no-any: improved }
      changed: true
assertions:
  - type: record
    record:
      src/a.ts: { no-any: 1 }
`

const failingScenario = `name: wrong
description: "More errors are not an improvement"
record:
  src/a.ts: { no-any: 3 }
steps:
  - file: src/a.ts
    errors: { no-any: 5 }
    expect:
      outcomes: { no-any: improved }
`

func writeScenarios(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func testOpts(format string) *RootOptions {
	return &RootOptions{Format: format}
}

func TestTestCommand_RequiresDir(t *testing.T) {
	_, _, err := execute(NewTestCommand(testOpts("text")))
	require.Error(t, err)
}

func TestTestCommand_MissingDir(t *testing.T) {
	_, _, err := execute(NewTestCommand(testOpts("text")), filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTestCommand_Empty(t *testing.T) {
	out, _, err := execute(NewTestCommand(testOpts("text")), t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found.")
}

func TestTestCommand_UpdateThenCompare(t *testing.T) {
	dir := writeScenarios(t, map[string]string{"tighten.yaml": passingScenario})

	out, _, err := execute(NewTestCommand(testOpts("text")), dir, "--update")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ tighten (golden updated)")

	golden := filepath.Join(dir, "golden", "tighten.golden")
	data, err := os.ReadFile(golden)
	require.NoError(t, err)
	assert.Contains(t, string(data), "scenario: tighten\n")
	assert.Contains(t, string(data), "1 src/a.ts no-any 1/3 improved")

	out, _, err = execute(NewTestCommand(testOpts("text")), dir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ All scenarios passed")

	require.NoError(t, os.WriteFile(golden, []byte("stale\n"), 0o644))
	out, _, err = execute(NewTestCommand(testOpts("text")), dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "snapshot does not match golden file")
}

func TestTestCommand_FailingScenarioJSON(t *testing.T) {
	dir := writeScenarios(t, map[string]string{
		"tighten.yaml": passingScenario,
		"wrong.yaml":   failingScenario,
		"notes.txt":    "ignored",
	})

	out, _, err := execute(NewTestCommand(testOpts("json")), dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var result TestResult
	resp := decodeResponse(t, out, &result)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E_TEST_FAILED", resp.Error.Code)
	assert.Equal(t, 2, result.Total)
	assert.Equal(t, 1, result.Passed)
	require.Len(t, result.Scenarios, 2)
	assert.Equal(t, "wrong", result.Scenarios[1].Name)
	assert.NotEmpty(t, result.Scenarios[1].Errors)
}

func TestTestCommand_Filter(t *testing.T) {
	dir := writeScenarios(t, map[string]string{
		"tighten.yaml": passingScenario,
		"wrong.yaml":   failingScenario,
	})

	out, _, err := execute(NewTestCommand(testOpts("text")), dir, "--filter", "tig*")
	require.NoError(t, err)
	assert.Contains(t, out, "1 passed, 0 failed, 1 total")
}

func TestTestCommand_RunsHarnessScenarios(t *testing.T) {
	cmd := NewTestCommand(testOpts("text"))
	cmd.SetContext(context.Background())
	out, _, err := execute(cmd, filepath.Join("..", "harness", "testdata", "scenarios"))
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓ malformed_record")
	assert.Contains(t, out, "✓ All scenarios passed")
}
