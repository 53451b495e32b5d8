package lint

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeverity_String(t *testing.T) {
	assert.Equal(t, "info", SeverityInfo.String())
	assert.Equal(t, "warning", SeverityWarning.String())
	assert.Equal(t, "error", SeverityError.String())
	assert.Equal(t, "unknown", Severity(9).String())
}

func TestSeverity_JSON(t *testing.T) {
	var d Diagnostic
	require.NoError(t, json.Unmarshal([]byte(`{"ruleId":"r","severity":"error","message":"m"}`), &d))
	assert.Equal(t, SeverityError, d.Severity)

	require.NoError(t, json.Unmarshal([]byte(`{"ruleId":"r","severity":1,"message":"m"}`), &d))
	assert.Equal(t, SeverityWarning, d.Severity)

	assert.Error(t, json.Unmarshal([]byte(`{"severity":"loud"}`), &d))

	out, err := json.Marshal(Diagnostic{RuleID: "r", Severity: SeverityError, Message: "m"})
	require.NoError(t, err)
	assert.Contains(t, string(out), `"severity":2`)
}

func TestCountable(t *testing.T) {
	tests := []struct {
		name string
		d    Diagnostic
		want bool
	}{
		{"error with rule", Diagnostic{RuleID: "r", Severity: SeverityError}, true},
		{"warning", Diagnostic{RuleID: "r", Severity: SeverityWarning}, false},
		{"info", Diagnostic{RuleID: "r", Severity: SeverityInfo}, false},
		{"no rule", Diagnostic{Severity: SeverityError}, false},
		{"suppressed", Diagnostic{RuleID: "r", Severity: SeverityError, Suppressed: true}, false},
		{"synthetic", Diagnostic{RuleID: "r", Severity: SeverityError, Synthetic: true}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.d.Countable())
		})
	}
}

func TestCountErrors(t *testing.T) {
	diags := []Diagnostic{
		{RuleID: "a", Severity: SeverityError},
		{RuleID: "a", Severity: SeverityError},
		{RuleID: "a", Severity: SeverityWarning},
		{RuleID: "b", Severity: SeverityError, Suppressed: true},
		{Severity: SeverityError},
	}
	assert.Equal(t, map[string]int{"a": 2}, CountErrors(diags))
	assert.True(t, HasErrors(diags))
	assert.False(t, HasErrors(diags[2:4]))
}

func TestParseReport(t *testing.T) {
	input := `[
	  {"filePath": "/repo/src/a.ts",
	   "messages": [
	     {"ruleId": "no-console", "severity": 2, "message": "Unexpected console", "line": 3, "column": 5},
	     {"ruleId": null, "severity": 2, "message": "Parsing error", "line": 1, "column": 1, "fatal": true}
	   ],
	   "suppressedMessages": [
	     {"ruleId": "no-console", "severity": 2, "message": "Unexpected console", "line": 9, "column": 1}
	   ],
	   "errorCount": 2}
	]`
	results, err := ParseReport(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, results, 1)

	diags := results[0].Diagnostics()
	require.Len(t, diags, 3)
	assert.Equal(t, "", diags[1].RuleID)
	assert.True(t, diags[2].Suppressed)
	assert.Equal(t, map[string]int{"no-console": 1}, CountErrors(diags))
}

func TestParseReport_Invalid(t *testing.T) {
	_, err := ParseReport(strings.NewReader(`[{"messages": []}]`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid report")

	_, err = ParseReport(strings.NewReader(`[{"filePath": "a", "messages": [{"ruleId": "r", "severity": 2, "message": "m", "line": -1}]}]`))
	require.Error(t, err)

	_, err = ParseReport(strings.NewReader(`{"not": "an array"}`))
	require.Error(t, err)
}

func TestRecordKey(t *testing.T) {
	dir := t.TempDir()

	assert.Equal(t, "src/a.ts", RecordKey(dir, filepath.Join(dir, "src", "a.ts")))

	outside := filepath.Join(filepath.Dir(dir), "elsewhere", "b.ts")
	assert.Equal(t, filepath.ToSlash(outside), RecordKey(dir, outside))

	// Decomposed "é" (e + U+0301) normalizes to the precomposed form.
	decomposed := filepath.Join(dir, "e\u0301.ts")
	assert.Equal(t, "\u00e9.ts", RecordKey(dir, decomposed))
}

func TestKeyPath(t *testing.T) {
	dir := t.TempDir()
	assert.Equal(t, filepath.Join(dir, "src", "a.ts"), KeyPath(dir, "src/a.ts"))

	abs := filepath.Join(dir, "x.ts")
	assert.Equal(t, abs, KeyPath("/other", filepath.ToSlash(abs)))
}
