package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/seatbelt/internal/lint"
	"github.com/roach88/seatbelt/internal/store"
)

// Tree is a whole record: file key -> rule -> allowance.
type Tree = map[string]map[string]int

// WriteRecord writes tree as a record file named name under dir and
// returns its path.
func WriteRecord(t *testing.T, dir, name string, tree Tree) string {
	t.Helper()
	path := filepath.Join(dir, name)
	s := store.New(path)
	s.Import(tree)
	_, err := s.Flush()
	require.NoError(t, err)
	return path
}

// ReadRecord loads the record file at path. A missing file reads as empty.
func ReadRecord(t *testing.T, path string) Tree {
	t.Helper()
	s, err := store.Open(path)
	require.NoError(t, err)
	return s.Export()
}

// RecordBytes returns the raw record file content, or "" when missing.
func RecordBytes(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return ""
	}
	require.NoError(t, err)
	return string(data)
}

// Errors builds n countable error diagnostics for rule on consecutive lines.
func Errors(rule string, n int) []lint.Diagnostic {
	out := make([]lint.Diagnostic, n)
	for i := range out {
		out[i] = lint.Diagnostic{
			RuleID:   rule,
			Severity: lint.SeverityError,
			Message:  fmt.Sprintf("%s violation %d", rule, i+1),
			Line:     i + 1,
			Column:   1,
		}
	}
	return out
}

// Touch creates an empty source file under dir and returns its absolute path.
func Touch(t *testing.T, dir, rel string) string {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, nil, 0o644))
	return path
}
