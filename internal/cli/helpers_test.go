package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/roach88/seatbelt/internal/lint"
	"github.com/roach88/seatbelt/internal/policy"
	"github.com/roach88/seatbelt/internal/testutil"
)

// project is a scratch repository with a record, source files and reports.
type project struct {
	t   *testing.T
	dir string
	env map[string]string
}

func newProject(t *testing.T, tree testutil.Tree) *project {
	t.Helper()
	p := &project{t: t, dir: t.TempDir(), env: map[string]string{}}
	if tree != nil {
		testutil.WriteRecord(t, p.dir, policy.DefaultRecordFile, tree)
	}
	return p
}

func (p *project) opts(format string) *RootOptions {
	return &RootOptions{
		Format:      format,
		Dir:         p.dir,
		Lookup:      policy.MapLookup(p.env),
		IDGenerator: testutil.NewFixedSessionID("cli-test"),
	}
}

func (p *project) path(rel string) string {
	return filepath.Join(p.dir, filepath.FromSlash(rel))
}

func (p *project) record() testutil.Tree {
	return testutil.ReadRecord(p.t, p.path(policy.DefaultRecordFile))
}

func (p *project) write(rel, content string) string {
	p.t.Helper()
	path := p.path(rel)
	require.NoError(p.t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(p.t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// report writes an ESLint-style report with errs[file][rule] errors and
// returns its path. Source files are created.
func (p *project) report(name string, errs map[string]map[string]int) string {
	p.t.Helper()
	data := reportJSON(p.t, p.dir, errs)
	for file := range errs {
		testutil.Touch(p.t, p.dir, file)
	}
	return p.write(name, data)
}

func reportJSON(t *testing.T, dir string, errs map[string]map[string]int) string {
	t.Helper()
	var results []lint.FileResult
	for file, rules := range errs {
		r := lint.FileResult{FilePath: filepath.Join(dir, filepath.FromSlash(file)), Messages: []lint.Diagnostic{}}
		for rule, n := range rules {
			r.Messages = append(r.Messages, testutil.Errors(rule, n)...)
		}
		results = append(results, r)
	}
	data, err := json.Marshal(results)
	require.NoError(t, err)
	return string(data)
}

// execute runs cmd with args and returns stdout, stderr and the error.
func execute(cmd *cobra.Command, args ...string) (string, string, error) {
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func decodeResponse(t *testing.T, out string, data any) CLIResponse {
	t.Helper()
	var raw struct {
		CLIResponse
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &raw), out)
	if data != nil {
		require.NoError(t, json.Unmarshal(raw.Data, data))
	}
	return raw.CLIResponse
}
