package cli

import (
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/roach88/seatbelt/internal/testutil"
)

func TestShow_Text(t *testing.T) {
	p := newProject(t, testutil.Tree{"src/a.ts": {"no-any": 3, "eqeqeq": 1}, "src/b.ts": {"no-any": 2}})

	out, _, err := execute(NewShowCommand(p.opts("text")))
	require.NoError(t, err)

	assert.Less(t, strings.Index(out, "src/a.ts"), strings.Index(out, "src/b.ts"))
	assert.Less(t, strings.Index(out, "eqeqeq"), strings.Index(out, "no-any"))
	assert.Contains(t, out, "6 allowed errors in 2 files")
}

func TestShow_FilteredJSON(t *testing.T) {
	p := newProject(t, testutil.Tree{"src/a.ts": {"no-any": 3}, "src/b.ts": {"no-any": 2}})

	out, _, err := execute(NewShowCommand(p.opts("json")), "src/b.ts", "src/missing.ts")
	require.NoError(t, err)

	var result ShowResult
	resp := decodeResponse(t, out, &result)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, p.path("seatbelt.tsv"), result.RecordFile)
	assert.Equal(t, map[string]map[string]int{"src/b.ts": {"no-any": 2}}, result.Files)
	assert.Equal(t, 2, result.Total)
}

func TestShow_Empty(t *testing.T) {
	p := newProject(t, nil)
	out, _, err := execute(NewShowCommand(p.opts("text")))
	require.NoError(t, err)
	assert.Contains(t, out, "No allowances recorded.")
}

func TestShow_RecordFileFlag(t *testing.T) {
	p := newProject(t, nil)
	testutil.WriteRecord(t, p.dir, "other.tsv", testutil.Tree{"x.ts": {"r": 1}})

	out, _, err := execute(NewShowCommand(p.opts("text")), "--record-file", "other.tsv")
	require.NoError(t, err)
	assert.Contains(t, out, "x.ts")
}

func TestExport_JSONAndYAML(t *testing.T) {
	tree := testutil.Tree{"src/a.ts": {"no-any": 3}, "src/b.ts": {"eqeqeq": 1}}
	p := newProject(t, tree)

	out, _, err := execute(NewExportCommand(p.opts("text")))
	require.NoError(t, err)
	var got testutil.Tree
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, tree, got)

	_, _, err = execute(NewExportCommand(p.opts("text")), "--as", "yaml", "-o", "tree.yaml")
	require.NoError(t, err)
	data, err := os.ReadFile(p.path("tree.yaml"))
	require.NoError(t, err)
	got = nil
	require.NoError(t, yaml.Unmarshal(data, &got))
	assert.Equal(t, tree, got)
}

func TestExport_UnknownEncoding(t *testing.T) {
	p := newProject(t, testutil.Tree{"a.ts": {"r": 1}})
	_, _, err := execute(NewExportCommand(p.opts("text")), "--as", "toml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestImport_ReplacesRecordAndKeepsHeader(t *testing.T) {
	p := newProject(t, nil)
	p.write("seatbelt.tsv", "# team header\n\"old.ts\"\t\"r\"\t4\n")
	p.write("tree.yaml", "src/a.ts:\n  no-any: 2\n  zero: 0\n")

	out, _, err := execute(NewImportCommand(p.opts("text")), "tree.yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 1 file into seatbelt.tsv (2 changes)")

	assert.Equal(t, "# team header\n\"src/a.ts\"\t\"no-any\"\t2\n", testutil.RecordBytes(t, p.path("seatbelt.tsv")))
	_, err = os.Stat(p.path("seatbelt.tsv.lock"))
	assert.True(t, os.IsNotExist(err), "lock released")
}

func TestImport_Stdin(t *testing.T) {
	p := newProject(t, nil)
	cmd := NewImportCommand(p.opts("json"))
	cmd.SetIn(strings.NewReader(`{"a.ts": {"r": 1}}`))

	out, _, err := execute(cmd, "-")
	require.NoError(t, err)

	var result ImportResult
	decodeResponse(t, out, &result)
	assert.Equal(t, 1, result.Files)
	assert.Equal(t, 1, result.Changes)
	assert.Equal(t, testutil.Tree{"a.ts": {"r": 1}}, p.record())
}

func TestImport_RejectsInvalidTree(t *testing.T) {
	p := newProject(t, testutil.Tree{"a.ts": {"r": 1}})
	for name, content := range map[string]string{
		"negative.json": `{"a.ts": {"r": -1}}`,
		"empty.json":    `{"a.ts": {"": 1}}`,
		"shape.json":    `["a.ts"]`,
	} {
		p.write(name, content)
		_, _, err := execute(NewImportCommand(p.opts("text")), name)
		require.Error(t, err, name)
		assert.Equal(t, ExitCommandError, GetExitCode(err), name)
	}
	assert.Equal(t, testutil.Tree{"a.ts": {"r": 1}}, p.record())
}

func TestImport_LogsHistory(t *testing.T) {
	p := newProject(t, testutil.Tree{"a.ts": {"r": 3}})
	p.write("tree.json", `{"a.ts": {"r": 5}}`)

	_, _, err := execute(NewImportCommand(p.opts("text")), "tree.json", "--history", "history.db")
	require.NoError(t, err)

	out, _, err := execute(NewHistoryCommand(p.opts("text")), "--db", "history.db")
	require.NoError(t, err)
	assert.Contains(t, out, "loosened")
	assert.Contains(t, out, "a.ts  r  3 -> 5")
}

func TestPrune(t *testing.T) {
	p := newProject(t, testutil.Tree{"src/a.ts": {"r": 1}, "src/gone.ts": {"r": 2}})
	testutil.Touch(t, p.dir, "src/a.ts")

	out, _, err := execute(NewPruneCommand(p.opts("text")), "--frozen")
	require.NoError(t, err)
	assert.Contains(t, out, "Nothing pruned")
	assert.Contains(t, p.record(), "src/gone.ts")

	out, _, err = execute(NewPruneCommand(p.opts("text")))
	require.NoError(t, err)
	assert.Contains(t, out, "- src/gone.ts")
	assert.Contains(t, out, "Pruned 1 file from seatbelt.tsv")
	assert.Equal(t, testutil.Tree{"src/a.ts": {"r": 1}}, p.record())

	out, _, err = execute(NewPruneCommand(p.opts("json")))
	require.NoError(t, err)
	var result PruneResult
	decodeResponse(t, out, &result)
	assert.Empty(t, result.Removed)
	assert.NotNil(t, result.Removed)
}

func TestHistory_AfterCheck(t *testing.T) {
	p := newProject(t, testutil.Tree{"src/a.ts": {"no-any": 3, "eqeqeq": 1}})
	p.write("seatbelt.yaml", "historyFile: .seatbelt/history.db\n")
	report := p.report("report.json", map[string]map[string]int{"src/a.ts": {"no-any": 2}})

	_, _, err := execute(NewCheckCommand(p.opts("text")), report)
	require.NoError(t, err)

	out, _, err := execute(NewHistoryCommand(p.opts("json")), "src/a.ts")
	require.NoError(t, err)
	var changes []struct {
		Session string `json:"session"`
		Seq     int64  `json:"seq"`
		File    string `json:"file"`
		Rule    string `json:"rule"`
		Old     int    `json:"old"`
		New     int    `json:"new"`
		Kind    string `json:"kind"`
	}
	decodeResponse(t, out, &changes)
	require.Len(t, changes, 2)
	assert.Equal(t, "cli-test", changes[0].Session)
	assert.Equal(t, "eqeqeq", changes[0].Rule)
	assert.Equal(t, "removed", changes[0].Kind)
	assert.Equal(t, "no-any", changes[1].Rule)
	assert.Equal(t, 3, changes[1].Old)
	assert.Equal(t, 2, changes[1].New)

	out, _, err = execute(NewHistoryCommand(p.opts("text")), "--rule", "no-any", "--limit", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "tightened")
	assert.NotContains(t, out, "eqeqeq")
}

func TestHistory_NotConfigured(t *testing.T) {
	p := newProject(t, nil)
	_, errOut, err := execute(NewHistoryCommand(p.opts("text")))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, errOut, "E_HISTORY")

	_, _, err = execute(NewHistoryCommand(p.opts("text")), "--db", "missing.db")
	require.Error(t, err)
	_, statErr := os.Stat(p.path("missing.db"))
	assert.True(t, os.IsNotExist(statErr), "history is never created by reading it")
}
