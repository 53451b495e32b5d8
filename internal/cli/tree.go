package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/seatbelt/internal/history"
	"github.com/roach88/seatbelt/internal/lock"
	"github.com/roach88/seatbelt/internal/policy"
	"github.com/roach88/seatbelt/internal/session"
	"github.com/roach88/seatbelt/internal/store"
)

// Tree encodings accepted by export and import.
const (
	TreeJSON = "json"
	TreeYAML = "yaml"
)

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	*RootOptions
	RecordFile string
	As         string
	Output     string
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the record as a JSON or YAML tree",
		Long: `Write the record's allowances as a file -> rule -> count tree.

Examples:
  seatbelt export > seatbelt.json
  seatbelt export --as yaml -o allowances.yaml`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.RecordFile, "record-file", "", "record file (default seatbelt.tsv)")
	cmd.Flags().StringVar(&opts.As, "as", TreeJSON, "tree encoding (json|yaml)")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file (default stdout)")
	return cmd
}

func runExport(opts *ExportOptions, cmd *cobra.Command) error {
	e, err := newRunEnv(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	path, err := e.recordPath(opts.RecordFile)
	if err != nil {
		return err
	}
	st, err := store.Open(path)
	if err != nil {
		return e.fail(ErrCodeRecord, "failed to read record", err)
	}

	data, err := encodeTree(st.Export(), opts.As)
	if err != nil {
		return e.fail(ErrCodeRecord, "failed to encode tree", err)
	}

	if opts.Output == "" {
		_, err = cmd.OutOrStdout().Write(data)
		return err
	}
	out := opts.Output
	if !filepath.IsAbs(out) {
		out = filepath.Join(e.dir, out)
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return e.fail(ErrCodeRecord, "failed to write export", err)
	}
	e.logger.Info("record exported", "record", path, "output", out)
	return nil
}

func encodeTree(tree map[string]map[string]int, as string) ([]byte, error) {
	switch strings.ToLower(as) {
	case TreeJSON:
		// encoding/json sorts map keys, so output is stable.
		data, err := json.MarshalIndent(tree, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	case TreeYAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(tree); err != nil {
			return nil, err
		}
		if err := enc.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unknown tree encoding %q: must be %s or %s", as, TreeJSON, TreeYAML)
	}
}

// decodeTree reads a tree in either encoding. YAML is a superset of JSON,
// so one strict decoder serves both.
func decodeTree(r io.Reader) (map[string]map[string]int, error) {
	var tree map[string]map[string]int
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&tree); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode tree: %w", err)
	}
	for file, rules := range tree {
		if file == "" {
			return nil, fmt.Errorf("decode tree: empty file name")
		}
		for rule, n := range rules {
			if rule == "" {
				return nil, fmt.Errorf("decode tree: %s: empty rule name", file)
			}
			if n < 0 {
				return nil, fmt.Errorf("decode tree: %s: %s: negative count %d", file, rule, n)
			}
		}
	}
	return tree, nil
}

// ImportOptions holds flags for the import command.
type ImportOptions struct {
	*RootOptions
	RecordFile  string
	History     string
	LockTimeout time.Duration
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ImportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "import <tree.json|tree.yaml|->",
		Short: "Replace the record with a JSON or YAML tree",
		Long: `Replace every allowance in the record with the given tree. This is
the one way to raise allowances outside the ratchet, so the record's
header is kept and the change is logged to the history file if one is
configured.

Examples:
  seatbelt import seatbelt.json
  seatbelt export | jq 'del(.["src/old.ts"])' | seatbelt import -`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.RecordFile, "record-file", "", "record file (default seatbelt.tsv)")
	cmd.Flags().StringVar(&opts.History, "history", "", "SQLite history file to log the import to")
	cmd.Flags().DurationVar(&opts.LockTimeout, "lock-timeout", 5*time.Second, "how long to wait for the record lock")
	return cmd
}

// ImportResult summarizes an import.
type ImportResult struct {
	RecordFile string `json:"recordFile"`
	Files      int    `json:"files"`
	Changes    int    `json:"changes"`
}

func runImport(opts *ImportOptions, src string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	e, err := newRunEnv(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	r, err := e.resolver(policy.Config{})
	if err != nil {
		return err
	}
	shared := r.Shared()

	path := shared.RecordFile
	if opts.RecordFile != "" {
		path = opts.RecordFile
		if !filepath.IsAbs(path) {
			path = filepath.Join(e.dir, path)
		}
	}

	var in io.Reader = cmd.InOrStdin()
	if src != StdinReport {
		if !filepath.IsAbs(src) {
			src = filepath.Join(e.dir, src)
		}
		f, err := os.Open(src)
		if err != nil {
			return e.fail(ErrCodeRecord, "failed to read tree", err)
		}
		defer f.Close()
		in = f
	}
	tree, err := decodeTree(in)
	if err != nil {
		return e.fail(ErrCodeRecord, "invalid tree", err)
	}

	lk := lock.NewFileLock(path, lock.WithLogger(e.logger))
	if err := lk.WaitAcquire(ctx, opts.LockTimeout); err != nil {
		return e.fail(ErrCodeLock, "record is locked by another process", err)
	}
	defer func() {
		if err := lk.Release(); err != nil {
			e.logger.Warn("error releasing record lock", "record", path, "error", err)
		}
	}()

	st, err := store.Open(path)
	if err != nil {
		return e.fail(ErrCodeRecord, "failed to read record", err)
	}
	before := st.Export()
	st.Import(tree)
	after := st.Export()
	if _, err := st.Flush(); err != nil {
		return e.fail(ErrCodeRecord, "failed to write record", err)
	}

	changes := treeDiff(path, before, after)
	historyFile := shared.HistoryFile
	if opts.History != "" {
		historyFile = opts.History
		if !filepath.IsAbs(historyFile) {
			historyFile = filepath.Join(e.dir, historyFile)
		}
	}
	if historyFile != "" && len(changes) > 0 {
		if err := e.logImport(ctx, historyFile, changes); err != nil {
			return e.fail(ErrCodeHistory, "failed to log import", err)
		}
	}

	result := ImportResult{RecordFile: path, Files: len(after), Changes: len(changes)}
	if e.out.JSON() {
		return e.out.Success(result)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d %s into %s (%d %s)\n",
		result.Files, plural(result.Files, "file", "files"), e.relPath(path),
		result.Changes, plural(result.Changes, "change", "changes"))
	return nil
}

// treeDiff lists every allowance change between two trees in file order.
func treeDiff(recordFile string, before, after map[string]map[string]int) []history.Change {
	files := make(map[string]struct{}, len(before)+len(after))
	for f := range before {
		files[f] = struct{}{}
	}
	for f := range after {
		files[f] = struct{}{}
	}
	var changes []history.Change
	for _, f := range slices.Sorted(maps.Keys(files)) {
		changes = append(changes, history.Diff(recordFile, f, before[f], after[f])...)
	}
	return changes
}

// logImport appends changes to the history file under a fresh session ID.
func (e *runEnv) logImport(ctx context.Context, path string, changes []history.Change) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	log, err := history.Open(path)
	if err != nil {
		return err
	}
	defer log.Close()

	seq, err := log.MaxSeq(ctx)
	if err != nil {
		return err
	}
	var ids session.IDGenerator = session.UUIDv7Generator{}
	if e.opts.IDGenerator != nil {
		ids = e.opts.IDGenerator
	}
	id := ids.Generate()
	now := time.Now()
	for i := range changes {
		seq++
		changes[i].Session = id
		changes[i].Seq = seq
		changes[i].CreatedAt = now
	}
	return log.WriteChanges(ctx, changes)
}
