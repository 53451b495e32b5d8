package cli

import (
	"fmt"
	"maps"
	"path/filepath"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/seatbelt/internal/lint"
	"github.com/roach88/seatbelt/internal/policy"
	"github.com/roach88/seatbelt/internal/store"
)

// ShowOptions holds flags for the show command.
type ShowOptions struct {
	*RootOptions
	RecordFile string
}

// ShowResult lists the allowances of one record.
type ShowResult struct {
	RecordFile string                    `json:"recordFile"`
	Files      map[string]map[string]int `json:"files"`
	Total      int                       `json:"total"`
}

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ShowOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "show [file...]",
		Short: "Print the allowances in the record",
		Long: `Print the allowed error counts stored in the record file, for every
file or only the files given.

Examples:
  seatbelt show
  seatbelt show src/legacy.ts --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.RecordFile, "record-file", "", "record file (default seatbelt.tsv)")
	return cmd
}

func runShow(opts *ShowOptions, args []string, cmd *cobra.Command) error {
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

	tree := st.Export()
	if len(args) > 0 {
		keep := make(map[string]map[string]int)
		for _, arg := range args {
			if !filepath.IsAbs(arg) {
				arg = filepath.Join(e.dir, arg)
			}
			key := lint.RecordKey(filepath.Dir(path), arg)
			if rules, ok := tree[key]; ok {
				keep[key] = rules
			}
		}
		tree = keep
	}

	result := ShowResult{RecordFile: path, Files: tree}
	for _, rules := range tree {
		for _, n := range rules {
			result.Total += n
		}
	}

	if e.out.JSON() {
		return e.out.Success(result)
	}
	w := cmd.OutOrStdout()
	if len(tree) == 0 {
		fmt.Fprintln(w, "No allowances recorded.")
		return nil
	}
	for _, file := range slices.Sorted(maps.Keys(tree)) {
		fmt.Fprintln(w, file)
		for _, rule := range slices.Sorted(maps.Keys(tree[file])) {
			fmt.Fprintf(w, "  %-40s %d\n", rule, tree[file][rule])
		}
	}
	fmt.Fprintf(w, "\n%d allowed %s in %d %s\n", result.Total, plural(result.Total, "error", "errors"),
		len(tree), plural(len(tree), "file", "files"))
	return nil
}

// recordPath resolves the record file the way check would for a file with
// no overrides. An explicit flag value wins over the config file.
func (e *runEnv) recordPath(flag string) (string, error) {
	var layer policy.Config
	if flag != "" {
		layer.RecordFile = policy.Ptr(flag)
	}
	r, err := e.resolver(layer)
	if err != nil {
		return "", err
	}
	return r.Shared().RecordFile, nil
}
