package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/seatbelt/internal/history"
	"github.com/roach88/seatbelt/internal/lint"
	"github.com/roach88/seatbelt/internal/policy"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Database string
	Rule     string
	Session  string
	Limit    int
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history [file]",
		Short: "Show how allowances changed over time",
		Long: `List the allowance changes recorded in the history file, oldest
first. The history file is taken from --db, or from historyFile in the
config or SEATBELT_HISTORY.

Examples:
  seatbelt history
  seatbelt history src/legacy.ts --rule no-explicit-any
  seatbelt history --limit 20 --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "history SQLite file")
	cmd.Flags().StringVar(&opts.Rule, "rule", "", "only changes to this rule")
	cmd.Flags().StringVar(&opts.Session, "session", "", "only changes made by this session")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "only the most recent N changes")
	return cmd
}

func runHistory(opts *HistoryOptions, args []string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	e, err := newRunEnv(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	resolver, err := e.resolver(policy.Config{})
	if err != nil {
		return err
	}
	p := resolver.Shared()

	db := p.HistoryFile
	if opts.Database != "" {
		db = opts.Database
		if !filepath.IsAbs(db) {
			db = filepath.Join(e.dir, db)
		}
	}
	if db == "" {
		return e.fail(ErrCodeHistory, "no history file", fmt.Errorf("set historyFile in the config, SEATBELT_HISTORY, or --db"))
	}
	if _, err := os.Stat(db); err != nil {
		return e.fail(ErrCodeHistory, "failed to open history", err)
	}

	log, err := history.Open(db)
	if err != nil {
		return e.fail(ErrCodeHistory, "failed to open history", err)
	}
	defer log.Close()

	filter := history.Filter{Rule: opts.Rule, Session: opts.Session, Limit: opts.Limit}
	if len(args) == 1 {
		file := args[0]
		if !filepath.IsAbs(file) {
			file = filepath.Join(e.dir, file)
		}
		filter.RecordFile = p.RecordFile
		filter.File = lint.RecordKey(filepath.Dir(p.RecordFile), file)
	}

	changes, err := log.Query(ctx, filter)
	if err != nil {
		return e.fail(ErrCodeHistory, "failed to query history", err)
	}

	if e.out.JSON() {
		return e.out.Success(changes)
	}
	w := cmd.OutOrStdout()
	if len(changes) == 0 {
		fmt.Fprintln(w, "No changes recorded.")
		return nil
	}
	for _, c := range changes {
		fmt.Fprintf(w, "%5d  %s  %-9s  %s  %s  %d -> %d\n",
			c.Seq, c.CreatedAt.Local().Format(time.DateTime), c.Kind, c.File, c.Rule, c.Old, c.New)
	}
	return nil
}
