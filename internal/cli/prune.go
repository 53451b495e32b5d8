package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// PruneOptions holds flags for the prune command.
type PruneOptions struct {
	*RootOptions
	Policy PolicyFlags
}

// PruneResult lists the keys removed from one record.
type PruneResult struct {
	RecordFile string   `json:"recordFile"`
	Removed    []string `json:"removed"`
}

// NewPruneCommand creates the prune command.
func NewPruneCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PruneOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Drop records of files that no longer exist",
		Long: `Remove every record whose source file has been deleted or moved.
check does this automatically at the end of a run; prune does it alone.
Nothing is written in frozen or disabled mode.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPrune(opts, cmd)
		},
	}

	opts.Policy.register(cmd)
	return cmd
}

func runPrune(opts *PruneOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	e, err := newRunEnv(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	resolver, err := e.policyResolver(cmd, &opts.Policy)
	if err != nil {
		return err
	}
	sess, err := e.newSession(cmd)
	if err != nil {
		return err
	}
	defer closeSession(e, sess)

	p := resolver.Shared()
	removed, err := sess.Sweep(ctx, p)
	if err != nil {
		return e.processFailure(err)
	}

	result := PruneResult{RecordFile: p.RecordFile, Removed: removed}
	if result.Removed == nil {
		result.Removed = []string{}
	}
	if e.out.JSON() {
		return e.out.Success(result)
	}

	w := cmd.OutOrStdout()
	switch {
	case p.Frozen || p.Disabled:
		fmt.Fprintln(w, "Nothing pruned: the record is read-only in frozen or disabled mode.")
	case len(removed) == 0:
		fmt.Fprintln(w, "Nothing to prune.")
	default:
		for _, key := range removed {
			fmt.Fprintf(w, "- %s\n", key)
		}
		fmt.Fprintf(w, "Pruned %d %s from %s\n", len(removed), plural(len(removed), "file", "files"), e.relPath(p.RecordFile))
	}
	return nil
}
