package cli

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/seatbelt/internal/policy"
	"github.com/roach88/seatbelt/internal/session"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	Policy   PolicyFlags
	Debounce time.Duration

	// onCycle is called after every check cycle (for testing).
	onCycle func(CheckResult, error)
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch <report.json>...",
		Short: "Re-apply the ratchet whenever a lint report changes",
		Long: `Run check once, then again every time one of the report files is
rewritten, until interrupted. One session is kept for the whole run, so
record files are read once and re-read only when another process changes
them.

Example:
  eslint -f json -o report.json --watch . & seatbelt watch report.json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(opts, args, cmd)
		},
	}

	opts.Policy.register(cmd)
	cmd.Flags().DurationVar(&opts.Debounce, "debounce", 200*time.Millisecond, "wait this long after a change before re-running")

	return cmd
}

func runWatch(opts *WatchOptions, args []string, cmd *cobra.Command) error {
	if slices.Contains(args, StdinReport) {
		return NewExitError(ExitCommandError, "watch needs report files, not stdin")
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

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	reports := make([]string, len(args))
	for i, a := range args {
		reports[i] = a
		if !filepath.IsAbs(a) {
			reports[i] = filepath.Join(e.dir, a)
		}
	}
	// Watch before the first cycle so a write during it is not missed.
	watcher, err := session.NewWatcher(e.logger, reports...)
	if err != nil {
		return e.fail(ErrCodeReport, "failed to watch reports", err)
	}

	w := &watchLoop{env: e, opts: opts, cmd: cmd, sess: sess, resolver: resolver, reports: reports}
	w.cycle(ctx)

	records := append(sess.RecordFiles(), resolver.Shared().RecordFile)
	slices.Sort(records)
	records = slices.Compact(records)

	trigger := make(chan struct{}, 1)
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return watcher.Run(gCtx, func(string) {
			select {
			case trigger <- struct{}{}:
			default:
			}
		})
	})
	g.Go(func() error {
		return sess.WatchRecords(gCtx, records...)
	})
	g.Go(func() error {
		w.loop(gCtx, trigger)
		return nil
	})

	e.logger.Info("watching reports", "reports", len(reports), "records", len(records))
	if err := g.Wait(); err != nil {
		return e.fail(ErrCodeReport, "watch failed", err)
	}
	e.logger.Info("watch stopped")
	return nil
}

type watchLoop struct {
	env      *runEnv
	opts     *WatchOptions
	cmd      *cobra.Command
	sess     *session.Session
	resolver *policy.Resolver
	reports  []string
}

// loop re-runs check after each burst of changes has been quiet for the
// debounce interval.
func (w *watchLoop) loop(ctx context.Context, trigger <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-trigger:
		}

		timer := time.NewTimer(w.opts.Debounce)
	settle:
		for {
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-trigger:
				timer.Reset(w.opts.Debounce)
			case <-timer.C:
				break settle
			}
		}
		w.cycle(ctx)
	}
}

// cycle runs one check. Failures are reported and the watch continues.
func (w *watchLoop) cycle(ctx context.Context) {
	result, err := w.run(ctx)
	if w.opts.onCycle != nil {
		w.opts.onCycle(result, err)
	}
}

func (w *watchLoop) run(ctx context.Context) (CheckResult, error) {
	results, err := loadReports(ctx, w.reports, nil, w.env.dir)
	if err != nil {
		return CheckResult{}, w.env.fail(ErrCodeReport, "failed to load reports", err)
	}
	result, err := w.env.check(ctx, w.sess, w.resolver, results, true)
	if err != nil {
		return CheckResult{}, err
	}
	// Remaining lint errors are reported, not fatal, while watching.
	_ = w.env.reportCheck(w.cmd, result, false)
	return result, nil
}
