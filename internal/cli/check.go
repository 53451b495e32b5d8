package cli

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/seatbelt/internal/lint"
	"github.com/roach88/seatbelt/internal/lock"
	"github.com/roach88/seatbelt/internal/policy"
	"github.com/roach88/seatbelt/internal/session"
)

// CheckOptions holds flags for the check command.
type CheckOptions struct {
	*RootOptions
	Policy  PolicyFlags
	NoSweep bool // skip dropping records of deleted files
	Quiet   bool // text output shows errors only
}

// FileOutput is one file's reconciled diagnostics, in ESLint report shape.
type FileOutput struct {
	FilePath           string            `json:"filePath"`
	Messages           []lint.Diagnostic `json:"messages"`
	SuppressedMessages []lint.Diagnostic `json:"suppressedMessages,omitempty"`
	ErrorCount         int               `json:"errorCount"`
	WarningCount       int               `json:"warningCount"`
}

// CheckResult is the outcome of one check run.
type CheckResult struct {
	Files        []FileOutput        `json:"files"`
	ErrorCount   int                 `json:"errorCount"`
	WarningCount int                 `json:"warningCount"`
	Inconsistent bool                `json:"inconsistent"`
	Removed      map[string][]string `json:"removed,omitempty"`
	Usage        []session.Usage     `json:"usage,omitempty"`
	Stats        session.Stats       `json:"stats"`
}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CheckOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "check [report.json...]",
		Short: "Apply the ratchet to lint reports",
		Long: `Apply the ratchet to one or more ESLint-style JSON reports.

Each linted file's error counts are compared with its allowances in the
record file. Files that improved tighten the record, errors over the
allowance stay errors, and errors within it are demoted to warnings.
Reports are read from stdin when no file (or "-") is given.

Exit codes:
  0 - No errors remain
  1 - Errors remain after the ratchet
  2 - Command error (bad config, unreadable record, lock timeout, etc.)

Examples:
  eslint -f json . | seatbelt check
  seatbelt check report.json --frozen
  seatbelt check a.json b.json --increase no-explicit-any --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd.Context(), opts, args, cmd)
		},
	}

	opts.Policy.register(cmd)
	cmd.Flags().BoolVar(&opts.NoSweep, "no-sweep", false, "keep records of files that no longer exist")
	cmd.Flags().BoolVarP(&opts.Quiet, "quiet", "q", false, "report errors only")

	return cmd
}

func runCheck(ctx context.Context, opts *CheckOptions, args []string, cmd *cobra.Command) error {
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

	results, err := loadReports(ctx, args, cmd.InOrStdin(), e.dir)
	if err != nil {
		return e.fail(ErrCodeReport, "failed to load reports", err)
	}

	sess, err := e.newSession(cmd)
	if err != nil {
		return err
	}
	defer closeSession(e, sess)

	result, err := e.check(ctx, sess, resolver, results, !opts.NoSweep)
	if err != nil {
		return err
	}
	return e.reportCheck(cmd, result, opts.Quiet)
}

// check reconciles every file and, if sweep is set, runs the exit sweep.
func (e *runEnv) check(ctx context.Context, sess *session.Session, resolver *policy.Resolver, results []lint.FileResult, sweep bool) (CheckResult, error) {
	out := CheckResult{Files: make([]FileOutput, 0, len(results))}

	for _, r := range results {
		res, err := sess.Process(ctx, r.FilePath, r.Diagnostics(), resolver.Resolve(r.FilePath))
		if err != nil {
			return CheckResult{}, e.processFailure(err)
		}
		if res.Inconsistent {
			out.Inconsistent = true
		}

		fo := FileOutput{FilePath: r.FilePath, Messages: []lint.Diagnostic{}}
		for _, d := range res.Diagnostics {
			if d.Suppressed {
				fo.SuppressedMessages = append(fo.SuppressedMessages, d)
				continue
			}
			fo.Messages = append(fo.Messages, d)
			switch d.Severity {
			case lint.SeverityError:
				fo.ErrorCount++
			case lint.SeverityWarning:
				fo.WarningCount++
			}
		}
		out.ErrorCount += fo.ErrorCount
		out.WarningCount += fo.WarningCount
		out.Files = append(out.Files, fo)
	}

	if !sweep {
		out.Stats = sess.Stats()
		return out, nil
	}
	report, err := sess.Finish(ctx)
	if err != nil {
		return CheckResult{}, e.processFailure(err)
	}
	out.Removed = report.Removed
	out.Usage = report.Usage
	out.Stats = report.Stats
	return out, nil
}

func (e *runEnv) processFailure(err error) error {
	if lock.IsTimeout(err) {
		return e.fail(ErrCodeLock, "record is locked by another process", err)
	}
	return e.fail(ErrCodeRecord, "failed to apply ratchet", err)
}

// reportCheck writes the result and maps remaining errors to exit code 1.
func (e *runEnv) reportCheck(cmd *cobra.Command, result CheckResult, quiet bool) error {
	failed := result.ErrorCount > 0
	msg := fmt.Sprintf("%d lint %s remain", result.ErrorCount, plural(result.ErrorCount, "error", "errors"))

	if e.out.JSON() {
		resp := CLIResponse{Status: "ok", Data: result}
		if failed {
			resp.Status = "error"
			resp.Error = &CLIError{Code: ErrCodeLint, Message: msg}
		}
		if err := e.out.Respond(resp); err != nil {
			return err
		}
	} else {
		w := cmd.OutOrStdout()
		e.writeDiagnostics(w, result, quiet)
		writeTotals(w, result)
		e.writeRunSummary(cmd.ErrOrStderr(), result)
	}

	if failed {
		return NewExitError(ExitFailure, msg)
	}
	return nil
}

func (e *runEnv) writeDiagnostics(w io.Writer, result CheckResult, quiet bool) {
	for _, f := range result.Files {
		var shown []lint.Diagnostic
		for _, d := range f.Messages {
			if quiet && d.Severity != lint.SeverityError {
				continue
			}
			shown = append(shown, d)
		}
		if len(shown) == 0 {
			continue
		}
		fmt.Fprintln(w, e.relPath(f.FilePath))
		for _, d := range shown {
			fmt.Fprintf(w, "  %s  %-7s  %s  %s\n", d.Location(), d.Severity, d.Message, d.RuleID)
		}
		fmt.Fprintln(w)
	}
}

func writeTotals(w io.Writer, result CheckResult) {
	mark := "✓"
	if result.ErrorCount > 0 {
		mark = "✗"
	}
	fmt.Fprintf(w, "%s %d %s, %d %s\n", mark,
		result.ErrorCount, plural(result.ErrorCount, "error", "errors"),
		result.WarningCount, plural(result.WarningCount, "warning", "warnings"))
}

// relPath shortens path for display when it lies under the working directory.
func (e *runEnv) relPath(path string) string {
	rel, err := filepath.Rel(e.dir, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return path
	}
	return rel
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

func closeSession(e *runEnv, sess *session.Session) {
	if err := sess.Close(); err != nil {
		e.logger.Error("error closing session", "error", err)
	}
}
