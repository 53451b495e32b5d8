package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/seatbelt/internal/policy"
	"github.com/roach88/seatbelt/internal/session"
)

// runEnv is what every command needs before doing work: the working
// directory, the loaded config file, a logger and an output formatter.
type runEnv struct {
	opts   *RootOptions
	dir    string
	file   *policy.File
	logger *slog.Logger
	out    *OutputFormatter
}

func newRunEnv(opts *RootOptions, cmd *cobra.Command) (*runEnv, error) {
	level, err := parseLogLevel(opts.LogLevel)
	if err != nil {
		return nil, NewExitError(ExitCommandError, err.Error())
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	dir := opts.Dir
	if dir == "" {
		if dir, err = os.Getwd(); err != nil {
			return nil, WrapExitError(ExitCommandError, "working directory", err)
		}
	}
	if dir, err = filepath.Abs(dir); err != nil {
		return nil, WrapExitError(ExitCommandError, "working directory", err)
	}

	e := &runEnv{
		opts:   opts,
		dir:    dir,
		logger: logger,
		out: &OutputFormatter{
			Format:    opts.Format,
			Writer:    cmd.OutOrStdout(),
			ErrWriter: cmd.ErrOrStderr(),
		},
	}

	path := opts.Config
	if path != "" && !filepath.IsAbs(path) {
		path = filepath.Join(dir, path)
	}
	if path == "" {
		path = policy.Discover(dir)
	}
	if path != "" {
		f, err := policy.LoadFile(path)
		if err != nil {
			return nil, e.fail(ErrCodeConfig, "failed to load config", err)
		}
		e.file = f
		logger.Debug("config loaded", "path", f.Path, "overrides", len(f.Overrides))
	}
	return e, nil
}

// resolver builds the policy resolver with flags as the command-line layer.
func (e *runEnv) resolver(flags policy.Config) (*policy.Resolver, error) {
	r, err := policy.NewResolver(policy.ResolverOptions{
		File:   e.file,
		Flags:  flags,
		Dir:    e.dir,
		Lookup: e.opts.Lookup,
	})
	if err != nil {
		return nil, e.fail(ErrCodeConfig, "invalid environment", err)
	}
	return r, nil
}

// newSession creates a session writing verbose output to the command's
// streams. JSON output keeps stdout clean, so verbose logging goes to stderr.
func (e *runEnv) newSession(cmd *cobra.Command, extra ...session.Option) (*session.Session, error) {
	opts := []session.Option{
		session.WithLogger(e.logger),
		session.WithOutput(cmd.OutOrStdout(), cmd.ErrOrStderr()),
	}
	if e.out.JSON() {
		opts = append(opts, session.WithVerboseWriter(cmd.ErrOrStderr()))
	}
	if e.opts.IDGenerator != nil {
		opts = append(opts, session.WithIDGenerator(e.opts.IDGenerator))
	}
	opts = append(opts, extra...)

	sess, err := session.New(opts...)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to start session", err)
	}
	return sess, nil
}

// fail reports err in the configured format and returns it as a command
// error.
func (e *runEnv) fail(code, message string, err error) error {
	if outErr := e.out.Error(code, fmt.Sprintf("%s: %v", message, err), nil); outErr != nil {
		e.logger.Error("error writing output", "error", outErr)
	}
	exitErr := WrapExitError(ExitCommandError, message, err)
	exitErr.Reported = true
	return exitErr
}
