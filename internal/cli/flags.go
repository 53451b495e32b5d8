package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/seatbelt/internal/policy"
)

// PolicyFlags are the command-line policy layer shared by the commands
// that touch a record.
type PolicyFlags struct {
	RecordFile  string
	Frozen      bool
	Disable     bool
	Threadsafe  bool
	Keep        string
	Increase    string
	Verbose     string
	History     string
	LockTimeout time.Duration
}

func (f *PolicyFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.RecordFile, "record-file", "", "record file (default seatbelt.tsv)")
	fs.BoolVar(&f.Frozen, "frozen", false, "never write the record; report out-of-date allowances as errors")
	fs.BoolVar(&f.Disable, "disable", false, "pass diagnostics through untouched")
	fs.BoolVar(&f.Threadsafe, "threadsafe", false, "lock and re-read the record around every write")
	fs.StringVar(&f.Keep, "keep", "", `rules whose allowance is kept when they report nothing (comma list or "all")`)
	fs.StringVar(&f.Increase, "increase", "", `rules allowed to raise their allowance (comma list or "all")`)
	fs.StringVar(&f.Verbose, "verbose", "", "log every ratchet decision (stdout|stderr)")
	fs.Lookup("verbose").NoOptDefVal = "stderr"
	fs.StringVar(&f.History, "history", "", "SQLite file recording every allowance change")
	fs.DurationVar(&f.LockTimeout, "lock-timeout", 0, "how long to wait for the record lock")
}

// layer returns the flags the user actually set. Unset flags stay nil so
// the config file and environment keep their values.
func (f *PolicyFlags) layer(cmd *cobra.Command) (policy.Config, error) {
	fs := cmd.Flags()
	var c policy.Config
	if fs.Changed("record-file") {
		c.RecordFile = policy.Ptr(f.RecordFile)
	}
	if fs.Changed("frozen") {
		c.Frozen = policy.Ptr(f.Frozen)
	}
	if fs.Changed("disable") {
		c.Disable = policy.Ptr(f.Disable)
	}
	if fs.Changed("threadsafe") {
		c.Threadsafe = policy.Ptr(f.Threadsafe)
	}
	if fs.Changed("keep") {
		c.KeepRules = policy.Ptr(policy.ParseRuleSet(f.Keep))
	}
	if fs.Changed("increase") {
		c.AllowIncreaseRules = policy.Ptr(policy.ParseRuleSet(f.Increase))
	}
	if fs.Changed("verbose") {
		v, err := policy.ParseVerbosity(f.Verbose)
		if err != nil {
			return policy.Config{}, fmt.Errorf("--verbose: %w", err)
		}
		c.Verbose = policy.Ptr(v)
	}
	if fs.Changed("history") {
		c.HistoryFile = policy.Ptr(f.History)
	}
	if fs.Changed("lock-timeout") {
		if f.LockTimeout <= 0 {
			return policy.Config{}, fmt.Errorf("--lock-timeout must be positive")
		}
		c.LockTimeout = policy.Ptr(f.LockTimeout)
	}
	return c, nil
}

// policyResolver combines the env with the command's flag layer.
func (e *runEnv) policyResolver(cmd *cobra.Command, flags *PolicyFlags) (*policy.Resolver, error) {
	layer, err := flags.layer(cmd)
	if err != nil {
		return nil, e.fail(ErrCodeConfig, "invalid flags", err)
	}
	return e.resolver(layer)
}
