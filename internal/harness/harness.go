package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/seatbelt/internal/engine"
	"github.com/roach88/seatbelt/internal/lint"
	"github.com/roach88/seatbelt/internal/policy"
	"github.com/roach88/seatbelt/internal/session"
	"github.com/roach88/seatbelt/internal/store"
	"github.com/roach88/seatbelt/internal/testutil"
)

// Harness runs one scenario in a scratch directory.
type Harness struct {
	dir    string
	record string
	config *policy.File
	sess   *session.Session
	logger *slog.Logger
}

// Run executes a scenario in dir, which must be empty, and returns the
// result. The returned error reports a broken scenario or environment;
// ratchet mismatches are reported in Result.Errors.
//
// Execution flow:
// 1. Write the initial record and create the source files
// 2. Parse the scenario config as seatbelt.yaml
// 3. Feed each step through one session
// 4. Evaluate assertions against the final record and statistics
func Run(ctx context.Context, scenario *Scenario, dir string) (*Result, error) {
	h := &Harness{
		dir:    dir,
		record: filepath.Join(dir, policy.DefaultRecordFile),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
	}

	if err := h.setup(scenario); err != nil {
		return nil, fmt.Errorf("failed to set up scenario: %w", err)
	}

	sess, err := session.New(
		session.WithLogger(h.logger),
		session.WithOutput(io.Discard, io.Discard),
		session.WithIDGenerator(testutil.NewFixedSessionID(scenario.Name)),
	)
	if err != nil {
		return nil, err
	}
	defer sess.Close()
	h.sess = sess

	result := NewResult()
	result.InitialRecord, err = readRecord(h.record)
	if err != nil {
		return nil, err
	}

	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, i+1, step, scenario.Env, result); err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
	}

	result.Record, err = readRecord(h.record)
	if err != nil {
		return nil, err
	}
	result.Stats = statsMap(sess.Stats())

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError("%s", msg)
	}
	return result, nil
}

func (h *Harness) setup(sc *Scenario) error {
	switch {
	case sc.RecordText != "":
		if err := os.WriteFile(h.record, []byte(sc.RecordText), 0o644); err != nil {
			return err
		}
	case len(sc.Record) > 0:
		st := store.New(h.record)
		st.Import(sc.Record)
		if _, err := st.Flush(); err != nil {
			return err
		}
	}

	missing := make(map[string]bool, len(sc.Missing))
	for _, m := range sc.Missing {
		missing[m] = true
	}
	files := make(map[string]bool)
	for key := range sc.Record {
		files[key] = true
	}
	for _, step := range sc.Steps {
		if step.File != "" {
			files[step.File] = true
		}
	}
	for _, key := range slices.Sorted(maps.Keys(files)) {
		if missing[key] || filepath.IsAbs(filepath.FromSlash(key)) {
			continue
		}
		path := h.path(key)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(path, nil, 0o644); err != nil {
			return err
		}
	}

	if sc.Config.Kind == 0 {
		return nil
	}
	data, err := yaml.Marshal(&sc.Config)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	cfg, err := policy.Parse(filepath.Join(h.dir, "seatbelt.yaml"), data)
	if err != nil {
		return err
	}
	h.config = cfg
	return nil
}

func (h *Harness) path(key string) string {
	return filepath.Join(h.dir, filepath.FromSlash(key))
}

// executeStep runs one step and checks its expectation.
func (h *Harness) executeStep(ctx context.Context, n int, step Step, env map[string]string, result *Result) error {
	exp := step.Expect
	if exp == nil {
		exp = &Expect{}
	}

	if step.Finish {
		report, err := h.sess.Finish(ctx)
		if !h.checkError(n, exp, err, result) {
			return nil
		}
		var removed []string
		for _, path := range slices.Sorted(maps.Keys(report.Removed)) {
			removed = append(removed, report.Removed[path]...)
		}
		result.Removed = append(result.Removed, removed...)
		if exp.Removed != nil && !slices.Equal(exp.Removed, removed) {
			result.AddError("step %d: removed %v, want %v", n, removed, exp.Removed)
		}
		return nil
	}

	resolver, err := policy.NewResolver(policy.ResolverOptions{
		File:   h.config,
		Flags:  step.Flags,
		Dir:    h.dir,
		Lookup: policy.MapLookup(env),
	})
	if err != nil {
		return err
	}

	path := h.path(step.File)
	res, err := h.sess.Process(ctx, path, step.diagnostics(), resolver.Resolve(path))
	if !h.checkError(n, exp, err, result) {
		return nil
	}

	for _, dec := range res.Decisions {
		result.Trace = append(result.Trace, TraceEvent{
			Step:     n,
			File:     step.File,
			Rule:     dec.Rule,
			Observed: dec.Observed,
			Allowed:  dec.Allowed,
			Outcome:  string(dec.Outcome),
		})
	}
	checkExpect(n, exp, res, result)
	return nil
}

// checkError reconciles err with the expected error. It returns true when
// the step succeeded and its result should be inspected.
func (h *Harness) checkError(n int, exp *Expect, err error, result *Result) bool {
	switch {
	case err == nil && exp.Error != "":
		result.AddError("step %d: expected error containing %q, got none", n, exp.Error)
	case err != nil && exp.Error == "":
		result.AddError("step %d: unexpected error: %v", n, err)
	case err != nil && !strings.Contains(err.Error(), exp.Error):
		result.AddError("step %d: error %q does not contain %q", n, err.Error(), exp.Error)
	}
	return err == nil
}

func checkExpect(n int, exp *Expect, res engine.Result, result *Result) {
	got := make(map[string]string, len(res.Decisions))
	for _, d := range res.Decisions {
		got[d.Rule] = string(d.Outcome)
	}
	for _, rule := range slices.Sorted(maps.Keys(exp.Outcomes)) {
		if want := exp.Outcomes[rule]; got[rule] != want {
			result.AddError("step %d: rule %s outcome %q, want %q", n, rule, got[rule], want)
		}
	}

	if exp.Errors != nil {
		count := 0
		for _, d := range res.Diagnostics {
			if d.Severity == lint.SeverityError {
				count++
			}
		}
		if count != *exp.Errors {
			result.AddError("step %d: %d error diagnostics, want %d", n, count, *exp.Errors)
		}
	}
	if exp.Changed != nil && res.Changed != *exp.Changed {
		result.AddError("step %d: changed %v, want %v", n, res.Changed, *exp.Changed)
	}
	if exp.Inconsistent != nil && res.Inconsistent != *exp.Inconsistent {
		result.AddError("step %d: inconsistent %v, want %v", n, res.Inconsistent, *exp.Inconsistent)
	}
	if res.Bug != nil {
		result.AddError("step %d: internal invariant failed: %v", n, res.Bug)
	}
}

// diagnostics builds the step's lint output in rule order.
func (s Step) diagnostics() []lint.Diagnostic {
	var out []lint.Diagnostic
	for _, rule := range slices.Sorted(maps.Keys(s.Errors)) {
		out = append(out, testutil.Errors(rule, s.Errors[rule])...)
	}
	for _, rule := range slices.Sorted(maps.Keys(s.Warnings)) {
		for _, d := range testutil.Errors(rule, s.Warnings[rule]) {
			d.Severity = lint.SeverityWarning
			out = append(out, d)
		}
	}
	return out
}

func readRecord(path string) (string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	return string(data), err
}

func statsMap(s session.Stats) map[string]int {
	return map[string]int{
		"files":        s.Files,
		"skipped":      s.Skipped,
		"tightened":    s.Tightened,
		"loosened":     s.Loosened,
		"violations":   s.Violations,
		"inconsistent": s.Inconsistent,
		"bugs":         s.Bugs,
		"flushes":      s.Flushes,
	}
}
