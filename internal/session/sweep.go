package session

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"path/filepath"
	"slices"

	"github.com/roach88/seatbelt/internal/history"
	"github.com/roach88/seatbelt/internal/lint"
	"github.com/roach88/seatbelt/internal/policy"
)

// RuleUsage is the total allowance for one rule across a record.
type RuleUsage struct {
	Rule    string `json:"rule"`
	Files   int    `json:"files"`
	Allowed int    `json:"allowed"`
}

// Usage summarizes one record file.
type Usage struct {
	RecordFile string      `json:"recordFile"`
	Files      int         `json:"files"`
	Total      int         `json:"total"`
	Rules      []RuleUsage `json:"rules"`
}

// Report is what Finish did at the end of a run.
type Report struct {
	// Removed lists, per record file, the keys dropped because their
	// source file no longer exists.
	Removed map[string][]string `json:"removed,omitempty"`

	// Usage is set only when verbose logging was used during the run.
	Usage []Usage `json:"usage,omitempty"`

	Stats Stats `json:"stats"`
}

// Sweep drops records for source files that no longer exist and flushes.
// Returns the removed keys in order. Frozen and disabled policies never
// write, so Sweep is a no-op under them.
func (s *Session) Sweep(ctx context.Context, p policy.Policy) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	recordPath, err := filepath.Abs(p.RecordFile)
	if err != nil {
		return nil, fmt.Errorf("record path %s: %w", p.RecordFile, err)
	}
	p.RecordFile = recordPath

	rs, err := s.record(p)
	if err != nil {
		return nil, err
	}
	return s.sweep(ctx, rs)
}

func (s *Session) sweep(ctx context.Context, rs *recordState) ([]string, error) {
	p := rs.policy
	if p.Disabled || p.Frozen {
		return nil, nil
	}

	lk := s.newLock(p, s.id)
	if err := lk.WaitAcquire(ctx, p.LockTimeout); err != nil {
		return nil, fmt.Errorf("lock record %s: %w", p.RecordFile, err)
	}
	defer s.release(lk, p.RecordFile)

	if err := s.refresh(rs, p); err != nil {
		return nil, err
	}

	dir := filepath.Dir(p.RecordFile)
	var (
		removed []string
		changes []history.Change
	)
	for _, key := range slices.Sorted(rs.store.Filenames()) {
		if s.exists(lint.KeyPath(dir, key)) {
			continue
		}
		before, _ := rs.store.MaxErrors(key)
		changes = append(changes, history.Diff(p.RecordFile, key, maps.Clone(before), nil)...)
		rs.store.RemoveFile(key)
		removed = append(removed, key)
	}
	if len(removed) == 0 {
		return nil, nil
	}

	s.logger.Info("removed records for deleted files", "record", p.RecordFile, "files", len(removed))
	if err := s.flush(ctx, rs, "sweep", changes); err != nil {
		return removed, err
	}
	return removed, nil
}

// Finish runs the exit sweep over every record the session touched and,
// if verbose logging was used, builds the usage summary. Errors from
// individual records are joined; one bad record does not stop the others.
func (s *Session) Finish(ctx context.Context) (Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		report Report
		errs   []error
	)
	for _, path := range sortedKeys(s.records) {
		rs := s.records[path]
		removed, err := s.sweep(ctx, rs)
		if err != nil {
			errs = append(errs, err)
		}
		if len(removed) > 0 {
			if report.Removed == nil {
				report.Removed = make(map[string][]string)
			}
			report.Removed[path] = removed
		}
		if s.verboseUsed {
			report.Usage = append(report.Usage, usage(path, rs))
		}
	}
	report.Stats = s.stats
	return report, errors.Join(errs...)
}

func usage(path string, rs *recordState) Usage {
	u := Usage{RecordFile: path}
	rules := make(map[string]*RuleUsage)
	for file := range rs.store.Filenames() {
		allowed, _ := rs.store.MaxErrors(file)
		u.Files++
		for rule, n := range allowed {
			ru, ok := rules[rule]
			if !ok {
				ru = &RuleUsage{Rule: rule}
				rules[rule] = ru
			}
			ru.Files++
			ru.Allowed += n
			u.Total += n
		}
	}
	for _, rule := range sortedKeys(rules) {
		u.Rules = append(u.Rules, *rules[rule])
	}
	return u
}
