package session

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/roach88/seatbelt/internal/engine"
	"github.com/roach88/seatbelt/internal/history"
	"github.com/roach88/seatbelt/internal/lint"
	"github.com/roach88/seatbelt/internal/lock"
	"github.com/roach88/seatbelt/internal/policy"
	"github.com/roach88/seatbelt/internal/store"
)

// LockFactory returns the lock guarding p.RecordFile for one
// reload-reconcile-flush cycle. owner is the session ID.
type LockFactory func(p policy.Policy, owner string) lock.ScopedLock

// Session owns everything one seatbelt run shares across files: the
// record-file cache, the verbose sinks, the history logs, the run
// statistics and the last-file heuristic.
//
// Files are processed one at a time. Session methods are safe for
// concurrent use but serialize on an internal mutex.
type Session struct {
	id         string
	logger     *slog.Logger
	stdout     io.Writer
	stderr     io.Writer
	verboseOut io.Writer
	newLock    LockFactory
	now        func() time.Time
	exists     func(path string) bool
	meter      metric.Meter
	metrics    *metrics

	mu          sync.Mutex
	records     map[string]*recordState
	histories   map[string]*historyLog
	shared      *historyLog
	verbose     map[string]*slog.Logger
	verboseUsed bool
	lastFile    string
	stats       Stats
}

// recordState is one cached record file.
type recordState struct {
	store *store.Store

	// stale is set when the file changed on disk behind the cache.
	stale bool

	// policy is the last policy that touched this record. The exit sweep
	// runs under it.
	policy policy.Policy
}

type historyLog struct {
	log   *history.Log
	clock *engine.Clock
	owned bool
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the operational logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) { s.logger = logger }
}

// WithOutput sets the writers behind verbose "stdout" and "stderr".
func WithOutput(stdout, stderr io.Writer) Option {
	return func(s *Session) {
		s.stdout = stdout
		s.stderr = stderr
	}
}

// WithVerboseWriter sends all verbose decision logging to w, whatever
// sink the policy names.
func WithVerboseWriter(w io.Writer) Option {
	return func(s *Session) { s.verboseOut = w }
}

// WithLockFactory replaces the default locking (FileLock under threadsafe,
// Noop otherwise).
func WithLockFactory(f LockFactory) Option {
	return func(s *Session) { s.newLock = f }
}

// WithHistory records every change in log, ignoring policy.HistoryFile.
// The caller keeps ownership of log.
func WithHistory(log *history.Log) Option {
	return func(s *Session) {
		s.shared = &historyLog{log: log}
	}
}

// WithIDGenerator sets the session ID source. Defaults to UUIDv7Generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(s *Session) { s.id = g.Generate() }
}

// WithNow sets the wall clock stamped on history rows.
func WithNow(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithFileExists replaces the existence probe used by the exit sweep.
func WithFileExists(exists func(path string) bool) Option {
	return func(s *Session) { s.exists = exists }
}

// WithMeter sets the otel meter. Defaults to the global meter provider.
func WithMeter(meter metric.Meter) Option {
	return func(s *Session) { s.meter = meter }
}

// New creates a session.
func New(opts ...Option) (*Session, error) {
	s := &Session{
		logger:    slog.Default(),
		stdout:    os.Stdout,
		stderr:    os.Stderr,
		now:       time.Now,
		exists:    fileExists,
		records:   make(map[string]*recordState),
		histories: make(map[string]*historyLog),
		verbose:   make(map[string]*slog.Logger),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.id == "" {
		s.id = UUIDv7Generator{}.Generate()
	}
	if s.newLock == nil {
		s.newLock = defaultLockFactory(s.logger)
	}
	if s.meter == nil {
		s.meter = defaultMeter()
	}

	m, err := newMetrics(s.meter)
	if err != nil {
		return nil, fmt.Errorf("session metrics: %w", err)
	}
	s.metrics = m
	return s, nil
}

func defaultLockFactory(logger *slog.Logger) LockFactory {
	return func(p policy.Policy, owner string) lock.ScopedLock {
		if !p.Threadsafe {
			return lock.Noop{}
		}
		return lock.NewFileLock(p.RecordFile, lock.WithOwner(owner), lock.WithLogger(logger))
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil || !os.IsNotExist(err)
}

// ID returns the session ID.
func (s *Session) ID() string {
	return s.id
}

// Process reconciles one source file's diagnostics against its record and
// persists the result immediately.
//
// file is the source path as the host reported it. p must be the policy
// resolved for that file.
//
// Under threadsafe the record is locked and re-read first so changes
// flushed by other processes are merged rather than overwritten.
func (s *Session) Process(ctx context.Context, file string, diags []lint.Diagnostic, p policy.Policy) (engine.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	recordPath, err := filepath.Abs(p.RecordFile)
	if err != nil {
		return engine.Result{}, fmt.Errorf("record path %s: %w", p.RecordFile, err)
	}
	p.RecordFile = recordPath
	key := lint.RecordKey(filepath.Dir(recordPath), file)

	if key == s.lastFile {
		s.logger.Warn("file reconciled twice in a row, check that seatbelt runs once per lint pass", "file", key)
	}
	s.lastFile = key
	s.stats.Files++

	in := engine.Input{
		File:        key,
		RecordFile:  recordPath,
		Diagnostics: diags,
		Policy:      p,
	}
	if p.Disabled {
		s.stats.Skipped++
		return engine.Reconcile(in), nil
	}

	rs, err := s.record(p)
	if err != nil {
		return engine.Result{}, err
	}

	lk := s.newLock(p, s.id)
	if err := lk.WaitAcquire(ctx, p.LockTimeout); err != nil {
		return engine.Result{}, fmt.Errorf("lock record %s: %w", recordPath, err)
	}
	defer s.release(lk, recordPath)

	if err := s.refresh(rs, p); err != nil {
		return engine.Result{}, err
	}

	before, _ := rs.store.MaxErrors(key)
	in.Allowed = maps.Clone(before)

	start := time.Now()
	res := engine.Reconcile(in)
	s.metrics.recordReconcile(ctx, time.Since(start), res)

	if res.Bug != nil {
		s.stats.Bugs++
		s.logger.Error("internal invariant failed, diagnostics left unchanged",
			"file", key, "error", res.Bug)
	}

	if res.Changed {
		rs.store.SetMaxErrors(key, res.Allowance)
		changes := history.Diff(recordPath, key, in.Allowed, res.Allowance)
		if err := s.flush(ctx, rs, "reconcile", changes); err != nil {
			return res, err
		}
	}

	s.tally(res)
	s.logDecisions(p.Verbose, key, res)
	return res, nil
}

// record returns the cached store for p.RecordFile, opening it on first use.
func (s *Session) record(p policy.Policy) (*recordState, error) {
	rs, ok := s.records[p.RecordFile]
	if !ok {
		st, err := store.Open(p.RecordFile)
		if err != nil {
			return nil, err
		}
		rs = &recordState{store: st}
		s.records[p.RecordFile] = rs
		s.logger.Debug("record opened", "path", p.RecordFile, "files", st.Len())
	}
	rs.policy = p
	return rs, nil
}

func (s *Session) refresh(rs *recordState, p policy.Policy) error {
	if !p.Threadsafe && !rs.stale {
		return nil
	}
	if err := rs.store.Reload(); err != nil {
		return err
	}
	rs.stale = false
	return nil
}

func (s *Session) release(lk lock.ScopedLock, recordPath string) {
	if err := lk.Release(); err != nil {
		s.logger.Warn("error releasing record lock", "record", recordPath, "error", err)
	}
}

// flush writes rs and appends changes to the history log.
func (s *Session) flush(ctx context.Context, rs *recordState, reason string, changes []history.Change) error {
	flushed, err := rs.store.Flush()
	if err != nil {
		return err
	}
	if !flushed {
		return nil
	}
	s.stats.Flushes++
	s.metrics.recordFlush(ctx, reason)
	s.logger.Debug("record flushed", "path", rs.store.Path(), "reason", reason)
	s.recordHistory(ctx, rs.policy, changes)
	return nil
}

// Invalidate marks the cached store for path stale. The next Process or
// sweep against it re-reads the file.
func (s *Session) Invalidate(path string) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if rs, ok := s.records[abs]; ok {
		rs.stale = true
		s.logger.Debug("record invalidated", "path", abs)
	}
}

// RecordFiles returns the paths of every cached record file.
func (s *Session) RecordFiles() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedKeys(s.records)
}

// Close closes the history logs the session opened.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for path, h := range s.histories {
		if !h.owned {
			continue
		}
		if err := h.log.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close history %s: %w", path, err)
		}
	}
	s.histories = make(map[string]*historyLog)
	return firstErr
}
