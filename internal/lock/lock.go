package lock

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Suffix is appended to a record path to form its lock marker path.
const Suffix = ".lock"

const (
	defaultRetry      = 25 * time.Millisecond
	defaultStaleAfter = 10 * time.Minute

	guardSuffix = ".recover"
	guardStale  = 30 * time.Second
)

var (
	// ErrTimeout is returned (wrapped in *TimeoutError) when WaitAcquire
	// gives up.
	ErrTimeout = errors.New("lock timeout")

	// ErrHeld is returned when acquiring a lock this value already holds.
	ErrHeld = errors.New("lock already held")

	// ErrLost is returned by Release when the marker on disk no longer
	// belongs to this holder, typically after stale recovery by a peer.
	ErrLost = errors.New("lock lost")
)

// ScopedLock is an advisory mutual-exclusion primitive scoped to one
// record file.
type ScopedLock interface {
	// TryAcquire takes the lock if it is free and reports whether it did.
	TryAcquire() (bool, error)

	// WaitAcquire retries until the lock is taken, the timeout elapses,
	// or ctx is done.
	WaitAcquire(ctx context.Context, timeout time.Duration) error

	// Release gives the lock up. Releasing an unheld lock is a no-op.
	Release() error
}

// TimeoutError reports a bounded wait that expired.
type TimeoutError struct {
	Path     string
	Waited   time.Duration
	Attempts int
	Timeout  time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("lock timeout (path=%s waited=%s attempts=%d timeout=%s)",
		e.Path, e.Waited.Truncate(time.Millisecond), e.Attempts, e.Timeout)
}

func (e *TimeoutError) Unwrap() error {
	return ErrTimeout
}

// IsTimeout reports whether err is a lock timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// Marker is the JSON content of a lock file.
type Marker struct {
	PID       int       `json:"pid"`
	Owner     string    `json:"owner,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ReadMarker decodes the marker at path.
func ReadMarker(path string) (Marker, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Marker{}, err
	}
	var m Marker
	if err := json.Unmarshal(data, &m); err != nil {
		return Marker{}, fmt.Errorf("decode lock marker %s: %w", path, err)
	}
	return m, nil
}

// FileLock implements ScopedLock with an exclusively created marker file.
//
// A marker is stale when its PID no longer runs or it is older than the
// stale threshold; stale markers are removed and acquisition retried.
type FileLock struct {
	path       string
	owner      string
	pid        int
	retry      time.Duration
	staleAfter time.Duration
	now        func() time.Time
	alive      func(pid int) bool
	logger     *slog.Logger

	mu   sync.Mutex
	held bool
}

// Option configures a FileLock.
type Option func(*FileLock)

// WithOwner records an owner identifier (a session ID) in the marker.
func WithOwner(owner string) Option {
	return func(l *FileLock) { l.owner = owner }
}

// WithRetry sets the interval between acquisition attempts.
func WithRetry(d time.Duration) Option {
	return func(l *FileLock) {
		if d > 0 {
			l.retry = d
		}
	}
}

// WithStaleAfter sets the marker age after which it is considered stale.
func WithStaleAfter(d time.Duration) Option {
	return func(l *FileLock) {
		if d > 0 {
			l.staleAfter = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *FileLock) { l.now = now }
}

// WithProcessProbe replaces the PID liveness check.
func WithProcessProbe(alive func(pid int) bool) Option {
	return func(l *FileLock) { l.alive = alive }
}

// WithLogger sets the logger used for stale-lock recovery messages.
func WithLogger(logger *slog.Logger) Option {
	return func(l *FileLock) { l.logger = logger }
}

// NewFileLock returns an unheld lock guarding recordPath. The marker lives
// at recordPath + Suffix.
func NewFileLock(recordPath string, opts ...Option) *FileLock {
	l := &FileLock{
		path:       recordPath + Suffix,
		pid:        os.Getpid(),
		retry:      defaultRetry,
		staleAfter: defaultStaleAfter,
		now:        time.Now,
		alive:      ProcessAlive,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Path returns the marker path.
func (l *FileLock) Path() string {
	return l.path
}

// Held reports whether this value currently holds the lock.
func (l *FileLock) Held() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held
}

func (l *FileLock) TryAcquire() (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held {
		return false, ErrHeld
	}

	ok, err := l.create()
	if ok || err != nil {
		return ok, err
	}
	if !l.recoverStale() {
		return false, nil
	}
	return l.create()
}

func (l *FileLock) create() (bool, error) {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		if os.IsExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("acquire lock %s: %w", l.path, err)
	}

	marker := Marker{PID: l.pid, Owner: l.owner, CreatedAt: l.now().UTC()}
	data, _ := json.Marshal(marker)
	_, werr := f.Write(append(data, '\n'))
	cerr := f.Close()
	if werr != nil || cerr != nil {
		_ = os.Remove(l.path)
		return false, fmt.Errorf("write lock marker %s: %w", l.path, errors.Join(werr, cerr))
	}
	l.held = true
	return true, nil
}

// recoverStale removes the existing marker if its holder is gone.
//
// Recovery runs under a guard file so two waiters that read the same stale
// marker cannot both remove it: the second one would delete the first
// one's fresh marker. Under the guard the marker is re-read, moved to a
// tombstone and compared byte for byte with what was judged stale. Only an
// identical tombstone is deleted; anything else is linked back in place.
func (l *FileLock) recoverStale() bool {
	var (
		created time.Time
		pid     int
	)
	raw, err := os.ReadFile(l.path)
	if os.IsNotExist(err) {
		// Released between our create attempt and now.
		return true
	}
	if err != nil {
		return false
	}
	var m Marker
	if jerr := json.Unmarshal(raw, &m); jerr == nil {
		created, pid = m.CreatedAt, m.PID
	} else {
		// Half-written marker: fall back to its mtime.
		info, statErr := os.Stat(l.path)
		if statErr != nil {
			return os.IsNotExist(statErr)
		}
		created = info.ModTime()
	}

	reason := ""
	switch {
	case pid > 0 && pid != l.pid && !l.alive(pid):
		reason = "holder process exited"
	case l.now().Sub(created) > l.staleAfter:
		reason = "marker expired"
	default:
		return false
	}

	release, ok := l.guard()
	if !ok {
		return false
	}
	defer release()

	current, err := os.ReadFile(l.path)
	if os.IsNotExist(err) {
		return true
	}
	if err != nil || !bytes.Equal(current, raw) {
		return false
	}

	tomb := fmt.Sprintf("%s.stale.%d.%d", l.path, l.pid, l.now().UnixNano())
	if err := os.Rename(l.path, tomb); err != nil {
		return os.IsNotExist(err)
	}
	moved, err := os.ReadFile(tomb)
	if err != nil || !bytes.Equal(moved, raw) {
		// A holder released and a new one took the lock under us.
		if lerr := os.Link(tomb, l.path); lerr != nil {
			l.logger.Warn("could not restore lock marker", "path", l.path, "error", lerr)
		}
		_ = os.Remove(tomb)
		return false
	}

	l.logger.Warn("recovering stale lock",
		"path", l.path,
		"pid", pid,
		"owner", m.Owner,
		"reason", reason,
	)
	_ = os.Remove(tomb)
	return true
}

// guard takes the recovery guard next to the marker. A guard left behind
// by a crashed recoverer is removed once it is older than guardStale; the
// caller retries on its next attempt.
func (l *FileLock) guard() (func(), bool) {
	path := l.path + guardSuffix
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		if info, serr := os.Stat(path); serr == nil && l.now().Sub(info.ModTime()) > guardStale {
			l.logger.Warn("removing abandoned lock recovery guard", "path", path)
			_ = os.Remove(path)
		}
		return nil, false
	}
	f.Close()
	return func() { _ = os.Remove(path) }, true
}

func (l *FileLock) WaitAcquire(ctx context.Context, timeout time.Duration) error {
	start := l.now()
	attempts := 0
	for {
		attempts++
		ok, err := l.TryAcquire()
		if err != nil {
			return err
		}
		if ok {
			if attempts > 1 {
				l.logger.Debug("lock acquired after contention",
					"path", l.path,
					"attempts", attempts,
				)
			}
			return nil
		}

		waited := l.now().Sub(start)
		if waited >= timeout {
			return &TimeoutError{Path: l.path, Waited: waited, Attempts: attempts, Timeout: timeout}
		}

		t := time.NewTimer(l.retry)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

func (l *FileLock) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.held {
		return nil
	}
	l.held = false

	m, err := ReadMarker(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrLost
		}
		return fmt.Errorf("release lock %s: %w", l.path, err)
	}
	if m.PID != l.pid || m.Owner != l.owner {
		return ErrLost
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("release lock %s: %w", l.path, err)
	}
	return nil
}

// Noop satisfies ScopedLock without excluding anyone.
type Noop struct{}

func (Noop) TryAcquire() (bool, error) { return true, nil }

func (Noop) WaitAcquire(context.Context, time.Duration) error { return nil }

func (Noop) Release() error { return nil }

var (
	_ ScopedLock = (*FileLock)(nil)
	_ ScopedLock = Noop{}
)
