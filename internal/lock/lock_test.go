package lock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeMarker(t *testing.T, path string, m Marker) {
	t.Helper()
	data, err := json.Marshal(m)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))
}

func TestFileLock_AcquireRelease(t *testing.T) {
	record := filepath.Join(t.TempDir(), "seatbelt.tsv")
	l := NewFileLock(record, WithOwner("session-1"))
	assert.Equal(t, record+".lock", l.Path())

	ok, err := l.TryAcquire()
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, l.Held())

	m, err := ReadMarker(l.Path())
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), m.PID)
	assert.Equal(t, "session-1", m.Owner)

	_, err = l.TryAcquire()
	assert.ErrorIs(t, err, ErrHeld)

	require.NoError(t, l.Release())
	assert.False(t, l.Held())
	assert.NoFileExists(t, l.Path())

	require.NoError(t, l.Release(), "second release is a no-op")
}

func TestFileLock_Contention(t *testing.T) {
	record := filepath.Join(t.TempDir(), "seatbelt.tsv")
	first := NewFileLock(record, WithOwner("a"))
	second := NewFileLock(record, WithOwner("b"))

	ok, err := first.TryAcquire()
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = second.TryAcquire()
	require.NoError(t, err)
	assert.False(t, ok, "live marker from this process is not stale")

	require.NoError(t, first.Release())

	ok, err = second.TryAcquire()
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, second.Release())
}

func TestFileLock_WaitTimeout(t *testing.T) {
	record := filepath.Join(t.TempDir(), "seatbelt.tsv")
	holder := NewFileLock(record)
	ok, err := holder.TryAcquire()
	require.NoError(t, err)
	require.True(t, ok)
	defer holder.Release()

	waiter := NewFileLock(record, WithRetry(5*time.Millisecond))
	err = waiter.WaitAcquire(context.Background(), 30*time.Millisecond)
	require.Error(t, err)
	assert.True(t, IsTimeout(err))

	var te *TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, record+".lock", te.Path)
	assert.GreaterOrEqual(t, te.Attempts, 2)
	assert.Equal(t, 30*time.Millisecond, te.Timeout)
	assert.Contains(t, te.Error(), "lock timeout")
}

func TestFileLock_WaitSucceedsAfterRelease(t *testing.T) {
	record := filepath.Join(t.TempDir(), "seatbelt.tsv")
	holder := NewFileLock(record)
	ok, err := holder.TryAcquire()
	require.NoError(t, err)
	require.True(t, ok)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		time.Sleep(20 * time.Millisecond)
		_ = holder.Release()
	}()

	waiter := NewFileLock(record, WithRetry(2*time.Millisecond))
	require.NoError(t, waiter.WaitAcquire(context.Background(), 5*time.Second))
	wg.Wait()
	assert.True(t, waiter.Held())
	require.NoError(t, waiter.Release())
}

func TestFileLock_WaitCancelled(t *testing.T) {
	record := filepath.Join(t.TempDir(), "seatbelt.tsv")
	holder := NewFileLock(record)
	_, err := holder.TryAcquire()
	require.NoError(t, err)
	defer holder.Release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	waiter := NewFileLock(record, WithRetry(time.Second))
	err = waiter.WaitAcquire(ctx, time.Minute)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestFileLock_RecoversDeadHolder(t *testing.T) {
	record := filepath.Join(t.TempDir(), "seatbelt.tsv")
	writeMarker(t, record+".lock", Marker{PID: 4242, Owner: "gone", CreatedAt: time.Now().UTC()})

	l := NewFileLock(record, WithProcessProbe(func(pid int) bool {
		assert.Equal(t, 4242, pid)
		return false
	}))
	ok, err := l.TryAcquire()
	require.NoError(t, err)
	assert.True(t, ok)

	m, err := ReadMarker(l.Path())
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), m.PID)
}

func TestFileLock_ConcurrentRecoveryHasOneHolder(t *testing.T) {
	for i := range 20 {
		record := filepath.Join(t.TempDir(), "seatbelt.tsv")
		writeMarker(t, record+".lock", Marker{PID: 4242, Owner: "gone", CreatedAt: time.Now().UTC()})

		// A slow liveness check lets every waiter read the dead marker
		// before any of them removes it.
		slowDead := func(pid int) bool {
			time.Sleep(2 * time.Millisecond)
			return pid != 4242
		}

		const waiters = 4
		var (
			start   sync.WaitGroup
			done    sync.WaitGroup
			mu      sync.Mutex
			holders int
		)
		start.Add(1)
		for w := range waiters {
			done.Add(1)
			go func() {
				defer done.Done()
				l := NewFileLock(record, WithOwner(fmt.Sprintf("w%d", w)), WithProcessProbe(slowDead))
				start.Wait()
				ok, err := l.TryAcquire()
				assert.NoError(t, err)
				if ok {
					mu.Lock()
					holders++
					mu.Unlock()
				}
			}()
		}
		start.Done()
		done.Wait()

		assert.LessOrEqual(t, holders, 1, "iteration %d", i)
		leftovers, err := filepath.Glob(record + ".lock.*")
		require.NoError(t, err)
		assert.Empty(t, leftovers, "no tombstones or guards left behind")
	}
}

func TestFileLock_RecoveryWaitsForGuard(t *testing.T) {
	record := filepath.Join(t.TempDir(), "seatbelt.tsv")
	writeMarker(t, record+".lock", Marker{PID: 4242, CreatedAt: time.Now().UTC()})
	require.NoError(t, os.WriteFile(record+".lock.recover", nil, 0o600))

	dead := func(int) bool { return false }
	l := NewFileLock(record, WithProcessProbe(dead))
	ok, err := l.TryAcquire()
	require.NoError(t, err)
	assert.False(t, ok, "another waiter is recovering")

	m, err := ReadMarker(l.Path())
	require.NoError(t, err)
	assert.Equal(t, 4242, m.PID, "marker untouched while the guard is held")

	require.NoError(t, os.Remove(record+".lock.recover"))
	ok, err = l.TryAcquire()
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFileLock_AbandonedGuardIsCleared(t *testing.T) {
	record := filepath.Join(t.TempDir(), "seatbelt.tsv")
	writeMarker(t, record+".lock", Marker{PID: 4242, CreatedAt: time.Now().UTC()})
	require.NoError(t, os.WriteFile(record+".lock.recover", nil, 0o600))

	later := func() time.Time { return time.Now().Add(time.Minute) }
	l := NewFileLock(record, WithProcessProbe(func(int) bool { return false }), WithClock(later))

	ok, err := l.TryAcquire()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoFileExists(t, record+".lock.recover")

	ok, err = l.TryAcquire()
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFileLock_RecoversExpiredMarker(t *testing.T) {
	record := filepath.Join(t.TempDir(), "seatbelt.tsv")
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	writeMarker(t, record+".lock", Marker{PID: 4242, CreatedAt: base})

	alive := func(int) bool { return true }

	fresh := NewFileLock(record, WithProcessProbe(alive), WithStaleAfter(time.Minute),
		WithClock(func() time.Time { return base.Add(30 * time.Second) }))
	ok, err := fresh.TryAcquire()
	require.NoError(t, err)
	assert.False(t, ok, "marker is younger than the threshold")

	late := NewFileLock(record, WithProcessProbe(alive), WithStaleAfter(time.Minute),
		WithClock(func() time.Time { return base.Add(2 * time.Minute) }))
	ok, err = late.TryAcquire()
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFileLock_ReleaseAfterTheft(t *testing.T) {
	record := filepath.Join(t.TempDir(), "seatbelt.tsv")
	l := NewFileLock(record, WithOwner("mine"))
	ok, err := l.TryAcquire()
	require.NoError(t, err)
	require.True(t, ok)

	writeMarker(t, l.Path(), Marker{PID: os.Getpid(), Owner: "thief", CreatedAt: time.Now().UTC()})

	assert.ErrorIs(t, l.Release(), ErrLost)
	assert.FileExists(t, l.Path(), "a marker owned by someone else is left alone")
}

func TestFileLock_MissingDirectory(t *testing.T) {
	record := filepath.Join(t.TempDir(), "missing", "seatbelt.tsv")
	_, err := NewFileLock(record).TryAcquire()
	assert.Error(t, err)
}

func TestNoop(t *testing.T) {
	var l ScopedLock = Noop{}
	ok, err := l.TryAcquire()
	assert.True(t, ok)
	assert.NoError(t, err)
	assert.NoError(t, l.WaitAcquire(context.Background(), 0))
	assert.NoError(t, l.Release())
}

func TestProcessAlive(t *testing.T) {
	assert.True(t, ProcessAlive(os.Getpid()))
	assert.False(t, ProcessAlive(0))
}
