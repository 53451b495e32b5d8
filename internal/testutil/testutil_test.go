package testutil

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/seatbelt/internal/lint"
)

func TestFakeClock(t *testing.T) {
	c := NewFakeClock()
	assert.Equal(t, Epoch, c.Now())

	c.Advance(90 * time.Second)
	assert.Equal(t, Epoch.Add(90*time.Second), c.Now())

	later := Epoch.Add(24 * time.Hour)
	c.Set(later)
	assert.Equal(t, later, c.Now())

	c.Reset()
	assert.Equal(t, Epoch, c.Now())
}

func TestFakeClock_ThreadSafe(t *testing.T) {
	c := NewFakeClock()
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Advance(time.Millisecond)
			_ = c.Now()
		}()
	}
	wg.Wait()
	assert.Equal(t, Epoch.Add(50*time.Millisecond), c.Now())
}

func TestRecordRoundTrip(t *testing.T) {
	dir := t.TempDir()
	tree := Tree{
		"src/a.ts": {"no-any": 3, "eqeqeq": 1},
		"src/b.ts": {"no-any": 2},
	}

	path := WriteRecord(t, dir, "seatbelt.tsv", tree)

	assert.Equal(t, filepath.Join(dir, "seatbelt.tsv"), path)
	assert.Equal(t, tree, ReadRecord(t, path))
	assert.Contains(t, RecordBytes(t, path), `"src/a.ts"`)
}

func TestReadRecord_Missing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "none.tsv")
	assert.Empty(t, ReadRecord(t, path))
	assert.Equal(t, "", RecordBytes(t, path))
}

func TestErrors(t *testing.T) {
	diags := Errors("no-any", 3)
	require.Len(t, diags, 3)
	assert.Equal(t, map[string]int{"no-any": 3}, lint.CountErrors(diags))
	assert.Equal(t, 3, diags[2].Line)
}

func TestTouch(t *testing.T) {
	dir := t.TempDir()
	path := Touch(t, dir, "src/deep/a.ts")
	assert.FileExists(t, path)
}

func TestFixedSessionID(t *testing.T) {
	assert.Equal(t, "test-session", NewFixedSessionID("").Generate())
	g := NewFixedSessionID("s-1")
	assert.Equal(t, "s-1", g.Generate())
	assert.Equal(t, "s-1", g.Generate())
}
