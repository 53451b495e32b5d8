package history

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestLog(t *testing.T) *Log {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func change(session string, seq int64, file, rule string, old, next int, kind Kind) Change {
	return Change{
		Session:    session,
		Seq:        seq,
		RecordFile: "/repo/seatbelt.tsv",
		File:       file,
		Rule:       rule,
		Old:        old,
		New:        next,
		Kind:       kind,
		CreatedAt:  t0.Add(time.Duration(seq) * time.Second),
	}
}

func TestOpen_CreatesDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")

	l, err := Open(path)
	require.NoError(t, err)
	defer l.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err)

	ctx := context.Background()
	mode, err := l.pragma(ctx, "journal_mode")
	require.NoError(t, err)
	assert.Equal(t, "wal", mode)

	version, err := l.pragma(ctx, "user_version")
	require.NoError(t, err)
	assert.Equal(t, "1", version)
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	ctx := context.Background()

	l, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, l.WriteChanges(ctx, []Change{change("s1", 1, "a.ts", "r", 2, 1, KindTightened)}))
	require.NoError(t, l.Close())

	for range 3 {
		l, err = Open(path)
		require.NoError(t, err)
		require.NoError(t, l.Close())
	}

	l, err = Open(path)
	require.NoError(t, err)
	defer l.Close()
	got, err := l.Query(ctx, Filter{})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestClose_Nil(t *testing.T) {
	var l *Log
	assert.NoError(t, l.Close())
}

func TestWriteAndQuery(t *testing.T) {
	l := openTestLog(t)
	ctx := context.Background()

	require.NoError(t, l.WriteChanges(ctx, []Change{
		change("s1", 1, "a.ts", "no-any", 5, 3, KindTightened),
		change("s1", 2, "b.ts", "no-any", 0, 4, KindAdded),
	}))
	require.NoError(t, l.WriteChanges(ctx, []Change{
		change("s2", 3, "a.ts", "eqeqeq", 1, 0, KindRemoved),
	}))

	all, err := l.Query(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []int64{1, 2, 3}, []int64{all[0].Seq, all[1].Seq, all[2].Seq})
	assert.Equal(t, change("s1", 1, "a.ts", "no-any", 5, 3, KindTightened), all[0])

	byFile, err := l.Query(ctx, Filter{File: "a.ts"})
	require.NoError(t, err)
	assert.Len(t, byFile, 2)

	byRule, err := l.Query(ctx, Filter{File: "a.ts", Rule: "eqeqeq"})
	require.NoError(t, err)
	require.Len(t, byRule, 1)
	assert.Equal(t, KindRemoved, byRule[0].Kind)

	bySession, err := l.Query(ctx, Filter{Session: "s1"})
	require.NoError(t, err)
	assert.Len(t, bySession, 2)

	latest, err := l.Query(ctx, Filter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, int64(2), latest[0].Seq)
	assert.Equal(t, int64(3), latest[1].Seq)

	none, err := l.Query(ctx, Filter{File: "missing.ts"})
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestQuery_InterleavedSessionsInWriteOrder(t *testing.T) {
	l := openTestLog(t)
	ctx := context.Background()

	// Two workers that opened the log together both start at seq 1.
	require.NoError(t, l.WriteChanges(ctx, []Change{change("w1", 1, "a.ts", "r", 3, 2, KindTightened)}))
	require.NoError(t, l.WriteChanges(ctx, []Change{change("w2", 1, "b.ts", "r", 4, 1, KindTightened)}))
	require.NoError(t, l.WriteChanges(ctx, []Change{change("w2", 2, "b.ts", "r", 1, 0, KindRemoved)}))
	require.NoError(t, l.WriteChanges(ctx, []Change{change("w1", 2, "a.ts", "r", 2, 1, KindTightened)}))

	got, err := l.Query(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, got, 4)
	order := make([]string, len(got))
	for i, c := range got {
		order[i] = fmt.Sprintf("%s/%d", c.Session, c.Seq)
	}
	assert.Equal(t, []string{"w1/1", "w2/1", "w2/2", "w1/2"}, order)

	latest, err := l.Query(ctx, Filter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, "w1", latest[0].Session)
	assert.Equal(t, int64(2), latest[0].Seq)
}

func TestWriteChanges_Idempotent(t *testing.T) {
	l := openTestLog(t)
	ctx := context.Background()
	c := change("s1", 1, "a.ts", "r", 2, 1, KindTightened)

	require.NoError(t, l.WriteChanges(ctx, []Change{c}))
	require.NoError(t, l.WriteChanges(ctx, []Change{c}))

	got, err := l.Query(ctx, Filter{})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestWriteChanges_Empty(t *testing.T) {
	l := openTestLog(t)
	assert.NoError(t, l.WriteChanges(context.Background(), nil))
}

func TestWriteChanges_RejectsUnstamped(t *testing.T) {
	l := openTestLog(t)
	ctx := context.Background()

	err := l.WriteChanges(ctx, []Change{
		change("s1", 1, "a.ts", "r", 2, 1, KindTightened),
		{File: "b.ts", Rule: "r", Kind: KindAdded, New: 1},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing session or seq")

	// The whole batch rolls back.
	got, err := l.Query(ctx, Filter{})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMaxSeq(t *testing.T) {
	l := openTestLog(t)
	ctx := context.Background()

	seq, err := l.MaxSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), seq)

	require.NoError(t, l.WriteChanges(ctx, []Change{
		change("s1", 7, "a.ts", "r", 0, 1, KindAdded),
		change("s1", 3, "b.ts", "r", 0, 1, KindAdded),
	}))
	seq, err = l.MaxSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(7), seq)
}

func TestDiff(t *testing.T) {
	before := map[string]int{"keep": 2, "tighten": 5, "loosen": 1, "drop": 3}
	after := map[string]int{"keep": 2, "tighten": 3, "loosen": 4, "new": 1}

	got := Diff("/repo/seatbelt.tsv", "a.ts", before, after)

	want := []Change{
		{RecordFile: "/repo/seatbelt.tsv", File: "a.ts", Rule: "drop", Old: 3, New: 0, Kind: KindRemoved},
		{RecordFile: "/repo/seatbelt.tsv", File: "a.ts", Rule: "loosen", Old: 1, New: 4, Kind: KindLoosened},
		{RecordFile: "/repo/seatbelt.tsv", File: "a.ts", Rule: "new", Old: 0, New: 1, Kind: KindAdded},
		{RecordFile: "/repo/seatbelt.tsv", File: "a.ts", Rule: "tighten", Old: 5, New: 3, Kind: KindTightened},
	}
	assert.Equal(t, want, got)
	assert.Empty(t, Diff("r", "a.ts", before, before))
	assert.Empty(t, Diff("r", "a.ts", nil, nil))
}
