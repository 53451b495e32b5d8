package history

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Filter narrows Query. Zero fields match everything.
type Filter struct {
	RecordFile string
	File       string
	Rule       string
	Session    string

	// Limit keeps only the most recent N changes. 0 means no limit.
	Limit int
}

// Query returns matching changes in the order they were written.
//
// Sessions sharing one log number their changes independently, so seq
// values repeat across sessions; the row id is the global order.
//
// Returns an empty slice (not nil) if nothing matches.
func (l *Log) Query(ctx context.Context, f Filter) ([]Change, error) {
	var (
		where []string
		args  []any
	)
	add := func(col, val string) {
		if val != "" {
			where = append(where, col+" = ?")
			args = append(args, val)
		}
	}
	add("record_file", f.RecordFile)
	add("file", f.File)
	add("rule", f.Rule)
	add("session_id", f.Session)

	q := `SELECT id, session_id, seq, record_file, file, rule, old_count, new_count, kind, created_at FROM changes`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	if f.Limit > 0 {
		// Most recent N, still returned in ascending order.
		q = `SELECT * FROM (` + q + ` ORDER BY id DESC LIMIT ?)`
		args = append(args, f.Limit)
	}
	q += " ORDER BY id ASC"

	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query changes: %w", err)
	}
	defer rows.Close()

	changes := []Change{}
	for rows.Next() {
		c, err := scanChange(rows)
		if err != nil {
			return nil, err
		}
		changes = append(changes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate changes: %w", err)
	}
	return changes, nil
}

// MaxSeq returns the highest seq in the log, or 0 when it is empty.
// A new session continues numbering from here.
func (l *Log) MaxSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := l.db.QueryRowContext(ctx, "SELECT MAX(seq) FROM changes").Scan(&seq); err != nil {
		return 0, fmt.Errorf("max seq: %w", err)
	}
	return seq.Int64, nil
}

func scanChange(rows *sql.Rows) (Change, error) {
	var (
		c       Change
		id      int64
		kind    string
		created string
	)
	if err := rows.Scan(&id, &c.Session, &c.Seq, &c.RecordFile, &c.File, &c.Rule,
		&c.Old, &c.New, &kind, &created); err != nil {
		return Change{}, fmt.Errorf("scan change: %w", err)
	}
	c.Kind = Kind(kind)

	t, err := time.Parse(time.RFC3339Nano, created)
	if err != nil {
		return Change{}, fmt.Errorf("scan change %d: created_at: %w", id, err)
	}
	c.CreatedAt = t
	return c, nil
}
