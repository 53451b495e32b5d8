package history

import (
	"context"
	"fmt"
	"time"
)

// WriteChanges appends changes in one transaction.
// Uses ON CONFLICT(session_id, seq) DO NOTHING so a retried write is a no-op.
func (l *Log) WriteChanges(ctx context.Context, changes []Change) error {
	if len(changes) == 0 {
		return nil
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write changes: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO changes
		(session_id, seq, record_file, file, rule, old_count, new_count, kind, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, seq) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("write changes: prepare: %w", err)
	}
	defer stmt.Close()

	for _, c := range changes {
		if c.Session == "" || c.Seq <= 0 {
			return fmt.Errorf("write changes: %s %s: missing session or seq", c.File, c.Rule)
		}
		_, err := stmt.ExecContext(ctx,
			c.Session,
			c.Seq,
			c.RecordFile,
			c.File,
			c.Rule,
			c.Old,
			c.New,
			string(c.Kind),
			c.CreatedAt.UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			return fmt.Errorf("write changes: %s %s: %w", c.File, c.Rule, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write changes: commit: %w", err)
	}
	return nil
}
