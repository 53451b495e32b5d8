package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/roach88/seatbelt/internal/engine"
	"github.com/roach88/seatbelt/internal/history"
	"github.com/roach88/seatbelt/internal/policy"
)

// recordHistory stamps changes and appends them to the history log for p.
// History is an audit trail: failures are logged, never returned.
func (s *Session) recordHistory(ctx context.Context, p policy.Policy, changes []history.Change) {
	if len(changes) == 0 {
		return
	}
	h, err := s.historyFor(ctx, p)
	if err != nil {
		s.logger.Warn("history log unavailable", "path", p.HistoryFile, "error", err)
		return
	}
	if h == nil {
		return
	}

	now := s.now()
	for i := range changes {
		changes[i].Session = s.id
		changes[i].Seq = h.clock.Next()
		changes[i].CreatedAt = now
	}
	if err := h.log.WriteChanges(ctx, changes); err != nil {
		s.logger.Warn("error writing history", "path", p.HistoryFile, "error", err)
	}
}

// historyFor returns the log for p, opening it on first use. Returns nil
// when history is off.
func (s *Session) historyFor(ctx context.Context, p policy.Policy) (*historyLog, error) {
	if s.shared != nil {
		if s.shared.clock == nil {
			clock, err := resumeClock(ctx, s.shared.log)
			if err != nil {
				return nil, err
			}
			s.shared.clock = clock
		}
		return s.shared, nil
	}
	if p.HistoryFile == "" {
		return nil, nil
	}

	path, err := filepath.Abs(p.HistoryFile)
	if err != nil {
		return nil, err
	}
	if h, ok := s.histories[path]; ok {
		return h, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}
	log, err := history.Open(path)
	if err != nil {
		return nil, err
	}
	clock, err := resumeClock(ctx, log)
	if err != nil {
		log.Close()
		return nil, err
	}

	h := &historyLog{log: log, clock: clock, owned: true}
	s.histories[path] = h
	s.logger.Debug("history opened", "path", path, "seq", clock.Current())
	return h, nil
}

// resumeClock continues numbering after the last change in log.
func resumeClock(ctx context.Context, log *history.Log) (*engine.Clock, error) {
	seq, err := log.MaxSeq(ctx)
	if err != nil {
		return nil, err
	}
	return engine.NewClockAt(seq), nil
}
