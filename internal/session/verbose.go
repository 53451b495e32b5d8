package session

import (
	"io"
	"log/slog"

	"github.com/roach88/seatbelt/internal/engine"
	"github.com/roach88/seatbelt/internal/policy"
)

// verboseLogger returns the decision logger for v.
func (s *Session) verboseLogger(v policy.Verbosity) *slog.Logger {
	var (
		sink string
		w    io.Writer
	)
	switch {
	case s.verboseOut != nil:
		sink, w = "custom", s.verboseOut
	case v == policy.VerboseStdout:
		sink, w = "stdout", s.stdout
	default:
		sink, w = "stderr", s.stderr
	}

	if l, ok := s.verbose[sink]; ok {
		return l
	}
	l := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		ReplaceAttr: dropTime,
	})).With("session", s.id)
	s.verbose[sink] = l
	return l
}

func dropTime(groups []string, a slog.Attr) slog.Attr {
	if len(groups) == 0 && a.Key == slog.TimeKey {
		return slog.Attr{}
	}
	return a
}

// logDecisions reports every decision for one file. It never changes
// diagnostics or results.
func (s *Session) logDecisions(v policy.Verbosity, key string, res engine.Result) {
	if v == policy.VerboseOff {
		return
	}
	s.verboseUsed = true

	l := s.verboseLogger(v)
	for _, dec := range res.Decisions {
		l.Info("ratchet decision",
			"file", key,
			"rule", dec.Rule,
			"observed", dec.Observed,
			"allowed", dec.Allowed,
			"outcome", dec.Outcome,
		)
	}
	if res.Changed {
		l.Info("allowance updated", "file", key, "rules", len(res.Allowance))
	}
}
