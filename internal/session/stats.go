package session

import (
	"maps"
	"slices"

	"github.com/roach88/seatbelt/internal/engine"
)

// Stats counts what a session did.
type Stats struct {
	// Files is the number of Process calls.
	Files int `json:"files"`

	// Skipped counts files processed with seatbelt disabled.
	Skipped int `json:"skipped"`

	// Tightened counts rules whose allowance dropped or was removed.
	Tightened int `json:"tightened"`

	// Loosened counts rules whose allowance was raised.
	Loosened int `json:"loosened"`

	Violations   int `json:"violations"`
	Inconsistent int `json:"inconsistent"`
	Bugs         int `json:"bugs"`
	Flushes      int `json:"flushes"`
}

// Stats returns a snapshot of the run statistics.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *Session) tally(res engine.Result) {
	for _, dec := range res.Decisions {
		switch dec.Outcome {
		case engine.OutcomeImproved, engine.OutcomeRemoved:
			s.stats.Tightened++
		case engine.OutcomeIncreaseAllowed:
			s.stats.Loosened++
		case engine.OutcomeViolation:
			s.stats.Violations++
		case engine.OutcomeFrozen:
			s.stats.Inconsistent++
		}
	}
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}
