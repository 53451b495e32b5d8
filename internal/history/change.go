package history

import (
	"maps"
	"slices"
	"time"
)

// Kind classifies an allowance change.
type Kind string

const (
	KindAdded     Kind = "added"
	KindTightened Kind = "tightened"
	KindLoosened  Kind = "loosened"
	KindRemoved   Kind = "removed"
)

// Change is one persisted allowance change for a (file, rule).
type Change struct {
	Session    string    `json:"session" yaml:"session"`
	Seq        int64     `json:"seq" yaml:"seq"`
	RecordFile string    `json:"recordFile" yaml:"recordFile"`
	File       string    `json:"file" yaml:"file"`
	Rule       string    `json:"rule" yaml:"rule"`
	Old        int       `json:"old" yaml:"old"`
	New        int       `json:"new" yaml:"new"`
	Kind       Kind      `json:"kind" yaml:"kind"`
	CreatedAt  time.Time `json:"createdAt" yaml:"createdAt"`
}

// Diff lists the changes that turn before into after, in rule order.
// Session, Seq and CreatedAt are left for the caller to stamp.
func Diff(recordFile, file string, before, after map[string]int) []Change {
	rules := make(map[string]struct{}, len(before)+len(after))
	for r := range before {
		rules[r] = struct{}{}
	}
	for r := range after {
		rules[r] = struct{}{}
	}

	var out []Change
	for _, rule := range slices.Sorted(maps.Keys(rules)) {
		old, had := before[rule]
		next, has := after[rule]

		var kind Kind
		switch {
		case !had && has:
			kind = KindAdded
		case had && !has:
			kind = KindRemoved
		case next < old:
			kind = KindTightened
		case next > old:
			kind = KindLoosened
		default:
			continue
		}
		out = append(out, Change{
			RecordFile: recordFile,
			File:       file,
			Rule:       rule,
			Old:        old,
			New:        next,
			Kind:       kind,
		})
	}
	return out
}
