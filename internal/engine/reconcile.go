package engine

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/roach88/seatbelt/internal/lint"
	"github.com/roach88/seatbelt/internal/policy"
)

// Outcome classifies one rule's ratchet decision for one file.
type Outcome string

const (
	// OutcomeUntracked: no allowance and no permission to add one.
	// Diagnostics pass through unchanged.
	OutcomeUntracked Outcome = "untracked"

	// OutcomeViolation: more errors than allowed. Diagnostics stay errors.
	OutcomeViolation Outcome = "violation"

	// OutcomeIncreaseAllowed: more errors than allowed, but the rule may
	// grow. Diagnostics become warnings and the allowance rises.
	OutcomeIncreaseAllowed Outcome = "increase_allowed"

	// OutcomeAtLimit: exactly at the allowance. Diagnostics become warnings.
	OutcomeAtLimit Outcome = "at_limit"

	// OutcomeImproved: fewer errors than allowed. Diagnostics become
	// warnings and the allowance drops.
	OutcomeImproved Outcome = "improved"

	// OutcomeFrozen: the allowance would change but the run is frozen.
	OutcomeFrozen Outcome = "frozen_inconsistent"

	// OutcomeRemoved: a recorded rule no longer fires and its allowance is
	// dropped.
	OutcomeRemoved Outcome = "removed"

	// OutcomeKept: a recorded rule no longer fires but its allowance is
	// preserved by keepRules or because the rule is not active.
	OutcomeKept Outcome = "kept"
)

// Decision is the reconciliation verdict for one (file, rule).
type Decision struct {
	Rule     string  `json:"rule"`
	Observed int     `json:"observed"`
	Allowed  int     `json:"allowed"`
	Outcome  Outcome `json:"outcome"`
}

// Input is everything Reconcile needs for one file.
type Input struct {
	// File is the file's record key.
	File string

	// RecordFile is the record path, used in remediation messages.
	RecordFile string

	// Diagnostics are the host's diagnostics for the file.
	Diagnostics []lint.Diagnostic

	// Allowed is the stored allowance per rule. Nil or empty when the file
	// has no record.
	Allowed map[string]int

	Policy policy.Policy
}

// Result is the outcome of reconciling one file.
type Result struct {
	// Diagnostics are returned to the host in place of the input.
	Diagnostics []lint.Diagnostic

	// Allowance is the per-rule allowance the record should hold for the
	// file. Under frozen mode it equals the input allowance.
	Allowance map[string]int

	// Changed reports whether Allowance differs from the input and must be
	// written. Always false under frozen mode.
	Changed bool

	// Decisions lists every classified rule: observed rules in rule order,
	// then recorded rules that were not observed.
	Decisions []Decision

	// Inconsistent reports a frozen run whose record is out of date.
	Inconsistent bool

	// Bug is set when an internal invariant failed. Diagnostics are then
	// the input plus a bug notice.
	Bug *InvariantError
}

// Reconcile applies the ratchet to one file's diagnostics. It is pure: the
// caller persists Result.Allowance when Result.Changed is set.
func Reconcile(in Input) Result {
	return guard(in, reconcile)
}

// guard converts invariant failures, including panics, into a per-file bug
// notice so one broken file does not abort the run.
func guard(in Input, fn func(Input) (Result, error)) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = recovered(in, NewInvariantError(in.File, "", fmt.Sprintf("panic: %v", r)))
		}
	}()

	var err error
	res, err = fn(in)
	if err == nil {
		return res
	}
	var ie *InvariantError
	if !errors.As(err, &ie) {
		ie = NewInvariantError(in.File, "", err.Error())
	}
	return recovered(in, ie)
}

func recovered(in Input, err *InvariantError) Result {
	diags := slices.Clone(in.Diagnostics)
	diags = append(diags, bugNotice(err, in))
	return Result{
		Diagnostics: diags,
		Allowance:   cloneAllowance(in.Allowed),
		Bug:         err,
	}
}

func cloneAllowance(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	maps.Copy(out, m)
	return out
}

func passThrough(in Input) Result {
	return Result{
		Diagnostics: slices.Clone(in.Diagnostics),
		Allowance:   cloneAllowance(in.Allowed),
	}
}

func reconcile(in Input) (Result, error) {
	p := in.Policy
	if p.Disabled {
		return passThrough(in), nil
	}

	counts := lint.CountErrors(in.Diagnostics)

	// A file without a record stays untracked unless some rule may grow.
	if len(in.Allowed) == 0 && p.AllowIncreaseRules.Empty() {
		return passThrough(in), nil
	}

	res := Result{}
	next := cloneAllowance(in.Allowed)
	decisions := make(map[string]Decision, len(counts))

	for _, rule := range slices.Sorted(maps.Keys(counts)) {
		observed := counts[rule]
		allowed := in.Allowed[rule]
		increase := p.AllowIncreaseRules.Has(rule)

		var outcome Outcome
		switch {
		case allowed == 0 && !increase:
			outcome = OutcomeUntracked
		case observed > allowed && increase:
			outcome = OutcomeIncreaseAllowed
		case observed > allowed:
			outcome = OutcomeViolation
		case observed == allowed:
			outcome = OutcomeAtLimit
		default:
			outcome = OutcomeImproved
		}

		if outcome == OutcomeIncreaseAllowed || outcome == OutcomeImproved {
			if p.Frozen {
				outcome = OutcomeFrozen
			} else {
				next[rule] = observed
			}
		}

		dec := Decision{Rule: rule, Observed: observed, Allowed: allowed, Outcome: outcome}
		decisions[rule] = dec
		res.Decisions = append(res.Decisions, dec)
	}

	out := make([]lint.Diagnostic, 0, len(in.Diagnostics))
	for _, d := range in.Diagnostics {
		if !d.Countable() {
			out = append(out, d)
			continue
		}
		dec, ok := decisions[d.RuleID]
		if !ok {
			return Result{}, NewInvariantError(in.File, d.RuleID, "counted rule has no decision")
		}
		out = append(out, annotate(d, dec, in))
	}

	// With every rule kept and nobody watching, the pass cannot change
	// anything.
	if p.Verbose != policy.VerboseOff || !p.KeepRules.All() {
		for _, rule := range slices.Sorted(maps.Keys(in.Allowed)) {
			if _, seen := counts[rule]; seen {
				continue
			}
			dec := Decision{Rule: rule, Observed: 0, Allowed: in.Allowed[rule]}
			switch {
			case p.KeepRules.Has(rule) || !p.RuleActive(rule):
				dec.Outcome = OutcomeKept
			case p.Frozen:
				dec.Outcome = OutcomeFrozen
			default:
				dec.Outcome = OutcomeRemoved
				delete(next, rule)
			}
			res.Decisions = append(res.Decisions, dec)
		}
	}

	for _, dec := range res.Decisions {
		if dec.Outcome == OutcomeFrozen {
			res.Inconsistent = true
			out = append(out, frozenNotice(dec, in))
		}
	}

	res.Diagnostics = out
	if p.Frozen {
		res.Allowance = cloneAllowance(in.Allowed)
		return res, nil
	}
	res.Allowance = next
	res.Changed = !maps.Equal(in.Allowed, next)
	return res, nil
}

// Count returns how many decisions have the given outcome.
func (r Result) Count(outcome Outcome) int {
	n := 0
	for _, d := range r.Decisions {
		if d.Outcome == outcome {
			n++
		}
	}
	return n
}
