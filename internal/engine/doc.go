// Package engine implements the seatbelt ratchet.
//
// Reconcile takes one file's diagnostics, its recorded allowance and the
// resolved policy, and decides per rule whether the file got worse, stayed
// level or improved. It returns the diagnostics to hand back to the host
// and the allowance the record should hold next.
//
// DECISION TABLE (per rule with observed > 0):
//
//	no allowance, increase not allowed   untracked         unchanged
//	observed > allowed, increase allowed increase_allowed  warning, raise
//	observed > allowed                   violation         error, annotated
//	observed == allowed                  at_limit          warning
//	observed < allowed                   improved          warning, lower
//
// Recorded rules that no longer fire are removed unless keepRules covers
// them or they are not in the active rule set.
//
// Under frozen mode every change becomes frozen_inconsistent: the affected
// diagnostics stay errors, a file-level notice is appended and the
// allowance is left alone.
//
// CRITICAL PATTERNS:
//
// Reconcile is pure. It never touches the record, the lock or the clock;
// the session layer persists Result.Allowance when Result.Changed is set.
//
// Internal invariant failures, including panics, never abort a run. The
// file's diagnostics are returned unchanged plus a bug notice, and
// Result.Bug carries the InvariantError.
package engine
