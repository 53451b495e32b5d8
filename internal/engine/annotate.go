package engine

import (
	"fmt"
	"path/filepath"

	"github.com/roach88/seatbelt/internal/lint"
)

// NoticeRuleID is the rule ID carried by diagnostics seatbelt creates.
const NoticeRuleID = "seatbelt"

func plural(n int) string {
	if n == 1 {
		return "error"
	}
	return "errors"
}

func withNote(msg, note string) string {
	return fmt.Sprintf("%s [seatbelt: %s]", msg, note)
}

func recordName(in Input) string {
	if in.RecordFile == "" {
		return "the seatbelt record"
	}
	return filepath.Base(in.RecordFile)
}

// annotate applies one rule's decision to one of its countable diagnostics.
func annotate(d lint.Diagnostic, dec Decision, in Input) lint.Diagnostic {
	switch dec.Outcome {
	case OutcomeIncreaseAllowed:
		d.Severity = lint.SeverityWarning
		d.Message = withNote(d.Message, fmt.Sprintf(
			"increase allowed, allowance raised from %d to %d", dec.Allowed, dec.Observed))

	case OutcomeViolation:
		d.Message = withNote(d.Message, fmt.Sprintf(
			"%d %s of this rule, at most %d allowed. Remove %d to pass",
			dec.Observed, plural(dec.Observed), dec.Allowed, dec.Observed-dec.Allowed))

	case OutcomeAtLimit:
		d.Severity = lint.SeverityWarning
		d.Message = withNote(d.Message, fmt.Sprintf(
			"temporarily allowed, this file is at its limit of %d. Please fix if you can", dec.Allowed))

	case OutcomeImproved:
		d.Severity = lint.SeverityWarning
		d.Message = withNote(d.Message, fmt.Sprintf(
			"down from %d to %d, %s tightened. Thanks", dec.Allowed, dec.Observed, recordName(in)))

	case OutcomeFrozen:
		d.Severity = lint.SeverityError
		d.Message = withNote(d.Message, fmt.Sprintf(
			"%s is out of date (%d recorded, %d found). Re-run without frozen mode and commit it",
			recordName(in), dec.Allowed, dec.Observed))
	}
	return d
}

// frozenNotice is the file-level diagnostic for one inconsistent rule.
func frozenNotice(dec Decision, in Input) lint.Diagnostic {
	return lint.Diagnostic{
		RuleID:   NoticeRuleID,
		Severity: lint.SeverityError,
		Message: fmt.Sprintf(
			"%s is out of date for rule %q in %s: it records %d %s, found %d. Re-run seatbelt without frozen mode and commit the updated record",
			recordName(in), dec.Rule, in.File, dec.Allowed, plural(dec.Allowed), dec.Observed),
		Line:      1,
		Column:    0,
		Synthetic: true,
	}
}

// bugNotice is appended when reconciliation hits an internal invariant.
func bugNotice(err *InvariantError, in Input) lint.Diagnostic {
	return lint.Diagnostic{
		RuleID:   NoticeRuleID,
		Severity: lint.SeverityError,
		Message: fmt.Sprintf(
			"seatbelt %s hit an internal error while processing %s: %s. Diagnostics for this file were left unchanged. Please report this bug",
			Version, in.File, err.Error()),
		Line:      1,
		Column:    0,
		Synthetic: true,
	}
}
