// Package policy resolves the options that govern one reconciliation.
//
// Options come from layered Config values whose fields are pointers: nil
// means "unset here". Layers merge in this order, later winning:
//
//	defaults
//	environment fallbacks (CI, parallel worker ids)
//	config file shared section
//	command-line flags
//	config file per-file overrides (matched by glob)
//	SEATBELT_* environment overrides
//
// Config files may be YAML, JSON or CUE and are checked against an embedded
// CUE schema before decoding.
package policy
