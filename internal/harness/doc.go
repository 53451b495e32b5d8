// Package harness runs ratchet conformance scenarios.
//
// A scenario is a YAML file describing an initial record, a config file
// and a sequence of lint results. The harness feeds every step through a
// real session (store, lock, engine) in a scratch directory and checks
// the decisions, the returned diagnostics and the final record.
//
// # Scenario Format
//
//	name: tighten_and_remove
//	description: "What this scenario validates"
//	config:                     # seatbelt.yaml content, schema-checked
//	  keepRules: [rule-c]
//	env: { CI: "true" }
//	record:                     # or record_text: raw record content
//	  src/a.ts: { rule-a: 5, rule-b: 3, rule-c: 99 }
//	missing: [src/gone.ts]      # source files that do not exist
//	steps:
//	  - file: src/a.ts
//	    errors: { rule-a: 3 }
//	    flags: { frozen: true } # command-line layer for this step
//	    expect:
//	      outcomes: { rule-a: improved }
//	      errors: 0
//	      changed: true
//	  - finish: true
//	    expect:
//	      removed: [src/gone.ts]
//	assertions:
//	  - type: record
//	    record: { src/a.ts: { rule-a: 3, rule-c: 99 } }
//
// # Assertion Types
//
//   - record: the final record equals the given tree
//   - record_unchanged: the record file is byte-identical to the start
//   - no_record: no record file was written
//   - stats: session statistics match (subset)
//   - removed: finish steps swept exactly these keys
//
// # Golden Files
//
// RunWithGolden snapshots the decision trace and the final record bytes
// under testdata/golden. Regenerate with:
//
//	go test ./internal/harness -update
package harness
