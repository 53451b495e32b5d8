// Package history is the SQLite audit log of allowance changes.
//
// Every time a session flushes a record file it appends one Change per
// (file, rule) whose allowance moved, stamped with the session ID and a
// seq from the session's logical clock. `seatbelt history` reads it back
// in write order, which interleaves concurrent sessions correctly.
//
// The record file stays the source of truth. The log is append-only and
// losing it loses nothing but the audit trail.
package history
