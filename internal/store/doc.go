// Package store holds the in-memory state of one seatbelt record file.
//
// A Store maps source file keys to per-rule allowances. It is built from a
// decoded record (package record) and written back atomically.
//
// # Lazy Materialization
//
// Decoding validates every line up front, but the per-file rule map is only
// built the first time MaxErrors is called for that file. Files that are
// never touched during a run are written back from their original line bytes,
// which keeps incidental diffs out of the record.
//
// # Dirty Tracking
//
// Changed reports whether the in-memory state differs from what was last
// loaded or flushed. SetMaxErrors and RemoveFile only set the flag when they
// actually change something, so repeating an identical reconciliation leaves
// the store clean.
//
// # Atomic Writes
//
// Flush writes to a temp file in the record's directory, named with the
// process ID and a nanosecond timestamp so concurrent writers never collide,
// then renames it over the target. Readers see either the old or the new
// file, never a partial one. A failed write leaves the target untouched.
//
// A Store is not safe for concurrent use. Cross-process coordination is the
// job of package session.
package store
