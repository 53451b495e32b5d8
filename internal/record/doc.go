// Package record encodes and decodes seatbelt record files.
//
// A record file holds one allowance per line:
//
//	"src/file.ts"	"rule-a"	5
//
// Each line has exactly three tab-separated fields: the source file and the
// rule ID, both written as single-line JSON string literals, and the allowed
// error count as a bare non-negative decimal integer.
//
// Lines whose first non-blank character is '#' form the header block. The
// header is kept verbatim and written back ahead of the data lines.
//
// # Merge Friendliness
//
// Encode sorts all data lines by their encoded bytes, not by file or by
// insertion order. Every line carries its full (file, rule) key, so two
// branches that touch different allowances produce non-overlapping hunks and
// merge cleanly. Only concurrent edits to the same (file, rule) conflict.
//
// Decode is all-or-nothing: the first malformed line fails the whole read
// with a *MalformedLineError naming the line number, the raw content, and the
// offending field.
package record
