package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// DefaultHeader is written when the decoded input carried no header block.
const DefaultHeader = "# seatbelt record: allowed lint errors per file and rule.\n" +
	"# Counts only shrink on their own. Commit this file with the code that changed it.\n"

// Line is one decoded record line.
type Line struct {
	// Num is the 1-based physical line number in the decoded input.
	Num int

	// File is the source file key.
	File string

	// Rule is the lint rule ID.
	Rule string

	// Count is the allowed error count.
	Count int

	// Raw is the line exactly as read, without the trailing newline.
	// Encode reuses it byte-for-byte when the allowance is unchanged.
	Raw string
}

// Document is a fully decoded record file.
type Document struct {
	// Header is the concatenated comment block, each line newline-terminated.
	// Empty if the input had no comment lines.
	Header string

	// Lines are the data lines in input order.
	Lines []Line
}

// Decode parses a record file.
//
// Comment lines are collected into Header and blank lines are skipped.
// Every other line must decode via DecodeLine, and no (file, rule) pair may
// appear twice. The first failure is returned as a *MalformedLineError and
// the document is discarded.
func Decode(data []byte) (*Document, error) {
	doc := &Document{}
	if len(data) == 0 {
		return doc, nil
	}

	var header strings.Builder
	seen := make(map[[2]string]int)

	// Split rather than scan so an overlong line cannot hide the lines after it.
	rawLines := strings.Split(string(data), "\n")
	for i, raw := range rawLines {
		num := i + 1
		raw = strings.TrimSuffix(raw, "\r")

		if strings.TrimSpace(raw) == "" {
			continue
		}
		if isComment(raw) {
			header.WriteString(raw)
			header.WriteByte('\n')
			continue
		}

		line, err := DecodeLine(num, raw)
		if err != nil {
			return nil, err
		}

		key := [2]string{line.File, line.Rule}
		if first, dup := seen[key]; dup {
			return nil, &MalformedLineError{
				Line:    num,
				Content: raw,
				Field:   FieldRuleID,
				Reason:  fmt.Sprintf("duplicate record (first seen on line %d)", first),
			}
		}
		seen[key] = num

		doc.Lines = append(doc.Lines, line)
	}

	doc.Header = header.String()
	return doc, nil
}

// DecodeLine parses a single data line.
// num is used only for error reporting.
func DecodeLine(num int, raw string) (Line, error) {
	fields := strings.Split(raw, "\t")
	if len(fields) != 3 {
		return Line{}, &MalformedLineError{
			Line:    num,
			Content: raw,
			Field:   FieldLine,
			Reason:  fmt.Sprintf("expected 3 tab-separated fields, got %d", len(fields)),
		}
	}

	file, err := decodeString(fields[0])
	if err != nil {
		return Line{}, &MalformedLineError{Line: num, Content: raw, Field: FieldSourceFile, Reason: "invalid string literal", Err: err}
	}

	rule, err := decodeString(fields[1])
	if err != nil {
		return Line{}, &MalformedLineError{Line: num, Content: raw, Field: FieldRuleID, Reason: "invalid string literal", Err: err}
	}

	count, err := decodeCount(fields[2])
	if err != nil {
		return Line{}, &MalformedLineError{Line: num, Content: raw, Field: FieldMaxErrors, Reason: "invalid count", Err: err}
	}

	line := Line{
		Num:   num,
		File:  NormalizeKey(file),
		Rule:  rule,
		Count: count,
		Raw:   raw,
	}
	if line.File != file {
		// Rewritten canonically on the next flush.
		line.Raw = EncodeLine(line.File, rule, count)
	}
	return line, nil
}

// NormalizeKey returns key in Unicode NFC, the form every record key is
// compared in.
func NormalizeKey(key string) string {
	return norm.NFC.String(key)
}

// EncodeLine formats one record line without a trailing newline.
func EncodeLine(file, rule string, count int) string {
	return EncodeString(file) + "\t" + EncodeString(rule) + "\t" + strconv.Itoa(count)
}

// EncodeString quotes s as a single-line JSON string literal.
// HTML characters are left unescaped so rule IDs like "a<b" stay readable.
func EncodeString(s string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	// Encoding a string never fails.
	_ = enc.Encode(s)
	return strings.TrimSuffix(buf.String(), "\n")
}

// Encode renders a record file from a header and pre-encoded data lines.
//
// Lines are sorted by their bytes and each is newline-terminated. An empty
// header is replaced with DefaultHeader. The lines slice is sorted in place.
func Encode(header string, lines []string) []byte {
	if header == "" {
		header = DefaultHeader
	}
	if !strings.HasSuffix(header, "\n") {
		header += "\n"
	}

	sort.Strings(lines)

	size := len(header)
	for _, l := range lines {
		size += len(l) + 1
	}

	var buf bytes.Buffer
	buf.Grow(size)
	buf.WriteString(header)
	for _, l := range lines {
		buf.WriteString(l)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// isComment reports whether raw starts with '#' after optional whitespace.
func isComment(raw string) bool {
	return strings.HasPrefix(strings.TrimLeft(raw, " \t"), "#")
}

func decodeString(field string) (string, error) {
	field = strings.TrimSpace(field)
	if !strings.HasPrefix(field, `"`) {
		return "", fmt.Errorf("expected a quoted string, got %q", field)
	}
	var s string
	if err := json.Unmarshal([]byte(field), &s); err != nil {
		return "", err
	}
	return s, nil
}

func decodeCount(field string) (int, error) {
	field = strings.TrimSpace(field)
	if field == "" {
		return 0, fmt.Errorf("empty count")
	}
	for _, r := range field {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("%q is not a non-negative integer", field)
		}
	}
	return strconv.Atoi(field)
}
