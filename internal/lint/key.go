package lint

import (
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// RecordKey converts a source file path to the key stored in a record file.
//
// Keys are relative to the record file's directory and use forward slashes,
// so a record is portable across machines and operating systems. Files
// outside that directory keep their cleaned absolute path. Keys are NFC
// normalized: macOS reports decomposed names and Linux precomposed ones,
// and both must land on the same line.
func RecordKey(recordDir, file string) string {
	abs, err := filepath.Abs(file)
	if err != nil {
		abs = filepath.Clean(file)
	}

	key := abs
	if recordDir != "" {
		if rel, err := filepath.Rel(recordDir, abs); err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			key = rel
		}
	}

	return norm.NFC.String(filepath.ToSlash(key))
}

// KeyPath converts a record key back to a filesystem path.
func KeyPath(recordDir, key string) string {
	p := filepath.FromSlash(key)
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(recordDir, p)
}
