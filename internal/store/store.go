package store

import (
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"maps"
	"os"
	"time"

	"github.com/roach88/seatbelt/internal/record"
)

// Store is the decoded state of one record file.
type Store struct {
	path    string
	header  string
	files   map[string]*fileEntry
	changed bool

	// Overridable for tests.
	rename func(oldpath, newpath string) error
	now    func() time.Time
}

// fileEntry holds the records for one source file.
// rules is nil until the file is first materialized.
type fileEntry struct {
	lines []record.Line
	rules map[string]int
}

// New creates an empty store bound to path. Nothing is read or written.
// The file is created on the first Flush that has something to write.
func New(path string) *Store {
	return &Store{
		path:   path,
		files:  make(map[string]*fileEntry),
		rename: os.Rename,
		now:    time.Now,
	}
}

// Open loads the record file at path.
// A missing file yields an empty store bound to path.
// A malformed file fails with a *record.MalformedLineError.
func Open(path string) (*Store, error) {
	s := New(path)
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Parse builds a store from record content already in memory.
func Parse(path string, data []byte) (*Store, error) {
	s := New(path)
	if err := s.load(data); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the record file path the store reads from and writes to.
func (s *Store) Path() string {
	return s.path
}

// Header returns the preserved comment block (empty if the file had none).
func (s *Store) Header() string {
	return s.header
}

// Changed reports whether there are mutations not yet flushed.
func (s *Store) Changed() bool {
	return s.changed
}

// Reload re-reads the backing file, replacing all in-memory state and
// clearing the dirty flag. Used to pick up writes from other processes.
//
// On error the previous state is kept.
func (s *Store) Reload() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		data = nil
	} else if err != nil {
		return fmt.Errorf("read record %s: %w", s.path, err)
	}

	if err := s.load(data); err != nil {
		return fmt.Errorf("decode record %s: %w", s.path, err)
	}
	return nil
}

func (s *Store) load(data []byte) error {
	doc, err := record.Decode(data)
	if err != nil {
		return err
	}

	files := make(map[string]*fileEntry)
	for _, line := range doc.Lines {
		entry, ok := files[line.File]
		if !ok {
			entry = &fileEntry{}
			files[line.File] = entry
		}
		entry.lines = append(entry.lines, line)
	}

	s.header = doc.Header
	s.files = files
	s.changed = false
	return nil
}

// MaxErrors returns the allowance map for file, or false if the file has no
// records.
//
// The returned map is the store's live cache entry. Callers must not mutate
// it; use SetMaxErrors so the dirty flag stays accurate.
func (s *Store) MaxErrors(file string) (map[string]int, bool) {
	entry, ok := s.files[file]
	if !ok {
		return nil, false
	}
	return entry.materialize(), true
}

// Filenames yields every file key with at least one record, in map order.
// Callers that need a stable order must sort.
func (s *Store) Filenames() iter.Seq[string] {
	return maps.Keys(s.files)
}

// Len returns the number of files with records.
func (s *Store) Len() int {
	return len(s.files)
}

// SetMaxErrors replaces the allowances for file.
//
// Zero counts are dropped; an empty result removes the file. Returns true and
// marks the store dirty only if the effective allowances changed.
func (s *Store) SetMaxErrors(file string, rules map[string]int) bool {
	next := make(map[string]int, len(rules))
	for rule, count := range rules {
		if count > 0 {
			next[rule] = count
		}
	}

	entry, ok := s.files[file]
	if !ok {
		if len(next) == 0 {
			return false
		}
		s.files[file] = &fileEntry{rules: next}
		s.changed = true
		return true
	}

	if maps.Equal(entry.materialize(), next) {
		return false
	}

	if len(next) == 0 {
		delete(s.files, file)
	} else {
		// Keep the original lines so unchanged rules reuse their bytes.
		entry.rules = next
	}
	s.changed = true
	return true
}

// RemoveFile drops every record for file. Returns false if there were none.
func (s *Store) RemoveFile(file string) bool {
	if _, ok := s.files[file]; !ok {
		return false
	}
	delete(s.files, file)
	s.changed = true
	return true
}

// Encode renders the current state in record format.
//
// Lines for untouched files are emitted from their original bytes. For
// materialized files, a rule whose count is unchanged also keeps its
// original bytes; everything else is freshly encoded.
func (s *Store) Encode() []byte {
	var lines []string
	for file, entry := range s.files {
		if entry.rules == nil {
			for _, l := range entry.lines {
				if l.Count > 0 {
					lines = append(lines, l.Raw)
				}
			}
			continue
		}

		original := make(map[string]record.Line, len(entry.lines))
		for _, l := range entry.lines {
			original[l.Rule] = l
		}
		for rule, count := range entry.rules {
			if count <= 0 {
				continue
			}
			if l, ok := original[rule]; ok && l.Count == count {
				lines = append(lines, l.Raw)
				continue
			}
			lines = append(lines, record.EncodeLine(file, rule, count))
		}
	}
	return record.Encode(s.header, lines)
}

// Flush writes the store to its path if it is dirty.
// Returns whether a write happened. The dirty flag is cleared only on success.
func (s *Store) Flush() (bool, error) {
	if !s.changed {
		return false, nil
	}
	if err := writeAtomic(s.path, s.Encode(), s.rename, s.now); err != nil {
		return false, fmt.Errorf("flush record %s: %w", s.path, err)
	}
	s.changed = false
	return true, nil
}

// Export returns a deep copy of all allowances as file → rule → count.
// Every file is materialized as a side effect.
func (s *Store) Export() map[string]map[string]int {
	tree := make(map[string]map[string]int, len(s.files))
	for file, entry := range s.files {
		tree[file] = maps.Clone(entry.materialize())
	}
	return tree
}

// Import replaces all allowances with tree and marks the store dirty.
// The header is kept. Zero counts and empty files are dropped. File keys
// are NFC normalized; keys that normalize to the same file are merged,
// keeping the larger count per rule.
func (s *Store) Import(tree map[string]map[string]int) {
	files := make(map[string]*fileEntry, len(tree))
	for file, rules := range tree {
		key := record.NormalizeKey(file)
		entry, ok := files[key]
		if !ok {
			entry = &fileEntry{rules: make(map[string]int, len(rules))}
		}
		for rule, count := range rules {
			if count > entry.rules[rule] {
				entry.rules[rule] = count
			}
		}
		if len(entry.rules) > 0 {
			files[key] = entry
		}
	}
	s.files = files
	s.changed = true
}

// materialize builds the rule map from raw lines on first use.
func (e *fileEntry) materialize() map[string]int {
	if e.rules == nil {
		e.rules = make(map[string]int, len(e.lines))
		for _, l := range e.lines {
			if l.Count > 0 {
				e.rules[l.Rule] = l.Count
			}
		}
	}
	return e.rules
}
