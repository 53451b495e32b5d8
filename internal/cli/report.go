package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/seatbelt/internal/lint"
)

// StdinReport is the report argument that reads from standard input.
const StdinReport = "-"

// loadReports reads ESLint-style JSON reports concurrently and merges them
// into one result per file, ordered by path. Relative file paths are
// resolved against dir.
func loadReports(ctx context.Context, paths []string, stdin io.Reader, dir string) ([]lint.FileResult, error) {
	if len(paths) == 0 {
		paths = []string{StdinReport}
	}
	if n := countStdin(paths); n > 1 {
		return nil, fmt.Errorf("stdin (%q) can be read only once, got it %d times", StdinReport, n)
	}

	reports := make([][]lint.FileResult, len(paths))
	g, gCtx := errgroup.WithContext(ctx)
	for i, path := range paths {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			results, err := readReport(path, stdin, dir)
			if err != nil {
				return err
			}
			reports[i] = results
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return mergeResults(dir, reports...), nil
}

func countStdin(paths []string) int {
	n := 0
	for _, p := range paths {
		if p == StdinReport {
			n++
		}
	}
	return n
}

func readReport(path string, stdin io.Reader, dir string) ([]lint.FileResult, error) {
	if path == StdinReport {
		results, err := lint.ParseReport(stdin)
		if err != nil {
			return nil, fmt.Errorf("report <stdin>: %w", err)
		}
		return results, nil
	}

	if !filepath.IsAbs(path) {
		path = filepath.Join(dir, path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("report %s: %w", path, err)
	}
	defer f.Close()

	results, err := lint.ParseReport(f)
	if err != nil {
		return nil, fmt.Errorf("report %s: %w", path, err)
	}
	return results, nil
}

// mergeResults concatenates the diagnostics of entries naming the same file,
// so each file is reconciled exactly once.
func mergeResults(dir string, reports ...[]lint.FileResult) []lint.FileResult {
	byPath := make(map[string]*lint.FileResult)
	for _, results := range reports {
		for _, r := range results {
			path := r.FilePath
			if !filepath.IsAbs(path) {
				path = filepath.Join(dir, path)
			}
			path = filepath.Clean(path)

			merged, ok := byPath[path]
			if !ok {
				merged = &lint.FileResult{FilePath: path}
				byPath[path] = merged
			}
			merged.Messages = append(merged.Messages, r.Messages...)
			merged.SuppressedMessages = append(merged.SuppressedMessages, r.SuppressedMessages...)
		}
	}

	out := make([]lint.FileResult, 0, len(byPath))
	for _, r := range byPath {
		out = append(out, *r)
	}
	slices.SortFunc(out, func(a, b lint.FileResult) int {
		return strings.Compare(a.FilePath, b.FilePath)
	})
	return out
}
