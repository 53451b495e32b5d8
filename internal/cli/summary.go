package cli

import (
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/roach88/seatbelt/internal/session"
)

var (
	colorTeal  = lipgloss.Color("#20B9B4")
	colorMuted = lipgloss.Color("#2C4A54")
	colorWarn  = lipgloss.Color("#F4D03F")

	summaryStyles = struct {
		Title lipgloss.Style
		Rule  lipgloss.Style
		Count lipgloss.Style
		Muted lipgloss.Style
		Box   lipgloss.Style
	}{
		Title: lipgloss.NewStyle().Bold(true).Foreground(colorTeal),
		Rule:  lipgloss.NewStyle().Foreground(colorWarn),
		Count: lipgloss.NewStyle().Bold(true),
		Muted: lipgloss.NewStyle().Foreground(colorMuted),
		Box: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorTeal).
			Padding(0, 1),
	}
)

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// writeRunSummary prints what the run changed and, if verbose logging was
// used, how many errors each record still allows.
func (e *runEnv) writeRunSummary(w io.Writer, result CheckResult) {
	s := result.Stats
	var parts []string
	if s.Tightened > 0 {
		parts = append(parts, fmt.Sprintf("%d tightened", s.Tightened))
	}
	if s.Loosened > 0 {
		parts = append(parts, fmt.Sprintf("%d loosened", s.Loosened))
	}
	for _, path := range slices.Sorted(maps.Keys(result.Removed)) {
		n := len(result.Removed[path])
		parts = append(parts, fmt.Sprintf("%d deleted %s dropped from %s", n, plural(n, "file", "files"), e.relPath(path)))
	}
	if result.Inconsistent {
		parts = append(parts, "record out of date (frozen)")
	}
	if len(parts) > 0 {
		fmt.Fprintf(w, "seatbelt: %s\n", strings.Join(parts, ", "))
	}

	if len(result.Usage) > 0 {
		fmt.Fprint(w, e.renderUsage(result.Usage, isTerminal(w)))
	}
}

// renderUsage formats the per-rule allowance totals of each record.
func (e *runEnv) renderUsage(usage []session.Usage, styled bool) string {
	style := func(s lipgloss.Style, text string) string {
		if !styled {
			return text
		}
		return s.Render(text)
	}

	var b strings.Builder
	for _, u := range usage {
		fmt.Fprintf(&b, "%s: %s allowed %s in %d %s\n",
			style(summaryStyles.Title, e.relPath(u.RecordFile)),
			style(summaryStyles.Count, fmt.Sprint(u.Total)),
			plural(u.Total, "error", "errors"),
			u.Files, plural(u.Files, "file", "files"))

		width := 0
		for _, r := range u.Rules {
			width = max(width, len(r.Rule))
		}
		for _, r := range u.Rules {
			fmt.Fprintf(&b, "  %s  %s %s\n",
				style(summaryStyles.Rule, r.Rule+strings.Repeat(" ", width-len(r.Rule))),
				style(summaryStyles.Count, fmt.Sprintf("%4d", r.Allowed)),
				style(summaryStyles.Muted, fmt.Sprintf("in %d %s", r.Files, plural(r.Files, "file", "files"))))
		}
	}
	if !styled {
		return b.String()
	}
	return summaryStyles.Box.Render(strings.TrimSuffix(b.String(), "\n")) + "\n"
}
