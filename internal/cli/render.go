package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"golang.org/x/term"
)

const defaultWrap = 100

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// printReply writes a reply. On a terminal, and unless raw is set, the text
// is rendered through glamour; anything else gets the plain text.
func printReply(w io.Writer, text string, raw bool) error {
	if raw || !isTerminal(w) {
		_, err := fmt.Fprintln(w, text)
		return err
	}

	width := defaultWrap
	if f, ok := w.(*os.File); ok {
		if cols, _, err := term.GetSize(int(f.Fd())); err == nil && cols > 20 {
			width = min(cols-4, defaultWrap)
		}
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		_, err = fmt.Fprintln(w, text)
		return err
	}
	out, err := r.Render(asMarkdown(text))
	if err != nil {
		_, err = fmt.Fprintln(w, text)
		return err
	}
	_, err = io.WriteString(w, out)
	return err
}

// asMarkdown keeps report lines intact under markdown rendering: bullet
// lines become list items and every other line gets a hard break.
func asMarkdown(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "", trimmed == "---":
		case strings.HasPrefix(trimmed, "• "):
			lines[i] = "- " + strings.TrimPrefix(trimmed, "• ")
		case strings.HasPrefix(trimmed, "- "):
			lines[i] = trimmed
		default:
			lines[i] = line + "  "
		}
	}
	return strings.Join(lines, "\n")
}
