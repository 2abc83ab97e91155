package diag

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	passStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	ruleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

// report writes the glyph-prefixed diagnostic lines.
type report struct {
	out io.Writer
}

func (r report) pass(format string, args ...any) {
	fmt.Fprintf(r.out, "%s "+format+"\n", append([]any{passStyle.Render("✓")}, args...)...)
}

func (r report) fail(format string, args ...any) {
	fmt.Fprintf(r.out, "%s "+format+"\n", append([]any{failStyle.Render("✗")}, args...)...)
}

func (r report) warn(format string, args ...any) {
	fmt.Fprintf(r.out, "%s "+format+"\n", append([]any{warnStyle.Render("⚠")}, args...)...)
}

func (r report) info(format string, args ...any) {
	fmt.Fprintf(r.out, format+"\n", args...)
}

func (r report) rule() {
	fmt.Fprintln(r.out, ruleStyle.Render(strings.Repeat("=", 60)))
}
