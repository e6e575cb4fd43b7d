// Package console prints compiler diagnostics: colored when stderr is a
// terminal, plain otherwise, and silent for informational output in quiet
// mode.
package console

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/x/ansi"
	"golang.org/x/term"
)

var (
	errorStyle = ansi.Style{}.Bold().ForegroundColor(ansi.Red)
	warnStyle  = ansi.Style{}.ForegroundColor(ansi.Yellow)
	infoStyle  = ansi.Style{}.ForegroundColor(ansi.Cyan)
)

// Console writes leveled diagnostics to one writer.
type Console struct {
	w     io.Writer
	color bool
	quiet bool
}

// New builds a console on w. Color is enabled when w is a terminal.
func New(w io.Writer, quiet bool) *Console {
	color := false
	if f, ok := w.(*os.File); ok {
		color = term.IsTerminal(int(f.Fd()))
	}
	return &Console{w: w, color: color, quiet: quiet}
}

// WithColor overrides color detection, for tests.
func (c *Console) WithColor(on bool) *Console {
	c.color = on
	return c
}

func (c *Console) styled(s ansi.Style, text string) string {
	if !c.color {
		return text
	}
	return s.Styled(text)
}

// Infof prints informational output, suppressed in quiet mode.
func (c *Console) Infof(format string, args ...any) {
	if c.quiet {
		return
	}
	fmt.Fprintf(c.w, c.styled(infoStyle, format)+"\n", args...)
}

// Warnf prints a warning.
func (c *Console) Warnf(format string, args ...any) {
	fmt.Fprintf(c.w, "%s "+format+"\n", append([]any{c.styled(warnStyle, "Warning:")}, args...)...)
}

// Errorf prints an error.
func (c *Console) Errorf(format string, args ...any) {
	fmt.Fprintf(c.w, "%s "+format+"\n", append([]any{c.styled(errorStyle, "Error:")}, args...)...)
}
