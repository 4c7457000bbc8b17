package luaforge

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// styler is satisfied by *color.Theme, color.RGBColor and color.Tag
type styler interface {
	Sprintf(format string, a ...any) string
}

// Reporter prints progress for one run. Colors are used only when the
// destination is a terminal.
type Reporter struct {
	out     io.Writer
	color   bool
	verbose bool
}

func NewReporter(out io.Writer, verbose bool) *Reporter {
	return &Reporter{out: out, color: isTerminal(out), verbose: verbose}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func (r *Reporter) paint(s styler, format string, a ...any) string {
	if !r.color || s == nil {
		return fmt.Sprintf(format, a...)
	}
	return s.Sprintf(format, a...)
}

// Step prints an arrow-prefixed progress line.
func (r *Reporter) Step(format string, a ...any) {
	fmt.Fprintf(r.out, "%s%s\n", r.paint(colArrow, "-> "), r.paint(colSuccess, format, a...))
}

// Note prints a plain line.
func (r *Reporter) Note(format string, a ...any) {
	fmt.Fprintf(r.out, format+"\n", a...)
}

func (r *Reporter) Info(format string, a ...any) {
	fmt.Fprintln(r.out, r.paint(colInfo, format, a...))
}

func (r *Reporter) Warn(format string, a ...any) {
	fmt.Fprintln(r.out, r.paint(colWarn, "Warning: "+format, a...))
}

// Debugf prints only in verbose mode.
func (r *Reporter) Debugf(format string, a ...any) {
	if r.verbose {
		fmt.Fprint(r.out, r.paint(colNote, format, a...))
	}
}

func (r *Reporter) Verbose() bool { return r.verbose }

func (r *Reporter) Writer() io.Writer { return r.out }

// Error prints an error line in the error colour.
func (r *Reporter) Error(format string, a ...any) {
	fmt.Fprintln(r.out, r.paint(colError, "Error: "+format, a...))
}
