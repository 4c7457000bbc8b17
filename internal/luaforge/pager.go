package luaforge

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"go.trai.ch/zerr"
	"golang.org/x/term"
)

// fitsTerminal reports whether lines can be printed to out without paging.
// Anything that is not a terminal always fits.
func fitsTerminal(out io.Writer, lines int) bool {
	f, ok := out.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return true
	}
	_, height, err := term.GetSize(int(f.Fd()))
	// Border plus status line.
	return err == nil && lines <= height-3
}

// formatLogLine escapes tview color tags in compiler output and highlights
// the command lines recorded by the transcript.
func formatLogLine(line string) string {
	if strings.HasPrefix(line, "$ ") {
		return "[yellow::b]" + tview.Escape(line) + "[-::-]"
	}
	return tview.Escape(line)
}

// pageBuildLog shows a build log in a scrollable view. 'g' and 'G' jump to
// the first and last line; 'q' or Esc leaves.
func pageBuildLog(out io.Writer, title string, lines []string) error {
	if fitsTerminal(out, len(lines)) {
		return printLines(out, lines)
	}

	formatted := make([]string, len(lines))
	commands := 0
	for i, line := range lines {
		formatted[i] = formatLogLine(line)
		if strings.HasPrefix(line, "$ ") {
			commands++
		}
	}

	app := tview.NewApplication()
	logView := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWrap(false).
		SetText(strings.Join(formatted, "\n"))
	logView.SetBorder(true).SetTitle(" " + title + " ")

	status := tview.NewTextView().
		SetDynamicColors(true).
		SetText(fmt.Sprintf("[gray]%d lines, %d %s  g/G top/bottom  q quit[-]",
			len(lines), commands, plural(commands, "command", "commands")))

	layout := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(logView, 0, 1, true).
		AddItem(status, 1, 0, false)

	app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyEsc {
			app.Stop()
			return nil
		}
		if event.Key() != tcell.KeyRune {
			return event
		}
		switch event.Rune() {
		case 'q':
			app.Stop()
		case 'g':
			logView.ScrollToBeginning()
		case 'G':
			logView.ScrollToEnd()
		default:
			return event
		}
		return nil
	})

	if err := app.SetRoot(layout, true).SetFocus(logView).Run(); err != nil {
		return zerr.Wrap(err, "build log viewer failed")
	}
	return nil
}

func printLines(out io.Writer, lines []string) error {
	for _, line := range lines {
		if _, err := fmt.Fprintln(out, line); err != nil {
			return err
		}
	}
	return nil
}

// showLog displays the stored build log of an installed package.
func showLog(opts Options, report *Reporter) error {
	v := variantByName(opts.Log)
	if v == nil {
		return zerr.With(zerr.Wrap(ErrInvalidArgs, "unknown package "+opts.Log), "package", opts.Log)
	}
	lines, err := readBuildLog(opts.Location, v.Name)
	if err != nil {
		return err
	}
	return pageBuildLog(report.Writer(), v.Title+" build log", lines)
}
