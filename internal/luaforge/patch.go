package luaforge

import (
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"go.trai.ch/zerr"
)

// LineKind tags a hunk line.
type LineKind int

const (
	Context LineKind = iota
	Add
	Remove
)

type HunkLine struct {
	Kind LineKind
	Text string
}

// Hunk is a run of tagged lines starting at Start (1-based) in the original file.
type Hunk struct {
	Start int
	Lines []HunkLine
}

type FilePatch struct {
	Name  string
	Hunks []Hunk
}

// Patch is a set of file patches that is applied all or nothing.
type Patch struct {
	Files []FilePatch
}

var (
	patchFileRe = regexp.MustCompile(`^([\w.]+):$`)
	patchHunkRe = regexp.MustCompile(`^@@ -(\d+)`)
)

func patchError(msg string) error {
	return zerr.Wrap(ErrPatch, msg)
}

// dedent removes the longest common leading whitespace of non-blank lines.
func dedent(lines []string) []string {
	prefix := ""
	first := true
	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			continue
		}
		indent := l[:len(l)-len(strings.TrimLeft(l, " \t"))]
		if first {
			prefix, first = indent, false
			continue
		}
		for !strings.HasPrefix(indent, prefix) {
			prefix = prefix[:len(prefix)-1]
		}
	}
	out := make([]string, len(lines))
	for i, l := range lines {
		if strings.TrimSpace(l) == "" {
			out[i] = ""
		} else {
			out[i] = strings.TrimPrefix(l, prefix)
		}
	}
	return out
}

// ParsePatch parses the indented patch notation: "file.c:" headers, "@@ -N"
// hunk headers and lines prefixed with ' ', '-' or '+'. Blank lines are
// context lines for empty source lines.
func ParsePatch(text string) (*Patch, error) {
	text = strings.TrimPrefix(text, "\n")
	text = strings.TrimRight(text, " \t")
	text = strings.TrimSuffix(text, "\n")

	p := &Patch{}
	var file *FilePatch
	var hunk *Hunk

	flushHunk := func() {
		if file != nil && hunk != nil {
			file.Hunks = append(file.Hunks, *hunk)
		}
		hunk = nil
	}
	flushFile := func() {
		flushHunk()
		if file != nil {
			p.Files = append(p.Files, *file)
		}
		file = nil
	}

	for _, line := range dedent(strings.Split(text, "\n")) {
		if line == "" {
			line = " "
		}
		if m := patchFileRe.FindStringSubmatch(line); m != nil {
			flushFile()
			file = &FilePatch{Name: m[1]}
			continue
		}
		if file == nil {
			return nil, patchError("patch line outside of a file: " + line)
		}
		if line[0] == '@' {
			m := patchHunkRe.FindStringSubmatch(line)
			if m == nil {
				return nil, patchError("bad hunk header: " + line)
			}
			flushHunk()
			start, _ := strconv.Atoi(m[1])
			hunk = &Hunk{Start: start}
			continue
		}
		if hunk == nil {
			return nil, patchError("patch line outside of a hunk: " + line)
		}
		var kind LineKind
		switch line[0] {
		case ' ':
			kind = Context
		case '-':
			kind = Remove
		case '+':
			kind = Add
		default:
			return nil, patchError("bad patch line: " + line)
		}
		hunk.Lines = append(hunk.Lines, HunkLine{Kind: kind, Text: line[1:]})
	}
	flushFile()
	return p, nil
}

type lineScanner struct {
	lines []string
	next  int // 1-based number of the next line to consume
}

func (s *lineScanner) consume() (string, error) {
	if s.next > len(s.lines) {
		return "", patchError("source is too short")
	}
	s.next++
	return s.lines[s.next-2], nil
}

func splitLines(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.TrimSuffix(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

// prepare computes the patched content of fp without touching disk.
func (fp FilePatch) prepare(dir string) (string, error) {
	path := filepath.Join(dir, fp.Name)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", patchError(fp.Name + " doesn't exist")
		}
		return "", zerr.Wrap(err, "failed to read "+fp.Name)
	}

	scanner := &lineScanner{lines: splitLines(string(data)), next: 1}
	var out []string

	for _, h := range fp.Hunks {
		for scanner.next < h.Start {
			line, err := scanner.consume()
			if err != nil {
				return "", err
			}
			out = append(out, line)
		}
		for _, l := range h.Lines {
			if l.Kind == Context || l.Kind == Remove {
				line, err := scanner.consume()
				if err != nil {
					return "", err
				}
				if line != l.Text {
					return "", patchError("source is different")
				}
			}
			if l.Kind == Context || l.Kind == Add {
				out = append(out, l.Text)
			}
		}
	}
	for scanner.next <= len(scanner.lines) {
		line, _ := scanner.consume()
		out = append(out, line)
	}

	return strings.Join(out, "\n") + "\n", nil
}

// Apply verifies every file of the patch and only then rewrites them, so a
// mismatch anywhere leaves all files untouched.
func (p *Patch) Apply(dir string) error {
	contents := make([]string, len(p.Files))
	for i, fp := range p.Files {
		c, err := fp.prepare(dir)
		if err != nil {
			return err
		}
		contents[i] = c
	}

	for i, fp := range p.Files {
		path := filepath.Join(dir, fp.Name)
		info, err := os.Stat(path)
		if err != nil {
			return zerr.Wrap(err, "failed to stat "+fp.Name)
		}
		if err := os.WriteFile(path, []byte(contents[i]), info.Mode().Perm()); err != nil {
			return zerr.Wrap(err, "failed to write "+fp.Name)
		}
	}
	return nil
}
