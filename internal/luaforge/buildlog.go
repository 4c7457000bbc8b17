package luaforge

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ulikunitz/xz"
	"go.trai.ch/zerr"
)

// Transcript collects the commands run for one package and their output.
type Transcript struct {
	buf bytes.Buffer
}

func (t *Transcript) Command(line string) {
	if t == nil {
		return
	}
	t.buf.WriteString("$ " + line + "\n")
}

func (t *Transcript) Write(p []byte) (int, error) {
	if t == nil {
		return len(p), nil
	}
	return t.buf.Write(p)
}

func (t *Transcript) Reset() {
	if t != nil {
		t.buf.Reset()
	}
}

func logPath(location, name string) string {
	return filepath.Join(location, filepath.FromSlash(logsDir), name+".log.xz")
}

// Save writes the transcript xz-compressed to the package's log file.
func (t *Transcript) Save(location, name string) error {
	path := logPath(location, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return zerr.Wrap(err, "failed to create log directory")
	}

	f, err := os.Create(path)
	if err != nil {
		return zerr.Wrap(err, "failed to create build log")
	}
	defer f.Close()

	w, err := xz.NewWriter(f)
	if err != nil {
		return zerr.Wrap(err, "failed to create xz writer")
	}
	if _, err := w.Write(t.buf.Bytes()); err != nil {
		w.Close()
		return zerr.Wrap(err, "failed to write build log")
	}
	return w.Close()
}

// readBuildLog returns the lines of a stored build log.
func readBuildLog(location, name string) ([]string, error) {
	f, err := os.Open(logPath(location, name))
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, "no build log for "+name), "location", location)
	}
	defer f.Close()

	r, err := xz.NewReader(f)
	if err != nil {
		return nil, zerr.Wrap(err, "corrupt build log")
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, zerr.Wrap(err, "corrupt build log")
	}
	return strings.Split(strings.TrimRight(string(data), "\n"), "\n"), nil
}
