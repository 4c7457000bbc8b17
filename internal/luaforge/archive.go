package luaforge

import (
	"archive/tar"
	"compress/bzip2"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
	"github.com/ulikunitz/xz"
	"go.trai.ch/zerr"
)

var archiveSuffixes = []string{".tar.gz", ".tgz", ".tar.bz2", ".tar.xz", ".tar.zst", ".tar", ".zip"}

// stripArchiveSuffix returns name without its archive extension.
func stripArchiveSuffix(name string) string {
	for _, s := range archiveSuffixes {
		if strings.HasSuffix(name, s) {
			return strings.TrimSuffix(name, s)
		}
	}
	return name
}

// extractArchive unpacks archive into dest, dropping the single top-level
// directory that release tarballs wrap their contents in.
func extractArchive(archive, dest string) error {
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return zerr.Wrap(err, "failed to create "+dest)
	}
	if strings.HasSuffix(archive, ".zip") {
		return unzipGo(archive, dest)
	}
	return extractTar(archive, dest)
}

// within guards against entries escaping dest ("zip slip").
func within(dest, target string) bool {
	return target == dest || strings.HasPrefix(target, dest+string(os.PathSeparator))
}

// topPrefix returns "dir/" when every name lives under the same first component.
func topPrefix(names []string) string {
	prefix := ""
	for _, name := range names {
		i := strings.IndexByte(name, '/')
		if i == -1 {
			if name == strings.TrimSuffix(prefix, "/") {
				continue
			}
			return ""
		}
		if prefix == "" {
			prefix = name[:i+1]
		} else if name[:i+1] != prefix {
			return ""
		}
	}
	return prefix
}

func unzipGo(src, dest string) error {
	r, err := zip.OpenReader(src)
	if err != nil {
		return zerr.Wrap(err, "failed to open "+src)
	}
	defer r.Close()

	dest, err = filepath.Abs(dest)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(r.File))
	for _, f := range r.File {
		names = append(names, f.Name)
	}
	prefix := topPrefix(names)

	for _, f := range r.File {
		name := strings.TrimPrefix(f.Name, prefix)
		if name == "" {
			continue
		}
		fpath := filepath.Join(dest, name)
		if !within(dest, fpath) {
			return zerr.With(zerr.New("illegal file path in archive"), "entry", f.Name)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(fpath, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(fpath), 0o755); err != nil {
			return err
		}

		outFile, err := os.OpenFile(fpath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, f.Mode()|0o600)
		if err != nil {
			return err
		}
		rc, err := f.Open()
		if err != nil {
			outFile.Close()
			return err
		}
		_, err = io.Copy(outFile, rc)
		outFile.Close()
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func tarReader(path string, f *os.File) (io.Reader, func(), error) {
	switch {
	case strings.HasSuffix(path, ".tar.gz") || strings.HasSuffix(path, ".tgz"):
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return nil, nil, zerr.Wrap(err, "failed to create gzip reader for "+path)
		}
		return gz, func() { gz.Close() }, nil
	case strings.HasSuffix(path, ".tar.bz2"):
		return bzip2.NewReader(f), func() {}, nil
	case strings.HasSuffix(path, ".tar.xz"):
		r, err := xz.NewReader(f)
		if err != nil {
			return nil, nil, zerr.Wrap(err, "failed to create xz reader for "+path)
		}
		return r, func() {}, nil
	case strings.HasSuffix(path, ".tar.zst"):
		zst, err := zstd.NewReader(f)
		if err != nil {
			return nil, nil, zerr.Wrap(err, "failed to create zstd reader for "+path)
		}
		return zst, zst.Close, nil
	case strings.HasSuffix(path, ".tar"):
		return f, func() {}, nil
	}
	return nil, nil, zerr.With(zerr.New("unsupported archive format"), "archive", path)
}

// extractTar extracts a possibly compressed tarball, skipping PAX headers and
// preserving modes and timestamps.
func extractTar(path, dest string) error {
	f, err := os.Open(path)
	if err != nil {
		return zerr.Wrap(err, "failed to open archive "+path)
	}
	defer f.Close()

	r, closeReader, err := tarReader(path, f)
	if err != nil {
		return err
	}
	defer closeReader()

	dest, err = filepath.Abs(dest)
	if err != nil {
		return err
	}

	tr := tar.NewReader(r)
	var prefix string
	first := true
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return zerr.Wrap(err, "error reading tar header in "+path)
		}

		if hdr.Typeflag == tar.TypeXHeader || hdr.Typeflag == tar.TypeXGlobalHeader {
			continue
		}

		// Release tarballs start with their top directory entry.
		if first {
			first = false
			if i := strings.IndexByte(hdr.Name, '/'); i != -1 {
				prefix = hdr.Name[:i+1]
			}
		}

		name := hdr.Name
		if prefix != "" {
			if !strings.HasPrefix(name, prefix) {
				return zerr.With(zerr.New("archive has more than one top-level directory"), "archive", path)
			}
			name = strings.TrimPrefix(name, prefix)
		}
		if name == "" {
			continue
		}

		target := filepath.Join(dest, name)
		if !within(dest, target) {
			return zerr.With(zerr.New("illegal file path in archive"), "entry", hdr.Name)
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, os.FileMode(hdr.Mode).Perm()|0o700); err != nil {
				return zerr.Wrap(err, "failed to create dir "+target)
			}
		case tar.TypeReg:
			out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode).Perm()|0o600)
			if err != nil {
				return zerr.Wrap(err, "failed to create file "+target)
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return zerr.Wrap(err, "failed to write file "+target)
			}
			out.Close()
			_ = os.Chtimes(target, hdr.AccessTime, hdr.ModTime)
		case tar.TypeSymlink:
			if filepath.IsAbs(hdr.Linkname) || !within(dest, filepath.Join(filepath.Dir(target), hdr.Linkname)) {
				return zerr.With(zerr.New("illegal symlink target in archive"), "entry", hdr.Name)
			}
			if err := os.Symlink(hdr.Linkname, target); err != nil && !os.IsExist(err) {
				return zerr.Wrap(err, "failed to create symlink "+target)
			}
			setSymlinkTimes(target, hdr.AccessTime, hdr.ModTime)
		}
	}

	return nil
}
