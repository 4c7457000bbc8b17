package luaforge

import (
	"io"
	"os"
	"path/filepath"

	"go.trai.ch/zerr"
)

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	// O_CREATE does not change the mode of an existing file.
	return os.Chmod(dst, info.Mode().Perm())
}

// copyDir recursively copies src to dst, skipping .git directories and
// recreating symlinks rather than following them.
func copyDir(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dst, info.Mode().Perm()|0o700); err != nil {
		return err
	}

	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if entry.Name() == ".git" {
			continue
		}
		srcPath := filepath.Join(src, entry.Name())
		dstPath := filepath.Join(dst, entry.Name())

		switch {
		case entry.Type()&os.ModeSymlink != 0:
			target, err := os.Readlink(srcPath)
			if err != nil {
				return err
			}
			if err := os.Symlink(target, dstPath); err != nil {
				return err
			}
		case entry.IsDir():
			if err := copyDir(srcPath, dstPath); err != nil {
				return err
			}
		default:
			if err := copyFile(srcPath, dstPath); err != nil {
				return err
			}
		}
	}

	return nil
}

// copyFiles copies the named files from srcDir into dstDir, creating dstDir.
// Empty names are skipped so optional artifacts can be passed unconditionally.
func copyFiles(dstDir, srcDir string, names ...string) error {
	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return zerr.Wrap(err, "failed to create "+dstDir)
	}
	for _, name := range names {
		if name == "" {
			continue
		}
		dst := filepath.Join(dstDir, filepath.Base(name))
		if err := copyFile(filepath.Join(srcDir, name), dst); err != nil {
			return zerr.With(zerr.Wrap(err, "failed to install "+name), "dest", dstDir)
		}
	}
	return nil
}

// removeDir removes path, making read-only entries (git pack files on
// Windows) writable when the first attempt fails.
func removeDir(path string) error {
	if err := os.RemoveAll(path); err == nil {
		return nil
	}
	_ = filepath.Walk(path, func(p string, info os.FileInfo, err error) error {
		if err == nil && info.Mode().Perm()&0o200 == 0 {
			_ = os.Chmod(p, info.Mode().Perm()|0o200)
		}
		return nil
	})
	return os.RemoveAll(path)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
