//go:build !windows

package luaforge

import (
	"os"

	"go.trai.ch/zerr"
	"golang.org/x/sys/unix"
)

// withDownloadLock holds an exclusive lock on path+".lock" while fn runs.
func withDownloadLock(path string, fn func() error) error {
	lockPath := path + ".lock"
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return zerr.Wrap(err, "failed to create lock file")
	}
	defer f.Close()

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		return zerr.Wrap(err, "failed to acquire lock for download")
	}
	defer unix.Flock(int(f.Fd()), unix.LOCK_UN)

	err = fn()
	if fileExists(path) {
		_ = os.Remove(lockPath)
	}
	return err
}
