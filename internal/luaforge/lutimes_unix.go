//go:build unix

package luaforge

import (
	"time"

	"golang.org/x/sys/unix"
)

// setSymlinkTimes sets the times of the link itself. Failures are ignored.
func setSymlinkTimes(path string, atime, mtime time.Time) {
	tv := []unix.Timeval{unix.NsecToTimeval(atime.UnixNano()), unix.NsecToTimeval(mtime.UnixNano())}
	_ = unix.Lutimes(path, tv)
}
