//go:build windows

package luaforge

import "time"

func setSymlinkTimes(path string, atime, mtime time.Time) {}
