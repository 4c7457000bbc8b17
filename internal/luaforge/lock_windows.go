//go:build windows

package luaforge

func withDownloadLock(path string, fn func() error) error {
	return fn()
}
