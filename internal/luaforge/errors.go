package luaforge

import (
	"errors"
	"strings"

	"go.trai.ch/zerr"
)

var (
	// ErrBadVersion is returned when a version is neither a release, a git ref nor an existing path.
	ErrBadVersion = zerr.New("bad version")
	// ErrDownloadFailed is returned when every mirror failed.
	ErrDownloadFailed = zerr.New("download failed")
	// ErrChecksumMismatch is returned when an archive does not match its pinned SHA256.
	ErrChecksumMismatch = zerr.New("SHA256 checksum mismatch")
	ErrPatch            = zerr.New("patch failed")
	// ErrCommandFailed is returned when a subprocess exits non-zero.
	ErrCommandFailed   = zerr.New("command failed")
	ErrCommandNotFound = zerr.New("command not found")
	// ErrMissingInterpreter is returned when LuaRocks is requested without Lua in the location.
	ErrMissingInterpreter = zerr.New("can't install LuaRocks")
	ErrMajorVersion       = zerr.New("couldn't infer Lua major version from lua.h")
	ErrNoCommit           = zerr.New("couldn't resolve commit")
	ErrToolchain          = zerr.New("couldn't set up MSVC toolchain")
	ErrInvalidArgs        = zerr.New("invalid arguments")
)

var sentinels = []error{
	ErrBadVersion, ErrDownloadFailed, ErrChecksumMismatch, ErrPatch, ErrCommandFailed,
	ErrCommandNotFound, ErrMissingInterpreter, ErrMajorVersion, ErrNoCommit, ErrToolchain,
	ErrInvalidArgs,
}

// describe renders err for the user. Errors are built as zerr.Wrap(sentinel, message),
// so the trailing sentinel text is dropped when a more specific message is present.
func describe(err error) string {
	msg := err.Error()
	for _, s := range sentinels {
		if errors.Is(err, s) {
			if trimmed := strings.TrimSuffix(msg, ": "+s.Error()); trimmed != "" {
				return trimmed
			}
		}
	}
	return msg
}
