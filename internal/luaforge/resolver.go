package luaforge

import (
	"fmt"
	"slices"
	"strings"

	"go.trai.ch/zerr"
)

// Kind is the source a version specifier resolves to.
type Kind string

const (
	KindRelease Kind = "release"
	KindGit     Kind = "git"
	KindLocal   Kind = "local"
)

// defaultRef is checked out when a git specifier names no ref.
const defaultRef = "master"

// Spec is a resolved version specifier. Only the fields of its Kind are set.
type Spec struct {
	Kind    Kind
	Version string // release
	Repo    string // git
	Ref     string // git
	Path    string // local
}

func (s Spec) String() string {
	switch s.Kind {
	case KindRelease:
		return s.Version
	case KindGit:
		return s.Repo + "@" + s.Ref
	default:
		return s.Path
	}
}

// Resolve classifies raw after a single alias substitution: a supported
// release, then anything containing '@' as a git reference, then a local
// directory that must exist.
func Resolve(raw string, aliases map[string]string, supported []string, defaultRepo string, exists func(string) bool) (Spec, error) {
	version := raw
	if alias, ok := aliases[raw]; ok {
		version = alias
	}

	if slices.Contains(supported, version) {
		return Spec{Kind: KindRelease, Version: version}, nil
	}

	if repo, ref, ok := strings.Cut(version, "@"); ok {
		if repo == "" {
			repo = defaultRepo
		}
		if ref == "" {
			ref = defaultRef
		}
		return Spec{Kind: KindGit, Repo: repo, Ref: ref}, nil
	}

	if !exists(version) {
		return Spec{}, zerr.With(zerr.Wrap(ErrBadVersion, fmt.Sprintf("version %s", raw)), "version", raw)
	}
	return Spec{Kind: KindLocal, Path: version}, nil
}
