package luaforge

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"go.trai.ch/zerr"
)

// derived holds values computed from the staged source and the options.
type derived struct {
	Major  string
	Compat string
	VSYear string
	VSArch string
}

// buildState is the per-package working state threaded through a driver run.
type buildState struct {
	opts   Options
	runner Runner
	report *Reporter
	memo   *Memo

	spec   Spec
	commit string
	dir    string // root of the tree being built or installed from
	suffix string
	// cachedRepo is set while dir is the persistent git checkout.
	cachedRepo bool

	derived
	cflags    []string // compat cflags
	redefines []string

	// interp is the interpreter LuaRocks is configured against.
	interp Identity
}

// srcDir is the directory holding lua.h and the C sources.
func (st *buildState) srcDir(v *Variant) string {
	if prefix := v.SourcePrefix(st.spec.Kind); prefix != "" {
		return filepath.Join(st.dir, prefix)
	}
	return st.dir
}

func (st *buildState) run(ctx context.Context, dir string, args ...string) error {
	return st.runner.Run(ctx, dir, args...)
}

// userCFlags splits --cflags into words.
func (st *buildState) userCFlags() []string {
	return strings.Fields(st.opts.CFlags)
}

// Variant is the capability table of one installable program. The shared
// Driver calls into it; nothing else distinguishes the packages.
type Variant struct {
	Name        string // manifest key and scratch directory name
	Title       string
	DefaultRepo string

	Versions     []string
	Translations map[string]string
	Checksums    map[string]string

	// Interpreter variants derive a major version and compat, patch
	// luaconf.h and are eligible for the build cache.
	Interpreter bool

	DownloadName func(version string, opts Options) string
	DownloadURLs func(version string, opts Options) []string
	SourcePrefix func(kind Kind) string

	// MajorVersion derives the Lua major version of a release.
	MajorVersion func(version string) string
	// LocalSuffix replaces an empty version suffix for local sources.
	LocalSuffix func(major string) string
	Compat      func(requested, major string) string
	CompatFlags func(compat, major string) (cflags, redefines []string)

	// Prepare runs after the skip check and before any fetch.
	Prepare  func(st *buildState, m *Manifest) error
	Build    func(ctx context.Context, v *Variant, st *buildState) error
	Install  func(ctx context.Context, v *Variant, st *buildState) error
	Identify func(opts Options, id *Identity)
}

// variants lists the installable programs in display order.
var variants = []*Variant{luaVariant, luajitVariant, moonjitVariant, luarocksVariant}

// interpreterNames are mutually exclusive in one location.
var interpreterNames = []string{"lua", "LuaJIT", "moonjit"}

func variantByName(name string) *Variant {
	for _, v := range variants {
		if strings.EqualFold(v.Name, name) {
			return v
		}
	}
	return nil
}

func fixedPrefix(prefix string) func(Kind) string {
	return func(Kind) string { return prefix }
}

var luaVersionNumRe = regexp.MustCompile(`^\s*#define\s+LUA_VERSION_NUM\s+50(\d)\s*$`)

// majorFromSource scans lua.h for LUA_VERSION_NUM.
func majorFromSource(srcDir string) (string, error) {
	f, err := os.Open(filepath.Join(srcDir, "lua.h"))
	if err != nil {
		return "", zerr.With(zerr.Wrap(ErrMajorVersion, "couldn't read lua.h"), "dir", srcDir)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if m := luaVersionNumRe.FindStringSubmatch(scanner.Text()); m != nil {
			return "5." + m[1], nil
		}
	}
	return "", zerr.With(zerr.Wrap(ErrMajorVersion, ""), "dir", srcDir)
}

// optionsSuffix lists the non-default build options for the version suffix.
func optionsSuffix(opts Options, compat string) string {
	var parts []string
	if opts.Windows || opts.Target != opts.DefaultTarget {
		parts = append(parts, "target: "+opts.Target)
	}
	if compat != "default" {
		parts = append(parts, "compat: "+compat)
	}
	if opts.CFlags != "" {
		parts = append(parts, "cflags: "+opts.CFlags)
	}
	if opts.NoReadline {
		parts = append(parts, "readline: false")
	}
	if len(parts) == 0 {
		return ""
	}
	return " (" + strings.Join(parts, ", ") + ")"
}
