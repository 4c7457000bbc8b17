package luaforge

import (
	"context"
	"errors"
	"fmt"

	"go.trai.ch/zerr"
)

// Driver installs one variant. It is the only place that sequences
// resolution, staging, the skip check, the build cache, building and
// installation.
type Driver struct {
	v       *Variant
	opts    Options
	sources *Sources
	runner  Runner
	report  *Reporter
	memo    *Memo
}

func NewDriver(v *Variant, opts Options, sources *Sources, runner Runner, report *Reporter, memo *Memo) *Driver {
	return &Driver{v: v, opts: opts, sources: sources, runner: runner, report: report, memo: memo}
}

// Install brings the requested version into the location. It returns false
// when an identical installation was already recorded in m, and records the
// new identity in m otherwise.
func (d *Driver) Install(ctx context.Context, raw string, m *Manifest) (bool, error) {
	v := d.v
	st, err := d.resolve(ctx, raw)
	if err != nil {
		return false, err
	}

	id := ComputeIdentity(v, d.opts, st.spec, st.commit, st.derived)

	if !d.opts.IgnoreInstalled && st.spec.Kind != KindLocal {
		if prev, ok := m.Get(v.Name); ok && prev.Equal(id) {
			d.report.Step("%s%s already installed", v.Title, st.suffix)
			return false, nil
		}
	}

	if v.Prepare != nil {
		if err := v.Prepare(st, m); err != nil {
			return false, err
		}
	}

	if err := d.build(ctx, st, id); err != nil {
		return false, err
	}

	if v.Interpreter {
		d.report.Step("Installing %s%s", v.Title, st.suffix)
	}
	if err := v.Install(ctx, v, st); err != nil {
		return false, err
	}

	m.Set(v.Name, id)
	return true, nil
}

// resolve classifies raw, stages git and local sources and derives the
// interpreter settings that feed the identity.
func (d *Driver) resolve(ctx context.Context, raw string) (*buildState, error) {
	v := d.v
	spec, err := Resolve(raw, v.Translations, v.Versions, v.DefaultRepo, d.memo.Exists)
	if err != nil {
		if errors.Is(err, ErrBadVersion) {
			return nil, zerr.With(zerr.Wrap(ErrBadVersion, fmt.Sprintf("bad %s version %s", v.Title, raw)), "version", raw)
		}
		return nil, err
	}
	d.report.Debugf("Resolved %s %s to %s source %s\n", v.Title, raw, spec.Kind, spec)

	st := &buildState{opts: d.opts, runner: d.runner, report: d.report, memo: d.memo, spec: spec}

	switch spec.Kind {
	case KindRelease:
		st.suffix = " " + spec.Version
	case KindGit:
		dir, cached, err := d.sources.stageGit(ctx, v, spec.Repo, spec.Ref)
		if err != nil {
			return nil, err
		}
		commit, err := d.sources.headCommit(ctx, dir)
		if err != nil {
			return nil, err
		}
		st.dir, st.cachedRepo, st.commit = dir, cached, commit
		st.suffix = " @" + shortCommit(commit)
	case KindLocal:
		dir, err := d.sources.stageLocal(v, spec.Path)
		if err != nil {
			return nil, err
		}
		st.dir = dir
	}

	if !v.Interpreter {
		return st, nil
	}

	if spec.Kind == KindRelease {
		st.Major = v.MajorVersion(spec.Version)
	} else if st.Major, err = majorFromSource(st.srcDir(v)); err != nil {
		return nil, err
	}

	if st.suffix == "" && v.LocalSuffix != nil {
		st.suffix = v.LocalSuffix(st.Major)
	}
	st.Compat = v.Compat(d.opts.Compat, st.Major)
	st.suffix += optionsSuffix(d.opts, st.Compat)

	path, cpath := packagePaths(d.opts, st.Major)
	st.redefines = pathRedefines(path, cpath)
	compatCFlags, compatRedefines := v.CompatFlags(st.Compat, st.Major)
	st.cflags = compatCFlags
	st.redefines = append(st.redefines, compatRedefines...)

	if d.opts.UsingCL() {
		if st.VSYear, st.VSArch, err = probeCL(ctx, d.runner, d.memo); err != nil {
			return nil, err
		}
	}
	return st, nil
}

func shortCommit(commit string) string {
	if len(commit) > 7 {
		return commit[:7]
	}
	return commit
}

// build produces the tree to install from: a cached build when one matches
// id, otherwise a fresh fetch and compile that is then cached.
func (d *Driver) build(ctx context.Context, st *buildState, id Identity) error {
	v := d.v

	var cache *BuildCache
	if v.Interpreter && d.opts.Builds != "" && st.spec.Kind != KindLocal {
		cache = &BuildCache{Root: d.opts.Builds}
		if tree, ok := cache.Lookup(id); ok {
			d.report.Step("Building %s%s (cached)", v.Title, st.suffix)
			st.dir = tree
			return nil
		}
	}

	if err := d.fetch(ctx, st); err != nil {
		return err
	}

	if v.Interpreter {
		d.report.Step("Building %s%s", v.Title, st.suffix)
		if err := rewriteLuaconf(st.srcDir(v), st.redefines); err != nil {
			return err
		}
	}
	if err := v.Build(ctx, v, st); err != nil {
		return err
	}

	if cache != nil {
		if err := cache.Store(id, st.dir); err != nil {
			return err
		}
	}
	return nil
}

// fetch makes st.dir a private, writable source tree.
func (d *Driver) fetch(ctx context.Context, st *buildState) error {
	switch {
	case st.spec.Kind == KindRelease:
		dir, err := d.sources.fetchArchive(ctx, d.v, st.spec.Version, st.suffix)
		if err != nil {
			return err
		}
		st.dir = dir
	case st.cachedRepo:
		dir, err := d.sources.detach(d.v, st.dir)
		if err != nil {
			return err
		}
		st.dir, st.cachedRepo = dir, false
	}
	return nil
}
