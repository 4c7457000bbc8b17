package luaforge

import (
	"context"
	"os"
	"path/filepath"

	"go.trai.ch/zerr"
)

type request struct {
	v   *Variant
	raw string
}

// requests lists the packages asked for, interpreters before LuaRocks.
func requests(opts Options) []request {
	var out []request
	for _, r := range []request{
		{luaVariant, opts.Lua},
		{luajitVariant, opts.LuaJIT},
		{moonjitVariant, opts.MoonJIT},
		{luarocksVariant, opts.LuaRocks},
	} {
		if r.raw != "" {
			out = append(out, r)
		}
	}
	return out
}

// installPrograms runs every requested install against opts.Location.
func installPrograms(ctx context.Context, opts Options, report *Reporter) error {
	return installWith(ctx, opts, report, nil)
}

// installWith is installPrograms with an injectable runner.
func installWith(ctx context.Context, opts Options, report *Reporter, runner Runner) error {
	scratch, err := os.MkdirTemp("", "luaforge-")
	if err != nil {
		return zerr.Wrap(err, "failed to create scratch directory")
	}
	defer func() {
		if err := removeDir(scratch); err != nil {
			report.Debugf("failed to remove %s: %v\n", scratch, err)
		}
	}()

	memo := NewMemo()
	transcript := &Transcript{}
	if runner == nil {
		runner = NewCommandRunner(NewExecutor(), report, memo, transcript)
	}

	reqs := requests(opts)
	if opts.UsingCL() && (opts.Lua != "" || opts.LuaJIT != "" || opts.MoonJIT != "") {
		env, err := setupMSVC(ctx, opts, runner, report, memo, scratch)
		if err != nil {
			return err
		}
		if err := applyEnv(env); err != nil {
			return err
		}
	}

	m := LoadManifest(opts.Location)

	if err := os.MkdirAll(filepath.Join(opts.Location, "bin"), 0o755); err != nil {
		return zerr.Wrap(err, "failed to create bin directory")
	}
	if err := writeActivationScripts(opts); err != nil {
		return err
	}

	sources := NewSources(opts, runner, report, memo, NewDownloader(opts.Timeout, report), scratch)

	for _, r := range reqs {
		if r.v.Interpreter {
			for _, name := range interpreterNames {
				if name != r.v.Name {
					m.Delete(name)
				}
			}
		}

		transcript.Reset()
		changed, err := NewDriver(r.v, opts, sources, runner, report, memo).Install(ctx, r.raw, m)
		if err != nil {
			return err
		}
		if !changed {
			continue
		}

		if err := m.Save(opts.Location); err != nil {
			return err
		}
		if err := transcript.Save(opts.Location, r.v.Name); err != nil {
			report.Warn("couldn't save build log: %s", describe(err))
		}
	}

	report.Note("Done.")
	return nil
}
