package luaforge

import (
	"context"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"slices"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.trai.ch/zerr"
)

var compatChoices = []string{"default", "none", "all", "5.1", "5.2", "5.3"}

// flagValues holds the raw command line before it is frozen into Options.
type flagValues struct {
	lua, luajit, moonjit, luarocks string

	show            bool
	log             string
	ignoreInstalled bool
	compat          string
	patch           bool
	cflags          string
	target          string
	noReadline      bool
	timeout         int
	downloads       string
	noGitCache      bool
	ignoreChecksums bool
	builds          string
	verbose         bool
	config          string
}

// CLI is the luaforge command line.
type CLI struct {
	out     io.Writer
	flags   flagValues
	rootCmd *cobra.Command

	// lookPath and goos describe the host; tests replace them.
	lookPath func(string) bool
	goos     string
	// install is swapped out in tests that only exercise option handling.
	install func(ctx context.Context, opts Options, report *Reporter) error
}

func New(out io.Writer) *CLI {
	c := &CLI{
		out: out,
		lookPath: func(name string) bool {
			_, err := exec.LookPath(name)
			return err == nil
		},
		goos:    runtime.GOOS,
		install: installPrograms,
	}

	rootCmd := &cobra.Command{
		Use:           "luaforge <location>",
		Short:         "Install Lua, LuaJIT, moonjit and LuaRocks into a local directory",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version + " (" + buildDate + ")",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, args[0])
		},
	}
	rootCmd.SetOut(out)

	f := rootCmd.Flags()
	f.StringVarP(&c.flags.lua, "lua", "l", "", "Version of PUC-Rio Lua to install: a release, <repo>@<ref> or a local path")
	f.StringVarP(&c.flags.luajit, "luajit", "j", "", "Version of LuaJIT to install")
	f.StringVarP(&c.flags.moonjit, "moonjit", "m", "", "Version of moonjit to install")
	f.StringVarP(&c.flags.luarocks, "luarocks", "r", "", "Version of LuaRocks to install")
	f.BoolVar(&c.flags.show, "show", false, "Show programs installed in <location>, possibly after installing new ones")
	f.StringVar(&c.flags.log, "log", "", "Show the build log of an installed package (lua, LuaJIT, moonjit or luarocks)")
	f.BoolVarP(&c.flags.ignoreInstalled, "ignore-installed", "i", false, "Install even if the requested version is already present")
	f.StringVar(&c.flags.compat, "compat", "default", "Compatibility flags for Lua: default, none, all, 5.1, 5.2 or 5.3")
	f.BoolVar(&c.flags.patch, "patch", false, "Apply upstream bug fixes to PUC-Rio Lua when available")
	f.StringVar(&c.flags.cflags, "cflags", "", "Additional C compiler options for Lua and LuaJIT")
	f.StringVar(&c.flags.target, "target", "", "Build target: linux, macosx, freebsd, mingw, posix, generic, vs, vs_XX or vsXX_YY")
	f.BoolVar(&c.flags.noReadline, "no-readline", false, "Build PUC-Rio Lua without readline")
	f.IntVar(&c.flags.timeout, "timeout", 60, "Download timeout in seconds")
	f.StringVar(&c.flags.downloads, "downloads", "", "Cache downloads and default git repos in this directory")
	f.BoolVar(&c.flags.noGitCache, "no-git-cache", false, "Do not cache default git repos")
	f.BoolVar(&c.flags.ignoreChecksums, "ignore-checksums", false, "Warn instead of failing on checksum mismatches")
	f.StringVar(&c.flags.builds, "builds", "", "Cache Lua and LuaJIT builds in this directory")
	f.BoolVar(&c.flags.verbose, "verbose", false, "Show executed commands and their output")
	f.StringVar(&c.flags.config, "config", defaultConfigPath(), "Configuration file")

	c.rootCmd = rootCmd
	return c
}

// Execute runs the root command with the given context.
func (c *CLI) Execute(ctx context.Context) error {
	c.rootCmd.SetContext(ctx)
	return c.rootCmd.Execute()
}

// SetArgs sets the arguments for the root command. Used for testing.
func (c *CLI) SetArgs(args []string) {
	c.rootCmd.SetArgs(args)
}

func (c *CLI) run(cmd *cobra.Command, location string) error {
	cfg, err := loadConfig(c.flags.config)
	if err != nil {
		return zerr.With(zerr.Wrap(err, "failed to load config"), "path", c.flags.config)
	}

	opts, err := c.buildOptions(location, cfg, cmd.Flags().Changed)
	if err != nil {
		return err
	}

	report := NewReporter(c.out, opts.Verbose)
	ctx := cmd.Context()

	if opts.Requested() {
		if err := c.install(ctx, opts, report); err != nil {
			return err
		}
	}
	if opts.Log != "" {
		if err := showLog(opts, report); err != nil {
			return err
		}
	}
	if opts.Show {
		showLocation(opts, report)
	}
	return nil
}

func invalidArgs(msg string) error {
	return zerr.Wrap(ErrInvalidArgs, msg)
}

// buildOptions validates the flags and freezes them, with config and
// environment filling what the command line leaves unset.
func (c *CLI) buildOptions(location string, cfg *Config, changed func(string) bool) (Options, error) {
	f := c.flags

	interpreters := 0
	for _, v := range []string{f.lua, f.luajit, f.moonjit} {
		if v != "" {
			interpreters++
		}
	}
	if interpreters == 0 && f.luarocks == "" && !f.show && f.log == "" {
		return Options{}, invalidArgs("a version of Lua, LuaJIT, moonjit, or LuaRocks needs to be specified unless --show or --log is used")
	}
	if interpreters > 1 {
		return Options{}, invalidArgs("can't install more than one of PUC-Rio Lua, LuaJIT and moonjit")
	}
	if !slices.Contains(compatChoices, f.compat) {
		return Options{}, zerr.With(invalidArgs("invalid --compat value "+f.compat), "compat", f.compat)
	}

	def := defaultTarget(c.goos, c.lookPath)
	target := f.target
	if target == "" {
		target = cfg.get("LUAFORGE_TARGET", def)
	}
	if !validTarget(target) {
		return Options{}, zerr.With(invalidArgs("invalid --target value "+target), "target", target)
	}

	timeout := cfg.duration("LUAFORGE_TIMEOUT", defaultTimeout)
	if changed("timeout") {
		if f.timeout <= 0 {
			return Options{}, invalidArgs("--timeout must be positive")
		}
		timeout = time.Duration(f.timeout) * time.Second
	}

	downloads := f.downloads
	if !changed("downloads") {
		downloads = cfg.get("LUAFORGE_DOWNLOADS", defaultDownloads())
	}
	builds := f.builds
	if !changed("builds") {
		builds = cfg.get("LUAFORGE_BUILDS", "")
	}

	opts := Options{
		Lua:             f.lua,
		LuaJIT:          f.luajit,
		MoonJIT:         f.moonjit,
		LuaRocks:        f.luarocks,
		Show:            f.show,
		Log:             f.log,
		IgnoreInstalled: f.ignoreInstalled,
		Patch:           f.patch,
		NoReadline:      f.noReadline,
		NoGitCache:      f.noGitCache,
		IgnoreChecksums: f.ignoreChecksums,
		Verbose:         f.verbose,
		Compat:          f.compat,
		CFlags:          f.cflags,
		Target:          target,
		Timeout:         timeout,
		Mirrors:         loadMirrors(cfg),
		Windows:         c.goos == "windows",
		DefaultTarget:   def,
	}

	var err error
	if opts.Location, err = filepath.Abs(location); err != nil {
		return Options{}, zerr.Wrap(err, "invalid location")
	}
	if downloads != "" {
		if opts.Downloads, err = filepath.Abs(downloads); err != nil {
			return Options{}, zerr.Wrap(err, "invalid downloads directory")
		}
	}
	if builds != "" {
		if opts.Builds, err = filepath.Abs(builds); err != nil {
			return Options{}, zerr.Wrap(err, "invalid builds directory")
		}
	}
	return opts, nil
}

// Main is the process entry point.
func Main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stderr := NewReporter(os.Stderr, false)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigs:
			stderr.Warn("received %v, cancelling", sig)
			cancel()
		case <-ctx.Done():
			return
		}
		// A second signal does not wait for the running command.
		<-sigs
		stderr.Error("second interrupt received, exiting")
		os.Exit(130)
	}()

	if err := New(os.Stdout).Execute(ctx); err != nil {
		stderr.Error("%s", describe(err))
		os.Exit(1)
	}
}
