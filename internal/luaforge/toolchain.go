package luaforge

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"slices"
	"strings"

	"go.trai.ch/zerr"
)

var clVersionToVSYear = map[string]string{
	"15": "08",
	"16": "10",
	"17": "12",
	"18": "13",
	"19": "15",
}

var vsYearToVersion = map[string]string{
	"08": "9.0",
	"10": "10.0",
	"12": "11.0",
	"13": "12.0",
	"15": "14.0",
}

// vsSetupScripts are tried under <VC dir>\bin before vcvarsall.bat.
var vsSetupScripts = map[string][]string{
	"x86": {"vcvars32.bat"},
	"x64": {`amd64\vcvars64.bat`, `x86_amd64\vcvarsx86_amd64.bat`},
}

var validTargets = []string{
	"linux", "macosx", "freebsd", "mingw", "posix", "generic", "vs", "vs_32", "vs_64",
	"vs08_32", "vs08_64", "vs10_32", "vs10_64", "vs12_32", "vs12_64",
	"vs13_32", "vs13_64", "vs15_32", "vs15_64",
}

func validTarget(target string) bool {
	return slices.Contains(validTargets, target)
}

// defaultTarget picks the build target for the host platform.
func defaultTarget(goos string, lookPath func(string) bool) string {
	switch goos {
	case "linux":
		return "linux"
	case "darwin":
		return "macosx"
	case "freebsd":
		return "freebsd"
	case "windows":
		if lookPath("gcc") && !lookPath("cl") {
			return "mingw"
		}
		return "vs"
	case "openbsd", "netbsd", "dragonfly", "solaris", "illumos", "aix":
		return "posix"
	}
	return "generic"
}

var (
	clVersionRe = regexp.MustCompile(`(1[56789])\.\d+`)
	clArchRe    = regexp.MustCompile(`(x(?:86)|(?:64))`)
)

// parseCLBanner extracts the Visual Studio year and architecture (x86 or x64)
// from cl's banner.
func parseCLBanner(out string) (string, string, error) {
	version := clVersionRe.FindStringSubmatch(out)
	arch := clArchRe.FindStringSubmatch(out)
	if version == nil || arch == nil {
		return "", "", zerr.With(zerr.Wrap(ErrToolchain,
			"couldn't determine cl.exe version and architecture"), "banner", out)
	}
	if arch[1] == "64" {
		return clVersionToVSYear[version[1]], "x64", nil
	}
	return clVersionToVSYear[version[1]], arch[1], nil
}

type clInfo struct {
	year, arch string
	err        error
}

// probeCL runs cl once per run to learn the toolchain that builds interpreters.
func probeCL(ctx context.Context, runner Runner, memo *Memo) (string, string, error) {
	info := remember(memo, "cl:banner", func() clInfo {
		out, err := runner.Query(ctx, "", "cl")
		if err != nil {
			return clInfo{err: err}
		}
		year, arch, err := parseCLBanner(out)
		return clInfo{year: year, arch: arch, err: err}
	})
	return info.year, info.arch, info.err
}

// hostArch reports the architecture the plain "vs" target prefers.
func hostArch() string {
	if strings.HasSuffix(runtime.GOARCH, "64") {
		return "x64"
	}
	return "x86"
}

const envMarker = "::luaforge-env::"

// parseEnvDump reads the output of `set` printed after envMarker.
func parseEnvDump(out string) []string {
	_, dump, found := strings.Cut(out, envMarker)
	if !found {
		return nil
	}
	var env []string
	for _, line := range strings.Split(dump, "\n") {
		line = strings.TrimRight(line, "\r")
		if k, _, ok := strings.Cut(line, "="); ok && k != "" {
			env = append(env, line)
		}
	}
	return env
}

// setupMSVC makes cl available for vs targets. It returns the environment
// every later command must run with, or nil when the current one already works.
func setupMSVC(ctx context.Context, opts Options, runner Runner, report *Reporter, memo *Memo, scratch string) ([]string, error) {
	target := opts.Target
	if target == "vs" && runner.LookPath("cl") {
		report.Note("Using cl.exe found in PATH.")
		return nil, nil
	}
	if !opts.Windows {
		return nil, zerr.With(zerr.Wrap(ErrToolchain, ""), "target", target)
	}

	preferred := "x86"
	if target == "vs" {
		preferred = hostArch()
	} else if strings.HasSuffix(target, "64") {
		preferred = "x64"
	}
	arches := []string{preferred}
	if target == "vs" && preferred == "x64" {
		arches = append(arches, "x86")
	}

	versions := []string{"14.0", "12.0", "11.0", "10.0", "9.0"}
	if target != "vs" && target != "vs_32" && target != "vs_64" {
		versions = []string{vsYearToVersion[target[2:4]]}
	}

	for _, arch := range arches {
		for _, version := range versions {
			setup := vsSetupCommand(report, memo, version, arch)
			if setup == "" {
				continue
			}

			report.Step("Setting up VS %s (%s)", version, arch)
			bat := filepath.Join(scratch, "setup-msvc.bat")
			script := strings.Join([]string{"@echo off", setup, "if errorlevel 1 exit /b 1", "echo " + envMarker, "set", ""}, "\r\n")
			if err := os.WriteFile(bat, []byte(script), 0o644); err != nil {
				return nil, zerr.Wrap(err, "failed to write toolchain script")
			}

			out, err := runner.Query(ctx, scratch, bat)
			if err != nil {
				return nil, err
			}
			if env := parseEnvDump(out); len(env) > 0 {
				return env, nil
			}
		}
	}
	return nil, zerr.With(zerr.Wrap(ErrToolchain, ""), "target", target)
}

// applyEnv installs an activated toolchain environment into the process, so
// PATH lookups and every child command see it.
func applyEnv(env []string) error {
	for _, kv := range env {
		k, v, _ := strings.Cut(kv, "=")
		if err := os.Setenv(k, v); err != nil {
			return zerr.With(zerr.Wrap(err, "failed to apply toolchain environment"), "var", k)
		}
	}
	return nil
}
