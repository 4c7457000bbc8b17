package luaforge

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"

	"go.trai.ch/zerr"
)

const luajitArchiveURL = "https://github.com/LuaJIT/LuaJIT/archive"

// luajitTag maps a release to its archive tag; the v2.0.1 tag is broken upstream.
func luajitTag(version string) string {
	if version == "2.0.1" {
		return "2.0.1-fixed"
	}
	return version
}

var luajitVariant = &Variant{
	Name:        "LuaJIT",
	Title:       "LuaJIT",
	DefaultRepo: "https://github.com/LuaJIT/LuaJIT",
	Versions: []string{
		"2.0.0", "2.0.1", "2.0.2", "2.0.3", "2.0.4", "2.0.5",
		"2.1.0-beta1", "2.1.0-beta2", "2.1.0-beta3",
	},
	Translations: map[string]string{
		"2":      "2.0.5",
		"2.0":    "2.0.5",
		"2.1":    "2.1.0-beta3",
		"^":      "2.0.5",
		"latest": "2.0.5",
	},
	Checksums: map[string]string{
		"LuaJIT-2.0.0.tar.gz":       "778650811bdd9fc55bbb6a0e845e4c0101001ce5ca1ab95001f0d289c61760ab",
		"LuaJIT-2.0.1-fixed.tar.gz": "d33e91f347c0d79aa4fb1bd835df282a25f7ef9c3395928a1183947667c2d6b2",
		"LuaJIT-2.0.2.tar.gz":       "7cf1bdcd89452f64ed994cff85ae32613a876543a81a88939155266558a669bc",
		"LuaJIT-2.0.3.tar.gz":       "8da3d984495a11ba1bce9a833ba60e18b532ca0641e7d90d97fafe85ff014baa",
		"LuaJIT-2.0.4.tar.gz":       "d2abdf16bd3556c41c0aaedad76b6c227ca667be8350111d037a4c54fd43abad",
		"LuaJIT-2.0.5.tar.gz":       "8bb29d84f06eb23c7ea4aa4794dbb248ede9fcb23b6989cbef81dc79352afc97",
		"LuaJIT-2.1.0-beta1.tar.gz": "3d10de34d8020d7035193013f07c93fc7f16fcf0bb28fc03f572a21a368a5f2a",
		"LuaJIT-2.1.0-beta2.tar.gz": "82e115b21aa74634b2d9f3cb3164c21f3cde7750ba3258d8820f500f6a36b651",
		"LuaJIT-2.1.0-beta3.tar.gz": "409f7fe570d3c16558e594421c47bdd130238323c9d6fd6c83dedd2aaeb082a8",
	},
	Interpreter: true,

	DownloadName: func(version string, _ Options) string {
		return "LuaJIT-" + luajitTag(version) + ".tar.gz"
	},
	DownloadURLs: func(version string, _ Options) []string {
		return []string{luajitArchiveURL + "/v" + luajitTag(version) + ".tar.gz"}
	},
	SourcePrefix: fixedPrefix("src"),

	MajorVersion: func(string) string { return "5.1" },
	Compat: func(requested, _ string) string {
		if requested == "all" || requested == "5.2" {
			return "5.2"
		}
		return "default"
	},
	CompatFlags: luajitCompatFlags,

	Build:   buildLuaJIT,
	Install: installLuaJIT,
}

// moonjit publishes no release archives, so every alias names a git tag.
var moonjitVariant = &Variant{
	Name:        "moonjit",
	Title:       "moonjit",
	DefaultRepo: "https://github.com/moonjit/moonjit",
	Translations: map[string]string{
		"2":      "@2.1.2",
		"2.1":    "@2.1.2",
		"2.1.0":  "@2.1.0",
		"2.1.1":  "@2.1.1",
		"2.1.2":  "@2.1.2",
		"2.2":    "@2.2.0",
		"2.2.0":  "@2.2.0",
		"^":      "@2.1.2",
		"latest": "@2.1.2",
	},
	Checksums:   map[string]string{},
	Interpreter: true,

	DownloadName: func(version string, _ Options) string {
		return "moonjit-" + version + ".tar.gz"
	},
	DownloadURLs: func(string, Options) []string { return nil },
	SourcePrefix: fixedPrefix("src"),

	MajorVersion: func(string) string { return "5.1" },
	Compat: func(requested, _ string) string {
		if requested == "none" {
			return "none"
		}
		return "5.2"
	},
	CompatFlags: luajitCompatFlags,

	Build:   buildLuaJIT,
	Install: installLuaJIT,
}

func luajitCompatFlags(compat, _ string) ([]string, []string) {
	if compat == "5.2" {
		return []string{"-DLUAJIT_ENABLE_LUA52COMPAT"}, nil
	}
	return nil, nil
}

// injectMSVCFlags appends flags to the LJCOMPILE assignment in msvcbuild.bat.
func injectMSVCFlags(srcDir, flags string) error {
	path := filepath.Join(srcDir, "msvcbuild.bat")
	src, err := os.ReadFile(path)
	if err != nil {
		return zerr.Wrap(err, "failed to read msvcbuild.bat")
	}

	marker := []byte("@set LJCOMPILE")
	i := bytes.Index(src, marker)
	if i < 0 {
		return nil
	}
	head, rest := src[:i+len(marker)], string(src[i+len(marker):])
	rest = strings.Replace(rest, "\r\n", " "+flags+"\r\n", 1)

	if err := os.WriteFile(path, append(head, rest...), 0o644); err != nil {
		return zerr.Wrap(err, "failed to write msvcbuild.bat")
	}
	return nil
}

func buildLuaJIT(ctx context.Context, v *Variant, st *buildState) error {
	cflags := strings.Join(concat(st.cflags, st.userCFlags()), " ")

	if st.opts.UsingCL() {
		src := st.srcDir(v)
		if cflags != "" {
			if err := injectMSVCFlags(src, cflags); err != nil {
				return err
			}
		}
		return st.run(ctx, src, filepath.Join(src, "msvcbuild.bat"))
	}

	tool := "make"
	if st.opts.Target == "mingw" && st.runner.LookPath("mingw32-make") {
		tool = "mingw32-make"
	}
	if cflags == "" {
		return st.run(ctx, st.dir, tool)
	}
	return st.run(ctx, st.dir, tool, "XCFLAGS="+cflags)
}

func installLuaJIT(_ context.Context, v *Variant, st *buildState) error {
	opts := st.opts
	src := st.srcDir(v)
	loc := opts.Location
	bin, lib := filepath.Join(loc, "bin"), filepath.Join(loc, "lib")

	arch, targetArch := "libluajit.a", "libluajit-5.1.a"
	so, targetSO := "libluajit.so", "libluajit-5.1.so.2"
	dll := ""
	if opts.Windows {
		arch, targetArch, dll = "lua51.lib", "lua51.lib", "lua51.dll"
	}

	if err := copyFiles(bin, src, dll); err != nil {
		return err
	}
	if err := copyFile(filepath.Join(src, opts.Exe("luajit")), filepath.Join(bin, opts.Exe("lua"))); err != nil {
		return zerr.Wrap(err, "failed to install "+opts.Exe("luajit"))
	}
	if err := copyFiles(filepath.Join(loc, "include"), src,
		"lua.h", "luaconf.h", "lualib.h", "lauxlib.h", "lua.hpp", "luajit.h"); err != nil {
		return err
	}

	if err := os.MkdirAll(lib, 0o755); err != nil {
		return zerr.Wrap(err, "failed to create "+lib)
	}
	if opts.Target != "mingw" {
		if err := copyFile(filepath.Join(src, arch), filepath.Join(lib, targetArch)); err != nil {
			return zerr.Wrap(err, "failed to install "+arch)
		}
	}
	if !opts.Windows {
		if err := copyFile(filepath.Join(src, so), filepath.Join(lib, targetSO)); err != nil {
			return zerr.Wrap(err, "failed to install "+so)
		}
	}

	jit := filepath.Join(loc, "share", "lua", st.Major, "jit")
	if _, err := os.Stat(jit); err == nil {
		if err := removeDir(jit); err != nil {
			return zerr.Wrap(err, "failed to remove old jit library")
		}
	}
	if err := copyDir(filepath.Join(src, "jit"), jit); err != nil {
		return zerr.Wrap(err, "failed to install jit library")
	}
	return nil
}
