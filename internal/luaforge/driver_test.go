package luaforge

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunner pretends to be a toolchain: it records commands and creates the
// files compilers and archivers would have produced.
type fakeRunner struct {
	mu       sync.Mutex
	commands []string
	queries  map[string]string
	// clone populates the destination of a git clone.
	clone func(dest string)
}

func (f *fakeRunner) Run(_ context.Context, dir string, args ...string) error {
	f.mu.Lock()
	f.commands = append(f.commands, strings.Join(args, " "))
	f.mu.Unlock()

	touch := func(name string) error {
		if !filepath.IsAbs(name) {
			name = filepath.Join(dir, name)
		}
		return os.WriteFile(name, []byte("built"), 0o755)
	}

	switch {
	case len(args) > 2 && args[0] == "ar":
		return touch(args[2])
	case len(args) > 2 && args[0] == "git" && args[1] == "clone":
		dest := args[len(args)-1]
		if err := os.MkdirAll(dest, 0o755); err != nil {
			return err
		}
		if f.clone != nil {
			f.clone(dest)
		}
		return nil
	}
	if i := slices.Index(args, "-o"); i >= 0 && i+1 < len(args) {
		return touch(args[i+1])
	}
	return nil
}

func (f *fakeRunner) Query(_ context.Context, _ string, args ...string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	line := strings.Join(args, " ")
	f.commands = append(f.commands, line)
	return f.queries[line], nil
}

func (f *fakeRunner) LookPath(string) bool { return false }

func (f *fakeRunner) ran(prefix string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.commands {
		if strings.HasPrefix(c, prefix) {
			return true
		}
	}
	return false
}

func (f *fakeRunner) reset() {
	f.mu.Lock()
	f.commands = nil
	f.mu.Unlock()
}

func luaSourceFiles(prefix string, versionNum string) []archiveEntry {
	return []archiveEntry{
		{name: prefix + "/", dir: true},
		{name: prefix + "/src/lua.h", body: "#define LUA_VERSION_NUM\t" + versionNum + "\n"},
		{name: prefix + "/src/luaconf.h", body: "#ifndef lconfig_h\n#define lconfig_h\n#endif\n"},
		{name: prefix + "/src/lualib.h", body: ""},
		{name: prefix + "/src/lauxlib.h", body: ""},
		{name: prefix + "/src/lapi.c", body: ""},
		{name: prefix + "/src/lua.c", body: ""},
		{name: prefix + "/src/luac.c", body: ""},
		{name: prefix + "/src/print.c", body: ""},
		{name: prefix + "/etc/lua.hpp", body: ""},
	}
}

type installFixture struct {
	opts   Options
	runner *fakeRunner
	srv    string
}

func newInstallFixture(t *testing.T) *installFixture {
	t.Helper()

	dir := t.TempDir()
	luaArchive := filepath.Join(dir, "lua.tar.gz")
	writeTarGz(t, luaArchive, luaSourceFiles("lua-5.1.5", "501"))
	rocksArchive := filepath.Join(dir, "luarocks.tar.gz")
	writeTarGz(t, rocksArchive, []archiveEntry{
		{name: "luarocks-2.4.4/", dir: true},
		{name: "luarocks-2.4.4/configure", body: "#!/bin/sh\n"},
		{name: "luarocks-2.4.4/Makefile", body: "build:\n"},
	})

	read := func(p string) []byte {
		data, err := os.ReadFile(p)
		require.NoError(t, err)
		return data
	}
	srv := serveFiles(t, map[string][]byte{
		"/lua-5.1.5.tar.gz":      read(luaArchive),
		"/luarocks-2.4.4.tar.gz": read(rocksArchive),
	})

	return &installFixture{
		opts: Options{
			Location:        filepath.Join(t.TempDir(), "env"),
			Target:          "linux",
			DefaultTarget:   "linux",
			Compat:          "default",
			IgnoreChecksums: true,
			NoGitCache:      true,
			Timeout:         5 * time.Second,
			Builds:          filepath.Join(t.TempDir(), "builds"),
			Mirrors:         []Mirror{{Name: "TEST", URL: srv.URL, Type: "http"}},
		},
		runner: &fakeRunner{},
		srv:    srv.URL,
	}
}

func TestInstall_LuaRelease(t *testing.T) {
	fx := newInstallFixture(t)
	ctx := context.Background()
	opts := fx.opts
	opts.Lua = "5.1"

	report, out := newTestReporter()
	require.NoError(t, installWith(ctx, opts, report, fx.runner))

	log := out.String()
	assert.Contains(t, log, "-> Fetching Lua 5.1.5 from "+fx.srv+"/lua-5.1.5.tar.gz\n")
	assert.Contains(t, log, "Skipping 1 patch, use --patch to apply it\n")
	assert.Contains(t, log, "-> Building Lua 5.1.5\n")
	assert.Contains(t, log, "-> Installing Lua 5.1.5\n")
	assert.True(t, strings.HasSuffix(log, "Done.\n"))

	loc := opts.Location
	for _, f := range []string{"bin/lua", "bin/luac", "bin/activate", "include/lua.h", "include/lua.hpp", "lib/liblua51.a"} {
		assert.FileExists(t, filepath.Join(loc, filepath.FromSlash(f)))
	}
	assert.Contains(t, readFile(t, filepath.Join(loc, "include", "luaconf.h")),
		`#define LUA_PATH_DEFAULT "./?.lua;`+loc)
	assert.True(t, fx.runner.ran("gcc -O2 -Wall -Wextra -DLUA_USE_POSIX -DLUA_USE_DLOPEN -DLUA_USE_READLINE -c -o lapi.o lapi.c"))
	assert.FileExists(t, logPath(loc, "lua"))

	id, ok := LoadManifest(loc).Get("lua")
	require.True(t, ok)
	assert.Equal(t, "5.1.5", id.Version)
	assert.Equal(t, "5.1", id.MajorVersion)

	// Same request again: nothing to do.
	out.Reset()
	fx.runner.reset()
	require.NoError(t, installWith(ctx, opts, report, fx.runner))
	assert.Contains(t, out.String(), "-> Lua 5.1.5 already installed\n")
	assert.False(t, fx.runner.ran("gcc"))

	// Forced reinstall is served from the build cache.
	out.Reset()
	opts.IgnoreInstalled = true
	require.NoError(t, installWith(ctx, opts, report, fx.runner))
	assert.Contains(t, out.String(), "-> Building Lua 5.1.5 (cached)\n")
	assert.NotContains(t, out.String(), "Fetching")
	assert.False(t, fx.runner.ran("gcc"))
	assert.FileExists(t, filepath.Join(loc, "bin", "lua"))

	// Different cflags make a new identity: no cache hit, a real rebuild.
	out.Reset()
	fx.runner.reset()
	opts.IgnoreInstalled = false
	opts.CFlags = "-DFOO"
	require.NoError(t, installWith(ctx, opts, report, fx.runner))
	assert.NotContains(t, out.String(), "already installed")
	assert.NotContains(t, out.String(), "(cached)")
	assert.Contains(t, out.String(), "-> Building Lua 5.1.5 (cflags: -DFOO)\n")
	assert.True(t, fx.runner.ran("gcc"))

	id, ok = LoadManifest(loc).Get("lua")
	require.True(t, ok)
	assert.Equal(t, "-DFOO", id.CFlags)
}

func TestInstall_LuaRocksAfterLua(t *testing.T) {
	fx := newInstallFixture(t)
	ctx := context.Background()
	report, out := newTestReporter()

	opts := fx.opts
	opts.LuaRocks = "2.4"
	err := installWith(ctx, opts, report, fx.runner)
	require.ErrorIs(t, err, ErrMissingInterpreter)

	opts.Lua = "5.1.5"
	require.NoError(t, installWith(ctx, opts, report, fx.runner))

	loc := opts.Location
	assert.True(t, fx.runner.ran("./configure --prefix="+loc+" --with-lua="+loc))
	assert.True(t, fx.runner.ran("make build"))
	assert.True(t, fx.runner.ran("make install"))
	assert.Contains(t, out.String(), "-> Installing LuaRocks 2.4.4\n")

	m := LoadManifest(loc)
	_, ok := m.Get("luarocks")
	assert.True(t, ok)
	_, ok = m.Get("lua")
	assert.True(t, ok)
}

func TestInstall_GitSources(t *testing.T) {
	fx := newInstallFixture(t)
	fx.runner.queries = map[string]string{
		"git --version":      "git version 2.43.0",
		"git rev-parse HEAD": "89abcdef0123456789abcdef",
	}
	fx.runner.clone = func(dest string) {
		writeTree(t, dest, map[string]string{
			"lua.h":     "#define LUA_VERSION_NUM\t\t503\n",
			"luaconf.h": "#endif\n",
			"lualib.h":  "",
			"lauxlib.h": "",
			"lapi.c":    "",
			"lua.c":     "",
		})
	}

	opts := fx.opts
	opts.Lua = "@v5.3.5"
	report, out := newTestReporter()
	require.NoError(t, installWith(context.Background(), opts, report, fx.runner))

	log := out.String()
	assert.Contains(t, log, "-> Cloning Lua from https://github.com/lua/lua @v5.3.5\n")
	assert.Contains(t, log, "-> Building Lua @89abcde\n")
	assert.True(t, fx.runner.ran("git clone --depth=1 --branch=v5.3.5 https://github.com/lua/lua"))
	assert.False(t, fx.runner.ran("gcc -std=gnu99 -o luac"), "git trees have no luac")
	assert.NoFileExists(t, filepath.Join(opts.Location, "bin", "luac"))

	id, ok := LoadManifest(opts.Location).Get("lua")
	require.True(t, ok)
	assert.Equal(t, "git", id.Source)
	assert.Equal(t, "89abcdef0123456789abcdef", id.Commit)
	assert.Equal(t, "5.3", id.MajorVersion)
}

func TestInstall_LocalLuaJIT(t *testing.T) {
	fx := newInstallFixture(t)
	src := t.TempDir()
	// A tree that has already been built in place.
	writeTree(t, src, map[string]string{
		"Makefile":           "all:\n",
		"src/lua.h":          "#define LUA_VERSION_NUM\t501\n",
		"src/luaconf.h":      "#endif\n",
		"src/lualib.h":       "",
		"src/lauxlib.h":      "",
		"src/lua.hpp":        "",
		"src/luajit.h":       "",
		"src/luajit":         "binary",
		"src/libluajit.a":    "",
		"src/libluajit.so":   "",
		"src/jit/bcsave.lua": "",
	})

	opts := fx.opts
	opts.LuaJIT = src
	opts.CFlags = "-DLUAJIT_USE_SYSMALLOC"
	report, out := newTestReporter()
	require.NoError(t, installWith(context.Background(), opts, report, fx.runner))

	log := out.String()
	assert.Contains(t, log, "-> Using LuaJIT from "+src+"\n")
	assert.Contains(t, log, "-> Building LuaJIT (cflags: -DLUAJIT_USE_SYSMALLOC)\n")
	assert.True(t, fx.runner.ran("make XCFLAGS=-DLUAJIT_USE_SYSMALLOC"))

	loc := opts.Location
	assert.Equal(t, "binary", readFile(t, filepath.Join(loc, "bin", "lua")))
	assert.FileExists(t, filepath.Join(loc, "lib", "libluajit-5.1.a"))
	assert.FileExists(t, filepath.Join(loc, "lib", "libluajit-5.1.so.2"))
	assert.FileExists(t, filepath.Join(loc, "share", "lua", "5.1", "jit", "bcsave.lua"))
	assert.Contains(t, readFile(t, filepath.Join(loc, "include", "luaconf.h")), "LUA_CPATH_DEFAULT")

	entries, err := os.ReadDir(opts.Builds)
	if err == nil {
		assert.Empty(t, entries, "local sources are never cached")
	}

	id, ok := LoadManifest(loc).Get("LuaJIT")
	require.True(t, ok)
	assert.Equal(t, "local", id.Source)
	assert.Equal(t, "-DLUAJIT_USE_SYSMALLOC", id.CFlags)
}

func TestDriver_BadVersion(t *testing.T) {
	report, _ := newTestReporter()
	d := NewDriver(luaVariant, Options{}, nil, &fakeRunner{}, report, NewMemo())

	_, err := d.Install(context.Background(), "5.9", LoadManifest(t.TempDir()))
	require.ErrorIs(t, err, ErrBadVersion)
	assert.Equal(t, "bad Lua version 5.9", describe(err))
}

func TestDriver_VerboseResolve(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{"src/lua.h": "#define LUA_VERSION_NUM\t501\n"})

	buf := new(bytes.Buffer)
	report := NewReporter(buf, true)
	d := NewDriver(luajitVariant, Options{}, NewSources(Options{}, nil, report, NewMemo(), nil, t.TempDir()), &fakeRunner{}, report, NewMemo())

	_, err := d.resolve(context.Background(), src)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Resolved LuaJIT "+src+" to local source "+src+"\n")
}
