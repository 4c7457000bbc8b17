package luaforge

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLuaCompat(t *testing.T) {
	tests := []struct {
		requested, major, want string
	}{
		{"default", "5.1", "default"},
		{"none", "5.1", "none"},
		{"all", "5.1", "default"},
		{"5.2", "5.2", "none"},
		{"all", "5.2", "default"},
		{"5.2", "5.3", "default"},
		{"5.1", "5.3", "5.1"},
		{"all", "5.3", "all"},
		{"5.3", "5.4", "default"},
		{"none", "5.4", "none"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, luaCompat(tt.requested, tt.major), "%s on %s", tt.requested, tt.major)
	}
}

func TestLuaCompatFlags(t *testing.T) {
	cflags, redefines := luaCompatFlags("none", "5.1")
	assert.Empty(t, cflags)
	assert.Contains(t, redefines, "#undef LUA_COMPAT_VARARG")

	cflags, _ = luaCompatFlags("default", "5.2")
	assert.Equal(t, []string{"-DLUA_COMPAT_ALL"}, cflags)

	cflags, _ = luaCompatFlags("all", "5.3")
	assert.Equal(t, []string{"-DLUA_COMPAT_5_1", "-DLUA_COMPAT_5_2"}, cflags)

	cflags, _ = luaCompatFlags("none", "5.4")
	assert.Empty(t, cflags)
}

func TestLuaCompileFlags(t *testing.T) {
	tc := luaCompileFlags(Options{Target: "linux"}, "5.3", []string{"-DLUA_COMPAT_5_2"})
	assert.Equal(t, []string{"gcc", "-std=gnu99"}, tc.cc)
	assert.Equal(t, []string{"-O2", "-Wall", "-Wextra", "-DLUA_USE_POSIX", "-DLUA_USE_DLOPEN", "-DLUA_USE_READLINE", "-DLUA_COMPAT_5_2"}, tc.cflags)
	assert.Equal(t, []string{"-Wl,-E", "-ldl", "-lreadline", "-lm"}, tc.lflags)

	tc = luaCompileFlags(Options{Target: "linux", NoReadline: true, CFlags: "-g -O0"}, "5.1", nil)
	assert.Equal(t, []string{"gcc"}, tc.cc)
	assert.NotContains(t, tc.cflags, "-DLUA_USE_READLINE")
	assert.Equal(t, []string{"-g", "-O0"}, tc.cflags[len(tc.cflags)-2:])
	assert.Equal(t, []string{"-Wl,-E", "-ldl", "-lm"}, tc.lflags)

	tc = luaCompileFlags(Options{Target: "mingw"}, "5.2", nil)
	assert.Equal(t, "-DLUA_BUILD_AS_DLL", tc.cflags[3])
	assert.NotContains(t, tc.staticCFlags, "-DLUA_BUILD_AS_DLL")

	tc = luaCompileFlags(Options{Target: "vs_64"}, "5.3", nil)
	assert.Equal(t, "cl", tc.cc[0])
	assert.Equal(t, "-DLUA_BUILD_AS_DLL", tc.cflags[0])
}

func TestLuaArtifacts(t *testing.T) {
	assert.Equal(t, luaFiles{lua: "lua", luac: "luac", arch: "liblua53.a"}, luaArtifacts(Options{Target: "linux"}, "5.3"))
	assert.Equal(t, luaFiles{lua: "lua.exe", luac: "luac.exe", arch: "liblua51.a", dll: "lua51.dll"},
		luaArtifacts(Options{Target: "mingw", Windows: true}, "5.1"))
	assert.Equal(t, luaFiles{lua: "lua.exe", luac: "luac.exe", arch: "lua52.lib", dll: "lua52.dll"},
		luaArtifacts(Options{Target: "vs", Windows: true}, "5.2"))
}

func TestMinorVersion(t *testing.T) {
	st := &buildState{spec: Spec{Kind: KindRelease, Version: "5.3.4"}}
	assert.Equal(t, "4", minorVersion(st, ""))

	st.spec.Version = "5.1"
	assert.Equal(t, "0", minorVersion(st, ""))

	dir := t.TempDir()
	writeTree(t, dir, map[string]string{"lua.h": "#define LUA_VERSION_MAJOR\t\"5\"\n#define LUA_VERSION_RELEASE\t\"2\"\n"})
	st.spec = Spec{Kind: KindGit}
	assert.Equal(t, "2", minorVersion(st, dir))
}

func TestHandlePatches_ReportsWithoutApplying(t *testing.T) {
	report, out := newTestReporter()
	st := &buildState{opts: Options{}, report: report, spec: Spec{Kind: KindRelease, Version: "5.3.4"}}
	st.Major = "5.3"

	handlePatches(st, t.TempDir())
	assert.Contains(t, out.String(), "use --patch to apply them")

	out.Reset()
	st.Major = "5.2"
	handlePatches(st, t.TempDir())
	assert.Equal(t, "No patches available for Lua 5.2\n", out.String())
}

func TestHandlePatches_FailureIsReported(t *testing.T) {
	report, out := newTestReporter()
	st := &buildState{opts: Options{Patch: true}, report: report, spec: Spec{Kind: KindRelease, Version: "5.1.5"}}
	st.Major = "5.1"

	handlePatches(st, t.TempDir())
	assert.Contains(t, out.String(), "fail - lzio.h doesn't exist")
	assert.Contains(t, out.String(), "Applied 0 patches (1 available for this version)")
}

func TestMajorFromSource(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{"lua.h": "#define LUA_VERSION_NUM\t\t503\n"})
	major, err := majorFromSource(dir)
	assert.NoError(t, err)
	assert.Equal(t, "5.3", major)

	_, err = majorFromSource(t.TempDir())
	assert.ErrorIs(t, err, ErrMajorVersion)
}

func TestOptionsSuffix(t *testing.T) {
	opts := Options{Target: "linux", DefaultTarget: "linux"}
	assert.Empty(t, optionsSuffix(opts, "default"))

	opts.Target = "posix"
	opts.CFlags = "-g"
	opts.NoReadline = true
	assert.Equal(t, " (target: posix, compat: none, cflags: -g, readline: false)", optionsSuffix(opts, "none"))
}
