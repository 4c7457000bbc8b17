package luaforge

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

var luaBaseURLs = []string{"http://www.lua.org/ftp", "http://webserver2.tecgraf.puc-rio.br/lua/mirror/ftp"}

const luaWorkURL = "http://www.lua.org/work"

var luaVariant = &Variant{
	Name:        "lua",
	Title:       "Lua",
	DefaultRepo: "https://github.com/lua/lua",
	Versions: []string{
		"5.1", "5.1.1", "5.1.2", "5.1.3", "5.1.4", "5.1.5",
		"5.2.0", "5.2.1", "5.2.2", "5.2.3", "5.2.4",
		"5.3.0", "5.3.1", "5.3.2", "5.3.3", "5.3.4", "5.3.5",
		"5.4.0", "5.4.0-work1", "5.4.0-work2",
	},
	Translations: map[string]string{
		"5":      "5.3.5",
		"5.1":    "5.1.5",
		"5.1.0":  "5.1",
		"5.2":    "5.2.4",
		"5.3":    "5.3.5",
		"5.4":    "5.4.0-work2",
		"5.4.0":  "5.4.0-work2",
		"^":      "5.3.5",
		"latest": "5.3.5",
	},
	Checksums: map[string]string{
		"lua-5.1.tar.gz":         "7f5bb9061eb3b9ba1e406a5aa68001a66cb82bac95748839dc02dd10048472c1",
		"lua-5.1.1.tar.gz":       "c5daeed0a75d8e4dd2328b7c7a69888247868154acbda69110e97d4a6e17d1f0",
		"lua-5.1.2.tar.gz":       "5cf098c6fe68d3d2d9221904f1017ff0286e4a9cc166a1452a456df9b88b3d9e",
		"lua-5.1.3.tar.gz":       "6b5df2edaa5e02bf1a2d85e1442b2e329493b30b0c0780f77199d24f087d296d",
		"lua-5.1.4.tar.gz":       "b038e225eaf2a5b57c9bcc35cd13aa8c6c8288ef493d52970c9545074098af3a",
		"lua-5.1.5.tar.gz":       "2640fc56a795f29d28ef15e13c34a47e223960b0240e8cb0a82d9b0738695333",
		"lua-5.2.0.tar.gz":       "cabe379465aa8e388988073d59b69e76ba0025429d2c1da80821a252cdf6be0d",
		"lua-5.2.1.tar.gz":       "64304da87976133196f9e4c15250b70f444467b6ed80d7cfd7b3b982b5177be5",
		"lua-5.2.2.tar.gz":       "3fd67de3f5ed133bf312906082fa524545c6b9e1b952e8215ffbd27113f49f00",
		"lua-5.2.3.tar.gz":       "13c2fb97961381f7d06d5b5cea55b743c163800896fd5c5e2356201d3619002d",
		"lua-5.2.4.tar.gz":       "b9e2e4aad6789b3b63a056d442f7b39f0ecfca3ae0f1fc0ae4e9614401b69f4b",
		"lua-5.3.0.tar.gz":       "ae4a5eb2d660515eb191bfe3e061f2b8ffe94dce73d32cfd0de090ddcc0ddb01",
		"lua-5.3.1.tar.gz":       "072767aad6cc2e62044a66e8562f51770d941e972dc1e4068ba719cd8bffac17",
		"lua-5.3.2.tar.gz":       "c740c7bb23a936944e1cc63b7c3c5351a8976d7867c5252c8854f7b2af9da68f",
		"lua-5.3.3.tar.gz":       "5113c06884f7de453ce57702abaac1d618307f33f6789fa870e87a59d772aca2",
		"lua-5.3.4.tar.gz":       "f681aa518233bc407e23acf0f5887c884f17436f000d453b2491a9f11a52400c",
		"lua-5.3.5.tar.gz":       "0c2eed3f960446e1a3e4b9a1ca2f3ff893b6ce41942cf54d5dd59ab4b3b058ac",
		"lua-5.4.0-work1.tar.gz": "ada03980481110bfde44b3bd44bde4b03d72c84318b34d657b5b5a91ddb3912c",
		"lua-5.4.0-work2.tar.gz": "68b7e8f1ff561b9a7e1c29de26ff99ac2a704773c0965a4fe1800b7657d5a057",
	},
	Interpreter: true,

	DownloadName: func(version string, _ Options) string {
		return "lua-" + version + ".tar.gz"
	},
	DownloadURLs: func(version string, _ Options) []string {
		name := "lua-" + version + ".tar.gz"
		if strings.HasPrefix(version, "5.4.0-work") {
			return []string{luaWorkURL + "/" + name}
		}
		urls := make([]string, 0, len(luaBaseURLs))
		for _, base := range luaBaseURLs {
			urls = append(urls, base+"/"+name)
		}
		return urls
	},
	// Git and local trees follow the GitHub mirror layout with sources at the root.
	SourcePrefix: func(kind Kind) string {
		if kind == KindRelease {
			return "src"
		}
		return ""
	},

	MajorVersion: func(version string) string { return version[:3] },
	LocalSuffix:  func(major string) string { return " " + major },
	Compat:       luaCompat,
	CompatFlags:  luaCompatFlags,

	Build:   buildLua,
	Install: installLua,
	Identify: func(opts Options, id *Identity) {
		id.Readline = strconv.FormatBool(!opts.NoReadline)
		id.Patched = strconv.FormatBool(opts.Patch)
	},
}

// luaCompat maps the requested --compat to what a major version supports.
func luaCompat(requested, major string) string {
	switch major {
	case "5.1":
		if requested == "none" {
			return "none"
		}
		return "default"
	case "5.2":
		if requested == "none" || requested == "5.2" {
			return "none"
		}
		return "default"
	case "5.3":
		if requested == "default" || requested == "5.2" {
			return "default"
		}
		return requested
	default:
		if requested == "default" || requested == "5.3" {
			return "default"
		}
		return requested
	}
}

func luaCompatFlags(compat, major string) ([]string, []string) {
	var cflags, redefines []string
	switch major {
	case "5.1":
		if compat == "none" {
			redefines = append(redefines,
				"#undef LUA_COMPAT_VARARG", "#undef LUA_COMPAT_MOD",
				"#undef LUA_COMPAT_LSTR", "#undef LUA_COMPAT_GFIND",
				"#undef LUA_COMPAT_OPENLIB")
		}
	case "5.2":
		if compat == "default" {
			cflags = append(cflags, "-DLUA_COMPAT_ALL")
		}
	case "5.3":
		if compat == "5.1" || compat == "all" {
			cflags = append(cflags, "-DLUA_COMPAT_5_1")
		}
		if compat == "default" || compat == "5.2" || compat == "all" {
			cflags = append(cflags, "-DLUA_COMPAT_5_2")
		}
	default:
		if compat == "default" || compat == "5.3" || compat == "all" {
			cflags = append(cflags, "-DLUA_COMPAT_5_3")
		}
	}
	return cflags, redefines
}

// luaFiles names the artifacts of a PUC-Rio build.
type luaFiles struct {
	lua, luac, arch, dll string
}

func luaArtifacts(opts Options, major string) luaFiles {
	digit := major[2:3]
	f := luaFiles{lua: opts.Exe("lua"), luac: opts.Exe("luac"), arch: "liblua5" + digit + ".a"}
	if opts.UsingCL() {
		f.arch = "lua5" + digit + ".lib"
	}
	if opts.Target == "mingw" || opts.UsingCL() {
		f.dll = "lua5" + digit + ".dll"
	}
	return f
}

// luaToolchain is the compiler invocation mirroring `make <target>` in Lua's Makefile.
type luaToolchain struct {
	cc           []string
	cflags       []string
	staticCFlags []string
	lflags       []string
}

func luaCompileFlags(opts Options, major string, compatCFlags []string) luaToolchain {
	t := luaToolchain{cc: []string{"gcc"}}
	if major == "5.3" || major == "5.4" {
		t.cc = append(t.cc, "-std=gnu99")
	}
	readline := !opts.NoReadline

	switch opts.Target {
	case "linux", "freebsd", "macosx":
		t.cflags = []string{"-DLUA_USE_POSIX", "-DLUA_USE_DLOPEN"}
		if major == "5.2" {
			t.cflags = append(t.cflags, "-DLUA_USE_STRTODHEX", "-DLUA_USE_AFORMAT", "-DLUA_USE_LONGLONG")
		}
		if readline {
			t.cflags = append(t.cflags, "-DLUA_USE_READLINE")
		}

		switch opts.Target {
		case "linux":
			t.lflags = []string{"-Wl,-E", "-ldl"}
			if readline {
				if major == "5.1" {
					t.lflags = append(t.lflags, "-lreadline", "-lhistory", "-lncurses")
				} else {
					t.lflags = append(t.lflags, "-lreadline")
				}
			}
		case "freebsd":
			if readline {
				t.lflags = append(t.lflags, "-Wl,-E", "-lreadline")
			}
		default:
			t.cc = []string{"cc"}
			if readline {
				t.lflags = append(t.lflags, "-lreadline")
			}
		}
	case "posix":
		t.cflags = []string{"-DLUA_USE_POSIX"}
	}

	t.cflags = append(t.cflags, compatCFlags...)
	t.cflags = append(t.cflags, strings.Fields(opts.CFlags)...)

	if opts.UsingCL() {
		t.cc = []string{"cl", "/nologo", "/MD", "/O2", "/W3", "/c", "/D_CRT_SECURE_NO_DEPRECATE"}
	} else {
		t.cflags = append([]string{"-O2", "-Wall", "-Wextra"}, t.cflags...)
	}

	t.lflags = append(t.lflags, "-lm")
	t.staticCFlags = slices.Clone(t.cflags)

	if opts.Target == "mingw" {
		t.cflags = insertAt(t.cflags, 3, "-DLUA_BUILD_AS_DLL")
	} else if opts.UsingCL() {
		t.cflags = insertAt(t.cflags, 0, "-DLUA_BUILD_AS_DLL")
	}
	return t
}

func concat(parts ...[]string) []string {
	var out []string
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func buildLua(ctx context.Context, v *Variant, st *buildState) error {
	src := st.srcDir(v)
	handlePatches(st, src)

	opts := st.opts
	tc := luaCompileFlags(opts, st.Major, st.cflags)
	files := luaArtifacts(opts, st.Major)
	obj := opts.ObjExt()
	cl := opts.UsingCL()

	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}

	luacObjs := []string{"luac" + obj, "print" + obj}
	var objs []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || filepath.Ext(name) != ".c" {
			continue
		}
		o := strings.TrimSuffix(name, ".c") + obj
		objs = append(objs, o)

		flags := tc.cflags
		if slices.Contains(luacObjs, o) {
			flags = tc.staticCFlags
		}
		args := concat(tc.cc, flags)
		if cl {
			args = append(args, name)
		} else {
			args = append(args, "-c", "-o", o, name)
		}
		if err := st.run(ctx, src, args...); err != nil {
			return err
		}
	}

	var libObjs, builtLuac []string
	for _, o := range objs {
		if !slices.Contains(luacObjs, o) && o != "lua"+obj {
			libObjs = append(libObjs, o)
		}
	}
	for _, o := range luacObjs {
		if slices.Contains(objs, o) {
			builtLuac = append(builtLuac, o)
		}
	}

	if !cl {
		if err := st.run(ctx, src, concat([]string{"ar", "rcu", files.arch}, libObjs)...); err != nil {
			return err
		}
		if err := st.run(ctx, src, "ranlib", files.arch); err != nil {
			return err
		}
	}

	// The lua/lua git repository carries no luac sources.
	if len(builtLuac) > 0 {
		if cl {
			if err := st.run(ctx, src, concat([]string{"link", "/nologo", "/out:luac.exe"}, builtLuac, libObjs)...); err != nil {
				return err
			}
			if err := embedManifest(ctx, st, src, "luac.exe"); err != nil {
				return err
			}
		} else {
			args := concat(tc.cc, []string{"-o", files.luac}, builtLuac, []string{files.arch}, tc.lflags)
			if err := st.run(ctx, src, args...); err != nil {
				return err
			}
		}
	}

	switch {
	case opts.Target == "mingw":
		if err := st.run(ctx, src, concat(tc.cc, []string{"-shared", "-o", files.dll}, libObjs)...); err != nil {
			return err
		}
		if err := st.run(ctx, src, "strip", "--strip-unneeded", files.dll); err != nil {
			return err
		}
		return st.run(ctx, src, concat(tc.cc, []string{"-o", files.lua, "-s", "lua.o", files.dll})...)
	case cl:
		if err := st.run(ctx, src, concat([]string{"link", "/nologo", "/DLL", "/out:" + files.dll}, libObjs)...); err != nil {
			return err
		}
		if err := embedManifest(ctx, st, src, files.dll); err != nil {
			return err
		}
		if err := st.run(ctx, src, "link", "/nologo", "/out:lua.exe", "lua.obj", files.arch); err != nil {
			return err
		}
		return embedManifest(ctx, st, src, "lua.exe")
	default:
		return st.run(ctx, src, concat(tc.cc, []string{"-o", files.lua, "lua.o", files.arch}, tc.lflags)...)
	}
}

// embedManifest runs mt when the linker left a side-by-side manifest.
func embedManifest(ctx context.Context, st *buildState, dir, binary string) error {
	if !fileExists(filepath.Join(dir, binary+".manifest")) {
		return nil
	}
	return st.run(ctx, dir, "mt", "/nologo", "-manifest", binary+".manifest", "-outputresource:"+binary)
}

func installLua(_ context.Context, v *Variant, st *buildState) error {
	src := st.srcDir(v)
	files := luaArtifacts(st.opts, st.Major)
	loc := st.opts.Location

	luac := files.luac
	if !fileExists(filepath.Join(src, luac)) {
		luac = ""
	}
	if err := copyFiles(filepath.Join(loc, "bin"), src, files.lua, luac, files.dll); err != nil {
		return err
	}

	luaHpp := "lua.hpp"
	if !fileExists(filepath.Join(src, luaHpp)) {
		if v.SourcePrefix(st.spec.Kind) == "" {
			luaHpp = ""
		} else {
			luaHpp = filepath.Join("..", "etc", "lua.hpp")
		}
	}
	if err := copyFiles(filepath.Join(loc, "include"), src,
		"lua.h", "luaconf.h", "lualib.h", "lauxlib.h", luaHpp); err != nil {
		return err
	}

	return copyFiles(filepath.Join(loc, "lib"), src, files.arch)
}

var luaMinorRes = []*regexp.Regexp{
	// 5.1.x; 5.1 itself has no such line
	regexp.MustCompile(`^\s*#define\s+LUA_RELEASE\s+"Lua 5\.1\.(\d)"\s*$`),
	regexp.MustCompile(`^\s*#define LUA_VERSION_RELEASE\s+"(\d)"\s*$`),
}

func minorVersion(st *buildState, srcDir string) string {
	if st.spec.Kind == KindRelease {
		if st.spec.Version == "5.1" {
			return "0"
		}
		return st.spec.Version[len(st.spec.Version)-1:]
	}

	f, err := os.Open(filepath.Join(srcDir, "lua.h"))
	if err != nil {
		return "0"
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		for _, re := range luaMinorRes {
			if m := re.FindStringSubmatch(scanner.Text()); m != nil {
				return m[1]
			}
		}
	}
	return "0"
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

// handlePatches reports and, with --patch, applies the upstream bug fixes for
// this release. A patch that does not apply is reported and skipped.
func handlePatches(st *buildState, srcDir string) {
	byMinor, ok := patchesByVersion[st.Major]
	if !ok {
		st.report.Note("No patches available for Lua %s", st.Major)
		return
	}

	minor := minorVersion(st, srcDir)
	names := byMinor[minor]
	if len(names) == 0 {
		st.report.Note("No patches available for Lua %s.%s", st.Major, minor)
		return
	}

	if !st.opts.Patch {
		st.report.Note("Skipping %d %s, use --patch to apply %s",
			len(names), plural(len(names), "patch", "patches"), plural(len(names), "it", "them"))
		return
	}

	applied := 0
	for _, name := range names {
		p, err := ParsePatch(builtinPatches[name])
		if err == nil {
			err = p.Apply(srcDir)
		}
		if err != nil {
			st.report.Note("Patch for %q: fail - %s", name, describe(err))
			continue
		}
		st.report.Note("Patch for %q: OK", name)
		applied++
	}
	st.report.Note("Applied %d %s (%d available for this version)",
		applied, plural(applied, "patch", "patches"), len(names))
}
