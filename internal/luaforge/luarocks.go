package luaforge

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"go.trai.ch/zerr"
)

const luarocksReleasesURL = "http://luarocks.github.io/luarocks/releases"

func luarocksDownloadName(version string, opts Options) string {
	if opts.Windows {
		return "luarocks-" + version + "-win32.zip"
	}
	return "luarocks-" + version + ".tar.gz"
}

var luarocksVariant = &Variant{
	Name:        "luarocks",
	Title:       "LuaRocks",
	DefaultRepo: "https://github.com/luarocks/luarocks",
	Versions: []string{
		"2.0.8", "2.0.9", "2.0.10", "2.0.11", "2.0.12", "2.0.13",
		"2.1.0", "2.1.1", "2.1.2",
		"2.2.0", "2.2.1", "2.2.2",
		"2.3.0",
		"2.4.0", "2.4.1", "2.4.2", "2.4.3", "2.4.4",
		"3.0.0", "3.0.1", "3.0.2",
	},
	Translations: map[string]string{
		"2":      "2.4.4",
		"2.0":    "2.0.13",
		"2.1":    "2.1.2",
		"2.2":    "2.2.2",
		"2.3":    "2.3.0",
		"2.4":    "2.4.4",
		"3":      "3.0.2",
		"3.0":    "3.0.2",
		"^":      "2.4.4",
		"latest": "2.4.4",
	},
	Checksums: map[string]string{
		"luarocks-2.0.8.tar.gz":     "f8abf1ab03b744a817721a0ff4a0ee454e068735efaa8d1aadcfcd0f07cdaa88",
		"luarocks-2.0.8-win32.zip":  "109e2dd91c66a7fd69471fcd56b3276f57aef334a4a8f53776b94b1ebd58334e",
		"luarocks-2.0.9.tar.gz":     "4e25a8052c6abe1685da1093e1adb59aa034106c9d335aa932f7b3b51297c63d",
		"luarocks-2.0.9-win32.zip":  "c9389c288bac2c276e363ffbaaa6356119adefed243f0c47bf74611f9296bd94",
		"luarocks-2.0.10.tar.gz":    "11731dfe6e210a962cb2a857b8b2f14a9ab1043e13af09a1b9455b486401b46e",
		"luarocks-2.0.10-win32.zip": "bc00dbc80da6939f372bace50ea68d1746111280862858ecef9fcaaa3d70661f",
		"luarocks-2.0.11.tar.gz":    "feee5a606938604f4fef1fdadc29692b9b7cdfb76fa537908d772adfb927741e",
		"luarocks-2.0.11-win32.zip": "b0c2c149da49d70972178e3aec0a92a678b3daa2993dd6d6cdd56269730f8e12",
		"luarocks-2.0.12.tar.gz":    "ad4b465c5dfbdce436ef746a434317110d79f18ff79202a2697e215f4ac407ed",
		"luarocks-2.0.12-win32.zip": "dfb7c7429541628903ec811f151ea19435d2182a9515db57542f6825802a1ae7",
		"luarocks-2.0.13.tar.gz":    "17db43664b555a467af74c91778d7e70937398da4325e3f88740621204a559a6",
		"luarocks-2.0.13-win32.zip": "8d867ced0f47ee1d5a9c4c3ef7f4969ae91f4a817b8755bb9595168b20398740",
		"luarocks-2.1.0.tar.gz":     "69bf4cb40c8010a5d434f70d26c9885f4260ac265fdaa848c0edb50cc8e53f88",
		"luarocks-2.1.0-win32.zip":  "363ecc0d09b70179735eef0dae158f98733e6d34226d6b5243bcbdc50d5987ca",
		"luarocks-2.1.1.tar.gz":     "995ba1b9c982b503fd6fc61c905dc07c3a7533c06587616d9f00d9f62bd318ac",
		"luarocks-2.1.1-win32.zip":  "5fa8eccc91c7c1431480257cb1cf99fff902cf762576e1cd208762f01003e780",
		"luarocks-2.1.2.tar.gz":     "62625c7609c886bae23f8db55dba45dbb083bae0d19bf12fe29ec95f7d389ff3",
		"luarocks-2.1.2-win32.zip":  "66beb4318261bc3e91544ba8672f04f3057137d32b2c33275ab6a355a7b5a546",
		"luarocks-2.2.0.tar.gz":     "9b1a4ec7b103e2fb90a7ba8589d7e0c8523a3d6d54ac469b0bbc144292b9279c",
		"luarocks-2.2.0-win32.zip":  "0fb56f40f09352567c66318018b52b9fa9e055f318b8589abed24eb1e76a3def",
		"luarocks-2.2.1.tar.gz":     "713f8a7e33f1e6dc77ba2eec849a80a95f24f82382e0abc4523c2b8d435f7c55",
		"luarocks-2.2.1-win32.zip":  "01b0410eb19f6e31342cbc12524f2e00eddfdf0bd9edcc325def7bcd93e331be",
		"luarocks-2.2.2.tar.gz":     "4f0427706873f30d898aeb1dfb6001b8a3478e46a5249d015c061fe675a1f022",
		"luarocks-2.2.2-win32.zip":  "576721fb6fe224bbf5f60bd4c94c7c6f686889bb452ae1923a46d56f02df6588",
		"luarocks-2.3.0.tar.gz":     "68e38feeb66052e29ad1935a71b875194ed8b9c67c2223af5f4d4e3e2464ed97",
		"luarocks-2.3.0-win32.zip":  "7aa02e7249906563a7ab8bb9db497cdeab0506328e4c8d45ffba120526dfec2a",
		"luarocks-2.4.0.tar.gz":     "44381c9128d036247d428531291d1ff9405ae1daa238581d3c15f96d899497c3",
		"luarocks-2.4.0-win32.zip":  "13f92b46abc5d0362e2c3507f675b6d125b7c915680d48b62afa97b6b3e0f47a",
		"luarocks-2.4.1.tar.gz":     "e429e0af9764bfd5cb640cac40f9d4ed1023fa17c052dff82ed0a41c05f3dcf9",
		"luarocks-2.4.1-win32.zip":  "c6cf36ca2e03b1a910e4dde9ac5c9360dc16f3f7afe50a978213d26728f4c667",
		"luarocks-2.4.2.tar.gz":     "0e1ec34583e1b265e0fbafb64c8bd348705ad403fe85967fd05d3a659f74d2e5",
		"luarocks-2.4.2-win32.zip":  "63abc6f1240e0774f94bfe4150eaa5be06979c245db1dd5c8ddc4fb4570f7204",
		"luarocks-2.4.3.tar.gz":     "4d414d32fed5bb121c72d3ff1280b7f2dc9027a9bc012e41dfbffd5b519b362e",
		"luarocks-2.4.3-win32.zip":  "08821ec39e7c3ad20f5b3d3e118ba8f1f5a7db6e6ad22e11eb5e8a2bdc95cbfb",
		"luarocks-2.4.4.tar.gz":     "3938df33de33752ff2c526e604410af3dceb4b7ff06a770bc4a240de80a1f934",
		"luarocks-2.4.4-win32.zip":  "763d2fbe301b5f941dd5ea4aea485fb35e75cbbdceca8cc2f18726b75f9895c1",
		"luarocks-3.0.0.tar.gz":     "a43fffb997100f11cccb529a3db5456ce8dab18171a5cb3645f948147b6f64a1",
		"luarocks-3.0.0-win32.zip":  "f5c6070f49f78ef61a2e5d6de353b34ef691ad4a6b45e065d5c85701a4a3a981",
		"luarocks-3.0.1.tar.gz":     "b989c4b60d6c9edcd65169e5e42fcffbd39cdbebe6b138fa5aea45102f8d9ec0",
		"luarocks-3.0.1-win32.zip":  "af54263b8f71406d79556c880f3e2674e6690934a69cefbbdfd18710f05eeeaf",
		"luarocks-3.0.2.tar.gz":     "3836267eff2f85fb552234e966602b1e649c58f81f47c7de3785e071c8127f5a",
		"luarocks-3.0.2-win32.zip":  "c9e93d7198f9ae7add331675d3d84fa1b61feb851814ee2a89b9930bd651bfb9",
	},

	DownloadName: luarocksDownloadName,
	DownloadURLs: func(version string, opts Options) []string {
		return []string{luarocksReleasesURL + "/" + luarocksDownloadName(version, opts)}
	},
	SourcePrefix: fixedPrefix(""),

	Prepare: func(st *buildState, m *Manifest) error {
		for _, name := range interpreterNames {
			if id, ok := m.Get(name); ok {
				st.interp = id
				return nil
			}
		}
		return zerr.With(zerr.Wrap(ErrMissingInterpreter,
			"can't install LuaRocks: Lua is not present in "+st.opts.Location), "location", st.opts.Location)
	},
	Build:   buildLuaRocks,
	Install: installLuaRocks,
}

var luarocks20Re = regexp.MustCompile(`^\s*all:\s+built\s*$`)

// isLuaRocks20 reports whether the tree predates the `make build` target.
func isLuaRocks20(v *Variant, st *buildState) bool {
	if st.spec.Kind == KindRelease {
		return slices.Index(v.Versions, st.spec.Version) < slices.Index(v.Versions, "2.1.0")
	}

	f, err := os.Open(filepath.Join(st.dir, "Makefile"))
	if err != nil {
		return false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if luarocks20Re.MatchString(scanner.Text()) {
			return true
		}
	}
	return false
}

// cmakeGenerator picks the CMake generator matching the interpreter's toolchain.
func cmakeGenerator(interp Identity) string {
	switch {
	case interp.Target == "mingw":
		return "MinGW Makefiles"
	case strings.HasPrefix(interp.Target, "vs"):
		version := strings.TrimSuffix(vsYearToVersion[interp.VSYear], ".0")
		win64 := ""
		if interp.VSArch == "x64" {
			win64 = " Win64"
		}
		return fmt.Sprintf("Visual Studio %s 20%s%s", version, interp.VSYear, win64)
	}
	return ""
}

func defaultRockCFlags(opts Options) string {
	switch {
	case opts.UsingCL():
		return "/nologo /MD /O2"
	case opts.Target == "mingw":
		return "-O2"
	default:
		return "-O2 -fPIC"
	}
}

func luarocksConfigPath(opts Options, major string) string {
	name := "config-" + major + ".lua"
	if opts.Windows {
		return filepath.Join(opts.Location, "luarocks", name)
	}
	return filepath.Join(opts.Location, "etc", "luarocks", name)
}

func appendToFile(path, text string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return zerr.Wrap(err, "failed to open "+path)
	}
	if _, err := f.WriteString(text); err != nil {
		f.Close()
		return zerr.Wrap(err, "failed to write "+path)
	}
	return f.Close()
}

func buildLuaRocks(ctx context.Context, v *Variant, st *buildState) error {
	if st.opts.Windows {
		return buildLuaRocksWindows(ctx, st)
	}

	loc := st.opts.Location
	st.report.Step("Building LuaRocks%s", st.suffix)
	if err := st.run(ctx, st.dir, "./configure", "--prefix="+loc, "--with-lua="+loc); err != nil {
		return err
	}
	if isLuaRocks20(v, st) {
		return st.run(ctx, st.dir, "make")
	}
	return st.run(ctx, st.dir, "make", "build")
}

func buildLuaRocksWindows(ctx context.Context, st *buildState) error {
	loc := st.opts.Location
	st.report.Step("Building and installing LuaRocks%s", st.suffix)

	installer := filepath.Join(st.dir, "install.bat")
	help, err := st.runner.Query(ctx, st.dir, installer, "/?")
	if err != nil {
		return err
	}

	args := []string{installer, "/P", filepath.Join(loc, "luarocks"), "/LUA", loc, "/F"}
	if st.interp.Target == "mingw" {
		args = append(args, "/MW")
	}
	if strings.Contains(help, "/LV") {
		args = append(args, "/LV", st.interp.MajorVersion)
	}
	if strings.Contains(help, "/NOREG") {
		args = append(args, "/NOREG", "/Q")
	}
	if strings.Contains(help, "/NOADMIN") {
		args = append(args, "/NOADMIN")
	}
	if err := st.run(ctx, st.dir, args...); err != nil {
		return err
	}

	root := filepath.Join(loc, "luarocks")
	for _, script := range []string{"luarocks.bat", "luarocks-admin.bat"} {
		found := false
		for _, sub := range []string{".", "2.2", "2.1", "2.0"} {
			path := filepath.Join(root, sub, script)
			if fileExists(path) {
				if err := copyFile(path, filepath.Join(loc, "bin", script)); err != nil {
					return zerr.Wrap(err, "failed to install "+script)
				}
				found = true
				break
			}
		}
		if !found {
			return zerr.With(zerr.New(fmt.Sprintf("can't find %s in %s", script, root)), "script", script)
		}
	}

	if gen := cmakeGenerator(st.interp); gen != "" {
		return appendToFile(luarocksConfigPath(st.opts, st.interp.MajorVersion),
			fmt.Sprintf("\ncmake_generator = %q\n", gen))
	}
	return nil
}

func installLuaRocks(ctx context.Context, _ *Variant, st *buildState) error {
	if !st.opts.Windows {
		st.report.Step("Installing LuaRocks%s", st.suffix)
		if err := st.run(ctx, st.dir, "make", "install"); err != nil {
			return err
		}
	}

	if st.interp.CFlags != "" {
		return appendToFile(luarocksConfigPath(st.opts, st.interp.MajorVersion),
			fmt.Sprintf("\nvariables = {CFLAGS = \"%s %s\"}\n", defaultRockCFlags(st.opts), st.interp.CFlags))
	}
	return nil
}
