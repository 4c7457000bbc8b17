package luaforge

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"

	"go.trai.ch/zerr"
)

// joinPath joins without cleaning, so "./?.lua" keeps its leading dot.
func joinPath(parts ...string) string {
	return strings.Join(parts, string(filepath.Separator))
}

func insertAt(list []string, i int, s string) []string {
	list = append(list, "")
	copy(list[i+1:], list[i:])
	list[i] = s
	return list
}

// packagePaths returns the default package.path and package.cpath for an
// interpreter installed at opts.Location.
func packagePaths(opts Options, major string) (string, string) {
	localFirst := major == "5.1"
	at := 2
	if localFirst {
		at = 0
	}

	modules := joinPath(opts.Location, "share", "lua", major)
	path := []string{joinPath(modules, "?.lua"), joinPath(modules, "?", "init.lua")}
	path = insertAt(path, at, joinPath(".", "?.lua"))
	if major == "5.3" || major == "5.4" {
		path = append(path, joinPath(".", "?", "init.lua"))
	}

	ext := ".so"
	if opts.Windows {
		ext = ".dll"
	}
	cmodules := joinPath(opts.Location, "lib", "lua", major)
	cpath := []string{joinPath(cmodules, "?"+ext), joinPath(cmodules, "loadall"+ext)}
	cpath = insertAt(cpath, at, joinPath(".", "?"+ext))

	return strings.Join(path, ";"), strings.Join(cpath, ";")
}

var cStringEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// pathRedefines replaces the default search paths in luaconf.h.
func pathRedefines(path, cpath string) []string {
	return []string{
		"#undef LUA_PATH_DEFAULT",
		"#undef LUA_CPATH_DEFAULT",
		`#define LUA_PATH_DEFAULT "` + cStringEscaper.Replace(path) + `"`,
		`#define LUA_CPATH_DEFAULT "` + cStringEscaper.Replace(cpath) + `"`,
	}
}

// rewriteLuaconf inserts redefines just before the last #endif of luaconf.h.
// A header without #endif gets them appended.
func rewriteLuaconf(srcDir string, redefines []string) error {
	path := filepath.Join(srcDir, "luaconf.h")
	src, err := os.ReadFile(path)
	if err != nil {
		return zerr.Wrap(err, "failed to read luaconf.h")
	}

	block := []byte(strings.Join(redefines, "\n"))
	var out bytes.Buffer
	if i := bytes.LastIndex(src, []byte("#endif")); i >= 0 {
		out.Write(src[:i])
		out.Write(block)
		out.WriteString("\n#endif")
		out.Write(src[i+len("#endif"):])
	} else {
		out.Write(src)
		out.Write(block)
		out.WriteString("\n")
	}

	if err := os.WriteFile(path, out.Bytes(), 0o644); err != nil {
		return zerr.Wrap(err, "failed to write luaconf.h")
	}
	return nil
}
