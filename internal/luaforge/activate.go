package luaforge

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"go.trai.ch/zerr"
)

// Activation scripts put <location>/bin first on PATH and define
// deactivate-lua, which strips it again using the installed interpreter.
var activationTemplates = map[string]string{
	"get_deactivated_path.lua": `local path = os.getenv("PATH")
local dir_sep = package.config:sub(1, 1)
local path_sep = dir_sep == "\\" and ";" or ":"
local bin_dir = "#LOCATION_DQ#" .. dir_sep .. "bin"
local kept = {}
local fish = arg[1] == "--fish"

if fish then
    io.stdout:write("set -gx PATH ")
end

for part in (path .. path_sep):gmatch("([^" .. path_sep .. "]*)" .. path_sep) do
    if part ~= bin_dir then
        if fish then
            part = "'" .. part:gsub("'", [['\'']]) .. "'"
        end

        table.insert(kept, part)
    end
end

io.stdout:write(table.concat(kept, fish and " " or path_sep))
`,
	"activate": `if declare -f -F deactivate-lua >/dev/null; then
    deactivate-lua
fi

deactivate-lua () {
    if [ -x '#LOCATION_SQ#/bin/lua' ]; then
        PATH=` + "`" + `'#LOCATION_SQ#/bin/lua' '#LOCATION_SQ#/bin/get_deactivated_path.lua'` + "`" + `
        export PATH

        if [ -n "${BASH-}" ] || [ -n "${ZSH_VERSION-}" ]; then
            hash -r 2>/dev/null
        fi
    fi

    unset -f deactivate-lua
}

PATH='#LOCATION_SQ#/bin':"$PATH"
export PATH

if [ -n "${BASH-}" ] || [ -n "${ZSH_VERSION-}" ]; then
    hash -r 2>/dev/null
fi
`,
	"activate.csh": `which deactivate-lua >&/dev/null && deactivate-lua

alias deactivate-lua 'if ( -x '\''#LOCATION_NESTED_SQ#/bin/lua'\'' ) then; setenv PATH ` + "`" + `'\''#LOCATION_NESTED_SQ#/bin/lua'\'' '\''#LOCATION_NESTED_SQ#/bin/get_deactivated_path.lua'\''` + "`" + `; rehash; endif; unalias deactivate-lua'

setenv PATH '#LOCATION_SQ#/bin':"$PATH"
rehash
`,
	"activate.fish": `if functions -q deactivate-lua
    deactivate-lua
end

function deactivate-lua
    if test -x '#LOCATION_SQ#/bin/lua'
        eval ('#LOCATION_SQ#/bin/lua' '#LOCATION_SQ#/bin/get_deactivated_path.lua' --fish)
    end

    functions -e deactivate-lua
end

set -gx PATH '#LOCATION_SQ#/bin' $PATH
`,
	"activate.bat": `@echo off
where deactivate-lua >nul 2>nul
if %errorlevel% equ 0 call deactivate-lua
set "PATH=#LOCATION#\bin;%PATH%"
`,
	"deactivate-lua.bat": `@echo off
if exist "#LOCATION#\bin\lua.exe" for /f "usebackq delims=" %%p in (` + "`" + `""#LOCATION_PAREN#\bin\lua" "#LOCATION_PAREN#\bin\get_deactivated_path.lua""` + "`" + `) DO set "PATH=%%p"
`,
	"activate.ps1": `if (test-path function:deactivate-lua) {
    deactivate-lua
}

function global:deactivate-lua () {
    if (test-path "#LOCATION#\bin\lua.exe") {
        $env:PATH = & "#LOCATION#\bin\lua.exe" "#LOCATION#\bin\get_deactivated_path.lua"
    }

    remove-item function:deactivate-lua
}

$env:PATH = "#LOCATION#\bin;" + $env:PATH
`,
}

var (
	posixScripts   = []string{"get_deactivated_path.lua", "activate", "activate.csh", "activate.fish"}
	windowsScripts = []string{"get_deactivated_path.lua", "activate.bat", "deactivate-lua.bat", "activate.ps1"}

	placeholderRe = regexp.MustCompile(`#([a-zA-Z_]+)#`)
	batchSpecial  = regexp.MustCompile(`[&,=()]`)
)

// locationReplacements quotes location for each script language.
func locationReplacements(location string) map[string]string {
	sq := strings.ReplaceAll(location, "'", `'\''`)
	return map[string]string{
		"LOCATION":           location,
		"LOCATION_DQ":        cStringEscaper.Replace(location),
		"LOCATION_SQ":        sq,
		"LOCATION_NESTED_SQ": strings.ReplaceAll(sq, "'", `'\''`),
		"LOCATION_PAREN":     batchSpecial.ReplaceAllString(location, "^$0"),
	}
}

func renderActivation(template string, replacements map[string]string) string {
	return placeholderRe.ReplaceAllStringFunc(template, func(m string) string {
		if r, ok := replacements[m[1:len(m)-1]]; ok {
			return r
		}
		return m
	})
}

// writeActivationScripts writes the scripts for the host shell family into <location>/bin.
func writeActivationScripts(opts Options) error {
	names := posixScripts
	if opts.Windows {
		names = windowsScripts
	}
	replacements := locationReplacements(opts.Location)
	bin := filepath.Join(opts.Location, "bin")

	for _, name := range names {
		script := renderActivation(activationTemplates[name], replacements)
		if err := os.WriteFile(filepath.Join(bin, name), []byte(script), 0o644); err != nil {
			return zerr.With(zerr.Wrap(err, "failed to write activation script"), "script", name)
		}
	}
	return nil
}
