//go:build windows

package luaforge

import (
	"fmt"
	"path/filepath"
	"strings"

	"golang.org/x/sys/windows/registry"
)

// queryRegistry reads a string value under HKLM, trying the 32-bit view too.
func queryRegistry(report *Reporter, key, value string) string {
	for _, candidate := range []string{key, strings.Replace(key, `\`, `\Wow6432Node\`, 1)} {
		report.Debugf("Querying registry key HKEY_LOCAL_MACHINE\\%s:%s\n", candidate, value)

		k, err := registry.OpenKey(registry.LOCAL_MACHINE, candidate, registry.QUERY_VALUE)
		if err != nil {
			continue
		}
		s, _, err := k.GetStringValue(value)
		k.Close()
		if err == nil {
			return s
		}
	}
	return ""
}

func vsDirectory(report *Reporter, memo *Memo, version string) string {
	return remember(memo, "vs-dir:"+version, func() string {
		for _, key := range []string{
			`Software\Microsoft\VisualStudio\` + version + `\Setup\VC`,
			`Software\Microsoft\VCExpress\` + version + `\Setup\VS`,
		} {
			if dir := queryRegistry(report, key, "ProductDir"); dir != "" {
				return dir
			}
		}
		return ""
	})
}

func wsdkDirectory(report *Reporter, memo *Memo, version string) string {
	var sdk string
	switch version {
	case "9.0":
		sdk = "v6.1"
	case "10.0":
		sdk = "v7.1"
	default:
		return ""
	}
	return remember(memo, "wsdk-dir:"+version, func() string {
		return queryRegistry(report, `Software\Microsoft\Microsoft SDKs\Windows\`+sdk, "InstallationFolder")
	})
}

func checkExistence(report *Reporter, memo *Memo, path string) bool {
	report.Debugf("Checking existence of %s\n", path)
	return memo.Exists(path)
}

// vsSetupCommand returns the batch line that sets up Visual Studio version
// for arch, or "" when it is not installed.
func vsSetupCommand(report *Reporter, memo *Memo, version, arch string) string {
	if dir := vsDirectory(report, memo, version); dir != "" {
		for _, script := range vsSetupScripts[arch] {
			path := filepath.Join(dir, "bin", script)
			if checkExistence(report, memo, path) {
				return fmt.Sprintf(`call "%s"`, path)
			}
		}

		all := filepath.Join(dir, "vcvarsall.bat")
		if checkExistence(report, memo, all) {
			if arch == "x64" {
				return fmt.Sprintf(`call "%s" amd64`, all)
			}
			return fmt.Sprintf(`call "%s"`, all)
		}
	}

	if dir := wsdkDirectory(report, memo, version); dir != "" {
		setenv := filepath.Join(dir, "bin", "setenv.cmd")
		if checkExistence(report, memo, setenv) {
			return fmt.Sprintf(`call "%s" /%s`, setenv, arch)
		}
	}
	return ""
}
