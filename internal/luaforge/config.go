package luaforge

import (
	"bufio"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// Config holds raw KEY=VALUE settings from the config file and LUAFORGE_* environment.
type Config struct {
	Values map[string]string
}

// defaultConfigPath returns ~/.config/luaforge/luaforge.conf, or "" without a home directory.
func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "luaforge", "luaforge.conf")
}

// loadConfig reads path if it exists and merges environment overrides.
// A missing file is not an error.
func loadConfig(path string) (*Config, error) {
	cfg := &Config{Values: make(map[string]string)}

	if path != "" {
		file, err := os.Open(path)
		if err == nil {
			defer file.Close()
			scanner := bufio.NewScanner(file)
			for scanner.Scan() {
				line := strings.TrimSpace(scanner.Text())
				if line == "" || strings.HasPrefix(line, "#") {
					continue
				}
				key, val, ok := strings.Cut(line, "=")
				if !ok {
					continue
				}
				cfg.Values[strings.TrimSpace(key)] = strings.Trim(strings.TrimSpace(val), `"'`)
			}
			if err := scanner.Err(); err != nil {
				return cfg, err
			}
		} else if !os.IsNotExist(err) {
			return cfg, err
		}
	}

	mergeEnvOverrides(cfg, os.Environ())
	return cfg, nil
}

// mergeEnvOverrides copies LUAFORGE_* and MIRROR_* variables over file values.
func mergeEnvOverrides(cfg *Config, environ []string) {
	for _, env := range environ {
		if !strings.HasPrefix(env, "LUAFORGE_") && !strings.HasPrefix(env, "MIRROR_") {
			continue
		}
		if key, val, ok := strings.Cut(env, "="); ok {
			cfg.Values[key] = val
		}
	}
}

func (c *Config) get(key, fallback string) string {
	if v, ok := c.Values[key]; ok && v != "" {
		return v
	}
	return fallback
}

func (c *Config) duration(key string, fallback time.Duration) time.Duration {
	v := c.Values[key]
	if v == "" {
		return fallback
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return fallback
	}
	return time.Duration(secs) * time.Second
}

// Options is the frozen configuration of one run. It is built once by the CLI
// and passed by value; nothing mutates it afterwards.
type Options struct {
	Location string

	Lua      string
	LuaJIT   string
	MoonJIT  string
	LuaRocks string

	Show bool
	Log  string

	IgnoreInstalled bool
	Patch           bool
	NoReadline      bool
	NoGitCache      bool
	IgnoreChecksums bool
	Verbose         bool

	Compat string
	CFlags string
	Target string

	Timeout   time.Duration
	Downloads string
	Builds    string
	Mirrors   []Mirror

	// Windows selects Windows file names and install layouts. It follows the
	// host unless a test overrides it.
	Windows bool
	// DefaultTarget is the target that would be picked without --target.
	DefaultTarget string
}

func (o Options) UsingCL() bool {
	return strings.HasPrefix(o.Target, "vs")
}

func (o Options) Exe(name string) string {
	if o.Windows {
		return name + ".exe"
	}
	return name
}

func (o Options) ObjExt() string {
	if o.UsingCL() {
		return ".obj"
	}
	return ".o"
}

func (o Options) Requested() bool {
	return o.Lua != "" || o.LuaJIT != "" || o.MoonJIT != "" || o.LuaRocks != ""
}

// defaultDownloads returns the per-user cache directory, or "" when it cannot be determined.
func defaultDownloads() string {
	if runtime.GOOS == "windows" {
		root := os.Getenv("LOCALAPPDATA")
		if root == "" {
			profile := os.Getenv("USERPROFILE")
			if profile == "" {
				return ""
			}
			root = filepath.Join(profile, "Local Settings", "Application Data")
		}
		return filepath.Join(root, "luaforge", "Cache")
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ""
	}
	return filepath.Join(home, ".cache", "luaforge")
}
