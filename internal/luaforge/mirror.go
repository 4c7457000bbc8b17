package luaforge

import (
	"sort"
	"strings"
)

// Mirror is an extra download location tried before the upstream URLs.
type Mirror struct {
	Name      string
	URL       string // base URL for http mirrors, key prefix for s3 mirrors
	Type      string // "http" or "s3"
	Package   string // restrict to one package name, empty for all
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
}

func (m Mirror) serves(pkg string) bool {
	return m.Package == "" || strings.EqualFold(m.Package, pkg)
}

// location returns the URL (or s3 key) of fileName on this mirror.
func (m Mirror) location(fileName string) string {
	if m.URL == "" {
		return fileName
	}
	return strings.TrimSuffix(m.URL, "/") + "/" + fileName
}

func (m Mirror) String() string {
	if m.Type == "s3" {
		return "s3://" + m.Bucket + "/" + strings.TrimPrefix(m.URL, "/")
	}
	return m.URL
}

func mirrorFromConfig(cfg *Config, name string) Mirror {
	prefix := "MIRROR_" + name + "_"
	m := Mirror{
		Name:      name,
		URL:       cfg.Values[prefix+"URL"],
		Type:      cfg.get(prefix+"TYPE", "http"),
		Package:   cfg.Values[prefix+"PACKAGE"],
		Region:    cfg.get(prefix+"REGION", "auto"),
		Endpoint:  cfg.Values[prefix+"ENDPOINT"],
		AccessKey: cfg.Values[prefix+"ACCESS_KEY"],
		SecretKey: cfg.Values[prefix+"SECRET_KEY"],
		Bucket:    cfg.Values[prefix+"BUCKET"],
	}
	return m
}

// loadMirrors returns the mirrors named in MIRROR_LIST in that order, followed
// by any other MIRROR_<name>_URL entries sorted by name.
func loadMirrors(cfg *Config) []Mirror {
	var mirrors []Mirror
	seen := make(map[string]bool)

	for _, name := range strings.Split(cfg.Values["MIRROR_LIST"], ",") {
		name = strings.TrimSpace(name)
		if name == "" || seen[name] {
			continue
		}
		m := mirrorFromConfig(cfg, name)
		if m.URL != "" || (m.Type == "s3" && m.Bucket != "") {
			mirrors = append(mirrors, m)
			seen[name] = true
		}
	}

	var rest []Mirror
	for k := range cfg.Values {
		if !strings.HasPrefix(k, "MIRROR_") || !strings.HasSuffix(k, "_URL") {
			continue
		}
		name := strings.TrimSuffix(strings.TrimPrefix(k, "MIRROR_"), "_URL")
		if name == "" || seen[name] {
			continue
		}
		rest = append(rest, mirrorFromConfig(cfg, name))
		seen[name] = true
	}
	sort.Slice(rest, func(i, j int) bool {
		return rest[i].Name < rest[j].Name
	})

	return append(mirrors, rest...)
}
