package luaforge

import (
	"encoding/json"
	"os"
	"path/filepath"

	"go.trai.ch/zerr"
)

// Manifest records the identity of each package installed in a location.
// On disk it is a JSON object with a "version" field and one entry per package.
type Manifest struct {
	packages map[string]Identity
}

func manifestPath(location string) string {
	return filepath.Join(location, manifestFile)
}

// LoadManifest reads the manifest of location. A missing, unreadable,
// malformed or differently versioned manifest yields an empty one.
func LoadManifest(location string) *Manifest {
	m := &Manifest{packages: make(map[string]Identity)}

	data, err := os.ReadFile(manifestPath(location))
	if err != nil {
		return m
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return m
	}

	var v int
	if err := json.Unmarshal(raw["version"], &v); err != nil || v != manifestVersion {
		return m
	}

	packages := make(map[string]Identity, len(raw))
	for name, entry := range raw {
		if name == "version" {
			continue
		}
		var id Identity
		if err := json.Unmarshal(entry, &id); err != nil {
			return m
		}
		packages[name] = id
	}
	m.packages = packages
	return m
}

func (m *Manifest) Get(name string) (Identity, bool) {
	id, ok := m.packages[name]
	return id, ok
}

func (m *Manifest) Set(name string, id Identity) {
	m.packages[name] = id
}

func (m *Manifest) Delete(name string) {
	delete(m.packages, name)
}

func (m *Manifest) Empty() bool {
	return len(m.packages) == 0
}

// Save writes the manifest atomically into location.
func (m *Manifest) Save(location string) error {
	doc := make(map[string]any, len(m.packages)+1)
	for name, id := range m.packages {
		doc[name] = id
	}
	doc["version"] = manifestVersion

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return zerr.Wrap(err, "failed to encode manifest")
	}

	if err := os.MkdirAll(location, 0o755); err != nil {
		return zerr.Wrap(err, "failed to create "+location)
	}
	tmp, err := os.CreateTemp(location, "."+manifestFile+"-")
	if err != nil {
		return zerr.Wrap(err, "failed to write manifest")
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return zerr.Wrap(err, "failed to write manifest")
	}
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return zerr.Wrap(err, "failed to write manifest")
	}
	if err := tmp.Close(); err != nil {
		return zerr.Wrap(err, "failed to write manifest")
	}
	if err := os.Rename(tmp.Name(), manifestPath(location)); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to replace manifest"), "location", location)
	}
	return nil
}
