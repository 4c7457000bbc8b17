package luaforge

import (
	"os"
	"path/filepath"

	"go.trai.ch/zerr"
)

// BuildCache maps identities to finished build trees under Root. A directory
// named after the identity key is the entire hit test.
type BuildCache struct {
	Root string
}

func (c BuildCache) path(id Identity) string {
	return filepath.Join(c.Root, id.Key())
}

// Lookup returns the cached tree for id, if any.
func (c BuildCache) Lookup(id Identity) (string, bool) {
	p := c.path(id)
	info, err := os.Stat(p)
	if err != nil || !info.IsDir() {
		return "", false
	}
	return p, true
}

// Store copies the built tree (without .git) into the cache. The copy is
// staged next to its final name so an interrupted store never looks like a hit.
func (c BuildCache) Store(id Identity, tree string) error {
	if err := os.MkdirAll(c.Root, 0o755); err != nil {
		return zerr.Wrap(err, "failed to create build cache")
	}
	final := c.path(id)
	tmp, err := os.MkdirTemp(c.Root, ".store-")
	if err != nil {
		return zerr.Wrap(err, "failed to create build cache entry")
	}
	staged := filepath.Join(tmp, "tree")
	if err := copyDir(tree, staged); err != nil {
		_ = removeDir(tmp)
		return zerr.With(zerr.Wrap(err, "failed to cache build"), "key", id.Key())
	}
	if err := os.Rename(staged, final); err != nil {
		_ = removeDir(tmp)
		return zerr.With(zerr.Wrap(err, "failed to cache build"), "key", id.Key())
	}
	return os.Remove(tmp)
}
