package luaforge

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildCache(t *testing.T) {
	cache := BuildCache{Root: filepath.Join(t.TempDir(), "builds")}
	id := Identity{Name: "Lua", Source: "release", Version: "5.3.5"}

	_, ok := cache.Lookup(id)
	assert.False(t, ok)

	tree := t.TempDir()
	writeTree(t, tree, map[string]string{
		"src/lua":   "binary",
		".git/HEAD": "ref: refs/heads/master",
		"src/lua.h": "header",
	})
	require.NoError(t, cache.Store(id, tree))

	dir, ok := cache.Lookup(id)
	require.True(t, ok)
	assert.Equal(t, "binary", readFile(t, filepath.Join(dir, "src", "lua")))
	assert.NoDirExists(t, filepath.Join(dir, ".git"))

	entries, err := os.ReadDir(cache.Root)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no staging directories are left behind")

	other := id
	other.Version = "5.3.4"
	_, ok = cache.Lookup(other)
	assert.False(t, ok)
}
