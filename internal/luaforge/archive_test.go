package luaforge

import (
	"archive/tar"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/klauspost/pgzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type archiveEntry struct {
	name, body string
	dir        bool
	link       string
}

func writeTarGz(t *testing.T, path string, entries []archiveEntry) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	gz := pgzip.NewWriter(f)
	tw := tar.NewWriter(gz)
	for _, e := range entries {
		hdr := &tar.Header{Name: e.name, Mode: 0o644, Size: int64(len(e.body)), Typeflag: tar.TypeReg}
		switch {
		case e.dir:
			hdr = &tar.Header{Name: e.name, Mode: 0o755, Typeflag: tar.TypeDir}
		case e.link != "":
			hdr = &tar.Header{Name: e.name, Mode: 0o777, Linkname: e.link, Typeflag: tar.TypeSymlink}
		}
		require.NoError(t, tw.WriteHeader(hdr))
		if hdr.Typeflag == tar.TypeReg {
			_, err := tw.Write([]byte(e.body))
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
}

func TestStripArchiveSuffix(t *testing.T) {
	assert.Equal(t, "lua-5.3.5", stripArchiveSuffix("lua-5.3.5.tar.gz"))
	assert.Equal(t, "luarocks-2.4.4-win32", stripArchiveSuffix("luarocks-2.4.4-win32.zip"))
	assert.Equal(t, "plain", stripArchiveSuffix("plain"))
}

func TestExtractTarGz(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "lua-5.3.5.tar.gz")
	writeTarGz(t, archive, []archiveEntry{
		{name: "lua-5.3.5/", dir: true},
		{name: "lua-5.3.5/src/lua.h", body: "header"},
		{name: "lua-5.3.5/Makefile", body: "all:"},
	})

	dest := filepath.Join(dir, "out")
	require.NoError(t, extractArchive(archive, dest))
	assert.Equal(t, "header", readFile(t, filepath.Join(dest, "src", "lua.h")))
	assert.FileExists(t, filepath.Join(dest, "Makefile"))
}

func TestExtractTar_RejectsEscapes(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "evil.tar.gz")
	writeTarGz(t, archive, []archiveEntry{
		{name: "pkg/", dir: true},
		{name: "pkg/../../evil", body: "x"},
	})

	assert.Error(t, extractArchive(archive, filepath.Join(dir, "out", "pkg")))
	assert.NoFileExists(t, filepath.Join(dir, "evil"))
}

func TestExtractTar_Symlinks(t *testing.T) {
	tests := []struct {
		name    string
		entries []archiveEntry
		wantErr bool
	}{
		{
			name: "link inside tree",
			entries: []archiveEntry{
				{name: "pkg/", dir: true},
				{name: "pkg/src/lua.h", body: "header"},
				{name: "pkg/include", link: "src"},
			},
		},
		{
			name: "relative link out of tree",
			entries: []archiveEntry{
				{name: "pkg/", dir: true},
				{name: "pkg/up", link: "../.."},
				{name: "pkg/up/evil", body: "x"},
			},
			wantErr: true,
		},
		{
			name: "absolute link",
			entries: []archiveEntry{
				{name: "pkg/", dir: true},
				{name: "pkg/etc", link: "/etc"},
			},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if runtime.GOOS == "windows" {
				t.Skip("symlinks need privileges on windows")
			}
			dir := t.TempDir()
			archive := filepath.Join(dir, "links.tar.gz")
			writeTarGz(t, archive, tt.entries)
			dest := filepath.Join(dir, "out", "pkg")

			err := extractArchive(archive, dest)
			if tt.wantErr {
				require.Error(t, err)
				assert.NoFileExists(t, filepath.Join(dir, "evil"))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "header", readFile(t, filepath.Join(dest, "include", "lua.h")))
		})
	}
}

func TestExtractZip(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "luarocks-2.4.4-win32.zip")

	f, err := os.Create(archive)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for name, body := range map[string]string{
		"luarocks-2.4.4-win32/install.bat":   "@echo off",
		"luarocks-2.4.4-win32/src/bin/rocks": "",
	} {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	dest := filepath.Join(dir, "out")
	require.NoError(t, extractArchive(archive, dest))
	assert.Equal(t, "@echo off", readFile(t, filepath.Join(dest, "install.bat")))
	assert.FileExists(t, filepath.Join(dest, "src", "bin", "rocks"))
}

func TestTopPrefix(t *testing.T) {
	assert.Equal(t, "a/", topPrefix([]string{"a/", "a/b", "a/c/d"}))
	assert.Empty(t, topPrefix([]string{"a/b", "c/d"}))
	assert.Empty(t, topPrefix([]string{"a/b", "file"}))
}
