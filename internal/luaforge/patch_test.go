package luaforge

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const lettersPatch = `
	letters.txt:
	@@ -2,3 +2,3 @@
	 b
	-c
	+C
	 d
`

func TestParsePatch(t *testing.T) {
	p, err := ParsePatch(lettersPatch)
	require.NoError(t, err)

	require.Len(t, p.Files, 1)
	fp := p.Files[0]
	assert.Equal(t, "letters.txt", fp.Name)
	require.Len(t, fp.Hunks, 1)
	assert.Equal(t, 2, fp.Hunks[0].Start)
	assert.Equal(t, []HunkLine{
		{Context, "b"}, {Remove, "c"}, {Add, "C"}, {Context, "d"},
	}, fp.Hunks[0].Lines)
}

func TestParsePatch_Errors(t *testing.T) {
	for name, text := range map[string]string{
		"line before file": "@@ -1 @@\n x\n",
		"line before hunk": "a.c:\n x\n",
		"bad hunk header":  "a.c:\n@@ +1 @@\n x\n",
		"bad line":         "a.c:\n@@ -1 @@\n*x\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParsePatch(text)
			assert.ErrorIs(t, err, ErrPatch)
		})
	}
}

func TestPatch_Apply(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{"letters.txt": "a\nb\nc\nd\ne\n"})

	p, err := ParsePatch(lettersPatch)
	require.NoError(t, err)
	require.NoError(t, p.Apply(dir))

	assert.Equal(t, "a\nb\nC\nd\ne\n", readFile(t, filepath.Join(dir, "letters.txt")))
}

func TestPatch_ApplyBlankContext(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{"f.c": "int x;\n\nint y;\n"})

	p, err := ParsePatch("f.c:\n@@ -1,3 +1,3 @@\n int x;\n\n-int y;\n+long y;\n")
	require.NoError(t, err)
	require.NoError(t, p.Apply(dir))

	assert.Equal(t, "int x;\n\nlong y;\n", readFile(t, filepath.Join(dir, "f.c")))
}

func TestPatch_ApplyIsAllOrNothing(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{
		"one.c": "a\nb\n",
		"two.c": "x\ny\n",
	})

	p, err := ParsePatch("one.c:\n@@ -1 @@\n-a\n+A\ntwo.c:\n@@ -1 @@\n-q\n+Q\n")
	require.NoError(t, err)

	err = p.Apply(dir)
	require.ErrorIs(t, err, ErrPatch)
	assert.Equal(t, "source is different", describe(err))
	assert.Equal(t, "a\nb\n", readFile(t, filepath.Join(dir, "one.c")))
}

func TestPatch_ApplyErrors(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{"short.c": "a\n"})

	p, err := ParsePatch("missing.c:\n@@ -1 @@\n a\n")
	require.NoError(t, err)
	assert.Equal(t, "missing.c doesn't exist", describe(p.Apply(dir)))

	p, err = ParsePatch("short.c:\n@@ -5 @@\n a\n")
	require.NoError(t, err)
	assert.Equal(t, "source is too short", describe(p.Apply(dir)))
}

func TestBuiltinPatchesParse(t *testing.T) {
	for major, byMinor := range patchesByVersion {
		for minor, names := range byMinor {
			for _, name := range names {
				text, ok := builtinPatches[name]
				require.True(t, ok, "%s.%s: %s", major, minor, name)
				_, err := ParsePatch(text)
				assert.NoError(t, err, name)
			}
		}
	}
}
