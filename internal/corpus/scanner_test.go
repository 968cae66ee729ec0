package corpus

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("content"), 0o644))
	return path
}

func TestScan_FiltersByExtension(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.pdf")
	writeFile(t, dir, "notes.txt")
	writeFile(t, dir, "b.PDF") // case-insensitive match

	s := NewScanner([]string{".pdf"})
	paths, err := s.Scan(dir)
	require.NoError(t, err)

	require.Len(t, paths, 2)
	assert.Contains(t, paths, a)
	assert.Contains(t, paths, filepath.Join(dir, "b.PDF"))
}

func TestScan_Recursive(t *testing.T) {
	dir := t.TempDir()
	nested := writeFile(t, dir, filepath.Join("sub", "deep", "c.pdf"))

	s := NewScanner([]string{".pdf"})
	paths, err := s.Scan(dir)
	require.NoError(t, err)

	assert.Equal(t, []string{nested}, paths)
}

func TestScan_ReturnsCanonicalAbsolutePaths(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.pdf")

	wd, err := os.Getwd()
	require.NoError(t, err)
	rel, err := filepath.Rel(wd, dir)
	require.NoError(t, err)

	s := NewScanner([]string{".pdf"})
	paths, err := s.Scan(rel)
	require.NoError(t, err)

	require.Len(t, paths, 1)
	assert.True(t, filepath.IsAbs(paths[0]))
	assert.Equal(t, filepath.Join(dir, "a.pdf"), paths[0])
}

func TestScan_MissingDirectoryPropagates(t *testing.T) {
	s := NewScanner([]string{".pdf"})
	_, err := s.Scan(filepath.Join(t.TempDir(), "does-not-exist"))
	assert.Error(t, err)
}

func TestScan_SortedOutput(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "z.pdf")
	writeFile(t, dir, "a.pdf")
	writeFile(t, dir, "m.pdf")

	s := NewScanner([]string{".pdf"})
	paths, err := s.Scan(dir)
	require.NoError(t, err)

	require.Len(t, paths, 3)
	assert.True(t, paths[0] < paths[1] && paths[1] < paths[2])
}
