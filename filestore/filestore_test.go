package filestore

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCandidateName(t *testing.T) {
	tests := []struct {
		name string
		n    int
		want string
	}{
		{"report.txt", 0, "report.txt"},
		{"report.txt", 1, "report_1.txt"},
		{"report.txt", 2, "report_2.txt"},
		{"data", 1, "data_1"},
		{"data", 12, "data_12"},
		{"archive.tar.gz", 1, "archive.tar.gz_1"},
		{"notes.TXT", 1, "notes.TXT_1"},
	}
	for _, test := range tests {
		assert.Equal(t, test.want, CandidateName(test.name, test.n), "%s/%d", test.name, test.n)
	}
}

func TestSave(t *testing.T) {
	dir := t.TempDir()

	f, err := Save(dir, "notes.txt", []byte("line one\nline two"))
	require.NoError(t, err)
	assert.Equal(t, &SavedFile{Name: "notes.txt", Path: filepath.Join(dir, "notes.txt"), Size: 17}, f)
	checkContent(t, f.Path, "line one\nline two")
}

func TestSaveCollisionText(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "report.txt", "first")

	f, err := Save(dir, "report.txt", []byte("second"))
	require.NoError(t, err)
	assert.Equal(t, "report_1.txt", f.Name)

	f, err = Save(dir, "report.txt", []byte("third"))
	require.NoError(t, err)
	assert.Equal(t, "report_2.txt", f.Name)

	checkContent(t, filepath.Join(dir, "report.txt"), "first")
	checkContent(t, filepath.Join(dir, "report_1.txt"), "second")
	checkContent(t, filepath.Join(dir, "report_2.txt"), "third")
}

func TestSaveCollisionNoExtension(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "data", "0")
	writeFile(t, dir, "data_1", "1")

	f, err := Save(dir, "data", []byte("2"))
	require.NoError(t, err)
	assert.Equal(t, "data_2", f.Name)
	checkContent(t, filepath.Join(dir, "data_1"), "1")
}

// This test checks that directories count as existing entries.
func TestSaveCollisionDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "data"), 0755))

	f, err := Save(dir, "data", []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, "data_1", f.Name)
}

func TestSaveEmpty(t *testing.T) {
	dir := t.TempDir()
	f, err := Save(dir, "empty", nil)
	require.NoError(t, err)
	checkContent(t, f.Path, "")
}

func TestSaveInvalidName(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"", ".", "..", "a/b", "../x", `a\b`} {
		_, err := Save(dir, name, []byte("x"))
		assert.True(t, errors.Is(err, ErrInvalidName), "name %q: %v", name, err)
	}
	entries, _ := os.ReadDir(dir)
	assert.Empty(t, entries)
}

func TestSaveMissingDir(t *testing.T) {
	_, err := Save(filepath.Join(t.TempDir(), "missing"), "x", []byte("x"))
	assert.Error(t, err)
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func checkContent(t *testing.T, path, want string) {
	t.Helper()
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, want, string(content))
}
