package archive

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeZip(t *testing.T, entries map[string]string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "result.zip")
	f, err := os.Create(path)
	require.NoError(t, err)

	zw := zip.NewWriter(f)
	for name, content := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return path
}

func TestExtractor_Extract_Native(t *testing.T) {
	archivePath := writeZip(t, map[string]string{
		"book.md":         "# Title",
		"images/fig1.png": "png",
		"images/":         "",
	})
	dest := filepath.Join(t.TempDir(), "out")
	extractor := NewExtractor(log.NewLogger(), env.NewRepository(), NativeOnly{})

	files, err := extractor.Extract(archivePath, dest)

	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		filepath.Join(dest, "book.md"),
		filepath.Join(dest, "images", "fig1.png"),
	}, files)
	content, err := os.ReadFile(filepath.Join(dest, "book.md"))
	require.NoError(t, err)
	assert.Equal(t, "# Title", string(content))
	assert.DirExists(t, filepath.Join(dest, "images"))
}

func TestExtractor_Extract_Binary(t *testing.T) {
	checker := NewBinaryChecker(log.NewLogger(), env.NewRepository())
	if !checker.CheckDependencies() {
		t.Skip("unzip is not installed")
	}
	archivePath := writeZip(t, map[string]string{"nested/book.md": "# Title"})
	dest := t.TempDir()

	files, err := NewExtractor(log.NewLogger(), env.NewRepository(), checker).Extract(archivePath, dest)

	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dest, "nested", "book.md")}, files)
	assert.FileExists(t, filepath.Join(dest, "nested", "book.md"))
}

func TestExtractor_Extract_RejectsTraversal(t *testing.T) {
	archivePath := writeZip(t, map[string]string{"../escape.md": "x"})
	dest := filepath.Join(t.TempDir(), "out")
	extractor := NewExtractor(log.NewLogger(), env.NewRepository(), NativeOnly{})

	_, err := extractor.Extract(archivePath, dest)

	require.Error(t, err)
	assert.NoFileExists(t, filepath.Join(filepath.Dir(dest), "escape.md"))
}

type alwaysAvailable struct{}

func (alwaysAvailable) CheckDependencies() bool { return true }

func writeSymlinkZip(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "result.zip")
	f, err := os.Create(path)
	require.NoError(t, err)

	zw := zip.NewWriter(f)
	header := &zip.FileHeader{Name: "link", Method: zip.Store}
	header.SetMode(os.ModeSymlink | 0o777)
	w, err := zw.CreateHeader(header)
	require.NoError(t, err)
	_, err = w.Write([]byte("../../outside"))
	require.NoError(t, err)

	w, err = zw.Create("link/evil.md")
	require.NoError(t, err)
	_, err = w.Write([]byte("x"))
	require.NoError(t, err)

	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return path
}

func TestExtractor_Extract_RejectsSymlinks(t *testing.T) {
	tests := []struct {
		name    string
		checker DependencyChecker
	}{
		{name: "native", checker: NativeOnly{}},
		{name: "unzip binary", checker: alwaysAvailable{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			archivePath := writeSymlinkZip(t)
			dest := filepath.Join(t.TempDir(), "out")

			_, err := NewExtractor(log.NewLogger(), env.NewRepository(), tt.checker).Extract(archivePath, dest)

			require.Error(t, err)
			assert.Contains(t, err.Error(), "symlink in archive: link")
			entries, err := os.ReadDir(dest)
			require.NoError(t, err)
			assert.Empty(t, entries)
		})
	}
}

func TestExtractor_Extract_NotAZip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "result.zip")
	require.NoError(t, os.WriteFile(path, []byte("not a zip"), 0o600))

	_, err := NewExtractor(log.NewLogger(), env.NewRepository(), NativeOnly{}).Extract(path, t.TempDir())

	assert.Error(t, err)
}

func TestExtractor_Extract_EmptyDestination(t *testing.T) {
	_, err := NewExtractor(log.NewLogger(), env.NewRepository(), NativeOnly{}).Extract("result.zip", "")

	assert.Error(t, err)
}
