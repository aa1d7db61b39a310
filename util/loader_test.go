package util

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
}

func TestLoadDirectoryImages(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "frame-10.jpg", "frame-2.png", "notes.txt", "b.JPEG", "a.bmp")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.jpg"), 0o755))

	images, err := LoadDirectoryImageFiles(dir)
	require.NoError(t, err)

	var names []string
	for _, img := range images {
		names = append(names, filepath.Base(img.Path))
	}
	assert.Equal(t, []string{"frame-2.png", "frame-10.jpg", "a.bmp", "b.JPEG"}, names)
	assert.Equal(t, 2, images[0].Frame)
	assert.Equal(t, -1, images[2].Frame)
}

func TestLoadDirectoryImagesMissing(t *testing.T) {
	_, err := LoadDirectoryImageFiles(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestExpandImagePaths(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "frame-1.jpg", "frame-0.jpg")
	single := filepath.Join(t.TempDir(), "face.png")
	require.NoError(t, os.WriteFile(single, []byte("x"), 0o644))

	paths, err := ExpandImagePaths([]string{single, dir})
	require.NoError(t, err)
	assert.Equal(t, []string{single, filepath.Join(dir, "frame-0.jpg"), filepath.Join(dir, "frame-1.jpg")}, paths)

	_, err = ExpandImagePaths([]string{filepath.Join(dir, "missing.png")})
	assert.Error(t, err)
}

func TestIsImage(t *testing.T) {
	assert.True(t, IsImage("a.JPG"))
	assert.True(t, IsImage("dir/b.png"))
	assert.False(t, IsImage("c.gif"))
	assert.False(t, IsImage("noext"))
}
