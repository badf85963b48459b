package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testExts = []string{".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp"}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir(), testExts)
	require.NoError(t, err)
	return s
}

func writeImage(t *testing.T, s *Store, folder, name, content string) {
	t.Helper()
	dir := s.Root()
	if folder != "" {
		dir = filepath.Join(dir, folder)
		require.NoError(t, os.MkdirAll(dir, 0o755))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestNewCreatesRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "nested", "uploads")
	_, err := New(root, testExts)
	require.NoError(t, err)

	st, err := os.Stat(root)
	require.NoError(t, err)
	assert.True(t, st.IsDir())
}

func TestCreateFolder(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.CreateFolder("gallery"))

	err := s.CreateFolder("gallery")
	assert.ErrorIs(t, err, ErrExists)

	folders, err := s.ListFolders()
	require.NoError(t, err)
	assert.Equal(t, []string{"gallery"}, folders)
}

func TestCreateFolderRejectsTraversal(t *testing.T) {
	s := newTestStore(t)

	assert.ErrorIs(t, s.CreateFolder(".."), ErrBadName)
	assert.ErrorIs(t, s.CreateFolder("a/b"), ErrBadName)
	assert.ErrorIs(t, s.CreateFolder(`a\b`), ErrBadName)
}

func TestListImagesNewestFirst(t *testing.T) {
	s := newTestStore(t)
	writeImage(t, s, "", "a.jpg", "a")
	writeImage(t, s, "", "b.jpg", "b")
	writeImage(t, s, "", "c.jpg", "c")

	now := time.Now()
	require.NoError(t, os.Chtimes(filepath.Join(s.Root(), "a.jpg"), now, now.Add(-2*time.Hour)))
	require.NoError(t, os.Chtimes(filepath.Join(s.Root(), "b.jpg"), now, now.Add(-1*time.Hour)))
	require.NoError(t, os.Chtimes(filepath.Join(s.Root(), "c.jpg"), now, now))

	entries, err := s.ListImages("")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "c.jpg", entries[0].Name)
	assert.Equal(t, "b.jpg", entries[1].Name)
	assert.Equal(t, "a.jpg", entries[2].Name)
}

func TestListImagesFiltersNonImages(t *testing.T) {
	s := newTestStore(t)
	writeImage(t, s, "", "keep.png", "x")
	writeImage(t, s, "", "notes.txt", "x")
	writeImage(t, s, "", "noext", "x")
	require.NoError(t, s.CreateFolder("sub"))

	entries, err := s.ListImages("")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "keep.png", entries[0].Name)
}

func TestListImagesMissingFolder(t *testing.T) {
	s := newTestStore(t)
	_, err := s.ListImages("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListImagesScopedToFolder(t *testing.T) {
	s := newTestStore(t)
	writeImage(t, s, "", "root.jpg", "r")
	writeImage(t, s, "gallery", "inside.jpg", "i")

	entries, err := s.ListImages("gallery")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "inside.jpg", entries[0].Name)
	assert.Equal(t, "gallery", entries[0].Folder)

	rootEntries, err := s.ListImages("")
	require.NoError(t, err)
	require.Len(t, rootEntries, 1)
	assert.Equal(t, "root.jpg", rootEntries[0].Name)
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)
	writeImage(t, s, "gallery", "x.jpg", "x")

	require.NoError(t, s.Delete("gallery", "x.jpg"))
	_, err := os.Stat(filepath.Join(s.Root(), "gallery", "x.jpg"))
	assert.True(t, os.IsNotExist(err))

	assert.ErrorIs(t, s.Delete("gallery", "x.jpg"), ErrNotFound)
	assert.ErrorIs(t, s.Delete("", "../escape.jpg"), ErrBadName)
}

func TestDeleteRefusesFolders(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.CreateFolder("events"))

	// An empty folder must not be removable through the file-delete path.
	assert.ErrorIs(t, s.Delete("", "events"), ErrNotFound)

	st, err := os.Stat(filepath.Join(s.Root(), "events"))
	require.NoError(t, err)
	assert.True(t, st.IsDir())
}

func TestRename(t *testing.T) {
	s := newTestStore(t)
	writeImage(t, s, "", "old.jpg", "data")
	writeImage(t, s, "", "taken.jpg", "other")

	assert.ErrorIs(t, s.Rename("", "old.jpg", "taken.jpg"), ErrExists)

	// The conflicting source must be untouched after the failed attempt.
	b, err := os.ReadFile(filepath.Join(s.Root(), "old.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "data", string(b))

	require.NoError(t, s.Rename("", "old.jpg", "new.jpg"))
	b, err = os.ReadFile(filepath.Join(s.Root(), "new.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "data", string(b))

	assert.ErrorIs(t, s.Rename("", "gone.jpg", "other.jpg"), ErrNotFound)
	assert.ErrorIs(t, s.Rename("", "new.jpg", "../out.jpg"), ErrBadName)
}

func TestSaveFileAndMoveToFolder(t *testing.T) {
	s := newTestStore(t)

	n, err := s.SaveFile("pic.png", strings.NewReader("content"))
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)

	// Overwrite is silent.
	n, err = s.SaveFile("pic.png", strings.NewReader("new"))
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	require.NoError(t, s.MoveToFolder("pic.png", "album"))
	b, err := os.ReadFile(filepath.Join(s.Root(), "album", "pic.png"))
	require.NoError(t, err)
	assert.Equal(t, "new", string(b))

	_, err = os.Stat(filepath.Join(s.Root(), "pic.png"))
	assert.True(t, os.IsNotExist(err))
}

func TestFilePath(t *testing.T) {
	s := newTestStore(t)

	p, err := s.FilePath("album", "pic.png")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(s.Root(), "album", "pic.png"), p)

	_, err = s.FilePath("", "")
	assert.ErrorIs(t, err, ErrBadName)

	_, err = s.FilePath("..", "pic.png")
	assert.ErrorIs(t, err, ErrBadName)
}
