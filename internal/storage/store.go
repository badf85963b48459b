// Package storage implements the filesystem-backed image catalog. The
// directory tree under the upload root is the only source of truth: folders
// are first-level subdirectories, images are loose files, and every listing
// is a fresh directory scan.
package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

var (
	ErrNotFound = errors.New("not found")
	ErrExists   = errors.New("already exists")
	ErrBadName  = errors.New("invalid name")
)

// Entry describes one image file found during a scan. The public URL is
// request-dependent and attached by the HTTP layer.
type Entry struct {
	Name    string
	Folder  string
	Size    int64
	ModTime time.Time
}

type Store struct {
	root string
	exts []string
}

// New creates the upload root if needed. allowedExts is the image extension
// allow-list (leading dot, any case) used to filter listings.
func New(root string, allowedExts []string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create upload root: %w", err)
	}
	exts := make([]string, 0, len(allowedExts))
	for _, e := range allowedExts {
		exts = append(exts, strings.ToLower(strings.TrimSpace(e)))
	}
	return &Store{root: root, exts: exts}, nil
}

func (s *Store) Root() string { return s.root }

// CreateFolder makes a first-level subdirectory. ErrExists if anything by
// that name is already present.
func (s *Store) CreateFolder(name string) error {
	dir, err := s.path(name, "")
	if err != nil {
		return err
	}
	if _, err := os.Stat(dir); err == nil {
		return ErrExists
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create folder: %w", err)
	}
	return nil
}

// ListFolders returns the names of all direct subdirectories of the root,
// in directory order.
func (s *Store) ListFolders() ([]string, error) {
	ents, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("read upload root: %w", err)
	}
	folders := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			folders = append(folders, e.Name())
		}
	}
	return folders, nil
}

// ListImages scans the root (folder == "") or a folder and returns image
// entries sorted by modification time, newest first. ErrNotFound if the
// folder does not exist.
func (s *Store) ListImages(folder string) ([]Entry, error) {
	dir, err := s.path(folder, "")
	if err != nil {
		return nil, err
	}
	if folder != "" {
		if _, err := os.Stat(dir); err != nil {
			if os.IsNotExist(err) {
				return nil, ErrNotFound
			}
			return nil, fmt.Errorf("stat folder: %w", err)
		}
	}
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read directory: %w", err)
	}
	images := make([]Entry, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() || !s.isImageName(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		images = append(images, Entry{
			Name:    e.Name(),
			Folder:  folder,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	sort.SliceStable(images, func(i, j int) bool {
		return images[i].ModTime.After(images[j].ModTime)
	})
	return images, nil
}

// Delete unlinks a single regular file. ErrNotFound if it is absent or a
// directory; folders are never deletable through this path.
func (s *Store) Delete(folder, filename string) error {
	p, err := s.path(folder, filename)
	if err != nil {
		return err
	}
	st, err := os.Stat(p)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("stat file: %w", err)
	}
	if st.IsDir() {
		return ErrNotFound
	}
	if err := os.Remove(p); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("delete file: %w", err)
	}
	return nil
}

// Rename moves a file within its folder. ErrExists if the destination is
// taken, ErrNotFound if the source is absent. The new name is not required
// to keep the original extension.
func (s *Store) Rename(folder, oldName, newName string) error {
	oldPath, err := s.path(folder, oldName)
	if err != nil {
		return err
	}
	newPath, err := s.path(folder, newName)
	if err != nil {
		return err
	}
	if _, err := os.Stat(newPath); err == nil {
		return ErrExists
	}
	if err := os.Rename(oldPath, newPath); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("rename file: %w", err)
	}
	return nil
}

// SaveFile writes an uploaded file into the root under name, overwriting any
// existing file with the same name.
func (s *Store) SaveFile(name string, r io.Reader) (int64, error) {
	p, err := s.path("", name)
	if err != nil {
		return 0, err
	}
	dst, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, fmt.Errorf("create file: %w", err)
	}
	n, err := io.Copy(dst, r)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(p)
		return 0, fmt.Errorf("write file: %w", err)
	}
	return n, nil
}

// MoveToFolder relocates a root-level file into folder, creating the folder
// if absent. Overwrites silently, matching upload collision behavior.
func (s *Store) MoveToFolder(name, folder string) error {
	src, err := s.path("", name)
	if err != nil {
		return err
	}
	dstDir, err := s.path(folder, "")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return fmt.Errorf("create folder: %w", err)
	}
	if err := os.Rename(src, filepath.Join(dstDir, name)); err != nil {
		return fmt.Errorf("move file: %w", err)
	}
	return nil
}

// FilePath returns the validated on-disk path for a (folder, filename)
// pair without checking existence.
func (s *Store) FilePath(folder, filename string) (string, error) {
	if err := checkSegment(filename, false); err != nil {
		return "", err
	}
	return s.path(folder, filename)
}

func (s *Store) isImageName(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return false
	}
	for _, e := range s.exts {
		if e == ext {
			return true
		}
	}
	return false
}

// path joins root/folder/filename after validating that both parts are
// single clean segments. folder and filename may each be empty.
func (s *Store) path(folder, filename string) (string, error) {
	if err := checkSegment(folder, true); err != nil {
		return "", err
	}
	if err := checkSegment(filename, true); err != nil {
		return "", err
	}
	return filepath.Join(s.root, folder, filename), nil
}

// checkSegment rejects anything that could traverse out of its directory.
func checkSegment(seg string, allowEmpty bool) error {
	if seg == "" {
		if allowEmpty {
			return nil
		}
		return ErrBadName
	}
	if seg == "." || seg == ".." {
		return ErrBadName
	}
	if strings.ContainsAny(seg, "/\\\x00") {
		return ErrBadName
	}
	return nil
}
