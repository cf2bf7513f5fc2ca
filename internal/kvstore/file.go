package kvstore

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FileStore keeps one file per key inside a directory.
// Directory is created with mode 0700, files with mode 0600.
type FileStore struct {
	dir string
}

// NewFileStore creates a file store rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

func (s *FileStore) path(key string) string {
	// Keys are fixed identifiers; keep them from escaping the directory.
	key = strings.ReplaceAll(key, string(filepath.Separator), "_")
	return filepath.Join(s.dir, key)
}

// Get implements Store.
func (s *FileStore) Get(ctx context.Context, key string) (string, bool, error) {
	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return string(data), true, nil
}

// Set implements Store.
func (s *FileStore) Set(ctx context.Context, key, value string) error {
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return err
	}
	return os.WriteFile(s.path(key), []byte(value), 0600)
}

// Delete implements Store.
func (s *FileStore) Delete(ctx context.Context, key string) error {
	err := os.Remove(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// Close implements Store.
func (s *FileStore) Close() error { return nil }
