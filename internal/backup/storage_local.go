package backup

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	apperrors "hospital-backup/internal/errors"
)

// LocalStore keeps replicas in a directory, typically a mounted off-site volume
type LocalStore struct {
	basePath    string
	permissions os.FileMode
}

// NewLocalStore creates the base directory if needed
func NewLocalStore(basePath string) (*LocalStore, error) {
	if strings.TrimSpace(basePath) == "" {
		return nil, apperrors.NewValidationError("local store path is required", nil)
	}

	store := &LocalStore{
		basePath:    filepath.Clean(basePath),
		permissions: 0o750,
	}
	if err := os.MkdirAll(store.basePath, store.permissions); err != nil {
		return nil, apperrors.NewStorageError("failed to create base directory", err)
	}
	return store, nil
}

func (ls *LocalStore) path(key string) (string, error) {
	p := filepath.Join(ls.basePath, filepath.FromSlash(key))
	if p != ls.basePath && !strings.HasPrefix(p, ls.basePath+string(filepath.Separator)) {
		return "", apperrors.NewValidationError(fmt.Sprintf("key %q escapes the store", key), nil)
	}
	return p, nil
}

// Put writes the object atomically
func (ls *LocalStore) Put(ctx context.Context, key string, r io.Reader, _ map[string]string) error {
	dst, err := ls.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), ls.permissions); err != nil {
		return apperrors.NewStorageError("failed to create replica directory", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*.tmp")
	if err != nil {
		return apperrors.NewStorageError("failed to create temporary replica", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return apperrors.NewStorageError(fmt.Sprintf("failed to write replica %s", key), err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return apperrors.NewStorageError("failed to sync replica", err)
	}
	if err := tmp.Close(); err != nil {
		return apperrors.NewStorageError("failed to close replica", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return apperrors.NewStorageError("failed to move replica into place", err)
	}
	return nil
}

// Get opens the object
func (ls *LocalStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	p, err := ls.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.NewNotFoundError(fmt.Sprintf("replica %s not found", key), err)
		}
		return nil, apperrors.NewStorageError(fmt.Sprintf("failed to open replica %s", key), err)
	}
	return f, nil
}

// Exists reports whether the object is present
func (ls *LocalStore) Exists(_ context.Context, key string) (bool, error) {
	p, err := ls.path(key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(p)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, apperrors.NewStorageError("failed to stat replica", err)
	}
	return true, nil
}

// List walks the store and returns objects whose key starts with prefix
func (ls *LocalStore) List(_ context.Context, prefix string) ([]ObjectInfo, error) {
	var objects []ObjectInfo
	err := filepath.WalkDir(ls.basePath, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasSuffix(d.Name(), ".tmp") {
			return nil
		}
		rel, err := filepath.Rel(ls.basePath, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		objects = append(objects, ObjectInfo{Key: key, Size: info.Size(), ModTime: info.ModTime()})
		return nil
	})
	if err != nil {
		return nil, apperrors.NewStorageError("failed to list replicas", err)
	}
	return objects, nil
}

// Location implements ArtifactStore
func (ls *LocalStore) Location(key string) string {
	return filepath.Join(ls.basePath, filepath.FromSlash(key))
}
