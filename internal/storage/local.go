package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	apperrors "helpdesk/internal/errors"
)

// LocalStore keeps files on the local disk under a root directory. Paths
// returned by Save are relative to the root so the root can move.
type LocalStore struct {
	root string
}

func NewLocalStore(root string) (*LocalStore, error) {
	if root == "" {
		root = "./uploads"
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create upload root: %w", err)
	}
	return &LocalStore{root: root}, nil
}

var _ Store = (*LocalStore)(nil)

func (s *LocalStore) Save(dir, name string, r io.Reader) (string, int64, error) {
	rel := filepath.Join(dir, fmt.Sprintf("%d_%s", time.Now().UnixNano(), sanitize(name)))
	abs := filepath.Join(s.root, rel)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", 0, apperrors.NewStorageError("file store unavailable", err.Error())
	}
	f, err := os.Create(abs)
	if err != nil {
		return "", 0, apperrors.NewStorageError("file store unavailable", err.Error())
	}
	defer f.Close()
	n, err := io.Copy(f, r)
	if err != nil {
		os.Remove(abs)
		return "", 0, apperrors.NewStorageError("file write failed", err.Error())
	}
	return rel, n, nil
}

func (s *LocalStore) Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(s.root, path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.NewNotFoundError("file not found")
		}
		return nil, apperrors.NewStorageError("file store unavailable", err.Error())
	}
	return f, nil
}

func (s *LocalStore) Delete(path string) error {
	err := os.Remove(filepath.Join(s.root, path))
	if err != nil && !os.IsNotExist(err) {
		return apperrors.NewStorageError("file delete failed", err.Error())
	}
	return nil
}

func (s *LocalStore) Exists(path string) bool {
	_, err := os.Stat(filepath.Join(s.root, path))
	return err == nil
}

// sanitize strips path separators and other hostile characters from uploaded
// file names before they touch the filesystem.
func sanitize(name string) string {
	name = filepath.Base(name)
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}
