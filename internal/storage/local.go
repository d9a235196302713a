package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// DefaultLocalDir is used when no directory is configured.
const DefaultLocalDir = "./data/media"

// LocalStorage keeps images in a directory, for development without an S3 endpoint.
// Metadata is not persisted.
type LocalStorage struct {
	root      string
	publicURL string
}

// NewLocalStorage creates the root directory if needed.
func NewLocalStorage(root, publicURL string) (*LocalStorage, error) {
	if root == "" {
		root = DefaultLocalDir
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create image directory: %w", err)
	}
	return &LocalStorage{root: root, publicURL: strings.TrimSuffix(publicURL, "/")}, nil
}

// resolve maps a key into the root, refusing keys that would escape it.
func (s *LocalStorage) resolve(key string) (string, error) {
	clean := filepath.Clean("/" + filepath.FromSlash(key))
	if clean == string(filepath.Separator) {
		return "", fmt.Errorf("invalid image key %q", key)
	}
	return filepath.Join(s.root, clean), nil
}

// Put writes the image through a temporary file so readers never see a partial image.
func (s *LocalStorage) Put(ctx context.Context, obj Object) error {
	p, err := s.resolve(obj.Key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("store image %s: %w", obj.Key, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(p), ".upload-*")
	if err != nil {
		return fmt.Errorf("store image %s: %w", obj.Key, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(obj.Data); err != nil {
		tmp.Close()
		return fmt.Errorf("store image %s: %w", obj.Key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("store image %s: %w", obj.Key, err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return fmt.Errorf("store image %s: %w", obj.Key, err)
	}
	return nil
}

// Has reports whether the key is on disk.
func (s *LocalStorage) Has(ctx context.Context, key string) (bool, error) {
	p, err := s.resolve(key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(p)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("stat image %s: %w", key, err)
	}
	return true, nil
}

// Remove deletes the image. A missing image is not an error.
func (s *LocalStorage) Remove(ctx context.Context, key string) error {
	p, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove image %s: %w", key, err)
	}
	return nil
}

// URL returns the public URL, or the file path when no public URL is configured.
func (s *LocalStorage) URL(key string) string {
	if s.publicURL == "" {
		p, _ := s.resolve(key)
		return p
	}
	return s.publicURL + "/" + strings.TrimPrefix(key, "/")
}
