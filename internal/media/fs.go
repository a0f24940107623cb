package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// FSStore writes media files under a local directory. Intended for
// development and tests; references are served from the /media path.
type FSStore struct {
	dir    string
	public string
}

// NewFSStore ensures the target directory exists.
func NewFSStore(dir string) (*FSStore, error) {
	if dir == "" {
		return nil, errors.New("media directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create media directory: %w", err)
	}
	return &FSStore{dir: dir, public: "/media"}, nil
}

// Put writes the body to disk under key and returns the public reference.
func (s *FSStore) Put(ctx context.Context, key, contentType string, body io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	clean := filepath.Clean(key)
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid media key %q", key)
	}
	target := filepath.Join(s.dir, clean)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("create media subdirectory: %w", err)
	}
	file, err := os.Create(target)
	if err != nil {
		return "", fmt.Errorf("create media file: %w", err)
	}
	if _, err := io.Copy(file, body); err != nil {
		file.Close()
		os.Remove(target)
		return "", fmt.Errorf("write media file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(target)
		return "", fmt.Errorf("close media file: %w", err)
	}
	return s.public + "/" + filepath.ToSlash(clean), nil
}

var _ Store = (*FSStore)(nil)
