package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Storage persists uploaded objects under flat names.
type Storage interface {
	Put(ctx context.Context, name string, r io.Reader, size int64, contentType string) error
	Delete(ctx context.Context, name string) error
	// URL maps a stored name to a client-facing URL. origin is scheme://host of
	// the current request and may be ignored by backends with a fixed base.
	URL(origin, name string) string
}

var ErrBadName = errors.New("invalid object name")

// cleanName rejects anything that is not a bare file name.
func cleanName(name string) (string, error) {
	base := filepath.Base(name)
	if name == "" || base != name || base == "." || base == ".." || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrBadName, name)
	}
	return base, nil
}

// LocalStorage writes objects into one directory served under /uploads/.
type LocalStorage struct {
	root    string
	baseURL string
}

// NewLocalStorage creates root if needed. baseURL, when set, replaces the
// request origin in public URLs.
func NewLocalStorage(root, baseURL string) (*LocalStorage, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &LocalStorage{root: root, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Root is the directory the files live in.
func (s *LocalStorage) Root() string { return s.root }

func (s *LocalStorage) Put(_ context.Context, name string, r io.Reader, _ int64, _ string) error {
	base, err := cleanName(name)
	if err != nil {
		return err
	}
	path := filepath.Join(s.root, base)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", base, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return fmt.Errorf("write %s: %w", base, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return fmt.Errorf("close %s: %w", base, err)
	}
	return nil
}

// Delete removes the file. A missing file is not an error.
func (s *LocalStorage) Delete(_ context.Context, name string) error {
	base, err := cleanName(name)
	if err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(s.root, base)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (s *LocalStorage) URL(origin, name string) string {
	base := s.baseURL
	if base == "" {
		base = strings.TrimRight(origin, "/")
	}
	return base + "/uploads/" + name
}
