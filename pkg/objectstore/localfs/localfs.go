// Package localfs implements the object storage interface over the local
// filesystem: an atomic temp-file-then-rename write path over arbitrary
// payload/markdown keys. It has no listing operation.
package localfs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/marmos91/docstore/pkg/objectstore"
	"github.com/marmos91/docstore/pkg/storeerr"
)

// Store is a filesystem-backed objectstore.Store. Every key is rooted
// under basePath; writes go to a sibling ".tmp" file then get renamed in.
type Store struct {
	mu       sync.RWMutex
	basePath string
	closed   bool

	// urlPrefix, if set, is prepended to a key to build a loopback URL for
	// SignedURL, since local FS has no native signed-URL concept.
	urlPrefix string
}

// Config configures the local filesystem backend.
type Config struct {
	BasePath  string
	URLPrefix string
}

// New creates the base directory if absent and returns a ready Store.
func New(cfg Config) (*Store, error) {
	if cfg.BasePath == "" {
		return nil, storeerr.Wrap("localfs.new", "", storeerr.ErrInconsistent)
	}
	if err := os.MkdirAll(cfg.BasePath, 0755); err != nil {
		return nil, storeerr.Wrap("localfs.new", cfg.BasePath, fmt.Errorf("%w: %v", storeerr.ErrBackend, err))
	}
	return &Store{basePath: cfg.BasePath, urlPrefix: cfg.URLPrefix}, nil
}

func (s *Store) pathFor(key string) (string, error) {
	clean, err := objectstore.NormalizeKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.basePath, filepath.FromSlash(clean)), nil
}

// Put writes data to a temp file beside the target path, fsyncs it, then
// renames it over the target for atomicity.
func (s *Store) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storeerr.Wrap("localfs.put", key, storeerr.ErrBackend)
	}

	target, err := s.pathFor(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return storeerr.Wrap("localfs.put", key, fmt.Errorf("%w: %v", storeerr.ErrBackend, err))
	}

	tmp := target + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return storeerr.Wrap("localfs.put", key, fmt.Errorf("%w: %v", storeerr.ErrBackend, err))
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(tmp)
		return storeerr.Wrap("localfs.put", key, fmt.Errorf("%w: %v", storeerr.ErrBackend, err))
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return storeerr.Wrap("localfs.put", key, fmt.Errorf("%w: %v", storeerr.ErrBackend, err))
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return storeerr.Wrap("localfs.put", key, fmt.Errorf("%w: %v", storeerr.ErrBackend, err))
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return storeerr.Wrap("localfs.put", key, fmt.Errorf("%w: %v", storeerr.ErrBackend, err))
	}
	return nil
}

// Get opens the file at key for reading.
func (s *Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, storeerr.Wrap("localfs.get", key, storeerr.ErrBackend)
	}

	target, err := s.pathFor(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(target)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storeerr.Wrap("localfs.get", key, storeerr.ErrNotFound)
		}
		return nil, storeerr.Wrap("localfs.get", key, fmt.Errorf("%w: %v", storeerr.ErrBackend, err))
	}
	return f, nil
}

// Delete removes the file at key, then prunes now-empty parent
// directories up to basePath.
func (s *Store) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storeerr.Wrap("localfs.delete", key, storeerr.ErrBackend)
	}

	target, err := s.pathFor(key)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return storeerr.Wrap("localfs.delete", key, fmt.Errorf("%w: %v", storeerr.ErrBackend, err))
	}
	s.cleanEmptyDirs(filepath.Dir(target))
	return nil
}

func (s *Store) cleanEmptyDirs(dir string) {
	for dir != s.basePath && strings.HasPrefix(dir, s.basePath) {
		if err := os.Remove(dir); err != nil {
			break
		}
		dir = filepath.Dir(dir)
	}
}

// Exists reports whether a file is present at key.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false, storeerr.Wrap("localfs.exists", key, storeerr.ErrBackend)
	}
	target, err := s.pathFor(key)
	if err != nil {
		return false, err
	}
	_, statErr := os.Stat(target)
	if statErr == nil {
		return true, nil
	}
	if os.IsNotExist(statErr) {
		return false, nil
	}
	return false, storeerr.Wrap("localfs.exists", key, fmt.Errorf("%w: %v", storeerr.ErrBackend, statErr))
}

// SignedURL returns a loopback-style URL the HTTP adapter (external to
// this core) can serve, since local FS has no remote URL-signing concept.
func (s *Store) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	clean, err := objectstore.NormalizeKey(key)
	if err != nil {
		return "", err
	}
	if ok, err := s.Exists(ctx, key); err != nil {
		return "", err
	} else if !ok {
		return "", storeerr.Wrap("localfs.signedurl", key, storeerr.ErrNotFound)
	}
	if s.urlPrefix == "" {
		return "file://" + filepath.ToSlash(filepath.Join(s.basePath, clean)), nil
	}
	return strings.TrimRight(s.urlPrefix, "/") + "/" + clean, nil
}

// PutText writes text as the object body.
func (s *Store) PutText(ctx context.Context, key string, text string) error {
	return s.Put(ctx, key, strings.NewReader(text), int64(len(text)))
}

// GetText reads the object body as text.
func (s *Store) GetText(ctx context.Context, key string) (string, error) {
	r, err := s.Get(ctx, key)
	if err != nil {
		return "", err
	}
	defer r.Close()
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return "", storeerr.Wrap("localfs.gettext", key, fmt.Errorf("%w: %v", storeerr.ErrBackend, err))
	}
	return buf.String(), nil
}

// Close marks the store closed; further operations fail.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

var _ objectstore.Store = (*Store)(nil)
