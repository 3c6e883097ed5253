// Package objectstore defines the polymorphic object-storage contract
// consumed by the upload processor and retrieval paths, plus the variant
// backends that implement it.
package objectstore

import (
	"context"
	"io"
	"path"
	"strings"
	"time"

	"github.com/marmos91/docstore/pkg/storeerr"
)

// Store is the capability set every backend variant implements: put, get,
// delete, exists, signed-url, put-text, get-text.
type Store interface {
	// Put persists data under key. It must be durable on return: fsync for
	// local backends, a server acknowledgment for remote ones.
	Put(ctx context.Context, key string, r io.Reader, size int64) error

	// Get opens a reader over the object at key, or fails NotFound.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes the object at key. Idempotent.
	Delete(ctx context.Context, key string) error

	// Exists reports whether key is visible yet. Recovery paths use this
	// to verify a prior Put before trusting it, since no backend's Put
	// acknowledgment is assumed to imply immediate visibility elsewhere.
	Exists(ctx context.Context, key string) (bool, error)

	// SignedURL returns a time-limited URL for key, for backends that
	// support it.
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)

	// PutText is a convenience wrapper over Put for small text artifacts
	// (e.g. markdown_ref contents).
	PutText(ctx context.Context, key string, text string) error

	// GetText is a convenience wrapper over Get for small text artifacts.
	GetText(ctx context.Context, key string) (string, error)
}

// NormalizeKey normalizes separators to '/' and resolves '.' and '..'
// segments as if the key were rooted, so no key climbs above the backend's
// root ("../../x" becomes "x"). A key that normalizes to empty is rejected.
func NormalizeKey(key string) (string, error) {
	key = strings.ReplaceAll(key, `\`, "/")
	key = strings.Trim(key, "/")
	clean := path.Clean("/" + key)[1:]
	if clean == ".." || strings.HasPrefix(clean, "../") || strings.Contains(clean, "/../") {
		return "", storeerr.Wrap("objectstore.normalizekey", key, storeerr.ErrInconsistent)
	}
	if clean == "" {
		return "", storeerr.Wrap("objectstore.normalizekey", key, storeerr.ErrInconsistent)
	}
	return clean, nil
}
