// Package hosted implements the object storage interface over a hosted
// cloud object store (Google Cloud Storage), adapted from the GCS
// repository found elsewhere in the retrieved pack: same bucket/object
// writer-reader shape, serving the store's Put/Get/Delete/Exists/SignedURL
// contract.
package hosted

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"

	"github.com/marmos91/docstore/pkg/objectstore"
	"github.com/marmos91/docstore/pkg/storeerr"
)

// Store is an objectstore.Store backed by a Google Cloud Storage bucket.
type Store struct {
	client     *storage.Client
	bucketName string
	keyPrefix  string

	// signerEmail/signerPrivateKey, when set, enable SignedURL. Without
	// them the backend falls back to a gs:// reference, matching the
	// fallback the HostedObjectStore's HTTP-facing caller is expected to
	// handle (signed URLs require a service-account key, not every
	// deployment has one).
	signerEmail      string
	signerPrivateKey []byte
}

// Config configures the hosted backend.
type Config struct {
	BucketName       string
	KeyPrefix        string
	SignerEmail      string
	SignerPrivateKey []byte
}

// New constructs a Store against an already-authenticated client (built by
// the caller via the standard GCS application-default-credentials chain).
func New(client *storage.Client, cfg Config) *Store {
	return &Store{
		client:           client,
		bucketName:       cfg.BucketName,
		keyPrefix:        strings.Trim(cfg.KeyPrefix, "/"),
		signerEmail:      cfg.SignerEmail,
		signerPrivateKey: cfg.SignerPrivateKey,
	}
}

func (s *Store) key(key string) (string, error) {
	clean, err := objectstore.NormalizeKey(key)
	if err != nil {
		return "", err
	}
	if s.keyPrefix == "" {
		return clean, nil
	}
	return s.keyPrefix + "/" + clean, nil
}

func (s *Store) bucket() *storage.BucketHandle {
	return s.client.Bucket(s.bucketName)
}

// Put uploads data under key.
func (s *Store) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	k, err := s.key(key)
	if err != nil {
		return err
	}
	w := s.bucket().Object(k).NewWriter(ctx)
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return storeerr.Wrap("hosted.put", key, fmt.Errorf("%w: %v", storeerr.ErrBackend, err))
	}
	if err := w.Close(); err != nil {
		return storeerr.Wrap("hosted.put", key, fmt.Errorf("%w: %v", storeerr.ErrBackend, err))
	}
	return nil
}

// Get opens a reader over the object at key.
func (s *Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	k, err := s.key(key)
	if err != nil {
		return nil, err
	}
	r, err := s.bucket().Object(k).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, storeerr.Wrap("hosted.get", key, storeerr.ErrNotFound)
		}
		return nil, storeerr.Wrap("hosted.get", key, fmt.Errorf("%w: %v", storeerr.ErrBackend, err))
	}
	return r, nil
}

// Delete removes the object at key. Idempotent.
func (s *Store) Delete(ctx context.Context, key string) error {
	k, err := s.key(key)
	if err != nil {
		return err
	}
	if err := s.bucket().Object(k).Delete(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil
		}
		return storeerr.Wrap("hosted.delete", key, fmt.Errorf("%w: %v", storeerr.ErrBackend, err))
	}
	return nil
}

// DeletePrefix removes every object whose key starts with prefix.
func (s *Store) DeletePrefix(ctx context.Context, prefix string) error {
	p, err := s.key(prefix)
	if err != nil {
		return err
	}
	it := s.bucket().Objects(ctx, &storage.Query{Prefix: p})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return storeerr.Wrap("hosted.deleteprefix", prefix, fmt.Errorf("%w: %v", storeerr.ErrBackend, err))
		}
		if err := s.bucket().Object(attrs.Name).Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
			return storeerr.Wrap("hosted.deleteprefix", attrs.Name, fmt.Errorf("%w: %v", storeerr.ErrBackend, err))
		}
	}
}

// Exists reports whether key is present.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	k, err := s.key(key)
	if err != nil {
		return false, err
	}
	_, err = s.bucket().Object(k).Attrs(ctx)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	return false, storeerr.Wrap("hosted.exists", key, fmt.Errorf("%w: %v", storeerr.ErrBackend, err))
}

// SignedURL returns a V4 signed URL when a signer is configured, else a
// gs:// reference for a caller with its own credentials.
func (s *Store) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	k, err := s.key(key)
	if err != nil {
		return "", err
	}
	if s.signerEmail == "" || len(s.signerPrivateKey) == 0 {
		return fmt.Sprintf("gs://%s/%s", s.bucketName, k), nil
	}
	url, err := storage.SignedURL(s.bucketName, k, &storage.SignedURLOptions{
		GoogleAccessID: s.signerEmail,
		PrivateKey:     s.signerPrivateKey,
		Method:         "GET",
		Expires:        time.Now().Add(ttl),
		Scheme:         storage.SigningSchemeV4,
	})
	if err != nil {
		return "", storeerr.Wrap("hosted.signedurl", key, fmt.Errorf("%w: %v", storeerr.ErrBackend, err))
	}
	return url, nil
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
		return "", storeerr.Wrap("hosted.gettext", key, fmt.Errorf("%w: %v", storeerr.ErrBackend, err))
	}
	return buf.String(), nil
}

var _ objectstore.Store = (*Store)(nil)
