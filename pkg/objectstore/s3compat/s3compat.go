// Package s3compat implements the object storage interface over an S3 or
// S3-compatible bucket using aws-sdk-go-v2, serving the store's
// Put/Get/Delete/Exists/SignedURL contract.
package s3compat

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/marmos91/docstore/pkg/objectstore"
	"github.com/marmos91/docstore/pkg/storeerr"
)

// retryConfig is the exponential-backoff retry shape for transient S3
// errors.
type retryConfig struct {
	maxRetries        int
	initialBackoff    time.Duration
	maxBackoff        time.Duration
	backoffMultiplier float64
}

func defaultRetryConfig() retryConfig {
	return retryConfig{maxRetries: 3, initialBackoff: 100 * time.Millisecond, maxBackoff: 2 * time.Second, backoffMultiplier: 2.0}
}

func (r retryConfig) delay(attempt int) time.Duration {
	d := float64(r.initialBackoff) * math.Pow(r.backoffMultiplier, float64(attempt))
	if time.Duration(d) > r.maxBackoff {
		return r.maxBackoff
	}
	return time.Duration(d)
}

// Store is an objectstore.Store backed by an S3-compatible bucket.
type Store struct {
	client    *s3.Client
	bucket    string
	keyPrefix string
	retry     retryConfig
}

// Config configures the S3-compatible backend.
type Config struct {
	Bucket             string
	KeyPrefix          string
	Region             string
	Endpoint           string // non-empty for S3-compatible providers (e.g. MinIO)
	AccessKeyID        string
	SecretAccessKey    string
	UsePathStyle       bool
	MaxParallelUploads int
}

// New validates bucket access (HeadBucket) and returns a ready Store.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, storeerr.Wrap("s3compat.new", "", storeerr.ErrInconsistent)
	}
	client, err := newClient(ctx, cfg)
	if err != nil {
		return nil, storeerr.Wrap("s3compat.new", cfg.Bucket, fmt.Errorf("%w: %v", storeerr.ErrBackend, err))
	}
	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(cfg.Bucket)}); err != nil {
		return nil, storeerr.Wrap("s3compat.new", cfg.Bucket, fmt.Errorf("%w: %v", storeerr.ErrBackend, err))
	}
	return &Store{
		client:    client,
		bucket:    cfg.Bucket,
		keyPrefix: strings.Trim(cfg.KeyPrefix, "/"),
		retry:     defaultRetryConfig(),
	}, nil
}

func newClient(ctx context.Context, cfg Config) (*s3.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	}), nil
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

func (s *Store) withRetry(ctx context.Context, op string, key string, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= s.retry.maxRetries; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !isTransient(lastErr) {
			return storeerr.Wrap(op, key, fmt.Errorf("%w: %v", storeerr.ErrBackend, lastErr))
		}
		if attempt == s.retry.maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return storeerr.Wrap(op, key, storeerr.ErrCancelled)
		case <-time.After(s.retry.delay(attempt)):
		}
	}
	return storeerr.Wrap(op, key, fmt.Errorf("%w: %v", storeerr.ErrBackend, lastErr))
}

func isTransient(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "RequestTimeout", "SlowDown", "InternalError", "ServiceUnavailable":
			return true
		}
		return false
	}
	return true // network-level errors without an API code are treated as transient
}

func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}

// Put uploads data under key via the transfer manager, which handles the
// single-request vs. multipart decision based on size.
func (s *Store) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	k, err := s.key(key)
	if err != nil {
		return err
	}
	uploader := manager.NewUploader(s.client)
	return s.withRetry(ctx, "s3compat.put", key, func() error {
		_, err := uploader.Upload(ctx, &s3.PutObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(k),
			Body:   r,
		})
		return err
	})
}

// Get opens a reader over the object at key.
func (s *Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	k, err := s.key(key)
	if err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(k)})
	if err != nil {
		if isNotFound(err) {
			return nil, storeerr.Wrap("s3compat.get", key, storeerr.ErrNotFound)
		}
		return nil, storeerr.Wrap("s3compat.get", key, fmt.Errorf("%w: %v", storeerr.ErrBackend, err))
	}
	return out.Body, nil
}

// Delete removes the object at key. Idempotent: a missing key is not an
// error.
func (s *Store) Delete(ctx context.Context, key string) error {
	k, err := s.key(key)
	if err != nil {
		return err
	}
	return s.withRetry(ctx, "s3compat.delete", key, func() error {
		_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(k)})
		return err
	})
}

// Exists reports whether key is present via HeadObject.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	k, err := s.key(key)
	if err != nil {
		return false, err
	}
	_, err = s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(k)})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, storeerr.Wrap("s3compat.exists", key, fmt.Errorf("%w: %v", storeerr.ErrBackend, err))
}

// SignedURL returns a presigned GET URL valid for ttl.
func (s *Store) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	k, err := s.key(key)
	if err != nil {
		return "", err
	}
	presign := s3.NewPresignClient(s.client)
	req, err := presign.PresignGetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(k)},
		s3.WithPresignExpires(ttl))
	if err != nil {
		return "", storeerr.Wrap("s3compat.signedurl", key, fmt.Errorf("%w: %v", storeerr.ErrBackend, err))
	}
	return req.URL, nil
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
		return "", storeerr.Wrap("s3compat.gettext", key, fmt.Errorf("%w: %v", storeerr.ErrBackend, err))
	}
	return buf.String(), nil
}

var _ objectstore.Store = (*Store)(nil)
