package commands

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"

	"github.com/marmos91/docstore/internal/logger"
	"github.com/marmos91/docstore/pkg/config"
	"github.com/marmos91/docstore/pkg/objectstore"
	"github.com/marmos91/docstore/pkg/objectstore/hosted"
	"github.com/marmos91/docstore/pkg/objectstore/localfs"
	"github.com/marmos91/docstore/pkg/objectstore/s3compat"
)

// openObjectStore builds the object storage backend selected by
// cfg.ObjectBackend, so docstorectl's compact command reconciles against
// the backend the configuration names.
func openObjectStore(ctx context.Context, cfg *config.Config) (objectstore.Store, error) {
	switch cfg.ObjectBackend {
	case "local":
		return localfs.New(localfs.Config{
			BasePath:  cfg.Local.BasePath,
			URLPrefix: cfg.Local.URLPrefix,
		})
	case "s3_compatible":
		return s3compat.New(ctx, s3compat.Config{
			Bucket:             cfg.S3.Bucket,
			KeyPrefix:          cfg.S3.KeyPrefix,
			Region:             cfg.S3.Region,
			Endpoint:           cfg.S3.Endpoint,
			AccessKeyID:        cfg.S3.AccessKeyID,
			SecretAccessKey:    cfg.S3.SecretAccessKey,
			UsePathStyle:       cfg.S3.UsePathStyle,
			MaxParallelUploads: cfg.S3.MaxParallelUploads,
		})
	case "hosted":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create GCS client: %w", err)
		}
		return hosted.New(client, hosted.Config{
			BucketName:       cfg.Hosted.BucketName,
			KeyPrefix:        cfg.Hosted.KeyPrefix,
			SignerEmail:      cfg.Hosted.SignerEmail,
			SignerPrivateKey: []byte(cfg.Hosted.SignerPrivateKey),
		}), nil
	default:
		return nil, fmt.Errorf("unrecognized object_backend %q", cfg.ObjectBackend)
	}
}

// loadConfig loads configuration honoring the --config and --root global
// flags, the latter overriding the store root from the config file.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if root := GetStoreRoot(); root != "" {
		cfg.Store.Root = root
	}
	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}
	return cfg, nil
}
