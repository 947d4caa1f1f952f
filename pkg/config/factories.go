package config

import (
	"context"
	"fmt"

	"github.com/marmos91/emingest/internal/logger"
	"github.com/marmos91/emingest/pkg/store/content"
	contentFs "github.com/marmos91/emingest/pkg/store/content/fs"
	contentMemory "github.com/marmos91/emingest/pkg/store/content/memory"
	contentS3 "github.com/marmos91/emingest/pkg/store/content/s3"
	"github.com/marmos91/emingest/pkg/store/index"
	indexBadger "github.com/marmos91/emingest/pkg/store/index/badger"
	indexMemory "github.com/marmos91/emingest/pkg/store/index/memory"
	"github.com/mitchellh/mapstructure"
)

// CreateContentStore creates the artifact store based on configuration.
//
// Supported types:
//   - "filesystem": files under the output directory (pkg/store/content/fs)
//   - "memory": in-process storage, useful for dry runs
//   - "s3": Amazon S3 or compatible storage (pkg/store/content/s3)
//
// Parameters:
//   - ctx: Context for initialization operations
//   - cfg: Complete configuration (the filesystem store is rooted at OutputDir)
//
// Returns:
//   - content.Store: Initialized store
//   - error: Configuration or initialization error
func CreateContentStore(ctx context.Context, cfg *Config) (content.Store, error) {
	switch cfg.Storage.Type {
	case "filesystem":
		store, err := contentFs.NewFSContentStore(ctx, cfg.OutputDir)
		if err != nil {
			return nil, fmt.Errorf("failed to create filesystem content store: %w", err)
		}
		return store, nil
	case "memory":
		return contentMemory.NewMemoryContentStore(ctx)
	case "s3":
		return createS3ContentStore(ctx, cfg.Storage.S3)
	default:
		return nil, fmt.Errorf("unknown storage type: %q", cfg.Storage.Type)
	}
}

// createS3ContentStore creates an S3-based content store.
func createS3ContentStore(ctx context.Context, options map[string]any) (content.Store, error) {
	type S3ContentStoreConfig struct {
		Region          string `mapstructure:"region"`
		Bucket          string `mapstructure:"bucket"`
		KeyPrefix       string `mapstructure:"key_prefix"`
		Endpoint        string `mapstructure:"endpoint"`
		AccessKeyID     string `mapstructure:"access_key_id"`
		SecretAccessKey string `mapstructure:"secret_access_key"`
		ForcePathStyle  bool   `mapstructure:"force_path_style"`
		MaxRetries      int    `mapstructure:"max_retries"`
	}

	var storeCfg S3ContentStoreConfig
	if err := mapstructure.Decode(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode S3 content store config: %w", err)
	}

	if storeCfg.Bucket == "" {
		return nil, fmt.Errorf("S3 content store: bucket is required")
	}
	if storeCfg.Region == "" {
		return nil, fmt.Errorf("S3 content store: region is required")
	}

	client, err := contentS3.NewS3ClientFromConfig(ctx, contentS3.ClientConfig{
		Region:          storeCfg.Region,
		Endpoint:        storeCfg.Endpoint,
		AccessKeyID:     storeCfg.AccessKeyID,
		SecretAccessKey: storeCfg.SecretAccessKey,
		ForcePathStyle:  storeCfg.ForcePathStyle,
		MaxRetries:      storeCfg.MaxRetries,
	})
	if err != nil {
		return nil, err
	}

	store, err := contentS3.NewS3ContentStore(ctx, contentS3.S3ContentStoreConfig{
		Client:    client,
		Bucket:    storeCfg.Bucket,
		KeyPrefix: storeCfg.KeyPrefix,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 content store: %w", err)
	}

	logger.Info("S3 content store initialized: bucket=%s, region=%s, prefix=%s",
		storeCfg.Bucket, storeCfg.Region, storeCfg.KeyPrefix)

	return store, nil
}

// CreateIndex creates the record status index based on configuration.
//
// Supported types:
//   - "memory": forgets everything on exit
//   - "badger": BadgerDB database, survives restarts so interrupted records
//     from earlier runs can be reported
func CreateIndex(ctx context.Context, cfg *IndexConfig) (index.Index, error) {
	switch cfg.Type {
	case "memory":
		return indexMemory.NewMemoryIndex(), nil
	case "badger":
		return createBadgerIndex(ctx, cfg.Badger)
	default:
		return nil, fmt.Errorf("unknown index type: %q", cfg.Type)
	}
}

func createBadgerIndex(ctx context.Context, options map[string]any) (index.Index, error) {
	var idxCfg indexBadger.BadgerIndexConfig
	if err := mapstructure.Decode(options, &idxCfg); err != nil {
		return nil, fmt.Errorf("failed to decode badger index config: %w", err)
	}

	if idxCfg.DBPath == "" {
		return nil, fmt.Errorf("badger index: path is required")
	}

	idx, err := indexBadger.NewBadgerIndex(ctx, idxCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create badger index: %w", err)
	}

	logger.Debug("Badger index opened at %s", idxCfg.DBPath)
	return idx, nil
}
