package storage

import (
	"context"
	"fmt"

	"github.com/karimnasr/stockroom/internal/config"
)

// NewPayloadStore creates a PayloadStore from configuration.
// Parameters:
//   - cfg: storage section of the application configuration.
// Returns:
//   - PayloadStore: initialized store implementation.
//   - error: non-nil if the store cannot be created.
func NewPayloadStore(cfg *config.StorageConfig) (PayloadStore, error) {
	switch cfg.Type {
	case "", "local":
		return NewLocalStore(cfg.LocalDir)
	case "s3":
		store, err := NewS3Store(&S3Config{
			Endpoint:  cfg.Endpoint,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			UseSSL:    cfg.UseSSL,
			Bucket:    cfg.Bucket,
			Region:    cfg.Region,
		})
		if err != nil {
			return nil, err
		}
		if err := store.EnsureBucket(context.Background()); err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage type: %q", cfg.Type)
	}
}
