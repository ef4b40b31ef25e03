package storage

import (
	"fmt"

	"github.com/andika/product-import/internal/config"
)

// NewStorage creates an ObjectStorage instance based on the configuration.
func NewStorage(cfg *config.StorageConfig) (ObjectStorage, error) {
	switch cfg.Type {
	case "s3":
		return NewS3Storage(&S3Config{
			Endpoint:  cfg.Endpoint,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			UseSSL:    cfg.UseSSL,
			Bucket:    cfg.Bucket,
			Region:    cfg.Region,
			PublicURL: cfg.PublicURL,
		})
	case "local", "":
		return NewLocalStorage(cfg.BaseDir)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
