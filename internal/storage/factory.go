package storage

import (
	"fmt"
	"strings"

	"github.com/timmy/councilgen/internal/config"
)

// NewImageStore creates the ImageStore selected by cfg.Type.
// Parameters:
//   - cfg: storage configuration; Type "local" writes under Dir, anything else
//     talks to an S3 compatible endpoint.
//
// Returns:
//   - ImageStore: initialized store.
//   - error: non-nil if the store cannot be created.
func NewImageStore(cfg *config.StorageConfig) (ImageStore, error) {
	storeType := StorageType(strings.ToLower(cfg.Type))
	switch storeType {
	case StorageTypeLocal:
		return NewLocalStorage(cfg.Dir, cfg.PublicURL)
	case "":
		storeType = detectStorageType(cfg.Endpoint)
	case StorageTypeR2, StorageTypeS3, StorageTypeS3Compatible:
	default:
		return nil, fmt.Errorf("unsupported storage type %q", cfg.Type)
	}

	return NewS3Storage(&S3Config{
		Type:      storeType,
		Endpoint:  cfg.Endpoint,
		AccessKey: cfg.AccessKey,
		SecretKey: cfg.SecretKey,
		UseSSL:    cfg.UseSSL,
		Bucket:    cfg.Bucket,
		Region:    cfg.Region,
		PublicURL: cfg.PublicURL,
	})
}

func detectStorageType(endpoint string) StorageType {
	endpoint = strings.ToLower(endpoint)
	switch {
	case strings.Contains(endpoint, "r2.cloudflarestorage.com"):
		return StorageTypeR2
	case strings.Contains(endpoint, "amazonaws.com"):
		return StorageTypeS3
	default:
		return StorageTypeS3Compatible
	}
}
