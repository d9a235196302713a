package repository

import (
	"context"

	"github.com/timmy/councilgen/internal/domain"
	"gorm.io/gorm"
)

// MediaRepository persists generated image records.
type MediaRepository struct {
	db *gorm.DB
}

// NewMediaRepository creates a new MediaRepository.
func NewMediaRepository(db *gorm.DB) *MediaRepository {
	return &MediaRepository{db: db}
}

// Create inserts a media record.
func (r *MediaRepository) Create(ctx context.Context, media *domain.MediaItem) error {
	return r.db.WithContext(ctx).Create(media).Error
}

// GetByID retrieves a media record by id.
func (r *MediaRepository) GetByID(ctx context.Context, id string) (*domain.MediaItem, error) {
	var media domain.MediaItem
	if err := r.db.WithContext(ctx).First(&media, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &media, nil
}

// GetByFingerprint retrieves the media generated for an image request.
func (r *MediaRepository) GetByFingerprint(ctx context.Context, fingerprint string) (*domain.MediaItem, error) {
	var media domain.MediaItem
	if err := r.db.WithContext(ctx).Where("fingerprint = ?", fingerprint).Order("created_at DESC").First(&media).Error; err != nil {
		return nil, err
	}
	return &media, nil
}

// Count returns the number of media records.
func (r *MediaRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.MediaItem{}).Count(&count).Error
	return count, err
}

// StorageKeys lists the object keys of every stored image.
func (r *MediaRepository) StorageKeys(ctx context.Context) ([]string, error) {
	var keys []string
	err := r.db.WithContext(ctx).Model(&domain.MediaItem{}).Order("created_at").Pluck("storage_key", &keys).Error
	return keys, err
}

// DeleteAll removes every media record and returns how many were removed.
func (r *MediaRepository) DeleteAll(ctx context.Context) (int64, error) {
	result := r.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&domain.MediaItem{})
	return result.RowsAffected, result.Error
}
