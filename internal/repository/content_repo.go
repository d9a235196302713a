package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/councilgen/internal/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrContentNotFound is returned when attaching media to an unknown content item.
var ErrContentNotFound = errors.New("content item not found")

// ContentRepository persists generated content items and their image fields.
type ContentRepository struct {
	db *gorm.DB
}

// NewContentRepository creates a new ContentRepository.
// Parameters:
//   - db: GORM database handle used for queries.
//
// Returns:
//   - *ContentRepository: repository instance bound to db.
func NewContentRepository(db *gorm.DB) *ContentRepository {
	return &ContentRepository{db: db}
}

// Create inserts a content item built from draft and returns its id.
func (r *ContentRepository) Create(ctx context.Context, draft domain.ContentDraft) (string, error) {
	item := &domain.ContentItem{
		ID:      uuid.New().String(),
		SpecID:  draft.SpecID,
		Kind:    draft.Kind,
		Title:   draft.Title,
		Summary: draft.Summary,
		Body:    draft.Body,
		Fields:  datatypes.JSONMap(draft.Fields),
	}
	if item.Fields == nil {
		item.Fields = datatypes.JSONMap{}
	}
	if err := r.db.WithContext(ctx).Create(item).Error; err != nil {
		return "", fmt.Errorf("create content %s: %w", draft.SpecID, err)
	}
	return item.ID, nil
}

// AttachMedia points fieldName of a content item at mediaID, replacing any previous value.
func (r *ContentRepository) AttachMedia(ctx context.Context, contentID, fieldName, mediaID string) error {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.ContentItem{}).Where("id = ?", contentID).Count(&count).Error; err != nil {
		return fmt.Errorf("look up content %s: %w", contentID, err)
	}
	if count == 0 {
		return fmt.Errorf("%w: %s", ErrContentNotFound, contentID)
	}

	link := &domain.ContentMedia{
		ContentID: contentID,
		FieldName: fieldName,
		MediaID:   mediaID,
		UpdatedAt: time.Now(),
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "content_id"}, {Name: "field_name"}},
		DoUpdates: clause.AssignmentColumns([]string{"media_id", "updated_at"}),
	}).Create(link).Error
}

// GetByID retrieves a content item by id.
func (r *ContentRepository) GetByID(ctx context.Context, id string) (*domain.ContentItem, error) {
	var item domain.ContentItem
	if err := r.db.WithContext(ctx).First(&item, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

// List returns content items ordered by creation time.
func (r *ContentRepository) List(ctx context.Context, limit, offset int) ([]domain.ContentItem, error) {
	var items []domain.ContentItem
	query := r.db.WithContext(ctx).Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit).Offset(offset)
	}
	err := query.Find(&items).Error
	return items, err
}

// MediaFields returns field name → media id for a content item.
func (r *ContentRepository) MediaFields(ctx context.Context, contentID string) (map[string]string, error) {
	var links []domain.ContentMedia
	if err := r.db.WithContext(ctx).Where("content_id = ?", contentID).Find(&links).Error; err != nil {
		return nil, err
	}
	out := make(map[string]string, len(links))
	for _, l := range links {
		out[l.FieldName] = l.MediaID
	}
	return out, nil
}

// Count returns the number of content items.
func (r *ContentRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.ContentItem{}).Count(&count).Error
	return count, err
}

// DeleteAll removes every content item and media link.
func (r *ContentRepository) DeleteAll(ctx context.Context) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&domain.ContentMedia{}).Error; err != nil {
			return err
		}
		return tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&domain.ContentItem{}).Error
	})
}
