package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/timmy/councilgen/internal/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StateRepository is a key/value store for pipeline state backed by a single table.
type StateRepository struct {
	db *gorm.DB
}

// NewStateRepository creates a new StateRepository.
func NewStateRepository(db *gorm.DB) *StateRepository {
	return &StateRepository{db: db}
}

// Load decodes the value stored under key into dest.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - key: state key.
//   - dest: pointer to decode into.
//
// Returns:
//   - bool: false when no record exists.
//   - error: non-nil if the query or decoding fails.
func (r *StateRepository) Load(ctx context.Context, key string, dest interface{}) (bool, error) {
	var record domain.StateRecord
	err := r.db.WithContext(ctx).First(&record, "state_key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load state %s: %w", key, err)
	}
	if err := json.Unmarshal(record.Value, dest); err != nil {
		return false, fmt.Errorf("decode state %s: %w", key, err)
	}
	return true, nil
}

// Save stores value under key, replacing any previous value.
func (r *StateRepository) Save(ctx context.Context, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode state %s: %w", key, err)
	}
	record := domain.StateRecord{
		Key:       key,
		Value:     datatypes.JSON(data),
		UpdatedAt: time.Now(),
	}
	err = r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "state_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&record).Error
	if err != nil {
		return fmt.Errorf("save state %s: %w", key, err)
	}
	return nil
}

// Delete removes the value under key. Deleting a missing key is not an error.
func (r *StateRepository) Delete(ctx context.Context, key string) error {
	if err := r.db.WithContext(ctx).Delete(&domain.StateRecord{}, "state_key = ?", key).Error; err != nil {
		return fmt.Errorf("delete state %s: %w", key, err)
	}
	return nil
}

// Keys lists the stored keys.
func (r *StateRepository) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	err := r.db.WithContext(ctx).Model(&domain.StateRecord{}).Order("state_key").Pluck("state_key", &keys).Error
	return keys, err
}
