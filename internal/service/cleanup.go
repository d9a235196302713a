package service

import (
	"context"
	"fmt"
	"time"

	"github.com/timmy/councilgen/internal/logger"
)

// CleanupReport counts what a purge removed.
type CleanupReport struct {
	ContentDeleted int64         `json:"content_deleted"`
	MediaDeleted   int64         `json:"media_deleted"`
	FilesDeleted   int           `json:"files_deleted"`
	FilesFailed    int           `json:"files_failed"`
	Duration       time.Duration `json:"duration"`
}

// CleanupService deletes everything a generation run produced: stored image
// objects, media records and content items.
type CleanupService struct {
	content GeneratedContent
	media   GeneratedMedia
	objects ObjectRemover
}

// NewCleanupService creates a new CleanupService.
func NewCleanupService(content GeneratedContent, media GeneratedMedia, objects ObjectRemover) *CleanupService {
	return &CleanupService{content: content, media: media, objects: objects}
}

func (s *CleanupService) log(ctx context.Context) *logger.Logger {
	return logger.FromContext(ctx).WithField(logger.FieldComponent, "cleanup")
}

// PurgeAll removes stored objects first, then media records, then content.
// An object that cannot be removed is logged and counted; record deletion
// failures are returned.
func (s *CleanupService) PurgeAll(ctx context.Context) (*CleanupReport, error) {
	start := time.Now()
	report := &CleanupReport{}

	keys, err := s.media.StorageKeys(ctx)
	if err != nil {
		return report, fmt.Errorf("list stored images: %w", err)
	}
	for _, key := range keys {
		if err := s.objects.Remove(ctx, key); err != nil {
			s.log(ctx).WithField("storage_key", key).WithError(err).Warn("Failed to delete stored image")
			report.FilesFailed++
			continue
		}
		report.FilesDeleted++
	}

	if report.MediaDeleted, err = s.media.DeleteAll(ctx); err != nil {
		return report, fmt.Errorf("delete media records: %w", err)
	}

	if report.ContentDeleted, err = s.content.Count(ctx); err != nil {
		return report, fmt.Errorf("count content: %w", err)
	}
	if err := s.content.DeleteAll(ctx); err != nil {
		return report, fmt.Errorf("delete content: %w", err)
	}

	report.Duration = time.Since(start)
	logger.With(logger.Fields{
		logger.FieldDurationMs: report.Duration.Milliseconds(),
		"content":              report.ContentDeleted,
		"media":                report.MediaDeleted,
		"files":                report.FilesDeleted,
		"files_failed":         report.FilesFailed,
	}).Info(ctx, "Generated content purged")
	return report, nil
}
