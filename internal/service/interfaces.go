package service

import (
	"context"
	"fmt"

	"github.com/timmy/councilgen/internal/domain"
	"github.com/timmy/councilgen/internal/logger"
)

// Catalog supplies the content specifications to generate.
type Catalog interface {
	LoadAll(ctx context.Context) ([]domain.ContentSpecification, error)
}

// TextGenerator turns a rendered prompt into generated text.
type TextGenerator interface {
	Generate(ctx context.Context, systemPrompt, prompt string) (string, error)
}

// ImageGenerator turns a rendered image request into encoded image bytes.
type ImageGenerator interface {
	Generate(ctx context.Context, prompt string, dims domain.Dimensions, style domain.ImageStyle) ([]byte, error)
}

// ContentSink persists generated content items.
type ContentSink interface {
	Create(ctx context.Context, draft domain.ContentDraft) (string, error)
	AttachMedia(ctx context.Context, contentID, fieldName, mediaID string) error
}

// MediaSink persists generated images.
type MediaSink interface {
	Create(ctx context.Context, upload domain.MediaUpload) (string, error)
}

// GeneratedContent is the persisted content a purge removes.
type GeneratedContent interface {
	Count(ctx context.Context) (int64, error)
	DeleteAll(ctx context.Context) error
}

// GeneratedMedia is the persisted media records a purge removes.
type GeneratedMedia interface {
	StorageKeys(ctx context.Context) ([]string, error)
	DeleteAll(ctx context.Context) (int64, error)
}

// ObjectRemover deletes stored image objects by key.
type ObjectRemover interface {
	Remove(ctx context.Context, key string) error
}

// StateStore is a key/value store for pipeline state.
// Load returns false when no value exists under key.
type StateStore interface {
	Load(ctx context.Context, key string, dest interface{}) (bool, error)
	Save(ctx context.Context, key string, value interface{}) error
	Delete(ctx context.Context, key string) error
}

// State keys.
const (
	KeyGenerationState = "generation_state"
	KeyImageQueue      = "image_queue"
	KeyContentLedger   = "content_ledger"
	KeyIdentity        = "council_identity"
)

// ProgressObserver is told about every finished unit of work. It is advisory:
// an error or panic from it is logged and otherwise ignored.
type ProgressObserver func(progress domain.GenerationProgress) error

// notify calls observer, swallowing its failures.
func notify(ctx context.Context, observer ProgressObserver, progress domain.GenerationProgress) {
	if observer == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logger.FromContext(ctx).WithField("panic", fmt.Sprint(r)).Warn("Progress observer panicked")
		}
	}()
	if err := observer(progress); err != nil {
		logger.FromContext(ctx).WithError(err).Warn("Progress observer failed")
	}
}
