// Package app wires configuration into the generation pipeline.
package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/timmy/councilgen/internal/catalog"
	"github.com/timmy/councilgen/internal/config"
	"github.com/timmy/councilgen/internal/logger"
	"github.com/timmy/councilgen/internal/repository"
	"github.com/timmy/councilgen/internal/service"
	"github.com/timmy/councilgen/internal/storage"
	"gorm.io/gorm"
)

// App holds the long-lived components built from configuration.
type App struct {
	Config   *config.Config
	DB       *gorm.DB
	Catalog  *catalog.Loader
	Content  *repository.ContentRepository
	Media    *repository.MediaRepository
	State    *repository.StateRepository
	Pipeline *service.Pipeline
	Cleanup  *service.CleanupService
}

// New builds every component from cfg.
// Parameters:
//   - ctx: context used while connecting to storage and model backends.
//   - cfg: loaded configuration.
//
// Returns:
//   - *App: wired application.
//   - error: non-nil if any backend cannot be initialized.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	loader, err := NewCatalog(cfg)
	if err != nil {
		return nil, err
	}

	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	imageStore, err := storage.NewImageStore(&cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	if s3, ok := imageStore.(*storage.S3Storage); ok {
		if err := s3.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("failed to ensure storage bucket: %w", err)
		}
	}

	text, err := NewTextGenerator(ctx, &cfg.Text)
	if err != nil {
		return nil, err
	}
	images := service.NewImageService(&service.ImageConfig{
		Model:      cfg.Image.Model,
		APIKey:     cfg.Image.APIKey,
		BaseURL:    cfg.Image.BaseURL,
		Timeout:    cfg.Image.Timeout,
		RetryCount: cfg.Image.RetryCount,
	})

	contentRepo := repository.NewContentRepository(db)
	mediaRepo := repository.NewMediaRepository(db)
	stateRepo := repository.NewStateRepository(db)

	state := service.NewStateManager(stateRepo)
	collector := service.NewCollector(stateRepo)
	orchestrator := service.NewOrchestrator(loader, text, contentRepo, collector, state, stateRepo, &service.OrchestratorConfig{
		RateLimitDelay: cfg.Generation.RateLimitDelay,
	})
	batch := service.NewBatchProcessor(
		images,
		service.NewMediaService(imageStore, mediaRepo, cfg.Storage.Prefix),
		contentRepo,
		collector,
		state,
		&service.BatchConfig{RateLimitDelay: cfg.Generation.ImageRateLimitDelay},
	)
	pipeline := service.NewPipeline(loader, state, service.NewIdentityGenerator(text, nil), orchestrator, batch, collector)
	cleanup := service.NewCleanupService(contentRepo, mediaRepo, imageStore)
	pipeline.SetCleanup(cleanup)

	logger.FromContext(ctx).WithFields(logger.Fields{
		"database":      cfg.Database.Driver,
		"storage":       cfg.Storage.Type,
		"text_provider": cfg.Text.Provider,
		"text_model":    cfg.Text.Model,
		"image_model":   cfg.Image.Model,
	}).Info("Application initialized")

	return &App{
		Config:   cfg,
		DB:       db,
		Catalog:  loader,
		Content:  contentRepo,
		Media:    mediaRepo,
		State:    stateRepo,
		Pipeline: pipeline,
		Cleanup:  cleanup,
	}, nil
}

// NewCatalog builds the template loader from the catalog section.
func NewCatalog(cfg *config.Config) (*catalog.Loader, error) {
	loader, err := catalog.NewDirLoader(cfg.Catalog.Dir, cfg.Catalog.Files)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize catalog: %w", err)
	}
	return loader, nil
}

// NewTextGenerator selects the text backend named by cfg.Provider.
func NewTextGenerator(ctx context.Context, cfg *config.TextConfig) (service.TextGenerator, error) {
	chatCfg := &service.ChatConfig{
		Model:      cfg.Model,
		APIKey:     cfg.APIKey,
		BaseURL:    cfg.BaseURL,
		MaxTokens:  cfg.MaxTokens,
		Timeout:    cfg.Timeout,
		RetryCount: cfg.RetryCount,
	}
	switch strings.ToLower(cfg.Provider) {
	case "", "http", "openai":
		return service.NewChatService(chatCfg), nil
	case "eino":
		gen, err := service.NewEinoTextGenerator(ctx, chatCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize eino text generator: %w", err)
		}
		return gen, nil
	default:
		return nil, fmt.Errorf("unknown text provider %q", cfg.Provider)
	}
}
