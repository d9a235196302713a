package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/timmy/councilgen/internal/api"
	"github.com/timmy/councilgen/internal/app"
	"github.com/timmy/councilgen/internal/config"
	"github.com/timmy/councilgen/internal/logger"
)

func main() {
	appLogger := logger.New(logger.OptionsFromEnv("councilgen-api"))
	logger.SetDefaultLogger(appLogger)
	defer logger.Close()

	// Support CONFIG_PATH environment variable for production deployments
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	ctx := context.Background()
	application, err := app.New(ctx, cfg)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize application")
	}

	router := api.SetupRouter(api.Dependencies{
		DB:       application.DB,
		Pipeline: application.Pipeline,
		Content:  application.Content,
		Media:    application.Media,
	}, &cfg.Server)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		appLogger.WithFields(logger.Fields{
			"port": cfg.Server.Port,
			"mode": cfg.Server.Mode,
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	// A running generation is paused so it can be resumed after restart.
	if _, err := application.Pipeline.Pause(ctx); err != nil {
		appLogger.WithError(err).Warn("Failed to pause generation")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Fatal("Server forced to shutdown")
	}

	appLogger.Info("Server exited")
}
