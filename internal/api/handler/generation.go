package handler

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/timmy/councilgen/internal/logger"
	"github.com/timmy/councilgen/internal/service"
)

// GenerationHandler exposes pipeline control and progress.
type GenerationHandler struct {
	pipeline *service.Pipeline

	mu            sync.RWMutex
	isRunning     bool
	lastRunTime   time.Time
	lastRunStatus string
	lastReport    *service.RunReport
}

// NewGenerationHandler creates a new generation handler.
// Parameters:
//   - pipeline: pipeline driven by the handler.
//
// Returns:
//   - *GenerationHandler: initialized handler.
func NewGenerationHandler(pipeline *service.Pipeline) *GenerationHandler {
	return &GenerationHandler{pipeline: pipeline}
}

// StartRequest is the body of the start, resume and retry endpoints.
type StartRequest struct {
	SkipImages bool   `json:"skip_images"`
	Force      bool   `json:"force"`
	Region     string `json:"region"`
	Theme      string `json:"theme"`
}

// StatusResponse combines the persisted position with this server's last run.
type StatusResponse struct {
	*service.StatusSnapshot
	Progress      string             `json:"progress"`
	LastRunTime   string             `json:"last_run_time,omitempty"`
	LastRunStatus string             `json:"last_run_status,omitempty"`
	LastReport    *service.RunReport `json:"last_report,omitempty"`
}

type runFunc func(ctx context.Context, opts service.RunOptions) (*service.RunReport, error)

// Start handles POST /api/v1/generation/start.
func (h *GenerationHandler) Start(c *gin.Context) {
	h.launch(c, "run", h.pipeline.Run)
}

// Resume handles POST /api/v1/generation/resume.
func (h *GenerationHandler) Resume(c *gin.Context) {
	h.launch(c, "resume", h.pipeline.Resume)
}

// Retry handles POST /api/v1/generation/retry.
func (h *GenerationHandler) Retry(c *gin.Context) {
	h.launch(c, "retry", h.pipeline.RetryFailed)
}

// Images handles POST /api/v1/generation/images.
func (h *GenerationHandler) Images(c *gin.Context) {
	h.launch(c, "images", func(ctx context.Context, opts service.RunOptions) (*service.RunReport, error) {
		result, err := h.pipeline.ProcessImages(ctx, opts)
		return &service.RunReport{RunID: logger.GetRunID(ctx), Images: result}, err
	})
}

// launch starts run in the background and answers 202, or 409 when a run is active.
func (h *GenerationHandler) launch(c *gin.Context, name string, run runFunc) {
	ctx := c.Request.Context()

	var req StartRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			logger.CtxWarn(ctx, "Invalid %s request: client_ip=%s, error=%v", name, c.ClientIP(), err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	h.mu.Lock()
	if h.isRunning || h.pipeline.IsRunning() {
		h.mu.Unlock()
		logger.CtxWarn(ctx, "Generation %s rejected: already running, client_ip=%s", name, c.ClientIP())
		c.JSON(http.StatusConflict, gin.H{"error": "Generation is already running"})
		return
	}
	h.isRunning = true
	h.mu.Unlock()

	logger.CtxInfo(ctx, "Starting generation %s: skip_images=%v, force=%v, region=%s, theme=%s",
		name, req.SkipImages, req.Force, req.Region, req.Theme)

	// detached from the request so the run outlives it
	runCtx := logger.ContextWithField(context.Background(), logger.FieldRequestID, logger.GetRequestID(ctx))
	opts := service.RunOptions{
		SkipImages: req.SkipImages,
		Force:      req.Force,
		Region:     req.Region,
		Theme:      req.Theme,
	}
	go h.execute(runCtx, name, run, opts)

	c.JSON(http.StatusAccepted, gin.H{"message": "Generation " + name + " started"})
}

func (h *GenerationHandler) execute(ctx context.Context, name string, run runFunc, opts service.RunOptions) {
	start := time.Now()
	report, err := run(ctx, opts)
	duration := time.Since(start)

	h.mu.Lock()
	h.isRunning = false
	h.lastRunTime = time.Now()
	h.lastReport = report
	if err != nil {
		h.lastRunStatus = "failed: " + err.Error()
	} else {
		h.lastRunStatus = "success"
	}
	h.mu.Unlock()

	if err != nil {
		logger.With(logger.Fields{
			logger.FieldDurationMs: duration.Milliseconds(),
		}).Error(ctx, "Generation %s failed: error=%v", name, err)
		return
	}
	logger.With(logger.Fields{
		logger.FieldDurationMs: duration.Milliseconds(),
	}).Info(ctx, "Generation %s completed", name)
}

// Status handles GET /api/v1/generation/status.
func (h *GenerationHandler) Status(c *gin.Context) {
	snapshot, err := h.pipeline.Status(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read status: " + err.Error()})
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	resp := StatusResponse{
		StatusSnapshot: snapshot,
		Progress:       snapshot.State.ProgressText(),
		LastRunStatus:  h.lastRunStatus,
		LastReport:     h.lastReport,
	}
	if !h.lastRunTime.IsZero() {
		resp.LastRunTime = h.lastRunTime.Format(time.RFC3339)
	}
	c.JSON(http.StatusOK, resp)
}

// Pause handles POST /api/v1/generation/pause.
func (h *GenerationHandler) Pause(c *gin.Context) {
	state, err := h.pipeline.Pause(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to pause: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Pause requested", "state": state})
}

// Cancel handles POST /api/v1/generation/cancel.
func (h *GenerationHandler) Cancel(c *gin.Context) {
	if err := h.pipeline.Cancel(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to cancel: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Generation cancelled"})
}

// Plan handles GET /api/v1/generation/plan.
func (h *GenerationHandler) Plan(c *gin.Context) {
	plan, err := h.pipeline.Plan(c.Request.Context())
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, context.Canceled) {
			status = http.StatusRequestTimeout
		}
		c.JSON(status, gin.H{"error": "Failed to plan: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"plan":           plan,
		"total_cost_min": plan.TotalCostMin(),
		"total_cost_max": plan.TotalCostMax(),
	})
}
