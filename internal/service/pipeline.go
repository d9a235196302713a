package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/councilgen/internal/catalog"
	"github.com/timmy/councilgen/internal/domain"
	"github.com/timmy/councilgen/internal/logger"
)

// Dry-run estimates.
const (
	EstimatedDedupRatio = 0.85
	CostPerItemMin      = 0.008
	CostPerItemMax      = 0.012
	EstimatedPerContent = 3 * time.Second
)

// RunOptions controls a pipeline run.
type RunOptions struct {
	// SkipImages stops after the content phase.
	SkipImages bool
	// Force starts over even when a run appears to be in progress, and lets
	// Resume re-enter a completed run. A forced Run first purges previously
	// generated content when a cleanup service is set.
	Force bool
	// Region and Theme pin the generated identity.
	Region string
	Theme  string
	// Identity, when set, is used instead of generating one.
	Identity *domain.CouncilIdentity
	// Observer receives progress after every unit of work.
	Observer ProgressObserver
}

// RunReport is the outcome of a pipeline run.
type RunReport struct {
	RunID    string                    `json:"run_id"`
	Identity *domain.CouncilIdentity   `json:"identity"`
	Content  *domain.GenerationSummary `json:"content,omitempty"`
	Images   *domain.ImageBatchResult  `json:"images,omitempty"`
	Cleanup  *CleanupReport            `json:"cleanup,omitempty"`
	Duration time.Duration             `json:"duration"`
}

// StatusSnapshot describes the persisted pipeline position.
type StatusSnapshot struct {
	State           domain.GenerationState      `json:"state"`
	Identity        *domain.CouncilIdentity     `json:"identity,omitempty"`
	Queue           domain.ImageQueueStatistics `json:"queue"`
	ContentComplete int                         `json:"content_complete"`
	ContentFailed   int                         `json:"content_failed"`
	Running         bool                        `json:"running"`
}

// PlanReport is the dry-run estimate for a full run.
type PlanReport struct {
	ContentByKind     map[domain.ContentKind]int `json:"content_by_kind"`
	ContentCount      int                        `json:"content_count"`
	ImageCount        int                        `json:"image_count"`
	EstimatedUnique   int                        `json:"estimated_unique_images"`
	ContentCostMin    float64                    `json:"content_cost_min"`
	ContentCostMax    float64                    `json:"content_cost_max"`
	ImageCostMin      float64                    `json:"image_cost_min"`
	ImageCostMax      float64                    `json:"image_cost_max"`
	EstimatedDuration time.Duration              `json:"estimated_duration"`
	Problems          []string                   `json:"problems,omitempty"`
}

// TotalCostMin is the lower bound of the full run cost.
func (p *PlanReport) TotalCostMin() float64 { return p.ContentCostMin + p.ImageCostMin }

// TotalCostMax is the upper bound of the full run cost.
func (p *PlanReport) TotalCostMax() float64 { return p.ContentCostMax + p.ImageCostMax }

// Pipeline drives identity, content and image generation in sequence.
// Only one run executes at a time per Pipeline.
type Pipeline struct {
	catalog      Catalog
	state        *StateManager
	identities   *IdentityGenerator
	orchestrator *Orchestrator
	batch        *BatchProcessor
	collector    *Collector
	cleanup      *CleanupService

	mu        sync.Mutex
	running   bool
	cancelRun context.CancelFunc
	// finished is closed when the current run returns.
	finished chan struct{}
}

// NewPipeline creates a new Pipeline.
func NewPipeline(catalog Catalog, state *StateManager, identities *IdentityGenerator, orchestrator *Orchestrator, batch *BatchProcessor, collector *Collector) *Pipeline {
	return &Pipeline{
		catalog:      catalog,
		state:        state,
		identities:   identities,
		orchestrator: orchestrator,
		batch:        batch,
		collector:    collector,
	}
}

// SetCleanup enables purging generated content on forced runs.
func (p *Pipeline) SetCleanup(cleanup *CleanupService) {
	p.cleanup = cleanup
}

func (p *Pipeline) log(ctx context.Context) *logger.Logger {
	return logger.FromContext(ctx).WithField(logger.FieldComponent, "pipeline")
}

// begin claims the pipeline for one run and returns the run context.
func (p *Pipeline) begin(ctx context.Context) (context.Context, func(), error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return nil, nil, ErrRunInProgress
	}
	runCtx, cancel := context.WithCancel(ctx)
	runCtx = logger.SetRunID(runCtx, uuid.New().String())
	finished := make(chan struct{})
	p.running = true
	p.cancelRun = cancel
	p.finished = finished
	// another process may have changed the queue since the last run
	p.collector.Reload()
	return runCtx, func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		cancel()
		p.running = false
		p.cancelRun = nil
		p.finished = nil
		close(finished)
	}, nil
}

// interrupt cancels the run executing in this process and waits for it to
// return. It reports whether a run was interrupted.
func (p *Pipeline) interrupt(ctx context.Context) (bool, error) {
	p.mu.Lock()
	cancel, finished := p.cancelRun, p.finished
	p.mu.Unlock()
	if cancel == nil {
		return false, nil
	}
	cancel()
	select {
	case <-finished:
		return true, nil
	case <-ctx.Done():
		return true, ctx.Err()
	}
}

// IsRunning reports whether this Pipeline is executing a run.
func (p *Pipeline) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Run starts a fresh generation: identity, content, images, complete.
// A persisted in-progress state is refused with ErrRunInProgress unless Force is set.
func (p *Pipeline) Run(ctx context.Context, opts RunOptions) (*RunReport, error) {
	ctx, done, err := p.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer done()

	current, err := p.state.Current(ctx)
	if err != nil {
		return nil, err
	}
	if current.IsInProgress() && !opts.Force {
		return nil, ErrRunInProgress
	}
	if err := p.reset(ctx); err != nil {
		return nil, err
	}
	var purged *CleanupReport
	if opts.Force && p.cleanup != nil {
		if purged, err = p.cleanup.PurgeAll(ctx); err != nil {
			return nil, fmt.Errorf("purge generated content: %w", err)
		}
	}

	p.log(ctx).WithField("skip_images", opts.SkipImages).Info("Starting generation run")
	report, err := p.execute(ctx, domain.StatusGeneratingIdentity, opts)
	if report != nil {
		report.Cleanup = purged
	}
	return report, err
}

// Resume continues an interrupted run from the phase it stopped in.
// A completed run is refused with ErrNothingToResume unless Force is set, in
// which case content and images are revisited and only missing work is done.
func (p *Pipeline) Resume(ctx context.Context, opts RunOptions) (*RunReport, error) {
	ctx, done, err := p.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer done()

	phase, err := p.state.ResumePhase(ctx)
	if errors.Is(err, ErrNothingToResume) && opts.Force {
		phase, err = domain.StatusGeneratingContent, nil
	}
	if err != nil {
		return nil, err
	}

	p.log(ctx).WithField(logger.FieldPhase, phase).Info("Resuming generation run")
	return p.execute(ctx, phase, opts)
}

// RetryFailed regenerates failed content and images of the current identity.
func (p *Pipeline) RetryFailed(ctx context.Context, opts RunOptions) (*RunReport, error) {
	ctx, done, err := p.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer done()

	start := time.Now()
	identity, err := p.state.LoadIdentity(ctx)
	if err != nil {
		return nil, err
	}
	if identity == nil {
		return nil, ErrNoIdentity
	}

	report := &RunReport{RunID: logger.GetRunID(ctx), Identity: identity}
	if report.Content, err = p.orchestrator.RetryFailed(ctx, identity, opts.Observer); err != nil {
		return report, err
	}
	if !opts.SkipImages {
		if _, err := p.collector.ResetFailed(ctx); err != nil {
			return report, err
		}
		if report.Images, err = p.runImages(ctx, identity, opts.Observer); err != nil {
			return report, err
		}
	}
	if _, err := p.state.MarkComplete(ctx); err != nil {
		return report, err
	}
	report.Duration = time.Since(start)
	return report, nil
}

// ProcessImages runs only the image phase for the persisted identity.
func (p *Pipeline) ProcessImages(ctx context.Context, opts RunOptions) (*domain.ImageBatchResult, error) {
	ctx, done, err := p.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer done()

	identity, err := p.state.LoadIdentity(ctx)
	if err != nil {
		return nil, err
	}
	if identity == nil {
		return nil, ErrNoIdentity
	}
	result, err := p.runImages(ctx, identity, opts.Observer)
	if err != nil {
		return result, err
	}
	if _, err := p.state.MarkComplete(ctx); err != nil {
		return result, err
	}
	return result, nil
}

// Pause interrupts the run executing in this process and waits for it to
// record the pause. Without one, a persisted in-progress state is marked paused.
func (p *Pipeline) Pause(ctx context.Context) (domain.GenerationState, error) {
	interrupted, err := p.interrupt(ctx)
	if err != nil {
		return domain.GenerationState{}, fmt.Errorf("wait for run to pause: %w", err)
	}
	if interrupted {
		p.log(ctx).Info("Run paused on request")
		return p.state.Current(ctx)
	}
	return p.state.Pause(ctx)
}

// Cancel interrupts any run, waits for it to stop, and forgets all progress,
// the identity included.
func (p *Pipeline) Cancel(ctx context.Context) error {
	if _, err := p.interrupt(ctx); err != nil {
		return fmt.Errorf("wait for run to stop: %w", err)
	}
	if err := p.reset(ctx); err != nil {
		return err
	}
	if err := p.state.ClearIdentity(ctx); err != nil {
		return fmt.Errorf("clear identity: %w", err)
	}
	p.log(ctx).Info("Generation cancelled and progress cleared")
	return nil
}

// Status returns the persisted pipeline position.
func (p *Pipeline) Status(ctx context.Context) (*StatusSnapshot, error) {
	state, err := p.state.Current(ctx)
	if err != nil {
		return nil, err
	}
	identity, err := p.state.LoadIdentity(ctx)
	if err != nil {
		return nil, err
	}
	stats, err := p.collector.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	ledger, err := p.orchestrator.LoadLedger(ctx)
	if err != nil {
		return nil, err
	}
	return &StatusSnapshot{
		State:           state,
		Identity:        identity,
		Queue:           stats,
		ContentComplete: len(ledger.Completed),
		ContentFailed:   len(ledger.Failed),
		Running:         p.IsRunning(),
	}, nil
}

// Plan estimates a full run without generating anything.
func (p *Pipeline) Plan(ctx context.Context) (*PlanReport, error) {
	specs, err := p.catalog.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	return NewPlanReport(specs), nil
}

// NewPlanReport computes the dry-run estimate for specs.
func NewPlanReport(specs []domain.ContentSpecification) *PlanReport {
	contentCount := catalog.ContentCount(specs)
	imageCount := catalog.ImageCount(specs)
	unique := int(math.Round(float64(imageCount) * EstimatedDedupRatio))

	report := &PlanReport{
		ContentByKind:     catalog.CountByKind(specs),
		ContentCount:      contentCount,
		ImageCount:        imageCount,
		EstimatedUnique:   unique,
		ContentCostMin:    float64(contentCount) * CostPerItemMin,
		ContentCostMax:    float64(contentCount) * CostPerItemMax,
		ImageCostMin:      float64(unique) * CostPerItemMin,
		ImageCostMax:      float64(unique) * CostPerItemMax,
		EstimatedDuration: time.Duration(contentCount)*EstimatedPerContent + time.Duration(unique)*domain.EstimatedPerImage,
	}

	var verr *catalog.ValidationError
	if err := catalog.Validate(specs); errors.As(err, &verr) {
		report.Problems = append(report.Problems, verr.Problems...)
		sort.Strings(report.Problems)
	} else if err != nil {
		report.Problems = []string{err.Error()}
	}
	return report
}

// execute runs every phase from start onwards.
func (p *Pipeline) execute(ctx context.Context, start domain.GenerationStatus, opts RunOptions) (*RunReport, error) {
	began := time.Now()
	report := &RunReport{RunID: logger.GetRunID(ctx)}

	identity, err := p.ensureIdentity(ctx, start == domain.StatusGeneratingIdentity, opts)
	if err != nil {
		return report, err
	}
	report.Identity = identity

	if start != domain.StatusGeneratingImages {
		if report.Content, err = p.orchestrator.GenerateAll(ctx, identity, opts.Observer); err != nil {
			return report, err
		}
	}

	if !opts.SkipImages {
		if report.Images, err = p.runImages(ctx, identity, opts.Observer); err != nil {
			return report, err
		}
	}

	if _, err := p.state.MarkComplete(ctx); err != nil {
		return report, err
	}
	report.Duration = time.Since(began)

	p.log(ctx).WithFields(logger.Fields{
		logger.FieldDurationMs: report.Duration.Milliseconds(),
		"council":              identity.Name,
	}).Info("Generation run complete")
	return report, nil
}

// ensureIdentity returns the identity for the run, generating and persisting
// one when regenerate is set or none exists.
func (p *Pipeline) ensureIdentity(ctx context.Context, regenerate bool, opts RunOptions) (*domain.CouncilIdentity, error) {
	if opts.Identity != nil {
		if err := opts.Identity.Validate(); err != nil {
			return nil, fmt.Errorf("invalid identity: %w", err)
		}
		if err := p.state.SaveIdentity(ctx, opts.Identity); err != nil {
			return nil, err
		}
		return opts.Identity, nil
	}

	if !regenerate {
		identity, err := p.state.LoadIdentity(ctx)
		if err != nil {
			return nil, err
		}
		if identity != nil {
			return identity, nil
		}
	}

	if _, err := p.state.Transition(ctx, domain.StatusGeneratingIdentity, 1); err != nil {
		return nil, err
	}
	identity, err := p.identities.Generate(ctx, IdentityOptions{Region: opts.Region, Theme: opts.Theme})
	if err != nil {
		if _, stateErr := p.state.SetError(ctx, err.Error()); stateErr != nil {
			p.log(ctx).WithError(stateErr).Error("Failed to record generation error")
		}
		return nil, err
	}
	if err := p.state.SaveIdentity(ctx, identity); err != nil {
		return nil, err
	}
	if _, err := p.state.UpdateProgress(ctx, 1, 1, identity.Name); err != nil {
		return nil, err
	}
	notify(ctx, opts.Observer, domain.GenerationProgress{
		Phase:       domain.PhaseIdentity,
		Label:       domain.StatusGeneratingIdentity.Label(),
		Step:        1,
		Total:       1,
		CurrentItem: identity.Name,
		Success:     true,
	})
	return identity, nil
}

// runImages enters the image phase even when nothing is pending, so the run
// can always move on to complete.
func (p *Pipeline) runImages(ctx context.Context, identity *domain.CouncilIdentity, observer ProgressObserver) (*domain.ImageBatchResult, error) {
	stats, err := p.collector.Statistics(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := p.state.Transition(ctx, domain.StatusGeneratingImages, stats.Pending); err != nil {
		return nil, err
	}
	return p.batch.ProcessQueue(ctx, identity, observer)
}

// reset forgets the state, image queue and content ledger.
func (p *Pipeline) reset(ctx context.Context) error {
	if err := p.state.Clear(ctx); err != nil {
		return fmt.Errorf("clear state: %w", err)
	}
	if err := p.collector.Clear(ctx); err != nil {
		return err
	}
	if err := p.orchestrator.ClearLedger(ctx); err != nil {
		return fmt.Errorf("clear content ledger: %w", err)
	}
	return nil
}
