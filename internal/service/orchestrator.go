package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/timmy/councilgen/internal/domain"
	"github.com/timmy/councilgen/internal/logger"
	"github.com/timmy/councilgen/internal/prompts"
)

// OrchestratorConfig holds the orchestrator's pacing.
type OrchestratorConfig struct {
	// RateLimitDelay is waited after each specification attempt.
	RateLimitDelay time.Duration
}

// Orchestrator generates every content specification in dependency order.
type Orchestrator struct {
	catalog   Catalog
	text      TextGenerator
	content   ContentSink
	collector *Collector
	state     *StateManager
	store     StateStore
	delay     time.Duration
	logger    *logger.Logger
}

// NewOrchestrator creates a new Orchestrator.
// Parameters:
//   - catalog: source of content specifications.
//   - text: text generation backend.
//   - content: sink for generated content items.
//   - collector: image queue the generated items' images are added to.
//   - state: generation state manager.
//   - store: persistence for the content ledger.
//   - cfg: pacing configuration; nil means no delay.
//
// Returns:
//   - *Orchestrator: orchestrator instance.
func NewOrchestrator(catalog Catalog, text TextGenerator, content ContentSink, collector *Collector, state *StateManager, store StateStore, cfg *OrchestratorConfig) *Orchestrator {
	o := &Orchestrator{
		catalog:   catalog,
		text:      text,
		content:   content,
		collector: collector,
		state:     state,
		store:     store,
		logger:    logger.GetDefault().WithField(logger.FieldComponent, "orchestrator"),
	}
	if cfg != nil {
		o.delay = cfg.RateLimitDelay
	}
	return o
}

func (o *Orchestrator) log(ctx context.Context) *logger.Logger {
	return logger.FromContext(ctx).WithField(logger.FieldComponent, "orchestrator")
}

// LoadLedger returns the persisted content ledger, or an empty one.
func (o *Orchestrator) LoadLedger(ctx context.Context) (*domain.ContentLedger, error) {
	ledger := domain.NewContentLedger()
	if _, err := o.store.Load(ctx, KeyContentLedger, ledger); err != nil {
		return nil, fmt.Errorf("load content ledger: %w", err)
	}
	if ledger.Completed == nil {
		ledger.Completed = make(map[string]string)
	}
	if ledger.Failed == nil {
		ledger.Failed = make(map[string]string)
	}
	return ledger, nil
}

func (o *Orchestrator) saveLedger(ctx context.Context, ledger *domain.ContentLedger) error {
	if err := o.store.Save(ctx, KeyContentLedger, ledger); err != nil {
		return fmt.Errorf("persist content ledger: %w", err)
	}
	return nil
}

// ClearLedger forgets every recorded outcome.
func (o *Orchestrator) ClearLedger(ctx context.Context) error {
	return o.store.Delete(ctx, KeyContentLedger)
}

// GenerateAll generates every specification not already completed by a previous run.
// Per-item failures are recorded in the summary. Only failures of the catalog or
// of persistence are returned as errors, after moving the state to error.
// A cancelled context pauses the run and returns ctx.Err(); an item interrupted
// mid-call is not recorded and runs again on resume.
func (o *Orchestrator) GenerateAll(ctx context.Context, identity *domain.CouncilIdentity, observer ProgressObserver) (*domain.GenerationSummary, error) {
	ctx = logger.SetPhase(ctx, string(domain.PhaseContent))
	// checkpoints must land even after a pause request
	persist := context.WithoutCancel(ctx)
	start := time.Now()

	if identity == nil {
		return nil, o.fail(ctx, ErrNoIdentity)
	}

	specs, err := o.catalog.LoadAll(ctx)
	if err != nil {
		return nil, o.fail(ctx, fmt.Errorf("load catalog: %w", err))
	}
	ledger, err := o.LoadLedger(ctx)
	if err != nil {
		return nil, o.fail(ctx, err)
	}
	if _, err := o.collector.Queue(ctx); err != nil {
		return nil, o.fail(ctx, err)
	}

	if err := o.collectPending(persist, specs, ledger, identity); err != nil {
		return nil, o.fail(ctx, err)
	}

	scheduler := NewScheduler(specs, ledger.CompletedIDs())
	total := len(specs)

	results := make([]domain.ContentGenerationResult, 0, total)
	for _, spec := range specs {
		if contentID, ok := ledger.Completed[spec.ID]; ok {
			results = append(results, domain.NewResumedResult(spec.ID, contentID))
		}
	}
	step := len(results)

	if _, err := o.state.Transition(ctx, domain.StatusGeneratingContent, total); err != nil {
		return nil, o.fail(ctx, err)
	}
	if _, err := o.state.UpdateProgress(ctx, step, total, ""); err != nil {
		return nil, o.fail(ctx, err)
	}

	o.log(ctx).WithFields(logger.Fields{
		"total":   total,
		"resumed": step,
		"council": identity.Name,
	}).Info("Starting content generation")

	record := func(spec domain.ContentSpecification, result domain.ContentGenerationResult) error {
		step++
		results = append(results, result)
		ledger.RecordResult(result, time.Now())
		if err := o.saveLedger(persist, ledger); err != nil {
			return err
		}
		if _, err := o.state.UpdateProgress(persist, step, total, spec.ID); err != nil {
			return err
		}
		notify(ctx, observer, domain.GenerationProgress{
			Phase:       domain.PhaseContent,
			Label:       domain.StatusGeneratingContent.Label(),
			Step:        step,
			Total:       total,
			CurrentItem: spec.ID,
			Success:     result.Success,
		})
		return nil
	}

	for {
		batch := scheduler.NextBatch()
		if len(batch) == 0 {
			break
		}
		for _, spec := range batch {
			if err := ctx.Err(); err != nil {
				return nil, o.pause(ctx, err)
			}

			result := o.generateSingle(ctx, spec, identity)
			if !result.Success && ctx.Err() != nil {
				return nil, o.pause(ctx, ctx.Err())
			}
			if result.Success {
				scheduler.MarkCompleted(spec.ID)
				if err := o.collectImages(persist, ledger, spec, result.ContentID, identity); err != nil {
					return nil, o.fail(ctx, err)
				}
			} else {
				scheduler.MarkFailed(spec.ID)
			}
			if err := record(spec, result); err != nil {
				return nil, o.fail(ctx, err)
			}

			if err := sleepContext(ctx, o.delay); err != nil {
				return nil, o.pause(ctx, err)
			}
		}
	}

	for _, unresolved := range scheduler.Unresolved() {
		err := unresolved.Err()
		o.log(ctx).WithField(logger.FieldSpecID, unresolved.Spec.ID).WithError(err).Warn("Skipping content with unresolved dependencies")
		if err := record(unresolved.Spec, domain.NewFailureResult(unresolved.Spec.ID, err, 0)); err != nil {
			return nil, o.fail(ctx, err)
		}
	}

	summary := domain.NewGenerationSummary(results, time.Since(start))

	logger.With(logger.Fields{
		logger.FieldDurationMs: summary.TotalDuration.Milliseconds(),
		logger.FieldCount:      summary.Total,
		"succeeded":            summary.SuccessCount,
		"failed":               summary.FailureCount,
	}).Info(ctx, "Content generation finished: %s", summary.Text())

	if stats, err := o.collector.Statistics(ctx); err != nil {
		o.log(ctx).WithError(err).Debug("Image queue statistics unavailable")
	} else {
		o.log(ctx).WithFields(logger.Fields{
			"unique":     stats.Total,
			"duplicates": stats.Duplicates,
			"pending":    stats.Pending,
		}).Info("Image queue populated")
	}

	return summary, nil
}

// RetryFailed forgets recorded failures and generates the specifications again.
// Successful specifications are still skipped.
func (o *Orchestrator) RetryFailed(ctx context.Context, identity *domain.CouncilIdentity, observer ProgressObserver) (*domain.GenerationSummary, error) {
	ledger, err := o.LoadLedger(ctx)
	if err != nil {
		return nil, err
	}
	cleared := ledger.ClearFailures(time.Now())
	if err := o.saveLedger(ctx, ledger); err != nil {
		return nil, err
	}
	o.log(ctx).WithField(logger.FieldCount, len(cleared)).Info("Retrying failed content")
	return o.GenerateAll(ctx, identity, observer)
}

// generateSingle renders, generates and persists one specification.
// Every error becomes a failure result.
func (o *Orchestrator) generateSingle(ctx context.Context, spec domain.ContentSpecification, identity *domain.CouncilIdentity) domain.ContentGenerationResult {
	ctx = logger.SetSpecID(ctx, spec.ID)
	start := time.Now()
	failure := func(err error) domain.ContentGenerationResult {
		if ctx.Err() == nil {
			o.log(ctx).WithError(err).Warn("Content generation failed")
		}
		return domain.NewFailureResult(spec.ID, err, time.Since(start))
	}

	rendered, err := spec.Render(identity)
	if err != nil {
		return failure(err)
	}

	text, err := o.text.Generate(ctx, prompts.ContentSystemPrompt, rendered.Prompt)
	if err != nil {
		return failure(fmt.Errorf("generate text: %w", err))
	}

	data, err := parseContentResponse(text)
	if errors.Is(err, ErrNoJSON) {
		data = map[string]interface{}{"body": text}
	} else if err != nil {
		return failure(err)
	}

	draft := buildDraft(spec, rendered, identity, data)
	contentID, err := o.content.Create(ctx, draft)
	if err != nil {
		return failure(fmt.Errorf("persist content: %w", err))
	}

	elapsed := time.Since(start)
	logger.With(logger.Fields{
		logger.FieldDurationMs: elapsed.Milliseconds(),
		logger.FieldStatus:     "success",
	}).Info(ctx, "Generated %s", draft.Title)

	return domain.NewSuccessResult(spec.ID, contentID, elapsed)
}

// collectImages records the created content in the ledger, then queues its
// images. A queue failure leaves the spec marked uncollected for the next run.
func (o *Orchestrator) collectImages(ctx context.Context, ledger *domain.ContentLedger, spec domain.ContentSpecification, contentID string, identity *domain.CouncilIdentity) error {
	ledger.RecordCreated(spec.ID, contentID, time.Now())
	if err := o.saveLedger(ctx, ledger); err != nil {
		return err
	}
	if _, err := o.collector.CollectAll(ctx, contentID, spec, identity); err != nil {
		return err
	}
	ledger.MarkCollected(spec.ID, time.Now())
	return nil
}

// collectPending queues the images of content created by an earlier run that
// stopped before its images were queued.
func (o *Orchestrator) collectPending(ctx context.Context, specs []domain.ContentSpecification, ledger *domain.ContentLedger, identity *domain.CouncilIdentity) error {
	pending := ledger.UncollectedIDs()
	if len(pending) == 0 {
		return nil
	}
	byID := make(map[string]domain.ContentSpecification, len(specs))
	for _, s := range specs {
		byID[s.ID] = s
	}
	for _, id := range pending {
		if spec, ok := byID[id]; ok {
			if _, err := o.collector.CollectAll(ctx, ledger.Completed[id], spec, identity); err != nil {
				return err
			}
		}
		ledger.MarkCollected(id, time.Now())
	}
	if err := o.collector.Save(ctx); err != nil {
		return err
	}
	o.log(ctx).WithField(logger.FieldCount, len(pending)).Info("Queued images of previously created content")
	return o.saveLedger(ctx, ledger)
}

// fail moves the state to error and returns err.
func (o *Orchestrator) fail(ctx context.Context, err error) error {
	if _, stateErr := o.state.SetError(context.WithoutCancel(ctx), err.Error()); stateErr != nil {
		o.log(ctx).WithError(stateErr).Error("Failed to record generation error")
	}
	return err
}

// pause moves the state to paused and returns cause.
func (o *Orchestrator) pause(ctx context.Context, cause error) error {
	if _, err := o.state.Pause(context.WithoutCancel(ctx)); err != nil {
		o.log(ctx).WithError(err).Error("Failed to record pause")
	}
	o.log(ctx).Info("Content generation paused")
	return cause
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
