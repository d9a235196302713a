package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/timmy/councilgen/internal/domain"
	"github.com/timmy/councilgen/internal/logger"
)

// DefaultImageRateLimitDelay is waited between image generations.
const DefaultImageRateLimitDelay = time.Second

// BatchConfig holds the batch processor's pacing.
type BatchConfig struct {
	RateLimitDelay time.Duration
}

// BatchProcessor drains the image queue: one generation per unique request,
// with the resulting media attached to every content item that asked for it.
type BatchProcessor struct {
	images    ImageGenerator
	media     MediaSink
	content   ContentSink
	collector *Collector
	state     *StateManager
	delay     time.Duration
	now       func() time.Time
}

// NewBatchProcessor creates a new BatchProcessor.
// A nil cfg uses DefaultImageRateLimitDelay.
func NewBatchProcessor(images ImageGenerator, media MediaSink, content ContentSink, collector *Collector, state *StateManager, cfg *BatchConfig) *BatchProcessor {
	p := &BatchProcessor{
		images:    images,
		media:     media,
		content:   content,
		collector: collector,
		state:     state,
		delay:     DefaultImageRateLimitDelay,
		now:       time.Now,
	}
	if cfg != nil {
		p.delay = cfg.RateLimitDelay
	}
	return p
}

func (p *BatchProcessor) log(ctx context.Context) *logger.Logger {
	return logger.FromContext(ctx).WithField(logger.FieldComponent, "image_batch")
}

// ProcessQueue generates every pending image in insertion order.
// Per-item failures are recorded on the item and in the result. Returned errors
// are persistence failures (the state moves to error) or a cancelled context
// (the state moves to paused). With nothing pending the call changes nothing.
func (p *BatchProcessor) ProcessQueue(ctx context.Context, identity *domain.CouncilIdentity, observer ProgressObserver) (*domain.ImageBatchResult, error) {
	ctx = logger.SetPhase(ctx, string(domain.PhaseImages))
	persist := context.WithoutCancel(ctx)
	start := time.Now()
	result := domain.NewImageBatchResult()

	queue, err := p.collector.Queue(ctx)
	if err != nil {
		return nil, p.fail(ctx, err)
	}

	// Items left in processing were interrupted mid-flight.
	if stranded := queue.ProcessingIDs(); len(stranded) > 0 {
		for _, id := range stranded {
			item, _ := queue.Item(id)
			if err := item.Reset(); err != nil {
				return nil, p.fail(ctx, err)
			}
		}
		p.log(ctx).WithField(logger.FieldCount, len(stranded)).Warn("Requeued interrupted images")
		if err := p.collector.Save(ctx); err != nil {
			return nil, p.fail(ctx, err)
		}
	}

	resolved, err := p.resolveDuplicates(ctx, queue, queue.UnresolvedDuplicates())
	if err != nil {
		return nil, p.fail(ctx, err)
	}
	result.DuplicatesResolved += resolved

	pending := queue.PendingIDs()
	if len(pending) == 0 {
		result.Duration = time.Since(start)
		p.log(ctx).Debug("No pending images")
		return result, nil
	}

	total := len(pending)
	if _, err := p.state.Transition(ctx, domain.StatusGeneratingImages, total); err != nil {
		return nil, p.fail(ctx, err)
	}

	councilName := ""
	if identity != nil {
		councilName = identity.Name
	}
	p.log(ctx).WithFields(logger.Fields{
		"pending":    total,
		"duplicates": queue.DuplicateCount(),
	}).Info("Starting image generation")

	for i, id := range pending {
		if err := ctx.Err(); err != nil {
			return nil, p.pause(ctx, err)
		}
		item, ok := queue.Item(id)
		if !ok {
			continue
		}

		mediaID, itemErr, err := p.processItem(ctx, item, councilName)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, p.pause(ctx, err)
		}
		if err != nil {
			return nil, p.fail(ctx, err)
		}
		if itemErr != nil {
			result.RecordFailure(item.ID)
		} else {
			result.RecordSuccess(mediaID)
			n, err := p.resolveDuplicates(persist, queue, queue.DuplicatesOf(item.ID))
			if err != nil {
				return nil, p.fail(ctx, err)
			}
			result.DuplicatesResolved += n
		}

		if _, err := p.state.UpdateProgress(persist, i+1, total, item.ID); err != nil {
			return nil, p.fail(ctx, err)
		}
		notify(ctx, observer, domain.GenerationProgress{
			Phase:       domain.PhaseImages,
			Label:       domain.StatusGeneratingImages.Label(),
			Step:        i + 1,
			Total:       total,
			CurrentItem: item.ID,
			Success:     itemErr == nil,
		})

		if i < total-1 {
			if err := sleepContext(ctx, p.delay); err != nil {
				return nil, p.pause(ctx, err)
			}
		}
	}

	result.Duration = time.Since(start)
	logger.With(logger.Fields{
		logger.FieldDurationMs: result.Duration.Milliseconds(),
		logger.FieldCount:      result.TotalProcessed,
		"succeeded":            result.SuccessCount,
		"failed":               result.FailureCount,
		"duplicates_resolved":  result.DuplicatesResolved,
	}).Info(ctx, "Image generation finished: %s", result.Text())

	return result, nil
}

// RetryFailed moves failed images back to pending and processes the queue again.
func (p *BatchProcessor) RetryFailed(ctx context.Context, identity *domain.CouncilIdentity, observer ProgressObserver) (*domain.ImageBatchResult, error) {
	n, err := p.collector.ResetFailed(ctx)
	if err != nil {
		return nil, err
	}
	p.log(ctx).WithField(logger.FieldCount, n).Info("Retrying failed images")
	return p.ProcessQueue(ctx, identity, observer)
}

// processItem runs one item through generate, persist and attach. itemErr is the
// item's own failure, already recorded on it; err is a queue persistence failure,
// or ctx.Err() when the item was interrupted and put back to pending.
func (p *BatchProcessor) processItem(ctx context.Context, item *domain.ImageQueueItem, councilName string) (mediaID string, itemErr error, err error) {
	ctx = logger.SetSpecID(ctx, item.ContentSpecID)
	persist := context.WithoutCancel(ctx)
	log := p.log(ctx).WithField(logger.FieldFingerprint, shortID(item.ID))
	start := time.Now()

	if err := item.MarkProcessing(); err != nil {
		return "", nil, err
	}
	if err := p.collector.Save(persist); err != nil {
		return "", nil, err
	}

	fail := func(cause error) (string, error, error) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			// interrupted, not failed; a persisted media id is kept
			if err := item.Reset(); err != nil {
				return "", nil, err
			}
			if err := p.collector.Save(persist); err != nil {
				return "", nil, err
			}
			log.WithError(cause).Info("Image generation interrupted")
			return "", nil, ctxErr
		}
		log.WithError(cause).Warn("Image generation failed")
		if err := item.MarkFailed(cause.Error(), p.now()); err != nil {
			return "", cause, err
		}
		return "", cause, p.collector.Save(persist)
	}

	mediaID = item.MediaID
	if mediaID == "" {
		data, genErr := p.images.Generate(ctx, item.Spec.FullPrompt(), item.Spec.Dimensions, item.Spec.Style)
		if genErr != nil {
			return fail(fmt.Errorf("generate image: %w", genErr))
		}
		mediaID, genErr = p.media.Create(ctx, domain.MediaUpload{
			Data:        data,
			Dimensions:  item.Spec.Dimensions,
			SpecID:      item.ContentSpecID,
			Fingerprint: item.ID,
			ImageType:   item.Spec.Type,
			CouncilName: councilName,
		})
		if genErr != nil {
			return fail(fmt.Errorf("persist image: %w", genErr))
		}
		// kept on failure so a retry only re-attaches
		item.MediaID = mediaID
	} else {
		log.WithField("media_id", mediaID).Debug("Reusing persisted image")
	}

	if attachErr := p.content.AttachMedia(ctx, item.ContentID, item.FieldName, mediaID); attachErr != nil {
		return fail(fmt.Errorf("attach image to %s: %w", item.ContentID, attachErr))
	}

	if err := item.MarkComplete(mediaID, p.now()); err != nil {
		return "", nil, err
	}
	if err := p.collector.Save(persist); err != nil {
		return "", nil, err
	}

	logger.With(logger.Fields{
		logger.FieldDurationMs:  time.Since(start).Milliseconds(),
		logger.FieldStatus:      "success",
		logger.FieldFingerprint: shortID(item.ID),
	}).Info(ctx, "Generated image for %s", item.ContentSpecID)
	return mediaID, nil, nil
}

// resolveDuplicates attaches each duplicate's original media to the duplicate's
// own target. Duplicates whose attach fails stay unresolved for the next pass.
func (p *BatchProcessor) resolveDuplicates(ctx context.Context, queue *domain.ImageQueue, refs []*domain.DuplicateRef) (int, error) {
	resolved := 0
	for _, ref := range refs {
		if ref.Resolved() {
			continue
		}
		mediaID, ok := queue.MediaIDFor(ref.OriginalID)
		if !ok {
			continue
		}
		if err := p.content.AttachMedia(ctx, ref.ContentID, ref.FieldName, mediaID); err != nil {
			p.log(ctx).WithField("duplicate_id", ref.ID).WithError(err).Warn("Failed to attach shared image")
			continue
		}
		ref.Resolve(mediaID, p.now())
		resolved++
	}
	if resolved == 0 {
		return 0, nil
	}
	queue.UpdatedAt = p.now()
	if err := p.collector.Save(ctx); err != nil {
		return resolved, err
	}
	p.log(ctx).WithField(logger.FieldCount, resolved).Debug("Shared image attached to duplicates")
	return resolved, nil
}

func (p *BatchProcessor) fail(ctx context.Context, err error) error {
	if _, stateErr := p.state.SetError(context.WithoutCancel(ctx), err.Error()); stateErr != nil {
		p.log(ctx).WithError(stateErr).Error("Failed to record generation error")
	}
	return err
}

func (p *BatchProcessor) pause(ctx context.Context, cause error) error {
	if _, err := p.state.Pause(context.WithoutCancel(ctx)); err != nil {
		p.log(ctx).WithError(err).Error("Failed to record pause")
	}
	p.log(ctx).Info("Image generation paused")
	return cause
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
