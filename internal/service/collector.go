package service

import (
	"context"
	"fmt"
	"time"

	"github.com/timmy/councilgen/internal/domain"
	"github.com/timmy/councilgen/internal/logger"
)

// Collector gathers image requirements into the persisted image queue,
// collapsing identical requests onto one queue item.
type Collector struct {
	store StateStore
	queue *domain.ImageQueue
	now   func() time.Time
}

// NewCollector creates a Collector persisting through store.
func NewCollector(store StateStore) *Collector {
	return &Collector{store: store, now: time.Now}
}

func (c *Collector) log(ctx context.Context) *logger.Logger {
	return logger.FromContext(ctx).WithField(logger.FieldComponent, "collector")
}

// Queue returns the queue, loading it from the store on first use.
func (c *Collector) Queue(ctx context.Context) (*domain.ImageQueue, error) {
	if c.queue != nil {
		return c.queue, nil
	}
	queue := domain.NewImageQueue(c.now())
	found, err := c.store.Load(ctx, KeyImageQueue, queue)
	if err != nil {
		return nil, fmt.Errorf("load image queue: %w", err)
	}
	if !found {
		queue = domain.NewImageQueue(c.now())
	}
	if queue.Items == nil {
		queue.Items = make(map[string]*domain.ImageQueueItem)
	}
	if queue.Duplicates == nil {
		queue.Duplicates = make(map[string]*domain.DuplicateRef)
	}
	c.queue = queue
	return queue, nil
}

// Save persists the queue.
func (c *Collector) Save(ctx context.Context) error {
	if c.queue == nil {
		return nil
	}
	if err := c.store.Save(ctx, KeyImageQueue, c.queue); err != nil {
		return fmt.Errorf("persist image queue: %w", err)
	}
	return nil
}

// Reload drops the cached queue so the next call reads the store.
func (c *Collector) Reload() {
	c.queue = nil
}

// Enqueue adds one rendered image request for contentID and returns its fingerprint.
// A request whose fingerprint is already queued is recorded as a duplicate of it.
// Re-enqueueing the same target is a no-op.
func (c *Collector) Enqueue(ctx context.Context, contentID string, spec domain.ImageSpecification) (string, error) {
	queue, err := c.Queue(ctx)
	if err != nil {
		return "", err
	}

	now := c.now()
	item := domain.NewImageQueueItem(contentID, spec, now)
	log := c.log(ctx).WithFields(logger.Fields{
		logger.FieldFingerprint: item.ID[:12],
		logger.FieldSpecID:      item.ContentSpecID,
	})

	original, exists := queue.Item(item.ID)
	if !exists {
		if err := queue.Add(item, now); err != nil {
			return "", err
		}
		log.Debug("Queued image request")
		return item.ID, c.Save(ctx)
	}

	if original.ContentID == contentID && original.FieldName == item.FieldName {
		return original.ID, nil
	}
	for _, dup := range queue.DuplicatesOf(original.ID) {
		if dup.ContentID == contentID && dup.FieldName == item.FieldName {
			return original.ID, nil
		}
	}

	dup, err := queue.AddDuplicate(original.ID, contentID, item.Spec, now)
	if err != nil {
		return "", err
	}
	log.WithField("duplicate_id", dup.ID).Debug("Image request already queued, recorded duplicate")
	return original.ID, c.Save(ctx)
}

// CollectAll renders and enqueues every image requirement of spec for contentID.
// Requirements that fail to render are logged and skipped; only persistence errors are returned.
func (c *Collector) CollectAll(ctx context.Context, contentID string, spec domain.ContentSpecification, identity *domain.CouncilIdentity) ([]string, error) {
	rendered, renderErrs := spec.RenderImages(identity)
	for _, err := range renderErrs {
		c.log(ctx).WithError(err).Warn("Skipping image requirement")
	}

	ids := make([]string, 0, len(rendered))
	for _, img := range rendered {
		id, err := c.Enqueue(ctx, contentID, img)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Statistics summarizes the queue.
func (c *Collector) Statistics(ctx context.Context) (domain.ImageQueueStatistics, error) {
	queue, err := c.Queue(ctx)
	if err != nil {
		return domain.ImageQueueStatistics{}, err
	}
	return queue.Statistics(), nil
}

// Snapshot reads the persisted queue statistics without touching the cached
// queue, so it is safe to call while a run is mutating it.
func (c *Collector) Snapshot(ctx context.Context) (domain.ImageQueueStatistics, error) {
	queue := domain.NewImageQueue(c.now())
	if _, err := c.store.Load(ctx, KeyImageQueue, queue); err != nil {
		return domain.ImageQueueStatistics{}, fmt.Errorf("load image queue: %w", err)
	}
	return queue.Statistics(), nil
}

// MediaIDFor resolves the media generated for an item or duplicate id.
func (c *Collector) MediaIDFor(ctx context.Context, id string) (string, bool, error) {
	queue, err := c.Queue(ctx)
	if err != nil {
		return "", false, err
	}
	mediaID, ok := queue.MediaIDFor(id)
	return mediaID, ok, nil
}

// ResetFailed moves failed items, and items stranded in processing, back to pending.
func (c *Collector) ResetFailed(ctx context.Context) (int, error) {
	queue, err := c.Queue(ctx)
	if err != nil {
		return 0, err
	}
	ids := append(queue.FailedIDs(), queue.ProcessingIDs()...)
	for _, id := range ids {
		item, _ := queue.Item(id)
		if err := item.Reset(); err != nil {
			return 0, err
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}
	queue.UpdatedAt = c.now()
	return len(ids), c.Save(ctx)
}

// Clear replaces the queue with an empty one.
func (c *Collector) Clear(ctx context.Context) error {
	c.queue = domain.NewImageQueue(c.now())
	if err := c.store.Delete(ctx, KeyImageQueue); err != nil {
		return fmt.Errorf("clear image queue: %w", err)
	}
	return nil
}
