package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// QueueItemStatus is the processing status of an image queue item.
type QueueItemStatus string

const (
	QueueItemPending    QueueItemStatus = "pending"
	QueueItemProcessing QueueItemStatus = "processing"
	QueueItemComplete   QueueItemStatus = "complete"
	QueueItemFailed     QueueItemStatus = "failed"
)

// fingerprintDomain separates image request hashes from any other hash in the system.
const fingerprintDomain = "councilgen/image-request/v1"

// Fingerprint returns the deduplication key for a rendered image request.
// It covers the normalized prompt, the dimensions and the style.
func Fingerprint(spec ImageSpecification) string {
	h := sha256.New()
	h.Write([]byte(fingerprintDomain))
	h.Write([]byte{0x00})
	h.Write([]byte(normalizePrompt(spec.Prompt)))
	h.Write([]byte{0x00})
	h.Write([]byte(strings.ToLower(strings.TrimSpace(string(spec.Dimensions)))))
	h.Write([]byte{0x00})
	h.Write([]byte(spec.Style))
	return hex.EncodeToString(h.Sum(nil))
}

func normalizePrompt(prompt string) string {
	return strings.Join(strings.Fields(strings.ToLower(prompt)), " ")
}

// ImageQueueItem is one unique image generation request.
type ImageQueueItem struct {
	ID            string             `json:"id"`
	ContentSpecID string             `json:"content_spec_id"`
	ContentID     string             `json:"content_id"`
	FieldName     string             `json:"field_name"`
	Spec          ImageSpecification `json:"spec"`
	Status        QueueItemStatus    `json:"status"`
	Attempts      int                `json:"attempts"`
	MediaID       string             `json:"media_id,omitempty"`
	Error         string             `json:"error,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	ProcessedAt   *time.Time         `json:"processed_at,omitempty"`
}

// NewImageQueueItem creates a pending item keyed by the spec's fingerprint.
func NewImageQueueItem(contentID string, spec ImageSpecification, now time.Time) *ImageQueueItem {
	spec = spec.WithDefaults()
	return &ImageQueueItem{
		ID:            Fingerprint(spec),
		ContentSpecID: spec.ContentSpecID,
		ContentID:     contentID,
		FieldName:     spec.FieldName,
		Spec:          spec,
		Status:        QueueItemPending,
		CreatedAt:     now,
	}
}

// MarkProcessing moves a pending item to processing.
func (i *ImageQueueItem) MarkProcessing() error {
	if i.Status != QueueItemPending {
		return fmt.Errorf("image %s: cannot start processing from %s", i.ID, i.Status)
	}
	i.Status = QueueItemProcessing
	i.Attempts++
	i.Error = ""
	return nil
}

// MarkComplete records the persisted media reference.
func (i *ImageQueueItem) MarkComplete(mediaID string, now time.Time) error {
	if i.Status != QueueItemProcessing {
		return fmt.Errorf("image %s: cannot complete from %s", i.ID, i.Status)
	}
	i.Status = QueueItemComplete
	i.MediaID = mediaID
	i.Error = ""
	i.ProcessedAt = &now
	return nil
}

// MarkFailed records a failed attempt. A media id already persisted for the
// item is kept so a retry only needs to re-attach it.
func (i *ImageQueueItem) MarkFailed(reason string, now time.Time) error {
	if i.Status != QueueItemProcessing && i.Status != QueueItemPending {
		return fmt.Errorf("image %s: cannot fail from %s", i.ID, i.Status)
	}
	i.Status = QueueItemFailed
	i.Error = reason
	i.ProcessedAt = &now
	return nil
}

// Reset moves a failed or interrupted item back to pending.
func (i *ImageQueueItem) Reset() error {
	if i.Status != QueueItemFailed && i.Status != QueueItemProcessing {
		return fmt.Errorf("image %s: cannot reset from %s", i.ID, i.Status)
	}
	i.Status = QueueItemPending
	i.ProcessedAt = nil
	return nil
}

// DuplicateRef is one extra occurrence of an already queued image request.
// It keeps its own target so the original's media can be attached to it.
type DuplicateRef struct {
	ID            string     `json:"id"`
	OriginalID    string     `json:"original_id"`
	ContentSpecID string     `json:"content_spec_id"`
	ContentID     string     `json:"content_id"`
	FieldName     string     `json:"field_name"`
	MediaID       string     `json:"media_id,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	ResolvedAt    *time.Time `json:"resolved_at,omitempty"`
}

// Resolved reports whether the original's media has been attached.
func (d *DuplicateRef) Resolved() bool {
	return d.ResolvedAt != nil
}

// Resolve records the media id that was attached to the duplicate's target.
func (d *DuplicateRef) Resolve(mediaID string, now time.Time) {
	d.MediaID = mediaID
	d.ResolvedAt = &now
}

// ImageQueue holds every unique image request plus its duplicate occurrences.
// Items and Duplicates are keyed by id; Order and DuplicateOrder keep insertion order.
type ImageQueue struct {
	Items          map[string]*ImageQueueItem `json:"items"`
	Order          []string                   `json:"order"`
	Duplicates     map[string]*DuplicateRef   `json:"duplicates"`
	DuplicateOrder []string                   `json:"duplicate_order"`
	CreatedAt      time.Time                  `json:"created_at"`
	UpdatedAt      time.Time                  `json:"updated_at"`
}

// NewImageQueue returns an empty queue.
func NewImageQueue(now time.Time) *ImageQueue {
	return &ImageQueue{
		Items:      make(map[string]*ImageQueueItem),
		Duplicates: make(map[string]*DuplicateRef),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// ensure initializes maps left nil by decoding an empty record.
func (q *ImageQueue) ensure() {
	if q.Items == nil {
		q.Items = make(map[string]*ImageQueueItem)
	}
	if q.Duplicates == nil {
		q.Duplicates = make(map[string]*DuplicateRef)
	}
}

// Has reports whether an item with the fingerprint exists.
func (q *ImageQueue) Has(id string) bool {
	_, ok := q.Items[id]
	return ok
}

// Item returns the item with the given fingerprint.
func (q *ImageQueue) Item(id string) (*ImageQueueItem, bool) {
	item, ok := q.Items[id]
	return item, ok
}

// Add inserts a new unique item.
func (q *ImageQueue) Add(item *ImageQueueItem, now time.Time) error {
	q.ensure()
	if q.Has(item.ID) {
		return fmt.Errorf("image %s already queued", item.ID)
	}
	q.Items[item.ID] = item
	q.Order = append(q.Order, item.ID)
	q.UpdatedAt = now
	return nil
}

// AddDuplicate records another occurrence of an existing item and returns it
// with its synthetic "<original>#<n>" id.
func (q *ImageQueue) AddDuplicate(originalID, contentID string, spec ImageSpecification, now time.Time) (*DuplicateRef, error) {
	q.ensure()
	if !q.Has(originalID) {
		return nil, fmt.Errorf("image %s is not queued", originalID)
	}
	spec = spec.WithDefaults()
	ref := &DuplicateRef{
		ID:            fmt.Sprintf("%s#%d", originalID, len(q.DuplicatesOf(originalID))+1),
		OriginalID:    originalID,
		ContentSpecID: spec.ContentSpecID,
		ContentID:     contentID,
		FieldName:     spec.FieldName,
		CreatedAt:     now,
	}
	q.Duplicates[ref.ID] = ref
	q.DuplicateOrder = append(q.DuplicateOrder, ref.ID)
	q.UpdatedAt = now
	return ref, nil
}

// DuplicatesOf returns the duplicates mapped to originalID in insertion order.
func (q *ImageQueue) DuplicatesOf(originalID string) []*DuplicateRef {
	var out []*DuplicateRef
	for _, id := range q.DuplicateOrder {
		if ref := q.Duplicates[id]; ref != nil && ref.OriginalID == originalID {
			out = append(out, ref)
		}
	}
	return out
}

// UnresolvedDuplicates returns duplicates whose original is complete but
// which have not yet received its media.
func (q *ImageQueue) UnresolvedDuplicates() []*DuplicateRef {
	var out []*DuplicateRef
	for _, id := range q.DuplicateOrder {
		ref := q.Duplicates[id]
		if ref == nil || ref.Resolved() {
			continue
		}
		if orig, ok := q.Items[ref.OriginalID]; ok && orig.Status == QueueItemComplete {
			out = append(out, ref)
		}
	}
	return out
}

func (q *ImageQueue) idsWithStatus(status QueueItemStatus) []string {
	var ids []string
	for _, id := range q.Order {
		if item := q.Items[id]; item != nil && item.Status == status {
			ids = append(ids, id)
		}
	}
	return ids
}

// PendingIDs returns pending fingerprints in insertion order.
func (q *ImageQueue) PendingIDs() []string { return q.idsWithStatus(QueueItemPending) }

// FailedIDs returns failed fingerprints in insertion order.
func (q *ImageQueue) FailedIDs() []string { return q.idsWithStatus(QueueItemFailed) }

// CompletedIDs returns completed fingerprints in insertion order.
func (q *ImageQueue) CompletedIDs() []string { return q.idsWithStatus(QueueItemComplete) }

// ProcessingIDs returns items left in processing, which only happens after an interruption.
func (q *ImageQueue) ProcessingIDs() []string { return q.idsWithStatus(QueueItemProcessing) }

func (q *ImageQueue) PendingCount() int   { return len(q.PendingIDs()) }
func (q *ImageQueue) CompletedCount() int { return len(q.CompletedIDs()) }
func (q *ImageQueue) FailedCount() int    { return len(q.FailedIDs()) }

// UniqueCount is the number of distinct image requests.
func (q *ImageQueue) UniqueCount() int { return len(q.Items) }

// DuplicateCount is the number of occurrences collapsed onto an existing request.
func (q *ImageQueue) DuplicateCount() int { return len(q.Duplicates) }

// ItemsByContent returns the unique items owned by a content item.
func (q *ImageQueue) ItemsByContent(contentID string) []*ImageQueueItem {
	var out []*ImageQueueItem
	for _, id := range q.Order {
		if item := q.Items[id]; item != nil && item.ContentID == contentID {
			out = append(out, item)
		}
	}
	return out
}

// MediaIDFor resolves the media id of an item or duplicate id.
func (q *ImageQueue) MediaIDFor(id string) (string, bool) {
	if ref, ok := q.Duplicates[id]; ok {
		id = ref.OriginalID
	}
	item, ok := q.Items[id]
	if !ok || item.Status != QueueItemComplete {
		return "", false
	}
	return item.MediaID, true
}

// Statistics summarizes the queue.
func (q *ImageQueue) Statistics() ImageQueueStatistics {
	return ImageQueueStatistics{
		Total:      q.UniqueCount(),
		Pending:    q.PendingCount(),
		Processing: len(q.ProcessingIDs()),
		Completed:  q.CompletedCount(),
		Failed:     q.FailedCount(),
		Duplicates: q.DuplicateCount(),
		CreatedAt:  q.CreatedAt,
		UpdatedAt:  q.UpdatedAt,
	}
}

// EstimatedPerImage is the planning estimate for one image generation.
const EstimatedPerImage = 5 * time.Second

// ImageQueueStatistics is a snapshot of queue counts.
type ImageQueueStatistics struct {
	Total      int       `json:"total"`
	Pending    int       `json:"pending"`
	Processing int       `json:"processing"`
	Completed  int       `json:"completed"`
	Failed     int       `json:"failed"`
	Duplicates int       `json:"duplicates"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// CompletionPercentage is 100 for an empty queue.
func (s ImageQueueStatistics) CompletionPercentage() int {
	if s.Total == 0 {
		return 100
	}
	return int(float64(s.Completed)/float64(s.Total)*100 + 0.5)
}

// SuccessRate is the completed share of processed items, 1.0 when nothing was processed.
func (s ImageQueueStatistics) SuccessRate() float64 {
	processed := s.Completed + s.Failed
	if processed == 0 {
		return 1.0
	}
	return float64(s.Completed) / float64(processed)
}

// EstimatedRemaining assumes EstimatedPerImage for each pending item.
func (s ImageQueueStatistics) EstimatedRemaining() time.Duration {
	return time.Duration(s.Pending) * EstimatedPerImage
}

// IsComplete reports whether nothing is pending.
func (s ImageQueueStatistics) IsComplete() bool { return s.Pending == 0 }

// Text renders a one-line summary.
func (s ImageQueueStatistics) Text() string {
	return fmt.Sprintf("%d/%d complete (%d%%), %d failed, %d duplicates, ~%s remaining",
		s.Completed, s.Total, s.CompletionPercentage(), s.Failed, s.Duplicates,
		FormatDuration(s.EstimatedRemaining()))
}

// FormatDuration renders d as "N seconds", "M min S sec", "M minutes" or "H hr M min".
func FormatDuration(d time.Duration) string {
	seconds := int(d / time.Second)
	if seconds < 60 {
		return fmt.Sprintf("%d seconds", seconds)
	}
	minutes := seconds / 60
	rem := seconds % 60
	if minutes < 60 {
		if rem > 0 {
			return fmt.Sprintf("%d min %d sec", minutes, rem)
		}
		return fmt.Sprintf("%d minutes", minutes)
	}
	return fmt.Sprintf("%d hr %d min", minutes/60, minutes%60)
}
