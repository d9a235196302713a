package domain

import (
	"fmt"
	"time"
)

// ContentGenerationResult is the outcome of one specification attempt.
type ContentGenerationResult struct {
	SpecID      string        `json:"spec_id"`
	Success     bool          `json:"success"`
	ContentID   string        `json:"content_id,omitempty"`
	Error       string        `json:"error,omitempty"`
	Duration    time.Duration `json:"duration"`
	GeneratedAt time.Time     `json:"generated_at"`
	// Resumed marks a success recorded by an earlier run and not attempted again.
	Resumed bool `json:"resumed,omitempty"`
}

// NewSuccessResult records a generated and persisted content item.
func NewSuccessResult(specID, contentID string, duration time.Duration) ContentGenerationResult {
	return ContentGenerationResult{
		SpecID:      specID,
		Success:     true,
		ContentID:   contentID,
		Duration:    duration,
		GeneratedAt: time.Now(),
	}
}

// NewFailureResult records a failed attempt.
func NewFailureResult(specID string, err error, duration time.Duration) ContentGenerationResult {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return ContentGenerationResult{
		SpecID:      specID,
		Error:       msg,
		Duration:    duration,
		GeneratedAt: time.Now(),
	}
}

// NewResumedResult records a success carried over from a previous run.
func NewResumedResult(specID, contentID string) ContentGenerationResult {
	return ContentGenerationResult{
		SpecID:      specID,
		Success:     true,
		ContentID:   contentID,
		GeneratedAt: time.Now(),
		Resumed:     true,
	}
}

// GenerationSummary aggregates a content generation pass.
type GenerationSummary struct {
	Total         int                       `json:"total"`
	SuccessCount  int                       `json:"success_count"`
	FailureCount  int                       `json:"failure_count"`
	ResumedCount  int                       `json:"resumed_count"`
	Results       []ContentGenerationResult `json:"results"`
	FailedSpecIDs []string                  `json:"failed_spec_ids"`
	TotalDuration time.Duration             `json:"total_duration"`
}

// NewGenerationSummary computes the summary from the per-spec results.
func NewGenerationSummary(results []ContentGenerationResult, elapsed time.Duration) *GenerationSummary {
	s := &GenerationSummary{
		Total:         len(results),
		Results:       results,
		FailedSpecIDs: []string{},
		TotalDuration: elapsed,
	}
	for _, r := range results {
		switch {
		case r.Success:
			s.SuccessCount++
			if r.Resumed {
				s.ResumedCount++
			}
		default:
			s.FailureCount++
			s.FailedSpecIDs = append(s.FailedSpecIDs, r.SpecID)
		}
	}
	return s
}

// SuccessRate returns the success percentage, 0 for an empty pass.
func (s *GenerationSummary) SuccessRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.SuccessCount) / float64(s.Total) * 100
}

// AverageDuration is the mean time of the items actually attempted in this pass.
func (s *GenerationSummary) AverageDuration() time.Duration {
	attempted := s.Total - s.ResumedCount
	if attempted <= 0 {
		return 0
	}
	var sum time.Duration
	for _, r := range s.Results {
		if !r.Resumed {
			sum += r.Duration
		}
	}
	return sum / time.Duration(attempted)
}

func (s *GenerationSummary) IsFullySuccessful() bool {
	return s.Total > 0 && s.FailureCount == 0
}

func (s *GenerationSummary) HasFailures() bool {
	return s.FailureCount > 0
}

// ContentIDs maps each successful spec to its persisted content id.
func (s *GenerationSummary) ContentIDs() map[string]string {
	out := make(map[string]string, s.SuccessCount)
	for _, r := range s.Results {
		if r.Success {
			out[r.SpecID] = r.ContentID
		}
	}
	return out
}

// Text renders a one-line summary.
func (s *GenerationSummary) Text() string {
	return fmt.Sprintf("%d/%d content items, %.0f%% success, %d failed, %.1fs duration",
		s.SuccessCount, s.Total, s.SuccessRate(), s.FailureCount, s.TotalDuration.Seconds())
}

// ImageBatchResult aggregates an image processing pass.
type ImageBatchResult struct {
	TotalProcessed     int           `json:"total_processed"`
	SuccessCount       int           `json:"success_count"`
	FailureCount       int           `json:"failure_count"`
	DuplicatesResolved int           `json:"duplicates_resolved"`
	MediaIDs           []string      `json:"media_ids"`
	FailedItemIDs      []string      `json:"failed_item_ids"`
	Duration           time.Duration `json:"duration"`
}

// NewImageBatchResult returns an empty result.
func NewImageBatchResult() *ImageBatchResult {
	return &ImageBatchResult{
		MediaIDs:      []string{},
		FailedItemIDs: []string{},
	}
}

// RecordSuccess counts a completed item.
func (r *ImageBatchResult) RecordSuccess(mediaID string) {
	r.TotalProcessed++
	r.SuccessCount++
	r.MediaIDs = append(r.MediaIDs, mediaID)
}

// RecordFailure counts a failed item.
func (r *ImageBatchResult) RecordFailure(itemID string) {
	r.TotalProcessed++
	r.FailureCount++
	r.FailedItemIDs = append(r.FailedItemIDs, itemID)
}

// SuccessRate returns the success percentage, 100 when nothing was processed.
func (r *ImageBatchResult) SuccessRate() float64 {
	if r.TotalProcessed == 0 {
		return 100
	}
	return float64(r.SuccessCount) / float64(r.TotalProcessed) * 100
}

func (r *ImageBatchResult) HasFailures() bool {
	return r.FailureCount > 0
}

// Text renders "X/Y images, Z% success, N failed, Ns duration".
func (r *ImageBatchResult) Text() string {
	return fmt.Sprintf("%d/%d images, %.0f%% success, %d failed, %.1fs duration",
		r.SuccessCount, r.TotalProcessed, r.SuccessRate(), r.FailureCount, r.Duration.Seconds())
}
