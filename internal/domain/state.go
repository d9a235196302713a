package domain

import (
	"fmt"
	"time"
)

// GenerationStatus is the pipeline position.
type GenerationStatus string

const (
	StatusIdle               GenerationStatus = "idle"
	StatusGeneratingIdentity GenerationStatus = "generating_identity"
	StatusGeneratingContent  GenerationStatus = "generating_content"
	StatusGeneratingImages   GenerationStatus = "generating_images"
	StatusComplete           GenerationStatus = "complete"
	StatusError              GenerationStatus = "error"
	StatusPaused             GenerationStatus = "paused"
)

// IsValid reports whether s is a known status.
func (s GenerationStatus) IsValid() bool {
	_, ok := allowedTransitions[s]
	return ok
}

// IsGenerating reports whether s is one of the three working phases.
func (s GenerationStatus) IsGenerating() bool {
	return s == StatusGeneratingIdentity || s == StatusGeneratingContent || s == StatusGeneratingImages
}

// Label is the human-readable phase name.
func (s GenerationStatus) Label() string {
	switch s {
	case StatusGeneratingIdentity:
		return "Generating identity"
	case StatusGeneratingContent:
		return "Generating content"
	case StatusGeneratingImages:
		return "Generating images"
	case StatusComplete:
		return "Complete"
	case StatusError:
		return "Error"
	case StatusPaused:
		return "Paused"
	default:
		return "Idle"
	}
}

var allowedTransitions = map[GenerationStatus][]GenerationStatus{
	StatusIdle:               {StatusGeneratingIdentity, StatusGeneratingContent, StatusGeneratingImages},
	StatusGeneratingIdentity: {StatusGeneratingContent, StatusError, StatusPaused},
	StatusGeneratingContent:  {StatusGeneratingImages, StatusComplete, StatusError, StatusPaused},
	StatusGeneratingImages:   {StatusComplete, StatusError, StatusPaused},
	StatusPaused:             {StatusGeneratingIdentity, StatusGeneratingContent, StatusGeneratingImages, StatusIdle},
	StatusError:              {StatusGeneratingIdentity, StatusGeneratingContent, StatusGeneratingImages, StatusIdle},
	StatusComplete:           {StatusGeneratingContent, StatusGeneratingImages, StatusIdle},
}

// CanTransition reports whether from → to is allowed. Staying in the same
// status is always allowed so progress updates need no special case.
func CanTransition(from, to GenerationStatus) bool {
	if from == to {
		return from.IsValid()
	}
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// InvalidTransitionError is returned for a transition missing from the table.
type InvalidTransitionError struct {
	From GenerationStatus
	To   GenerationStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid generation state transition: %s -> %s", e.From, e.To)
}

// GenerationState is the persisted pipeline position.
type GenerationState struct {
	Status      GenerationStatus `json:"status"`
	CurrentStep int              `json:"current_step"`
	TotalSteps  int              `json:"total_steps"`
	PhaseLabel  string           `json:"phase_label"`
	CurrentItem string           `json:"current_item,omitempty"`
	LastError   string           `json:"last_error,omitempty"`
	// ResumeStatus is the phase an interrupted run continues from.
	ResumeStatus GenerationStatus `json:"resume_status,omitempty"`
	StartedAt    *time.Time       `json:"started_at,omitempty"`
	CompletedAt  *time.Time       `json:"completed_at,omitempty"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// IdleState is the initial state.
func IdleState() GenerationState {
	return GenerationState{Status: StatusIdle, PhaseLabel: StatusIdle.Label()}
}

// WithStatus moves to status, resetting the step counters to total.
// Entering a generating phase from idle stamps StartedAt; entering complete stamps CompletedAt.
func (s GenerationState) WithStatus(status GenerationStatus, total int, now time.Time) (GenerationState, error) {
	if !CanTransition(s.Status, status) {
		return s, &InvalidTransitionError{From: s.Status, To: status}
	}
	next := s
	next.Status = status
	next.PhaseLabel = status.Label()
	next.UpdatedAt = now
	if status != s.Status {
		next.CurrentStep = 0
		next.TotalSteps = total
		next.CurrentItem = ""
	}

	switch {
	case status.IsGenerating():
		next.LastError = ""
		next.ResumeStatus = status
		next.CompletedAt = nil
		if s.StartedAt == nil || s.Status == StatusIdle || s.Status == StatusComplete {
			next.StartedAt = &now
		}
	case status == StatusComplete:
		next.CompletedAt = &now
		next.ResumeStatus = ""
		next.CurrentStep = next.TotalSteps
	case status == StatusPaused:
		// step context is kept so the pause can be inspected
		next.CurrentStep = s.CurrentStep
		next.TotalSteps = s.TotalSteps
		next.CurrentItem = s.CurrentItem
	case status == StatusIdle:
		return IdleState(), nil
	}
	return next, nil
}

// WithProgress records the step position within the current phase.
func (s GenerationState) WithProgress(step, total int, item string, now time.Time) GenerationState {
	next := s
	next.CurrentStep = step
	next.TotalSteps = total
	next.CurrentItem = item
	next.UpdatedAt = now
	return next
}

// WithError always moves to error and clears the step context.
// ResumeStatus is kept so the failed phase can be retried.
func (s GenerationState) WithError(message string, now time.Time) GenerationState {
	next := s
	next.Status = StatusError
	next.PhaseLabel = StatusError.Label()
	next.LastError = message
	next.CurrentStep = 0
	next.TotalSteps = 0
	next.CurrentItem = ""
	next.UpdatedAt = now
	return next
}

// IsInProgress reports whether a generating phase is active.
func (s GenerationState) IsInProgress() bool {
	return s.Status.IsGenerating()
}

// Percentage is the rounded share of steps done, 0 when there are no steps.
func (s GenerationState) Percentage() int {
	if s.TotalSteps <= 0 {
		if s.Status == StatusComplete {
			return 100
		}
		return 0
	}
	return int(float64(s.CurrentStep)/float64(s.TotalSteps)*100 + 0.5)
}

// ProgressText renders the state for humans and screen readers.
func (s GenerationState) ProgressText() string {
	switch s.Status {
	case StatusError:
		return fmt.Sprintf("Generation failed: %s", s.LastError)
	case StatusComplete:
		return "Generation complete"
	case StatusIdle:
		return "Ready to generate"
	case StatusPaused:
		return fmt.Sprintf("Paused at step %d of %d", s.CurrentStep, s.TotalSteps)
	}
	return fmt.Sprintf("%s: step %d of %d (%d%% complete)", s.PhaseLabel, s.CurrentStep, s.TotalSteps, s.Percentage())
}

// ProgressPhase identifies the pipeline stage in a progress record.
type ProgressPhase string

const (
	PhaseIdentity ProgressPhase = "identity"
	PhaseContent  ProgressPhase = "content"
	PhaseImages   ProgressPhase = "images"
	PhaseComplete ProgressPhase = "complete"
)

// GenerationProgress is handed to progress observers after each unit of work.
type GenerationProgress struct {
	Phase       ProgressPhase `json:"phase"`
	Label       string        `json:"label"`
	Step        int           `json:"step"`
	Total       int           `json:"total"`
	CurrentItem string        `json:"current_item"`
	Success     bool          `json:"success"`
}

// Percentage is the rounded share of steps done.
func (p GenerationProgress) Percentage() int {
	if p.Total <= 0 {
		return 0
	}
	return int(float64(p.Step)/float64(p.Total)*100 + 0.5)
}

// Text renders "<label>: Step n of m (p%) - item".
func (p GenerationProgress) Text() string {
	text := fmt.Sprintf("%s: Step %d of %d (%d%%)", p.Label, p.Step, p.Total, p.Percentage())
	if p.CurrentItem != "" {
		text += " - " + p.CurrentItem
	}
	return text
}
