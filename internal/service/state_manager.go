package service

import (
	"context"
	"fmt"
	"time"

	"github.com/timmy/councilgen/internal/domain"
	"github.com/timmy/councilgen/internal/logger"
)

// StateManager owns the persisted GenerationState and council identity.
// Every change is saved before the method returns.
type StateManager struct {
	store StateStore
	now   func() time.Time
}

// NewStateManager creates a StateManager over store.
func NewStateManager(store StateStore) *StateManager {
	return &StateManager{store: store, now: time.Now}
}

func (m *StateManager) log(ctx context.Context) *logger.Logger {
	return logger.FromContext(ctx).WithField(logger.FieldComponent, "state")
}

// Current returns the persisted state, or the idle state when none exists.
func (m *StateManager) Current(ctx context.Context) (domain.GenerationState, error) {
	var state domain.GenerationState
	found, err := m.store.Load(ctx, KeyGenerationState, &state)
	if err != nil {
		return domain.GenerationState{}, err
	}
	if !found || !state.Status.IsValid() {
		return domain.IdleState(), nil
	}
	return state, nil
}

// Save persists state as-is.
func (m *StateManager) Save(ctx context.Context, state domain.GenerationState) error {
	if err := m.store.Save(ctx, KeyGenerationState, state); err != nil {
		return fmt.Errorf("persist generation state: %w", err)
	}
	return nil
}

// Clear resets to idle by removing the persisted state.
func (m *StateManager) Clear(ctx context.Context) error {
	return m.store.Delete(ctx, KeyGenerationState)
}

// Transition moves to status with a fresh step counter.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - status: target status; must be allowed from the current one.
//   - total: number of steps in the new phase.
//
// Returns:
//   - domain.GenerationState: the persisted state.
//   - error: *domain.InvalidTransitionError or a persistence error.
func (m *StateManager) Transition(ctx context.Context, status domain.GenerationStatus, total int) (domain.GenerationState, error) {
	current, err := m.Current(ctx)
	if err != nil {
		return current, err
	}
	next, err := current.WithStatus(status, total, m.now())
	if err != nil {
		return current, err
	}
	if err := m.Save(ctx, next); err != nil {
		return current, err
	}
	m.log(ctx).WithFields(logger.Fields{
		"from":  current.Status,
		"to":    next.Status,
		"total": total,
	}).Info("Generation state changed")
	return next, nil
}

// UpdateProgress records the step position within the current phase.
func (m *StateManager) UpdateProgress(ctx context.Context, step, total int, item string) (domain.GenerationState, error) {
	current, err := m.Current(ctx)
	if err != nil {
		return current, err
	}
	next := current.WithProgress(step, total, item, m.now())
	return next, m.Save(ctx, next)
}

// SetError moves to the error status with message.
func (m *StateManager) SetError(ctx context.Context, message string) (domain.GenerationState, error) {
	current, err := m.Current(ctx)
	if err != nil {
		return current, err
	}
	next := current.WithError(message, m.now())
	m.log(ctx).WithField("from", current.Status).Error("Generation failed: " + message)
	return next, m.Save(ctx, next)
}

// MarkComplete moves to the complete status.
func (m *StateManager) MarkComplete(ctx context.Context) (domain.GenerationState, error) {
	return m.Transition(ctx, domain.StatusComplete, 0)
}

// Pause records that the in-progress phase was interrupted. Pausing a state
// that is not generating is a no-op.
func (m *StateManager) Pause(ctx context.Context) (domain.GenerationState, error) {
	current, err := m.Current(ctx)
	if err != nil {
		return current, err
	}
	if !current.IsInProgress() {
		return current, nil
	}
	return m.Transition(ctx, domain.StatusPaused, 0)
}

// ResumePhase returns the phase an interrupted run should continue from.
// Idle and complete states have nothing to resume.
func (m *StateManager) ResumePhase(ctx context.Context) (domain.GenerationStatus, error) {
	current, err := m.Current(ctx)
	if err != nil {
		return "", err
	}
	switch current.Status {
	case domain.StatusPaused, domain.StatusError:
		if current.ResumeStatus.IsGenerating() {
			return current.ResumeStatus, nil
		}
		return domain.StatusGeneratingIdentity, nil
	case domain.StatusGeneratingIdentity, domain.StatusGeneratingContent, domain.StatusGeneratingImages:
		// the process died without pausing
		return current.Status, nil
	}
	return "", ErrNothingToResume
}

// SaveIdentity persists the council identity.
func (m *StateManager) SaveIdentity(ctx context.Context, identity *domain.CouncilIdentity) error {
	if err := m.store.Save(ctx, KeyIdentity, identity); err != nil {
		return fmt.Errorf("persist identity: %w", err)
	}
	return nil
}

// LoadIdentity returns the persisted identity, or nil when none exists.
func (m *StateManager) LoadIdentity(ctx context.Context) (*domain.CouncilIdentity, error) {
	var identity domain.CouncilIdentity
	found, err := m.store.Load(ctx, KeyIdentity, &identity)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &identity, nil
}

// HasIdentity reports whether an identity has been persisted.
func (m *StateManager) HasIdentity(ctx context.Context) (bool, error) {
	identity, err := m.LoadIdentity(ctx)
	return identity != nil, err
}

// ClearIdentity removes the persisted identity.
func (m *StateManager) ClearIdentity(ctx context.Context) error {
	return m.store.Delete(ctx, KeyIdentity)
}
