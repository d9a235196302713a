package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	testCases := []struct {
		from, to GenerationStatus
		allowed  bool
	}{
		{StatusIdle, StatusGeneratingIdentity, true},
		{StatusIdle, StatusComplete, false},
		{StatusIdle, StatusError, false},
		{StatusGeneratingIdentity, StatusGeneratingContent, true},
		{StatusGeneratingIdentity, StatusGeneratingImages, false},
		{StatusGeneratingContent, StatusGeneratingImages, true},
		{StatusGeneratingContent, StatusComplete, true},
		{StatusGeneratingImages, StatusGeneratingContent, false},
		{StatusGeneratingImages, StatusPaused, true},
		{StatusPaused, StatusGeneratingImages, true},
		{StatusPaused, StatusComplete, false},
		{StatusError, StatusIdle, true},
		{StatusComplete, StatusGeneratingContent, true},
		{StatusComplete, StatusPaused, false},
		{StatusGeneratingContent, StatusGeneratingContent, true},
		{"bogus", "bogus", false},
	}

	for _, tc := range testCases {
		t.Run(string(tc.from)+"->"+string(tc.to), func(t *testing.T) {
			assert.Equal(t, tc.allowed, CanTransition(tc.from, tc.to))
		})
	}
}

func TestGenerationStateLifecycle(t *testing.T) {
	t0 := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	s := IdleState()
	assert.Equal(t, "Ready to generate", s.ProgressText())

	s, err := s.WithStatus(StatusGeneratingIdentity, 1, t0)
	require.NoError(t, err)
	require.NotNil(t, s.StartedAt)
	assert.Equal(t, "Generating identity", s.PhaseLabel)

	s, err = s.WithStatus(StatusGeneratingContent, 10, t0.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, t0.Equal(*s.StartedAt))
	assert.Equal(t, 0, s.CurrentStep)
	assert.Equal(t, 10, s.TotalSteps)

	s = s.WithProgress(4, 10, "service-council-tax", t0.Add(2*time.Minute))
	assert.Equal(t, 40, s.Percentage())
	assert.Equal(t, "Generating content: step 4 of 10 (40% complete)", s.ProgressText())

	paused, err := s.WithStatus(StatusPaused, 0, t0.Add(3*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 4, paused.CurrentStep)
	assert.Equal(t, 10, paused.TotalSteps)
	assert.Equal(t, StatusGeneratingContent, paused.ResumeStatus)
	assert.Equal(t, "Paused at step 4 of 10", paused.ProgressText())

	s, err = paused.WithStatus(StatusGeneratingContent, 10, t0.Add(4*time.Minute))
	require.NoError(t, err)
	s, err = s.WithStatus(StatusGeneratingImages, 3, t0.Add(5*time.Minute))
	require.NoError(t, err)
	s, err = s.WithStatus(StatusComplete, 0, t0.Add(6*time.Minute))
	require.NoError(t, err)
	require.NotNil(t, s.CompletedAt)
	assert.True(t, t0.Add(6*time.Minute).Equal(*s.CompletedAt))
	assert.Empty(t, s.ResumeStatus)
	assert.Equal(t, 100, s.Percentage())
	assert.Equal(t, "Generation complete", s.ProgressText())

	s, err = s.WithStatus(StatusIdle, 0, t0.Add(7*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, IdleState(), s)
}

func TestGenerationStateInvalidTransition(t *testing.T) {
	s := IdleState()
	next, err := s.WithStatus(StatusComplete, 0, time.Now())

	var terr *InvalidTransitionError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, StatusIdle, terr.From)
	assert.Equal(t, StatusComplete, terr.To)
	assert.Equal(t, "invalid generation state transition: idle -> complete", err.Error())
	assert.Equal(t, s, next)
}

func TestGenerationStateWithError(t *testing.T) {
	now := time.Now()
	s, err := IdleState().WithStatus(StatusGeneratingImages, 8, now)
	require.NoError(t, err)
	s = s.WithProgress(3, 8, "abc", now)

	failed := s.WithError("database is locked", now)
	assert.Equal(t, StatusError, failed.Status)
	assert.Equal(t, "Error", failed.PhaseLabel)
	assert.Equal(t, 0, failed.CurrentStep)
	assert.Equal(t, 0, failed.TotalSteps)
	assert.Empty(t, failed.CurrentItem)
	assert.Equal(t, StatusGeneratingImages, failed.ResumeStatus)
	assert.Equal(t, "Generation failed: database is locked", failed.ProgressText())

	// a new phase clears the error
	retried, err := failed.WithStatus(StatusGeneratingImages, 8, now)
	require.NoError(t, err)
	assert.Empty(t, retried.LastError)
}

func TestGenerationProgressText(t *testing.T) {
	p := GenerationProgress{Label: "Generating images", Step: 1, Total: 3, CurrentItem: "hero"}
	assert.Equal(t, "Generating images: Step 1 of 3 (33%) - hero", p.Text())

	p = GenerationProgress{Label: "Generating content", Step: 0, Total: 0}
	assert.Equal(t, "Generating content: Step 0 of 0 (0%)", p.Text())
}
