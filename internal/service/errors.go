package service

import "errors"

var (
	// ErrNothingToResume is returned when the persisted state has no interrupted phase.
	ErrNothingToResume = errors.New("no interrupted generation to resume")

	// ErrRunInProgress is returned when a run is started while another is active.
	ErrRunInProgress = errors.New("generation already in progress")

	// ErrNoIdentity is returned when a phase needs an identity that was never generated.
	ErrNoIdentity = errors.New("no council identity; generate one first")

	// ErrNoJSON is returned when a text response contains no JSON object.
	ErrNoJSON = errors.New("no JSON object in response")
)
