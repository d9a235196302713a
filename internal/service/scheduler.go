package service

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/timmy/councilgen/internal/domain"
)

// ErrDependencyUnresolved marks a specification whose prerequisites can never complete.
var ErrDependencyUnresolved = errors.New("dependency unresolved")

// UnresolvedSpec is a specification the scheduler gave up on, with the
// dependencies that were still missing.
type UnresolvedSpec struct {
	Spec    domain.ContentSpecification
	Missing []string
}

// Err describes why the specification could not run.
func (u UnresolvedSpec) Err() error {
	return fmt.Errorf("%w: %s waits on %s", ErrDependencyUnresolved, u.Spec.ID, strings.Join(u.Missing, ", "))
}

// Scheduler releases specifications in order-hint order once their dependencies completed.
// It is single-use and not safe for concurrent use.
type Scheduler struct {
	specs     []domain.ContentSpecification
	attempted []bool
	completed map[string]bool
	failed    map[string]bool
	passes    int
}

// NewScheduler sorts specs by ascending Order, keeping catalog order for ties.
// Ids in completed count as already done and are never released again.
func NewScheduler(specs []domain.ContentSpecification, completed []string) *Scheduler {
	sorted := make([]domain.ContentSpecification, len(specs))
	copy(sorted, specs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Order < sorted[j].Order
	})

	s := &Scheduler{
		specs:     sorted,
		attempted: make([]bool, len(sorted)),
		completed: make(map[string]bool, len(specs)),
		failed:    make(map[string]bool),
	}
	done := make(map[string]bool, len(completed))
	for _, id := range completed {
		done[id] = true
	}
	for i, spec := range sorted {
		if done[spec.ID] {
			s.completed[spec.ID] = true
			s.attempted[i] = true
		}
	}
	return s
}

// NextBatch makes one pass and releases every unattempted specification whose
// dependencies have all completed. An empty batch while Remaining() > 0 means
// the rest can never run.
func (s *Scheduler) NextBatch() []domain.ContentSpecification {
	s.passes++
	var batch []domain.ContentSpecification
	for i, spec := range s.specs {
		if s.attempted[i] {
			continue
		}
		if spec.DependenciesSatisfied(s.completed) {
			s.attempted[i] = true
			batch = append(batch, spec)
		}
	}
	return batch
}

// MarkCompleted records a success so dependents can be released.
func (s *Scheduler) MarkCompleted(id string) {
	s.completed[id] = true
}

// MarkFailed records a failed attempt. Failed ids never satisfy a dependency.
func (s *Scheduler) MarkFailed(id string) {
	s.failed[id] = true
}

// Remaining is the number of specifications not yet released.
func (s *Scheduler) Remaining() int {
	n := 0
	for _, done := range s.attempted {
		if !done {
			n++
		}
	}
	return n
}

// Passes is the number of NextBatch calls so far.
func (s *Scheduler) Passes() int {
	return s.passes
}

// Unresolved gives up on every remaining specification and reports what each was waiting for.
func (s *Scheduler) Unresolved() []UnresolvedSpec {
	var out []UnresolvedSpec
	for i, spec := range s.specs {
		if s.attempted[i] {
			continue
		}
		s.attempted[i] = true
		var missing []string
		for _, dep := range spec.Dependencies {
			if !s.completed[dep] {
				missing = append(missing, dep)
			}
		}
		s.failed[spec.ID] = true
		out = append(out, UnresolvedSpec{Spec: spec, Missing: missing})
	}
	return out
}

// FailedCount is the number of distinct ids recorded as failed, including unresolved ones.
func (s *Scheduler) FailedCount() int {
	return len(s.failed)
}

// IsCompleted reports whether id has completed.
func (s *Scheduler) IsCompleted(id string) bool {
	return s.completed[id]
}
