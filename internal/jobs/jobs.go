// Package jobs provides the background job scheduler the sync services
// depend on: one-off work with lifecycle history, continuations, and named
// recurring jobs on a cron cadence.
package jobs

import (
	"context"
	"errors"
	"time"
)

// State is the lifecycle state of an enqueued unit of work.
type State string

const (
	StateEnqueued   State = "Enqueued"
	StateProcessing State = "Processing"
	StateSucceeded  State = "Succeeded"
	StateFailed     State = "Failed"
	StateDeleted    State = "Deleted"
)

// Terminal reports whether no further transition can occur from this state.
func (s State) Terminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateDeleted:
		return true
	}
	return false
}

// HistoryEntry is one recorded lifecycle transition of a job.
type HistoryEntry struct {
	State State
	At    time.Time
}

// Work is a unit of background work. The context is canceled when the
// scheduler shuts down.
type Work func(ctx context.Context)

// ErrJobNotFound is returned when a job handle is unknown to the scheduler,
// e.g. because its history has been purged.
var ErrJobNotFound = errors.New("job not found")

// Scheduler is the narrow contract the sync services consume. Handles are
// opaque; recurring jobs are keyed by caller-supplied ids and re-registering
// an id replaces its cadence.
type Scheduler interface {
	Enqueue(work Work) (string, error)
	EnqueueContinuation(parent string, work Work) (string, error)
	RegisterRecurring(id, expr string, work Work) error
	RemoveRecurring(id string) error
	History(handle string) ([]HistoryEntry, error)
}
