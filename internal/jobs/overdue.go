// Package jobs holds the background and on-demand maintenance operations:
// overdue task sweeps, invoice numbering, bulk deletion and payment
// verification.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// TaskStatus values the sweep reads and writes.
const (
	TaskTodo       = "todo"
	TaskInProgress = "in_progress"
	TaskOverdue    = "overdue"
)

// TaskStore flips open tasks past their due date to overdue.
type TaskStore interface {
	MarkOverdueTasks(ctx context.Context, now time.Time) (int64, error)
}

// OverdueSweep marks open, non-deleted tasks whose due date has passed.
type OverdueSweep struct {
	store TaskStore
	now   func() time.Time
	log   zerolog.Logger
}

// NewOverdueSweep builds the job.
func NewOverdueSweep(store TaskStore, logger zerolog.Logger) *OverdueSweep {
	return &OverdueSweep{store: store, now: time.Now, log: logger}
}

// Run performs one sweep and returns the number of tasks changed.
func (j *OverdueSweep) Run(ctx context.Context) (int64, error) {
	now := j.now().UTC()
	n, err := j.store.MarkOverdueTasks(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("jobs: mark overdue: %w", err)
	}
	if n > 0 {
		j.log.Info().Int64("tasks", n).Time("as_of", now).Msg("tasks marked overdue")
	}
	return n, nil
}
