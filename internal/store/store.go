package store

import (
	"context"
	"errors"

	"github.com/weftsched/weft/internal/model"
)

// ErrInvalidTransition reports a run status transition that is not allowed.
// UpdateRunStatus does not check transitions and never returns it.
var ErrInvalidTransition = errors.New("invalid status transition")

// ErrNotFound is returned when a run is not found.
var ErrNotFound = errors.New("run not found")

// Store defines the persistence operations for exploration runs and the
// per-iteration records collected while they execute.
type Store interface {
	CreateRun(ctx context.Context, r *model.Run) error
	GetRun(ctx context.Context, id string) (*model.Run, error)
	ListRuns(ctx context.Context, limit, offset int) ([]*model.Run, int, error)
	UpdateRunStatus(ctx context.Context, id, status string) error
	IncrementRunIteration(ctx context.Context, id string) error

	InsertIterationRecord(ctx context.Context, rec *model.IterationRecord) error
	ListIterationRecords(ctx context.Context, runID string) ([]model.IterationRecord, error)

	Close() error
}
