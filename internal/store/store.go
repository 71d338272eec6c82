// Package store persists pass runs and the field-level merge-audit trail.
// Snapshot persistence lives in the roster package; this store exists for
// audit and debugging, not for pipeline state.
package store

import (
	"context"

	"github.com/vandy-research/roster-cli/internal/model"
)

// RunFilter specifies criteria for listing pass runs.
type RunFilter struct {
	Stage  model.Stage      `json:"stage,omitempty"`
	Status model.PassStatus `json:"status,omitempty"`
	Limit  int              `json:"limit,omitempty"`
}

// Store defines the persistence interface for pass runs and merge audit.
type Store interface {
	// Pass runs
	CreateRun(ctx context.Context, stage model.Stage) (*model.PassRun, error)
	CompleteRun(ctx context.Context, runID string, summary *model.PassSummary) error
	FailRun(ctx context.Context, runID string, reason string) error
	GetRun(ctx context.Context, runID string) (*model.PassRun, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.PassRun, error)

	// Merge audit
	RecordEvents(ctx context.Context, runID string, events []model.MergeEvent) error
	ListEvents(ctx context.Context, recordID string) ([]model.MergeEvent, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
