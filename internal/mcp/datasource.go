package mcp

import (
	"context"
	"time"

	"github.com/claude/repguide/internal/routine"
	"github.com/claude/repguide/internal/storage"
	"github.com/google/uuid"
)

// DataSource abstracts the data layer for MCP tools.
type DataSource interface {
	ListRoutines(ctx context.Context, userID int, includeArchived bool) ([]storage.RoutineSummary, error)
	LoadRoutine(ctx context.Context, id uuid.UUID, userID int) (*routine.Routine, error)
	QueryTrainingLog(ctx context.Context, start, end time.Time, userID int) ([]storage.SessionSummary, error)
	GetTrainingSummary(ctx context.Context, start, end time.Time, bucket string, userID int) ([]storage.TrainingSummaryPeriod, error)
}

// Compile-time check: *storage.DB satisfies DataSource.
var _ DataSource = (*storage.DB)(nil)
