package server

import (
	"context"
	"time"

	"github.com/claude/repguide/internal/routine"
	"github.com/claude/repguide/internal/storage"
	"github.com/google/uuid"
)

// Store abstracts the persistence layer the handlers need. The core session
// engine never touches it; handlers read runner snapshots and hand them to
// the store.
type Store interface {
	GetOrCreateUser(ctx context.Context, login, displayName string) (int, error)

	SaveRoutine(ctx context.Context, r *routine.Routine) error
	LoadRoutine(ctx context.Context, id uuid.UUID, userID int) (*routine.Routine, error)
	ListRoutines(ctx context.Context, userID int, includeArchived bool) ([]storage.RoutineSummary, error)
	DeleteRoutine(ctx context.Context, id uuid.UUID, userID int) error

	CreateExercise(ctx context.Context, e storage.Exercise) error
	GetExercise(ctx context.Context, id uuid.UUID, userID int) (*storage.Exercise, error)
	ListExercises(ctx context.Context, userID int) ([]storage.Exercise, error)
	DeleteExercise(ctx context.Context, id uuid.UUID, userID int) error

	SaveSessionOutcome(ctx context.Context, rec storage.SessionRecord) error
	QueryTrainingLog(ctx context.Context, start, end time.Time, userID int) ([]storage.SessionSummary, error)
	GetTrainingSummary(ctx context.Context, start, end time.Time, bucket string, userID int) ([]storage.TrainingSummaryPeriod, error)
}

// Compile-time check: *storage.DB satisfies Store.
var _ Store = (*storage.DB)(nil)
