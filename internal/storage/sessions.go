package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SessionRecord is a finished (or abandoned) guided session ready for
// insertion into the training_sessions table.
type SessionRecord struct {
	ID         uuid.UUID
	UserID     int
	RoutineID  uuid.UUID
	StartedAt  time.Time
	FinishedAt time.Time
	Completed  bool
	Steps      []SessionStepRecord
}

// SessionStepRecord is one finished step of a session.
type SessionStepRecord struct {
	Position   int
	ExerciseID *uuid.UUID
	PlannedSec int
	ElapsedSec float64
	Skipped    bool
	Automatic  bool
}

// SaveSessionOutcome persists a session and its step history in one
// transaction.
func (db *DB) SaveSessionOutcome(ctx context.Context, rec SessionRecord) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO training_sessions (id, user_id, routine_id, started_at, finished_at, completed)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT DO NOTHING`,
		rec.ID, rec.UserID, rec.RoutineID, rec.StartedAt, rec.FinishedAt, rec.Completed)
	if err != nil {
		return fmt.Errorf("inserting session: %w", err)
	}

	if len(rec.Steps) > 0 {
		query := `INSERT INTO training_session_steps (session_id, position, exercise_id, planned_sec, elapsed_sec, skipped, automatic) VALUES `
		args := make([]any, 0, len(rec.Steps)*7)
		valueStrings := make([]string, 0, len(rec.Steps))
		for i, s := range rec.Steps {
			base := i * 7
			valueStrings = append(valueStrings, fmt.Sprintf(
				"($%d,$%d,$%d,$%d,$%d,$%d,$%d)",
				base+1, base+2, base+3, base+4, base+5, base+6, base+7,
			))
			args = append(args, rec.ID, s.Position, s.ExerciseID, s.PlannedSec, s.ElapsedSec, s.Skipped, s.Automatic)
		}
		query += strings.Join(valueStrings, ",") + " ON CONFLICT DO NOTHING"
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("inserting session steps: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// SessionSummary is a listing row for the training log.
type SessionSummary struct {
	ID          uuid.UUID `json:"id"`
	RoutineID   uuid.UUID `json:"routine_id"`
	RoutineName string    `json:"routine_name"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	Completed   bool      `json:"completed"`
	StepsDone   int       `json:"steps_done"`
	StepsSkipped int      `json:"steps_skipped"`
	TotalSec    float64   `json:"total_sec"`
}

// QueryTrainingLog returns a user's sessions in a time range, newest first.
func (db *DB) QueryTrainingLog(ctx context.Context, start, end time.Time, userID int) ([]SessionSummary, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT s.id, s.routine_id, COALESCE(r.name, ''), s.started_at, s.finished_at, s.completed,
		        COUNT(st.session_id) FILTER (WHERE NOT st.skipped)::int,
		        COUNT(st.session_id) FILTER (WHERE st.skipped)::int,
		        COALESCE(SUM(st.elapsed_sec), 0)
		 FROM training_sessions s
		 LEFT JOIN routines r ON r.id = s.routine_id
		 LEFT JOIN training_session_steps st ON st.session_id = s.id
		 WHERE s.started_at >= $1 AND s.started_at < $2 AND s.user_id = $3
		 GROUP BY s.id, r.name
		 ORDER BY s.started_at DESC`,
		start, end, userID)
	if err != nil {
		return nil, fmt.Errorf("querying training log: %w", err)
	}
	defer rows.Close()

	var result []SessionSummary
	for rows.Next() {
		var s SessionSummary
		if err := rows.Scan(&s.ID, &s.RoutineID, &s.RoutineName, &s.StartedAt, &s.FinishedAt,
			&s.Completed, &s.StepsDone, &s.StepsSkipped, &s.TotalSec); err != nil {
			return nil, fmt.Errorf("scanning session summary: %w", err)
		}
		result = append(result, s)
	}
	return result, rows.Err()
}

// TrainingSummaryPeriod holds aggregated session stats for one time period.
type TrainingSummaryPeriod struct {
	Period       string  `json:"period"`
	Sessions     int     `json:"sessions"`
	Completed    int     `json:"completed"`
	StepsDone    int     `json:"steps_done"`
	StepsSkipped int     `json:"steps_skipped"`
	TotalSec     float64 `json:"total_sec"`
}

// GetTrainingSummary returns session stats bucketed by week or month.
func (db *DB) GetTrainingSummary(ctx context.Context, start, end time.Time, bucket string, userID int) ([]TrainingSummaryPeriod, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT date_trunc($1, s.started_at)::date AS period,
		        COUNT(DISTINCT s.id)::int,
		        COUNT(DISTINCT s.id) FILTER (WHERE s.completed)::int,
		        COUNT(st.session_id) FILTER (WHERE NOT st.skipped)::int,
		        COUNT(st.session_id) FILTER (WHERE st.skipped)::int,
		        COALESCE(SUM(st.elapsed_sec), 0)
		 FROM training_sessions s
		 LEFT JOIN training_session_steps st ON st.session_id = s.id
		 WHERE s.started_at >= $2 AND s.started_at < $3 AND s.user_id = $4
		 GROUP BY period
		 ORDER BY period DESC`,
		truncInterval(bucket), start, end, userID)
	if err != nil {
		return nil, fmt.Errorf("querying training summary: %w", err)
	}
	defer rows.Close()

	var result []TrainingSummaryPeriod
	for rows.Next() {
		var periodTime time.Time
		var p TrainingSummaryPeriod
		if err := rows.Scan(&periodTime, &p.Sessions, &p.Completed, &p.StepsDone, &p.StepsSkipped, &p.TotalSec); err != nil {
			return nil, fmt.Errorf("scanning training summary: %w", err)
		}
		p.Period = periodTime.Format("2006-01-02")
		result = append(result, p)
	}
	return result, rows.Err()
}

// truncInterval converts bucket strings like "1 month" to the interval name
// that date_trunc expects.
func truncInterval(bucket string) string {
	switch bucket {
	case "1 week":
		return "week"
	case "1 month":
		return "month"
	default:
		return "week"
	}
}
