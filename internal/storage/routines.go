package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/claude/repguide/internal/routine"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrNotFound means the requested row does not exist for the user.
var ErrNotFound = errors.New("not found")

// RoutineSummary is a listing row for a user's routines.
type RoutineSummary struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Archived  bool      `json:"archived"`
	PartCount int       `json:"part_count"`
}

// partRow is the persisted form of one tree node. The path column holds the
// 1-based sibling positions from the top level down to the node, so sibling
// positions under any parent are contiguous integers starting at 1 and the
// lexicographic array order is exactly depth-first tree order.
type partRow struct {
	path      []int32
	kind      int16
	rounds    int32
	exercise  *uuid.UUID
	duration  int32
	tempo     int32
	automatic bool
}

func flattenRows(parts []*routine.Part, prefix []int32, out []partRow) []partRow {
	for i, p := range parts {
		path := make([]int32, len(prefix)+1)
		copy(path, prefix)
		path[len(prefix)] = int32(i + 1)
		row := partRow{path: path}
		switch p.Kind {
		case routine.KindSection:
			row.kind = int16(routine.KindSection)
			row.rounds = int32(p.Rounds)
			out = append(out, row)
			out = flattenRows(p.Children, path, out)
		case routine.KindActivity:
			row.kind = int16(routine.KindActivity)
			row.exercise = p.Activity.Exercise
			row.duration = int32(p.Activity.Duration)
			row.tempo = int32(p.Activity.Tempo)
			row.automatic = p.Activity.Automatic
			out = append(out, row)
		}
	}
	return out
}

// SaveRoutine upserts the routine row and rewrites its part tree in one
// transaction, so a failed save never leaves a partial tree behind.
func (db *DB) SaveRoutine(ctx context.Context, r *routine.Routine) error {
	if err := r.Validate(); err != nil {
		return fmt.Errorf("validating routine: %w", err)
	}

	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO routines (id, user_id, name, notes, archived)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE
			SET name = $3, notes = $4, archived = $5, updated_at = NOW()
		 WHERE routines.user_id = $2`,
		r.ID, r.UserID, r.Name, r.Notes, r.Archived)
	if err != nil {
		return fmt.Errorf("upserting routine: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM routine_parts WHERE routine_id = $1`, r.ID); err != nil {
		return fmt.Errorf("clearing routine parts: %w", err)
	}

	rows := flattenRows(r.Parts, nil, nil)
	if len(rows) > 0 {
		query := `INSERT INTO routine_parts (routine_id, path, kind, rounds, exercise_id, duration_sec, tempo_sec, automatic) VALUES `
		args := make([]any, 0, len(rows)*8)
		valueStrings := make([]string, 0, len(rows))
		for i, row := range rows {
			base := i * 8
			valueStrings = append(valueStrings, fmt.Sprintf(
				"($%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d)",
				base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8,
			))
			args = append(args, r.ID, row.path, row.kind, row.rounds, row.exercise, row.duration, row.tempo, row.automatic)
		}
		query += strings.Join(valueStrings, ",")
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("inserting routine parts: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// LoadRoutine reads a routine and rebuilds its part tree from the path rows.
func (db *DB) LoadRoutine(ctx context.Context, id uuid.UUID, userID int) (*routine.Routine, error) {
	r := &routine.Routine{ID: id, UserID: userID}
	err := db.Pool.QueryRow(ctx,
		`SELECT name, notes, archived FROM routines WHERE id = $1 AND user_id = $2`,
		id, userID).Scan(&r.Name, &r.Notes, &r.Archived)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("routine %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying routine: %w", err)
	}

	rows, err := db.Pool.Query(ctx,
		`SELECT path, kind, rounds, exercise_id, duration_sec, tempo_sec, automatic
		 FROM routine_parts
		 WHERE routine_id = $1
		 ORDER BY path`,
		id)
	if err != nil {
		return nil, fmt.Errorf("querying routine parts: %w", err)
	}
	defer rows.Close()

	var partRows []partRow
	for rows.Next() {
		var row partRow
		if err := rows.Scan(&row.path, &row.kind, &row.rounds, &row.exercise, &row.duration, &row.tempo, &row.automatic); err != nil {
			return nil, fmt.Errorf("scanning routine part: %w", err)
		}
		partRows = append(partRows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	r.Parts, err = buildParts(partRows)
	if err != nil {
		return nil, fmt.Errorf("routine %s: %w", id, err)
	}
	return r, nil
}

// buildParts rebuilds a part tree from its persisted rows, which must be in
// depth-first order (ORDER BY path). A row that breaks the contiguous-
// position invariant signals corruption and fails the load.
func buildParts(rows []partRow) ([]*routine.Part, error) {
	var top []*routine.Part
	sections := map[string]*routine.Part{}
	for _, row := range rows {
		var part *routine.Part
		switch routine.PartKind(row.kind) {
		case routine.KindSection:
			part = routine.NewSection(int(row.rounds))
		case routine.KindActivity:
			part = &routine.Part{Kind: routine.KindActivity, Activity: routine.Activity{
				Exercise:  row.exercise,
				Duration:  int(row.duration),
				Tempo:     int(row.tempo),
				Automatic: row.automatic,
			}}
		default:
			return nil, fmt.Errorf("unknown part kind %d at %v", row.kind, row.path)
		}

		position := int(row.path[len(row.path)-1])
		if len(row.path) == 1 {
			if position != len(top)+1 {
				return nil, fmt.Errorf("non-contiguous position at %v", row.path)
			}
			top = append(top, part)
		} else {
			parent, ok := sections[pathKey(row.path[:len(row.path)-1])]
			if !ok {
				return nil, fmt.Errorf("orphan part at %v", row.path)
			}
			if position != len(parent.Children)+1 {
				return nil, fmt.Errorf("non-contiguous position at %v", row.path)
			}
			parent.Children = append(parent.Children, part)
		}
		if part.Kind == routine.KindSection {
			sections[pathKey(row.path)] = part
		}
	}
	return top, nil
}

func pathKey(path []int32) string {
	var b strings.Builder
	for _, p := range path {
		fmt.Fprintf(&b, "%d.", p)
	}
	return b.String()
}

// ListRoutines returns listing summaries for a user's routines, most
// recently updated first.
func (db *DB) ListRoutines(ctx context.Context, userID int, includeArchived bool) ([]RoutineSummary, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT r.id, r.name, r.archived, COUNT(p.routine_id)::int
		 FROM routines r
		 LEFT JOIN routine_parts p ON p.routine_id = r.id
		 WHERE r.user_id = $1 AND (r.archived = FALSE OR $2)
		 GROUP BY r.id
		 ORDER BY r.updated_at DESC`,
		userID, includeArchived)
	if err != nil {
		return nil, fmt.Errorf("querying routines: %w", err)
	}
	defer rows.Close()

	var result []RoutineSummary
	for rows.Next() {
		var s RoutineSummary
		if err := rows.Scan(&s.ID, &s.Name, &s.Archived, &s.PartCount); err != nil {
			return nil, fmt.Errorf("scanning routine summary: %w", err)
		}
		result = append(result, s)
	}
	return result, rows.Err()
}

// DeleteRoutine removes a routine and its parts (cascade).
func (db *DB) DeleteRoutine(ctx context.Context, id uuid.UUID, userID int) error {
	tag, err := db.Pool.Exec(ctx,
		`DELETE FROM routines WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("deleting routine: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("routine %s: %w", id, ErrNotFound)
	}
	return nil
}
