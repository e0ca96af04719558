package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Exercise is a catalog entry users reference from routine activities.
type Exercise struct {
	ID     uuid.UUID `json:"id"`
	UserID int       `json:"-"`
	Name   string    `json:"name"`
	Notes  string    `json:"notes,omitempty"`
}

// CreateExercise inserts a new exercise for the user.
func (db *DB) CreateExercise(ctx context.Context, e Exercise) error {
	_, err := db.Pool.Exec(ctx,
		`INSERT INTO exercises (id, user_id, name, notes) VALUES ($1, $2, $3, $4)`,
		e.ID, e.UserID, e.Name, e.Notes)
	if err != nil {
		return fmt.Errorf("inserting exercise: %w", err)
	}
	return nil
}

// GetExercise returns one exercise by ID.
func (db *DB) GetExercise(ctx context.Context, id uuid.UUID, userID int) (*Exercise, error) {
	e := &Exercise{ID: id, UserID: userID}
	err := db.Pool.QueryRow(ctx,
		`SELECT name, notes FROM exercises WHERE id = $1 AND user_id = $2`,
		id, userID).Scan(&e.Name, &e.Notes)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("exercise %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying exercise: %w", err)
	}
	return e, nil
}

// ListExercises returns the user's exercise catalog, alphabetically.
func (db *DB) ListExercises(ctx context.Context, userID int) ([]Exercise, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT id, name, notes FROM exercises WHERE user_id = $1 ORDER BY name ASC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("querying exercises: %w", err)
	}
	defer rows.Close()

	var result []Exercise
	for rows.Next() {
		e := Exercise{UserID: userID}
		if err := rows.Scan(&e.ID, &e.Name, &e.Notes); err != nil {
			return nil, fmt.Errorf("scanning exercise: %w", err)
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

// DeleteExercise removes an exercise. Routine activities referencing it keep
// the ID; resolution simply fails at display time.
func (db *DB) DeleteExercise(ctx context.Context, id uuid.UUID, userID int) error {
	tag, err := db.Pool.Exec(ctx,
		`DELETE FROM exercises WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("deleting exercise: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("exercise %s: %w", id, ErrNotFound)
	}
	return nil
}
