// Package sessionstate persists the ongoing guided session to a local SQLite
// database so a restarted host process can offer to resume it. Only the
// observable snapshot is stored; the full step sequence is rebuilt from the
// routine when the user resumes.
package sessionstate

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/claude/repguide/internal/session"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrNoState means no ongoing session is recorded.
var ErrNoState = errors.New("no ongoing session state")

// Saved is the persisted form of an ongoing session.
type Saved struct {
	SessionID uuid.UUID
	RoutineID uuid.UUID
	UserID    int
	Cursor    int
	ElapsedMS int64
	Phase     string
	StartedAt time.Time
	SavedAt   time.Time
}

// StateDB stores the ongoing-session record at dir/session.db.
type StateDB struct {
	db *sql.DB
}

// Open opens (or creates) the state database.
func Open(dir string) (*StateDB, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating state dir %s: %w", dir, err)
	}

	dbPath := filepath.Join(dir, "session.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening state db: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS ongoing_session (
		user_id    INTEGER PRIMARY KEY,
		session_id TEXT NOT NULL,
		routine_id TEXT NOT NULL,
		cursor     INTEGER NOT NULL,
		elapsed_ms INTEGER NOT NULL,
		phase      TEXT NOT NULL,
		started_at TIMESTAMP NOT NULL,
		saved_at   TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating state table: %w", err)
	}

	return &StateDB{db: db}, nil
}

// Save records the snapshot as the user's ongoing session, replacing any
// previous record.
func (s *StateDB) Save(userID int, snap session.Snapshot) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO ongoing_session (user_id, session_id, routine_id, cursor, elapsed_ms, phase, started_at, saved_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		userID, snap.SessionID.String(), snap.RoutineID.String(),
		snap.Cursor, snap.ElapsedMS, snap.Phase.String(), snap.StartedAt, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("saving session state: %w", err)
	}
	return nil
}

// Load returns the user's ongoing session record, or ErrNoState.
func (s *StateDB) Load(userID int) (*Saved, error) {
	var (
		saved         Saved
		sessionIDText string
		routineIDText string
	)
	err := s.db.QueryRow(
		`SELECT session_id, routine_id, cursor, elapsed_ms, phase, started_at, saved_at
		 FROM ongoing_session WHERE user_id = ?`, userID,
	).Scan(&sessionIDText, &routineIDText, &saved.Cursor, &saved.ElapsedMS,
		&saved.Phase, &saved.StartedAt, &saved.SavedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoState
	}
	if err != nil {
		return nil, fmt.Errorf("loading session state: %w", err)
	}

	saved.UserID = userID
	if saved.SessionID, err = uuid.Parse(sessionIDText); err != nil {
		return nil, fmt.Errorf("corrupt session id %q: %w", sessionIDText, err)
	}
	if saved.RoutineID, err = uuid.Parse(routineIDText); err != nil {
		return nil, fmt.Errorf("corrupt routine id %q: %w", routineIDText, err)
	}
	return &saved, nil
}

// Clear removes the user's ongoing session record, if any.
func (s *StateDB) Clear(userID int) error {
	if _, err := s.db.Exec(`DELETE FROM ongoing_session WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("clearing session state: %w", err)
	}
	return nil
}

// Close closes the state database.
func (s *StateDB) Close() error {
	return s.db.Close()
}
