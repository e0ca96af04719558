package session

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/claude/repguide/internal/routine"
)

func testManager() *Manager {
	return NewManager(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// TestManagerSingleSessionPerUser verifies that a user can have at most one
// active session and that independent users do not interfere.
func TestManagerSingleSessionPerUser(t *testing.T) {
	m := testManager()

	snap, err := m.Start(1, scenarioRoutine())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if snap.Phase != PhaseRunning || snap.StepCount != 4 {
		t.Errorf("snapshot = %+v, want running with 4 steps", snap)
	}

	if _, err := m.Start(1, scenarioRoutine()); !errors.Is(err, ErrActiveSession) {
		t.Errorf("second Start = %v, want ErrActiveSession", err)
	}
	if _, err := m.Start(2, scenarioRoutine()); err != nil {
		t.Errorf("Start for other user = %v, want nil", err)
	}
}

// TestManagerStartEmptyRoutine verifies that the flattened-empty failure
// surfaces as ErrEmptySequence and leaves no session behind.
func TestManagerStartEmptyRoutine(t *testing.T) {
	m := testManager()
	empty := &routine.Routine{ID: routineID, Name: "empty"}

	if _, err := m.Start(1, empty); !errors.Is(err, ErrEmptySequence) {
		t.Fatalf("Start = %v, want ErrEmptySequence", err)
	}
	if _, err := m.Snapshot(1); !errors.Is(err, ErrNoSession) {
		t.Errorf("Snapshot = %v, want ErrNoSession", err)
	}
}

// TestManagerDoAndRelease verifies serialized access to the runner and that
// a released session stops being reachable.
func TestManagerDoAndRelease(t *testing.T) {
	m := testManager()
	if _, err := m.Start(1, scenarioRoutine()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := m.Do(1, func(r *Runner) error { return r.Confirm() }); err != nil {
		t.Fatalf("Do(confirm): %v", err)
	}
	snap, err := m.Snapshot(1)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.Cursor != 1 {
		t.Errorf("cursor = %d, want 1", snap.Cursor)
	}

	runner, err := m.Release(1)
	if err != nil {
		t.Fatalf("Release: %v", err)
	}
	if got := len(runner.History()); got != 1 {
		t.Errorf("released history length = %d, want 1", got)
	}
	if err := m.Do(1, func(r *Runner) error { return nil }); !errors.Is(err, ErrNoSession) {
		t.Errorf("Do after release = %v, want ErrNoSession", err)
	}
	if _, err := m.Release(1); !errors.Is(err, ErrNoSession) {
		t.Errorf("second Release = %v, want ErrNoSession", err)
	}
}

// TestManagerTickSkipsPausedSessions verifies the tick loop only advances
// running sessions.
func TestManagerTickSkipsPausedSessions(t *testing.T) {
	m := testManager()
	if _, err := m.Start(1, scenarioRoutine()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := m.Start(2, scenarioRoutine()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := m.Do(2, func(r *Runner) error { return r.Pause() }); err != nil {
		t.Fatalf("Pause: %v", err)
	}

	m.tickAll(5 * time.Second)

	snap1, _ := m.Snapshot(1)
	if snap1.ElapsedMS != 5000 {
		t.Errorf("running session elapsed = %d ms, want 5000", snap1.ElapsedMS)
	}
	snap2, _ := m.Snapshot(2)
	if snap2.ElapsedMS != 0 {
		t.Errorf("paused session elapsed = %d ms, want 0", snap2.ElapsedMS)
	}
}
