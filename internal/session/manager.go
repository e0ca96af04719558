package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/claude/repguide/internal/routine"
)

// ErrActiveSession means the user already has a session in progress.
var ErrActiveSession = errors.New("a session is already active")

// ErrNoSession means the user has no session in progress.
var ErrNoSession = errors.New("no active session")

// DefaultTickInterval is the resolution of the background ticker.
const DefaultTickInterval = 250 * time.Millisecond

// Manager hosts at most one Runner per user and serializes all access to it.
// Runners themselves are single-owner; the Manager's mutex is the required
// serialization point for concurrent HTTP handlers and the ticker goroutine.
type Manager struct {
	log *slog.Logger

	mu      sync.Mutex
	runners map[int]*Runner
}

// NewManager creates an empty session manager.
func NewManager(log *slog.Logger) *Manager {
	return &Manager{
		log:     log,
		runners: make(map[int]*Runner),
	}
}

// Start flattens the routine, snapshots the sequence and starts a new
// session for the user. Fails with ErrActiveSession if one is in progress
// and with ErrEmptySequence if the routine flattens to no steps.
func (m *Manager) Start(userID int, r *routine.Routine) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runners[userID]; ok {
		return Snapshot{}, ErrActiveSession
	}
	runner := NewRunner(r.ID, userID, routine.Flatten(r))
	if err := runner.Start(); err != nil {
		return Snapshot{}, err
	}
	m.runners[userID] = runner
	m.log.Info("session started",
		"session_id", runner.ID(),
		"routine_id", r.ID,
		"user_id", userID,
		"steps", runner.StepCount(),
	)
	return runner.Snapshot(), nil
}

// Do runs fn on the user's active session under the manager lock. Returns
// ErrNoSession if none is active.
func (m *Manager) Do(userID int, fn func(*Runner) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	runner, ok := m.runners[userID]
	if !ok {
		return ErrNoSession
	}
	return fn(runner)
}

// Snapshot returns the observable state of the user's active session.
func (m *Manager) Snapshot(userID int) (Snapshot, error) {
	var snap Snapshot
	err := m.Do(userID, func(r *Runner) error {
		snap = r.Snapshot()
		return nil
	})
	return snap, err
}

// Release detaches and returns the user's session so the caller can persist
// its history. The session stops receiving ticks once released.
func (m *Manager) Release(userID int) (*Runner, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	runner, ok := m.runners[userID]
	if !ok {
		return nil, ErrNoSession
	}
	delete(m.runners, userID)
	m.log.Info("session released",
		"session_id", runner.ID(),
		"user_id", userID,
		"phase", runner.Phase().String(),
		"completed_steps", len(runner.History()),
	)
	return runner, nil
}

// Run drives all running sessions with measured tick deltas until ctx is
// cancelled. The Runner has no opinion on tick resolution; wall-clock deltas
// keep cumulative timing accurate even when the host stalls.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			delta := now.Sub(last)
			last = now
			m.tickAll(delta)
		}
	}
}

func (m *Manager) tickAll(delta time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, runner := range m.runners {
		if runner.Phase() != PhaseRunning {
			continue
		}
		if err := runner.Tick(delta); err != nil {
			m.log.Error("tick failed", "session_id", runner.ID(), "error", err)
		}
	}
}
