package session

import (
	"errors"
	"testing"
	"time"

	"github.com/claude/repguide/internal/routine"
	"github.com/google/uuid"
)

var (
	exA       = uuid.MustParse("11111111-1111-1111-1111-111111111111")
	exB       = uuid.MustParse("22222222-2222-2222-2222-222222222222")
	routineID = uuid.MustParse("33333333-3333-3333-3333-333333333333")
)

// scenarioRoutine is Section(rounds=2, [E1 30s manual, rest 10s automatic]),
// which flattens to [E1/30, rest/10, E1/30, rest/10].
func scenarioRoutine() *routine.Routine {
	return &routine.Routine{
		ID:   routineID,
		Name: "intervals",
		Parts: []*routine.Part{
			routine.NewSection(2,
				routine.NewExercise(exA, 30, 0, false),
				routine.NewRest(10, true),
			),
		},
	}
}

func startedRunner(t *testing.T, r *routine.Routine) *Runner {
	t.Helper()
	runner := NewRunner(r.ID, 1, routine.Flatten(r))
	if err := runner.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return runner
}

// TestGuidedSessionScenario walks the canonical guided session: ticking
// within a manual step, clamping at its duration, confirming into an
// automatic rest and auto-advancing out of it.
func TestGuidedSessionScenario(t *testing.T) {
	runner := startedRunner(t, scenarioRoutine())
	if runner.StepCount() != 4 {
		t.Fatalf("StepCount = %d, want 4", runner.StepCount())
	}

	if err := runner.Tick(10 * time.Second); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if runner.Elapsed() != 10*time.Second {
		t.Errorf("elapsed = %v, want 10s", runner.Elapsed())
	}

	// Overshooting a manual step clamps at its duration and waits.
	if err := runner.Tick(25 * time.Second); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if runner.Elapsed() != 30*time.Second {
		t.Errorf("elapsed = %v, want clamp at 30s", runner.Elapsed())
	}
	if runner.Cursor() != 0 {
		t.Errorf("cursor = %d, want 0 (awaiting confirm)", runner.Cursor())
	}

	if err := runner.Confirm(); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if runner.Cursor() != 1 {
		t.Errorf("cursor = %d, want 1", runner.Cursor())
	}

	// The 10s automatic rest advances exactly at its duration with no
	// leftover carried into the next step.
	if err := runner.Tick(10 * time.Second); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if runner.Cursor() != 2 {
		t.Errorf("cursor = %d, want 2", runner.Cursor())
	}
	if runner.Elapsed() != 0 {
		t.Errorf("elapsed = %v, want 0 carried over", runner.Elapsed())
	}
}

// TestTickCatchUp verifies that one large delta advances through multiple
// consecutive automatic steps, carrying leftover time, and stops at the next
// manual step. Models a backgrounded timer catching up.
func TestTickCatchUp(t *testing.T) {
	r := &routine.Routine{ID: routineID, Name: "autos", Parts: []*routine.Part{
		routine.NewRest(10, true),
		routine.NewRest(10, true),
		routine.NewRest(10, true),
		routine.NewExercise(exA, 30, 0, false),
	}}
	runner := startedRunner(t, r)

	if err := runner.Tick(35 * time.Second); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if runner.Cursor() != 3 {
		t.Errorf("cursor = %d, want 3", runner.Cursor())
	}
	if runner.Elapsed() != 5*time.Second {
		t.Errorf("elapsed = %v, want 5s leftover on manual step", runner.Elapsed())
	}
	if got := len(runner.History()); got != 3 {
		t.Errorf("history length = %d, want 3", got)
	}
}

// TestTickCatchUpToCompletion verifies that a large delta across trailing
// automatic steps completes the session and discards the excess.
func TestTickCatchUpToCompletion(t *testing.T) {
	r := &routine.Routine{ID: routineID, Name: "autos", Parts: []*routine.Part{
		routine.NewRest(10, true),
		routine.NewRest(10, true),
	}}
	runner := startedRunner(t, r)

	if err := runner.Tick(time.Minute); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if runner.Phase() != PhaseCompleted {
		t.Errorf("phase = %s, want completed", runner.Phase())
	}
	if runner.Cursor() != 2 {
		t.Errorf("cursor = %d, want 2", runner.Cursor())
	}
	if runner.Elapsed() != 0 {
		t.Errorf("elapsed = %v, want 0", runner.Elapsed())
	}
}

// TestStartEmptySequence verifies Scenario D: starting on an empty sequence
// fails with ErrEmptySequence and the phase stays NotStarted.
func TestStartEmptySequence(t *testing.T) {
	runner := NewRunner(routineID, 1, nil)
	if err := runner.Start(); !errors.Is(err, ErrEmptySequence) {
		t.Fatalf("Start = %v, want ErrEmptySequence", err)
	}
	if runner.Phase() != PhaseNotStarted {
		t.Errorf("phase = %s, want not_started", runner.Phase())
	}

	// An all-empty-sections routine flattens to nothing as well.
	r := &routine.Routine{ID: routineID, Name: "empty", Parts: []*routine.Part{
		routine.NewSection(3, routine.NewSection(2)),
	}}
	runner = NewRunner(r.ID, 1, routine.Flatten(r))
	if err := runner.Start(); !errors.Is(err, ErrEmptySequence) {
		t.Errorf("Start = %v, want ErrEmptySequence", err)
	}
}

// TestPauseResume verifies the strict pause/resume toggle: double pause is
// rejected and resume restores the elapsed time unchanged.
func TestPauseResume(t *testing.T) {
	runner := startedRunner(t, scenarioRoutine())
	if err := runner.Tick(7 * time.Second); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	if err := runner.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if err := runner.Pause(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("second Pause = %v, want ErrInvalidTransition", err)
	}
	if err := runner.Tick(time.Second); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Tick while paused = %v, want ErrInvalidTransition", err)
	}
	if err := runner.Confirm(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Confirm while paused = %v, want ErrInvalidTransition", err)
	}

	if err := runner.Resume(); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if runner.Elapsed() != 7*time.Second {
		t.Errorf("elapsed after resume = %v, want 7s", runner.Elapsed())
	}
	if err := runner.Resume(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Resume while running = %v, want ErrInvalidTransition", err)
	}
}

// TestConfirmOnAutomaticStep verifies that automatic steps cannot be
// confirmed manually.
func TestConfirmOnAutomaticStep(t *testing.T) {
	runner := startedRunner(t, scenarioRoutine())
	if err := runner.Confirm(); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	// cursor now on the automatic rest
	if err := runner.Confirm(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Confirm on automatic step = %v, want ErrInvalidTransition", err)
	}
}

// TestSkip verifies skipping in both Running and Paused, and that skipped
// steps are recorded as such.
func TestSkip(t *testing.T) {
	runner := startedRunner(t, scenarioRoutine())

	if err := runner.Skip(); err != nil {
		t.Fatalf("Skip: %v", err)
	}
	if err := runner.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if err := runner.Skip(); err != nil {
		t.Fatalf("Skip while paused: %v", err)
	}

	hist := runner.History()
	if len(hist) != 2 {
		t.Fatalf("history length = %d, want 2", len(hist))
	}
	for i, h := range hist {
		if !h.Skipped {
			t.Errorf("history[%d].Skipped = false, want true", i)
		}
	}
}

// TestCursorMonotonicAndHistoryLength verifies the core bookkeeping
// invariant: the cursor never decreases and history length always equals the
// cursor after any sequence of valid transitions.
func TestCursorMonotonicAndHistoryLength(t *testing.T) {
	runner := startedRunner(t, scenarioRoutine())

	check := func(stage string) {
		t.Helper()
		if got := len(runner.History()); got != runner.Cursor() {
			t.Errorf("%s: history length = %d, cursor = %d", stage, got, runner.Cursor())
		}
	}

	prev := runner.Cursor()
	ops := []struct {
		name string
		fn   func() error
	}{
		{"confirm", runner.Confirm},
		{"tick", func() error { return runner.Tick(10 * time.Second) }},
		{"skip", runner.Skip},
		{"tick2", func() error { return runner.Tick(15 * time.Second) }},
	}
	for _, op := range ops {
		if err := op.fn(); err != nil {
			t.Fatalf("%s: %v", op.name, err)
		}
		if runner.Cursor() < prev {
			t.Errorf("%s: cursor decreased from %d to %d", op.name, prev, runner.Cursor())
		}
		prev = runner.Cursor()
		check(op.name)
	}

	if runner.Phase() != PhaseCompleted {
		t.Errorf("phase = %s, want completed", runner.Phase())
	}
	if err := runner.Skip(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Skip after completion = %v, want ErrInvalidTransition", err)
	}
}

// TestUntimedManualStep verifies that a duration-0 manual step clamps its
// elapsed time at zero and waits indefinitely for confirmation.
func TestUntimedManualStep(t *testing.T) {
	r := &routine.Routine{ID: routineID, Name: "reps", Parts: []*routine.Part{
		routine.NewExercise(exA, 0, 3, false),
		routine.NewRest(10, true),
	}}
	runner := startedRunner(t, r)

	if err := runner.Tick(time.Hour); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if runner.Cursor() != 0 {
		t.Errorf("cursor = %d, want 0", runner.Cursor())
	}
	if runner.Elapsed() != 0 {
		t.Errorf("elapsed = %v, want 0 clamp on untimed step", runner.Elapsed())
	}
	if err := runner.Confirm(); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
}

// TestStartTwice verifies that Start is only valid in NotStarted.
func TestStartTwice(t *testing.T) {
	runner := startedRunner(t, scenarioRoutine())
	if err := runner.Start(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("second Start = %v, want ErrInvalidTransition", err)
	}
}

// TestSnapshot verifies the read-only view exposed to UI and notification
// collaborators.
func TestSnapshot(t *testing.T) {
	runner := startedRunner(t, scenarioRoutine())
	if err := runner.Tick(12 * time.Second); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	snap := runner.Snapshot()
	if snap.Phase != PhaseRunning {
		t.Errorf("phase = %s, want running", snap.Phase)
	}
	if snap.Cursor != 0 || snap.StepCount != 4 {
		t.Errorf("cursor/steps = %d/%d, want 0/4", snap.Cursor, snap.StepCount)
	}
	if snap.ElapsedMS != 12000 || snap.RemainingMS != 18000 {
		t.Errorf("elapsed/remaining = %d/%d ms, want 12000/18000", snap.ElapsedMS, snap.RemainingMS)
	}
	if snap.Current == nil || snap.Current.Exercise == nil || *snap.Current.Exercise != exA {
		t.Errorf("current = %+v, want exercise %s", snap.Current, exA)
	}
}
