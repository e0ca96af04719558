package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/claude/repguide/internal/routine"
	"github.com/google/uuid"
)

// State-machine and live-edit errors. Callers match with errors.Is.
var (
	// ErrInvalidTransition means the call is not valid in the current phase.
	ErrInvalidTransition = errors.New("invalid session transition")

	// ErrEmptySequence means the session was started with no steps.
	ErrEmptySequence = errors.New("empty step sequence")

	// ErrNothingToDefer means only one step remains in the sequence.
	ErrNothingToDefer = errors.New("nothing to defer")

	// ErrInvalidIndex means a step index addresses a completed, in-progress
	// or nonexistent step.
	ErrInvalidIndex = errors.New("invalid step index")
)

// Phase is the lifecycle state of a guided session.
type Phase int

const (
	PhaseNotStarted Phase = iota
	PhaseRunning
	PhasePaused
	PhaseCompleted
)

func (p Phase) String() string {
	switch p {
	case PhaseNotStarted:
		return "not_started"
	case PhaseRunning:
		return "running"
	case PhasePaused:
		return "paused"
	case PhaseCompleted:
		return "completed"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// MarshalJSON renders the phase as its string name.
func (p Phase) MarshalJSON() ([]byte, error) {
	return []byte(`"` + p.String() + `"`), nil
}

// UnmarshalJSON parses a phase from its string name, the inverse of
// MarshalJSON. Unknown names are rejected.
func (p *Phase) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	switch name {
	case "not_started":
		*p = PhaseNotStarted
	case "running":
		*p = PhaseRunning
	case "paused":
		*p = PhasePaused
	case "completed":
		*p = PhaseCompleted
	default:
		return fmt.Errorf("unknown phase %q", name)
	}
	return nil
}

// Outcome records one finished step: what it was, how long was spent on it,
// and whether it was skipped. History entries are immutable once written.
type Outcome struct {
	Step     routine.Step  `json:"step"`
	Elapsed  time.Duration `json:"-"`
	Skipped  bool          `json:"skipped"`
	Finished time.Time     `json:"finished"`
}

// Runner is the guided-session state machine. It owns a by-value snapshot of
// a flattened step sequence plus a cursor, the elapsed time within the
// current step, and the append-only history of finished steps.
//
// A Runner has a single logical owner and is not safe for concurrent use;
// callers (e.g. the Manager) must serialize access. No method performs I/O.
type Runner struct {
	id        uuid.UUID
	routineID uuid.UUID
	userID    int
	steps     []routine.Step
	cursor    int
	elapsed   time.Duration
	phase     Phase
	history   []Outcome
	startedAt time.Time
}

// NewRunner creates a session over a snapshot of the given steps. The slice
// is copied so later edits to the source routine cannot corrupt the session.
func NewRunner(routineID uuid.UUID, userID int, steps []routine.Step) *Runner {
	return &Runner{
		id:        uuid.New(),
		routineID: routineID,
		userID:    userID,
		steps:     slices.Clone(steps),
	}
}

// ID returns the session's unique identifier.
func (r *Runner) ID() uuid.UUID { return r.id }

// RoutineID returns the routine this session was started from.
func (r *Runner) RoutineID() uuid.UUID { return r.routineID }

// UserID returns the owning user.
func (r *Runner) UserID() int { return r.userID }

// Phase returns the current lifecycle phase.
func (r *Runner) Phase() Phase { return r.phase }

// Cursor returns the index of the current step. Equal to StepCount once the
// session is completed.
func (r *Runner) Cursor() int { return r.cursor }

// StepCount returns the current length of the step sequence.
func (r *Runner) StepCount() int { return len(r.steps) }

// Elapsed returns the time spent within the current step.
func (r *Runner) Elapsed() time.Duration { return r.elapsed }

// StartedAt returns when Start was called.
func (r *Runner) StartedAt() time.Time { return r.startedAt }

// Current returns the step at the cursor, if the session is not completed.
func (r *Runner) Current() (routine.Step, bool) {
	if r.cursor >= len(r.steps) {
		return routine.Step{}, false
	}
	return r.steps[r.cursor], true
}

// Steps returns a copy of the session's step sequence.
func (r *Runner) Steps() []routine.Step { return slices.Clone(r.steps) }

// History returns a copy of the finished-step outcomes, in completion order.
func (r *Runner) History() []Outcome { return slices.Clone(r.history) }

// Remaining returns the time left on the current step, or zero if the step
// is untimed or the session is completed.
func (r *Runner) Remaining() time.Duration {
	step, ok := r.Current()
	if !ok {
		return 0
	}
	d := stepDuration(step)
	if r.elapsed >= d {
		return 0
	}
	return d - r.elapsed
}

func stepDuration(s routine.Step) time.Duration {
	return time.Duration(s.Duration) * time.Second
}

// Start moves the session from NotStarted to Running with the cursor on the
// first step. Starting a session with no steps fails with ErrEmptySequence
// and leaves the phase unchanged.
func (r *Runner) Start() error {
	if r.phase != PhaseNotStarted {
		return fmt.Errorf("%w: start in phase %s", ErrInvalidTransition, r.phase)
	}
	if len(r.steps) == 0 {
		return ErrEmptySequence
	}
	r.phase = PhaseRunning
	r.cursor = 0
	r.elapsed = 0
	r.startedAt = time.Now()
	return nil
}

// Tick adds delta to the elapsed time of the current step. Valid only while
// Running. When the elapsed time reaches the step's duration, an automatic
// step advances immediately and the leftover delta carries into the next
// step; this repeats across consecutive automatic steps so a single large
// delta (e.g. after a backgrounded timer) catches up in one call. A manual
// step clamps at its duration and waits for Confirm.
func (r *Runner) Tick(delta time.Duration) error {
	if r.phase != PhaseRunning {
		return fmt.Errorf("%w: tick in phase %s", ErrInvalidTransition, r.phase)
	}
	if delta <= 0 {
		return nil
	}
	r.elapsed += delta
	for r.phase == PhaseRunning {
		step := r.steps[r.cursor]
		d := stepDuration(step)
		if r.elapsed < d {
			return nil
		}
		if !step.Automatic {
			r.elapsed = d
			return nil
		}
		carry := r.elapsed - d
		r.advance(d, false)
		r.elapsed = carry
	}
	// Completed: leftover time past the final step is not observable.
	r.elapsed = 0
	return nil
}

// Confirm records the current manual step as done and advances the cursor.
// Valid only while Running and only on a non-automatic step.
func (r *Runner) Confirm() error {
	if r.phase != PhaseRunning {
		return fmt.Errorf("%w: confirm in phase %s", ErrInvalidTransition, r.phase)
	}
	if r.steps[r.cursor].Automatic {
		return fmt.Errorf("%w: current step advances automatically", ErrInvalidTransition)
	}
	r.advance(r.elapsed, false)
	return nil
}

// Skip marks the current step as skipped and advances the cursor. Valid
// while Running or Paused.
func (r *Runner) Skip() error {
	if r.phase != PhaseRunning && r.phase != PhasePaused {
		return fmt.Errorf("%w: skip in phase %s", ErrInvalidTransition, r.phase)
	}
	r.advance(r.elapsed, true)
	return nil
}

// Pause freezes the elapsed time. Pausing an already-paused session fails.
func (r *Runner) Pause() error {
	if r.phase != PhaseRunning {
		return fmt.Errorf("%w: pause in phase %s", ErrInvalidTransition, r.phase)
	}
	r.phase = PhasePaused
	return nil
}

// Resume continues a paused session with the elapsed time unchanged.
func (r *Runner) Resume() error {
	if r.phase != PhasePaused {
		return fmt.Errorf("%w: resume in phase %s", ErrInvalidTransition, r.phase)
	}
	r.phase = PhaseRunning
	return nil
}

// advance pushes the current step onto the history, moves the cursor forward
// and resets the elapsed time. Reaching the end of the sequence completes
// the session. The phase check is the callers' responsibility.
func (r *Runner) advance(spent time.Duration, skipped bool) {
	r.history = append(r.history, Outcome{
		Step:     r.steps[r.cursor],
		Elapsed:  spent,
		Skipped:  skipped,
		Finished: time.Now(),
	})
	r.cursor++
	r.elapsed = 0
	if r.cursor >= len(r.steps) {
		r.phase = PhaseCompleted
	}
}

// Snapshot is a read-only view of a session for UI, notification and
// persistence collaborators.
type Snapshot struct {
	SessionID   uuid.UUID     `json:"session_id"`
	RoutineID   uuid.UUID     `json:"routine_id"`
	Phase       Phase         `json:"phase"`
	Cursor      int           `json:"cursor"`
	StepCount   int           `json:"step_count"`
	Current     *routine.Step `json:"current,omitempty"`
	ElapsedMS   int64         `json:"elapsed_ms"`
	RemainingMS int64         `json:"remaining_ms"`
	StartedAt   time.Time     `json:"started_at"`
}

// Snapshot returns the current observable state of the session.
func (r *Runner) Snapshot() Snapshot {
	snap := Snapshot{
		SessionID:   r.id,
		RoutineID:   r.routineID,
		Phase:       r.phase,
		Cursor:      r.cursor,
		StepCount:   len(r.steps),
		ElapsedMS:   r.elapsed.Milliseconds(),
		RemainingMS: r.Remaining().Milliseconds(),
		StartedAt:   r.startedAt,
	}
	if step, ok := r.Current(); ok {
		snap.Current = &step
	}
	return snap
}
