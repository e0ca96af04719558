package session

import (
	"fmt"
	"slices"

	"github.com/claude/repguide/internal/routine"
)

// Live-edit operations mutate the session's own step sequence while it is
// Running or Paused. They never touch the source routine tree and never
// rewrite history entries: only the current and future part of the sequence
// changes, so every recorded outcome keeps its identity.

// editable rejects live edits outside the Running and Paused phases.
func (r *Runner) editable(op string) error {
	if r.phase != PhaseRunning && r.phase != PhasePaused {
		return fmt.Errorf("%w: %s in phase %s", ErrInvalidTransition, op, r.phase)
	}
	return nil
}

// DeferCurrent reschedules the current step to immediately after the last
// step of its current round within its innermost enclosing section. When the
// step is the last one of its round, or has no enclosing section, it moves
// to the end of the entire sequence instead. The elapsed time resets for the
// step that becomes current. Fails with ErrNothingToDefer when only one step
// remains.
func (r *Runner) DeferCurrent() error {
	if err := r.editable("defer"); err != nil {
		return err
	}
	if len(r.steps)-r.cursor <= 1 {
		return ErrNothingToDefer
	}
	cur := r.steps[r.cursor]
	target := r.cursor
	if ref, ok := cur.InnermostSection(); ok {
		depth := len(cur.Sections) - 1
		for j := r.cursor + 1; j < len(r.steps); j++ {
			s := r.steps[j]
			if len(s.Sections) > depth && s.Sections[depth].Equal(ref) {
				target = j
				continue
			}
			break
		}
	}
	if target == r.cursor {
		target = len(r.steps) - 1
	}
	copy(r.steps[r.cursor:target], r.steps[r.cursor+1:target+1])
	r.steps[target] = cur
	r.elapsed = 0
	return nil
}

// ReplaceCurrent swaps the activity of the in-progress step in place. The
// step keeps its section provenance so a later defer still knows its round;
// the elapsed time resets for the new activity.
func (r *Runner) ReplaceCurrent(act routine.Activity) error {
	if err := r.editable("replace"); err != nil {
		return err
	}
	r.steps[r.cursor].Activity = act
	r.elapsed = 0
	return nil
}

// InsertAfterCurrent adds a new step directly after the current one,
// inheriting the current step's section provenance.
func (r *Runner) InsertAfterCurrent(act routine.Activity) error {
	if err := r.editable("insert"); err != nil {
		return err
	}
	step := routine.Step{Activity: act, Sections: slices.Clone(r.steps[r.cursor].Sections)}
	r.steps = slices.Insert(r.steps, r.cursor+1, step)
	return nil
}

// Append adds a new step at the end of the sequence.
func (r *Runner) Append(act routine.Activity) error {
	if err := r.editable("append"); err != nil {
		return err
	}
	r.steps = append(r.steps, routine.Step{Activity: act})
	return nil
}

// RemoveStep deletes a not-yet-reached step. Completed and in-progress steps
// cannot be removed; addressing one fails with ErrInvalidIndex.
func (r *Runner) RemoveStep(index int) error {
	if err := r.editable("remove step"); err != nil {
		return err
	}
	if index <= r.cursor || index >= len(r.steps) {
		return fmt.Errorf("%w: %d not in (%d, %d)", ErrInvalidIndex, index, r.cursor, len(r.steps))
	}
	r.steps = slices.Delete(r.steps, index, index+1)
	return nil
}
