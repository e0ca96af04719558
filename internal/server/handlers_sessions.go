package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/claude/repguide/internal/routine"
	"github.com/claude/repguide/internal/session"
	"github.com/claude/repguide/internal/storage"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type startSessionRequest struct {
	RoutineID string `json:"routine_id"`
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}
	var req startSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	id, err := uuid.Parse(req.RoutineID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid routine id"})
		return
	}
	rt, err := s.db.LoadRoutine(r.Context(), id, uid)
	if err != nil {
		writeError(w, err)
		return
	}

	snap, err := s.sessions.Start(uid, rt)
	if err != nil {
		writeError(w, err)
		return
	}
	s.saveState(uid, snap)
	writeJSON(w, http.StatusCreated, snap)
}

func (s *Server) handleCurrentSession(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}
	snap, err := s.sessions.Snapshot(uid)
	if err != nil {
		// After a restart the manager is empty but the state store may still
		// hold the session that was in flight.
		if errors.Is(err, session.ErrNoSession) && s.state != nil {
			if saved, serr := s.state.Load(uid); serr == nil {
				writeJSON(w, http.StatusOK, map[string]any{"active": false, "saved": saved})
				return
			}
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleFinishSession ends the user's session, whether it ran to completion
// or was abandoned midway, and persists the step history as a training log
// entry. The record is built and saved while the session is still registered;
// a failed save leaves it active so the client can retry.
func (s *Server) handleFinishSession(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}
	var rec storage.SessionRecord
	err := s.sessions.Do(uid, func(run *session.Runner) error {
		rec = storage.SessionRecord{
			ID:         run.ID(),
			UserID:     uid,
			RoutineID:  run.RoutineID(),
			StartedAt:  run.StartedAt(),
			FinishedAt: time.Now(),
			Completed:  run.Phase() == session.PhaseCompleted,
		}
		for i, out := range run.History() {
			rec.Steps = append(rec.Steps, storage.SessionStepRecord{
				Position:   i,
				ExerciseID: out.Step.Exercise,
				PlannedSec: out.Step.Duration,
				ElapsedSec: out.Elapsed.Seconds(),
				Skipped:    out.Skipped,
				Automatic:  out.Step.Automatic,
			})
		}
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.db.SaveSessionOutcome(r.Context(), rec); err != nil {
		s.log.Error("saving session outcome failed", "session_id", rec.ID, "error", err)
		writeError(w, err)
		return
	}
	if _, err := s.sessions.Release(uid); err != nil {
		writeError(w, err)
		return
	}
	s.clearState(uid)
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": rec.ID,
		"completed":  rec.Completed,
		"steps_done": len(rec.Steps),
	})
}

// sessionOp returns a handler that runs one argument-free session operation
// and responds with the updated snapshot.
func (s *Server) sessionOp(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := mustUserID(w, r)
		if !ok {
			return
		}
		var snap session.Snapshot
		err := s.sessions.Do(uid, func(run *session.Runner) error {
			var err error
			switch name {
			case "confirm":
				err = run.Confirm()
			case "pause":
				err = run.Pause()
			case "resume":
				err = run.Resume()
			case "skip":
				err = run.Skip()
			case "defer":
				err = run.DeferCurrent()
			}
			if err != nil {
				return err
			}
			snap = run.Snapshot()
			return nil
		})
		if err != nil {
			writeError(w, err)
			return
		}
		s.saveState(uid, snap)
		writeJSON(w, http.StatusOK, snap)
	}
}

// decodeActivity parses the request body as a bare activity for the live-edit
// endpoints.
func decodeActivity(w http.ResponseWriter, r *http.Request) (routine.Activity, bool) {
	var act routine.Activity
	if err := json.NewDecoder(r.Body).Decode(&act); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return routine.Activity{}, false
	}
	if act.Duration < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "duration must not be negative"})
		return routine.Activity{}, false
	}
	if act.Automatic && act.Duration == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "an automatic step needs a duration"})
		return routine.Activity{}, false
	}
	return act, true
}

func (s *Server) editStep(w http.ResponseWriter, r *http.Request, edit func(*session.Runner, routine.Activity) error) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}
	act, ok := decodeActivity(w, r)
	if !ok {
		return
	}
	var snap session.Snapshot
	err := s.sessions.Do(uid, func(run *session.Runner) error {
		if err := edit(run, act); err != nil {
			return err
		}
		snap = run.Snapshot()
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	s.saveState(uid, snap)
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleReplaceStep(w http.ResponseWriter, r *http.Request) {
	s.editStep(w, r, (*session.Runner).ReplaceCurrent)
}

func (s *Server) handleInsertStep(w http.ResponseWriter, r *http.Request) {
	s.editStep(w, r, (*session.Runner).InsertAfterCurrent)
}

func (s *Server) handleAppendStep(w http.ResponseWriter, r *http.Request) {
	s.editStep(w, r, (*session.Runner).Append)
}

func (s *Server) handleRemoveStep(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid step index"})
		return
	}
	var snap session.Snapshot
	err = s.sessions.Do(uid, func(run *session.Runner) error {
		if err := run.RemoveStep(index); err != nil {
			return err
		}
		snap = run.Snapshot()
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	s.saveState(uid, snap)
	writeJSON(w, http.StatusOK, snap)
}

// saveState persists the session snapshot to the local state store so an
// ongoing session survives a server restart. Best effort: a write failure is
// logged, never surfaced to the client.
func (s *Server) saveState(userID int, snap session.Snapshot) {
	if s.state == nil {
		return
	}
	if err := s.state.Save(userID, snap); err != nil {
		s.log.Error("saving session state failed", "user_id", userID, "error", err)
	}
}

func (s *Server) clearState(userID int) {
	if s.state == nil {
		return
	}
	if err := s.state.Clear(userID); err != nil {
		s.log.Error("clearing session state failed", "user_id", userID, "error", err)
	}
}
