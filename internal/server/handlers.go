package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/claude/repguide/internal/routine"
	"github.com/claude/repguide/internal/session"
	"github.com/claude/repguide/internal/storage"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, errStatus(err), map[string]string{"error": err.Error()})
}

// errStatus maps domain errors to HTTP status codes.
func errStatus(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, session.ErrNoSession):
		return http.StatusNotFound
	case errors.Is(err, session.ErrActiveSession):
		return http.StatusConflict
	case errors.Is(err, session.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, routine.ErrInvalidPath),
		errors.Is(err, routine.ErrTypeMismatch),
		errors.Is(err, session.ErrEmptySequence),
		errors.Is(err, session.ErrNothingToDefer),
		errors.Is(err, session.ErrInvalidIndex):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func parseTimeRange(r *http.Request) (time.Time, time.Time, error) {
	end := time.Now()
	start := end.AddDate(0, -1, 0)
	var err error
	if v := r.URL.Query().Get("start"); v != "" {
		if start, err = time.Parse(time.RFC3339, v); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid start: %w", err)
		}
	}
	if v := r.URL.Query().Get("end"); v != "" {
		if end, err = time.Parse(time.RFC3339, v); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid end: %w", err)
		}
	}
	return start, end, nil
}

func pathID(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, "id"))
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	info, _ := r.Context().Value(userInfoKey).(UserInfo)
	writeJSON(w, http.StatusOK, info)
}

// --- Exercises ---

func (s *Server) handleListExercises(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}
	exercises, err := s.db.ListExercises(r.Context(), uid)
	if err != nil {
		writeError(w, err)
		return
	}
	if exercises == nil {
		exercises = []storage.Exercise{}
	}
	writeJSON(w, http.StatusOK, exercises)
}

func (s *Server) handleCreateExercise(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}
	var e storage.Exercise
	if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	if e.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}
	e.UserID = uid
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if err := s.db.CreateExercise(r.Context(), e); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

func (s *Server) handleGetExercise(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid exercise id"})
		return
	}
	e, err := s.db.GetExercise(r.Context(), id, uid)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleDeleteExercise(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid exercise id"})
		return
	}
	if err := s.db.DeleteExercise(r.Context(), id, uid); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Routines ---

// routineView augments the stored routine with derived listing figures.
type routineView struct {
	*routine.Routine
	DurationSec int `json:"duration_sec"`
	Sets        int `json:"sets"`
	StepCount   int `json:"step_count"`
}

func viewOf(r *routine.Routine) routineView {
	return routineView{
		Routine:     r,
		DurationSec: r.DurationEstimate(),
		Sets:        r.NumSets(),
		StepCount:   len(routine.Flatten(r)),
	}
}

func (s *Server) handleListRoutines(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}
	includeArchived := r.URL.Query().Get("archived") == "true"
	routines, err := s.db.ListRoutines(r.Context(), uid, includeArchived)
	if err != nil {
		writeError(w, err)
		return
	}
	if routines == nil {
		routines = []storage.RoutineSummary{}
	}
	writeJSON(w, http.StatusOK, routines)
}

func (s *Server) handleCreateRoutine(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}
	var rt routine.Routine
	if err := json.NewDecoder(r.Body).Decode(&rt); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	rt.UserID = uid
	if rt.ID == uuid.Nil {
		rt.ID = uuid.New()
	}
	if err := rt.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := s.db.SaveRoutine(r.Context(), &rt); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewOf(&rt))
}

func (s *Server) handleGetRoutine(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid routine id"})
		return
	}
	rt, err := s.db.LoadRoutine(r.Context(), id, uid)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(rt))
}

func (s *Server) handleUpdateRoutine(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid routine id"})
		return
	}
	var rt routine.Routine
	if err := json.NewDecoder(r.Body).Decode(&rt); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	rt.ID = id
	rt.UserID = uid
	if err := rt.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := s.db.SaveRoutine(r.Context(), &rt); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(&rt))
}

func (s *Server) handleDeleteRoutine(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid routine id"})
		return
	}
	if err := s.db.DeleteRoutine(r.Context(), id, uid); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRoutineSteps returns the flattened step sequence a guided session
// would run, for preview.
func (s *Server) handleRoutineSteps(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid routine id"})
		return
	}
	rt, err := s.db.LoadRoutine(r.Context(), id, uid)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, routine.Flatten(rt))
}

// editRequest is one tree-edit operation applied to a stored routine.
type editRequest struct {
	Op         string        `json:"op"` // insert, remove, replace, move
	ParentPath []int         `json:"parent_path,omitempty"`
	Path       []int         `json:"path,omitempty"`
	Index      int           `json:"index,omitempty"`
	NewIndex   int           `json:"new_index,omitempty"`
	Part       *routine.Part `json:"part,omitempty"`
}

// handleEditRoutine applies a single edit operation to the tree and saves
// the result. The storage write is transactional, so a failed save leaves
// the stored routine unchanged.
func (s *Server) handleEditRoutine(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid routine id"})
		return
	}
	var req editRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}

	rt, err := s.db.LoadRoutine(r.Context(), id, uid)
	if err != nil {
		writeError(w, err)
		return
	}

	switch req.Op {
	case "insert":
		if req.Part == nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "part is required for insert"})
			return
		}
		err = rt.Insert(req.ParentPath, req.Index, req.Part)
	case "remove":
		err = rt.Remove(req.Path)
	case "replace":
		if req.Part == nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "part is required for replace"})
			return
		}
		err = rt.Replace(req.Path, req.Part)
	case "move":
		err = rt.Move(req.Path, req.NewIndex)
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("unknown op %q", req.Op)})
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}

	if err := s.db.SaveRoutine(r.Context(), rt); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(rt))
}

// --- Import / export ---

type exportPayload struct {
	Routines []*routine.Routine `json:"routines"`
}

func (s *Server) handleImportRoutines(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}
	var payload exportPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}

	imported := 0
	for _, rt := range payload.Routines {
		rt.UserID = uid
		if rt.ID == uuid.Nil {
			rt.ID = uuid.New()
		}
		if err := rt.Validate(); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("routine %q: %v", rt.Name, err)})
			return
		}
		if err := s.db.SaveRoutine(r.Context(), rt); err != nil {
			writeError(w, err)
			return
		}
		imported++
	}
	writeJSON(w, http.StatusOK, map[string]int{"imported": imported})
}

func (s *Server) handleExportRoutines(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}
	summaries, err := s.db.ListRoutines(r.Context(), uid, true)
	if err != nil {
		writeError(w, err)
		return
	}
	payload := exportPayload{Routines: []*routine.Routine{}}
	for _, sum := range summaries {
		rt, err := s.db.LoadRoutine(r.Context(), sum.ID, uid)
		if err != nil {
			writeError(w, err)
			return
		}
		payload.Routines = append(payload.Routines, rt)
	}
	writeJSON(w, http.StatusOK, payload)
}

// --- Training log ---

func (s *Server) handleTrainingLog(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}
	start, end, err := parseTimeRange(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	log, err := s.db.QueryTrainingLog(r.Context(), start, end, uid)
	if err != nil {
		writeError(w, err)
		return
	}
	if log == nil {
		log = []storage.SessionSummary{}
	}
	writeJSON(w, http.StatusOK, log)
}

func (s *Server) handleTrainingSummary(w http.ResponseWriter, r *http.Request) {
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}
	start, end, err := parseTimeRange(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	bucket := r.URL.Query().Get("bucket")
	if bucket == "" {
		bucket = "1 week"
	}
	summary, err := s.db.GetTrainingSummary(r.Context(), start, end, bucket, uid)
	if err != nil {
		writeError(w, err)
		return
	}
	if summary == nil {
		summary = []storage.TrainingSummaryPeriod{}
	}
	writeJSON(w, http.StatusOK, summary)
}
