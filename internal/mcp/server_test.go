package mcp

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/claude/repguide/internal/routine"
	"github.com/claude/repguide/internal/session"
	"github.com/claude/repguide/internal/storage"
	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
)

// TestUserIDFromContextDefault verifies the default user ID (1) when no value
// is set in the context.
func TestUserIDFromContextDefault(t *testing.T) {
	ctx := context.Background()
	if id := UserIDFromContext(ctx); id != 1 {
		t.Errorf("UserIDFromContext(empty) = %d, want 1", id)
	}
}

// TestUserIDFromContextSet verifies the user ID is extracted from context
// after being set by WithUserID.
func TestUserIDFromContextSet(t *testing.T) {
	ctx := WithUserID(context.Background(), 42)
	if id := UserIDFromContext(ctx); id != 42 {
		t.Errorf("UserIDFromContext = %d, want 42", id)
	}
}

// TestDefaultTimeRange verifies time range defaults (last 30 days) and parsing.
func TestDefaultTimeRange(t *testing.T) {
	// Both empty → defaults to last 30 days
	start, end, err := defaultTimeRange("", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	diff := end.Sub(start)
	if diff.Hours() < 27*24 || diff.Hours() > 32*24 {
		t.Errorf("default range = %.0f hours, want ~1 month", diff.Hours())
	}

	// Explicit dates
	start, end, err = defaultTimeRange("2026-01-01", "2026-01-31")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if start.Year() != 2026 || start.Month() != 1 || start.Day() != 1 {
		t.Errorf("start = %v, want 2026-01-01", start)
	}
	if end.Year() != 2026 || end.Month() != 1 || end.Day() != 31 {
		t.Errorf("end = %v, want 2026-01-31", end)
	}

	// RFC3339
	start, _, err = defaultTimeRange("2026-06-15T10:30:00Z", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if start.Hour() != 10 || start.Minute() != 30 {
		t.Errorf("start = %v, want 10:30", start)
	}

	// Invalid
	_, _, err = defaultTimeRange("not-a-date", "")
	if err == nil {
		t.Error("expected error for invalid date")
	}
}

// fakeDS is an in-memory DataSource for tool handler tests.
type fakeDS struct {
	routines map[uuid.UUID]*routine.Routine
}

func (f *fakeDS) ListRoutines(_ context.Context, userID int, includeArchived bool) ([]storage.RoutineSummary, error) {
	var out []storage.RoutineSummary
	for _, r := range f.routines {
		if r.UserID != userID || (r.Archived && !includeArchived) {
			continue
		}
		out = append(out, storage.RoutineSummary{ID: r.ID, Name: r.Name, Archived: r.Archived})
	}
	return out, nil
}

func (f *fakeDS) LoadRoutine(_ context.Context, id uuid.UUID, userID int) (*routine.Routine, error) {
	r, ok := f.routines[id]
	if !ok || r.UserID != userID {
		return nil, storage.ErrNotFound
	}
	return r.Clone(), nil
}

func (f *fakeDS) QueryTrainingLog(_ context.Context, _, _ time.Time, _ int) ([]storage.SessionSummary, error) {
	return nil, nil
}

func (f *fakeDS) GetTrainingSummary(_ context.Context, _, _ time.Time, _ string, _ int) ([]storage.TrainingSummaryPeriod, error) {
	return nil, nil
}

func testHandlers(t *testing.T) (*handlers, *fakeDS, *session.Manager) {
	t.Helper()
	ds := &fakeDS{routines: make(map[uuid.UUID]*routine.Routine)}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	mgr := session.NewManager(log)
	return &handlers{ds: ds, sessions: mgr, log: log}, ds, mgr
}

func toolText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if res.IsError {
		t.Fatalf("tool returned error result: %+v", res.Content)
	}
	if len(res.Content) == 0 {
		t.Fatal("tool returned no content")
	}
	text, ok := mcp.AsTextContent(res.Content[0])
	if !ok {
		t.Fatalf("content is %T, want text", res.Content[0])
	}
	return text.Text
}

// TestGetRoutineTool verifies the routine tool returns the tree together with
// the flattened steps and derived figures.
func TestGetRoutineTool(t *testing.T) {
	h, ds, _ := testHandlers(t)
	rt := &routine.Routine{
		ID:     uuid.New(),
		UserID: 1,
		Name:   "Intervals",
		Parts: []*routine.Part{
			routine.NewSection(4,
				routine.NewExercise(uuid.New(), 60, 0, true),
				routine.NewRest(30, true),
			),
		},
	}
	ds.routines[rt.ID] = rt

	req := mcp.CallToolRequest{}
	req.Params.Arguments = map[string]any{"id": rt.ID.String()}
	res, err := h.getRoutine(context.Background(), req)
	if err != nil {
		t.Fatalf("getRoutine: %v", err)
	}

	var out struct {
		Steps       []routine.Step `json:"steps"`
		DurationSec int            `json:"duration_sec"`
		Sets        int            `json:"sets"`
	}
	if err := json.Unmarshal([]byte(toolText(t, res)), &out); err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	if len(out.Steps) != 8 {
		t.Errorf("steps = %d, want 8", len(out.Steps))
	}
	if out.DurationSec != 360 {
		t.Errorf("duration_sec = %d, want 360", out.DurationSec)
	}
	if out.Sets != 4 {
		t.Errorf("sets = %d, want 4", out.Sets)
	}
}

// TestGetRoutineToolErrors verifies bad IDs and missing routines come back as
// tool error results, not transport errors.
func TestGetRoutineToolErrors(t *testing.T) {
	h, _, _ := testHandlers(t)

	req := mcp.CallToolRequest{}
	req.Params.Arguments = map[string]any{"id": "not-a-uuid"}
	res, err := h.getRoutine(context.Background(), req)
	if err != nil {
		t.Fatalf("getRoutine: %v", err)
	}
	if !res.IsError {
		t.Error("invalid id did not produce an error result")
	}

	req.Params.Arguments = map[string]any{"id": uuid.New().String()}
	res, err = h.getRoutine(context.Background(), req)
	if err != nil {
		t.Fatalf("getRoutine: %v", err)
	}
	if !res.IsError {
		t.Error("missing routine did not produce an error result")
	}
}

// TestGetSessionStateTool verifies the tool reports inactivity without a
// session and the snapshot once one is running.
func TestGetSessionStateTool(t *testing.T) {
	h, _, mgr := testHandlers(t)

	res, err := h.getSessionState(context.Background(), mcp.CallToolRequest{})
	if err != nil {
		t.Fatalf("getSessionState: %v", err)
	}
	var out struct {
		Active  bool              `json:"active"`
		Session *session.Snapshot `json:"session"`
	}
	if err := json.Unmarshal([]byte(toolText(t, res)), &out); err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	if out.Active {
		t.Error("active = true with no session")
	}

	rt := &routine.Routine{
		ID: uuid.New(), UserID: 1, Name: "Quick",
		Parts: []*routine.Part{routine.NewRest(60, false)},
	}
	if _, err := mgr.Start(1, rt); err != nil {
		t.Fatalf("Start: %v", err)
	}

	res, err = h.getSessionState(context.Background(), mcp.CallToolRequest{})
	if err != nil {
		t.Fatalf("getSessionState: %v", err)
	}
	if err := json.Unmarshal([]byte(toolText(t, res)), &out); err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	if !out.Active || out.Session == nil {
		t.Fatalf("result = %+v, want active with snapshot", out)
	}
	if out.Session.RoutineID != rt.ID {
		t.Errorf("routine_id = %s, want %s", out.Session.RoutineID, rt.ID)
	}
}
