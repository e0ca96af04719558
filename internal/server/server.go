package server

import (
	"log/slog"
	"net/http"

	"github.com/claude/repguide/internal/mcp"
	"github.com/claude/repguide/internal/session"
	"github.com/claude/repguide/internal/sessionstate"
	"github.com/go-chi/chi/v5"
	"tailscale.com/client/local"
)

// Server holds dependencies for HTTP handlers.
type Server struct {
	db       Store
	sessions *session.Manager
	state    *sessionstate.StateDB // optional, may be nil
	lc       *local.Client         // optional, set when serving over tsnet
	mcp      http.Handler          // optional, set when the MCP endpoint is enabled
	log      *slog.Logger
	apiKey   string
	router   chi.Router
}

// New creates a new Server with all routes configured. state may be nil when
// local ongoing-session persistence is disabled.
func New(db Store, sessions *session.Manager, state *sessionstate.StateDB, apiKey string, log *slog.Logger) *Server {
	s := &Server{
		db:       db,
		sessions: sessions,
		state:    state,
		log:      log,
		apiKey:   apiKey,
		router:   chi.NewRouter(),
	}
	s.routes()
	return s
}

// SetTailscale enables identity resolution through the tsnet local client.
func (s *Server) SetTailscale(lc *local.Client) {
	s.lc = lc
}

// SetMCP mounts the MCP transport handler at /mcp. Requests pass through the
// identity middleware first so tools see the resolved user.
func (s *Server) SetMCP(h http.Handler) {
	s.mcp = h
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.Use(RequestLogging(s.log))
	s.router.Use(CORS)
	s.router.Use(s.Identity)

	s.router.Get("/api/v1/me", s.handleMe)

	s.router.Route("/api/v1/exercises", func(r chi.Router) {
		r.Get("/", s.handleListExercises)
		r.Post("/", s.handleCreateExercise)
		r.Get("/{id}", s.handleGetExercise)
		r.Delete("/{id}", s.handleDeleteExercise)
	})

	s.router.Route("/api/v1/routines", func(r chi.Router) {
		r.Get("/", s.handleListRoutines)
		r.Post("/", s.handleCreateRoutine)
		r.Get("/{id}", s.handleGetRoutine)
		r.Put("/{id}", s.handleUpdateRoutine)
		r.Delete("/{id}", s.handleDeleteRoutine)
		r.Get("/{id}/steps", s.handleRoutineSteps)
		r.Post("/{id}/edits", s.handleEditRoutine)
	})

	s.router.Route("/api/v1/sessions", func(r chi.Router) {
		r.Post("/", s.handleStartSession)
		r.Get("/current", s.handleCurrentSession)
		r.Delete("/current", s.handleFinishSession)
		r.Post("/current/confirm", s.sessionOp("confirm"))
		r.Post("/current/pause", s.sessionOp("pause"))
		r.Post("/current/resume", s.sessionOp("resume"))
		r.Post("/current/skip", s.sessionOp("skip"))
		r.Post("/current/defer", s.sessionOp("defer"))
		r.Post("/current/replace", s.handleReplaceStep)
		r.Post("/current/insert", s.handleInsertStep)
		r.Post("/current/append", s.handleAppendStep)
		r.Delete("/current/steps/{index}", s.handleRemoveStep)
	})

	s.router.Get("/api/v1/log", s.handleTrainingLog)
	s.router.Get("/api/v1/summary", s.handleTrainingSummary)

	// Bulk routine import (API key required, e.g. for sync scripts)
	s.router.Route("/api/v1/import", func(r chi.Router) {
		r.Use(APIKeyAuth(s.apiKey))
		r.Post("/", s.handleImportRoutines)
	})
	s.router.Get("/api/v1/export", s.handleExportRoutines)

	s.router.Handle("/mcp", http.HandlerFunc(s.handleMCP))
}

func (s *Server) handleMCP(w http.ResponseWriter, r *http.Request) {
	if s.mcp == nil {
		http.NotFound(w, r)
		return
	}
	uid, ok := mustUserID(w, r)
	if !ok {
		return
	}
	s.mcp.ServeHTTP(w, r.WithContext(mcp.WithUserID(r.Context(), uid)))
}
