package mcp

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/claude/repguide/internal/session"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

type contextKey int

const userIDKey contextKey = iota

// UserIDFromContext extracts the user ID injected by the transport layer.
func UserIDFromContext(ctx context.Context) int {
	if id, ok := ctx.Value(userIDKey).(int); ok {
		return id
	}
	return 1
}

// WithUserID returns a context with the given user ID.
func WithUserID(ctx context.Context, userID int) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// New creates an MCP server with all tools and resources registered.
func New(ds DataSource, sessions *session.Manager, version string, log *slog.Logger) *server.MCPServer {
	s := server.NewMCPServer("RepGuide", version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithInstructions("RepGuide training server. Query routines, the ongoing guided session, and the training log. All data is scoped to the authenticated user."),
	)

	h := &handlers{ds: ds, sessions: sessions, log: log}

	// Tools
	s.AddTools(
		server.ServerTool{Tool: toolListRoutines, Handler: h.listRoutines},
		server.ServerTool{Tool: toolGetRoutine, Handler: h.getRoutine},
		server.ServerTool{Tool: toolGetSessionState, Handler: h.getSessionState},
		server.ServerTool{Tool: toolGetTrainingLog, Handler: h.getTrainingLog},
		server.ServerTool{Tool: toolGetTrainingSummary, Handler: h.getTrainingSummary},
	)

	// Resources
	s.AddResources(
		server.ServerResource{Resource: resRoutineCatalog, Handler: h.routineCatalog},
		server.ServerResource{Resource: resRecentSessions, Handler: h.recentSessions},
	)

	return s
}

// handlers holds dependencies for MCP tool/resource handlers.
type handlers struct {
	ds       DataSource
	sessions *session.Manager
	log      *slog.Logger
}

// --- Resource definitions ---

var resRoutineCatalog = mcp.NewResource(
	"repguide://routines",
	"Routine Catalog",
	mcp.WithResourceDescription("All active (non-archived) routines with name and part count"),
	mcp.WithMIMEType("application/json"),
)

var resRecentSessions = mcp.NewResource(
	"repguide://recent_sessions",
	"Recent Sessions",
	mcp.WithResourceDescription("Guided sessions from the last 14 days"),
	mcp.WithMIMEType("application/json"),
)

func (h *handlers) routineCatalog(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	uid := UserIDFromContext(ctx)
	routines, err := h.ds.ListRoutines(ctx, uid, false)
	if err != nil {
		return nil, err
	}
	return jsonResource(req.Params.URI, routines)
}

func (h *handlers) recentSessions(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	uid := UserIDFromContext(ctx)
	end := time.Now()
	log, err := h.ds.QueryTrainingLog(ctx, end.AddDate(0, 0, -14), end, uid)
	if err != nil {
		return nil, err
	}
	return jsonResource(req.Params.URI, log)
}

func jsonResource(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{URI: uri, MIMEType: "application/json", Text: string(data)},
	}, nil
}
