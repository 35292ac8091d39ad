// Package api exposes the mediation core over HTTP: routing and
// approvals for authenticated agent sessions, plus session, object,
// import, and audit-review management endpoints.
package api

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/deathguppie/kathoros/internal/audit"
	"github.com/deathguppie/kathoros/internal/envelope"
	"github.com/deathguppie/kathoros/internal/epistemic"
	"github.com/deathguppie/kathoros/internal/importer"
	"github.com/deathguppie/kathoros/internal/router"
	"github.com/deathguppie/kathoros/internal/store"
)

// Dependencies holds shared state injected into all HTTP handlers.
type Dependencies struct {
	Store    *store.Store
	Router   *router.Router
	Parser   *envelope.Parser
	Checker  *epistemic.Checker
	Importer *importer.Importer
	Reader   *audit.Reader // nil if ClickHouse unavailable
	Logger   *zap.Logger
	CacheTTL time.Duration
}

// NewRouter builds the HTTP mux with all routes wired up.
func NewRouter(deps *Dependencies) http.Handler {
	mux := http.NewServeMux()

	// Mediation endpoints (auth required via Bearer ksk_ token)
	mux.HandleFunc("POST /v1/kathoros/route", deps.authMiddleware(deps.handleRoute))
	mux.HandleFunc("POST /v1/kathoros/approvals/{request_id}", deps.authMiddleware(deps.handleApproval))
	mux.HandleFunc("GET /v1/kathoros/approvals", deps.authMiddleware(deps.handleListApprovals))

	// Session management (no auth — operator surface, dashboard auth added later)
	mux.HandleFunc("POST /api/kathoros/sessions", deps.handleCreateSession)
	mux.HandleFunc("GET /api/kathoros/sessions/{session_id}", deps.handleGetSession)
	mux.HandleFunc("DELETE /api/kathoros/sessions/{session_id}", deps.handleDeleteSession)
	mux.HandleFunc("POST /api/kathoros/sessions/{session_id}/rotate-token", deps.handleRotateToken)
	mux.HandleFunc("POST /api/kathoros/sessions/{session_id}/run-scope", deps.handleOpenRunScope)
	mux.HandleFunc("DELETE /api/kathoros/sessions/{session_id}/run-scope", deps.handleCloseRunScope)

	// Knowledge objects (no auth)
	mux.HandleFunc("POST /api/kathoros/objects", deps.handleCreateObject)
	mux.HandleFunc("GET /api/kathoros/objects", deps.handleListObjects)
	mux.HandleFunc("GET /api/kathoros/objects/{object_id}", deps.handleGetObject)
	mux.HandleFunc("PATCH /api/kathoros/objects/{object_id}/status", deps.handleUpdateObjectStatus)
	mux.HandleFunc("DELETE /api/kathoros/objects/{object_id}", deps.handleDeleteObject)
	mux.HandleFunc("POST /api/kathoros/import", deps.handleImport)

	// Audit review (no auth)
	mux.HandleFunc("GET /api/kathoros/events", deps.handleListEvents)

	// Health check
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return corsMiddleware(requestLogging(mux, deps.Logger))
}
