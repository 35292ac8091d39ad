package api

import (
	"database/sql"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/deathguppie/kathoros/internal/core"
	"github.com/deathguppie/kathoros/internal/store"
)

// handleCreateSession implements POST /api/kathoros/sessions.
// The bearer token in the response is shown once and never retrievable.
func (d *Dependencies) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	if req.AgentID == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "agent_id is required"})
		return
	}

	// Normalize through the parsers so only canonical values are stored;
	// unknown inputs land on UNTRUSTED / NO_ACCESS.
	trust := core.ParseTrustLevel(req.TrustLevel).String()
	access := core.ParseAccessMode(req.AccessMode).String()

	sess, token, err := d.Store.CreateSession(r.Context(), req.AgentID, req.AgentName, trust, access)
	if err != nil {
		d.Logger.Error("failed to create session", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to create session"})
		return
	}

	resp := sessionToResp(sess)
	resp.Token = token
	writeJSON(w, http.StatusCreated, resp)
}

// handleGetSession implements GET /api/kathoros/sessions/{session_id}.
func (d *Dependencies) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := d.Store.GetSession(r.Context(), r.PathValue("session_id"))
	if err != nil {
		d.Logger.Error("failed to get session", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to get session"})
		return
	}
	if sess == nil {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Session not found."})
		return
	}
	writeJSON(w, http.StatusOK, sessionToResp(sess))
}

// handleDeleteSession implements DELETE /api/kathoros/sessions/{session_id}.
// Router-side per-session state (nonce history) is dropped with the row.
func (d *Dependencies) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")
	if err := d.Store.DeleteSession(r.Context(), sessionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Session not found."})
			return
		}
		d.Logger.Error("failed to delete session", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to delete session"})
		return
	}
	d.Router.DropSession(sessionID)
	w.WriteHeader(http.StatusNoContent)
}

// handleRotateToken implements POST /api/kathoros/sessions/{session_id}/rotate-token.
func (d *Dependencies) handleRotateToken(w http.ResponseWriter, r *http.Request) {
	sess, token, err := d.Store.RotateToken(r.Context(), r.PathValue("session_id"))
	if err != nil {
		d.Logger.Error("failed to rotate token", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to rotate token"})
		return
	}

	resp := sessionToResp(sess)
	resp.Token = token
	writeJSON(w, http.StatusOK, resp)
}

// handleOpenRunScope implements POST /api/kathoros/sessions/{session_id}/run-scope.
// Opens a sanctioned write window; write-capable tools require it.
func (d *Dependencies) handleOpenRunScope(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")
	token, err := d.Store.OpenRunScope(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Session not found."})
			return
		}
		d.Logger.Error("failed to open run scope", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to open run scope"})
		return
	}
	writeJSON(w, http.StatusCreated, RunScopeResp{SessionID: sessionID, RunScope: token})
}

// handleCloseRunScope implements DELETE /api/kathoros/sessions/{session_id}/run-scope.
func (d *Dependencies) handleCloseRunScope(w http.ResponseWriter, r *http.Request) {
	if err := d.Store.CloseRunScope(r.Context(), r.PathValue("session_id")); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Session not found."})
			return
		}
		d.Logger.Error("failed to close run scope", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to close run scope"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func sessionToResp(sess *store.Session) SessionResp {
	resp := SessionResp{
		ID:         sess.ID,
		AgentID:    sess.AgentID,
		AgentName:  sess.AgentName,
		TrustLevel: sess.TrustLevel,
		AccessMode: sess.AccessMode,
		CreatedAt:  sess.CreatedAt,
	}
	if sess.RunScope.Valid {
		resp.RunScope = sess.RunScope.String
	}
	return resp
}
