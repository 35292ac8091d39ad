package api

import (
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/deathguppie/kathoros/internal/audit"
)

// handleListEvents implements GET /api/kathoros/events.
func (d *Dependencies) handleListEvents(w http.ResponseWriter, r *http.Request) {
	if d.Reader == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "ClickHouse not configured"})
		return
	}

	q := r.URL.Query()
	sessionID := q.Get("session_id")
	if sessionID == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "session_id query parameter is required"})
		return
	}

	params := audit.ListEventsParams{
		SessionID: sessionID,
		Page:      queryInt(q.Get("page"), 1),
		PageSize:  queryInt(q.Get("page_size"), 50),
	}
	if params.PageSize > 200 {
		params.PageSize = 200
	}
	if params.Page < 1 {
		params.Page = 1
	}

	if v := q.Get("agent_id"); v != "" {
		params.AgentID = &v
	}
	if v := q.Get("decision"); v != "" {
		params.Decision = &v
	}
	if v := q.Get("reason_code"); v != "" {
		params.ReasonCode = &v
	}
	if v := q.Get("tool_name"); v != "" {
		params.ToolName = &v
	}
	if v := q.Get("start_time"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			params.StartTime = &t
		}
	}
	if v := q.Get("end_time"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			params.EndTime = &t
		}
	}

	events, total, err := d.Reader.ListEvents(r.Context(), params)
	if err != nil {
		d.Logger.Error("failed to list events", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to list events"})
		return
	}

	resp := EventListResp{
		Events:   make([]AuditEventResp, 0, len(events)),
		Total:    total,
		Page:     params.Page,
		PageSize: params.PageSize,
	}
	for _, e := range events {
		resp.Events = append(resp.Events, eventRowToResp(e))
	}

	writeJSON(w, http.StatusOK, resp)
}

func eventRowToResp(e audit.EventRow) AuditEventResp {
	return AuditEventResp{
		RequestID:   e.RequestID,
		SessionID:   e.SessionID,
		AgentID:     e.AgentID,
		AgentName:   e.AgentName,
		DecidedAt:   e.DecidedAt,
		ToolName:    e.ToolName,
		ArgsHash:    e.ArgsHash,
		TrustLevel:  e.TrustLevel,
		AccessMode:  e.AccessMode,
		Decision:    e.Decision,
		ReasonCode:  e.ReasonCode,
		Errors:      e.Errors,
		Outcome:     e.Outcome,
		Enveloped:   e.Enveloped == 1,
		NonceValid:  e.NonceValid == 1,
		DetectedVia: e.DetectedVia,
		OutputSize:  e.OutputSize,
		ExecutionMs: e.ExecutionMs,
		Artifacts:   e.Artifacts,
	}
}

func queryInt(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
