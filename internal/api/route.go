package api

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/deathguppie/kathoros/internal/core"
	"github.com/deathguppie/kathoros/internal/router"
)

// handleRoute implements POST /v1/kathoros/route.
// Auth middleware has already validated the bearer token and injected
// the session; agent identity on the routed request comes from that
// session, never from the request body.
func (d *Dependencies) handleRoute(w http.ResponseWriter, r *http.Request) {
	var req RouteRequest
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	if req.Output == "" && req.Tool == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "output or tool is required"})
		return
	}

	sess := sessionFromContext(r.Context())
	if sess == nil {
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "missing session context"})
		return
	}

	var toolReq core.ToolRequest
	displayText := ""
	if req.Output != "" {
		parsed := d.Parser.Parse(req.Output, *sess)
		displayText = parsed.DisplayText
		if parsed.Request == nil {
			// No tool call found — plain conversational output.
			writeJSON(w, http.StatusOK, RouteResponse{
				Decision:    "NONE",
				DetectedVia: parsed.DetectedVia,
				DisplayText: displayText,
			})
			return
		}
		toolReq = *parsed.Request
	} else {
		// Pre-extracted call supplied directly. Not enveloped: the
		// envelope gate rejects this shape for low-trust agents.
		toolReq = core.ToolRequest{
			ToolName:    req.Tool,
			Args:        req.Args,
			Nonce:       req.Nonce,
			RunID:       req.RunID,
			DetectedVia: "direct",
		}
	}
	toolReq.RequestID = uuid.New().String()

	res := d.Router.Route(r.Context(), toolReq, *sess)
	writeJSON(w, http.StatusOK, routeResultToResp(res, displayText, toolReq.DetectedVia))
}

// handleApproval implements POST /v1/kathoros/approvals/{request_id}.
// Resumes a request parked at the approval gate.
func (d *Dependencies) handleApproval(w http.ResponseWriter, r *http.Request) {
	requestID := r.PathValue("request_id")

	var req ApprovalRequest
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}

	res, found := d.Router.Resume(r.Context(), requestID, req.Approved)
	if !found {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "No pending request with this id"})
		return
	}
	writeJSON(w, http.StatusOK, routeResultToResp(res, "", ""))
}

// handleListApprovals implements GET /v1/kathoros/approvals.
func (d *Dependencies) handleListApprovals(w http.ResponseWriter, r *http.Request) {
	sess := sessionFromContext(r.Context())
	if sess == nil {
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "missing session context"})
		return
	}
	ids := d.Router.PendingApprovals(sess.SessionID)
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"pending": ids})
}

func routeResultToResp(res router.Result, displayText, detectedVia string) RouteResponse {
	resp := RouteResponse{
		RequestID:   res.RequestID,
		Decision:    res.Decision.String(),
		ReasonCode:  string(res.ReasonCode),
		Errors:      res.Errors,
		DetectedVia: detectedVia,
		DisplayText: displayText,
		Artifacts:   res.Artifacts,
	}
	if len(res.Output) > 0 {
		var out any
		if err := json.Unmarshal(res.Output, &out); err == nil {
			resp.Output = out
		} else {
			resp.Output = string(res.Output)
		}
	}
	return resp
}
