package api

import "time"

// ErrorResp is the uniform error body.
type ErrorResp struct {
	Detail string `json:"detail"`
}

// RouteRequest is the body of POST /v1/kathoros/route. Either Output
// (raw agent text, run through the envelope parser) or Tool+Args (a
// pre-extracted call, treated as non-enveloped) must be set.
type RouteRequest struct {
	Output string         `json:"output,omitempty"`
	Tool   string         `json:"tool,omitempty"`
	Args   map[string]any `json:"args,omitempty"`
	Nonce  string         `json:"nonce,omitempty"`
	RunID  string         `json:"run_id,omitempty"`
}

// RouteResponse reports the router's decision. Output carries the
// executed tool's payload as raw JSON; raw arguments are never echoed.
type RouteResponse struct {
	RequestID   string   `json:"request_id"`
	Decision    string   `json:"decision"`
	ReasonCode  string   `json:"reason_code,omitempty"`
	Errors      []string `json:"errors,omitempty"`
	DetectedVia string   `json:"detected_via,omitempty"`
	DisplayText string   `json:"display_text,omitempty"`
	Output      any      `json:"output,omitempty"`
	Artifacts   []string `json:"artifacts,omitempty"`
}

// ApprovalRequest is the body of POST /v1/kathoros/approvals/{request_id}.
type ApprovalRequest struct {
	Approved bool `json:"approved"`
}

// CreateSessionRequest is the body of POST /api/kathoros/sessions.
type CreateSessionRequest struct {
	AgentID    string `json:"agent_id"`
	AgentName  string `json:"agent_name"`
	TrustLevel string `json:"trust_level"`
	AccessMode string `json:"access_mode"`
}

// SessionResp is the public view of a session. Token is present only on
// create/rotate responses and shown once.
type SessionResp struct {
	ID         string    `json:"id"`
	AgentID    string    `json:"agent_id"`
	AgentName  string    `json:"agent_name"`
	TrustLevel string    `json:"trust_level"`
	AccessMode string    `json:"access_mode"`
	RunScope   string    `json:"run_scope,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	Token      string    `json:"token,omitempty"`
}

// RunScopeResp returns the run-scope token for an opened write window.
type RunScopeResp struct {
	SessionID string `json:"session_id"`
	RunScope  string `json:"run_scope"`
}

// CreateObjectRequest is the body of POST /api/kathoros/objects.
type CreateObjectRequest struct {
	Name           string   `json:"name"`
	Type           string   `json:"type"`
	ClaimLevel     string   `json:"claim_level"`
	NarrativeLabel string   `json:"narrative_label"`
	Falsifiable    string   `json:"falsifiable"`

	FalsificationCriteria string `json:"falsification_criteria,omitempty"`
	ValidationScope       string `json:"validation_scope,omitempty"`
	ArtifactHash          string `json:"artifact_hash,omitempty"`

	Description    string   `json:"description,omitempty"`
	Tags           []string `json:"tags,omitempty"`
	MathExpression string   `json:"math_expression,omitempty"`
	Latex          string   `json:"latex,omitempty"`
	Notes          string   `json:"researcher_notes,omitempty"`
	SourceFile     string   `json:"source_file,omitempty"`
	Provenance     string   `json:"provenance,omitempty"`

	DependsOn []string `json:"depends_on,omitempty"`
}

// UpdateStatusRequest is the body of PATCH /api/kathoros/objects/{id}/status.
type UpdateStatusRequest struct {
	Status string `json:"status"`
}

// ObjectResp is the public view of a knowledge object.
type ObjectResp struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Type           string   `json:"type"`
	Status         string   `json:"status"`
	ClaimLevel     string   `json:"claim_level"`
	NarrativeLabel string   `json:"narrative_label"`
	Falsifiable    string   `json:"falsifiable"`

	FalsificationCriteria string `json:"falsification_criteria,omitempty"`
	ValidationScope       string `json:"validation_scope,omitempty"`
	ArtifactHash          string `json:"artifact_hash,omitempty"`

	Description    string   `json:"description,omitempty"`
	Tags           []string `json:"tags,omitempty"`
	MathExpression string   `json:"math_expression,omitempty"`
	Latex          string   `json:"latex,omitempty"`
	Notes          string   `json:"researcher_notes,omitempty"`
	SourceFile     string   `json:"source_file,omitempty"`
	Provenance     string   `json:"provenance,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Edges is populated on the single-object endpoint only.
	Edges []EdgeResp `json:"edges,omitempty"`
}

// EdgeResp is one directed reference between objects.
type EdgeResp struct {
	SourceID string `json:"source_id"`
	TargetID string `json:"target_id"`
	RefType  string `json:"reference_type"`
}

// FindingResp mirrors one epistemic finding.
type FindingResp struct {
	Code     string   `json:"code"`
	Severity string   `json:"severity"`
	Message  string   `json:"message"`
	Nodes    []string `json:"nodes,omitempty"`
}

// CheckFailureResp is returned with 409 when a BLOCK finding prevents a
// save or promotion.
type CheckFailureResp struct {
	Detail   string        `json:"detail"`
	Findings []FindingResp `json:"findings"`
}

// ImportRequest is the body of POST /api/kathoros/import.
type ImportRequest struct {
	Text string `json:"text"`
}

// ImportResponse summarizes an import batch.
type ImportResponse struct {
	Parsed   int           `json:"parsed"`
	Created  []ObjectResp  `json:"created"`
	Skipped  []string      `json:"skipped,omitempty"`
	Findings []FindingResp `json:"findings,omitempty"`
}

// AuditEventResp is one row of GET /api/kathoros/events.
type AuditEventResp struct {
	RequestID   string    `json:"request_id"`
	SessionID   string    `json:"session_id"`
	AgentID     string    `json:"agent_id"`
	AgentName   string    `json:"agent_name"`
	DecidedAt   time.Time `json:"decided_at"`
	ToolName    string    `json:"tool_name"`
	ArgsHash    string    `json:"args_hash"`
	TrustLevel  string    `json:"trust_level"`
	AccessMode  string    `json:"access_mode"`
	Decision    string    `json:"decision"`
	ReasonCode  string    `json:"reason_code,omitempty"`
	Errors      []string  `json:"errors,omitempty"`
	Outcome     string    `json:"outcome"`
	Enveloped   bool      `json:"enveloped"`
	NonceValid  bool      `json:"nonce_valid"`
	DetectedVia string    `json:"detected_via,omitempty"`
	OutputSize  int32     `json:"output_size"`
	ExecutionMs float32   `json:"execution_ms"`
	Artifacts   []string  `json:"artifacts,omitempty"`
}

// EventListResp is the paginated events response.
type EventListResp struct {
	Events   []AuditEventResp `json:"events"`
	Total    int              `json:"total"`
	Page     int              `json:"page"`
	PageSize int              `json:"page_size"`
}
