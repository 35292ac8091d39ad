package core

// SessionContext is the trusted per-agent context supplied by the
// calling application. Identity and trust here come from the session
// store, never from agent output.
type SessionContext struct {
	SessionID string
	AgentID   string
	AgentName string
	Trust     TrustLevel
	Access    AccessMode

	// RunScope is the token of the active sanctioned write window, or
	// empty when no write session is open.
	RunScope string
}

// ToolRequest is one agent-proposed tool invocation, produced by the
// envelope parser and consumed by the router. Identity fields are
// always copied from the SessionContext in scope — there is no
// constructor path that reads them from parsed text.
type ToolRequest struct {
	RequestID string
	AgentID   string
	AgentName string
	Trust     TrustLevel
	Access    AccessMode

	ToolName string
	Args     map[string]any
	Nonce    string

	// Enveloped records whether the request arrived via the strict
	// envelope format; DetectedVia names the extraction strategy.
	Enveloped   bool
	DetectedVia string

	RunID string
}
