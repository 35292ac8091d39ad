// Package audit persists one append-only record per router decision.
// Records never contain raw tool arguments — only their hash.
package audit

import "time"

// Writer is the interface for writing audit records.
// Write() must NEVER block the caller: a logging failure must not
// suppress a decision the router has already made.
type Writer interface {
	Write(record *Record)
	Close()
}

// Record is a single router decision destined for the audit log.
type Record struct {
	RequestID string
	SessionID string
	AgentID   string
	AgentName string
	DecidedAt time.Time

	ToolName string
	// ArgsHash is the SHA-256 of the canonical argument serialization.
	// The raw arguments are never persisted in any form.
	ArgsHash string

	TrustLevel string
	AccessMode string

	Decision   string // "EXECUTE", "REJECTED", "AWAIT_APPROVAL"
	ReasonCode string
	Errors     []string
	Outcome    string // "executed", "rejected", "awaiting_approval", "execution_failed"

	Enveloped   bool
	NonceValid  bool
	DetectedVia string

	OutputSize  int32
	ExecutionMs float32
	Artifacts   []string
}
