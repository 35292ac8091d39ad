// Package envelope extracts structured tool requests from raw agent
// output. The strict envelope is the canonical wrapper agents use to
// signal a tool call; looser detections are flagged so the router can
// enforce envelope requirements by trust level.
package envelope

import (
	"encoding/json"
	"strings"
)

// Key is the strict envelope's root key. Exact string match required.
const Key = "proxenos_tool_request"

// requiredFields must all be present inside the envelope payload.
var requiredFields = []string{"nonce", "tool", "args"}

// Payload is the decoded inner object of a strict envelope. Identity
// claims inside the wire format are deliberately absent from this type:
// the session context supplies identity, so nothing an agent writes
// into the envelope can impersonate another agent.
type Payload struct {
	Nonce string
	Tool  string
	Args  map[string]any
	RunID string
}

// Build serializes a strict envelope. Used by agent-side prompt stubs
// and by tests.
func Build(nonce, tool string, args map[string]any, runID string) (string, error) {
	inner := map[string]any{
		"nonce": nonce,
		"tool":  tool,
		"args":  args,
	}
	if runID != "" {
		inner["run_id"] = runID
	}
	raw, err := json.Marshal(map[string]any{Key: inner})
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// Decode parses raw as a strict envelope. Returns nil when raw is not a
// well-formed envelope — malformed input is not an error, it is simply
// not an envelope.
func Decode(raw string) *Payload {
	var parsed map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &parsed); err != nil {
		return nil
	}
	inner, ok := parsed[Key].(map[string]any)
	if !ok {
		return nil
	}
	for _, field := range requiredFields {
		if _, present := inner[field]; !present {
			return nil
		}
	}
	args, ok := inner["args"].(map[string]any)
	if !ok {
		return nil
	}
	tool, ok := inner["tool"].(string)
	if !ok || tool == "" {
		return nil
	}
	// The nonce must be a non-empty string. A present-but-empty (or
	// non-string) nonce would slip past replay tracking downstream.
	nonce, ok := inner["nonce"].(string)
	if !ok || nonce == "" {
		return nil
	}
	runID, _ := inner["run_id"].(string)

	return &Payload{Nonce: nonce, Tool: tool, Args: args, RunID: runID}
}
