package core

import (
	"fmt"
	"strings"
)

// TrustLevel classifies an agent's sanctioned autonomy.
// Ordered: UNTRUSTED < MONITORED < TRUSTED < PRIVILEGED.
type TrustLevel int

const (
	TrustUntrusted TrustLevel = iota
	TrustMonitored
	TrustTrusted
	TrustPrivileged
)

// String returns the canonical uppercase trust level name.
func (t TrustLevel) String() string {
	switch t {
	case TrustUntrusted:
		return "UNTRUSTED"
	case TrustMonitored:
		return "MONITORED"
	case TrustTrusted:
		return "TRUSTED"
	case TrustPrivileged:
		return "PRIVILEGED"
	default:
		return "UNTRUSTED"
	}
}

// ParseTrustLevel maps a stored string to a TrustLevel.
// Unknown values resolve to UNTRUSTED — never upward.
func ParseTrustLevel(s string) TrustLevel {
	switch strings.ToUpper(s) {
	case "MONITORED":
		return TrustMonitored
	case "TRUSTED":
		return TrustTrusted
	case "PRIVILEGED":
		return TrustPrivileged
	default:
		return TrustUntrusted
	}
}

// RequiresEnvelope reports whether agents at this trust level must use
// the strict envelope format for tool requests.
func (t TrustLevel) RequiresEnvelope() bool {
	return t == TrustUntrusted || t == TrustMonitored
}

// AccessMode controls whether an agent may use tools at all.
type AccessMode int

const (
	// AccessNone disables all tool use regardless of other state.
	AccessNone AccessMode = iota
	// AccessRequestFirst requires approval for every tool call.
	AccessRequestFirst
	// AccessFull allows tool calls subject to per-tool approval policy.
	AccessFull
)

func (m AccessMode) String() string {
	switch m {
	case AccessNone:
		return "NO_ACCESS"
	case AccessRequestFirst:
		return "REQUEST_FIRST"
	case AccessFull:
		return "FULL_ACCESS"
	default:
		return "NO_ACCESS"
	}
}

// ParseAccessMode maps a stored string to an AccessMode.
// Unknown values resolve to NO_ACCESS — fail closed.
func ParseAccessMode(s string) AccessMode {
	switch strings.ToUpper(s) {
	case "REQUEST_FIRST":
		return AccessRequestFirst
	case "FULL_ACCESS":
		return AccessFull
	default:
		return AccessNone
	}
}

// Decision is the router's verdict for a single tool request.
type Decision int

const (
	DecisionRejected Decision = iota
	DecisionExecute
	DecisionAwaitApproval
)

func (d Decision) String() string {
	switch d {
	case DecisionExecute:
		return "EXECUTE"
	case DecisionAwaitApproval:
		return "AWAIT_APPROVAL"
	default:
		return "REJECTED"
	}
}

// ApprovalPolicy controls the approval gate for a tool.
type ApprovalPolicy int

const (
	// ApprovalAuto proceeds to execution without a human decision.
	ApprovalAuto ApprovalPolicy = iota
	// ApprovalAlwaysAsk suspends the request until a human decides.
	ApprovalAlwaysAsk
	// ApprovalDeny rejects unconditionally.
	ApprovalDeny
)

func (p ApprovalPolicy) String() string {
	switch p {
	case ApprovalAlwaysAsk:
		return "ALWAYS_ASK"
	case ApprovalDeny:
		return "DENY"
	default:
		return "AUTO"
	}
}

// ReasonCode identifies which gate rejected a request. Every rejection
// carries exactly one code — the first failing gate in pipeline order.
type ReasonCode string

const (
	ReasonNone           ReasonCode = ""
	ReasonAccessMode     ReasonCode = "access_mode"
	ReasonNonce          ReasonCode = "nonce_replay"
	ReasonUnknownTool    ReasonCode = "unknown_tool"
	ReasonEnvelope       ReasonCode = "envelope_required"
	ReasonTrust          ReasonCode = "insufficient_trust"
	ReasonSchema         ReasonCode = "schema_violation"
	ReasonInputSize      ReasonCode = "input_size"
	ReasonPathAbsolute   ReasonCode = "path_absolute"
	ReasonPathTraversal  ReasonCode = "path_traversal"
	ReasonRunScope       ReasonCode = "run_scope"
	ReasonApprovalDenied ReasonCode = "approval_denied"
	ReasonExecution      ReasonCode = "execution_failed"
	ReasonOutputSize     ReasonCode = "output_size"
)

// ErrContract marks a programming-contract violation (e.g. mutating a
// locked registry). These indicate a bug upstream of the core and are
// surfaced loudly instead of being handled as routine rejections.
type ErrContract struct {
	Op  string
	Msg string
}

func (e *ErrContract) Error() string {
	return fmt.Sprintf("contract violation in %s: %s", e.Op, e.Msg)
}
