// Package router is the decision core: every tool request passes through
// an ordered, non-skippable gate pipeline, and every decision — allowed,
// rejected, or suspended — produces exactly one audit record.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/deathguppie/kathoros/internal/audit"
	"github.com/deathguppie/kathoros/internal/core"
	"github.com/deathguppie/kathoros/internal/registry"
	"github.com/deathguppie/kathoros/internal/schema"
)

// runScopePattern is the accepted shape of a run-scope token.
var runScopePattern = regexp.MustCompile(`^[a-zA-Z0-9_\-]{8,64}$`)

// ExecutorFunc performs the actual effect of an approved tool request.
// It receives the fully validated invocation; by the time an executor
// runs, every gate has already passed.
type ExecutorFunc func(ctx context.Context, inv Invocation) ([]byte, error)

// Invocation is the validated input handed to an executor.
type Invocation struct {
	Request core.ToolRequest
	Def     registry.ToolDefinition

	// Paths maps each raw path argument to its resolved absolute path
	// inside the working root. Executors must use the resolved values.
	Paths map[string]string

	WorkingRoot string
}

// Result is the outcome of routing one tool request.
type Result struct {
	RequestID  string
	Decision   core.Decision
	ReasonCode core.ReasonCode
	Errors     []string

	// Output is the executed tool's payload (nil unless Decision is
	// EXECUTE and execution succeeded).
	Output []byte

	// Artifacts lists paths (relative to the working root) written as a
	// side effect, including oversized-output spill files.
	Artifacts []string
}

// Config holds router construction parameters.
type Config struct {
	Registry    *registry.Registry
	WorkingRoot string
	Executors   map[string]ExecutorFunc
	Audit       audit.Writer
	Logger      *zap.Logger
}

// Router evaluates tool requests against the gate pipeline. Safe for
// concurrent use.
type Router struct {
	reg         *registry.Registry
	workingRoot string
	executors   map[string]ExecutorFunc
	audit       audit.Writer
	logger      *zap.Logger
	nonces      *nonceStore
	pending     *pendingStore
}

// New constructs a Router. The registry must be locked first — routing
// against a mutable registry is a contract violation.
func New(cfg Config) (*Router, error) {
	if cfg.Registry == nil || !cfg.Registry.Locked() {
		return nil, &core.ErrContract{Op: "router.New", Msg: "registry must be locked before routing"}
	}
	if cfg.WorkingRoot == "" {
		return nil, fmt.Errorf("router: working root is required")
	}
	root, err := filepath.Abs(cfg.WorkingRoot)
	if err != nil {
		return nil, fmt.Errorf("router: resolve working root: %w", err)
	}
	if cfg.Audit == nil {
		return nil, fmt.Errorf("router: audit writer is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Router{
		reg:         cfg.Registry,
		workingRoot: root,
		executors:   cfg.Executors,
		audit:       cfg.Audit,
		logger:      cfg.Logger,
		nonces:      newNonceStore(),
		pending:     newPendingStore(),
	}, nil
}

// DropSession forgets per-session router state (nonce history).
func (rt *Router) DropSession(sessionID string) {
	rt.nonces.drop(sessionID)
}

// PendingApprovals lists request IDs parked at the approval gate for a
// session.
func (rt *Router) PendingApprovals(sessionID string) []string {
	return rt.pending.pendingIDs(sessionID)
}

// Route runs the full gate pipeline for one request. The first failing
// gate decides; later gates are never consulted, so a rejection's reason
// code leaks nothing about gates the request never reached.
func (rt *Router) Route(ctx context.Context, req core.ToolRequest, sess core.SessionContext) Result {
	started := time.Now()

	// Identity always comes from the session context, never from the
	// request the parser built out of agent text.
	req.AgentID = sess.AgentID
	req.AgentName = sess.AgentName
	req.Trust = sess.Trust
	req.Access = sess.Access

	argsHash, argsSize, err := hashArgs(req.Args)
	if err != nil {
		// Unserializable args cannot be validated or audited faithfully.
		res := Result{RequestID: req.RequestID, Decision: core.DecisionRejected,
			ReasonCode: core.ReasonSchema, Errors: []string{"arguments are not serializable"}}
		rt.writeAudit(req, sess, "", res, false, 0, nil)
		return res
	}

	nonceValid := false
	reject := func(code core.ReasonCode, msgs ...string) Result {
		res := Result{RequestID: req.RequestID, Decision: core.DecisionRejected,
			ReasonCode: code, Errors: msgs}
		rt.writeAudit(req, sess, argsHash, res, nonceValid, 0, nil)
		return res
	}

	// Gate 1: access mode. NO_ACCESS wins over everything else.
	if sess.Access == core.AccessNone {
		return reject(core.ReasonAccessMode, "agent has no tool access")
	}

	// Gate 2: nonce replay. Every enveloped request must carry a nonce;
	// an empty one is indistinguishable from a replay and is rejected.
	// Only non-enveloped direct calls (trusted agents) may omit it.
	if req.Enveloped && req.Nonce == "" {
		return reject(core.ReasonNonce, "enveloped request is missing a nonce")
	}
	if req.Nonce != "" {
		if !rt.nonces.checkAndRecord(sess.SessionID, req.Nonce) {
			return reject(core.ReasonNonce, "nonce already used in this session")
		}
		nonceValid = true
	}

	// Gate 3: registry lookup. Exact match; no fuzzy recovery.
	def, ok := rt.reg.Lookup(req.ToolName)
	if !ok {
		return reject(core.ReasonUnknownTool, fmt.Sprintf("unknown tool: %q", req.ToolName))
	}

	// Gate 4: envelope requirement by trust level.
	if sess.Trust.RequiresEnvelope() && !req.Enveloped {
		return reject(core.ReasonEnvelope,
			fmt.Sprintf("trust level %s requires the envelope format", sess.Trust))
	}

	// Gate 5: minimum trust for the tool.
	if sess.Trust < def.MinTrust {
		return reject(core.ReasonTrust,
			fmt.Sprintf("tool %q requires trust %s", def.Name, def.MinTrust))
	}

	// Gate 6: argument schema.
	if violations := rt.validate(req.Args, def.ArgsSchema); len(violations) > 0 {
		return reject(core.ReasonSchema, violations...)
	}

	// Gate 7: input size, measured on the canonical serialization — the
	// same bytes the hash covers.
	if argsSize > def.MaxInputSize {
		return reject(core.ReasonInputSize,
			fmt.Sprintf("arguments are %d bytes, limit %d", argsSize, def.MaxInputSize))
	}

	// Gate 8: path enforcement for every declared path field.
	resolvedPaths := make(map[string]string)
	for _, raw := range collectPaths(req.Args, def.PathFields) {
		resolved, perr := resolveSafePath(raw, rt.workingRoot, def.AllowedPaths)
		if perr != nil {
			code := core.ReasonPathTraversal
			var pe *pathError
			if errors.As(perr, &pe) {
				code = pe.reason
			}
			return reject(code, perr.Error())
		}
		resolvedPaths[raw] = resolved
	}

	// Gate 9: run scope for write-capable tools.
	if def.WriteCapable {
		if sess.RunScope == "" {
			return reject(core.ReasonRunScope, "no active write session")
		}
		if !runScopePattern.MatchString(sess.RunScope) {
			return reject(core.ReasonRunScope, "run scope token is malformed")
		}
		if req.RunID != "" && req.RunID != sess.RunScope {
			return reject(core.ReasonRunScope, "request run_id does not match the active write session")
		}
		if def.RequiresRunScope {
			runRoot := filepath.Join(rt.workingRoot, "artifacts", sess.RunScope)
			for raw, resolved := range resolvedPaths {
				if !containsPath(runRoot, resolved) {
					return reject(core.ReasonRunScope,
						fmt.Sprintf("path %q is outside the run scope directory", raw))
				}
			}
		}
	}

	// Gate 10: approval policy.
	switch {
	case def.Approval == core.ApprovalDeny:
		return reject(core.ReasonApprovalDenied, fmt.Sprintf("tool %q is denied by policy", def.Name))
	case def.Approval == core.ApprovalAlwaysAsk || sess.Access == core.AccessRequestFirst:
		evicted, waited := rt.pending.park(req.RequestID, &pendingRequest{
			req: req, sess: sess, def: def, paths: resolvedPaths, parkedAt: time.Now(),
		})
		if evicted != "" {
			rt.logger.Warn("pending approval evicted",
				zap.String("request_id", evicted), zap.Duration("waited", waited))
		}
		res := Result{RequestID: req.RequestID, Decision: core.DecisionAwaitApproval}
		rt.writeAudit(req, sess, argsHash, res, nonceValid, 0, nil)
		return res
	}

	return rt.execute(ctx, req, sess, def, resolvedPaths, argsHash, nonceValid, started)
}

// Resume completes a request previously parked at the approval gate.
// The found flag is false when no such request is pending (unknown ID,
// already resumed, or evicted).
func (rt *Router) Resume(ctx context.Context, requestID string, approved bool) (Result, bool) {
	p, ok := rt.pending.take(requestID)
	if !ok {
		return Result{}, false
	}

	argsHash, _, err := hashArgs(p.req.Args)
	if err != nil {
		argsHash = ""
	}

	if !approved {
		res := Result{RequestID: requestID, Decision: core.DecisionRejected,
			ReasonCode: core.ReasonApprovalDenied, Errors: []string{"approval denied"}}
		rt.writeAudit(p.req, p.sess, argsHash, res, p.req.Nonce != "", 0, nil)
		return res, true
	}

	res := rt.execute(ctx, p.req, p.sess, p.def, p.paths, argsHash, p.req.Nonce != "", time.Now())
	return res, true
}

// execute runs the tool and applies the output-size gate. Reached only
// after every pre-execution gate has passed.
func (rt *Router) execute(ctx context.Context, req core.ToolRequest, sess core.SessionContext,
	def registry.ToolDefinition, paths map[string]string, argsHash string, nonceValid bool,
	started time.Time) Result {

	exec, ok := rt.executors[def.Name]
	if !ok {
		res := Result{RequestID: req.RequestID, Decision: core.DecisionRejected,
			ReasonCode: core.ReasonExecution, Errors: []string{fmt.Sprintf("no executor for tool %q", def.Name)}}
		rt.writeAudit(req, sess, argsHash, res, nonceValid, 0, nil)
		return res
	}

	output, err := exec(ctx, Invocation{
		Request: req, Def: def, Paths: paths, WorkingRoot: rt.workingRoot,
	})
	elapsed := float32(time.Since(started).Milliseconds())

	if err != nil {
		res := Result{RequestID: req.RequestID, Decision: core.DecisionRejected,
			ReasonCode: core.ReasonExecution, Errors: []string{err.Error()}}
		rt.writeAuditTimed(req, sess, argsHash, res, nonceValid, 0, nil, elapsed, "execution_failed")
		return res
	}

	// Output-size gate: oversized output is spilled to an artifact file
	// instead of being returned inline.
	var artifacts []string
	if len(output) > def.MaxOutputSize {
		rel, spillErr := rt.spillOutput(def.Name, req.RequestID, output)
		if spillErr != nil {
			res := Result{RequestID: req.RequestID, Decision: core.DecisionRejected,
				ReasonCode: core.ReasonOutputSize,
				Errors:     []string{fmt.Sprintf("output is %d bytes, limit %d; spill failed", len(output), def.MaxOutputSize)}}
			rt.writeAuditTimed(req, sess, argsHash, res, nonceValid, int32(len(output)), nil, elapsed, "execution_failed")
			return res
		}
		artifacts = append(artifacts, rel)
		note, _ := json.Marshal(map[string]any{
			"truncated":   true,
			"output_size": len(output),
			"artifact":    rel,
		})
		size := len(output)
		output = note
		res := Result{RequestID: req.RequestID, Decision: core.DecisionExecute,
			Output: output, Artifacts: artifacts}
		rt.writeAuditTimed(req, sess, argsHash, res, nonceValid, int32(size), artifacts, elapsed, "executed")
		return res
	}

	res := Result{RequestID: req.RequestID, Decision: core.DecisionExecute, Output: output}
	rt.writeAuditTimed(req, sess, argsHash, res, nonceValid, int32(len(output)), nil, elapsed, "executed")
	return res
}

// spillOutput writes oversized output under artifacts/oversized/ and
// returns the path relative to the working root.
func (rt *Router) spillOutput(tool, requestID string, output []byte) (string, error) {
	dir := filepath.Join(rt.workingRoot, "artifacts", "oversized")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	rel := filepath.Join("artifacts", "oversized", fmt.Sprintf("%s_%s.json", tool, requestID))
	if err := os.WriteFile(filepath.Join(rt.workingRoot, rel), output, 0o644); err != nil {
		return "", err
	}
	return rel, nil
}

// validate adapts schema violations to gate error strings.
func (rt *Router) validate(args map[string]any, s map[string]any) []string {
	violations := schema.Validate(args, s)
	msgs := make([]string, 0, len(violations))
	for _, v := range violations {
		msgs = append(msgs, v.String())
	}
	return msgs
}

func (rt *Router) writeAudit(req core.ToolRequest, sess core.SessionContext, argsHash string,
	res Result, nonceValid bool, outputSize int32, artifacts []string) {
	outcome := "rejected"
	switch res.Decision {
	case core.DecisionExecute:
		outcome = "executed"
	case core.DecisionAwaitApproval:
		outcome = "awaiting_approval"
	}
	rt.writeAuditTimed(req, sess, argsHash, res, nonceValid, outputSize, artifacts, 0, outcome)
}

func (rt *Router) writeAuditTimed(req core.ToolRequest, sess core.SessionContext, argsHash string,
	res Result, nonceValid bool, outputSize int32, artifacts []string, elapsedMs float32, outcome string) {
	rt.audit.Write(&audit.Record{
		RequestID:   req.RequestID,
		SessionID:   sess.SessionID,
		AgentID:     sess.AgentID,
		AgentName:   sess.AgentName,
		DecidedAt:   time.Now().UTC(),
		ToolName:    req.ToolName,
		ArgsHash:    argsHash,
		TrustLevel:  sess.Trust.String(),
		AccessMode:  sess.Access.String(),
		Decision:    res.Decision.String(),
		ReasonCode:  string(res.ReasonCode),
		Errors:      res.Errors,
		Outcome:     outcome,
		Enveloped:   req.Enveloped,
		NonceValid:  nonceValid,
		DetectedVia: req.DetectedVia,
		OutputSize:  outputSize,
		ExecutionMs: elapsedMs,
		Artifacts:   artifacts,
	})
}
