package router

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/deathguppie/kathoros/internal/audit"
	"github.com/deathguppie/kathoros/internal/core"
	"github.com/deathguppie/kathoros/internal/registry"
)

// mockAuditWriter captures records synchronously for assertions.
type mockAuditWriter struct {
	mu      sync.Mutex
	records []*audit.Record
}

func (m *mockAuditWriter) Write(r *audit.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, r)
}

func (m *mockAuditWriter) Close() {}

func (m *mockAuditWriter) last(t *testing.T) *audit.Record {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.records) == 0 {
		t.Fatal("expected at least one audit record")
	}
	return m.records[len(m.records)-1]
}

func (m *mockAuditWriter) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

func stringSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"path": map[string]any{"type": "string"},
		},
		"required": []any{"path"},
	}
}

func testRouter(t *testing.T, executors map[string]ExecutorFunc) (*Router, *mockAuditWriter, string) {
	t.Helper()
	root := t.TempDir()

	reg := registry.New()
	tools := []registry.ToolDefinition{
		{
			Name:       "file_read",
			ArgsSchema: stringSchema(),
			PathFields: []string{"path"},
		},
		{
			Name:             "file_write",
			ArgsSchema:       stringSchema(),
			PathFields:       []string{"path"},
			WriteCapable:     true,
			RequiresRunScope: true,
		},
		{
			Name:       "db_admin",
			ArgsSchema: map[string]any{"type": "object", "additionalProperties": false, "properties": map[string]any{}},
			MinTrust:   core.TrustPrivileged,
		},
		{
			Name:       "shell_exec",
			ArgsSchema: map[string]any{"type": "object", "additionalProperties": false, "properties": map[string]any{}},
			Approval:   core.ApprovalAlwaysAsk,
		},
		{
			Name:       "raw_socket",
			ArgsSchema: map[string]any{"type": "object", "additionalProperties": false, "properties": map[string]any{}},
			Approval:   core.ApprovalDeny,
		},
		{
			Name: "echo",
			ArgsSchema: map[string]any{
				"type": "object", "additionalProperties": false,
				"properties": map[string]any{"input": map[string]any{"type": "string"}},
			},
			MaxOutputSize: 64,
		},
		{
			Name: "summarize",
			ArgsSchema: map[string]any{
				"type": "object", "additionalProperties": false,
				"properties": map[string]any{"input": map[string]any{"type": "string"}},
			},
			MaxInputSize: 64,
		},
	}
	for _, def := range tools {
		if err := reg.Register(def); err != nil {
			t.Fatalf("register %s: %v", def.Name, err)
		}
	}
	reg.Lock()

	writer := &mockAuditWriter{}
	rt, err := New(Config{
		Registry:    reg,
		WorkingRoot: root,
		Executors:   executors,
		Audit:       writer,
		Logger:      zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return rt, writer, root
}

func trustedSession() core.SessionContext {
	return core.SessionContext{
		SessionID: "sess-1",
		AgentID:   "agent-1",
		AgentName: "prime",
		Trust:     core.TrustTrusted,
		Access:    core.AccessFull,
	}
}

func TestRoute_NoAccessRejectsBeforeAnythingElse(t *testing.T) {
	rt, writer, _ := testRouter(t, nil)

	sess := trustedSession()
	sess.Access = core.AccessNone

	// Everything else about this request is also broken: unknown tool,
	// replayed nonce would come later. NO_ACCESS must win.
	req := core.ToolRequest{RequestID: "r1", ToolName: "no_such_tool", Nonce: "n1"}
	res := rt.Route(context.Background(), req, sess)

	if res.Decision != core.DecisionRejected {
		t.Fatalf("decision = %s, want REJECTED", res.Decision)
	}
	if res.ReasonCode != core.ReasonAccessMode {
		t.Fatalf("reason = %q, want %q", res.ReasonCode, core.ReasonAccessMode)
	}
	if rec := writer.last(t); rec.Decision != "REJECTED" || rec.ReasonCode != "access_mode" {
		t.Fatalf("audit record = %s/%s", rec.Decision, rec.ReasonCode)
	}
}

func TestRoute_NonceReplayRejected(t *testing.T) {
	rt, _, root := testRouter(t, map[string]ExecutorFunc{
		"file_read": func(ctx context.Context, inv Invocation) ([]byte, error) {
			return []byte("ok"), nil
		},
	})
	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	sess := trustedSession()
	req := core.ToolRequest{
		RequestID: "r1", ToolName: "file_read",
		Args: map[string]any{"path": "a.txt"}, Nonce: "nonce-1", Enveloped: true,
	}

	if res := rt.Route(context.Background(), req, sess); res.Decision != core.DecisionExecute {
		t.Fatalf("first use: decision = %s (%v)", res.Decision, res.Errors)
	}

	req.RequestID = "r2"
	res := rt.Route(context.Background(), req, sess)
	if res.ReasonCode != core.ReasonNonce {
		t.Fatalf("replay reason = %q, want %q", res.ReasonCode, core.ReasonNonce)
	}

	// A different session may reuse the same nonce value.
	other := trustedSession()
	other.SessionID = "sess-2"
	req.RequestID = "r3"
	if res := rt.Route(context.Background(), req, other); res.Decision != core.DecisionExecute {
		t.Fatalf("other session: decision = %s (%v)", res.Decision, res.Errors)
	}
}

func TestRoute_EnvelopedEmptyNonceRejected(t *testing.T) {
	executed := 0
	rt, writer, root := testRouter(t, map[string]ExecutorFunc{
		"file_read": func(ctx context.Context, inv Invocation) ([]byte, error) {
			executed++
			return []byte("ok"), nil
		},
	})
	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	sess := trustedSession()
	sess.Trust = core.TrustUntrusted
	req := core.ToolRequest{
		RequestID: "r1", ToolName: "file_read",
		Args: map[string]any{"path": "a.txt"}, Nonce: "", Enveloped: true,
	}

	// An enveloped request with no nonce carries no replay protection;
	// repeating it must never reach execution.
	for _, id := range []string{"r1", "r2"} {
		req.RequestID = id
		res := rt.Route(context.Background(), req, sess)
		if res.Decision != core.DecisionRejected {
			t.Fatalf("%s: decision = %s, want REJECTED", id, res.Decision)
		}
		if res.ReasonCode != core.ReasonNonce {
			t.Fatalf("%s: reason = %q, want %q", id, res.ReasonCode, core.ReasonNonce)
		}
	}
	if executed != 0 {
		t.Fatalf("executor ran %d times without a nonce", executed)
	}
	if rec := writer.last(t); rec.NonceValid {
		t.Fatal("audit record claims a valid nonce")
	}
}

func TestRoute_UnknownTool(t *testing.T) {
	rt, _, _ := testRouter(t, nil)

	res := rt.Route(context.Background(),
		core.ToolRequest{RequestID: "r1", ToolName: "File_Read", Args: map[string]any{"path": "a"}},
		trustedSession())
	if res.ReasonCode != core.ReasonUnknownTool {
		t.Fatalf("reason = %q, want %q", res.ReasonCode, core.ReasonUnknownTool)
	}
}

func TestRoute_EnvelopeRequiredForLowTrust(t *testing.T) {
	rt, _, _ := testRouter(t, nil)

	sess := trustedSession()
	sess.Trust = core.TrustMonitored
	req := core.ToolRequest{
		RequestID: "r1", ToolName: "file_read",
		Args: map[string]any{"path": "a.txt"}, Enveloped: false, DetectedVia: "loose_struct",
	}

	res := rt.Route(context.Background(), req, sess)
	if res.ReasonCode != core.ReasonEnvelope {
		t.Fatalf("reason = %q, want %q", res.ReasonCode, core.ReasonEnvelope)
	}
}

func TestRoute_InsufficientTrust(t *testing.T) {
	rt, _, _ := testRouter(t, nil)

	res := rt.Route(context.Background(),
		core.ToolRequest{RequestID: "r1", ToolName: "db_admin", Args: map[string]any{}, Nonce: "n1", Enveloped: true},
		trustedSession())
	if res.ReasonCode != core.ReasonTrust {
		t.Fatalf("reason = %q, want %q", res.ReasonCode, core.ReasonTrust)
	}
}

func TestRoute_SchemaViolation(t *testing.T) {
	rt, _, _ := testRouter(t, nil)

	res := rt.Route(context.Background(),
		core.ToolRequest{
			RequestID: "r1", ToolName: "file_read",
			Args: map[string]any{"path": "a.txt", "mode": "rw"},
		},
		trustedSession())
	if res.ReasonCode != core.ReasonSchema {
		t.Fatalf("reason = %q, want %q", res.ReasonCode, core.ReasonSchema)
	}
	if len(res.Errors) == 0 {
		t.Fatal("expected violation details in errors")
	}
}

func TestRoute_OversizedArgsRejected(t *testing.T) {
	rt, writer, _ := testRouter(t, map[string]ExecutorFunc{
		"summarize": func(ctx context.Context, inv Invocation) ([]byte, error) {
			return []byte("ok"), nil
		},
	})
	sess := trustedSession()

	// summarize's MaxInputSize is 64; the canonical serialization of
	// these args is well past it.
	big := strings.Repeat("x", 128)
	res := rt.Route(context.Background(),
		core.ToolRequest{RequestID: "r1", ToolName: "summarize", Args: map[string]any{"input": big}},
		sess)
	if res.Decision != core.DecisionRejected {
		t.Fatalf("decision = %s, want REJECTED", res.Decision)
	}
	if res.ReasonCode != core.ReasonInputSize {
		t.Fatalf("reason = %q, want %q", res.ReasonCode, core.ReasonInputSize)
	}
	if rec := writer.last(t); rec.ReasonCode != "input_size" {
		t.Fatalf("audit reason = %q", rec.ReasonCode)
	}

	// Args under the ceiling pass the gate.
	res = rt.Route(context.Background(),
		core.ToolRequest{RequestID: "r2", ToolName: "summarize", Args: map[string]any{"input": "hi"}},
		sess)
	if res.Decision != core.DecisionExecute {
		t.Fatalf("small args: decision = %s (%v)", res.Decision, res.Errors)
	}
}

func TestRoute_AbsolutePathRejected(t *testing.T) {
	rt, _, _ := testRouter(t, nil)

	res := rt.Route(context.Background(),
		core.ToolRequest{RequestID: "r1", ToolName: "file_read", Args: map[string]any{"path": "/etc/passwd"}},
		trustedSession())
	if res.ReasonCode != core.ReasonPathAbsolute {
		t.Fatalf("reason = %q, want %q", res.ReasonCode, core.ReasonPathAbsolute)
	}
}

func TestRoute_TraversalRejected(t *testing.T) {
	rt, _, _ := testRouter(t, nil)

	res := rt.Route(context.Background(),
		core.ToolRequest{RequestID: "r1", ToolName: "file_read", Args: map[string]any{"path": "../outside.txt"}},
		trustedSession())
	if res.ReasonCode != core.ReasonPathTraversal {
		t.Fatalf("reason = %q, want %q", res.ReasonCode, core.ReasonPathTraversal)
	}
}

func TestContainsPath_SiblingPrefixNotContained(t *testing.T) {
	// /data/projA-evil shares a string prefix with /data/projA but is
	// not inside it.
	if containsPath("/data/projA", "/data/projA-evil/file.txt") {
		t.Fatal("sibling directory with shared prefix treated as contained")
	}
	if !containsPath("/data/projA", "/data/projA/sub/file.txt") {
		t.Fatal("descendant not recognized")
	}
	if !containsPath("/data/projA", "/data/projA") {
		t.Fatal("root itself not recognized")
	}
}

func TestRoute_WriteRequiresRunScope(t *testing.T) {
	rt, _, _ := testRouter(t, nil)

	sess := trustedSession()
	req := core.ToolRequest{
		RequestID: "r1", ToolName: "file_write", Nonce: "n1",
		Args: map[string]any{"path": "artifacts/run_20260830/out.txt"}, Enveloped: true,
	}

	// No active write session.
	res := rt.Route(context.Background(), req, sess)
	if res.ReasonCode != core.ReasonRunScope {
		t.Fatalf("no scope: reason = %q, want %q", res.ReasonCode, core.ReasonRunScope)
	}

	// Malformed token.
	sess.RunScope = "bad scope!"
	req.RequestID, req.Nonce = "r2", "n2"
	if res := rt.Route(context.Background(), req, sess); res.ReasonCode != core.ReasonRunScope {
		t.Fatalf("malformed scope: reason = %q", res.ReasonCode)
	}

	// Path outside the run directory.
	sess.RunScope = "run_20260830_other"
	req.RequestID, req.Nonce = "r3", "n3"
	if res := rt.Route(context.Background(), req, sess); res.ReasonCode != core.ReasonRunScope {
		t.Fatalf("wrong run dir: reason = %q", res.ReasonCode)
	}

	// Request run_id disagreeing with the session scope.
	sess.RunScope = "run_20260830"
	req.RequestID, req.Nonce = "r4", "n4"
	req.RunID = "run_other"
	if res := rt.Route(context.Background(), req, sess); res.ReasonCode != core.ReasonRunScope {
		t.Fatalf("run_id mismatch: reason = %q", res.ReasonCode)
	}
}

func TestRoute_WriteInsideRunScopeExecutes(t *testing.T) {
	rt, _, _ := testRouter(t, map[string]ExecutorFunc{
		"file_write": func(ctx context.Context, inv Invocation) ([]byte, error) {
			return []byte(`{"written":true}`), nil
		},
	})

	sess := trustedSession()
	sess.RunScope = "run_20260830"
	req := core.ToolRequest{
		RequestID: "r1", ToolName: "file_write", Nonce: "n1",
		Args:      map[string]any{"path": "artifacts/run_20260830/out.txt"},
		Enveloped: true, RunID: "run_20260830",
	}

	res := rt.Route(context.Background(), req, sess)
	if res.Decision != core.DecisionExecute {
		t.Fatalf("decision = %s (%v)", res.Decision, res.Errors)
	}
}

func TestRoute_ExecuteReportsArgsHash(t *testing.T) {
	rt, writer, root := testRouter(t, map[string]ExecutorFunc{
		"file_read": func(ctx context.Context, inv Invocation) ([]byte, error) {
			resolved, ok := inv.Paths["notes/a.txt"]
			if !ok {
				t.Fatal("resolved path missing from invocation")
			}
			return os.ReadFile(resolved)
		},
	})
	if err := os.MkdirAll(filepath.Join(root, "notes"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "notes", "a.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	args := map[string]any{"path": "notes/a.txt"}
	res := rt.Route(context.Background(),
		core.ToolRequest{RequestID: "r1", ToolName: "file_read", Args: args, Nonce: "n1", Enveloped: true},
		trustedSession())

	if res.Decision != core.DecisionExecute {
		t.Fatalf("decision = %s (%v)", res.Decision, res.Errors)
	}
	if string(res.Output) != "hello" {
		t.Fatalf("output = %q", res.Output)
	}

	canonical, _ := json.Marshal(args)
	sum := sha256.Sum256(canonical)
	want := hex.EncodeToString(sum[:])

	rec := writer.last(t)
	if rec.ArgsHash != want {
		t.Fatalf("args_hash = %s, want %s", rec.ArgsHash, want)
	}
	if rec.Outcome != "executed" {
		t.Fatalf("outcome = %q", rec.Outcome)
	}
}

func TestRoute_ApprovalParkAndResume(t *testing.T) {
	executed := false
	rt, writer, _ := testRouter(t, map[string]ExecutorFunc{
		"shell_exec": func(ctx context.Context, inv Invocation) ([]byte, error) {
			executed = true
			return []byte("done"), nil
		},
	})

	sess := trustedSession()
	req := core.ToolRequest{RequestID: "r1", ToolName: "shell_exec", Args: map[string]any{}, Nonce: "n1", Enveloped: true}

	res := rt.Route(context.Background(), req, sess)
	if res.Decision != core.DecisionAwaitApproval {
		t.Fatalf("decision = %s, want AWAIT_APPROVAL", res.Decision)
	}
	if executed {
		t.Fatal("executor ran before approval")
	}
	if rec := writer.last(t); rec.Outcome != "awaiting_approval" {
		t.Fatalf("outcome = %q", rec.Outcome)
	}
	if ids := rt.PendingApprovals(sess.SessionID); len(ids) != 1 || ids[0] != "r1" {
		t.Fatalf("pending = %v", ids)
	}

	resumed, found := rt.Resume(context.Background(), "r1", true)
	if !found {
		t.Fatal("parked request not found")
	}
	if resumed.Decision != core.DecisionExecute || !executed {
		t.Fatalf("resume decision = %s, executed = %v", resumed.Decision, executed)
	}

	// A request resumes exactly once.
	if _, found := rt.Resume(context.Background(), "r1", true); found {
		t.Fatal("request resumed twice")
	}
}

func TestRoute_ApprovalDenied(t *testing.T) {
	rt, _, _ := testRouter(t, map[string]ExecutorFunc{
		"shell_exec": func(ctx context.Context, inv Invocation) ([]byte, error) {
			t.Fatal("executor ran on denial")
			return nil, nil
		},
	})

	req := core.ToolRequest{RequestID: "r1", ToolName: "shell_exec", Args: map[string]any{}, Nonce: "n1", Enveloped: true}
	if res := rt.Route(context.Background(), req, trustedSession()); res.Decision != core.DecisionAwaitApproval {
		t.Fatalf("decision = %s", res.Decision)
	}

	res, found := rt.Resume(context.Background(), "r1", false)
	if !found || res.ReasonCode != core.ReasonApprovalDenied {
		t.Fatalf("found = %v, reason = %q", found, res.ReasonCode)
	}
}

func TestRoute_DenyPolicyRejects(t *testing.T) {
	rt, _, _ := testRouter(t, nil)

	res := rt.Route(context.Background(),
		core.ToolRequest{RequestID: "r1", ToolName: "raw_socket", Args: map[string]any{}, Nonce: "n1", Enveloped: true},
		trustedSession())
	if res.ReasonCode != core.ReasonApprovalDenied {
		t.Fatalf("reason = %q, want %q", res.ReasonCode, core.ReasonApprovalDenied)
	}
}

func TestRoute_RequestFirstAccessParksEveryCall(t *testing.T) {
	rt, _, root := testRouter(t, map[string]ExecutorFunc{
		"file_read": func(ctx context.Context, inv Invocation) ([]byte, error) {
			return []byte("ok"), nil
		},
	})
	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	sess := trustedSession()
	sess.Access = core.AccessRequestFirst
	res := rt.Route(context.Background(),
		core.ToolRequest{RequestID: "r1", ToolName: "file_read", Args: map[string]any{"path": "a.txt"}, Nonce: "n1", Enveloped: true},
		sess)
	if res.Decision != core.DecisionAwaitApproval {
		t.Fatalf("decision = %s, want AWAIT_APPROVAL", res.Decision)
	}
}

func TestRoute_OversizedOutputSpillsToArtifact(t *testing.T) {
	big := make([]byte, 128) // echo's MaxOutputSize is 64
	for i := range big {
		big[i] = 'x'
	}
	rt, writer, root := testRouter(t, map[string]ExecutorFunc{
		"echo": func(ctx context.Context, inv Invocation) ([]byte, error) {
			return big, nil
		},
	})

	res := rt.Route(context.Background(),
		core.ToolRequest{RequestID: "r1", ToolName: "echo", Args: map[string]any{"input": "go"}, Nonce: "n1", Enveloped: true},
		trustedSession())

	if res.Decision != core.DecisionExecute {
		t.Fatalf("decision = %s (%v)", res.Decision, res.Errors)
	}
	if len(res.Artifacts) != 1 {
		t.Fatalf("artifacts = %v", res.Artifacts)
	}
	spilled, err := os.ReadFile(filepath.Join(root, res.Artifacts[0]))
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	if len(spilled) != 128 {
		t.Fatalf("artifact size = %d", len(spilled))
	}

	var note map[string]any
	if err := json.Unmarshal(res.Output, &note); err != nil {
		t.Fatalf("inline output is not a spill note: %v", err)
	}
	if note["truncated"] != true {
		t.Fatalf("note = %v", note)
	}
	if rec := writer.last(t); rec.OutputSize != 128 {
		t.Fatalf("audit output_size = %d", rec.OutputSize)
	}
}

func TestRoute_ExecutionFailureAudited(t *testing.T) {
	rt, writer, root := testRouter(t, map[string]ExecutorFunc{
		"file_read": func(ctx context.Context, inv Invocation) ([]byte, error) {
			return nil, os.ErrPermission
		},
	})
	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	res := rt.Route(context.Background(),
		core.ToolRequest{RequestID: "r1", ToolName: "file_read", Args: map[string]any{"path": "a.txt"}, Nonce: "n1", Enveloped: true},
		trustedSession())
	if res.ReasonCode != core.ReasonExecution {
		t.Fatalf("reason = %q", res.ReasonCode)
	}
	if rec := writer.last(t); rec.Outcome != "execution_failed" {
		t.Fatalf("outcome = %q", rec.Outcome)
	}
}

func TestRoute_IdentityComesFromSession(t *testing.T) {
	rt, writer, root := testRouter(t, map[string]ExecutorFunc{
		"file_read": func(ctx context.Context, inv Invocation) ([]byte, error) {
			return []byte("ok"), nil
		},
	})
	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	// A request claiming a different identity than the session.
	req := core.ToolRequest{
		RequestID: "r1", ToolName: "file_read",
		Args: map[string]any{"path": "a.txt"}, Nonce: "n1", Enveloped: true,
		AgentID: "spoofed-admin", AgentName: "root", Trust: core.TrustPrivileged,
	}
	rt.Route(context.Background(), req, trustedSession())

	rec := writer.last(t)
	if rec.AgentID != "agent-1" || rec.TrustLevel != "TRUSTED" {
		t.Fatalf("audit identity = %s/%s, want session identity", rec.AgentID, rec.TrustLevel)
	}
}

func TestRoute_EveryDecisionAudited(t *testing.T) {
	rt, writer, _ := testRouter(t, nil)
	sess := trustedSession()

	requests := []core.ToolRequest{
		{RequestID: "r1", ToolName: "nope", Args: map[string]any{}},
		{RequestID: "r2", ToolName: "file_read", Args: map[string]any{"path": "/abs"}},
		{RequestID: "r3", ToolName: "shell_exec", Args: map[string]any{}, Nonce: "n3", Enveloped: true},
	}
	for _, req := range requests {
		rt.Route(context.Background(), req, sess)
	}
	if got := writer.count(); got != len(requests) {
		t.Fatalf("audit records = %d, want %d", got, len(requests))
	}
}

func TestRoute_FirstFailureWins(t *testing.T) {
	rt, _, _ := testRouter(t, nil)

	// Unknown tool AND missing envelope for a monitored agent: the
	// registry gate comes first, so its reason must be reported.
	sess := trustedSession()
	sess.Trust = core.TrustMonitored
	res := rt.Route(context.Background(),
		core.ToolRequest{RequestID: "r1", ToolName: "nope", Args: map[string]any{}, Enveloped: false},
		sess)
	if res.ReasonCode != core.ReasonUnknownTool {
		t.Fatalf("reason = %q, want %q", res.ReasonCode, core.ReasonUnknownTool)
	}
}

func TestNew_RequiresLockedRegistry(t *testing.T) {
	reg := registry.New()
	_, err := New(Config{Registry: reg, WorkingRoot: t.TempDir(), Audit: &mockAuditWriter{}, Logger: zap.NewNop()})
	var contract *core.ErrContract
	if !errors.As(err, &contract) {
		t.Fatalf("err = %v, want contract violation", err)
	}
}
