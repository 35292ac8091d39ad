package epistemic

import (
	"strings"
	"testing"
)

func node(id, typ, status, claim string) ObjectNode {
	return ObjectNode{
		ID: id, Type: typ, Status: status, ClaimLevel: claim,
		NarrativeLabel: "N/A", Falsifiable: "unknown", ValidationScope: ScopeInternal,
	}
}

func findingCodes(r CheckResult) []string {
	codes := make([]string, 0, len(r.Findings))
	for _, f := range r.Findings {
		codes = append(codes, f.Code)
	}
	return codes
}

func hasCode(r CheckResult, code string) bool {
	for _, f := range r.Findings {
		if f.Code == code {
			return true
		}
	}
	return false
}

func TestPremiseGate_UnvalidatedDependencyBlocks(t *testing.T) {
	checker := NewChecker(nil)

	a := node("a", "concept", StatusProposed, ClaimDerivation)
	b := node("b", "concept", StatusAudited, ClaimDerivation)
	edges := []Edge{{SourceID: "b", TargetID: "a", RefType: RefDependsOn}}

	res := checker.Check(b, []ObjectNode{a}, edges, StatusValidated)
	if res.OK {
		t.Fatal("validating b with unvalidated dependency a must fail")
	}
	if !hasCode(res, RulePremiseGate) {
		t.Fatalf("findings = %v, want %s", findingCodes(res), RulePremiseGate)
	}
}

func TestPremiseGate_DirectionalValidation(t *testing.T) {
	checker := NewChecker(nil)

	a := node("a", "concept", StatusAudited, ClaimDerivation)
	b := node("b", "concept", StatusAudited, ClaimDerivation)
	edges := []Edge{{SourceID: "b", TargetID: "a", RefType: RefDependsOn}}

	// B first: fails.
	if res := checker.Check(b, []ObjectNode{a}, edges, StatusValidated); res.OK {
		t.Fatal("b before a must fail")
	}

	// A first: succeeds (a has no dependencies).
	if res := checker.Check(a, []ObjectNode{b}, edges, StatusValidated); !res.OK {
		t.Fatalf("validating a failed: %v", res.Findings)
	}

	// Then B, with A now validated.
	a.Status = StatusValidated
	if res := checker.Check(b, []ObjectNode{a}, edges, StatusValidated); !res.OK {
		t.Fatalf("validating b after a failed: %v", res.Findings)
	}
}

func TestPremiseGate_MissingDependencyBlocks(t *testing.T) {
	checker := NewChecker(nil)

	b := node("b", "concept", StatusAudited, ClaimDerivation)
	edges := []Edge{{SourceID: "b", TargetID: "ghost", RefType: RefDependsOn}}

	res := checker.Check(b, nil, edges, StatusValidated)
	if res.OK || !hasCode(res, RulePremiseGate) {
		t.Fatalf("missing dependency accepted: %v", res.Findings)
	}
}

func TestPremiseGate_OnlyAppliesToValidation(t *testing.T) {
	checker := NewChecker(nil)

	a := node("a", "concept", StatusDraft, ClaimDerivation)
	b := node("b", "concept", StatusDraft, ClaimDerivation)
	edges := []Edge{{SourceID: "b", TargetID: "a", RefType: RefDependsOn}}

	if res := checker.Check(b, []ObjectNode{a}, edges, StatusProposed); !res.OK {
		t.Fatalf("non-validation transition blocked: %v", res.Findings)
	}
}

func TestToyModelLabel_RequiredForUnvalidatedInterpretation(t *testing.T) {
	checker := NewChecker(nil)

	obj := node("x", TypeToyModel, StatusDraft, ClaimInterpretation)
	res := checker.Check(obj, nil, nil, "")
	if res.OK || !hasCode(res, RuleToyModelLabel) {
		t.Fatalf("unlabeled interpretation accepted: %v", res.Findings)
	}

	obj.NarrativeLabel = NarrativeToyModel
	if res := checker.Check(obj, nil, nil, ""); !res.OK {
		t.Fatalf("labeled interpretation blocked: %v", res.Findings)
	}
}

func TestToyModelLabel_ValidatedObjectsExempt(t *testing.T) {
	checker := NewChecker(nil)

	obj := node("x", TypeToyModel, StatusValidated, ClaimInterpretation)
	if res := checker.Check(obj, nil, nil, ""); !res.OK {
		t.Fatalf("validated interpretation flagged: %v", res.Findings)
	}
}

func TestOntologyPredictionBan(t *testing.T) {
	checker := NewChecker(nil)

	obj := node("o", TypeSpeculativeOntology, StatusDraft, ClaimPrediction)
	res := checker.Check(obj, nil, nil, "")
	if res.OK || !hasCode(res, RuleOntologyPredict) {
		t.Fatalf("ontology prediction accepted: %v", res.Findings)
	}

	// The same claim on a toy model is fine.
	obj = node("m", TypeToyModel, StatusDraft, ClaimPrediction)
	if res := checker.Check(obj, nil, nil, ""); !res.OK {
		t.Fatalf("toy model prediction blocked: %v", res.Findings)
	}
}

func TestFrameworkOntologyLink_WarnsWithoutBlocking(t *testing.T) {
	checker := NewChecker(nil)

	fw := node("f", TypeAbstractFramework, StatusDraft, ClaimDefinition)
	res := checker.Check(fw, nil, nil, "")
	if !res.OK {
		t.Fatalf("warn-level finding blocked the check: %v", res.Findings)
	}
	if len(res.Warns()) != 1 || res.Warns()[0].Code != RuleFrameworkOntology {
		t.Fatalf("warns = %v", res.Warns())
	}

	// Linking an ontology clears the finding.
	ont := node("o", TypeSpeculativeOntology, StatusDraft, ClaimDefinition)
	edges := []Edge{{SourceID: "f", TargetID: "o", RefType: RefDependsOn}}
	if res := checker.Check(fw, []ObjectNode{ont}, edges, ""); len(res.Findings) != 0 {
		t.Fatalf("linked framework still flagged: %v", res.Findings)
	}
}

func TestCycle_TwoNodeMutualReference(t *testing.T) {
	checker := NewChecker(nil)

	a := node("a", "concept", StatusDraft, ClaimDerivation)
	b := node("b", "concept", StatusDraft, ClaimDerivation)
	edges := []Edge{
		{SourceID: "a", TargetID: "b", RefType: RefDependsOn},
		{SourceID: "b", TargetID: "a", RefType: RefDependsOn},
	}

	res := checker.Check(a, []ObjectNode{b}, edges, "")
	if res.OK || !hasCode(res, RuleCycle) {
		t.Fatalf("2-node cycle accepted: %v", res.Findings)
	}

	// Removing one edge makes the graph acceptable.
	if res := checker.Check(a, []ObjectNode{b}, edges[:1], ""); !res.OK {
		t.Fatalf("acyclic graph rejected: %v", res.Findings)
	}
}

func TestCycle_LongerCycleDetected(t *testing.T) {
	checker := NewChecker(nil)

	nodes := []ObjectNode{
		node("a", "concept", StatusDraft, ClaimDerivation),
		node("b", "concept", StatusDraft, ClaimDerivation),
		node("c", "concept", StatusDraft, ClaimDerivation),
	}
	edges := []Edge{
		{SourceID: "a", TargetID: "b", RefType: RefDependsOn},
		{SourceID: "b", TargetID: "c", RefType: RefDependsOn},
		{SourceID: "c", TargetID: "a", RefType: RefDependsOn},
	}

	res := checker.Check(nodes[0], nodes[1:], edges, "")
	if res.OK || !hasCode(res, RuleCycle) {
		t.Fatalf("3-node cycle accepted: %v", res.Findings)
	}
	if !strings.Contains(res.Findings[0].Message, "->") {
		t.Fatalf("cycle message lacks path: %q", res.Findings[0].Message)
	}
}

func TestCycle_ShortCircuitsOtherRules(t *testing.T) {
	checker := NewChecker(nil)

	// This object would also trip EP002 and EP003, but on a cyclic
	// graph only the cycle finding is reported.
	obj := node("a", TypeSpeculativeOntology, StatusDraft, ClaimPrediction)
	obj.ClaimLevel = ClaimPrediction
	edges := []Edge{
		{SourceID: "a", TargetID: "b", RefType: RefDependsOn},
		{SourceID: "b", TargetID: "a", RefType: RefDependsOn},
	}

	res := checker.Check(obj, nil, edges, "")
	if len(res.Findings) != 1 || res.Findings[0].Code != RuleCycle {
		t.Fatalf("findings = %v, want only %s", findingCodes(res), RuleCycle)
	}
}

func TestCycle_OtherRefTypesIgnored(t *testing.T) {
	checker := NewChecker(nil)

	a := node("a", "concept", StatusDraft, ClaimDerivation)
	b := node("b", "concept", StatusDraft, ClaimDerivation)
	// Mutual supports/extends edges are not a justification cycle.
	edges := []Edge{
		{SourceID: "a", TargetID: "b", RefType: RefSupports},
		{SourceID: "b", TargetID: "a", RefType: RefExtends},
	}

	if res := checker.Check(a, []ObjectNode{b}, edges, ""); !res.OK {
		t.Fatalf("non-depends_on edges flagged: %v", res.Findings)
	}
}

func TestValidationScope_ExternalNeedsEvidence(t *testing.T) {
	checker := NewChecker(nil)

	obj := node("x", "concept", StatusDraft, ClaimDerivation)
	obj.ValidationScope = ScopeExternal

	res := checker.Check(obj, nil, nil, "")
	if !res.OK {
		t.Fatalf("warn-level finding blocked: %v", res.Findings)
	}
	if len(res.Warns()) != 1 || res.Warns()[0].Code != RuleValidationScope {
		t.Fatalf("warns = %v", res.Warns())
	}

	// An attached artifact satisfies the rule.
	obj.ArtifactHash = "deadbeef"
	if res := checker.Check(obj, nil, nil, ""); len(res.Findings) != 0 {
		t.Fatalf("artifact-backed object flagged: %v", res.Findings)
	}

	// So does a supports edge from an evidence object.
	obj.ArtifactHash = ""
	ev := node("e", TypeEvidence, StatusDraft, ClaimDerivation)
	edges := []Edge{{SourceID: "e", TargetID: "x", RefType: RefSupports}}
	if res := checker.Check(obj, []ObjectNode{ev}, edges, ""); len(res.Findings) != 0 {
		t.Fatalf("evidence-backed object flagged: %v", res.Findings)
	}
}

func TestSeverityOverrides(t *testing.T) {
	checker := NewChecker(map[string]Severity{
		RuleFrameworkOntology: SeverityBlock,
		RuleToyModelLabel:     SeverityWarn,
	})

	fw := node("f", TypeAbstractFramework, StatusDraft, ClaimDefinition)
	if res := checker.Check(fw, nil, nil, ""); res.OK {
		t.Fatal("upgraded EP004 did not block")
	}

	interp := node("x", TypeToyModel, StatusDraft, ClaimInterpretation)
	if res := checker.Check(interp, nil, nil, ""); !res.OK {
		t.Fatalf("downgraded EP002 still blocked: %v", res.Findings)
	}
}
