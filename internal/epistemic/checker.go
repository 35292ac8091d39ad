package epistemic

import (
	"fmt"
	"strings"
)

// defaultSeverity holds the shipped per-rule severities. The two WARN
// rules stay advisory until usage patterns settle; callers may override
// any rule either way.
var defaultSeverity = map[string]Severity{
	RulePremiseGate:       SeverityBlock,
	RuleToyModelLabel:     SeverityBlock,
	RuleOntologyPredict:   SeverityBlock,
	RuleFrameworkOntology: SeverityWarn,
	RuleCycle:             SeverityBlock,
	RuleValidationScope:   SeverityWarn,
}

// Checker evaluates the integrity rules. Stateless; one instance serves
// concurrent callers.
type Checker struct {
	severity map[string]Severity
}

// NewChecker builds a checker with default severities, applying any
// per-rule overrides. Unknown rule codes in overrides are ignored.
func NewChecker(overrides map[string]Severity) *Checker {
	sev := make(map[string]Severity, len(defaultSeverity))
	for code, s := range defaultSeverity {
		sev[code] = s
	}
	for code, s := range overrides {
		if _, known := sev[code]; known {
			sev[code] = s
		}
	}
	return &Checker{severity: sev}
}

// Check runs all rules against target in the context of the full graph.
// The caller must supply a consistent snapshot: every node and edge in
// scope, unchanged for the duration of the call.
//
// proposedStatus carries the status a caller is attempting to set;
// empty means the target's current status is evaluated. The checker
// never mutates anything — committing the change is the caller's job.
func (c *Checker) Check(target ObjectNode, nodes []ObjectNode, edges []Edge, proposedStatus string) CheckResult {
	nodeMap := make(map[string]ObjectNode, len(nodes)+1)
	for _, n := range nodes {
		nodeMap[n.ID] = n
	}
	nodeMap[target.ID] = target

	status := proposedStatus
	if status == "" {
		status = target.Status
	}

	var findings []Finding

	// Cycles first: a cyclic graph makes the remaining rules unsafe to
	// reason about, so a cycle finding short-circuits the check.
	if f, cyclic := c.checkCycle(target.ID, edges); cyclic {
		return CheckResult{OK: f.Severity != SeverityBlock, Findings: []Finding{f}}
	}

	findings = append(findings, c.checkPremiseGate(target, status, edges, nodeMap)...)
	if f, ok := c.checkToyModelLabel(target, status); ok {
		findings = append(findings, f)
	}
	if f, ok := c.checkOntologyPrediction(target); ok {
		findings = append(findings, f)
	}
	if f, ok := c.checkFrameworkOntologyLink(target, edges, nodeMap); ok {
		findings = append(findings, f)
	}
	if f, ok := c.checkValidationScope(target, edges, nodeMap); ok {
		findings = append(findings, f)
	}

	ok := true
	for _, f := range findings {
		if f.Severity == SeverityBlock {
			ok = false
			break
		}
	}
	return CheckResult{OK: ok, Findings: findings}
}

func (c *Checker) finding(code, message string, nodes ...string) Finding {
	return Finding{Code: code, Severity: c.severity[code], Message: message, Nodes: nodes}
}

// checkPremiseGate enforces EP001: an object may become validated only
// if every depends_on target is already validated. Validation never
// flows upstream; dependencies must be validated first, explicitly.
func (c *Checker) checkPremiseGate(target ObjectNode, status string, edges []Edge, nodeMap map[string]ObjectNode) []Finding {
	if status != StatusValidated {
		return nil
	}

	var findings []Finding
	for _, e := range edges {
		if e.SourceID != target.ID || e.RefType != RefDependsOn {
			continue
		}
		dep, found := nodeMap[e.TargetID]
		switch {
		case !found:
			findings = append(findings, c.finding(RulePremiseGate,
				fmt.Sprintf("dependency %s not found in graph scope; cannot validate without resolving all premises", e.TargetID),
				target.ID, e.TargetID))
		case dep.Status != StatusValidated:
			findings = append(findings, c.finding(RulePremiseGate,
				fmt.Sprintf("cannot validate %s: dependency %s has status %q, must be %q; validation does not flow upstream",
					target.ID, dep.ID, dep.Status, StatusValidated),
				target.ID, dep.ID))
		}
	}
	return findings
}

// checkToyModelLabel enforces EP002: unvalidated interpretive claims
// must carry the TOY_MODEL label. Validated objects are exempt — the
// label was required to get there.
func (c *Checker) checkToyModelLabel(target ObjectNode, status string) (Finding, bool) {
	if status == StatusValidated {
		return Finding{}, false
	}
	if target.ClaimLevel != ClaimInterpretation || target.NarrativeLabel == NarrativeToyModel {
		return Finding{}, false
	}
	return c.finding(RuleToyModelLabel,
		fmt.Sprintf("object %s has claim level %q but narrative label %q; unvalidated interpretive claims must be labeled %q",
			target.ID, ClaimInterpretation, target.NarrativeLabel, NarrativeToyModel),
		target.ID), true
}

// checkOntologyPrediction enforces EP003: a speculative ontology cannot
// carry a prediction claim directly; a toy model must be instantiated
// first.
func (c *Checker) checkOntologyPrediction(target ObjectNode) (Finding, bool) {
	if target.Type != TypeSpeculativeOntology || target.ClaimLevel != ClaimPrediction {
		return Finding{}, false
	}
	return c.finding(RuleOntologyPredict,
		fmt.Sprintf("object %s is a %s with claim level %q; ontologies cannot make predictions directly",
			target.ID, TypeSpeculativeOntology, ClaimPrediction),
		target.ID), true
}

// checkFrameworkOntologyLink enforces EP004: an abstract framework with
// an interpretive or definitional claim must depend on at least one
// speculative ontology, so implicit ontological assumptions are explicit.
func (c *Checker) checkFrameworkOntologyLink(target ObjectNode, edges []Edge, nodeMap map[string]ObjectNode) (Finding, bool) {
	if target.Type != TypeAbstractFramework {
		return Finding{}, false
	}
	if target.ClaimLevel != ClaimInterpretation && target.ClaimLevel != ClaimDefinition {
		return Finding{}, false
	}

	for _, e := range edges {
		if e.SourceID != target.ID || e.RefType != RefDependsOn {
			continue
		}
		if dep, found := nodeMap[e.TargetID]; found && dep.Type == TypeSpeculativeOntology {
			return Finding{}, false
		}
	}
	return c.finding(RuleFrameworkOntology,
		fmt.Sprintf("object %s is an %s with claim level %q but depends on no %s",
			target.ID, TypeAbstractFramework, target.ClaimLevel, TypeSpeculativeOntology),
		target.ID), true
}

// checkCycle enforces EP005: the depends_on graph reachable from the
// target must be acyclic. Traversal is iterative with explicit visited
// and in-progress marks, so a large or adversarial graph costs linear
// time and bounded memory rather than recursion depth.
func (c *Checker) checkCycle(targetID string, edges []Edge) (Finding, bool) {
	adj := make(map[string][]string)
	for _, e := range edges {
		if e.RefType == RefDependsOn {
			adj[e.SourceID] = append(adj[e.SourceID], e.TargetID)
		}
	}

	const (
		inProgress = 1
		done       = 2
	)
	state := make(map[string]int)
	path := []string{}

	type frame struct {
		node string
		next int
	}
	stack := []frame{{node: targetID}}
	state[targetID] = inProgress
	path = append(path, targetID)

	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		neighbors := adj[top.node]
		if top.next < len(neighbors) {
			next := neighbors[top.next]
			top.next++
			switch state[next] {
			case inProgress:
				// Cycle: everything on the path from next onward.
				start := 0
				for i, n := range path {
					if n == next {
						start = i
						break
					}
				}
				cycle := append([]string(nil), path[start:]...)
				return c.finding(RuleCycle,
					fmt.Sprintf("cycle detected in depends_on graph: %s -> %s; circular justification is not permitted",
						strings.Join(cycle, " -> "), cycle[0]),
					cycle...), true
			case done:
				// Already explored, no cycle through it.
			default:
				state[next] = inProgress
				path = append(path, next)
				stack = append(stack, frame{node: next})
			}
			continue
		}
		state[top.node] = done
		path = path[:len(path)-1]
		stack = stack[:len(stack)-1]
	}
	return Finding{}, false
}

// checkValidationScope enforces EP006: an external validation scope
// needs traceable evidence — a supports edge from an evidence or
// prediction object, or an attached artifact hash.
func (c *Checker) checkValidationScope(target ObjectNode, edges []Edge, nodeMap map[string]ObjectNode) (Finding, bool) {
	if target.ValidationScope != ScopeExternal {
		return Finding{}, false
	}
	if target.ArtifactHash != "" {
		return Finding{}, false
	}

	for _, e := range edges {
		if e.TargetID != target.ID || e.RefType != RefSupports {
			continue
		}
		if src, found := nodeMap[e.SourceID]; found && (src.Type == TypeEvidence || src.Type == TypePrediction) {
			return Finding{}, false
		}
	}
	return c.finding(RuleValidationScope,
		fmt.Sprintf("object %s has validation scope %q but no supporting evidence object and no attached artifact",
			target.ID, ScopeExternal),
		target.ID), true
}
