// Package epistemic enforces integrity rules over the claim-dependency
// graph before a knowledge object is saved or promoted. The checker is
// stateless and read-only; callers decide whether a BLOCK finding
// prevents the commit.
package epistemic

// Severity classifies a finding. Only BLOCK findings make a check fail.
type Severity string

const (
	SeverityBlock Severity = "block"
	SeverityWarn  Severity = "warn"
)

// Rule codes. Severity per code is configurable; see NewChecker.
const (
	RulePremiseGate       = "EP001"
	RuleToyModelLabel     = "EP002"
	RuleOntologyPredict   = "EP003"
	RuleFrameworkOntology = "EP004"
	RuleCycle             = "EP005"
	RuleValidationScope   = "EP006"
)

// Object types recognized by the rules. Content-level types (concept,
// definition, derivation, prediction, evidence, open_question, data)
// pass through untouched; the three structural types below carry extra
// constraints.
const (
	TypeToyModel            = "toy_model"
	TypeAbstractFramework   = "abstract_framework"
	TypeSpeculativeOntology = "speculative_ontology"
	TypeEvidence            = "evidence"
	TypePrediction          = "prediction"
)

// Epistemic statuses.
const (
	StatusDraft     = "draft"
	StatusProposed  = "proposed"
	StatusAudited   = "audited"
	StatusValidated = "validated"
	StatusRejected  = "rejected"
)

// Claim levels.
const (
	ClaimQuestion       = "question"
	ClaimDefinition     = "definition"
	ClaimDerivation     = "derivation"
	ClaimPrediction     = "prediction"
	ClaimInterpretation = "interpretation"
	ClaimImplDetail     = "implementation_detail"
)

// NarrativeToyModel is the label every unvalidated interpretive claim
// must carry.
const NarrativeToyModel = "TOY_MODEL"

// Validation scopes.
const (
	ScopeInternal = "internal"
	ScopeExternal = "external"
)

// Edge reference types.
const (
	RefDependsOn   = "depends_on"
	RefSupports    = "supports"
	RefContradicts = "contradicts"
	RefExtends     = "extends"
)

// ObjectNode is the minimal read view of a knowledge object the checker
// needs. Callers fill it from the store row; string fields use the
// lowercase enum values above.
type ObjectNode struct {
	ID             string
	Type           string
	Status         string
	ClaimLevel     string
	NarrativeLabel string
	Falsifiable    string // yes | no | unknown

	FalsificationCriteria string
	ValidationScope       string // internal | external
	ArtifactHash          string // empty when no artifact is attached
}

// Edge is one directed reference between objects.
type Edge struct {
	SourceID string
	TargetID string
	RefType  string
}

// Finding is the result of one rule evaluation against one object.
type Finding struct {
	Code     string   `json:"code"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	Nodes    []string `json:"nodes,omitempty"`
}

// CheckResult aggregates the findings of one check call. OK is true only
// when no finding carries BLOCK severity.
type CheckResult struct {
	OK       bool      `json:"ok"`
	Findings []Finding `json:"findings"`
}

// Blocks returns the BLOCK-severity findings.
func (r CheckResult) Blocks() []Finding {
	var out []Finding
	for _, f := range r.Findings {
		if f.Severity == SeverityBlock {
			out = append(out, f)
		}
	}
	return out
}

// Warns returns the WARN-severity findings.
func (r CheckResult) Warns() []Finding {
	var out []Finding
	for _, f := range r.Findings {
		if f.Severity == SeverityWarn {
			out = append(out, f)
		}
	}
	return out
}
