// Package importer turns agent-produced JSON batches into candidate
// knowledge objects. Parsing is lenient (bad entries are dropped, never
// fatal); the resolved graph still has to pass the epistemic checker
// before anything is committed.
package importer

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"go.uber.org/zap"

	"github.com/deathguppie/kathoros/internal/epistemic"
)

// Field length caps applied to every candidate.
const (
	maxNameLen        = 255
	maxDescriptionLen = 1000
	maxMathLen        = 500
	maxLatexLen       = 2000
	maxNotesLen       = 2000
	maxSourceFileLen  = 255
	maxTags           = 20
	maxDependsOn      = 50
)

var validTypes = map[string]struct{}{
	"concept": {}, "definition": {}, "derivation": {}, "prediction": {},
	"evidence": {}, "open_question": {}, "data": {},
	"toy_model": {}, "abstract_framework": {}, "speculative_ontology": {},
}

var fencedArrayPattern = regexp.MustCompile("(?s)```(?:json)?\\s*(\\[.*?\\])\\s*```")

// candidateSchema is the shape every batch entry must satisfy before
// normalization. Extra fields are tolerated here — the caps and type
// fallback in normalize() decide what survives.
const candidateSchema = `{
	"type": "object",
	"required": ["name", "type"],
	"properties": {
		"name": {"type": "string", "minLength": 1},
		"type": {"type": "string"},
		"description": {"type": "string"},
		"tags": {"type": "array", "items": {"type": "string"}},
		"math_expression": {"type": "string"},
		"latex": {"type": "string"},
		"researcher_notes": {"type": "string"},
		"depends_on": {},
		"source_file": {"type": "string"}
	}
}`

// Candidate is one normalized import suggestion.
type Candidate struct {
	Name           string   `json:"name"`
	Type           string   `json:"type"`
	Description    string   `json:"description"`
	Tags           []string `json:"tags"`
	MathExpression string   `json:"math_expression"`
	Latex          string   `json:"latex"`
	Notes          string   `json:"researcher_notes"`
	DependsOn      []string `json:"depends_on"`
	SourceFile     string   `json:"source_file"`
}

// Importer parses candidate batches. Safe for concurrent use once built.
type Importer struct {
	schema *jsonschema.Schema
	logger *zap.Logger
}

// New compiles the candidate schema and returns an Importer.
func New(logger *zap.Logger) (*Importer, error) {
	var schemaObj any
	if err := json.Unmarshal([]byte(candidateSchema), &schemaObj); err != nil {
		return nil, fmt.Errorf("importer: schema unmarshal: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("candidate.json", schemaObj); err != nil {
		return nil, fmt.Errorf("importer: schema resource: %w", err)
	}
	sch, err := c.Compile("candidate.json")
	if err != nil {
		return nil, fmt.Errorf("importer: schema compile: %w", err)
	}
	return &Importer{schema: sch, logger: logger}, nil
}

// ParseBatch extracts candidates from agent output. A fenced ```json
// array wins; otherwise the widest bracketed span is tried. Entries
// that fail schema validation are dropped, not fatal; a text with no
// parseable array yields an empty batch.
func (im *Importer) ParseBatch(text string) []Candidate {
	body := text
	if m := fencedArrayPattern.FindStringSubmatch(text); m != nil {
		body = m[1]
	} else {
		start := strings.Index(text, "[")
		end := strings.LastIndex(text, "]")
		if start == -1 || end == -1 || end < start {
			return nil
		}
		body = text[start : end+1]
	}

	var entries []any
	if err := json.Unmarshal([]byte(body), &entries); err != nil {
		im.logger.Warn("import batch parse failed", zap.Error(err))
		return nil
	}

	var out []Candidate
	for i, entry := range entries {
		if err := im.schema.Validate(entry); err != nil {
			im.logger.Debug("import entry dropped",
				zap.Int("index", i), zap.Error(err))
			continue
		}
		obj, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, normalize(obj))
	}
	return out
}

// ResolveBatch filters each candidate's depends_on to names present in
// the same batch. References are batch-scoped by design: an unresolved
// name is dropped silently rather than guessed against the store.
func ResolveBatch(batch []Candidate) []Candidate {
	known := make(map[string]struct{}, len(batch))
	for _, c := range batch {
		known[c.Name] = struct{}{}
	}

	resolved := make([]Candidate, len(batch))
	for i, c := range batch {
		var deps []string
		for _, name := range c.DependsOn {
			if _, ok := known[name]; ok && name != c.Name {
				deps = append(deps, name)
			}
		}
		c.DependsOn = deps
		resolved[i] = c
	}
	return resolved
}

// Graph builds the epistemic read view of a resolved batch, keyed by
// candidate name, so the batch can be checked before commit.
func Graph(batch []Candidate) ([]epistemic.ObjectNode, []epistemic.Edge) {
	nodes := make([]epistemic.ObjectNode, 0, len(batch))
	var edges []epistemic.Edge
	for _, c := range batch {
		nodes = append(nodes, epistemic.ObjectNode{
			ID:              c.Name,
			Type:            c.Type,
			Status:          epistemic.StatusDraft,
			ClaimLevel:      epistemic.ClaimQuestion,
			NarrativeLabel:  "N/A",
			Falsifiable:     "unknown",
			ValidationScope: epistemic.ScopeInternal,
		})
		for _, dep := range c.DependsOn {
			edges = append(edges, epistemic.Edge{
				SourceID: c.Name, TargetID: dep, RefType: epistemic.RefDependsOn,
			})
		}
	}
	return nodes, edges
}

func normalize(obj map[string]any) Candidate {
	c := Candidate{
		Name:           truncate(stringField(obj, "name"), maxNameLen),
		Type:           "concept",
		Description:    truncate(stringField(obj, "description"), maxDescriptionLen),
		MathExpression: truncate(stringField(obj, "math_expression"), maxMathLen),
		Latex:          truncate(stringField(obj, "latex"), maxLatexLen),
		Notes:          truncate(stringField(obj, "researcher_notes"), maxNotesLen),
		SourceFile:     truncate(stringField(obj, "source_file"), maxSourceFileLen),
	}
	if typ := stringField(obj, "type"); typ != "" {
		if _, ok := validTypes[typ]; ok {
			c.Type = typ
		}
	}

	if raw, ok := obj["tags"].([]any); ok {
		for _, t := range raw {
			if s, ok := t.(string); ok {
				c.Tags = append(c.Tags, s)
				if len(c.Tags) == maxTags {
					break
				}
			}
		}
	}

	c.DependsOn = dependsOnField(obj["depends_on"])
	return c
}

// dependsOnField accepts either a JSON array of names or a string
// containing an encoded array (a shape some models produce).
func dependsOnField(raw any) []string {
	var items []any
	switch v := raw.(type) {
	case []any:
		items = v
	case string:
		if err := json.Unmarshal([]byte(v), &items); err != nil {
			return nil
		}
	default:
		return nil
	}

	var deps []string
	for _, item := range items {
		if s, ok := item.(string); ok && s != "" {
			deps = append(deps, s)
			if len(deps) == maxDependsOn {
				break
			}
		}
	}
	return deps
}

func stringField(obj map[string]any, key string) string {
	s, _ := obj[key].(string)
	return s
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
