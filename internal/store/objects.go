package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/deathguppie/kathoros/internal/epistemic"
)

// KnowledgeObject represents a row in the knowledge_objects table.
type KnowledgeObject struct {
	ID             string
	Name           string
	ObjectType     string
	Status         string
	ClaimLevel     string
	NarrativeLabel string
	Falsifiable    string

	FalsificationCriteria string
	ValidationScope       string
	ArtifactHash          sql.NullString

	Description    string
	Tags           []string
	MathExpression string
	Latex          string
	Notes          string
	SourceFile     string
	Provenance     string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ObjectEdge is one directed reference between objects.
type ObjectEdge struct {
	SourceID string
	TargetID string
	RefType  string
}

// CreateObjectParams holds the fields for a new knowledge object.
// Dependencies reference existing object IDs; edges are written in the
// same transaction as the object row.
type CreateObjectParams struct {
	Name           string
	ObjectType     string
	Status         string
	ClaimLevel     string
	NarrativeLabel string
	Falsifiable    string

	FalsificationCriteria string
	ValidationScope       string
	ArtifactHash          string

	Description    string
	Tags           []string
	MathExpression string
	Latex          string
	Notes          string
	SourceFile     string
	Provenance     string

	DependsOn []string
}

// CreateObject inserts a knowledge object and its depends_on edges in a
// single transaction. Callers run the epistemic check before calling.
func (s *Store) CreateObject(ctx context.Context, params CreateObjectParams) (*KnowledgeObject, error) {
	tagsJSON, err := json.Marshal(params.Tags)
	if err != nil {
		return nil, fmt.Errorf("CreateObject: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("CreateObject: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var obj KnowledgeObject
	var tagsRaw []byte
	err = tx.QueryRowContext(ctx, `
		INSERT INTO knowledge_objects (
			name, object_type, epistemic_status, claim_level, narrative_label,
			falsifiable, falsification_criteria, validation_scope, artifact_hash,
			description, tags, math_expression, latex, researcher_notes,
			source_file, provenance
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''),
		        $10, $11, $12, $13, $14, $15, $16)
		RETURNING id, name, object_type, epistemic_status, claim_level, narrative_label,
		          falsifiable, falsification_criteria, validation_scope, artifact_hash,
		          description, tags, math_expression, latex, researcher_notes,
		          source_file, provenance, created_at, updated_at`,
		params.Name, params.ObjectType, params.Status, params.ClaimLevel, params.NarrativeLabel,
		params.Falsifiable, params.FalsificationCriteria, params.ValidationScope, params.ArtifactHash,
		params.Description, tagsJSON, params.MathExpression, params.Latex, params.Notes,
		params.SourceFile, params.Provenance,
	).Scan(&obj.ID, &obj.Name, &obj.ObjectType, &obj.Status, &obj.ClaimLevel, &obj.NarrativeLabel,
		&obj.Falsifiable, &obj.FalsificationCriteria, &obj.ValidationScope, &obj.ArtifactHash,
		&obj.Description, &tagsRaw, &obj.MathExpression, &obj.Latex, &obj.Notes,
		&obj.SourceFile, &obj.Provenance, &obj.CreatedAt, &obj.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("CreateObject: %w", err)
	}
	if err := json.Unmarshal(tagsRaw, &obj.Tags); err != nil {
		obj.Tags = nil
	}

	for _, depID := range params.DependsOn {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO object_edges (source_id, target_id, reference_type)
			VALUES ($1, $2, 'depends_on')`, obj.ID, depID); err != nil {
			return nil, fmt.Errorf("CreateObject edge: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("CreateObject: %w", err)
	}
	return &obj, nil
}

// GetObject returns an object by ID, or nil if not found.
func (s *Store) GetObject(ctx context.Context, id string) (*KnowledgeObject, error) {
	var obj KnowledgeObject
	var tagsRaw []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, object_type, epistemic_status, claim_level, narrative_label,
		       falsifiable, falsification_criteria, validation_scope, artifact_hash,
		       description, tags, math_expression, latex, researcher_notes,
		       source_file, provenance, created_at, updated_at
		FROM knowledge_objects WHERE id = $1`, id,
	).Scan(&obj.ID, &obj.Name, &obj.ObjectType, &obj.Status, &obj.ClaimLevel, &obj.NarrativeLabel,
		&obj.Falsifiable, &obj.FalsificationCriteria, &obj.ValidationScope, &obj.ArtifactHash,
		&obj.Description, &tagsRaw, &obj.MathExpression, &obj.Latex, &obj.Notes,
		&obj.SourceFile, &obj.Provenance, &obj.CreatedAt, &obj.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetObject: %w", err)
	}
	if err := json.Unmarshal(tagsRaw, &obj.Tags); err != nil {
		obj.Tags = nil
	}
	return &obj, nil
}

// ListObjects returns objects filtered by optional type and status,
// ordered by creation time descending.
func (s *Store) ListObjects(ctx context.Context, objectType, status *string) ([]*KnowledgeObject, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, object_type, epistemic_status, claim_level, narrative_label,
		       falsifiable, falsification_criteria, validation_scope, artifact_hash,
		       description, tags, math_expression, latex, researcher_notes,
		       source_file, provenance, created_at, updated_at
		FROM knowledge_objects
		WHERE ($1::text IS NULL OR object_type = $1)
		  AND ($2::text IS NULL OR epistemic_status = $2)
		ORDER BY created_at DESC`, objectType, status)
	if err != nil {
		return nil, fmt.Errorf("ListObjects: %w", err)
	}
	defer rows.Close()

	var objects []*KnowledgeObject
	for rows.Next() {
		var obj KnowledgeObject
		var tagsRaw []byte
		if err := rows.Scan(&obj.ID, &obj.Name, &obj.ObjectType, &obj.Status, &obj.ClaimLevel,
			&obj.NarrativeLabel, &obj.Falsifiable, &obj.FalsificationCriteria, &obj.ValidationScope,
			&obj.ArtifactHash, &obj.Description, &tagsRaw, &obj.MathExpression, &obj.Latex,
			&obj.Notes, &obj.SourceFile, &obj.Provenance, &obj.CreatedAt, &obj.UpdatedAt); err != nil {
			return nil, fmt.Errorf("ListObjects: %w", err)
		}
		if err := json.Unmarshal(tagsRaw, &obj.Tags); err != nil {
			obj.Tags = nil
		}
		objects = append(objects, &obj)
	}
	return objects, rows.Err()
}

// UpdateObjectStatus sets a new epistemic status. Callers must have run
// the epistemic check against the proposed status first; this method
// only persists.
func (s *Store) UpdateObjectStatus(ctx context.Context, id, status string) (*KnowledgeObject, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE knowledge_objects SET epistemic_status = $2, updated_at = now()
		WHERE id = $1`, id, status)
	if err != nil {
		return nil, fmt.Errorf("UpdateObjectStatus: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, nil
	}
	return s.GetObject(ctx, id)
}

// DeleteObject removes an object. Its edges cascade.
func (s *Store) DeleteObject(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM knowledge_objects WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("DeleteObject: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// GraphSnapshot loads the read view of the full object graph for one
// epistemic check call. The caller holds no lock; consistency across
// check-then-commit is the caller's single-writer discipline.
func (s *Store) GraphSnapshot(ctx context.Context) ([]epistemic.ObjectNode, []epistemic.Edge, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, object_type, epistemic_status, claim_level, narrative_label,
		       falsifiable, falsification_criteria, validation_scope,
		       COALESCE(artifact_hash, '')
		FROM knowledge_objects`)
	if err != nil {
		return nil, nil, fmt.Errorf("GraphSnapshot: %w", err)
	}
	defer rows.Close()

	var nodes []epistemic.ObjectNode
	for rows.Next() {
		var n epistemic.ObjectNode
		if err := rows.Scan(&n.ID, &n.Type, &n.Status, &n.ClaimLevel, &n.NarrativeLabel,
			&n.Falsifiable, &n.FalsificationCriteria, &n.ValidationScope, &n.ArtifactHash); err != nil {
			return nil, nil, fmt.Errorf("GraphSnapshot: %w", err)
		}
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("GraphSnapshot: %w", err)
	}

	edgeRows, err := s.db.QueryContext(ctx, `
		SELECT source_id, target_id, reference_type FROM object_edges`)
	if err != nil {
		return nil, nil, fmt.Errorf("GraphSnapshot edges: %w", err)
	}
	defer edgeRows.Close()

	var edges []epistemic.Edge
	for edgeRows.Next() {
		var e epistemic.Edge
		if err := edgeRows.Scan(&e.SourceID, &e.TargetID, &e.RefType); err != nil {
			return nil, nil, fmt.Errorf("GraphSnapshot edges: %w", err)
		}
		edges = append(edges, e)
	}
	return nodes, edges, edgeRows.Err()
}

// ObjectEdges returns every edge touching an object, in either direction.
func (s *Store) ObjectEdges(ctx context.Context, objectID string) ([]ObjectEdge, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source_id, target_id, reference_type
		FROM object_edges
		WHERE source_id = $1 OR target_id = $1`, objectID)
	if err != nil {
		return nil, fmt.Errorf("ObjectEdges: %w", err)
	}
	defer rows.Close()

	var edges []ObjectEdge
	for rows.Next() {
		var e ObjectEdge
		if err := rows.Scan(&e.SourceID, &e.TargetID, &e.RefType); err != nil {
			return nil, fmt.Errorf("ObjectEdges: %w", err)
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}
