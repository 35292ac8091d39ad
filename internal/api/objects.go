package api

import (
	"database/sql"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/deathguppie/kathoros/internal/epistemic"
	"github.com/deathguppie/kathoros/internal/importer"
	"github.com/deathguppie/kathoros/internal/store"
)

// handleCreateObject implements POST /api/kathoros/objects.
// The candidate is checked against the current graph snapshot before
// anything is written; a BLOCK finding returns 409 and nothing commits.
func (d *Dependencies) handleCreateObject(w http.ResponseWriter, r *http.Request) {
	var req CreateObjectRequest
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	if req.Name == "" || req.Type == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "name and type are required"})
		return
	}

	nodes, edges, err := d.Store.GraphSnapshot(r.Context())
	if err != nil {
		d.Logger.Error("failed to load graph snapshot", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to load object graph"})
		return
	}

	// Candidate node plus its proposed edges, evaluated as if committed.
	candidate := epistemic.ObjectNode{
		ID:                    "candidate:" + req.Name,
		Type:                  req.Type,
		Status:                epistemic.StatusDraft,
		ClaimLevel:            req.ClaimLevel,
		NarrativeLabel:        req.NarrativeLabel,
		Falsifiable:           req.Falsifiable,
		FalsificationCriteria: req.FalsificationCriteria,
		ValidationScope:       req.ValidationScope,
		ArtifactHash:          req.ArtifactHash,
	}
	if candidate.ValidationScope == "" {
		candidate.ValidationScope = epistemic.ScopeInternal
	}
	for _, depID := range req.DependsOn {
		edges = append(edges, epistemic.Edge{
			SourceID: candidate.ID, TargetID: depID, RefType: epistemic.RefDependsOn,
		})
	}

	result := d.Checker.Check(candidate, nodes, edges, "")
	if !result.OK {
		writeJSON(w, http.StatusConflict, CheckFailureResp{
			Detail:   "epistemic check failed",
			Findings: findingsToResp(result.Findings),
		})
		return
	}

	obj, err := d.Store.CreateObject(r.Context(), store.CreateObjectParams{
		Name:                  req.Name,
		ObjectType:            req.Type,
		Status:                epistemic.StatusDraft,
		ClaimLevel:            req.ClaimLevel,
		NarrativeLabel:        req.NarrativeLabel,
		Falsifiable:           req.Falsifiable,
		FalsificationCriteria: req.FalsificationCriteria,
		ValidationScope:       candidate.ValidationScope,
		ArtifactHash:          req.ArtifactHash,
		Description:           req.Description,
		Tags:                  req.Tags,
		MathExpression:        req.MathExpression,
		Latex:                 req.Latex,
		Notes:                 req.Notes,
		SourceFile:            req.SourceFile,
		Provenance:            req.Provenance,
		DependsOn:             req.DependsOn,
	})
	if err != nil {
		d.Logger.Error("failed to create object", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to create object"})
		return
	}

	resp := objectToResp(obj)
	if warns := result.Warns(); len(warns) > 0 {
		writeJSON(w, http.StatusCreated, struct {
			ObjectResp
			Findings []FindingResp `json:"findings"`
		}{resp, findingsToResp(warns)})
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

// handleUpdateObjectStatus implements PATCH /api/kathoros/objects/{object_id}/status.
// The proposed status runs through the checker against the live graph;
// promotion to validated is where the premise gate bites.
func (d *Dependencies) handleUpdateObjectStatus(w http.ResponseWriter, r *http.Request) {
	objectID := r.PathValue("object_id")

	var req UpdateStatusRequest
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	if req.Status == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "status is required"})
		return
	}

	nodes, edges, err := d.Store.GraphSnapshot(r.Context())
	if err != nil {
		d.Logger.Error("failed to load graph snapshot", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to load object graph"})
		return
	}

	var target *epistemic.ObjectNode
	for i := range nodes {
		if nodes[i].ID == objectID {
			target = &nodes[i]
			break
		}
	}
	if target == nil {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Object not found."})
		return
	}

	result := d.Checker.Check(*target, nodes, edges, req.Status)
	if !result.OK {
		writeJSON(w, http.StatusConflict, CheckFailureResp{
			Detail:   "epistemic check failed",
			Findings: findingsToResp(result.Findings),
		})
		return
	}

	obj, err := d.Store.UpdateObjectStatus(r.Context(), objectID, req.Status)
	if err != nil {
		d.Logger.Error("failed to update status", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to update status"})
		return
	}
	if obj == nil {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Object not found."})
		return
	}
	writeJSON(w, http.StatusOK, objectToResp(obj))
}

// handleListObjects implements GET /api/kathoros/objects.
func (d *Dependencies) handleListObjects(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var typeFilter, statusFilter *string
	if v := q.Get("type"); v != "" {
		typeFilter = &v
	}
	if v := q.Get("status"); v != "" {
		statusFilter = &v
	}

	objects, err := d.Store.ListObjects(r.Context(), typeFilter, statusFilter)
	if err != nil {
		d.Logger.Error("failed to list objects", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to list objects"})
		return
	}

	resp := make([]ObjectResp, 0, len(objects))
	for _, obj := range objects {
		resp = append(resp, objectToResp(obj))
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleGetObject implements GET /api/kathoros/objects/{object_id}.
func (d *Dependencies) handleGetObject(w http.ResponseWriter, r *http.Request) {
	obj, err := d.Store.GetObject(r.Context(), r.PathValue("object_id"))
	if err != nil {
		d.Logger.Error("failed to get object", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to get object"})
		return
	}
	if obj == nil {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Object not found."})
		return
	}

	resp := objectToResp(obj)
	edges, err := d.Store.ObjectEdges(r.Context(), obj.ID)
	if err != nil {
		d.Logger.Error("failed to load object edges", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to get object"})
		return
	}
	for _, e := range edges {
		resp.Edges = append(resp.Edges, EdgeResp{
			SourceID: e.SourceID, TargetID: e.TargetID, RefType: e.RefType,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleDeleteObject implements DELETE /api/kathoros/objects/{object_id}.
func (d *Dependencies) handleDeleteObject(w http.ResponseWriter, r *http.Request) {
	if err := d.Store.DeleteObject(r.Context(), r.PathValue("object_id")); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Object not found."})
			return
		}
		d.Logger.Error("failed to delete object", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to delete object"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleImport implements POST /api/kathoros/import.
// The batch is parsed leniently, depends_on resolved within the batch,
// checked as a graph, and committed in dependency order. A BLOCK finding
// rejects the whole batch — partial imports would leave dangling claims.
func (d *Dependencies) handleImport(w http.ResponseWriter, r *http.Request) {
	var req ImportRequest
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	if req.Text == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "text is required"})
		return
	}

	batch := importer.ResolveBatch(d.Importer.ParseBatch(req.Text))
	if len(batch) == 0 {
		writeJSON(w, http.StatusOK, ImportResponse{Parsed: 0, Created: []ObjectResp{}})
		return
	}

	nodes, edges := importer.Graph(batch)
	var findings []FindingResp
	for _, node := range nodes {
		result := d.Checker.Check(node, nodes, edges, "")
		findings = append(findings, findingsToResp(result.Findings)...)
		if !result.OK {
			writeJSON(w, http.StatusConflict, CheckFailureResp{
				Detail:   "epistemic check failed for import batch",
				Findings: findings,
			})
			return
		}
	}

	created, skipped := d.commitBatch(r, batch)
	writeJSON(w, http.StatusOK, ImportResponse{
		Parsed:   len(batch),
		Created:  created,
		Skipped:  skipped,
		Findings: findings,
	})
}

// commitBatch inserts candidates in an order that guarantees each
// object's dependencies already exist, resolving batch names to IDs as
// rows are created.
func (d *Dependencies) commitBatch(r *http.Request, batch []importer.Candidate) ([]ObjectResp, []string) {
	created := make([]ObjectResp, 0, len(batch))
	var skipped []string
	idsByName := make(map[string]string, len(batch))

	remaining := append([]importer.Candidate(nil), batch...)
	for len(remaining) > 0 {
		progressed := false
		var next []importer.Candidate
		for _, c := range remaining {
			depIDs, ready := resolveDeps(c.DependsOn, idsByName)
			if !ready {
				next = append(next, c)
				continue
			}

			obj, err := d.Store.CreateObject(r.Context(), store.CreateObjectParams{
				Name:            c.Name,
				ObjectType:      c.Type,
				Status:          epistemic.StatusDraft,
				ClaimLevel:      epistemic.ClaimQuestion,
				NarrativeLabel:  "N/A",
				Falsifiable:     "unknown",
				ValidationScope: epistemic.ScopeInternal,
				Description:     c.Description,
				Tags:            c.Tags,
				MathExpression:  c.MathExpression,
				Latex:           c.Latex,
				Notes:           c.Notes,
				SourceFile:      c.SourceFile,
				Provenance:      "import",
				DependsOn:       depIDs,
			})
			if err != nil {
				d.Logger.Warn("import candidate failed",
					zap.String("name", c.Name), zap.Error(err))
				skipped = append(skipped, c.Name)
			} else {
				idsByName[c.Name] = obj.ID
				created = append(created, objectToResp(obj))
			}
			progressed = true
		}
		if !progressed {
			// Should not happen on a checked acyclic batch.
			for _, c := range next {
				skipped = append(skipped, c.Name)
			}
			break
		}
		remaining = next
	}
	return created, skipped
}

func resolveDeps(names []string, idsByName map[string]string) ([]string, bool) {
	ids := make([]string, 0, len(names))
	for _, name := range names {
		id, ok := idsByName[name]
		if !ok {
			return nil, false
		}
		ids = append(ids, id)
	}
	return ids, true
}

func findingsToResp(findings []epistemic.Finding) []FindingResp {
	out := make([]FindingResp, 0, len(findings))
	for _, f := range findings {
		out = append(out, FindingResp{
			Code: f.Code, Severity: string(f.Severity),
			Message: f.Message, Nodes: f.Nodes,
		})
	}
	return out
}

func objectToResp(obj *store.KnowledgeObject) ObjectResp {
	resp := ObjectResp{
		ID:                    obj.ID,
		Name:                  obj.Name,
		Type:                  obj.ObjectType,
		Status:                obj.Status,
		ClaimLevel:            obj.ClaimLevel,
		NarrativeLabel:        obj.NarrativeLabel,
		Falsifiable:           obj.Falsifiable,
		FalsificationCriteria: obj.FalsificationCriteria,
		ValidationScope:       obj.ValidationScope,
		Description:           obj.Description,
		Tags:                  obj.Tags,
		MathExpression:        obj.MathExpression,
		Latex:                 obj.Latex,
		Notes:                 obj.Notes,
		SourceFile:            obj.SourceFile,
		Provenance:            obj.Provenance,
		CreatedAt:             obj.CreatedAt,
		UpdatedAt:             obj.UpdatedAt,
	}
	if obj.ArtifactHash.Valid {
		resp.ArtifactHash = obj.ArtifactHash.String
	}
	return resp
}
