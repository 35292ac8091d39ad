package executor

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/deathguppie/kathoros/internal/core"
	"github.com/deathguppie/kathoros/internal/router"
	"github.com/deathguppie/kathoros/internal/store"
)

type stubLister struct {
	objects []*store.KnowledgeObject
	gotType *string
}

func (s *stubLister) ListObjects(_ context.Context, objectType, _ *string) ([]*store.KnowledgeObject, error) {
	s.gotType = objectType
	return s.objects, nil
}

func invocation(root string, args map[string]any, paths map[string]string) router.Invocation {
	return router.Invocation{
		Request:     core.ToolRequest{Args: args},
		Paths:       paths,
		WorkingRoot: root,
	}
}

func TestFileRead(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "notes.txt")
	if err := os.WriteFile(target, []byte("observed"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := fileRead(context.Background(), invocation(root,
		map[string]any{"path": "notes.txt"},
		map[string]string{"notes.txt": target}))
	if err != nil {
		t.Fatalf("fileRead: %v", err)
	}

	var res fileReadResult
	if err := json.Unmarshal(out, &res); err != nil {
		t.Fatal(err)
	}
	if res.Content != "observed" || res.Size != 8 {
		t.Fatalf("result = %+v", res)
	}
}

func TestFileRead_UnresolvedPathFails(t *testing.T) {
	_, err := fileRead(context.Background(), invocation(t.TempDir(),
		map[string]any{"path": "a.txt"}, nil))
	if err == nil {
		t.Fatal("expected error for unresolved path")
	}
}

func TestFileWrite_CreatesParentDirs(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "artifacts", "run_1", "out.txt")

	out, err := fileWrite(context.Background(), invocation(root,
		map[string]any{"path": "artifacts/run_1/out.txt", "content": "data"},
		map[string]string{"artifacts/run_1/out.txt": target}))
	if err != nil {
		t.Fatalf("fileWrite: %v", err)
	}

	var res fileWriteResult
	if err := json.Unmarshal(out, &res); err != nil {
		t.Fatal(err)
	}
	if res.Written != 4 {
		t.Fatalf("result = %+v", res)
	}
	data, err := os.ReadFile(target)
	if err != nil || string(data) != "data" {
		t.Fatalf("file = %q, err = %v", data, err)
	}
}

func TestObjectQuery_FiltersAndSummarizes(t *testing.T) {
	lister := &stubLister{objects: []*store.KnowledgeObject{
		{ID: "1", Name: "Born rule", ObjectType: "derivation", Status: "validated", Tags: []string{"qm"}},
	}}
	exec := objectQuery(lister)

	out, err := exec(context.Background(), invocation(t.TempDir(),
		map[string]any{"type": "derivation"}, nil))
	if err != nil {
		t.Fatalf("objectQuery: %v", err)
	}
	if lister.gotType == nil || *lister.gotType != "derivation" {
		t.Fatalf("type filter = %v", lister.gotType)
	}

	var summaries []objectSummary
	if err := json.Unmarshal(out, &summaries); err != nil {
		t.Fatal(err)
	}
	if len(summaries) != 1 || summaries[0].Name != "Born rule" {
		t.Fatalf("summaries = %+v", summaries)
	}
}

func TestBuiltins_DefinitionsRegisterCleanly(t *testing.T) {
	defs, execs := Builtins(&stubLister{})
	if len(defs) != 3 {
		t.Fatalf("defs = %d", len(defs))
	}
	for _, def := range defs {
		if _, ok := execs[def.Name]; !ok {
			t.Fatalf("no executor for %s", def.Name)
		}
	}
}
