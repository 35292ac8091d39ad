// Package executor holds the built-in tool executors. Executors perform
// no permission checks of their own — by the time one runs, the router
// has validated arguments, paths, and scope.
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/deathguppie/kathoros/internal/core"
	"github.com/deathguppie/kathoros/internal/registry"
	"github.com/deathguppie/kathoros/internal/router"
	"github.com/deathguppie/kathoros/internal/store"
)

// ObjectLister is the slice of the store the object_query tool needs.
type ObjectLister interface {
	ListObjects(ctx context.Context, objectType, status *string) ([]*store.KnowledgeObject, error)
}

// Builtins returns the built-in tool definitions and their executors,
// ready for registration and router wiring.
func Builtins(objects ObjectLister) ([]registry.ToolDefinition, map[string]router.ExecutorFunc) {
	defs := []registry.ToolDefinition{
		{
			Name:        "file_read",
			Description: "Read a file under the working root.",
			ArgsSchema: map[string]any{
				"type":                 "object",
				"additionalProperties": false,
				"properties": map[string]any{
					"path": map[string]any{"type": "string", "minLength": 1},
				},
				"required": []any{"path"},
			},
			PathFields: []string{"path"},
			Aliases:    []string{"read_file"},
		},
		{
			Name:        "file_write",
			Description: "Write a file inside the active run-scope directory.",
			ArgsSchema: map[string]any{
				"type":                 "object",
				"additionalProperties": false,
				"properties": map[string]any{
					"path":    map[string]any{"type": "string", "minLength": 1},
					"content": map[string]any{"type": "string"},
				},
				"required": []any{"path", "content"},
			},
			WriteCapable:     true,
			RequiresRunScope: true,
			PathFields:       []string{"path"},
			Aliases:          []string{"write_file"},
		},
		{
			Name:        "object_query",
			Description: "List knowledge objects, optionally filtered by type and status.",
			ArgsSchema: map[string]any{
				"type":                 "object",
				"additionalProperties": false,
				"properties": map[string]any{
					"type":   map[string]any{"type": "string"},
					"status": map[string]any{"type": "string"},
				},
			},
			MinTrust: core.TrustMonitored,
		},
	}

	execs := map[string]router.ExecutorFunc{
		"file_read":    fileRead,
		"file_write":   fileWrite,
		"object_query": objectQuery(objects),
	}
	return defs, execs
}

// fileReadResult is the payload returned by file_read.
type fileReadResult struct {
	Path    string `json:"path"`
	Size    int    `json:"size"`
	Content string `json:"content"`
}

func fileRead(ctx context.Context, inv router.Invocation) ([]byte, error) {
	raw, _ := inv.Request.Args["path"].(string)
	resolved, ok := inv.Paths[raw]
	if !ok {
		return nil, fmt.Errorf("file_read: path %q was not resolved", raw)
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("file_read: %w", err)
	}
	return json.Marshal(fileReadResult{Path: raw, Size: len(data), Content: string(data)})
}

type fileWriteResult struct {
	Path    string `json:"path"`
	Written int    `json:"written"`
}

func fileWrite(ctx context.Context, inv router.Invocation) ([]byte, error) {
	raw, _ := inv.Request.Args["path"].(string)
	resolved, ok := inv.Paths[raw]
	if !ok {
		return nil, fmt.Errorf("file_write: path %q was not resolved", raw)
	}
	content, _ := inv.Request.Args["content"].(string)

	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return nil, fmt.Errorf("file_write: %w", err)
	}
	if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil {
		return nil, fmt.Errorf("file_write: %w", err)
	}
	return json.Marshal(fileWriteResult{Path: raw, Written: len(content)})
}

// objectSummary is the per-object payload returned by object_query.
// Deliberately narrower than the store row: no notes, no latex.
type objectSummary struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Type   string   `json:"type"`
	Status string   `json:"status"`
	Tags   []string `json:"tags,omitempty"`
}

func objectQuery(objects ObjectLister) router.ExecutorFunc {
	return func(ctx context.Context, inv router.Invocation) ([]byte, error) {
		var typeFilter, statusFilter *string
		if s, ok := inv.Request.Args["type"].(string); ok && s != "" {
			typeFilter = &s
		}
		if s, ok := inv.Request.Args["status"].(string); ok && s != "" {
			statusFilter = &s
		}

		rows, err := objects.ListObjects(ctx, typeFilter, statusFilter)
		if err != nil {
			return nil, fmt.Errorf("object_query: %w", err)
		}

		summaries := make([]objectSummary, 0, len(rows))
		for _, obj := range rows {
			summaries = append(summaries, objectSummary{
				ID: obj.ID, Name: obj.Name, Type: obj.ObjectType,
				Status: obj.Status, Tags: obj.Tags,
			})
		}
		return json.Marshal(summaries)
	}
}
