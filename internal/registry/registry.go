// Package registry holds the append-then-freeze catalog of tool
// definitions. Lookup is exact-match and case-sensitive; no fuzzy
// matching, no fallback.
package registry

import (
	"fmt"
	"sync"

	"github.com/deathguppie/kathoros/internal/core"
	"github.com/deathguppie/kathoros/internal/schema"
)

const (
	// DefaultMaxInputSize caps serialized argument size (1MB).
	DefaultMaxInputSize = 1 << 20
	// DefaultMaxOutputSize caps tool output before artifact spill (10MB).
	DefaultMaxOutputSize = 10 << 20
)

// ToolDefinition describes a single registered tool. Definitions are
// immutable once registered; Lookup hands out defensive copies so no
// caller can mutate registry state.
type ToolDefinition struct {
	Name        string
	Description string
	ArgsSchema  map[string]any

	WriteCapable     bool
	RequiresRunScope bool
	MinTrust         core.TrustLevel
	Approval         core.ApprovalPolicy

	// PathFields lists argument keys whose values are filesystem paths
	// and must pass path enforcement. AllowedPaths are the permitted
	// sub-roots (relative to the working root); empty means the whole
	// working root.
	PathFields   []string
	AllowedPaths []string

	MaxInputSize  int
	MaxOutputSize int

	Aliases []string
}

// Registry is safe for concurrent reads after Lock(). Registration
// happens once at startup; mutation after lock is a contract violation.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]ToolDefinition
	aliases map[string]string // alias -> canonical name
	locked  bool
}

// New creates an empty, unlocked registry.
func New() *Registry {
	return &Registry{
		tools:   make(map[string]ToolDefinition),
		aliases: make(map[string]string),
	}
}

// Register adds a tool definition. The schema is compile-checked here so
// the router never evaluates a malformed schema. Fails on duplicate
// names or aliases, and returns a contract violation if the registry is
// already locked.
func (r *Registry) Register(def ToolDefinition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.locked {
		return &core.ErrContract{Op: "registry.Register", Msg: "registry is locked"}
	}
	if def.Name == "" {
		return fmt.Errorf("register: tool name is empty")
	}
	if _, exists := r.tools[def.Name]; exists {
		return fmt.Errorf("register: tool already registered: %q", def.Name)
	}
	if _, exists := r.aliases[def.Name]; exists {
		return fmt.Errorf("register: name conflicts with alias: %q", def.Name)
	}
	if def.ArgsSchema == nil {
		return fmt.Errorf("register: tool %q has no args schema", def.Name)
	}
	if err := schema.CheckSchema(def.ArgsSchema); err != nil {
		return fmt.Errorf("register: tool %q: %w", def.Name, err)
	}

	if def.MaxInputSize <= 0 {
		def.MaxInputSize = DefaultMaxInputSize
	}
	if def.MaxOutputSize <= 0 {
		def.MaxOutputSize = DefaultMaxOutputSize
	}

	for _, alias := range def.Aliases {
		if _, exists := r.aliases[alias]; exists {
			return fmt.Errorf("register: alias conflict: %q", alias)
		}
		if _, exists := r.tools[alias]; exists {
			return fmt.Errorf("register: alias conflicts with tool name: %q", alias)
		}
	}

	def.ArgsSchema = deepCopySchema(def.ArgsSchema)
	r.tools[def.Name] = def
	for _, alias := range def.Aliases {
		r.aliases[alias] = def.Name
	}
	return nil
}

// Lock freezes the registry. One-way; called once at startup after all
// built-in tools are registered.
func (r *Registry) Lock() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.locked = true
}

// Locked reports whether the registry has been frozen.
func (r *Registry) Locked() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.locked
}

// Lookup resolves a name (or alias) to its definition. Exact match,
// case-sensitive. The returned definition is a copy with its own schema
// map — mutating it cannot affect the registry.
func (r *Registry) Lookup(name string) (ToolDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	canonical := name
	if target, ok := r.aliases[name]; ok {
		canonical = target
	}
	def, ok := r.tools[canonical]
	if !ok {
		return ToolDefinition{}, false
	}
	def.ArgsSchema = deepCopySchema(def.ArgsSchema)
	def.PathFields = append([]string(nil), def.PathFields...)
	def.AllowedPaths = append([]string(nil), def.AllowedPaths...)
	def.Aliases = append([]string(nil), def.Aliases...)
	return def, true
}

// Names returns all canonical tool names (for prompts and diagnostics).
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	return names
}

func deepCopySchema(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopySchema(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = deepCopyValue(item)
		}
		return out
	default:
		return val
	}
}
