// Package agent implements the Tool Registry & Agent Loop (C9): a
// closed set of callable tools exported as JSON schema for LLM
// function-calling, and the iterative tool-use loop that drives them.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/invopop/jsonschema"

	"github.com/kalambet/hivemind/internal/herrors"
	"github.com/kalambet/hivemind/internal/llm"
)

// Tool is a callable capability the agent loop can invoke (spec §4.9).
type Tool struct {
	Name        string
	Description string
	Category    string
	Schema      *jsonschema.Schema
	Handler     func(ctx context.Context, input json.RawMessage) (any, error)
}

// NewTool builds a Tool whose parameter schema is derived by reflection
// from P, so the LLM-facing description is never hand-written per tool
// (spec §9's "derived from the record" note).
func NewTool[P any](name, description, category string, handler func(ctx context.Context, params P) (any, error)) *Tool {
	reflector := &jsonschema.Reflector{ExpandedStruct: true}
	schema := reflector.Reflect(new(P))

	return &Tool{
		Name:        name,
		Description: description,
		Category:    category,
		Schema:      schema,
		Handler: func(ctx context.Context, raw json.RawMessage) (any, error) {
			var p P
			if len(raw) > 0 {
				if err := json.Unmarshal(raw, &p); err != nil {
					return nil, herrors.New(herrors.KindValidation, fmt.Sprintf("invalid parameters for %s: %v", name, err))
				}
			}
			return handler(ctx, p)
		},
	}
}

// Registry maps tool name to Tool, safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Tool
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Tool)}
}

func (r *Registry) Register(t *Tool) error {
	if t.Name == "" {
		return herrors.New(herrors.KindValidation, "tool name must not be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name]; exists {
		return herrors.New(herrors.KindValidation, fmt.Sprintf("tool %s already registered", t.Name))
	}
	r.tools[t.Name] = t
	return nil
}

func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

func (r *Registry) Get(name string) (*Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns every registered tool, sorted by name for stable output.
func (r *Registry) List() []*Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Export renders the registry as LLM-facing tool specs for function
// calling.
func (r *Registry) Export() []llm.ToolSpec {
	tools := r.List()
	specs := make([]llm.ToolSpec, len(tools))
	for i, t := range tools {
		schemaJSON, err := json.Marshal(t.Schema)
		if err != nil {
			schemaJSON = json.RawMessage(`{}`)
		}
		specs[i] = llm.ToolSpec{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  schemaJSON,
		}
	}
	return specs
}

// Execute validates input against the tool's declared required fields
// before invoking its handler (spec §4.9's "safe execution").
func (r *Registry) Execute(ctx context.Context, name string, input json.RawMessage) (any, error) {
	t, ok := r.Get(name)
	if !ok {
		return nil, herrors.New(herrors.KindNotFound, fmt.Sprintf("tool %s not registered", name))
	}
	if err := validateRequired(t.Schema, input); err != nil {
		return nil, err
	}
	return t.Handler(ctx, input)
}

func validateRequired(schema *jsonschema.Schema, input json.RawMessage) error {
	if schema == nil || len(schema.Required) == 0 {
		return nil
	}

	var fields map[string]json.RawMessage
	if len(input) > 0 {
		if err := json.Unmarshal(input, &fields); err != nil {
			return herrors.New(herrors.KindValidation, fmt.Sprintf("parameters must be a JSON object: %v", err))
		}
	}

	for _, req := range schema.Required {
		if _, ok := fields[req]; !ok {
			return herrors.New(herrors.KindValidation, fmt.Sprintf("missing required parameter %q", req))
		}
	}
	return nil
}
