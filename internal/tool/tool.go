// Package tool defines the tool contract consumed by the execution loop and
// the registry that holds the observer's limited tool set. The core only
// sequences and locks tool calls; each tool is a thin I/O wrapper.
package tool

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sidekick-agent/sidekick/internal/llm"
)

// ErrUnknownTool is returned when a requested tool is not registered.
var ErrUnknownTool = errors.New("unknown tool")

// Tool is a single callable exposed to the reasoning provider.
type Tool interface {
	Name() string
	Description() string
	// Parameters returns a JSON-Schema-like description of the arguments.
	Parameters() map[string]any
	Execute(ctx context.Context, args map[string]any) (string, error)
}

// Registry holds the tool set in registration order.
type Registry struct {
	mu    sync.Mutex
	order []string
	tools map[string]Tool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. Registering the same name twice is an error.
func (r *Registry) Register(t Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := t.Name()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %q already registered", name)
	}
	r.tools[name] = t
	r.order = append(r.order, name)
	return nil
}

// Definitions returns the provider-facing tool schema in registration order.
func (r *Registry) Definitions() []llm.ToolDefinition {
	r.mu.Lock()
	defer r.mu.Unlock()

	defs := make([]llm.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		defs = append(defs, llm.ToolDefinition{
			Type: "function",
			Function: llm.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}
	return defs
}

// Execute runs a tool by name.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (string, error) {
	r.mu.Lock()
	t, ok := r.tools[name]
	r.mu.Unlock()

	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return t.Execute(ctx, args)
}

// stringArg extracts a required string argument.
func stringArg(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", fmt.Errorf("missing required argument %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("argument %q must be a string", key)
	}
	return s, nil
}

// intArg extracts an optional integer argument, tolerating the float64 that
// JSON decoding produces.
func intArg(args map[string]any, key string, fallback int) int {
	v, ok := args[key]
	if !ok {
		return fallback
	}
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return fallback
	}
}
