// Package llm defines the conversation types exchanged with a reasoning
// provider and the provider contract itself. The provider is an opaque
// network dependency: calls may fail and are not retried here.
package llm

import "context"

// Message roles follow the OpenAI chat-completions convention.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one entry of the accumulated conversation context.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
}

// ToolCall is one tool invocation requested by the provider. It is consumed
// exactly once by the execution loop and folded back into the context as a
// tool-role message.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// FunctionDefinition describes a callable tool to the provider.
type FunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ToolDefinition wraps a function definition in the provider wire shape.
type ToolDefinition struct {
	Type     string             `json:"type"`
	Function FunctionDefinition `json:"function"`
}

// Response is the provider's answer to one chat request.
type Response struct {
	Content   string
	ToolCalls []ToolCall
}

// HasToolCalls reports whether the response requests tool execution.
func (r *Response) HasToolCalls() bool {
	return len(r.ToolCalls) > 0
}

// Provider is the reasoning dependency consumed by the tool-execution loop.
type Provider interface {
	Chat(ctx context.Context, messages []Message, tools []ToolDefinition, model string) (*Response, error)
}
