package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultAPIBase = "https://api.openai.com/v1"

// OpenAIProvider talks to any OpenAI-compatible chat-completions endpoint.
type OpenAIProvider struct {
	apiKey       string
	apiBase      string
	extraHeaders map[string]string
	client       *http.Client
}

// NewOpenAIProvider creates a provider for the given credentials. An empty
// apiBase falls back to the OpenAI endpoint.
func NewOpenAIProvider(apiKey, apiBase string, extraHeaders map[string]string) *OpenAIProvider {
	if apiBase == "" {
		apiBase = defaultAPIBase
	}
	return &OpenAIProvider{
		apiKey:       apiKey,
		apiBase:      strings.TrimRight(apiBase, "/"),
		extraHeaders: extraHeaders,
		client:       &http.Client{Timeout: 120 * time.Second},
	}
}

type wireToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type wireMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
}

type chatRequest struct {
	Model    string           `json:"model"`
	Messages []wireMessage    `json:"messages"`
	Tools    []ToolDefinition `json:"tools,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message wireMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Chat sends the accumulated conversation plus tool schema and decodes the
// provider's answer. Tool-call arguments arrive as a JSON string and are
// parsed into a map; unparseable arguments become an empty map rather than
// failing the whole response.
func (p *OpenAIProvider) Chat(ctx context.Context, messages []Message, tools []ToolDefinition, model string) (*Response, error) {
	reqBody := chatRequest{
		Model:    model,
		Messages: toWireMessages(messages),
		Tools:    tools,
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to encode chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiBase+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	for k, v := range p.extraHeaders {
		req.Header.Set(k, v)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chat request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read chat response: %w", err)
	}

	var decoded chatResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("failed to parse chat response (status %d): %w", resp.StatusCode, err)
	}

	if decoded.Error != nil {
		return nil, fmt.Errorf("provider error (status %d): %s", resp.StatusCode, decoded.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("provider returned status %d: %s", resp.StatusCode, truncateBody(body))
	}
	if len(decoded.Choices) == 0 {
		return nil, fmt.Errorf("provider returned no choices")
	}

	msg := decoded.Choices[0].Message
	out := &Response{Content: msg.Content}
	for _, tc := range msg.ToolCalls {
		args := map[string]any{}
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				args = map[string]any{}
			}
		}
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}
	return out, nil
}

func toWireMessages(messages []Message) []wireMessage {
	wire := make([]wireMessage, 0, len(messages))
	for _, m := range messages {
		wm := wireMessage{
			Role:       m.Role,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			args, err := json.Marshal(tc.Arguments)
			if err != nil {
				args = []byte("{}")
			}
			wtc := wireToolCall{ID: tc.ID, Type: "function"}
			wtc.Function.Name = tc.Name
			wtc.Function.Arguments = string(args)
			wm.ToolCalls = append(wm.ToolCalls, wtc)
		}
		wire = append(wire, wm)
	}
	return wire
}

func truncateBody(body []byte) string {
	const max = 500
	s := string(body)
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
