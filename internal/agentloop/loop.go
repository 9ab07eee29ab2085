// Package agentloop drives the bounded request/execute cycle that turns a
// reasoning response into tool invocations and feeds the results back.
package agentloop

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sidekick-agent/sidekick/internal/llm"
	"github.com/sidekick-agent/sidekick/internal/tool"
)

// MaxIterationsResult is returned when the loop hits its iteration bound
// while the provider is still requesting tools. It is a result, not an
// error: the cycle simply ran out of budget.
const MaxIterationsResult = "max iterations reached"

// Loop runs conversations against a provider with a fixed tool set.
type Loop struct {
	provider      llm.Provider
	registry      *tool.Registry
	model         string
	maxIterations int
	logger        *slog.Logger
}

// New creates a loop. maxIterations bounds the number of reasoning calls per run.
func New(provider llm.Provider, registry *tool.Registry, model string, maxIterations int, logger *slog.Logger) *Loop {
	return &Loop{
		provider:      provider,
		registry:      registry,
		model:         model,
		maxIterations: maxIterations,
		logger:        logger,
	}
}

// Run executes the loop until the provider answers without tool calls, the
// iteration bound is reached, or something fails. Tool calls execute
// strictly sequentially in the order received, so effects on shared files
// are totally ordered within one run. Any reasoning or tool error aborts
// the run and propagates; nothing is retried here.
func (l *Loop) Run(ctx context.Context, messages []llm.Message) (string, error) {
	for iteration := 1; iteration <= l.maxIterations; iteration++ {
		resp, err := l.provider.Chat(ctx, messages, l.registry.Definitions(), l.model)
		if err != nil {
			return "", fmt.Errorf("reasoning call failed on iteration %d: %w", iteration, err)
		}

		if !resp.HasToolCalls() {
			l.logger.Debug("loop finished", "iterations", iteration)
			return resp.Content, nil
		}

		messages = append(messages, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		for _, tc := range resp.ToolCalls {
			l.logger.Info("executing tool", "tool", tc.Name, "iteration", iteration)

			result, err := l.registry.Execute(ctx, tc.Name, tc.Arguments)
			if err != nil {
				return "", fmt.Errorf("tool %s failed on iteration %d: %w", tc.Name, iteration, err)
			}

			messages = append(messages, llm.Message{
				Role:       llm.RoleTool,
				ToolCallID: tc.ID,
				Content:    result,
			})
		}
	}

	l.logger.Warn("loop hit iteration bound", "max_iterations", l.maxIterations)
	return MaxIterationsResult, nil
}
