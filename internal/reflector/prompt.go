package reflector

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/sidekick-agent/sidekick/internal/observe"
)

// reviewTailLen bounds how many recent observations of each stream are
// embedded verbatim in the review prompt. The counts always report the full
// batch size.
const reviewTailLen = 20

type bootstrapFiles struct {
	identity string
	soul     string
	agents   string
	tools    string
}

func loadBootstrapFiles(dir string, logger *slog.Logger) bootstrapFiles {
	load := func(name string) string {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			logger.Warn("bootstrap file not found", "path", path)
			return fmt.Sprintf("# %s not found", name)
		}
		return string(data)
	}

	return bootstrapFiles{
		identity: load("IDENTITY.md"),
		soul:     load("SOUL.md"),
		agents:   load("AGENTS.md"),
		tools:    load("TOOLS.md"),
	}
}

func (r *Reflector) buildSystemPrompt() string {
	parts := []string{
		r.bootstrap.identity,
		r.bootstrap.soul,
		r.bootstrap.agents,
		r.bootstrap.tools,
		"",
		"# Observer Instructions",
		"You are an internal monitoring agent.",
		"You observe the main agent's activities and can influence it through shared memory files.",
		"",
		"When writing insights to MEMORY.md, start the content with 'insight:'.",
		"",
		"Available tools: read_file, write_file, edit_file, list_dir, web_search, web_fetch",
	}
	return strings.Join(parts, "\n\n")
}

func buildReviewPrompt(messages []observe.MessageEvent, states []observe.StateEvent) string {
	return fmt.Sprintf(`Please review the main agent's recent activity:

## Messages Observed (%d total)
%s

## State Changes (%d total)
%s

## Your Task
1. Analyze patterns in the main agent's behavior
2. Identify any issues or inefficiencies
3. Consider whether an insight belongs in MEMORY.md
4. Use your tools to read files if needed

Remember: insights written to MEMORY.md must start with 'insight:'.`,
		len(messages), encodeTail(tailMessages(messages)),
		len(states), encodeTail(tailStates(states)))
}

func tailMessages(events []observe.MessageEvent) []observe.MessageEvent {
	if len(events) > reviewTailLen {
		return events[len(events)-reviewTailLen:]
	}
	return events
}

func tailStates(events []observe.StateEvent) []observe.StateEvent {
	if len(events) > reviewTailLen {
		return events[len(events)-reviewTailLen:]
	}
	return events
}

func encodeTail(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("(failed to encode observations: %v)", err)
	}
	return string(data)
}
