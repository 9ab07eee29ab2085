// Package reflector implements the observer's supervisory loop: it watches
// the main agent's message traffic and state transitions through the bus,
// buffers them, and periodically reviews the batch with a bounded
// reasoning/tool cycle that may write insights back to shared files.
package reflector

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sidekick-agent/sidekick/internal/agentloop"
	"github.com/sidekick-agent/sidekick/internal/llm"
	"github.com/sidekick-agent/sidekick/internal/observe"
	"github.com/sidekick-agent/sidekick/internal/printer"
	"github.com/sidekick-agent/sidekick/internal/tool"
)

// Config holds the reflector's runtime settings.
type Config struct {
	Enabled       bool
	Interval      time.Duration
	Model         string
	MaxIterations int
	// BootstrapDir holds IDENTITY.md, SOUL.md, AGENTS.md, and TOOLS.md,
	// which seed the review system prompt.
	BootstrapDir string
}

// Reflector owns the observation buffer and the periodic review cycle.
type Reflector struct {
	cfg       Config
	bus       *observe.Bus
	buffer    *observe.Buffer
	loop      *agentloop.Loop
	logger    *slog.Logger
	bootstrap bootstrapFiles

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	subs    []observe.Subscription
}

// New builds a reflector. Bootstrap files are loaded once, at construction.
func New(cfg Config, bus *observe.Bus, provider llm.Provider, registry *tool.Registry, logger *slog.Logger) *Reflector {
	return &Reflector{
		cfg:       cfg,
		bus:       bus,
		buffer:    observe.NewBuffer(),
		loop:      agentloop.New(provider, registry, cfg.Model, cfg.MaxIterations, logger),
		logger:    logger,
		bootstrap: loadBootstrapFiles(cfg.BootstrapDir, logger),
	}
}

// Buffer exposes the owned observation buffer, mainly for tests.
func (r *Reflector) Buffer() *observe.Buffer {
	return r.buffer
}

// Start subscribes to both observation streams and launches the periodic
// review goroutine. Starting a running reflector is an error; starting a
// disabled one is a no-op.
func (r *Reflector) Start(ctx context.Context) error {
	if !r.cfg.Enabled {
		r.logger.Info("reflector disabled in config")
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return fmt.Errorf("reflector already running")
	}

	r.subs = []observe.Subscription{
		r.bus.SubscribeMessages(r.buffer.AddMessage),
		r.bus.SubscribeStates(r.buffer.AddState),
	}

	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	r.running = true

	go r.run(runCtx)

	r.logger.Info("reflector started",
		"interval", r.cfg.Interval,
		"model", r.cfg.Model,
		"max_iterations", r.cfg.MaxIterations)
	return nil
}

// Stop deregisters the observers, cancels the periodic goroutine, and waits
// for it to acknowledge. When Stop returns, no review cycle is in flight and
// every lock a cycle held has been released. Stopping a stopped reflector is
// a no-op.
func (r *Reflector) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	for _, sub := range r.subs {
		r.bus.Unsubscribe(sub)
	}
	r.subs = nil
	cancel := r.cancel
	done := r.done
	r.mu.Unlock()

	cancel()
	<-done

	r.logger.Info("reflector stopped")
}

func (r *Reflector) run(ctx context.Context) {
	defer close(r.done)

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// A cycle failure is logged and the loop keeps ticking. The
			// drained batch is not requeued: losing one batch is preferred
			// over replaying observations into a failing cycle.
			if err := r.reflect(ctx); err != nil && ctx.Err() == nil {
				r.logger.Error("reflection cycle failed", "error", err)
			}
		}
	}
}

// reflect drains the buffer and, if anything was observed, reviews the batch
// through the reasoning/tool loop.
func (r *Reflector) reflect(ctx context.Context) error {
	messages, states := r.buffer.DrainAll()
	if len(messages) == 0 && len(states) == 0 {
		r.logger.Debug("no observations this cycle")
		return nil
	}

	cycleID := uuid.New().String()[:8]
	printer.Reflection("analyzing %d messages, %d state changes", len(messages), len(states))
	r.logger.Info("starting reflection cycle",
		"cycle", cycleID,
		"messages", len(messages),
		"states", len(states))

	prompt := []llm.Message{
		{Role: llm.RoleSystem, Content: r.buildSystemPrompt()},
		{Role: llm.RoleUser, Content: buildReviewPrompt(messages, states)},
	}

	result, err := r.loop.Run(ctx, prompt)
	if err != nil {
		return fmt.Errorf("cycle %s (%d messages, %d states): %w", cycleID, len(messages), len(states), err)
	}

	printer.Reflection("completed: %s", firstN(result, 100))
	r.logger.Info("reflection cycle completed", "cycle", cycleID, "result", firstN(result, 200))
	return nil
}

func firstN(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
