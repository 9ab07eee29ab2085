package reflector

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sidekick-agent/sidekick/internal/llm"
	"github.com/sidekick-agent/sidekick/internal/observe"
	"github.com/sidekick-agent/sidekick/internal/tool"
)

// recordingProvider captures every chat request and replies with canned
// content (or an error). Each call is announced on calls.
type recordingProvider struct {
	mu       sync.Mutex
	requests [][]llm.Message
	reply    string
	err      error
	delay    time.Duration
	calls    chan struct{}
}

func newRecordingProvider(reply string) *recordingProvider {
	return &recordingProvider{reply: reply, calls: make(chan struct{}, 100)}
}

func (p *recordingProvider) Chat(ctx context.Context, messages []llm.Message, tools []llm.ToolDefinition, model string) (*llm.Response, error) {
	if p.delay > 0 {
		time.Sleep(p.delay)
	}

	p.mu.Lock()
	p.requests = append(p.requests, append([]llm.Message(nil), messages...))
	err := p.err
	p.mu.Unlock()

	p.calls <- struct{}{}
	if err != nil {
		return nil, err
	}
	return &llm.Response{Content: p.reply}, nil
}

func (p *recordingProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

func (p *recordingProvider) lastRequest() []llm.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.requests) == 0 {
		return nil
	}
	return p.requests[len(p.requests)-1]
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		Enabled:       true,
		Interval:      20 * time.Millisecond,
		Model:         "test-model",
		MaxIterations: 3,
		BootstrapDir:  t.TempDir(),
	}
}

func writeBootstrap(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func waitForCall(t *testing.T, p *recordingProvider) {
	t.Helper()
	select {
	case <-p.calls:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a reflection cycle")
	}
}

func TestStartStopLifecycle(t *testing.T) {
	bus := observe.NewBus(testLogger())
	provider := newRecordingProvider("ok")
	r := New(testConfig(t), bus, provider, tool.NewRegistry(), testLogger())

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := r.Start(context.Background()); err == nil {
		t.Error("second Start should fail while running")
	}

	r.Stop()
	r.Stop() // stopping again is a no-op

	// After stop, published events no longer reach the buffer.
	bus.PublishMessage(observe.DirectionInbound, "cli", "late")
	msgs, _ := r.Buffer().Len()
	if msgs != 0 {
		t.Errorf("buffer received %d events after Stop, want 0", msgs)
	}
}

func TestDisabledReflectorDoesNotStart(t *testing.T) {
	cfg := testConfig(t)
	cfg.Enabled = false

	bus := observe.NewBus(testLogger())
	provider := newRecordingProvider("ok")
	r := New(cfg, bus, provider, tool.NewRegistry(), testLogger())

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start of disabled reflector failed: %v", err)
	}
	r.Stop()

	bus.PublishMessage(observe.DirectionInbound, "cli", "ignored")
	time.Sleep(60 * time.Millisecond)
	if provider.callCount() != 0 {
		t.Error("disabled reflector must never call the provider")
	}
}

func TestEmptyCycleSkipsReasoning(t *testing.T) {
	bus := observe.NewBus(testLogger())
	provider := newRecordingProvider("ok")
	r := New(testConfig(t), bus, provider, tool.NewRegistry(), testLogger())

	if err := r.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer r.Stop()

	// Let several ticks pass with nothing observed.
	time.Sleep(100 * time.Millisecond)
	if provider.callCount() != 0 {
		t.Errorf("provider called %d times with an empty buffer, want 0", provider.callCount())
	}
}

func TestCycleReviewsDrainedObservations(t *testing.T) {
	bus := observe.NewBus(testLogger())
	provider := newRecordingProvider("all fine")
	cfg := testConfig(t)
	cfg.Interval = 50 * time.Millisecond // room to publish the whole batch before the first tick
	r := New(cfg, bus, provider, tool.NewRegistry(), testLogger())

	if err := r.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer r.Stop()

	bus.PublishMessage(observe.DirectionInbound, "telegram", "how do I parse JSON?")
	bus.PublishMessage(observe.DirectionOutbound, "telegram", "use encoding/json")
	bus.PublishState("processing", map[string]any{"chat": "c1"})

	waitForCall(t, provider)

	req := provider.lastRequest()
	if len(req) != 2 {
		t.Fatalf("request has %d messages, want system+user", len(req))
	}
	if req[0].Role != llm.RoleSystem {
		t.Errorf("first message role = %s, want system", req[0].Role)
	}
	user := req[1].Content
	if !strings.Contains(user, "Messages Observed (2 total)") {
		t.Errorf("user prompt missing message count:\n%s", user)
	}
	if !strings.Contains(user, "State Changes (1 total)") {
		t.Errorf("user prompt missing state count:\n%s", user)
	}
	if !strings.Contains(user, "how do I parse JSON?") {
		t.Errorf("user prompt missing observed preview")
	}

	// The batch was drained: with no new events the provider is not
	// called again.
	count := provider.callCount()
	time.Sleep(80 * time.Millisecond)
	if provider.callCount() != count {
		t.Error("drained batch reviewed more than once")
	}
}

func TestCycleFailureIsIsolatedAndLossy(t *testing.T) {
	bus := observe.NewBus(testLogger())
	provider := newRecordingProvider("")
	provider.err = errors.New("provider exploded")
	r := New(testConfig(t), bus, provider, tool.NewRegistry(), testLogger())

	if err := r.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer r.Stop()

	bus.PublishMessage(observe.DirectionInbound, "cli", "doomed batch")
	waitForCall(t, provider)

	// The failed batch is discarded, not requeued: subsequent ticks see an
	// empty buffer and skip the provider.
	count := provider.callCount()
	time.Sleep(80 * time.Millisecond)
	if provider.callCount() != count {
		t.Error("failed batch was retried; drained observations must be lost")
	}

	// The scheduler survives: a fresh batch triggers a fresh cycle.
	provider.mu.Lock()
	provider.err = nil
	provider.mu.Unlock()

	bus.PublishMessage(observe.DirectionInbound, "cli", "fresh batch")
	waitForCall(t, provider)
}

func TestStopWaitsForInFlightCycle(t *testing.T) {
	bus := observe.NewBus(testLogger())
	provider := newRecordingProvider("slow ok")
	provider.delay = 150 * time.Millisecond
	r := New(testConfig(t), bus, provider, tool.NewRegistry(), testLogger())

	if err := r.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	bus.PublishMessage(observe.DirectionInbound, "cli", "trigger")
	waitForCall(t, provider)

	// The cycle above is (or was just) in flight; Stop must not return
	// until the run goroutine has fully unwound.
	r.Stop()

	select {
	case <-r.done:
	default:
		t.Error("Stop returned before the periodic goroutine exited")
	}
}

func TestBootstrapFilesFeedSystemPrompt(t *testing.T) {
	cfg := testConfig(t)
	writeBootstrap(t, cfg.BootstrapDir, "SOUL.md", "Be curious, be kind.")

	bus := observe.NewBus(testLogger())
	provider := newRecordingProvider("ok")
	r := New(cfg, bus, provider, tool.NewRegistry(), testLogger())

	system := r.buildSystemPrompt()
	if !strings.Contains(system, "Be curious, be kind.") {
		t.Error("system prompt missing bootstrap content")
	}
	if !strings.Contains(system, "# IDENTITY.md not found") {
		t.Error("missing bootstrap files must be placeholdered")
	}
	if !strings.Contains(system, "insight:") {
		t.Error("system prompt missing insight marker instruction")
	}
}
