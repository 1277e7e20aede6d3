// Package agentloop implements the Agent Loop: the ReAct state
// machine that drives a single agent instance from a user prompt to a final
// answer, dispatching tool calls through the Tool Executor and delegating to
// child agents through the sub_agent tool.
package agentloop

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/opencode-ai/agentcore/internal/agentsession"
	"github.com/opencode-ai/agentcore/internal/eventbus"
	"github.com/opencode-ai/agentcore/internal/executionlog"
	"github.com/opencode-ai/agentcore/internal/executor"
	"github.com/opencode-ai/agentcore/internal/memory"
	"github.com/opencode-ai/agentcore/internal/message"
	"github.com/opencode-ai/agentcore/internal/permission"
	"github.com/opencode-ai/agentcore/internal/provider"
	"github.com/opencode-ai/agentcore/internal/sink"
	"github.com/opencode-ai/agentcore/internal/tool"
)

// MaxTurnsMarker is returned verbatim by Run when the turn bound is
// exhausted.
const MaxTurnsMarker = "Max turns exceeded"

// DefaultMaxTurns is the per-run thinking-state ceiling.
const DefaultMaxTurns = 70

// DefaultDelegationTimeout bounds a sub_agent call.
const DefaultDelegationTimeout = 300 * time.Second

// Retry tuning for a single provider round. A completion call that fails
// outright (not a context cancellation) is retried with jittered exponential
// backoff until about 200ms have elapsed before think gives up and the
// loop surfaces a RunError; a prompt failure after a couple of quick
// retries is far more likely a genuine outage than a transient blip, so
// this stays short rather than chasing the provider for minutes.
const (
	thinkRetryInitialInterval = 25 * time.Millisecond
	thinkRetryMaxInterval     = 100 * time.Millisecond
	thinkRetryMaxElapsedTime  = 200 * time.Millisecond
)

func newThinkRetryBackoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = thinkRetryInitialInterval
	b.MaxInterval = thinkRetryMaxInterval
	b.MaxElapsedTime = thinkRetryMaxElapsedTime
	b.RandomizationFactor = 0.5
	b.Multiplier = 2.0
	b.Reset()
	return backoff.WithContext(b, ctx)
}

// RunError is the structured failure the loop's public return carries when
// it cannot produce a final text.
type RunError struct {
	Kind      string
	Message   string
	SessionID string
}

func (e *RunError) Error() string {
	return fmt.Sprintf("%s: %s (session %s)", e.Kind, e.Message, e.SessionID)
}

// Config configures one Agent instance.
type Config struct {
	MaxTurns          int
	DelegationTimeout time.Duration
	SystemPrompt      string
	WorkDir           string
	Mode              permission.Mode // standard|safe|plan
	Sink              sink.Sink       // optional; nil is fully supported
	// BashPermission, if set, is consulted by the executor ahead of a shell
	// tool's declared policy (the active profile's bash pattern overrides).
	BashPermission func(command string) permission.Action
}

func (c Config) withDefaults() Config {
	if c.MaxTurns <= 0 {
		c.MaxTurns = DefaultMaxTurns
	}
	if c.DelegationTimeout <= 0 {
		c.DelegationTimeout = DefaultDelegationTimeout
	}
	if c.Mode == "" {
		c.Mode = permission.ModeStandard
	}
	return c
}

// Agent is one instance of the ReAct loop, bound to exactly one session.
type Agent struct {
	cfg       Config
	sessionID string
	toolMode  tool.Mode
	sessions  *agentsession.Manager
	window    *memory.Window
	log       *executionlog.Log
	registry  *tool.Registry
	prov      provider.Provider
	gate      *permission.Gate
	exec      *executor.Executor
}

// New creates a parent-mode agent. registry should already be filtered for
// plan mode by the caller, if applicable.
func New(cfg Config, sessionID string, sessions *agentsession.Manager, registry *tool.Registry, prov provider.Provider, gate *permission.Gate) *Agent {
	cfg = cfg.withDefaults()
	w := memory.New(memory.DefaultConfig())
	if cfg.SystemPrompt != "" {
		w.SetSystem(cfg.SystemPrompt)
	}
	if cfg.Sink != nil {
		w.AttachSink(sessionID, cfg.Sink)
	}
	log := executionlog.New(sessionID, "")

	a := &Agent{
		cfg:       cfg,
		sessionID: sessionID,
		toolMode:  tool.ModeParent,
		sessions:  sessions,
		window:    w,
		log:       log,
		registry:  registry,
		prov:      prov,
		gate:      gate,
	}
	if cfg.Mode != permission.ModePlan {
		// sub_agent is write-capable, so plan mode leaves it out.
		a.registerDelegationTool()
	}
	a.exec = executor.New(registry, gate, log, sessions, sessionID, cfg.Mode, tool.ModeParent, cfg.WorkDir, executor.Config{BashPermission: cfg.BashPermission})
	return a
}

// newChild builds a child-mode agent for one delegation call. It does not
// register sub_agent: a child may not itself delegate further.
func newChild(cfg Config, sessionID, parentSessionID string, sessions *agentsession.Manager, registry *tool.Registry, prov provider.Provider, gate *permission.Gate, systemBrief, prompt string) *Agent {
	cfg = cfg.withDefaults()
	w := memory.New(memory.DefaultConfig())
	if cfg.Sink != nil {
		w.AttachSink(sessionID, cfg.Sink)
	}
	w.SetSystem(systemBrief)
	w.Append(message.User(prompt))
	log := executionlog.New(sessionID, parentSessionID)

	childRegistry := tool.FilterForOperationMode(cfg.Mode, registry)

	a := &Agent{
		cfg:       cfg,
		sessionID: sessionID,
		toolMode:  tool.ModeChild,
		sessions:  sessions,
		window:    w,
		log:       log,
		registry:  childRegistry,
		prov:      prov,
		gate:      gate,
	}
	a.exec = executor.New(childRegistry, gate, log, sessions, sessionID, cfg.Mode, tool.ModeChild, cfg.WorkDir, executor.Config{BashPermission: cfg.BashPermission})
	return a
}

// Run drives the ReAct loop to completion: either
// the assistant's final text, the MaxTurnsMarker, or a *RunError on a
// provider/fatal failure.
func (a *Agent) Run(ctx context.Context, userInput string) (string, error) {
	a.window.Append(message.User(userInput))

	turns := 0
	for {
		turns++
		if turns > a.cfg.MaxTurns {
			a.setState(agentsession.StateCompleted)
			return MaxTurnsMarker, nil
		}
		a.setState(agentsession.StateThinking)

		assistantMsg, err := a.think(ctx)
		if err != nil {
			a.setState(agentsession.StateFailed)
			return "", &RunError{Kind: "provider_error", Message: err.Error(), SessionID: a.sessionID}
		}
		a.window.Append(assistantMsg)

		if !assistantMsg.HasToolCalls() {
			a.setState(agentsession.StateCompleted)
			return assistantMsg.Content, nil
		}

		a.setState(agentsession.StateExecutingTools)
		results := a.exec.Run(ctx, assistantMsg.ToolCalls)
		for _, r := range results {
			a.window.Append(r)
		}
	}
}

// think performs one provider round: a streaming completion collected into
// a single assistant message. A failed round is retried with backoff before
// being surfaced to the caller, unless ctx itself was canceled.
func (a *Agent) think(ctx context.Context) (message.Message, error) {
	schemas := a.registry.Schemas(a.toolMode)

	var msg message.Message
	op := func() error {
		stream, err := a.prov.CompleteStreaming(ctx, a.window.Snapshot(), schemas)
		if err != nil {
			return err
		}
		defer stream.Close()

		m, err := provider.CollectStream(ctx, stream)
		if err != nil {
			return err
		}
		msg = m
		return nil
	}

	if err := backoff.Retry(op, newThinkRetryBackoff(ctx)); err != nil {
		return message.Message{}, err
	}
	return msg, nil
}

func (a *Agent) setState(s agentsession.AgentState) {
	if a.sessions == nil {
		return
	}
	_ = a.sessions.UpdateState(a.sessionID, s)
}

// registerDelegationTool wires the sub_agent tool into a's own registry
// (parent-only). It captures a by closure so the handler can spawn children
// sharing this agent's provider and registry.
func (a *Agent) registerDelegationTool() {
	d := newSubAgentDescriptor(a)
	if err := a.registry.Register(d); err != nil && !errors.Is(err, tool.ErrDuplicateName) {
		panic(fmt.Sprintf("agentloop: registering sub_agent: %v", err))
	}
}

func (a *Agent) publish(t eventbus.Type, payload any) {
	if a.sessions == nil {
		return
	}
	a.sessions.Publish(eventbus.Event{Type: t, SessionID: a.sessionID, Payload: payload})
}
