// Package executor implements the Tool Executor: it turns one
// assistant turn's ordered ToolCalls into an ordered list of tool-role
// result Messages, running the batch concurrently while honouring each
// tool's declared mutual-exclusion key, permission policy, and timeout.
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/opencode-ai/agentcore/internal/agentsession"
	"github.com/opencode-ai/agentcore/internal/eventbus"
	"github.com/opencode-ai/agentcore/internal/executionlog"
	"github.com/opencode-ai/agentcore/internal/message"
	"github.com/opencode-ai/agentcore/internal/permission"
	"github.com/opencode-ai/agentcore/internal/tool"
)

// DefaultTimeout is the per-call handler timeout.
const DefaultTimeout = 120 * time.Second

// DefaultCancelGrace is how long an in-flight handler is given to return
// once the run has been cancelled, before its result is discarded.
const DefaultCancelGrace = 5 * time.Second

// Config tunes executor behavior; zero values fall back to the package
// defaults.
type Config struct {
	DefaultTimeout time.Duration
	CancelGrace    time.Duration
	// BashPermission, if set, overrides a shell-capable tool's declared
	// policy by matching its command against the active profile's bash
	// patterns ahead of Effective. Nil skips the override entirely.
	BashPermission func(command string) permission.Action
}

func (c Config) withDefaults() Config {
	if c.DefaultTimeout <= 0 {
		c.DefaultTimeout = DefaultTimeout
	}
	if c.CancelGrace <= 0 {
		c.CancelGrace = DefaultCancelGrace
	}
	return c
}

// Executor dispatches one batch of tool calls for a single agent instance.
type Executor struct {
	registry  *tool.Registry
	gate      *permission.Gate
	log       *executionlog.Log
	sessions  *agentsession.Manager
	sessionID string
	mode      permission.Mode
	toolMode  tool.Mode
	workDir   string
	cfg       Config
}

// New creates an executor bound to one agent instance's registry view,
// permission gate, execution log, and session.
func New(registry *tool.Registry, gate *permission.Gate, log *executionlog.Log, sessions *agentsession.Manager, sessionID string, opMode permission.Mode, toolMode tool.Mode, workDir string, cfg Config) *Executor {
	return &Executor{
		registry:  registry,
		gate:      gate,
		log:       log,
		sessions:  sessions,
		sessionID: sessionID,
		mode:      opMode,
		toolMode:  toolMode,
		workDir:   workDir,
		cfg:       cfg.withDefaults(),
	}
}

// Run executes every call in calls concurrently (one goroutine per call),
// serializing calls that share a non-empty mutual-exclusion key against
// each other, and returns their tool-role results in the original call
// order.
func (ex *Executor) Run(ctx context.Context, calls []message.ToolCall) []message.Message {
	results := make([]message.Message, len(calls))
	if len(calls) == 0 {
		return results
	}

	locks := make(map[string]*sync.Mutex)
	for _, c := range calls {
		d, err := ex.registry.Resolve(c.Name)
		if err != nil || d.MutualExclusion == "" {
			continue
		}
		if _, ok := locks[d.MutualExclusion]; !ok {
			locks[d.MutualExclusion] = &sync.Mutex{}
		}
	}

	var g errgroup.Group
	for i, call := range calls {
		i, call := i, call
		g.Go(func() error {
			results[i] = ex.runOne(ctx, call, locks)
			return nil
		})
	}
	_ = g.Wait() // runOne never returns an error; failures are encoded as tool-role messages
	return results
}

// runOne executes a single call through the full resolve/validate/gate/invoke
// pipeline.
func (ex *Executor) runOne(ctx context.Context, call message.ToolCall, locks map[string]*sync.Mutex) message.Message {
	// Step 1: resolve. A tool not allowed in this executor's mode (e.g.
	// sub_agent/todo resolved by a child) is treated identically to an
	// unknown name.
	d, err := ex.registry.Resolve(call.Name)
	if err != nil || !d.AllowedIn(ex.toolMode) {
		ex.recordFailure(call.Name, "unknown tool")
		return message.Tool(call.ID, fmt.Sprintf("Error: Unknown tool '%s'", call.Name))
	}

	// Step 2: parse arguments.
	var decoded any
	if err := json.Unmarshal(call.Arguments, &decoded); err != nil {
		ex.recordFailure(d.Name, "invalid arguments")
		return message.Tool(call.ID, fmt.Sprintf("Error: invalid arguments: %v", err))
	}

	// Step 3: schema validation.
	if err := d.ValidateArgs(decoded); err != nil {
		ex.recordFailure(d.Name, "schema validation failed")
		return message.Tool(call.ID, fmt.Sprintf("Error: invalid arguments: %v", err))
	}

	// Step 4: permission gate. The profile's bash patterns take precedence
	// over the tool's declared policy for shell-capable tools, then
	// doom-loop detection is folded in ahead of whatever remains.
	action := permission.Effective(ex.mode, d.Permission, d.Capability)
	if ex.cfg.BashPermission != nil && d.Capability == permission.CapShell {
		if cmd, ok := bashCommand(decoded); ok {
			action = ex.cfg.BashPermission(cmd)
		}
	}
	if ex.gate.CheckDoomLoop(ex.sessionID, d.Name, call.Arguments) && action == permission.ActionAuto {
		action = permission.ActionAsk
	}
	if err := ex.gate.Check(ctx, ex.sessionID, d.Name, call.Arguments, action); err != nil {
		ex.recordFailure(d.Name, err.Error())
		text := err.Error()
		var rej *permission.RejectedError
		if errors.As(err, &rej) {
			text = rej.Reason
		}
		return message.Tool(call.ID, text)
	}

	ex.publish(eventbus.ToolCallStarted, map[string]string{"call_id": call.ID, "tool": d.Name})
	start := time.Now()

	// Mutual exclusion: acquire this batch's lock for the tool's key, if any.
	if lock, ok := locks[d.MutualExclusion]; ok && d.MutualExclusion != "" {
		lock.Lock()
		defer lock.Unlock()
	}

	text, err := ex.invoke(ctx, d, call)
	duration := time.Since(start)

	entry := executionlog.ToolExecution{
		Name:        d.Name,
		StartedAt:   start,
		Duration:    duration,
		OK:          err == nil,
		ResultBytes: len(text),
	}
	annotateFileTouch(&entry, d.Name, decoded)
	if err != nil {
		entry.ErrorCat = classifyToolError(err)
	}
	ex.log.Record(entry)
	ex.publish(eventbus.ToolCallFinished, map[string]any{"call_id": call.ID, "tool": d.Name, "ok": err == nil})

	if err != nil {
		return message.Tool(call.ID, err.Error())
	}
	return message.Tool(call.ID, text)
}

// invoke runs the handler under a per-call timeout. The timeout firing
// reports deterministically, with no grace period; only when the parent
// context is cancelled out from under the call does the handler get
// CancelGrace to return its own result before it's abandoned.
func (ex *Executor) invoke(ctx context.Context, d *tool.Descriptor, call message.ToolCall) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, ex.cfg.DefaultTimeout)
	defer cancel()

	toolCtx := &tool.Context{
		SessionID: ex.sessionID,
		CallID:    call.ID,
		WorkDir:   ex.workDir,
		AbortCh:   callCtx.Done(),
	}

	type outcome struct {
		text string
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		text, err := d.Handler(callCtx, toolCtx, call.Arguments)
		done <- outcome{text, err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			return "", fmt.Errorf("Error: %s: %s", d.Name, o.err.Error())
		}
		return o.text, nil
	case <-callCtx.Done():
		if callCtx.Err() == context.DeadlineExceeded {
			// The per-call deadline is a deterministic contract: report the
			// timeout immediately rather than racing the handler's own
			// cancellation response against a grace window.
			return "", fmt.Errorf("Error: tool timed out after %.0fs", ex.cfg.DefaultTimeout.Seconds())
		}
		// Parent cancellation: give the handler CancelGrace to honor it.
		grace := time.NewTimer(ex.cfg.CancelGrace)
		defer grace.Stop()
		select {
		case o := <-done:
			if o.err != nil {
				return "", fmt.Errorf("Error: %s: %s", d.Name, o.err.Error())
			}
			return o.text, nil
		case <-grace.C:
			return "", fmt.Errorf("Error: cancelled")
		}
	}
}

// bashCommand extracts a shell tool's "command" argument, if present.
func bashCommand(decoded any) (string, bool) {
	m, ok := decoded.(map[string]any)
	if !ok {
		return "", false
	}
	cmd, ok := m["command"].(string)
	return cmd, ok
}

func (ex *Executor) recordFailure(name, reason string) {
	ex.log.Record(executionlog.ToolExecution{
		Name:      name,
		StartedAt: time.Now(),
		OK:        false,
		ErrorCat:  reason,
	})
}

func (ex *Executor) publish(t eventbus.Type, payload any) {
	if ex.sessions == nil {
		return
	}
	ex.sessions.Publish(eventbus.Event{Type: t, SessionID: ex.sessionID, Payload: payload})
}

// annotateFileTouch records which path a read/write/edit tool touched, for
// the Execution Log's deduplicated files groups.
func annotateFileTouch(e *executionlog.ToolExecution, toolName string, args any) {
	m, ok := args.(map[string]any)
	if !ok {
		return
	}
	path, _ := m["path"].(string)
	if path == "" {
		return
	}
	switch toolName {
	case "read_file":
		e.FileRead = path
	case "write_file":
		e.FileWritten = path
	case "edit_file":
		e.FileEdited = path
	}
}

// classifyToolError returns a handler failure's full error text as the
// entry's error category; the agent loop's delegation path maps recorded
// failures onto the child report's TIMEOUT/TOOL_ERROR/... vocabulary.
func classifyToolError(err error) string {
	return err.Error()
}
