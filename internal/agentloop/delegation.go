package agentloop

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/opencode-ai/agentcore/internal/agentsession"
	"github.com/opencode-ai/agentcore/internal/eventbus"
	"github.com/opencode-ai/agentcore/internal/executionlog"
	"github.com/opencode-ai/agentcore/internal/permission"
	"github.com/opencode-ai/agentcore/internal/tool"
)

// childSystemBrief is the system message seeded into every delegated child
// agent's memory window.
const childSystemBrief = "You are a sub-agent. Execute the given task autonomously and return a concise final answer. You have no access to sub_agent or todo tools."

// newSubAgentDescriptor builds the sub_agent tool bound to parent agent a.
// It is write-capable for permission purposes since a delegated child may
// perform file writes or run shell commands on the parent's behalf, so plan
// mode's hard filter (write/shell removal) also removes sub_agent.
func newSubAgentDescriptor(a *Agent) *tool.Descriptor {
	schema := json.RawMessage(`{
		"type": "object",
		"properties": {
			"prompt": {"type": "string"},
			"timeout": {"type": "number"}
		},
		"required": ["prompt"]
	}`)

	return &tool.Descriptor{
		Name:            "sub_agent",
		Description:     "Delegate an autonomous sub-task to a child agent and receive a structured report of its work.",
		ParameterSchema: schema,
		Permission:      permission.ActionAsk,
		Capability:      permission.CapWrite,
		AllowedModes:    []tool.Mode{tool.ModeParent},
		Handler: func(ctx context.Context, _ *tool.Context, args json.RawMessage) (string, error) {
			var in struct {
				Prompt  string  `json:"prompt"`
				Timeout float64 `json:"timeout"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return "", fmt.Errorf("invalid arguments: %w", err)
			}
			timeout := a.cfg.DelegationTimeout
			if in.Timeout > 0 {
				timeout = time.Duration(in.Timeout * float64(time.Second))
			}
			return a.delegate(ctx, in.Prompt, timeout)
		},
	}
}

// delegate spawns a child session, runs it to completion or timeout, and
// renders its outcome into the structured report handed back to the parent.
func (a *Agent) delegate(ctx context.Context, prompt string, timeout time.Duration) (string, error) {
	childSession, err := a.sessions.Create(a.sessionID)
	if err != nil {
		return "", fmt.Errorf("sub_agent: %w", err)
	}
	defer a.sessions.Release(childSession.ID)

	child := newChild(a.cfg, childSession.ID, a.sessionID, a.sessions, a.registry, a.prov, a.gate, childSystemBrief, prompt)

	a.publish(eventbus.DelegationStarted, map[string]string{"child_session_id": childSession.ID})
	a.setState(agentsession.StateWaitingChild)
	defer a.setState(agentsession.StateExecutingTools)

	childCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		text string
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		text, err := child.Run(childCtx, prompt)
		done <- outcome{text, err}
	}()

	var report string
	select {
	case o := <-done:
		if o.err != nil {
			child.log.Finish(executionlog.StatusFailed)
			cat, blockedOn := categorizeFailure(o.err.Error(), child.log.Entries())
			rep := executionlogBuildReport(child.log, executionlog.StatusFailed, cat, blockedOn, "")
			report = rep.Render(child.log)
		} else {
			child.log.Finish(executionlog.StatusCompleted)
			rep := executionlogBuildReport(child.log, executionlog.StatusCompleted, executionlog.CategoryNone, "", o.text)
			report = rep.Render(child.log)
		}
	case <-childCtx.Done():
		cancel()
		child.log.Finish(executionlog.StatusPartial)
		rep := executionlogBuildReport(child.log, executionlog.StatusPartial, executionlog.CategoryTimeout,
			fmt.Sprintf("child did not finish within %s", timeout), "(no final answer: timed out)")
		report = rep.Render(child.log)
	}

	a.publish(eventbus.DelegationEnded, map[string]string{"child_session_id": childSession.ID})
	return report, nil
}

// categorizeFailure chooses a failure category by a pure function of the
// termination cause and the child's recorded tool executions.
func categorizeFailure(cause string, entries []executionlog.ToolExecution) (executionlog.Category, string) {
	switch {
	case cause == context.DeadlineExceeded.Error():
		return executionlog.CategoryTimeout, "child exceeded its delegation timeout"
	case len(entries) == 0:
		return executionlog.CategoryInvalidTask, "child never attempted a tool call; the task was likely unclear or missing required context"
	}

	failed := 0
	var lastErr string
	for _, e := range entries {
		if !e.OK {
			failed++
			lastErr = e.ErrorCat
		}
	}
	switch {
	case failed == 0:
		return executionlog.CategoryPartialSuccess, "child made progress but did not return a final answer: " + cause
	case failed == len(entries):
		return executionlog.CategoryToolError, "every tool call the child made failed: " + lastErr
	default:
		return executionlog.CategoryMissingContext, "some tool calls failed, suggesting the child lacked context: " + lastErr
	}
}

// executionlogBuildReport is a thin indirection so the report's default
// suggested-actions list is always attached.
func executionlogBuildReport(l *executionlog.Log, status executionlog.Status, cat executionlog.Category, blockedOn, finalText string) executionlog.Report {
	return executionlog.BuildReport(l, status, cat, blockedOn, executionlog.SuggestedActionsFor(cat), finalText)
}
