// Package permission implements the Tool Executor's permission gate and the process-wide Operation Mode that promotes
// or hard-filters tool capability.
package permission

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
)

// Action is the effective permission decision for a tool invocation.
type Action string

const (
	ActionAuto Action = "auto"
	ActionAsk  Action = "ask"
	ActionDeny Action = "deny"
)

// Mode is the process-wide operation mode.
type Mode string

const (
	ModeStandard Mode = "standard"
	ModeSafe     Mode = "safe"
	ModePlan     Mode = "plan"
)

// Capability is a coarse classification of what a tool can do, used to
// decide what "safe" promotes and what "plan" filters.
type Capability int

const (
	CapRead Capability = iota
	CapWrite
	CapShell
)

// Effective returns the permission action a tool with the given declared
// policy and capability should use under mode. In safe mode every
// write-capable tool is promoted to ask; standard mode uses the declared
// policy unchanged; plan mode's hard filtering happens earlier, at schema
// construction (see the tool registry), so by the time Effective is
// consulted a plan-mode agent never holds a write/shell tool to ask about.
func Effective(mode Mode, declared Action, cap Capability) Action {
	if mode == ModeSafe && cap != CapRead && declared != ActionDeny {
		return ActionAsk
	}
	return declared
}

// RejectedError is returned when a tool call is denied or the user rejects
// an ask prompt.
type RejectedError struct {
	ToolName string
	Reason   string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("permission: %s: %s", e.ToolName, e.Reason)
}

// Decision is the callback contract the renderer implements to answer an
// `ask` permission gate. It must not block indefinitely; ctx cancellation aborts the ask.
type Decision func(ctx context.Context, toolName string, args json.RawMessage) (allow bool, rememberPattern string)

// Gate evaluates permission decisions, remembering previously-approved
// patterns per session id so repeat asks for the same shape of call in that
// session auto-approve. One Gate may serve several sessions.
type Gate struct {
	mu       sync.Mutex
	approved map[string]map[string]bool // sessionID -> remembered wildcard patterns
	decide   Decision
	doomLoop *DoomLoopDetector
}

// NewGate creates a permission gate. decide may be nil, in which case every
// `ask` is treated as a deny (a renderer must be wired for ask-gated tools
// to ever proceed).
func NewGate(decide Decision) *Gate {
	return &Gate{
		approved: make(map[string]map[string]bool),
		decide:   decide,
		doomLoop: newDoomLoopDetector(),
	}
}

// Check applies the permission gate for one tool call.
// A nil error means proceed; a non-nil error is always a *RejectedError
// whose Reason is the exact in-band text the executor places in the tool
// result ("Tool call denied by user" / "Tool call blocked by policy").
func (g *Gate) Check(ctx context.Context, sessionID, toolName string, args json.RawMessage, action Action) error {
	switch action {
	case ActionAuto:
		return nil
	case ActionDeny:
		return &RejectedError{ToolName: toolName, Reason: "Tool call blocked by policy"}
	case ActionAsk:
		return g.ask(ctx, sessionID, toolName, args)
	default:
		return &RejectedError{ToolName: toolName, Reason: "Tool call blocked by policy"}
	}
}

func (g *Gate) ask(ctx context.Context, sessionID, toolName string, args json.RawMessage) error {
	pattern := callPattern(toolName, args)

	g.mu.Lock()
	for remembered := range g.approved[sessionID] {
		if MatchPattern(remembered, pattern) {
			g.mu.Unlock()
			return nil
		}
	}
	g.mu.Unlock()

	if g.decide == nil {
		return &RejectedError{ToolName: toolName, Reason: "Tool call denied by user"}
	}

	allow, remember := g.decide(ctx, toolName, args)
	if !allow {
		return &RejectedError{ToolName: toolName, Reason: "Tool call denied by user"}
	}
	if remember != "" {
		g.mu.Lock()
		if g.approved[sessionID] == nil {
			g.approved[sessionID] = make(map[string]bool)
		}
		g.approved[sessionID][remember] = true
		g.mu.Unlock()
	}
	return nil
}

// CheckDoomLoop folds doom-loop detection in as an additional gate consulted
// before the declared tool permission: three identical consecutive calls in
// a row escalate to a mandatory ask regardless of the tool's declared
// policy.
func (g *Gate) CheckDoomLoop(sessionID, toolName string, args json.RawMessage) bool {
	return g.doomLoop.Check(sessionID, toolName, args)
}

// ResetDoomLoop clears the doom-loop history for a session (called once an
// agent instance is released).
func (g *Gate) ResetDoomLoop(sessionID string) {
	g.doomLoop.Clear(sessionID)
}

// callPattern builds a coarse approval-memory key for a call: the tool
// name plus, for string-shaped args, a wildcard-compatible pattern.
func callPattern(toolName string, args json.RawMessage) string {
	var decoded map[string]any
	if err := json.Unmarshal(args, &decoded); err != nil {
		return toolName
	}
	if cmd, ok := decoded["command"].(string); ok {
		fields := strings.Fields(cmd)
		if len(fields) > 0 {
			return toolName + ":" + fields[0] + " *"
		}
	}
	return toolName
}

// MatchPattern reports whether a remembered wildcard pattern matches a
// concrete call pattern, using doublestar for `**`/`*` semantics.
func MatchPattern(pattern, value string) bool {
	if pattern == "*" {
		return true
	}
	matched, _ := doublestar.Match(pattern, value)
	return matched
}

// DoomLoopDetector flags a tool call as a repeat loop when the same tool
// and arguments occur DoomLoopThreshold times in a row for one session.
type DoomLoopDetector struct {
	mu      sync.Mutex
	history map[string][]string
}

// DoomLoopThreshold is the number of identical consecutive calls that
// trigger the loop gate.
const DoomLoopThreshold = 3

func newDoomLoopDetector() *DoomLoopDetector {
	return &DoomLoopDetector{history: make(map[string][]string)}
}

func (d *DoomLoopDetector) Check(sessionID, toolName string, args json.RawMessage) bool {
	hash := hashCall(toolName, args)

	d.mu.Lock()
	defer d.mu.Unlock()

	hist := d.history[sessionID]
	loop := false
	if len(hist) >= DoomLoopThreshold-1 {
		allSame := true
		start := len(hist) - (DoomLoopThreshold - 1)
		for i := start; i < len(hist); i++ {
			if hist[i] != hash {
				allSame = false
				break
			}
		}
		loop = allSame
	}

	hist = append(hist, hash)
	if len(hist) > 10 {
		hist = hist[len(hist)-10:]
	}
	d.history[sessionID] = hist
	return loop
}

func (d *DoomLoopDetector) Clear(sessionID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.history, sessionID)
}

func hashCall(toolName string, args json.RawMessage) string {
	h := sha256.New()
	h.Write([]byte(toolName))
	h.Write(args)
	return hex.EncodeToString(h.Sum(nil))
}
