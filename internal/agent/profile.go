// Package agent provides named, reusable agent configurations — which
// tools are enabled, what bash commands are pre-approved, which operation
// mode applies — and wires one up into a runnable agentloop.Agent. It is
// the top-level assembly point for the Tool Registry, the permission gate,
// and the Agent Loop.
package agent

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/opencode-ai/agentcore/internal/agentloop"
	"github.com/opencode-ai/agentcore/internal/agentsession"
	"github.com/opencode-ai/agentcore/internal/permission"
	"github.com/opencode-ai/agentcore/internal/provider"
	"github.com/opencode-ai/agentcore/internal/sink"
	"github.com/opencode-ai/agentcore/internal/tool"
)

// Profile names a reusable agent configuration: a system prompt, an
// operation mode, and the tool/bash permission overrides layered on top of
// the mode's defaults.
type Profile struct {
	Name         string
	Description  string
	SystemPrompt string
	Mode         permission.Mode
	// Tools maps a tool name or wildcard pattern to enabled/disabled; an
	// exact match wins over a wildcard, and an unmatched name defaults to
	// enabled (teacher's ToolEnabled).
	Tools map[string]bool
	// BashPatterns maps a command wildcard to a permission override,
	// checked before the tool's own declared policy (teacher's
	// CheckBashPermission).
	BashPatterns map[string]permission.Action
}

// ToolEnabled reports whether name is enabled under this profile.
func (p *Profile) ToolEnabled(name string) bool {
	if enabled, ok := p.Tools[name]; ok {
		return enabled
	}
	for pattern, enabled := range p.Tools {
		if matchWildcard(pattern, name) {
			return enabled
		}
	}
	return true
}

// CheckBashPermission returns a profile-level override for a shell
// command: an exact pattern wins, then any other matching wildcard, then a
// catch-all "*"; ActionAsk if no pattern matches (teacher default).
func (p *Profile) CheckBashPermission(command string) permission.Action {
	if action, ok := p.BashPatterns[command]; ok {
		return action
	}
	for pattern, action := range p.BashPatterns {
		if pattern != "*" && matchWildcard(pattern, command) {
			return action
		}
	}
	if action, ok := p.BashPatterns["*"]; ok {
		return action
	}
	return permission.ActionAsk
}

func matchWildcard(pattern, s string) bool {
	if pattern == "*" {
		return true
	}
	if strings.Contains(pattern, "**") {
		matched, _ := doublestar.Match(pattern, s)
		return matched
	}
	if strings.HasSuffix(pattern, "*") && !strings.HasPrefix(pattern, "*") {
		return strings.HasPrefix(s, strings.TrimSuffix(pattern, "*"))
	}
	if strings.HasPrefix(pattern, "*") && !strings.HasSuffix(pattern, "*") {
		return strings.HasSuffix(s, strings.TrimPrefix(pattern, "*"))
	}
	if strings.Contains(pattern, "*") {
		matched, _ := doublestar.Match(pattern, s)
		return matched
	}
	return pattern == s
}

// BuiltInProfiles returns the default profile catalog: a primary "build"
// profile with the full tool catalog, a "plan" profile restricted to
// read-only exploration (its Mode does the actual hard filtering), and an
// "explore" subagent profile with an even narrower read-only set.
func BuiltInProfiles() map[string]*Profile {
	return map[string]*Profile{
		"build": {
			Name:        "build",
			Description: "Primary agent for executing tasks and making changes",
			Mode:        permission.ModeStandard,
			Tools:       map[string]bool{"*": true},
		},
		"plan": {
			Name:        "plan",
			Description: "Planning agent for analysis and exploration without making changes",
			Mode:        permission.ModePlan,
			Tools:       map[string]bool{"*": true},
			BashPatterns: map[string]permission.Action{
				"git status": permission.ActionAuto,
				"git diff*":  permission.ActionAuto,
				"git log*":   permission.ActionAuto,
				"*":          permission.ActionDeny,
			},
		},
		"explore": {
			Name:        "explore",
			Description: "Restricted subagent specialized for read-only codebase exploration",
			Mode:        permission.ModePlan,
			Tools: map[string]bool{
				"read_file": true,
				"glob":      true,
				"grep":      true,
				"*":         false,
			},
		},
	}
}

// Builder assembles a runnable agentloop.Agent from a Profile.
type Builder struct {
	WorkDir  string
	Sessions *agentsession.Manager
	Provider provider.Provider
	Gate     *permission.Gate
	Sink     sink.Sink
}

// Build constructs a registry filtered by the profile's tool enablement,
// creates a root session, and returns a ready-to-run agentloop.Agent.
func (b *Builder) Build(p *Profile) (*agentloop.Agent, *agentsession.Session, error) {
	session, err := b.Sessions.Create("")
	if err != nil {
		return nil, nil, err
	}

	registry := tool.NewRegistry()
	full := tool.DefaultRegistry(b.WorkDir)
	for _, name := range full.Names() {
		if !p.ToolEnabled(name) {
			continue
		}
		d, err := full.Resolve(name)
		if err != nil {
			continue
		}
		cp := *d
		_ = registry.Register(&cp)
	}

	cfg := agentloop.Config{
		SystemPrompt:   p.SystemPrompt,
		WorkDir:        b.WorkDir,
		Mode:           p.Mode,
		Sink:           b.Sink,
		BashPermission: p.CheckBashPermission,
	}
	registry = tool.FilterForOperationMode(p.Mode, registry)

	a := agentloop.New(cfg, session.ID, b.Sessions, registry, b.Provider, b.Gate)
	return a, session, nil
}
