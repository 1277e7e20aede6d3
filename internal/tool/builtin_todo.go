package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/opencode-ai/agentcore/internal/permission"
)

// TodoItem is one entry of a session's sequential task list.
type TodoItem struct {
	Content string `json:"content"`
	Status  string `json:"status"` // pending | in_progress | completed
}

// todoStore is a process-wide, session-keyed list store, kept separate from
// the Execution Log and Memory Window.
type todoStore struct {
	mu    sync.Mutex
	lists map[string][]TodoItem
}

var globalTodos = &todoStore{lists: make(map[string][]TodoItem)}

func (s *todoStore) get(sessionID string) []TodoItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TodoItem, len(s.lists[sessionID]))
	copy(out, s.lists[sessionID])
	return out
}

func (s *todoStore) set(sessionID string, items []TodoItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lists[sessionID] = items
}

// NewTodoReadDescriptor reads the current session's todo list. It is
// excluded from child mode, filtered alongside sub_agent since a delegated
// child has no business touching its parent's task list.
func NewTodoReadDescriptor() *Descriptor {
	schema := json.RawMessage(`{"type": "object", "properties": {}}`)
	return &Descriptor{
		Name:            "todo_read",
		Description:     "Read the current task list for this session.",
		ParameterSchema: schema,
		Permission:      permission.ActionAuto,
		Capability:      permission.CapRead,
		AllowedModes:    []Mode{ModeParent},
		Handler: func(_ context.Context, toolCtx *Context, _ json.RawMessage) (string, error) {
			items := globalTodos.get(toolCtx.SessionID)
			if len(items) == 0 {
				return "(empty)", nil
			}
			var sb strings.Builder
			for _, it := range items {
				fmt.Fprintf(&sb, "[%s] %s\n", it.Status, it.Content)
			}
			return sb.String(), nil
		},
	}
}

// NewTodoWriteDescriptor replaces the current session's todo list.
func NewTodoWriteDescriptor() *Descriptor {
	schema := json.RawMessage(`{
		"type": "object",
		"properties": {
			"items": {
				"type": "array",
				"items": {
					"type": "object",
					"properties": {
						"content": {"type": "string"},
						"status": {"type": "string", "enum": ["pending", "in_progress", "completed"]}
					},
					"required": ["content", "status"]
				}
			}
		},
		"required": ["items"]
	}`)

	return &Descriptor{
		Name:            "todo_write",
		Description:     "Replace the task list for this session.",
		ParameterSchema: schema,
		Permission:      permission.ActionAuto,
		Capability:      permission.CapWrite,
		AllowedModes:    []Mode{ModeParent},
		Handler: func(_ context.Context, toolCtx *Context, args json.RawMessage) (string, error) {
			var in struct {
				Items []TodoItem `json:"items"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return "", fmt.Errorf("invalid arguments: %w", err)
			}
			globalTodos.set(toolCtx.SessionID, in.Items)
			return fmt.Sprintf("saved %d items", len(in.Items)), nil
		},
	}
}

// DefaultRegistry builds a registry with the built-in tool catalog
// (read/write/edit/bash/grep/glob/todo). sub_agent is registered separately
// by the agent loop once a delegator is available.
func DefaultRegistry(workDir string) *Registry {
	r := NewRegistry()
	descriptors := []*Descriptor{
		NewReadFileDescriptor(workDir),
		NewWriteFileDescriptor(workDir),
		NewEditFileDescriptor(workDir),
		NewBashDescriptor(workDir),
		NewGlobDescriptor(workDir),
		NewGrepDescriptor(workDir),
		NewTodoReadDescriptor(),
		NewTodoWriteDescriptor(),
	}
	for _, d := range descriptors {
		if err := r.Register(d); err != nil {
			panic(fmt.Sprintf("tool: default registry: %v", err))
		}
	}
	return r
}
