// Package agentsession implements the Session Manager: it
// tracks the parent/child hierarchy of live agent sessions and publishes
// their lifecycle on an event bus that renderers subscribe to.
package agentsession

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/opencode-ai/agentcore/internal/eventbus"
)

// Mode is a session's position in the parent/child hierarchy.
type Mode string

const (
	ModeParent Mode = "parent"
	ModeChild  Mode = "child"
)

// AgentState is one of the ReAct loop's states.
type AgentState string

const (
	StateIdle           AgentState = "idle"
	StateThinking       AgentState = "thinking"
	StateExecutingTools AgentState = "executing_tools"
	StateWaitingChild   AgentState = "waiting_for_child"
	StateCompleted      AgentState = "completed"
	StateFailed         AgentState = "failed"
)

// Session is the Manager's record of one live agent instance. ParentID is immutable once set; State is mutated exclusively
// through Manager.UpdateState.
type Session struct {
	ID        string
	ParentID  string // empty for a root/parent session
	Mode      Mode
	CreatedAt time.Time
	UpdatedAt time.Time
	State     AgentState
}

// Manager owns the registry of live sessions and the
// bus those sessions' lifecycle events are published on. It is the sole
// mutator of the session map; renderers and agents only ever read through
// Get/Children, which return copies.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	children map[string][]string // parentID -> childID list, insertion order
	bus      *eventbus.Bus
}

// New creates a session manager backed by its own event bus.
func New() *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		children: make(map[string][]string),
		bus:      eventbus.New(eventbus.DefaultQueueSize),
	}
}

// Create allocates a new session. parentID empty means a root (parent-mode)
// session; a non-empty parentID creates a child session. A child of a child
// is rejected here as defence-in-depth — the registry's mode filter is the
// structural guarantee.
func (m *Manager) Create(parentID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	mode := ModeParent
	if parentID != "" {
		parent, ok := m.sessions[parentID]
		if !ok {
			return nil, fmt.Errorf("agentsession: unknown parent %q", parentID)
		}
		if parent.Mode == ModeChild {
			return nil, fmt.Errorf("agentsession: parent %q is itself a child; nesting beyond one level is forbidden", parentID)
		}
		mode = ModeChild
	}

	now := time.Now()
	s := &Session{
		ID:        uuid.NewString(),
		ParentID:  parentID,
		Mode:      mode,
		CreatedAt: now,
		UpdatedAt: now,
		State:     StateIdle,
	}
	m.sessions[s.ID] = s
	if parentID != "" {
		m.children[parentID] = append(m.children[parentID], s.ID)
	}

	cp := *s
	m.bus.Publish(eventbus.Event{Type: eventbus.StateChanged, SessionID: s.ID, Payload: cp})
	return s, nil
}

// Get returns a copy of the session, or false if it does not exist (or has
// been released).
func (m *Manager) Get(id string) (Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// UpdateState transitions a session's state and broadcasts the change. The
// agent loop is the only caller.
func (m *Manager) UpdateState(id string, state AgentState) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("agentsession: unknown session %q", id)
	}
	s.State = state
	s.UpdatedAt = time.Now()
	cp := *s
	m.mu.Unlock()

	m.bus.Publish(eventbus.Event{Type: eventbus.StateChanged, SessionID: id, Payload: cp})
	return nil
}

// Children returns copies of a session's direct children in creation order.
func (m *Manager) Children(id string) []Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := m.children[id]
	out := make([]Session, 0, len(ids))
	for _, cid := range ids {
		if s, ok := m.sessions[cid]; ok {
			out = append(out, *s)
		}
	}
	return out
}

// Release removes a session from the registry once its instance has been
// torn down.
func (m *Manager) Release(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

// Publish emits an arbitrary event through the manager's bus (used by the
// agent loop and tool executor for tool_call_started/finished, delegation
// events, assistant_text, and user_input).
func (m *Manager) Publish(ev eventbus.Event) {
	m.bus.Publish(ev)
}

// Subscribe registers a handler for every event published through this
// manager's bus. Returns an unsubscribe function.
func (m *Manager) Subscribe(handler func(eventbus.Event)) func() {
	sub := m.bus.Subscribe(handler)
	return func() { m.bus.Unsubscribe(sub) }
}
