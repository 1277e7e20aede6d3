package agentsession

import (
	"testing"
	"time"

	"github.com/opencode-ai/agentcore/internal/eventbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateRootSessionHasNoParentAndIdleState(t *testing.T) {
	m := New()
	s, err := m.Create("")
	require.NoError(t, err)
	assert.Empty(t, s.ParentID)
	assert.Equal(t, ModeParent, s.Mode)
	assert.Equal(t, StateIdle, s.State)
}

func TestCreateChildLinksToParent(t *testing.T) {
	m := New()
	parent, err := m.Create("")
	require.NoError(t, err)

	child, err := m.Create(parent.ID)
	require.NoError(t, err)
	assert.Equal(t, parent.ID, child.ParentID)
	assert.Equal(t, ModeChild, child.Mode)

	kids := m.Children(parent.ID)
	require.Len(t, kids, 1)
	assert.Equal(t, child.ID, kids[0].ID)
}

func TestCreateChildOfChildIsRejected(t *testing.T) {
	m := New()
	parent, err := m.Create("")
	require.NoError(t, err)
	child, err := m.Create(parent.ID)
	require.NoError(t, err)

	_, err = m.Create(child.ID)
	assert.Error(t, err)
}

func TestCreateUnknownParentIsRejected(t *testing.T) {
	m := New()
	_, err := m.Create("does-not-exist")
	assert.Error(t, err)
}

func TestUpdateStatePublishesEvent(t *testing.T) {
	m := New()
	s, err := m.Create("")
	require.NoError(t, err)

	got := make(chan eventbus.Event, 8)
	unsub := m.Subscribe(func(ev eventbus.Event) { got <- ev })
	defer unsub()

	require.NoError(t, m.UpdateState(s.ID, StateThinking))

	select {
	case ev := <-got:
		assert.Equal(t, eventbus.StateChanged, ev.Type)
		assert.Equal(t, s.ID, ev.SessionID)
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}

	updated, ok := m.Get(s.ID)
	require.True(t, ok)
	assert.Equal(t, StateThinking, updated.State)
}

func TestUpdateStateUnknownSessionErrors(t *testing.T) {
	m := New()
	err := m.UpdateState("missing", StateThinking)
	assert.Error(t, err)
}

func TestReleaseRemovesSession(t *testing.T) {
	m := New()
	s, err := m.Create("")
	require.NoError(t, err)
	m.Release(s.ID)
	_, ok := m.Get(s.ID)
	assert.False(t, ok)
}

func TestGetReturnsCopyNotLiveReference(t *testing.T) {
	m := New()
	s, err := m.Create("")
	require.NoError(t, err)

	got, ok := m.Get(s.ID)
	require.True(t, ok)
	got.State = StateFailed

	again, ok := m.Get(s.ID)
	require.True(t, ok)
	assert.Equal(t, StateIdle, again.State)
}
