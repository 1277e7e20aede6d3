package tool

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTodoReadEmptyListReportsEmpty(t *testing.T) {
	d := NewTodoReadDescriptor()
	out, err := d.Handler(context.Background(), &Context{SessionID: "todo-empty"}, json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.Equal(t, "(empty)", out)
}

func TestTodoWriteThenReadRoundTrips(t *testing.T) {
	session := "todo-roundtrip"
	writeD := NewTodoWriteDescriptor()
	_, err := writeD.Handler(context.Background(), &Context{SessionID: session}, json.RawMessage(`{"items":[{"content":"write tests","status":"in_progress"}]}`))
	require.NoError(t, err)

	readD := NewTodoReadDescriptor()
	out, err := readD.Handler(context.Background(), &Context{SessionID: session}, json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.Equal(t, "[in_progress] write tests\n", out)
}

func TestTodoListsAreScopedPerSession(t *testing.T) {
	writeD := NewTodoWriteDescriptor()
	_, err := writeD.Handler(context.Background(), &Context{SessionID: "todo-session-a"}, json.RawMessage(`{"items":[{"content":"a","status":"pending"}]}`))
	require.NoError(t, err)

	readD := NewTodoReadDescriptor()
	out, err := readD.Handler(context.Background(), &Context{SessionID: "todo-session-b"}, json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.Equal(t, "(empty)", out)
}

func TestTodoReadAndWriteAllowedOnlyInParentMode(t *testing.T) {
	assert.True(t, NewTodoReadDescriptor().AllowedIn(ModeParent))
	assert.False(t, NewTodoReadDescriptor().AllowedIn(ModeChild))
	assert.True(t, NewTodoWriteDescriptor().AllowedIn(ModeParent))
	assert.False(t, NewTodoWriteDescriptor().AllowedIn(ModeChild))
}

func TestDefaultRegistryRegistersFullCatalog(t *testing.T) {
	r := DefaultRegistry(t.TempDir())
	names := r.Names()
	for _, want := range []string{"read_file", "write_file", "edit_file", "bash", "glob", "grep", "todo_read", "todo_write"} {
		assert.Contains(t, names, want)
	}
}
