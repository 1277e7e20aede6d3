package tool

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/opencode-ai/agentcore/internal/permission"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoDescriptor(name string) *Descriptor {
	return &Descriptor{
		Name:            name,
		Description:     "echoes its input",
		ParameterSchema: json.RawMessage(`{"type":"object","properties":{"text":{"type":"string"}}}`),
		Permission:      permission.ActionAuto,
		Capability:      permission.CapRead,
		AllowedModes:    []Mode{ModeParent, ModeChild},
		Handler: func(_ context.Context, _ *Context, args json.RawMessage) (string, error) {
			return string(args), nil
		},
	}
}

func TestRegisterRejectsDuplicateNames(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(echoDescriptor("echo")))
	err := r.Register(echoDescriptor("echo"))
	assert.ErrorIs(t, err, ErrDuplicateName)
}

func TestRegisterRejectsMissingProperties(t *testing.T) {
	r := NewRegistry()
	d := echoDescriptor("bad")
	d.ParameterSchema = json.RawMessage(`{"type":"object"}`)
	err := r.Register(d)
	assert.ErrorIs(t, err, ErrInvalidSchema)
}

func TestRegisterRejectsNonObjectRoot(t *testing.T) {
	r := NewRegistry()
	d := echoDescriptor("bad2")
	d.ParameterSchema = json.RawMessage(`{"type":"string"}`)
	err := r.Register(d)
	assert.ErrorIs(t, err, ErrInvalidSchema)
}

func TestResolveNotFound(t *testing.T) {
	r := NewRegistry()
	_, err := r.Resolve("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMergeEmptyRegistryIsIdentity(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(echoDescriptor("echo")))
	before := r.Schemas(ModeParent)

	skipped := r.Merge(NewRegistry())
	assert.Equal(t, 0, skipped)
	assert.Equal(t, before, r.Schemas(ModeParent))
}

func TestMergeSkipsDuplicates(t *testing.T) {
	r1 := NewRegistry()
	require.NoError(t, r1.Register(echoDescriptor("echo")))
	r2 := NewRegistry()
	require.NoError(t, r2.Register(echoDescriptor("echo")))
	require.NoError(t, r2.Register(echoDescriptor("other")))

	skipped := r1.Merge(r2)
	assert.Equal(t, 1, skipped)
	assert.ElementsMatch(t, []string{"echo", "other"}, r1.Names())
}

func TestSchemasIsDeterministic(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(echoDescriptor("a")))
	require.NoError(t, r.Register(echoDescriptor("b")))

	out1 := r.Schemas(ModeParent)
	out2 := r.Schemas(ModeParent)
	assert.Equal(t, out1, out2)
}

func TestSchemasFiltersByMode(t *testing.T) {
	r := NewRegistry()
	parentOnly := echoDescriptor("parent_only")
	parentOnly.AllowedModes = []Mode{ModeParent}
	require.NoError(t, r.Register(parentOnly))

	var entries []map[string]any
	require.NoError(t, json.Unmarshal(r.Schemas(ModeChild), &entries))
	assert.Empty(t, entries)

	require.NoError(t, json.Unmarshal(r.Schemas(ModeParent), &entries))
	assert.Len(t, entries, 1)
}

func TestValidateArgsRejectsWrongType(t *testing.T) {
	r := NewRegistry()
	d := echoDescriptor("typed")
	d.ParameterSchema = json.RawMessage(`{"type":"object","properties":{"count":{"type":"number"}},"required":["count"]}`)
	require.NoError(t, r.Register(d))

	resolved, err := r.Resolve("typed")
	require.NoError(t, err)

	var decoded any
	require.NoError(t, json.Unmarshal([]byte(`{"count":"not a number"}`), &decoded))
	assert.Error(t, resolved.ValidateArgs(decoded))
}
