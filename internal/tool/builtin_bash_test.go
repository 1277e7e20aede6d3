package tool

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBashDescriptorRunsCommandAndCapturesOutput(t *testing.T) {
	d := NewBashDescriptor(t.TempDir())
	out, err := d.Handler(context.Background(), &Context{}, json.RawMessage(`{"command":"echo hello"}`))
	require.NoError(t, err)
	assert.Equal(t, "hello\n", out)
}

func TestBashDescriptorNonZeroExitReturnsError(t *testing.T) {
	d := NewBashDescriptor(t.TempDir())
	_, err := d.Handler(context.Background(), &Context{}, json.RawMessage(`{"command":"exit 1"}`))
	assert.Error(t, err)
}

func TestBashDescriptorDeclaresShellMutualExclusion(t *testing.T) {
	d := NewBashDescriptor(t.TempDir())
	assert.Equal(t, "shell", d.MutualExclusion)
}

func TestRunShellKillsProcessGroupOnCancellation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := runShell(ctx, t.TempDir(), "sleep 5")
	assert.Error(t, err)
}
