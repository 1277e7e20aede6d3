package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/opencode-ai/agentcore/internal/permission"
	"github.com/opencode-ai/agentcore/internal/tool"
)

// DefaultInvokeTimeout bounds a bridged tool call when the caller doesn't
// override it.
const DefaultInvokeTimeout = 60 * time.Second

// RegisterTools lists server's tools and registers each as a
// tool.Descriptor named `<server>__<tool>` into r, so that the Tool
// Executor's ordinary pipeline (schema validation, permission gate,
// timeout, Execution Log) applies to bridged tools with no special-casing.
// Bridged tools are treated as write-capable for permission purposes,
// since the core has no way to know what an external server's tool does.
func RegisterTools(ctx context.Context, r *tool.Registry, server string, adapter Adapter, invokeTimeout time.Duration) error {
	if invokeTimeout <= 0 {
		invokeTimeout = DefaultInvokeTimeout
	}

	infos, err := adapter.ListTools(ctx)
	if err != nil {
		return fmt.Errorf("bridge: list_tools(%s): %w", server, err)
	}

	for _, info := range infos {
		info := info
		d := &tool.Descriptor{
			Name:            CompoundName(server, info.Name),
			Description:     info.Description,
			ParameterSchema: info.ParameterSchema,
			Permission:      permission.ActionAsk,
			Capability:      permission.CapWrite,
			AllowedModes:    []tool.Mode{tool.ModeParent, tool.ModeChild},
			Handler: func(ctx context.Context, _ *tool.Context, args json.RawMessage) (string, error) {
				return adapter.Invoke(ctx, info.Name, args, invokeTimeout)
			},
		}
		if err := r.Register(d); err != nil {
			return fmt.Errorf("bridge: registering %s: %w", d.Name, err)
		}
	}
	return nil
}
