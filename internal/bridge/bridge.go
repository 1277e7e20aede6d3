// Package bridge implements the core's dependency on bridged external tool
// servers: a minimal list/invoke
// contract, wrapped into ordinary tool.Descriptors under the `<server>__
// <tool>` compound name.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// ToolInfo describes one tool a bridged server exposes.
type ToolInfo struct {
	Name            string
	Description     string
	ParameterSchema json.RawMessage
}

// Adapter is the core's sole dependency on a bridged external tool server
// (e.g. an MCP server) — the core never depends on a specific bridge
// transport or protocol library.
type Adapter interface {
	ListTools(ctx context.Context) ([]ToolInfo, error)
	Invoke(ctx context.Context, name string, args json.RawMessage, timeout time.Duration) (string, error)
}

// CompoundName applies the `<server>__<tool>` naming rule.
func CompoundName(server, toolName string) string {
	return fmt.Sprintf("%s__%s", server, toolName)
}
