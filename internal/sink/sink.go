// Package sink implements the optional Persistent session sink:
// an append-only surface the Memory Window mirrors every committed message
// to, when one is configured. The core tolerates its absence entirely.
package sink

import (
	"context"

	"github.com/opencode-ai/agentcore/internal/message"
)

// Summary is one entry of ListSessions.
type Summary struct {
	ID        string
	Summary   string
	UpdatedAt string // RFC3339; kept as string so callers aren't forced to import time for display-only data
}

// Sink is the core's only dependency on persistence. A nil Sink is a valid, fully-functional configuration.
type Sink interface {
	RecordMessage(ctx context.Context, sessionID string, m message.Message) error
	Load(ctx context.Context, sessionID string) ([]message.Message, error)
	ListSessions(ctx context.Context, limit int) ([]Summary, error)
}
