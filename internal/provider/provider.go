// Package provider defines the core's only dependency on an LLM backend:
// two methods, no concrete transport. Adapters for a specific model API
// live outside this module.
package provider

import (
	"context"

	"github.com/opencode-ai/agentcore/internal/message"
)

// ToolCallDelta is one incremental update to an in-flight tool call,
// addressed by Index so multiple deltas for the same call can be merged
//.
type ToolCallDelta struct {
	Index     int
	ID        string // arrives once, on the delta that introduces the call
	Name      string // arrives once
	Arguments string // grows monotonically by concatenation across deltas
}

// Delta is one chunk of a streaming completion.
type Delta struct {
	Content   string
	ToolCalls []ToolCallDelta
}

// Stream is a provider's lazy sequence of Deltas. Next blocks until the
// next chunk is available, returns (Delta{}, false, ctx.Err()) once the
// stream is exhausted or cancelled. Close releases any underlying
// connection; calling it more than once must be safe.
type Stream interface {
	Next(ctx context.Context) (Delta, bool, error)
	Close() error
}

// Provider is the core's sole LLM dependency.
type Provider interface {
	// CompleteStreaming begins a streaming completion over messages, given
	// the OpenAI tool-schema envelope produced by the tool registry.
	CompleteStreaming(ctx context.Context, messages []message.Message, toolSchemas []byte) (Stream, error)

	// CompleteOnce performs a non-streaming completion, returning one
	// complete assistant message.
	CompleteOnce(ctx context.Context, messages []message.Message, toolSchemas []byte) (message.Message, error)
}

// CollectStream drains a Stream into one assembled assistant message,
// applying the index-keyed tool-call delta assembly rule:
// content deltas concatenate in arrival order, and each tool-call index's
// id/name are taken from their first non-empty occurrence while arguments
// accumulate by string concatenation. The assembled call list is only
// returned once the stream closes; a cancellation or stream error discards
// whatever was assembled so far, per the same section ("any partially
// assembled assistant message is discarded").
func CollectStream(ctx context.Context, s Stream) (message.Message, error) {
	var content string
	order := make([]int, 0, 4)
	calls := make(map[int]*message.ToolCall)

	for {
		delta, ok, err := s.Next(ctx)
		if err != nil {
			return message.Message{}, err
		}
		if !ok {
			break
		}
		content += delta.Content
		for _, td := range delta.ToolCalls {
			c, seen := calls[td.Index]
			if !seen {
				c = &message.ToolCall{}
				calls[td.Index] = c
				order = append(order, td.Index)
			}
			if td.ID != "" && c.ID == "" {
				c.ID = td.ID
			}
			if td.Name != "" && c.Name == "" {
				c.Name = td.Name
			}
			if td.Arguments != "" {
				c.Arguments = append(c.Arguments, []byte(td.Arguments)...)
			}
		}
	}

	toolCalls := make([]message.ToolCall, 0, len(order))
	for _, idx := range order {
		toolCalls = append(toolCalls, *calls[idx])
	}
	return message.Assistant(content, toolCalls...), nil
}
