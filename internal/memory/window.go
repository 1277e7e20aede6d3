// Package memory implements the Memory Window: a token-bounded,
// system-preserving sliding buffer of chronologically ordered messages.
package memory

import (
	"context"
	"sync"

	"github.com/opencode-ai/agentcore/internal/message"
	"github.com/opencode-ai/agentcore/internal/sink"
)

// Config configures a Window.
type Config struct {
	MaxTokens      int    // default 100_000
	PreserveSystem bool   // default true
	EncodingKey    string // default "cl100k_base"
}

// DefaultConfig returns the package's default tuning.
func DefaultConfig() Config {
	return Config{
		MaxTokens:      100_000,
		PreserveSystem: true,
		EncodingKey:    DefaultEncodingKey,
	}
}

// Window is a single agent's conversational memory. It belongs to exactly
// one agent; the agent loop serializes all access, so the window itself
// does not need a lock for correctness under that usage — the mutex here
// only guards against accidental concurrent misuse and costs nothing on the
// loop's single-threaded happy path.
type Window struct {
	mu      sync.Mutex
	cfg     Config
	system  *message.Message
	history []message.Message
	enc     *Encoder

	sessionID string
	sink      sink.Sink
}

// AttachSink wires an optional persistent sink: every message committed from here on is also mirrored to it. The
// core remains fully functional with no sink attached.
func (w *Window) AttachSink(sessionID string, sk sink.Sink) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.sessionID = sessionID
	w.sink = sk
}

// New creates an empty window with the given configuration, filling in
// the package defaults for a zero MaxTokens or an empty EncodingKey.
// PreserveSystem is taken as given.
func New(cfg Config) *Window {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultConfig().MaxTokens
	}
	if cfg.EncodingKey == "" {
		cfg.EncodingKey = DefaultEncodingKey
	}
	return &Window{cfg: cfg, enc: NewEncoder(cfg.EncodingKey)}
}

// SetSystem sets or replaces the system message in place. It is never
// removed by trimming.
func (w *Window) SetSystem(content string) {
	w.mu.Lock()
	m := message.System(content)
	w.system = &m
	w.mirror(m)
	w.mu.Unlock()
}

// Append appends a message to the window, then trims to the token bound.
func (w *Window) Append(m message.Message) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if m.Role == message.RoleSystem {
		w.system = &m
		w.mirror(m)
		return
	}
	w.history = append(w.history, m)
	w.mirror(m)
	w.trimLocked()
}

// mirror writes m to the attached sink, if any, best-effort: a sink
// failure never blocks or fails the agent loop. Called with w.mu held.
func (w *Window) mirror(m message.Message) {
	if w.sink == nil {
		return
	}
	_ = w.sink.RecordMessage(context.Background(), w.sessionID, m)
}

// Snapshot returns a read-only copy of the current message sequence,
// system message first when present. Calling it twice in a row with no
// intervening mutation returns equal sequences.
func (w *Window) Snapshot() []message.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snapshotLocked()
}

func (w *Window) snapshotLocked() []message.Message {
	out := make([]message.Message, 0, len(w.history)+1)
	if w.system != nil {
		out = append(out, *w.system)
	}
	out = append(out, w.history...)
	return out
}

// Clear discards all non-system messages; if keepSystem is false the system
// message is discarded too.
func (w *Window) Clear(keepSystem bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.history = nil
	if !keepSystem {
		w.system = nil
	}
}

// EstimatedTokens returns the current rolling token count.
func (w *Window) EstimatedTokens() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.totalTokensLocked()
}

func (w *Window) countMessage(m message.Message) int {
	return w.enc.Count(m.Content) + w.enc.Count(m.ToolCallText())
}

func (w *Window) totalTokensLocked() int {
	total := 0
	if w.system != nil {
		total += w.countMessage(*w.system)
	}
	for _, m := range w.history {
		total += w.countMessage(m)
	}
	return total
}

// trimLocked implements the token-budget trimming policy: while
// estimated_tokens() > max_tokens, remove the oldest non-system message
// (the system message is never evicted, whatever PreserveSystem says) —
// strictly FIFO over the non-system partition — with the critical invariant
// that an assistant-with-tool-calls message is evicted together with every
// following tool-role message answering one of its calls, as a single
// atomic group. A lone user message that already exceeds max_tokens is kept
// (never evicted below two messages).
func (w *Window) trimLocked() {
	if !w.cfg.PreserveSystem && w.system == nil {
		// preserve_system=false and no system message set: there is
		// nothing structurally protected, but the trimming policy below
		// still applies to the non-system (here, the only) partition.
	}

	for w.totalTokensLocked() > w.cfg.MaxTokens && len(w.history) > 1 {
		groupLen := evictionGroupLength(w.history)
		if groupLen >= len(w.history) {
			// Evicting the whole remainder would leave nothing; the
			// boundary rule keeps at least the last message.
			break
		}
		w.history = w.history[groupLen:]
	}
}

// evictionGroupLength returns how many leading messages of history form one
// atomic eviction group: either a single non-tool-issuing message, or an
// assistant-with-tool-calls message plus every immediately following
// tool-role message that answers one of its calls.
func evictionGroupLength(history []message.Message) int {
	if len(history) == 0 {
		return 0
	}
	head := history[0]
	if !head.HasToolCalls() {
		return 1
	}

	answered := make(map[string]bool, len(head.ToolCalls))
	for _, c := range head.ToolCalls {
		answered[c.ID] = true
	}

	n := 1
	for n < len(history) {
		next := history[n]
		if next.Role != message.RoleTool || !answered[next.ToolCallID] {
			break
		}
		n++
	}
	return n
}
