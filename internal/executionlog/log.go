// Package executionlog implements the Execution Log: a
// per-agent append-only record of tool invocations, serialized into a
// structured report when the agent terminates.
package executionlog

import (
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Category classifies why a child delegation failed.
type Category string

const (
	CategoryNone            Category = ""
	CategoryTimeout         Category = "TIMEOUT"
	CategoryToolError       Category = "TOOL_ERROR"
	CategoryMissingContext  Category = "MISSING_CONTEXT"
	CategoryInvalidTask     Category = "INVALID_TASK"
	CategoryPartialSuccess  Category = "PARTIAL_SUCCESS"
)

// Status is the terminal state recorded in the log header.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusTimeout   Status = "timeout"
	StatusPartial   Status = "partial"
)

// ToolExecution is one recorded invocation.
type ToolExecution struct {
	ID           string // monotonic, sortable; assigned by Record if unset
	Name         string
	StartedAt    time.Time
	Duration     time.Duration
	OK           bool
	ErrorCat     string
	ResultBytes  int
	FileRead     string // empty unless this invocation read a file
	FileWritten  string // empty unless this invocation wrote a file
	FileEdited   string // empty unless this invocation edited a file
}

// Log is the append-only execution record for one agent instance.
type Log struct {
	mu sync.Mutex

	SessionID       string
	ParentSessionID string
	StartedAt       time.Time
	FinishedAt      time.Time
	Status          Status

	entries []ToolExecution
}

// New creates a log header for a newly instantiated agent.
func New(sessionID, parentSessionID string) *Log {
	return &Log{
		SessionID:       sessionID,
		ParentSessionID: parentSessionID,
		StartedAt:       time.Now(),
		Status:          StatusCompleted,
	}
}

// Record appends one tool invocation outcome. Safe for concurrent callers,
// since the executor may run several handlers' completions concurrently.
func (l *Log) Record(e ToolExecution) {
	if e.ID == "" {
		e.ID = ulid.Make().String()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
}

// Finish stamps the log as terminated with the given status.
func (l *Log) Finish(status Status) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.FinishedAt = time.Now()
	l.Status = status
}

// Entries returns a copy of the recorded executions.
func (l *Log) Entries() []ToolExecution {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]ToolExecution, len(l.entries))
	copy(out, l.entries)
	return out
}

// aggregates summarizes total/succeeded/failed and the files touched, in
// the shape the report renderer needs.
type aggregates struct {
	total, succeeded, failed int
	toolCounts               map[string]int
	filesRead                []string
	filesWritten              []string
	filesEdited               []string
}

func (l *Log) aggregate() aggregates {
	l.mu.Lock()
	entries := make([]ToolExecution, len(l.entries))
	copy(entries, l.entries)
	l.mu.Unlock()

	agg := aggregates{toolCounts: make(map[string]int)}
	seenRead := map[string]bool{}
	seenWritten := map[string]bool{}
	seenEdited := map[string]bool{}

	for _, e := range entries {
		agg.total++
		if e.OK {
			agg.succeeded++
		} else {
			agg.failed++
		}
		agg.toolCounts[e.Name]++

		if e.FileRead != "" && !seenRead[e.FileRead] {
			seenRead[e.FileRead] = true
			agg.filesRead = append(agg.filesRead, e.FileRead)
		}
		if e.FileWritten != "" && !seenWritten[e.FileWritten] {
			seenWritten[e.FileWritten] = true
			agg.filesWritten = append(agg.filesWritten, e.FileWritten)
		}
		if e.FileEdited != "" && !seenEdited[e.FileEdited] {
			seenEdited[e.FileEdited] = true
			agg.filesEdited = append(agg.filesEdited, e.FileEdited)
		}
	}
	return agg
}

// toolCountPairs renders the per-name counts sorted by count descending,
// then by name.
func (a aggregates) toolCountPairs() []struct {
	Name  string
	Count int
} {
	pairs := make([]struct {
		Name  string
		Count int
	}, 0, len(a.toolCounts))
	for name, count := range a.toolCounts {
		pairs = append(pairs, struct {
			Name  string
			Count int
		}{name, count})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].Count != pairs[j].Count {
			return pairs[i].Count > pairs[j].Count
		}
		return pairs[i].Name < pairs[j].Name
	})
	return pairs
}
