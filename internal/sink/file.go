package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/opencode-ai/agentcore/internal/message"
)

// FileSink is a concrete Sink backed by one JSON-lines file per session,
// each message appended as one line under an flock-based lock against
// concurrent writers from other processes.
type FileSink struct {
	baseDir string
	mu      sync.Mutex
	locks   map[string]*fileLock
}

// NewFileSink creates a FileSink rooted at baseDir, creating it if absent.
func NewFileSink(baseDir string) (*FileSink, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("sink: %w", err)
	}
	return &FileSink{baseDir: baseDir, locks: make(map[string]*fileLock)}, nil
}

func (s *FileSink) path(sessionID string) string {
	return filepath.Join(s.baseDir, sessionID+".jsonl")
}

func (s *FileSink) lockFor(path string) *fileLock {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[path]
	if !ok {
		l = &fileLock{path: path}
		s.locks[path] = l
	}
	return l
}

// RecordMessage appends one message as a JSON line, under an exclusive
// file lock so that a parent and a concurrently-running renderer never
// interleave partial writes.
func (s *FileSink) RecordMessage(ctx context.Context, sessionID string, m message.Message) error {
	path := s.path(sessionID)
	lock := s.lockFor(path)
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("sink: lock: %w", err)
	}
	defer lock.Unlock()

	line, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("sink: marshal: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("sink: open: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("sink: write: %w", err)
	}
	return nil
}

// Load reads every message recorded for sessionID, in append order.
func (s *FileSink) Load(ctx context.Context, sessionID string) ([]message.Message, error) {
	path := s.path(sessionID)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("sink: read: %w", err)
	}

	var out []message.Message
	for _, line := range strings.Split(string(data), "\n") {
		if line == "" {
			continue
		}
		var m message.Message
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			return nil, fmt.Errorf("sink: decode: %w", err)
		}
		out = append(out, m)
	}
	return out, nil
}

// ListSessions enumerates recorded session files, most recently modified
// first, truncated to limit (0 means no limit).
func (s *FileSink) ListSessions(ctx context.Context, limit int) ([]Summary, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("sink: list: %w", err)
	}

	type candidate struct {
		id      string
		modTime time.Time
	}
	var cands []candidate
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".jsonl") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		cands = append(cands, candidate{
			id:      strings.TrimSuffix(e.Name(), ".jsonl"),
			modTime: info.ModTime(),
		})
	}
	sort.Slice(cands, func(i, j int) bool { return cands[i].modTime.After(cands[j].modTime) })
	if limit > 0 && len(cands) > limit {
		cands = cands[:limit]
	}

	out := make([]Summary, 0, len(cands))
	for _, c := range cands {
		out = append(out, Summary{
			ID:        c.id,
			Summary:   summarize(s, c.id),
			UpdatedAt: c.modTime.Format(time.RFC3339),
		})
	}
	return out, nil
}

func summarize(s *FileSink, sessionID string) string {
	msgs, err := s.Load(context.Background(), sessionID)
	if err != nil || len(msgs) == 0 {
		return ""
	}
	for _, m := range msgs {
		if m.Role == message.RoleUser {
			if len(m.Content) > 80 {
				return m.Content[:80] + "…"
			}
			return m.Content
		}
	}
	return ""
}

// fileLock is an flock-based mutual-exclusion lock, grounded on the
// teacher's storage.FileLock.
type fileLock struct {
	path string
	file *os.File
	mu   sync.Mutex
}

func (l *fileLock) Lock() error {
	l.mu.Lock()
	var err error
	l.file, err = os.OpenFile(l.path+".lock", os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		l.mu.Unlock()
		return err
	}
	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_EX); err != nil {
		l.file.Close()
		l.mu.Unlock()
		return err
	}
	return nil
}

func (l *fileLock) Unlock() {
	if l.file != nil {
		syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
		l.file.Close()
		os.Remove(l.path + ".lock")
		l.file = nil
	}
	l.mu.Unlock()
}
