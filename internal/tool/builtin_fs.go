package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/opencode-ai/agentcore/internal/permission"
)

// fuzzyMatchThreshold is the minimum normalized similarity a near-miss block
// must reach before edit_file accepts it as a stand-in for an exact match.
const fuzzyMatchThreshold = 0.7

func resolvePath(workDir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(workDir, path)
}

// NewReadFileDescriptor builds a read-only file tool: a handler plus its
// schema and permission/capability/mode declaration.
func NewReadFileDescriptor(workDir string) *Descriptor {
	schema := json.RawMessage(`{
		"type": "object",
		"properties": {"path": {"type": "string", "description": "file path to read, absolute or relative to the working directory"}},
		"required": ["path"]
	}`)

	return &Descriptor{
		Name:            "read_file",
		Description:     "Read the contents of a file.",
		ParameterSchema: schema,
		Permission:      permission.ActionAuto,
		Capability:      permission.CapRead,
		AllowedModes:    []Mode{ModeParent, ModeChild},
		Handler: func(_ context.Context, toolCtx *Context, args json.RawMessage) (string, error) {
			var in struct {
				Path string `json:"path"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return "", fmt.Errorf("invalid arguments: %w", err)
			}
			data, err := os.ReadFile(resolvePath(workDir, in.Path))
			if err != nil {
				return "", err
			}
			return string(data), nil
		},
	}
}

// NewWriteFileDescriptor is a write-capable tool; its declared policy is
// `ask` by default and it is subject to safe-mode promotion and plan-mode
// removal.
func NewWriteFileDescriptor(workDir string) *Descriptor {
	schema := json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {"type": "string"},
			"content": {"type": "string"}
		},
		"required": ["path", "content"]
	}`)

	return &Descriptor{
		Name:            "write_file",
		Description:     "Write content to a file, creating or overwriting it.",
		ParameterSchema: schema,
		Permission:      permission.ActionAsk,
		Capability:      permission.CapWrite,
		AllowedModes:    []Mode{ModeParent, ModeChild},
		Handler: func(_ context.Context, toolCtx *Context, args json.RawMessage) (string, error) {
			var in struct {
				Path    string `json:"path"`
				Content string `json:"content"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return "", fmt.Errorf("invalid arguments: %w", err)
			}
			full := resolvePath(workDir, in.Path)
			if dir := filepath.Dir(full); dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return "", err
				}
			}
			if err := os.WriteFile(full, []byte(in.Content), 0o644); err != nil {
				return "", err
			}
			return fmt.Sprintf("wrote %d bytes to %s", len(in.Content), in.Path), nil
		},
	}
}

// NewEditFileDescriptor applies a find/replace edit and reports a unified
// diff computed with go-diff.
func NewEditFileDescriptor(workDir string) *Descriptor {
	schema := json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {"type": "string"},
			"find": {"type": "string"},
			"replace": {"type": "string"}
		},
		"required": ["path", "find", "replace"]
	}`)

	return &Descriptor{
		Name:            "edit_file",
		Description:     "Replace the first occurrence of a substring in a file and report a unified diff. If the exact text isn't found, falls back to the closest near-miss block by Levenshtein similarity.",
		ParameterSchema: schema,
		Permission:      permission.ActionAsk,
		Capability:      permission.CapWrite,
		AllowedModes:    []Mode{ModeParent, ModeChild},
		Handler: func(_ context.Context, toolCtx *Context, args json.RawMessage) (string, error) {
			var in struct {
				Path    string `json:"path"`
				Find    string `json:"find"`
				Replace string `json:"replace"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return "", fmt.Errorf("invalid arguments: %w", err)
			}
			full := resolvePath(workDir, in.Path)
			before, err := os.ReadFile(full)
			if err != nil {
				return "", err
			}
			find := in.Find
			if !strings.Contains(string(before), find) {
				match, sim := fuzzyFindBlock(string(before), find)
				if match == "" || sim < fuzzyMatchThreshold {
					return "", fmt.Errorf("find text not present in %s", in.Path)
				}
				find = match
			}
			after := strings.Replace(string(before), find, in.Replace, 1)
			if err := os.WriteFile(full, []byte(after), 0o644); err != nil {
				return "", err
			}
			return UnifiedDiff(in.Path, string(before), after), nil
		},
	}
}

// fuzzyFindBlock returns the substring of text most similar to find, scanning
// line-aligned blocks the same length as find. find may span multiple lines.
func fuzzyFindBlock(text, find string) (string, float64) {
	lines := strings.Split(text, "\n")
	n := len(strings.Split(find, "\n"))

	best := ""
	bestSim := 0.0
	for i := 0; i <= len(lines)-n; i++ {
		block := strings.Join(lines[i:i+n], "\n")
		if sim := blockSimilarity(block, find); sim > bestSim {
			bestSim = sim
			best = block
		}
	}
	return best, bestSim
}

// blockSimilarity is normalized Levenshtein similarity in [0,1]: 1 for
// identical strings, 0 for maximally different ones.
func blockSimilarity(a, b string) float64 {
	if a == "" && b == "" {
		return 1.0
	}
	if a == "" || b == "" {
		return 0.0
	}
	dist := levenshtein.ComputeDistance(a, b)
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	return 1.0 - float64(dist)/float64(maxLen)
}

// UnifiedDiff renders a line-based unified diff between before and after,
// using diffmatchpatch's character diff and folding it to line granularity.
func UnifiedDiff(path, before, after string) string {
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCharsToLines(diffs, lines)

	var sb strings.Builder
	fmt.Fprintf(&sb, "--- %s\n+++ %s\n", path, path)
	for _, d := range diffs {
		for _, line := range strings.SplitAfter(d.Text, "\n") {
			if line == "" {
				continue
			}
			switch d.Type {
			case diffmatchpatch.DiffInsert:
				sb.WriteString("+" + line)
			case diffmatchpatch.DiffDelete:
				sb.WriteString("-" + line)
			case diffmatchpatch.DiffEqual:
				sb.WriteString(" " + line)
			}
		}
	}
	return sb.String()
}

// NewGlobDescriptor lists files matching a glob pattern, read-only.
func NewGlobDescriptor(workDir string) *Descriptor {
	schema := json.RawMessage(`{
		"type": "object",
		"properties": {"pattern": {"type": "string"}},
		"required": ["pattern"]
	}`)

	return &Descriptor{
		Name:            "glob",
		Description:     "List files matching a glob pattern relative to the working directory.",
		ParameterSchema: schema,
		Permission:      permission.ActionAuto,
		Capability:      permission.CapRead,
		AllowedModes:    []Mode{ModeParent, ModeChild},
		Handler: func(_ context.Context, toolCtx *Context, args json.RawMessage) (string, error) {
			var in struct {
				Pattern string `json:"pattern"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return "", fmt.Errorf("invalid arguments: %w", err)
			}
			matches, err := doublestar.Glob(os.DirFS(workDir), in.Pattern)
			if err != nil {
				return "", err
			}
			sort.Strings(matches)
			return strings.Join(matches, "\n"), nil
		},
	}
}

// NewGrepDescriptor does a literal-substring search across files matching
// an optional glob, read-only.
func NewGrepDescriptor(workDir string) *Descriptor {
	schema := json.RawMessage(`{
		"type": "object",
		"properties": {
			"pattern": {"type": "string"},
			"glob": {"type": "string"}
		},
		"required": ["pattern"]
	}`)

	return &Descriptor{
		Name:            "grep",
		Description:     "Search for a literal substring across files matching an optional glob.",
		ParameterSchema: schema,
		Permission:      permission.ActionAuto,
		Capability:      permission.CapRead,
		AllowedModes:    []Mode{ModeParent, ModeChild},
		Handler: func(_ context.Context, toolCtx *Context, args json.RawMessage) (string, error) {
			var in struct {
				Pattern string `json:"pattern"`
				Glob    string `json:"glob"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return "", fmt.Errorf("invalid arguments: %w", err)
			}
			glob := in.Glob
			if glob == "" {
				glob = "**/*"
			}
			matches, err := doublestar.Glob(os.DirFS(workDir), glob)
			if err != nil {
				return "", err
			}

			var hits []string
			for _, rel := range matches {
				full := filepath.Join(workDir, rel)
				info, err := os.Stat(full)
				if err != nil || info.IsDir() {
					continue
				}
				data, err := os.ReadFile(full)
				if err != nil {
					continue
				}
				for i, line := range strings.Split(string(data), "\n") {
					if strings.Contains(line, in.Pattern) {
						hits = append(hits, fmt.Sprintf("%s:%d:%s", rel, i+1, line))
					}
				}
			}
			return strings.Join(hits, "\n"), nil
		},
	}
}
