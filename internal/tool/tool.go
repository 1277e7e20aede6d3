// Package tool implements the Tool Registry: a typed catalog of
// callable tools, each with a JSON-schema parameter contract, a permission
// policy, and a set of modes in which it is allowed.
package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/opencode-ai/agentcore/internal/permission"
)

func bytesReader(b []byte) io.Reader {
	return bytes.NewReader(b)
}

// Mode is where a tool is permitted to be exposed.
type Mode string

const (
	ModeParent Mode = "parent"
	ModeChild  Mode = "child"
)

// Context is passed to a tool's Handler on invocation.
type Context struct {
	SessionID string
	CallID    string
	WorkDir   string
	AbortCh   <-chan struct{}
}

// IsAborted reports whether cancellation has been signalled.
func (c *Context) IsAborted() bool {
	select {
	case <-c.AbortCh:
		return true
	default:
		return false
	}
}

// Handler is the function a Tool Descriptor wraps. It returns the
// textual result to hand back to the model, or an error — the executor is
// responsible for turning a returned error into the in-band textual form.
type Handler func(ctx context.Context, toolCtx *Context, args json.RawMessage) (string, error)

// Descriptor is a Tool Descriptor. Two descriptors may not share
// a Name; Name must match ^[A-Za-z_][A-Za-z0-9_]*$, or, for bridged tools,
// the compound `<server>__<tool>` form.
type Descriptor struct {
	Name             string
	Description      string
	ParameterSchema  json.RawMessage // JSON Schema draft-07, object at root
	Permission       permission.Action
	Capability       permission.Capability
	AllowedModes     []Mode
	MutualExclusion  string // empty means no exclusion key
	Handler          Handler

	compiled *jsonschema.Schema
}

// AllowedIn reports whether the descriptor is exposed in the given mode.
func (d *Descriptor) AllowedIn(mode Mode) bool {
	for _, m := range d.AllowedModes {
		if m == mode {
			return true
		}
	}
	return false
}

var namePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(__[A-Za-z_][A-Za-z0-9_]*)?$`)

// Errors returned by registry operations.
var (
	ErrDuplicateName = errors.New("tool: duplicate name")
	ErrInvalidSchema = errors.New("tool: invalid parameter schema")
	ErrNotFound      = errors.New("tool: not found")
)

// validateSchema enforces the InvalidSchema rule: the parameter
// schema must be a JSON-schema object with a `properties` map present, even
// when empty (OpenAI-compatibility), and must itself compile as a valid
// JSON Schema draft-07 document.
func validateSchema(raw json.RawMessage) (*jsonschema.Schema, error) {
	var shape struct {
		Type       string          `json:"type"`
		Properties json.RawMessage `json:"properties"`
	}
	if err := json.Unmarshal(raw, &shape); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}
	if shape.Type != "object" {
		return nil, fmt.Errorf("%w: root type must be \"object\"", ErrInvalidSchema)
	}
	if shape.Properties == nil {
		return nil, fmt.Errorf("%w: missing \"properties\"", ErrInvalidSchema)
	}

	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft7
	if err := compiler.AddResource("schema.json", bytesReader(raw)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}
	compiled, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}
	return compiled, nil
}

// ValidateArgs validates parsed tool-call arguments against the
// descriptor's compiled schema.
func (d *Descriptor) ValidateArgs(args any) error {
	if d.compiled == nil {
		return nil
	}
	return d.compiled.Validate(args)
}
