package tool

import (
	"encoding/json"
	"sort"
	"sync"
)

// Registry holds Tool Descriptors and exposes them as an immutable schema
// list to the provider.
type Registry struct {
	mu      sync.RWMutex
	byName  map[string]*Descriptor
	order   []string // insertion order, for stable schemas(mode) rendering
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*Descriptor)}
}

// Register adds a descriptor. Fails with ErrDuplicateName if the name is
// already taken, ErrInvalidSchema if the parameter schema does not satisfy
// the OpenAI-compatible shape.
func (r *Registry) Register(d *Descriptor) error {
	if !namePattern.MatchString(d.Name) {
		return ErrInvalidSchema
	}
	compiled, err := validateSchema(d.ParameterSchema)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[d.Name]; exists {
		return ErrDuplicateName
	}
	d.compiled = compiled
	r.byName[d.Name] = d
	r.order = append(r.order, d.Name)
	return nil
}

// Merge unions other's descriptors into r. On a name collision the
// incoming descriptor loses. Returns the count of skipped duplicates.
func (r *Registry) Merge(other *Registry) int {
	other.mu.RLock()
	incoming := make([]*Descriptor, 0, len(other.order))
	for _, name := range other.order {
		incoming = append(incoming, other.byName[name])
	}
	other.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	skipped := 0
	for _, d := range incoming {
		if _, exists := r.byName[d.Name]; exists {
			skipped++
			continue
		}
		r.byName[d.Name] = d
		r.order = append(r.order, d.Name)
	}
	return skipped
}

// Resolve looks up a descriptor by name.
func (r *Registry) Resolve(name string) (*Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byName[name]
	if !ok {
		return nil, ErrNotFound
	}
	return d, nil
}

// functionSchema is the OpenAI function-calling envelope entry.
type functionSchema struct {
	Type     string       `json:"type"`
	Function functionBody `json:"function"`
}

type functionBody struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// Schemas renders the descriptors allowed in mode as the OpenAI
// function-calling envelope, in stable insertion order, so that equal
// inputs produce equal bytes.
func (r *Registry) Schemas(mode Mode) []byte {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]functionSchema, 0, len(r.order))
	for _, name := range r.order {
		d := r.byName[name]
		if !d.AllowedIn(mode) {
			continue
		}
		entries = append(entries, functionSchema{
			Type: "function",
			Function: functionBody{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  d.ParameterSchema,
			},
		})
	}

	out, err := json.Marshal(entries)
	if err != nil {
		return []byte("[]")
	}
	return out
}

// Names returns every registered tool name, sorted for diagnostics.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.order))
	names = append(names, r.order...)
	sort.Strings(names)
	return names
}
