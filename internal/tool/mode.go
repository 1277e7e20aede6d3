package tool

import "github.com/opencode-ai/agentcore/internal/permission"

// FilterForOperationMode applies the Operation Mode rule at the
// registry level: in `plan` mode every tool with write or shell capability
// is removed entirely — a hard capability removal, not a runtime ask — so
// that a hallucinated call to a removed tool resolves to "Unknown tool"
// rather than ever reaching the permission gate.
// `standard` and `safe` modes return r unchanged; `safe`'s promotion to ask
// is applied per-call by permission.Effective, not by filtering.
func FilterForOperationMode(mode permission.Mode, r *Registry) *Registry {
	if mode != permission.ModePlan {
		return r
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	filtered := NewRegistry()
	for _, name := range r.order {
		d := r.byName[name]
		if d.Capability == permission.CapWrite || d.Capability == permission.CapShell {
			continue
		}
		_ = filtered.Register(cloneDescriptor(d))
	}
	return filtered
}

func cloneDescriptor(d *Descriptor) *Descriptor {
	cp := *d
	cp.compiled = nil
	return &cp
}
