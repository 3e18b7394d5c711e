package gateway

import (
	"errors"
	"sort"
)

var (
	ErrUnknownTool  = errors.New("gateway: unknown tool")
	ErrToolDisabled = errors.New("gateway: tool not enabled for this key")
)

// Registry is the server-side tool catalog. Keys see only the intersection
// of the registry and their enabled_tools list.
type Registry struct {
	tools map[string]ToolDefinition
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]ToolDefinition)}
}

func (r *Registry) Register(def ToolDefinition) {
	r.tools[def.Name] = def
}

// Resolve returns the tool a key may invoke. Unknown and disabled are kept
// distinct so the transport can answer 404 vs 403.
func (r *Registry) Resolve(key AccessKey, name string) (ToolDefinition, error) {
	def, ok := r.tools[name]
	if !ok {
		return ToolDefinition{}, ErrUnknownTool
	}
	if !key.ToolEnabled(name) {
		return ToolDefinition{}, ErrToolDisabled
	}
	return def, nil
}

// Catalog lists the tools visible to a key, stable-ordered by name. Tools
// the key is not enabled for are omitted silently: callers cannot probe for
// capabilities they were not granted.
func (r *Registry) Catalog(key AccessKey) []ToolDefinition {
	out := make([]ToolDefinition, 0, len(key.EnabledTools))
	for _, name := range key.EnabledTools {
		if def, ok := r.tools[name]; ok {
			out = append(out, def)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
