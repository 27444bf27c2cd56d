package tools

import (
	"sort"

	"github.com/cockroachdb/errors"
)

// Registry holds the tools available to a dispatcher. It is populated
// at startup and read-only afterwards, so lookups need no locking.
type Registry struct {
	byName map[string]ITool
	sealed bool
}

func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]ITool),
	}
}

// Register adds a tool. Names are globally unique within the registry;
// registering a duplicate or registering after Seal is an error.
func (r *Registry) Register(list ...ITool) error {
	if r.sealed {
		return errors.New("registry is sealed")
	}
	for _, tool := range list {
		name := tool.Name()
		if name == "" {
			return errors.New("tool name is empty")
		}
		if _, ok := r.byName[name]; ok {
			return errors.Newf("tool %q is already registered", name)
		}
		r.byName[name] = tool
	}
	return nil
}

// Seal marks the registry read-only. Subsequent Register calls fail.
func (r *Registry) Seal() *Registry {
	r.sealed = true
	return r
}

// Lookup returns the tool registered under the given name.
func (r *Registry) Lookup(name string) (ITool, bool) {
	tool, ok := r.byName[name]
	return tool, ok
}

// List returns all registered tools sorted by name.
func (r *Registry) List() []ITool {
	res := make([]ITool, 0, len(r.byName))
	for _, tool := range r.byName {
		res = append(res, tool)
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i].Name() < res[j].Name()
	})
	return res
}

// Descriptions returns the registered tools as fenced JSON.
func (r *Registry) Descriptions() string {
	return GetDescriptions(r.List()...)
}
