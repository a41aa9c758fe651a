package provider

import (
	"net/http"
	"sort"
)

// Registry maps provider slugs to adapters. It is built once at startup and read-only afterwards.
type Registry struct {
	adapters map[string]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Name()] = a
	}
	return r
}

// DefaultRegistry registers every built-in provider on the given client.
func DefaultRegistry(client *http.Client) *Registry {
	return NewRegistry(
		NewGitHub(client),
		NewGitee(client),
		NewDingTalk(client),
		NewFeishu(client),
		NewWeChat(client),
		NewQQ(client),
	)
}

func (r *Registry) Get(name string) (Adapter, bool) {
	a, ok := r.adapters[name]
	return a, ok
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
