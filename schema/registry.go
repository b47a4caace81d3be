package schema

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ambiyansyah-risyal/relay"
)

// Registry maps transform names used in documents to relay transforms.
//
// Built-in names:
//
//	field:a.b   select a nested field (relay.Field)
//	first       first element of an array
//	count       length of an array or object
type Registry struct {
	mu         sync.RWMutex
	transforms map[string]relay.Transform
}

// NewRegistry returns a registry holding the built-in transforms.
func NewRegistry() *Registry {
	r := &Registry{transforms: make(map[string]relay.Transform)}
	r.Register("first", first)
	r.Register("count", count)
	return r
}

// Register adds or replaces a named transform.
func (r *Registry) Register(name string, t relay.Transform) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transforms[name] = t
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.transforms))
	for name := range r.transforms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve looks up each name in order.
func (r *Registry) Resolve(names ...string) ([]relay.Transform, error) {
	if len(names) == 0 {
		return nil, nil
	}
	out := make([]relay.Transform, 0, len(names))
	for _, name := range names {
		t, err := r.lookup(name)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (r *Registry) lookup(name string) (relay.Transform, error) {
	if path, ok := strings.CutPrefix(name, "field:"); ok {
		if path == "" {
			return nil, fmt.Errorf("%w: %q has an empty path", ErrUnknownTransform, name)
		}
		return relay.Field(strings.Split(path, ".")...), nil
	}

	r.mu.RLock()
	t, ok := r.transforms[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTransform, name)
	}
	return t, nil
}

func first(v any) (any, error) {
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("first: expected array, got %T", v)
	}
	if len(items) == 0 {
		return nil, nil
	}
	return items[0], nil
}

func count(v any) (any, error) {
	switch x := v.(type) {
	case []any:
		return len(x), nil
	case map[string]any:
		return len(x), nil
	default:
		return nil, fmt.Errorf("count: expected array or object, got %T", v)
	}
}
