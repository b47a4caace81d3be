package relay

import (
	"fmt"
	"sort"
)

// Compile builds a Client from a declarative schema. Resources and methods
// are registered in sorted order so that collisions are reported
// deterministically. The Resource and Method of every descriptor are taken
// from the map keys.
func Compile(schema Schema, cfg Config, options ...Option) (*Client, error) {
	client := New(cfg, options...)
	if err := client.ValidationError(); err != nil {
		return nil, err
	}

	for _, resource := range sortedKeys(schema) {
		methods := schema[resource]
		for _, method := range sortedKeys(methods) {
			d := methods[method]
			d.Resource = resource
			d.Method = method
			if _, err := client.AddMethod(d); err != nil {
				return nil, fmt.Errorf("relay: compile %s.%s: %w", resource, method, err)
			}
		}
	}
	return client, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(schema Schema, cfg Config, options ...Option) *Client {
	client, err := Compile(schema, cfg, options...)
	if err != nil {
		panic(err)
	}
	return client
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
