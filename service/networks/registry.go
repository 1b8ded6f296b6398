package networks

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNetworkNotFound is returned by Lookup for keys the registry does not carry.
var ErrNetworkNotFound = errors.New("network not found")

// Descriptor describes a network the explorer can query against.
type Descriptor struct {
	Key          string `json:"key"`
	DisplayName  string `json:"display_name"`
	IconRef      string `json:"icon_ref"`
	NativeSymbol string `json:"native_symbol"`
	ChainID      uint64 `json:"chain_id"`
}

// Registry is an immutable, ordered set of network descriptors.
type Registry struct {
	ordered  []Descriptor
	byKey    map[string]int
	fallback int
}

// NewRegistry builds a registry preserving the given order.
// Keys are normalized to lower case; empty and duplicate keys are rejected.
func NewRegistry(descriptors []Descriptor) (*Registry, error) {
	if len(descriptors) == 0 {
		return nil, fmt.Errorf("at least one network is required")
	}

	r := &Registry{
		ordered: make([]Descriptor, 0, len(descriptors)),
		byKey:   make(map[string]int, len(descriptors)),
	}
	for _, d := range descriptors {
		d.Key = normalizeKey(d.Key)
		if d.Key == "" {
			return nil, fmt.Errorf("network key is required")
		}
		if _, exists := r.byKey[d.Key]; exists {
			return nil, fmt.Errorf("duplicate network key: %s", d.Key)
		}
		if d.DisplayName == "" {
			d.DisplayName = d.Key
		}
		r.byKey[d.Key] = len(r.ordered)
		r.ordered = append(r.ordered, d)
	}
	return r, nil
}

// MustNewRegistry is like NewRegistry but panics on invalid input.
func MustNewRegistry(descriptors []Descriptor) *Registry {
	r, err := NewRegistry(descriptors)
	if err != nil {
		panic(fmt.Sprintf("invalid network registry: %v", err))
	}
	return r
}

// List returns the descriptors in registry order. The slice is a copy.
func (r *Registry) List() []Descriptor {
	out := make([]Descriptor, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// Keys returns the network keys in registry order.
func (r *Registry) Keys() []string {
	keys := make([]string, len(r.ordered))
	for i, d := range r.ordered {
		keys[i] = d.Key
	}
	return keys
}

// Lookup returns the descriptor for key or ErrNetworkNotFound.
func (r *Registry) Lookup(key string) (Descriptor, error) {
	i, ok := r.byKey[normalizeKey(key)]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %q", ErrNetworkNotFound, key)
	}
	return r.ordered[i], nil
}

// Contains reports whether key is a supported network.
func (r *Registry) Contains(key string) bool {
	_, ok := r.byKey[normalizeKey(key)]
	return ok
}

// Default returns the network used when none is selected: the first entry
// unless WithDefault chose another.
func (r *Registry) Default() Descriptor {
	return r.ordered[r.fallback]
}

// WithDefault returns a copy of the registry whose Default is key. The
// order of List is unchanged.
func (r *Registry) WithDefault(key string) (*Registry, error) {
	i, ok := r.byKey[normalizeKey(key)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNetworkNotFound, key)
	}
	return &Registry{ordered: r.ordered, byKey: r.byKey, fallback: i}, nil
}

// IconFor returns the icon reference for key, or "" if unknown.
func (r *Registry) IconFor(key string) string {
	d, err := r.Lookup(key)
	if err != nil {
		return ""
	}
	return d.IconRef
}

func normalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
