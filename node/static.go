package node

import (
	"fmt"
	"sort"

	"github.com/c360/lnrelay/errors"
)

// StaticRegistry resolves nodes from a fixed list, usually the config file
type StaticRegistry struct {
	nodes map[int]*Descriptor
}

// NewStaticRegistry builds a registry from descriptors. Indexes must be unique.
func NewStaticRegistry(descriptors []Descriptor) (*StaticRegistry, error) {
	r := &StaticRegistry{nodes: make(map[int]*Descriptor, len(descriptors))}

	for i := range descriptors {
		d := descriptors[i]
		if err := d.Validate(); err != nil {
			return nil, err
		}
		if _, dup := r.nodes[d.Index]; dup {
			return nil, errors.WrapInvalid(fmt.Errorf("duplicate node index %d", d.Index),
				"StaticRegistry", "NewStaticRegistry", "index nodes")
		}
		r.nodes[d.Index] = &d
	}

	return r, nil
}

// Find returns the descriptor for index
func (r *StaticRegistry) Find(index int) (*Descriptor, bool) {
	d, ok := r.nodes[index]
	return d, ok
}

// List returns all descriptors ordered by index
func (r *StaticRegistry) List() []Descriptor {
	out := make([]Descriptor, 0, len(r.nodes))
	for _, d := range r.nodes {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}
