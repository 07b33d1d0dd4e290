package fop

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// Registry is the opcode namespace of one process (or one node context in
// tests). Resolution is safe for concurrent use; registration and
// unregistration are serialized and expected only while no request is in
// flight.
type Registry struct {
	descs map[Opcode]*Descriptor
	// live registrations, the newest last.
	live []*Registration

	mu sync.RWMutex
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		descs: make(map[Opcode]*Descriptor),
		live:  make([]*Registration, 0),
	}
}

// Registration is the scoped ownership of an installed set.
// Closing it removes the set from the registry.
type Registration struct {
	r   *Registry
	set *Set
}

// Set returns the registered set.
func (g *Registration) Set() *Set { return g.set }

// Register installs every descriptor of the set atomically. If any opcode
// is already owned, nothing is installed and ErrDuplicateOpcode is returned.
func (r *Registry) Register(s *Set) (*Registration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, d := range s.descs {
		if owner, ok := r.descs[d.Opcode]; ok {
			return nil, errors.Wrapf(ErrDuplicateOpcode, "%s is owned by %s", d, owner)
		}
	}

	for _, d := range s.descs {
		r.descs[d.Opcode] = d
	}
	g := &Registration{r: r, set: s}
	r.live = append(r.live, g)
	return g, nil
}

// Close unregisters the set. Only the newest live registration can be
// closed; closing an already closed registration returns ErrNotRegistered.
func (g *Registration) Close() error {
	r := g.r

	r.mu.Lock()
	defer r.mu.Unlock()

	idx := -1
	for i, l := range r.live {
		if l == g {
			idx = i
		}
	}
	if idx == -1 {
		return errors.Wrapf(ErrNotRegistered, "machine type %s", g.set.machineType)
	}
	if idx != len(r.live)-1 {
		return errors.Wrapf(ErrOutOfOrder, "machine type %s", g.set.machineType)
	}

	if err := r.unregister(g.set); err != nil {
		return err
	}
	r.live = r.live[:idx]
	return nil
}

// unregister removes the set, caller must hold the lock.
func (r *Registry) unregister(s *Set) error {
	for _, d := range s.descs {
		if r.descs[d.Opcode] != d {
			return errors.Wrapf(ErrNotRegistered, "%s", d)
		}
	}

	// Reverse order of installation.
	for i := len(s.descs) - 1; i >= 0; i-- {
		delete(r.descs, s.descs[i].Opcode)
	}
	return nil
}

// Close unregisters every live set, the newest first.
func (r *Registry) Close() error {
	for {
		r.mu.RLock()
		n := len(r.live)
		var g *Registration
		if n > 0 {
			g = r.live[n-1]
		}
		r.mu.RUnlock()

		if g == nil {
			return nil
		}
		if err := g.Close(); err != nil {
			return err
		}
	}
}

// Resolve returns the live descriptor owning the opcode.
func (r *Registry) Resolve(op Opcode) (*Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.descs[op]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownOpcode, "opcode %d", op)
	}
	return d, nil
}

// Opcodes returns all the live opcodes in ascending order.
func (r *Registry) Opcodes() []Opcode {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ops := make([]Opcode, 0, len(r.descs))
	for op := range r.descs {
		ops = append(ops, op)
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i] < ops[j] })
	return ops
}

// MachineTypes returns the machine types of the live registrations in
// registration order.
func (r *Registry) MachineTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, len(r.live))
	for i, g := range r.live {
		types[i] = g.set.machineType
	}
	return types
}
