// Package node assigns MNA row/column indices. Index 0 is ground and is
// never stamped; external circuit nodes come first, then voltage-defined
// branch unknowns and lazily created internal device nodes, interleaved in
// the order the devices create them at setup.
package node

import (
	"fmt"
	"sort"

	"github.com/pkg/errors"
)

type Map struct {
	indexOf   map[string]int
	nameOf    []string
	external  int // count of netlist-supplied indices, preserved across Reset
	internals []string
}

func NewMap() *Map {
	return &Map{
		indexOf: map[string]int{"0": 0},
		nameOf:  []string{"0"},
	}
}

// Ground returns the ground index.
func (m *Map) Ground() int { return 0 }

// Create allocates an index for an external node name, or returns the
// existing one. Ground aliases ("0", "gnd") map to index 0.
func (m *Map) Create(name string) int {
	if name == "0" || name == "gnd" {
		return 0
	}
	if idx, ok := m.indexOf[name]; ok {
		return idx
	}
	if len(m.internals) > 0 {
		panic(fmt.Sprintf("external node %s created after setup", name))
	}
	idx := len(m.nameOf)
	m.indexOf[name] = idx
	m.nameOf = append(m.nameOf, name)
	m.external = len(m.nameOf) - 1
	return idx
}

// CreateInternal allocates an index for a device-owned node, named by
// suffixing the owning entity ("Q1#col"). The derived name must be unique.
func (m *Map) CreateInternal(owner, suffix string) (int, error) {
	name := fmt.Sprintf("%s#%s", owner, suffix)
	if _, ok := m.indexOf[name]; ok {
		return 0, errors.Errorf("internal node %s already exists", name)
	}
	idx := len(m.nameOf)
	m.indexOf[name] = idx
	m.nameOf = append(m.nameOf, name)
	m.internals = append(m.internals, name)
	return idx, nil
}

// CreateBranch allocates an index for a branch-current unknown (voltage
// sources, inductors). Branch names never collide with node names.
func (m *Map) CreateBranch(device string) int {
	return mustInternal(m, device, "branch")
}

func mustInternal(m *Map, owner, suffix string) int {
	idx, err := m.CreateInternal(owner, suffix)
	if err != nil {
		// A device registering the same branch twice is a wiring bug.
		panic(err)
	}
	return idx
}

func (m *Map) Index(name string) (int, bool) {
	idx, ok := m.indexOf[name]
	return idx, ok
}

func (m *Map) Name(index int) string {
	if index < 0 || index >= len(m.nameOf) {
		return ""
	}
	return m.nameOf[index]
}

// Count returns the number of unknowns, excluding ground.
func (m *Map) Count() int { return len(m.nameOf) - 1 }

// ExternalNames returns the netlist-supplied node names in index order.
func (m *Map) ExternalNames() []string {
	names := make([]string, 0, m.external)
	for i := 1; i <= m.external; i++ {
		names = append(names, m.nameOf[i])
	}
	return names
}

// Reset releases internal and branch indices; external indices supplied by
// the netlist are preserved. Setup after Reset reproduces the same layout.
func (m *Map) Reset() {
	for _, name := range m.internals {
		delete(m.indexOf, name)
	}
	m.internals = nil
	m.nameOf = m.nameOf[:m.external+1]
}

// ResetAll drops every index including externals.
func (m *Map) ResetAll() {
	m.indexOf = map[string]int{"0": 0}
	m.nameOf = []string{"0"}
	m.external = 0
	m.internals = nil
}

// SortedNames returns all non-ground names sorted, for stable reporting.
func (m *Map) SortedNames() []string {
	names := make([]string, 0, m.Count())
	for name, idx := range m.indexOf {
		if idx == 0 {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
