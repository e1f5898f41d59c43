package device

import (
	"github.com/saugkim/spicecore/pkg/matrix"
	"github.com/saugkim/spicecore/pkg/node"
	"github.com/saugkim/spicecore/pkg/state"
)

// VCVS is a voltage-controlled voltage source (E element).
// Pins: n+, n-, control+, control-.
type VCVS struct {
	BaseDevice
	branchIdx int
}

var (
	_ Loader   = (*VCVS)(nil)
	_ ACLoader = (*VCVS)(nil)
	_ Setuper  = (*VCVS)(nil)
	_ Brancher = (*VCVS)(nil)
)

func NewVCVS(name string, nodeNames []string, gain float64) *VCVS {
	e := &VCVS{BaseDevice: NewBase(name, nodeNames, gain)}
	e.Bundle.DeclarePrincipal("gain")
	e.Bundle.Set("gain", gain)
	return e
}

func (e *VCVS) GetType() string { return "E" }

func (e *VCVS) BranchIndex() int       { return e.branchIdx }
func (e *VCVS) SetBranchIndex(idx int) { e.branchIdx = idx }

func (e *VCVS) Setup(nodes *node.Map, pool *state.Pool) error {
	if e.branchIdx == 0 {
		e.branchIdx = nodes.CreateBranch(e.Name)
	}
	return nil
}

func (e *VCVS) Unsetup() { e.branchIdx = 0 }

// Stamp enforces v(n+) - v(n-) = gain * (v(c+) - v(c-)).
func (e *VCVS) Stamp(m matrix.Stamper, st *state.Status) error {
	n1, n2, c1, c2 := e.Nodes[0], e.Nodes[1], e.Nodes[2], e.Nodes[3]
	b := e.branchIdx
	gain := e.Bundle.Float("gain")

	if n1 != 0 {
		m.AddElement(b, n1, 1)
		m.AddElement(n1, b, 1)
	}
	if n2 != 0 {
		m.AddElement(b, n2, -1)
		m.AddElement(n2, b, -1)
	}
	if c1 != 0 {
		m.AddElement(b, c1, -gain)
	}
	if c2 != 0 {
		m.AddElement(b, c2, gain)
	}
	return nil
}

func (e *VCVS) StampAC(m matrix.Stamper, st *state.Status) error {
	n1, n2, c1, c2 := e.Nodes[0], e.Nodes[1], e.Nodes[2], e.Nodes[3]
	b := e.branchIdx
	gain := e.Bundle.Float("gain")

	if n1 != 0 {
		m.AddComplexElement(b, n1, 1, 0)
		m.AddComplexElement(n1, b, 1, 0)
	}
	if n2 != 0 {
		m.AddComplexElement(b, n2, -1, 0)
		m.AddComplexElement(n2, b, -1, 0)
	}
	if c1 != 0 {
		m.AddComplexElement(b, c1, -gain, 0)
	}
	if c2 != 0 {
		m.AddComplexElement(b, c2, gain, 0)
	}
	return nil
}

// VCCS is a voltage-controlled current source (G element).
// Pins: n+, n-, control+, control-.
type VCCS struct {
	BaseDevice
}

var (
	_ Loader   = (*VCCS)(nil)
	_ ACLoader = (*VCCS)(nil)
)

func NewVCCS(name string, nodeNames []string, gm float64) *VCCS {
	g := &VCCS{BaseDevice: NewBase(name, nodeNames, gm)}
	g.Bundle.DeclarePrincipal("gm")
	g.Bundle.Set("gm", gm)
	return g
}

func (g *VCCS) GetType() string { return "G" }

func (g *VCCS) Stamp(m matrix.Stamper, st *state.Status) error {
	n1, n2, c1, c2 := g.Nodes[0], g.Nodes[1], g.Nodes[2], g.Nodes[3]
	gm := g.Bundle.Float("gm")

	add := func(i, j int, v float64) {
		if i != 0 && j != 0 {
			m.AddElement(i, j, v)
		}
	}
	add(n1, c1, gm)
	add(n1, c2, -gm)
	add(n2, c1, -gm)
	add(n2, c2, gm)
	return nil
}

func (g *VCCS) StampAC(m matrix.Stamper, st *state.Status) error {
	n1, n2, c1, c2 := g.Nodes[0], g.Nodes[1], g.Nodes[2], g.Nodes[3]
	gm := g.Bundle.Float("gm")

	add := func(i, j int, v float64) {
		if i != 0 && j != 0 {
			m.AddComplexElement(i, j, v, 0)
		}
	}
	add(n1, c1, gm)
	add(n1, c2, -gm)
	add(n2, c1, -gm)
	add(n2, c2, gm)
	return nil
}

// CCCS is a current-controlled current source (F element) sensing the
// branch current of a voltage source. Pins: n+, n-.
type CCCS struct {
	BaseDevice
	control *VoltageSource
}

var (
	_ Loader   = (*CCCS)(nil)
	_ ACLoader = (*CCCS)(nil)
)

func NewCCCS(name string, nodeNames []string, gain float64) *CCCS {
	f := &CCCS{BaseDevice: NewBase(name, nodeNames, gain)}
	f.Bundle.DeclarePrincipal("gain")
	f.Bundle.Set("gain", gain)
	return f
}

func (f *CCCS) GetType() string { return "F" }

func (f *CCCS) BindControl(v *VoltageSource) { f.control = v }

func (f *CCCS) Stamp(m matrix.Stamper, st *state.Status) error {
	if f.control == nil {
		return nil
	}
	n1, n2 := f.Nodes[0], f.Nodes[1]
	b := f.control.BranchIndex()
	gain := f.Bundle.Float("gain")

	if n1 != 0 {
		m.AddElement(n1, b, gain)
	}
	if n2 != 0 {
		m.AddElement(n2, b, -gain)
	}
	return nil
}

func (f *CCCS) StampAC(m matrix.Stamper, st *state.Status) error {
	if f.control == nil {
		return nil
	}
	n1, n2 := f.Nodes[0], f.Nodes[1]
	b := f.control.BranchIndex()
	gain := f.Bundle.Float("gain")

	if n1 != 0 {
		m.AddComplexElement(n1, b, gain, 0)
	}
	if n2 != 0 {
		m.AddComplexElement(n2, b, -gain, 0)
	}
	return nil
}

// CCVS is a current-controlled voltage source (H element) sensing the
// branch current of a voltage source. Pins: n+, n-.
type CCVS struct {
	BaseDevice
	control   *VoltageSource
	branchIdx int
}

var (
	_ Loader   = (*CCVS)(nil)
	_ ACLoader = (*CCVS)(nil)
	_ Setuper  = (*CCVS)(nil)
	_ Brancher = (*CCVS)(nil)
)

func NewCCVS(name string, nodeNames []string, transres float64) *CCVS {
	h := &CCVS{BaseDevice: NewBase(name, nodeNames, transres)}
	h.Bundle.DeclarePrincipal("transres")
	h.Bundle.Set("transres", transres)
	return h
}

func (h *CCVS) GetType() string { return "H" }

func (h *CCVS) BindControl(v *VoltageSource) { h.control = v }

func (h *CCVS) BranchIndex() int       { return h.branchIdx }
func (h *CCVS) SetBranchIndex(idx int) { h.branchIdx = idx }

func (h *CCVS) Setup(nodes *node.Map, pool *state.Pool) error {
	if h.branchIdx == 0 {
		h.branchIdx = nodes.CreateBranch(h.Name)
	}
	return nil
}

func (h *CCVS) Unsetup() { h.branchIdx = 0 }

// Stamp enforces v(n+) - v(n-) = transres * i(control).
func (h *CCVS) Stamp(m matrix.Stamper, st *state.Status) error {
	if h.control == nil {
		return nil
	}
	n1, n2 := h.Nodes[0], h.Nodes[1]
	b := h.branchIdx
	cb := h.control.BranchIndex()
	r := h.Bundle.Float("transres")

	if n1 != 0 {
		m.AddElement(b, n1, 1)
		m.AddElement(n1, b, 1)
	}
	if n2 != 0 {
		m.AddElement(b, n2, -1)
		m.AddElement(n2, b, -1)
	}
	m.AddElement(b, cb, -r)
	return nil
}

func (h *CCVS) StampAC(m matrix.Stamper, st *state.Status) error {
	if h.control == nil {
		return nil
	}
	n1, n2 := h.Nodes[0], h.Nodes[1]
	b := h.branchIdx
	cb := h.control.BranchIndex()
	r := h.Bundle.Float("transres")

	if n1 != 0 {
		m.AddComplexElement(b, n1, 1, 0)
		m.AddComplexElement(n1, b, 1, 0)
	}
	if n2 != 0 {
		m.AddComplexElement(b, n2, -1, 0)
		m.AddComplexElement(n2, b, -1, 0)
	}
	m.AddComplexElement(b, cb, -r, 0)
	return nil
}
