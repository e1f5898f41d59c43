package device

import (
	"math"

	"github.com/saugkim/spicecore/pkg/matrix"
	"github.com/saugkim/spicecore/pkg/node"
	"github.com/saugkim/spicecore/pkg/state"
)

type Capacitor struct {
	BaseDevice
	charge  *state.Derivative
	history *state.History
	geq     float64
	ieq     float64
}

var (
	_ Loader    = (*Capacitor)(nil)
	_ ACLoader  = (*Capacitor)(nil)
	_ Transient = (*Capacitor)(nil)
	_ Accepter  = (*Capacitor)(nil)
	_ Setuper   = (*Capacitor)(nil)
)

func NewCapacitor(name string, nodeNames []string, value float64) *Capacitor {
	c := &Capacitor{BaseDevice: NewBase(name, nodeNames, value)}
	c.Bundle.DeclarePrincipal("c")
	c.Bundle.Set("c", value)
	c.Bundle.Default("ic", 0)
	return c
}

func (c *Capacitor) GetType() string { return "C" }

func (c *Capacitor) Setup(nodes *node.Map, pool *state.Pool) error {
	c.charge = pool.NewDerivative()
	c.history = pool.NewHistory(3)
	return nil
}

func (c *Capacitor) Unsetup() {
	c.charge = nil
	c.history = nil
}

// InitStorage seeds the charge slot from the operating point (or the IC
// value under uic).
func (c *Capacitor) InitStorage(solution []float64) {
	v := voltageAt(solution, c.Nodes[0]) - voltageAt(solution, c.Nodes[1])
	c.charge.Initialize(c.Bundle.Float("c") * v)
}

// InitIC forces the use-IC initial voltage.
func (c *Capacitor) InitIC() {
	c.charge.Initialize(c.Bundle.Float("c") * c.Bundle.Float("ic"))
}

func (c *Capacitor) Stamp(m matrix.Stamper, st *state.Status) error {
	n1, n2 := c.Nodes[0], c.Nodes[1]
	cap := c.Bundle.Float("c")

	switch st.Mode {
	case state.TransientAnalysis:
		v := 0.0
		if c.charge != nil {
			// Companion model from the active integration formula.
			v = c.charge.Value() / max(cap, 1e-300)
			c.charge.Integrate(st.Method, st.Order, st.TimeStep)
			c.geq = c.charge.Jacobian(cap)
			c.ieq = c.charge.RHSCurrent(c.geq, v)
		}
		stampConductance(m, n1, n2, c.geq)
		if n1 != 0 {
			m.AddRHS(n1, c.ieq)
		}
		if n2 != 0 {
			m.AddRHS(n2, -c.ieq)
		}

	default:
		// DC: open circuit, kept solvable by the gmin shunt.
		gmin := st.Gmin
		if gmin < 1e-12 {
			gmin = 1e-12
		}
		stampConductance(m, n1, n2, gmin)
	}

	return nil
}

func (c *Capacitor) StampAC(m matrix.Stamper, st *state.Status) error {
	omega := 2 * math.Pi * st.Frequency
	stampComplexConductance(m, c.Nodes[0], c.Nodes[1], 0, omega*c.Bundle.Float("c"))
	return nil
}

// UpdateState writes the new charge for the prospective solution.
func (c *Capacitor) UpdateState(solution []float64, st *state.Status) {
	v := voltageAt(solution, c.Nodes[0]) - voltageAt(solution, c.Nodes[1])
	if c.charge != nil {
		c.charge.SetValue(c.Bundle.Float("c") * v)
	}
}

// Accept records the accepted voltage into the history ring.
func (c *Capacitor) Accept(st *state.Status) {
	if c.history != nil && c.charge != nil {
		cap := c.Bundle.Float("c")
		c.history.Push(st.Time, c.charge.Value()/max(cap, 1e-300))
	}
}
