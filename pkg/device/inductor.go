package device

import (
	"math"

	"github.com/saugkim/spicecore/pkg/matrix"
	"github.com/saugkim/spicecore/pkg/node"
	"github.com/saugkim/spicecore/pkg/state"
)

// Inductor uses a branch-current unknown; the flux L*i lives in a
// derivative slot so v = dphi/dt follows the active integration formula.
type Inductor struct {
	BaseDevice
	branchIdx int
	flux      *state.Derivative
	history   *state.History

	// Mutual coupling partners stamp through these.
	couplings []*Mutual
}

var (
	_ Loader    = (*Inductor)(nil)
	_ ACLoader  = (*Inductor)(nil)
	_ Transient = (*Inductor)(nil)
	_ Accepter  = (*Inductor)(nil)
	_ Setuper   = (*Inductor)(nil)
	_ Brancher  = (*Inductor)(nil)
)

func NewInductor(name string, nodeNames []string, value float64) *Inductor {
	l := &Inductor{BaseDevice: NewBase(name, nodeNames, value)}
	l.Bundle.DeclarePrincipal("l")
	l.Bundle.Set("l", value)
	l.Bundle.Default("ic", 0)
	return l
}

func (l *Inductor) GetType() string { return "L" }

func (l *Inductor) BranchIndex() int       { return l.branchIdx }
func (l *Inductor) SetBranchIndex(idx int) { l.branchIdx = idx }

func (l *Inductor) Setup(nodes *node.Map, pool *state.Pool) error {
	if l.branchIdx == 0 {
		l.branchIdx = nodes.CreateBranch(l.Name)
	}
	l.flux = pool.NewDerivative()
	l.history = pool.NewHistory(3)
	return nil
}

func (l *Inductor) Unsetup() {
	l.branchIdx = 0
	l.flux = nil
	l.history = nil
}

func (l *Inductor) InitStorage(solution []float64) {
	i := 0.0
	if l.branchIdx > 0 && l.branchIdx < len(solution) {
		i = solution[l.branchIdx]
	}
	l.flux.Initialize(l.Bundle.Float("l") * i)
}

func (l *Inductor) InitIC() {
	l.flux.Initialize(l.Bundle.Float("l") * l.Bundle.Float("ic"))
}

func (l *Inductor) Stamp(m matrix.Stamper, st *state.Status) error {
	n1, n2 := l.Nodes[0], l.Nodes[1]
	bIdx := l.branchIdx
	ind := l.Bundle.Float("l")

	// Branch relation v1 - v2 - L di/dt = 0; branch current feeds the nodes.
	if n1 != 0 {
		m.AddElement(n1, bIdx, 1)
		m.AddElement(bIdx, n1, 1)
	}
	if n2 != 0 {
		m.AddElement(n2, bIdx, -1)
		m.AddElement(bIdx, n2, -1)
	}

	switch st.Mode {
	case state.TransientAnalysis:
		if l.flux != nil {
			phi := l.flux.Value()
			l.flux.Integrate(st.Method, st.Order, st.TimeStep)
			c0 := l.flux.Jacobian(1)
			m.AddElement(bIdx, bIdx, -c0*ind)
			for _, k := range l.couplings {
				if other := k.Other(l); other != nil {
					m.AddElement(bIdx, other.branchIdx, -c0*k.M())
				}
			}
			// History part of dphi/dt moves to the RHS.
			m.AddRHS(bIdx, l.flux.Derivative()-c0*phi)
		}
	default:
		// DC: short circuit, branch equation reduces to v1 = v2.
	}

	return nil
}

func (l *Inductor) StampAC(m matrix.Stamper, st *state.Status) error {
	n1, n2 := l.Nodes[0], l.Nodes[1]
	bIdx := l.branchIdx
	omega := 2 * math.Pi * st.Frequency

	if n1 != 0 {
		m.AddComplexElement(n1, bIdx, 1, 0)
		m.AddComplexElement(bIdx, n1, 1, 0)
	}
	if n2 != 0 {
		m.AddComplexElement(n2, bIdx, -1, 0)
		m.AddComplexElement(bIdx, n2, -1, 0)
	}
	m.AddComplexElement(bIdx, bIdx, 0, -omega*l.Bundle.Float("l"))

	for _, k := range l.couplings {
		other := k.Other(l)
		if other != nil {
			m.AddComplexElement(bIdx, other.branchIdx, 0, -omega*k.M())
		}
	}

	return nil
}

func (l *Inductor) UpdateState(solution []float64, st *state.Status) {
	if l.flux == nil {
		return
	}
	i := 0.0
	if l.branchIdx > 0 && l.branchIdx < len(solution) {
		i = solution[l.branchIdx]
	}
	phi := l.Bundle.Float("l") * i
	for _, k := range l.couplings {
		other := k.Other(l)
		if other != nil && other.branchIdx > 0 && other.branchIdx < len(solution) {
			phi += k.M() * solution[other.branchIdx]
		}
	}
	l.flux.SetValue(phi)
}

func (l *Inductor) Accept(st *state.Status) {
	if l.history != nil && l.flux != nil {
		l.history.Push(st.Time, l.flux.Value()/max(l.Bundle.Float("l"), 1e-300))
	}
}

func (l *Inductor) Current(solution []float64) float64 {
	if l.branchIdx > 0 && l.branchIdx < len(solution) {
		return solution[l.branchIdx]
	}
	return 0
}

func (l *Inductor) addCoupling(k *Mutual) {
	l.couplings = append(l.couplings, k)
}
