// Package device implements the component model library. Each device kind
// is one struct implementing the behavior interfaces it supports; the
// behavior registry probes these interfaces to build per-entity behavior
// sets.
package device

import (
	"log"
	"math"

	"github.com/saugkim/spicecore/internal/consts"
	"github.com/saugkim/spicecore/pkg/matrix"
	"github.com/saugkim/spicecore/pkg/node"
	"github.com/saugkim/spicecore/pkg/param"
	"github.com/saugkim/spicecore/pkg/simerr"
	"github.com/saugkim/spicecore/pkg/state"
)

type Device interface {
	GetName() string
	GetType() string
	GetNodeNames() []string
	GetNodes() []int
	SetNodes(nodes []int) error
	PinCount() int
	Params() *param.Bundle
}

// Temperature behaviors compute temperature-dependent constants. They run
// once before any Load in the same analysis and again when the temperature
// changes.
type Temperature interface {
	UpdateTemperature(temp float64) error
}

// Loader behaviors stamp the DC/iteration contribution into the MNA system.
type Loader interface {
	Stamp(m matrix.Stamper, st *state.Status) error
}

// ACLoader behaviors stamp the complex small-signal contribution at the
// analysis frequency, around the previously solved operating point.
type ACLoader interface {
	StampAC(m matrix.Stamper, st *state.Status) error
}

// Transient behaviors own charge storage in pool-allocated derivative
// slots, created during Setup and seeded from the operating point.
type Transient interface {
	InitStorage(solution []float64)
	UpdateState(solution []float64, st *state.Status)
}

// Accepter behaviors commit per-timepoint state, in entity-insertion order,
// before the pool's derivative slots rotate. A device that keeps a history
// ring pushes the accepted point into it from Accept.
type Accepter interface {
	Accept(st *state.Status)
}

// NonLinear devices participate in Newton iteration: voltage limiting on
// each new solution and a predicted-current convergence test.
type NonLinear interface {
	// UpdateVoltages reads the new solution, applies junction limiting,
	// and reports whether any voltage was limited this iteration.
	UpdateVoltages(solution []float64, st *state.Status) bool
	IsConvergent(solution []float64, reltol, abstol float64) bool
}

// Noiser devices expose noise generators evaluated over the AC solution.
type Noiser interface {
	NoiseSources() []*NoiseGenerator
}

// Setuper devices allocate internal nodes and state slots during setup and
// release them on unsetup.
type Setuper interface {
	Setup(nodes *node.Map, pool *state.Pool) error
	Unsetup()
}

// Brancher devices own an MNA branch-current unknown.
type Brancher interface {
	BranchIndex() int
	SetBranchIndex(idx int)
}

type SourceType int

const (
	DC SourceType = iota
	SIN
	PULSE
	PWL
)

type BaseDevice struct {
	Name      string
	Nodes     []int
	NodeNames []string
	Value     float64
	Bundle    *param.Bundle
	Warnf     func(format string, args ...any)
}

func NewBase(name string, nodeNames []string, value float64) BaseDevice {
	return BaseDevice{
		Name:      name,
		Nodes:     make([]int, len(nodeNames)),
		NodeNames: nodeNames,
		Value:     value,
		Bundle:    param.NewBundle(),
		Warnf:     log.Printf,
	}
}

func (d *BaseDevice) GetName() string        { return d.Name }
func (d *BaseDevice) GetNodes() []int        { return d.Nodes }
func (d *BaseDevice) GetNodeNames() []string { return d.NodeNames }
func (d *BaseDevice) GetValue() float64      { return d.Value }
func (d *BaseDevice) PinCount() int          { return len(d.NodeNames) }
func (d *BaseDevice) Params() *param.Bundle  { return d.Bundle }

func (d *BaseDevice) SetNodes(nodes []int) error {
	if len(nodes) != len(d.NodeNames) {
		return &simerr.PinCountMismatchError{
			Device:   d.Name,
			Expected: len(d.NodeNames),
			Got:      len(nodes),
		}
	}
	copy(d.Nodes, nodes)
	return nil
}

// SetWarnSink installs the circuit's warning sink.
func (d *BaseDevice) SetWarnSink(warnf func(format string, args ...any)) {
	if warnf != nil {
		d.Warnf = warnf
	}
}

// voltageAt reads a node voltage, treating ground as 0.
func voltageAt(solution []float64, n int) float64 {
	if n <= 0 || n >= len(solution) {
		return 0
	}
	return solution[n]
}

// ThermalVoltage returns kT/q.
func ThermalVoltage(temp float64) float64 {
	if temp <= 0 {
		temp = consts.REFTEMP
	}
	return consts.BOLTZMANN * temp / consts.CHARGE
}

// Pnjlim limits a junction voltage update the SPICE3F5 way: once past the
// critical voltage, steps larger than 2*vt are pulled back logarithmically.
// The limited flag forces the solver to keep iterating.
func Pnjlim(vnew, vold, vt, vcrit float64) (float64, bool) {
	if vnew <= vcrit || math.Abs(vnew-vold) <= 2*vt {
		return vnew, false
	}
	if vold > 0 {
		arg := 1.0 + (vnew-vold)/vt
		if arg > 0 {
			return vold + vt*math.Log(arg), true
		}
		return vcrit, true
	}
	return vt * math.Log(vnew/vt), true
}

// CriticalVoltage returns the junction voltage where the exponential current
// slope crosses 1/sqrt(2), the Pnjlim threshold.
func CriticalVoltage(is, vte float64) float64 {
	return vte * math.Log(vte/(math.Sqrt2*is))
}

// limitExp is a guarded exponential for junction equations.
func limitExp(x float64) float64 {
	if x > 80.0 {
		return math.Exp(80.0) * (1.0 + x - 80.0)
	}
	if x < -80.0 {
		return math.Exp(-80.0)
	}
	return math.Exp(x)
}

// junctionCharge integrates a graded-junction depletion capacitance up to
// v: closed form below fc*vj, linear extrapolation of the capacitance above.
func junctionCharge(v, cj0, vj, mj, fc float64) (q, cap float64) {
	if cj0 == 0 {
		return 0, 0
	}
	tDepCap := fc * vj
	if v < tDepCap {
		arg := 1 - v/vj
		sarg := math.Exp(-mj * math.Log(arg))
		return vj * cj0 * (1 - arg*sarg) / (1 - mj), cj0 * sarg
	}

	xfc := math.Log(1 - fc)
	f1 := vj * (1 - math.Exp((1-mj)*xfc)) / (1 - mj)
	f2 := math.Exp((1 + mj) * xfc)
	f3 := 1 - fc*(1+mj)
	czf2 := cj0 / f2
	q = cj0*f1 + czf2*(f3*(v-tDepCap)+(mj/(2*vj))*(v*v-tDepCap*tDepCap))
	cap = czf2 * (f3 + mj*v/vj)
	return q, cap
}

// stampConductance adds the standard two-terminal conductance pattern.
func stampConductance(m matrix.Stamper, n1, n2 int, g float64) {
	if n1 != 0 {
		m.AddElement(n1, n1, g)
		if n2 != 0 {
			m.AddElement(n1, n2, -g)
		}
	}
	if n2 != 0 {
		if n1 != 0 {
			m.AddElement(n2, n1, -g)
		}
		m.AddElement(n2, n2, g)
	}
}

// stampComplexConductance adds the two-terminal pattern with admittance.
func stampComplexConductance(m matrix.Stamper, n1, n2 int, gr, gi float64) {
	if n1 != 0 {
		m.AddComplexElement(n1, n1, gr, gi)
		if n2 != 0 {
			m.AddComplexElement(n1, n2, -gr, -gi)
		}
	}
	if n2 != 0 {
		if n1 != 0 {
			m.AddComplexElement(n2, n1, -gr, -gi)
		}
		m.AddComplexElement(n2, n2, gr, gi)
	}
}

// stampCurrent adds a current flowing from n1 to n2 into the RHS.
func stampCurrent(m matrix.Stamper, n1, n2 int, i float64) {
	if n1 != 0 {
		m.AddRHS(n1, -i)
	}
	if n2 != 0 {
		m.AddRHS(n2, i)
	}
}
