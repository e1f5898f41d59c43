// Package state owns the shared simulation state: solution vectors, the
// per-device history rings and the integrator derivative slots. Devices
// allocate slots at setup and keep non-owning references; the pool rotates
// the derivative slots when a timepoint is accepted, while each history ring
// is pushed by the device that owns it.
package state

import (
	"math"

	"github.com/saugkim/spicecore/pkg/util"
)

type AnalysisMode int

const (
	OperatingPointAnalysis AnalysisMode = iota
	DCSweepAnalysis
	ACAnalysis
	TransientAnalysis
	NoiseAnalysis
)

// InitMode drives the Newton solver's junction initialization machine.
type InitMode int

const (
	InitJunction InitMode = iota // force junctions to critical voltage
	InitFix                      // honor user-supplied IC flags
	InitNormal                   // read voltages from the solution
)

// Status carries the per-iteration simulation context handed to behaviors.
type Status struct {
	Mode      AnalysisMode
	Init      InitMode
	Time      float64
	TimeStep  float64
	Temp      float64
	Gmin      float64
	Frequency float64
	SrcScale  float64 // independent source scale for source stepping
	Method    util.IntegrationMethod
	Order     int
	UseIC     bool
}

// Clone returns an independent copy, so a stepping strategy can mutate its
// status without disturbing the caller's.
func (s Status) Clone() *Status {
	c := s
	return &c
}

// Pool owns the solution vectors and every device-allocated slot.
type Pool struct {
	Solution []float64 // current Newton iterate
	PrevIter []float64 // previous Newton iterate
	Accepted []float64 // last accepted timepoint

	Status Status

	slots []*Derivative
	rings []*History
}

func NewPool() *Pool {
	return &Pool{
		Status: Status{
			Temp:     300.15,
			Gmin:     1e-12,
			SrcScale: 1.0,
			Method:   util.TrapezoidalMethod,
			Order:    2,
		},
	}
}

// Resize allocates the solution vectors for n unknowns (index 0 unused).
func (p *Pool) Resize(n int) {
	p.Solution = make([]float64, n+1)
	p.PrevIter = make([]float64, n+1)
	p.Accepted = make([]float64, n+1)
}

// NewDerivative allocates an integrator slot with history deep enough for
// the highest Gear order.
func (p *Pool) NewDerivative() *Derivative {
	d := newDerivative(util.MaxOrder + 2)
	p.slots = append(p.slots, d)
	return d
}

// NewHistory allocates a history ring owned by the pool.
func (p *Pool) NewHistory(depth int) *History {
	h := NewHistory(depth)
	p.rings = append(p.rings, h)
	return h
}

// SlotCount reports allocated derivative slots, for setup/unsetup checks.
func (p *Pool) SlotCount() int { return len(p.slots) }

// ReleaseSlots drops all device slots and rings. Devices re-create them on
// the next setup.
func (p *Pool) ReleaseSlots() {
	p.slots = nil
	p.rings = nil
}

// CommitIteration snapshots the current iterate for convergence testing.
func (p *Pool) CommitIteration() {
	copy(p.PrevIter, p.Solution)
}

// AcceptTimepoint commits the solution as the accepted state and rotates
// every slot's history. Runs after all Accept behaviors, per the ordering
// contract.
func (p *Pool) AcceptTimepoint(dt float64) {
	copy(p.Accepted, p.Solution)
	for _, d := range p.slots {
		d.Rotate(dt)
	}
}

// MinNewStep proposes the next timestep as the minimum over all slots'
// truncation-error limits.
func (p *Pool) MinNewStep(dt, trtol, reltol, abstol float64) float64 {
	newDt := math.Inf(1)
	for _, d := range p.slots {
		if s := d.TruncationError(dt, p.Status.Method, p.Status.Order, trtol, reltol, abstol); s < newDt {
			newDt = s
		}
	}
	if math.IsInf(newDt, 1) {
		return dt
	}
	return newDt
}
