package analysis

import (
	"context"
	"math"

	"github.com/pkg/errors"

	"github.com/saugkim/spicecore/pkg/circuit"
	"github.com/saugkim/spicecore/pkg/simerr"
	"github.com/saugkim/spicecore/pkg/state"
)

// Transient integrates the circuit through time. The controller prospects a
// step, solves it with Newton, and accepts it only if the worst local
// truncation error allows; Newton failure halves the step, LTE failure
// shrinks it, success grows it toward the per-slot proposal.
type Transient struct {
	BaseAnalysis
	op        *OperatingPoint
	time      float64
	startTime float64
	stopTime  float64
	timeStep  float64
	maxStep   float64
	minStep   float64
	useUIC    bool
	firstStep bool
}

func NewTransient(cfg *Config, tStart, tStop, tStep, tMax float64, uic bool) *Transient {
	if tMax == 0 {
		tMax = tStep
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.MaxStep > 0 && cfg.MaxStep < tMax {
		tMax = cfg.MaxStep
	}

	return &Transient{
		BaseAnalysis: *NewBaseAnalysis(cfg),
		op:           NewOP(cfg),
		startTime:    tStart,
		stopTime:     tStop,
		timeStep:     tStep,
		maxStep:      tMax,
		minStep:      tStep / 50000.0,
		useUIC:       uic,
		firstStep:    true,
	}
}

func (tr *Transient) Setup(ckt *circuit.Circuit) error {
	tr.Circuit = ckt
	if err := tr.op.Setup(ckt); err != nil {
		return err
	}

	if tr.useUIC {
		tr.applyICs()
	} else {
		if err := tr.op.Solve(context.Background()); err != nil {
			return errors.Wrap(err, "initial operating point")
		}
		pool := ckt.Pool()
		copy(pool.Accepted, pool.Solution)
	}

	ckt.InitTransientStorage(tr.useUIC)
	return nil
}

// applyICs seeds the solution from .ic entries instead of an operating
// point.
func (tr *Transient) applyICs() {
	pool := tr.Circuit.Pool()
	for name, v := range tr.Circuit.ICs() {
		if idx, ok := tr.Circuit.Nodes().Index(name); ok && idx > 0 {
			pool.Solution[idx] = v
		}
	}
	copy(pool.Accepted, pool.Solution)
}

func (tr *Transient) Execute(ctx context.Context) error {
	if tr.Circuit == nil {
		return errors.New("circuit not set")
	}

	ckt := tr.Circuit
	pool := ckt.Pool()

	if tr.time >= tr.startTime {
		tr.StoreTimeResult(tr.time, ckt.Solution())
	}

	order := 1 // ramp to the configured order as history accumulates

	for tr.time < tr.stopTime {
		if err := tr.checkCancelled(ctx); err != nil {
			return err
		}

		dt := math.Min(tr.timeStep, tr.stopTime-tr.time)

		accepted := false
		for !accepted {
			st := pool.Status.Clone()
			st.Mode = state.TransientAnalysis
			st.Init = state.InitNormal
			st.Time = tr.time + dt
			st.TimeStep = dt
			st.Temp = tr.Config.Temperature
			st.Gmin = tr.Config.Gmin
			st.SrcScale = 1.0
			st.Method = tr.Config.Method
			st.Order = order

			err := tr.op.NRIter(ctx, st, 0, tr.Config.Itl4)
			if err != nil {
				if errors.Is(err, simerr.ErrCancelled) {
					return err
				}
				// Newton failed: halve and retry from the last accepted
				// point.
				dt /= 2
				if dt < tr.minStep {
					return &simerr.TimestepTooSmallError{Time: tr.time, Step: dt}
				}
				copy(pool.Solution, pool.Accepted)
				continue
			}

			ckt.UpdateState(pool.Solution, st)
			pool.Status = *st // LTE estimation reads method and order

			if tr.firstStep {
				// No history to estimate an error against.
				tr.firstStep = false
				tr.accept(st, dt)
				accepted = true
				break
			}

			newDt := pool.MinNewStep(dt, tr.Config.Trtol, tr.Config.Reltol, tr.Config.Abstol)
			if newDt < 0.9*dt {
				// LTE too large: reject and shrink.
				dt = math.Max(newDt, dt/8)
				if dt < tr.minStep {
					return &simerr.TimestepTooSmallError{Time: tr.time, Step: dt}
				}
				copy(pool.Solution, pool.Accepted)
				continue
			}

			tr.accept(st, dt)
			tr.timeStep = math.Min(math.Min(newDt, 2*dt), tr.maxStep)
			accepted = true
		}

		if order < tr.Config.Order {
			order++
		}
	}

	return nil
}

// accept commits the timepoint: Accept behaviors in entity order, then the
// pool rotates histories.
func (tr *Transient) accept(st *state.Status, dt float64) {
	tr.time += dt
	st.Time = tr.time
	tr.Circuit.AcceptTimepoint(st)
	if tr.time >= tr.startTime {
		tr.StoreTimeResult(tr.time, tr.Circuit.Solution())
	}
}
