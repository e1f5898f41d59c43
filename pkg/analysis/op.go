package analysis

import (
	"context"
	"math"

	"github.com/pkg/errors"

	"github.com/saugkim/spicecore/pkg/circuit"
	"github.com/saugkim/spicecore/pkg/simerr"
	"github.com/saugkim/spicecore/pkg/state"
)

// OperatingPoint drives the Newton-Raphson DC solve: load, factor, solve,
// test convergence; on a singular system or a convergence failure it falls
// back to Gmin stepping or source stepping per the configured strategy.
type OperatingPoint struct {
	BaseAnalysis
}

func NewOP(cfg *Config) *OperatingPoint {
	return &OperatingPoint{BaseAnalysis: *NewBaseAnalysis(cfg)}
}

func (op *OperatingPoint) Setup(ckt *circuit.Circuit) error {
	op.Circuit = ckt
	return ckt.Setup()
}

// NRIter runs Newton iterations at a fixed extra Gmin and source scale.
// st is mutated: the init mode advances from InitJunction to InitNormal on
// the first solve.
func (op *OperatingPoint) NRIter(ctx context.Context, st *state.Status, gmin float64, maxIter int) error {
	ckt := op.Circuit
	mat := ckt.Matrix()
	pool := ckt.Pool()

	for iter := 0; iter < maxIter; iter++ {
		if err := op.checkCancelled(ctx); err != nil {
			return err
		}

		mat.Clear()
		if st.Mode == state.TransientAnalysis {
			ckt.UpdateState(pool.Solution, st)
		}
		if err := ckt.Stamp(st); err != nil {
			return err
		}
		mat.LoadGmin(gmin)

		if err := mat.Factor(); err != nil {
			// A fresh start from junction voltages sometimes survives a
			// pivot the current iterate kills.
			st.Init = state.InitJunction
			return err
		}
		if err := mat.Solve(); err != nil {
			return err
		}

		solution := mat.RealSolution()
		pool.CommitIteration()
		copy(pool.Solution, solution)

		limited := ckt.UpdateNonlinearVoltages(solution, st)
		firstIter := st.Init == state.InitJunction
		st.Init = state.InitNormal

		if firstIter || limited {
			continue
		}
		if !op.CheckConvergence(pool.PrevIter, solution) {
			continue
		}
		if !ckt.DevicesConverged(solution, op.Config.Reltol, op.Config.Abstol) {
			continue
		}
		return nil
	}

	return &simerr.NoConvergenceError{Iterations: maxIter}
}

// gminStepping retries with a large shunt on every node, relaxing it decade
// by decade toward zero.
func (op *OperatingPoint) gminStepping(ctx context.Context, st *state.Status) error {
	mat := op.Circuit.Matrix()

	startGmin := float64(mat.Size) * 1e-3
	gmin := startGmin * math.Pow(10, float64(op.Config.GminSteps))

	for i := 0; i <= op.Config.GminSteps; i++ {
		if err := op.NRIter(ctx, st, gmin, op.Config.Itl1); err != nil {
			return errors.Wrapf(err, "gmin stepping at %g", gmin)
		}
		gmin /= 10
	}
	return op.NRIter(ctx, st, 0, op.Config.Itl1)
}

// sourceStepping ramps the independent sources from zero to full value.
func (op *OperatingPoint) sourceStepping(ctx context.Context, st *state.Status) error {
	steps := op.Config.SrcSteps
	if steps < 1 {
		steps = 10
	}

	for i := 0; i <= steps; i++ {
		st.SrcScale = float64(i) / float64(steps)
		if err := op.NRIter(ctx, st, 0, op.Config.Itl1); err != nil {
			return errors.Wrapf(err, "source stepping at scale %g", st.SrcScale)
		}
	}
	st.SrcScale = 1.0
	return nil
}

func (op *OperatingPoint) newStatus() state.Status {
	pool := op.Circuit.Pool()
	st := pool.Status
	st.Mode = state.OperatingPointAnalysis
	st.Init = state.InitJunction
	st.Time = 0
	st.TimeStep = 0
	st.Temp = op.Config.Temperature
	st.Gmin = op.Config.Gmin
	st.SrcScale = 1.0
	return st
}

// Solve computes the operating point, recovering through the stepping
// strategies when the direct attempt fails.
func (op *OperatingPoint) Solve(ctx context.Context) error {
	st := op.newStatus()

	err := op.NRIter(ctx, st.Clone(), 0, op.Config.Itl1)
	if err == nil {
		return nil
	}
	if errors.Is(err, simerr.ErrCancelled) {
		return err
	}

	tryGmin := op.Config.Stepping == SteppingAuto || op.Config.Stepping == SteppingGmin
	trySource := op.Config.Stepping == SteppingAuto || op.Config.Stepping == SteppingSource

	if tryGmin {
		if gerr := op.gminStepping(ctx, st.Clone()); gerr == nil {
			return nil
		} else if errors.Is(gerr, simerr.ErrCancelled) {
			return gerr
		}
	}
	if trySource {
		if serr := op.sourceStepping(ctx, st.Clone()); serr == nil {
			return nil
		} else if errors.Is(serr, simerr.ErrCancelled) {
			return serr
		}
	}

	return err
}

func (op *OperatingPoint) Execute(ctx context.Context) error {
	if op.Circuit == nil {
		return errors.New("circuit not set")
	}
	if err := op.Solve(ctx); err != nil {
		return err
	}
	op.storeResults()
	return nil
}

func (op *OperatingPoint) storeResults() {
	for name, value := range op.Circuit.Solution() {
		op.results[name] = []float64{value}
		op.emit(name, value)
	}
	if op.Sink != nil && op.Sink.OnNode != nil {
		sol := op.Circuit.Pool().Solution
		for _, n := range op.Circuit.Nodes().ExternalNames() {
			idx, _ := op.Circuit.Nodes().Index(n)
			op.Sink.OnNode(idx, n, sol[idx])
		}
	}
}
