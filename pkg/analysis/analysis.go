// Package analysis implements the drivers: operating point with the Newton
// solver, DC sweep, AC, transient with the LTE timestep controller, and
// noise.
package analysis

import (
	"context"
	"math"
	"math/cmplx"

	"github.com/saugkim/spicecore/pkg/circuit"
	"github.com/saugkim/spicecore/pkg/simerr"
)

// Sink receives computed values as they are accepted. All callbacks are
// optional.
type Sink struct {
	OnNode    func(nodeIndex int, name string, value float64)
	OnDevice  func(device, property string, value float64)
	OnComplex func(name string, value complex128)
}

type Analysis interface {
	Setup(ckt *circuit.Circuit) error
	Execute(ctx context.Context) error
	Results() map[string][]float64
}

type BaseAnalysis struct {
	Circuit *circuit.Circuit
	Config  *Config
	Sink    *Sink
	results map[string][]float64
}

func NewBaseAnalysis(cfg *Config) *BaseAnalysis {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &BaseAnalysis{
		Config:  cfg,
		results: make(map[string][]float64),
	}
}

func (a *BaseAnalysis) Results() map[string][]float64 { return a.results }

// checkCancelled polls the cancellation token between Newton iterations and
// timesteps.
func (a *BaseAnalysis) checkCancelled(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return simerr.ErrCancelled
	default:
		return nil
	}
}

// CheckConvergence runs the global delta test against the previous iterate.
func (a *BaseAnalysis) CheckConvergence(oldSol, newSol []float64) bool {
	if len(oldSol) != len(newSol) {
		return false
	}
	for i := 1; i < len(newSol); i++ {
		diff := math.Abs(newSol[i] - oldSol[i])
		tol := a.Config.Reltol*math.Max(math.Abs(newSol[i]), math.Abs(oldSol[i])) + a.Config.Vntol
		if diff > tol {
			return false
		}
	}
	return true
}

func (a *BaseAnalysis) storeValue(name string, value float64) {
	a.results[name] = append(a.results[name], value)
}

// StoreTimeResult appends one accepted timepoint.
func (a *BaseAnalysis) StoreTimeResult(time float64, solution map[string]float64) {
	if times := a.results["TIME"]; len(times) > 0 && times[len(times)-1] == time {
		return
	}
	a.storeValue("TIME", time)
	for name, value := range solution {
		a.storeValue(name, value)
		a.emit(name, value)
	}
}

// StoreSweepResult appends one sweep point.
func (a *BaseAnalysis) StoreSweepResult(sweep float64, solution map[string]float64) {
	a.storeValue("SWEEP1", sweep)
	for name, value := range solution {
		a.storeValue(name, value)
		a.emit(name, value)
	}
}

// StoreACResult appends magnitude and phase of a complex solution.
func (a *BaseAnalysis) StoreACResult(freq float64, solution map[string]complex128) {
	a.storeValue("FREQ", freq)
	for name, value := range solution {
		a.storeValue(name+"_MAG", cmplx.Abs(value))
		a.storeValue(name+"_PHASE", cmplx.Phase(value)*180.0/math.Pi)
		if a.Sink != nil && a.Sink.OnComplex != nil {
			a.Sink.OnComplex(name, value)
		}
	}
}

func (a *BaseAnalysis) emit(name string, value float64) {
	if a.Sink == nil || a.Sink.OnDevice == nil {
		return
	}
	a.Sink.OnDevice(a.Circuit.Name(), name, value)
}
