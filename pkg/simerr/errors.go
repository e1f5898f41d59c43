// Package simerr defines the error values the simulation engine reports.
// Numerical failures (singular matrix, no convergence, timestep floor) are
// recovered by the solvers where possible; setup failures are fatal.
package simerr

import (
	"github.com/pkg/errors"
)

var (
	// ErrCancelled is returned when the analysis context is cancelled
	// between Newton iterations or timesteps.
	ErrCancelled = errors.New("simulation cancelled")

	// ErrUnknownOption is returned for .options names the engine does not know.
	ErrUnknownOption = errors.New("unknown option")
)

// SingularMatrixError reports a failed LU factorization. Row identifies the
// pivot that became zero, in external (MNA) numbering.
type SingularMatrixError struct {
	Row int
}

func (e *SingularMatrixError) Error() string {
	return errors.Errorf("singular matrix at row %d", e.Row).Error()
}

// NoConvergenceError reports that Newton iteration hit its cap.
type NoConvergenceError struct {
	Iterations int
}

func (e *NoConvergenceError) Error() string {
	return errors.Errorf("no convergence in %d iterations", e.Iterations).Error()
}

// TimestepTooSmallError reports that the LTE controller shrank the timestep
// below its floor.
type TimestepTooSmallError struct {
	Time float64
	Step float64
}

func (e *TimestepTooSmallError) Error() string {
	return errors.Errorf("timestep %g too small at t=%g", e.Step, e.Time).Error()
}

// PinCountMismatchError reports a wiring error at device setup.
type PinCountMismatchError struct {
	Device   string
	Expected int
	Got      int
}

func (e *PinCountMismatchError) Error() string {
	return errors.Errorf("%s: expected %d pins, got %d", e.Device, e.Expected, e.Got).Error()
}

// MissingParameterError reports a required parameter that was never given.
type MissingParameterError struct {
	Name string
}

func (e *MissingParameterError) Error() string {
	return errors.Errorf("missing parameter %q", e.Name).Error()
}

// ModelParameterOutOfRangeError reports a parameter value outside its
// physical range, e.g. a negative area.
type ModelParameterOutOfRangeError struct {
	Name  string
	Value float64
}

func (e *ModelParameterOutOfRangeError) Error() string {
	return errors.Errorf("model parameter %s out of range: %g", e.Name, e.Value).Error()
}

// TopologyKind classifies circuit topology errors.
type TopologyKind int

const (
	FloatingNode TopologyKind = iota
	VoltageSourceLoop
)

func (k TopologyKind) String() string {
	switch k {
	case FloatingNode:
		return "floating node"
	case VoltageSourceLoop:
		return "voltage source loop"
	default:
		return "topology error"
	}
}

// CircuitTopologyError reports an unsolvable circuit structure.
type CircuitTopologyError struct {
	Kind   TopologyKind
	Detail string
}

func (e *CircuitTopologyError) Error() string {
	return errors.Errorf("%s: %s", e.Kind, e.Detail).Error()
}
