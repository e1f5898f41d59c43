package analysis

import (
	"context"
	"fmt"
	"math"

	"github.com/pkg/errors"

	"github.com/saugkim/spicecore/pkg/circuit"
	"github.com/saugkim/spicecore/pkg/device"
	"github.com/saugkim/spicecore/pkg/state"
)

// ACAnalysis computes the small-signal response around the DC operating
// point over a frequency sweep. The circuit must be built complex.
type ACAnalysis struct {
	BaseAnalysis
	op          *OperatingPoint
	startFreq   float64
	stopFreq    float64
	numPoints   int
	pointsType  string // "DEC", "OCT", "LIN"
	frequencies []float64
}

func NewAC(cfg *Config, fStart, fStop float64, nPoints int, pType string) *ACAnalysis {
	return &ACAnalysis{
		BaseAnalysis: *NewBaseAnalysis(cfg),
		op:           NewOP(cfg),
		startFreq:    fStart,
		stopFreq:     fStop,
		numPoints:    nPoints,
		pointsType:   pType,
	}
}

func (ac *ACAnalysis) Setup(ckt *circuit.Circuit) error {
	ac.Circuit = ckt

	if err := ac.op.Setup(ckt); err != nil {
		return err
	}
	if err := ac.op.Solve(context.Background()); err != nil {
		return errors.Wrap(err, "operating point for AC")
	}

	ac.frequencies = FrequencyPoints(ac.pointsType, ac.startFreq, ac.stopFreq, ac.numPoints)
	return nil
}

// solveAt stamps and solves the complex system at one frequency.
func (ac *ACAnalysis) solveAt(freq float64) error {
	ckt := ac.Circuit
	mat := ckt.Matrix()

	st := ckt.Pool().Status.Clone()
	st.Mode = state.ACAnalysis
	st.Frequency = freq
	st.Temp = ac.Config.Temperature
	st.Gmin = ac.Config.Gmin

	mat.Clear()
	if err := ckt.StampAC(st); err != nil {
		return err
	}
	if err := mat.Solve(); err != nil {
		return err
	}
	return nil
}

func (ac *ACAnalysis) Execute(ctx context.Context) error {
	if ac.Circuit == nil {
		return errors.New("circuit not set")
	}
	ckt := ac.Circuit
	mat := ckt.Matrix()

	for _, freq := range ac.frequencies {
		if err := ac.checkCancelled(ctx); err != nil {
			return err
		}

		if err := ac.solveAt(freq); err != nil {
			return errors.Wrapf(err, "at f=%g", freq)
		}

		solution := make(map[string]complex128)
		for _, name := range ckt.Nodes().ExternalNames() {
			idx, _ := ckt.Nodes().Index(name)
			solution[fmt.Sprintf("V(%s)", name)] = mat.ComplexSolution(idx)
		}
		for _, dev := range ckt.Devices() {
			if v, ok := dev.(*device.VoltageSource); ok {
				solution[fmt.Sprintf("I(%s)", dev.GetName())] = mat.ComplexSolution(v.BranchIndex())
			}
		}

		ac.StoreACResult(freq, solution)
	}

	return nil
}

// FrequencyPoints expands a DEC/OCT/LIN sweep description.
func FrequencyPoints(pointsType string, fStart, fStop float64, nPoints int) []float64 {
	if nPoints < 1 {
		return nil
	}
	if nPoints == 1 {
		return []float64{fStart}
	}
	freqs := make([]float64, nPoints)

	switch pointsType {
	case "OCT":
		logStart := math.Log2(fStart)
		step := (math.Log2(fStop) - logStart) / float64(nPoints-1)
		for i := range freqs {
			freqs[i] = math.Pow(2, logStart+float64(i)*step)
		}
	case "LIN":
		step := (fStop - fStart) / float64(nPoints-1)
		for i := range freqs {
			freqs[i] = fStart + float64(i)*step
		}
	default: // DEC
		logStart := math.Log10(fStart)
		step := (math.Log10(fStop) - logStart) / float64(nPoints-1)
		for i := range freqs {
			freqs[i] = math.Pow(10, logStart+float64(i)*step)
		}
	}
	return freqs
}
