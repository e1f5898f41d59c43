package analysis

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/saugkim/spicecore/pkg/circuit"
)

// NoiseAnalysis accumulates output-referred noise PSDs over a frequency
// sweep. At each frequency the AC system is factored once; each generator's
// transfer function is then one extra back-substitution with a unit current
// injected across the generator's node pair.
type NoiseAnalysis struct {
	BaseAnalysis
	ac         *ACAnalysis
	outputNode string
}

func NewNoise(cfg *Config, outputNode string, fStart, fStop float64, nPoints int, pType string) *NoiseAnalysis {
	return &NoiseAnalysis{
		BaseAnalysis: *NewBaseAnalysis(cfg),
		ac:           NewAC(cfg, fStart, fStop, nPoints, pType),
		outputNode:   outputNode,
	}
}

func (na *NoiseAnalysis) Setup(ckt *circuit.Circuit) error {
	na.Circuit = ckt
	return na.ac.Setup(ckt)
}

// noiseSim adapts the solved system for the generators.
type noiseSim struct {
	na     *NoiseAnalysis
	outIdx int
	freq   float64
}

func (s *noiseSim) Frequency() float64   { return s.freq }
func (s *noiseSim) Temperature() float64 { return s.na.Config.Temperature }

// Transfer solves for the output voltage caused by a unit current injected
// from n1 to n2, reusing the factorization at the present frequency.
func (s *noiseSim) Transfer(n1, n2 int) complex128 {
	mat := s.na.Circuit.Matrix()
	mat.ClearRHS()
	if n1 != 0 {
		mat.AddComplexRHS(n1, -1, 0)
	}
	if n2 != 0 {
		mat.AddComplexRHS(n2, 1, 0)
	}
	if err := mat.Solve(); err != nil {
		return 0
	}
	return mat.ComplexSolution(s.outIdx)
}

func (na *NoiseAnalysis) Execute(ctx context.Context) error {
	if na.Circuit == nil {
		return errors.New("circuit not set")
	}
	ckt := na.Circuit

	outIdx, ok := ckt.Nodes().Index(na.outputNode)
	if !ok || outIdx == 0 {
		return errors.Errorf("noise output node %s not found", na.outputNode)
	}

	gens := ckt.NoiseSources()

	for _, freq := range na.ac.frequencies {
		if err := na.checkCancelled(ctx); err != nil {
			return err
		}

		if err := na.ac.solveAt(freq); err != nil {
			return errors.Wrapf(err, "noise at f=%g", freq)
		}

		sim := &noiseSim{na: na, outIdx: outIdx, freq: freq}
		total := 0.0
		na.storeValue("FREQ", freq)
		for _, gen := range gens {
			psd := gen.Calculate(sim)
			total += psd
			name := fmt.Sprintf("N(%s.%s)", gen.Device(), gen.Name())
			na.storeValue(name, psd)
			if na.Sink != nil && na.Sink.OnDevice != nil {
				na.Sink.OnDevice(gen.Device(), gen.Name(), psd)
			}
		}
		na.storeValue("ONOISE", total)
	}

	return nil
}
