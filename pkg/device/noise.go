package device

import (
	"math"

	"github.com/saugkim/spicecore/internal/consts"
)

type NoiseKind int

const (
	ThermalNoise NoiseKind = iota
	ShotNoise
	FlickerNoise
)

// NoiseSim is what a generator needs from the running noise analysis: the
// transfer function from a current injected across a node pair to the
// designated output, and the analysis context.
type NoiseSim interface {
	// Transfer returns H for a unit current injected from n1 to n2.
	Transfer(n1, n2 int) complex128
	Frequency() float64
	Temperature() float64
}

// NoiseGenerator is one physical noise source of a device. Coefficients are
// set by the owning device at each operating point; Calculate returns the
// output-referred PSD contribution in V^2/Hz.
type NoiseGenerator struct {
	device string
	name   string
	kind   NoiseKind
	n1, n2 int
	coeffs []float64
}

func NewNoiseGenerator(device, name string, kind NoiseKind, n1, n2 int) *NoiseGenerator {
	return &NoiseGenerator{device: device, name: name, kind: kind, n1: n1, n2: n2}
}

func (g *NoiseGenerator) Device() string { return g.device }
func (g *NoiseGenerator) Name() string   { return g.name }

// SetCoefficients stores the kind-specific operating-point values:
// thermal: conductance; shot: DC current; flicker: KF, AF, DC current.
func (g *NoiseGenerator) SetCoefficients(values ...float64) {
	g.coeffs = append(g.coeffs[:0], values...)
}

// Calculate returns the PSD contribution at the analysis output.
func (g *NoiseGenerator) Calculate(sim NoiseSim) float64 {
	h := sim.Transfer(g.n1, g.n2)
	h2 := real(h)*real(h) + imag(h)*imag(h)

	switch g.kind {
	case ThermalNoise:
		if len(g.coeffs) < 1 {
			return 0
		}
		gcond := g.coeffs[0]
		return 4.0 * consts.BOLTZMANN * sim.Temperature() * gcond * h2

	case ShotNoise:
		if len(g.coeffs) < 1 {
			return 0
		}
		id := g.coeffs[0]
		return 2.0 * consts.CHARGE * math.Abs(id) * h2

	case FlickerNoise:
		if len(g.coeffs) < 3 {
			return 0
		}
		kf, af, id := g.coeffs[0], g.coeffs[1], g.coeffs[2]
		f := sim.Frequency()
		if kf == 0 || f <= 0 {
			return 0
		}
		return kf * math.Pow(math.Abs(id), af) / f * h2

	default:
		return 0
	}
}
