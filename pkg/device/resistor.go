package device

import (
	"github.com/saugkim/spicecore/internal/consts"
	"github.com/saugkim/spicecore/pkg/matrix"
	"github.com/saugkim/spicecore/pkg/state"
)

type Resistor struct {
	BaseDevice
	g float64 // conductance at the current temperature
}

var (
	_ Temperature = (*Resistor)(nil)
	_ Loader      = (*Resistor)(nil)
	_ ACLoader    = (*Resistor)(nil)
	_ Noiser      = (*Resistor)(nil)
)

func NewResistor(name string, nodeNames []string, value float64) *Resistor {
	r := &Resistor{BaseDevice: NewBase(name, nodeNames, value)}
	b := r.Bundle
	b.DeclarePrincipal("r")
	if value > 0 {
		b.Set("r", value)
	}
	b.Default("w", 0)
	b.Default("l", 0)
	b.Default("rsh", 0)
	b.Default("narrow", 0)
	b.Default("tc1", 0)
	b.Default("tc2", 0)
	b.Default("tnom", consts.REFTEMP)
	r.g = 0
	return r
}

func (r *Resistor) GetType() string { return "R" }

// UpdateTemperature resolves the nominal resistance, from the given value or
// from sheet geometry, and applies the temperature polynomial.
func (r *Resistor) UpdateTemperature(temp float64) error {
	b := r.Bundle

	var r0 float64
	if b.Given("r") {
		r0 = b.Float("r")
	} else {
		w := b.Float("w") - b.Float("narrow")
		l := b.Float("l") - b.Float("narrow")
		if b.Float("rsh") != 0 && w > 0 {
			r0 = b.Float("rsh") * l / w
		}
	}
	if r0 == 0 {
		r.Warnf("resistor %s: zero resistance, set to 1000 ohm", r.Name)
		r0 = 1000.0
	}

	dt := temp - b.Float("tnom")
	factor := 1.0 + b.Float("tc1")*dt + b.Float("tc2")*dt*dt
	r.g = 1.0 / (r0 * factor)
	r.Value = r0 * factor
	return nil
}

func (r *Resistor) Conductance() float64 { return r.g }

func (r *Resistor) Stamp(m matrix.Stamper, st *state.Status) error {
	if r.g == 0 {
		if err := r.UpdateTemperature(st.Temp); err != nil {
			return err
		}
	}
	stampConductance(m, r.Nodes[0], r.Nodes[1], r.g)
	return nil
}

func (r *Resistor) StampAC(m matrix.Stamper, st *state.Status) error {
	stampComplexConductance(m, r.Nodes[0], r.Nodes[1], r.g, 0)
	return nil
}

// NoiseSources exposes the thermal noise of the resistance, 4kTG.
func (r *Resistor) NoiseSources() []*NoiseGenerator {
	gen := NewNoiseGenerator(r.Name, "thermal", ThermalNoise, r.Nodes[0], r.Nodes[1])
	gen.SetCoefficients(r.g)
	return []*NoiseGenerator{gen}
}

// CurrentThrough is used by result reporting.
func (r *Resistor) CurrentThrough(solution []float64) float64 {
	v := voltageAt(solution, r.Nodes[0]) - voltageAt(solution, r.Nodes[1])
	return v * r.g
}
