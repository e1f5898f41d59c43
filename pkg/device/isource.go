package device

import (
	"math"

	"github.com/saugkim/spicecore/pkg/matrix"
	"github.com/saugkim/spicecore/pkg/state"
)

type CurrentSource struct {
	BaseDevice
	wave    waveform
	acMag   float64
	acPhase float64
}

var (
	_ Loader   = (*CurrentSource)(nil)
	_ ACLoader = (*CurrentSource)(nil)
)

func NewDCCurrentSource(name string, nodeNames []string, value float64) *CurrentSource {
	c := &CurrentSource{
		BaseDevice: NewBase(name, nodeNames, value),
		wave:       waveform{kind: DC, dcValue: value},
	}
	c.Bundle.DeclarePrincipal("dc")
	c.Bundle.Set("dc", value)
	return c
}

func NewSinCurrentSource(name string, nodeNames []string, offset, amplitude, freq, phase float64) *CurrentSource {
	c := NewDCCurrentSource(name, nodeNames, offset)
	c.wave = waveform{kind: SIN, dcValue: offset, amplitude: amplitude, freq: freq, phase: phase}
	return c
}

func NewPulseCurrentSource(name string, nodeNames []string, i1, i2, delay, rise, fall, pWidth, period float64) *CurrentSource {
	c := NewDCCurrentSource(name, nodeNames, i1)
	c.wave = waveform{kind: PULSE, v1: i1, v2: i2, delay: delay, rise: rise, fall: fall, pWidth: pWidth, period: period}
	return c
}

func NewPWLCurrentSource(name string, nodeNames []string, times, values []float64) *CurrentSource {
	c := NewDCCurrentSource(name, nodeNames, values[0])
	c.wave = waveform{kind: PWL, times: times, values: values}
	return c
}

func (c *CurrentSource) GetType() string { return "I" }

func (c *CurrentSource) SetAC(mag, phase float64) {
	c.acMag = mag
	c.acPhase = phase
}

func (c *CurrentSource) SetValue(value float64) {
	c.Value = value
	c.wave.dcValue = value
	c.Bundle.Set("dc", value)
}

// Current evaluates the source at time t with the source-stepping scale.
func (c *CurrentSource) Current(t, srcScale float64) float64 {
	return c.wave.at(t) * srcScale
}

func (c *CurrentSource) Stamp(m matrix.Stamper, st *state.Status) error {
	i := c.Current(st.Time, st.SrcScale)
	stampCurrent(m, c.Nodes[0], c.Nodes[1], i)
	return nil
}

func (c *CurrentSource) StampAC(m matrix.Stamper, st *state.Status) error {
	n1, n2 := c.Nodes[0], c.Nodes[1]
	phaseRad := c.acPhase * math.Pi / 180.0
	re := c.acMag * math.Cos(phaseRad)
	im := c.acMag * math.Sin(phaseRad)

	if n1 != 0 {
		m.AddComplexRHS(n1, -re, -im)
	}
	if n2 != 0 {
		m.AddComplexRHS(n2, re, im)
	}
	return nil
}
