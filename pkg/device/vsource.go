package device

import (
	"math"

	"github.com/saugkim/spicecore/pkg/matrix"
	"github.com/saugkim/spicecore/pkg/node"
	"github.com/saugkim/spicecore/pkg/state"
)

type waveform struct {
	kind SourceType
	// DC, common params
	dcValue float64
	// SIN params
	amplitude float64
	freq      float64
	phase     float64
	// PULSE params
	v1     float64
	v2     float64
	delay  float64
	rise   float64
	fall   float64
	pWidth float64
	period float64
	// PWL params
	times  []float64
	values []float64
}

// at evaluates the waveform at time t.
func (w *waveform) at(t float64) float64 {
	switch w.kind {
	case SIN:
		phaseRad := w.phase * math.Pi / 180.0
		if t < w.delay {
			return w.dcValue + w.amplitude*math.Sin(phaseRad)
		}
		return w.dcValue + w.amplitude*math.Sin(2.0*math.Pi*w.freq*(t-w.delay)+phaseRad)
	case PULSE:
		return w.pulseAt(t)
	case PWL:
		return w.pwlAt(t)
	default:
		return w.dcValue
	}
}

func (w *waveform) pulseAt(t float64) float64 {
	if t < w.delay {
		return w.v1
	}

	t -= w.delay
	if w.period > 0 {
		t = math.Mod(t, w.period)
	}

	if t < w.rise {
		if w.rise == 0 {
			return w.v2
		}
		return w.v1 + (w.v2-w.v1)*t/w.rise
	}

	if t < w.rise+w.pWidth {
		return w.v2
	}

	fallStart := w.rise + w.pWidth
	if t < fallStart+w.fall {
		if w.fall == 0 {
			return w.v1
		}
		return w.v2 - (w.v2-w.v1)*(t-fallStart)/w.fall
	}

	return w.v1
}

func (w *waveform) pwlAt(t float64) float64 {
	if t <= w.times[0] {
		return w.values[0]
	}

	lastIdx := len(w.times) - 1
	if t >= w.times[lastIdx] {
		return w.values[lastIdx]
	}

	for i := 1; i < len(w.times); i++ {
		if t <= w.times[i] {
			t1, t2 := w.times[i-1], w.times[i]
			x1, x2 := w.values[i-1], w.values[i]
			return x1 + (x2-x1)*(t-t1)/(t2-t1)
		}
	}

	return w.values[lastIdx] // Must not reach
}

type VoltageSource struct {
	BaseDevice
	wave      waveform
	acMag     float64
	acPhase   float64
	branchIdx int
}

var (
	_ Loader   = (*VoltageSource)(nil)
	_ ACLoader = (*VoltageSource)(nil)
	_ Setuper  = (*VoltageSource)(nil)
	_ Brancher = (*VoltageSource)(nil)
)

func NewDCVoltageSource(name string, nodeNames []string, value float64) *VoltageSource {
	v := &VoltageSource{
		BaseDevice: NewBase(name, nodeNames, value),
		wave:       waveform{kind: DC, dcValue: value},
	}
	v.Bundle.DeclarePrincipal("dc")
	v.Bundle.Set("dc", value)
	return v
}

func NewSinVoltageSource(name string, nodeNames []string, offset, amplitude, freq, phase float64) *VoltageSource {
	v := NewDCVoltageSource(name, nodeNames, offset)
	v.wave = waveform{kind: SIN, dcValue: offset, amplitude: amplitude, freq: freq, phase: phase}
	return v
}

func NewPulseVoltageSource(name string, nodeNames []string, v1, v2, delay, rise, fall, pWidth, period float64) *VoltageSource {
	v := NewDCVoltageSource(name, nodeNames, v1)
	v.wave = waveform{kind: PULSE, v1: v1, v2: v2, delay: delay, rise: rise, fall: fall, pWidth: pWidth, period: period}
	return v
}

func NewPWLVoltageSource(name string, nodeNames []string, times, values []float64) *VoltageSource {
	v := NewDCVoltageSource(name, nodeNames, values[0])
	v.wave = waveform{kind: PWL, times: times, values: values}
	return v
}

func (v *VoltageSource) GetType() string { return "V" }

func (v *VoltageSource) SetAC(mag, phase float64) {
	v.acMag = mag
	v.acPhase = phase
}

func (v *VoltageSource) BranchIndex() int       { return v.branchIdx }
func (v *VoltageSource) SetBranchIndex(idx int) { v.branchIdx = idx }

func (v *VoltageSource) Setup(nodes *node.Map, pool *state.Pool) error {
	if v.branchIdx == 0 {
		v.branchIdx = nodes.CreateBranch(v.Name)
	}
	return nil
}

func (v *VoltageSource) Unsetup() { v.branchIdx = 0 }

// Voltage evaluates the source at time t, including the source-stepping
// scale the Newton solver applies while ramping supplies.
func (v *VoltageSource) Voltage(t, srcScale float64) float64 {
	return v.wave.at(t) * srcScale
}

// SetValue overrides the DC level, used by DC sweeps between points.
func (v *VoltageSource) SetValue(value float64) {
	v.Value = value
	v.wave.dcValue = value
	v.Bundle.Set("dc", value)
}

func (v *VoltageSource) Stamp(m matrix.Stamper, st *state.Status) error {
	n1, n2 := v.Nodes[0], v.Nodes[1]
	bIdx := v.branchIdx

	// v1 - v2 = V
	if n1 != 0 {
		m.AddElement(bIdx, n1, 1)
		m.AddElement(n1, bIdx, 1)
	}
	if n2 != 0 {
		m.AddElement(bIdx, n2, -1)
		m.AddElement(n2, bIdx, -1)
	}

	m.AddRHS(bIdx, v.Voltage(st.Time, st.SrcScale))
	return nil
}

func (v *VoltageSource) StampAC(m matrix.Stamper, st *state.Status) error {
	n1, n2 := v.Nodes[0], v.Nodes[1]
	bIdx := v.branchIdx

	phaseRad := v.acPhase * math.Pi / 180.0

	if n1 != 0 {
		m.AddComplexElement(bIdx, n1, 1.0, 0.0)
		m.AddComplexElement(n1, bIdx, 1.0, 0.0)
	}
	if n2 != 0 {
		m.AddComplexElement(bIdx, n2, -1.0, 0.0)
		m.AddComplexElement(n2, bIdx, -1.0, 0.0)
	}

	m.AddComplexRHS(bIdx, v.acMag*math.Cos(phaseRad), v.acMag*math.Sin(phaseRad))
	return nil
}
