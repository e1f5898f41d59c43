package device

import (
	"github.com/saugkim/spicecore/pkg/matrix"
	"github.com/saugkim/spicecore/pkg/state"
)

// switchState is the hysteretic core shared by both switches. The load
// behavior reads oldState; Accept commits the state chosen during the
// timepoint so iteration chatter cannot toggle the switch mid-step.
type switchState struct {
	oldState     bool
	currentState bool
}

// decide applies the hysteresis window to the control value.
func (s *switchState) decide(control, threshold, hyst float64) {
	switch {
	case control > threshold+hyst:
		s.currentState = true
	case control < threshold-hyst:
		s.currentState = false
	default:
		s.currentState = s.oldState
	}
}

func (s *switchState) commit() { s.oldState = s.currentState }

// ControlReader devices sense the previous solution before each load pass.
type ControlReader interface {
	UpdateControl(solution []float64)
}

// VSwitch is a voltage-controlled switch.
// Pins: n+, n-, control+, control-.
type VSwitch struct {
	BaseDevice
	sw       switchState
	controlV float64
}

var (
	_ Loader   = (*VSwitch)(nil)
	_ ACLoader = (*VSwitch)(nil)
	_ Accepter = (*VSwitch)(nil)
)

func NewVSwitch(name string, nodeNames []string) *VSwitch {
	s := &VSwitch{BaseDevice: NewBase(name, nodeNames, 0)}
	b := s.Bundle
	b.Default("ron", 1.0)
	b.Default("roff", 1e12)
	b.Default("vt", 0.0)
	b.Default("vh", 0.0)
	return s
}

func (s *VSwitch) GetType() string { return "S" }

func (s *VSwitch) SetModelParameters(params map[string]float64) {
	for name, v := range params {
		s.Bundle.Set(name, v)
	}
}

func (s *VSwitch) conductance() float64 {
	if s.sw.currentState {
		return 1.0 / s.Bundle.Float("ron")
	}
	return 1.0 / s.Bundle.Float("roff")
}

func (s *VSwitch) Stamp(m matrix.Stamper, st *state.Status) error {
	// Control voltage from the last solution; the committed state holds
	// inside the hysteresis window.
	s.sw.decide(s.controlV, s.Bundle.Float("vt"), s.Bundle.Float("vh"))
	stampConductance(m, s.Nodes[0], s.Nodes[1], s.conductance())
	return nil
}

func (s *VSwitch) StampAC(m matrix.Stamper, st *state.Status) error {
	stampComplexConductance(m, s.Nodes[0], s.Nodes[1], s.conductance(), 0)
	return nil
}

// UpdateControl reads the control pair from the previous solution.
func (s *VSwitch) UpdateControl(solution []float64) {
	s.controlV = voltageAt(solution, s.Nodes[2]) - voltageAt(solution, s.Nodes[3])
}

func (s *VSwitch) Accept(st *state.Status) { s.sw.commit() }

// CSwitch is a current-controlled switch sensing the branch current of a
// named voltage source. Pins: n+, n-.
type CSwitch struct {
	BaseDevice
	control *VoltageSource
	sw      switchState
	current float64
}

var (
	_ Loader   = (*CSwitch)(nil)
	_ ACLoader = (*CSwitch)(nil)
	_ Accepter = (*CSwitch)(nil)
)

func NewCSwitch(name string, nodeNames []string) *CSwitch {
	s := &CSwitch{BaseDevice: NewBase(name, nodeNames, 0)}
	b := s.Bundle
	b.Default("ron", 1.0)
	b.Default("roff", 1e12)
	b.Default("it", 0.0)
	b.Default("ih", 0.0)
	return s
}

func (s *CSwitch) GetType() string { return "W" }

func (s *CSwitch) SetModelParameters(params map[string]float64) {
	for name, v := range params {
		s.Bundle.Set(name, v)
	}
}

// BindControl attaches the sensed voltage source.
func (s *CSwitch) BindControl(v *VoltageSource) { s.control = v }

// UpdateControl reads the sensed branch current from the solution.
func (s *CSwitch) UpdateControl(solution []float64) {
	if s.control == nil {
		return
	}
	idx := s.control.BranchIndex()
	if idx > 0 && idx < len(solution) {
		s.current = solution[idx]
	}
}

func (s *CSwitch) conductance() float64 {
	if s.sw.currentState {
		return 1.0 / s.Bundle.Float("ron")
	}
	return 1.0 / s.Bundle.Float("roff")
}

func (s *CSwitch) Stamp(m matrix.Stamper, st *state.Status) error {
	s.sw.decide(s.current, s.Bundle.Float("it"), s.Bundle.Float("ih"))
	stampConductance(m, s.Nodes[0], s.Nodes[1], s.conductance())
	return nil
}

func (s *CSwitch) StampAC(m matrix.Stamper, st *state.Status) error {
	stampComplexConductance(m, s.Nodes[0], s.Nodes[1], s.conductance(), 0)
	return nil
}

// Accept commits the hysteretic state for the next timepoint.
func (s *CSwitch) Accept(st *state.Status) { s.sw.commit() }
