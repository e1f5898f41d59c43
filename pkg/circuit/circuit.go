// Package circuit owns the entity graph: devices in stable insertion order,
// their behavior sets, the node map, the state pool, and the MNA matrix.
package circuit

import (
	"fmt"
	"log"

	"github.com/pkg/errors"

	"github.com/saugkim/spicecore/pkg/behavior"
	"github.com/saugkim/spicecore/pkg/device"
	"github.com/saugkim/spicecore/pkg/matrix"
	"github.com/saugkim/spicecore/pkg/netlist"
	"github.com/saugkim/spicecore/pkg/node"
	"github.com/saugkim/spicecore/pkg/simerr"
	"github.com/saugkim/spicecore/pkg/state"
)

type Circuit struct {
	name      string
	nodes     *node.Map
	pool      *state.Pool
	devices   []device.Device
	byName    map[string]device.Device
	sets      map[string]behavior.Set
	mat       *matrix.CircuitMatrix
	isComplex bool
	models    map[string]netlist.Model
	ics       map[string]float64
	lastTemp  float64
	setupDone bool
	Warnf     func(format string, args ...any)
}

func New(name string) *Circuit {
	return NewWithComplex(name, false)
}

func NewWithComplex(name string, isComplex bool) *Circuit {
	return &Circuit{
		name:      name,
		nodes:     node.NewMap(),
		pool:      state.NewPool(),
		byName:    make(map[string]device.Device),
		sets:      make(map[string]behavior.Set),
		isComplex: isComplex,
		models:    make(map[string]netlist.Model),
		ics:       make(map[string]float64),
		Warnf:     log.Printf,
	}
}

func (c *Circuit) Name() string          { return c.name }
func (c *Circuit) Nodes() *node.Map     { return c.nodes }
func (c *Circuit) Pool() *state.Pool    { return c.pool }
func (c *Circuit) Matrix() *matrix.CircuitMatrix { return c.mat }

func (c *Circuit) Devices() []device.Device { return c.devices }

func (c *Circuit) Contains(name string) bool {
	_, ok := c.byName[name]
	return ok
}

func (c *Circuit) Device(name string) device.Device { return c.byName[name] }

// AddDevice inserts a device, resolving its behavior set. Iteration order is
// insertion order, so runs are reproducible.
func (c *Circuit) AddDevice(dev device.Device) error {
	if c.setupDone {
		return errors.Errorf("adding device %s after setup", dev.GetName())
	}
	if c.Contains(dev.GetName()) {
		return errors.Errorf("duplicate device %s", dev.GetName())
	}
	if bd, ok := dev.(interface {
		SetWarnSink(func(format string, args ...any))
	}); ok {
		bd.SetWarnSink(c.Warnf)
	}
	c.devices = append(c.devices, dev)
	c.byName[dev.GetName()] = dev
	c.sets[dev.GetName()] = behavior.BehaviorsOf(dev)
	return nil
}

// Remove drops a device before setup.
func (c *Circuit) Remove(name string) bool {
	dev, ok := c.byName[name]
	if !ok {
		return false
	}
	delete(c.byName, name)
	delete(c.sets, name)
	for i, d := range c.devices {
		if d == dev {
			c.devices = append(c.devices[:i], c.devices[i+1:]...)
			break
		}
	}
	return true
}

// SetModels registers shared .model cards.
func (c *Circuit) SetModels(models map[string]netlist.Model) {
	c.models = models
}

// SetICs registers .ic node voltages.
func (c *Circuit) SetICs(ics map[string]float64) {
	c.ics = ics
}

// BuildFromDeck constructs and wires every element of a parsed deck.
func (c *Circuit) BuildFromDeck(deck *netlist.Deck) error {
	c.SetModels(deck.Models)
	c.SetICs(deck.ICs)

	var couplings []netlist.Element
	controlled := make(map[string]string) // device name -> controlling source

	for _, elem := range deck.Elements {
		if elem.Type == "K" {
			couplings = append(couplings, elem)
			continue
		}

		dev, err := c.buildDevice(elem)
		if err != nil {
			return err
		}
		if elem.Control != "" {
			controlled[elem.Name] = elem.Control
		}
		if err := c.AddDevice(dev); err != nil {
			return err
		}

		// External node indices are assigned at wiring time.
		indices := make([]int, len(elem.Nodes))
		for i, nodeName := range elem.Nodes {
			indices[i] = c.nodes.Create(nodeName)
		}
		if err := dev.SetNodes(indices); err != nil {
			return err
		}
	}

	// Bind current-sensing devices to their controlling sources.
	for name, controlName := range controlled {
		src, ok := c.byName[controlName].(*device.VoltageSource)
		if !ok {
			return errors.Errorf("%s: controlling source %s not found", name, controlName)
		}
		switch d := c.byName[name].(type) {
		case *device.CSwitch:
			d.BindControl(src)
		case *device.CCCS:
			d.BindControl(src)
		case *device.CCVS:
			d.BindControl(src)
		}
	}

	// Couple inductor pairs.
	for _, elem := range couplings {
		l1, ok1 := c.byName[elem.Nodes[0]].(*device.Inductor)
		l2, ok2 := c.byName[elem.Nodes[1]].(*device.Inductor)
		if !ok1 || !ok2 {
			return errors.Errorf("%s: coupled inductors %s, %s not found", elem.Name, elem.Nodes[0], elem.Nodes[1])
		}
		k, err := device.NewMutual(elem.Name, elem.Value)
		if err != nil {
			return err
		}
		k.Bind(l1, l2)
		if err := c.AddDevice(k); err != nil {
			return err
		}
	}

	return nil
}

func (c *Circuit) buildDevice(elem netlist.Element) (device.Device, error) {
	// Sources carry waveform descriptions the generic factories do not.
	switch elem.Type {
	case "V":
		return netlist.BuildVoltageSource(elem.Name, elem.Nodes, elem.Source)
	case "I":
		return netlist.BuildCurrentSource(elem.Name, elem.Nodes, elem.Source)
	}

	factory, err := behavior.Resolve(elem.Type)
	if err != nil {
		return nil, err
	}

	spec := behavior.EntitySpec{
		Name:   elem.Name,
		Nodes:  elem.Nodes,
		Value:  elem.Value,
		Params: map[string]float64{},
		Model:  elem.Model,
	}
	if model, ok := c.models[elem.Model]; ok {
		spec.ModelType = model.Type
		for k, v := range model.Params {
			spec.Params[k] = v
		}
	}
	for k, v := range elem.Params {
		spec.Params[k] = v
	}

	return factory(spec)
}

// Setup allocates internal nodes and state slots, sizes the matrix and
// vectors, and runs a first stamp to fix the structural pattern. Calling
// setup after unsetup reproduces the same pattern and slot count.
func (c *Circuit) Setup() error {
	if c.setupDone {
		return nil
	}

	for _, dev := range c.devices {
		if s, ok := dev.(device.Setuper); ok {
			if err := s.Setup(c.nodes, c.pool); err != nil {
				return errors.Wrapf(err, "setting up %s", dev.GetName())
			}
		}
	}

	if err := c.checkTopology(); err != nil {
		return err
	}

	size := c.nodes.Count()
	mat, err := matrix.NewMatrix(size, c.isComplex)
	if err != nil {
		return err
	}
	mat.Warnf = c.Warnf
	c.mat = mat
	c.pool.Resize(size)

	// Temperature pass before any load.
	if err := c.UpdateTemperature(c.pool.Status.Temp); err != nil {
		return err
	}

	// Initial stamp allocates every element handle; the pattern is frozen
	// afterwards.
	st := c.pool.Status
	st.Mode = state.TransientAnalysis
	st.TimeStep = 1e-9
	st.SrcScale = 1.0
	if c.isComplex {
		st.Mode = state.ACAnalysis
		st.Frequency = 1.0
		if err := c.StampAC(&st); err != nil {
			return err
		}
	} else {
		if err := c.Stamp(&st); err != nil {
			return err
		}
	}
	c.mat.LoadGmin(1e-12)
	c.mat.SetupComplete()
	c.mat.Clear()

	c.setupDone = true
	return nil
}

// Unsetup releases internal nodes, state slots and the matrix so a fresh
// Setup reproduces the identical layout.
func (c *Circuit) Unsetup() {
	for _, dev := range c.devices {
		if s, ok := dev.(device.Setuper); ok {
			s.Unsetup()
		}
	}
	c.nodes.Reset()
	c.pool.ReleaseSlots()
	if c.mat != nil {
		c.mat.Destroy()
		c.mat = nil
	}
	c.setupDone = false
}

// checkTopology rejects structures no pivoting can save.
func (c *Circuit) checkTopology() error {
	degree := make(map[int]int)
	for _, dev := range c.devices {
		for _, n := range dev.GetNodes() {
			if n > 0 {
				degree[n]++
			}
		}
	}
	for i := 1; i <= c.nodes.Count(); i++ {
		name := c.nodes.Name(i)
		if degree[i] == 0 && !isInternalName(name) {
			return &simerr.CircuitTopologyError{
				Kind:   simerr.FloatingNode,
				Detail: fmt.Sprintf("node %s has no connections", name),
			}
		}
	}
	return nil
}

func isInternalName(name string) bool {
	for i := 0; i < len(name); i++ {
		if name[i] == '#' {
			return true
		}
	}
	return false
}

// UpdateTemperature reruns Temperature behaviors when the temperature
// changes.
func (c *Circuit) UpdateTemperature(temp float64) error {
	c.pool.Status.Temp = temp
	c.lastTemp = temp
	for _, dev := range c.devices {
		set := c.sets[dev.GetName()]
		if t, ok := set[behavior.TemperatureKind].(device.Temperature); ok {
			if err := t.UpdateTemperature(temp); err != nil {
				return errors.Wrapf(err, "temperature update for %s", dev.GetName())
			}
		}
	}
	return nil
}

// Stamp runs one real load pass: control senses first, then every Load
// behavior accumulates into the shared system.
func (c *Circuit) Stamp(st *state.Status) error {
	if st.Temp != c.lastTemp {
		if err := c.UpdateTemperature(st.Temp); err != nil {
			return err
		}
	}

	for _, dev := range c.devices {
		if cr, ok := dev.(device.ControlReader); ok {
			cr.UpdateControl(c.pool.Solution)
		}
	}

	for _, dev := range c.devices {
		set := c.sets[dev.GetName()]
		ld, ok := set[behavior.LoadKind].(device.Loader)
		if !ok {
			continue
		}
		if err := ld.Stamp(c.mat, st); err != nil {
			return errors.Wrapf(err, "stamping %s", dev.GetName())
		}
	}
	return nil
}

// StampAC runs one complex load pass at the status frequency.
func (c *Circuit) StampAC(st *state.Status) error {
	for _, dev := range c.devices {
		set := c.sets[dev.GetName()]
		ld, ok := set[behavior.ACLoadKind].(device.ACLoader)
		if !ok {
			continue
		}
		if err := ld.StampAC(c.mat, st); err != nil {
			return errors.Wrapf(err, "AC stamping %s", dev.GetName())
		}
	}
	return nil
}

// UpdateNonlinearVoltages pushes the new solution into every nonlinear
// device, reporting whether any junction was limited.
func (c *Circuit) UpdateNonlinearVoltages(solution []float64, st *state.Status) bool {
	limited := false
	for _, dev := range c.devices {
		if nl, ok := dev.(device.NonLinear); ok {
			if nl.UpdateVoltages(solution, st) {
				limited = true
			}
		}
	}
	return limited
}

// DevicesConverged runs every nonlinear device's predicted-current test.
func (c *Circuit) DevicesConverged(solution []float64, reltol, abstol float64) bool {
	for _, dev := range c.devices {
		if nl, ok := dev.(device.NonLinear); ok {
			if !nl.IsConvergent(solution, reltol, abstol) {
				return false
			}
		}
	}
	return true
}

// InitTransientStorage seeds every charge slot from the operating point, or
// from IC values when uic is set.
func (c *Circuit) InitTransientStorage(uic bool) {
	for _, dev := range c.devices {
		set := c.sets[dev.GetName()]
		tr, ok := set[behavior.TransientKind].(device.Transient)
		if !ok {
			continue
		}
		if uic {
			c.pool.Status.Init = state.InitFix
			switch d := dev.(type) {
			case *device.Capacitor:
				d.InitIC()
				continue
			case *device.Inductor:
				d.InitIC()
				continue
			}
		}
		tr.InitStorage(c.pool.Solution)
	}
}

// UpdateState lets Transient behaviors refresh their charge values from the
// prospective solution.
func (c *Circuit) UpdateState(solution []float64, st *state.Status) {
	for _, dev := range c.devices {
		set := c.sets[dev.GetName()]
		if tr, ok := set[behavior.TransientKind].(device.Transient); ok {
			tr.UpdateState(solution, st)
		}
	}
}

// AcceptTimepoint commits device state in entity-insertion order, then
// rotates the pool's derivative slots. History rings are not advanced here:
// each device pushes its own ring inside its Accept, so a ring advances
// during its owner's Accept, not after all Accepts have run.
func (c *Circuit) AcceptTimepoint(st *state.Status) {
	for _, dev := range c.devices {
		set := c.sets[dev.GetName()]
		if a, ok := set[behavior.AcceptKind].(device.Accepter); ok {
			a.Accept(st)
		}
	}
	c.pool.AcceptTimepoint(st.TimeStep)
}

// NoiseSources collects every generator in the circuit.
func (c *Circuit) NoiseSources() []*device.NoiseGenerator {
	var gens []*device.NoiseGenerator
	for _, dev := range c.devices {
		set := c.sets[dev.GetName()]
		if n, ok := set[behavior.NoiseKind].(device.Noiser); ok {
			gens = append(gens, n.NoiseSources()...)
		}
	}
	return gens
}

// ICs returns the .ic node voltage map.
func (c *Circuit) ICs() map[string]float64 { return c.ics }

// Solution maps node voltages and branch currents to their result names.
func (c *Circuit) Solution() map[string]float64 {
	out := make(map[string]float64)
	sol := c.pool.Solution

	for _, name := range c.nodes.ExternalNames() {
		idx, _ := c.nodes.Index(name)
		out[fmt.Sprintf("V(%s)", name)] = sol[idx]
	}

	for _, dev := range c.devices {
		switch d := dev.(type) {
		case *device.VoltageSource:
			if b := d.BranchIndex(); b > 0 && b < len(sol) {
				out[fmt.Sprintf("I(%s)", d.GetName())] = -sol[b]
			}
		case *device.Inductor:
			out[fmt.Sprintf("I(%s)", d.GetName())] = d.Current(sol)
		case *device.Resistor:
			out[fmt.Sprintf("I(%s)", d.GetName())] = d.CurrentThrough(sol)
		}
	}

	return out
}

// Destroy releases the matrix.
func (c *Circuit) Destroy() {
	if c.mat != nil {
		c.mat.Destroy()
		c.mat = nil
	}
}
