package device

import (
	"math"

	"github.com/saugkim/spicecore/internal/consts"
	"github.com/saugkim/spicecore/pkg/matrix"
	"github.com/saugkim/spicecore/pkg/node"
	"github.com/saugkim/spicecore/pkg/state"
)

// Operation regions
const (
	regionCutoff = iota
	regionLinear
	regionSaturation
)

// Mosfet implements Levels 1-3. Pins: drain, gate, source, bulk.
// DC currents follow the level equations; gate capacitances use Meyer's
// model with trapezoidal averaging, bulk junction depletion charges use the
// piecewise graded-junction formulation. All charge storage lives in
// derivative slots.
type Mosfet struct {
	BaseDevice
	polarity float64 // +1 NMOS, -1 PMOS
	level    int

	// Temperature-dependent constants
	tVto  float64
	tIs   float64
	vt    float64
	vcrit float64

	// Iteration state (polarity-normalized)
	vgs, vds, vbs float64
	id            float64
	ibs, ibd      float64
	gbs, gbd      float64
	gm, gds, gmbs float64
	region        int
	limited       bool
	off           bool

	// Meyer capacitances, present and last accepted timepoint
	cgs, cgd, cgb          float64
	accCgs, accCgd, accCgb float64

	qgs, qgd, qgb *state.Derivative
	qbs, qbd      *state.Derivative
	vgsHist       *state.History
}

var (
	_ Temperature = (*Mosfet)(nil)
	_ Loader      = (*Mosfet)(nil)
	_ ACLoader    = (*Mosfet)(nil)
	_ Transient   = (*Mosfet)(nil)
	_ Accepter    = (*Mosfet)(nil)
	_ NonLinear   = (*Mosfet)(nil)
	_ Setuper     = (*Mosfet)(nil)
	_ Noiser      = (*Mosfet)(nil)
)

func NewMosfet(name string, nodeNames []string, pmos bool, level int) *Mosfet {
	m := &Mosfet{
		BaseDevice: NewBase(name, nodeNames, 0),
		polarity:   1,
		level:      level,
	}
	if pmos {
		m.polarity = -1
	}
	if m.level < 1 || m.level > 3 {
		m.level = 1
	}
	p := m.Bundle
	p.Default("l", 1e-4)
	p.Default("w", 1e-4)
	p.Default("ad", 0)
	p.Default("as", 0)
	p.Default("pd", 0)
	p.Default("ps", 0)
	p.Default("vto", 0.0)
	p.Default("kp", 2e-5)
	p.Default("gamma", 0.0)
	p.Default("phi", 0.6)
	p.Default("lambda", 0.0)
	p.Default("is", 1e-14)
	p.Default("tox", 1e-7)
	p.Default("uo", 600.0)
	p.Default("ucrit", 1e4)
	p.Default("uexp", 0.0)
	p.Default("vmax", 0.0)
	p.Default("delta", 0.0)
	p.Default("theta", 0.0)
	p.Default("eta", 0.0)
	p.Default("kappa", 0.2)
	p.Default("cbd", 0.0)
	p.Default("cbs", 0.0)
	p.Default("cgso", 0.0)
	p.Default("cgdo", 0.0)
	p.Default("cgbo", 0.0)
	p.Default("cj", 0.0)
	p.Default("mj", 0.5)
	p.Default("cjsw", 0.0)
	p.Default("mjsw", 0.33)
	p.Default("pb", 0.8)
	p.Default("fc", 0.5)
	p.Default("kf", 0.0)
	p.Default("af", 1.0)
	p.Default("tnom", consts.REFTEMP)
	return m
}

func (m *Mosfet) GetType() string { return "M" }

func (m *Mosfet) SetOff() { m.off = true }

func (m *Mosfet) SetModelParameters(params map[string]float64) {
	for name, v := range params {
		m.Bundle.Set(name, v)
	}
}

func (m *Mosfet) Setup(nodes *node.Map, pool *state.Pool) error {
	m.qgs = pool.NewDerivative()
	m.qgd = pool.NewDerivative()
	m.qgb = pool.NewDerivative()
	m.qbs = pool.NewDerivative()
	m.qbd = pool.NewDerivative()
	m.vgsHist = pool.NewHistory(3)
	return nil
}

func (m *Mosfet) Unsetup() {
	m.qgs, m.qgd, m.qgb, m.qbs, m.qbd = nil, nil, nil, nil, nil
	m.vgsHist = nil
}

func (m *Mosfet) UpdateTemperature(temp float64) error {
	p := m.Bundle
	m.vt = ThermalVoltage(temp)
	ratio := temp / p.Float("tnom")

	m.tVto = p.Float("vto")
	egfac := 1.11 / m.vt * (ratio - 1.0)
	m.tIs = p.Float("is") * math.Pow(ratio, 3.0) * math.Exp(egfac)
	m.vcrit = CriticalVoltage(m.tIs, m.vt)
	return nil
}

func (m *Mosfet) threshold(vbs float64) float64 {
	p := m.Bundle
	gamma := p.Float("gamma")
	phi := p.Float("phi")
	if gamma > 0 {
		return m.tVto + gamma*(math.Sqrt(math.Max(0, phi-vbs))-math.Sqrt(phi))
	}
	return m.tVto
}

// drainCurrent evaluates the level equation at the given bias.
func (m *Mosfet) drainCurrent(vgs, vds, vbs float64) (float64, int) {
	p := m.Bundle
	vth := m.threshold(vbs)
	vgst := vgs - vth
	if vgst <= 0 {
		return 0, regionCutoff
	}

	w, l := p.Float("w"), p.Float("l")
	lambda := p.Float("lambda")

	switch m.level {
	case 2:
		// Grove-Frohman: field-dependent mobility and velocity saturation.
		eps0 := 8.85e-14
		cox := 3.9 * eps0 / p.Float("tox")
		eeff := vgst / (p.Float("tox") * 100)
		ueff := p.Float("uo")
		if ucrit := p.Float("ucrit"); ucrit > 0 && eeff > 0 && p.Float("uexp") > 0 {
			ueff /= 1.0 + math.Pow(eeff/ucrit, p.Float("uexp"))
		}
		vdsat := vgst
		if vmax := p.Float("vmax"); vmax > 0 {
			ecrit := vmax / ueff * 100
			vdsat = math.Min(vgst, ecrit*l)
		}
		beta := ueff * cox * w / (l * 100)
		if vds < vdsat {
			return beta * (vgst*vds - 0.5*vds*vds) * (1.0 + lambda*vds), regionLinear
		}
		return 0.5 * beta * vdsat * vdsat * (1.0 + lambda*vds), regionSaturation

	case 3:
		vgstEff := vgst
		if theta := p.Float("theta"); theta > 0 {
			vgstEff = vgst / (1.0 + theta*vgst)
		}
		kappa := p.Float("kappa")
		vdsat := vgstEff
		if kappa > 0 {
			vdsat = vgstEff / math.Sqrt(1.0+kappa*vgstEff)
		}
		beta := p.Float("kp") * w / l
		if delta := p.Float("delta"); delta > 0 {
			beta /= 1.0 + delta/w
		}
		if vds < vdsat {
			return beta * (vgstEff*vds - 0.5*vds*vds/(1.0+kappa*vgstEff)) * (1.0 + lambda*vds), regionLinear
		}
		return 0.5 * beta * vdsat * vdsat * (1.0 + lambda*vds), regionSaturation

	default:
		beta := p.Float("kp") * w / l
		if vds < vgst {
			return beta * (vgst*vds - 0.5*vds*vds) * (1.0 + lambda*vds), regionLinear
		}
		return 0.5 * beta * vgst * vgst * (1.0 + lambda*vds), regionSaturation
	}
}

// load evaluates currents and conductances at the present bias.
func (m *Mosfet) load(gmin float64) {
	m.id, m.region = m.drainCurrent(m.vgs, m.vds, m.vbs)

	// Numeric slopes keep the three levels uniform.
	const delta = 1e-6
	idg, _ := m.drainCurrent(m.vgs+delta, m.vds, m.vbs)
	idd, _ := m.drainCurrent(m.vgs, m.vds+delta, m.vbs)
	idb, _ := m.drainCurrent(m.vgs, m.vds, m.vbs+delta)
	m.gm = math.Max((idg-m.id)/delta, gmin)
	m.gds = math.Max((idd-m.id)/delta, gmin)
	m.gmbs = math.Max((idb-m.id)/delta, gmin)

	// Bulk junction diodes
	m.ibs, m.gbs = junctionI(m.vbs, m.tIs, m.vt)
	vbd := m.vbs - m.vds
	m.ibd, m.gbd = junctionI(vbd, m.tIs, m.vt)
	m.gbs += gmin
	m.gbd += gmin
	m.ibs += gmin * m.vbs
	m.ibd += gmin * vbd
}

// meyer computes the gate capacitance pieces for the present region.
func (m *Mosfet) meyer() {
	p := m.Bundle
	w, l := p.Float("w"), p.Float("l")
	cox := 3.9 * 8.85e-14 / p.Float("tox")
	cgate := cox * w * l

	cgso := p.Float("cgso") * w
	cgdo := p.Float("cgdo") * w
	cgbo := p.Float("cgbo") * l

	switch m.region {
	case regionCutoff:
		m.cgs = cgso
		m.cgd = cgdo
		m.cgb = 2.0*cgate/3.0 + cgbo
	case regionLinear:
		m.cgs = cgate/2.0 + cgso
		m.cgd = cgate/2.0 + cgdo
		m.cgb = cgbo
	default:
		m.cgs = 2.0*cgate/3.0 + cgso
		m.cgd = cgdo
		m.cgb = cgbo + cgate/3.0
	}
}

// bulkCaps returns the depletion capacitance bases for the junctions.
func (m *Mosfet) bulkCaps() (cbs0, cbd0 float64) {
	p := m.Bundle
	cbs0 = p.Float("cbs")
	if cbs0 == 0 && p.Float("cj") > 0 {
		cbs0 = p.Float("cj")*p.Float("as") + p.Float("cjsw")*p.Float("ps")
	}
	cbd0 = p.Float("cbd")
	if cbd0 == 0 && p.Float("cj") > 0 {
		cbd0 = p.Float("cj")*p.Float("ad") + p.Float("cjsw")*p.Float("pd")
	}
	return cbs0, cbd0
}

func (m *Mosfet) Stamp(mat matrix.Stamper, st *state.Status) error {
	if st.Init == state.InitJunction {
		if m.off {
			m.vgs, m.vds, m.vbs = 0, 0, 0
		} else {
			m.vgs = m.tVto + 0.5
			m.vds = 0.1
			m.vbs = 0
		}
	}

	m.load(st.Gmin)
	m.meyer()

	nd, ng, ns, nb := m.Nodes[0], m.Nodes[1], m.Nodes[2], m.Nodes[3]
	pol := m.polarity

	add := func(i, j int, v float64) {
		if i != 0 && j != 0 {
			mat.AddElement(i, j, v)
		}
	}

	gm, gds, gmbs := m.gm, m.gds, m.gmbs

	add(nd, nd, gds)
	add(nd, ng, gm)
	add(nd, ns, -gds-gm-gmbs)
	add(nd, nb, gmbs)
	add(ns, ns, gds+gm+gmbs)
	add(ns, nd, -gds)
	add(ns, ng, -gm)
	add(ns, nb, -gmbs)

	// Channel current Norton equivalent
	ieqd := pol * (m.id - gds*m.vds - gm*m.vgs - gmbs*m.vbs)
	if nd != 0 {
		mat.AddRHS(nd, -ieqd)
	}
	if ns != 0 {
		mat.AddRHS(ns, ieqd)
	}

	// Bulk junction diodes
	stampConductance(mat, nb, ns, m.gbs)
	stampCurrent(mat, nb, ns, pol*(m.ibs-m.gbs*m.vbs))
	vbd := m.vbs - m.vds
	stampConductance(mat, nb, nd, m.gbd)
	stampCurrent(mat, nb, nd, pol*(m.ibd-m.gbd*vbd))

	// Charge storage during transient
	if st.Mode == state.TransientAnalysis && st.TimeStep > 0 {
		m.stampCharges(mat, st)
	}

	return nil
}

// stampCharges integrates each charge slot and stamps its companion model.
// The Meyer pieces average the present and last-accepted capacitances.
func (m *Mosfet) stampCharges(mat matrix.Stamper, st *state.Status) {
	if m.qgs == nil {
		return
	}
	nd, ng, ns, nb := m.Nodes[0], m.Nodes[1], m.Nodes[2], m.Nodes[3]
	pol := m.polarity

	vgd := m.vgs - m.vds
	vbd := m.vbs - m.vds
	vgb := m.vgs - m.vbs

	capgs := (m.cgs + m.accCgs) / 2.0
	capgd := (m.cgd + m.accCgd) / 2.0
	capgb := (m.cgb + m.accCgb) / 2.0

	cbs0, cbd0 := m.bulkCaps()
	p := m.Bundle
	pb, mj, fc := p.Float("pb"), p.Float("mj"), p.Float("fc")

	qbsVal, capbs := junctionCharge(m.vbs, cbs0, pb, mj, fc)
	qbdVal, capbd := junctionCharge(vbd, cbd0, pb, mj, fc)

	type chargeStamp struct {
		slot *state.Derivative
		n1   int
		n2   int
		v    float64
		cap  float64
		q    float64
	}
	stamps := []chargeStamp{
		{m.qgs, ng, ns, m.vgs, capgs, capgs * m.vgs},
		{m.qgd, ng, nd, vgd, capgd, capgd * vgd},
		{m.qgb, ng, nb, vgb, capgb, capgb * vgb},
		{m.qbs, nb, ns, m.vbs, capbs, qbsVal},
		{m.qbd, nb, nd, vbd, capbd, qbdVal},
	}

	for _, s := range stamps {
		s.slot.SetValue(s.q)
		s.slot.Integrate(st.Method, st.Order, st.TimeStep)
		geq := s.slot.Jacobian(s.cap)
		ieq := pol * s.slot.RHSCurrent(geq, s.v)
		stampConductance(mat, s.n1, s.n2, geq)
		if s.n1 != 0 {
			mat.AddRHS(s.n1, ieq)
		}
		if s.n2 != 0 {
			mat.AddRHS(s.n2, -ieq)
		}
	}
}

func (m *Mosfet) StampAC(mat matrix.Stamper, st *state.Status) error {
	nd, ng, ns, nb := m.Nodes[0], m.Nodes[1], m.Nodes[2], m.Nodes[3]
	omega := 2 * math.Pi * st.Frequency

	m.meyer()
	cbs0, cbd0 := m.bulkCaps()
	p := m.Bundle
	_, capbs := junctionCharge(m.vbs, cbs0, p.Float("pb"), p.Float("mj"), p.Float("fc"))
	_, capbd := junctionCharge(m.vbs-m.vds, cbd0, p.Float("pb"), p.Float("mj"), p.Float("fc"))

	add := func(i, j int, re, im float64) {
		if i != 0 && j != 0 {
			mat.AddComplexElement(i, j, re, im)
		}
	}

	gm, gds, gmbs := m.gm, m.gds, m.gmbs
	xgs, xgd, xgb := omega*m.cgs, omega*m.cgd, omega*m.cgb
	xbs, xbd := omega*capbs, omega*capbd

	add(nd, nd, gds+m.gbd, xgd+xbd)
	add(nd, ng, gm, -xgd)
	add(nd, ns, -gds-gm-gmbs, 0)
	add(nd, nb, gmbs-m.gbd, -xbd)
	add(ns, ns, gds+gm+gmbs+m.gbs, xgs+xbs)
	add(ns, nd, -gds, 0)
	add(ns, ng, -gm, -xgs)
	add(ns, nb, -gmbs-m.gbs, -xbs)
	add(ng, ng, 0, xgs+xgd+xgb)
	add(ng, nd, 0, -xgd)
	add(ng, ns, 0, -xgs)
	add(ng, nb, 0, -xgb)
	add(nb, nb, m.gbs+m.gbd, xbs+xbd+xgb)
	add(nb, nd, -m.gbd, -xbd)
	add(nb, ns, -m.gbs, -xbs)
	add(nb, ng, 0, -xgb)

	return nil
}

func (m *Mosfet) UpdateVoltages(solution []float64, st *state.Status) bool {
	pol := m.polarity
	vd := voltageAt(solution, m.Nodes[0])
	vg := voltageAt(solution, m.Nodes[1])
	vs := voltageAt(solution, m.Nodes[2])
	vb := voltageAt(solution, m.Nodes[3])

	vgsNew := pol * (vg - vs)
	vdsNew := pol * (vd - vs)
	vbsNew := pol * (vb - vs)

	// Limit gate drive steps to keep the exponentials in the bulk diodes
	// and the square-law region transitions tame.
	const maxStep = 0.5
	m.limited = false
	if d := vgsNew - m.vgs; math.Abs(d) > maxStep {
		vgsNew = m.vgs + math.Copysign(maxStep, d)
		m.limited = true
	}
	if d := vdsNew - m.vds; math.Abs(d) > 2*maxStep {
		vdsNew = m.vds + math.Copysign(2*maxStep, d)
		m.limited = true
	}

	var lim bool
	vbsNew, lim = Pnjlim(vbsNew, m.vbs, m.vt, m.vcrit)
	m.limited = m.limited || lim

	m.vgs, m.vds, m.vbs = vgsNew, vdsNew, vbsNew
	return m.limited
}

func (m *Mosfet) IsConvergent(solution []float64, reltol, abstol float64) bool {
	pol := m.polarity
	vd := voltageAt(solution, m.Nodes[0])
	vg := voltageAt(solution, m.Nodes[1])
	vs := voltageAt(solution, m.Nodes[2])
	vb := voltageAt(solution, m.Nodes[3])

	delvgs := pol*(vg-vs) - m.vgs
	delvds := pol*(vd-vs) - m.vds
	delvbs := pol*(vb-vs) - m.vbs

	idhat := m.id + m.gm*delvgs + m.gds*delvds + m.gmbs*delvbs
	tol := reltol*math.Max(math.Abs(idhat), math.Abs(m.id)) + abstol
	return math.Abs(idhat-m.id) <= tol && !m.limited
}

func (m *Mosfet) InitStorage(solution []float64) {
	m.meyer()
	m.accCgs, m.accCgd, m.accCgb = m.cgs, m.cgd, m.cgb

	vgd := m.vgs - m.vds
	vbd := m.vbs - m.vds
	m.qgs.Initialize(m.cgs * m.vgs)
	m.qgd.Initialize(m.cgd * vgd)
	m.qgb.Initialize(m.cgb * (m.vgs - m.vbs))

	cbs0, cbd0 := m.bulkCaps()
	p := m.Bundle
	qbs, _ := junctionCharge(m.vbs, cbs0, p.Float("pb"), p.Float("mj"), p.Float("fc"))
	qbd, _ := junctionCharge(vbd, cbd0, p.Float("pb"), p.Float("mj"), p.Float("fc"))
	m.qbs.Initialize(qbs)
	m.qbd.Initialize(qbd)
}

func (m *Mosfet) UpdateState(solution []float64, st *state.Status) {
	// Bias voltages follow UpdateVoltages; charges are refreshed from them
	// inside stampCharges.
}

// Accept commits the Meyer capacitances for the next step's averaging.
func (m *Mosfet) Accept(st *state.Status) {
	m.accCgs, m.accCgd, m.accCgb = m.cgs, m.cgd, m.cgb
	if m.vgsHist != nil {
		m.vgsHist.Push(st.Time, m.vgs)
	}
}

func (m *Mosfet) DrainCurrent() float64 { return m.polarity * m.id }
func (m *Mosfet) Region() int           { return m.region }

func (m *Mosfet) NoiseSources() []*NoiseGenerator {
	p := m.Bundle
	gens := make([]*NoiseGenerator, 0, 2)

	// Channel thermal noise, 8kT*gm/3 expressed as an equivalent
	// conductance.
	th := NewNoiseGenerator(m.Name, "id", ThermalNoise, m.Nodes[0], m.Nodes[2])
	th.SetCoefficients(2.0 * m.gm / 3.0)
	gens = append(gens, th)

	fl := NewNoiseGenerator(m.Name, "flicker", FlickerNoise, m.Nodes[0], m.Nodes[2])
	fl.SetCoefficients(p.Float("kf"), p.Float("af"), m.id)
	gens = append(gens, fl)

	return gens
}
