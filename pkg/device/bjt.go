package device

import (
	"math"

	"github.com/saugkim/spicecore/internal/consts"
	"github.com/saugkim/spicecore/pkg/matrix"
	"github.com/saugkim/spicecore/pkg/node"
	"github.com/saugkim/spicecore/pkg/state"
)

// ExcessPhaseEvent carries the transport-current terms an optional
// companion behavior may rotate before the collector current is assembled.
// Subscribers mutate the payload in place.
type ExcessPhaseEvent struct {
	CollectorCurrent float64 // cc accumulated so far
	ExcessCurrent    float64 // cex, the forward transport current
	Conductance      float64 // gex, its slope
	BaseCharge       float64 // qb
}

// Bjt is the Gummel-Poon bipolar model. Pins: collector, base, emitter.
type Bjt struct {
	BaseDevice
	polarity float64 // +1 NPN, -1 PNP

	// Temperature-dependent constants
	tIs    float64
	tIse   float64
	tIsc   float64
	tBetaF float64
	tBetaR float64
	vt     float64
	vcrit  float64

	// Internal nodes
	colPrime  int
	basePrime int
	emitPrime int

	// Iteration state (intrinsic junction voltages, NPN-normalized)
	vbe, vbc           float64
	cc, cb             float64 // collector and base currents
	gm, gpi, gmu, gout float64
	gx                 float64 // base resistance conductance
	qb                 float64
	limited            bool
	off                bool
	legacyConvergence  bool

	// OnExcessPhase, when set, post-processes the transport current.
	OnExcessPhase func(*ExcessPhaseEvent)

	qbe *state.Derivative
	qbc *state.Derivative

	vbeHist *state.History
}

var (
	_ Temperature = (*Bjt)(nil)
	_ Loader      = (*Bjt)(nil)
	_ ACLoader    = (*Bjt)(nil)
	_ Transient   = (*Bjt)(nil)
	_ Accepter    = (*Bjt)(nil)
	_ NonLinear   = (*Bjt)(nil)
	_ Setuper     = (*Bjt)(nil)
	_ Noiser      = (*Bjt)(nil)
)

func NewBJT(name string, nodeNames []string, pnp bool) *Bjt {
	b := &Bjt{BaseDevice: NewBase(name, nodeNames, 0), polarity: 1}
	if pnp {
		b.polarity = -1
	}
	p := b.Bundle
	p.DeclarePrincipal("area")
	p.Default("area", 1.0)
	p.Default("is", 1e-16)
	p.Default("bf", 100.0)
	p.Default("br", 1.0)
	p.Default("nf", 1.0)
	p.Default("nr", 1.0)
	p.Default("vaf", 0.0)
	p.Default("var", 0.0)
	p.Default("ikf", 0.0)
	p.Default("ikr", 0.0)
	p.Default("ise", 0.0)
	p.Default("c2", 0.0)
	p.Default("ne", 1.5)
	p.Default("isc", 0.0)
	p.Default("c4", 0.0)
	p.Default("nc", 2.0)
	p.Default("rc", 0.0)
	p.Default("re", 0.0)
	p.Default("rb", 0.0)
	p.Default("rbm", 0.0)
	p.Default("irb", 0.0)
	p.Default("cje", 0.0)
	p.Default("vje", 0.75)
	p.Default("mje", 0.33)
	p.Default("cjc", 0.0)
	p.Default("vjc", 0.75)
	p.Default("mjc", 0.33)
	p.Default("fc", 0.5)
	p.Default("tf", 0.0)
	p.Default("tr", 0.0)
	p.Default("xtb", 0.0)
	p.Default("eg", 1.11)
	p.Default("xti", 3.0)
	p.Default("kf", 0.0)
	p.Default("af", 1.0)
	p.Default("tnom", consts.REFTEMP)
	p.Default("legacyconv", 0)
	return b
}

func (b *Bjt) GetType() string { return "Q" }

func (b *Bjt) SetOff() { b.off = true }

func (b *Bjt) SetModelParameters(params map[string]float64) {
	for name, v := range params {
		b.Bundle.Set(name, v)
	}
}

func (b *Bjt) Setup(nodes *node.Map, pool *state.Pool) error {
	p := b.Bundle
	var err error

	b.colPrime = b.Nodes[0]
	if p.Float("rc") > 0 {
		if b.colPrime, err = nodes.CreateInternal(b.Name, "col"); err != nil {
			return err
		}
	}
	b.basePrime = b.Nodes[1]
	if p.Float("rb") > 0 {
		if b.basePrime, err = nodes.CreateInternal(b.Name, "base"); err != nil {
			return err
		}
	}
	b.emitPrime = b.Nodes[2]
	if p.Float("re") > 0 {
		if b.emitPrime, err = nodes.CreateInternal(b.Name, "emit"); err != nil {
			return err
		}
	}

	b.qbe = pool.NewDerivative()
	b.qbc = pool.NewDerivative()
	b.vbeHist = pool.NewHistory(3)
	b.legacyConvergence = p.Float("legacyconv") != 0
	return nil
}

func (b *Bjt) Unsetup() {
	b.colPrime, b.basePrime, b.emitPrime = 0, 0, 0
	b.qbe, b.qbc = nil, nil
	b.vbeHist = nil
}

func (b *Bjt) UpdateTemperature(temp float64) error {
	p := b.Bundle
	b.vt = ThermalVoltage(temp)
	tnom := p.Float("tnom")
	ratio := temp / tnom
	area := p.Float("area")

	egfac := p.Float("eg") / b.vt * (ratio - 1.0)
	b.tIs = p.Float("is") * area * math.Pow(ratio, p.Float("xti")) * math.Exp(egfac)

	betafac := math.Pow(ratio, p.Float("xtb"))
	b.tBetaF = p.Float("bf") * betafac
	b.tBetaR = p.Float("br") * betafac

	// Leakage saturation currents; c2/c4 give them as multiples of Is.
	ise := p.Float("ise")
	if !p.Given("ise") && p.Given("c2") {
		ise = p.Float("c2") * p.Float("is")
	}
	isc := p.Float("isc")
	if !p.Given("isc") && p.Given("c4") {
		isc = p.Float("c4") * p.Float("is")
	}
	leakfac := math.Pow(ratio, p.Float("xti")/p.Float("ne")) * math.Exp(egfac/p.Float("ne"))
	b.tIse = ise * area * leakfac / betafac
	b.tIsc = isc * area * leakfac / betafac

	b.vcrit = CriticalVoltage(b.tIs, p.Float("nf")*b.vt)
	return nil
}

// junctionI returns a junction's ideal current and slope.
func junctionI(v, is, vte float64) (i, g float64) {
	if v > -5.0*vte {
		ev := limitExp(v / vte)
		return is * (ev - 1.0), is * ev / vte
	}
	return -is, is / vte * limitExp(-5.0)
}

// load evaluates the Gummel-Poon equations at the present junction
// voltages, filling the current and conductance state.
func (b *Bjt) load(st *state.Status) {
	p := b.Bundle
	vtF := p.Float("nf") * b.vt
	vtR := p.Float("nr") * b.vt
	gmin := st.Gmin

	cbe, gbe := junctionI(b.vbe, b.tIs, vtF)
	cbc, gbc := junctionI(b.vbc, b.tIs, vtR)
	gbe += gmin
	gbc += gmin
	cbe += gmin * b.vbe
	cbc += gmin * b.vbc

	// Leakage junctions
	cben, gben := 0.0, 0.0
	if b.tIse != 0 {
		cben, gben = junctionI(b.vbe, b.tIse, p.Float("ne")*b.vt)
	}
	cbcn, gbcn := 0.0, 0.0
	if b.tIsc != 0 {
		cbcn, gbcn = junctionI(b.vbc, b.tIsc, p.Float("nc")*b.vt)
	}

	// Base charge factor qb = q1*(1+sqrt(1+4*q2))/2
	invVAF, invVAR := 0.0, 0.0
	if vaf := p.Float("vaf"); vaf > 0 {
		invVAF = 1.0 / vaf
	}
	if vr := p.Float("var"); vr > 0 {
		invVAR = 1.0 / vr
	}
	invIKF, invIKR := 0.0, 0.0
	if ikf := p.Float("ikf") * p.Float("area"); ikf > 0 {
		invIKF = 1.0 / ikf
	}
	if ikr := p.Float("ikr") * p.Float("area"); ikr > 0 {
		invIKR = 1.0 / ikr
	}

	q1 := 1.0 / (1.0 - b.vbc*invVAF - b.vbe*invVAR)
	q2 := cbe*invIKF + cbc*invIKR
	arg := math.Max(0, 1.0+4.0*q2)
	sqarg := 1.0
	if arg != 0 {
		sqarg = math.Sqrt(arg)
	}
	qb := q1 * (1.0 + sqarg) / 2.0
	dqbdve := q1 * (qb*invVAR + invIKF*gbe/sqarg)
	dqbdvc := q1 * (qb*invVAF + invIKR*gbc/sqarg)
	b.qb = qb

	// Transport current, with the optional excess-phase rotation.
	cc := 0.0
	cex, gex := cbe, gbe
	if b.OnExcessPhase != nil {
		ev := &ExcessPhaseEvent{
			CollectorCurrent: cc,
			ExcessCurrent:    cex,
			Conductance:      gex,
			BaseCharge:       qb,
		}
		b.OnExcessPhase(ev)
		cc, cex, gex = ev.CollectorCurrent, ev.ExcessCurrent, ev.Conductance
	}
	cc += (cex - cbc) / qb
	cb := cbe/b.tBetaF + cben + cbc/b.tBetaR + cbcn

	b.gpi = gbe/b.tBetaF + gben
	b.gmu = gbc/b.tBetaR + gbcn
	b.gout = (gbc + (cex-cbc)*dqbdvc/qb) / qb
	b.gm = (gex-(cex-cbc)*dqbdve/qb)/qb - b.gout
	b.cc = cc - cbc/b.tBetaR - cbcn
	b.cb = cb

	// Base resistance modulation, tangent form when irb is given.
	rbm := p.Float("rbm")
	if !p.Given("rbm") {
		rbm = p.Float("rb")
	}
	area := p.Float("area")
	rbpr := rbm / area
	rbpi := p.Float("rb")/area - rbpr
	irb := p.Float("irb")
	gx := rbpr + rbpi/qb
	if irb > 0 {
		a1 := math.Max(cb/(irb*area), 1e-9)
		a2 := (-1.0 + math.Sqrt(1.0+14.59025*a1)) / 2.4317 / math.Sqrt(a1)
		a1 = math.Tan(a2)
		gx = rbpr + 3.0*rbpi*(a1-a2)/(a2*a1*a1)
	}
	if gx != 0 {
		gx = 1.0 / gx
	}
	b.gx = gx
}

// chargeLoad folds the stored junction charges into the conductances and
// currents during transient iteration.
func (b *Bjt) chargeLoad(st *state.Status) {
	if st.Mode != state.TransientAnalysis || b.qbe == nil {
		return
	}
	p := b.Bundle
	area := p.Float("area")

	qdep, capbe := junctionCharge(b.vbe, p.Float("cje")*area, p.Float("vje"), p.Float("mje"), p.Float("fc"))
	tf := p.Float("tf")
	capbe += tf * b.gm
	b.qbe.SetValue(qdep + tf*(b.cc+b.cb))
	b.qbe.Integrate(st.Method, st.Order, st.TimeStep)
	geqbe := b.qbe.Jacobian(capbe)
	b.cb += b.qbe.Derivative()
	b.gpi += geqbe

	qdep, capbc := junctionCharge(b.vbc, p.Float("cjc")*area, p.Float("vjc"), p.Float("mjc"), p.Float("fc"))
	tr := p.Float("tr")
	capbc += tr * b.gmu
	b.qbc.SetValue(qdep + tr*b.cc)
	b.qbc.Integrate(st.Method, st.Order, st.TimeStep)
	geqbc := b.qbc.Jacobian(capbc)
	iqbc := b.qbc.Derivative()
	b.cb += iqbc
	b.cc -= iqbc
	b.gmu += geqbc
}

func (b *Bjt) Stamp(m matrix.Stamper, st *state.Status) error {
	p := b.Bundle

	if st.Init == state.InitJunction {
		if b.off {
			b.vbe, b.vbc = 0, 0
		} else {
			b.vbe, b.vbc = b.vcrit, 0
		}
	}

	b.load(st)
	b.chargeLoad(st)

	nc, nb, ne := b.Nodes[0], b.Nodes[1], b.Nodes[2]
	cp, bp, ep := b.colPrime, b.basePrime, b.emitPrime

	area := p.Float("area")
	gcpr, gepr := 0.0, 0.0
	if rc := p.Float("rc"); rc > 0 {
		gcpr = area / rc
	}
	if re := p.Float("re"); re > 0 {
		gepr = area / re
	}

	gm, gpi, gmu, gout, gx := b.gm, b.gpi, b.gmu, b.gout, b.gx

	if gcpr > 0 {
		stampConductance(m, nc, cp, gcpr)
	}
	if gepr > 0 {
		stampConductance(m, ne, ep, gepr)
	}
	if gx > 0 {
		stampConductance(m, nb, bp, gx)
	}

	add := func(i, j int, v float64) {
		if i != 0 && j != 0 {
			m.AddElement(i, j, v)
		}
	}
	// Series resistances are stamped above; only the intrinsic device here.
	add(cp, cp, gmu+gout)
	add(bp, bp, gpi+gmu)
	add(ep, ep, gpi+gm+gout)
	add(cp, bp, -gmu+gm)
	add(cp, ep, -gm-gout)
	add(bp, cp, -gmu)
	add(bp, ep, -gpi)
	add(ep, cp, -gout)
	add(ep, bp, -gpi-gm)

	// Norton equivalents of the linearized currents. Polarity folds the
	// PNP sign back into the external system.
	pol := b.polarity
	ceqbe := pol * (b.cc + b.cb - b.vbe*(gm+gout+gpi) + b.vbc*gout)
	ceqbc := pol * (-b.cc + b.vbe*(gm+gout) - b.vbc*(gmu+gout))
	if cp != 0 {
		m.AddRHS(cp, ceqbc)
	}
	if bp != 0 {
		m.AddRHS(bp, -ceqbe-ceqbc)
	}
	if ep != 0 {
		m.AddRHS(ep, ceqbe)
	}

	return nil
}

func (b *Bjt) StampAC(m matrix.Stamper, st *state.Status) error {
	p := b.Bundle
	omega := 2 * math.Pi * st.Frequency
	area := p.Float("area")

	_, capbe := junctionCharge(b.vbe, p.Float("cje")*area, p.Float("vje"), p.Float("mje"), p.Float("fc"))
	capbe += p.Float("tf") * b.gm
	_, capbc := junctionCharge(b.vbc, p.Float("cjc")*area, p.Float("vjc"), p.Float("mjc"), p.Float("fc"))
	capbc += p.Float("tr") * b.gmu

	nc, nb, ne := b.Nodes[0], b.Nodes[1], b.Nodes[2]
	cp, bp, ep := b.colPrime, b.basePrime, b.emitPrime

	gcpr, gepr := 0.0, 0.0
	if rc := p.Float("rc"); rc > 0 {
		gcpr = area / rc
	}
	if re := p.Float("re"); re > 0 {
		gepr = area / re
	}
	if gcpr > 0 {
		stampComplexConductance(m, nc, cp, gcpr, 0)
	}
	if gepr > 0 {
		stampComplexConductance(m, ne, ep, gepr, 0)
	}
	if b.gx > 0 {
		stampComplexConductance(m, nb, bp, b.gx, 0)
	}

	add := func(i, j int, re, im float64) {
		if i != 0 && j != 0 {
			m.AddComplexElement(i, j, re, im)
		}
	}
	gm, gpi, gmu, gout := b.gm, b.gpi, b.gmu, b.gout
	xbe := omega * capbe
	xbc := omega * capbc

	add(cp, cp, gmu+gout, xbc)
	add(bp, bp, gpi+gmu, xbe+xbc)
	add(ep, ep, gpi+gm+gout, xbe)
	add(cp, bp, -gmu+gm, -xbc)
	add(cp, ep, -gm-gout, 0)
	add(bp, cp, -gmu, -xbc)
	add(bp, ep, -gpi, -xbe)
	add(ep, cp, -gout, 0)
	add(ep, bp, -gpi-gm, -xbe)

	return nil
}

func (b *Bjt) UpdateVoltages(solution []float64, st *state.Status) bool {
	pol := b.polarity
	vb := voltageAt(solution, b.basePrime)
	vc := voltageAt(solution, b.colPrime)
	ve := voltageAt(solution, b.emitPrime)

	vbeNew := pol * (vb - ve)
	vbcNew := pol * (vb - vc)

	vtF := b.Bundle.Float("nf") * b.vt
	vtR := b.Bundle.Float("nr") * b.vt

	var limbe, limbc bool
	vbeNew, limbe = Pnjlim(vbeNew, b.vbe, vtF, b.vcrit)
	vbcNew, limbc = Pnjlim(vbcNew, b.vbc, vtR, b.vcrit)

	b.vbe, b.vbc = vbeNew, vbcNew
	b.limited = limbe || limbc
	return b.limited
}

// IsConvergent extrapolates collector and base currents along the stored
// conductances and compares against the loaded values.
func (b *Bjt) IsConvergent(solution []float64, reltol, abstol float64) bool {
	pol := b.polarity
	vb := voltageAt(solution, b.basePrime)
	vc := voltageAt(solution, b.colPrime)
	ve := voltageAt(solution, b.emitPrime)

	delvbe := pol*(vb-ve) - b.vbe
	delvbc := pol*(vb-vc) - b.vbc
	if b.legacyConvergence {
		// Compatibility: historic implementations compared against the
		// wrong junction here.
		delvbc = pol*(vb-vc) - b.vbe
	}

	cchat := b.cc + (b.gm+b.gout)*delvbe - (b.gout+b.gmu)*delvbc
	cbhat := b.cb + b.gpi*delvbe + b.gmu*delvbc

	tolc := reltol*math.Max(math.Abs(cchat), math.Abs(b.cc)) + abstol
	tolb := reltol*math.Max(math.Abs(cbhat), math.Abs(b.cb)) + abstol

	return math.Abs(cchat-b.cc) <= tolc &&
		math.Abs(cbhat-b.cb) <= tolb &&
		!b.limited
}

func (b *Bjt) InitStorage(solution []float64) {
	p := b.Bundle
	area := p.Float("area")
	qdep, _ := junctionCharge(b.vbe, p.Float("cje")*area, p.Float("vje"), p.Float("mje"), p.Float("fc"))
	b.qbe.Initialize(qdep + p.Float("tf")*(b.cc+b.cb))
	qdep, _ = junctionCharge(b.vbc, p.Float("cjc")*area, p.Float("vjc"), p.Float("mjc"), p.Float("fc"))
	b.qbc.Initialize(qdep + p.Float("tr")*b.cc)
}

func (b *Bjt) UpdateState(solution []float64, st *state.Status) {
	// Junction voltages follow UpdateVoltages; charge values are refreshed
	// inside chargeLoad from those voltages.
}

func (b *Bjt) Accept(st *state.Status) {
	if b.vbeHist != nil {
		b.vbeHist.Push(st.Time, b.vbe)
	}
}

// CollectorCurrent returns Ic at the last load, external polarity.
func (b *Bjt) CollectorCurrent() float64 { return b.polarity * b.cc }

// BaseCurrent returns Ib at the last load, external polarity.
func (b *Bjt) BaseCurrent() float64 { return b.polarity * b.cb }

func (b *Bjt) NoiseSources() []*NoiseGenerator {
	p := b.Bundle
	area := p.Float("area")
	gens := make([]*NoiseGenerator, 0, 5)

	if rc := p.Float("rc"); rc > 0 {
		g := NewNoiseGenerator(b.Name, "rc", ThermalNoise, b.Nodes[0], b.colPrime)
		g.SetCoefficients(area / rc)
		gens = append(gens, g)
	}
	if b.gx > 0 {
		g := NewNoiseGenerator(b.Name, "rb", ThermalNoise, b.Nodes[1], b.basePrime)
		g.SetCoefficients(b.gx)
		gens = append(gens, g)
	}
	if re := p.Float("re"); re > 0 {
		g := NewNoiseGenerator(b.Name, "re", ThermalNoise, b.Nodes[2], b.emitPrime)
		g.SetCoefficients(area / re)
		gens = append(gens, g)
	}

	ic := NewNoiseGenerator(b.Name, "ic", ShotNoise, b.colPrime, b.emitPrime)
	ic.SetCoefficients(b.cc)
	gens = append(gens, ic)

	ib := NewNoiseGenerator(b.Name, "ib", ShotNoise, b.basePrime, b.emitPrime)
	ib.SetCoefficients(b.cb)
	gens = append(gens, ib)

	fl := NewNoiseGenerator(b.Name, "flicker", FlickerNoise, b.basePrime, b.emitPrime)
	fl.SetCoefficients(p.Float("kf"), p.Float("af"), b.cb)
	gens = append(gens, fl)

	return gens
}
