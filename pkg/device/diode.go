package device

import (
	"math"

	"github.com/saugkim/spicecore/internal/consts"
	"github.com/saugkim/spicecore/pkg/matrix"
	"github.com/saugkim/spicecore/pkg/node"
	"github.com/saugkim/spicecore/pkg/state"
)

type Diode struct {
	BaseDevice

	// Temperature-dependent constants, recomputed by UpdateTemperature.
	tIs    float64 // saturation current at T
	vte    float64 // N * kT/q
	vcrit  float64 // junction limiting threshold
	gspr   float64 // series conductance
	tDepCap float64 // depletion capacitance transition voltage
	f1, f2, f3 float64 // depletion charge linearization coefficients

	posPrime int // internal anode when rs > 0

	// Iteration state
	vd      float64
	id      float64
	gd      float64
	limited bool
	off     bool

	charge  *state.Derivative
	history *state.History
	capCur  float64 // charge current at the last load
	capVal  float64 // small-signal capacitance at the operating point
}

var (
	_ Temperature = (*Diode)(nil)
	_ Loader      = (*Diode)(nil)
	_ ACLoader    = (*Diode)(nil)
	_ Transient   = (*Diode)(nil)
	_ Accepter    = (*Diode)(nil)
	_ NonLinear   = (*Diode)(nil)
	_ Setuper     = (*Diode)(nil)
	_ Noiser      = (*Diode)(nil)
)

func NewDiode(name string, nodeNames []string) *Diode {
	d := &Diode{BaseDevice: NewBase(name, nodeNames, 0)}
	b := d.Bundle
	b.DeclarePrincipal("area")
	b.Default("area", 1.0)
	b.Default("is", 1e-14)
	b.Default("n", 1.0)
	b.Default("rs", 0.0)
	b.Default("cj0", 0.0)
	b.Default("m", 0.5)
	b.Default("vj", 1.0)
	b.Default("bv", 0.0)
	b.Default("ibv", 1e-3)
	b.Default("eg", 1.11)
	b.Default("xti", 3.0)
	b.Default("tt", 0.0)
	b.Default("fc", 0.5)
	b.Default("kf", 0.0)
	b.Default("af", 1.0)
	b.Default("tnom", consts.REFTEMP)
	return d
}

func (d *Diode) GetType() string { return "D" }

// SetOff marks the device off for junction initialization.
func (d *Diode) SetOff() { d.off = true }

func (d *Diode) SetModelParameters(params map[string]float64) {
	for name, v := range params {
		d.Bundle.Set(name, v)
	}
}

func (d *Diode) Setup(nodes *node.Map, pool *state.Pool) error {
	if d.Bundle.Float("rs") > 0 && d.posPrime == 0 {
		idx, err := nodes.CreateInternal(d.Name, "int")
		if err != nil {
			return err
		}
		d.posPrime = idx
	} else if d.posPrime == 0 {
		d.posPrime = d.Nodes[0]
	}
	d.charge = pool.NewDerivative()
	d.history = pool.NewHistory(3)
	return nil
}

func (d *Diode) Unsetup() {
	d.posPrime = 0
	d.charge = nil
	d.history = nil
}

func (d *Diode) UpdateTemperature(temp float64) error {
	b := d.Bundle
	vt := ThermalVoltage(temp)
	tnom := b.Float("tnom")
	n := b.Float("n")
	d.vte = n * vt

	// is(T) = is * (T/Tnom)^(XTI/N) * exp(Eg/vte * (T/Tnom - 1))
	ratio := temp / tnom
	egfac := b.Float("eg") / d.vte * (ratio - 1.0)
	area := b.Float("area")
	d.tIs = b.Float("is") * area * math.Pow(ratio, b.Float("xti")/n) * math.Exp(egfac)

	d.vcrit = CriticalVoltage(d.tIs, d.vte)

	rs := b.Float("rs")
	if rs > 0 {
		d.gspr = area / rs
	} else {
		d.gspr = 0
	}

	// Depletion charge: closed form below fc*vj, linear extrapolation above.
	fc := b.Float("fc")
	vj := b.Float("vj")
	mj := b.Float("m")
	d.tDepCap = fc * vj
	xfc := math.Log(1 - fc)
	d.f1 = vj * (1 - math.Exp((1-mj)*xfc)) / (1 - mj)
	d.f2 = math.Exp((1 + mj) * xfc)
	d.f3 = 1 - fc*(1+mj)
	return nil
}

// junction evaluates the three-branch diode equation at vd.
func (d *Diode) junction(vd, gmin float64) (id, gd float64) {
	bv := d.Bundle.Float("bv")

	switch {
	case vd >= -3.0*d.vte:
		// Forward and weak reverse bias
		evd := limitExp(vd / d.vte)
		id = d.tIs*(evd-1.0) + gmin*vd
		gd = d.tIs*evd/d.vte + gmin

	case bv == 0 || vd >= -bv:
		// Reverse, non-breakdown: regularized tail matching value and slope
		// at vd = -3*vte.
		arg := 3.0 * d.vte / (vd * math.E)
		arg = arg * arg * arg
		id = -d.tIs*(1.0+arg) + gmin*vd
		gd = d.tIs*3.0*arg/vd + gmin

	default:
		// Breakdown
		evrev := limitExp(-(bv + vd) / d.vte)
		ibv := d.Bundle.Float("ibv")
		id = -ibv*evrev + gmin*vd
		gd = ibv*evrev/d.vte + gmin
	}
	return id, gd
}

// depletionCharge integrates the junction capacitance up to vd.
func (d *Diode) depletionCharge(vd float64) (q, cap float64) {
	cj0 := d.Bundle.Float("cj0") * d.Bundle.Float("area")
	if cj0 == 0 {
		return 0, 0
	}
	vj := d.Bundle.Float("vj")
	mj := d.Bundle.Float("m")

	if vd < d.tDepCap {
		arg := 1 - vd/vj
		sarg := math.Exp(-mj * math.Log(arg))
		q = vj * cj0 * (1 - arg*sarg) / (1 - mj)
		cap = cj0 * sarg
	} else {
		czf2 := cj0 / d.f2
		q = cj0*d.f1 + czf2*(d.f3*(vd-d.tDepCap)+(mj/(2*vj))*(vd*vd-d.tDepCap*d.tDepCap))
		cap = czf2 * (d.f3 + mj*vd/vj)
	}
	return q, cap
}

func (d *Diode) Stamp(m matrix.Stamper, st *state.Status) error {
	np, nn := d.Nodes[0], d.Nodes[1]
	inner := d.posPrime

	if st.Init == state.InitJunction {
		if d.off {
			d.vd = 0
		} else {
			d.vd = d.vcrit
		}
	}

	d.id, d.gd = d.junction(d.vd, st.Gmin)

	// Charge storage contributes in transient
	d.capCur = 0
	if st.Mode == state.TransientAnalysis && d.charge != nil {
		qdep, cap := d.depletionCharge(d.vd)
		tt := d.Bundle.Float("tt")
		cap += tt * d.gd
		d.capVal = cap
		d.charge.SetValue(qdep + tt*d.id)
		d.charge.Integrate(st.Method, st.Order, st.TimeStep)
		geq := d.charge.Jacobian(cap)
		d.capCur = d.charge.Derivative()
		d.id += d.capCur
		d.gd += geq
	}

	// Series conductance between outer anode and internal node.
	if d.gspr > 0 && inner != np {
		stampConductance(m, np, inner, d.gspr)
	}

	stampConductance(m, inner, nn, d.gd)
	ieq := d.id - d.gd*d.vd
	stampCurrent(m, inner, nn, ieq)

	return nil
}

func (d *Diode) StampAC(m matrix.Stamper, st *state.Status) error {
	np, nn := d.Nodes[0], d.Nodes[1]
	inner := d.posPrime
	omega := 2 * math.Pi * st.Frequency

	_, cap := d.depletionCharge(d.vd)
	cap += d.Bundle.Float("tt") * d.gd

	if d.gspr > 0 && inner != np {
		stampComplexConductance(m, np, inner, d.gspr, 0)
	}
	stampComplexConductance(m, inner, nn, d.gd, omega*cap)
	return nil
}

// UpdateVoltages applies junction limiting to the new solution.
func (d *Diode) UpdateVoltages(solution []float64, st *state.Status) bool {
	vnew := voltageAt(solution, d.posPrime) - voltageAt(solution, d.Nodes[1])
	vnew, limited := Pnjlim(vnew, d.vd, d.vte, d.vcrit)
	d.vd = vnew
	d.limited = limited
	return limited
}

// IsConvergent runs the predicted-current test: the current extrapolated
// along the stored conductance must agree with the stamped current.
func (d *Diode) IsConvergent(solution []float64, reltol, abstol float64) bool {
	vnew := voltageAt(solution, d.posPrime) - voltageAt(solution, d.Nodes[1])
	predicted := d.id + d.gd*(vnew-d.vd)
	tol := reltol*math.Max(math.Abs(predicted), math.Abs(d.id)) + abstol
	return math.Abs(predicted-d.id) <= tol && !d.limited
}

func (d *Diode) InitStorage(solution []float64) {
	vd := voltageAt(solution, d.posPrime) - voltageAt(solution, d.Nodes[1])
	d.vd = vd
	qdep, _ := d.depletionCharge(vd)
	id, _ := d.junction(vd, 0)
	d.charge.Initialize(qdep + d.Bundle.Float("tt")*id)
}

func (d *Diode) UpdateState(solution []float64, st *state.Status) {
	// vd is maintained by UpdateVoltages during iteration; nothing else to
	// refresh between iterations.
}

func (d *Diode) Accept(st *state.Status) {
	if d.history != nil {
		d.history.Push(st.Time, d.vd)
	}
}

// Voltage returns the intrinsic junction voltage.
func (d *Diode) Voltage() float64 { return d.vd }

// Current returns the junction current at the last load.
func (d *Diode) Current() float64 { return d.id }

// Conductance returns the junction conductance at the last load.
func (d *Diode) Conductance() float64 { return d.gd }

func (d *Diode) NoiseSources() []*NoiseGenerator {
	shot := NewNoiseGenerator(d.Name, "shot", ShotNoise, d.posPrime, d.Nodes[1])
	shot.SetCoefficients(d.id - d.capCur)
	flicker := NewNoiseGenerator(d.Name, "flicker", FlickerNoise, d.posPrime, d.Nodes[1])
	flicker.SetCoefficients(d.Bundle.Float("kf"), d.Bundle.Float("af"), d.id-d.capCur)
	gens := []*NoiseGenerator{shot, flicker}
	if d.gspr > 0 {
		rs := NewNoiseGenerator(d.Name, "rs", ThermalNoise, d.Nodes[0], d.posPrime)
		rs.SetCoefficients(d.gspr)
		gens = append(gens, rs)
	}
	return gens
}
