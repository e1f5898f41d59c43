package state

import (
	"math"

	"github.com/saugkim/spicecore/pkg/util"
)

// Derivative is a state variable whose time derivative the integrator
// computes: typically a charge q with i = dq/dt. It keeps the current value,
// the last few accepted values and steps, the derivative, and the leading
// formula coefficient that becomes the Jacobian contribution.
type Derivative struct {
	values []float64 // values[0] current, values[k] k steps back
	derivs []float64 // derivs[0] current, derivs[1] previous accepted
	steps  []float64 // steps[k] = dt of the k-th most recent accepted step
	known  int       // accepted history points available
	coeff  float64   // c0 of the active implicit formula
}

func newDerivative(depth int) *Derivative {
	return &Derivative{
		values: make([]float64, depth),
		derivs: make([]float64, 2),
		steps:  make([]float64, depth),
	}
}

// SetValue stores the current (not yet accepted) value of the quantity.
func (d *Derivative) SetValue(v float64) { d.values[0] = v }

func (d *Derivative) Value() float64 { return d.values[0] }

// Prev returns the value k accepted steps back.
func (d *Derivative) Prev(k int) float64 {
	if k >= len(d.values) {
		return 0
	}
	return d.values[k]
}

func (d *Derivative) Derivative() float64 { return d.derivs[0] }

// Initialize seeds the history with a DC value so the first transient step
// starts from a zero derivative.
func (d *Derivative) Initialize(v float64) {
	for i := range d.values {
		d.values[i] = v
	}
	d.derivs[0] = 0
	d.derivs[1] = 0
	d.known = 1
}

// Integrate applies the active implicit formula to the current value,
// updating the derivative and the Jacobian coefficient.
func (d *Derivative) Integrate(method util.IntegrationMethod, order int, dt float64) {
	if d.known < order {
		// Not enough history yet: fall back to backward Euler.
		method = util.GearMethod
		order = 1
	}

	switch method {
	case util.TrapezoidalMethod:
		coeffs := util.GetTrapezoidalCoeffs(order, dt)
		d.coeff = coeffs[0]
		if order >= 2 {
			d.derivs[0] = d.coeff*(d.values[0]-d.values[1]) - d.derivs[1]
		} else {
			d.derivs[0] = d.coeff * (d.values[0] - d.values[1])
		}
	default:
		coeffs := util.GetBDFCoeffs(order, dt)
		d.coeff = coeffs[0]
		acc := d.coeff * d.values[0]
		for i := 1; i <= order; i++ {
			acc += coeffs[i] * d.values[i]
		}
		d.derivs[0] = acc
	}
}

// Jacobian returns the matrix contribution g = cap * c0 for a capacitance
// cap = dq/dv at the current timepoint.
func (d *Derivative) Jacobian(cap float64) float64 {
	return cap * d.coeff
}

// RHSCurrent returns the Norton-equivalent RHS contribution g*v - dq/dt.
func (d *Derivative) RHSCurrent(g, v float64) float64 {
	return g*v - d.derivs[0]
}

// Rotate shifts history after a timepoint is accepted.
func (d *Derivative) Rotate(dt float64) {
	for i := len(d.values) - 1; i > 0; i-- {
		d.values[i] = d.values[i-1]
	}
	for i := len(d.steps) - 1; i > 0; i-- {
		d.steps[i] = d.steps[i-1]
	}
	d.steps[0] = dt
	d.derivs[1] = d.derivs[0]
	if d.known < len(d.values) {
		d.known++
	}
}

// TruncationError estimates the local truncation error of the last step and
// returns the largest next timestep that keeps it within trtol times the
// error tolerance.
func (d *Derivative) TruncationError(dt float64, method util.IntegrationMethod, order int, trtol, reltol, abstol float64) float64 {
	if d.known < order+1 || dt <= 0 {
		return math.Inf(1)
	}

	n := order + 2
	if n > len(d.values) {
		n = len(d.values)
	}
	vals := make([]float64, n)
	vals[0] = d.values[0]
	copy(vals[1:], d.values[1:n])

	dts := make([]float64, n-1)
	dts[0] = dt
	copy(dts[1:], d.steps[:n-2])

	dd := util.DividedDifference(vals, dts)
	lte := math.Abs(util.ErrorConstant(method, order) * dd * math.Pow(dt, float64(order+1)))

	maxVal := math.Abs(d.values[0])
	for i := 1; i < n; i++ {
		if a := math.Abs(d.values[i]); a > maxVal {
			maxVal = a
		}
	}
	tol := reltol*maxVal + abstol
	if lte <= 0 {
		return math.Inf(1)
	}

	return dt * math.Pow(trtol*tol/lte, 1.0/float64(order+1))
}
