package util

type IntegrationMethod int

const (
	GearMethod IntegrationMethod = iota
	TrapezoidalMethod
)

const MaxOrder = 6

type backwardDifferentiationFormula struct {
	coefficients []float64
	beta         float64
}

var bdfTable = [MaxOrder]backwardDifferentiationFormula{
	{[]float64{1.0}, 1.0},
	{[]float64{4.0 / 3.0, -1.0 / 3.0}, 2.0 / 3.0},
	{[]float64{18.0 / 11.0, -9.0 / 11.0, 2.0 / 11.0}, 6.0 / 11.0},
	{[]float64{48.0 / 25.0, -36.0 / 25.0, 16.0 / 25.0, -3.0 / 25.0}, 12.0 / 25.0},
	{[]float64{300.0 / 137.0, -300.0 / 137.0, 200.0 / 137.0, -75.0 / 137.0, 12.0 / 137.0}, 60.0 / 137.0},
	{[]float64{360.0 / 147.0, -450.0 / 147.0, 400.0 / 147.0, -225.0 / 147.0, 72.0 / 147.0, -10.0 / 147.0}, 60.0 / 147.0},
}

// errorConstants are the LTE coefficients of the BDF formulas,
// lte ~= C_k * dt^(k+1) * x^(k+1).
var errorConstants = [MaxOrder]float64{
	1.0 / 2.0, 2.0 / 9.0, 3.0 / 22.0, 12.0 / 125.0, 10.0 / 137.0, 20.0 / 343.0,
}

// GetIntegratorCoeffs returns the implicit-formula coefficients for the
// derivative approximation. coeffs[0] multiplies the current value; for Gear
// methods coeffs[1..order] multiply the history values.
func GetIntegratorCoeffs(method IntegrationMethod, order int, dt float64) []float64 {
	switch method {
	case TrapezoidalMethod:
		return GetTrapezoidalCoeffs(order, dt)
	default:
		return GetBDFCoeffs(order, dt)
	}
}

func GetBDFCoeffs(order int, dt float64) []float64 {
	order = Clamp(order, 1, MaxOrder)

	bdf := bdfTable[order-1]
	coeffs := make([]float64, order+1)
	scale := 1.0 / (bdf.beta * dt)
	coeffs[0] = scale

	for i := 1; i <= order; i++ {
		coeffs[i] = -bdf.coefficients[i-1] * scale
	}

	return coeffs
}

// GetTrapezoidalCoeffs returns the leading coefficient of the trapezoidal
// rule (order 2) or backward Euler (order 1). The trapezoidal derivative is
// xdot = c0*(x - x[t-1]) - xdot[t-1].
func GetTrapezoidalCoeffs(order int, dt float64) []float64 {
	order = Clamp(order, 1, 2)

	coeffs := make([]float64, 1)
	coeffs[0] = 2.0 / dt
	if order == 1 {
		coeffs[0] = 1.0 / dt
	}

	return coeffs
}

// ErrorConstant returns the LTE coefficient for the given method and order.
func ErrorConstant(method IntegrationMethod, order int) float64 {
	if method == TrapezoidalMethod {
		if order <= 1 {
			return 1.0 / 2.0
		}
		return 1.0 / 12.0
	}
	return errorConstants[Clamp(order, 1, MaxOrder)-1]
}

// DividedDifference computes the (k+1)-th divided difference of the values
// x[0..k+1] (most recent first) over the step history dts[0..k], the raw
// material of the LTE estimate.
func DividedDifference(values []float64, dts []float64) float64 {
	n := len(values)
	if n < 2 || len(dts) < n-1 {
		return 0
	}

	// Absolute times, t=0 at the newest point, increasing into the past.
	times := make([]float64, n)
	for i := 1; i < n; i++ {
		times[i] = times[i-1] + dts[i-1]
	}

	diff := make([]float64, n)
	copy(diff, values)
	for ord := 1; ord < n; ord++ {
		for i := 0; i < n-ord; i++ {
			diff[i] = (diff[i] - diff[i+1]) / (times[i+ord] - times[i])
		}
	}
	return diff[0]
}
