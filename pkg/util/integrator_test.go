package util

import (
	"math"
	"testing"
)

func TestBDFCoefficientsSumToZero(t *testing.T) {
	// Any implicit difference formula must annihilate constants.
	const dt = 1e-3
	for order := 1; order <= MaxOrder; order++ {
		coeffs := GetBDFCoeffs(order, dt)
		sum := 0.0
		for _, c := range coeffs {
			sum += c
		}
		if math.Abs(sum) > 1e-6/dt {
			t.Fatalf("order %d: coefficient sum %g", order, sum)
		}
	}
}

func TestBDFFirstOrderIsBackwardEuler(t *testing.T) {
	coeffs := GetBDFCoeffs(1, 0.5)
	if math.Abs(coeffs[0]-2.0) > 1e-12 || math.Abs(coeffs[1]+2.0) > 1e-12 {
		t.Fatalf("BE coefficients = %v", coeffs)
	}
}

func TestTrapezoidalLeadingCoefficient(t *testing.T) {
	if c := GetTrapezoidalCoeffs(2, 0.25); c[0] != 8.0 {
		t.Fatalf("trap c0 = %g, want 8", c[0])
	}
	if c := GetTrapezoidalCoeffs(1, 0.25); c[0] != 4.0 {
		t.Fatalf("BE c0 = %g, want 4", c[0])
	}
}

func TestDividedDifference(t *testing.T) {
	// Second divided difference of t^2 sampled on a uniform grid is 1.
	dt := 0.1
	values := []float64{0.04, 0.01, 0.0} // (2dt)^2, dt^2, 0 newest-first... reversed in time
	dts := []float64{dt, dt}
	dd := DividedDifference(values, dts)
	if math.Abs(dd-1.0) > 1e-9 {
		t.Fatalf("DD2 of t^2 = %g, want 1", dd)
	}

	// Third divided difference of a quadratic vanishes.
	values = []float64{0.09, 0.04, 0.01, 0.0}
	dts = []float64{dt, dt, dt}
	if dd := DividedDifference(values, dts); math.Abs(dd) > 1e-9 {
		t.Fatalf("DD3 of t^2 = %g, want 0", dd)
	}
}

func TestClamp(t *testing.T) {
	if Clamp(5, 1, 3) != 3 || Clamp(-1, 0, 3) != 0 || Clamp(2, 1, 3) != 2 {
		t.Fatal("clamp bounds wrong")
	}
	if Clamp(2.5, 0.0, 1.0) != 1.0 {
		t.Fatal("float clamp wrong")
	}
}
