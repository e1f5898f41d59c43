package device

import (
	"math"
	"testing"

	"github.com/saugkim/spicecore/internal/consts"
)

func newTestDiode(t *testing.T) *Diode {
	t.Helper()
	d := NewDiode("D1", []string{"a", "k"})
	if err := d.UpdateTemperature(consts.REFTEMP); err != nil {
		t.Fatal(err)
	}
	return d
}

// i(v) - i(v-eps) must approximate eps*gd(v) to second order everywhere the
// exponential branch applies.
func TestDiodeReciprocity(t *testing.T) {
	d := newTestDiode(t)
	const eps = 1e-6

	for _, v := range []float64{-0.05, 0.0, 0.3, 0.55, 0.7} {
		i1, gd := d.junction(v, 0)
		i0, _ := d.junction(v-eps, 0)

		lhs := i1 - i0
		rhs := eps * gd
		// O(eps^2) agreement, scaled by the local slope.
		tol := 1e-7*math.Abs(rhs) + eps*eps*gd/d.vte
		if math.Abs(lhs-rhs) > tol {
			t.Fatalf("v=%g: di=%g, eps*gd=%g", v, lhs, rhs)
		}
	}
}

func TestDiodeForwardCurrent(t *testing.T) {
	d := newTestDiode(t)

	vte := d.vte
	id, _ := d.junction(0.7, 0)
	want := 1e-14 * (math.Exp(0.7/vte) - 1)
	if math.Abs(id-want) > 1e-3*want {
		t.Fatalf("i(0.7) = %g, want %g", id, want)
	}
}

func TestDiodeReverseBranches(t *testing.T) {
	d := newTestDiode(t)
	d.Bundle.Set("bv", 50)
	if err := d.UpdateTemperature(consts.REFTEMP); err != nil {
		t.Fatal(err)
	}

	// Deep reverse, non-breakdown: the regularized tail stays near -Is and
	// keeps a positive conductance.
	id, gd := d.junction(-10, 0)
	if id >= 0 || math.Abs(id) > 1e-12 {
		t.Fatalf("reverse current = %g", id)
	}
	if gd < 0 {
		t.Fatalf("reverse conductance negative: %g", gd)
	}

	// Breakdown: current grows sharply past -bv.
	iBd, gBd := d.junction(-51, 0)
	if iBd >= id {
		t.Fatalf("breakdown current %g not below reverse tail %g", iBd, id)
	}
	if gBd <= 0 {
		t.Fatalf("breakdown conductance = %g", gBd)
	}
}

func TestPnjlimClamping(t *testing.T) {
	vt := ThermalVoltage(consts.REFTEMP)
	vcrit := CriticalVoltage(1e-14, vt)

	// Small steps pass through untouched.
	v, limited := Pnjlim(vcrit+vt, vcrit+vt/2, vt, vcrit)
	if limited || v != vcrit+vt {
		t.Fatalf("small step was limited: %g", v)
	}

	// A big jump above vcrit is pulled back logarithmically.
	v, limited = Pnjlim(5.0, 0.6, vt, vcrit)
	if !limited {
		t.Fatal("large step must be limited")
	}
	if v >= 5.0 || v <= 0.6 {
		t.Fatalf("limited voltage %g out of range", v)
	}
}
