package state

import (
	"math"
	"testing"

	"github.com/saugkim/spicecore/pkg/util"
)

// Integrating xdot = -x with the trapezoidal rule at fixed dt = 0.01 must
// match exp(-1) at t = 1 to second order.
func TestTrapezoidalOrder(t *testing.T) {
	p := NewPool()
	d := p.NewDerivative()
	d.Initialize(1.0)

	const dt = 0.01
	x := 1.0
	for i := 0; i < 100; i++ {
		// Implicit solve of the active formula against xdot = -x. The first
		// step has no derivative history, so the slot falls back to
		// backward Euler; mirror that here.
		var xNew float64
		if i == 0 {
			c0 := 1.0 / dt
			xNew = c0 * x / (c0 + 1)
		} else {
			c0 := 2.0 / dt
			xNew = (c0*x + d.Derivative()) / (c0 + 1)
		}

		d.SetValue(xNew)
		d.Integrate(util.TrapezoidalMethod, 2, dt)

		// The slot's derivative must agree with the ODE at the new point.
		if i > 0 {
			if diff := math.Abs(d.Derivative() - (-xNew)); diff > 1e-6*math.Abs(xNew)+1e-12 {
				t.Fatalf("step %d: derivative %g, want %g", i, d.Derivative(), -xNew)
			}
		}
		p.AcceptTimepoint(dt)
		x = xNew
	}

	want := math.Exp(-1)
	if diff := math.Abs(x - want); diff > 1e-4 {
		t.Fatalf("x(1) = %.8f, want %.8f (diff %g)", x, want, diff)
	}
}

func TestJacobianAndRHSCurrent(t *testing.T) {
	p := NewPool()
	d := p.NewDerivative()
	d.Initialize(0)

	const dt = 1e-6
	d.SetValue(2e-6) // q = C*v with C = 1uF, v = 2V
	d.Integrate(util.GearMethod, 1, dt)

	cap := 1e-6
	g := d.Jacobian(cap)
	if math.Abs(g-cap/dt) > 1e-9 {
		t.Fatalf("jacobian = %g, want %g", g, cap/dt)
	}

	// Backward Euler from q=0: dq/dt = q/dt.
	wantDeriv := 2e-6 / dt
	if math.Abs(d.Derivative()-wantDeriv) > 1e-6 {
		t.Fatalf("derivative = %g, want %g", d.Derivative(), wantDeriv)
	}

	rhs := d.RHSCurrent(g, 2.0)
	if math.Abs(rhs-(g*2.0-wantDeriv)) > 1e-9 {
		t.Fatalf("rhs current = %g", rhs)
	}
}

func TestTruncationErrorShrinksForRoughData(t *testing.T) {
	p := NewPool()
	smooth := p.NewDerivative()
	rough := p.NewDerivative()
	smooth.Initialize(0)
	rough.Initialize(0)

	const dt = 1e-3
	for i := 1; i <= 6; i++ {
		x := float64(i) * dt // linear ramp: zero curvature
		smooth.SetValue(x)
		smooth.Integrate(util.TrapezoidalMethod, 2, dt)
		smooth.Rotate(dt)

		y := float64(i * i * i * i) // strongly curved
		rough.SetValue(y)
		rough.Integrate(util.TrapezoidalMethod, 2, dt)
		rough.Rotate(dt)
	}

	sStep := smooth.TruncationError(dt, util.TrapezoidalMethod, 2, 7.0, 1e-3, 1e-12)
	rStep := rough.TruncationError(dt, util.TrapezoidalMethod, 2, 7.0, 1e-3, 1e-12)

	if sStep <= rStep {
		t.Fatalf("smooth data proposed %g, rough %g; smooth must allow larger steps", sStep, rStep)
	}
}
