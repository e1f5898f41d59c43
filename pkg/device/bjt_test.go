package device

import (
	"math"
	"testing"

	"github.com/saugkim/spicecore/internal/consts"
	"github.com/saugkim/spicecore/pkg/state"
)

func loadedBJT(t *testing.T, vbe, vbc float64) *Bjt {
	t.Helper()
	b := NewBJT("Q1", []string{"c", "b", "e"}, false)
	b.Bundle.Set("is", 1e-14)
	b.Bundle.Set("bf", 100)
	if err := b.UpdateTemperature(consts.REFTEMP); err != nil {
		t.Fatal(err)
	}
	b.vbe, b.vbc = vbe, vbc
	b.load(&state.Status{Temp: consts.REFTEMP, Gmin: 1e-12})
	return b
}

func TestBJTForwardActiveBeta(t *testing.T) {
	b := loadedBJT(t, 0.65, -4.35)

	ratio := b.cc / b.cb
	if math.Abs(ratio-100) > 2 {
		t.Fatalf("Ic/Ib = %g, want 100 within 2%%", ratio)
	}
	if b.gm <= 0 || b.gpi <= 0 {
		t.Fatalf("conductances gm=%g gpi=%g", b.gm, b.gpi)
	}
	// gm ~ Ic/vt in forward active.
	vt := ThermalVoltage(consts.REFTEMP)
	if diff := math.Abs(b.gm - b.cc/vt); diff > 0.05*b.gm {
		t.Fatalf("gm = %g, Ic/vt = %g", b.gm, b.cc/vt)
	}
}

func TestBJTHighInjectionRollOff(t *testing.T) {
	flat := loadedBJT(t, 0.75, -4.0)

	b := NewBJT("Q2", []string{"c", "b", "e"}, false)
	b.Bundle.Set("is", 1e-14)
	b.Bundle.Set("bf", 100)
	b.Bundle.Set("ikf", 1e-6) // corner far below the operating current
	if err := b.UpdateTemperature(consts.REFTEMP); err != nil {
		t.Fatal(err)
	}
	b.vbe, b.vbc = 0.75, -4.0
	b.load(&state.Status{Temp: consts.REFTEMP, Gmin: 1e-12})

	if b.qb <= 1.0 {
		t.Fatalf("base charge factor = %g, must exceed 1 in high injection", b.qb)
	}
	if b.cc >= flat.cc {
		t.Fatalf("roll-off did not reduce Ic: %g vs %g", b.cc, flat.cc)
	}
}

func TestBJTExcessPhaseHook(t *testing.T) {
	b := NewBJT("Q3", []string{"c", "b", "e"}, false)
	b.Bundle.Set("is", 1e-14)
	if err := b.UpdateTemperature(consts.REFTEMP); err != nil {
		t.Fatal(err)
	}
	b.vbe, b.vbc = 0.65, -4.0

	var seen *ExcessPhaseEvent
	b.OnExcessPhase = func(ev *ExcessPhaseEvent) {
		seen = &ExcessPhaseEvent{
			CollectorCurrent: ev.CollectorCurrent,
			ExcessCurrent:    ev.ExcessCurrent,
			Conductance:      ev.Conductance,
			BaseCharge:       ev.BaseCharge,
		}
		// Subscribers may rotate the transport current in place.
		ev.ExcessCurrent *= 0.5
		ev.Conductance *= 0.5
	}
	b.load(&state.Status{Temp: consts.REFTEMP, Gmin: 1e-12})

	if seen == nil {
		t.Fatal("excess-phase hook not invoked")
	}
	if seen.BaseCharge <= 0 {
		t.Fatalf("event base charge = %g", seen.BaseCharge)
	}

	// The halved transport current must show up in Ic.
	plain := loadedBJT(t, 0.65, -4.0)
	if b.cc >= 0.75*plain.cc {
		t.Fatalf("mutated event ignored: Ic %g vs plain %g", b.cc, plain.cc)
	}
}

func TestBJTConvergenceDeltaUsesVbc(t *testing.T) {
	b := NewBJT("Q4", []string{"c", "b", "e"}, false)
	b.Bundle.Set("is", 1e-14)
	b.Bundle.Set("bf", 100)
	b.Bundle.Set("vaf", 100) // finite output conductance makes the delta visible
	if err := b.UpdateTemperature(consts.REFTEMP); err != nil {
		t.Fatal(err)
	}
	b.vbe, b.vbc = 0.65, -4.35
	b.load(&state.Status{Temp: consts.REFTEMP, Gmin: 1e-12})
	b.colPrime, b.basePrime, b.emitPrime = 1, 2, 3

	// Solution matching the loaded junction voltages exactly: convergent.
	sol := []float64{0, 5.0, 0.65, 0} // vc, vb, ve
	if !b.IsConvergent(sol, 1e-3, 1e-12) {
		t.Fatal("matching solution must be convergent")
	}

	// The legacy (buggy) delta compares vbc against the BE voltage and
	// rejects the same point.
	b.legacyConvergence = true
	if b.IsConvergent(sol, 1e-3, 1e-12) {
		t.Fatal("legacy convergence mode must see a large spurious delta")
	}
}
