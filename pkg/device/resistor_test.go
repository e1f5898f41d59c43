package device

import (
	"math"
	"strings"
	"testing"

	"github.com/saugkim/spicecore/internal/consts"
)

func TestResistorTemperatureLinearity(t *testing.T) {
	r := NewResistor("R1", []string{"1", "2"}, 1000)
	r.Bundle.Set("tc1", 1e-3)
	r.Bundle.Set("tc2", 1e-6)

	if err := r.UpdateTemperature(consts.REFTEMP); err != nil {
		t.Fatal(err)
	}
	gNom := r.Conductance()

	for _, temp := range []float64{250, 300.15, 350, 400} {
		if err := r.UpdateTemperature(temp); err != nil {
			t.Fatal(err)
		}
		dt := temp - consts.REFTEMP
		factor := 1.0 + 1e-3*dt + 1e-6*dt*dt

		// G(T) * (1 + tc1*dT + tc2*dT^2) must reproduce G(Tnom) exactly.
		if got := r.Conductance() * factor; math.Abs(got-gNom) > 1e-15 {
			t.Fatalf("T=%g: G*factor = %g, want %g", temp, got, gNom)
		}
	}
}

func TestResistorSheetGeometry(t *testing.T) {
	r := NewResistor("R2", []string{"1", "2"}, 0)
	r.Bundle.Set("rsh", 50)
	r.Bundle.Set("l", 10e-6)
	r.Bundle.Set("w", 2e-6)
	r.Bundle.Set("narrow", 0.5e-6)

	if err := r.UpdateTemperature(consts.REFTEMP); err != nil {
		t.Fatal(err)
	}
	want := 50.0 * (10e-6 - 0.5e-6) / (2e-6 - 0.5e-6)
	if math.Abs(r.Value-want) > 1e-9 {
		t.Fatalf("sheet resistance = %g, want %g", r.Value, want)
	}
}

func TestResistorDegenerateWarns(t *testing.T) {
	r := NewResistor("R3", []string{"1", "2"}, 0)
	var warned string
	r.SetWarnSink(func(format string, args ...any) {
		warned = format
	})

	if err := r.UpdateTemperature(consts.REFTEMP); err != nil {
		t.Fatal(err)
	}
	if r.Value != 1000 {
		t.Fatalf("degenerate resistance = %g, want fallback 1000", r.Value)
	}
	if !strings.Contains(warned, "zero resistance") {
		t.Fatalf("no warning emitted: %q", warned)
	}
}
