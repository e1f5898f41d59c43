package analysis

import (
	"context"
	"math"
	"testing"

	"github.com/saugkim/spicecore/pkg/circuit"
	"github.com/saugkim/spicecore/pkg/device"
)

func TestRCLowPassCorner(t *testing.T) {
	const (
		res   = 1000.0
		capac = 1e-6
	)
	fc := 1.0 / (2 * math.Pi * res * capac)

	ckt := circuit.NewWithComplex("lowpass", true)
	quiet(ckt)
	v := device.NewDCVoltageSource("V1", []string{"1", "0"}, 0)
	v.SetAC(1, 0)
	wire(t, ckt, v, "1", "0")
	wire(t, ckt, device.NewResistor("R1", []string{"1", "2"}, res), "1", "2")
	wire(t, ckt, device.NewCapacitor("C1", []string{"2", "0"}, capac), "2", "0")

	ac := NewAC(nil, fc, fc, 1, "LIN")
	if err := ac.Setup(ckt); err != nil {
		t.Fatal(err)
	}
	if err := ac.Execute(context.Background()); err != nil {
		t.Fatal(err)
	}

	mag := ac.Results()["V(2)_MAG"][0]
	if math.Abs(mag-1/math.Sqrt2) > 1e-3 {
		t.Fatalf("|V(2)| at corner = %.6f, want %.6f", mag, 1/math.Sqrt2)
	}
	phase := ac.Results()["V(2)_PHASE"][0]
	if math.Abs(phase+45) > 0.5 {
		t.Fatalf("phase at corner = %.2f deg, want -45", phase)
	}
}

func TestFrequencyPoints(t *testing.T) {
	decs := FrequencyPoints("DEC", 1, 1000, 4)
	if len(decs) != 4 {
		t.Fatalf("points = %d", len(decs))
	}
	if math.Abs(decs[0]-1) > 1e-12 || math.Abs(decs[3]-1000) > 1e-9 {
		t.Fatalf("endpoints: %g .. %g", decs[0], decs[3])
	}

	lins := FrequencyPoints("LIN", 10, 20, 3)
	if lins[1] != 15 {
		t.Fatalf("linear midpoint = %g, want 15", lins[1])
	}

	single := FrequencyPoints("DEC", 100, 1000, 1)
	if len(single) != 1 || single[0] != 100 {
		t.Fatalf("single point sweep: %v", single)
	}
}
