package analysis

import (
	"context"
	"math"
	"testing"

	"github.com/saugkim/spicecore/pkg/circuit"
	"github.com/saugkim/spicecore/pkg/device"
)

func TestRCStepResponse(t *testing.T) {
	ckt := circuit.New("rc")
	quiet(ckt)
	// Unit step just after t=0 through 1k into 1uF: tau = 1ms.
	wire(t, ckt, device.NewPulseVoltageSource("V1", []string{"1", "0"},
		0, 1, 1e-9, 1e-9, 1e-9, 1, 2), "1", "0")
	wire(t, ckt, device.NewResistor("R1", []string{"1", "2"}, 1000), "1", "2")
	wire(t, ckt, device.NewCapacitor("C1", []string{"2", "0"}, 1e-6), "2", "0")

	tr := NewTransient(nil, 0, 1e-3, 1e-5, 0, false)
	if err := tr.Setup(ckt); err != nil {
		t.Fatal(err)
	}
	if err := tr.Execute(context.Background()); err != nil {
		t.Fatal(err)
	}

	times := tr.Results()["TIME"]
	vc := tr.Results()["V(2)"]
	if len(times) == 0 || len(times) != len(vc) {
		t.Fatalf("result lengths: %d times, %d voltages", len(times), len(vc))
	}

	last := len(times) - 1
	if math.Abs(times[last]-1e-3) > 1e-9 {
		t.Fatalf("final time = %g, want 1ms", times[last])
	}

	want := 1 - math.Exp(-1)
	if math.Abs(vc[last]-want) > 1e-3*want {
		t.Fatalf("V_C(1ms) = %.6f, want %.6f within 0.1%%", vc[last], want)
	}
}

func TestLCTankEnergyRecovery(t *testing.T) {
	const (
		induct = 1e-3
		capac  = 1e-6
	)
	period := 2 * math.Pi * math.Sqrt(induct*capac)

	ckt := circuit.New("lc")
	quiet(ckt)
	c := device.NewCapacitor("C1", []string{"1", "0"}, capac)
	c.Params().Set("ic", 1.0)
	wire(t, ckt, c, "1", "0")
	wire(t, ckt, device.NewInductor("L1", []string{"1", "0"}, induct), "1", "0")

	ckt.SetICs(map[string]float64{"1": 1.0})

	tr := NewTransient(nil, 0, period, period/200, 0, true)
	if err := tr.Setup(ckt); err != nil {
		t.Fatal(err)
	}
	if err := tr.Execute(context.Background()); err != nil {
		t.Fatal(err)
	}

	times := tr.Results()["TIME"]
	vc := tr.Results()["V(1)"]
	last := len(times) - 1

	// The controller must keep the step at or below T/50.
	for i := 1; i < len(times); i++ {
		if dt := times[i] - times[i-1]; dt > period/50+1e-12 {
			t.Fatalf("step %d: dt = %g exceeds T/50 = %g", i, dt, period/50)
		}
	}

	// After one full period the capacitor voltage returns to its initial
	// value; trapezoidal integration conserves the tank energy.
	if math.Abs(vc[last]-1.0) > 0.01 {
		t.Fatalf("V_C(T) = %.4f, want 1.0 within 1%%", vc[last])
	}
}

func TestAcceptedTimesStrictlyIncrease(t *testing.T) {
	ckt := circuit.New("hist")
	quiet(ckt)
	wire(t, ckt, device.NewPulseVoltageSource("V1", []string{"1", "0"},
		0, 1, 1e-9, 1e-9, 1e-9, 1, 2), "1", "0")
	wire(t, ckt, device.NewResistor("R1", []string{"1", "2"}, 1000), "1", "2")
	wire(t, ckt, device.NewCapacitor("C1", []string{"2", "0"}, 1e-6), "2", "0")

	tr := NewTransient(nil, 0, 1e-4, 1e-5, 0, false)
	if err := tr.Setup(ckt); err != nil {
		t.Fatal(err)
	}
	if err := tr.Execute(context.Background()); err != nil {
		t.Fatal(err)
	}

	// Every stored timepoint is strictly increasing: the accept path is
	// the only writer.
	times := tr.Results()["TIME"]
	for i := 1; i < len(times); i++ {
		if times[i] <= times[i-1] {
			t.Fatalf("time %d not monotone: %g after %g", i, times[i], times[i-1])
		}
	}
}
