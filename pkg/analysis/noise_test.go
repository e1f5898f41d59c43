package analysis

import (
	"context"
	"math"
	"testing"

	"github.com/saugkim/spicecore/internal/consts"
	"github.com/saugkim/spicecore/pkg/circuit"
	"github.com/saugkim/spicecore/pkg/device"
)

// Two equal resistors from a stiff source: the output-referred thermal PSD
// is 4kT times the parallel resistance.
func TestResistorDividerThermalNoise(t *testing.T) {
	ckt := circuit.NewWithComplex("noise-divider", true)
	quiet(ckt)
	v := device.NewDCVoltageSource("V1", []string{"1", "0"}, 1)
	v.SetAC(1, 0)
	wire(t, ckt, v, "1", "0")
	wire(t, ckt, device.NewResistor("R1", []string{"1", "2"}, 1000), "1", "2")
	wire(t, ckt, device.NewResistor("R2", []string{"2", "0"}, 1000), "2", "0")

	na := NewNoise(nil, "2", 1000, 1000, 1, "LIN")
	if err := na.Setup(ckt); err != nil {
		t.Fatal(err)
	}
	if err := na.Execute(context.Background()); err != nil {
		t.Fatal(err)
	}

	onoise := na.Results()["ONOISE"][0]
	rpar := 500.0
	want := 4 * consts.BOLTZMANN * consts.REFTEMP * rpar
	if math.Abs(onoise-want) > 0.01*want {
		t.Fatalf("ONOISE = %g, want %g within 1%%", onoise, want)
	}

	// Each resistor contributes half.
	r1 := na.Results()["N(R1.thermal)"][0]
	r2 := na.Results()["N(R2.thermal)"][0]
	if math.Abs(r1-r2) > 0.01*r1 {
		t.Fatalf("contributions unequal: %g vs %g", r1, r2)
	}
}

func TestShotNoiseGenerator(t *testing.T) {
	gen := device.NewNoiseGenerator("D1", "shot", device.ShotNoise, 1, 0)
	gen.SetCoefficients(1e-3)

	sim := &fixedSim{h: complex(2, 0), freq: 1000, temp: consts.REFTEMP}
	got := gen.Calculate(sim)
	want := 2 * consts.CHARGE * 1e-3 * 4 // 2qI |H|^2
	if math.Abs(got-want) > 1e-25 {
		t.Fatalf("shot PSD = %g, want %g", got, want)
	}
}

func TestFlickerNoiseGenerator(t *testing.T) {
	gen := device.NewNoiseGenerator("D1", "flicker", device.FlickerNoise, 1, 0)
	gen.SetCoefficients(1e-14, 1.0, 1e-3)

	sim := &fixedSim{h: complex(1, 0), freq: 100, temp: consts.REFTEMP}
	got := gen.Calculate(sim)
	want := 1e-14 * 1e-3 / 100
	if math.Abs(got-want) > 1e-25 {
		t.Fatalf("flicker PSD = %g, want %g", got, want)
	}
}

type fixedSim struct {
	h    complex128
	freq float64
	temp float64
}

func (s *fixedSim) Transfer(n1, n2 int) complex128 { return s.h }
func (s *fixedSim) Frequency() float64             { return s.freq }
func (s *fixedSim) Temperature() float64           { return s.temp }
