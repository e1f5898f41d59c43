package analysis

import (
	"context"
	"math"
	"testing"

	"github.com/saugkim/spicecore/pkg/circuit"
	"github.com/saugkim/spicecore/pkg/device"
	"github.com/saugkim/spicecore/pkg/matrix"
	"github.com/saugkim/spicecore/pkg/node"
	"github.com/saugkim/spicecore/pkg/simerr"
	"github.com/saugkim/spicecore/pkg/state"
)

// wire adds a device and binds its pins to named circuit nodes.
func wire(t *testing.T, ckt *circuit.Circuit, dev device.Device, nodes ...string) {
	t.Helper()
	if err := ckt.AddDevice(dev); err != nil {
		t.Fatal(err)
	}
	indices := make([]int, len(nodes))
	for i, n := range nodes {
		indices[i] = ckt.Nodes().Create(n)
	}
	if err := dev.SetNodes(indices); err != nil {
		t.Fatal(err)
	}
}

func quiet(ckt *circuit.Circuit) {
	ckt.Warnf = func(format string, args ...any) {}
}

func TestVoltageDivider(t *testing.T) {
	ckt := circuit.New("divider")
	quiet(ckt)
	wire(t, ckt, device.NewDCVoltageSource("V1", []string{"1", "0"}, 5), "1", "0")
	wire(t, ckt, device.NewResistor("R1", []string{"1", "2"}, 1000), "1", "2")
	wire(t, ckt, device.NewResistor("R2", []string{"2", "0"}, 1000), "2", "0")

	op := NewOP(nil)
	if err := op.Setup(ckt); err != nil {
		t.Fatal(err)
	}
	if err := op.Execute(context.Background()); err != nil {
		t.Fatal(err)
	}

	v2 := op.Results()["V(2)"][0]
	if math.Abs(v2-2.5) > 1e-9 {
		t.Fatalf("V(2) = %.12f, want 2.5", v2)
	}
	i := op.Results()["I(V1)"][0]
	if math.Abs(i-2.5e-3) > 1e-9 {
		t.Fatalf("I(V1) = %g, want 2.5mA", i)
	}
}

// flakyBranch is a branch device that initially leaves its row empty,
// producing a zero pivot, and starts behaving after a few load passes. The
// stepping strategies must carry the solve through.
type flakyBranch struct {
	device.BaseDevice
	branchIdx int
	failLoads int
	loads     int
}

func newFlakyBranch(name string, nodes []string, failLoads int) *flakyBranch {
	return &flakyBranch{
		BaseDevice: device.NewBase(name, nodes, 1.0),
		failLoads:  failLoads,
	}
}

func (f *flakyBranch) GetType() string        { return "X" }
func (f *flakyBranch) BranchIndex() int       { return f.branchIdx }
func (f *flakyBranch) SetBranchIndex(idx int) { f.branchIdx = idx }

func (f *flakyBranch) Setup(nodes *node.Map, pool *state.Pool) error {
	if f.branchIdx == 0 {
		f.branchIdx = nodes.CreateBranch(f.Name)
	}
	return nil
}

func (f *flakyBranch) Unsetup() { f.branchIdx = 0 }

func (f *flakyBranch) Stamp(m matrix.Stamper, st *state.Status) error {
	f.loads++
	n1, n2 := f.Nodes[0], f.Nodes[1]
	b := f.branchIdx

	if n1 != 0 {
		m.AddElement(n1, b, 1)
	}
	if n2 != 0 {
		m.AddElement(n2, b, -1)
	}
	if f.loads <= f.failLoads {
		// Keep the row allocated but empty: a zero pivot.
		m.AddElement(b, b, 0)
		return nil
	}
	// Behaves as a 1V source afterwards.
	if n1 != 0 {
		m.AddElement(b, n1, 1)
	}
	if n2 != 0 {
		m.AddElement(b, n2, -1)
	}
	m.AddRHS(b, f.Value)
	return nil
}

func TestGminSteppingRecoversSingularStart(t *testing.T) {
	ckt := circuit.New("flaky")
	quiet(ckt)
	wire(t, ckt, device.NewResistor("R1", []string{"1", "0"}, 1000), "1", "0")
	// Setup's pattern stamp consumes one load; the direct NR attempt then
	// hits the zero pivot and the solver must fall back to Gmin stepping.
	fb := newFlakyBranch("X1", []string{"1", "0"}, 2)
	wire(t, ckt, fb, "1", "0")

	op := NewOP(nil)
	if err := op.Setup(ckt); err != nil {
		t.Fatal(err)
	}
	if err := op.Execute(context.Background()); err != nil {
		t.Fatalf("stepping did not recover: %v", err)
	}

	if fb.loads <= 3 {
		t.Fatalf("recovery path never exercised: %d loads", fb.loads)
	}
	v1 := op.Results()["V(1)"][0]
	if math.Abs(v1-1.0) > 1e-6 {
		t.Fatalf("V(1) = %g, want 1.0 from the recovered source", v1)
	}
}

func TestOpenCollectorBJTSolves(t *testing.T) {
	ckt := circuit.New("open-collector")
	quiet(ckt)
	wire(t, ckt, device.NewDCVoltageSource("V1", []string{"b", "0"}, 0.65), "b", "0")
	q := device.NewBJT("Q1", []string{"c", "b", "e"}, false)
	q.SetModelParameters(map[string]float64{"is": 1e-14, "bf": 100})
	wire(t, ckt, q, "c", "b", "0")

	op := NewOP(nil)
	if err := op.Setup(ckt); err != nil {
		t.Fatal(err)
	}
	if err := op.Execute(context.Background()); err != nil {
		t.Fatalf("open collector must still solve: %v", err)
	}
}

func TestCancellation(t *testing.T) {
	ckt := circuit.New("cancel")
	quiet(ckt)
	wire(t, ckt, device.NewDCVoltageSource("V1", []string{"1", "0"}, 1), "1", "0")
	wire(t, ckt, device.NewResistor("R1", []string{"1", "0"}, 1000), "1", "0")

	op := NewOP(nil)
	if err := op.Setup(ckt); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := op.Execute(ctx); err != simerr.ErrCancelled {
		t.Fatalf("want Cancelled, got %v", err)
	}
}

func TestKCLCurrentSourceStamp(t *testing.T) {
	ckt := circuit.New("kcl")
	quiet(ckt)
	wire(t, ckt, device.NewDCCurrentSource("I1", []string{"1", "2"}, 1e-3), "1", "2")
	wire(t, ckt, device.NewResistor("R1", []string{"1", "0"}, 1000), "1", "0")
	wire(t, ckt, device.NewResistor("R2", []string{"2", "0"}, 1000), "2", "0")

	op := NewOP(nil)
	if err := op.Setup(ckt); err != nil {
		t.Fatal(err)
	}

	// One load pass: the stamped RHS contributions at the device pins must
	// sum to zero.
	st := ckt.Pool().Status.Clone()
	st.Mode = state.OperatingPointAnalysis
	st.SrcScale = 1.0
	ckt.Matrix().Clear()
	if err := ckt.Stamp(st); err != nil {
		t.Fatal(err)
	}
	sum := 0.0
	for i := 1; i <= ckt.Nodes().Count(); i++ {
		sum += ckt.Matrix().RHSValue(i)
	}
	if math.Abs(sum) > 1e-12 {
		t.Fatalf("RHS sum over all nodes = %g, want 0", sum)
	}
}
