package circuit

import (
	"testing"

	"github.com/pkg/errors"

	"github.com/saugkim/spicecore/pkg/device"
	"github.com/saugkim/spicecore/pkg/netlist"
	"github.com/saugkim/spicecore/pkg/simerr"
)

func buildTestCircuit(t *testing.T) *Circuit {
	t.Helper()
	ckt := New("idempotency")
	ckt.Warnf = func(format string, args ...any) {}

	deck, err := netlist.Parse(`setup test
V1 1 0 5
R1 1 2 1k
D1 2 0 dmod
L1 2 0 1m
.model dmod D(is=1e-14 rs=10)
.op
.end
`)
	if err != nil {
		t.Fatal(err)
	}
	if err := ckt.BuildFromDeck(deck); err != nil {
		t.Fatal(err)
	}
	return ckt
}

// setup -> unsetup -> setup must reproduce the same node layout, matrix
// pattern size and state slot count.
func TestSetupUnsetupIdempotent(t *testing.T) {
	ckt := buildTestCircuit(t)

	if err := ckt.Setup(); err != nil {
		t.Fatal(err)
	}
	nodes1 := ckt.Nodes().Count()
	elems1 := ckt.Matrix().ElementCount()
	slots1 := ckt.Pool().SlotCount()

	if _, ok := ckt.Nodes().Index("D1#int"); !ok {
		t.Fatal("diode with rs must own an internal node")
	}

	ckt.Unsetup()
	if ckt.Pool().SlotCount() != 0 {
		t.Fatal("unsetup must release state slots")
	}

	if err := ckt.Setup(); err != nil {
		t.Fatal(err)
	}
	if n := ckt.Nodes().Count(); n != nodes1 {
		t.Fatalf("node count changed: %d -> %d", nodes1, n)
	}
	if e := ckt.Matrix().ElementCount(); e != elems1 {
		t.Fatalf("matrix pattern changed: %d -> %d", elems1, e)
	}
	if s := ckt.Pool().SlotCount(); s != slots1 {
		t.Fatalf("slot count changed: %d -> %d", slots1, s)
	}
}

func TestDuplicateDeviceRejected(t *testing.T) {
	ckt := New("dup")
	ckt.Warnf = func(format string, args ...any) {}

	r := device.NewResistor("R1", []string{"1", "0"}, 100)
	if err := ckt.AddDevice(r); err != nil {
		t.Fatal(err)
	}
	if err := ckt.AddDevice(device.NewResistor("R1", []string{"2", "0"}, 100)); err == nil {
		t.Fatal("duplicate name must be rejected")
	}
}

func TestFloatingNodeDetected(t *testing.T) {
	ckt := New("floating")
	ckt.Warnf = func(format string, args ...any) {}

	deck, err := netlist.Parse(`floating
V1 1 0 5
R1 1 2 1k
R2 3 0 1k
.op
.end
`)
	if err != nil {
		t.Fatal(err)
	}
	if err := ckt.BuildFromDeck(deck); err != nil {
		t.Fatal(err)
	}

	// Disconnect node 3 by removing its only device.
	if !ckt.Remove("R2") {
		t.Fatal("remove failed")
	}

	err = ckt.Setup()
	if err == nil {
		t.Fatal("floating node must be detected")
	}
	var topo *simerr.CircuitTopologyError
	if !errors.As(err, &topo) {
		t.Fatalf("error type: %v", err)
	}
	if topo.Kind != simerr.FloatingNode {
		t.Fatalf("kind = %v", topo.Kind)
	}
}

func TestPinCountMismatch(t *testing.T) {
	r := device.NewResistor("R1", []string{"1", "0"}, 100)
	err := r.SetNodes([]int{1})
	if err == nil {
		t.Fatal("short pin vector must fail")
	}
	var pin *simerr.PinCountMismatchError
	if !errors.As(err, &pin) {
		t.Fatalf("error type: %v", err)
	}
	if pin.Expected != 2 || pin.Got != 1 {
		t.Fatalf("mismatch detail: %+v", pin)
	}
}
