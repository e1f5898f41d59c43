package behavior

import (
	"testing"

	"github.com/saugkim/spicecore/pkg/device"
	"github.com/saugkim/spicecore/pkg/matrix"
	"github.com/saugkim/spicecore/pkg/state"
)

type loadOnly struct{}

func (loadOnly) Stamp(m matrix.Stamper, st *state.Status) error { return nil }

type loadAndAC struct{ loadOnly }

func (loadAndAC) StampAC(m matrix.Stamper, st *state.Status) error { return nil }

func TestResolveSetSkipsSatisfiedKinds(t *testing.T) {
	built := 0
	set := ResolveSet([]Kind{LoadKind, ACLoadKind}, func(k Kind) any {
		built++
		return &loadAndAC{}
	})

	if built != 1 {
		t.Fatalf("built %d instances, want 1: one object serves both kinds", built)
	}
	if set[LoadKind] == nil || set[ACLoadKind] == nil {
		t.Fatal("both kinds must be present in the set")
	}
	if set[LoadKind] != set[ACLoadKind] {
		t.Fatal("kinds must share the single instance")
	}
}

func TestResolveSetReverseOrderReusesInstance(t *testing.T) {
	built := 0
	set := ResolveSet([]Kind{LoadKind, ACLoadKind}, func(k Kind) any {
		built++
		if k == ACLoadKind {
			return &loadAndAC{}
		}
		return &loadOnly{}
	})

	// Reverse-order resolution builds the AC-capable instance first; it
	// already implements Load, so no second instance is created.
	if built != 1 {
		t.Fatalf("built %d instances, want 1", built)
	}
	if len(set.Instances()) != 1 {
		t.Fatalf("instances = %d, want 1", len(set.Instances()))
	}
}

func TestRegistryResolveAndReset(t *testing.T) {
	Reset()

	if _, err := Resolve("R"); err != nil {
		t.Fatalf("built-in resistor factory missing: %v", err)
	}
	if _, err := Resolve("ZZ"); err == nil {
		t.Fatal("unknown entity kind must fail")
	}

	Register("ZZ", func(spec EntitySpec) (device.Device, error) {
		return device.NewResistor(spec.Name, spec.Nodes, spec.Value), nil
	})
	if _, err := Resolve("ZZ"); err != nil {
		t.Fatalf("registered factory not found: %v", err)
	}

	Reset()
	if _, err := Resolve("ZZ"); err == nil {
		t.Fatal("Reset must drop custom registrations")
	}
	if _, err := Resolve("Q"); err != nil {
		t.Fatal("Reset must restore built-ins")
	}
}

func TestBehaviorsOfDevice(t *testing.T) {
	r := device.NewResistor("R1", []string{"a", "b"}, 1000)
	set := BehaviorsOf(r)

	for _, k := range []Kind{TemperatureKind, LoadKind, ACLoadKind, NoiseKind} {
		if set[k] == nil {
			t.Fatalf("resistor must serve %s", k)
		}
	}
	if set[TransientKind] != nil || set[AcceptKind] != nil {
		t.Fatal("resistor has no transient or accept behavior")
	}
	if len(set.Instances()) != 1 {
		t.Fatal("all resistor kinds share one instance")
	}
}
