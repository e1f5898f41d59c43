package node

import "testing"

func TestCreateAndGround(t *testing.T) {
	m := NewMap()

	if m.Ground() != 0 {
		t.Fatal("ground must be index 0")
	}
	if m.Create("0") != 0 || m.Create("gnd") != 0 {
		t.Fatal("ground aliases must map to 0")
	}

	n1 := m.Create("in")
	n2 := m.Create("out")
	if n1 != 1 || n2 != 2 {
		t.Fatalf("indices not contiguous: %d %d", n1, n2)
	}
	if m.Create("in") != n1 {
		t.Fatal("repeated create must return the same index")
	}
	if m.Count() != 2 {
		t.Fatalf("count = %d, want 2", m.Count())
	}
}

func TestInternalNodes(t *testing.T) {
	m := NewMap()
	m.Create("c")

	idx, err := m.CreateInternal("Q1", "col")
	if err != nil {
		t.Fatal(err)
	}
	if m.Name(idx) != "Q1#col" {
		t.Fatalf("internal name = %q", m.Name(idx))
	}
	if _, err := m.CreateInternal("Q1", "col"); err == nil {
		t.Fatal("duplicate internal node must fail")
	}
}

func TestResetPreservesExternals(t *testing.T) {
	m := NewMap()
	a := m.Create("a")
	b := m.Create("b")
	m.CreateInternal("D1", "int")
	m.CreateBranch("V1")

	if m.Count() != 4 {
		t.Fatalf("count before reset = %d", m.Count())
	}

	m.Reset()
	if m.Count() != 2 {
		t.Fatalf("count after reset = %d, want 2", m.Count())
	}
	if idx, ok := m.Index("a"); !ok || idx != a {
		t.Fatal("external index a lost")
	}
	if idx, ok := m.Index("b"); !ok || idx != b {
		t.Fatal("external index b lost")
	}
	if _, ok := m.Index("D1#int"); ok {
		t.Fatal("internal node survived reset")
	}

	// Setup after reset reproduces the same layout.
	i1, err := m.CreateInternal("D1", "int")
	if err != nil {
		t.Fatal(err)
	}
	if i1 != 3 {
		t.Fatalf("internal index after re-setup = %d, want 3", i1)
	}
}
