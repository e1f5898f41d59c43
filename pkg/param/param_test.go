package param

import "testing"

func TestGivenDefaultTriState(t *testing.T) {
	b := NewBundle()

	if _, ok := b.Get("r"); ok {
		t.Fatal("unset parameter should not exist")
	}

	b.Default("r", 1000)
	v, ok := b.Get("r")
	if !ok || v.Value != 1000 {
		t.Fatalf("default not stored: %+v", v)
	}
	if v.Given {
		t.Fatal("default must not appear given")
	}

	b.Set("r", 2200)
	v, _ = b.Get("r")
	if !v.Given || v.Value != 2200 {
		t.Fatalf("explicit set not recorded: %+v", v)
	}

	// A later default must not clobber an explicit value.
	b.Default("r", 1000)
	v, _ = b.Get("r")
	if v.Value != 2200 || !v.Given {
		t.Fatalf("default overwrote explicit value: %+v", v)
	}
}

func TestSetterMarksGiven(t *testing.T) {
	b := NewBundle()
	b.Default("w", 1e-6)

	set := b.Setter("w")
	set(5e-6)

	v, _ := b.Get("w")
	if !v.Given || v.Value != 5e-6 {
		t.Fatalf("setter result: %+v", v)
	}
}

func TestPrincipal(t *testing.T) {
	b := NewBundle()
	b.DeclarePrincipal("c")

	if !b.SetPrincipal(1e-6) {
		t.Fatal("principal assignment refused")
	}
	name, v, ok := b.Principal()
	if !ok || name != "c" || v.Value != 1e-6 || !v.Given {
		t.Fatalf("principal: %s %+v %v", name, v, ok)
	}

	empty := NewBundle()
	if empty.SetPrincipal(1.0) {
		t.Fatal("bundle without principal accepted a positional value")
	}
}

func TestRequire(t *testing.T) {
	b := NewBundle()
	b.Default("is", 1e-14)

	if _, err := b.Require("is"); err == nil {
		t.Fatal("Require should reject a defaulted parameter")
	}
	b.Set("is", 1e-15)
	v, err := b.Require("is")
	if err != nil || v != 1e-15 {
		t.Fatalf("Require: %v %v", v, err)
	}
}
