package state

import "testing"

func TestHistoryMonotonic(t *testing.T) {
	h := NewHistory(4)

	if !h.Push(1e-6, 1.0) {
		t.Fatal("first push rejected")
	}
	if !h.Push(2e-6, 2.0) {
		t.Fatal("monotone push rejected")
	}
	if h.Push(2e-6, 3.0) {
		t.Fatal("equal-time push accepted")
	}
	if h.Push(1e-6, 3.0) {
		t.Fatal("backwards push accepted")
	}

	tm, v := h.At(0)
	if tm != 2e-6 || v != 2.0 {
		t.Fatalf("At(0) = %g, %g", tm, v)
	}
	tm, v = h.At(1)
	if tm != 1e-6 || v != 1.0 {
		t.Fatalf("At(1) = %g, %g", tm, v)
	}
}

func TestHistoryWrap(t *testing.T) {
	h := NewHistory(3)
	for i := 1; i <= 5; i++ {
		h.Push(float64(i), float64(i)*10)
	}

	if h.Len() != 3 {
		t.Fatalf("Len = %d, want 3", h.Len())
	}
	for k := 0; k < 3; k++ {
		wantT := float64(5 - k)
		tm, v := h.At(k)
		if tm != wantT || v != wantT*10 {
			t.Fatalf("At(%d) = %g, %g; want %g, %g", k, tm, v, wantT, wantT*10)
		}
	}
}
