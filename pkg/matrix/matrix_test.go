package matrix

import (
	"math"
	"testing"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/saugkim/spicecore/pkg/simerr"
)

func TestSolveAgainstDenseReference(t *testing.T) {
	// A small diagonally dominant MNA-like system, cross-checked against a
	// dense solver.
	a := [][]float64{
		{4, -1, 0},
		{-1, 5, -2},
		{0, -2, 6},
	}
	b := []float64{1, 2, 3}

	m, err := NewMatrix(3, false)
	if err != nil {
		t.Fatal(err)
	}
	defer m.Destroy()

	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			if a[i][j] != 0 {
				m.AddElement(i+1, j+1, a[i][j])
			}
		}
		m.AddRHS(i+1, b[i])
	}
	m.SetupComplete()

	if err := m.Solve(); err != nil {
		t.Fatal(err)
	}
	got := m.Solution()

	dense := mat.NewDense(3, 3, []float64{4, -1, 0, -1, 5, -2, 0, -2, 6})
	var want mat.VecDense
	if err := want.SolveVec(dense, mat.NewVecDense(3, b)); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		if diff := math.Abs(got[i+1] - want.AtVec(i)); diff > 1e-12 {
			t.Fatalf("x[%d] = %g, dense reference %g", i+1, got[i+1], want.AtVec(i))
		}
	}
}

func TestElementHandlesAreStable(t *testing.T) {
	m, err := NewMatrix(2, false)
	if err != nil {
		t.Fatal(err)
	}
	defer m.Destroy()

	h1 := m.Element(1, 1)
	h2 := m.Element(1, 2)
	m.SetupComplete()

	if m.Element(1, 1) != h1 || m.Element(1, 2) != h2 {
		t.Fatal("handles must stay stable after setup")
	}
	if m.ElementCount() != 2 {
		t.Fatalf("element count = %d, want 2", m.ElementCount())
	}

	// Accumulation goes through the same cell.
	m.AddElement(1, 1, 2.0)
	m.AddElement(1, 1, 3.0)
	if h1.Real != 5.0 {
		t.Fatalf("handle accumulation = %g, want 5", h1.Real)
	}

	m.Clear()
	if h1.Real != 0 {
		t.Fatal("clear must zero values while keeping the handle valid")
	}
}

func TestSingularMatrixReportsRow(t *testing.T) {
	m, err := NewMatrix(2, false)
	if err != nil {
		t.Fatal(err)
	}
	defer m.Destroy()

	// Row 2 left empty: zero pivot.
	m.AddElement(1, 1, 1.0)
	m.Element(2, 2)
	m.SetupComplete()

	err = m.Factor()
	if err == nil {
		t.Fatal("factor of a singular system must fail")
	}
	var sing *simerr.SingularMatrixError
	if !errors.As(err, &sing) {
		t.Fatalf("error type: %v", err)
	}
	if sing.Row == 0 {
		t.Fatal("singular row must be reported")
	}
}

func TestComplexSolve(t *testing.T) {
	// Single node with admittance 1 + j1 driven by unit current:
	// v = 1/(1+j) = 0.5 - j0.5.
	m, err := NewMatrix(1, true)
	if err != nil {
		t.Fatal(err)
	}
	defer m.Destroy()

	m.AddComplexElement(1, 1, 1, 1)
	m.AddComplexRHS(1, 1, 0)
	m.SetupComplete()

	if err := m.Solve(); err != nil {
		t.Fatal(err)
	}
	v := m.ComplexSolution(1)
	if math.Abs(real(v)-0.5) > 1e-12 || math.Abs(imag(v)+0.5) > 1e-12 {
		t.Fatalf("v = %v, want 0.5-0.5i", v)
	}
}
