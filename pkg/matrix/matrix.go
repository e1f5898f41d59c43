// Package matrix wraps the sparse LU engine behind an element-handle
// assembly facade. Handles are allocated during setup; the structural
// pattern is frozen afterwards and reused across every Newton iteration.
package matrix

import (
	"log"

	"github.com/edp1096/sparse"
	"github.com/pkg/errors"

	"github.com/saugkim/spicecore/pkg/simerr"
)

type CircuitMatrix struct {
	Size         int
	matrix       *sparse.Matrix
	elements     map[[2]int]*sparse.Element
	rhs          []float64
	solution     []float64
	solutionImag []float64
	isComplex    bool
	frozen       bool
	factored     bool
	config       *sparse.Configuration
	Warnf        func(format string, args ...any)
}

func NewMatrix(size int, isComplex bool) (*CircuitMatrix, error) {
	config := &sparse.Configuration{
		Real:                    true,
		Complex:                 isComplex,
		SeparatedComplexVectors: false,
		Expandable:              true,
		Translate:               false,
		ModifiedNodal:           true,
		TiesMultiplier:          5,
		PrinterWidth:            140,
		Annotate:                0,
	}

	mat, err := sparse.Create(int64(size), config)
	if err != nil {
		return nil, errors.Wrap(err, "creating sparse matrix")
	}

	vectorSize := size + 1
	if isComplex {
		vectorSize *= 2
	}

	return &CircuitMatrix{
		Size:         size,
		matrix:       mat,
		elements:     make(map[[2]int]*sparse.Element),
		rhs:          make([]float64, vectorSize), // 1-based indexing
		solution:     make([]float64, vectorSize),
		solutionImag: make([]float64, 1),
		isComplex:    isComplex,
		config:       config,
		Warnf:        log.Printf,
	}, nil
}

func (m *CircuitMatrix) IsComplex() bool { return m.isComplex }

// Element returns the stable accumulator handle for cell (i, j), allocating
// it if the pattern is still open. The handle stays valid for the lifetime
// of the matrix.
func (m *CircuitMatrix) Element(i, j int) *sparse.Element {
	if i <= 0 || j <= 0 || i > m.Size || j > m.Size {
		return nil
	}
	key := [2]int{i, j}
	if el, ok := m.elements[key]; ok {
		return el
	}
	if m.frozen {
		m.Warnf("matrix: element (%d,%d) allocated after setup", i, j)
	}
	el := m.matrix.GetElement(int64(i), int64(j))
	m.elements[key] = el
	return el
}

// SetupComplete freezes the structural pattern. Later out-of-pattern stamps
// are reported but still honored.
func (m *CircuitMatrix) SetupComplete() {
	m.frozen = true
}

// ElementCount returns the number of allocated handles, for setup/unsetup
// idempotency checks.
func (m *CircuitMatrix) ElementCount() int { return len(m.elements) }

func (m *CircuitMatrix) AddElement(i, j int, value float64) {
	if i == 0 || j == 0 {
		return
	}
	el := m.Element(i, j)
	if el == nil {
		m.Warnf("matrix: index out of bounds (i=%d, j=%d, size=%d)", i, j, m.Size)
		return
	}
	el.Real += value
}

func (m *CircuitMatrix) AddComplexElement(i, j int, real, imag float64) {
	if i == 0 || j == 0 {
		return
	}
	el := m.Element(i, j)
	if el == nil {
		m.Warnf("matrix: index out of bounds (i=%d, j=%d, size=%d)", i, j, m.Size)
		return
	}
	el.Real += real
	el.Imag += imag
}

func (m *CircuitMatrix) AddRHS(i int, value float64) {
	if i == 0 {
		return
	}
	if i < 0 || i > m.Size {
		m.Warnf("matrix: RHS index out of bounds (i=%d, size=%d)", i, m.Size)
		return
	}
	if m.isComplex {
		m.rhs[2*i] += value
		return
	}
	m.rhs[i] += value
}

func (m *CircuitMatrix) AddComplexRHS(i int, real, imag float64) {
	if i == 0 {
		return
	}
	if i < 0 || i > m.Size {
		m.Warnf("matrix: RHS index out of bounds (i=%d, size=%d)", i, m.Size)
		return
	}
	m.rhs[2*i] += real
	m.rhs[2*i+1] += imag
}

// RHSValue reads back the accumulated RHS entry, used by KCL checks.
func (m *CircuitMatrix) RHSValue(i int) float64 {
	if i <= 0 || i > m.Size {
		return 0
	}
	if m.isComplex {
		return m.rhs[2*i]
	}
	return m.rhs[i]
}

// LoadGmin adds a shunt conductance on every diagonal. Gmin stepping drives
// this with large values, backing off decade by decade and finishing with a
// solve that adds no extra shunt.
func (m *CircuitMatrix) LoadGmin(gmin float64) {
	if gmin <= 0 {
		return
	}
	for i := 1; i <= m.Size; i++ {
		m.Element(i, i).Real += gmin
	}
}

func (m *CircuitMatrix) Clear() {
	m.matrix.Clear()
	for i := range m.rhs {
		m.rhs[i] = 0
	}
	m.factored = false
}

// ClearRHS zeroes only the excitation vector, keeping the factorization so
// several right-hand sides can be solved against one system.
func (m *CircuitMatrix) ClearRHS() {
	for i := range m.rhs {
		m.rhs[i] = 0
	}
}

// Factor runs the LU decomposition. On a zero pivot the returned error
// carries the row, so the solver can decide on a stepping strategy.
func (m *CircuitMatrix) Factor() error {
	err := m.matrix.Factor()
	if err != nil {
		row := int(m.matrix.SingularRow)
		return &simerr.SingularMatrixError{Row: row}
	}
	m.factored = true
	return nil
}

// Solve back-substitutes the accumulated RHS, factoring first if needed.
func (m *CircuitMatrix) Solve() error {
	if !m.factored {
		if err := m.Factor(); err != nil {
			return err
		}
	}

	var err error
	if m.isComplex {
		m.solution, m.solutionImag, err = m.matrix.SolveComplex(m.rhs, nil)
	} else {
		m.solution, err = m.matrix.Solve(m.rhs)
	}
	if err != nil {
		return errors.Wrap(err, "matrix solve")
	}
	return nil
}

func (m *CircuitMatrix) Solution() []float64 {
	return m.solution
}

// RealSolution returns the real solution components indexed by MNA row,
// de-interleaving when the matrix is complex.
func (m *CircuitMatrix) RealSolution() []float64 {
	if !m.isComplex {
		return m.solution
	}
	out := make([]float64, m.Size+1)
	for i := 1; i <= m.Size; i++ {
		out[i] = m.solution[2*i]
	}
	return out
}

func (m *CircuitMatrix) ComplexSolution(i int) complex128 {
	if !m.isComplex || i <= 0 || i > m.Size {
		return 0
	}
	// Combined complex vectors interleave real/imag pairs.
	return complex(m.solution[2*i], m.solution[2*i+1])
}

func (m *CircuitMatrix) Destroy() {
	if m.matrix != nil {
		m.matrix.Destroy()
	}
	m.elements = nil
}
