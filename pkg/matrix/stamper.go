package matrix

// Stamper is the assembly surface device behaviors see. All methods
// accumulate; clearing between Newton iterations is the driver's job.
// Indices are 1-based MNA rows/columns; row 0 (ground) is ignored.
type Stamper interface {
	AddElement(i, j int, value float64)
	AddRHS(i int, value float64)
	AddComplexElement(i, j int, real, imag float64)
	AddComplexRHS(i int, real, imag float64)
}
