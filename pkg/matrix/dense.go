package matrix

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// DenseMatrix is a SlotMatrix backed by gonum. It is used to inspect a
// device Jacobian and to cross-check sparse solutions on small systems.
type DenseMatrix struct {
	size int
	a    *mat.Dense
	rhs  []float64
}

type denseSlot struct {
	a    *mat.Dense
	i, j int
}

func (s denseSlot) Add(value float64) { s.a.Set(s.i, s.j, s.a.At(s.i, s.j)+value) }
func (s denseSlot) Value() float64    { return s.a.At(s.i, s.j) }

func NewDense(size int) *DenseMatrix {
	return &DenseMatrix{
		size: size,
		a:    mat.NewDense(size, size, nil),
		rhs:  make([]float64, size+1),
	}
}

func (d *DenseMatrix) Size() int { return d.size }

func (d *DenseMatrix) Slot(i, j int) Slot {
	if i <= 0 || j <= 0 || i > d.size || j > d.size {
		return GroundSlot
	}
	return denseSlot{d.a, i - 1, j - 1}
}

func (d *DenseMatrix) AddElement(i, j int, value float64) {
	d.Slot(i, j).Add(value)
}

func (d *DenseMatrix) AddRHS(i int, value float64) {
	if i <= 0 || i > d.size {
		return
	}
	d.rhs[i] += value
}

func (d *DenseMatrix) At(i, j int) float64 {
	return d.Slot(i, j).Value()
}

func (d *DenseMatrix) RHS() []float64 { return d.rhs }

func (d *DenseMatrix) Clear() {
	d.a.Zero()
	for i := range d.rhs {
		d.rhs[i] = 0
	}
}

// Dense exposes the 0-based gonum matrix.
func (d *DenseMatrix) Dense() *mat.Dense { return d.a }

// Solve returns the 1-based solution of A x = rhs.
func (d *DenseMatrix) Solve() ([]float64, error) {
	b := mat.NewVecDense(d.size, append([]float64(nil), d.rhs[1:]...))
	var x mat.VecDense
	if err := x.SolveVec(d.a, b); err != nil {
		return nil, fmt.Errorf("dense solve failed: %w", err)
	}
	out := make([]float64, d.size+1)
	for i := 0; i < d.size; i++ {
		out[i+1] = x.AtVec(i)
	}
	return out, nil
}

func (d *DenseMatrix) String() string {
	return fmt.Sprintf("%.6g", mat.Formatted(d.a, mat.Squeeze()))
}
