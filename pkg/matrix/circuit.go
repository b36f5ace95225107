package matrix

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/edp1096/sparse"
	"github.com/edp1096/toy-bsim4/internal/logger"
)

// residualTol bounds |b - A x| of a row relative to the magnitudes that
// entered it.
const residualTol = 1e-9

type CircuitMatrix struct {
	size     int
	matrix   *sparse.Matrix
	rhs      []float64
	solution []float64
	config   *sparse.Configuration
	log      logger.Logger

	// Every element handed out, in external coordinates. The sparse
	// package renumbers rows and columns when it factors, so the
	// external position of an element is only known from here.
	entries []entry
	index   map[[2]int]int
	diags   []*sparse.Element // node diagonals that receive gmin
	values  []float64         // entries before the last factorization
}

type entry struct {
	i, j int
	e    *sparse.Element
}

type elementSlot struct{ e *sparse.Element }

func (s elementSlot) Add(value float64) { s.e.Real += value }
func (s elementSlot) Value() float64    { return s.e.Real }

func NewMatrix(size int, log logger.Logger) (*CircuitMatrix, error) {
	if log == nil {
		log = logger.Default()
	}

	config := &sparse.Configuration{
		Real:           true,
		Complex:        false,
		Expandable:     true,
		ModifiedNodal:  true,
		TiesMultiplier: 5,
		PrinterWidth:   140,
		Annotate:       0,
	}

	mat, err := sparse.Create(int64(size), config)
	if err != nil {
		return nil, fmt.Errorf("creating sparse matrix: %w", err)
	}

	return &CircuitMatrix{
		size:     size,
		matrix:   mat,
		rhs:      make([]float64, size+1), // 1-based indexing
		solution: make([]float64, size+1),
		config:   config,
		log:      log,
		index:    make(map[[2]int]int),
	}, nil
}

func (m *CircuitMatrix) Size() int { return m.size }

// element returns the element at external (i, j), creating it while the
// matrix has not been factored yet.
func (m *CircuitMatrix) element(i, j int) (*sparse.Element, bool) {
	if k, ok := m.index[[2]int{i, j}]; ok {
		return m.entries[k].e, true
	}
	if m.matrix.Reordered {
		m.log.Error("matrix position added after factorization", "i", i, "j", j)
		return nil, false
	}
	e := m.matrix.GetElement(int64(i), int64(j))
	m.index[[2]int{i, j}] = len(m.entries)
	m.entries = append(m.entries, entry{i, j, e})
	return e, true
}

// Slot resolves (i, j) to the underlying sparse element. Call during setup,
// before the first factorization.
func (m *CircuitMatrix) Slot(i, j int) Slot {
	if i <= 0 || j <= 0 {
		return GroundSlot
	}
	if i > m.size || j > m.size {
		m.log.Warn("matrix index out of bounds", "i", i, "j", j, "size", m.size)
		return GroundSlot
	}
	e, ok := m.element(i, j)
	if !ok {
		return GroundSlot
	}
	return elementSlot{e}
}

func (m *CircuitMatrix) AddElement(i, j int, value float64) {
	if i <= 0 || j <= 0 {
		return
	}
	if i > m.size || j > m.size {
		m.log.Warn("matrix index out of bounds", "i", i, "j", j, "size", m.size)
		return
	}
	if e, ok := m.element(i, j); ok {
		e.Real += value
	}
}

func (m *CircuitMatrix) AddRHS(i int, value float64) {
	if i <= 0 {
		return
	}
	if i > m.size {
		m.log.Warn("rhs index out of bounds", "i", i, "size", m.size)
		return
	}
	m.rhs[i] += value
}

// SetGminRows selects the rows 1..n that LoadGmin touches. Those are the
// node voltage rows; branch and device rows come after them.
func (m *CircuitMatrix) SetGminRows(n int) {
	m.diags = m.diags[:0]
	for i := 1; i <= min(n, m.size); i++ {
		if e, ok := m.element(i, i); ok {
			m.diags = append(m.diags, e)
		}
	}
}

// LoadGmin adds gmin to the diagonal of every gmin row.
func (m *CircuitMatrix) LoadGmin(gmin float64) {
	if gmin == 0 {
		return
	}
	for _, d := range m.diags {
		d.Real += gmin
	}
}

func (m *CircuitMatrix) Clear() {
	m.matrix.Clear()
	for i := range m.rhs {
		m.rhs[i] = 0
	}
}

// Solve factors the loaded system and solves it. The pivot order of the
// previous factorization is reused first; when that fails or leaves a
// residual, the matrix is reordered, and as a last resort solved dense.
func (m *CircuitMatrix) Solve() error {
	m.snapshot()

	err := m.factorSolve()
	if err == nil && m.residualOK() {
		return nil
	}
	m.log.Debug("reordering sparse matrix", "error", err)

	m.restore()
	m.matrix.NeedsOrdering = true
	m.matrix.Partitioned = false
	err = m.factorSolve()
	if err == nil && m.residualOK() {
		return nil
	}
	m.log.Debug("falling back to dense solve", "error", err)

	x, err := m.dense().Solve()
	if err != nil {
		return fmt.Errorf("matrix solve failed: %w", err)
	}
	m.solution = x
	m.restore()
	return nil
}

func (m *CircuitMatrix) factorSolve() error {
	if err := m.matrix.Factor(); err != nil {
		return fmt.Errorf("matrix factorization failed: %w", err)
	}
	x, err := m.matrix.Solve(m.rhs)
	if err != nil {
		return fmt.Errorf("matrix solve failed: %w", err)
	}
	m.solution = x
	return nil
}

func (m *CircuitMatrix) snapshot() {
	m.values = slices.Grow(m.values[:0], len(m.entries))
	for _, en := range m.entries {
		m.values = append(m.values, en.e.Real)
	}
}

// restore puts the loaded values back after a factorization overwrote
// them. Fill-ins go back to zero.
func (m *CircuitMatrix) restore() {
	m.matrix.Clear()
	for k, en := range m.entries {
		en.e.Real = m.values[k]
	}
}

func (m *CircuitMatrix) residualOK() bool {
	x := m.solution
	if len(x) <= m.size {
		return false
	}
	res := make([]float64, m.size+1)
	scale := make([]float64, m.size+1)
	for i := 1; i <= m.size; i++ {
		res[i] = m.rhs[i]
		scale[i] = math.Abs(m.rhs[i])
	}
	for k, en := range m.entries {
		ax := m.values[k] * x[en.j]
		res[en.i] -= ax
		scale[en.i] += math.Abs(ax)
	}
	for i := 1; i <= m.size; i++ {
		if math.IsNaN(x[i]) || math.Abs(res[i]) > residualTol*scale[i]+1e-300 {
			return false
		}
	}
	return true
}

// dense copies the loaded system into a DenseMatrix.
func (m *CircuitMatrix) dense() *DenseMatrix {
	d := NewDense(m.size)
	for k, en := range m.entries {
		d.AddElement(en.i, en.j, m.values[k])
	}
	copy(d.rhs, m.rhs)
	return d
}

func (m *CircuitMatrix) RHS() []float64 {
	return m.rhs
}

func (m *CircuitMatrix) Solution() []float64 {
	return m.solution
}

// ResetSolution zeroes the iterate Newton starts from.
func (m *CircuitMatrix) ResetSolution() {
	m.solution = make([]float64, m.size+1)
}

// String renders the non-zero equations as loaded, node equations first.
func (m *CircuitMatrix) String() string {
	values := m.values
	if !m.matrix.Factored || len(values) != len(m.entries) {
		values = make([]float64, len(m.entries))
		for k, en := range m.entries {
			values[k] = en.e.Real
		}
	}

	order := make([]int, len(m.entries))
	for k := range order {
		order[k] = k
	}
	slices.SortFunc(order, func(a, b int) int {
		ea, eb := m.entries[a], m.entries[b]
		return cmp.Or(cmp.Compare(ea.i, eb.i), cmp.Compare(ea.j, eb.j))
	})

	var sb strings.Builder
	fmt.Fprintf(&sb, "Circuit Equations (%dx%d):\n", m.size, m.size)
	row := 0
	for _, k := range order {
		en := m.entries[k]
		if values[k] == 0 {
			continue
		}
		if en.i != row {
			if row != 0 {
				fmt.Fprintf(&sb, " = %g\n", m.rhs[row])
			}
			row = en.i
		}
		fmt.Fprintf(&sb, "  %+g*x%d", values[k], en.j)
	}
	if row != 0 {
		fmt.Fprintf(&sb, " = %g\n", m.rhs[row])
	}
	return sb.String()
}

func (m *CircuitMatrix) Destroy() {
	if m.matrix != nil {
		m.matrix.Destroy()
		m.matrix = nil
	}
}
