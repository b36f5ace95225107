package bsim4

// Contribution is one evaluation laid out on the physical stamp of a
// Topology. DFdx and DQdx are aligned with Topology.Stamp(): DFdx[r][k]
// is the derivative of row r with respect to column Stamp()[r][k].
type Contribution struct {
	F, Q       []float64
	DFdx, DQdx [][]float64

	// Fdxp and Qdxp are J·(x_limited - x_original). They are zero when
	// the limiter left the iterate alone.
	Fdxp, Qdxp []float64

	// Dropped counts nonzero conceptual entries with no physical slot.
	// It is always zero for a consistent conceptual stamp.
	Dropped int
}

// icState holds the initial-condition branch values of an instance.
type icState struct {
	branches      ICBranch
	vds, vgs, vbs float64
	enforce       bool
}

// icRows lists the branch unknown with its positive and negative terminal
// for each initial-condition bit.
var icRows = [...]struct {
	bit        ICBranch
	br, pos, n node
}{
	{ICVDS, nodeIDS, nodeD, nodeS},
	{ICVGS, nodeIGS, nodeG, nodeS},
	{ICVBS, nodeIBS, nodeB, nodeS},
}

func (ic *icState) value(bit ICBranch) float64 {
	switch bit {
	case ICVDS:
		return ic.vds
	case ICVGS:
		return ic.vgs
	}
	return ic.vbs
}

// assemble turns a normalized evaluation into physical contributions:
// currents and charges take the device polarity, everything is multiplied
// by mult, and the result is routed through the topology remap. x is the
// limited physical iterate over conceptual nodes, dx the limiter step.
func assemble(r *evalResult, topo *Topology, typ, mult float64, ic *icState, x, dx *[numNodes]float64) *Contribution {
	var st stamp
	for n := node(0); n < numNodes; n++ {
		st.f[n] = typ * mult * r.f[n]
		st.q[n] = typ * mult * r.q[n]
		for c := node(0); c < numNodes; c++ {
			st.df[n][c] = mult * r.df[n][c]
			st.dq[n][c] = mult * r.dq[n][c]
		}
	}

	// Initial-condition branches are circuit level and see neither the
	// polarity nor the multiplicity.
	if ic != nil {
		for _, row := range icRows {
			if ic.branches&row.bit == 0 {
				continue
			}
			i := x[row.br]
			st.f[row.pos] += i
			st.f[row.n] -= i
			st.df[row.pos][row.br] += 1
			st.df[row.n][row.br] -= 1
			if ic.enforce {
				st.f[row.br] += x[row.pos] - x[row.n] - ic.value(row.bit)
				st.df[row.br][row.pos] += 1
				st.df[row.br][row.n] -= 1
			} else {
				st.f[row.br] += i
				st.df[row.br][row.br] += 1
			}
		}
	}

	size := topo.Size()
	layout := topo.Stamp()
	out := &Contribution{
		F:    make([]float64, size),
		Q:    make([]float64, size),
		DFdx: make([][]float64, size),
		DQdx: make([][]float64, size),
		Fdxp: make([]float64, size),
		Qdxp: make([]float64, size),
	}
	for p, cols := range layout {
		out.DFdx[p] = make([]float64, len(cols))
		out.DQdx[p] = make([]float64, len(cols))
	}

	for n := node(0); n < numNodes; n++ {
		if !topo.Present(n) {
			continue
		}
		p := topo.Row(n)
		out.F[p] += st.f[n]
		out.Q[p] += st.q[n]
		for c := node(0); c < numNodes; c++ {
			df, dq := st.df[n][c], st.dq[n][c]
			if df == 0 && dq == 0 {
				continue
			}
			_, k, ok := topo.Pos(n, c)
			if !ok {
				out.Dropped++
				continue
			}
			out.DFdx[p][k] += df
			out.DQdx[p][k] += dq
		}
	}

	if dx == nil {
		return out
	}
	step := make([]float64, size)
	moved := false
	for n := node(0); n < numNodes; n++ {
		if topo.Present(n) && dx[n] != 0 {
			step[topo.Row(n)] = dx[n]
			moved = true
		}
	}
	if !moved {
		return out
	}
	for p, cols := range layout {
		for k, c := range cols {
			out.Fdxp[p] += out.DFdx[p][k] * step[c]
			out.Qdxp[p] += out.DQdx[p][k] * step[c]
		}
	}
	return out
}
