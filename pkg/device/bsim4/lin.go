package bsim4

// lin is a quantity with its gradient over every conceptual unknown. It
// carries the values that couple nodes outside one bias frame: series
// resistances, the charge node and the assembled stamp.
type lin struct {
	v float64
	d [numNodes]float64
}

// unknown is the value of node n itself.
func unknown(n node, x float64) lin {
	var l lin
	l.v = x
	l.d[n] = 1
	return l
}

func constLin(v float64) lin { return lin{v: v} }

func (a lin) add(b lin) lin {
	a.v += b.v
	for i := range a.d {
		a.d[i] += b.d[i]
	}
	return a
}

func (a lin) sub(b lin) lin {
	a.v -= b.v
	for i := range a.d {
		a.d[i] -= b.d[i]
	}
	return a
}

func (a lin) scale(c float64) lin {
	a.v *= c
	for i := range a.d {
		a.d[i] *= c
	}
	return a
}

func (a lin) mul(b lin) lin {
	var r lin
	r.v = a.v * b.v
	for i := range r.d {
		r.d[i] = a.d[i]*b.v + a.v*b.d[i]
	}
	return r
}

func (a lin) div(b lin) lin {
	var r lin
	r.v = a.v / b.v
	for i := range r.d {
		r.d[i] = (a.d[i] - r.v*b.d[i]) / b.v
	}
	return r
}

func (a lin) abs() lin {
	if a.v < 0 {
		return a.scale(-1)
	}
	return a
}

// frame names the physical nodes that play gate, drain, source and bulk
// for a dual computation.
type frame struct {
	g, d, s, b node
}

var (
	forwardFrame = frame{g: nodeGP, d: nodeDP, s: nodeSP, b: nodeBP}
	reverseFrame = frame{g: nodeGP, d: nodeSP, s: nodeDP, b: nodeBP}
)

// bias returns vgs, vds and vbs of the frame, seeded for differentiation.
func (f frame) bias(v *[numNodes]float64) (vgs, vds, vbs dual) {
	vs := v[f.s]
	return seedGate(v[f.g] - vs), seedDrain(v[f.d] - vs), seedBulk(v[f.b] - vs)
}

// lift moves a frame dual into node space.
func (f frame) lift(x dual) lin {
	var l lin
	l.v = x.v
	l.d[f.g] += x.g
	l.d[f.d] += x.d
	l.d[f.b] += x.b
	l.d[f.s] += x.source()
	return l
}

// stamp accumulates residual and charge contributions over conceptual
// nodes. f[n] is the current leaving node n into the device.
type stamp struct {
	f, q   [numNodes]float64
	df, dq [numNodes][numNodes]float64
}

// current adds i flowing from one node through the device to another.
func (s *stamp) current(from, to node, i lin) {
	s.f[from] += i.v
	s.f[to] -= i.v
	for c, g := range i.d {
		s.df[from][c] += g
		s.df[to][c] -= g
	}
}

// conductance adds a linear branch g between a and b.
func (s *stamp) conductance(a, b node, g float64, v *[numNodes]float64) {
	if g == 0 || a == b {
		return
	}
	i := g * (v[a] - v[b])
	s.f[a] += i
	s.f[b] -= i
	s.df[a][a] += g
	s.df[a][b] -= g
	s.df[b][a] -= g
	s.df[b][b] += g
}

// branch adds a two terminal current i(v[a]-v[b]) with slope g.
func (s *stamp) branch(a, b node, i, g float64) {
	s.f[a] += i
	s.f[b] -= i
	s.df[a][a] += g
	s.df[a][b] -= g
	s.df[b][a] -= g
	s.df[b][b] += g
}

// storage adds a two terminal charge q(v[a]-v[b]) with capacitance c.
func (s *stamp) storage(a, b node, q, c float64) {
	s.q[a] += q
	s.q[b] -= q
	s.dq[a][a] += c
	s.dq[a][b] -= c
	s.dq[b][a] -= c
	s.dq[b][b] += c
}

// charge adds q stored at node n.
func (s *stamp) charge(n node, q lin) {
	s.q[n] += q.v
	for c, g := range q.d {
		s.dq[n][c] += g
	}
}

// residual adds an equation term to row n that is not a KCL current.
func (s *stamp) residual(n node, r lin) {
	s.f[n] += r.v
	for c, g := range r.d {
		s.df[n][c] += g
	}
}
