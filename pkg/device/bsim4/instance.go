package bsim4

import (
	"fmt"

	"github.com/edp1096/toy-bsim4/internal/consts"
	"github.com/edp1096/toy-bsim4/pkg/device"
	"github.com/edp1096/toy-bsim4/pkg/diag"
	"github.com/edp1096/toy-bsim4/pkg/matrix"
)

// InstanceParams are the per-instance values of an M line.
type InstanceParams struct {
	L, W  float64 // Drawn length and width (m)
	NF    float64 // Number of fingers
	M     float64 // Multiplicity
	NGCON float64 // Gate contacts
	Layout

	// Initial conditions, used by the branches selected in ICGiven
	ICVDS, ICVGS, ICVBS float64
	ICGiven             ICBranch
}

// DefaultInstanceParams returns the values used for anything not set on
// the instance line.
func DefaultInstanceParams() InstanceParams {
	return InstanceParams{
		L:     5.0e-6,
		W:     5.0e-6,
		NF:    1,
		M:     1,
		NGCON: 1,
	}
}

// Instance is one BSIM4 transistor with nodes d, g, s, b.
type Instance struct {
	device.BaseDevice
	model  *Model
	params InstanceParams
	rep    diag.Reporter

	topo  *Topology
	size  *SizeDependParam
	temp  *TemperatureDerived
	net   network
	tempK float64

	rows  []int // circuit unknown of each physical row
	slots [][]matrix.Slot

	x       [numNodes]float64 // original iterate, physical polarity
	old     bias              // normalized voltages of the last evaluation
	von     float64
	limited bool

	res *evalResult
	out *Contribution
}

func NewInstance(name string, nodeNames []string, model *Model, p InstanceParams, rep diag.Reporter) (*Instance, error) {
	if len(nodeNames) != 4 {
		return nil, fmt.Errorf("mosfet %s: requires exactly 4 nodes, got %d", name, len(nodeNames))
	}
	if model == nil {
		return nil, fmt.Errorf("mosfet %s: no model", name)
	}
	if rep == nil {
		rep = diag.Discard
	}
	if p.M <= 0 {
		rep.Warnf(diag.KindParameter, "mosfet %s: m = %g is not positive, using 1", name, p.M)
		p.M = 1
	}
	if p.NGCON < 1 {
		rep.Warnf(diag.KindParameter, "mosfet %s: ngcon = %g is below 1, using 1", name, p.NGCON)
		p.NGCON = 1
	}
	if err := model.Setup(rep); err != nil {
		return nil, fmt.Errorf("mosfet %s: %w", name, err)
	}

	return &Instance{
		BaseDevice: device.NewBaseDevice(name, 0, nodeNames),
		model:      model,
		params:     p,
		rep:        rep,
		topo:       BuildTopology(model.nodeSet(p)),
	}, nil
}

func (i *Instance) GetType() string { return "M" }

func (i *Instance) Model() *Model { return i.model }

func (i *Instance) Topology() *Topology { return i.topo }

// nodeSet picks the optional unknowns an instance of this model carries.
func (m *Model) nodeSet(p InstanceParams) NodeSet {
	ns := NodeSet{IC: p.ICGiven}
	switch m.RGATEMOD {
	case 1:
		ns.Gate = GateLinear
	case 2:
		ns.Gate = GateNonlinear
	case 3:
		ns.Gate = GateTwoResistor
	}
	if m.RBODYMOD == 1 {
		ns.Body = m.bodyNetwork()
	}
	ns.DrainRes = m.RDSMOD == 1 || m.RSH*p.NRD > 0
	ns.SourceRes = m.RDSMOD == 1 || m.RSH*p.NRS > 0
	ns.NQS = m.TRNQSMOD == 1
	return ns
}

// bodyNetwork infers the body resistor variant from the resistors the
// card sets explicitly.
func (m *Model) bodyNetwork() BodyNetwork {
	prime := m.given["rbpb"]
	side := m.given["rbpd"] || m.given["rbps"]
	junction := m.given["rbdb"] || m.given["rbsb"]
	switch {
	case prime && !side && !junction:
		return BodyPrimeOnly
	case junction && !prime && !side:
		return BodyJunctionOnly
	}
	return BodyFull
}

func (i *Instance) InternalNodeNames() []string {
	return i.topo.InternalNames()
}

func (i *Instance) SetInternalNodes(indices []int) error {
	if len(indices) != i.topo.NumInternal() {
		return i.rep.Fatalf(diag.KindTopology, "mosfet %s: topology %s needs %d internal unknowns, got %d",
			i.Name, i.topo.NodeSet, i.topo.NumInternal(), len(indices))
	}
	i.rows = append(append(make([]int, 0, i.topo.Size()), i.Nodes...), indices...)
	return nil
}

func (i *Instance) Setup(m matrix.SlotMatrix) error {
	if i.rows == nil {
		if err := i.SetInternalNodes(nil); err != nil {
			return err
		}
	}
	slots, err := i.topo.Slots(m, i.rows)
	if err != nil {
		return fmt.Errorf("mosfet %s: %w", i.Name, err)
	}
	i.slots = slots
	return nil
}

// SetTemperature resolves the coefficient set and the extrinsic network
// at tempK. Geometry and temperature errors are fatal.
func (i *Instance) SetTemperature(tempK float64) error {
	p := i.params
	size, err := i.model.LookupOrDerive(GeometryKey{L: p.L, W: p.W, NF: p.NF}, i.rep)
	if err != nil {
		return fmt.Errorf("mosfet %s: %w", i.Name, err)
	}
	temp, err := UpdateTemperature(i.model, size, p.Layout, tempK, i.rep)
	if err != nil {
		return fmt.Errorf("mosfet %s: %w", i.Name, err)
	}
	if i.temp == nil {
		i.von = float64(i.model.Type) * temp.vth0
	}
	i.size, i.temp, i.tempK = size, temp, tempK
	i.net = i.resolveNetwork()
	i.res, i.out = nil, nil
	return nil
}

func (i *Instance) resolveNetwork() network {
	m, s, p := i.model, i.size, i.params
	ns := i.topo.NodeSet
	var net network

	if ns.Gate != GateNone {
		r := m.RSHG * (m.XGW + s.weffCJ/3.0/p.NGCON) / (p.NGCON * p.NF * (s.lnew - m.XGL))
		if r > 0 {
			net.grgeltd = 1.0 / r
		} else {
			i.rep.Warnf(diag.KindParameter, "mosfet %s: gate electrode resistance %g is not positive, conductance set to 1e3", i.Name, r)
			net.grgeltd = 1.0e3
		}
	}

	sheet := func(side string, squares float64, present bool) float64 {
		if !present {
			return 0
		}
		if r := m.RSH * squares; r > 0 {
			return 1.0 / r
		}
		i.rep.Warnf(diag.KindParameter, "mosfet %s: %s conductance reset to 1e3", i.Name, side)
		return 1.0e3
	}
	net.gdrain = sheet("drain", p.NRD, ns.DrainRes)
	net.gsource = sheet("source", p.NRS, ns.SourceRes)

	if ns.Body != BodyNone {
		net.grbpb = 1.0 / m.RBPB
		net.grbpd = 1.0 / m.RBPD
		net.grbps = 1.0 / m.RBPS
		net.grbdb = 1.0/m.RBDB + m.GBMIN
		net.grbsb = 1.0/m.RBSB + m.GBMIN
	}
	return net
}

func (i *Instance) context() *evalContext {
	return &evalContext{m: i.model, s: i.size, t: i.temp}
}

func (i *Instance) ensureTemperature(tempK float64) error {
	if tempK <= 0 {
		tempK = consts.TNOM
	}
	if i.temp != nil && i.tempK == tempK {
		return nil
	}
	return i.SetTemperature(tempK)
}

// UpdateVoltages takes the circuit iterate, applies the limiter and
// evaluates the device. solution is indexed by circuit unknown with 0 as
// ground.
func (i *Instance) UpdateVoltages(solution []float64, status *device.CircuitStatus) error {
	if err := i.ensureTemperature(status.Temp); err != nil {
		return err
	}
	if i.rows == nil {
		return fmt.Errorf("mosfet %s: internal unknowns not assigned", i.Name)
	}
	for n := node(0); n < numNodes; n++ {
		i.x[n] = 0
		if !i.topo.Present(n) {
			continue
		}
		idx := i.rows[i.topo.Row(n)]
		if idx < 0 || idx >= len(solution) {
			return fmt.Errorf("mosfet %s: unknown %d of node %s outside a solution of %d", i.Name, idx, n, len(solution))
		}
		if idx > 0 {
			i.x[n] = solution[idx]
		}
	}
	i.load(status)
	return nil
}

// Evaluate runs one evaluation at the given terminal voltages with no
// internal drop, independent of any circuit.
func (i *Instance) Evaluate(vd, vg, vs, vb float64, status *device.CircuitStatus) (*Contribution, error) {
	if err := i.ensureTemperature(status.Temp); err != nil {
		return nil, err
	}
	i.x = [numNodes]float64{}
	ext := [4]float64{vd, vg, vs, vb}
	for n := node(0); n < nodeQ; n++ {
		i.x[n] = ext[terminalOf[n]]
	}
	i.load(status)
	if i.topo.NodeSet.NQS {
		// Start the charge node at its quasi-static value.
		i.x[nodeQ] = float64(i.model.Type) * i.res.qcheq / nqsScaling
		i.load(status)
	}
	return i.out, nil
}

// terminalOf is the external terminal each device node hangs off.
var terminalOf = [nodeQ]node{nodeD, nodeG, nodeS, nodeB, nodeD, nodeG, nodeG, nodeS, nodeB, nodeB, nodeB}

func (i *Instance) load(status *device.CircuitStatus) {
	xl := i.limitBias(&i.x, status)
	var dx [numNodes]float64
	for n := range dx {
		dx[n] = xl[n] - i.x[n]
	}

	typ := float64(i.model.Type)
	var vn [numNodes]float64
	for n := range xl {
		vn[n] = typ * xl[n]
	}
	i.res = i.context().evaluate(&vn, i.topo.NodeSet, &i.net, status.Gmin)
	i.von = i.res.ch.vth.v
	i.old = biasOf(&vn)

	ic := &icState{
		branches: i.topo.NodeSet.IC,
		vds:      i.params.ICVDS,
		vgs:      i.params.ICVGS,
		vbs:      i.params.ICVBS,
		enforce:  status.UseIC,
	}
	i.out = assemble(i.res, i.topo, typ, i.params.M, ic, &xl, &dx)
}

// Stamp writes the Newton companion of the last evaluation. The device
// is evaluated at its stored iterate when nothing has been computed yet.
func (i *Instance) Stamp(m matrix.DeviceMatrix, status *device.CircuitStatus) error {
	if i.out == nil {
		if err := i.ensureTemperature(status.Temp); err != nil {
			return err
		}
		i.load(status)
	}
	return i.Load(m)
}

// Load writes dF/dx through the resolved slots and
// J·x_original + Jdxp - F into the right-hand side.
func (i *Instance) Load(m matrix.DeviceMatrix) error {
	if i.slots == nil {
		return fmt.Errorf("mosfet %s: load before setup", i.Name)
	}
	c := i.out
	var x [numNodes]float64
	for n := node(0); n < numNodes; n++ {
		if i.topo.Present(n) {
			x[i.topo.Row(n)] = i.x[n]
		}
	}
	for r, cols := range i.topo.Stamp() {
		rhs := c.Fdxp[r] - c.F[r]
		for k, col := range cols {
			g := c.DFdx[r][k]
			i.slots[r][k].Add(g)
			rhs += g * x[col]
		}
		m.AddRHS(i.rows[r], rhs)
	}
	return nil
}

func (i *Instance) Limited() bool { return i.limited }

// Contribution returns the last assembled contribution, or nil.
func (i *Instance) Contribution() *Contribution { return i.out }

// OperatingPoint summarizes the last evaluation in physical polarity. It
// covers all fingers and the multiplicity.
type OperatingPoint struct {
	Mode               int
	Ids, Gm, Gds, Gmbs float64
	Vth, Vdsat         float64
	Vgsteff, Vdseff    float64
	Isub, Igidl, Igisl float64
	Igcs, Igcd, Igb    float64
	Igs, Igd           float64
	Ibs, Ibd           float64
	Qg, Qd, Qs, Qb     float64

	// C[r][c] is dQr/dVc of the intrinsic charge over d, g, s, b.
	C [4][4]float64
}

func (i *Instance) OperatingPoint() (OperatingPoint, bool) {
	r := i.res
	if r == nil {
		return OperatingPoint{}, false
	}
	typ := float64(i.model.Type)
	k := i.size.Key.NF * i.params.M
	ch := &r.ch

	op := OperatingPoint{
		Mode:    r.mode,
		Ids:     typ * float64(r.mode) * k * ch.ids.v,
		Gm:      k * ch.ids.g,
		Gds:     k * ch.ids.d,
		Gmbs:    k * ch.ids.b,
		Vth:     typ * ch.vth.v,
		Vdsat:   typ * ch.vdsat.v,
		Vgsteff: ch.vgsteff.v,
		Vdseff:  ch.vdseff.v,
		Isub:    typ * k * ch.isub.v,
		Igidl:   typ * i.params.M * r.igidl,
		Igisl:   typ * i.params.M * r.igisl,
		Igcs:    typ * k * r.tn.igcs.v,
		Igcd:    typ * k * r.tn.igcd.v,
		Igb:     typ * k * r.tn.igb.v,
		Igs:     typ * k * r.tn.igs.v,
		Igd:     typ * k * r.tn.igd.v,
		Ibs:     typ * i.params.M * r.ibs,
		Ibd:     typ * i.params.M * r.ibd,
	}

	fr := forwardFrame
	if r.mode < 0 {
		fr = reverseFrame
	}
	terminals := [4]node{nodeDP, nodeGP, nodeSP, nodeBP}
	charges := [4]lin{
		fr.lift(r.qi.qd), fr.lift(r.qi.qg), fr.lift(r.qi.qs), fr.lift(r.qi.qb),
	}
	if r.mode < 0 {
		charges[0], charges[2] = fr.lift(r.qi.qs), fr.lift(r.qi.qd)
	}
	m := i.params.M
	op.Qd = typ * m * charges[0].v
	op.Qg = typ * m * charges[1].v
	op.Qs = typ * m * charges[2].v
	op.Qb = typ * m * charges[3].v
	for a := range charges {
		for b, n := range terminals {
			op.C[a][b] = m * charges[a].d[n]
		}
	}
	return op, true
}
