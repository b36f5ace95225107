package bsim4

import "math"

// nqsScaling keeps the charge node unknown near the magnitude of a node
// voltage.
const nqsScaling = 1.0e-9

// network is the extrinsic resistor set of one instance at one
// temperature.
type network struct {
	grgeltd                           float64 // gate electrode
	gdrain, gsource                   float64 // sheet resistance of the diffusions
	grbpb, grbpd, grbps, grbdb, grbsb float64
}

// evalResult is one bias point in normalized (N-type) polarity over
// conceptual nodes.
type evalResult struct {
	stamp

	mode   int // 1 when dp is the frame drain, -1 when sp is
	ch     channel
	qi     intrinsic
	tn     tunneling
	igidl  float64
	igisl  float64
	ibs    float64
	ibd    float64
	qcheq  float64
	dxpart float64
}

// evaluate computes every current and charge of the device at the
// normalized node voltages v.
func (c *evalContext) evaluate(v *[numNodes]float64, ns NodeSet, net *network, gmin float64) *evalResult {
	r := &evalResult{mode: 1}
	m, s, t := c.m, c.s, c.t
	nf := s.Key.NF
	st := &r.stamp

	fr := forwardFrame
	if v[nodeDP]-v[nodeSP] < 0 {
		fr = reverseFrame
		r.mode = -1
	}
	vgs, vds, vbs := fr.bias(v)
	r.ch = c.evaluateChannel(vgs, vds, vbs)
	ch := &r.ch

	st.current(fr.d, fr.s, fr.lift(ch.ids.scale(nf)))
	st.current(fr.d, fr.b, fr.lift(ch.isub.scale(nf)))

	// Gate leakage
	r.tn = c.gateTunneling(ch, v)
	st.current(fr.g, fr.s, fr.lift(r.tn.igcs.scale(nf)))
	st.current(fr.g, fr.d, fr.lift(r.tn.igcd.scale(nf)))
	st.current(fr.g, fr.b, fr.lift(r.tn.igb.scale(nf)))
	st.current(nodeGP, nodeSP, forwardFrame.lift(r.tn.igs.scale(nf)))
	st.current(nodeGP, nodeDP, reverseFrame.lift(r.tn.igd.scale(nf)))

	{
		g, d, b := forwardFrame.bias(v)
		i := c.gidl(g, d, b, s.agidl, s.bgidl, s.cgidl, s.egidl)
		r.igidl = i.v
		st.current(nodeDP, nodeBP, forwardFrame.lift(i))
	}
	{
		g, d, b := reverseFrame.bias(v)
		i := c.gidl(g, d, b, s.agisl, s.bgisl, s.cgisl, s.egisl)
		r.igisl = i.v
		st.current(nodeSP, nodeBP, reverseFrame.lift(i))
	}

	// Bulk junctions
	vbsj := v[nodeSB] - v[nodeSP]
	vbdj := v[nodeDB] - v[nodeDP]
	i, g := diodeCurrent(&t.source, m.DIOMOD, vbsj, gmin)
	r.ibs = i
	st.branch(nodeSB, nodeSP, i, g)
	i, g = diodeCurrent(&t.drain, m.DIOMOD, vbdj, gmin)
	r.ibd = i
	st.branch(nodeDB, nodeDP, i, g)

	qj, cj := junctionCharge(&t.source, vbsj)
	st.storage(nodeSB, nodeSP, qj, cj)
	qj, cj = junctionCharge(&t.drain, vbdj)
	st.storage(nodeDB, nodeDP, qj, cj)

	// Intrinsic charge
	r.qi = c.intrinsicCharge(ch, vds)
	if ns.NQS {
		c.relaxCharge(r, fr, v[nodeQ])
	} else {
		st.charge(fr.g, fr.lift(r.qi.qg))
		st.charge(fr.b, fr.lift(r.qi.qb))
		st.charge(fr.d, fr.lift(r.qi.qd))
		st.charge(fr.s, fr.lift(r.qi.qs))
	}

	// Overlap
	gate := nodeGP
	if ns.Gate == GateTwoResistor {
		gate = nodeGM
	}
	st.storage(gate, nodeDP, s.cgdo*(v[gate]-v[nodeDP]), s.cgdo)
	st.storage(gate, nodeSP, s.cgso*(v[gate]-v[nodeSP]), s.cgso)
	st.storage(gate, nodeBP, s.cgbo*(v[gate]-v[nodeBP]), s.cgbo)

	c.gateNetwork(st, ns.Gate, net, ch, fr, v)
	c.diffusionNetwork(st, ns, net, v)
	bodyNetwork(st, ns.Body, net, v)
	return r
}

// relaxCharge replaces the quasi-static channel charge with the charge
// node. The node relaxes to the quasi-static value with time constant
// 1/gtau; its charge is split with the quasi-static ratio.
func (c *evalContext) relaxCharge(r *evalResult, fr frame, x float64) {
	s, t := c.s, c.t
	st := &r.stamp

	qb := fr.lift(r.qi.qb)
	qd := fr.lift(r.qi.qd)
	qcheq := qd.add(fr.lift(r.qi.qs))
	r.qcheq = qcheq.v

	qch := unknown(nodeQ, x).scale(nqsScaling)
	gtau := constLin(16.0 * t.u0temp * t.Vtm / (s.leffCV * s.leffCV)).add(qcheq.abs().scale(t.tconst))
	st.residual(nodeQ, gtau.mul(qch.sub(qcheq)))
	st.charge(nodeQ, qch)

	var dxpart lin
	if math.Abs(qcheq.v) > 1.0e-5*c.coxWL() {
		dxpart = qd.div(qcheq)
	} else {
		switch c.m.partition() {
		case partition40:
			dxpart = constLin(0.4)
		case partition50:
			dxpart = constLin(0.5)
		}
	}
	r.dxpart = dxpart.v

	st.charge(fr.d, dxpart.mul(qch))
	st.charge(fr.s, constLin(1.0).sub(dxpart).mul(qch))
	st.charge(fr.b, qb)
	st.charge(fr.g, qb.add(qch).scale(-1.0))
}

// gateResistance is the channel-reflected gate resistance conductance of
// rgateMod 2 and 3.
func (c *evalContext) gateResistance(ch *channel) dual {
	s := c.s
	t0 := ch.beta.scale(s.xrcrg2 * c.t.Vtm)
	return t0.add(ch.idsCond).scale(s.xrcrg1 * s.Key.NF)
}

func (c *evalContext) gateNetwork(st *stamp, gn GateNetwork, net *network, ch *channel, fr frame, v *[numNodes]float64) {
	switch gn {
	case GateLinear:
		st.conductance(nodeG, nodeGP, net.grgeltd, v)
	case GateNonlinear:
		gcrg := fr.lift(c.gateResistance(ch))
		g := gcrg.scale(net.grgeltd).div(gcrg.add(constLin(net.grgeltd)))
		st.current(nodeG, nodeGP, g.mul(across(nodeG, nodeGP, v)))
	case GateTwoResistor:
		st.conductance(nodeG, nodeGM, net.grgeltd, v)
		gcrg := fr.lift(c.gateResistance(ch))
		st.current(nodeGM, nodeGP, gcrg.mul(across(nodeGM, nodeGP, v)))
	}
}

// diffusionResistance is the bias dependent Rs (or Rd in the reverse
// frame) of rdsMod 1.
func (c *evalContext) diffusionResistance(vgs, vbs dual, r0, rmin float64) dual {
	s := c.s
	t0 := vgs.addc(-s.vfbsd)
	vgsEff := t0.add(dsqrt(t0.sq().addc(1.0e-4))).scale(0.5)
	t0 = vgsEff.scale(s.prwg).addc(1.0)
	t1 := vbs.scale(-s.prwb)
	t2 := t0.inv().add(t1)
	t3 := t2.add(dsqrt(t2.sq().addc(0.01)))
	return t3.scale(0.5 * r0).addc(rmin)
}

func (c *evalContext) diffusionNetwork(st *stamp, ns NodeSet, net *network, v *[numNodes]float64) {
	t := c.t
	if c.m.RDSMOD == 0 {
		if ns.DrainRes {
			st.conductance(nodeD, nodeDP, net.gdrain, v)
		}
		if ns.SourceRes {
			st.conductance(nodeS, nodeSP, net.gsource, v)
		}
		return
	}

	if ns.SourceRes {
		vgs, _, vbs := forwardFrame.bias(v)
		rs := c.diffusionResistance(vgs, vbs, t.rs0, t.rswmin)
		g := cst(net.gsource).div(rs.scale(net.gsource).addc(1.0))
		st.current(nodeS, nodeSP, forwardFrame.lift(g).mul(across(nodeS, nodeSP, v)))
	}
	if ns.DrainRes {
		vgd, _, vbd := reverseFrame.bias(v)
		rd := c.diffusionResistance(vgd, vbd, t.rd0, t.rdwmin)
		g := cst(net.gdrain).div(rd.scale(net.gdrain).addc(1.0))
		st.current(nodeD, nodeDP, reverseFrame.lift(g).mul(across(nodeD, nodeDP, v)))
	}
}

func bodyNetwork(st *stamp, bn BodyNetwork, net *network, v *[numNodes]float64) {
	switch bn {
	case BodyFull:
		st.conductance(nodeBP, nodeB, net.grbpb, v)
		st.conductance(nodeBP, nodeDB, net.grbpd, v)
		st.conductance(nodeBP, nodeSB, net.grbps, v)
		st.conductance(nodeDB, nodeB, net.grbdb, v)
		st.conductance(nodeSB, nodeB, net.grbsb, v)
	case BodyPrimeOnly:
		st.conductance(nodeBP, nodeB, net.grbpb, v)
	case BodyJunctionOnly:
		st.conductance(nodeDB, nodeB, net.grbdb, v)
		st.conductance(nodeSB, nodeB, net.grbsb, v)
	}
}

// across is v[a]-v[b] as a node space quantity.
func across(a, b node, v *[numNodes]float64) lin {
	return unknown(a, v[a]).sub(unknown(b, v[b]))
}
