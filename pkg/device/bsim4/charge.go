package bsim4

import "math"

// intrinsic is the channel charge split over the four terminals of the
// mode frame. The four charges sum to zero.
type intrinsic struct {
	qg, qb, qd, qs dual
}

func (c *evalContext) intrinsicCharge(ch *channel, vds dual) intrinsic {
	if c.m.CAPMOD == 0 {
		return c.chargeSimple(ch, vds)
	}
	return c.chargeCTM(ch, vds)
}

// coxWL is the gate oxide capacitance of all fingers.
func (c *evalContext) coxWL() float64 {
	return c.m.coxe * c.s.weffCV * c.s.leffCV * c.s.Key.NF
}

// chargeSimple is the long channel charge model without the charge
// centroid.
func (c *evalContext) chargeSimple(ch *channel, vds dual) intrinsic {
	s, m := c.s, c.m
	var q intrinsic

	vfb := s.vfbcv
	vth := ch.sqrtPhis.scale(s.k1ox).addc(vfb + s.phi)
	vgst := ch.vgsEff.sub(vth)
	coxWL := c.coxWL()
	arg1 := ch.vgsEff.sub(ch.vbseff).addc(-vfb)

	switch {
	case arg1.v <= 0:
		q.qg = arg1.scale(coxWL)
		q.qb = q.qg.neg()
		return q
	case vgst.v <= 0:
		t1 := 0.5 * s.k1ox
		t2 := dsqrt(arg1.addc(t1 * t1))
		q.qg = t2.addc(-t1).scale(coxWL * s.k1ox)
		q.qb = q.qg.neg()
		return q
	}

	abulkCV := ch.abulk0.scale(s.abulkCVfactor)
	vdsat := vgst.div(abulkCV)
	gate := ch.vgsEff.addc(-vfb - s.phi)

	if vdsat.v <= vds.v {
		q.qg = gate.sub(vdsat.scale(1.0 / 3.0)).scale(coxWL)
		qinv := vgst.scale(-2.0 / 3.0 * coxWL)
		q.qb = q.qg.add(qinv).neg()
		switch m.partition() {
		case partition40:
			q.qd = qinv.scale(0.4)
		case partition50:
			q.qd = qinv.scale(0.5)
		}
	} else {
		alphaz := vgst.div(vdsat)
		t1 := vdsat.scale(2.0).sub(vds)
		t2 := vds.div(t1.scale(3.0))
		t3 := t2.mul(vds)
		t4 := alphaz.scale(0.25 * coxWL)
		q.qg = gate.sub(vds.sub(t3).scale(0.5)).scale(coxWL)

		switch m.partition() {
		case partition0:
			t7 := vds.scale(2.0).sub(t1).sub(t3.scale(3.0))
			t8 := t3.sub(t1).sub(vds.scale(2.0))
			q.qd = t4.mul(t7)
			q.qb = q.qg.add(q.qd).add(t4.mul(t8)).neg()
		case partition40:
			t6 := vdsat.sq().scale(8.0).sub(vdsat.mul(vds).scale(6.0)).add(vds.sq().scale(1.2))
			t8 := t2.div(t1)
			t7 := vds.sub(t1).sub(t8.mul(t6))
			q.qd = t4.mul(t7)
			q.qb = q.qg.sub(t4.mul(t1.add(t3).scale(2.0))).neg()
		default:
			q.qd = t4.mul(t1.add(t3)).neg()
			q.qb = q.qg.add(q.qd.scale(2.0)).neg()
		}
	}
	q.qs = q.qg.add(q.qb).add(q.qd).neg()
	return q
}

// cvVgsteff is Vgsteff with the C-V specific offset and swing.
func (c *evalContext) cvVgsteff(ch *channel) dual {
	s := c.s
	t0 := ch.n.scale(s.noff * c.t.Vtm)
	x := ch.vgst.addc(-s.voffcv)
	vx := x.div(t0)
	switch {
	case vx.v > expThreshold:
		return x
	case vx.v < -expThreshold:
		return t0.scale(math.Log(1.0 + minExp))
	}
	return t0.mul(dlog(dexp(vx).addc(1.0)))
}

// chargeCTM is the charge thickness model: accumulation, depletion and
// inversion charges each see the oxide in series with their centroid.
func (c *evalContext) chargeCTM(ch *channel, vds dual) intrinsic {
	s, t, m := c.s, c.t, c.m
	vtm := t.Vtm
	coxWL := c.coxWL()
	vfbzb := t.vfbzb
	vbseff := ch.vbseff
	vgsteff := c.cvVgsteff(ch)

	// Flat band
	v3 := cst(vfbzb).sub(ch.vgsEff).add(vbseff).addc(-delta3)
	var t0 dual
	if vfbzb <= 0 {
		t0 = dsqrt(v3.sq().addc(-4.0 * delta3 * vfbzb))
	} else {
		t0 = dsqrt(v3.sq().addc(4.0 * delta3 * vfbzb))
	}
	vfbeff := cst(vfbzb).sub(v3.add(t0).scale(0.5))

	// Accumulation centroid
	tox := 1.0e8 * t.toxp
	tmp := ch.vgsEff.sub(vbseff).addc(-vfbzb).scale(s.acde / tox)
	var tcen dual
	switch {
	case tmp.v <= -expThreshold:
		tcen = cst(s.ldeb * minExp)
	case tmp.v >= expThreshold:
		tcen = cst(s.ldeb * maxExp)
	default:
		tcen = dexp(tmp).scale(s.ldeb)
	}
	link := 1.0e-3 * t.toxp
	v3 = cst(s.ldeb - link).sub(tcen)
	v4 := dsqrt(v3.sq().addc(4.0 * link * s.ldeb))
	tcen = cst(s.ldeb).sub(v3.add(v4).scale(0.5))
	coxWLcen := c.centroidCox(tcen).scale(coxWL / m.coxe)

	qac0 := coxWLcen.mul(vfbeff.addc(-vfbzb))

	k1ox := s.k1ox
	t3 := ch.vgsEff.sub(vfbeff).sub(vbseff).sub(vgsteff)
	var qsub0 dual
	switch {
	case k1ox == 0:
	case t3.v < 0:
		qsub0 = coxWLcen.mul(t3)
	default:
		h := 0.5 * k1ox
		qsub0 = coxWLcen.mul(dsqrt(t3.addc(h * h)).addc(-h)).scale(k1ox)
	}

	// Gate bias dependent surface potential
	var denomi, tp float64
	if k1ox <= 0 {
		denomi = 0.25 * s.moin * vtm
		tp = 0.5 * s.sqrtPhi
	} else {
		denomi = s.moin * vtm * k1ox * k1ox
		tp = k1ox * s.sqrtPhi
	}
	deltaPhi := dlog(vgsteff.addc(2.0 * tp).mul(vgsteff).scale(1.0 / denomi).addc(1.0)).scale(vtm)

	t0 = vgsteff.sub(deltaPhi).addc(-0.001)
	vgDP := t0.add(dsqrt(t0.sq().add(vgsteff.scale(0.004)))).scale(0.5)

	// Inversion centroid
	coxWLcen = c.dcCoxeff(vgsteff).scale(coxWL / m.coxe)

	abulkCV := ch.abulk0.scale(s.abulkCVfactor)
	vdsatCV := vgDP.div(abulkCV)
	t0 = vdsatCV.sub(vds).addc(-delta4)
	t1 := dsqrt(t0.sq().add(vdsatCV.scale(4.0 * delta4)))
	var vdseffCV dual
	if t0.v >= 0 {
		vdseffCV = vdsatCV.sub(t0.add(t1).scale(0.5))
	} else {
		t3 := cst(2.0 * delta4).div(t1.sub(t0))
		vdseffCV = vdsatCV.mul(cst(1.0).sub(t3))
	}
	if vds.v == 0 {
		vdseffCV = dual{d: vdseffCV.d}
	}

	t0 = abulkCV.mul(vdseffCV)
	t1 = vgDP
	t2 := t1.sub(t0.scale(0.5)).addc(1.0e-20).scale(12.0)
	t3 = t0.div(t2)
	qgate := coxWLcen.mul(t1.sub(t0.mul(cst(0.5).sub(t3))))
	t7 := cst(1.0).sub(abulkCV)
	qbulk := coxWLcen.mul(t7).mul(vdseffCV.scale(0.5).sub(t0.mul(vdseffCV).div(t2)))

	var qsrc dual
	switch m.partition() {
	case partition0:
		qsrc = coxWLcen.mul(t1.scale(0.5).add(t0.scale(0.25)).sub(t0.sq().scale(0.5).div(t2))).neg()
	case partition40:
		t2 = t2.scale(1.0 / 12.0)
		t3 = coxWLcen.scale(0.5).div(t2.sq())
		t4 := t1.mul(t0.sq().scale(2.0 / 3.0).add(t1.mul(t1.sub(t0.scale(4.0 / 3.0))))).
			sub(t0.sq().mul(t0).scale(2.0 / 15.0))
		qsrc = t3.mul(t4).neg()
	default:
		qsrc = qgate.scale(-0.5)
	}

	var q intrinsic
	q.qg = qgate.add(qac0).add(qsub0).sub(qbulk)
	q.qb = qbulk.sub(qac0.add(qsub0))
	q.qs = qsrc
	q.qd = q.qg.add(q.qb).add(q.qs).neg()
	return q
}
