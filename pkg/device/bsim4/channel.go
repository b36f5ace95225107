package bsim4

import (
	"math"

	"github.com/edp1096/toy-bsim4/internal/consts"
)

// evalContext is what every sub-model reads: the model, the binned
// coefficients and their temperature update.
type evalContext struct {
	m *Model
	s *SizeDependParam
	t *TemperatureDerived
}

// channel is the DC channel solution in the mode frame, where the drain is
// the higher of the two source/drain terminals.
type channel struct {
	vbseff, phis, sqrtPhis, xdep dual
	vth, n, vgsEff               dual
	vgst, vgsteff                dual
	ueff, abulk, abulk0          dual
	rds, vdsat, vdseff           dual
	beta                         dual
	ids                          dual // current per finger
	idsCond                      dual // ids/vdseff, for the gate resistor
	isub                         dual
	lpeVb                        float64
}

// vbseffOf bounds Vbs below by vbsc and above by 0.95·phi, smoothly.
func vbseffOf(vbs dual, vbsc, phi float64) dual {
	t0 := vbs.addc(-vbsc - 0.001)
	t1 := dsqrt(t0.sq().addc(-0.004 * vbsc))
	var v dual
	if t0.v >= 0 {
		v = t0.add(t1).scale(0.5).addc(vbsc)
	} else {
		t2 := cst(-0.002).div(t1.sub(t0))
		v = t2.addc(1.0).scale(vbsc)
	}

	t9 := 0.95 * phi
	t0 = cst(t9).sub(v).addc(-0.001)
	t1 = dsqrt(t0.sq().addc(0.004 * t9))
	return cst(t9).sub(t0.add(t1).scale(0.5))
}

// shortChannelTheta is shortChannelFactor on a bias-dependent argument.
func shortChannelTheta(x dual) dual {
	if x.v < expThreshold {
		t1 := dexp(x)
		t2 := t1.addc(-1.0)
		t4 := t2.sq().add(t1.scale(2.0 * minExp))
		return t1.div(t4)
	}
	return cst(1.0 / (maxExp - 2.0))
}

// dvt2Factor is 1 + dvt2·Vbseff kept away from zero.
func dvt2Factor(dvt2 float64, vbseff dual) dual {
	t0 := vbseff.scale(dvt2)
	if t0.v >= -0.5 {
		return t0.addc(1.0)
	}
	t4 := t0.scale(8.0).addc(3.0).inv()
	return t0.scale(3.0).addc(1.0).mul(t4)
}

// thresholdVoltage returns Vth before the DITS shift together with the
// short-channel factor used by the swing.
func (c *evalContext) thresholdVoltage(vds, vbseff, sqrtPhis, xdep dual) (vth, theta0 dual, lpeVb float64) {
	s, t, m := c.s, c.t, c.m

	t3 := dsqrt(xdep)
	v0 := s.vbi - s.phi

	lt1 := dvt2Factor(s.dvt2, vbseff).mul(t3).scale(m.factor1)
	ltw := dvt2Factor(s.dvt2w, vbseff).mul(t3).scale(m.factor1)

	theta0 = shortChannelTheta(cst(s.dvt1 * s.leff).div(lt1))
	deltVth := theta0.scale(s.dvt0 * v0)

	narrow := shortChannelTheta(cst(s.dvt1w * s.weff * s.leff).div(ltw)).scale(s.dvt0w * v0)

	tempShift := vbseff.scale(s.kt2).addc(s.kt1 + s.kt1l/s.leff).scale(t.tempRatio)
	lpe := s.k1ox * (math.Sqrt(1.0+s.lpe0/s.leff) - 1.0) * s.sqrtPhi
	tmp2 := m.TOXE * s.phi / (s.weff + s.w0)

	t3 = vbseff.scale(s.etab).addc(t.eta0)
	if t3.v < 1.0e-4 {
		t9 := t3.scale(-2.0e4).addc(3.0).inv()
		t3 = cst(2.0e-4).sub(t3).mul(t9)
	}
	diblSft := t3.scale(s.theta0vb0).mul(vds)

	lpeVb = math.Sqrt(1.0 + s.lpeb/s.leff)

	vth = sqrtPhis.scale(s.k1ox).addc(-s.k1 * s.sqrtPhi).scale(lpeVb).
		sub(vbseff.scale(t.k2ox)).
		sub(deltVth).
		sub(narrow).
		add(vbseff.scale(s.k3b).addc(s.k3).scale(tmp2)).
		add(tempShift).addc(lpe).
		sub(diblSft).
		addc(float64(m.Type) * t.vth0)
	return vth, theta0, lpeVb
}

// subthresholdSwing returns the swing factor n.
func (c *evalContext) subthresholdSwing(vds, vbseff, xdep, theta0 dual) dual {
	s, m := c.s, c.m
	tmp1 := cst(m.epssub).div(xdep)
	tmp2 := tmp1.scale(s.nfactor)
	tmp3 := vbseff.scale(s.cdscb).add(vds.scale(s.cdscd)).addc(s.cdsc)
	tmp4 := tmp2.add(tmp3.mul(theta0)).addc(s.cit).scale(1.0 / m.coxe)
	if tmp4.v >= -0.5 {
		return tmp4.addc(1.0)
	}
	t0 := tmp4.scale(8.0).addc(3.0).inv()
	return tmp4.scale(3.0).addc(1.0).mul(t0)
}

// polyDepletion returns the effective gate voltage reduced by gate
// depletion. phi is vfb+phi of the gate stack.
func polyDepletion(phi, ngate, epsgate, coxe float64, vgs dual) dual {
	if ngate <= 1.0e18 || ngate >= 1.0e25 || vgs.v <= phi || epsgate == 0 {
		return vgs
	}
	t1 := 1.0e6 * consts.CHARGE * epsgate * ngate / (coxe * coxe)
	t8 := vgs.addc(-phi)
	t4 := dsqrt(t8.scale(2.0 / t1).addc(1.0))
	t2 := t8.scale(2.0).div(t4.addc(1.0))
	t3 := t2.sq().scale(0.5 / t1)
	t7 := cst(1.12 - 0.05).sub(t3)
	t6 := dsqrt(t7.sq().addc(0.224))
	t5 := cst(1.12).sub(t7.add(t6).scale(0.5))
	return vgs.sub(t5)
}

// effectiveVgst blends weak and strong inversion.
func (c *evalContext) effectiveVgst(vgst, n dual) dual {
	s, m := c.s, c.m
	vtm := c.t.Vtm
	t0 := n.scale(vtm)

	t1 := vgst.scale(s.mstar)
	t2 := t1.div(t0)
	var t10 dual
	switch {
	case t2.v > expThreshold:
		t10 = t1
	case t2.v < -expThreshold:
		t10 = n.scale(vtm * math.Log(1.0+minExp))
	default:
		t10 = dlog(dexp(t2).addc(1.0)).scale(vtm).mul(n)
	}

	t1 = cst(s.voffcbn).sub(vgst.scale(1.0 - s.mstar))
	t2 = t1.div(t0)
	var t9 dual
	switch {
	case t2.v < -expThreshold:
		t9 = n.scale(m.coxe * minExp / s.cdep0).addc(s.mstar)
	case t2.v > expThreshold:
		t9 = n.scale(m.coxe * maxExp / s.cdep0).addc(s.mstar)
	default:
		t9 = dexp(t2).scale(m.coxe / s.cdep0).mul(n).addc(s.mstar)
	}
	return t10.div(t9)
}

// mobility returns the effective mobility for the selected MOBMOD.
func (c *evalContext) mobility(vgsteff, vth, vbseff dual) dual {
	s, t, m := c.s, c.t, c.m
	toxe := m.TOXE

	t12 := dsqrt(vth.sq().addc(1.0e-4))
	t9 := vgsteff.add(t12.scale(2.0)).inv()
	t10 := t9.scale(toxe)
	t6 := t10.sq().mul(vth).mul(vth).scale(t.ud)

	var t5 dual
	switch m.MOBMOD {
	case 0:
		t0 := vgsteff.add(vth).add(vth)
		t2 := vbseff.scale(t.uc).addc(t.ua)
		t3 := t0.scale(1.0 / toxe)
		t5 = t3.mul(t2.add(t3.scale(t.ub))).add(t6)
	case 1:
		t0 := vgsteff.add(vth).add(vth)
		t2 := vbseff.scale(t.uc).addc(1.0)
		t3 := t0.scale(1.0 / toxe)
		t4 := t3.mul(t3.scale(t.ub).addc(t.ua))
		t5 = t4.mul(t2).add(t6)
	default:
		t0 := vgsteff.addc(t.vtfbphi1).scale(1.0 / toxe)
		t1 := dexp(dlog(t0).scale(s.eu))
		t2 := vbseff.scale(t.uc).addc(t.ua)
		t5 = t1.mul(t2).add(t6)
	}

	var denomi dual
	if t5.v >= -0.8 {
		denomi = t5.addc(1.0)
	} else {
		t9 := t5.scale(10.0).addc(7.0).inv()
		denomi = t5.addc(0.6).mul(t9)
	}
	return cst(t.u0temp).div(denomi)
}

// bulkCharge returns Abulk and Abulk0.
func (c *evalContext) bulkCharge(vgsteff, vbseff, sqrtPhis, xdep dual, lpeVb float64) (abulk, abulk0 dual) {
	s, m := c.s, c.m

	tmp2 := m.TOXE * s.phi / (s.weff + s.w0)
	t9 := sqrtPhis.inv().scale(0.5 * s.k1ox * lpeVb)
	t1 := t9.add(cst(c.t.k2ox)).sub(cst(s.k3b * tmp2))

	t9 = dsqrt(xdep.scale(s.xj))
	tmp1 := t9.scale(2.0).addc(s.leff)
	t5 := cst(s.leff).div(tmp1)
	tmp4 := s.b0 / (s.weff + s.b1)
	t2 := t5.scale(s.a0).addc(tmp4)
	t7 := t5.mul(t5).mul(t5)

	abulk0 = t1.mul(t2).addc(1.0)
	t8 := t7.scale(s.ags * s.a0)
	abulk = abulk0.sub(t1.mul(t8).mul(vgsteff))

	clamp := func(a dual) dual {
		if a.v < 0.1 {
			t9 := a.scale(-20.0).addc(3.0).inv()
			return cst(0.2).sub(a).mul(t9)
		}
		return a
	}
	abulk0 = clamp(abulk0)
	abulk = clamp(abulk)

	t2 = vbseff.scale(s.keta)
	var t0 dual
	if t2.v >= -0.9 {
		t0 = t2.addc(1.0).inv()
	} else {
		t1 := t2.addc(0.8).inv()
		t0 = t2.scale(20.0).addc(17.0).mul(t1)
	}
	return t0.mul(abulk), t0.mul(abulk0)
}

// channelResistance is the bias dependent Rds of RDSMOD 0.
func (c *evalContext) channelResistance(vgsteff, sqrtPhis dual) dual {
	s, t := c.s, c.t
	if c.m.RDSMOD != 0 {
		return cst(0)
	}
	t0 := vgsteff.scale(s.prwg).addc(1.0)
	t1 := sqrtPhis.addc(-s.sqrtPhi).scale(s.prwb)
	t2 := t0.inv().add(t1)
	t3 := t2.add(dsqrt(t2.sq().addc(0.01)))
	return t3.scale(t.rds0 * 0.5).addc(t.rdswmin)
}

// evaluateChannel runs the DC channel model in the mode frame.
func (c *evalContext) evaluateChannel(vgs, vds, vbs dual) channel {
	s, t, m := c.s, c.t, c.m
	var ch channel
	vtm := t.Vtm

	ch.vbseff = vbseffOf(vbs, s.vbsc, s.phi)
	ch.phis = cst(s.phi).sub(ch.vbseff)
	ch.sqrtPhis = dsqrt(ch.phis)
	ch.xdep = ch.sqrtPhis.scale(s.xdep0 / s.sqrtPhi)

	vth, theta0, lpeVb := c.thresholdVoltage(vds, ch.vbseff, ch.sqrtPhis, ch.xdep)
	ch.lpeVb = lpeVb
	ch.n = c.subthresholdSwing(vds, ch.vbseff, ch.xdep, theta0)

	if s.dvtp0 > 0 {
		t0 := -s.dvtp1 * vds.v
		var t2 dual
		if t0 < -expThreshold {
			t2 = cst(minExp)
		} else {
			t2 = dexp(vds.scale(-s.dvtp1))
		}
		t3 := t2.addc(1.0).scale(s.dvtp0).addc(s.leff)
		t4 := dlog(cst(s.leff).div(t3)).scale(vtm)
		vth = vth.sub(ch.n.mul(t4))
	}
	ch.vth = vth

	ch.vgsEff = polyDepletion(s.vfb+s.phi, s.ngate, m.epsgate, m.coxe, vgs)
	ch.vgst = ch.vgsEff.sub(ch.vth)
	ch.vgsteff = c.effectiveVgst(ch.vgst, ch.n)

	// Bias dependent width
	weff := cst(s.weff).sub(ch.vgsteff.scale(s.dwg).add(ch.sqrtPhis.addc(-s.sqrtPhi).scale(s.dwb)).scale(2.0))
	if weff.v < 2.0e-8 {
		t0 := weff.scale(-2.0).addc(6.0e-8).inv()
		weff = cst(4.0e-8).sub(weff).mul(t0).scale(2.0e-8)
	}

	ch.rds = c.channelResistance(ch.vgsteff, ch.sqrtPhis)
	ch.abulk, ch.abulk0 = c.bulkCharge(ch.vgsteff, ch.vbseff, ch.sqrtPhis, ch.xdep, lpeVb)
	ch.ueff = c.mobility(ch.vgsteff, ch.vth, ch.vbseff)

	// Saturation
	wvcox := weff.scale(t.vsattemp * m.coxe)
	wvcoxRds := wvcox.mul(ch.rds)
	esat := cst(2.0 * t.vsattemp).div(ch.ueff)
	esatL := esat.scale(s.leff)

	var lambda dual
	if s.a1 == 0 {
		lambda = cst(s.a2)
	} else if s.a1 > 0 {
		t0 := 1.0 - s.a2
		t1 := cst(t0 - 0.0001).sub(ch.vgsteff.scale(s.a1))
		t2 := dsqrt(t1.sq().addc(0.0004 * t0))
		lambda = cst(s.a2 + t0).sub(t1.add(t2).scale(0.5))
	} else {
		t1 := ch.vgsteff.scale(s.a1).addc(s.a2 - 0.0001)
		t2 := dsqrt(t1.sq().addc(0.0004 * s.a2))
		lambda = t1.add(t2).scale(0.5)
	}

	vgst2Vtm := ch.vgsteff.addc(2.0 * vtm)
	if ch.rds.v == 0 && lambda.v == 1.0 {
		ch.vdsat = esatL.mul(vgst2Vtm).div(ch.abulk.mul(esatL).add(vgst2Vtm))
	} else {
		t9 := ch.abulk.mul(wvcoxRds)
		t7 := vgst2Vtm.mul(t9)
		t6 := vgst2Vtm.mul(wvcoxRds)
		t0 := ch.abulk.scale(2.0).mul(t9.addc(-1.0).add(lambda.inv()))
		t1 := vgst2Vtm.mul(lambda.inv().scale(2.0).addc(-1.0)).add(ch.abulk.mul(esatL)).add(t7.scale(3.0))
		t2 := vgst2Vtm.mul(esatL.add(t6.scale(2.0)))
		t3 := dsqrt(t1.sq().sub(t0.mul(t2).scale(2.0)))
		ch.vdsat = t1.sub(t3).div(t0)
	}

	ch.vdseff = effectiveVds(ch.vdsat, vds, s.delta)

	diffVds := vds.sub(ch.vdseff)

	// Velocity overshoot
	if s.lambda > 0 {
		t2 := cst(s.lambda).div(ch.ueff.scale(s.leff))
		t5 := esat.scale(s.litl).inv()
		t6 := diffVds.mul(t5).addc(1.0)
		t7 := t6.sq().addc(1.0).inv().scale(2.0)
		t10 := t2.mul(cst(1.0).sub(t7)).addc(1.0)
		esatL = esatL.mul(t10)
		esat = esatL.scale(1.0 / s.leff)
	}

	coxeff := c.dcCoxeff(ch.vgsteff)
	coxeffWovL := weff.scale(1.0 / s.leff).mul(coxeff)
	ch.beta = ch.ueff.mul(coxeffWovL)

	abovVgst2Vtm := ch.abulk.div(vgst2Vtm)
	t0 := cst(1.0).sub(ch.vdseff.mul(abovVgst2Vtm).scale(0.5))
	fgche1 := ch.vgsteff.mul(t0)
	fgche2 := ch.vdseff.div(esatL).addc(1.0)
	gche := ch.beta.mul(fgche1).div(fgche2)
	idl := gche.div(gche.mul(ch.rds).addc(1.0))

	fp := cst(1.0)
	if s.fprout > 0 {
		t9 := cst(s.fprout * math.Sqrt(s.leff)).div(vgst2Vtm)
		fp = t9.addc(1.0).inv()
	}

	// Output resistance
	tmp4 := cst(1.0).sub(ch.abulk.mul(ch.vdsat).div(vgst2Vtm).scale(0.5))
	t9 := wvcoxRds.mul(ch.vgsteff)
	vasat := esatL.add(ch.vdsat).add(t9.mul(tmp4).scale(2.0)).
		div(lambda.inv().scale(2.0).addc(-1.0).add(wvcoxRds.mul(ch.abulk)))

	pvagTerm := cst(1.0)
	{
		t9 := ch.vgsteff.div(esatL).scale(s.pvag)
		if t9.v > -0.9 {
			pvagTerm = t9.addc(1.0)
		} else {
			t4 := t9.scale(20.0).addc(17.0).inv()
			pvagTerm = t9.addc(0.8).mul(t4)
		}
	}

	cclm := cst(maxExp)
	vaclm := cst(maxExp)
	if s.pclm > minExp && diffVds.v > 1.0e-10 {
		t0 := ch.rds.mul(idl).addc(1.0)
		t2 := ch.vdsat.div(esat)
		t1 := t2.addc(s.leff)
		cclm = fp.mul(pvagTerm).mul(t0).mul(t1).scale(1.0 / (s.pclm * s.litl))
		vaclm = cclm.mul(diffVds)
	}

	vadibl := cst(maxExp)
	if s.thetaRout > minExp {
		t8 := ch.abulk.mul(ch.vdsat)
		t0 := vgst2Vtm.mul(t8)
		t1 := vgst2Vtm.add(t8)
		vadibl = vgst2Vtm.sub(t0.div(t1)).scale(1.0 / s.thetaRout)
		t7 := ch.vbseff.scale(s.pdiblb)
		if t7.v >= -0.9 {
			vadibl = vadibl.div(t7.addc(1.0))
		} else {
			t4 := t7.addc(0.8).inv()
			vadibl = vadibl.mul(t7.scale(20.0).addc(17.0).mul(t4))
		}
		vadibl = vadibl.mul(pvagTerm)
	}

	va := vasat.add(vaclm)

	vadits := cst(maxExp)
	if s.pdits > minExp {
		var t1 dual
		if s.pditsd*vds.v > expThreshold {
			t1 = cst(maxExp)
		} else {
			t1 = dexp(vds.scale(s.pditsd))
		}
		t2 := 1.0 + m.PDITSL*s.leff
		vadits = t1.scale(t2).addc(1.0).scale(1.0 / s.pdits).mul(fp)
	}

	vascbe := cst(maxExp)
	if s.pscbe2 > 0 {
		if diffVds.v > s.pscbe1*s.litl/expThreshold {
			t0 := cst(s.pscbe1 * s.litl).div(diffVds)
			vascbe = dexp(t0).scale(s.leff / s.pscbe2)
		} else {
			vascbe = cst(maxExp * s.leff / s.pscbe2)
		}
	}

	idsa := idl.mul(diffVds.div(vadibl).addc(1.0))
	idsa = idsa.mul(diffVds.div(vadits).addc(1.0))
	idsa = idsa.mul(dlog(va.div(vasat)).div(cclm).addc(1.0))

	ch.isub = c.substrateCurrent(diffVds, idsa, ch.vdseff)

	ids := idsa.mul(diffVds.div(vascbe).addc(1.0))
	ch.idsCond = ids
	cdrain := ids.mul(ch.vdseff)

	// Ballistic velocity limit
	tfactor := (1.0 - s.xn*m.LC/s.leff) / (1.0 + s.xn*m.LC/s.leff)
	if m.given["vtl"] && s.vtl > 0 && tfactor > 0 {
		t12 := coxeffWovL.scale(s.leff).inv()
		t11 := t12.div(ch.vgsteff)
		vs := cdrain.mul(t11)
		t1 := vs.scale(1.0 / (s.vtl * tfactor))
		if t1.v > 0 {
			const mm = 3.0
			t2 := dexp(dlog(t1).scale(2.0 * mm)).addc(1.0)
			fsevl := dexp(dlog(t2).scale(-1.0 / (2.0 * mm)))
			cdrain = cdrain.mul(fsevl)
			ch.idsCond = ch.idsCond.mul(fsevl)
		}
	}
	ch.ids = cdrain
	return ch
}

// effectiveVds smoothly saturates vds at vdsat.
func effectiveVds(vdsat, vds dual, delta float64) dual {
	t1 := vdsat.sub(vds).addc(-delta)
	t2 := dsqrt(t1.sq().add(vdsat.scale(4.0 * delta)))
	var vdseff dual
	if t1.v >= 0 {
		vdseff = vdsat.sub(t1.add(t2).scale(0.5))
	} else {
		t3 := cst(2.0 * delta).div(t2.sub(t1))
		vdseff = vdsat.mul(cst(1.0).sub(t3))
	}
	if vds.v == 0 {
		vdseff = dual{d: vdseff.d}
	}
	if vdseff.v > vds.v {
		vdseff = vds
	}
	return vdseff
}

// dcCoxeff is the oxide capacitance reduced by the inversion charge
// centroid.
func (c *evalContext) dcCoxeff(vgsteff dual) dual {
	return c.centroidCox(c.inversionCentroid(vgsteff))
}

// inversionCentroid is the distance of the inversion charge centroid from
// the interface.
func (c *evalContext) inversionCentroid(vgsteff dual) dual {
	m, t := c.m, c.t
	tox := 2.0e8 * t.toxp
	t0 := vgsteff.addc(t.vtfbphi2).scale(1.0 / tox)
	tmp := dexp(dlog(t0).scale(m.BDOS * 0.7))
	return tmp.addc(1.0).inv().scale(m.ADOS * 1.9e-9)
}

// centroidCox is coxp in series with the centroid capacitance epssub/tcen.
func (c *evalContext) centroidCox(tcen dual) dual {
	return cst(c.m.epssub * c.t.coxp).div(tcen.scale(c.t.coxp).addc(c.m.epssub))
}

// substrateCurrent is the impact ionization current per finger.
func (c *evalContext) substrateCurrent(diffVds, idsa, vdseff dual) dual {
	s := c.s
	tmp := s.alpha0 + s.alpha1*s.leff
	if tmp <= 0 || s.beta0 <= 0 {
		return cst(0)
	}
	t2 := tmp / s.leff
	var t1 dual
	if diffVds.v > s.beta0/expThreshold {
		t0 := cst(-s.beta0).div(diffVds)
		t1 = diffVds.mul(dexp(t0)).scale(t2)
	} else {
		t1 = diffVds.scale(t2 * minExp)
	}
	return t1.mul(idsa).mul(vdseff)
}
