package bsim4

const (
	delta3 = 0.02
	delta4 = 0.02
)

// tunneling holds the gate leakage currents per finger. igcs, igcd and
// igb are in the mode frame; igs and igd are physical.
type tunneling struct {
	igcs, igcd, igb dual
	igs, igd        dual
}

// oxideVoltages returns the oxide voltage in accumulation and in
// depletion/inversion.
func (c *evalContext) oxideVoltages(vgsEff, vbseff, vgsteff dual) (voxacc, voxdepinv dual) {
	vfb := c.t.vfbzb
	v3 := cst(vfb).sub(vgsEff).add(vbseff).addc(-delta3)
	var t0 dual
	if vfb <= 0 {
		t0 = dsqrt(v3.sq().addc(-4.0 * delta3 * vfb))
	} else {
		t0 = dsqrt(v3.sq().addc(4.0 * delta3 * vfb))
	}
	vfbeff := cst(vfb).sub(v3.add(t0).scale(0.5))

	voxacc = cst(vfb).sub(vfbeff)
	if voxacc.v < 0 {
		voxacc = cst(0)
	}

	k1ox := c.s.k1ox
	t3 := vgsEff.sub(vfbeff).sub(vbseff).sub(vgsteff)
	switch {
	case k1ox == 0:
		voxdepinv = cst(0)
	case t3.v < 0:
		voxdepinv = t3.neg()
	default:
		h := 0.5 * k1ox
		voxdepinv = dsqrt(t3.addc(h * h)).addc(-h).scale(k1ox)
	}
	return voxacc, voxdepinv.add(vgsteff)
}

// gateTunneling evaluates Igc split into Igcs/Igcd, Igb, and the overlap
// components Igs/Igd.
func (c *evalContext) gateTunneling(ch *channel, v *[numNodes]float64) tunneling {
	var tn tunneling
	m := c.m
	if m.IGCMOD == 0 && m.IGBMOD == 0 {
		return tn
	}
	voxacc, voxdepinv := c.oxideVoltages(ch.vgsEff, ch.vbseff, ch.vgsteff)

	if m.IGCMOD != 0 {
		tn.igcs, tn.igcd = c.gateToChannel(ch, voxdepinv)

		vgs, _, _ := forwardFrame.bias(v)
		tn.igs = c.gateToDiffusion(vgs)
		vgd, _, _ := reverseFrame.bias(v)
		tn.igd = c.gateToDiffusion(vgd)
	}
	if m.IGBMOD != 0 {
		tn.igb = c.gateToBody(ch, voxacc, voxdepinv)
	}
	return tn
}

func (c *evalContext) gateToChannel(ch *channel, voxdepinv dual) (igcs, igcd dual) {
	s, t, m := c.s, c.t, c.m
	t0 := t.Vtm * s.nigc

	var vaux dual
	if m.IGCMOD == 1 {
		vaux = softplus(ch.vgsEff.addc(-float64(m.Type)*t.vth0), t0)
	} else {
		vaux = softplus(ch.vgsEff.sub(ch.vth), t0)
	}

	t2 := ch.vgsEff.mul(vaux)
	t3 := s.aigc*s.cigc - s.bigc
	t4 := s.bigc * s.cigc
	t5 := voxdepinv.scale(t3).sub(voxdepinv.sq().scale(t4)).addc(s.aigc).scale(s.bechvb)
	igc := t2.mul(dexpClamp(t5)).scale(s.aechvb)

	var pigcd dual
	if s.pigcdGiven {
		pigcd = cst(s.pigcd)
	} else {
		t12 := ch.vgsteff.addc(1.0e-20)
		t13 := t12.sq().inv().scale(-s.bechvb)
		pigcd = t13.mul(cst(1.0).sub(ch.vdseff.div(t12).scale(0.5)))
	}

	t7 := pigcd.mul(ch.vdseff).neg()
	t8 := t7.sq().addc(2.0e-4)
	t9 := dexpClamp(t7)

	igcs = igc.mul(t9.addc(-1.0 + 1.0e-4).sub(t7).div(t8))
	igcd = igc.mul(t7.mul(t9).sub(t9.addc(-1.0 - 1.0e-4)).div(t8))
	return igcs, igcd
}

// gateToDiffusion is the edge tunneling current over one overlap; vgs is
// seeded in the frame whose source is that diffusion.
func (c *evalContext) gateToDiffusion(vgs dual) dual {
	s := c.s
	t0 := vgs.addc(-s.vfbsd)
	vgsEff := dsqrt(t0.sq().addc(1.0e-4))
	t2 := vgs.mul(vgsEff)
	t3 := s.aigsd*s.cigsd - s.bigsd
	t4 := s.bigsd * s.cigsd
	t5 := vgsEff.scale(t3).sub(vgsEff.sq().scale(t4)).addc(s.aigsd).scale(s.bechvbEdge)
	return t2.mul(dexpClamp(t5)).scale(s.aechvbEdge)
}

func (c *evalContext) gateToBody(ch *channel, voxacc, voxdepinv dual) dual {
	s, t, m := c.s, c.t, c.m
	vtm := t.Vtm
	vgb := ch.vgsEff.sub(ch.vbseff)

	t0 := vtm * s.nigbacc
	vaux := softplus(ch.vbseff.sub(ch.vgsEff).addc(t.vfbzb), t0)
	t11 := 4.97232e-7 * s.weff * s.leff * s.toxRatio
	t12 := -7.45669e11 * m.TOXE
	t3 := s.aigbacc*s.cigbacc - s.bigbacc
	t4 := s.bigbacc * s.cigbacc
	t5 := voxacc.scale(t3).sub(voxacc.sq().scale(t4)).addc(s.aigbacc).scale(t12)
	igbacc := vgb.mul(vaux).mul(dexpClamp(t5)).scale(t11)

	t0 = vtm * s.nigbinv
	vaux = softplus(voxdepinv.addc(-s.eigbinv), t0)
	t11 *= 0.75610
	t12 *= 1.31724
	t3 = s.aigbinv*s.cigbinv - s.bigbinv
	t4 = s.bigbinv * s.cigbinv
	t5 = voxdepinv.scale(t3).sub(voxdepinv.sq().scale(t4)).addc(s.aigbinv).scale(t12)
	igbinv := vgb.mul(vaux).mul(dexpClamp(t5)).scale(t11)

	return igbacc.add(igbinv)
}

// gidl is the gate induced leakage from the frame drain to the body,
// already multiplied by the finger count. The source side (GISL) is the
// same law in the reverse frame.
func (c *evalContext) gidl(vgs, vds, vbs dual, a, b, cc, e float64) dual {
	s, m := c.s, c.m
	if a <= 0 || b <= 0 || cc <= 0 {
		return cst(0)
	}
	vgsEff := polyDepletion(s.vfb+s.phi, s.ngate, m.epsgate, m.coxe, vgs)
	t1 := vds.sub(vgsEff).addc(-e + s.vfbsd).scale(1.0 / (3.0 * m.TOXE))
	vbd := vbs.sub(vds)
	if t1.v <= 0 || vbd.v > 0 {
		return cst(0)
	}

	w := a * s.weffCJ * s.Key.NF
	t2 := cst(b).div(t1)
	var ig dual
	if t2.v < 100.0 {
		ig = t1.mul(dexp(t2.neg())).scale(w)
	} else {
		ig = t1.scale(w * 3.720075976e-44)
	}

	t5 := vbd.sq().mul(vbd).neg()
	return ig.mul(t5.div(t5.addc(cc)))
}
