package bsim4

import (
	"math"

	"github.com/edp1096/toy-bsim4/internal/consts"
	"github.com/edp1096/toy-bsim4/pkg/device"
	"github.com/edp1096/toy-bsim4/pkg/diag"
)

// toxpIterations is the fixed number of centroid iterations used when toxp
// is derived from EOT. The last iterate is accepted as is.
const toxpIterations = 4

// Layout carries the instance layout that shifts the binned coefficients:
// stress distances, well proximity and junction geometry. Zero distances
// disable the corresponding effect.
type Layout struct {
	SA, SB, SD      float64 // Distance from gate edge to isolation (m)
	SCA, SCB, SCC   float64 // Well proximity integrals
	SC              float64 // Distance to the well edge (m)
	AS, AD, PS, PD  float64 // Junction areas (m^2) and perimeters (m)
	NRS, NRD        float64 // Source/drain squares
}

// ModelTemp holds the model-level values at one temperature.
type ModelTemp struct {
	T, Vtm, Eg, Ni  float64
	TRatio, DelTemp float64
	toxp, coxp      float64

	source, drain junctionTemp
}

type junctionTemp struct {
	js, jsw, jswg       float64 // saturation current densities
	cj, cjsw, cjswg     float64
	pb, pbsw, pbswg     float64
	mj, mjsw, mjswg     float64
	nvtm, bv, xjbv      float64
	ijthFwd, ijthRev    float64
}

// modelTemp returns the memoized model-level values at tempK.
func (m *Model) modelTemp(tempK float64, rep diag.Reporter) *ModelTemp {
	m.mu.RLock()
	mt, ok := m.temps[tempK]
	m.mu.RUnlock()
	if ok {
		return mt
	}

	mt = m.computeModelTemp(tempK, rep)

	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.temps[tempK]; ok {
		return prev
	}
	m.temps[tempK] = mt
	return mt
}

func (m *Model) computeModelTemp(T float64, rep diag.Reporter) *ModelTemp {
	mt := &ModelTemp{T: T}
	mt.Vtm = consts.KboQ * T
	mt.Eg = m.BG0SUB - m.TBGASUB*T*T/(T+m.TBGBSUB)
	mt.Ni = m.NI0SUB * (T / 300.15) * math.Sqrt(T/300.15) * math.Exp(21.5565981-mt.Eg/(2.0*mt.Vtm))
	mt.TRatio = T / m.TNOM
	mt.DelTemp = T - m.TNOM

	if m.MTRLMOD == 0 {
		mt.toxp = m.TOXP
	} else {
		mt.toxp = m.toxpFromEOT()
	}
	mt.coxp = m.EPSROX * consts.EPS0 / mt.toxp

	egRatio := m.eg0/m.vtm0 - mt.Eg/mt.Vtm
	lnT := math.Log(mt.TRatio)

	side := func(name string, js, jsw, jswg, n, xti, bv, xjbv, fwd, rev,
		cj, cjsw, cjswg, mj, mjsw, mjswg, pb, pbsw, pbswg float64) junctionTemp {
		j := junctionTemp{mj: mj, mjsw: mjsw, mjswg: mjswg, bv: bv, xjbv: xjbv, ijthFwd: fwd, ijthRev: rev}
		j.nvtm = n * mt.Vtm

		t3 := (egRatio + xti*lnT) / n
		t4 := maxExp
		if t3 < expThreshold {
			t4 = math.Exp(t3)
		}
		j.js, j.jsw, j.jswg = js*t4, jsw*t4, jswg*t4

		scaleCap := func(what string, c, tc float64) float64 {
			t0 := 1.0 + tc*mt.DelTemp
			if t0 < 0 {
				rep.Warnf(diag.KindTemperature, "model %s: %s %s is negative at %gK, clamped to 0", m.Name, name, what, T)
				return 0
			}
			return c * t0
		}
		j.cj = scaleCap("cj", cj, m.TCJ)
		j.cjsw = scaleCap("cjsw", cjsw, m.TCJSW)
		j.cjswg = scaleCap("cjswg", cjswg, m.TCJSWG)

		scalePot := func(what string, pb, tp float64) float64 {
			v := pb - tp*mt.DelTemp
			if v < 0.01 {
				rep.Warnf(diag.KindTemperature, "model %s: %s %s = %g below 0.01 at %gK, clamped", m.Name, name, what, v, T)
				return 0.01
			}
			return v
		}
		j.pb = scalePot("pb", pb, m.TPB)
		j.pbsw = scalePot("pbsw", pbsw, m.TPBSW)
		j.pbswg = scalePot("pbswg", pbswg, m.TPBSWG)
		return j
	}

	mt.source = side("source", m.JSS, m.JSWS, m.JSWGS, m.NJS, m.XTIS, m.BVS, m.XJBVS, m.IJTHSFWD, m.IJTHSREV,
		m.CJS, m.CJSWS, m.CJSWGS, m.MJS, m.MJSWS, m.MJSWGS, m.PBS, m.PBSWS, m.PBSWGS)
	mt.drain = side("drain", m.JSD, m.JSWD, m.JSWGD, m.NJD, m.XTID, m.BVD, m.XJBVD, m.IJTHDFWD, m.IJTHDREV,
		m.CJD, m.CJSWD, m.CJSWGD, m.MJD, m.MJSWD, m.MJSWGD, m.PBD, m.PBSWD, m.PBSWGD)
	return mt
}

// toxpFromEOT solves toxp = EOT - (epsrox/epsrsub)·Tcen(toxp) with the
// inversion charge centroid evaluated at VDDEOT.
func (m *Model) toxpFromEOT() float64 {
	vgst := math.Abs(m.VDDEOT) - math.Abs(m.VTH0.Base)
	if vgst < 1.0e-3 {
		vgst = 1.0e-3
	}
	toxp := m.EOT
	for i := 0; i < toxpIterations; i++ {
		t0 := vgst / (2.0e8 * toxp)
		tcen := m.ADOS * 1.9e-9 / (1.0 + math.Exp(m.BDOS*0.7*math.Log(t0)))
		next := m.EOT - m.EPSROX/m.EPSRSUB*tcen
		if next <= 0 {
			break
		}
		toxp = next
	}
	return toxp
}

// TemperatureDerived is the coefficient set of one geometry and layout at
// one temperature. It is a value computed from its inputs only.
type TemperatureDerived struct {
	*ModelTemp

	vth0, k2, k2ox, eta0            float64
	u0temp, ua, ub, uc, ud          float64
	vsattemp                        float64
	vfbzb, vtfbphi1, vtfbphi2       float64
	rds0, rdswmin                   float64
	rd0, rdwmin, rs0, rswmin        float64
	tconst                          float64
	tempRatio                       float64

	source, drain junction
}

// junction is one source or drain diode with its geometry folded in.
type junction struct {
	isat                  float64
	nvtm, vcrit           float64
	bv, xjbv              float64
	xExpBV                float64 // xjbv·exp(-bv/nvtm)
	vjsmFwd, ivjsmFwd     float64
	vjsmRev, ivjsmRev     float64
	sslpFwd, sslpRev      float64 // slopes of the linear extensions
	czb, czbsw, czbswg    float64
	pb, pbsw, pbswg       float64
	mj, mjsw, mjswg       float64
}

// UpdateTemperature derives the temperature and layout dependent
// coefficients. It never modifies m or s.
func UpdateTemperature(m *Model, s *SizeDependParam, lay Layout, tempK float64, rep diag.Reporter) (*TemperatureDerived, error) {
	if rep == nil {
		rep = diag.Discard
	}
	if tempK <= 0 {
		return nil, rep.Fatalf(diag.KindTemperature, "model %s: temperature %gK is not positive", m.Name, tempK)
	}

	mt := m.modelTemp(tempK, rep)
	td := &TemperatureDerived{ModelTemp: mt}
	td.tempRatio = mt.TRatio - 1.0
	typ := float64(m.Type)

	td.vth0 = s.vth0
	td.k2 = s.k2
	td.eta0 = s.eta0
	td.u0temp = s.u0 * math.Pow(mt.TRatio, s.ute)

	var t10 float64
	if m.TEMPMOD == 0 {
		td.ua = s.ua + s.ua1*td.tempRatio
		td.ub = s.ub + s.ub1*td.tempRatio
		td.uc = s.uc + s.uc1*td.tempRatio
		td.ud = s.ud + s.ud1*td.tempRatio
		td.vsattemp = s.vsat - s.at*td.tempRatio
		t10 = s.prt * td.tempRatio
	} else {
		td.ua = s.ua * (1.0 + s.ua1*mt.DelTemp)
		td.ub = s.ub * (1.0 + s.ub1*mt.DelTemp)
		td.uc = s.uc * (1.0 + s.uc1*mt.DelTemp)
		td.ud = s.ud * (1.0 + s.ud1*mt.DelTemp)
		td.vsattemp = s.vsat * (1.0 - s.at*mt.DelTemp)
		t10 = s.prt * mt.DelTemp
	}

	m.applyStress(td, s, lay, rep)
	m.applyWellProximity(td, s, lay)

	if td.u0temp <= 0 {
		rep.Warnf(diag.KindTemperature, "model %s: mobility %g is not positive at %gK, clamped", m.Name, td.u0temp, tempK)
		td.u0temp = 1.0e-6
	}
	if td.vsattemp <= 0 {
		rep.Warnf(diag.KindTemperature, "model %s: saturation velocity %g is not positive at %gK, clamped", m.Name, td.vsattemp, tempK)
		td.vsattemp = 1.0e3
	}

	td.k2ox = td.k2 * m.TOXE / m.TOXM

	// Flat band at zero bias from the shifted threshold
	tmp := m.factor1 * s.sqrtXdep0
	tmp1 := s.vbi - s.phi
	narrow := s.dvt0w * shortChannelFactor(s.dvt1w*s.weff*s.leff/tmp) * tmp1
	short := s.dvt0 * shortChannelFactor(s.dvt1*s.leff/tmp) * tmp1
	t4 := m.TOXE * s.phi / (s.weff + s.w0)
	t0 := math.Sqrt(1.0 + s.lpe0/s.leff)
	t5 := s.k1ox*(t0-1.0)*s.sqrtPhi + (s.kt1+s.kt1l/s.leff)*td.tempRatio
	td.vfbzb = typ*td.vth0 - short - narrow + s.k3*t4 + t5 - s.phi - s.k1*s.sqrtPhi

	td.vtfbphi1 = math.Max(typ*td.vth0-s.vfb-s.phi, 0)
	td.vtfbphi2 = math.Max(4.0*(typ*td.vth0-td.vfbzb-s.phi), 0)

	powWeffWr := math.Pow(s.weffCJ*1.0e6, s.wr) * s.Key.NF
	rdsw := s.rdsw + t10
	if m.TEMPMOD != 0 {
		rdsw = s.rdsw * (1.0 + t10)
	}
	td.rds0 = rdsw * s.Key.NF / powWeffWr
	if td.rds0 < 0 {
		rep.Warnf(diag.KindTemperature, "model %s: rds0 %g is negative at %gK, clamped to 0", m.Name, td.rds0, tempK)
		td.rds0 = 0
	}
	td.rdswmin = math.Max((m.RDSWMIN+t10)*s.Key.NF/powWeffWr, 0)
	td.rd0 = math.Max((s.rdw+t10)/powWeffWr, 0)
	td.rs0 = math.Max((s.rsw+t10)/powWeffWr, 0)
	td.rdwmin = math.Max((m.RDWMIN+t10)/powWeffWr, 0)
	td.rswmin = math.Max((m.RSWMIN+t10)/powWeffWr, 0)

	td.tconst = td.u0temp * m.ELM / (m.coxe * s.weffCV * s.leffCV * s.leffCV)

	td.source = m.junctionAt(&mt.source, s, lay.AS, lay.PS, rep)
	td.drain = m.junctionAt(&mt.drain, s, lay.AD, lay.PD, rep)
	return td, nil
}

// applyStress shifts mobility, saturation velocity, vth0, k2 and eta0 by
// the length-of-diffusion stress model.
func (m *Model) applyStress(td *TemperatureDerived, s *SizeDependParam, lay Layout, rep diag.Reporter) {
	nf := s.Key.NF
	if lay.SA <= 0 || lay.SB <= 0 || (nf > 1 && lay.SD <= 0) {
		return
	}

	ldrn := s.Key.L
	wnew := s.Key.W/nf + m.XW
	lnew := s.lnew

	var invSA, invSB float64
	for i := 0; i < int(nf); i++ {
		fi := float64(i)
		invSA += 1.0 / nf / (lay.SA + 0.5*ldrn + fi*(lay.SD+ldrn))
		invSB += 1.0 / nf / (lay.SB + 0.5*ldrn + fi*(lay.SD+ldrn))
	}
	invSAref := 1.0 / (m.SAREF + 0.5*ldrn)
	invSBref := 1.0 / (m.SBREF + 0.5*ldrn)
	invODref := invSAref + invSBref
	invOD := invSA + invSB

	wtmp := wnew + m.WLOD
	t0 := math.Pow(lnew, m.LLODKU0)
	t1 := math.Pow(wtmp, m.WLODKU0)
	ku0 := 1.0 + m.LKU0/t0 + m.WKU0/t1 + m.PKU0/(t0*t1)

	t0 = math.Pow(lnew, m.LLODVTH)
	t1 = math.Pow(wtmp, m.WLODVTH)
	kvth0 := 1.0 + m.LKVTH0/t0 + m.WKVTH0/t1 + m.PKVTH0/(t0*t1)
	kvth0 = math.Sqrt(kvth0*kvth0 + 1.0e-9)

	kvsat := m.KVSAT
	if kvsat < -1.0 {
		rep.Warnf(diag.KindParameter, "model %s: kvsat = %g below -1, clamped", m.Name, kvsat)
		kvsat = -1.0
	} else if kvsat > 1.0 {
		rep.Warnf(diag.KindParameter, "model %s: kvsat = %g above 1, clamped", m.Name, kvsat)
		kvsat = 1.0
	}

	ku0temp := ku0*(1.0+m.TKU0*td.TRatio) + 1.0e-9
	rhoRef := m.KU0 / ku0temp * invODref
	rho := m.KU0 / ku0temp * invOD

	td.u0temp *= (1.0 + rho) / (1.0 + rhoRef)
	td.vsattemp *= (1.0 + kvsat*rho) / (1.0 + kvsat*rhoRef)

	offset := invOD - invODref
	td.vth0 += m.KVTH0 / kvth0 * offset
	td.k2 += m.STK2 / math.Pow(kvth0, m.LODK2) * offset
	td.eta0 += m.STETA0 / math.Pow(kvth0, m.LODETA0) * offset
}

// applyWellProximity shifts vth0, k2 and mobility by the effective
// distance to the well edge.
func (m *Model) applyWellProximity(td *TemperatureDerived, s *SizeDependParam, lay Layout) {
	if m.WPEMOD == 0 {
		return
	}
	sca, scb, scc := lay.SCA, lay.SCB, lay.SCC
	if sca == 0 && scb == 0 && scc == 0 && lay.SC > 0 {
		wdrn := s.Key.W / s.Key.NF
		t1 := lay.SC + wdrn
		t2 := 1.0 / m.SCREF
		sca = m.SCREF * m.SCREF / (lay.SC * t1)
		scb = ((0.1*lay.SC+0.01*m.SCREF)*math.Exp(-10.0*lay.SC*t2) -
			(0.1*t1+0.01*m.SCREF)*math.Exp(-10.0*t1*t2)) / wdrn
		scc = ((0.05*lay.SC+0.0025*m.SCREF)*math.Exp(-20.0*lay.SC*t2) -
			(0.05*t1+0.0025*m.SCREF)*math.Exp(-20.0*t1*t2)) / wdrn
	}
	sceff := sca + m.WEB*scb + m.WEC*scc
	td.vth0 += s.kvth0we * sceff
	td.k2 += s.k2we * sceff
	td.u0temp *= 1.0 + s.ku0we*sceff
}

func (m *Model) junctionAt(jt *junctionTemp, s *SizeDependParam, area, perim float64, rep diag.Reporter) junction {
	gateEdge := s.weffCJ * s.Key.NF
	peff := perim
	if m.PERMOD == 1 {
		peff = perim - gateEdge
		if peff < 0 {
			peff = 0
		}
	}

	j := junction{
		nvtm: jt.nvtm,
		pb:   jt.pb, pbsw: jt.pbsw, pbswg: jt.pbswg,
		mj: jt.mj, mjsw: jt.mjsw, mjswg: jt.mjswg,
		czb:    jt.cj * area,
		czbsw:  jt.cjsw * peff,
		czbswg: jt.cjswg * gateEdge,
	}
	j.isat = area*jt.js + peff*jt.jsw + gateEdge*jt.jswg
	j.vcrit = device.Vcrit(j.nvtm, j.isat)
	if j.isat <= 0 {
		return j
	}

	j.bv, j.xjbv = jt.bv, jt.xjbv
	if jt.bv > 0 {
		t0 := -jt.bv / j.nvtm
		if t0 < -expThreshold {
			j.xExpBV = jt.xjbv * minExp
		} else {
			j.xExpBV = jt.xjbv * math.Exp(t0)
		}
	}

	j.vjsmFwd = math.Inf(1)
	j.vjsmRev = math.Inf(-1)
	switch m.DIOMOD {
	case 1:
		if jt.ijthFwd > 0 {
			j.vjsmFwd = ijthKnee(j.nvtm, jt.ijthFwd, j.isat, 0)
			j.ivjsmFwd = j.isat * math.Exp(j.vjsmFwd/j.nvtm)
			j.sslpFwd = j.ivjsmFwd / j.nvtm
		}
	case 2:
		if jt.ijthFwd > 0 {
			j.vjsmFwd = ijthKnee(j.nvtm, jt.ijthFwd, j.isat, j.xExpBV)
			t0 := math.Exp(j.vjsmFwd / j.nvtm)
			j.ivjsmFwd = j.isat * (t0 - j.xExpBV/t0 + j.xExpBV - 1.0)
			j.sslpFwd = j.isat * (t0 + j.xExpBV/t0) / j.nvtm
		}
		if j.xExpBV > 0 && jt.xjbv > 0 {
			t2 := jt.ijthRev / j.isat
			if t2 <= 1.0 {
				rep.Warnf(diag.KindParameter, "model %s: ijthrev too small, set to 10 times the saturation current", m.Name)
				t2 = 10.0
			}
			j.vjsmRev = -jt.bv - j.nvtm*math.Log((t2-1.0)/jt.xjbv)
			t1 := jt.xjbv * math.Exp(-(jt.bv+j.vjsmRev)/j.nvtm)
			j.ivjsmRev = j.isat * (1.0 + t1)
			j.sslpRev = -j.isat * t1 / j.nvtm
		}
	}
	return j
}

// ijthKnee is the junction voltage where the diode current, breakdown
// term included, reaches ijth.
func ijthKnee(nvtm, ijth, isat, xExpBV float64) float64 {
	tb := 1.0 + ijth/isat - xExpBV
	tcc := tb + math.Sqrt(tb*tb+4.0*xExpBV)
	return nvtm * math.Log(0.5*tcc)
}
