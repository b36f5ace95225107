package bsim4

import (
	"fmt"
	"math"

	"github.com/edp1096/toy-bsim4/internal/consts"
	"github.com/edp1096/toy-bsim4/pkg/diag"
)

const (
	expThreshold = 34.0
	maxExp       = 5.834617425e14
	minExp       = 1.713908431e-15
)

// GeometryKey identifies one drawn geometry. Equal keys share one
// SizeDependParam.
type GeometryKey struct {
	L, W, NF float64
}

// SizeDependParam is the coefficient set binned for one geometry. It is
// never modified after LookupOrDerive returns it.
type SizeDependParam struct {
	Key GeometryKey

	lnew                            float64
	leff, weff, leffCV, weffCV      float64
	weffCJ                          float64
	invL, invW, invLW               float64
	vth0, k1, k2, k3, k3b, w0       float64
	lpe0, lpeb, dvtp0, dvtp1        float64
	dvt0, dvt1, dvt2                float64
	dvt0w, dvt1w, dvt2w, dsub       float64
	drout, ndep, nsd, ngate, phin   float64
	xj, vfb                         float64
	cdsc, cdscb, cdscd, cit         float64
	nfactor, voff, minv, eta0, etab float64
	u0, ua, ub, uc, ud, eu, vsat    float64
	a0, ags, a1, a2, b0, b1, keta   float64
	dwg, dwb                        float64
	rdsw, rsw, rdw, prwg, prwb, wr  float64
	pclm, pdibl1, pdibl2, pdiblb    float64
	fprout, pdits, pditsd           float64
	pscbe1, pscbe2, pvag, delta     float64
	lambda, vtl, xn                 float64
	alpha0, alpha1, beta0           float64
	agidl, bgidl, cgidl, egidl      float64
	agisl, bgisl, cgisl, egisl      float64
	vfbsdoff                        float64
	aigc, bigc, cigc                float64
	aigsd, bigsd, cigsd, nigc       float64
	aigbacc, bigbacc, cigbacc       float64
	nigbacc                         float64
	aigbinv, bigbinv, cigbinv       float64
	eigbinv, nigbinv                float64
	pigcd, xrcrg1, xrcrg2           float64
	clc, cle, vfbcv, acde, moin     float64
	noff, voffcv                    float64
	kt1, kt1l, kt2, ute             float64
	ua1, ub1, uc1, ud1, at, prt     float64
	kvth0we, k2we, ku0we            float64

	// Derived, temperature independent
	phi, sqrtPhi, xdep0, sqrtXdep0 float64
	litl, vbi, vfbsd, cdep0, ldeb  float64
	k1ox, k2ox, vbsc               float64
	theta0vb0, thetaRout           float64
	abulkCVfactor                  float64
	toxRatio, toxRatioEdge         float64
	aechvb, bechvb                 float64
	aechvbEdge, bechvbEdge         float64
	cgso, cgdo, cgbo               float64
	mstar, voffcbn                 float64
	pigcdGiven                     bool
}

// LookupOrDerive returns the coefficient set for key, deriving and caching
// it on first use. A non-positive effective geometry is fatal.
func (m *Model) LookupOrDerive(key GeometryKey, rep diag.Reporter) (*SizeDependParam, error) {
	if !m.setupDone {
		return nil, fmt.Errorf("model %s: lookup before setup", m.Name)
	}

	m.mu.RLock()
	s, ok := m.sizes[key]
	m.mu.RUnlock()
	if ok {
		return s, nil
	}

	if rep == nil {
		rep = diag.Discard
	}
	s, err := m.derive(key, rep)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.sizes[key]; ok {
		return prev, nil
	}
	m.sizes[key] = s
	return s, nil
}

// CachedGeometries reports how many geometries have been derived.
func (m *Model) CachedGeometries() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sizes)
}

func (m *Model) derive(key GeometryKey, rep diag.Reporter) (*SizeDependParam, error) {
	if key.NF < 1 {
		return nil, rep.Fatalf(diag.KindGeometry, "model %s: nf = %g must be at least 1", m.Name, key.NF)
	}

	s := &SizeDependParam{Key: key}

	lnew := key.L + m.XL
	wnew := key.W/key.NF + m.XW
	if lnew <= 0 || wnew <= 0 {
		return nil, rep.Fatalf(diag.KindGeometry, "model %s: drawn geometry L=%g W=%g is not positive", m.Name, key.L, key.W)
	}
	s.lnew = lnew

	t0 := math.Pow(lnew, m.LLN)
	t1 := math.Pow(wnew, m.LWN)
	dl := m.LINT + m.LL/t0 + m.LW/t1 + m.LWL/(t0*t1)
	dlc := m.DLC + m.LLC/t0 + m.LWC/t1 + m.LWLC/(t0*t1)

	t2 := math.Pow(lnew, m.WLN)
	t3 := math.Pow(wnew, m.WWN)
	dw := m.WINT + m.WL/t2 + m.WW/t3 + m.WWL/(t2*t3)
	tmp := m.WLC/t2 + m.WWC/t3 + m.WWLC/(t2*t3)
	dwc := m.DWC + tmp
	dwj := m.DWJ + tmp

	s.leff = lnew - 2.0*dl
	s.weff = wnew - 2.0*dw
	s.leffCV = lnew - 2.0*dlc
	s.weffCV = wnew - 2.0*dwc
	s.weffCJ = wnew - 2.0*dwj

	for _, c := range []struct {
		name  string
		value float64
	}{
		{"effective channel length", s.leff},
		{"effective channel width", s.weff},
		{"effective channel length for C-V", s.leffCV},
		{"effective channel width for C-V", s.weffCV},
		{"effective junction width", s.weffCJ},
	} {
		if c.value <= 0 {
			return nil, rep.Fatalf(diag.KindGeometry, "model %s: %s = %g <= 0 (L=%g W=%g NF=%g)",
				m.Name, c.name, c.value, key.L, key.W, key.NF)
		}
	}

	binScale := 1.0
	if m.BINUNIT == 1 {
		binScale = 1.0e6
	}
	s.invL = math.Pow(s.leff*binScale, -m.BINLEXP)
	s.invW = math.Pow(s.weff*binScale, -m.BINWEXP)
	s.invLW = s.invL * s.invW

	m.bin(s)
	m.deriveDependent(s, rep)
	return s, nil
}

func (m *Model) bin(s *SizeDependParam) {
	sc := func(b binned) float64 { return b.scale(s.invL, s.invW, s.invLW) }

	s.vth0, s.k1, s.k2, s.k3, s.k3b, s.w0 = sc(m.VTH0), sc(m.K1), sc(m.K2), sc(m.K3), sc(m.K3B), sc(m.W0)
	s.lpe0, s.lpeb, s.dvtp0, s.dvtp1 = sc(m.LPE0), sc(m.LPEB), sc(m.DVTP0), sc(m.DVTP1)
	s.dvt0, s.dvt1, s.dvt2 = sc(m.DVT0), sc(m.DVT1), sc(m.DVT2)
	s.dvt0w, s.dvt1w, s.dvt2w, s.dsub = sc(m.DVT0W), sc(m.DVT1W), sc(m.DVT2W), sc(m.DSUB)
	s.drout, s.ndep, s.nsd, s.ngate, s.phin = sc(m.DROUT), sc(m.NDEP), sc(m.NSD), sc(m.NGATE), sc(m.PHIN)
	s.xj, s.vfb = sc(m.XJ), sc(m.VFB)
	s.cdsc, s.cdscb, s.cdscd, s.cit = sc(m.CDSC), sc(m.CDSCB), sc(m.CDSCD), sc(m.CIT)
	s.nfactor, s.voff, s.minv, s.eta0, s.etab = sc(m.NFACTOR), sc(m.VOFF), sc(m.MINV), sc(m.ETA0), sc(m.ETAB)
	s.u0, s.ua, s.ub, s.uc, s.ud, s.eu, s.vsat = sc(m.U0), sc(m.UA), sc(m.UB), sc(m.UC), sc(m.UD), sc(m.EU), sc(m.VSAT)
	s.a0, s.ags, s.a1, s.a2, s.b0, s.b1, s.keta = sc(m.A0), sc(m.AGS), sc(m.A1), sc(m.A2), sc(m.B0), sc(m.B1), sc(m.KETA)
	s.dwg, s.dwb = sc(m.DWG), sc(m.DWB)
	s.rdsw, s.rsw, s.rdw, s.prwg, s.prwb, s.wr = sc(m.RDSW), sc(m.RSW), sc(m.RDW), sc(m.PRWG), sc(m.PRWB), sc(m.WR)
	s.pclm, s.pdibl1, s.pdibl2, s.pdiblb = sc(m.PCLM), sc(m.PDIBL1), sc(m.PDIBL2), sc(m.PDIBLB)
	s.fprout, s.pdits, s.pditsd = sc(m.FPROUT), sc(m.PDITS), sc(m.PDITSD)
	s.pscbe1, s.pscbe2, s.pvag, s.delta = sc(m.PSCBE1), sc(m.PSCBE2), sc(m.PVAG), sc(m.DELTA)
	s.lambda, s.vtl, s.xn = sc(m.LAMBDA), sc(m.VTL), sc(m.XN)
	s.alpha0, s.alpha1, s.beta0 = sc(m.ALPHA0), sc(m.ALPHA1), sc(m.BETA0)
	s.agidl, s.bgidl, s.cgidl, s.egidl = sc(m.AGIDL), sc(m.BGIDL), sc(m.CGIDL), sc(m.EGIDL)
	s.agisl, s.bgisl, s.cgisl, s.egisl = sc(m.AGISL), sc(m.BGISL), sc(m.CGISL), sc(m.EGISL)
	s.vfbsdoff = sc(m.VFBSDOFF)
	s.aigc, s.bigc, s.cigc = sc(m.AIGC), sc(m.BIGC), sc(m.CIGC)
	s.aigsd, s.bigsd, s.cigsd, s.nigc = sc(m.AIGSD), sc(m.BIGSD), sc(m.CIGSD), sc(m.NIGC)
	s.aigbacc, s.bigbacc, s.cigbacc, s.nigbacc = sc(m.AIGBACC), sc(m.BIGBACC), sc(m.CIGBACC), sc(m.NIGBACC)
	s.aigbinv, s.bigbinv, s.cigbinv = sc(m.AIGBINV), sc(m.BIGBINV), sc(m.CIGBINV)
	s.eigbinv, s.nigbinv = sc(m.EIGBINV), sc(m.NIGBINV)
	s.pigcd, s.xrcrg1, s.xrcrg2 = sc(m.PIGCD), sc(m.XRCRG1), sc(m.XRCRG2)
	s.clc, s.cle, s.vfbcv, s.acde, s.moin = sc(m.CLC), sc(m.CLE), sc(m.VFBCV), sc(m.ACDE), sc(m.MOIN)
	s.noff, s.voffcv = sc(m.NOFF), sc(m.VOFFCV)
	s.kt1, s.kt1l, s.kt2, s.ute = sc(m.KT1), sc(m.KT1L), sc(m.KT2), sc(m.UTE)
	s.ua1, s.ub1, s.uc1, s.ud1, s.at, s.prt = sc(m.UA1), sc(m.UB1), sc(m.UC1), sc(m.UD1), sc(m.AT), sc(m.PRT)
	s.kvth0we, s.k2we, s.ku0we = sc(m.KVTH0WE), sc(m.K2WE), sc(m.KU0WE)
	s.pigcdGiven = m.given["pigcd"]

	if s.u0 > 1.0 {
		s.u0 /= 1.0e4
	}
}

// deriveDependent computes the geometry dependent quantities that do not
// scale linearly, at the nominal temperature.
func (m *Model) deriveDependent(s *SizeDependParam, rep diag.Reporter) {
	typ := float64(m.Type)
	vtm0 := m.vtm0

	s.abulkCVfactor = 1.0 + math.Pow(s.clc/s.leffCV, s.cle)

	s.cgdo = (m.CGDO + m.CF.scale(s.invL, s.invW, s.invLW)) * s.weffCV * s.Key.NF
	s.cgso = (m.CGSO + m.CF.scale(s.invL, s.invW, s.invLW)) * s.weffCV * s.Key.NF
	s.cgbo = m.CGBO * s.leffCV * s.Key.NF

	s.phi = vtm0*math.Log(s.ndep/m.ni) + s.phin + 0.4
	if s.phi <= 0 {
		rep.Warnf(diag.KindParameter, "model %s: phi = %g is not positive, clamped", m.Name, s.phi)
		s.phi = 0.1
	}
	s.sqrtPhi = math.Sqrt(s.phi)
	s.xdep0 = math.Sqrt(2.0*m.epssub/(consts.CHARGE*s.ndep*1.0e6)) * s.sqrtPhi
	s.sqrtXdep0 = math.Sqrt(s.xdep0)
	s.litl = math.Sqrt(3.0 * 3.9 / m.EPSROX * s.xj * m.TOXE)
	s.vbi = vtm0 * math.Log(s.nsd*s.ndep/(m.ni*m.ni))
	if s.ngate > 0 {
		s.vfbsd = vtm0 * math.Log(s.ngate/s.nsd)
	}
	s.cdep0 = math.Sqrt(consts.CHARGE * m.epssub * s.ndep * 1.0e6 / 2.0 / s.phi)
	s.ldeb = math.Sqrt(m.epssub*vtm0/(consts.CHARGE*s.ndep*1.0e6)) / 3.0

	m.bodyEffect(s)

	s.k1ox = s.k1 * m.TOXE / m.TOXM
	s.k2ox = s.k2 * m.TOXE / m.TOXM

	if s.k2 < 0 {
		t0 := 0.5 * s.k1 / s.k2
		s.vbsc = 0.9 * (s.phi - t0*t0)
		if s.vbsc > -3.0 {
			s.vbsc = -3.0
		} else if s.vbsc < -30.0 {
			s.vbsc = -30.0
		}
	} else {
		s.vbsc = -30.0
	}
	if vbm := m.VBM.scale(s.invL, s.invW, s.invLW); s.vbsc > vbm {
		s.vbsc = vbm
	}

	if !m.given["vfb"] {
		s.vfb = typ*s.vth0 - s.phi - s.k1*s.sqrtPhi
	}

	tmp := m.factor1 * s.sqrtXdep0
	s.theta0vb0 = shortChannelFactor(s.dsub * s.leff / tmp)
	s.thetaRout = s.pdibl1*shortChannelFactor(s.drout*s.leff/tmp) + s.pdibl2

	ntox := m.NTOX.scale(s.invL, s.invW, s.invLW)
	poxedge := m.POXEDGE.scale(s.invL, s.invW, s.invLW)
	s.toxRatio = math.Exp(ntox*math.Log(m.TOXREF/m.TOXE)) / m.TOXE / m.TOXE
	s.toxRatioEdge = math.Exp(ntox*math.Log(m.TOXREF/(m.TOXE*poxedge))) / m.TOXE / m.TOXE / poxedge / poxedge

	if m.Type == NMOS {
		s.aechvb, s.bechvb = 4.97232e-7, 7.45669e11
	} else {
		s.aechvb, s.bechvb = 3.42537e-7, 1.16645e12
	}
	s.aechvbEdge = s.aechvb * s.weff * m.DLCIG * s.toxRatioEdge
	s.bechvbEdge = -s.bechvb * m.TOXE * poxedge
	s.aechvb *= s.weff * s.leff * s.toxRatio
	s.bechvb *= -m.TOXE

	s.mstar = 0.5 + math.Atan(s.minv)/math.Pi
	s.voffcbn = s.voff + m.VOFFL/s.leff
}

// bodyEffect fills k1/k2 from the doping profile when neither is given.
func (m *Model) bodyEffect(s *SizeDependParam) {
	k1Given, k2Given := m.given["k1"], m.given["k2"]
	if k1Given || k2Given {
		return
	}

	sc := func(b binned) float64 { return b.scale(s.invL, s.invW, s.invLW) }
	nsub := sc(m.NSUB)
	xt := sc(m.XT)
	vbm := sc(m.VBM)

	vbx := sc(m.VBX)
	if !m.given["vbx"] {
		vbx = s.phi - 7.7348e-4*s.ndep*xt*xt
	}
	if vbx > 0 {
		vbx = -vbx
	}
	gamma1 := sc(m.GAMMA1)
	if !m.given["gamma1"] {
		gamma1 = 5.753e-12 * math.Sqrt(s.ndep) / m.coxe
	}
	gamma2 := sc(m.GAMMA2)
	if !m.given["gamma2"] {
		gamma2 = 5.753e-12 * math.Sqrt(nsub) / m.coxe
	}

	t0 := gamma1 - gamma2
	t1 := math.Sqrt(s.phi-vbx) - s.sqrtPhi
	t2 := math.Sqrt(s.phi*(s.phi-vbm)) - s.phi
	s.k2 = t0 * t1 / (2.0*t2 + vbm)
	s.k1 = gamma2 - 2.0*s.k2*math.Sqrt(s.phi-vbm)
}

// shortChannelFactor is 1/(2cosh(x)-2) with the exponential clamp.
func shortChannelFactor(x float64) float64 {
	if x < expThreshold {
		t1 := math.Exp(x)
		t2 := t1 - 1.0
		t3 := t2 * t2
		t4 := t3 + 2.0*t1*minExp
		return t1 / t4
	}
	return 1.0 / (maxExp - 2.0)
}
