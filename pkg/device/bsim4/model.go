package bsim4

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/edp1096/toy-bsim4/internal/consts"
	"github.com/edp1096/toy-bsim4/pkg/diag"
)

const (
	NMOS = 1
	PMOS = -1
)

// binned is a coefficient scaled with effective length and width:
// Base + L/L^lexp + W/W^wexp + P/(L^lexp W^wexp).
type binned struct {
	Base, L, W, P float64
}

func (b binned) scale(invL, invW, invLW float64) float64 {
	return b.Base + b.L*invL + b.W*invW + b.P*invLW
}

// Model holds the parameters of one BSIM4 .model card. It is immutable
// after Setup and shared by every instance of the card.
type Model struct {
	Name string
	Type int // NMOS or PMOS

	// Model selectors
	MOBMOD   int // Mobility model: 0, 1, 2
	CAPMOD   int // Charge model: 0 simple, 2 charge thickness
	DIOMOD   int // Junction diode: 0 breakdown, 1 linear extension, 2 breakdown smoothing
	TEMPMOD  int // Temperature model: 0 additive, 1 multiplicative
	RDSMOD   int // 0 internal Rds, 1 external bias-dependent Rd/Rs
	RGATEMOD int // 0 none, 1 linear, 2 nonlinear, 3 two resistors
	RBODYMOD int // 0 none, 1 body resistor network
	TRNQSMOD int // transient NQS charge node
	ACNQSMOD int
	IGCMOD   int // gate-to-channel tunneling: 0 off, 1 vth0, 2 vth
	IGBMOD   int // gate-to-body tunneling
	GIDLMOD  int
	PERMOD   int // 1: perimeter excludes the gate edge
	MTRLMOD  int // 1: toxp derived from EOT
	BINUNIT  int // 1: binning in microns
	WPEMOD   int // well proximity effect

	// Process
	TOXE     float64 // Electrical gate oxide thickness (m)
	TOXP     float64 // Physical gate oxide thickness (m)
	TOXM     float64 // Oxide thickness at which parameters are extracted (m)
	DTOX     float64 // toxe - toxp (m)
	EPSROX   float64 // Gate dielectric relative permittivity
	EOT      float64 // Equivalent SiO2 thickness (m)
	VDDEOT   float64 // Bias at which EOT is extracted (V)
	EPSRSUB  float64 // Substrate relative permittivity
	EPSRGATE float64 // Gate relative permittivity
	NI0SUB   float64 // Intrinsic carrier density at 300.15K (cm^-3)
	BG0SUB   float64 // Band gap at 0K (eV)
	TBGASUB  float64 // Band gap temperature coefficient (eV/K)
	TBGBSUB  float64 // Band gap temperature coefficient (K)
	ADOS     float64 // Charge centroid parameter
	BDOS     float64 // Charge centroid parameter
	TOXREF   float64 // Tunneling reference oxide thickness (m)
	TNOM     float64 // Nominal temperature (K)
	BINLEXP  float64 // Length binning exponent
	BINWEXP  float64 // Width binning exponent
	VOFFL    float64 // Length dependence of voff (mV)
	PDITSL   float64 // Length dependence of DITS (1/m)
	LC       float64 // Backscattering critical length (m)
	ELM      float64 // Elmore constant of the channel

	// Length and width offsets
	LINT, LL, LW, LWL, LLN, LWN float64
	WINT, WL, WW, WWL, WLN, WWN float64
	DLC, LLC, LWC, LWLC         float64
	DWC, WLC, WWC, WWLC         float64
	DWJ, DLCIG, XL, XW          float64

	// Junctions, source side then drain side
	JSS, JSWS, JSWGS, NJS, XTIS, BVS, XJBVS     float64
	JSD, JSWD, JSWGD, NJD, XTID, BVD, XJBVD     float64
	IJTHSFWD, IJTHSREV, IJTHDFWD, IJTHDREV      float64
	CJS, CJSWS, CJSWGS, MJS, MJSWS, MJSWGS      float64
	CJD, CJSWD, CJSWGD, MJD, MJSWD, MJSWGD      float64
	PBS, PBSWS, PBSWGS, PBD, PBSWD, PBSWGD      float64
	TPB, TPBSW, TPBSWG, TCJ, TCJSW, TCJSWG      float64
	DMCG, DMCI, DMDG, DMCGT                     float64
	CGSO, CGDO, CGBO, XPART                     float64
	RSH, RSHG, RDSWMIN, RDWMIN, RSWMIN          float64
	RBPB, RBPD, RBPS, RBDB, RBSB, GBMIN         float64
	XGW, XGL                                    float64

	// Stress (length of diffusion)
	SAREF, SBREF, WLOD, KU0, KVSAT, KVTH0, TKU0 float64
	LLODKU0, WLODKU0, LLODVTH, WLODVTH          float64
	LKU0, WKU0, PKU0, LKVTH0, WKVTH0, PKVTH0    float64
	STK2, LODK2, STETA0, LODETA0                float64

	// Well proximity
	WEB, WEC, SCREF float64

	// Binned coefficients
	VTH0, K1, K2, K3, K3B, W0, LPE0, LPEB, DVTP0, DVTP1 binned
	DVT0, DVT1, DVT2, DVT0W, DVT1W, DVT2W, DSUB, DROUT  binned
	NDEP, NSUB, NSD, NGATE, PHIN, XJ, VFB, VBM, XT      binned
	GAMMA1, GAMMA2, VBX                                 binned
	CDSC, CDSCB, CDSCD, CIT, NFACTOR, VOFF, MINV        binned
	ETA0, ETAB, U0, UA, UB, UC, UD, EU, VSAT            binned
	A0, AGS, A1, A2, B0, B1, KETA, DWG, DWB             binned
	RDSW, RSW, RDW, PRWG, PRWB, WR                      binned
	PCLM, PDIBL1, PDIBL2, PDIBLB, FPROUT, PDITS, PDITSD binned
	PSCBE1, PSCBE2, PVAG, DELTA, LAMBDA, VTL, XN        binned
	ALPHA0, ALPHA1, BETA0                               binned
	AGIDL, BGIDL, CGIDL, EGIDL, AGISL, BGISL, CGISL     binned
	EGISL, VFBSDOFF                                     binned
	AIGC, BIGC, CIGC, AIGSD, BIGSD, CIGSD, NIGC         binned
	AIGBACC, BIGBACC, CIGBACC, NIGBACC                  binned
	AIGBINV, BIGBINV, CIGBINV, EIGBINV, NIGBINV         binned
	NTOX, POXEDGE, PIGCD, XRCRG1, XRCRG2                binned
	CF, CLC, CLE, VFBCV, ACDE, MOIN, NOFF, VOFFCV       binned
	KT1, KT1L, KT2, UTE, UA1, UB1, UC1, UD1, AT, PRT    binned
	KVTH0WE, K2WE, KU0WE                                binned

	// Derived at Setup
	coxe, coxp, epssub, epsgate, factor1 float64
	vtm0, eg0, ni                        float64

	given map[string]bool

	mu        sync.RWMutex
	sizes     map[GeometryKey]*SizeDependParam
	temps     map[float64]*ModelTemp
	setupDone bool
}

func NewModel(name, typ string) (*Model, error) {
	m := &Model{
		Name:  name,
		given: make(map[string]bool),
		sizes: make(map[GeometryKey]*SizeDependParam),
		temps: make(map[float64]*ModelTemp),
	}
	switch strings.ToLower(typ) {
	case "nmos", "n", "":
		m.Type = NMOS
	case "pmos", "p":
		m.Type = PMOS
	default:
		return nil, fmt.Errorf("model %s: unknown type %q", name, typ)
	}
	m.setDefaultParameters()
	return m, nil
}

func (m *Model) setDefaultParameters() {
	nmos := m.Type == NMOS
	pick := func(n, p float64) float64 {
		if nmos {
			return n
		}
		return p
	}

	m.MOBMOD = 0
	m.CAPMOD = 2
	m.DIOMOD = 1
	m.PERMOD = 1
	m.BINUNIT = 1

	m.TOXE = 3.0e-9
	m.EPSROX = consts.EPSROX
	m.EOT = 1.5e-9
	m.VDDEOT = pick(1.5, -1.5)
	m.EPSRSUB = consts.EPSRSI
	m.EPSRGATE = consts.EPSRSI
	m.NI0SUB = 1.45e10
	m.BG0SUB = 1.16
	m.TBGASUB = 7.02e-4
	m.TBGBSUB = 1108.0
	m.ADOS = 1.0
	m.BDOS = 1.0
	m.TOXREF = 3.0e-9
	m.TNOM = consts.TNOM
	m.BINLEXP = 1.0
	m.BINWEXP = 1.0
	m.LC = 5.0e-9
	m.ELM = 5.0

	m.LLN, m.LWN, m.WLN, m.WWN = 1, 1, 1, 1

	m.JSS, m.NJS, m.XTIS, m.BVS, m.XJBVS = 1.0e-4, 1.0, 3.0, 10.0, 1.0
	m.IJTHSFWD, m.IJTHSREV = 0.1, 0.1
	m.CJS, m.MJS, m.MJSWS = 5.0e-4, 0.5, 0.33
	m.CJSWS = 5.0e-10
	m.PBS, m.PBSWS = 1.0, 1.0
	m.RSHG = 0.1
	m.RBPB, m.RBPD, m.RBPS, m.RBDB, m.RBSB = 50, 50, 50, 50, 50
	m.GBMIN = 1.0e-12
	m.SAREF, m.SBREF = 1.0e-6, 1.0e-6
	m.LODK2, m.LODETA0 = 1.0, 1.0
	m.SCREF = 1.0e-6

	m.VTH0.Base = pick(0.7, -0.7)
	m.K1.Base = 0.53
	m.K2.Base = -0.0186
	m.K3.Base = 80.0
	m.W0.Base = 2.5e-6
	m.LPE0.Base = 1.74e-7
	m.DVT0.Base = 2.2
	m.DVT1.Base = 0.53
	m.DVT2.Base = -0.032
	m.DVT1W.Base = 5.3e6
	m.DVT2W.Base = -0.032
	m.DROUT.Base = 0.56
	m.DSUB.Base = m.DROUT.Base
	m.NDEP.Base = 1.7e17
	m.NSUB.Base = 6.0e16
	m.NSD.Base = 1.0e20
	m.XJ.Base = 1.5e-7
	m.VFB.Base = -1.0
	m.VBM.Base = -3.0
	m.XT.Base = 1.55e-7
	m.CDSC.Base = 2.4e-4
	m.NFACTOR.Base = 1.0
	m.VOFF.Base = -0.08
	m.ETA0.Base = 0.08
	m.ETAB.Base = -0.07
	m.U0.Base = pick(0.067, 0.025)
	m.UA.Base = 1.0e-9
	m.UB.Base = 1.0e-19
	m.UC.Base = -0.0465e-9
	m.EU.Base = pick(1.67, 1.0)
	m.VSAT.Base = 8.0e4
	m.A0.Base = 1.0
	m.A2.Base = 1.0
	m.KETA.Base = -0.047
	m.RDSW.Base = 200.0
	m.RSW.Base = 100.0
	m.RDW.Base = 100.0
	m.PRWG.Base = 1.0
	m.WR.Base = 1.0
	m.PCLM.Base = 1.3
	m.PDIBL1.Base = 0.39
	m.PDIBL2.Base = 0.0086
	m.PSCBE1.Base = 4.24e8
	m.PSCBE2.Base = 1.0e-5
	m.DELTA.Base = 0.01
	m.VTL.Base = 2.0e5
	m.XN.Base = 3.0
	m.BGIDL.Base = 2.3e9
	m.CGIDL.Base = 0.5
	m.EGIDL.Base = 0.8
	m.AIGC.Base = pick(1.36e-2, 9.80e-3)
	m.BIGC.Base = pick(1.71e-3, 7.59e-4)
	m.CIGC.Base = pick(0.075, 0.03)
	m.AIGSD.Base = pick(1.36e-2, 9.80e-3)
	m.BIGSD.Base = pick(1.71e-3, 7.59e-4)
	m.CIGSD.Base = pick(0.075, 0.03)
	m.NIGC.Base = 1.0
	m.AIGBACC.Base = 1.36e-2
	m.BIGBACC.Base = 1.71e-3
	m.CIGBACC.Base = 0.075
	m.NIGBACC.Base = 1.0
	m.AIGBINV.Base = 1.11e-2
	m.BIGBINV.Base = 9.49e-4
	m.CIGBINV.Base = 6.0e-3
	m.EIGBINV.Base = 1.1
	m.NIGBINV.Base = 3.0
	m.NTOX.Base = 1.0
	m.POXEDGE.Base = 1.0
	m.PIGCD.Base = 1.0
	m.XRCRG1.Base = 12.0
	m.XRCRG2.Base = 1.0
	m.CLC.Base = 1.0e-7
	m.CLE.Base = 0.6
	m.VFBCV.Base = -1.0
	m.ACDE.Base = 1.0
	m.MOIN.Base = 15.0
	m.NOFF.Base = 1.0
	m.KT1.Base = -0.11
	m.KT2.Base = 0.022
	m.UTE.Base = -1.5
	m.UA1.Base = 1.0e-9
	m.UB1.Base = -1.0e-18
	m.UC1.Base = -0.056e-9
	m.AT.Base = 3.3e4
}

func (m *Model) scalarParams() map[string]*float64 {
	return map[string]*float64{
		"toxe": &m.TOXE, "toxp": &m.TOXP, "toxm": &m.TOXM, "dtox": &m.DTOX,
		"epsrox": &m.EPSROX, "eot": &m.EOT, "vddeot": &m.VDDEOT,
		"epsrsub": &m.EPSRSUB, "epsrgate": &m.EPSRGATE, "ni0sub": &m.NI0SUB,
		"bg0sub": &m.BG0SUB, "tbgasub": &m.TBGASUB, "tbgbsub": &m.TBGBSUB,
		"ados": &m.ADOS, "bdos": &m.BDOS, "toxref": &m.TOXREF,
		"binlexp": &m.BINLEXP, "binwexp": &m.BINWEXP, "voffl": &m.VOFFL,
		"pditsl": &m.PDITSL, "lc": &m.LC, "elm": &m.ELM,

		"lint": &m.LINT, "ll": &m.LL, "lw": &m.LW, "lwl": &m.LWL, "lln": &m.LLN, "lwn": &m.LWN,
		"wint": &m.WINT, "wl": &m.WL, "ww": &m.WW, "wwl": &m.WWL, "wln": &m.WLN, "wwn": &m.WWN,
		"dlc": &m.DLC, "llc": &m.LLC, "lwc": &m.LWC, "lwlc": &m.LWLC,
		"dwc": &m.DWC, "wlc": &m.WLC, "wwc": &m.WWC, "wwlc": &m.WWLC,
		"dwj": &m.DWJ, "dlcig": &m.DLCIG, "xl": &m.XL, "xw": &m.XW,

		"jss": &m.JSS, "jsws": &m.JSWS, "jswgs": &m.JSWGS, "njs": &m.NJS, "xtis": &m.XTIS,
		"bvs": &m.BVS, "xjbvs": &m.XJBVS,
		"jsd": &m.JSD, "jswd": &m.JSWD, "jswgd": &m.JSWGD, "njd": &m.NJD, "xtid": &m.XTID,
		"bvd": &m.BVD, "xjbvd": &m.XJBVD,
		"ijthsfwd": &m.IJTHSFWD, "ijthsrev": &m.IJTHSREV, "ijthdfwd": &m.IJTHDFWD, "ijthdrev": &m.IJTHDREV,
		"cjs": &m.CJS, "cjsws": &m.CJSWS, "cjswgs": &m.CJSWGS,
		"mjs": &m.MJS, "mjsws": &m.MJSWS, "mjswgs": &m.MJSWGS,
		"cjd": &m.CJD, "cjswd": &m.CJSWD, "cjswgd": &m.CJSWGD,
		"mjd": &m.MJD, "mjswd": &m.MJSWD, "mjswgd": &m.MJSWGD,
		"pbs": &m.PBS, "pbsws": &m.PBSWS, "pbswgs": &m.PBSWGS,
		"pbd": &m.PBD, "pbswd": &m.PBSWD, "pbswgd": &m.PBSWGD,
		"tpb": &m.TPB, "tpbsw": &m.TPBSW, "tpbswg": &m.TPBSWG,
		"tcj": &m.TCJ, "tcjsw": &m.TCJSW, "tcjswg": &m.TCJSWG,
		"dmcg": &m.DMCG, "dmci": &m.DMCI, "dmdg": &m.DMDG, "dmcgt": &m.DMCGT,
		"cgso": &m.CGSO, "cgdo": &m.CGDO, "cgbo": &m.CGBO, "xpart": &m.XPART,
		"rsh": &m.RSH, "rshg": &m.RSHG, "rdswmin": &m.RDSWMIN, "rdwmin": &m.RDWMIN, "rswmin": &m.RSWMIN,
		"rbpb": &m.RBPB, "rbpd": &m.RBPD, "rbps": &m.RBPS, "rbdb": &m.RBDB, "rbsb": &m.RBSB,
		"gbmin": &m.GBMIN, "xgw": &m.XGW, "xgl": &m.XGL,

		"saref": &m.SAREF, "sbref": &m.SBREF, "wlod": &m.WLOD, "ku0": &m.KU0,
		"kvsat": &m.KVSAT, "kvth0": &m.KVTH0, "tku0": &m.TKU0,
		"llodku0": &m.LLODKU0, "wlodku0": &m.WLODKU0, "llodvth": &m.LLODVTH, "wlodvth": &m.WLODVTH,
		"lku0": &m.LKU0, "wku0": &m.WKU0, "pku0": &m.PKU0,
		"lkvth0": &m.LKVTH0, "wkvth0": &m.WKVTH0, "pkvth0": &m.PKVTH0,
		"stk2": &m.STK2, "lodk2": &m.LODK2, "steta0": &m.STETA0, "lodeta0": &m.LODETA0,
		"web": &m.WEB, "wec": &m.WEC, "scref": &m.SCREF,
	}
}

func (m *Model) intParams() map[string]*int {
	return map[string]*int{
		"mobmod": &m.MOBMOD, "capmod": &m.CAPMOD, "diomod": &m.DIOMOD, "tempmod": &m.TEMPMOD,
		"rdsmod": &m.RDSMOD, "rgatemod": &m.RGATEMOD, "rbodymod": &m.RBODYMOD,
		"trnqsmod": &m.TRNQSMOD, "acnqsmod": &m.ACNQSMOD, "igcmod": &m.IGCMOD, "igbmod": &m.IGBMOD,
		"gidlmod": &m.GIDLMOD, "permod": &m.PERMOD, "mtrlmod": &m.MTRLMOD, "binunit": &m.BINUNIT,
		"wpemod": &m.WPEMOD,
	}
}

func (m *Model) binnedParams() map[string]*binned {
	return map[string]*binned{
		"vth0": &m.VTH0, "k1": &m.K1, "k2": &m.K2, "k3": &m.K3, "k3b": &m.K3B, "w0": &m.W0,
		"lpe0": &m.LPE0, "lpeb": &m.LPEB, "dvtp0": &m.DVTP0, "dvtp1": &m.DVTP1,
		"dvt0": &m.DVT0, "dvt1": &m.DVT1, "dvt2": &m.DVT2, "dvt0w": &m.DVT0W, "dvt1w": &m.DVT1W,
		"dvt2w": &m.DVT2W, "dsub": &m.DSUB, "drout": &m.DROUT,
		"ndep": &m.NDEP, "nsub": &m.NSUB, "nsd": &m.NSD, "ngate": &m.NGATE, "phin": &m.PHIN,
		"xj": &m.XJ, "vfb": &m.VFB, "vbm": &m.VBM, "xt": &m.XT,
		"gamma1": &m.GAMMA1, "gamma2": &m.GAMMA2, "vbx": &m.VBX,
		"cdsc": &m.CDSC, "cdscb": &m.CDSCB, "cdscd": &m.CDSCD, "cit": &m.CIT,
		"nfactor": &m.NFACTOR, "voff": &m.VOFF, "minv": &m.MINV,
		"eta0": &m.ETA0, "etab": &m.ETAB, "u0": &m.U0, "ua": &m.UA, "ub": &m.UB, "uc": &m.UC,
		"ud": &m.UD, "eu": &m.EU, "vsat": &m.VSAT,
		"a0": &m.A0, "ags": &m.AGS, "a1": &m.A1, "a2": &m.A2, "b0": &m.B0, "b1": &m.B1,
		"keta": &m.KETA, "dwg": &m.DWG, "dwb": &m.DWB,
		"rdsw": &m.RDSW, "rsw": &m.RSW, "rdw": &m.RDW, "prwg": &m.PRWG, "prwb": &m.PRWB, "wr": &m.WR,
		"pclm": &m.PCLM, "pdibl1": &m.PDIBL1, "pdibl2": &m.PDIBL2, "pdiblb": &m.PDIBLB,
		"fprout": &m.FPROUT, "pdits": &m.PDITS, "pditsd": &m.PDITSD,
		"pscbe1": &m.PSCBE1, "pscbe2": &m.PSCBE2, "pvag": &m.PVAG, "delta": &m.DELTA,
		"lambda": &m.LAMBDA, "vtl": &m.VTL, "xn": &m.XN,
		"alpha0": &m.ALPHA0, "alpha1": &m.ALPHA1, "beta0": &m.BETA0,
		"agidl": &m.AGIDL, "bgidl": &m.BGIDL, "cgidl": &m.CGIDL, "egidl": &m.EGIDL,
		"agisl": &m.AGISL, "bgisl": &m.BGISL, "cgisl": &m.CGISL, "egisl": &m.EGISL,
		"vfbsdoff": &m.VFBSDOFF,
		"aigc": &m.AIGC, "bigc": &m.BIGC, "cigc": &m.CIGC, "aigsd": &m.AIGSD, "bigsd": &m.BIGSD,
		"cigsd": &m.CIGSD, "nigc": &m.NIGC,
		"aigbacc": &m.AIGBACC, "bigbacc": &m.BIGBACC, "cigbacc": &m.CIGBACC, "nigbacc": &m.NIGBACC,
		"aigbinv": &m.AIGBINV, "bigbinv": &m.BIGBINV, "cigbinv": &m.CIGBINV, "eigbinv": &m.EIGBINV,
		"nigbinv": &m.NIGBINV,
		"ntox": &m.NTOX, "poxedge": &m.POXEDGE, "pigcd": &m.PIGCD, "xrcrg1": &m.XRCRG1, "xrcrg2": &m.XRCRG2,
		"cf": &m.CF, "clc": &m.CLC, "cle": &m.CLE, "vfbcv": &m.VFBCV, "acde": &m.ACDE, "moin": &m.MOIN,
		"noff": &m.NOFF, "voffcv": &m.VOFFCV,
		"kt1": &m.KT1, "kt1l": &m.KT1L, "kt2": &m.KT2, "ute": &m.UTE, "ua1": &m.UA1, "ub1": &m.UB1,
		"uc1": &m.UC1, "ud1": &m.UD1, "at": &m.AT, "prt": &m.PRT,
		"kvth0we": &m.KVTH0WE, "k2we": &m.K2WE, "ku0we": &m.KU0WE,
	}
}

// SetModelParameters applies a .model card. Keys are lower-case BSIM4
// names; binned coefficients accept the l/w/p prefixes. TNOM is in
// Celsius like every netlist temperature.
func (m *Model) SetModelParameters(params map[string]float64) error {
	if m.setupDone {
		return fmt.Errorf("model %s: parameters are frozen after setup", m.Name)
	}

	scalars := m.scalarParams()
	ints := m.intParams()
	bins := m.binnedParams()

	var unknown []string
	for key, value := range params {
		key = strings.ToLower(key)
		switch {
		case key == "level" || key == "version":
		case key == "type":
			if value < 0 {
				m.Type = PMOS
			} else {
				m.Type = NMOS
			}
		case key == "tnom":
			m.TNOM = value + consts.KELVIN
		case scalars[key] != nil:
			*scalars[key] = value
		case ints[key] != nil:
			*ints[key] = int(value)
		case bins[key] != nil:
			bins[key].Base = value
		case len(key) > 1 && bins[key[1:]] != nil:
			b := bins[key[1:]]
			switch key[0] {
			case 'l':
				b.L = value
			case 'w':
				b.W = value
			case 'p':
				b.P = value
			default:
				unknown = append(unknown, key)
				continue
			}
		default:
			unknown = append(unknown, key)
			continue
		}
		m.given[key] = true
	}

	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("model %s: unknown parameters: %s", m.Name, strings.Join(unknown, ", "))
	}
	return nil
}

func (m *Model) Given(key string) bool {
	return m.given[key]
}

// Setup validates selectors, fills dependent defaults and computes the
// temperature-independent constants. It must run before any lookup.
func (m *Model) Setup(rep diag.Reporter) error {
	if rep == nil {
		rep = diag.Discard
	}
	if m.setupDone {
		return nil
	}

	if m.TRNQSMOD != 0 && m.ACNQSMOD != 0 {
		return rep.Fatalf(diag.KindSelector, "model %s: trnqsMod and acnqsMod cannot both be on", m.Name)
	}

	m.MOBMOD = checkSelector(rep, "mobMod", m.MOBMOD, 0, 0, 1, 2)
	m.CAPMOD = checkSelector(rep, "capMod", m.CAPMOD, 2, 0, 2)
	m.DIOMOD = checkSelector(rep, "dioMod", m.DIOMOD, 1, 0, 1, 2)
	m.TEMPMOD = checkSelector(rep, "tempMod", m.TEMPMOD, 0, 0, 1)
	m.RDSMOD = checkSelector(rep, "rdsMod", m.RDSMOD, 0, 0, 1)
	m.RGATEMOD = checkSelector(rep, "rgateMod", m.RGATEMOD, 0, 0, 1, 2, 3)
	m.RBODYMOD = checkSelector(rep, "rbodyMod", m.RBODYMOD, 0, 0, 1)
	m.TRNQSMOD = checkSelector(rep, "trnqsMod", m.TRNQSMOD, 0, 0, 1)
	m.ACNQSMOD = checkSelector(rep, "acnqsMod", m.ACNQSMOD, 0, 0, 1)
	m.IGCMOD = checkSelector(rep, "igcMod", m.IGCMOD, 0, 0, 1, 2)
	m.IGBMOD = checkSelector(rep, "igbMod", m.IGBMOD, 0, 0, 1)
	m.PERMOD = checkSelector(rep, "perMod", m.PERMOD, 1, 0, 1)
	m.MTRLMOD = checkSelector(rep, "mtrlMod", m.MTRLMOD, 0, 0, 1)
	m.BINUNIT = checkSelector(rep, "binUnit", m.BINUNIT, 1, 0, 1)

	switch m.XPART {
	case 0, 0.4, 0.5, 1:
	default:
		rep.Warnf(diag.KindSelector, "model %s: xpart = %g snapped to the nearest partition", m.Name, m.XPART)
	}

	if m.MTRLMOD == 0 {
		if !m.given["toxp"] {
			m.TOXP = m.TOXE - m.DTOX
		}
	} else if !m.given["toxe"] {
		m.TOXE = m.EOT
	}
	if !m.given["toxm"] {
		m.TOXM = m.TOXE
	}
	if m.TOXE <= 0 {
		return rep.Fatalf(diag.KindParameter, "model %s: toxe = %g must be positive", m.Name, m.TOXE)
	}
	if m.TOXP <= 0 && m.MTRLMOD == 0 {
		return rep.Fatalf(diag.KindParameter, "model %s: toxp = %g must be positive", m.Name, m.TOXP)
	}
	if m.TOXM <= 0 {
		return rep.Fatalf(diag.KindParameter, "model %s: toxm = %g must be positive", m.Name, m.TOXM)
	}
	if m.TOXREF <= 0 {
		return rep.Fatalf(diag.KindParameter, "model %s: toxref = %g must be positive", m.Name, m.TOXREF)
	}

	// Dependent defaults
	if !m.given["dlc"] {
		m.DLC = m.LINT
	}
	if !m.given["dwc"] {
		m.DWC = m.WINT
	}
	if !m.given["dwj"] {
		m.DWJ = m.DWC
	}
	if !m.given["dlcig"] {
		m.DLCIG = m.LINT
	}
	if !m.given["llc"] {
		m.LLC = m.LL
	}
	if !m.given["lwc"] {
		m.LWC = m.LW
	}
	if !m.given["lwlc"] {
		m.LWLC = m.LWL
	}
	if !m.given["wlc"] {
		m.WLC = m.WL
	}
	if !m.given["wwc"] {
		m.WWC = m.WW
	}
	if !m.given["wwlc"] {
		m.WWLC = m.WWL
	}
	if !m.given["dsub"] {
		m.DSUB = m.DROUT
	}
	if !m.given["agisl"] {
		m.AGISL = m.AGIDL
		m.BGISL = m.BGIDL
		m.CGISL = m.CGIDL
		m.EGISL = m.EGIDL
	}
	if !m.given["dmci"] {
		m.DMCI = m.DMCG
	}
	if m.MOBMOD == 1 && !m.given["uc"] {
		m.UC.Base = -0.0465
	}
	if m.MOBMOD == 2 && !m.given["ua"] {
		m.UA.Base = 1.0e-15
	}

	m.fillDrainJunction()

	if m.NDEP.Base > 1.0e20 {
		m.NDEP.Base *= 1.0e-6
		rep.Warnf(diag.KindParameter, "model %s: ndep given in m^-3, converted to cm^-3", m.Name)
	}
	if m.NGATE.Base > 1.0e23 {
		m.NGATE.Base *= 1.0e-6
		rep.Warnf(diag.KindParameter, "model %s: ngate given in m^-3, converted to cm^-3", m.Name)
	}

	m.RBPB = minResistance(rep, m.Name, "rbpb", m.RBPB)
	m.RBPD = minResistance(rep, m.Name, "rbpd", m.RBPD)
	m.RBPS = minResistance(rep, m.Name, "rbps", m.RBPS)
	m.RBDB = minResistance(rep, m.Name, "rbdb", m.RBDB)
	m.RBSB = minResistance(rep, m.Name, "rbsb", m.RBSB)

	m.epssub = m.EPSRSUB * consts.EPS0
	m.epsgate = m.EPSRGATE * consts.EPS0
	m.coxe = m.EPSROX * consts.EPS0 / m.TOXE
	if m.MTRLMOD == 0 {
		m.coxp = m.EPSROX * consts.EPS0 / m.TOXP
	}
	m.factor1 = math.Sqrt(m.epssub / (m.EPSROX * consts.EPS0) * m.TOXE)

	m.vtm0 = consts.KboQ * m.TNOM
	m.eg0 = m.BG0SUB - m.TBGASUB*m.TNOM*m.TNOM/(m.TNOM+m.TBGBSUB)
	m.ni = m.NI0SUB * (m.TNOM / 300.15) * math.Sqrt(m.TNOM/300.15) *
		math.Exp(21.5565981-m.eg0/(2.0*m.vtm0))

	if !m.given["cf"] {
		m.CF.Base = 2.0 * m.EPSROX * consts.EPS0 / math.Pi * math.Log(1.0+0.4e-6/m.TOXE)
	}
	if !m.given["cgdo"] {
		if m.DLC > 0 {
			m.CGDO = m.DLC * m.coxe
		} else {
			m.CGDO = 0.6 * m.XJ.Base * m.coxe
		}
	}
	if !m.given["cgso"] {
		if m.DLC > 0 {
			m.CGSO = m.DLC * m.coxe
		} else {
			m.CGSO = 0.6 * m.XJ.Base * m.coxe
		}
	}

	m.setupDone = true
	return nil
}

func (m *Model) fillDrainJunction() {
	fill := func(key string, dst *float64, src float64) {
		if !m.given[key] {
			*dst = src
		}
	}
	fill("mjswgs", &m.MJSWGS, m.MJSWS)
	fill("cjswgs", &m.CJSWGS, m.CJSWS)
	fill("pbswgs", &m.PBSWGS, m.PBSWS)
	fill("jsd", &m.JSD, m.JSS)
	fill("jswd", &m.JSWD, m.JSWS)
	fill("jswgd", &m.JSWGD, m.JSWGS)
	fill("njd", &m.NJD, m.NJS)
	fill("xtid", &m.XTID, m.XTIS)
	fill("bvd", &m.BVD, m.BVS)
	fill("xjbvd", &m.XJBVD, m.XJBVS)
	fill("ijthdfwd", &m.IJTHDFWD, m.IJTHSFWD)
	fill("ijthdrev", &m.IJTHDREV, m.IJTHSREV)
	fill("cjd", &m.CJD, m.CJS)
	fill("cjswd", &m.CJSWD, m.CJSWS)
	fill("cjswgd", &m.CJSWGD, m.CJSWGS)
	fill("mjd", &m.MJD, m.MJS)
	fill("mjswd", &m.MJSWD, m.MJSWS)
	fill("mjswgd", &m.MJSWGD, m.MJSWGS)
	fill("pbd", &m.PBD, m.PBS)
	fill("pbswd", &m.PBSWD, m.PBSWS)
	fill("pbswgd", &m.PBSWGD, m.PBSWGS)
}

func checkSelector(rep diag.Reporter, name string, value, fallback int, allowed ...int) int {
	for _, a := range allowed {
		if value == a {
			return value
		}
	}
	rep.Warnf(diag.KindSelector, "%s = %d is not supported, using %d", name, value, fallback)
	return fallback
}

func minResistance(rep diag.Reporter, model, name string, r float64) float64 {
	if r < 1.0e-3 {
		rep.Warnf(diag.KindParameter, "model %s: %s = %g is below 1e-3 ohm, clamped", model, name, r)
		return 1.0e-3
	}
	return r
}

// partition maps XPART to the channel charge split.
type partition int

const (
	partition40 partition = iota // 40/60
	partition50                  // 50/50
	partition0                   // 0/100
)

func (m *Model) partition() partition {
	switch {
	case m.XPART > 0.5:
		return partition0
	case m.XPART < 0.5:
		return partition40
	default:
		return partition50
	}
}
