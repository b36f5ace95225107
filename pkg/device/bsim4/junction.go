package bsim4

import "math"

// diodeCurrent returns the bulk junction current from the body side to
// the diffusion at forward voltage v, and its conductance.
func diodeCurrent(j *junction, dioMod int, v, gmin float64) (i, g float64) {
	if j.isat <= 0 {
		return gmin * v, gmin
	}
	n := j.nvtm

	forward := func(v float64) (float64, float64) {
		e, de := expLin(v / n)
		return j.isat * (e - 1.0), j.isat * de / n
	}
	// breakdown is isat·(xExpBV - xjbv·exp(-(bv+v)/nvtm)).
	breakdown := func(v float64) (float64, float64) {
		if j.xExpBV == 0 {
			return 0, 0
		}
		e, de := minExp, 0.0
		if t := (j.bv + v) / n; t <= expThreshold {
			e = math.Exp(-t)
			de = e
		}
		return j.isat * (j.xExpBV - j.xjbv*e), j.isat * j.xjbv * de / n
	}

	switch dioMod {
	case 0:
		i1, g1 := forward(v)
		i2, g2 := breakdown(v)
		i, g = i1+i2, g1+g2
	case 1:
		if v > j.vjsmFwd {
			g = j.sslpFwd
			i = j.ivjsmFwd - j.isat + g*(v-j.vjsmFwd)
		} else {
			i, g = forward(v)
		}
	default:
		switch {
		case v > j.vjsmFwd:
			g = j.sslpFwd
			i = j.ivjsmFwd + g*(v-j.vjsmFwd)
		case v < j.vjsmRev:
			e, de := expLin(v / n)
			ext := j.ivjsmRev + j.sslpRev*(v-j.vjsmRev)
			i = (e - 1.0) * ext
			g = de/n*ext + (e-1.0)*j.sslpRev
		default:
			i1, g1 := forward(v)
			i2, g2 := breakdown(v)
			i, g = i1+i2, g1+g2
		}
	}
	return i + gmin*v, g + gmin
}

// junctionCharge returns the depletion charge of a bulk junction at
// forward voltage v and its capacitance. Forward bias uses the first
// order expansion around zero.
func junctionCharge(j *junction, v float64) (q, c float64) {
	if v == 0 {
		return 0, j.czb + j.czbsw + j.czbswg
	}
	if v > 0 {
		t0 := j.czb + j.czbsw + j.czbswg
		t1 := v * (j.czb*j.mj/j.pb + j.czbsw*j.mjsw/j.pbsw + j.czbswg*j.mjswg/j.pbswg)
		return v * (t0 + 0.5*t1), t0 + t1
	}

	part := func(cz, pb, mj float64) {
		if cz <= 0 {
			return
		}
		arg := 1.0 - v/pb
		var sarg float64
		if mj == 0.5 {
			sarg = 1.0 / math.Sqrt(arg)
		} else {
			sarg = math.Exp(-mj * math.Log(arg))
		}
		q += pb * cz * (1.0 - arg*sarg) / (1.0 - mj)
		c += cz * sarg
	}
	part(j.czb, j.pb, j.mj)
	part(j.czbsw, j.pbsw, j.mjsw)
	part(j.czbswg, j.pbswg, j.mjswg)
	return q, c
}
