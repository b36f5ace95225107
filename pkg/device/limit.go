package device

import "math"

// Fetlim limits the per-iteration change of a FET gate voltage relative
// to the threshold estimate vto.
func Fetlim(vnew, vold, vto float64) float64 {
	proposed := vnew
	vtsthi := math.Abs(2*(vold-vto)) + 2
	vtstlo := vtsthi/2 + 2
	vtox := vto + 3.5
	delv := vnew - vold

	if vold >= vto {
		if vold >= vtox {
			if delv <= 0 {
				// going off
				if vnew >= vtox {
					if -delv > vtstlo {
						vnew = vold - vtstlo
					}
				} else {
					vnew = math.Max(vnew, vto+2)
				}
			} else {
				// staying on
				if delv >= vtsthi {
					vnew = vold + vtsthi
				}
			}
		} else {
			// middle region
			if delv <= 0 {
				vnew = math.Max(vnew, vto-0.5)
			} else {
				vnew = math.Min(vnew, vto+4)
			}
		}
	} else {
		// off
		if delv <= 0 {
			if -delv > vtsthi {
				vnew = vold - vtsthi
			}
		} else {
			vtemp := vto + 0.5
			if vnew <= vtemp {
				if delv > vtstlo {
					vnew = vold + vtstlo
				}
			} else {
				vnew = vtemp
			}
		}
	}
	return bounded(vnew, vold, proposed)
}

// Limvds limits the per-iteration change of a drain-source voltage.
func Limvds(vnew, vold float64) float64 {
	proposed := vnew
	if vold >= 3.5 {
		if vnew > vold {
			vnew = math.Min(vnew, 3*vold+2)
		} else if vnew < 3.5 {
			vnew = math.Max(vnew, 2)
		}
	} else {
		if vnew > vold {
			vnew = math.Min(vnew, 4)
		} else {
			vnew = math.Max(vnew, -0.5)
		}
	}
	return bounded(vnew, vold, proposed)
}

// Pnjlim limits the per-iteration change of a pn-junction voltage so
// exp(v/vt) stays representable. Large forward steps above vcrit are
// compressed logarithmically; large reverse steps are held to one volt
// past the previous iterate (twice it when that was already reverse
// biased). The flag reports whether it clamped.
func Pnjlim(vnew, vold, vt, vcrit float64) (float64, bool) {
	proposed := vnew
	if vnew > vcrit && math.Abs(vnew-vold) > vt+vt {
		if vold > 0 {
			arg := (vnew - vold) / vt
			if arg > 0 {
				vnew = vold + vt*(2+math.Log(arg-2))
			} else {
				vnew = vold - vt*(2+math.Log(2-arg))
			}
		} else {
			vnew = vt * math.Log(vnew/vt)
		}
		vnew = bounded(vnew, vold, proposed)
		return vnew, vnew != proposed
	}

	if vnew < 0 {
		floor := 2*vold - 1
		if vold > 0 {
			floor = -vold - 1
		}
		if vnew < floor {
			return floor, true
		}
	}
	return vnew, false
}

// Vcrit is the junction voltage above which pnjlim engages.
func Vcrit(vt, isat float64) float64 {
	if isat <= 0 {
		return math.MaxFloat64
	}
	return vt * math.Log(vt/(math.Sqrt2*isat))
}

// bounded keeps a limited value on the segment between the previous and
// the proposed iterate.
func bounded(v, vold, proposed float64) float64 {
	lo, hi := vold, proposed
	if lo > hi {
		lo, hi = hi, lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
