package bsim4

import "math"

// dual is a bias-dependent quantity together with its partial derivatives
// with respect to the gate, drain and bulk voltages of the frame it was
// seeded in. The source is the reference terminal, so its derivative is
// -(g+d+b).
type dual struct {
	v, g, d, b float64
}

func cst(v float64) dual { return dual{v: v} }

func seedGate(v float64) dual  { return dual{v: v, g: 1} }
func seedDrain(v float64) dual { return dual{v: v, d: 1} }
func seedBulk(v float64) dual  { return dual{v: v, b: 1} }

func (x dual) add(y dual) dual {
	return dual{x.v + y.v, x.g + y.g, x.d + y.d, x.b + y.b}
}

func (x dual) sub(y dual) dual {
	return dual{x.v - y.v, x.g - y.g, x.d - y.d, x.b - y.b}
}

func (x dual) mul(y dual) dual {
	return dual{
		x.v * y.v,
		x.g*y.v + x.v*y.g,
		x.d*y.v + x.v*y.d,
		x.b*y.v + x.v*y.b,
	}
}

func (x dual) div(y dual) dual {
	q := x.v / y.v
	return dual{
		q,
		(x.g - q*y.g) / y.v,
		(x.d - q*y.d) / y.v,
		(x.b - q*y.b) / y.v,
	}
}

func (x dual) addc(c float64) dual { return dual{x.v + c, x.g, x.d, x.b} }

func (x dual) scale(c float64) dual { return dual{x.v * c, x.g * c, x.d * c, x.b * c} }

func (x dual) neg() dual { return dual{-x.v, -x.g, -x.d, -x.b} }

func (x dual) sq() dual { return x.mul(x) }

func (x dual) inv() dual {
	r := 1.0 / x.v
	k := -r * r
	return dual{r, x.g * k, x.d * k, x.b * k}
}

// apply composes a scalar function given its value f and slope df at x.v.
func (x dual) apply(f, df float64) dual {
	return dual{f, df * x.g, df * x.d, df * x.b}
}

// source returns the derivative with respect to the reference terminal.
func (x dual) source() float64 { return -(x.g + x.d + x.b) }

func dsqrt(x dual) dual {
	s := math.Sqrt(x.v)
	return x.apply(s, 0.5/s)
}

func dexp(x dual) dual {
	e := math.Exp(x.v)
	return x.apply(e, e)
}

func dlog(x dual) dual {
	return x.apply(math.Log(x.v), 1.0/x.v)
}

func dpow(x dual, p float64) dual {
	t := math.Pow(x.v, p-1)
	return x.apply(t*x.v, p*t)
}

// dexpClamp is exp held at minExp/maxExp beyond expThreshold.
func dexpClamp(x dual) dual {
	switch {
	case x.v > expThreshold:
		return cst(maxExp)
	case x.v < -expThreshold:
		return cst(minExp)
	}
	return dexp(x)
}

// softplus is t0·ln(1+exp(x/t0)) with the exponential clamp.
func softplus(x dual, t0 float64) dual {
	vx := x.scale(1.0 / t0)
	switch {
	case vx.v > expThreshold:
		return x
	case vx.v < -expThreshold:
		return cst(t0 * math.Log(1.0+minExp))
	}
	return dlog(dexp(vx).addc(1.0)).scale(t0)
}

// expLin is exp continued linearly above expThreshold, with its slope.
func expLin(x float64) (e, de float64) {
	switch {
	case x > expThreshold:
		return maxExp * (1.0 + x - expThreshold), maxExp
	case x < -expThreshold:
		return minExp, 0
	}
	e = math.Exp(x)
	return e, e
}
