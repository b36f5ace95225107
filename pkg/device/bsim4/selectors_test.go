package bsim4

import (
	"fmt"
	"maps"
	"math"
	"testing"
)

var (
	lodLayout = Layout{SA: 2e-7, SB: 3e-7, SD: 2.4e-7, AS: 5e-13, AD: 5e-13, PS: 3e-6, PD: 3e-6}
	wpeLayout = Layout{SC: 5e-7, AS: 5e-13, AD: 5e-13, PS: 3e-6, PD: 3e-6}
	junLayout = Layout{AS: 5e-13, AD: 5e-13, PS: 3e-6, PD: 3e-6}
)

var testKey = GeometryKey{L: 180e-9, W: 1e-6, NF: 2}

// selectorCases turn on one optional model path each.
var selectorCases = []struct {
	name   string
	params map[string]float64
	lay    Layout
	tempK  float64
}{
	{"mobmod 1", map[string]float64{"mobmod": 1}, junLayout, roomTemp},
	{"mobmod 2", map[string]float64{"mobmod": 2}, junLayout, roomTemp},
	{"tempmod 1 hot", map[string]float64{"tempmod": 1, "ua1": 1e-3, "ub1": -1e-3}, junLayout, 400},
	{"diomod 0", map[string]float64{"diomod": 0}, junLayout, roomTemp},
	{"diomod 2", map[string]float64{"diomod": 2, "ijthsfwd": 0.1, "ijthsrev": 0.1, "bvs": 2}, junLayout, roomTemp},
	{"velocity limit", map[string]float64{"vtl": 2e5, "xn": 3, "lc": 5e-9}, junLayout, roomTemp},
	{"drain induced threshold shift", map[string]float64{"pdits": 1, "pditsd": 0.5, "pditsl": 1e6}, junLayout, roomTemp},
	{"length of diffusion", map[string]float64{"saref": 1e-6, "sbref": 1e-6, "ku0": 1e-6, "kvth0": 1e-8, "tku0": 0.5}, lodLayout, roomTemp},
	{"well proximity", map[string]float64{"wpemod": 1, "kvth0we": 1e-3, "k2we": 1e-3, "ku0we": -1e-3}, wpeLayout, roomTemp},
}

func TestSelectorJacobians(t *testing.T) {
	t.Parallel()
	for _, sc := range selectorCases {
		params := maps.Clone(sc.params)
		params["capmod"] = 2
		c := newContextAt(t, params, testKey, sc.lay, sc.tempK)
		checkJacobian(t, sc.name, c, NodeSet{})
		checkJacobian(t, sc.name+" full", c, fullNodeSet())
	}
}

// Every selector must reach the evaluated currents.
func TestSelectorsChangeCurrents(t *testing.T) {
	t.Parallel()
	for _, sc := range selectorCases {
		base := newContextAt(t, nil, testKey, sc.lay, sc.tempK)
		sel := newContextAt(t, sc.params, testKey, sc.lay, sc.tempK)
		// past the forward knee of the source junction, or past the
		// reverse knee with a lowered breakdown voltage
		bias := fdBiases[0]
		vb := 1.0
		if sc.name == "diomod 2" {
			vb = -3
		}
		for _, n := range []node{nodeB, nodeBP, nodeDB, nodeSB} {
			bias[n] = vb
		}
		a := base.evaluate(&bias, NodeSet{}, &testNetwork, 0)
		b := sel.evaluate(&bias, NodeSet{}, &testNetwork, 0)
		var diff float64
		for n := range a.f {
			diff = math.Max(diff, math.Abs(a.f[n]-b.f[n])/(math.Abs(a.f[n])+1e-15))
		}
		if diff < 1e-6 {
			t.Errorf("%s: residuals unchanged (largest relative difference %g)", sc.name, diff)
		}
	}
}

func TestTemperatureModeMobility(t *testing.T) {
	t.Parallel()
	cases := []struct {
		mode, ua1, ub1 float64
	}{
		{0, 1e-9, -1e-18},
		{1, 1e-3, -1e-3},
	}
	for _, tc := range cases {
		c := newContextAt(t, map[string]float64{"tempmod": tc.mode, "ua1": tc.ua1, "ub1": tc.ub1}, testKey, junLayout, 400)
		s, td := c.s, c.t
		wantUA := s.ua + s.ua1*(td.TRatio-1.0)
		wantUB := s.ub + s.ub1*(td.TRatio-1.0)
		if tc.mode == 1 {
			wantUA = s.ua * (1.0 + s.ua1*td.DelTemp)
			wantUB = s.ub * (1.0 + s.ub1*td.DelTemp)
		}
		if !near(td.ua, wantUA, 1e-12, 0) {
			t.Errorf("tempmod %g: ua = %g, want %g", tc.mode, td.ua, wantUA)
		}
		if !near(td.ub, wantUB, 1e-12, 0) {
			t.Errorf("tempmod %g: ub = %g, want %g", tc.mode, td.ub, wantUB)
		}
	}
}

// The stress mobility factor uses ku0·(1 + tku0·T/Tnom).
func TestStressMobilityTemperature(t *testing.T) {
	t.Parallel()
	key := GeometryKey{L: 180e-9, W: 1e-6, NF: 1}
	lay := Layout{SA: 2e-7, SB: 3e-7, AS: 5e-13, AD: 5e-13, PS: 3e-6, PD: 3e-6}
	params := map[string]float64{"saref": 1e-6, "sbref": 1e-6, "ku0": 1e-6, "tku0": 0.5}

	for _, tempK := range []float64{roomTemp, 400} {
		plain := newContextAt(t, params, key, Layout{AS: lay.AS, AD: lay.AD, PS: lay.PS, PD: lay.PD}, tempK)
		stressed := newContextAt(t, params, key, lay, tempK)

		half := 0.5 * key.L
		invOD := 1/(lay.SA+half) + 1/(lay.SB+half)
		invODref := 2 / (1e-6 + half)
		ku0temp := 1.0*(1.0+0.5*stressed.t.TRatio) + 1e-9
		rho := 1e-6 / ku0temp * invOD
		rhoRef := 1e-6 / ku0temp * invODref
		want := (1 + rho) / (1 + rhoRef)

		got := stressed.t.u0temp / plain.t.u0temp
		if !near(got, want, 1e-10, 0) {
			t.Errorf("%gK: mobility ratio %g, want %g", tempK, got, want)
		}
	}
}

func TestWellProximityShiftsThreshold(t *testing.T) {
	t.Parallel()
	params := map[string]float64{"wpemod": 1, "kvth0we": 1e-3}
	far := newContextAt(t, params, testKey, junLayout, roomTemp)
	edge := newContextAt(t, params, testKey, wpeLayout, roomTemp)
	if edge.t.vth0 <= far.t.vth0 {
		t.Fatalf("vth0 %g near the well edge, %g without one", edge.t.vth0, far.t.vth0)
	}

	off := newContextAt(t, map[string]float64{"kvth0we": 1e-3}, testKey, wpeLayout, roomTemp)
	if off.t.vth0 != far.t.vth0 {
		t.Fatalf("wpemod 0 moved vth0 to %g from %g", off.t.vth0, far.t.vth0)
	}
}

func junctionFor(t *testing.T, params map[string]float64) *junction {
	t.Helper()
	c := newContextAt(t, params, testKey, junLayout, roomTemp)
	return &c.t.source
}

func TestDiodeKnees(t *testing.T) {
	t.Parallel()
	const ijth = 0.1
	for _, mode := range []int{1, 2} {
		j := junctionFor(t, map[string]float64{"diomod": float64(mode), "ijthsfwd": ijth, "ijthsrev": ijth, "bvs": 10})
		if math.IsInf(j.vjsmFwd, 0) {
			t.Fatalf("diomod %d: no forward knee", mode)
		}
		knees := map[string]float64{"forward": j.vjsmFwd}
		if i, _ := diodeCurrent(j, mode, j.vjsmFwd, 0); !near(i, ijth, 1e-6, 0) {
			t.Errorf("diomod %d: current at the forward knee %g, want %g", mode, i, ijth)
		}
		if mode == 2 {
			if math.IsInf(j.vjsmRev, 0) {
				t.Fatal("diomod 2: no reverse knee")
			}
			knees["reverse"] = j.vjsmRev
			if i, _ := diodeCurrent(j, mode, j.vjsmRev, 0); !near(i, -ijth, 1e-6, 0) {
				t.Errorf("diomod 2: current at the reverse knee %g, want %g", i, -ijth)
			}
		}

		for name, v := range knees {
			const d = 1e-9
			il, gl := diodeCurrent(j, mode, v-d, 0)
			ir, gr := diodeCurrent(j, mode, v+d, 0)
			if !near(il, ir, 1e-6, 0) {
				t.Errorf("diomod %d %s knee: current jumps from %g to %g", mode, name, il, ir)
			}
			if !near(gl, gr, 1e-4, 0) {
				t.Errorf("diomod %d %s knee: conductance jumps from %g to %g", mode, name, gl, gr)
			}
		}
	}
}

func TestDiodeCurrentDerivative(t *testing.T) {
	t.Parallel()
	for _, mode := range []int{0, 1, 2} {
		j := junctionFor(t, map[string]float64{"diomod": float64(mode), "ijthsfwd": 0.1, "ijthsrev": 0.1, "bvs": 10})
		biases := []float64{-5, -0.3, 0, 0.4, 0.7}
		for _, knee := range []float64{j.vjsmFwd, j.vjsmRev} {
			if !math.IsInf(knee, 0) {
				biases = append(biases, knee-0.05, knee+0.05)
			}
		}
		if mode == 0 {
			biases = append(biases, -10.5, -11)
		}
		for _, v := range biases {
			name := fmt.Sprintf("diomod %d at %gV", mode, v)
			const h = 1e-7
			i, g := diodeCurrent(j, mode, v, 1e-12)
			iu, _ := diodeCurrent(j, mode, v+h, 1e-12)
			id, _ := diodeCurrent(j, mode, v-h, 1e-12)
			fd := (iu - id) / (2 * h)
			if !near(fd, g, 1e-5, 1e-18) {
				t.Errorf("%s: conductance %g, finite difference %g (current %g)", name, g, fd, i)
			}
		}
	}
}
