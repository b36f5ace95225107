package bsim4

import (
	"errors"
	"math"
	"testing"

	"github.com/edp1096/toy-bsim4/pkg/device"
	"github.com/edp1096/toy-bsim4/pkg/diag"
	"github.com/edp1096/toy-bsim4/pkg/matrix"
)

func TestScenarioNMOSOn(t *testing.T) {
	t.Parallel()
	run := func() (*Contribution, OperatingPoint, *Instance) {
		inst := newTestInstance(t, newTestModel(t, "nmos", nil), scenarioParams())
		out, err := inst.Evaluate(1, 1, 0, 0, dcStatus())
		if err != nil {
			t.Fatal(err)
		}
		op, ok := inst.OperatingPoint()
		if !ok {
			t.Fatal("no operating point after Evaluate")
		}
		return out, op, inst
	}

	out, op, inst := run()
	if inst.Topology().Size() != 4 {
		t.Fatalf("topology size = %d, want 4", inst.Topology().Size())
	}
	if op.Mode != 1 {
		t.Fatalf("mode = %d, want forward", op.Mode)
	}
	if op.Ids <= 0 || op.Gm <= 0 || op.Gds <= 0 {
		t.Fatalf("Ids=%g Gm=%g Gds=%g, want all positive", op.Ids, op.Gm, op.Gds)
	}
	if op.Vth <= 0 || op.Vth >= 1.5 {
		t.Fatalf("Vth = %g, want within (0, 1.5)", op.Vth)
	}
	if op.Vdseff > 1 || op.Vgsteff <= 0 {
		t.Fatalf("Vdseff=%g Vgsteff=%g", op.Vdseff, op.Vgsteff)
	}
	if !near(out.F[0], op.Ids, 1e-6, 1e-15) {
		t.Fatalf("drain current F[d] = %g, Ids = %g", out.F[0], op.Ids)
	}
	if !near(out.F[2], -op.Ids, 1e-6, 1e-15) {
		t.Fatalf("source current F[s] = %g, want %g", out.F[2], -op.Ids)
	}

	again, opAgain, _ := run()
	for r := range out.F {
		if !near(again.F[r], out.F[r], 1e-9, 0) {
			t.Fatalf("row %d not reproducible: %g vs %g", r, again.F[r], out.F[r])
		}
		for k := range out.DFdx[r] {
			if !near(again.DFdx[r][k], out.DFdx[r][k], 1e-9, 0) {
				t.Fatalf("jacobian (%d,%d) not reproducible", r, k)
			}
		}
	}
	if !near(opAgain.Ids, op.Ids, 1e-9, 0) || !near(opAgain.Vth, op.Vth, 1e-9, 0) {
		t.Fatal("operating point not reproducible")
	}
}

func TestMultiplicityScalesEverything(t *testing.T) {
	t.Parallel()
	m := newTestModel(t, "nmos", map[string]float64{"igcmod": 1, "agidl": 1e-6})
	one := newTestInstance(t, m, scenarioParams())
	p := scenarioParams()
	p.M = 2
	two := newTestInstance(t, m, p)

	a, err := one.Evaluate(1.2, 0.9, 0, -0.3, dcStatus())
	if err != nil {
		t.Fatal(err)
	}
	b, err := two.Evaluate(1.2, 0.9, 0, -0.3, dcStatus())
	if err != nil {
		t.Fatal(err)
	}
	for r := range a.F {
		if !near(b.F[r], 2*a.F[r], 1e-12, 0) || !near(b.Q[r], 2*a.Q[r], 1e-12, 0) {
			t.Fatalf("row %d: F %g vs %g", r, b.F[r], a.F[r])
		}
		for k := range a.DFdx[r] {
			if !near(b.DFdx[r][k], 2*a.DFdx[r][k], 1e-12, 0) || !near(b.DQdx[r][k], 2*a.DQdx[r][k], 1e-12, 0) {
				t.Fatalf("entry (%d,%d) not doubled", r, k)
			}
		}
	}
}

func TestDrainSourceSymmetry(t *testing.T) {
	t.Parallel()
	m := newTestModel(t, "nmos", map[string]float64{"igcmod": 1, "igbmod": 1, "agidl": 1e-6})
	p := scenarioParams()
	p.AS, p.AD = 4e-13, 4e-13
	p.PS, p.PD = 2.8e-6, 2.8e-6

	swap := [4]int{2, 1, 0, 3}
	for _, bias := range [][4]float64{{1, 1, 0, 0}, {0.3, 0.8, 0.05, -0.4}, {1.5, -0.2, 0, 0}} {
		fwd := newTestInstance(t, m, p)
		rev := newTestInstance(t, m, p)
		a, err := fwd.Evaluate(bias[0], bias[1], bias[2], bias[3], dcStatus())
		if err != nil {
			t.Fatal(err)
		}
		b, err := rev.Evaluate(bias[2], bias[1], bias[0], bias[3], dcStatus())
		if err != nil {
			t.Fatal(err)
		}
		ja, jb := dense(fwd.Topology(), a, false), dense(rev.Topology(), b, false)
		qa, qb := dense(fwd.Topology(), a, true), dense(rev.Topology(), b, true)
		scale := maxAbs(a.F...)
		for r := 0; r < 4; r++ {
			if !near(b.F[swap[r]], a.F[r], 1e-9, 1e-12*scale) {
				t.Fatalf("bias %v row %d: F %g, swapped %g", bias, r, a.F[r], b.F[swap[r]])
			}
			if !near(b.Q[swap[r]], a.Q[r], 1e-9, 1e-30) {
				t.Fatalf("bias %v row %d: Q %g, swapped %g", bias, r, a.Q[r], b.Q[swap[r]])
			}
			for c := 0; c < 4; c++ {
				if !near(jb[swap[r]][swap[c]], ja[r][c], 1e-9, 1e-18) {
					t.Fatalf("bias %v: dF[%d][%d] = %g, swapped %g", bias, r, c, ja[r][c], jb[swap[r]][swap[c]])
				}
				if !near(qb[swap[r]][swap[c]], qa[r][c], 1e-9, 1e-30) {
					t.Fatalf("bias %v: dQ[%d][%d] = %g, swapped %g", bias, r, c, qa[r][c], qb[swap[r]][swap[c]])
				}
			}
		}
	}
}

func TestPolarityMirror(t *testing.T) {
	t.Parallel()
	n := newTestModel(t, "nmos", nil)
	pm := newTestModel(t, "pmos", map[string]float64{"vth0": -0.7, "u0": 0.067, "eu": 1.67})
	p := scenarioParams()
	p.AS, p.AD, p.PS, p.PD = 4e-13, 4e-13, 2.8e-6, 2.8e-6

	for _, bias := range [][4]float64{{1, 1, 0, 0}, {0.2, 0.6, 0, -0.5}, {-0.3, 1.1, 0.4, 0}} {
		a, err := newTestInstance(t, n, p).Evaluate(bias[0], bias[1], bias[2], bias[3], dcStatus())
		if err != nil {
			t.Fatal(err)
		}
		b, err := newTestInstance(t, pm, p).Evaluate(-bias[0], -bias[1], -bias[2], -bias[3], dcStatus())
		if err != nil {
			t.Fatal(err)
		}
		for r := range a.F {
			if !near(b.F[r], -a.F[r], 1e-9, 1e-24) || !near(b.Q[r], -a.Q[r], 1e-9, 1e-30) {
				t.Fatalf("bias %v row %d: nmos F %g, pmos F %g", bias, r, a.F[r], b.F[r])
			}
			for k := range a.DFdx[r] {
				if !near(b.DFdx[r][k], a.DFdx[r][k], 1e-9, 1e-24) || !near(b.DQdx[r][k], a.DQdx[r][k], 1e-9, 1e-30) {
					t.Fatalf("bias %v entry (%d,%d) differs between polarities", bias, r, k)
				}
			}
		}
	}
}

func TestInitialJunctionGuess(t *testing.T) {
	t.Parallel()
	inst := newTestInstance(t, newTestModel(t, "nmos", nil), scenarioParams())
	status := &device.CircuitStatus{Temp: roomTemp, InitJunction: true}
	if err := inst.UpdateVoltages(make([]float64, 5), status); err != nil {
		t.Fatal(err)
	}
	if !inst.Limited() {
		t.Fatal("initial junction guess not reported as limited")
	}
	if math.Abs(inst.old.vds-0.1) > 1e-15 || math.Abs(inst.old.vgs-(inst.temp.vth0+0.1)) > 1e-15 {
		t.Fatalf("initial guess vgs=%g vds=%g", inst.old.vgs, inst.old.vds)
	}
	op, _ := inst.OperatingPoint()
	if op.Ids <= 0 {
		t.Fatalf("no channel current at the initial guess: %g", op.Ids)
	}
	if maxAbs(inst.Contribution().Fdxp...) == 0 {
		t.Fatal("limited iterate without a correction term")
	}
}

func TestVoltageLimiting(t *testing.T) {
	t.Parallel()
	m := newTestModel(t, "nmos", nil)
	start := []float64{0, 0.5, 0.8, 0, 0}
	jump := []float64{0, 0.5, 10, 0, 0}

	tests := []struct {
		name     string
		limiting bool
	}{
		{"limiter on", true},
		{"limiter off", false},
	}
	for _, tt := range tests {
		inst := newTestInstance(t, m, scenarioParams())
		if err := inst.UpdateVoltages(start, dcStatus()); err != nil {
			t.Fatal(err)
		}
		if inst.Limited() {
			t.Fatalf("%s: first iterate limited without junction guess", tt.name)
		}
		status := &device.CircuitStatus{Temp: roomTemp, NewtonIter: 1, VoltageLimiting: tt.limiting}
		if err := inst.UpdateVoltages(jump, status); err != nil {
			t.Fatal(err)
		}
		if inst.Limited() != tt.limiting {
			t.Fatalf("%s: Limited() = %t", tt.name, inst.Limited())
		}
		c := inst.Contribution()
		if !tt.limiting {
			if inst.old.vgs != 10 || maxAbs(c.Fdxp...) != 0 {
				t.Fatalf("%s: iterate changed: vgs=%g", tt.name, inst.old.vgs)
			}
			continue
		}
		if inst.old.vgs <= 0.8 || inst.old.vgs >= 10 {
			t.Fatalf("%s: limited vgs = %g, want within (0.8, 10)", tt.name, inst.old.vgs)
		}
		if maxAbs(c.Fdxp...) == 0 {
			t.Fatalf("%s: no correction for a limited iterate", tt.name)
		}

		// The loaded right-hand side is J·x + Jdxp - F at the unlimited x.
		dm := matrix.NewDense(4)
		if err := inst.Setup(dm); err != nil {
			t.Fatal(err)
		}
		if err := inst.Load(dm); err != nil {
			t.Fatal(err)
		}
		j := dense(inst.Topology(), c, false)
		for r := 0; r < 4; r++ {
			want := c.Fdxp[r] - c.F[r]
			for col := 0; col < 4; col++ {
				want += j[r][col] * jump[col+1]
				if got := dm.At(r+1, col+1); !near(got, j[r][col], 1e-15, 0) {
					t.Fatalf("matrix (%d,%d) = %g, want %g", r+1, col+1, got, j[r][col])
				}
			}
			if got := dm.RHS()[r+1]; !near(got, want, 1e-12, 1e-18) {
				t.Fatalf("rhs %d = %g, want %g", r+1, got, want)
			}
		}
	}
}

func TestLoadBeforeSetup(t *testing.T) {
	t.Parallel()
	inst := newTestInstance(t, newTestModel(t, "nmos", nil), scenarioParams())
	if _, err := inst.Evaluate(1, 1, 0, 0, dcStatus()); err != nil {
		t.Fatal(err)
	}
	if err := inst.Load(matrix.NewDense(4)); err == nil {
		t.Fatal("expected an error when loading without slots")
	}
}

func TestContinuityThroughThreshold(t *testing.T) {
	t.Parallel()
	inst := newTestInstance(t, newTestModel(t, "nmos", nil), scenarioParams())
	const h = 0.005
	var prev OperatingPoint
	for k := 0; k <= 240; k++ {
		vgs := float64(k) * h
		if _, err := inst.Evaluate(0.05, vgs, 0, 0, dcStatus()); err != nil {
			t.Fatal(err)
		}
		op, _ := inst.OperatingPoint()
		if k > 0 {
			if op.Ids <= prev.Ids {
				t.Fatalf("Ids not increasing at vgs=%g: %g after %g", vgs, op.Ids, prev.Ids)
			}
			step := op.Ids - prev.Ids
			trap := 0.5 * (op.Gm + prev.Gm) * h
			if !near(step, trap, 0.03, 1e-14) {
				t.Fatalf("Ids jumps at vgs=%g: step %g, integrated gm %g", vgs, step, trap)
			}
			dq := op.Qg - prev.Qg
			trapQ := 0.5 * (op.C[1][1] + prev.C[1][1]) * h
			if !near(dq, trapQ, 0.03, 1e-20) {
				t.Fatalf("Qg jumps at vgs=%g: step %g, integrated Cgg %g", vgs, dq, trapQ)
			}
		}
		prev = op
	}
}

func TestNQSNodeStartsAtEquilibrium(t *testing.T) {
	t.Parallel()
	inst := newTestInstance(t, newTestModel(t, "nmos", map[string]float64{"trnqsmod": 1}), scenarioParams())
	topo := inst.Topology()
	if !topo.Present(nodeQ) {
		t.Fatal("no charge node with trnqsmod=1")
	}
	out, err := inst.Evaluate(1, 1, 0, 0, dcStatus())
	if err != nil {
		t.Fatal(err)
	}
	row, k, ok := topo.Pos(nodeQ, nodeQ)
	if !ok {
		t.Fatal("charge node has no diagonal")
	}
	scale := math.Abs(out.DFdx[row][k] * inst.x[nodeQ])
	if scale == 0 {
		t.Fatal("charge node carries no charge")
	}
	if math.Abs(out.F[row]) > 1e-10*scale {
		t.Fatalf("relaxation residual %g at equilibrium (scale %g)", out.F[row], scale)
	}
}

func TestSetInternalNodesMismatch(t *testing.T) {
	t.Parallel()
	m := newTestModel(t, "nmos", map[string]float64{"rgatemod": 1})
	inst, err := NewInstance("m1", []string{"d", "g", "s", "b"}, m, scenarioParams(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if inst.Topology().NumInternal() != 1 {
		t.Fatalf("NumInternal = %d, want 1", inst.Topology().NumInternal())
	}
	if err := inst.SetInternalNodes([]int{5, 6}); !errors.Is(err, diag.ErrFatal) {
		t.Fatalf("err = %v, want a fatal topology error", err)
	}
}

func TestNewInstanceRepairsParameters(t *testing.T) {
	t.Parallel()
	m := newTestModel(t, "nmos", nil)
	p := scenarioParams()
	p.M = 0
	p.NGCON = 0
	var c diag.Collector
	inst, err := NewInstance("m1", []string{"d", "g", "s", "b"}, m, p, &c)
	if err != nil {
		t.Fatal(err)
	}
	if inst.params.M != 1 || inst.params.NGCON != 1 {
		t.Fatalf("M=%g NGCON=%g, want 1 and 1", inst.params.M, inst.params.NGCON)
	}
	if c.Count(diag.Warning) != 2 {
		t.Fatalf("%d warnings, want 2", c.Count(diag.Warning))
	}
	if _, err := NewInstance("m2", []string{"d", "g", "s"}, m, p, nil); err == nil {
		t.Fatal("expected an error for three nodes")
	}
}

func TestBodyNetworkFromGivenResistors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		params map[string]float64
		want   BodyNetwork
	}{
		{map[string]float64{"rbodymod": 1}, BodyFull},
		{map[string]float64{"rbodymod": 1, "rbpb": 20}, BodyPrimeOnly},
		{map[string]float64{"rbodymod": 1, "rbdb": 20, "rbsb": 30}, BodyJunctionOnly},
		{map[string]float64{"rbodymod": 1, "rbpb": 20, "rbps": 30}, BodyFull},
	}
	for _, tt := range tests {
		m := newTestModel(t, "nmos", tt.params)
		if got := m.nodeSet(DefaultInstanceParams()).Body; got != tt.want {
			t.Errorf("%v: body network %d, want %d", tt.params, got, tt.want)
		}
	}
}

func TestUpdateVoltagesShortSolution(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		params map[string]float64
	}{
		{"terminals only", nil},
		{"gate resistor", map[string]float64{"rgatemod": 1, "rshg": 10}},
	}
	for _, tt := range tests {
		inst := newTestInstance(t, newTestModel(t, "nmos", tt.params), scenarioParams())
		size := 5 + inst.topo.NumInternal()
		if err := inst.UpdateVoltages(make([]float64, size), dcStatus()); err != nil {
			t.Fatalf("%s: full solution rejected: %v", tt.name, err)
		}
		if err := inst.UpdateVoltages(make([]float64, size-1), dcStatus()); err == nil {
			t.Fatalf("%s: solution of %d accepted for %d unknowns", tt.name, size-1, size-1)
		}
	}
}
