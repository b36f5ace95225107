package bsim4

import (
	"math"
	"testing"

	"github.com/edp1096/toy-bsim4/pkg/device"
	"github.com/edp1096/toy-bsim4/pkg/diag"
)

const roomTemp = 300.15

func newTestModel(t *testing.T, typ string, params map[string]float64) *Model {
	t.Helper()
	m, err := NewModel("card", typ)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.SetModelParameters(params); err != nil {
		t.Fatal(err)
	}
	if err := m.Setup(diag.Discard); err != nil {
		t.Fatal(err)
	}
	return m
}

// newTestInstance wires a device to unknowns 1..4 and numbers its internal
// unknowns from 5.
func newTestInstance(t *testing.T, m *Model, p InstanceParams) *Instance {
	t.Helper()
	inst, err := NewInstance("m1", []string{"d", "g", "s", "b"}, m, p, nil)
	if err != nil {
		t.Fatal(err)
	}
	inst.SetNodes([]int{1, 2, 3, 4})
	idx := make([]int, inst.topo.NumInternal())
	for k := range idx {
		idx[k] = 5 + k
	}
	if err := inst.SetInternalNodes(idx); err != nil {
		t.Fatal(err)
	}
	if err := inst.SetTemperature(roomTemp); err != nil {
		t.Fatal(err)
	}
	return inst
}

func scenarioParams() InstanceParams {
	p := DefaultInstanceParams()
	p.L = 180e-9
	p.W = 1e-6
	return p
}

func dcStatus() *device.CircuitStatus {
	return &device.CircuitStatus{Temp: roomTemp}
}

// dense expands a contribution into a physical Jacobian.
func dense(topo *Topology, c *Contribution, q bool) [][]float64 {
	n := topo.Size()
	out := make([][]float64, n)
	for r := range out {
		out[r] = make([]float64, n)
	}
	for r, cols := range topo.Stamp() {
		for k, col := range cols {
			if q {
				out[r][col] += c.DQdx[r][k]
			} else {
				out[r][col] += c.DFdx[r][k]
			}
		}
	}
	return out
}

func maxAbs(xs ...float64) float64 {
	m := 0.0
	for _, x := range xs {
		m = math.Max(m, math.Abs(x))
	}
	return m
}

func near(a, b, rel, abs float64) bool {
	return math.Abs(a-b) <= rel*math.Max(math.Abs(a), math.Abs(b))+abs
}
