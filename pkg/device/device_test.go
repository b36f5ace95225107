package device

import (
	"math"
	"testing"

	"github.com/edp1096/toy-bsim4/pkg/matrix"
)

// V1 drives 2 V into a 1k/3k divider.
func TestDividerStamp(t *testing.T) {
	v1 := NewDCVoltageSource("V1", []string{"in", "0"}, 2)
	r1 := NewResistor("R1", []string{"in", "out"}, 1e3)
	r2 := NewResistor("R2", []string{"out", "0"}, 3e3)

	v1.SetNodes([]int{1, 0})
	v1.SetBranchIndex(3)
	r1.SetNodes([]int{1, 2})
	r2.SetNodes([]int{2, 0})

	m := matrix.NewDense(3)
	status := &CircuitStatus{Temp: 300.15}
	for _, d := range []Device{v1, r1, r2} {
		if err := d.Setup(m); err != nil {
			t.Fatalf("Setup %s: %v", d.GetName(), err)
		}
		if err := d.Stamp(m, status); err != nil {
			t.Fatalf("Stamp %s: %v", d.GetName(), err)
		}
	}

	x, err := m.Solve()
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	if math.Abs(x[2]-1.5) > 1e-12 {
		t.Errorf("V(out) = %g, want 1.5", x[2])
	}
	if math.Abs(x[3]+0.5e-3) > 1e-15 {
		t.Errorf("I(V1) = %g, want -0.5m", x[3])
	}
}

func TestResistorTemperature(t *testing.T) {
	r := NewResistor("R1", []string{"a", "b"}, 100)
	r.Tc1 = 1e-3
	r.SetNodes([]int{1, 2})
	m := matrix.NewDense(2)
	if err := r.Setup(m); err != nil {
		t.Fatal(err)
	}
	if err := r.SetTemperature(r.Tnom + 100); err != nil {
		t.Fatal(err)
	}
	if err := r.Stamp(m, &CircuitStatus{}); err != nil {
		t.Fatal(err)
	}
	if got := m.At(1, 1); math.Abs(got-1.0/110) > 1e-15 {
		t.Errorf("G(1,1) = %g, want %g", got, 1.0/110)
	}

	bad := NewResistor("R2", []string{"a", "b"}, 0)
	if err := bad.Setup(m); err == nil {
		t.Error("expected an error for zero resistance")
	}
}
