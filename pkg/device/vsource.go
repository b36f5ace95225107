package device

import (
	"fmt"

	"github.com/edp1096/toy-bsim4/pkg/matrix"
)

// VoltageSource is an ideal DC source with a branch current unknown.
type VoltageSource struct {
	BaseDevice
	branchIdx int
	slots     [4]matrix.Slot // (n1,b), (b,n1), (n2,b), (b,n2)
}

func NewDCVoltageSource(name string, nodeNames []string, value float64) *VoltageSource {
	return &VoltageSource{
		BaseDevice: NewBaseDevice(name, value, nodeNames),
	}
}

func (v *VoltageSource) GetType() string { return "V" }

func (v *VoltageSource) Setup(m matrix.SlotMatrix) error {
	if len(v.Nodes) != 2 {
		return fmt.Errorf("voltage source %s: requires exactly 2 nodes", v.Name)
	}
	if v.branchIdx <= 0 {
		return fmt.Errorf("voltage source %s: branch index not assigned", v.Name)
	}
	n1, n2, b := v.Nodes[0], v.Nodes[1], v.branchIdx
	v.slots = [4]matrix.Slot{m.Slot(n1, b), m.Slot(b, n1), m.Slot(n2, b), m.Slot(b, n2)}
	return nil
}

// Stamp writes v1 - v2 = V with the branch current leaving n1.
func (v *VoltageSource) Stamp(m matrix.DeviceMatrix, _ *CircuitStatus) error {
	v.slots[0].Add(1)
	v.slots[1].Add(1)
	v.slots[2].Add(-1)
	v.slots[3].Add(-1)
	m.AddRHS(v.branchIdx, v.Value)
	return nil
}

func (v *VoltageSource) BranchIndex() int {
	return v.branchIdx
}

func (v *VoltageSource) SetBranchIndex(idx int) {
	v.branchIdx = idx
}

func (v *VoltageSource) SetValue(value float64) {
	v.Value = value
}
