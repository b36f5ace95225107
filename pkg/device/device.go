package device

import (
	"github.com/edp1096/toy-bsim4/pkg/matrix"
)

type Device interface {
	GetName() string
	GetType() string
	GetNodeNames() []string
	GetNodes() []int
	SetNodes(nodes []int)
	// Setup resolves matrix positions once, after every unknown is numbered.
	Setup(m matrix.SlotMatrix) error
	Stamp(m matrix.DeviceMatrix, status *CircuitStatus) error
}

// InternalNodes is implemented by devices that add unknowns of their own
// (internal nodes and branch equations).
type InternalNodes interface {
	InternalNodeNames() []string
	SetInternalNodes(indices []int) error
}

// Branch is implemented by devices carrying a branch current unknown.
type Branch interface {
	BranchIndex() int
	SetBranchIndex(idx int)
}

type NonLinear interface {
	// UpdateVoltages takes the latest Newton iterate. The device may limit
	// it internally; Limited reports whether it did.
	UpdateVoltages(solution []float64, status *CircuitStatus) error
	Limited() bool
}

type TemperatureDependent interface {
	SetTemperature(tempK float64) error
}

type BaseDevice struct {
	Name      string
	Nodes     []int
	Value     float64
	NodeNames []string
}

type ModelParam struct {
	Type   string
	Name   string
	Params map[string]float64
}

type AnalysisMode int

const (
	OperatingPointAnalysis AnalysisMode = iota
	DCSweep
)

type CircuitStatus struct {
	Mode            AnalysisMode
	Temp            float64 // Kelvin
	Gmin            float64
	NewtonIter      int  // 0 on the first iteration of a new operating point
	InitJunction    bool // first iteration should use the junction initial guess
	VoltageLimiting bool // global Newton limiter switch
	UseIC           bool // enforce device initial conditions
}

func (d *BaseDevice) GetName() string {
	return d.Name
}

func (d *BaseDevice) GetNodes() []int {
	return d.Nodes
}

func (d *BaseDevice) GetNodeNames() []string {
	return d.NodeNames
}

func (d *BaseDevice) GetValue() float64 {
	return d.Value
}

func (d *BaseDevice) SetNodes(nodes []int) {
	d.Nodes = nodes
}

func NewBaseDevice(name string, value float64, nodeNames []string) BaseDevice {
	return BaseDevice{
		Name:      name,
		Value:     value,
		NodeNames: nodeNames,
		Nodes:     make([]int, len(nodeNames)),
	}
}
