package circuit

import (
	"errors"
	"fmt"
	"sync"

	"github.com/edp1096/toy-bsim4/internal/consts"
	"github.com/edp1096/toy-bsim4/internal/logger"
	"github.com/edp1096/toy-bsim4/pkg/device"
	"github.com/edp1096/toy-bsim4/pkg/device/bsim4"
	"github.com/edp1096/toy-bsim4/pkg/diag"
	"github.com/edp1096/toy-bsim4/pkg/matrix"
	"github.com/edp1096/toy-bsim4/pkg/netlist"
)

type Circuit struct {
	name             string
	nodeMap          map[string]int
	branchMap        map[string]int
	internalMap      map[string]int // "M1.dp" style names of device unknowns
	devices          []device.Device
	numNodes         int
	matrix           *matrix.CircuitMatrix
	nonlinearDevices []device.NonLinear
	Models           map[string]device.ModelParam
	models           map[string]*bsim4.Model
	Temp             float64 // Kelvin

	log logger.Logger
	rep *diag.LogReporter
}

func New(name string, log logger.Logger) *Circuit {
	if log == nil {
		log = logger.Default()
	}
	return &Circuit{
		name:        name,
		nodeMap:     make(map[string]int),
		branchMap:   make(map[string]int),
		internalMap: make(map[string]int),
		Models:      make(map[string]device.ModelParam),
		Temp:        consts.TNOM,
		log:         log,
		rep:         diag.NewReporter(log),
	}
}

func (c *Circuit) SetModels(models map[string]device.ModelParam) {
	c.Models = models
}

// SetTemperatureC sets the circuit temperature in Celsius.
func (c *Circuit) SetTemperatureC(celsius float64) {
	c.Temp = celsius + consts.KELVIN
}

func isGround(name string) bool {
	return name == "0" || name == "gnd"
}

func (c *Circuit) AssignNodeBranchMaps(elements []netlist.Element) error {
	for _, elem := range elements {
		for _, nodeName := range elem.Nodes {
			if isGround(nodeName) {
				continue
			}
			if _, exists := c.nodeMap[nodeName]; !exists {
				c.nodeMap[nodeName] = len(c.nodeMap) + 1
			}
		}
	}

	branchStart := len(c.nodeMap) + 1
	for _, elem := range elements {
		if elem.Type == "V" {
			if _, dup := c.branchMap[elem.Name]; dup {
				return fmt.Errorf("duplicate voltage source %s", elem.Name)
			}
			c.branchMap[elem.Name] = branchStart
			branchStart++
		}
	}

	c.numNodes = len(c.nodeMap)
	return nil
}

// SetupDevices creates every device, numbers the internal unknowns after
// the node and branch unknowns, allocates the matrix and resolves each
// device's matrix positions.
func (c *Circuit) SetupDevices(elements []netlist.Element) error {
	models, err := netlist.BuildModels(c.Models, c.rep)
	if err != nil {
		return fmt.Errorf("building models: %w", err)
	}
	c.models = models

	next := c.numNodes + len(c.branchMap) + 1
	for _, elem := range elements {
		dev, err := netlist.CreateDevice(elem, c.models, c.rep.For(elem.Name))
		if err != nil {
			return fmt.Errorf("creating device %s: %w", elem.Name, err)
		}

		nodeIndices := make([]int, len(elem.Nodes))
		for i, nodeName := range elem.Nodes {
			if !isGround(nodeName) {
				nodeIndices[i] = c.nodeMap[nodeName]
			}
		}
		dev.SetNodes(nodeIndices)

		if b, ok := dev.(device.Branch); ok {
			b.SetBranchIndex(c.branchMap[elem.Name])
		}

		if in, ok := dev.(device.InternalNodes); ok {
			names := in.InternalNodeNames()
			indices := make([]int, len(names))
			for k, name := range names {
				indices[k] = next
				c.internalMap[elem.Name+"."+name] = next
				next++
			}
			if err := in.SetInternalNodes(indices); err != nil {
				return fmt.Errorf("device %s: %w", elem.Name, err)
			}
		}

		if nl, ok := dev.(device.NonLinear); ok {
			c.nonlinearDevices = append(c.nonlinearDevices, nl)
		}
		c.devices = append(c.devices, dev)
	}

	if err := c.createMatrix(next - 1); err != nil {
		return err
	}
	for _, dev := range c.devices {
		if err := dev.Setup(c.matrix); err != nil {
			return fmt.Errorf("setting up device %s: %w", dev.GetName(), err)
		}
	}
	return c.SetTemperature(c.Temp)
}

func (c *Circuit) createMatrix(size int) error {
	m, err := matrix.NewMatrix(size, c.log)
	if err != nil {
		return err
	}
	m.SetGminRows(c.numNodes)
	c.matrix = m
	c.log.Debug("matrix allocated", "size", size, "nodes", c.numNodes,
		"branches", len(c.branchMap), "internal", len(c.internalMap))
	return nil
}

// SetTemperature re-resolves every temperature dependent device at tempK.
func (c *Circuit) SetTemperature(tempK float64) error {
	c.Temp = tempK
	for _, dev := range c.devices {
		if td, ok := dev.(device.TemperatureDependent); ok {
			if err := td.SetTemperature(tempK); err != nil {
				return fmt.Errorf("device %s: %w", dev.GetName(), err)
			}
		}
	}
	return nil
}

func (c *Circuit) Stamp(status *device.CircuitStatus) error {
	for _, dev := range c.devices {
		if err := dev.Stamp(c.matrix, status); err != nil {
			return fmt.Errorf("stamping device %s: %w", dev.GetName(), err)
		}
	}
	return nil
}

// Evaluate hands the iterate to every nonlinear device. Devices only write
// their own state, so they run concurrently. It reports whether any
// device limited its voltages.
func (c *Circuit) Evaluate(solution []float64, status *device.CircuitStatus) (bool, error) {
	errs := make([]error, len(c.nonlinearDevices))
	var wg sync.WaitGroup
	for k, dev := range c.nonlinearDevices {
		wg.Add(1)
		go func(k int, dev device.NonLinear) {
			defer wg.Done()
			errs[k] = dev.UpdateVoltages(solution, status)
		}(k, dev)
	}
	wg.Wait()
	if err := errors.Join(errs...); err != nil {
		return false, fmt.Errorf("updating nonlinear voltages: %w", err)
	}

	limited := false
	for _, dev := range c.nonlinearDevices {
		limited = limited || dev.Limited()
	}
	return limited, nil
}

func (c *Circuit) GetMatrix() *matrix.CircuitMatrix {
	return c.matrix
}

func (c *Circuit) GetNodeMap() map[string]int {
	return c.nodeMap
}

func (c *Circuit) GetBranchMap() map[string]int {
	return c.branchMap
}

func (c *Circuit) GetInternalMap() map[string]int {
	return c.internalMap
}

func (c *Circuit) GetDevices() []device.Device {
	return c.devices
}

// Reporter returns the diagnostics sink shared by every device.
func (c *Circuit) Reporter() *diag.LogReporter {
	return c.rep
}

func (c *Circuit) GetSolution() map[string]float64 {
	solution := make(map[string]float64)
	matrixSolution := c.matrix.Solution()
	at := func(idx int) float64 {
		if idx <= 0 || idx >= len(matrixSolution) {
			return 0
		}
		return matrixSolution[idx]
	}

	// Node voltage
	for name, idx := range c.nodeMap {
		solution[fmt.Sprintf("V(%s)", name)] = at(idx)
	}

	// Branch current of voltage source
	for name, idx := range c.branchMap {
		solution[fmt.Sprintf("I(%s)", name)] = -at(idx)
	}

	for _, dev := range c.devices {
		switch d := dev.(type) {
		case *device.Resistor:
			nodes := d.GetNodes()
			solution[fmt.Sprintf("I(%s)", d.GetName())] = (at(nodes[0]) - at(nodes[1])) / d.GetValue()
		case *bsim4.Instance:
			if op, ok := d.OperatingPoint(); ok {
				solution[fmt.Sprintf("Id(%s)", d.GetName())] = op.Ids
			}
		}
	}

	return solution
}

func (c *Circuit) Destroy() {
	if c.matrix != nil {
		c.matrix.Destroy()
	}
}

func (c *Circuit) Name() string {
	return c.name
}

func (c *Circuit) GetNumNodes() int {
	return c.numNodes
}

// FromNetlist builds a ready circuit from a parsed deck.
func FromNetlist(data *netlist.NetlistData, log logger.Logger) (*Circuit, error) {
	ckt := New(data.Title, log)
	ckt.SetModels(data.Models)
	ckt.SetTemperatureC(data.Temp)
	if err := ckt.AssignNodeBranchMaps(data.Elements); err != nil {
		return nil, fmt.Errorf("creating circuit mappings: %w", err)
	}
	if err := ckt.SetupDevices(data.Elements); err != nil {
		return nil, err
	}
	return ckt, nil
}
