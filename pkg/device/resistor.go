package device

import (
	"fmt"

	"github.com/edp1096/toy-bsim4/pkg/matrix"
)

type Resistor struct {
	BaseDevice
	Tc1  float64
	Tc2  float64
	Tnom float64

	g     float64
	slots [4]matrix.Slot // 11, 12, 21, 22
}

func NewResistor(name string, nodeNames []string, value float64) *Resistor {
	return &Resistor{
		BaseDevice: NewBaseDevice(name, value, nodeNames),
		Tnom:       300.15,
	}
}

func (r *Resistor) GetType() string { return "R" }

func (r *Resistor) Setup(m matrix.SlotMatrix) error {
	if len(r.Nodes) != 2 {
		return fmt.Errorf("resistor %s: requires exactly 2 nodes", r.Name)
	}
	if r.Value <= 0 {
		return fmt.Errorf("resistor %s: resistance must be positive, got %g", r.Name, r.Value)
	}
	n1, n2 := r.Nodes[0], r.Nodes[1]
	r.slots = [4]matrix.Slot{m.Slot(n1, n1), m.Slot(n1, n2), m.Slot(n2, n1), m.Slot(n2, n2)}
	r.g = 1.0 / r.Value
	return nil
}

func (r *Resistor) SetTemperature(tempK float64) error {
	value := r.temperatureAdjustedValue(tempK)
	if value <= 0 {
		return fmt.Errorf("resistor %s: resistance %g at %g K is not positive", r.Name, value, tempK)
	}
	r.g = 1.0 / value
	return nil
}

func (r *Resistor) Stamp(_ matrix.DeviceMatrix, _ *CircuitStatus) error {
	r.slots[0].Add(r.g)
	r.slots[1].Add(-r.g)
	r.slots[2].Add(-r.g)
	r.slots[3].Add(r.g)
	return nil
}

func (r *Resistor) temperatureAdjustedValue(temp float64) float64 {
	dt := temp - r.Tnom
	factor := 1.0 + r.Tc1*dt + r.Tc2*dt*dt
	return r.Value * factor
}
