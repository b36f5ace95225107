package matrix

// DeviceMatrix is the 1-based view devices stamp into. Index 0 is ground
// and is silently dropped.
type DeviceMatrix interface {
	AddElement(i, j int, value float64)
	AddRHS(i int, value float64)
}

// Slot is a matrix position resolved once at setup and written every
// Newton iteration.
type Slot interface {
	Add(value float64)
	Value() float64
}

// SlotMatrix hands out resolved positions.
type SlotMatrix interface {
	DeviceMatrix
	Slot(i, j int) Slot
	Size() int
}

// GroundSlot is returned for any position touching node 0.
var GroundSlot Slot = groundSlot{}

type groundSlot struct{}

func (groundSlot) Add(float64)    {}
func (groundSlot) Value() float64 { return 0 }
