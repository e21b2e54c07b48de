package action

import "fmt"

// Position is the blender carriage position in potentiometer units.
// Up decreases the value, Down increases it.
type Position int32

// Toward returns the position n units away from p in direction d.
// DirectionIdle returns p unchanged.
func (p Position) Toward(d Direction, n int32) Position {
	switch d {
	case DirectionUp:
		return p - Position(n)
	case DirectionDown:
		return p + Position(n)
	default:
		return p
	}
}

// Reached reports whether p is at or past target when travelling in d.
func (p Position) Reached(target Position, d Direction) bool {
	switch d {
	case DirectionUp:
		return p <= target
	case DirectionDown:
		return p >= target
	default:
		return true
	}
}

// Clamp limits p to [lo, hi].
func (p Position) Clamp(lo, hi Position) Position {
	if p < lo {
		return lo
	}
	if p > hi {
		return hi
	}
	return p
}

type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
	DirectionIdle Direction = "idle"
)

// Opposite returns the reverse travel direction. Idle has no opposite.
func (d Direction) Opposite() Direction {
	switch d {
	case DirectionUp:
		return DirectionDown
	case DirectionDown:
		return DirectionUp
	default:
		return DirectionIdle
	}
}

type Speed string

const (
	SpeedStop Speed = "stop"
	SpeedHalf Speed = "half"
	SpeedFull Speed = "full"
)

// Duty returns the motor duty cycle in percent.
func (s Speed) Duty() uint16 {
	switch s {
	case SpeedHalf:
		return 50
	case SpeedFull:
		return 100
	default:
		return 0
	}
}

// OutputAddress names a digital output of the machine.
type OutputAddress string

const (
	OutputPump         OutputAddress = "pump"
	OutputBlender      OutputAddress = "blender"
	OutputFillValve    OutputAddress = "fill_valve"
	OutputCleanValve   OutputAddress = "clean_valve"
	OutputSpeedControl OutputAddress = "speed_control"
)

// AllOutputs returns every output address in wiring order.
func AllOutputs() []OutputAddress {
	return []OutputAddress{
		OutputPump,
		OutputBlender,
		OutputFillValve,
		OutputCleanValve,
		OutputSpeedControl,
	}
}

// ParseOutputAddress validates a configured output name.
func ParseOutputAddress(name string) (OutputAddress, error) {
	for _, addr := range AllOutputs() {
		if string(addr) == name {
			return addr, nil
		}
	}
	return "", fmt.Errorf("unknown output: %s", name)
}

type OutputState string

const (
	On  OutputState = "on"
	Off OutputState = "off"
)

// SensorSource identifies what a WaitFor condition reads.
type SensorSource string

const (
	SourceCupDetect SensorSource = "cup_detect"
)

type Comparer string

const (
	LessThan    Comparer = "less_than"
	GreaterThan Comparer = "greater_than"
	Equals      Comparer = "equals"
)

// SensorCondition is satisfied when the reading of Source compares
// against Value using Comparer.
type SensorCondition struct {
	Source   SensorSource `yaml:"source" json:"source"`
	Comparer Comparer     `yaml:"comparer" json:"comparer"`
	Value    int32        `yaml:"value" json:"value"`
}

// Status is the outcome of executing an action for one tick.
type Status bool

const (
	InProgress Status = false
	Completed  Status = true
)
