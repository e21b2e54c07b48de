// Package hal defines the hardware capabilities the machine drives and
// small adapters shared by every backend.
package hal

import (
	"fmt"

	"github.com/KevinKickass/OpenBlenderCore/internal/action"
)

// Level is a raw digital logic level.
type Level bool

const (
	Low  Level = false
	High Level = true
)

func (l Level) String() string {
	if l {
		return "HIGH"
	}
	return "LOW"
}

// Blender is the position-controlled blender. Time arguments are clock
// milliseconds at which the current action started.
type Blender interface {
	Init() error
	UpdateCurrentPosition()
	Position() action.Position
	Move(dir action.Direction, speed action.Speed)
	MoveToPosition(ref int64, spec action.MoveToPosition) action.Status
	Wait(ref int64, spec action.Wait) action.Status
	Activate(spec action.Activate) action.Status
	Agitate(ref int64, spec action.Agitate) action.Status
}

// Motor drives the carriage.
type Motor interface {
	Drive(dir action.Direction, speed action.Speed)
}

// PositionSource reads the carriage position feedback.
type PositionSource interface {
	ReadPosition() action.Position
}

// DistanceSensor is the sonar used for cup detection.
type DistanceSensor interface {
	Ping() int32
}

// DigitalIO sets and reads logic levels of named outputs.
type DigitalIO interface {
	WriteLevel(addr action.OutputAddress, level Level)
	ReadLevel(addr action.OutputAddress) Level
}

// RawInput is an undebounced digital input.
type RawInput interface {
	Raw() bool
}

// Button is a debounced push button.
type Button interface {
	Read() bool
}

// Clock is a monotonic millisecond source.
type Clock interface {
	Millis() int64
}

type ButtonID int

const (
	BlendButton ButtonID = iota
	CleanButton
	StopButton
	StepButton
	MoveUpButton
	MoveDownButton
	InitializeButton
	ReblendButton
	ButtonCount
)

var buttonNames = [ButtonCount]string{
	BlendButton:      "blend",
	CleanButton:      "clean",
	StopButton:       "stop",
	StepButton:       "step",
	MoveUpButton:     "move_up",
	MoveDownButton:   "move_down",
	InitializeButton: "initialize",
	ReblendButton:    "reblend",
}

func (b ButtonID) String() string {
	if b >= 0 && b < ButtonCount {
		return buttonNames[b]
	}
	return fmt.Sprintf("button(%d)", int(b))
}

// AllButtons returns every button in input order.
func AllButtons() []ButtonID {
	ids := make([]ButtonID, ButtonCount)
	for i := range ids {
		ids[i] = ButtonID(i)
	}
	return ids
}
