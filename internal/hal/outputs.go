package hal

import "github.com/KevinKickass/OpenBlenderCore/internal/action"

// Outputs translates logical On/Off into logic levels. Relays wired
// active-low (pump, valves) are ON at LOW.
type Outputs struct {
	io        DigitalIO
	activeLow map[action.OutputAddress]bool
}

func NewOutputs(io DigitalIO, activeLow []action.OutputAddress) *Outputs {
	m := make(map[action.OutputAddress]bool, len(activeLow))
	for _, addr := range activeLow {
		m[addr] = true
	}
	return &Outputs{io: io, activeLow: m}
}

// LevelFor returns the logic level that puts addr into state.
func (o *Outputs) LevelFor(addr action.OutputAddress, state action.OutputState) Level {
	on := state == action.On
	if o.activeLow[addr] {
		return Level(!on)
	}
	return Level(on)
}

func (o *Outputs) Set(addr action.OutputAddress, state action.OutputState) {
	o.io.WriteLevel(addr, o.LevelFor(addr, state))
}

func (o *Outputs) State(addr action.OutputAddress) action.OutputState {
	if o.io.ReadLevel(addr) == o.LevelFor(addr, action.On) {
		return action.On
	}
	return action.Off
}

func (o *Outputs) Level(addr action.OutputAddress) Level {
	return o.io.ReadLevel(addr)
}
