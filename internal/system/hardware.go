package system

import (
	"fmt"

	"github.com/KevinKickass/OpenBlenderCore/internal/blender"
	"github.com/KevinKickass/OpenBlenderCore/internal/config"
	"github.com/KevinKickass/OpenBlenderCore/internal/hal"
	"github.com/KevinKickass/OpenBlenderCore/internal/machine"
	"go.uber.org/zap"
)

// Backend is everything a hardware backend provides. Both the modbus IO
// adapter and the simulated rig implement it.
type Backend interface {
	hal.Motor
	hal.PositionSource
	hal.DistanceSensor
	hal.DigitalIO
	hal.InputSource
}

// NewMachine assembles the blender capability, debounced buttons and the
// machine on top of a backend.
func NewMachine(cfg *config.Config, io Backend, clock hal.Clock, logger *zap.Logger) (*machine.Machine, error) {
	activeLow, err := cfg.ActiveLow()
	if err != nil {
		return nil, err
	}

	outputs := hal.NewOutputs(io, activeLow)
	hw := machine.Hardware{
		Blender: blender.New(io, io, outputs, clock, logger.Named("blender")),
		Sonar:   io,
		Buttons: hal.DebouncedButtons(io, clock, cfg.Machine.ButtonDebounce),
		Outputs: outputs,
		Clock:   clock,
	}

	m, err := machine.New(hw, cfg.Builder(), cfg.MachineOptions(), logger.Named("machine"))
	if err != nil {
		return nil, fmt.Errorf("failed to build sequences: %w", err)
	}
	return m, nil
}
