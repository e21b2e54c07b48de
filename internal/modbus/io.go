package modbus

import (
	"fmt"
	"strings"
	"sync"

	"github.com/KevinKickass/OpenBlenderCore/internal/action"
	"github.com/KevinKickass/OpenBlenderCore/internal/hal"
	"go.uber.org/zap"
)

// Logical signal names an I/O profile binds to registers.
const (
	BindingMotorUp     = "motor_up"
	BindingMotorDown   = "motor_down"
	BindingMotorSpeed  = "motor_speed"
	BindingPosition    = "position"
	BindingCupDistance = "cup_distance"
)

func OutputBinding(addr action.OutputAddress) string {
	return string(addr)
}

func ButtonBinding(id hal.ButtonID) string {
	return "button_" + id.String()
}

// RequiredBindings lists every logical signal the blender needs.
func RequiredBindings() []string {
	names := []string{BindingMotorUp, BindingMotorDown, BindingMotorSpeed, BindingPosition, BindingCupDistance}
	for _, addr := range action.AllOutputs() {
		names = append(names, OutputBinding(addr))
	}
	for _, id := range hal.AllButtons() {
		names = append(names, ButtonBinding(id))
	}
	return names
}

// IO exposes a polled Device as blender hardware. Reads come from the
// device cache, writes are queued for the poller.
type IO struct {
	device   *Device
	logger   *zap.Logger
	bindings map[string]string

	mu       sync.Mutex
	lastGood map[string]int64
	missing  map[string]bool
}

func NewIO(device *Device, logger *zap.Logger) (*IO, error) {
	var missing []string
	for _, name := range RequiredBindings() {
		if _, ok := device.Profile.Bindings[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("profile %s is missing bindings: %s",
			device.Profile.Profile.ID, strings.Join(missing, ", "))
	}

	return &IO{
		device:   device,
		logger:   logger,
		bindings: device.Profile.Bindings,
		lastGood: make(map[string]int64),
		missing:  make(map[string]bool),
	}, nil
}

func (io *IO) queue(logical string, value interface{}) {
	if err := io.device.QueueWrite(io.bindings[logical], value); err != nil {
		io.logger.Error("Failed to queue write",
			zap.String("signal", logical),
			zap.Error(err))
	}
}

func (io *IO) Drive(dir action.Direction, speed action.Speed) {
	if dir == action.DirectionIdle {
		speed = action.SpeedStop
	}
	// Richtungs-Coils zuerst, Drehzahl zuletzt
	io.queue(BindingMotorUp, dir == action.DirectionUp)
	io.queue(BindingMotorDown, dir == action.DirectionDown)
	io.queue(BindingMotorSpeed, speed.Duty())
}

// readInt returns the cached value of a numeric signal. Without one it
// keeps the last good value and warns once until the cache recovers.
func (io *IO) readInt(logical string) int64 {
	v, ok := io.device.Int(io.bindings[logical])

	io.mu.Lock()
	defer io.mu.Unlock()

	if !ok {
		if !io.missing[logical] {
			io.missing[logical] = true
			io.logger.Warn("No cached value, using last good reading",
				zap.String("signal", logical),
				zap.Int64("value", io.lastGood[logical]))
		}
		return io.lastGood[logical]
	}

	if io.missing[logical] {
		io.missing[logical] = false
		io.logger.Info("Cached value available again", zap.String("signal", logical))
	}
	io.lastGood[logical] = v
	return v
}

func (io *IO) ReadPosition() action.Position {
	return action.Position(io.readInt(BindingPosition))
}

func (io *IO) Ping() int32 {
	return int32(io.readInt(BindingCupDistance))
}

func (io *IO) WriteLevel(addr action.OutputAddress, level hal.Level) {
	io.queue(OutputBinding(addr), bool(level))
}

func (io *IO) ReadLevel(addr action.OutputAddress) hal.Level {
	v, _ := io.device.Bool(io.bindings[OutputBinding(addr)])
	return hal.Level(v)
}

type input struct {
	device   *Device
	register string
}

func (i input) Raw() bool {
	v, _ := i.device.Bool(i.register)
	return v
}

func (io *IO) Input(id hal.ButtonID) hal.RawInput {
	return input{device: io.device, register: io.bindings[ButtonBinding(id)]}
}
