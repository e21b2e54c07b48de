// Package blender implements the position-controlled blender capability on
// top of a motor, position feedback and the digital outputs.
package blender

import (
	"github.com/KevinKickass/OpenBlenderCore/internal/action"
	"github.com/KevinKickass/OpenBlenderCore/internal/hal"
	"go.uber.org/zap"
)

type Blender struct {
	motor    hal.Motor
	feedback hal.PositionSource
	outputs  *hal.Outputs
	clock    hal.Clock
	logger   *zap.Logger

	position action.Position
	moving   action.Direction
	speed    action.Speed
}

func New(motor hal.Motor, feedback hal.PositionSource, outputs *hal.Outputs, clock hal.Clock, logger *zap.Logger) *Blender {
	return &Blender{
		motor:    motor,
		feedback: feedback,
		outputs:  outputs,
		clock:    clock,
		logger:   logger,
		moving:   action.DirectionIdle,
		speed:    action.SpeedStop,
	}
}

// Init stops the motor, switches the blender off and reads the position.
func (b *Blender) Init() error {
	b.motor.Drive(action.DirectionIdle, action.SpeedStop)
	b.moving = action.DirectionIdle
	b.speed = action.SpeedStop
	b.outputs.Set(action.OutputBlender, action.Off)
	b.UpdateCurrentPosition()

	b.logger.Info("Blender initialized", zap.Int32("position", int32(b.position)))
	return nil
}

func (b *Blender) UpdateCurrentPosition() {
	b.position = b.feedback.ReadPosition()
}

func (b *Blender) Position() action.Position {
	return b.position
}

// Move drives the motor until told otherwise. Repeated calls with the same
// command are not forwarded to the motor.
func (b *Blender) Move(dir action.Direction, speed action.Speed) {
	if dir == action.DirectionIdle {
		speed = action.SpeedStop
	}
	if dir == b.moving && speed == b.speed {
		return
	}
	b.motor.Drive(dir, speed)
	b.moving = dir
	b.speed = speed
}

func (b *Blender) MoveToPosition(ref int64, spec action.MoveToPosition) action.Status {
	if b.position.Reached(spec.Target, spec.Direction) {
		b.Move(action.DirectionIdle, action.SpeedStop)
		return action.Completed
	}

	elapsed := b.clock.Millis() - ref
	if elapsed >= int64(spec.TimeoutMs) {
		b.Move(action.DirectionIdle, action.SpeedStop)
		b.logger.Warn("Move timed out",
			zap.Int32("target", int32(spec.Target)),
			zap.Int32("position", int32(b.position)),
			zap.String("direction", string(spec.Direction)),
			zap.Int64("elapsed_ms", elapsed))
		return action.Completed
	}

	b.Move(spec.Direction, spec.Speed)
	return action.InProgress
}

func (b *Blender) Wait(ref int64, spec action.Wait) action.Status {
	b.Move(action.DirectionIdle, action.SpeedStop)
	return action.Status(b.clock.Millis()-ref >= int64(spec.DurationMs))
}

// Activate sets the output and reports completion once the read-back
// matches.
func (b *Blender) Activate(spec action.Activate) action.Status {
	b.outputs.Set(spec.Address, spec.State)
	return action.Status(b.outputs.State(spec.Address) == spec.State)
}

func (b *Blender) Agitate(ref int64, spec action.Agitate) action.Status {
	p := spec.Params
	elapsed := b.clock.Millis() - ref
	if elapsed >= int64(p.DurationMs) || p.HalfPeriodMs == 0 {
		b.Move(action.DirectionIdle, action.SpeedStop)
		return action.Completed
	}

	dir := action.DirectionDown
	if (elapsed/int64(p.HalfPeriodMs))%2 == 1 {
		dir = action.DirectionUp
	}
	b.Move(dir, p.Speed)
	return action.InProgress
}
