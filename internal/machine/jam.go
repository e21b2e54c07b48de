package machine

import (
	"errors"
	"fmt"

	"github.com/KevinKickass/OpenBlenderCore/internal/action"
	"go.uber.org/zap"
)

// RecoverySteps is the number of slots a jam recovery overwrites.
const RecoverySteps = 4

var ErrRecoveryOutOfBounds = errors.New("jam recovery needs four completed steps before the cursor")

type JamOptions struct {
	CheckIntervalMs int64
	UpTolerance     int32
	DownTolerance   int32
	ReverseDistance int32
}

func DefaultJamOptions() JamOptions {
	return JamOptions{
		CheckIntervalMs: 500,
		UpTolerance:     2,
		DownTolerance:   5,
		ReverseDistance: 20,
	}
}

// Jammed reports whether the carriage moved less than the tolerance for
// dir since the last check. Descending into liquid meets more resistance,
// so Down requires more travel than Up.
func (o JamOptions) Jammed(dir action.Direction, last, current action.Position) bool {
	switch dir {
	case action.DirectionUp:
		return last.Toward(action.DirectionUp, o.UpTolerance) < current
	case action.DirectionDown:
		return last.Toward(action.DirectionDown, o.DownTolerance) > current
	default:
		return false
	}
}

func (o JamOptions) tolerance(dir action.Direction) int32 {
	if dir == action.DirectionUp {
		return o.UpTolerance
	}
	return o.DownTolerance
}

// RecoveryPlan backs the carriage off a stall: pause, reverse by the
// reverse distance without leaving the smoothie, raise the blender speed
// and let it work for two seconds.
func RecoveryPlan(stalled action.Direction, pos action.Position, layout action.Layout, opts JamOptions) []action.Action {
	reverse := stalled.Opposite()
	target := pos.Toward(reverse, opts.ReverseDistance)
	switch reverse {
	case action.DirectionDown:
		if target > layout.BottomOfCup {
			target = layout.BottomOfCup
		}
	case action.DirectionUp:
		if target < layout.TopOfSmoothie {
			target = layout.TopOfSmoothie
		}
	}

	return []action.Action{
		action.Wait{DurationMs: 500},
		action.MoveToPosition{Target: target, Direction: reverse, Speed: action.SpeedHalf, TimeoutMs: 3000},
		action.Activate{Address: action.OutputSpeedControl, State: action.On},
		action.Wait{DurationMs: 2000},
	}
}

type jamTracker struct {
	lastCheckTime     int64
	lastCheckPosition action.Position
}

func (m *Machine) resetJamBaseline(now int64) {
	m.jam.lastCheckPosition = m.hw.Blender.Position()
	m.jam.lastCheckTime = now
}

// checkForJams samples progress of the running move at most once per check
// interval and patches the blend sequence when the carriage stalled.
func (m *Machine) checkForJams(now int64, mtp action.MoveToPosition) {
	if m.jam.lastCheckTime+m.opts.Jam.CheckIntervalMs >= now {
		return
	}

	pos := m.hw.Blender.Position()
	if m.opts.Jam.Jammed(mtp.Direction, m.jam.lastCheckPosition, pos) {
		expected := m.jam.lastCheckPosition.Toward(mtp.Direction, m.opts.Jam.tolerance(mtp.Direction))
		m.jamCount++
		m.lastJamAt = now
		m.logger.Error("Jammed",
			zap.String("direction", string(mtp.Direction)),
			zap.Int32("expected", int32(expected)),
			zap.Int32("position", int32(pos)),
			zap.Int("step", m.step))

		if err := m.recoverFromJam(mtp.Direction, pos, now); err != nil {
			m.logger.Warn("Jam recovery skipped", zap.Error(err))
			m.emit(Event{Type: EventJamRecoverySkipped, Sequence: m.blend.Name(), Step: m.step, Message: err.Error()})
		} else {
			m.emit(Event{Type: EventJamDetected, Sequence: m.blend.Name(), Step: m.step, Message: string(mtp.Direction)})
		}
	}

	m.jam.lastCheckPosition = pos
	m.jam.lastCheckTime = now
}

func (m *Machine) recoverFromJam(stalled action.Direction, pos action.Position, now int64) error {
	if m.step < RecoverySteps {
		return fmt.Errorf("cursor at %d: %w", m.step, ErrRecoveryOutOfBounds)
	}

	plan := RecoveryPlan(stalled, pos, m.builder.Layout, m.opts.Jam)
	if err := m.blend.Splice(m.step, plan); err != nil {
		return err
	}
	m.step -= RecoverySteps
	m.lastStepTime = now
	return nil
}
