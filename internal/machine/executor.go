package machine

import (
	"github.com/KevinKickass/OpenBlenderCore/internal/action"
	"go.uber.org/zap"
)

// execute runs a for one tick. Moves, waits and agitation are timed from
// the moment the current step started.
func (m *Machine) execute(a action.Action) action.Status {
	switch a := a.(type) {
	case action.MoveToPosition:
		return m.hw.Blender.MoveToPosition(m.lastStepTime, a)
	case action.Wait:
		return m.hw.Blender.Wait(m.lastStepTime, a)
	case action.Activate:
		return m.hw.Blender.Activate(a)
	case action.Agitate:
		return m.hw.Blender.Agitate(m.lastStepTime, a)
	case action.WaitFor:
		return action.Status(m.waitFor(a.Condition))
	}

	m.logger.Warn("Invalid action type",
		zap.String("type", kindOf(a)),
		zap.String("state", string(m.state)),
		zap.Int("step", m.step))
	return action.InProgress
}

func kindOf(a action.Action) string {
	if a == nil {
		return "<nil>"
	}
	return string(a.Kind())
}
