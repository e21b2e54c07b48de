package machine

import (
	"github.com/KevinKickass/OpenBlenderCore/internal/action"
	"go.uber.org/zap"
)

// Evaluate compares a sensor reading against cond.
func Evaluate(cond action.SensorCondition, reading int32) bool {
	switch cond.Comparer {
	case action.LessThan:
		return reading < cond.Value
	case action.GreaterThan:
		return reading > cond.Value
	case action.Equals:
		return reading == cond.Value
	default:
		return false
	}
}

func (m *Machine) reading(src action.SensorSource) (int32, bool) {
	switch src {
	case action.SourceCupDetect:
		return m.cupReading, true
	default:
		return 0, false
	}
}

func (m *Machine) waitFor(cond action.SensorCondition) bool {
	reading, ok := m.reading(cond.Source)
	if !ok {
		m.logger.Warn("Unknown wait-for source", zap.String("source", string(cond.Source)))
		return false
	}

	m.logger.Debug("Waiting for condition",
		zap.String("source", string(cond.Source)),
		zap.String("comparer", string(cond.Comparer)),
		zap.Int32("reading", reading),
		zap.Int32("value", cond.Value))
	return Evaluate(cond, reading)
}
