// Package machine runs the blender: a single-threaded tick that samples
// inputs, switches states, executes the active sequence and repairs it
// when the carriage jams.
package machine

import (
	"fmt"

	"github.com/KevinKickass/OpenBlenderCore/internal/action"
	"github.com/KevinKickass/OpenBlenderCore/internal/hal"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Hardware bundles the capabilities the machine drives.
type Hardware struct {
	Blender hal.Blender
	Sonar   hal.DistanceSensor
	Buttons [hal.ButtonCount]hal.Button
	Outputs *hal.Outputs
	Clock   hal.Clock
}

type Options struct {
	SensorPollIntervalMs int64
	Jam                  JamOptions
}

func DefaultOptions() Options {
	return Options{
		SensorPollIntervalMs: 500,
		Jam:                  DefaultJamOptions(),
	}
}

type Machine struct {
	logger  *zap.Logger
	hw      Hardware
	builder *action.Builder
	opts    Options

	blend        *action.Sequence
	clean        *action.Sequence
	initializing action.MoveToPosition
	blendFault   error

	state           State
	step            int
	lastStepTime    int64
	jam             jamTracker
	cupReading      int32
	lastCupReadTime int64
	initialized     bool
	buttons         [hal.ButtonCount]bool
	stepRequest     bool

	cycleID   uuid.UUID
	jamCount  int
	lastJamAt int64
	events    []Event
}

func New(hw Hardware, builder *action.Builder, opts Options, logger *zap.Logger) (*Machine, error) {
	blend, err := builder.BuildBlend()
	if err != nil {
		return nil, err
	}
	clean, err := builder.BuildClean()
	if err != nil {
		return nil, err
	}

	return &Machine{
		logger:       logger,
		hw:           hw,
		builder:      builder,
		opts:         opts,
		blend:        blend,
		clean:        clean,
		initializing: builder.InitializingAction(),
		state:        StateIdle,
	}, nil
}

// Init brings the hardware into a safe, known state.
func (m *Machine) Init() error {
	if err := m.hw.Blender.Init(); err != nil {
		return fmt.Errorf("failed to initialize blender: %w", err)
	}
	now := m.hw.Clock.Millis()
	m.initialized = false
	m.state = StateIdle
	m.lastCupReadTime = now
	m.lastStepTime = now
	m.ensure(action.OutputPump, action.Off)
	m.ensure(action.OutputBlender, action.Off)
	m.closeValves()
	m.resetJamBaseline(now)

	m.logger.Info("Machine ready",
		zap.Int("blend_steps", m.blend.Len()),
		zap.Int("clean_steps", m.clean.Len()))
	return nil
}

// Process runs one control-loop tick.
func (m *Machine) Process() {
	now := m.hw.Clock.Millis()
	m.hw.Blender.UpdateCurrentPosition()

	if m.lastCupReadTime+m.opts.SensorPollIntervalMs < now {
		m.cupReading = m.hw.Sonar.Ping()
		m.lastCupReadTime = now
	}

	for id, b := range m.hw.Buttons {
		if b != nil {
			m.buttons[id] = b.Read()
		}
	}

	m.handleInputs(now)

	m.logger.Debug("Machine tick",
		zap.String("state", string(m.state)),
		zap.Int("step", m.step),
		zap.Int32("position", int32(m.hw.Blender.Position())),
		zap.Int32("cup_reading", m.cupReading))

	switch m.state {
	case StateIdle:
		m.processIdle(now)
	case StateBlending:
		m.processBlending(now)
	case StateCleaning:
		m.processCleaning(now)
	case StateStepping:
		m.processStepping(now)
	case StateInitializing:
		m.processInitializing(now)
	}
}

func (m *Machine) pressed(id hal.ButtonID) bool {
	return m.buttons[id]
}

func (m *Machine) handleInputs(now int64) {
	if m.state == StateIdle {
		switch {
		case m.pressed(hal.BlendButton):
			m.logger.Info("Blend button pushed", zap.Int("total_actions", m.blend.Len()))
			m.startBlending(now, false)
		case m.pressed(hal.CleanButton):
			m.logger.Info("Clean button pushed")
			m.transition(StateCleaning, now)
		case m.pressed(hal.ReblendButton):
			m.logger.Info("Reblend button pushed", zap.Int("total_actions", m.blend.Len()))
			m.startBlending(now, true)
		}
	}

	if m.pressed(hal.InitializeButton) && m.state != StateInitializing {
		m.logger.Info("Initialize button pushed")
		m.transition(StateInitializing, now)
	}

	if m.pressed(hal.StopButton) && m.state != StateIdle {
		m.logger.Info("Stop button pushed, stopping machine", zap.String("state", string(m.state)))
		m.EmergencyStop()
		m.transition(StateIdle, now)
	}

	// stepping is not reachable yet; the request is only latched
	if m.pressed(hal.StepButton) && !m.stepRequest {
		m.stepRequest = true
		m.logger.Debug("Step requested")
	}
}

func (m *Machine) startBlending(now int64, reblend bool) {
	if m.blendFault != nil {
		m.rebuildBlend()
		if m.blendFault != nil {
			m.logger.Warn("Refusing to blend without a valid sequence", zap.Error(m.blendFault))
			return
		}
	}

	// Die alte Firmware schrieb fest auf Index 5, dort steht aber ein
	// Wait. Ziel ist der Schritt, der den Mixer einschaltet.
	if reblend {
		slot, ok := m.blend.Slot(action.LabelBlenderOn)
		if !ok {
			m.logger.Warn("Blend sequence has no blender-on step, reblending as a normal blend")
		} else if err := m.blend.Set(slot, action.Activate{Address: action.OutputBlender, State: action.Off}); err != nil {
			m.logger.Warn("Failed to apply reblend override", zap.Error(err))
		}
	}

	m.cycleID = uuid.New()
	m.transition(StateBlending, now)
	m.logger.Info("Blend cycle started",
		zap.String("cycle_id", m.cycleID.String()),
		zap.Bool("reblend", reblend))
}

func (m *Machine) transition(to State, now int64) {
	from := m.state
	if from == to {
		return
	}
	m.state = to
	m.lastStepTime = now

	m.logger.Info("Machine state changed",
		zap.String("state", string(to)),
		zap.String("previous_state", string(from)))
	m.emit(Event{Type: EventStateChanged, State: to, Previous: from})
}

func (m *Machine) processIdle(now int64) {
	switch {
	case m.pressed(hal.MoveUpButton):
		m.logger.Debug("Jogging up", zap.Int32("position", int32(m.hw.Blender.Position())))
		m.hw.Blender.Move(action.DirectionUp, action.SpeedHalf)
	case m.pressed(hal.MoveDownButton):
		m.logger.Debug("Jogging down", zap.Int32("position", int32(m.hw.Blender.Position())))
		m.hw.Blender.Move(action.DirectionDown, action.SpeedHalf)
	default:
		m.ensure(action.OutputPump, action.Off)
		m.ensure(action.OutputBlender, action.Off)
		if m.blend.Dirty() || m.blendFault != nil {
			m.rebuildBlend()
		}
		m.hw.Blender.Move(action.DirectionIdle, action.SpeedStop)
	}

	m.closeValves()

	m.step = 0
	m.lastStepTime = now
	m.resetJamBaseline(now)
}

func (m *Machine) processBlending(now int64) {
	current, ok := m.blend.At(m.step)
	if !ok {
		m.logger.Error("Blend cursor out of range, returning to idle",
			zap.Int("step", m.step),
			zap.Int("total_actions", m.blend.Len()))
		m.EmergencyStop()
		m.transition(StateIdle, now)
		return
	}

	if m.execute(current) == action.InProgress {
		if mtp, isMove := current.(action.MoveToPosition); isMove {
			m.checkForJams(now, mtp)
		}
		return
	}

	m.resetJamBaseline(now)
	m.completeStep(m.blend, current, now)

	if m.step == m.blend.Len() {
		m.logger.Info("Blending complete, cleaning machine", zap.String("cycle_id", m.cycleID.String()))
		m.emit(Event{Type: EventCycleCompleted, Sequence: m.blend.Name(), Total: m.blend.Len()})
		m.step = 0
		m.transition(StateCleaning, now)
		// jam recovery edits the blend sequence in place
		m.rebuildBlend()
	}
}

func (m *Machine) processCleaning(now int64) {
	current, ok := m.clean.At(m.step)
	if !ok {
		m.transition(StateIdle, now)
		return
	}
	if m.execute(current) == action.InProgress {
		return
	}

	m.completeStep(m.clean, current, now)
	if m.step == m.clean.Len() {
		m.logger.Info("Cleaning complete")
		m.transition(StateIdle, now)
	}
}

func (m *Machine) processStepping(now int64) {
	if !m.stepRequest {
		return
	}
	current, ok := m.blend.At(m.step)
	if !ok {
		m.transition(StateIdle, now)
		return
	}
	if m.execute(current) == action.InProgress {
		return
	}

	m.completeStep(m.blend, current, now)
	m.stepRequest = false
	if m.step == m.blend.Len() {
		m.logger.Info("Stepping complete, stopping machine")
		m.transition(StateIdle, now)
	}
}

func (m *Machine) processInitializing(now int64) {
	if m.execute(m.initializing) == action.InProgress {
		return
	}
	m.initialized = true
	m.logger.Info("Machine initialized", zap.Int32("position", int32(m.hw.Blender.Position())))
	m.transition(StateIdle, now)
}

func (m *Machine) completeStep(seq *action.Sequence, current action.Action, now int64) {
	total := seq.Len()
	fields := []zap.Field{
		zap.String("sequence", seq.Name()),
		zap.Int("step", m.step),
		zap.Int("percent_complete", 100*(m.step+1)/total),
		zap.String("action", current.String()),
	}
	if mtp, ok := current.(action.MoveToPosition); ok {
		fields = append(fields,
			zap.Int32("position", int32(m.hw.Blender.Position())),
			zap.Int32("target", int32(mtp.Target)))
	}
	m.logger.Debug("Step completed", fields...)
	m.emit(Event{Type: EventStepCompleted, Sequence: seq.Name(), Step: m.step, Total: total})

	m.step++
	m.lastStepTime = now
}

// EmergencyStop de-energizes the pump and blender and discards any edits
// to the blend sequence.
func (m *Machine) EmergencyStop() {
	m.hw.Outputs.Set(action.OutputPump, action.Off)
	m.hw.Outputs.Set(action.OutputBlender, action.Off)
	m.rebuildBlend()

	m.logger.Info("Emergency stop",
		zap.String("state", string(m.state)),
		zap.Int("step", m.step))
	m.emit(Event{Type: EventEmergencyStop})
}

func (m *Machine) rebuildBlend() {
	seq, err := m.builder.BuildBlend()
	if err != nil {
		m.blendFault = err
		m.logger.Error("Failed to rebuild blend sequence", zap.Error(err))
		return
	}
	m.blend = seq
	m.blendFault = nil
}

func (m *Machine) ensure(addr action.OutputAddress, state action.OutputState) {
	if m.hw.Outputs.State(addr) != state {
		m.hw.Outputs.Set(addr, state)
	}
}

func (m *Machine) closeValves() {
	m.ensure(action.OutputFillValve, action.Off)
	m.ensure(action.OutputCleanValve, action.Off)
}

func (m *Machine) emit(e Event) {
	if e.State == "" {
		e.State = m.state
	}
	if e.CycleID == "" && m.cycleID != uuid.Nil {
		e.CycleID = m.cycleID.String()
	}
	e.Position = int32(m.hw.Blender.Position())
	e.AtMs = m.hw.Clock.Millis()
	m.events = append(m.events, e)
}

// DrainEvents returns and clears the events recorded since the last call.
func (m *Machine) DrainEvents() []Event {
	events := m.events
	m.events = nil
	return events
}

// RequestStep latches a step request for the stepping state.
func (m *Machine) RequestStep() {
	m.stepRequest = true
}

func (m *Machine) State() State { return m.state }

func (m *Machine) Step() int { return m.step }

func (m *Machine) Blend() *action.Sequence { return m.blend }

func (m *Machine) Clean() *action.Sequence { return m.clean }

func (m *Machine) Status() Status {
	s := Status{
		State:         m.state,
		Step:          m.step,
		Initialized:   m.initialized,
		Position:      int32(m.hw.Blender.Position()),
		CupReading:    m.cupReading,
		JamCount:      m.jamCount,
		LastJamAtMs:   m.lastJamAt,
		StepRequested: m.stepRequest,
	}
	switch m.state {
	case StateBlending, StateStepping:
		s.Sequence = m.blend.Name()
		s.TotalSteps = m.blend.Len()
	case StateCleaning:
		s.Sequence = m.clean.Name()
		s.TotalSteps = m.clean.Len()
	}
	if m.cycleID != uuid.Nil {
		s.CycleID = m.cycleID.String()
	}
	if m.blendFault != nil {
		s.BlendFault = m.blendFault.Error()
	}
	return s
}
