package machine

import "time"

type State string

const (
	StateIdle         State = "idle"
	StateBlending     State = "blending"
	StateCleaning     State = "cleaning"
	StateStepping     State = "stepping"
	StateInitializing State = "initializing"
)

type EventType string

const (
	EventStateChanged       EventType = "state_changed"
	EventStepCompleted      EventType = "step_completed"
	EventJamDetected        EventType = "jam_detected"
	EventJamRecoverySkipped EventType = "jam_recovery_skipped"
	EventCycleCompleted     EventType = "cycle_completed"
	EventEmergencyStop      EventType = "emergency_stop"
)

// Event is something the machine did during a tick.
type Event struct {
	Type     EventType `json:"type"`
	State    State     `json:"state"`
	Previous State     `json:"previous_state,omitempty"`
	Sequence string    `json:"sequence,omitempty"`
	Step     int       `json:"step"`
	Total    int       `json:"total,omitempty"`
	CycleID  string    `json:"cycle_id,omitempty"`
	Position int32     `json:"position"`
	Message  string    `json:"message,omitempty"`
	AtMs     int64     `json:"at_ms"`
}

type Status struct {
	State         State  `json:"state"`
	Sequence      string `json:"sequence,omitempty"`
	Step          int    `json:"step"`
	TotalSteps    int    `json:"total_steps"`
	CycleID       string `json:"cycle_id,omitempty"`
	Initialized   bool   `json:"initialized"`
	Position      int32  `json:"position"`
	CupReading    int32  `json:"cup_reading"`
	JamCount      int    `json:"jam_count"`
	LastJamAtMs   int64  `json:"last_jam_at_ms,omitempty"`
	StepRequested bool   `json:"step_requested"`
	BlendFault    string `json:"blend_fault,omitempty"`
}

// MachineStatus is the status published by the controller.
type MachineStatus struct {
	Status
	LastStateChange time.Time `json:"last_state_change"`
	Ticks           uint64    `json:"ticks"`
}
