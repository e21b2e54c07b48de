package action

import "fmt"

type Kind string

const (
	KindMoveToPosition Kind = "move_to_position"
	KindWait           Kind = "wait"
	KindActivate       Kind = "activate"
	KindAgitate        Kind = "agitate"
	KindWaitFor        Kind = "wait_for"
)

// Action is one instruction of a sequence. The set of implementations is
// closed: MoveToPosition, Wait, Activate, Agitate and WaitFor.
type Action interface {
	Kind() Kind
	String() string
	sealed()
}

type MoveToPosition struct {
	Target    Position  `yaml:"target" json:"target"`
	Direction Direction `yaml:"direction" json:"direction"`
	Speed     Speed     `yaml:"speed" json:"speed"`
	TimeoutMs uint32    `yaml:"timeout_ms" json:"timeout_ms"`
}

type Wait struct {
	DurationMs uint32 `yaml:"duration_ms" json:"duration_ms"`
}

type Activate struct {
	Address OutputAddress `yaml:"address" json:"address"`
	State   OutputState   `yaml:"state" json:"state"`
}

// AgitateParams drive the blender back and forth: Down for one half
// period, Up for the next, until DurationMs has elapsed.
type AgitateParams struct {
	DurationMs   uint32 `yaml:"duration_ms" json:"duration_ms"`
	HalfPeriodMs uint32 `yaml:"half_period_ms" json:"half_period_ms"`
	Speed        Speed  `yaml:"speed" json:"speed"`
}

type Agitate struct {
	Params AgitateParams `yaml:"params" json:"params"`
}

type WaitFor struct {
	Condition SensorCondition `yaml:"condition" json:"condition"`
}

func (MoveToPosition) Kind() Kind { return KindMoveToPosition }
func (Wait) Kind() Kind           { return KindWait }
func (Activate) Kind() Kind       { return KindActivate }
func (Agitate) Kind() Kind        { return KindAgitate }
func (WaitFor) Kind() Kind        { return KindWaitFor }

func (MoveToPosition) sealed() {}
func (Wait) sealed()           {}
func (Activate) sealed()       {}
func (Agitate) sealed()        {}
func (WaitFor) sealed()        {}

func (a MoveToPosition) String() string {
	return fmt.Sprintf("move %s to %d at %s speed (timeout %dms)", a.Direction, a.Target, a.Speed, a.TimeoutMs)
}

func (a Wait) String() string {
	return fmt.Sprintf("wait %dms", a.DurationMs)
}

func (a Activate) String() string {
	return fmt.Sprintf("set %s %s", a.Address, a.State)
}

func (a Agitate) String() string {
	return fmt.Sprintf("agitate %dms (half period %dms, %s speed)", a.Params.DurationMs, a.Params.HalfPeriodMs, a.Params.Speed)
}

func (a WaitFor) String() string {
	return fmt.Sprintf("wait for %s %s %d", a.Condition.Source, a.Condition.Comparer, a.Condition.Value)
}

// IsMove reports whether a is a MoveToPosition.
func IsMove(a Action) bool {
	_, ok := a.(MoveToPosition)
	return ok
}
