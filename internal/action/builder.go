package action

import (
	"errors"
	"fmt"
)

const (
	BlendSequenceName = "blend"
	CleanSequenceName = "clean"

	// LabelBlenderOn marks the blend sequence's blender-ON activation.
	LabelBlenderOn = "blender-on"

	descentSteps     = 4
	oscillationSteps = 15
	moveTimeoutMs    = 5000
	homeTimeoutMs    = 10000
	initTimeoutMs    = 5000
)

// Layout holds the calibrated carriage positions. Up decreases position,
// so Top < TopOfCup < TopOfSmoothie < BottomOfCup.
type Layout struct {
	Top           Position
	TopOfCup      Position
	TopOfSmoothie Position
	BottomOfCup   Position
}

func (l Layout) Validate() error {
	if !(l.Top < l.TopOfCup && l.TopOfCup < l.TopOfSmoothie && l.TopOfSmoothie < l.BottomOfCup) {
		return fmt.Errorf("positions must increase top(%d) < top_of_cup(%d) < top_of_smoothie(%d) < bottom_of_cup(%d)",
			l.Top, l.TopOfCup, l.TopOfSmoothie, l.BottomOfCup)
	}
	// deepest descent target and the shallow blend hold must stay inside the cup
	if l.TopOfSmoothie+Position(15*(descentSteps-1)+5) > l.BottomOfCup {
		return errors.New("top_of_smoothie too close to bottom_of_cup for the descent steps")
	}
	if l.TopOfCup-20 <= l.Top {
		return errors.New("top_of_cup too close to top for the submerged hold")
	}
	return nil
}

type CleanParams struct {
	CupAbsentDistance int32
	AgitateDurationMs uint32
	AgitateHalfMs     uint32
	DripWaitMs        uint32
}

// Builder produces the canonical sequences for a given layout.
type Builder struct {
	Layout   Layout
	Clean    CleanParams
	Capacity int
}

func NewBuilder(layout Layout, clean CleanParams, capacity int) *Builder {
	return &Builder{Layout: layout, Clean: clean, Capacity: capacity}
}

type appender struct {
	seq *Sequence
	err error
}

func (a *appender) add(act Action) {
	if a.err != nil {
		return
	}
	a.err = a.seq.Append(act)
}

func down(target Position, speed Speed, timeout uint32) MoveToPosition {
	return MoveToPosition{Target: target, Direction: DirectionDown, Speed: speed, TimeoutMs: timeout}
}

func up(target Position, speed Speed, timeout uint32) MoveToPosition {
	return MoveToPosition{Target: target, Direction: DirectionUp, Speed: speed, TimeoutMs: timeout}
}

// BuildBlend returns the blend choreography: lower above the cup, start
// the blender, step down into the smoothie, oscillate between the bottom
// of the cup and just under the surface, lift while submerged, stop the
// blender and return home.
func (b *Builder) BuildBlend() (*Sequence, error) {
	l := b.Layout
	a := &appender{seq: NewSequence(BlendSequenceName, b.Capacity)}

	a.add(down(l.TopOfCup, SpeedHalf, moveTimeoutMs))

	a.add(Activate{Address: OutputBlender, State: On})
	a.seq.Mark(LabelBlenderOn)

	for j := 0; j < descentSteps; j++ {
		a.add(down(l.TopOfSmoothie+Position(15*j+5), SpeedHalf, moveTimeoutMs))
		a.add(Wait{DurationMs: 1000})
		if j == descentSteps-1 {
			a.add(Wait{DurationMs: 2000})
		}
	}

	for j := 0; j < oscillationSteps; j++ {
		a.add(down(l.BottomOfCup, SpeedHalf, moveTimeoutMs))
		a.add(Wait{DurationMs: 200})
		lift := Position(5)
		if j < 2 {
			lift = 10
		}
		a.add(up(l.TopOfSmoothie+lift, SpeedHalf, moveTimeoutMs))
		a.add(Wait{DurationMs: 200})
	}

	// stay in the liquid until the blender has stopped
	a.add(up(l.TopOfCup-20, SpeedHalf, moveTimeoutMs))
	a.add(Activate{Address: OutputBlender, State: Off})
	a.add(up(l.Top, SpeedFull, homeTimeoutMs))

	if a.err != nil {
		return nil, fmt.Errorf("build blend sequence: %w", a.err)
	}
	return a.seq, nil
}

// BuildClean returns the rinse routine run after every blend.
func (b *Builder) BuildClean() (*Sequence, error) {
	l := b.Layout
	c := b.Clean
	a := &appender{seq: NewSequence(CleanSequenceName, b.Capacity)}

	a.add(WaitFor{Condition: SensorCondition{Source: SourceCupDetect, Comparer: GreaterThan, Value: c.CupAbsentDistance}})
	a.add(down(l.TopOfCup, SpeedHalf, moveTimeoutMs))
	a.add(Activate{Address: OutputCleanValve, State: On})
	a.add(Activate{Address: OutputBlender, State: On})
	a.add(Agitate{Params: AgitateParams{DurationMs: c.AgitateDurationMs, HalfPeriodMs: c.AgitateHalfMs, Speed: SpeedHalf}})
	a.add(Activate{Address: OutputCleanValve, State: Off})
	a.add(Wait{DurationMs: c.DripWaitMs})
	a.add(Activate{Address: OutputBlender, State: Off})
	a.add(up(l.Top, SpeedFull, homeTimeoutMs))

	if a.err != nil {
		return nil, fmt.Errorf("build clean sequence: %w", a.err)
	}
	return a.seq, nil
}

// InitializingAction homes the carriage.
func (b *Builder) InitializingAction() MoveToPosition {
	return up(b.Layout.Top, SpeedFull, initTimeoutMs)
}
