package action

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testLayout = Layout{Top: 40, TopOfCup: 300, TopOfSmoothie: 380, BottomOfCup: 560}

var testClean = CleanParams{CupAbsentDistance: 17, AgitateDurationMs: 3000, AgitateHalfMs: 250, DripWaitMs: 1000}

// 1 + 1 + (4*2 + 1) + 15*4 + 3
const canonicalBlendLength = 74

func newTestBuilder() *Builder {
	return NewBuilder(testLayout, testClean, 80)
}

func TestBuildBlend_Length(t *testing.T) {
	seq, err := newTestBuilder().BuildBlend()
	require.NoError(t, err)
	assert.Equal(t, canonicalBlendLength, seq.Len())
	assert.False(t, seq.Dirty())
}

func TestBuildBlend_Opening(t *testing.T) {
	seq, err := newTestBuilder().BuildBlend()
	require.NoError(t, err)

	first, _ := seq.At(0)
	assert.Equal(t, MoveToPosition{Target: 300, Direction: DirectionDown, Speed: SpeedHalf, TimeoutMs: 5000}, first)

	second, _ := seq.At(1)
	assert.Equal(t, Activate{Address: OutputBlender, State: On}, second)

	slot, ok := seq.Slot(LabelBlenderOn)
	require.True(t, ok)
	assert.Equal(t, 1, slot)
}

func TestBuildBlend_Descent(t *testing.T) {
	seq, err := newTestBuilder().BuildBlend()
	require.NoError(t, err)

	// steps 2..10: (move, wait) x4 with an extra wait after the 4th
	var targets []Position
	for i := 2; i <= 10; i++ {
		a, _ := seq.At(i)
		if mtp, ok := a.(MoveToPosition); ok {
			targets = append(targets, mtp.Target)
			assert.Equal(t, DirectionDown, mtp.Direction)
			assert.Equal(t, SpeedHalf, mtp.Speed)
			assert.Equal(t, uint32(5000), mtp.TimeoutMs)
		}
	}
	require.Len(t, targets, 4)
	assert.Equal(t, Position(385), targets[0])
	for i := 1; i < len(targets); i++ {
		assert.Equal(t, Position(15), targets[i]-targets[i-1])
	}

	waits := []Action{}
	for _, i := range []int{3, 5, 7, 9, 10} {
		a, _ := seq.At(i)
		waits = append(waits, a)
	}
	assert.Equal(t, []Action{
		Wait{DurationMs: 1000},
		Wait{DurationMs: 1000},
		Wait{DurationMs: 1000},
		Wait{DurationMs: 1000},
		Wait{DurationMs: 2000},
	}, waits)
}

func TestBuildBlend_Oscillation(t *testing.T) {
	seq, err := newTestBuilder().BuildBlend()
	require.NoError(t, err)

	start := 11
	for j := 0; j < 15; j++ {
		base := start + 4*j
		d, _ := seq.At(base)
		w1, _ := seq.At(base + 1)
		u, _ := seq.At(base + 2)
		w2, _ := seq.At(base + 3)

		assert.Equal(t, MoveToPosition{Target: 560, Direction: DirectionDown, Speed: SpeedHalf, TimeoutMs: 5000}, d, "iteration %d", j)
		assert.Equal(t, Wait{DurationMs: 200}, w1)
		lift := Position(385)
		if j < 2 {
			lift = 390
		}
		assert.Equal(t, MoveToPosition{Target: lift, Direction: DirectionUp, Speed: SpeedHalf, TimeoutMs: 5000}, u, "iteration %d", j)
		assert.Equal(t, Wait{DurationMs: 200}, w2)
	}
}

func TestBuildBlend_Closing(t *testing.T) {
	seq, err := newTestBuilder().BuildBlend()
	require.NoError(t, err)

	n := seq.Len()
	hold, _ := seq.At(n - 3)
	off, _ := seq.At(n - 2)
	home, _ := seq.At(n - 1)
	assert.Equal(t, MoveToPosition{Target: 280, Direction: DirectionUp, Speed: SpeedHalf, TimeoutMs: 5000}, hold)
	assert.Equal(t, Activate{Address: OutputBlender, State: Off}, off)
	assert.Equal(t, MoveToPosition{Target: 40, Direction: DirectionUp, Speed: SpeedFull, TimeoutMs: 10000}, home)
}

func TestBuildBlend_Idempotent(t *testing.T) {
	b := newTestBuilder()
	first, err := b.BuildBlend()
	require.NoError(t, err)
	second, err := b.BuildBlend()
	require.NoError(t, err)
	assert.Equal(t, first.Actions(), second.Actions())
}

func TestBuildBlend_CapacityExceeded(t *testing.T) {
	b := NewBuilder(testLayout, testClean, 50)
	seq, err := b.BuildBlend()
	assert.Nil(t, seq)
	assert.True(t, errors.Is(err, ErrCapacityExceeded))
}

func TestBuildClean(t *testing.T) {
	seq, err := newTestBuilder().BuildClean()
	require.NoError(t, err)
	require.Equal(t, 9, seq.Len())

	first, _ := seq.At(0)
	assert.Equal(t, WaitFor{Condition: SensorCondition{Source: SourceCupDetect, Comparer: GreaterThan, Value: 17}}, first)

	agitate, _ := seq.At(4)
	assert.Equal(t, KindAgitate, agitate.Kind())

	last, _ := seq.At(8)
	assert.Equal(t, MoveToPosition{Target: 40, Direction: DirectionUp, Speed: SpeedFull, TimeoutMs: 10000}, last)
}

func TestInitializingAction(t *testing.T) {
	a := newTestBuilder().InitializingAction()
	assert.Equal(t, MoveToPosition{Target: 40, Direction: DirectionUp, Speed: SpeedFull, TimeoutMs: 5000}, a)
}

func TestLayout_Validate(t *testing.T) {
	assert.NoError(t, testLayout.Validate())

	bad := testLayout
	bad.TopOfSmoothie = 250
	assert.Error(t, bad.Validate())

	shallow := Layout{Top: 40, TopOfCup: 300, TopOfSmoothie: 380, BottomOfCup: 400}
	assert.Error(t, shallow.Validate())
}
