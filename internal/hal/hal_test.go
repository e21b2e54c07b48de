package hal

import (
	"testing"
	"time"

	"github.com/KevinKickass/OpenBlenderCore/internal/action"
	"github.com/stretchr/testify/assert"
)

type fakeClock struct{ now int64 }

func (c *fakeClock) Millis() int64 { return c.now }

type fakeInput struct{ pressed bool }

func (i *fakeInput) Raw() bool { return i.pressed }

type fakeIO map[action.OutputAddress]Level

func (f fakeIO) WriteLevel(addr action.OutputAddress, level Level) { f[addr] = level }
func (f fakeIO) ReadLevel(addr action.OutputAddress) Level         { return f[addr] }

func TestDebouncedButton_RequiresStableWindow(t *testing.T) {
	clock := &fakeClock{}
	in := &fakeInput{}
	b := NewDebouncedButton(in, clock, 50*time.Millisecond)

	in.pressed = true
	assert.False(t, b.Read())

	clock.now = 30
	assert.False(t, b.Read())

	// bounce resets the window
	in.pressed = false
	clock.now = 35
	assert.False(t, b.Read())
	in.pressed = true
	clock.now = 40
	assert.False(t, b.Read())

	clock.now = 89
	assert.False(t, b.Read())
	clock.now = 90
	assert.True(t, b.Read())

	in.pressed = false
	clock.now = 100
	assert.True(t, b.Read())
	clock.now = 150
	assert.False(t, b.Read())
}

func TestDebouncedButton_ZeroWindow(t *testing.T) {
	in := &fakeInput{pressed: true}
	b := NewDebouncedButton(in, &fakeClock{}, 0)
	assert.True(t, b.Read())
	in.pressed = false
	assert.False(t, b.Read())
}

func TestOutputs_Polarity(t *testing.T) {
	io := fakeIO{}
	out := NewOutputs(io, []action.OutputAddress{action.OutputPump, action.OutputCleanValve})

	out.Set(action.OutputPump, action.Off)
	out.Set(action.OutputBlender, action.Off)
	assert.Equal(t, High, io[action.OutputPump])
	assert.Equal(t, Low, io[action.OutputBlender])

	out.Set(action.OutputPump, action.On)
	out.Set(action.OutputBlender, action.On)
	assert.Equal(t, Low, io[action.OutputPump])
	assert.Equal(t, High, io[action.OutputBlender])

	assert.Equal(t, action.On, out.State(action.OutputPump))
	assert.Equal(t, action.On, out.State(action.OutputBlender))
	assert.Equal(t, Low, out.Level(action.OutputPump))
}

func TestButtonID_String(t *testing.T) {
	assert.Equal(t, "reblend", ReblendButton.String())
	assert.Equal(t, "button(42)", ButtonID(42).String())
	assert.Len(t, AllButtons(), int(ButtonCount))
}
