package hal

import "time"

// DebouncedButton reports a new state only after the raw input has held
// it for the debounce window.
type DebouncedButton struct {
	input    RawInput
	clock    Clock
	windowMs int64

	state      bool
	candidate  bool
	candidateT int64
}

func NewDebouncedButton(input RawInput, clock Clock, window time.Duration) *DebouncedButton {
	return &DebouncedButton{
		input:    input,
		clock:    clock,
		windowMs: window.Milliseconds(),
	}
}

func (b *DebouncedButton) Read() bool {
	raw := b.input.Raw()
	now := b.clock.Millis()

	if raw != b.candidate {
		b.candidate = raw
		b.candidateT = now
	}
	if b.candidate != b.state && now-b.candidateT >= b.windowMs {
		b.state = b.candidate
	}
	return b.state
}

// SystemClock counts milliseconds since it was created.
type SystemClock struct {
	start time.Time
}

func NewSystemClock() *SystemClock {
	return &SystemClock{start: time.Now()}
}

func (c *SystemClock) Millis() int64 {
	return time.Since(c.start).Milliseconds()
}

// InputSource hands out the raw input wired to each button.
type InputSource interface {
	Input(id ButtonID) RawInput
}

// DebouncedButtons wraps every raw button input of src.
func DebouncedButtons(src InputSource, clock Clock, window time.Duration) [ButtonCount]Button {
	var buttons [ButtonCount]Button
	for _, id := range AllButtons() {
		buttons[id] = NewDebouncedButton(src.Input(id), clock, window)
	}
	return buttons
}
