// Package sim is an in-memory stand-in for the blender hardware: a manual
// clock, a motor model with position feedback, digital outputs, a sonar
// and push buttons.
package sim

import (
	"context"
	"sync"
	"time"

	"github.com/KevinKickass/OpenBlenderCore/internal/action"
	"github.com/KevinKickass/OpenBlenderCore/internal/hal"
)

// ManualClock only moves when advanced.
type ManualClock struct {
	mu  sync.Mutex
	now int64
}

func (c *ManualClock) Millis() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) Advance(ms int64) {
	c.mu.Lock()
	c.now += ms
	c.mu.Unlock()
}

// Rig is a simulated machine. Advance moves time forward and integrates
// the carriage motion.
type Rig struct {
	Clock *ManualClock

	mu         sync.Mutex
	levels     map[action.OutputAddress]hal.Level
	pressed    [hal.ButtonCount]bool
	distance   int32
	position   float64
	dir        action.Direction
	speed      action.Speed
	jammed     bool
	unitsPerMs map[action.Speed]float64
	minPos     float64
	maxPos     float64
}

func NewRig(start action.Position) *Rig {
	return &Rig{
		Clock:    &ManualClock{},
		levels:   make(map[action.OutputAddress]hal.Level),
		position: float64(start),
		dir:      action.DirectionIdle,
		speed:    action.SpeedStop,
		distance: 10,
		unitsPerMs: map[action.Speed]float64{
			action.SpeedHalf: 0.1,
			action.SpeedFull: 0.2,
		},
		minPos: 0,
		maxPos: 1023,
	}
}

// Advance moves the clock by ms and the carriage accordingly.
func (r *Rig) Advance(ms int64) {
	r.mu.Lock()
	if !r.jammed {
		delta := r.unitsPerMs[r.speed] * float64(ms)
		switch r.dir {
		case action.DirectionUp:
			r.position -= delta
		case action.DirectionDown:
			r.position += delta
		}
		if r.position < r.minPos {
			r.position = r.minPos
		}
		if r.position > r.maxPos {
			r.position = r.maxPos
		}
	}
	r.mu.Unlock()
	r.Clock.Advance(ms)
}

// Run advances the rig by step of wall-clock time on every tick until ctx
// is done.
func (r *Rig) Run(ctx context.Context, step time.Duration) {
	ticker := time.NewTicker(step)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Advance(step.Milliseconds())
		}
	}
}

func (r *Rig) Drive(dir action.Direction, speed action.Speed) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dir = dir
	r.speed = speed
}

// Driving returns the last motor command.
func (r *Rig) Driving() (action.Direction, action.Speed) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dir, r.speed
}

func (r *Rig) ReadPosition() action.Position {
	r.mu.Lock()
	defer r.mu.Unlock()
	return action.Position(r.position)
}

func (r *Rig) SetPosition(p action.Position) {
	r.mu.Lock()
	r.position = float64(p)
	r.mu.Unlock()
}

// Jam freezes the carriage wherever it is.
func (r *Rig) Jam(jammed bool) {
	r.mu.Lock()
	r.jammed = jammed
	r.mu.Unlock()
}

func (r *Rig) WriteLevel(addr action.OutputAddress, level hal.Level) {
	r.mu.Lock()
	r.levels[addr] = level
	r.mu.Unlock()
}

func (r *Rig) ReadLevel(addr action.OutputAddress) hal.Level {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.levels[addr]
}

func (r *Rig) Ping() int32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.distance
}

// SetDistance sets the sonar reading in centimetres.
func (r *Rig) SetDistance(cm int32) {
	r.mu.Lock()
	r.distance = cm
	r.mu.Unlock()
}

func (r *Rig) Press(id hal.ButtonID) {
	r.mu.Lock()
	r.pressed[id] = true
	r.mu.Unlock()
}

func (r *Rig) Release(id hal.ButtonID) {
	r.mu.Lock()
	r.pressed[id] = false
	r.mu.Unlock()
}

type button struct {
	rig *Rig
	id  hal.ButtonID
}

func (b button) Raw() bool {
	b.rig.mu.Lock()
	defer b.rig.mu.Unlock()
	return b.rig.pressed[b.id]
}

func (r *Rig) Input(id hal.ButtonID) hal.RawInput {
	return button{rig: r, id: id}
}
