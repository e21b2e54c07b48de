package machine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/KevinKickass/OpenBlenderCore/internal/action"
	"github.com/KevinKickass/OpenBlenderCore/internal/api/websocket"
	"go.uber.org/zap"
)

// Controller owns the machine and is the only goroutine that touches it.
// Everything else reads published snapshots.
type Controller struct {
	logger   *zap.Logger
	machine  *Machine
	interval time.Duration
	wsHub    *websocket.Hub

	mu              sync.RWMutex
	status          Status
	lastStateChange time.Time
	ticks           uint64
	sequences       map[string]action.Snapshot

	listenersMu sync.RWMutex
	listeners   []chan Event
}

func NewController(logger *zap.Logger, machine *Machine, interval time.Duration, wsHub *websocket.Hub) *Controller {
	c := &Controller{
		logger:          logger,
		machine:         machine,
		interval:        interval,
		wsHub:           wsHub,
		lastStateChange: time.Now(),
		sequences:       make(map[string]action.Snapshot),
	}
	c.refresh(true)
	return c
}

// Run initializes the machine and ticks it until ctx is cancelled, then
// leaves the machine de-energized.
func (c *Controller) Run(ctx context.Context) error {
	if err := c.machine.Init(); err != nil {
		return fmt.Errorf("machine init failed: %w", err)
	}
	c.refresh(true)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.logger.Info("Control loop started", zap.Duration("interval", c.interval))

	for {
		select {
		case <-ctx.Done():
			c.machine.EmergencyStop()
			c.publish(c.machine.DrainEvents())
			c.logger.Info("Control loop stopped")
			return nil
		case <-ticker.C:
			c.Tick()
		}
	}
}

// Tick runs one machine cycle and publishes its results. It must only be
// called from the goroutine that owns the machine.
func (c *Controller) Tick() {
	c.machine.Process()
	c.publish(c.machine.DrainEvents())
}

func (c *Controller) publish(events []Event) {
	sequencesChanged := false
	stateChanged := false
	for _, ev := range events {
		switch ev.Type {
		case EventStateChanged:
			stateChanged = true
			sequencesChanged = true
		case EventJamDetected, EventCycleCompleted, EventEmergencyStop:
			sequencesChanged = true
		}
	}

	c.mu.Lock()
	c.ticks++
	if stateChanged {
		c.lastStateChange = time.Now()
	}
	c.mu.Unlock()
	c.refresh(sequencesChanged)

	for _, ev := range events {
		c.notify(ev)
	}
}

func (c *Controller) refresh(sequences bool) {
	status := c.machine.Status()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = status
	if sequences {
		c.sequences[action.BlendSequenceName] = c.machine.Blend().Snapshot()
		c.sequences[action.CleanSequenceName] = c.machine.Clean().Snapshot()
	}
}

func (c *Controller) notify(ev Event) {
	if c.wsHub != nil {
		c.wsHub.Broadcast(websocket.NewMachineEventMessage(string(ev.Type), ev))
	}

	c.listenersMu.RLock()
	defer c.listenersMu.RUnlock()
	for _, listener := range c.listeners {
		select {
		case listener <- ev:
		default:
			// Listener too slow, drop
		}
	}
}

// Subscribe returns a channel receiving every machine event.
func (c *Controller) Subscribe() chan Event {
	ch := make(chan Event, 64)

	c.listenersMu.Lock()
	c.listeners = append(c.listeners, ch)
	c.listenersMu.Unlock()

	return ch
}

func (c *Controller) Unsubscribe(ch chan Event) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()

	for i, listener := range c.listeners {
		if listener == ch {
			c.listeners = append(c.listeners[:i], c.listeners[i+1:]...)
			close(ch)
			break
		}
	}
}

func (c *Controller) GetStatus() MachineStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return MachineStatus{
		Status:          c.status,
		LastStateChange: c.lastStateChange,
		Ticks:           c.ticks,
	}
}

// Sequence returns the published snapshot of the named sequence.
func (c *Controller) Sequence(name string) (action.Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap, ok := c.sequences[name]
	return snap, ok
}

// StatusSnapshot satisfies websocket.StatusProvider.
func (c *Controller) StatusSnapshot() any {
	return c.GetStatus()
}
