package modbus

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrorHandler is told about failed poll cycles.
type ErrorHandler func(device string, err error)

type Poller struct {
	device   *Device
	interval time.Duration
	logger   *zap.Logger
	onError  ErrorHandler
	stopChan chan struct{}
	wg       sync.WaitGroup
	running  bool
	failing  bool
	mu       sync.Mutex
}

func NewPoller(device *Device, interval time.Duration, logger *zap.Logger) *Poller {
	return &Poller{
		device:   device,
		interval: interval,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// OnError registers a handler for the first failure after a healthy cycle.
func (p *Poller) OnError(handler ErrorHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onError = handler
}

// Start startet das zyklische Polling
func (p *Poller) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}

	p.running = true
	p.wg.Add(1)

	go p.pollLoop()

	p.logger.Info("Poller started",
		zap.String("device", p.device.Name),
		zap.Duration("interval", p.interval))

	return nil
}

// Stop stoppt das Polling. Ausstehende Schreibwerte werden noch einmal
// geschrieben.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	close(p.stopChan)
	p.wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), p.device.Client.timeout)
	defer cancel()
	if err := p.device.FlushWrites(ctx); err != nil {
		p.logger.Warn("Final flush failed", zap.String("device", p.device.Name), zap.Error(err))
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	p.logger.Info("Poller stopped", zap.String("device", p.device.Name))
}

func (p *Poller) pollLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopChan:
			return
		case <-ticker.C:
			p.PollOnce()
		}
	}
}

// PollOnce runs one cycle: reconnect if needed, flush queued writes, then
// refresh every register.
func (p *Poller) PollOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), p.device.Client.timeout)
	defer cancel()

	if !p.device.Connected() {
		if err := p.device.Connect(); err != nil {
			p.fail(err)
			return
		}
		p.logger.Info("Device reconnected", zap.String("device", p.device.Name))
	}

	if err := p.device.FlushWrites(ctx); err != nil {
		p.fail(err)
		return
	}

	// Alle Register im Profile pollen
	for _, reg := range p.device.Profile.Registers {
		if _, err := p.device.ReadRegister(ctx, reg.Name); err != nil {
			p.fail(err)
			return
		}
	}

	p.mu.Lock()
	recovered := p.failing
	p.failing = false
	p.mu.Unlock()
	if recovered {
		p.logger.Info("Poll recovered", zap.String("device", p.device.Name))
	}
}

func (p *Poller) fail(err error) {
	p.mu.Lock()
	first := !p.failing
	p.failing = true
	handler := p.onError
	p.mu.Unlock()

	if !first {
		p.logger.Debug("Poll failed", zap.String("device", p.device.Name), zap.Error(err))
		return
	}

	p.logger.Error("Poll failed",
		zap.String("device", p.device.Name),
		zap.Error(err))
	if handler != nil {
		handler(p.device.Name, err)
	}
}

// IsRunning gibt an ob Poller läuft
func (p *Poller) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}
