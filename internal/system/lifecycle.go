package system

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/KevinKickass/OpenBlenderCore/internal/action"
	"github.com/KevinKickass/OpenBlenderCore/internal/api/rest"
	"github.com/KevinKickass/OpenBlenderCore/internal/api/websocket"
	"github.com/KevinKickass/OpenBlenderCore/internal/config"
	"github.com/KevinKickass/OpenBlenderCore/internal/devices"
	"github.com/KevinKickass/OpenBlenderCore/internal/hal"
	"github.com/KevinKickass/OpenBlenderCore/internal/interfaces"
	"github.com/KevinKickass/OpenBlenderCore/internal/machine"
	"github.com/KevinKickass/OpenBlenderCore/internal/modbus"
	"github.com/KevinKickass/OpenBlenderCore/internal/sim"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// MachineService is the health service name that reports SERVING once the
// machine has been initialized.
const MachineService = "blender.Machine"

const (
	deviceName              = "blender"
	statusBroadcastInterval = time.Second
)

type LifecycleManager struct {
	config   *config.Config
	logger   *zap.Logger
	simulate bool

	deviceManager     *devices.Manager
	rig               *sim.Rig
	wsHub             *websocket.Hub
	machineController *machine.Controller
	health            *health.Server

	restServer   *rest.Server
	grpcServer   *grpc.Server
	grpcListener net.Listener

	serviceCancel context.CancelFunc
	controlCancel context.CancelFunc
	controlDone   chan struct{}
	background    sync.WaitGroup

	stateMu      sync.RWMutex
	currentState SystemState
	lastError    string

	shutdownOnce sync.Once
}

// NewLifecycleManager prepares the system. simulate forces the in-memory
// backend regardless of the configured one.
func NewLifecycleManager(cfg *config.Config, logger *zap.Logger, simulate bool) (*LifecycleManager, error) {
	deviceManager, err := devices.NewManager(cfg.Hardware.SearchPaths, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create device manager: %w", err)
	}

	return &LifecycleManager{
		config:        cfg,
		logger:        logger,
		simulate:      simulate || cfg.Hardware.Backend == config.BackendSim,
		deviceManager: deviceManager,
		wsHub:         websocket.NewHub(logger),
		health:        health.NewServer(),
		currentState:  StateInitializing,
	}, nil
}

func (lm *LifecycleManager) backendName() string {
	if lm.simulate {
		return config.BackendSim
	}
	return config.BackendModbus
}

// Start builds the backend and starts telemetry and the control loop.
func (lm *LifecycleManager) Start() error {
	lm.logger.Info("Starting OpenBlenderCore", zap.String("backend", lm.backendName()))

	serviceCtx, cancel := context.WithCancel(context.Background())
	lm.serviceCancel = cancel

	m, err := lm.buildMachine(serviceCtx)
	if err != nil {
		return lm.fail(err)
	}

	lm.machineController = machine.NewController(lm.logger, m, lm.config.Machine.TickInterval, lm.wsHub)
	lm.wsHub.SetStatusProvider(lm.machineController)

	lm.goBackground(func() { lm.wsHub.Run(serviceCtx) })
	lm.goBackground(func() { lm.wsHub.RunStatusBroadcast(serviceCtx, statusBroadcastInterval) })

	if err := lm.startRESTServer(); err != nil {
		return lm.fail(fmt.Errorf("failed to start REST API: %w", err))
	}

	if err := lm.startGRPCServer(); err != nil {
		return lm.fail(fmt.Errorf("failed to start gRPC: %w", err))
	}

	lm.startControlLoop(serviceCtx)

	lm.setState(StateRunning)

	lm.logger.Info("System started successfully",
		zap.String("backend", lm.backendName()),
		zap.Int("http_port", lm.config.Telemetry.HTTPPort),
		zap.Int("grpc_port", lm.config.Telemetry.GRPCPort))

	return nil
}

func (lm *LifecycleManager) buildMachine(ctx context.Context) (*machine.Machine, error) {
	if lm.simulate {
		lm.rig = sim.NewRig(action.Position(lm.config.Positions.Top))
		lm.goBackground(func() { lm.rig.Run(ctx, lm.config.Machine.TickInterval) })
		return NewMachine(lm.config, lm.rig, lm.rig.Clock, lm.logger)
	}

	io, err := lm.connectDevice()
	if err != nil {
		return nil, fmt.Errorf("failed to connect hardware: %w", err)
	}
	return NewMachine(lm.config, io, hal.NewSystemClock(), lm.logger)
}

func (lm *LifecycleManager) connectDevice() (*modbus.IO, error) {
	hw := lm.config.Hardware

	device, err := lm.deviceManager.LoadDevice(deviceName, hw.Profile, hw.Address, hw.Port, hw.UnitID, hw.Timeout)
	if err != nil {
		return nil, err
	}

	io, err := modbus.NewIO(device, lm.logger.Named("io"))
	if err != nil {
		return nil, err
	}

	if err := lm.deviceManager.StartPoller(device.ID, hw.PollInterval, lm.reportIOError); err != nil {
		return nil, err
	}

	return io, nil
}

func (lm *LifecycleManager) reportIOError(device string, err error) {
	lm.wsHub.Broadcast(websocket.NewIOErrorMessage(device, err))
}

func (lm *LifecycleManager) goBackground(fn func()) {
	lm.background.Add(1)
	go func() {
		defer lm.background.Done()
		fn()
	}()
}

func (lm *LifecycleManager) startControlLoop(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	lm.controlCancel = cancel
	lm.controlDone = make(chan struct{})

	lm.health.SetServingStatus(MachineService, healthpb.HealthCheckResponse_NOT_SERVING)
	events := lm.machineController.Subscribe()
	lm.goBackground(func() { lm.watchReadiness(ctx, events) })

	go func() {
		defer close(lm.controlDone)
		if err := lm.machineController.Run(ctx); err != nil {
			lm.logger.Error("Control loop failed", zap.Error(err))
			lm.setError(err)
		}
	}()
}

// watchReadiness mirrors the machine's initialized flag into the health
// service.
func (lm *LifecycleManager) watchReadiness(ctx context.Context, events chan machine.Event) {
	defer lm.machineController.Unsubscribe(events)

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-events:
			if !ok {
				return
			}
			status := healthpb.HealthCheckResponse_NOT_SERVING
			if lm.machineController.GetStatus().Initialized {
				status = healthpb.HealthCheckResponse_SERVING
			}
			lm.health.SetServingStatus(MachineService, status)
		}
	}
}

func (lm *LifecycleManager) startGRPCServer() error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", lm.config.Telemetry.GRPCPort))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	lm.grpcListener = lis

	lm.grpcServer = grpc.NewServer()
	healthpb.RegisterHealthServer(lm.grpcServer, lm.health)

	go func() {
		lm.logger.Info("gRPC server listening",
			zap.String("address", lis.Addr().String()),
			zap.String("services", "grpc.health.v1.Health"))
		if err := lm.grpcServer.Serve(lis); err != nil {
			lm.logger.Error("gRPC server failed", zap.Error(err))
		}
	}()

	return nil
}

func (lm *LifecycleManager) startRESTServer() error {
	lm.restServer = rest.NewServer(lm.config, lm, lm.logger, lm.wsHub)
	return lm.restServer.Start()
}

// Shutdown stops everything in reverse start order. The machine is
// de-energized before the poller's final flush.
func (lm *LifecycleManager) Shutdown(ctx context.Context) error {
	var shutdownErr error

	lm.shutdownOnce.Do(func() {
		lm.logger.Info("Shutting down system")
		lm.setState(StateStopping)

		if timeout := lm.config.Telemetry.ShutdownTimeout; timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		shutdownErr = lm.gracefulShutdown(ctx)
		if shutdownErr != nil {
			lm.recordError(shutdownErr)
		}
		lm.setState(StateStopped)
	})

	return shutdownErr
}

func (lm *LifecycleManager) gracefulShutdown(ctx context.Context) error {
	var errs []error

	lm.health.Shutdown()

	// 1. Control loop: emergency stop
	if lm.controlCancel != nil {
		lm.controlCancel()
		select {
		case <-lm.controlDone:
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("control loop did not stop: %w", ctx.Err()))
		}
	}

	// 2. gRPC
	if lm.grpcServer != nil {
		stopped := make(chan struct{})
		go func() {
			lm.grpcServer.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-ctx.Done():
			lm.grpcServer.Stop()
		}
	}

	// 3. REST
	if lm.restServer != nil {
		if err := lm.restServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("rest api shutdown failed: %w", err))
		}
	}

	// 4. Hub, sim driver, readiness watcher
	if lm.serviceCancel != nil {
		lm.serviceCancel()
	}
	done := make(chan struct{})
	go func() {
		lm.background.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("shutdown timeout exceeded"))
	}

	// 5. Pollers flush the stop writes, then disconnect
	if err := lm.deviceManager.StopAll(ctx); err != nil {
		errs = append(errs, fmt.Errorf("device manager stop failed: %w", err))
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}
	lm.logger.Info("Graceful shutdown completed")
	return nil
}

func (lm *LifecycleManager) fail(err error) error {
	lm.logger.Error("Startup failed", zap.Error(err))
	lm.setError(err)
	return err
}

func (lm *LifecycleManager) setState(state SystemState) {
	lm.stateMu.Lock()
	defer lm.stateMu.Unlock()

	if err := ValidateTransition(lm.currentState, state); err != nil {
		lm.logger.Warn("Ignoring state change", zap.Error(err))
		return
	}
	lm.currentState = state
}

func (lm *LifecycleManager) setError(err error) {
	lm.recordError(err)
	lm.setState(StateError)
}

func (lm *LifecycleManager) recordError(err error) {
	lm.stateMu.Lock()
	defer lm.stateMu.Unlock()
	lm.lastError = err.Error()
}

// State returns the lifecycle state.
func (lm *LifecycleManager) State() SystemState {
	lm.stateMu.RLock()
	defer lm.stateMu.RUnlock()
	return lm.currentState
}

// GetCurrentStatus returns current system status (Interface implementation)
func (lm *LifecycleManager) GetCurrentStatus() interfaces.SystemStatus {
	lm.stateMu.RLock()
	state, lastError := lm.currentState, lm.lastError
	lm.stateMu.RUnlock()

	devs := lm.deviceManager.Status()
	connected := 0
	for _, d := range devs {
		if d.Connected {
			connected++
		}
	}

	return interfaces.SystemStatus{
		State:            state.String(),
		Backend:          lm.backendName(),
		Error:            lastError,
		DeviceCount:      len(devs),
		ConnectedDevices: connected,
		Devices:          devs,
		TelemetryClients: lm.wsHub.GetClientCount(),
	}
}

// MachineController returns the machine controller, nil before Start.
func (lm *LifecycleManager) MachineController() *machine.Controller {
	return lm.machineController
}

// DeviceManager returns the device manager
func (lm *LifecycleManager) DeviceManager() *devices.Manager {
	return lm.deviceManager
}

// Config returns the configuration
func (lm *LifecycleManager) Config() *config.Config {
	return lm.config
}

// Rig returns the simulated rig, nil on real hardware.
func (lm *LifecycleManager) Rig() *sim.Rig {
	return lm.rig
}

// RESTAddr returns the address the REST API listens on.
func (lm *LifecycleManager) RESTAddr() string {
	if lm.restServer == nil {
		return ""
	}
	return lm.restServer.Addr()
}

// GRPCAddr returns the address the gRPC server listens on.
func (lm *LifecycleManager) GRPCAddr() string {
	if lm.grpcListener == nil {
		return ""
	}
	return lm.grpcListener.Addr().String()
}
