package devices

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/KevinKickass/OpenBlenderCore/internal/modbus"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DeviceStatus is the runtime view of a loaded device.
type DeviceStatus struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	Profile       string    `json:"profile"`
	Connected     bool      `json:"connected"`
	Polling       bool      `json:"polling"`
	PendingWrites int       `json:"pending_writes"`
}

type Manager struct {
	loader  *ProfileLoader
	devices map[uuid.UUID]*modbus.Device
	pollers map[uuid.UUID]*modbus.Poller
	mu      sync.RWMutex
	logger  *zap.Logger
}

func NewManager(searchPaths []string, logger *zap.Logger) (*Manager, error) {
	loader, err := NewProfileLoader(searchPaths)
	if err != nil {
		return nil, fmt.Errorf("failed to create profile loader: %w", err)
	}

	return &Manager{
		loader:  loader,
		devices: make(map[uuid.UUID]*modbus.Device),
		pollers: make(map[uuid.UUID]*modbus.Poller),
		logger:  logger,
	}, nil
}

// LoadDevice loads the named profile and connects to the station.
func (m *Manager) LoadDevice(
	name string,
	profileName string,
	ipAddress string,
	port int,
	unitID uint8,
	timeout time.Duration,
) (*modbus.Device, error) {
	// Load profile (lazy)
	profile, err := m.loader.Load(profileName)
	if err != nil {
		return nil, fmt.Errorf("failed to load profile %s: %w", profileName, err)
	}

	device, err := modbus.NewDevice(name, ipAddress, port, unitID, profile, timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to create device: %w", err)
	}

	if err := device.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect device: %w", err)
	}

	m.mu.Lock()
	m.devices[device.ID] = device
	m.mu.Unlock()

	m.logger.Info("Device loaded",
		zap.String("name", name),
		zap.String("profile", profileName),
		zap.String("address", ipAddress),
		zap.Int("port", port))

	return device, nil
}

// StartPoller starts poller for a device
func (m *Manager) StartPoller(deviceID uuid.UUID, interval time.Duration, onError modbus.ErrorHandler) error {
	m.mu.RLock()
	device, exists := m.devices[deviceID]
	m.mu.RUnlock()

	if !exists {
		return fmt.Errorf("device not found: %s", deviceID)
	}

	poller := modbus.NewPoller(device, interval, m.logger)
	if onError != nil {
		poller.OnError(onError)
	}

	// Erster Zyklus synchron, damit der Cache vor dem ersten Tick gefüllt ist
	poller.PollOnce()

	if err := poller.Start(); err != nil {
		return fmt.Errorf("failed to start poller: %w", err)
	}

	m.mu.Lock()
	m.pollers[deviceID] = poller
	m.mu.Unlock()

	return nil
}

// StopAll stops all pollers and disconnects all devices
func (m *Manager) StopAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, poller := range m.pollers {
		poller.Stop()
	}

	for _, device := range m.devices {
		if err := device.Disconnect(); err != nil {
			m.logger.Error("Failed to disconnect device",
				zap.String("device", device.Name),
				zap.Error(err))
		}
	}

	return nil
}

func (m *Manager) Status() []DeviceStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]DeviceStatus, 0, len(m.devices))
	for id, device := range m.devices {
		poller, polling := m.pollers[id]
		out = append(out, DeviceStatus{
			ID:            id,
			Name:          device.Name,
			Profile:       device.Profile.Profile.ID,
			Connected:     device.Connected(),
			Polling:       polling && poller.IsRunning(),
			PendingWrites: device.PendingWrites(),
		})
	}
	return out
}
