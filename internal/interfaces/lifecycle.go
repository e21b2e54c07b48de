package interfaces

import (
	"github.com/KevinKickass/OpenBlenderCore/internal/config"
	"github.com/KevinKickass/OpenBlenderCore/internal/devices"
	"github.com/KevinKickass/OpenBlenderCore/internal/machine"
)

// SystemStatus represents the current system state
type SystemStatus struct {
	State            string                 `json:"state"`
	Backend          string                 `json:"backend"`
	Error            string                 `json:"error,omitempty"`
	DeviceCount      int                    `json:"device_count"`
	ConnectedDevices int                    `json:"connected_devices"`
	Devices          []devices.DeviceStatus `json:"devices"`
	TelemetryClients int                    `json:"telemetry_clients"`
}

// LifecycleManager is what the REST layer sees of the running system.
type LifecycleManager interface {
	Config() *config.Config
	MachineController() *machine.Controller
	GetCurrentStatus() SystemStatus
}
