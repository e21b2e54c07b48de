package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/KevinKickass/OpenBlenderCore/internal/action"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 20*time.Millisecond, cfg.Machine.TickInterval)
	assert.Equal(t, 80, cfg.Machine.SequenceCapacity)
	assert.Equal(t, action.Layout{Top: 40, TopOfCup: 300, TopOfSmoothie: 380, BottomOfCup: 560}, cfg.Layout())
	assert.Equal(t, BackendSim, cfg.Hardware.Backend)
	assert.Equal(t, []string{"profiles"}, cfg.Hardware.SearchPaths)

	opts := cfg.MachineOptions()
	assert.Equal(t, int64(500), opts.SensorPollIntervalMs)
	assert.Equal(t, int64(500), opts.Jam.CheckIntervalMs)
	assert.Equal(t, int32(2), opts.Jam.UpTolerance)
	assert.Equal(t, int32(5), opts.Jam.DownTolerance)
	assert.Equal(t, int32(20), opts.Jam.ReverseDistance)

	assert.Equal(t, action.CleanParams{
		CupAbsentDistance: 17,
		AgitateDurationMs: 3000,
		AgitateHalfMs:     250,
		DripWaitMs:        1000,
	}, cfg.CleanParams())

	activeLow, err := cfg.ActiveLow()
	require.NoError(t, err)
	assert.Equal(t, []action.OutputAddress{action.OutputPump, action.OutputFillValve, action.OutputCleanValve}, activeLow)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
positions:
  top: 10
  top_of_cup: 250
  top_of_smoothie: 330
  bottom_of_cup: 600
hardware:
  backend: modbus
  address: 10.0.0.5
  poll_interval: 50ms
outputs:
  active_low: [pump]
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, action.Position(250), cfg.Layout().TopOfCup)
	assert.Equal(t, "10.0.0.5", cfg.Hardware.Address)
	assert.Equal(t, 502, cfg.Hardware.Port)
	assert.Equal(t, uint8(1), cfg.Hardware.UnitID)
	assert.Equal(t, 50*time.Millisecond, cfg.Hardware.PollInterval)
	assert.Equal(t, []string{"pump"}, cfg.Outputs.ActiveLow)

	seq, err := cfg.Builder().BuildBlend()
	require.NoError(t, err)
	assert.Equal(t, 74, seq.Len())
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("BLENDER_TELEMETRY_HTTP_PORT", "9090")
	t.Setenv("BLENDER_JAM_DOWN_TOLERANCE", "8")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Telemetry.HTTPPort)
	assert.Equal(t, int32(8), cfg.Jam.DownTolerance)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		key  string
	}{
		{
			name: "positions out of order",
			body: "positions:\n  top_of_cup: 20\n",
			key:  "positions",
		},
		{
			name: "modbus without address",
			body: "hardware:\n  backend: modbus\n",
			key:  "hardware.address",
		},
		{
			name: "unknown backend",
			body: "hardware:\n  backend: serial\n",
			key:  "hardware.backend",
		},
		{
			name: "unknown output",
			body: "outputs:\n  active_low: [pump, mixer]\n",
			key:  "outputs.active_low",
		},
		{
			name: "zero tick",
			body: "machine:\n  tick_interval: 0s\n",
			key:  "machine.tick_interval",
		},
		{
			name: "negative agitate duration",
			body: "clean:\n  agitate_duration: -1s\n",
			key:  "clean.agitate_duration",
		},
		{
			name: "negative drip wait",
			body: "clean:\n  drip_wait: -500ms\n",
			key:  "clean.drip_wait",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.ErrorIs(t, err, ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}
