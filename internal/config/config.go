package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/KevinKickass/OpenBlenderCore/internal/action"
	"github.com/KevinKickass/OpenBlenderCore/internal/machine"
	"github.com/spf13/viper"
)

var ErrInvalidConfig = errors.New("invalid config")

const (
	BackendModbus = "modbus"
	BackendSim    = "sim"
)

type Config struct {
	Machine   MachineConfig   `mapstructure:"machine"`
	Positions PositionsConfig `mapstructure:"positions"`
	Jam       JamConfig       `mapstructure:"jam"`
	Clean     CleanConfig     `mapstructure:"clean"`
	Outputs   OutputsConfig   `mapstructure:"outputs"`
	Hardware  HardwareConfig  `mapstructure:"hardware"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

type MachineConfig struct {
	TickInterval       time.Duration `mapstructure:"tick_interval"`
	SensorPollInterval time.Duration `mapstructure:"sensor_poll_interval"`
	ButtonDebounce     time.Duration `mapstructure:"button_debounce"`
	SequenceCapacity   int           `mapstructure:"sequence_capacity"`
}

// PositionsConfig holds the calibrated carriage positions. Up decreases
// the position value.
type PositionsConfig struct {
	Top           int32 `mapstructure:"top"`
	TopOfCup      int32 `mapstructure:"top_of_cup"`
	TopOfSmoothie int32 `mapstructure:"top_of_smoothie"`
	BottomOfCup   int32 `mapstructure:"bottom_of_cup"`
}

type JamConfig struct {
	CheckInterval   time.Duration `mapstructure:"check_interval"`
	UpTolerance     int32         `mapstructure:"up_tolerance"`
	DownTolerance   int32         `mapstructure:"down_tolerance"`
	ReverseDistance int32         `mapstructure:"reverse_distance"`
}

type CleanConfig struct {
	CupAbsentDistance int32         `mapstructure:"cup_absent_distance"`
	AgitateDuration   time.Duration `mapstructure:"agitate_duration"`
	AgitateHalfPeriod time.Duration `mapstructure:"agitate_half_period"`
	DripWait          time.Duration `mapstructure:"drip_wait"`
}

type OutputsConfig struct {
	ActiveLow []string `mapstructure:"active_low"`
}

type HardwareConfig struct {
	Backend      string        `mapstructure:"backend"`
	Address      string        `mapstructure:"address"`
	Port         int           `mapstructure:"port"`
	UnitID       uint8         `mapstructure:"unit_id"`
	Timeout      time.Duration `mapstructure:"timeout"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	Profile      string        `mapstructure:"profile"`
	SearchPaths  []string      `mapstructure:"search_paths"`
}

type TelemetryConfig struct {
	HTTPPort        int           `mapstructure:"http_port"`
	GRPCPort        int           `mapstructure:"grpc_port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("machine.tick_interval", "20ms")
	v.SetDefault("machine.sensor_poll_interval", "500ms")
	v.SetDefault("machine.button_debounce", "50ms")
	v.SetDefault("machine.sequence_capacity", 80)

	v.SetDefault("positions.top", 40)
	v.SetDefault("positions.top_of_cup", 300)
	v.SetDefault("positions.top_of_smoothie", 380)
	v.SetDefault("positions.bottom_of_cup", 560)

	v.SetDefault("jam.check_interval", "500ms")
	v.SetDefault("jam.up_tolerance", 2)
	v.SetDefault("jam.down_tolerance", 5)
	v.SetDefault("jam.reverse_distance", 20)

	v.SetDefault("clean.cup_absent_distance", 17)
	v.SetDefault("clean.agitate_duration", "3s")
	v.SetDefault("clean.agitate_half_period", "250ms")
	v.SetDefault("clean.drip_wait", "1s")

	v.SetDefault("outputs.active_low", []string{"pump", "fill_valve", "clean_valve"})

	v.SetDefault("hardware.backend", BackendSim)
	v.SetDefault("hardware.port", 502)
	v.SetDefault("hardware.unit_id", 1)
	v.SetDefault("hardware.timeout", "1s")
	v.SetDefault("hardware.poll_interval", "20ms")
	v.SetDefault("hardware.profile", "blender-io")
	v.SetDefault("hardware.search_paths", []string{"profiles"})

	v.SetDefault("telemetry.http_port", 8080)
	v.SetDefault("telemetry.grpc_port", 50051)
	v.SetDefault("telemetry.shutdown_timeout", "10s")
}

// Load reads path (yaml) on top of the defaults. An empty path loads the
// defaults and environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	// Environment Variables mit Prefix BLENDER_, z.B. BLENDER_HARDWARE_ADDRESS
	v.SetEnvPrefix("BLENDER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func invalid(key, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidConfig, key, fmt.Sprintf(format, args...))
}

func (c *Config) Validate() error {
	if c.Machine.TickInterval <= 0 {
		return invalid("machine.tick_interval", "must be positive")
	}
	if c.Machine.SensorPollInterval <= 0 {
		return invalid("machine.sensor_poll_interval", "must be positive")
	}
	if c.Machine.ButtonDebounce < 0 {
		return invalid("machine.button_debounce", "must not be negative")
	}
	if c.Machine.SequenceCapacity <= 0 {
		return invalid("machine.sequence_capacity", "must be positive")
	}

	if err := c.Layout().Validate(); err != nil {
		return invalid("positions", "%v", err)
	}

	if c.Jam.CheckInterval <= 0 {
		return invalid("jam.check_interval", "must be positive")
	}
	if c.Jam.UpTolerance < 0 || c.Jam.DownTolerance < 0 {
		return invalid("jam", "tolerances must not be negative")
	}
	if c.Jam.ReverseDistance <= 0 {
		return invalid("jam.reverse_distance", "must be positive")
	}

	if c.Clean.AgitateHalfPeriod <= 0 {
		return invalid("clean.agitate_half_period", "must be positive")
	}
	if c.Clean.AgitateDuration < 0 {
		return invalid("clean.agitate_duration", "must not be negative")
	}
	if c.Clean.DripWait < 0 {
		return invalid("clean.drip_wait", "must not be negative")
	}

	if _, err := c.ActiveLow(); err != nil {
		return invalid("outputs.active_low", "%v", err)
	}

	switch c.Hardware.Backend {
	case BackendSim:
	case BackendModbus:
		if c.Hardware.Address == "" {
			return invalid("hardware.address", "required for the modbus backend")
		}
		if c.Hardware.Port <= 0 || c.Hardware.Port > 65535 {
			return invalid("hardware.port", "out of range: %d", c.Hardware.Port)
		}
		if c.Hardware.PollInterval <= 0 {
			return invalid("hardware.poll_interval", "must be positive")
		}
		if c.Hardware.Profile == "" {
			return invalid("hardware.profile", "required for the modbus backend")
		}
	default:
		return invalid("hardware.backend", "unknown backend %q", c.Hardware.Backend)
	}

	if c.Telemetry.HTTPPort < 0 || c.Telemetry.HTTPPort > 65535 {
		return invalid("telemetry.http_port", "out of range: %d", c.Telemetry.HTTPPort)
	}
	if c.Telemetry.GRPCPort < 0 || c.Telemetry.GRPCPort > 65535 {
		return invalid("telemetry.grpc_port", "out of range: %d", c.Telemetry.GRPCPort)
	}
	return nil
}

func (c *Config) Layout() action.Layout {
	return action.Layout{
		Top:           action.Position(c.Positions.Top),
		TopOfCup:      action.Position(c.Positions.TopOfCup),
		TopOfSmoothie: action.Position(c.Positions.TopOfSmoothie),
		BottomOfCup:   action.Position(c.Positions.BottomOfCup),
	}
}

func (c *Config) CleanParams() action.CleanParams {
	return action.CleanParams{
		CupAbsentDistance: c.Clean.CupAbsentDistance,
		AgitateDurationMs: uint32(c.Clean.AgitateDuration.Milliseconds()),
		AgitateHalfMs:     uint32(c.Clean.AgitateHalfPeriod.Milliseconds()),
		DripWaitMs:        uint32(c.Clean.DripWait.Milliseconds()),
	}
}

func (c *Config) Builder() *action.Builder {
	return action.NewBuilder(c.Layout(), c.CleanParams(), c.Machine.SequenceCapacity)
}

func (c *Config) MachineOptions() machine.Options {
	return machine.Options{
		SensorPollIntervalMs: c.Machine.SensorPollInterval.Milliseconds(),
		Jam: machine.JamOptions{
			CheckIntervalMs: c.Jam.CheckInterval.Milliseconds(),
			UpTolerance:     c.Jam.UpTolerance,
			DownTolerance:   c.Jam.DownTolerance,
			ReverseDistance: c.Jam.ReverseDistance,
		},
	}
}

// ActiveLow returns the outputs whose ON level is LOW.
func (c *Config) ActiveLow() ([]action.OutputAddress, error) {
	out := make([]action.OutputAddress, 0, len(c.Outputs.ActiveLow))
	for _, name := range c.Outputs.ActiveLow {
		addr, err := action.ParseOutputAddress(name)
		if err != nil {
			return nil, err
		}
		out = append(out, addr)
	}
	return out, nil
}
