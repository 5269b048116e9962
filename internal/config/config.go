package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// MaxConfigFileBytes bounds the size of a configuration file.
const MaxConfigFileBytes = 1 << 20

// NumActuators is the number of linear actuators driven by the loop.
const NumActuators = 4

// Pan bus servo backends.
const (
	BusMock    = "mock"
	BusXL320   = "xl320"
	BusFeetech = "feetech"
)

// LoopConfig holds the control scheduler timing.
type LoopConfig struct {
	PeriodMs int `yaml:"period_ms"` // minimum interval between ticks
	PollMs   int `yaml:"poll_ms"`   // how often the loop checks the clock and dispatches commands
}

// FilterConfig describes the position running average.
type FilterConfig struct {
	Window int `yaml:"window"` // samples per actuator ring
}

// PIDConfig holds settings shared by all actuator controllers.
type PIDConfig struct {
	SampleMs    int `yaml:"sample_ms"`    // PID recompute cadence
	OutputLimit int `yaml:"output_limit"` // symmetric drive clamp (8-bit speed)
	Deadband    int `yaml:"deadband"`     // release when |target - filtered| is below this
	StallTicks  int `yaml:"stall_ticks"`  // release idle actuators saturated for more ticks than this
}

// ActuatorConfig describes one linear actuator channel.
type ActuatorConfig struct {
	Name          string  `yaml:"name"`
	Motor         int     `yaml:"motor"`      // motor shield channel (1-4)
	AnalogPin     int     `yaml:"analog_pin"` // potentiometer input on the motor board
	Min           int     `yaml:"min"`
	Max           int     `yaml:"max"`
	InitialTarget int     `yaml:"initial_target"`
	Kp            float64 `yaml:"kp"`
	Ki            float64 `yaml:"ki"`
	Kd            float64 `yaml:"kd"`
}

// PanConfig describes the neck pan bus servo.
type PanConfig struct {
	Bus       string `yaml:"bus"`  // mock, xl320 or feetech
	Port      string `yaml:"port"` // serial device of the servo bus
	Baud      int    `yaml:"baud"`
	ServoID   int    `yaml:"servo_id"`
	Speed     int    `yaml:"speed"`
	Center    int    `yaml:"center"`
	Deviation int    `yaml:"deviation"` // allowed travel each side of center (counts)
}

// HeightConfig describes the torso servo.
type HeightConfig struct {
	Servo       int     `yaml:"servo"` // servo channel on the motor board
	Min         float64 `yaml:"min"`   // degrees
	Max         float64 `yaml:"max"`   // degrees
	RampDegPerS float64 `yaml:"ramp_deg_per_s"`
}

// FaceConfig describes the expression display.
type FaceConfig struct {
	Servos               []int `yaml:"servos"`   // five servo channels on the motor board
	EyePins              []int `yaml:"eye_pins"` // red, green, blue GPIO pins (BCM)
	TimeoutS             int   `yaml:"timeout_s"`
	LegacyTimeoutCompare bool  `yaml:"legacy_timeout_compare"` // reproduce the firmware's reversed timestamp subtraction
}

// ManualConfig describes the local button panel.
type ManualConfig struct {
	Enabled bool  `yaml:"enabled"`
	Pins    []int `yaml:"pins"` // jog-, jog+, axis prev, axis next, height down, height up, face
}

// MotorBoardConfig describes the serial link to the motor/ADC co-processor.
type MotorBoardConfig struct {
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`
	Mock bool   `yaml:"mock"` // simulate the board and actuator plant
}

// WebConfig holds the HTTP listener settings.
type WebConfig struct {
	Addr string `yaml:"addr"` // empty disables the web server
}

// DefaultsConfig contains generic parameters.
type DefaultsConfig struct {
	DebugLevel int  `yaml:"debug_level"` // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	MockGPIO   bool `yaml:"mock_gpio"`   // use mock GPIO (true=dev/test, false=real Raspberry Pi)
}

// Config aggregates all application configuration.
type Config struct {
	Loop       LoopConfig       `yaml:"loop"`
	Filter     FilterConfig     `yaml:"filter"`
	PID        PIDConfig        `yaml:"pid"`
	Actuators  []ActuatorConfig `yaml:"actuators"`
	Pan        PanConfig        `yaml:"pan"`
	Height     HeightConfig     `yaml:"height"`
	Face       FaceConfig       `yaml:"face"`
	Manual     ManualConfig     `yaml:"manual"`
	MotorBoard MotorBoardConfig `yaml:"motor_board"`
	Web        WebConfig        `yaml:"web"`
	Defaults   DefaultsConfig   `yaml:"defaults"`
}

// DefaultActuators returns the firmware channel layout:
// wrist, head tilt, left gripper, right gripper.
func DefaultActuators() []ActuatorConfig {
	return []ActuatorConfig{
		{Name: "wrist", Motor: 1, AnalogPin: 10, Min: 200, Max: 800, InitialTarget: 512, Kp: 1, Ki: 1},
		{Name: "head_tilt", Motor: 2, AnalogPin: 0, Min: 200, Max: 800, InitialTarget: 512, Kp: 1, Ki: 1},
		{Name: "gripper_l", Motor: 3, AnalogPin: 12, Min: 200, Max: 800, InitialTarget: 300, Kp: 1, Ki: 1},
		{Name: "gripper_r", Motor: 4, AnalogPin: 11, Min: 200, Max: 800, InitialTarget: 300, Kp: 1, Ki: 1},
	}
}

// Default returns a configuration with every default applied and the
// hardware mocked.
func Default() *Config {
	cfg := &Config{
		MotorBoard: MotorBoardConfig{Mock: true},
		Defaults:   DefaultsConfig{MockGPIO: true},
	}
	if err := cfg.applyDefaults(); err != nil {
		panic(err)
	}
	return cfg
}

// ValidateConfigPath checks that a user-supplied config path points to a
// .yaml file directly inside a configs/ directory and does not traverse upward.
func ValidateConfigPath(path string) error {
	if path == "" {
		return fmt.Errorf("config path is empty")
	}
	if slices.Contains(strings.Split(filepath.ToSlash(path), "/"), "..") {
		return fmt.Errorf("config path must not contain '..': %s", path)
	}
	if filepath.Ext(path) != ".yaml" {
		return fmt.Errorf("config path must have .yaml extension: %s", path)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}
	if filepath.Base(filepath.Dir(abs)) != "configs" {
		return fmt.Errorf("config file must be inside a configs/ directory: %s", path)
	}
	return nil
}

// Load reads a YAML file and returns the configuration.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxConfigFileBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if len(data) > MaxConfigFileBytes {
		return nil, fmt.Errorf("config file exceeds %d bytes", MaxConfigFileBytes)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() error {
	if c.Loop.PeriodMs <= 0 {
		c.Loop.PeriodMs = 25
	}
	if c.Loop.PollMs <= 0 {
		c.Loop.PollMs = 1
	}
	if c.Loop.PollMs > c.Loop.PeriodMs {
		return fmt.Errorf("loop.poll_ms (%d) must not exceed loop.period_ms (%d)", c.Loop.PollMs, c.Loop.PeriodMs)
	}

	if c.Filter.Window <= 0 {
		c.Filter.Window = 10
	}

	if c.PID.SampleMs <= 0 {
		c.PID.SampleMs = 50
	}
	if c.PID.OutputLimit <= 0 {
		c.PID.OutputLimit = 255
	}
	if c.PID.OutputLimit > 255 {
		return fmt.Errorf("pid.output_limit must be <= 255, got %d", c.PID.OutputLimit)
	}
	if c.PID.Deadband <= 0 {
		c.PID.Deadband = 5
	}
	if c.PID.StallTicks <= 0 {
		c.PID.StallTicks = 40
	}

	if len(c.Actuators) == 0 {
		c.Actuators = DefaultActuators()
	}
	if len(c.Actuators) != NumActuators {
		return fmt.Errorf("actuators: expected %d entries, got %d", NumActuators, len(c.Actuators))
	}
	for i, a := range c.Actuators {
		if a.Min >= a.Max {
			return fmt.Errorf("actuators[%d] (%s): min (%d) must be < max (%d)", i, a.Name, a.Min, a.Max)
		}
		if a.InitialTarget < a.Min || a.InitialTarget > a.Max {
			return fmt.Errorf("actuators[%d] (%s): initial_target %d outside [%d, %d]", i, a.Name, a.InitialTarget, a.Min, a.Max)
		}
		if a.Kp == 0 && a.Ki == 0 && a.Kd == 0 {
			c.Actuators[i].Kp, c.Actuators[i].Ki = 1, 1
		}
	}

	if c.Pan.Bus == "" {
		c.Pan.Bus = BusMock
	}
	switch c.Pan.Bus {
	case BusMock, BusXL320, BusFeetech:
	default:
		return fmt.Errorf("pan.bus must be %q, %q or %q, got %q", BusMock, BusXL320, BusFeetech, c.Pan.Bus)
	}
	if c.Pan.Bus != BusMock && c.Pan.Port == "" {
		return fmt.Errorf("pan.port is required for bus %q", c.Pan.Bus)
	}
	if c.Pan.Baud <= 0 {
		c.Pan.Baud = 57600
	}
	if c.Pan.ServoID <= 0 {
		c.Pan.ServoID = 6
	}
	if c.Pan.Speed <= 0 {
		c.Pan.Speed = 100
	}
	if c.Pan.Center <= 0 {
		c.Pan.Center = 511
	}
	if c.Pan.Deviation <= 0 {
		c.Pan.Deviation = 154 // 90deg * 3.4 counts/deg
	}

	if c.Height.Min == 0 && c.Height.Max == 0 {
		c.Height.Min, c.Height.Max = 70, 120
	}
	if c.Height.Min >= c.Height.Max {
		return fmt.Errorf("height: min (%g) must be < max (%g)", c.Height.Min, c.Height.Max)
	}
	if c.Height.Min < 0 || c.Height.Max > 180 {
		return fmt.Errorf("height: range must lie within [0, 180] degrees")
	}
	if c.Height.RampDegPerS <= 0 {
		c.Height.RampDegPerS = 8 // 0.2 deg per 25 ms tick
	}

	if len(c.Face.Servos) == 0 {
		c.Face.Servos = []int{1, 2, 3, 4, 5}
	}
	if len(c.Face.Servos) != 5 {
		return fmt.Errorf("face.servos: expected 5 channels, got %d", len(c.Face.Servos))
	}
	if len(c.Face.EyePins) == 0 {
		c.Face.EyePins = []int{13, 19, 26}
	}
	if len(c.Face.EyePins) != 3 {
		return fmt.Errorf("face.eye_pins: expected 3 pins, got %d", len(c.Face.EyePins))
	}
	if c.Face.TimeoutS <= 0 {
		c.Face.TimeoutS = 20
	}

	if len(c.Manual.Pins) == 0 {
		c.Manual.Pins = []int{5, 6, 12, 16, 20, 21, 4}
	}
	if c.Manual.Enabled && len(c.Manual.Pins) != 7 {
		return fmt.Errorf("manual.pins: expected 7 pins, got %d", len(c.Manual.Pins))
	}

	if !c.MotorBoard.Mock && c.MotorBoard.Port == "" {
		return fmt.Errorf("motor_board.port is required unless motor_board.mock is set")
	}
	if c.MotorBoard.Baud <= 0 {
		c.MotorBoard.Baud = 115200
	}
	return nil
}

// Period returns the minimum interval between control ticks.
func (c *Config) Period() time.Duration {
	return time.Duration(c.Loop.PeriodMs) * time.Millisecond
}

// PollInterval returns how often the loop checks the clock.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Loop.PollMs) * time.Millisecond
}

// SampleTime returns the PID recompute cadence.
func (c *Config) SampleTime() time.Duration {
	return time.Duration(c.PID.SampleMs) * time.Millisecond
}

// FaceTimeout returns how long a mirrored expression is held once the
// observed emotion becomes unknown.
func (c *Config) FaceTimeout() time.Duration {
	return time.Duration(c.Face.TimeoutS) * time.Second
}

// PanMin returns the lowest allowed pan position.
func (c *Config) PanMin() int {
	return c.Pan.Center - c.Pan.Deviation
}

// PanMax returns the highest allowed pan position.
func (c *Config) PanMax() int {
	return c.Pan.Center + c.Pan.Deviation
}

// HeightIncrement returns the fixed per-tick torso step in degrees.
func (c *Config) HeightIncrement() float64 {
	return c.Height.RampDegPerS * c.Period().Seconds()
}
