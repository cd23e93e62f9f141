package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration for the argbd daemon.
//
// Keep defaults and validation centralized so the rest of the code can assume
// a well-formed config.
//
// Design goals:
// - Make config file the primary configuration surface.
// - Keep flags for small overrides and for environments where a file is awkward.
type Config struct {
	// Serial link to the controller
	Serial SerialConfig `yaml:"serial"`

	// Telemetry history and chart feed
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Speed to tipsy binding
	Tipsy TipsyConfig `yaml:"tipsy"`

	// Per-channel chart overrides, keyed by channel key (BR, S, ...)
	Channels map[string]ChannelOverride `yaml:"channels,omitempty"`

	// IPC configuration (argb-ctl and scripts)
	IPC IPCConfig `yaml:"ipc"`

	// HTTP API and state stream
	HTTP HTTPConfig `yaml:"http"`

	// Presets, macros, history and board config
	Store StoreConfig `yaml:"store"`

	// Linux input devices (remotes, rotary encoders)
	Input InputConfig `yaml:"input"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

type SerialConfig struct {
	Port        string `yaml:"port"`
	Baud        int    `yaml:"baud"`
	AutoConnect bool   `yaml:"auto_connect"`
}

type TelemetryConfig struct {
	HistorySize      int  `yaml:"history_size"`
	RedrawIntervalMS int  `yaml:"redraw_interval_ms"`
	AutoRedraw       bool `yaml:"auto_redraw"`
}

type TipsyConfig struct {
	Bind bool `yaml:"bind"`
}

type IPCConfig struct {
	SocketPath string `yaml:"socket_path"`
	TimeoutMS  int    `yaml:"timeout_ms"`
}

type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

type StoreConfig struct {
	Dir string `yaml:"dir"`
}

type InputConfig struct {
	Devices []string `yaml:"devices,omitempty"`

	// Bindings maps EV_KEY codes to commands, e.g. {2: "1", 19: "R"}.
	Bindings map[uint16]string `yaml:"bindings,omitempty"`

	// Rotary encoder commands per detent. Empty disables rotary input.
	RotaryUp   string `yaml:"rotary_up"`
	RotaryDown string `yaml:"rotary_down"`

	// Rotary velocity detection
	VelocityWindowMS   int `yaml:"velocity_window_ms"`
	VelocityThreshold  int `yaml:"velocity_threshold"`
	VelocityMultiplier int `yaml:"velocity_multiplier"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns a fully-populated Config with defaults.
// Keep this aligned with constants.go defaults and current CLI defaults.
func DefaultConfig() Config {
	return Config{
		Serial: SerialConfig{
			Baud: defaultBaud,
		},
		Telemetry: TelemetryConfig{
			HistorySize:      defaultHistorySize,
			RedrawIntervalMS: defaultRedrawIntervalMS,
			AutoRedraw:       true,
		},
		IPC: IPCConfig{
			SocketPath: "/tmp/argbd.sock",
			TimeoutMS:  int(defaultDispatchTimeout / time.Millisecond),
		},
		HTTP: HTTPConfig{
			Enabled: true,
			Addr:    "127.0.0.1:8080",
		},
		Store: StoreConfig{
			Dir: "~/.config/argbd",
		},
		Input: InputConfig{
			RotaryUp:           "+",
			RotaryDown:         "-",
			VelocityWindowMS:   defaultRotaryVelocityWindowMS,
			VelocityThreshold:  defaultRotaryVelocityThreshold,
			VelocityMultiplier: defaultRotaryVelocityMultiplier,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfigFile reads and parses a YAML config file.
//
// Notes:
//   - The file must be valid YAML.
//   - Unknown fields are rejected (helps catch typos) via KnownFields(true).
//   - Paths are expanded by the call site with ExpandPath.
func LoadConfigFile(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path is empty")
	}
	b, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config yaml: %w", err)
	}

	// Ensure there's no trailing garbage (only whitespace/comments are allowed after the document).
	if err := dec.Decode(&struct{}{}); err == nil {
		return Config{}, fmt.Errorf("decode config yaml: unexpected trailing document")
	}

	return cfg, nil
}

// FlagOverrides applies overrides from flags on top of a loaded config.
//
// This is designed so you can keep a config file as the primary configuration source,
// but still do ad-hoc overrides for debugging/systemd overrides.
//
// Flags should pass pointers; each override is only applied if the pointer is non-nil.
type FlagOverrides struct {
	SerialPort  *string
	SerialBaud  *int
	AutoConnect *bool

	HistorySize      *int
	RedrawIntervalMS *int

	TipsyBind *bool

	IPCSocketPath *string
	HTTPAddr      *string
	StoreDir      *string

	InputDevices []string

	LogLevel *string
}

// Apply merges the overrides into cfg. If an override pointer is nil, it is ignored.
// If the pointer is non-nil, the value is applied (even if it is a “zero value”).
func (o FlagOverrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}

	if o.SerialPort != nil {
		cfg.Serial.Port = *o.SerialPort
	}
	if o.SerialBaud != nil {
		cfg.Serial.Baud = *o.SerialBaud
	}
	if o.AutoConnect != nil {
		cfg.Serial.AutoConnect = *o.AutoConnect
	}

	if o.HistorySize != nil {
		cfg.Telemetry.HistorySize = *o.HistorySize
	}
	if o.RedrawIntervalMS != nil {
		cfg.Telemetry.RedrawIntervalMS = *o.RedrawIntervalMS
	}

	if o.TipsyBind != nil {
		cfg.Tipsy.Bind = *o.TipsyBind
	}

	if o.IPCSocketPath != nil {
		cfg.IPC.SocketPath = *o.IPCSocketPath
	}
	if o.HTTPAddr != nil {
		cfg.HTTP.Addr = *o.HTTPAddr
		cfg.HTTP.Enabled = *o.HTTPAddr != ""
	}
	if o.StoreDir != nil {
		cfg.Store.Dir = *o.StoreDir
	}

	if len(o.InputDevices) > 0 {
		cfg.Input.Devices = append([]string(nil), o.InputDevices...)
	}

	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}
}

// Validate checks config invariants and returns a user-friendly error.
// This is intended to be called after defaults + file + overrides are applied.
func (c *Config) Validate() error {
	// Serial
	if !validBaud(c.Serial.Baud) {
		return fmt.Errorf("serial.baud must be 9600 or 115200 (got %d)", c.Serial.Baud)
	}
	if c.Serial.AutoConnect && c.Serial.Port == "" {
		return errors.New("serial.auto_connect is true but serial.port is empty")
	}

	// Telemetry
	if c.Telemetry.HistorySize <= 0 || c.Telemetry.HistorySize > 100000 {
		return errors.New("telemetry.history_size must be between 1 and 100000")
	}
	if c.Telemetry.RedrawIntervalMS < 10 || c.Telemetry.RedrawIntervalMS > 10000 {
		return errors.New("telemetry.redraw_interval_ms must be between 10 and 10000")
	}

	// Channels
	if err := validateChannelOverrides(c.Channels); err != nil {
		return err
	}

	// IPC
	if c.IPC.SocketPath == "" {
		return errors.New("ipc.socket_path must not be empty")
	}
	if c.IPC.TimeoutMS <= 0 {
		return errors.New("ipc.timeout_ms must be > 0")
	}

	// HTTP
	if c.HTTP.Enabled && c.HTTP.Addr == "" {
		return errors.New("http.enabled is true but http.addr is empty")
	}

	// Store
	if c.Store.Dir == "" {
		return errors.New("store.dir must not be empty")
	}

	// Input
	for i, dev := range c.Input.Devices {
		if dev == "" {
			return fmt.Errorf("input.devices[%d] is empty", i)
		}
	}
	if c.Input.VelocityWindowMS < 0 {
		return errors.New("input.velocity_window_ms must be >= 0")
	}
	if c.Input.VelocityThreshold < 0 {
		return errors.New("input.velocity_threshold must be >= 0")
	}
	if c.Input.VelocityMultiplier < 1 {
		return errors.New("input.velocity_multiplier must be >= 1")
	}

	// Logging
	if c.Logging.Level == "" {
		return errors.New("logging.level must not be empty")
	}
	if _, err := parseLogLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}

	return nil
}

// ToRotaryConfig converts the input section into the reducer's rotary policy.
func (c *Config) ToRotaryConfig() RotaryConfig {
	return RotaryConfig{
		UpCommand:          c.Input.RotaryUp,
		DownCommand:        c.Input.RotaryDown,
		VelocityWindowMS:   c.Input.VelocityWindowMS,
		VelocityThreshold:  c.Input.VelocityThreshold,
		VelocityMultiplier: c.Input.VelocityMultiplier,
	}
}

// ToInputBindings converts the input section into device bindings.
func (c *Config) ToInputBindings() InputBindings {
	keys := make(map[uint16]string, len(c.Input.Bindings))
	for code, cmd := range c.Input.Bindings {
		keys[code] = cmd
	}
	return InputBindings{
		Keys:   keys,
		Rotary: c.Input.RotaryUp != "" || c.Input.RotaryDown != "",
	}
}

// ExpandPath expands a leading "~" in a path using $HOME.
// This is handy for config values like store.dir.
func ExpandPath(p string) string {
	if p == "" {
		return p
	}
	if p[0] != '~' {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	if p == "~" {
		return home
	}
	if len(p) >= 2 && (p[1] == '/' || p[1] == '\\') {
		return filepath.Join(home, p[2:])
	}
	return p
}
