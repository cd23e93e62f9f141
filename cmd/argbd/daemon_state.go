package main

import (
	"sort"
	"time"
)

// ControllerState is the top-level, daemon-owned state container.
//
// Only the daemon loop goroutine reads or writes it. Other goroutines get a
// StateSnapshot (a deep copy) through RequestStateSnapshot.
type ControllerState struct {
	Link LinkState

	// Scalars mirror the device's numeric controls. They are updated by slider
	// moves (SetSetting), by presets, and by telemetry.
	Scalars Scalars

	// Effect and Color track the last effect / colour code sent.
	Effect    string
	Color     string
	CustomRGB RGB

	BindTipsy bool

	Recording bool
	Recorded  []string

	Channels   *ChannelSet
	AutoRedraw bool
	ChartDirty bool

	Macros  map[string][]string
	Presets map[string]Preset
	Board   BoardConfig

	// Rotary is reducer-owned state used for rotary velocity detection and step scaling policy.
	// Input handlers should emit raw rotary actions; the reducer should apply velocity policy.
	Rotary RotaryReducerState

	// DefaultBaud is used by Connect actions that omit the baud rate.
	DefaultBaud int

	lastLinkID uint64
}

// LinkState is the controller's view of the serial connection.
type LinkState struct {
	// Connected is true once the port is open and until it is closed or lost.
	Connected bool
	// Opening is true between CmdOpenLink and its observation.
	Opening bool

	ID    uint64
	Port  string
	Baud  int
	Since time.Time
}

// Scalars are the numeric device controls.
type Scalars struct {
	Brightness int `json:"brightness"`
	SpeedMS    int `json:"speed"`
	Intensity  int `json:"intensity"`
	Saturation int `json:"saturation"`
	HueSpeed   int `json:"hue_rotation"`
	Tipsy      int `json:"tipsy"`
}

func defaultScalars() Scalars {
	return Scalars{
		Brightness: defaultBrightness,
		SpeedMS:    defaultSpeedMS,
		Intensity:  defaultIntensity,
		Saturation: defaultSaturation,
		HueSpeed:   defaultHueSpeed,
		Tipsy:      tipsyDefault,
	}
}

// get returns the scalar for a directive kind.
func (s Scalars) get(kind SettingKind) int {
	switch kind {
	case SettingBrightness:
		return s.Brightness
	case SettingSpeed:
		return s.SpeedMS
	case SettingIntensity:
		return s.Intensity
	case SettingSaturation:
		return s.Saturation
	case SettingHueSpeed:
		return s.HueSpeed
	case SettingTipsy:
		return s.Tipsy
	}
	return 0
}

// set stores v for a directive kind. v must already be clamped.
func (s *Scalars) set(kind SettingKind, v int) {
	switch kind {
	case SettingBrightness:
		s.Brightness = v
	case SettingSpeed:
		s.SpeedMS = v
	case SettingIntensity:
		s.Intensity = v
	case SettingSaturation:
		s.Saturation = v
	case SettingHueSpeed:
		s.HueSpeed = v
	case SettingTipsy:
		s.Tipsy = v
	}
}

// RGB is a custom colour with 0..255 components.
type RGB struct {
	R int `json:"r"`
	G int `json:"g"`
	B int `json:"b"`
}

// Preset is a saved set of scalar controls plus the tracked effect and colour.
// Field names match the presets file.
type Preset struct {
	Brightness  int    `json:"brightness"`
	Speed       int    `json:"speed"`
	Intensity   int    `json:"intensity"`
	Saturation  int    `json:"saturation"`
	HueRotation int    `json:"hue_rotation"`
	Effect      string `json:"effect"`
	Color       string `json:"color"`
}

// RotaryReducerState tracks recent rotary turns for reducer-side velocity detection.
// The reducer can use this to implement step scaling (e.g. "fast spin" multiplier)
// without depending on any external mutable state.
type RotaryReducerState struct {
	RecentSteps []RotaryReducerStep
}

// RotaryReducerStep is one observed rotary detent/step at a given time.
// Direction is -1 or +1.
type RotaryReducerStep struct {
	At        time.Time
	Direction int
}

// newControllerState builds the boot state. Persisted tables may be nil.
func newControllerState(historySize int, overrides map[string]ChannelOverride, autoRedraw, bindTipsy bool, defaultBaud int) *ControllerState {
	return &ControllerState{
		Scalars:     defaultScalars(),
		Effect:      defaultEffect,
		Color:       defaultColor,
		CustomRGB:   RGB{R: 255},
		BindTipsy:   bindTipsy,
		Channels:    newChannelSet(historySize, overrides),
		AutoRedraw:  autoRedraw,
		Macros:      map[string][]string{},
		Presets:     map[string]Preset{},
		Board:       defaultBoardConfig(),
		DefaultBaud: defaultBaud,
	}
}

// ============================================================================
// Snapshot
// ============================================================================

// StateSnapshot is a consistent, self-contained copy of the controller state
// that can leave the daemon goroutine.
type StateSnapshot struct {
	Connected bool      `json:"connected"`
	Opening   bool      `json:"opening,omitempty"`
	Port      string    `json:"port,omitempty"`
	Baud      int       `json:"baud,omitempty"`
	Since     time.Time `json:"since,omitempty"`

	Scalars   Scalars `json:"scalars"`
	Effect    string  `json:"effect"`
	Color     string  `json:"color"`
	CustomRGB RGB     `json:"custom_rgb"`
	BindTipsy bool    `json:"bind_tipsy"`

	Recording bool     `json:"recording"`
	Recorded  []string `json:"recorded"`

	AutoRedraw bool              `json:"auto_redraw"`
	Channels   []ChannelSnapshot `json:"channels"`
	Timestamps []time.Time       `json:"timestamps"`
	Brightness *ChannelStats     `json:"brightness_stats,omitempty"`

	Macros  map[string][]string `json:"macros"`
	Presets map[string]Preset   `json:"presets"`
	Board   BoardConfig         `json:"board"`
}

// ChannelSnapshot is one channel's configuration plus a copy of its samples.
type ChannelSnapshot struct {
	Key    string    `json:"key"`
	Name   string    `json:"name"`
	Color  string    `json:"color"`
	Show   bool      `json:"show"`
	Values []float64 `json:"values"`
}

// Snapshot deep-copies the state.
func (s *ControllerState) Snapshot() StateSnapshot {
	snap := StateSnapshot{
		Connected:  s.Link.Connected,
		Opening:    s.Link.Opening,
		Port:       s.Link.Port,
		Baud:       s.Link.Baud,
		Since:      s.Link.Since,
		Scalars:    s.Scalars,
		Effect:     s.Effect,
		Color:      s.Color,
		CustomRGB:  s.CustomRGB,
		BindTipsy:  s.BindTipsy,
		Recording:  s.Recording,
		Recorded:   append([]string{}, s.Recorded...),
		AutoRedraw: s.AutoRedraw,
		Timestamps: s.Channels.Timestamps.Values(),
		Macros:     copyMacros(s.Macros),
		Presets:    copyPresets(s.Presets),
		Board:      s.Board,
	}
	for _, key := range s.Channels.Keys() {
		ch := s.Channels.Get(key)
		snap.Channels = append(snap.Channels, ChannelSnapshot{
			Key:    ch.Key,
			Name:   ch.Name,
			Color:  ch.Color.Hex(),
			Show:   ch.Show,
			Values: ch.History.Values(),
		})
	}
	if st, ok := summarize(s.Channels.Get("BR").History.Values()); ok {
		snap.Brightness = &st
	}
	return snap
}

func copyMacros(in map[string][]string) map[string][]string {
	out := make(map[string][]string, len(in))
	for k, v := range in {
		out[k] = append([]string(nil), v...)
	}
	return out
}

func copyPresets(in map[string]Preset) map[string]Preset {
	out := make(map[string]Preset, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// sortedKeys returns map keys in lexical order.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
