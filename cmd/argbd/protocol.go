package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ============================================================================
// Device line protocol
// ============================================================================
//
// Outbound:
//   - single control characters, newline terminated ("R\n")
//   - numeric directives "~<T><int>\n" where T is one of B V I U H T
//   - custom colour "G<r>,<g>,<b>\n"
//
// Inbound: newline-delimited lines. A line starting with '{' that decodes as a
// JSON object is a telemetry record; anything else is a free-text status line.
// ============================================================================

// CommandKind groups the single-character vocabulary.
type CommandKind string

const (
	KindColor      CommandKind = "color"
	KindEffect     CommandKind = "effect"
	KindSpeed      CommandKind = "speed"
	KindBrightness CommandKind = "brightness"
	KindAdjust     CommandKind = "adjust"
	KindLayout     CommandKind = "layout"
	KindSystem     CommandKind = "system"
)

// CommandInfo describes one single-character command.
type CommandInfo struct {
	Code string      `json:"code"`
	Name string      `json:"name"`
	Kind CommandKind `json:"kind"`
}

// vocabulary is the fixed single-character command set understood by the
// firmware, in display order.
var vocabulary = []CommandInfo{
	{"1", "Red", KindColor},
	{"2", "Green", KindColor},
	{"3", "Blue", KindColor},
	{"4", "White", KindColor},
	{"5", "Cyan", KindColor},
	{"6", "Magenta", KindColor},
	{"7", "Yellow", KindColor},
	{"8", "Orange", KindColor},
	{"9", "Pink", KindColor},
	{"0", "Purple", KindColor},

	{"R", "Rainbow", KindEffect},
	{"P", "Pulse", KindEffect},
	{"S", "Static", KindEffect},
	{"W", "Wipe", KindEffect},
	{"T", "Theater", KindEffect},
	{"K", "Sparkle", KindEffect},
	{"N", "Sinelon", KindEffect},
	{"B", "BPM", KindEffect},
	{"C", "Confetti", KindEffect},
	{"F", "Fire", KindEffect},
	{"X", "Strobe", KindEffect},
	{"E", "Breathing", KindEffect},
	{"Y", "Tipsy", KindEffect},
	{"J", "Multi-Color", KindEffect},

	{"Q", "Very Fast", KindSpeed},
	{"D", "Fast", KindSpeed},
	{"V", "Medium", KindSpeed},
	{"Z", "Slow", KindSpeed},
	{"M", "Very Slow", KindSpeed},

	{"!", "Brightness 25%", KindBrightness},
	{"@", "Brightness 50%", KindBrightness},
	{"+", "Brightness Up", KindBrightness},
	{"-", "Brightness Down", KindBrightness},

	{"#", "Intensity Down", KindAdjust},
	{"$", "Intensity Up", KindAdjust},
	{"%", "Saturation Down", KindAdjust},
	{"^", "Saturation Up", KindAdjust},
	{"&", "Hue Speed Down", KindAdjust},
	{"*", "Hue Speed Up", KindAdjust},

	{";", "Reverse", KindLayout},
	{"'", "Mirror", KindLayout},
	{"[", "Wave Direction", KindLayout},
	{"]", "Rainbow Mode", KindLayout},

	{"L", "Status", KindSystem},
	{"A", "Auto-Cycle", KindSystem},
	{"(", "Reset All", KindSystem},
	{"{", "Clear LEDs", KindSystem},
	{")", "Show Custom", KindSystem},
	{"}", "LED Settings", KindSystem},
}

// lookupCommand finds a single-character command by code.
func lookupCommand(code string) (CommandInfo, bool) {
	for _, c := range vocabulary {
		if c.Code == code {
			return c, true
		}
	}
	return CommandInfo{}, false
}

// NormalizeCommand returns the exact bytes to put on the wire. A lone control
// character is newline-terminated; longer commands are passed through as the
// caller built them.
func NormalizeCommand(cmd string) string {
	if len(cmd) == 1 {
		return cmd + "\n"
	}
	return cmd
}

// SettingKind is the type tag of a numeric directive.
type SettingKind byte

const (
	SettingBrightness SettingKind = 'B'
	SettingSpeed      SettingKind = 'V'
	SettingIntensity  SettingKind = 'I'
	SettingSaturation SettingKind = 'U'
	SettingHueSpeed   SettingKind = 'H'
	SettingTipsy      SettingKind = 'T'
)

// settingRange is the documented value range for each directive.
var settingRange = map[SettingKind][2]int{
	SettingBrightness: {0, byteSettingMax},
	SettingSpeed:      {speedMinMS, speedMaxMS},
	SettingIntensity:  {0, byteSettingMax},
	SettingSaturation: {0, byteSettingMax},
	SettingHueSpeed:   {hueSpeedMin, hueSpeedMax},
	SettingTipsy:      {tipsyClampMin, tipsyClampMax},
}

var settingNames = map[SettingKind]string{
	SettingBrightness: "brightness",
	SettingSpeed:      "speed",
	SettingIntensity:  "intensity",
	SettingSaturation: "saturation",
	SettingHueSpeed:   "hue",
	SettingTipsy:      "tipsy",
}

func (k SettingKind) String() string {
	if n, ok := settingNames[k]; ok {
		return n
	}
	return fmt.Sprintf("setting(%q)", byte(k))
}

// ParseSettingKind accepts either the long name ("brightness") or the wire
// tag ("B").
func ParseSettingKind(s string) (SettingKind, error) {
	if len(s) == 1 {
		k := SettingKind(s[0])
		if _, ok := settingRange[k]; ok {
			return k, nil
		}
	}
	for k, n := range settingNames {
		if strings.EqualFold(s, n) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown setting %q", ErrInvalidSetting, s)
}

// Clamp limits v to the directive's documented range.
func (k SettingKind) Clamp(v int) int {
	r, ok := settingRange[k]
	if !ok {
		return v
	}
	return clampInt(v, r[0], r[1])
}

// FormatDirective builds "~<T><value>\n" after clamping value.
func FormatDirective(kind SettingKind, value int) string {
	return "~" + string(byte(kind)) + strconv.Itoa(kind.Clamp(value)) + "\n"
}

// FormatRGB builds the custom colour command with each component clamped.
func FormatRGB(r, g, b int) string {
	return fmt.Sprintf("G%d,%d,%d\n", clampInt(r, 0, 255), clampInt(g, 0, 255), clampInt(b, 0, 255))
}

// parseBrightnessDirective extracts n from an exact "~B<n>\n" command.
func parseBrightnessDirective(cmd string) (int, bool) {
	if !strings.HasPrefix(cmd, "~B") || !strings.HasSuffix(cmd, "\n") {
		return 0, false
	}
	v, err := strconv.Atoi(cmd[2 : len(cmd)-1])
	if err != nil {
		return 0, false
	}
	return v, true
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ============================================================================
// Telemetry frames
// ============================================================================

// FrameKind classifies an inbound line.
type FrameKind int

const (
	FrameText FrameKind = iota
	FrameRecord
)

// Frame is one classified inbound line.
type Frame struct {
	Kind   FrameKind
	Values map[string]float64 // numeric fields of a record
	Text   string             // the raw line
}

// ParseFrame classifies a trimmed line. Decode failures downgrade to text.
func ParseFrame(line string) Frame {
	f := Frame{Kind: FrameText, Text: line}
	if !strings.HasPrefix(line, "{") {
		return f
	}
	var raw map[string]any
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return f
	}
	f.Kind = FrameRecord
	f.Values = make(map[string]float64, len(raw))
	for k, v := range raw {
		if n, ok := v.(float64); ok {
			f.Values[k] = n
		}
	}
	return f
}

// ============================================================================
// Derived values
// ============================================================================

// MapRange linearly maps x from [inMin,inMax] onto [outMin,outMax]. A
// degenerate input range returns outMin.
func MapRange(x, inMin, inMax, outMin, outMax float64) float64 {
	if inMax == inMin {
		return outMin
	}
	ratio := (x - inMin) / (inMax - inMin)
	return outMin + ratio*(outMax-outMin)
}

// tipsyFromSpeed maps a measured speed sample to a tipsy-sync value.
func tipsyFromSpeed(speed float64) int {
	v := int(MapRange(float64(int(speed)), tipsySpeedInMin, tipsySpeedInMax, tipsyOutAtInMin, tipsyOutAtInMax))
	return clampInt(v, tipsyClampMin, tipsyClampMax)
}

// ============================================================================
// Scenes
// ============================================================================

// Scene is a named, fixed command sequence (favourites and multi-colour
// quick options).
type Scene struct {
	Name     string   `json:"name"`
	Commands []string `json:"commands"`
}

var scenes = []Scene{
	{"chill-rainbow", []string{"1", "R"}},
	{"fast-pulse-red", []string{"1", "P"}},
	{"calm-fire", []string{"1", "F"}},
	{"disco-strobe", []string{"1", "X"}},
	{"multi-rainbow", []string{"J", "~H2\n"}},
	{"pastel-cycle", []string{"J", "~I200\n", "~H1\n"}},
	{"rgb-cycle", []string{"J", "~I255\n", "~H3\n"}},
}

func lookupScene(name string) (Scene, bool) {
	for _, s := range scenes {
		if s.Name == name {
			return s, true
		}
	}
	return Scene{}, false
}
