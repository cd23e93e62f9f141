package main

import (
	"encoding/json"
	"fmt"
)

// ============================================================================
// Action Types - Command-based Architecture
// ============================================================================
// Actions represent intent from clients (IPC, HTTP API, input devices).
// The central daemon loop reduces them and applies policy.
// ============================================================================

// Action is a client request. Every Action is also a reducer Event.
type Action interface {
	Event
	actionType() string
}

// Connect opens a serial link. Baud 0 means the configured default.
type Connect struct {
	Port string `json:"port"`
	Baud int    `json:"baud,omitempty"`
}

// Disconnect closes the current link.
type Disconnect struct{}

// SendCommand transmits a raw command: a single control character or a
// pre-built, newline-terminated command string.
type SendCommand struct {
	Command string `json:"command"`
}

// SetSetting moves one numeric control and transmits the directive unless
// NoSend is set.
type SetSetting struct {
	Kind   string `json:"kind"` // brightness|speed|intensity|saturation|hue|tipsy or B|V|I|U|H|T
	Value  int    `json:"value"`
	NoSend bool   `json:"no_send,omitempty"`
}

// SetCustomColor transmits a custom RGB colour. Hex wins over R/G/B when set.
type SetCustomColor struct {
	R   int    `json:"r"`
	G   int    `json:"g"`
	B   int    `json:"b"`
	Hex string `json:"hex,omitempty"`
}

// Recording controls the macro recorder: start, stop, toggle or clear.
type Recording struct {
	Op string `json:"op"`
}

// SaveMacro stores the recorded sequence under Name.
type SaveMacro struct {
	Name string `json:"name"`
}

// PlayMacro sends a stored macro through the command channel.
type PlayMacro struct {
	Name string `json:"name"`
}

// DeleteMacro removes a stored macro.
type DeleteMacro struct {
	Name string `json:"name"`
}

// SavePreset stores the current scalar controls under Name.
type SavePreset struct {
	Name string `json:"name"`
}

// LoadPreset applies a stored preset locally, and transmits it when Send is set.
type LoadPreset struct {
	Name string `json:"name"`
	Send bool   `json:"send,omitempty"`
}

// DeletePreset removes a stored preset.
type DeletePreset struct {
	Name string `json:"name"`
}

// PlayScene sends one of the built-in scenes.
type PlayScene struct {
	Name string `json:"name"`
}

// SetChannel changes a chart channel's visibility and/or colour.
type SetChannel struct {
	Key   string `json:"key"`
	Show  *bool  `json:"show,omitempty"`
	Color string `json:"color,omitempty"`
}

// ClearChart empties every channel ring and the timestamp ring.
type ClearChart struct{}

// SetTipsyBind turns the speed to tipsy binding on or off.
type SetTipsyBind struct {
	Enabled bool `json:"enabled"`
}

// SetAutoRedraw turns periodic chart frames on or off.
type SetAutoRedraw struct {
	Enabled bool `json:"enabled"`
}

// ClearHistory empties the history log.
type ClearHistory struct{}

// SetBoard stores the LED wiring.
type SetBoard struct {
	LEDPin  int `json:"led_pin"`
	NumLEDs int `json:"num_leds"`
}

// RotaryTurn represents a raw rotary encoder movement (detents/steps).
// The reducer owns policy for converting this into commands (including velocity scaling).
type RotaryTurn struct {
	Steps int `json:"steps"` // positive=up, negative=down
}

func (Connect) eventMarker()        {}
func (Disconnect) eventMarker()     {}
func (SendCommand) eventMarker()    {}
func (SetSetting) eventMarker()     {}
func (SetCustomColor) eventMarker() {}
func (Recording) eventMarker()      {}
func (SaveMacro) eventMarker()      {}
func (PlayMacro) eventMarker()      {}
func (DeleteMacro) eventMarker()    {}
func (SavePreset) eventMarker()     {}
func (LoadPreset) eventMarker()     {}
func (DeletePreset) eventMarker()   {}
func (PlayScene) eventMarker()      {}
func (SetChannel) eventMarker()     {}
func (ClearChart) eventMarker()     {}
func (SetTipsyBind) eventMarker()   {}
func (SetAutoRedraw) eventMarker()  {}
func (ClearHistory) eventMarker()   {}
func (SetBoard) eventMarker()       {}
func (RotaryTurn) eventMarker()     {}

func (Connect) actionType() string        { return "connect" }
func (Disconnect) actionType() string     { return "disconnect" }
func (SendCommand) actionType() string    { return "send_command" }
func (SetSetting) actionType() string     { return "set_setting" }
func (SetCustomColor) actionType() string { return "set_color" }
func (Recording) actionType() string      { return "recording" }
func (SaveMacro) actionType() string      { return "save_macro" }
func (PlayMacro) actionType() string      { return "play_macro" }
func (DeleteMacro) actionType() string    { return "delete_macro" }
func (SavePreset) actionType() string     { return "save_preset" }
func (LoadPreset) actionType() string     { return "load_preset" }
func (DeletePreset) actionType() string   { return "delete_preset" }
func (PlayScene) actionType() string      { return "play_scene" }
func (SetChannel) actionType() string     { return "set_channel" }
func (ClearChart) actionType() string     { return "clear_chart" }
func (SetTipsyBind) actionType() string   { return "set_tipsy_bind" }
func (SetAutoRedraw) actionType() string  { return "set_auto_redraw" }
func (ClearHistory) actionType() string   { return "clear_history" }
func (SetBoard) actionType() string       { return "set_board" }
func (RotaryTurn) actionType() string     { return "rotary_turn" }

// ============================================================================
// JSON Encoding/Decoding Support
// ============================================================================
// ActionEnvelope wraps actions for JSON serialization/deserialization.
// Since Go doesn't have union types, we use a type discriminator.
// ============================================================================

// ActionEnvelope wraps an action with a type discriminator for JSON marshaling
type ActionEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

var actionDecoders = map[string]func(json.RawMessage) (Action, error){
	"connect":         decode[Connect],
	"disconnect":      decode[Disconnect],
	"send_command":    decode[SendCommand],
	"set_setting":     decode[SetSetting],
	"set_color":       decode[SetCustomColor],
	"recording":       decode[Recording],
	"save_macro":      decode[SaveMacro],
	"play_macro":      decode[PlayMacro],
	"delete_macro":    decode[DeleteMacro],
	"save_preset":     decode[SavePreset],
	"load_preset":     decode[LoadPreset],
	"delete_preset":   decode[DeletePreset],
	"play_scene":      decode[PlayScene],
	"set_channel":     decode[SetChannel],
	"clear_chart":     decode[ClearChart],
	"set_tipsy_bind":  decode[SetTipsyBind],
	"set_auto_redraw": decode[SetAutoRedraw],
	"clear_history":   decode[ClearHistory],
	"set_board":       decode[SetBoard],
	"rotary_turn":     decode[RotaryTurn],
}

// decode unmarshals data into a T. Empty data yields the zero value so
// payload-free actions can omit "data".
func decode[T Action](data json.RawMessage) (Action, error) {
	var a T
	if len(data) == 0 || string(data) == "null" {
		return a, nil
	}
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", a.actionType(), err)
	}
	return a, nil
}

// UnmarshalAction deserializes a JSON action envelope into a concrete Action
func UnmarshalAction(data []byte) (Action, error) {
	var env ActionEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}
	dec, ok := actionDecoders[env.Type]
	if !ok {
		return nil, fmt.Errorf("unknown action type: %q", env.Type)
	}
	return dec(env.Data)
}

// MarshalAction serializes an Action into a JSON action envelope
func MarshalAction(a Action) ([]byte, error) {
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", a.actionType(), err)
	}
	env := ActionEnvelope{Type: a.actionType()}
	if string(data) != "{}" {
		env.Data = data
	}
	return json.Marshal(env)
}
