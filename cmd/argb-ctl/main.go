package main

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
)

// ============================================================================
// argb-ctl - Command-line IPC Client
// ============================================================================
// This tool sends actions to the argbd daemon via IPC and prints the outcome.
//
// Usage:
//   argb-ctl connect /dev/ttyUSB0 115200
//   argb-ctl send R
//   argb-ctl set brightness 128
//   argb-ctl color '#ff8040'
//   argb-ctl scene chill-rainbow
//
// Options:
//   -socket PATH    Unix domain socket path (default: /tmp/argbd.sock)
// ============================================================================

// ActionEnvelope wraps actions for JSON
type ActionEnvelope struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// IPCResponse represents the daemon's response
type IPCResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type usageError string

func (e usageError) Error() string { return string(e) }

func main() {
	socketPath := "/tmp/argbd.sock"

	// Parse arguments
	args := os.Args[1:]
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	// Check for -socket flag
	if args[0] == "-socket" || args[0] == "--socket" {
		if len(args) < 2 {
			fmt.Fprintf(os.Stderr, "error: -socket requires an argument\n")
			os.Exit(1)
		}
		socketPath = args[1]
		args = args[2:]
	}

	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	if args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		printUsage()
		os.Exit(0)
	}

	env, err := parseCommand(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		if _, ok := err.(usageError); ok {
			printUsage()
		}
		os.Exit(1)
	}

	// Send action
	if err := sendAction(socketPath, env); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("ok")
}

// parseCommand translates CLI arguments into an action envelope.
func parseCommand(args []string) (ActionEnvelope, error) {
	need := func(n int, usage string) error {
		if len(args) < n+1 {
			return usageError(fmt.Sprintf("%s requires %s", args[0], usage))
		}
		return nil
	}

	switch args[0] {
	case "connect":
		if err := need(1, "a port"); err != nil {
			return ActionEnvelope{}, err
		}
		data := map[string]any{"port": args[1]}
		if len(args) > 2 {
			baud, err := strconv.Atoi(args[2])
			if err != nil {
				return ActionEnvelope{}, fmt.Errorf("invalid baud: %v", err)
			}
			data["baud"] = baud
		}
		return ActionEnvelope{Type: "connect", Data: data}, nil

	case "disconnect":
		return ActionEnvelope{Type: "disconnect"}, nil

	case "send":
		if err := need(1, "a command"); err != nil {
			return ActionEnvelope{}, err
		}
		cmd := args[1]
		// Multi-character commands go out as typed; terminate them here.
		if len(cmd) > 1 && !strings.HasSuffix(cmd, "\n") {
			cmd += "\n"
		}
		return ActionEnvelope{Type: "send_command", Data: map[string]any{"command": cmd}}, nil

	case "set":
		if err := need(2, "a kind and a value"); err != nil {
			return ActionEnvelope{}, err
		}
		v, err := strconv.Atoi(args[2])
		if err != nil {
			return ActionEnvelope{}, fmt.Errorf("invalid value: %v", err)
		}
		return ActionEnvelope{Type: "set_setting", Data: map[string]any{"kind": args[1], "value": v}}, nil

	case "color":
		if err := need(1, "a hex colour or r g b"); err != nil {
			return ActionEnvelope{}, err
		}
		r, g, b, err := parseColor(args[1:])
		if err != nil {
			return ActionEnvelope{}, err
		}
		return ActionEnvelope{Type: "set_color", Data: map[string]any{"r": r, "g": g, "b": b}}, nil

	case "record":
		if err := need(1, "start|stop|toggle|clear"); err != nil {
			return ActionEnvelope{}, err
		}
		return ActionEnvelope{Type: "recording", Data: map[string]any{"op": args[1]}}, nil

	case "macro":
		if err := need(2, "save|play|delete and a name"); err != nil {
			return ActionEnvelope{}, err
		}
		typ := map[string]string{"save": "save_macro", "play": "play_macro", "delete": "delete_macro"}[args[1]]
		if typ == "" {
			return ActionEnvelope{}, usageError("unknown macro operation: " + args[1])
		}
		return ActionEnvelope{Type: typ, Data: map[string]any{"name": args[2]}}, nil

	case "preset":
		if err := need(2, "save|load|delete and a name"); err != nil {
			return ActionEnvelope{}, err
		}
		data := map[string]any{"name": args[2]}
		var typ string
		switch args[1] {
		case "save":
			typ = "save_preset"
		case "load":
			typ = "load_preset"
			data["send"] = len(args) > 3 && (args[3] == "-send" || args[3] == "--send")
		case "delete":
			typ = "delete_preset"
		default:
			return ActionEnvelope{}, usageError("unknown preset operation: " + args[1])
		}
		return ActionEnvelope{Type: typ, Data: data}, nil

	case "scene":
		if err := need(1, "a scene name"); err != nil {
			return ActionEnvelope{}, err
		}
		return ActionEnvelope{Type: "play_scene", Data: map[string]any{"name": args[1]}}, nil

	case "channel":
		if err := need(2, "a key and show|hide|color"); err != nil {
			return ActionEnvelope{}, err
		}
		data := map[string]any{"key": strings.ToUpper(args[1])}
		switch args[2] {
		case "show":
			data["show"] = true
		case "hide":
			data["show"] = false
		case "color":
			if len(args) < 4 {
				return ActionEnvelope{}, usageError("channel color requires a hex colour")
			}
			c, err := colorful.Hex(args[3])
			if err != nil {
				return ActionEnvelope{}, fmt.Errorf("invalid colour %q: %v", args[3], err)
			}
			data["color"] = c.Hex()
		default:
			return ActionEnvelope{}, usageError("unknown channel operation: " + args[2])
		}
		return ActionEnvelope{Type: "set_channel", Data: data}, nil

	case "clear-chart":
		return ActionEnvelope{Type: "clear_chart"}, nil

	case "bind-tipsy", "redraw":
		if err := need(1, "on|off"); err != nil {
			return ActionEnvelope{}, err
		}
		on, err := parseOnOff(args[1])
		if err != nil {
			return ActionEnvelope{}, err
		}
		typ := "set_tipsy_bind"
		if args[0] == "redraw" {
			typ = "set_auto_redraw"
		}
		return ActionEnvelope{Type: typ, Data: map[string]any{"enabled": on}}, nil

	case "clear-history":
		return ActionEnvelope{Type: "clear_history"}, nil

	case "board":
		if err := need(2, "a pin and an LED count"); err != nil {
			return ActionEnvelope{}, err
		}
		pin, err := strconv.Atoi(args[1])
		if err != nil {
			return ActionEnvelope{}, fmt.Errorf("invalid pin: %v", err)
		}
		leds, err := strconv.Atoi(args[2])
		if err != nil {
			return ActionEnvelope{}, fmt.Errorf("invalid LED count: %v", err)
		}
		return ActionEnvelope{Type: "set_board", Data: map[string]any{"led_pin": pin, "num_leds": leds}}, nil

	case "rotary":
		if err := need(1, "a step count"); err != nil {
			return ActionEnvelope{}, err
		}
		steps, err := strconv.Atoi(args[1])
		if err != nil {
			return ActionEnvelope{}, fmt.Errorf("invalid steps: %v", err)
		}
		return ActionEnvelope{Type: "rotary_turn", Data: map[string]any{"steps": steps}}, nil
	}

	return ActionEnvelope{}, usageError("unknown command: " + args[0])
}

// parseColor accepts "#rrggbb" or three 0..255 components.
func parseColor(args []string) (int, int, int, error) {
	if len(args) >= 3 {
		var rgb [3]int
		for i := range rgb {
			v, err := strconv.Atoi(args[i])
			if err != nil {
				return 0, 0, 0, fmt.Errorf("invalid colour component %q: %v", args[i], err)
			}
			rgb[i] = v
		}
		return rgb[0], rgb[1], rgb[2], nil
	}
	hex := args[0]
	if !strings.HasPrefix(hex, "#") {
		hex = "#" + hex
	}
	c, err := colorful.Hex(hex)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid colour %q: %v", args[0], err)
	}
	r, g, b := c.RGB255()
	return int(r), int(g), int(b), nil
}

func parseOnOff(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "true", "1", "yes":
		return true, nil
	case "off", "false", "0", "no":
		return false, nil
	}
	return false, fmt.Errorf("expected on or off, got %q", s)
}

func sendAction(socketPath string, env ActionEnvelope) error {
	// Connect to socket
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", socketPath, err)
	}
	defer conn.Close()

	// Marshal action
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal action: %w", err)
	}

	// Send action (line-delimited JSON)
	if _, err := fmt.Fprintf(conn, "%s\n", data); err != nil {
		return fmt.Errorf("send action: %w", err)
	}

	// Read response
	var response IPCResponse
	decoder := json.NewDecoder(conn)
	if err := decoder.Decode(&response); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	// Check response status
	if response.Status == "error" {
		return fmt.Errorf("daemon error: %s", response.Error)
	}

	return nil
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `argb-ctl - Control the argbd daemon via IPC

Usage:
  argb-ctl [options] <command> [args]

Options:
  -socket PATH    Unix domain socket path (default: /tmp/argbd.sock)

Commands:
  connect <port> [baud]           Open the serial link (baud 9600 or 115200)
  disconnect                      Close the serial link
  send <cmd>                      Send a raw command (e.g. R, 1, "~B128")
  set <kind> <value>              brightness|speed|intensity|saturation|hue|tipsy
  color <#rrggbb> | <r> <g> <b>   Send a custom colour
  record start|stop|toggle|clear  Control the macro recorder
  macro save|play|delete <name>   Manage macros
  preset save|delete <name>       Manage presets
  preset load <name> [-send]      Apply a preset (and transmit it with -send)
  scene <name>                    Play a scene (chill-rainbow, calm-fire, ...)
  channel <key> show|hide         Toggle a chart channel
  channel <key> color <#rrggbb>   Recolour a chart channel
  clear-chart                     Clear all chart history
  bind-tipsy on|off               Drive tipsy from measured speed
  redraw on|off                   Toggle periodic chart frames
  clear-history                   Clear the command history
  board <pin> <leds>              Save the LED wiring
  rotary <steps>                  Simulate a rotary encoder turn
  help, -h, --help                Show this help message

Examples:
  argb-ctl connect /dev/ttyUSB0 115200
  argb-ctl set brightness 128
  argb-ctl color ff8040
  argb-ctl -socket /run/argbd.sock scene disco-strobe
`)
}
