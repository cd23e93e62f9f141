package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"log/slog"
	"os"
)

// inputEvent represents a Linux input event structure
// struct input_event { struct timeval time; __u16 type; __u16 code; __s32 value; };
type inputEvent struct {
	Sec   int64
	Usec  int64
	Type  uint16
	Code  uint16
	Value int32
}

var inputEventSize = binary.Size(inputEvent{})

// decodeInputEvent parses one raw event. buf must be inputEventSize bytes.
func decodeInputEvent(buf []byte) (inputEvent, bool) {
	var ev inputEvent
	if err := binary.Read(bytes.NewReader(buf), binary.LittleEndian, &ev); err != nil {
		return inputEvent{}, false
	}
	return ev, true
}

// readInputEvents reads input events from a single device and sends them to a channel.
// This runs in a dedicated goroutine and blocks on read operations.
func readInputEvents(f *os.File, events chan<- inputEvent, readErr chan<- error) {
	buf := make([]byte, inputEventSize)

	for {
		if _, err := io.ReadFull(f, buf); err != nil {
			readErr <- err
			return
		}
		ev, ok := decodeInputEvent(buf)
		if !ok {
			// Skip malformed events
			continue
		}
		events <- ev
	}
}

// InputBindings maps device events to controller commands.
type InputBindings struct {
	// Keys maps EV_KEY codes to commands sent on press.
	Keys map[uint16]string
	// Rotary enables REL_DIAL / REL_WHEEL handling.
	Rotary bool
}

// translateInput turns a raw device event into an Action.
//
// Key presses (not releases or autorepeat) map through the bindings. Rotary
// movement becomes a RotaryTurn; the reducer owns step scaling.
func translateInput(ev inputEvent, b InputBindings) (Action, bool) {
	switch ev.Type {
	case EV_KEY:
		if ev.Value != evValuePress {
			return nil, false
		}
		cmd, ok := b.Keys[ev.Code]
		if !ok || cmd == "" {
			return nil, false
		}
		return SendCommand{Command: cmd}, true

	case EV_REL:
		if !b.Rotary || ev.Value == 0 {
			return nil, false
		}
		if ev.Code != REL_DIAL && ev.Code != REL_WHEEL {
			return nil, false
		}
		return RotaryTurn{Steps: int(ev.Value)}, true
	}
	return nil, false
}

// runInputPump translates raw device events into Actions for the daemon loop.
// Input is fire-and-forget: when the loop is busy the action is dropped.
func runInputPump(ctx context.Context, raw <-chan inputEvent, events chan<- Event, b InputBindings, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-raw:
			a, ok := translateInput(ev, b)
			if !ok {
				continue
			}
			select {
			case events <- a:
			default:
				logger.Warn("event queue full, dropping input action", "action", a.actionType())
			}
		}
	}
}

// openInputDevices opens every path that exists. Devices that fail to open
// are logged and skipped so one missing remote does not stop the daemon.
func openInputDevices(paths []string, logger *slog.Logger) []*os.File {
	var files []*os.File
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			logger.Warn("failed to open input device", "device", p, "error", err, "tip", "run as root or add user to 'input' group")
			continue
		}
		files = append(files, f)
	}
	return files
}
