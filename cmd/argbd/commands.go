package main

import (
	"fmt"
	"strings"
)

// ==============================
// Commands (side effects)
// ==============================

// Command represents an external side effect to be executed by the daemon loop.
// In this codebase, those are serial link operations and persistence writes.
type Command interface {
	commandMarker()
	String() string
}

// CmdOpenLink requests opening a serial port for link LinkID.
type CmdOpenLink struct {
	LinkID uint64
	Port   string
	Baud   int
}

func (CmdOpenLink) commandMarker() {}
func (c CmdOpenLink) String() string {
	return fmt.Sprintf("CmdOpenLink(link=%d, port=%s, baud=%d)", c.LinkID, c.Port, c.Baud)
}

// CmdCloseLink closes link LinkID if it is still open.
type CmdCloseLink struct {
	LinkID uint64
}

func (CmdCloseLink) commandMarker()   {}
func (c CmdCloseLink) String() string { return fmt.Sprintf("CmdCloseLink(link=%d)", c.LinkID) }

// CmdWrite transmits Payload on link LinkID. Log, if set, replaces the default
// history line written after a successful transmit.
type CmdWrite struct {
	LinkID  uint64
	Payload string
	Log     string
	// Track updates the tracked effect/colour once the write succeeds.
	Track bool
}

func (CmdWrite) commandMarker() {}
func (c CmdWrite) String() string {
	return fmt.Sprintf("CmdWrite(link=%d, payload=%q)", c.LinkID, strings.TrimSpace(c.Payload))
}

// CmdAppendHistory appends one timestamped history entry.
type CmdAppendHistory struct {
	Entry string
}

func (CmdAppendHistory) commandMarker()   {}
func (c CmdAppendHistory) String() string { return fmt.Sprintf("CmdAppendHistory(%q)", c.Entry) }

// CmdClearHistory empties the history log and removes its file.
type CmdClearHistory struct{}

func (CmdClearHistory) commandMarker() {}
func (CmdClearHistory) String() string { return "CmdClearHistory()" }

// CmdSaveMacros persists the full macro table.
type CmdSaveMacros struct {
	Macros map[string][]string
}

func (CmdSaveMacros) commandMarker()   {}
func (c CmdSaveMacros) String() string { return fmt.Sprintf("CmdSaveMacros(n=%d)", len(c.Macros)) }

// CmdSavePresets persists the full preset table.
type CmdSavePresets struct {
	Presets map[string]Preset
}

func (CmdSavePresets) commandMarker()   {}
func (c CmdSavePresets) String() string { return fmt.Sprintf("CmdSavePresets(n=%d)", len(c.Presets)) }

// CmdSaveBoard persists the board config.
type CmdSaveBoard struct {
	Board BoardConfig
}

func (CmdSaveBoard) commandMarker() {}
func (c CmdSaveBoard) String() string {
	return fmt.Sprintf("CmdSaveBoard(pin=%d, leds=%d)", c.Board.LEDPin, c.Board.NumLEDs)
}

// CmdPublishStateSnapshot delivers a reducer-built snapshot to a requester.
type CmdPublishStateSnapshot struct {
	Reply    chan StateSnapshot
	Snapshot StateSnapshot
}

func (CmdPublishStateSnapshot) commandMarker() {}
func (CmdPublishStateSnapshot) String() string { return "CmdPublishStateSnapshot()" }
