package main

import "time"

// ==============================
// Events
// ==============================

// Event is the input to the reducer.
// It can be a client Action, a Tick, or an observation reported by the
// effects layer or the ingest task.
type Event interface {
	eventMarker()
}

// Tick is emitted by the daemon loop at the redraw cadence.
type Tick struct {
	Now time.Time
}

func (Tick) eventMarker() {}

// TimedEvent stamps an inbound event with its arrival time. The daemon loop
// wraps every event it receives so payload types stay free of timestamps.
type TimedEvent struct {
	Event Event
	At    time.Time
}

func (TimedEvent) eventMarker() {}

// AwaitedEvent carries an event whose outcome the sender wants to know.
// The daemon loop reduces Event, runs every resulting effect, and then sends
// the joined error (nil on success) on Reply.
type AwaitedEvent struct {
	Event Event
	Reply chan error
}

func (AwaitedEvent) eventMarker() {}

// RequestStateSnapshot asks the loop for a consistent copy of the state.
type RequestStateSnapshot struct {
	Reply chan StateSnapshot
}

func (RequestStateSnapshot) eventMarker() {}

// ==============================
// Observations
// ==============================

// LinkOpened reports a successful CmdOpenLink.
type LinkOpened struct {
	LinkID uint64
	Port   string
	Baud   int
}

func (LinkOpened) eventMarker() {}

// LinkOpenFailed reports a failed CmdOpenLink.
type LinkOpenFailed struct {
	LinkID uint64
	Err    error
}

func (LinkOpenFailed) eventMarker() {}

// Written reports a completed CmdWrite.
type Written struct {
	LinkID  uint64
	Payload string
	Log     string
	Track   bool
}

func (Written) eventMarker() {}

// WriteFailed reports a failed CmdWrite. The effects layer has already closed
// the link when Err is a *TransmitError.
type WriteFailed struct {
	LinkID  uint64
	Payload string
	Err     error
}

func (WriteFailed) eventMarker() {}

// FrameReceived is posted by the ingest task for every non-empty line.
type FrameReceived struct {
	LinkID uint64
	Frame  Frame
	At     time.Time
}

func (FrameReceived) eventMarker() {}

// LinkLost is posted by the ingest task when a read fails.
type LinkLost struct {
	LinkID uint64
	Err    error
}

func (LinkLost) eventMarker() {}
