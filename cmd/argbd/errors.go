package main

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned when a command needs an open link.
	ErrNotConnected = errors.New("not connected")
	// ErrNoPort is returned by connect without a port name.
	ErrNoPort = errors.New("no serial port selected")

	ErrInvalidName        = errors.New("name must not be empty")
	ErrEmptyRecording     = errors.New("no commands recorded")
	ErrUnknownMacro       = errors.New("unknown macro")
	ErrUnknownPreset      = errors.New("unknown preset")
	ErrUnknownScene       = errors.New("unknown scene")
	ErrUnknownChannel     = errors.New("unknown channel")
	ErrInvalidSetting     = errors.New("invalid setting")
	ErrInvalidBoardConfig = errors.New("invalid board config")
	ErrInvalidBaud        = errors.New("baud must be 9600 or 115200")
	ErrEmptyCommand       = errors.New("command must not be empty")
	ErrUnknownOp          = errors.New("unknown operation")

	// ErrQueueFull is returned when the daemon loop is not keeping up.
	ErrQueueFull = errors.New("event queue full")
	// ErrNoReply is returned when the daemon loop did not answer in time.
	ErrNoReply = errors.New("no reply from daemon")
)

// OpenError reports a failed serial open.
type OpenError struct {
	Port string
	Err  error
}

func (e *OpenError) Error() string { return fmt.Sprintf("open %s: %v", e.Port, e.Err) }
func (e *OpenError) Unwrap() error { return e.Err }

// TransmitError reports a failed serial write. The link is dropped after one.
type TransmitError struct {
	Payload string
	Err     error
}

func (e *TransmitError) Error() string { return fmt.Sprintf("transmit %q: %v", e.Payload, e.Err) }
func (e *TransmitError) Unwrap() error { return e.Err }

// isValidationError reports whether err is caused by bad client input.
func isValidationError(err error) bool {
	for _, target := range []error{
		ErrNoPort, ErrInvalidName, ErrEmptyRecording, ErrUnknownMacro, ErrUnknownPreset,
		ErrUnknownScene, ErrUnknownChannel, ErrInvalidSetting, ErrInvalidBoardConfig,
		ErrInvalidBaud, ErrEmptyCommand, ErrUnknownOp,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
