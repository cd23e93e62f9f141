//go:build !linux

package main

import (
	"errors"
	"os"
)

// readInputDevices starts one blocking reader per device. The first reader
// error is forwarded; the rest are dropped.
func readInputDevices(files []*os.File, events chan<- inputEvent, readErr chan<- error) {
	if len(files) == 0 {
		readErr <- errors.New("no input devices provided")
		return
	}
	errs := make(chan error, len(files))
	for _, f := range files {
		go readInputEvents(f, events, errs)
	}
	readErr <- <-errs
}
