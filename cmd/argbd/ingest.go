package main

import (
	"bufio"
	"errors"
	"strings"
	"time"
)

// readSerialLines is the ingest task for one open Link. It reads LF-delimited
// lines, classifies each one and posts it to the daemon loop. It never touches
// controller state.
//
// The loop ends on the first read error, which includes the error produced by
// closing the port. LinkLost is posted unless the link was closed on purpose.
func readSerialLines(link *Link, out chan<- Event) {
	br := bufio.NewReaderSize(link.conn, maxLineLength)
	overlong := false

	for {
		chunk, err := br.ReadSlice('\n')
		if errors.Is(err, bufio.ErrBufferFull) {
			// Line longer than maxLineLength: drop it through the next LF.
			overlong = true
			continue
		}
		if err != nil {
			post(link, out, LinkLost{LinkID: link.ID, Err: err})
			return
		}
		if overlong {
			overlong = false
			continue
		}

		line := strings.TrimSpace(strings.ReplaceAll(string(chunk), "\r", ""))
		if line == "" {
			continue
		}

		post(link, out, FrameReceived{
			LinkID: link.ID,
			Frame:  ParseFrame(line),
			At:     time.Now(),
		})
	}
}

// post delivers ev unless the link has been closed, so a reader never blocks
// on a loop that has stopped listening for it.
func post(link *Link, out chan<- Event, ev Event) {
	select {
	case out <- ev:
	case <-link.Done():
	}
}
