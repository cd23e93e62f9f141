package main

import (
	"io"
	"sort"
	"sync"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// ============================================================================
// Serial link
// ============================================================================
//
// A Link is one open connection to the controller. The daemon loop owns the
// current Link and is the only writer. A single ingest goroutine reads from it.
// Closing the port is the only way to stop the reader: the pending Read returns
// an error and the goroutine exits.
// ============================================================================

// Port is the byte stream a Link runs over. go.bug.st/serial ports satisfy it;
// tests use in-memory fakes.
type Port interface {
	io.ReadWriteCloser
}

// Opener opens a named port at the given baud rate.
type Opener func(name string, baud int) (Port, error)

// openSerialPort opens a real serial port at 8N1.
//
// No read timeout is configured: the ingest reader blocks in Read until a
// line arrives or the port is closed.
func openSerialPort(name string, baud int) (Port, error) {
	p, err := serial.Open(name, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Link is an open device connection.
type Link struct {
	ID   uint64
	Name string
	Baud int

	conn Port

	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

func newLink(id uint64, name string, baud int, conn Port) *Link {
	return &Link{
		ID:   id,
		Name: name,
		Baud: baud,
		conn: conn,
		done: make(chan struct{}),
	}
}

// Write transmits payload as-is. Writes have no timeout.
func (l *Link) Write(payload string) error {
	if _, err := io.WriteString(l.conn, payload); err != nil {
		return &TransmitError{Payload: payload, Err: err}
	}
	return nil
}

// Close closes the port once. Safe to call repeatedly.
func (l *Link) Close() error {
	l.closeOnce.Do(func() {
		close(l.done)
		l.closeErr = l.conn.Close()
	})
	return l.closeErr
}

// Done is closed once Close has been called.
func (l *Link) Done() <-chan struct{} { return l.done }

// PortInfo describes one serial port available on the host.
type PortInfo struct {
	Name         string `json:"name"`
	IsUSB        bool   `json:"is_usb"`
	VID          string `json:"vid,omitempty"`
	PID          string `json:"pid,omitempty"`
	SerialNumber string `json:"serial_number,omitempty"`
	Product      string `json:"product,omitempty"`
}

// listPorts returns the host's serial ports sorted by name. USB details come
// from the enumerator when available; otherwise only names are reported.
func listPorts() ([]PortInfo, error) {
	var out []PortInfo

	details, err := enumerator.GetDetailedPortsList()
	if err == nil {
		for _, d := range details {
			out = append(out, PortInfo{
				Name:         d.Name,
				IsUSB:        d.IsUSB,
				VID:          d.VID,
				PID:          d.PID,
				SerialNumber: d.SerialNumber,
				Product:      d.Product,
			})
		}
	} else {
		names, lerr := serial.GetPortsList()
		if lerr != nil {
			return nil, lerr
		}
		for _, n := range names {
			out = append(out, PortInfo{Name: n})
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// validBaud reports whether the controller firmware supports baud.
func validBaud(baud int) bool {
	return baud == 9600 || baud == 115200
}
