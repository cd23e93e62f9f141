package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// testDaemon is a running daemon loop wired to fake serial ports.
type testDaemon struct {
	events     chan Event
	broadcasts chan StateBroadcast
	history    *History
	ports      chan *fakePort
	openErr    error
	cancel     context.CancelFunc
	done       chan struct{}
}

func startTestDaemon(t *testing.T) *testDaemon {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	d := &testDaemon{
		events:     make(chan Event, 64),
		broadcasts: make(chan StateBroadcast, 256),
		history:    NewHistory("", 100),
		ports:      make(chan *fakePort, 4),
		cancel:     cancel,
		done:       make(chan struct{}),
	}

	env := &effectsEnv{
		open: func(name string, baud int) (Port, error) {
			if d.openErr != nil {
				return nil, d.openErr
			}
			p := newFakePort()
			d.ports <- p
			return p, nil
		},
		history: d.history,
		ingest:  d.events,
	}
	state := newControllerState(defaultHistorySize, nil, true, false, defaultBaud)
	cfg := daemonConfig{Rotary: defaultRotaryConfig(), RedrawInterval: 20 * time.Millisecond}

	go func() {
		defer close(d.done)
		runDaemon(ctx, d.events, env, cfg, state, d.broadcasts, testLogger())
	}()

	t.Cleanup(func() {
		cancel()
		select {
		case <-d.done:
		case <-time.After(time.Second):
			t.Errorf("daemon did not stop")
		}
	})
	return d
}

func (d *testDaemon) dispatch(a Action) error {
	return dispatch(context.Background(), d.events, a, time.Second)
}

func (d *testDaemon) snapshot(t *testing.T) StateSnapshot {
	t.Helper()
	snap, err := requestSnapshot(context.Background(), d.events, time.Second)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	return snap
}

// connect opens a link and returns the fake port behind it.
func (d *testDaemon) connect(t *testing.T) *fakePort {
	t.Helper()
	if err := d.dispatch(Connect{Port: "/dev/ttyFAKE"}); err != nil {
		t.Fatalf("connect: %v", err)
	}
	select {
	case p := <-d.ports:
		return p
	default:
		t.Fatalf("connect did not open a port")
		return nil
	}
}

func TestDaemon_ConnectAndSend(t *testing.T) {
	d := startTestDaemon(t)
	port := d.connect(t)

	snap := d.snapshot(t)
	if !snap.Connected || snap.Port != "/dev/ttyFAKE" || snap.Baud != defaultBaud {
		t.Fatalf("unexpected link state: %+v", snap)
	}

	if err := d.dispatch(SendCommand{Command: "R"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := d.dispatch(SetSetting{Kind: "brightness", Value: 128}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if got := port.written(); got != "R\n~B128\n" {
		t.Fatalf("written = %q", got)
	}

	entries := d.history.Entries()
	var sawConnected, sawSent bool
	for _, e := range entries {
		sawConnected = sawConnected || strings.HasSuffix(e, "[CONNECTED] /dev/ttyFAKE @ 9600 baud")
		sawSent = sawSent || strings.HasSuffix(e, "→ Sent: R")
	}
	if !sawConnected || !sawSent {
		t.Fatalf("history missing entries: %q", entries)
	}
}

func TestDaemon_SendWithoutLink(t *testing.T) {
	d := startTestDaemon(t)

	err := d.dispatch(SendCommand{Command: "R"})
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestDaemon_OpenFailure(t *testing.T) {
	d := startTestDaemon(t)
	d.openErr = errors.New("permission denied")

	err := d.dispatch(Connect{Port: "/dev/ttyFAKE"})
	var oe *OpenError
	if !errors.As(err, &oe) || oe.Port != "/dev/ttyFAKE" {
		t.Fatalf("expected *OpenError, got %v", err)
	}
	if snap := d.snapshot(t); snap.Connected || snap.Opening {
		t.Fatalf("link active after failed open: %+v", snap)
	}
}

func TestDaemon_WriteFailureDropsLink(t *testing.T) {
	d := startTestDaemon(t)
	port := d.connect(t)

	port.failWrites(errors.New("i/o error"))
	err := d.dispatch(SendCommand{Command: "R"})
	var te *TransmitError
	if !errors.As(err, &te) {
		t.Fatalf("expected *TransmitError, got %v", err)
	}

	if snap := d.snapshot(t); snap.Connected {
		t.Fatalf("still connected after transmit failure")
	}
	if !port.isClosed() {
		t.Fatalf("port not closed after transmit failure")
	}

	// Later commands fail fast until reconnect.
	if err := d.dispatch(SendCommand{Command: "P"}); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestDaemon_TelemetryUpdatesState(t *testing.T) {
	d := startTestDaemon(t)
	port := d.connect(t)

	port.feed(t, "{\"BR\":10,\"S\":5}\n")

	waitUntil(t, time.Second, func() bool {
		snap := d.snapshot(t)
		return snap.Scalars.Brightness == 10 && snap.Scalars.SpeedMS == 5
	}, "telemetry not applied")

	snap := d.snapshot(t)
	if len(snap.Timestamps) != 1 {
		t.Fatalf("expected 1 timestamp, got %d", len(snap.Timestamps))
	}
	if snap.Brightness == nil || snap.Brightness.Current != 10 {
		t.Fatalf("brightness stats = %+v", snap.Brightness)
	}

	// The redraw ticker publishes a chart frame for the new sample.
	deadline := time.After(time.Second)
	for {
		select {
		case b := <-d.broadcasts:
			if c, ok := b.(BroadcastChart); ok {
				if len(c.Channels) == 0 {
					t.Fatalf("chart frame without channels")
				}
				return
			}
		case <-deadline:
			t.Fatalf("no chart frame received")
		}
	}
}

func TestDaemon_DeviceUnpluggedDisconnects(t *testing.T) {
	d := startTestDaemon(t)
	port := d.connect(t)

	port.w.CloseWithError(errors.New("unplugged"))

	waitUntil(t, time.Second, func() bool {
		return !d.snapshot(t).Connected
	}, "link not dropped after read error")
}

func TestDaemon_ReconnectReplacesLink(t *testing.T) {
	d := startTestDaemon(t)
	first := d.connect(t)
	second := d.connect(t)

	if !first.isClosed() {
		t.Fatalf("first port left open after reconnect")
	}
	if err := d.dispatch(SendCommand{Command: "R"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if first.written() != "" || second.written() != "R\n" {
		t.Fatalf("write went to the wrong port: first=%q second=%q", first.written(), second.written())
	}
}

func TestDispatch_QueueFull(t *testing.T) {
	events := make(chan Event) // nobody reads

	if err := dispatch(context.Background(), events, Disconnect{}, 10*time.Millisecond); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	if _, err := requestSnapshot(context.Background(), events, 10*time.Millisecond); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
}

func TestDispatch_NoReply(t *testing.T) {
	events := make(chan Event, 1) // accepted but never processed

	if err := dispatch(context.Background(), events, Disconnect{}, 10*time.Millisecond); !errors.Is(err, ErrNoReply) {
		t.Fatalf("expected ErrNoReply, got %v", err)
	}
}
