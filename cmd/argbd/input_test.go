package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"testing"
	"time"
)

func encodeInputEvent(t *testing.T, ev inputEvent) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, ev); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func TestDecodeInputEvent(t *testing.T) {
	in := inputEvent{Sec: 12, Usec: 34, Type: EV_REL, Code: REL_DIAL, Value: -2}
	raw := encodeInputEvent(t, in)
	if len(raw) != inputEventSize {
		t.Fatalf("encoded size %d, want %d", len(raw), inputEventSize)
	}

	got, ok := decodeInputEvent(raw)
	if !ok || got != in {
		t.Fatalf("decoded %+v,%v, want %+v", got, ok, in)
	}

	if _, ok := decodeInputEvent(raw[:8]); ok {
		t.Fatalf("short buffer decoded")
	}
}

func TestTranslateInput_Keys(t *testing.T) {
	b := InputBindings{Keys: map[uint16]string{2: "1", 19: "R"}}

	a, ok := translateInput(inputEvent{Type: EV_KEY, Code: 19, Value: evValuePress}, b)
	if !ok {
		t.Fatalf("key press not translated")
	}
	if sc, isSend := a.(SendCommand); !isSend || sc.Command != "R" {
		t.Fatalf("action = %#v", a)
	}

	for _, ev := range []inputEvent{
		{Type: EV_KEY, Code: 19, Value: evValueRelease},
		{Type: EV_KEY, Code: 19, Value: evValueRepeat},
		{Type: EV_KEY, Code: 99, Value: evValuePress},
	} {
		if a, ok := translateInput(ev, b); ok {
			t.Errorf("event %+v translated to %#v", ev, a)
		}
	}
}

func TestTranslateInput_Rotary(t *testing.T) {
	b := InputBindings{Rotary: true}

	a, ok := translateInput(inputEvent{Type: EV_REL, Code: REL_DIAL, Value: -3}, b)
	if !ok {
		t.Fatalf("dial not translated")
	}
	if rt, isTurn := a.(RotaryTurn); !isTurn || rt.Steps != -3 {
		t.Fatalf("action = %#v", a)
	}

	if a, ok := translateInput(inputEvent{Type: EV_REL, Code: REL_WHEEL, Value: 1}, b); !ok || a.(RotaryTurn).Steps != 1 {
		t.Fatalf("wheel = %#v,%v", a, ok)
	}
	if _, ok := translateInput(inputEvent{Type: EV_REL, Code: REL_DIAL, Value: 0}, b); ok {
		t.Fatalf("zero movement translated")
	}
	if _, ok := translateInput(inputEvent{Type: EV_REL, Code: 0x00, Value: 1}, b); ok {
		t.Fatalf("REL_X translated")
	}
	if _, ok := translateInput(inputEvent{Type: EV_REL, Code: REL_DIAL, Value: 1}, InputBindings{}); ok {
		t.Fatalf("rotary translated while disabled")
	}
}

func TestRunInputPump(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	raw := make(chan inputEvent, 4)
	events := make(chan Event, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		runInputPump(ctx, raw, events, InputBindings{Keys: map[uint16]string{30: "A"}, Rotary: true}, testLogger())
	}()

	raw <- inputEvent{Type: EV_KEY, Code: 30, Value: evValueRelease} // ignored
	raw <- inputEvent{Type: EV_KEY, Code: 30, Value: evValuePress}

	select {
	case ev := <-events:
		if sc, ok := ev.(SendCommand); !ok || sc.Command != "A" {
			t.Fatalf("event = %#v", ev)
		}
	case <-time.After(time.Second):
		t.Fatalf("no action posted")
	}

	// With the queue full the pump drops instead of blocking.
	events <- Disconnect{}
	raw <- inputEvent{Type: EV_REL, Code: REL_DIAL, Value: 1}
	raw <- inputEvent{Type: EV_REL, Code: REL_DIAL, Value: 1}
	waitUntil(t, time.Second, func() bool { return len(raw) == 0 }, "pump blocked on a full queue")

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("pump did not stop")
	}
}
