package main

import (
	"errors"
	"testing"
	"time"
)

// TestAddRotarySteps_Basic tests basic step tracking
func TestAddRotarySteps_Basic(t *testing.T) {
	var st RotaryReducerState
	now := time.Now()

	st, count := addRotarySteps(st, 1, 1, now, 200)
	if count != 1 {
		t.Errorf("expected count=1, got %d", count)
	}

	st, count = addRotarySteps(st, 1, 2, now.Add(10*time.Millisecond), 200)
	if count != 3 {
		t.Errorf("expected count=3, got %d", count)
	}
	if len(st.RecentSteps) != 3 {
		t.Errorf("expected 3 tracked steps, got %d", len(st.RecentSteps))
	}
}

// TestAddRotarySteps_DirectionChange tests that opposite steps
// don't count toward the velocity threshold
func TestAddRotarySteps_DirectionChange(t *testing.T) {
	var st RotaryReducerState
	now := time.Now()

	st, _ = addRotarySteps(st, 1, 3, now, 200)

	st, count := addRotarySteps(st, -1, 1, now, 200)
	if count != 1 {
		t.Errorf("expected count=1 for new direction, got %d", count)
	}

	_, count = addRotarySteps(st, 1, 1, now, 200)
	if count != 4 {
		t.Errorf("expected count=4 (3 old + 1 new up steps still in window), got %d", count)
	}
}

// TestAddRotarySteps_WindowExpiry tests that old steps are pruned
func TestAddRotarySteps_WindowExpiry(t *testing.T) {
	var st RotaryReducerState
	now := time.Now()

	st, _ = addRotarySteps(st, 1, 3, now, 50)

	st, count := addRotarySteps(st, 1, 1, now.Add(60*time.Millisecond), 50)
	if count != 1 {
		t.Errorf("expected count=1 after window expiry, got %d", count)
	}
	if len(st.RecentSteps) != 1 {
		t.Errorf("expected expired steps to be pruned, got %d", len(st.RecentSteps))
	}
}

func TestAddRotarySteps_DoesNotModifyInput(t *testing.T) {
	st := RotaryReducerState{RecentSteps: []RotaryReducerStep{{At: time.Now(), Direction: 1}}}
	_, _ = addRotarySteps(st, 1, 2, time.Now(), 200)
	if len(st.RecentSteps) != 1 {
		t.Fatalf("input state modified: %d steps", len(st.RecentSteps))
	}
}

func rotaryAt(s *ControllerState, steps int, at time.Time, cfg RotaryConfig) ReduceResult {
	return Reduce(s, TimedEvent{Event: RotaryTurn{Steps: steps}, At: at}, cfg)
}

func TestReducer_RotaryTurn_SendsPerDetent(t *testing.T) {
	s := connectedState(t)
	cfg := RotaryConfig{UpCommand: "+", DownCommand: "-"}

	rr := rotaryAt(s, 2, testNow, cfg)
	if got := writes(rr.Commands); len(got) != 2 || got[0] != "+\n" || got[1] != "+\n" {
		t.Fatalf("writes = %q", got)
	}

	rr = rotaryAt(rr.State, -1, testNow, cfg)
	if got := writes(rr.Commands); len(got) != 1 || got[0] != "-\n" {
		t.Fatalf("writes = %q", got)
	}
}

func TestReducer_RotaryTurn_VelocityMultiplier(t *testing.T) {
	s := connectedState(t)
	cfg := defaultRotaryConfig()

	// Two slow steps: below threshold.
	rr := rotaryAt(s, 2, testNow, cfg)
	if n := len(writes(rr.Commands)); n != 2 {
		t.Fatalf("expected 2 writes below threshold, got %d", n)
	}

	// Third step within the window reaches the threshold.
	rr = rotaryAt(rr.State, 1, testNow.Add(50*time.Millisecond), cfg)
	if n := len(writes(rr.Commands)); n != cfg.VelocityMultiplier {
		t.Fatalf("expected %d writes in velocity mode, got %d", cfg.VelocityMultiplier, n)
	}

	// After the window passes, back to one command per detent.
	rr = rotaryAt(rr.State, 1, testNow.Add(time.Second), cfg)
	if n := len(writes(rr.Commands)); n != 1 {
		t.Fatalf("expected 1 write after window, got %d", n)
	}
}

func TestReducer_RotaryTurn_NoOps(t *testing.T) {
	s := connectedState(t)

	rr := rotaryAt(s, 0, testNow, defaultRotaryConfig())
	if len(rr.Commands) != 0 || rr.Err != nil {
		t.Fatalf("zero steps produced output: %v %v", rr.Commands, rr.Err)
	}

	rr = rotaryAt(rr.State, 3, testNow, RotaryConfig{DownCommand: "-"})
	if len(rr.Commands) != 0 || rr.Err != nil {
		t.Fatalf("unbound direction produced output: %v %v", rr.Commands, rr.Err)
	}
}

func TestReducer_RotaryTurn_NotConnected(t *testing.T) {
	rr := rotaryAt(newTestState(), 3, testNow, defaultRotaryConfig())
	if !errors.Is(rr.Err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", rr.Err)
	}
	if len(rr.Commands) != 0 {
		t.Fatalf("expected no commands, got %v", rr.Commands)
	}
}
