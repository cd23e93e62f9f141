package main

import "time"

// RotaryConfig maps encoder detents to commands.
type RotaryConfig struct {
	UpCommand   string
	DownCommand string

	// Velocity detection: when VelocityThreshold or more same-direction
	// steps land within VelocityWindowMS, each detent sends
	// VelocityMultiplier commands instead of one.
	VelocityWindowMS   int
	VelocityThreshold  int
	VelocityMultiplier int
}

func defaultRotaryConfig() RotaryConfig {
	return RotaryConfig{
		UpCommand:          "+",
		DownCommand:        "-",
		VelocityWindowMS:   defaultRotaryVelocityWindowMS,
		VelocityThreshold:  defaultRotaryVelocityThreshold,
		VelocityMultiplier: defaultRotaryVelocityMultiplier,
	}
}

// addRotarySteps records n steps in direction dir at now and returns the
// updated state plus the count of same-direction steps within the window.
//
// Steps older than the window are pruned. The input state is not modified.
func addRotarySteps(st RotaryReducerState, dir, n int, now time.Time, windowMS int) (RotaryReducerState, int) {
	cutoff := now.Add(-time.Duration(windowMS) * time.Millisecond)

	kept := make([]RotaryReducerStep, 0, len(st.RecentSteps)+n)
	for _, s := range st.RecentSteps {
		if s.At.After(cutoff) {
			kept = append(kept, s)
		}
	}
	for i := 0; i < n; i++ {
		kept = append(kept, RotaryReducerStep{At: now, Direction: dir})
	}

	sameDir := 0
	for _, s := range kept {
		if s.Direction == dir {
			sameDir++
		}
	}
	return RotaryReducerState{RecentSteps: kept}, sameDir
}

// reduceRotaryTurn converts encoder detents into up/down commands.
func reduceRotaryTurn(r *reduction, ev RotaryTurn, cfg RotaryConfig) {
	if ev.Steps == 0 {
		return
	}
	dir, n := 1, ev.Steps
	cmd := cfg.UpCommand
	if ev.Steps < 0 {
		dir, n = -1, -ev.Steps
		cmd = cfg.DownCommand
	}
	if cmd == "" {
		return
	}

	var count int
	r.s.Rotary, count = addRotarySteps(r.s.Rotary, dir, n, r.at, cfg.VelocityWindowMS)

	perStep := 1
	if cfg.VelocityThreshold > 0 && count >= cfg.VelocityThreshold && cfg.VelocityMultiplier > 1 {
		perStep = cfg.VelocityMultiplier
	}

	for i := 0; i < n*perStep; i++ {
		if err := r.send(cmd, ""); err != nil {
			r.fail(err)
			return
		}
	}
}
