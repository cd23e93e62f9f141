package main

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// ============================================================================
// Central Daemon Loop - Reducer-driven "Daemon Brain"
// ============================================================================
//
// Design rules enforced here:
//   - The reducer performs no I/O and computes: next state + commands + broadcasts.
//   - The daemon loop is the only place that executes side effects (serial
//     writes, link open/close, persistence).
//   - Effect results are turned into Events and fed back into the reducer.
//   - The ingest goroutine never touches state; it posts Events like any
//     other client.
//
// ============================================================================

// daemonConfig groups the loop's tunables.
type daemonConfig struct {
	Rotary         RotaryConfig
	RedrawInterval time.Duration
}

// runDaemon is the main daemon loop that:
//   - Receives Events from multiple sources (IPC, HTTP, WebSocket, input, ingest)
//   - Emits Tick events on the chart redraw cadence
//   - Reduces events into (state, commands, broadcasts)
//   - Executes commands and feeds observations back into the reducer
//   - Forwards broadcasts to the stream without blocking
//
// Shutdown semantics:
//   - Exits when ctx is canceled
//   - Exits cleanly when the events channel is closed
//   - Closes the serial link on exit
func runDaemon(
	ctx context.Context,
	events <-chan Event,
	env *effectsEnv,
	cfg daemonConfig,
	state *ControllerState,
	broadcasts chan<- StateBroadcast,
	logger *slog.Logger,
) {
	// Guard: reducer-driven daemon expects a state container.
	if state == nil {
		logger.Error("daemon state is nil")
		return
	}
	if env == nil {
		env = &effectsEnv{}
	}
	defer env.closeLink(0, logger)

	interval := cfg.RedrawInterval
	if interval <= 0 {
		interval = defaultRedrawIntervalMS * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Explicit queues:
	// - eventQueue holds events awaiting reduction
	// - cmdQueue holds commands awaiting execution
	var eventQueue []Event
	var cmdQueue []Command

	// errs collects reducer errors for the round in progress so an
	// AwaitedEvent can be answered with everything its action caused.
	var errs []error

	enqueueEvent := func(ev Event) {
		eventQueue = append(eventQueue, ev)
	}

	forward := func(bcs []StateBroadcast) {
		if broadcasts == nil {
			return
		}
		for _, b := range bcs {
			select {
			case broadcasts <- b:
			default:
				logger.Warn("broadcast queue full, dropping", "type", broadcastType(b))
			}
		}
	}

	// Reduce all queued events, enqueuing any resulting commands.
	flushEvents := func() {
		for len(eventQueue) > 0 {
			ev := eventQueue[0]
			eventQueue = eventQueue[1:]

			rr := Reduce(state, ev, cfg.Rotary)
			if rr.State != nil {
				state = rr.State
			}
			if rr.Err != nil {
				errs = append(errs, rr.Err)
			}
			cmdQueue = append(cmdQueue, rr.Commands...)
			forward(rr.Broadcasts)
		}
	}

	// Execute all queued commands, enqueuing observation events.
	flushCommands := func() {
		for len(cmdQueue) > 0 {
			cmd := cmdQueue[0]
			cmdQueue = cmdQueue[1:]

			logger.Debug("effect", "command", cmd.String())
			runEffect(env, cmd, logger, enqueueEvent)

			// Observations should be reduced promptly to keep state coherent and
			// allow the reducer to emit follow-up commands (if any).
			flushEvents()
		}
	}

	// process runs one full round and returns the joined reducer errors.
	process := func(ev Event) error {
		errs = errs[:0]
		enqueueEvent(ev)
		flushEvents()
		flushCommands()
		return errors.Join(errs...)
	}

	logger.Info("daemon started", "redraw_interval", interval)

	// Main loop
	for {
		select {
		case <-ctx.Done():
			logger.Info("daemon stopping (context canceled)")
			return

		case ev, ok := <-events:
			if !ok {
				logger.Info("daemon stopping (events channel closed)")
				return
			}
			now := time.Now()

			if aw, isAwaited := ev.(AwaitedEvent); isAwaited {
				err := process(TimedEvent{Event: aw.Event, At: now})
				if aw.Reply != nil {
					// Reply is buffered by the sender; never block here.
					select {
					case aw.Reply <- err:
					default:
						logger.Warn("awaited event reply dropped")
					}
				}
				continue
			}

			if err := process(TimedEvent{Event: ev, At: now}); err != nil {
				logger.Debug("event failed", "error", err)
			}

		case now := <-ticker.C:
			_ = process(Tick{Now: now})
		}
	}
}

// broadcastType names a broadcast for logs.
func broadcastType(b StateBroadcast) string {
	if ev, ok := convertBroadcast(b); ok {
		return ev.Type
	}
	return "unknown"
}
