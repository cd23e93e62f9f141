package main

import "log/slog"

// effectsEnv holds the external resources commands act on. Only the daemon
// loop goroutine touches it.
type effectsEnv struct {
	open    Opener
	store   *Store
	history *History

	// ingest receives events from the per-link reader goroutine.
	ingest chan<- Event

	// link is the open connection, if any. broken is set after a transmit
	// failure so queued writes behind it fail fast instead of hitting the port.
	link   *Link
	broken bool
}

// closeLink closes the current link if its ID matches (0 matches any).
func (env *effectsEnv) closeLink(id uint64, logger *slog.Logger) {
	if env.link == nil || (id != 0 && env.link.ID != id) {
		return
	}
	if err := env.link.Close(); err != nil {
		logger.Debug("serial close failed", "port", env.link.Name, "error", err)
	}
	logger.Info("serial link closed", "link", env.link.ID, "port", env.link.Name)
	env.link = nil
	env.broken = false
}

// runEffect executes a single reducer-emitted Command (side effect) and
// emits an observation Event via onEvent.
//
// Design rules:
// - This function is allowed to perform I/O.
// - It must never call Reduce() directly; it only emits Events to be reduced by the daemon loop.
// - The daemon loop is responsible for sequencing: Reduce -> Commands -> runEffect -> Events -> Reduce.
func runEffect(
	env *effectsEnv,
	cmd Command,
	logger *slog.Logger,
	onEvent func(Event),
) {
	if onEvent == nil {
		// No place to report observations/errors; nothing sensible to do.
		return
	}

	switch c := cmd.(type) {
	case CmdOpenLink:
		env.closeLink(0, logger)

		open := env.open
		if open == nil {
			open = openSerialPort
		}
		conn, err := open(c.Port, c.Baud)
		if err != nil {
			logger.Error("serial open failed", "port", c.Port, "baud", c.Baud, "error", err)
			onEvent(LinkOpenFailed{LinkID: c.LinkID, Err: &OpenError{Port: c.Port, Err: err}})
			return
		}

		link := newLink(c.LinkID, c.Port, c.Baud, conn)
		env.link = link
		env.broken = false
		if env.ingest != nil {
			go readSerialLines(link, env.ingest)
		}
		logger.Info("serial link opened", "link", c.LinkID, "port", c.Port, "baud", c.Baud)
		onEvent(LinkOpened{LinkID: c.LinkID, Port: c.Port, Baud: c.Baud})

	case CmdCloseLink:
		env.closeLink(c.LinkID, logger)

	case CmdWrite:
		if env.link == nil || env.link.ID != c.LinkID || env.broken {
			onEvent(WriteFailed{LinkID: c.LinkID, Payload: c.Payload, Err: ErrNotConnected})
			return
		}
		if err := env.link.Write(c.Payload); err != nil {
			logger.Error("serial write failed", "port", env.link.Name, "payload", c.Payload, "error", err)
			env.broken = true
			onEvent(WriteFailed{LinkID: c.LinkID, Payload: c.Payload, Err: err})
			return
		}
		logger.Debug("serial write", "payload", c.Payload)
		onEvent(Written{LinkID: c.LinkID, Payload: c.Payload, Log: c.Log, Track: c.Track})

	case CmdAppendHistory:
		if env.history == nil {
			return
		}
		if err := env.history.Append(c.Entry); err != nil {
			logger.Warn("history append failed", "error", err)
		}

	case CmdClearHistory:
		if env.history == nil {
			return
		}
		if err := env.history.Clear(); err != nil {
			logger.Warn("history clear failed", "error", err)
		}

	case CmdSaveMacros:
		if env.store == nil {
			return
		}
		if err := env.store.SaveMacros(c.Macros); err != nil {
			logger.Warn("persist failed", "error", err)
		}

	case CmdSavePresets:
		if env.store == nil {
			return
		}
		if err := env.store.SavePresets(c.Presets); err != nil {
			logger.Warn("persist failed", "error", err)
		}

	case CmdSaveBoard:
		if env.store == nil {
			return
		}
		if err := env.store.SaveBoard(c.Board); err != nil {
			logger.Warn("persist failed", "error", err)
		}

	case CmdPublishStateSnapshot:
		// Deliver reducer-produced snapshot to the requester.
		// This keeps the reducer pure by moving the channel send into the effects layer.
		if c.Reply == nil {
			logger.Warn("state snapshot requested with nil reply channel")
			return
		}

		// Never block the effects worker indefinitely.
		select {
		case c.Reply <- c.Snapshot:
			// delivered
		default:
			logger.Warn("state snapshot reply channel not ready; dropping snapshot")
		}

	default:
		logger.Warn("unknown command type", "command", cmd.String())
	}
}
