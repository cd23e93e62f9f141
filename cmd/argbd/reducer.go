package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lucasb-eyer/go-colorful"
)

// This file implements the reducer-style architecture building blocks:
//
//   - Reduce(): computes next state + commands + broadcasts, without performing I/O
//   - StateBroadcast: externally visible state changes for stream clients
//
// The daemon loop is responsible for executing Commands and feeding observations back as Events.

// ==============================
// Broadcasts
// ==============================

// StateBroadcast is a reducer-emitted change that stream clients care about.
type StateBroadcast interface {
	broadcastMarker()
}

// BroadcastScalars carries the numeric controls and tracked effect/colour.
type BroadcastScalars struct {
	Scalars   Scalars
	Effect    string
	Color     string
	CustomRGB RGB
	BindTipsy bool
	At        time.Time
}

// BroadcastLink reports a connection state change.
type BroadcastLink struct {
	Connected bool
	Opening   bool
	Port      string
	Baud      int
	At        time.Time
}

// BroadcastRecording reports the macro recorder state.
type BroadcastRecording struct {
	Recording bool
	Commands  []string
	At        time.Time
}

// BroadcastStatusText carries one free-text line from the device.
type BroadcastStatusText struct {
	Text string
	At   time.Time
}

// BroadcastHistory carries one new history entry, or a clear.
type BroadcastHistory struct {
	Entry   string
	Cleared bool
	At      time.Time
}

// BroadcastSamples carries the recognised values of one telemetry record.
type BroadcastSamples struct {
	Values map[string]float64
	At     time.Time
}

// BroadcastChart is a full chart frame: visible channels with samples and
// brightness stats.
type BroadcastChart struct {
	Channels   []ChannelSnapshot
	Brightness *ChannelStats
	At         time.Time
}

func (BroadcastScalars) broadcastMarker()    {}
func (BroadcastLink) broadcastMarker()       {}
func (BroadcastRecording) broadcastMarker()  {}
func (BroadcastStatusText) broadcastMarker() {}
func (BroadcastHistory) broadcastMarker()    {}
func (BroadcastSamples) broadcastMarker()    {}
func (BroadcastChart) broadcastMarker()      {}

// ==============================
// Reducer input/output
// ==============================

// ReduceResult is the output of Reduce(): next state, Commands to execute,
// Broadcasts to publish, and the outcome reported back to an awaiting client.
type ReduceResult struct {
	State      *ControllerState
	Commands   []Command
	Broadcasts []StateBroadcast
	Err        error
}

// reduction accumulates the output of one Reduce call.
type reduction struct {
	s    *ControllerState
	at   time.Time
	cmds []Command
	bcs  []StateBroadcast
	errs []error
}

func (r *reduction) emit(c Command) { r.cmds = append(r.cmds, c) }

func (r *reduction) publish(b StateBroadcast) { r.bcs = append(r.bcs, b) }

func (r *reduction) fail(err error) { r.errs = append(r.errs, err) }

func (r *reduction) failf(format string, a ...any) { r.fail(fmt.Errorf(format, a...)) }

func (r *reduction) logf(format string, a ...any) { r.log(fmt.Sprintf(format, a...)) }

func (r *reduction) chartChanged() { r.s.ChartDirty = true }

func (r *reduction) connected() bool { return r.s.Link.Connected }

// linkMatches reports whether id names the current link. Zero is never a
// valid link ID.
func (r *reduction) linkMatches(id uint64) bool { return id != 0 && id == r.s.Link.ID }

// log records a history entry and publishes it.
func (r *reduction) log(msg string) {
	entry := formatHistoryEntry(r.at, msg)
	r.emit(CmdAppendHistory{Entry: entry})
	r.publish(BroadcastHistory{Entry: entry, At: r.at})
}

func (r *reduction) publishScalars() {
	r.publish(BroadcastScalars{
		Scalars:   r.s.Scalars,
		Effect:    r.s.Effect,
		Color:     r.s.Color,
		CustomRGB: r.s.CustomRGB,
		BindTipsy: r.s.BindTipsy,
		At:        r.at,
	})
}

func (r *reduction) publishLink() {
	r.publish(BroadcastLink{
		Connected: r.s.Link.Connected,
		Opening:   r.s.Link.Opening,
		Port:      r.s.Link.Port,
		Baud:      r.s.Link.Baud,
		At:        r.at,
	})
}

func (r *reduction) publishRecording() {
	r.publish(BroadcastRecording{
		Recording: r.s.Recording,
		Commands:  append([]string{}, r.s.Recorded...),
		At:        r.at,
	})
}

// ==============================
// Command channel
// ==============================

// send queues cmd for transmission on the current link.
//
// Order matters: the command is recorded as given (before normalisation),
// then normalised, then a brightness directive is mirrored into the BR
// channel, then the write is queued. logMsg replaces the default
// "→ Sent: ..." history line.
func (r *reduction) send(cmd, logMsg string) error {
	return r.sendWrite(cmd, logMsg, false)
}

// sendWrite is send with optional effect/colour tracking, applied once the
// write is confirmed.
func (r *reduction) sendWrite(cmd, logMsg string, track bool) error {
	if !r.connected() {
		return ErrNotConnected
	}

	if r.s.Recording {
		r.s.Recorded = append(r.s.Recorded, cmd)
		r.publishRecording()
	}

	payload := NormalizeCommand(cmd)

	if v, ok := parseBrightnessDirective(payload); ok && v >= 0 && v <= byteSettingMax {
		r.pushBrightness(v)
	}

	r.emit(CmdWrite{LinkID: r.s.Link.ID, Payload: payload, Log: logMsg, Track: track})
	return nil
}

// sendAll sends cmds in order and stops at the first failure.
func (r *reduction) sendAll(cmds []string) error {
	for _, c := range cmds {
		if err := r.send(c, ""); err != nil {
			return err
		}
	}
	return nil
}

// pushBrightness appends a locally produced BR sample.
func (r *reduction) pushBrightness(v int) {
	r.s.Channels.Append("BR", float64(v))
	r.s.Channels.Timestamps.Push(r.at)
	r.chartChanged()
}

// closeLink drops the current link and logs msg.
func (r *reduction) closeLink(msg string) {
	id := r.s.Link.ID
	port := r.s.Link.Port
	r.s.Link = LinkState{Port: port}
	if id != 0 {
		r.emit(CmdCloseLink{LinkID: id})
	}
	r.log(msg)
	r.publishLink()
}

// applyBoundTipsy sets the tipsy control from telemetry and transmits it.
func (r *reduction) applyBoundTipsy(v int) {
	v = clampInt(v, tipsyClampMin, tipsyClampMax)
	r.s.Scalars.Tipsy = v
	r.publishScalars()
	if err := r.send(FormatDirective(SettingTipsy, v), fmt.Sprintf("→ Sent (bound): Tipsy Sync %d", v)); err != nil {
		r.fail(err)
	}
}

// trackCommand updates the tracked effect or colour for a vocabulary code.
func (r *reduction) trackCommand(code string) {
	info, ok := lookupCommand(code)
	if !ok {
		return
	}
	switch info.Kind {
	case KindColor:
		r.s.Color = info.Name
	case KindEffect:
		r.s.Effect = info.Name
	default:
		return
	}
	r.publishScalars()
}

// settingLog is the history line for a transmitted directive.
func settingLog(kind SettingKind, v int) string {
	switch kind {
	case SettingBrightness:
		return fmt.Sprintf("→ Brightness set to %d", v)
	case SettingSpeed:
		return fmt.Sprintf("→ Speed set to %dms", v)
	case SettingIntensity:
		return fmt.Sprintf("→ Intensity set to %d", v)
	case SettingSaturation:
		return fmt.Sprintf("→ Saturation set to %d", v)
	case SettingHueSpeed:
		return fmt.Sprintf("→ Hue speed set to %d", v)
	case SettingTipsy:
		return fmt.Sprintf("→ Sent: Tipsy Sync %d", v)
	}
	return ""
}

// ==============================
// Reduce
// ==============================

// Reduce is the pure reducer:
//
// Rules:
// - Must not perform I/O
// - Must not block
// - Must not mutate anything outside the returned state
//
// The daemon loop must:
// - execute Commands
// - translate results into Events
// - feed those Events back into Reduce()
func Reduce(s *ControllerState, e Event, rotaryCfg RotaryConfig) ReduceResult {
	if s == nil {
		s = newControllerState(defaultHistorySize, nil, true, false, defaultBaud)
	}

	r := &reduction{s: s}

	if te, ok := e.(TimedEvent); ok {
		r.at = te.At
		e = te.Event
	}
	if r.at.IsZero() {
		r.at = time.Now()
	}

	switch ev := e.(type) {
	case Tick:
		if s.AutoRedraw && s.ChartDirty {
			s.ChartDirty = false
			r.publish(chartFrame(s, ev.Now))
		}

	case RequestStateSnapshot:
		r.emit(CmdPublishStateSnapshot{Reply: ev.Reply, Snapshot: s.Snapshot()})

	// ---------------- observations ----------------

	case LinkOpened:
		if !s.Link.Opening || !r.linkMatches(ev.LinkID) {
			// Superseded by a later connect/disconnect.
			r.emit(CmdCloseLink{LinkID: ev.LinkID})
			break
		}
		s.Link.Opening = false
		s.Link.Connected = true
		s.Link.Since = r.at
		r.logf("[CONNECTED] %s @ %d baud", ev.Port, ev.Baud)
		r.publishLink()

	case LinkOpenFailed:
		if r.linkMatches(ev.LinkID) && s.Link.Opening {
			s.Link = LinkState{Port: s.Link.Port}
			r.logf("✗ Connection failed: %v", ev.Err)
			r.publishLink()
		}
		r.fail(ev.Err)

	case Written:
		msg := ev.Log
		if msg == "" {
			msg = "→ Sent: " + strings.TrimSpace(ev.Payload)
		}
		r.log(msg)
		if ev.Track && r.linkMatches(ev.LinkID) {
			r.trackCommand(strings.TrimSuffix(ev.Payload, "\n"))
		}

	case WriteFailed:
		var te *TransmitError
		if errors.As(ev.Err, &te) && r.linkMatches(ev.LinkID) && s.Link.Connected {
			r.closeLink("✗ Connection Lost")
		}
		r.fail(ev.Err)

	case LinkLost:
		if r.linkMatches(ev.LinkID) && s.Link.Connected {
			r.closeLink("✗ Connection Lost")
		}

	case FrameReceived:
		if !r.linkMatches(ev.LinkID) || !s.Link.Connected {
			break
		}
		if !ev.At.IsZero() {
			r.at = ev.At
		}
		switch ev.Frame.Kind {
		case FrameRecord:
			applyRecord(r, ev.Frame.Values)
		default:
			r.log("← Received: " + ev.Frame.Text)
			r.publish(BroadcastStatusText{Text: ev.Frame.Text, At: r.at})
		}

	// ---------------- actions ----------------

	case Connect:
		port := strings.TrimSpace(ev.Port)
		if port == "" {
			r.fail(ErrNoPort)
			break
		}
		baud := ev.Baud
		if baud == 0 {
			baud = s.DefaultBaud
		}
		if !validBaud(baud) {
			r.fail(ErrInvalidBaud)
			break
		}
		if s.Link.Connected || s.Link.Opening {
			r.closeLink("[DISCONNECTED]")
		}
		s.lastLinkID++
		s.Link = LinkState{Opening: true, ID: s.lastLinkID, Port: port, Baud: baud}
		r.emit(CmdOpenLink{LinkID: s.Link.ID, Port: port, Baud: baud})
		r.publishLink()

	case Disconnect:
		if s.Link.Connected || s.Link.Opening {
			r.closeLink("[DISCONNECTED]")
		}

	case SendCommand:
		if ev.Command == "" {
			r.fail(ErrEmptyCommand)
			break
		}
		if err := r.sendWrite(ev.Command, "", len(ev.Command) == 1); err != nil {
			r.fail(err)
		}

	case SetSetting:
		kind, err := ParseSettingKind(ev.Kind)
		if err != nil {
			r.fail(err)
			break
		}
		v := kind.Clamp(ev.Value)
		s.Scalars.set(kind, v)
		r.publishScalars()
		if ev.NoSend {
			if kind == SettingBrightness {
				r.pushBrightness(v)
			}
			break
		}
		if err := r.send(FormatDirective(kind, v), settingLog(kind, v)); err != nil {
			// The control still moved locally.
			if kind == SettingBrightness {
				r.pushBrightness(v)
			}
			r.fail(err)
		}

	case SetCustomColor:
		rgb := RGB{R: ev.R, G: ev.G, B: ev.B}
		if ev.Hex != "" {
			c, err := colorful.Hex(ev.Hex)
			if err != nil {
				r.failf("%w: colour %q: %v", ErrInvalidSetting, ev.Hex, err)
				break
			}
			cr, cg, cb := c.RGB255()
			rgb = RGB{R: int(cr), G: int(cg), B: int(cb)}
		}
		rgb = RGB{R: clampInt(rgb.R, 0, 255), G: clampInt(rgb.G, 0, 255), B: clampInt(rgb.B, 0, 255)}
		s.CustomRGB = rgb
		r.publishScalars()
		if err := r.send(FormatRGB(rgb.R, rgb.G, rgb.B), fmt.Sprintf("→ Sent Custom RGB: (%d,%d,%d)", rgb.R, rgb.G, rgb.B)); err != nil {
			r.fail(err)
		}

	case Recording:
		reduceRecording(r, ev)

	case SaveMacro:
		name := strings.TrimSpace(ev.Name)
		if len(s.Recorded) == 0 {
			r.fail(ErrEmptyRecording)
			break
		}
		if name == "" {
			r.fail(ErrInvalidName)
			break
		}
		s.Macros[name] = append([]string(nil), s.Recorded...)
		r.emit(CmdSaveMacros{Macros: copyMacros(s.Macros)})
		r.logf("[MACRO SAVED] %s with %d commands", name, len(s.Recorded))

	case PlayMacro:
		name := strings.TrimSpace(ev.Name)
		if name == "" {
			r.fail(ErrInvalidName)
			break
		}
		cmds, ok := s.Macros[name]
		if !ok {
			r.failf("%w: %q", ErrUnknownMacro, name)
			break
		}
		if !r.connected() {
			r.fail(ErrNotConnected)
			break
		}
		r.logf("[MACRO PLAYING] %s", name)
		if err := r.sendAll(cmds); err != nil {
			r.fail(err)
		}

	case DeleteMacro:
		name := strings.TrimSpace(ev.Name)
		if _, ok := s.Macros[name]; !ok {
			r.failf("%w: %q", ErrUnknownMacro, name)
			break
		}
		delete(s.Macros, name)
		r.emit(CmdSaveMacros{Macros: copyMacros(s.Macros)})
		r.logf("[MACRO DELETED] %s", name)

	case SavePreset:
		name := strings.TrimSpace(ev.Name)
		if name == "" {
			r.fail(ErrInvalidName)
			break
		}
		s.Presets[name] = Preset{
			Brightness:  s.Scalars.Brightness,
			Speed:       s.Scalars.SpeedMS,
			Intensity:   s.Scalars.Intensity,
			Saturation:  s.Scalars.Saturation,
			HueRotation: s.Scalars.HueSpeed,
			Effect:      s.Effect,
			Color:       s.Color,
		}
		r.emit(CmdSavePresets{Presets: copyPresets(s.Presets)})
		r.logf("[PRESET SAVED] %s", name)

	case LoadPreset:
		reduceLoadPreset(r, ev)

	case DeletePreset:
		name := strings.TrimSpace(ev.Name)
		if _, ok := s.Presets[name]; !ok {
			r.failf("%w: %q", ErrUnknownPreset, name)
			break
		}
		delete(s.Presets, name)
		r.emit(CmdSavePresets{Presets: copyPresets(s.Presets)})
		r.logf("[PRESET DELETED] %s", name)

	case PlayScene:
		scene, ok := lookupScene(ev.Name)
		if !ok {
			r.failf("%w: %q", ErrUnknownScene, ev.Name)
			break
		}
		if !r.connected() {
			r.fail(ErrNotConnected)
			break
		}
		if err := r.sendAll(scene.Commands); err != nil {
			r.fail(err)
			break
		}
		r.logf("[FAVORITE] %s", scene.Name)

	case SetChannel:
		ch := s.Channels.Get(ev.Key)
		if ch == nil {
			r.failf("%w: %q", ErrUnknownChannel, ev.Key)
			break
		}
		if ev.Color != "" {
			c, err := colorful.Hex(ev.Color)
			if err != nil {
				r.failf("%w: colour %q: %v", ErrInvalidSetting, ev.Color, err)
				break
			}
			ch.Color = c
		}
		if ev.Show != nil && *ev.Show != ch.Show {
			ch.Show = *ev.Show
			status := "DISABLED"
			if ch.Show {
				status = "ENABLED"
			}
			r.logf("[CHANNEL %s %s]", ch.Name, status)
		}
		r.chartChanged()

	case ClearChart:
		s.Channels.Clear()
		r.chartChanged()
		r.log("[OSCILLOSCOPE CLEARED]")

	case SetTipsyBind:
		s.BindTipsy = ev.Enabled
		if !ev.Enabled {
			r.log("[TIPSY BIND DISABLED]")
			r.publishScalars()
			break
		}
		r.log("[TIPSY BIND ENABLED]")
		last, ok := s.Channels.Get("S").History.Last()
		switch {
		case ok && r.connected():
			r.applyBoundTipsy(tipsyFromSpeed(last))
		case ok:
			// Nothing to send to; the next S frame transmits.
			s.Scalars.Tipsy = clampInt(tipsyFromSpeed(last), tipsyClampMin, tipsyClampMax)
			r.publishScalars()
		default:
			r.publishScalars()
		}

	case SetAutoRedraw:
		s.AutoRedraw = ev.Enabled
		if ev.Enabled {
			r.chartChanged()
			r.log("[AUTO-UPDATE ENABLED]")
		} else {
			r.log("[AUTO-UPDATE DISABLED]")
		}

	case ClearHistory:
		r.emit(CmdClearHistory{})
		r.publish(BroadcastHistory{Cleared: true, At: r.at})

	case SetBoard:
		b := BoardConfig{LEDPin: ev.LEDPin, NumLEDs: ev.NumLEDs}
		if err := b.Validate(); err != nil {
			r.fail(err)
			break
		}
		s.Board = b
		r.emit(CmdSaveBoard{Board: b})
		r.logf("[CONFIG SAVED] Pin %d, LEDs %d", b.LEDPin, b.NumLEDs)

	case RotaryTurn:
		reduceRotaryTurn(r, ev, rotaryCfg)

	default:
		// Unknown event type: no-op.
	}

	return ReduceResult{
		State:      s,
		Commands:   r.cmds,
		Broadcasts: r.bcs,
		Err:        errors.Join(r.errs...),
	}
}

// applyRecord fans a telemetry record out into the channel rings and the
// scalar controls. One timestamp is appended per record.
func applyRecord(r *reduction, values map[string]float64) {
	s := r.s
	samples := make(map[string]float64, len(values))
	scalarsChanged := false

	for _, key := range s.Channels.Keys() {
		v, ok := values[key]
		if !ok {
			continue
		}
		s.Channels.Append(key, v)
		samples[key] = v

		var kind SettingKind
		switch key {
		case "BR":
			kind = SettingBrightness
		case "S":
			kind = SettingSpeed
		case "I":
			kind = SettingIntensity
		case "SAT":
			kind = SettingSaturation
		case "H":
			kind = SettingHueSpeed
		default:
			continue
		}
		if s.Scalars.get(kind) != int(v) {
			s.Scalars.set(kind, int(v))
			scalarsChanged = true
		}
	}
	s.Channels.Timestamps.Push(r.at)
	r.chartChanged()

	r.publish(BroadcastSamples{Values: samples, At: r.at})
	if scalarsChanged {
		r.publishScalars()
	}

	if v, ok := values["S"]; ok && s.BindTipsy {
		r.applyBoundTipsy(tipsyFromSpeed(v))
	}
}

func reduceRecording(r *reduction, ev Recording) {
	s := r.s
	op := strings.ToLower(strings.TrimSpace(ev.Op))
	if op == "toggle" {
		op = "start"
		if s.Recording {
			op = "stop"
		}
	}
	switch op {
	case "start":
		s.Recording = true
		s.Recorded = nil
		r.log("[MACRO RECORD STARTED]")
	case "stop":
		s.Recording = false
		r.log("[MACRO RECORD STOPPED]")
	case "clear":
		s.Recorded = nil
		r.log("[RECORDING CLEARED]")
	default:
		r.failf("%w: %q", ErrUnknownOp, ev.Op)
		return
	}
	r.publishRecording()
}

func reduceLoadPreset(r *reduction, ev LoadPreset) {
	s := r.s
	name := strings.TrimSpace(ev.Name)
	p, ok := s.Presets[name]
	if !ok {
		r.failf("%w: %q", ErrUnknownPreset, name)
		return
	}

	values := []struct {
		kind SettingKind
		v    int
	}{
		{SettingBrightness, p.Brightness},
		{SettingSpeed, p.Speed},
		{SettingIntensity, p.Intensity},
		{SettingSaturation, p.Saturation},
		{SettingHueSpeed, p.HueRotation},
	}
	for _, kv := range values {
		s.Scalars.set(kv.kind, kv.kind.Clamp(kv.v))
	}
	r.publishScalars()
	r.logf("[PRESET LOADED] %s", name)

	if !ev.Send {
		r.pushBrightness(s.Scalars.Brightness)
		return
	}
	// The ~B directive mirrors itself into BR through send.
	for i, kv := range values {
		v := s.Scalars.get(kv.kind)
		if err := r.send(FormatDirective(kv.kind, v), settingLog(kv.kind, v)); err != nil {
			if i == 0 {
				r.pushBrightness(s.Scalars.Brightness)
			}
			r.fail(err)
			return
		}
	}
}

// chartFrame builds a chart broadcast from the visible channels.
func chartFrame(s *ControllerState, now time.Time) BroadcastChart {
	frame := BroadcastChart{At: now}
	for _, key := range s.Channels.Keys() {
		ch := s.Channels.Get(key)
		if !ch.Show || ch.History.Len() == 0 {
			continue
		}
		frame.Channels = append(frame.Channels, ChannelSnapshot{
			Key:    ch.Key,
			Name:   ch.Name,
			Color:  ch.Color.Hex(),
			Show:   true,
			Values: ch.History.Values(),
		})
	}
	if st, ok := summarize(s.Channels.Get("BR").History.Values()); ok {
		frame.Brightness = &st
	}
	return frame
}
