package main

import (
	"fmt"
	"time"

	"github.com/lucasb-eyer/go-colorful"
)

// Channel is one named, bounded time series shown on the chart.
type Channel struct {
	Key     string
	Name    string
	Color   colorful.Color
	Show    bool
	History *Ring[float64]
}

// channelSpec is a row in the built-in channel table.
type channelSpec struct {
	Key   string
	Name  string
	Color string
	Show  bool
}

// channelTable lists the channels in display order. The keys match the
// telemetry record field names sent by the firmware.
var channelTable = []channelSpec{
	{"BR", "Brightness", "#0066cc", true},
	{"M", "Mode", "#ff6600", true},
	{"S", "Speed", "#00cc66", true},
	{"I", "Intensity", "#ff0066", true},
	{"SAT", "Saturation", "#cc00ff", true},
	{"H", "Hue Speed", "#ffaa00", true},
	{"R", "Red", "#ff3333", false},
	{"G", "Green", "#33ff33", false},
	{"BL", "Blue", "#3333ff", false},
	{"TS", "Tipsy Scale", "#ffd24d", false},
}

// isChannelKey reports whether key names a telemetry channel.
func isChannelKey(key string) bool {
	for _, spec := range channelTable {
		if spec.Key == key {
			return true
		}
	}
	return false
}

// ChannelOverride adjusts colour and visibility of a built-in channel.
type ChannelOverride struct {
	Color string `yaml:"color,omitempty"`
	Show  *bool  `yaml:"show,omitempty"`
}

// ChannelSet holds all channels plus the shared frame timestamp ring.
type ChannelSet struct {
	order      []string
	byKey      map[string]*Channel
	Timestamps *Ring[time.Time] // one per ingest event, not per channel
}

// newChannelSet builds the channel table with the given ring capacity.
// Overrides must already be validated; an unparsable colour falls back to the
// table default.
func newChannelSet(capacity int, overrides map[string]ChannelOverride) *ChannelSet {
	cs := &ChannelSet{
		byKey:      make(map[string]*Channel, len(channelTable)),
		Timestamps: newRing[time.Time](capacity),
	}
	for _, spec := range channelTable {
		col, _ := colorful.Hex(spec.Color)
		ch := &Channel{
			Key:     spec.Key,
			Name:    spec.Name,
			Color:   col,
			Show:    spec.Show,
			History: newRing[float64](capacity),
		}
		if o, ok := overrides[spec.Key]; ok {
			if o.Color != "" {
				if c, err := colorful.Hex(o.Color); err == nil {
					ch.Color = c
				}
			}
			if o.Show != nil {
				ch.Show = *o.Show
			}
		}
		cs.order = append(cs.order, spec.Key)
		cs.byKey[spec.Key] = ch
	}
	return cs
}

// Get returns the channel for key, or nil.
func (cs *ChannelSet) Get(key string) *Channel {
	return cs.byKey[key]
}

// Keys returns channel keys in display order.
func (cs *ChannelSet) Keys() []string {
	out := make([]string, len(cs.order))
	copy(out, cs.order)
	return out
}

// Append pushes v onto the channel's ring. Unknown keys are ignored.
func (cs *ChannelSet) Append(key string, v float64) bool {
	ch := cs.byKey[key]
	if ch == nil {
		return false
	}
	ch.History.Push(v)
	return true
}

// Clear empties every channel and the timestamp ring.
func (cs *ChannelSet) Clear() {
	for _, ch := range cs.byKey {
		ch.History.Clear()
	}
	cs.Timestamps.Clear()
}

// Clone deep-copies the set so the copy can leave the owning goroutine.
func (cs *ChannelSet) Clone() *ChannelSet {
	c := &ChannelSet{
		order:      append([]string(nil), cs.order...),
		byKey:      make(map[string]*Channel, len(cs.byKey)),
		Timestamps: cs.Timestamps.Clone(),
	}
	for k, ch := range cs.byKey {
		cp := *ch
		cp.History = ch.History.Clone()
		c.byKey[k] = &cp
	}
	return c
}

// ChannelStats summarises one channel for the stats panel.
type ChannelStats struct {
	Current float64 `json:"current"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Avg     float64 `json:"avg"`
	Samples int     `json:"samples"`
}

// summarize computes stats over values. ok is false for an empty slice.
func summarize(values []float64) (ChannelStats, bool) {
	if len(values) == 0 {
		return ChannelStats{}, false
	}
	st := ChannelStats{
		Current: values[len(values)-1],
		Min:     values[0],
		Max:     values[0],
		Samples: len(values),
	}
	var sum float64
	for _, v := range values {
		if v < st.Min {
			st.Min = v
		}
		if v > st.Max {
			st.Max = v
		}
		sum += v
	}
	st.Avg = sum / float64(len(values))
	return st, true
}

// validateChannelOverrides checks keys and colours from config.
func validateChannelOverrides(overrides map[string]ChannelOverride) error {
	for key, o := range overrides {
		if !isChannelKey(key) {
			return fmt.Errorf("channels.%s: unknown channel", key)
		}
		if o.Color != "" {
			if _, err := colorful.Hex(o.Color); err != nil {
				return fmt.Errorf("channels.%s.color: %w", key, err)
			}
		}
	}
	return nil
}
