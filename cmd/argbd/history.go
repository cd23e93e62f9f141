package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"
)

const historyTimeLayout = "15:04:05"

// formatHistoryEntry stamps msg with the local wall-clock time.
func formatHistoryEntry(at time.Time, msg string) string {
	return fmt.Sprintf("[%s] %s", at.Format(historyTimeLayout), msg)
}

// historyFile is the on-disk shape of the history log.
type historyFile struct {
	History []string `json:"history"`
}

// History is the command/event log. It keeps the newest historyMaxEntries
// entries in memory and mirrors them to a JSON file after every change.
//
// The daemon loop appends; HTTP handlers read. Both go through mu.
type History struct {
	mu      sync.Mutex
	path    string
	entries []string
	max     int
}

// NewHistory builds an empty log backed by path. An empty path keeps the log
// in memory only.
func NewHistory(path string, max int) *History {
	if max <= 0 {
		max = historyMaxEntries
	}
	return &History{path: path, max: max}
}

// Load reads the log file. A missing file is not an error.
func (h *History) Load() error {
	if h.path == "" {
		return nil
	}
	var f historyFile
	if err := readJSONFile(h.path, &f); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load history: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = f.History
	if n := len(h.entries); n > h.max {
		h.entries = append([]string(nil), h.entries[n-h.max:]...)
	}
	return nil
}

// Append adds one entry and persists the log.
func (h *History) Append(entry string) error {
	h.mu.Lock()
	h.entries = append(h.entries, entry)
	if n := len(h.entries); n > h.max {
		h.entries = append(h.entries[:0:0], h.entries[n-h.max:]...)
	}
	snapshot := append([]string(nil), h.entries...)
	h.mu.Unlock()

	return h.save(snapshot)
}

// Clear empties the log and removes its file.
func (h *History) Clear() error {
	h.mu.Lock()
	h.entries = nil
	h.mu.Unlock()

	if h.path == "" {
		return nil
	}
	if err := os.Remove(h.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("clear history: %w", err)
	}
	return nil
}

// Entries returns a copy of the whole log, oldest first.
func (h *History) Entries() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string{}, h.entries...)
}

// Tail returns a copy of the newest n entries, oldest first.
func (h *History) Tail(n int) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if n <= 0 || n > len(h.entries) {
		n = len(h.entries)
	}
	return append([]string{}, h.entries[len(h.entries)-n:]...)
}

func (h *History) save(entries []string) error {
	if h.path == "" {
		return nil
	}
	if err := writeJSONFile(h.path, historyFile{History: entries}); err != nil {
		return fmt.Errorf("save history: %w", err)
	}
	return nil
}
