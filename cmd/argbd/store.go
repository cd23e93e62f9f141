package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// File names inside the store directory.
const (
	presetsFileName = "fan_presets.json"
	macrosFileName  = "fan_macros.json"
	boardFileName   = "arduino_config.json"
	historyFileName = "command_history.json"
)

// Store persists presets, macros and the board config as JSON files in one
// directory. Every save rewrites the whole file.
type Store struct {
	dir string
}

// NewStore returns a store rooted at dir. The directory is created on the
// first save.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) path(name string) string { return filepath.Join(s.dir, name) }

// HistoryPath is where the history log lives.
func (s *Store) HistoryPath() string { return s.path(historyFileName) }

// LoadPresets returns the stored presets. A missing file yields an empty table.
func (s *Store) LoadPresets() (map[string]Preset, error) {
	out := map[string]Preset{}
	if err := readJSONFile(s.path(presetsFileName), &out); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return map[string]Preset{}, fmt.Errorf("load presets: %w", err)
	}
	if out == nil {
		out = map[string]Preset{}
	}
	return out, nil
}

// SavePresets writes the full preset table.
func (s *Store) SavePresets(p map[string]Preset) error {
	if err := writeJSONFile(s.path(presetsFileName), p); err != nil {
		return fmt.Errorf("save presets: %w", err)
	}
	return nil
}

// LoadMacros returns the stored macros. A missing file yields an empty table.
func (s *Store) LoadMacros() (map[string][]string, error) {
	out := map[string][]string{}
	if err := readJSONFile(s.path(macrosFileName), &out); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return map[string][]string{}, fmt.Errorf("load macros: %w", err)
	}
	if out == nil {
		out = map[string][]string{}
	}
	return out, nil
}

// SaveMacros writes the full macro table.
func (s *Store) SaveMacros(m map[string][]string) error {
	if err := writeJSONFile(s.path(macrosFileName), m); err != nil {
		return fmt.Errorf("save macros: %w", err)
	}
	return nil
}

// LoadBoard returns the stored board config, or the default when the file is
// missing or holds an invalid pair.
func (s *Store) LoadBoard() (BoardConfig, error) {
	b := defaultBoardConfig()
	if err := readJSONFile(s.path(boardFileName), &b); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return defaultBoardConfig(), nil
		}
		return defaultBoardConfig(), fmt.Errorf("load board config: %w", err)
	}
	if err := b.Validate(); err != nil {
		return defaultBoardConfig(), fmt.Errorf("load board config: %w", err)
	}
	return b, nil
}

// SaveBoard writes the board config.
func (s *Store) SaveBoard(b BoardConfig) error {
	if err := writeJSONFile(s.path(boardFileName), b); err != nil {
		return fmt.Errorf("save board config: %w", err)
	}
	return nil
}

func readJSONFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// writeJSONFile writes v as indented JSON via a temp file and rename, so a
// crash never leaves a truncated file behind.
func writeJSONFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename %s: %w", tmpName, err)
	}
	return nil
}
