// Package settings reads and writes the JSON settings document shared
// with the tray UI and the CLI.
//
// The mode and paused fields are stored wrapped, value plus a
// human-readable description, so the file stays self-explanatory when
// edited by hand. Load also accepts the bare values. trigger_token and
// last_url are plain strings.
package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"go.klb.dev/snaplens/internal/policy"
)

const (
	modeDescription   = "0=Pause, 1=Tray Only, 2=Always On"
	pausedDescription = "true suspends detection until resumed"
)

// File is the decoded settings document.
type File struct {
	Mode         int // numeric policy.Mode
	Paused       bool
	TriggerToken string
	LastURL      string
}

// Default returns the settings a fresh install runs with.
func Default() File {
	return File{Mode: int(policy.ModeAlwaysOn)}
}

type wrapped[T any] struct {
	Value       T      `json:"value"`
	Description string `json:"description,omitempty"`
}

type diskFile struct {
	Mode         json.RawMessage `json:"mode,omitempty"`
	Paused       json.RawMessage `json:"paused,omitempty"`
	TriggerToken string          `json:"trigger_token,omitempty"`
	LastURL      string          `json:"last_url,omitempty"`
}

// Load reads the settings at path. A missing file yields Default and an
// error satisfying errors.Is(err, fs.ErrNotExist). A field of an unknown
// shape falls back to its default instead of failing the whole file.
func Load(path string) (File, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Default(), fmt.Errorf("reading settings: %w", err)
	}
	var doc diskFile
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Default(), fmt.Errorf("parsing settings: %w", err)
	}
	def := Default()
	return File{
		Mode:         unwrapInt(doc.Mode, def.Mode),
		Paused:       unwrapBool(doc.Paused, def.Paused),
		TriggerToken: doc.TriggerToken,
		LastURL:      doc.LastURL,
	}, nil
}

// Save writes f to path, creating parent directories as needed. The file
// is written to a sibling temp file and renamed into place so watchers
// never observe a half-written document.
func Save(path string, f File) error {
	doc := struct {
		Mode         wrapped[int]  `json:"mode"`
		Paused       wrapped[bool] `json:"paused"`
		TriggerToken string        `json:"trigger_token,omitempty"`
		LastURL      string        `json:"last_url,omitempty"`
	}{
		Mode:         wrapped[int]{Value: f.Mode, Description: modeDescription},
		Paused:       wrapped[bool]{Value: f.Paused, Description: pausedDescription},
		TriggerToken: f.TriggerToken,
		LastURL:      f.LastURL,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}
	data = append(data, '\n')
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating settings dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing settings: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("writing settings: %w", err)
	}
	return nil
}

// Update applies mutate to the settings at path and writes the result
// back. A missing file starts from Default.
func Update(path string, mutate func(*File)) (File, error) {
	f, err := Load(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return File{}, err
	}
	mutate(&f)
	if err := Save(path, f); err != nil {
		return File{}, err
	}
	return f, nil
}

func unwrapInt(raw json.RawMessage, def int) int {
	if len(raw) == 0 || string(raw) == "null" {
		return def
	}
	var w wrapped[int]
	if err := json.Unmarshal(raw, &w); err == nil {
		return w.Value
	}
	var v int
	if err := json.Unmarshal(raw, &v); err == nil {
		return v
	}
	return def
}

func unwrapBool(raw json.RawMessage, def bool) bool {
	if len(raw) == 0 || string(raw) == "null" {
		return def
	}
	var w wrapped[bool]
	if err := json.Unmarshal(raw, &w); err == nil {
		return w.Value
	}
	var v bool
	if err := json.Unmarshal(raw, &v); err == nil {
		return v
	}
	return def
}
