// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"encoding/json"
	"math"

	"github.com/jeranaias/lingshu-tui/internal/model"
)

// SettingsVersion is the current version of the persisted settings record.
const SettingsVersion = 1

// =============================================================================
// GENERATION SETTINGS
// =============================================================================

// Settings are the user's generation preferences, kept across restarts.
type Settings struct {
	Temperature  float64            `json:"temperature"`
	MaxTokens    int                `json:"maxTokens"`
	Quantization model.Quantization `json:"quantization"`
}

// DefaultSettings returns the settings used when nothing is stored.
func DefaultSettings() Settings {
	return Settings{
		Temperature:  model.DefaultTemperature,
		MaxTokens:    model.DefaultMaxNewTokens,
		Quantization: model.DefaultQuantization,
	}
}

// Generation returns the sampling parameters sent with each chat request.
func (s Settings) Generation() model.GenerationConfig {
	return model.GenerationConfig{
		Temperature:  s.Temperature,
		MaxNewTokens: s.MaxTokens,
	}
}

// Validate checks that the values can be sent to the backend.
func (s Settings) Validate() error {
	if math.IsNaN(s.Temperature) || math.IsInf(s.Temperature, 0) || s.Temperature < 0 {
		return &model.ValidationError{Code: model.CodeInvalidSetting, Message: "temperature must be a non-negative number"}
	}
	if s.MaxTokens < 1 {
		return &model.ValidationError{Code: model.CodeInvalidSetting, Message: "max tokens must be at least 1"}
	}
	if _, err := model.ParseQuantization(string(s.Quantization)); err != nil {
		return err
	}
	return nil
}

// settingsRecord is the persisted form. Pointer fields tell an absent
// value from a zero one so older or partial records are default-filled.
type settingsRecord struct {
	Version      int      `json:"version"`
	Temperature  *float64 `json:"temperature,omitempty"`
	MaxTokens    *int     `json:"maxTokens,omitempty"`
	Quantization string   `json:"quantization,omitempty"`
}

// decodeSettings parses a stored record, filling defaults for missing or
// invalid fields.
func decodeSettings(data []byte) (Settings, []string, error) {
	var rec settingsRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return DefaultSettings(), nil, err
	}

	var notes []string
	s := DefaultSettings()
	if rec.Temperature != nil {
		s.Temperature = *rec.Temperature
	}
	if rec.MaxTokens != nil {
		s.MaxTokens = *rec.MaxTokens
	}
	if rec.Quantization != "" {
		if q, err := model.ParseQuantization(rec.Quantization); err == nil {
			s.Quantization = q
		} else {
			notes = append(notes, "unknown stored quantization "+rec.Quantization+"; using default")
		}
	}

	if err := s.Validate(); err != nil {
		notes = append(notes, "stored settings invalid ("+err.Error()+"); using defaults")
		s = DefaultSettings()
	}
	return s, notes, nil
}

func encodeSettings(s Settings) ([]byte, error) {
	return json.MarshalIndent(settingsRecord{
		Version:      SettingsVersion,
		Temperature:  &s.Temperature,
		MaxTokens:    &s.MaxTokens,
		Quantization: string(s.Quantization),
	}, "", "  ")
}
