// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "strings"

// =============================================================================
// GENERATION CONFIG
// =============================================================================

// Generation defaults used by the backend when nothing is configured.
const (
	DefaultTemperature  = 0.7
	DefaultMaxNewTokens = 512
)

// GenerationConfig holds sampling parameters passed through to the backend.
// Values are type-checked only; range is the backend's concern.
type GenerationConfig struct {
	Temperature  float64 `json:"temperature"`
	MaxNewTokens int     `json:"max_new_tokens"`
}

// DefaultGenerationConfig returns the backend's default sampling parameters.
func DefaultGenerationConfig() GenerationConfig {
	return GenerationConfig{
		Temperature:  DefaultTemperature,
		MaxNewTokens: DefaultMaxNewTokens,
	}
}

// =============================================================================
// QUANTIZATION
// =============================================================================

// Quantization selects how the backend loads the model.
type Quantization string

const (
	Quant4Bit     Quantization = "4bit"
	Quant8Bit     Quantization = "8bit"
	QuantStandard Quantization = "standard"
	QuantCPU      Quantization = "cpu"
)

// DefaultQuantization is used when no setting is stored.
const DefaultQuantization = Quant4Bit

// Quantizations lists the supported modes in display order.
func Quantizations() []Quantization {
	return []Quantization{Quant4Bit, Quant8Bit, QuantStandard, QuantCPU}
}

// ParseQuantization validates a user-supplied mode.
func ParseQuantization(s string) (Quantization, error) {
	q := Quantization(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Quantizations() {
		if q == known {
			return q, nil
		}
	}
	return "", &ValidationError{
		Code:    CodeInvalidSetting,
		Message: "unknown quantization " + s + " (want 4bit, 8bit, standard or cpu)",
	}
}

// Description returns a human-readable label.
func (q Quantization) Description() string {
	switch q {
	case Quant4Bit:
		return "4-bit (lowest memory)"
	case Quant8Bit:
		return "8-bit"
	case QuantStandard:
		return "full precision (GPU)"
	case QuantCPU:
		return "CPU only"
	default:
		return string(q)
	}
}
