// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for lingshu.
//
// Configuration is TOML with sensible defaults, environment variable
// overrides, and validation.
//
// # Key Types
//
//   - Config: Main configuration structure with all settings
//   - BackendConfig: chat service URL and timeouts
//   - StorageConfig: session persistence driver and location
//   - ChatConfig: streaming, abort marker, title length
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (LINGSHU_<SECTION>_<KEY>, also read from .env)
//   - ~/.lingshu/config.toml
//   - Built-in defaults
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	client := backend.NewClient(&backend.ClientConfig{BaseURL: cfg.Backend.URL})
package config
