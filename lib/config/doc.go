// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads gateway runtime settings.
//
// Unlike a file-based configuration layer, this package is driven
// primarily by environment variables — AGGREGATOR_TIMEOUT_MAX_MS,
// AGGREGATOR_CALLBACK_URL, RESOURCE_URLS, and SERVER_PORT — since the
// gateway is meant to run as a container workload configured by its
// orchestrator. An optional AGGREGATOR_CONFIG_FILE names a YAML file
// for settings that don't fit a single env var, currently the ICE
// server list handed to new signaling sessions.
//
// Key exports:
//
//   - [Config] -- the resolved runtime configuration
//   - [Default] -- a Config with every field at its documented default
//   - [Load] -- reads the environment (and optional file) and validates
package config
