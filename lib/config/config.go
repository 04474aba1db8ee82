// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads gateway settings from environment variables,
// plus an optional static YAML file for settings that don't fit a
// single env var value (the ICE server list).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pion/webrtc/v4"
	"gopkg.in/yaml.v3"
)

// defaultMaxTimeoutMS is the deadline cap applied when
// AGGREGATOR_TIMEOUT_MAX_MS is unset.
const defaultMaxTimeoutMS = 27000

// defaultPort is used when SERVER_PORT is unset.
const defaultPort = "8080"

// Config is the gateway's runtime configuration.
type Config struct {
	// MaxTimeout caps the effective deadline for any single correlation.
	MaxTimeout time.Duration

	// CallbackURL is the gateway's own externally-reachable callback
	// endpoint, passed to every backend at dispatch time.
	CallbackURL string

	// ResourceURLs is the fixed, ordered list of backend endpoints.
	ResourceURLs []string

	// Port is the TCP port the gateway listens on.
	Port string

	// ICEServers is the optional ICE server list handed to every new
	// signaling session, loaded from the static config file if set.
	ICEServers []webrtc.ICEServer

	// ConfigFile is the path named by AGGREGATOR_CONFIG_FILE, if any.
	ConfigFile string
}

// Default returns a Config with every field at its documented default.
// Callers still need to set CallbackURL and ResourceURLs before the
// config is usable — Load does this from the environment.
func Default() Config {
	return Config{
		MaxTimeout: defaultMaxTimeoutMS * time.Millisecond,
		Port:       defaultPort,
	}
}

// Load builds a Config from AGGREGATOR_TIMEOUT_MAX_MS,
// AGGREGATOR_CALLBACK_URL, RESOURCE_URLS, SERVER_PORT, and the
// optional AGGREGATOR_CONFIG_FILE static file, then validates it.
func Load() (Config, error) {
	cfg := Default()

	if raw := os.Getenv("AGGREGATOR_TIMEOUT_MAX_MS"); raw != "" {
		ms, err := strconv.Atoi(raw)
		if err != nil {
			return Config{}, fmt.Errorf("parse AGGREGATOR_TIMEOUT_MAX_MS: %w", err)
		}
		cfg.MaxTimeout = time.Duration(ms) * time.Millisecond
	}

	cfg.CallbackURL = os.Getenv("AGGREGATOR_CALLBACK_URL")

	if raw := os.Getenv("RESOURCE_URLS"); raw != "" {
		for _, url := range strings.Split(raw, ",") {
			url = strings.TrimSpace(url)
			if url != "" {
				cfg.ResourceURLs = append(cfg.ResourceURLs, url)
			}
		}
	}

	if port := os.Getenv("SERVER_PORT"); port != "" {
		cfg.Port = port
	}

	cfg.ConfigFile = os.Getenv("AGGREGATOR_CONFIG_FILE")
	if cfg.ConfigFile != "" {
		static, err := loadStaticFile(cfg.ConfigFile)
		if err != nil {
			return Config{}, fmt.Errorf("load static config %s: %w", cfg.ConfigFile, err)
		}
		cfg.ICEServers = static.ICEServers
		if len(cfg.ResourceURLs) == 0 {
			cfg.ResourceURLs = static.ResourceURLs
		}
	}

	return cfg, cfg.Validate()
}

// Validate rejects a non-positive deadline cap, an empty backend list,
// or a missing port.
func (c Config) Validate() error {
	if c.MaxTimeout <= 0 {
		return fmt.Errorf("AGGREGATOR_TIMEOUT_MAX_MS must be positive")
	}
	if len(c.ResourceURLs) == 0 {
		return fmt.Errorf("RESOURCE_URLS must name at least one backend")
	}
	if c.Port == "" {
		return fmt.Errorf("SERVER_PORT must not be empty")
	}
	return nil
}

// staticFile is the shape of the optional AGGREGATOR_CONFIG_FILE. The
// fields of each ice_servers entry are matched by yaml.v3's default
// lowercase field-name rule since webrtc.ICEServer carries no yaml tags
// of its own.
type staticFile struct {
	ICEServers   []webrtc.ICEServer `yaml:"ice_servers"`
	ResourceURLs []string           `yaml:"resource_urls"`
}

func loadStaticFile(path string) (staticFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return staticFile{}, err
	}
	var parsed staticFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return staticFile{}, fmt.Errorf("parse yaml: %w", err)
	}
	return parsed, nil
}
