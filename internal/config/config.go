// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config loads the top-level comsrv service config: a YAML file
// naming the RTDB backend and, for local/dev runs, the per-channel point
// tables inline (spec.md §1 names a CSV loader as the production source of
// point tables; that loader is an external collaborator this package does
// not implement -- see SPEC_FULL.md §6).
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/fieldmesh/comsrv/internal/points"
)

// RTDBConfig selects and parameterizes the RTDB backend.
type RTDBConfig struct {
	Backend  string `yaml:"backend" json:"backend"`
	Addr     string `yaml:"addr" json:"addr"`
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
	DB       int    `yaml:"db" json:"db"`

	WriteBuffer struct {
		FlushIntervalMs int `yaml:"flush_interval_ms" json:"flush_interval_ms"`
		MaxQueue        int `yaml:"max_queue" json:"max_queue"`
		MaxRetries      int `yaml:"max_retries" json:"max_retries"`
	} `yaml:"write_buffer" json:"write_buffer"`
}

// ChannelPointConfig is the YAML-level point table entry; it decodes
// straight into points.PointConfig.
type ChannelPointConfig struct {
	ID      uint32  `yaml:"id"`
	Name    string  `yaml:"name"`
	Unit    string  `yaml:"unit"`
	Scale   float64 `yaml:"scale"`
	Offset  float64 `yaml:"offset"`
	Reverse bool    `yaml:"reverse"`
}

func (c ChannelPointConfig) toPointConfig() points.PointConfig {
	return points.PointConfig{ID: c.ID, Name: c.Name, Unit: c.Unit, Scale: c.Scale, Offset: c.Offset, Reverse: c.Reverse}
}

// ChannelConfig is one entry of the top-level `channels` list.
type ChannelConfig struct {
	ChannelID  uint32                 `yaml:"channel_id"`
	Name       string                 `yaml:"name"`
	ProtocolID string                 `yaml:"protocol_id"`
	Enabled    bool                   `yaml:"enabled"`
	IntervalMs int64                  `yaml:"interval_ms"`
	Transport  map[string]any         `yaml:"transport"`
	Telemetry  []ChannelPointConfig   `yaml:"telemetry"`
	Signal     []ChannelPointConfig   `yaml:"signal"`
	Control    []ChannelPointConfig   `yaml:"control"`
	Adjustment []ChannelPointConfig   `yaml:"adjustment"`
}

// ToRuntimeConfig converts the decoded YAML shape into the immutable
// points.RuntimeChannelConfig the Channel Runtime and Transformer Registry
// consume.
func (c ChannelConfig) ToRuntimeConfig() points.RuntimeChannelConfig {
	conv := func(in []ChannelPointConfig) []points.PointConfig {
		out := make([]points.PointConfig, len(in))
		for i, p := range in {
			out[i] = p.toPointConfig()
		}
		return out
	}
	return points.RuntimeChannelConfig{
		ChannelID:  c.ChannelID,
		Name:       c.Name,
		ProtocolID: c.ProtocolID,
		Enabled:    c.Enabled,
		IntervalMs: c.IntervalMs,
		Transport:  c.Transport,
		Telemetry:  conv(c.Telemetry),
		Signal:     conv(c.Signal),
		Control:    conv(c.Control),
		Adjustment: conv(c.Adjustment),
	}
}

// ServiceConfig is the full decoded config file.
type ServiceConfig struct {
	RTDB     RTDBConfig      `yaml:"rtdb"`
	Channels []ChannelConfig `yaml:"channels"`
}

// Load reads path, validates the RTDB/channel-runtime sub-document against
// rtdbChannelSchema, and decodes it into a ServiceConfig.
func Load(path string) (*ServiceConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var generic map[string]any
	if err := yaml.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	asJSON, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("config: re-encode %s for schema validation: %w", path, err)
	}
	if err := Validate(rtdbChannelSchema, asJSON); err != nil {
		return nil, err
	}

	var cfg ServiceConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	if len(cfg.Channels) == 0 {
		return nil, fmt.Errorf("config: %s declares no channels", path)
	}
	return &cfg, nil
}
