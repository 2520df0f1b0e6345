// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package virtual is the in-process front-end used for tests and
// dry-run deployments: it has no transport, generates deterministic
// synthetic telemetry, and loops adjustment/control writes back as the
// next poll's value, so the full Channel Runtime state machine can be
// exercised without real field devices.
package virtual

import (
	"context"
	"math"
	"sync"

	"github.com/fieldmesh/comsrv/internal/points"
	"github.com/fieldmesh/comsrv/internal/timeutil"
)

// Config lists the telemetry and signal point ids this virtual device
// exposes; the synthetic waveform is fixed and has no parameters here.
type Config struct {
	ChannelID    uint32
	TelemetryIDs []uint32
	SignalIDs    []uint32
	Clock        timeutil.Provider
}

// FrontEnd is a deterministic, transport-less protocol.FrontEnd.
type FrontEnd struct {
	cfg       Config
	clock     timeutil.Provider
	connected bool

	mu        sync.Mutex
	overrides map[points.PointType]map[uint32]float64
	tick      int64
}

func New(cfg Config) *FrontEnd {
	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.System
	}
	return &FrontEnd{
		cfg:   cfg,
		clock: clock,
		overrides: map[points.PointType]map[uint32]float64{
			points.Telemetry: {}, points.Signal: {}, points.Control: {}, points.Adjustment: {},
		},
	}
}

func (f *FrontEnd) Start(ctx context.Context) error {
	f.connected = true
	return nil
}

func (f *FrontEnd) Stop(ctx context.Context) error {
	f.connected = false
	return nil
}

func (f *FrontEnd) IsConnected() bool { return f.connected }

// PollOnce synthesizes one sample per configured telemetry id (a sine wave
// seeded by the point id, so distinct points diverge, replaced by the last
// written value once a nonzero Telemetry write has touched that id) and an
// alternating boolean per configured signal id. Every written Signal,
// Control or Adjustment value is reported as an additional point; Telemetry
// writes to ids not in TelemetryIDs are not reported.
func (f *FrontEnd) PollOnce(ctx context.Context) (points.DataBatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.clock.NowMillis()
	f.tick++

	var out []points.DataPoint
	for _, id := range f.cfg.TelemetryIDs {
		v := f.overrides[points.Telemetry][id]
		if v == 0 {
			v = 100 + 10*math.Sin(float64(f.tick+int64(id)))
		}
		fv, err := points.NewFloatValue(v)
		if err != nil {
			continue
		}
		out = append(out, points.DataPoint{ID: id, DataType: points.Telemetry, Value: fv, TimestampMs: now})
	}
	for _, id := range f.cfg.SignalIDs {
		b := (f.tick+int64(id))%2 == 0
		out = append(out, points.DataPoint{ID: id, DataType: points.Signal, Value: points.NewBoolValue(b), TimestampMs: now})
	}
	for t, byID := range f.overrides {
		if t == points.Telemetry {
			continue
		}
		for id, v := range byID {
			fv, err := points.NewFloatValue(v)
			if err != nil {
				continue
			}
			out = append(out, points.DataPoint{ID: id, DataType: t, Value: fv, TimestampMs: now})
		}
	}

	return points.DataBatch{ChannelID: f.cfg.ChannelID, Points: out}, nil
}

// WritePoint records the written value so the next PollOnce reflects it,
// the loopback behavior tests rely on for scenario 6 (control API alias).
func (f *FrontEnd) WritePoint(ctx context.Context, t points.PointType, pointID uint32, value float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.overrides[t] == nil {
		f.overrides[t] = map[uint32]float64{}
	}
	f.overrides[t][pointID] = value
	return nil
}
