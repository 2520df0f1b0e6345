// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldmesh/comsrv/internal/points"
)

func TestRegistry_LoadAndGet(t *testing.T) {
	r := NewRegistry()
	r.Load(points.RuntimeChannelConfig{
		ChannelID: 1001,
		Telemetry: []points.PointConfig{{ID: 1, Scale: 2, Offset: 1}},
		Signal:    []points.PointConfig{{ID: 2, Reverse: true}},
	})

	tr := r.Get(1001, points.Telemetry, 1)
	assert.Equal(t, points.TransformLinear, tr.Kind)
	assert.Equal(t, 5.0, tr.Apply(points.DeviceToSystem, 2))

	tr = r.Get(1001, points.Signal, 2)
	assert.Equal(t, points.TransformBoolean, tr.Kind)
	assert.True(t, tr.Reverse)

	stats := r.Stats()
	assert.Equal(t, uint64(2), stats.Hits)
	assert.Equal(t, uint64(0), stats.Misses)
}

func TestRegistry_GetMissReturnsPassthrough(t *testing.T) {
	r := NewRegistry()
	tr := r.Get(1, points.Telemetry, 99)
	assert.Equal(t, points.TransformPassthrough, tr.Kind)
	assert.Equal(t, uint64(1), r.Stats().Misses)
}

func TestRegistry_ClearRemovesOnlyThatChannel(t *testing.T) {
	r := NewRegistry()
	r.Load(points.RuntimeChannelConfig{ChannelID: 1, Telemetry: []points.PointConfig{{ID: 1, Scale: 1}}})
	r.Load(points.RuntimeChannelConfig{ChannelID: 2, Telemetry: []points.PointConfig{{ID: 1, Scale: 1}}})

	r.Clear(1)

	tr := r.Get(1, points.Telemetry, 1)
	assert.Equal(t, points.TransformPassthrough, tr.Kind)
	tr = r.Get(2, points.Telemetry, 1)
	assert.Equal(t, points.TransformLinear, tr.Kind)
}

func TestRegistry_StatsByType(t *testing.T) {
	r := NewRegistry()
	r.Load(points.RuntimeChannelConfig{
		ChannelID:  1,
		Telemetry:  []points.PointConfig{{ID: 1, Scale: 1}, {ID: 2, Scale: 1}},
		Signal:     []points.PointConfig{{ID: 3}},
		Control:    []points.PointConfig{{ID: 4}},
		Adjustment: []points.PointConfig{{ID: 5, Scale: 1}},
	})
	stats := r.Stats()
	require.Equal(t, 5, stats.Total)
	assert.Equal(t, 2, stats.ByType["T"])
	assert.Equal(t, 1, stats.ByType["S"])
	assert.Equal(t, 1, stats.ByType["C"])
	assert.Equal(t, 1, stats.ByType["A"])
}
