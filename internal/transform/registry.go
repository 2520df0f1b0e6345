// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package transform holds the per-point linear/boolean transform registry
// (spec §4.1). The registry is read-mostly: the hot path calls Get from many
// channel runtime goroutines concurrently while a reload occasionally
// replaces entries. Get prefers TryLock semantics over blocking, so a
// reload in progress degrades callers to a one-cycle Passthrough instead of
// stalling the poll loop.
package transform

import (
	"sync"
	"sync/atomic"

	"github.com/fieldmesh/comsrv/internal/points"
	"github.com/fieldmesh/comsrv/pkg/log"
)

var logger = log.Component("TRANSFORM")

type key struct {
	channelID uint32
	typeCode  string
	pointID   uint32
}

// Registry caches one PointTransformer per (channel, point-type, point-id).
type Registry struct {
	mu    sync.RWMutex
	byKey map[key]points.PointTransformer

	hits        atomic.Uint64
	misses      atomic.Uint64
	degradedHit atomic.Uint64
}

func NewRegistry() *Registry {
	return &Registry{byKey: make(map[key]points.PointTransformer)}
}

// Load populates the registry from a channel's RuntimeChannelConfig.
// Telemetry/Adjustment become Linear{scale,offset}; Signal becomes
// Boolean{reverse}; Control becomes Boolean{reverse:false} until the config
// surface exposes a reverse flag for controls (DESIGN.md open question).
func (r *Registry) Load(cfg points.RuntimeChannelConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()

	load := func(t points.PointType, pts []points.PointConfig, build func(points.PointConfig) points.PointTransformer) {
		for _, p := range pts {
			r.byKey[key{cfg.ChannelID, t.Letter(), p.ID}] = build(p)
		}
	}

	load(points.Telemetry, cfg.Telemetry, func(p points.PointConfig) points.PointTransformer {
		return points.NewLinearTransformer(p.Scale, p.Offset)
	})
	load(points.Adjustment, cfg.Adjustment, func(p points.PointConfig) points.PointTransformer {
		return points.NewLinearTransformer(p.Scale, p.Offset)
	})
	load(points.Signal, cfg.Signal, func(p points.PointConfig) points.PointTransformer {
		return points.NewBooleanTransformer(p.Reverse)
	})
	load(points.Control, cfg.Control, func(p points.PointConfig) points.PointTransformer {
		return points.NewBooleanTransformer(false)
	})

	logger.Infof("loaded transformers for channel %d (%dT %dS %dC %dA)",
		cfg.ChannelID, len(cfg.Telemetry), len(cfg.Signal), len(cfg.Control), len(cfg.Adjustment))
}

// Clear removes every entry for a channel, used ahead of a hot reload.
func (r *Registry) Clear(channelID uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k := range r.byKey {
		if k.channelID == channelID {
			delete(r.byKey, k)
		}
	}
}

// Get is the hot-path lookup. It never blocks: on lock contention (a reload
// in progress) it returns Passthrough rather than waiting, which callers
// must tolerate as a one-cycle identity transform.
func (r *Registry) Get(channelID uint32, t points.PointType, pointID uint32) points.PointTransformer {
	if !r.mu.TryRLock() {
		r.degradedHit.Add(1)
		return points.PassthroughTransformer()
	}
	defer r.mu.RUnlock()

	tr, ok := r.byKey[key{channelID, t.Letter(), pointID}]
	if !ok {
		r.misses.Add(1)
		return points.PassthroughTransformer()
	}
	r.hits.Add(1)
	return tr
}

// Stats reports counts by type letter and the total across all channels.
type Stats struct {
	Total       int
	ByType      map[string]int
	Hits        uint64
	Misses      uint64
	DegradedHit uint64
}

func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := Stats{ByType: make(map[string]int, 4)}
	for k := range r.byKey {
		s.Total++
		s.ByType[k.typeCode]++
	}
	s.Hits = r.hits.Load()
	s.Misses = r.misses.Load()
	s.DegradedHit = r.degradedHit.Load()
	return s
}
