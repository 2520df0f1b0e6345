// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package datastore is the Data Store (spec §4.7): it receives the
// DataBatch produced by a channel's poll_once(), runs every point through
// the Transformer Registry, and hands the resulting ChannelPointUpdate
// slice to the Batch Router. It also fans raw (pre-transform) batches out
// to subscribers for diagnostics/replay, mirroring the teacher's
// memorystore-to-checkpoint "every write is also observable" pattern.
package datastore

import (
	"context"
	"sync"

	"github.com/fieldmesh/comsrv/internal/points"
	"github.com/fieldmesh/comsrv/internal/router"
	"github.com/fieldmesh/comsrv/internal/transform"
	"github.com/fieldmesh/comsrv/pkg/log"
)

var logger = log.Component("DATASTORE")

// Store bridges poll output to the routing pipeline.
type Store struct {
	registry *transform.Registry
	router   *router.Router

	mu   sync.RWMutex
	subs map[chan points.DataBatch]struct{}
}

func New(registry *transform.Registry, r *router.Router) *Store {
	return &Store{
		registry: registry,
		router:   r,
		subs:     make(map[chan points.DataBatch]struct{}),
	}
}

// Subscribe registers a channel that receives every ingested raw DataBatch.
// The returned func unsubscribes. Sends are non-blocking: a slow subscriber
// drops batches rather than stalling ingestion.
func (s *Store) Subscribe(buf int) (<-chan points.DataBatch, func()) {
	ch := make(chan points.DataBatch, buf)
	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()
	return ch, func() {
		s.mu.Lock()
		delete(s.subs, ch)
		s.mu.Unlock()
		close(ch)
	}
}

func (s *Store) broadcast(batch points.DataBatch) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for ch := range s.subs {
		select {
		case ch <- batch:
		default:
			logger.Warnf("subscriber channel full, dropping batch for channel %d", batch.ChannelID)
		}
	}
}

// Ingest transforms and routes one poll cycle's DataBatch, returning the
// router's write/fan-out/cascade counts.
func (s *Store) Ingest(ctx context.Context, batch points.DataBatch) (router.Result, error) {
	s.broadcast(batch)

	updates := make([]points.ChannelPointUpdate, 0, len(batch.Points))
	for _, dp := range batch.Points {
		raw, ok := dp.Value.AsFloat()
		if !ok {
			logger.Warnf("channel %d point %d: non-numeric value, skipping transform", batch.ChannelID, dp.ID)
			continue
		}
		tr := s.registry.Get(batch.ChannelID, dp.DataType, dp.ID)
		value := tr.Apply(points.DeviceToSystem, raw)

		var rawPtr *float64
		if tr.Kind != points.TransformPassthrough {
			r := raw
			rawPtr = &r
		}

		updates = append(updates, points.ChannelPointUpdate{
			ChannelID: batch.ChannelID,
			PointType: dp.DataType,
			PointID:   dp.ID,
			Value:     value,
			RawValue:  rawPtr,
		})
	}

	return s.router.WriteBatch(ctx, updates)
}
