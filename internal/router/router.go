// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package router implements the Batch Router (spec §4.5): it converts a
// batch of channel-point updates into 3-layer RTDB writes, instance hash
// writes, and recursive Channel-to-Channel forwards bounded by cascade
// depth. This is the critical subsystem: an RTDB write error aborts the
// call and is returned to the caller. The router has no internal invariant
// checks of its own and does not panic.
package router

import (
	"context"
	"strconv"

	"github.com/fieldmesh/comsrv/internal/keyspace"
	"github.com/fieldmesh/comsrv/internal/points"
	"github.com/fieldmesh/comsrv/internal/routing"
	"github.com/fieldmesh/comsrv/internal/rtdb"
	"github.com/fieldmesh/comsrv/internal/timeutil"
	"github.com/fieldmesh/comsrv/pkg/log"
)

var logger = log.Component("ROUTER")

// MaxCascadeDepth is the compile-time bound from spec §6. A C2C forward is
// only produced when doing so would keep the forwarded update's depth
// strictly below this bound -- i.e. the forwarding condition is evaluated
// against the depth the *forwarded* update would carry, not the current
// update's own depth. This is what makes the worked cascade example in
// spec §8 scenario 4 (cw=4, cf=3 for MAX=4) and invariant P2's
// "(MAX_C2C_CASCADE_DEPTH − 1)" fan-out bound both come out consistent:
// only depths 0..MAX-2 ever forward, so MAX-1 forwarding levels exist.
const MaxCascadeDepth uint8 = 4

// Mode selects whether RTDB writes are awaited directly or buffered.
type Mode int

const (
	Direct Mode = iota
	Buffered
)

// Result is the router's (channel_writes, c2m_writes, c2c_forwards) triple.
type Result struct {
	ChannelWrites int
	C2MWrites     int
	C2CForwards   int
}

func (r *Result) add(o Result) {
	r.ChannelWrites += o.ChannelWrites
	r.C2MWrites += o.C2MWrites
	r.C2CForwards += o.C2CForwards
}

// Hooks lets callers observe router activity (e.g. to export metrics)
// without the router depending on a concrete metrics package.
type Hooks struct {
	OnChannelWrite   func(channelID uint32, t points.PointType, n int)
	OnC2MWrite       func(instanceID uint16, n int)
	OnC2CForward     func(n int)
	OnCascadeDropped func() // invoked once per update whose forward was suppressed only by depth
}

// Router is the Batch Router. One Router is constructed per process (or per
// test); it holds no per-call state.
type Router struct {
	db    rtdb.DB
	buf   *rtdb.WriteBuffer
	mode  Mode
	cache *routing.Cache
	clock timeutil.Provider
	hooks Hooks
}

// New constructs a Router. buf may be nil when mode is Direct.
func New(db rtdb.DB, buf *rtdb.WriteBuffer, mode Mode, cache *routing.Cache, clock timeutil.Provider) *Router {
	if clock == nil {
		clock = timeutil.System
	}
	return &Router{db: db, buf: buf, mode: mode, cache: cache, clock: clock}
}

// SetHooks installs observer callbacks; nil fields are simply not invoked.
func (r *Router) SetHooks(h Hooks) { r.hooks = h }

type groupKey struct {
	channelID uint32
	pointType points.PointType
}

// WriteBatch is the entry point: groups updates by (channel, point-type),
// writes the 3-layer channel hash, fans out to C2M measurement hashes, and
// recursively forwards C2C edges with cascade-depth bound.
func (r *Router) WriteBatch(ctx context.Context, updates []points.ChannelPointUpdate) (Result, error) {
	var result Result
	if len(updates) == 0 {
		return result, nil
	}

	now := r.clock.NowMillis()

	// Group by (channel, point-type), preserving insertion order.
	var order []groupKey
	groups := make(map[groupKey][]points.ChannelPointUpdate)
	for _, u := range updates {
		gk := groupKey{u.ChannelID, u.PointType}
		if _, ok := groups[gk]; !ok {
			order = append(order, gk)
		}
		groups[gk] = append(groups[gk], u)
	}

	var forwards []points.ChannelPointUpdate

	for _, gk := range order {
		group := groups[gk]

		channelFields := make([]rtdb.HashField, 0, len(group)*3)
		instanceWrites := make(map[uint16][]rtdb.HashField)
		var instanceOrder []uint16
		seenInstance := make(map[uint16]bool)

		for _, u := range group {
			channelFields = append(channelFields,
				rtdb.HashField{Field: keyspace.ValueField(u.PointID), Value: encodeFloat(u.Value)},
				rtdb.HashField{Field: keyspace.TimestampField(u.PointID), Value: encodeInt(now)},
				rtdb.HashField{Field: keyspace.RawField(u.PointID), Value: encodeFloat(u.RawOrValue())},
			)

			routeKey := keyspace.RouteKey(u.ChannelID, u.PointType, u.PointID)

			if target, ok := r.cache.LookupC2M(routeKey); ok {
				if !seenInstance[target.InstanceID] {
					seenInstance[target.InstanceID] = true
					instanceOrder = append(instanceOrder, target.InstanceID)
				}
				instanceWrites[target.InstanceID] = append(instanceWrites[target.InstanceID],
					rtdb.HashField{Field: keyspace.InstanceField(target.PointID), Value: encodeFloat(u.Value)})
			}

			if u.CascadeDepth+1 < MaxCascadeDepth {
				if target, ok := r.cache.LookupC2C(routeKey); ok {
					forwards = append(forwards, points.ChannelPointUpdate{
						ChannelID:    target.ChannelID,
						PointType:    target.PointType,
						PointID:      target.PointID,
						Value:        u.Value,
						RawValue:     u.RawValue,
						CascadeDepth: u.CascadeDepth + 1,
					})
				}
			} else if _, ok := r.cache.LookupC2C(routeKey); ok && r.hooks.OnCascadeDropped != nil {
				r.hooks.OnCascadeDropped()
			}
		}

		if err := r.writeChannelHash(ctx, gk.channelID, gk.pointType, channelFields); err != nil {
			logger.Errorf("channel %d type %s: write failed: %s", gk.channelID, gk.pointType.Letter(), err.Error())
			return result, err
		}
		result.ChannelWrites += len(group)
		if r.hooks.OnChannelWrite != nil {
			r.hooks.OnChannelWrite(gk.channelID, gk.pointType, len(group))
		}

		for _, instanceID := range instanceOrder {
			if err := r.writeInstanceHash(ctx, instanceID, instanceWrites[instanceID]); err != nil {
				return result, err
			}
			result.C2MWrites++
			if r.hooks.OnC2MWrite != nil {
				r.hooks.OnC2MWrite(instanceID, len(instanceWrites[instanceID]))
			}
		}
	}

	if len(forwards) > 0 {
		result.C2CForwards += len(forwards)
		if r.hooks.OnC2CForward != nil {
			r.hooks.OnC2CForward(len(forwards))
		}
		sub, err := r.WriteBatch(ctx, forwards)
		if err != nil {
			return result, err
		}
		result.add(sub)
	}

	return result, nil
}

func (r *Router) writeChannelHash(ctx context.Context, channelID uint32, t points.PointType, fields []rtdb.HashField) error {
	key := keyspace.ChannelHash(channelID, t)
	return r.writeHash(ctx, key, fields)
}

func (r *Router) writeInstanceHash(ctx context.Context, instanceID uint16, fields []rtdb.HashField) error {
	key := keyspace.InstanceMeasurementHash(instanceID)
	return r.writeHash(ctx, key, fields)
}

func (r *Router) writeHash(ctx context.Context, key string, fields []rtdb.HashField) error {
	if len(fields) == 0 {
		return nil
	}
	switch r.mode {
	case Buffered:
		r.buf.BufferHashMSet(key, fields)
		return nil
	default:
		return r.db.HashMSet(ctx, key, fields)
	}
}

func encodeFloat(v float64) []byte {
	return []byte(strconv.FormatFloat(v, 'f', -1, 64))
}

func encodeInt(v int64) []byte {
	return []byte(strconv.FormatInt(v, 10))
}
