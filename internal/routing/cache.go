// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package routing holds the hot lookup tables for Channel-to-Measurement and
// Channel-to-Channel routing (spec §4.4). The cache is rebuilt wholesale from
// a configuration snapshot and swapped atomically, so concurrent readers
// never observe a partially-updated map (P7).
package routing

import (
	"sync/atomic"

	"github.com/fieldmesh/comsrv/internal/points"
)

// M2Target is where a channel point's value is forwarded for a measurement
// write.
type M2Target struct {
	InstanceID uint16
	PointID    uint32
}

// C2Target is where a channel point's value is forwarded as another
// channel's point.
type C2Target struct {
	ChannelID uint32
	PointType points.PointType
	PointID   uint32
}

type snapshot struct {
	c2m map[string]M2Target
	c2c map[string]C2Target
}

// Cache is the process-wide routing table. Construct it with NewCache, which
// installs an empty snapshot; the zero value has no snapshot, and its
// lookups dereference a nil pointer until a Builder commits one.
type Cache struct {
	ptr atomic.Pointer[snapshot]
}

func NewCache() *Cache {
	c := &Cache{}
	c.ptr.Store(&snapshot{c2m: map[string]M2Target{}, c2c: map[string]C2Target{}})
	return c
}

// LookupC2M returns the measurement-instance target for a route key, if any.
func (c *Cache) LookupC2M(routeKey string) (M2Target, bool) {
	s := c.ptr.Load()
	t, ok := s.c2m[routeKey]
	return t, ok
}

// LookupC2C returns the forward-channel target for a route key, if any.
func (c *Cache) LookupC2C(routeKey string) (C2Target, bool) {
	s := c.ptr.Load()
	t, ok := s.c2c[routeKey]
	return t, ok
}

// Builder accumulates edges before a single atomic Commit to the Cache,
// so writers never expose a half-built map to readers.
type Builder struct {
	c2m map[string]M2Target
	c2c map[string]C2Target
}

func NewBuilder() *Builder {
	return &Builder{c2m: map[string]M2Target{}, c2c: map[string]C2Target{}}
}

func (b *Builder) AddC2M(routeKey string, target M2Target) *Builder {
	b.c2m[routeKey] = target
	return b
}

func (b *Builder) AddC2C(routeKey string, target C2Target) *Builder {
	b.c2c[routeKey] = target
	return b
}

// Commit installs the built maps into cache with a single pointer swap.
func (b *Builder) Commit(c *Cache) {
	c.ptr.Store(&snapshot{c2m: b.c2m, c2c: b.c2c})
}

// Len reports the number of edges currently loaded, for diagnostics/metrics.
func (c *Cache) Len() (c2m int, c2c int) {
	s := c.ptr.Load()
	return len(s.c2m), len(s.c2c)
}
