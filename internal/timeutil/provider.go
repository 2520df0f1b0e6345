// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package timeutil provides the single time source the data plane is meant
// to read from, per the "all timestamps come from a single source" design
// note: production code wraps the OS clock, tests inject a virtual one.
package timeutil

import (
	"sync"
	"time"
)

// Provider is the time source every hot-path component should take as a
// dependency instead of calling time.Now() directly.
type Provider interface {
	Now() time.Time
	NowMillis() int64
}

// SystemProvider wraps the OS clock.
type SystemProvider struct{}

func (SystemProvider) Now() time.Time { return time.Now() }
func (SystemProvider) NowMillis() int64 {
	return time.Now().UnixMilli()
}

// System is the shared SystemProvider instance; most production wiring can
// just reference this instead of allocating one.
var System Provider = SystemProvider{}

// VirtualProvider is a manually-advanced clock for deterministic tests.
type VirtualProvider struct {
	mu  sync.Mutex
	now time.Time
}

func NewVirtualProvider(start time.Time) *VirtualProvider {
	return &VirtualProvider{now: start}
}

func (v *VirtualProvider) Now() time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.now
}

func (v *VirtualProvider) NowMillis() int64 {
	return v.Now().UnixMilli()
}

// Advance moves the virtual clock forward by d.
func (v *VirtualProvider) Advance(d time.Duration) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.now = v.now.Add(d)
}

// Set pins the virtual clock to an absolute time.
func (v *VirtualProvider) Set(t time.Time) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.now = t
}
