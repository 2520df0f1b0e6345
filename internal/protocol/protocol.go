// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package protocol defines the narrow capability set every fieldbus
// front-end implements (spec §9 "Polymorphism over protocols"): start,
// stop, poll_once, write_point, is_connected. The core depends only on
// this interface, never on a concrete protocol.
package protocol

import (
	"context"
	"fmt"

	"github.com/fieldmesh/comsrv/internal/points"
)

// FrontEnd is the capability set a Channel Runtime drives. Implementations
// own their transport exclusively; nothing outside the owning Channel
// Runtime task calls into a FrontEnd concurrently.
type FrontEnd interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	// PollOnce reads the device and returns one DataBatch. Called once per
	// poll tick; must respect ctx's deadline.
	PollOnce(ctx context.Context) (points.DataBatch, error)
	// WritePoint issues a control/adjustment write to the device.
	WritePoint(ctx context.Context, t points.PointType, pointID uint32, value float64) error
	IsConnected() bool
}

// Factory builds a FrontEnd from a channel's opaque transport config.
type Factory func(channelID uint32, transport map[string]any) (FrontEnd, error)

// Registry maps a protocol id (as named in RuntimeChannelConfig.ProtocolID)
// to the factory that builds its front-end, so internal/channelrt never
// imports a concrete protocol package directly.
type Registry struct {
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

func (r *Registry) Register(protocolID string, f Factory) {
	r.factories[protocolID] = f
}

func (r *Registry) Build(channelID uint32, protocolID string, transport map[string]any) (FrontEnd, error) {
	f, ok := r.factories[protocolID]
	if !ok {
		return nil, fmt.Errorf("protocol: unknown protocol id %q", protocolID)
	}
	return f(channelID, transport)
}
