// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package protocol

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldmesh/comsrv/internal/points"
)

type stubFrontEnd struct{}

func (stubFrontEnd) Start(context.Context) error { return nil }
func (stubFrontEnd) Stop(context.Context) error  { return nil }
func (stubFrontEnd) PollOnce(context.Context) (points.DataBatch, error) {
	return points.DataBatch{}, nil
}
func (stubFrontEnd) WritePoint(context.Context, points.PointType, uint32, float64) error { return nil }
func (stubFrontEnd) IsConnected() bool                                                   { return true }

func TestRegistry_BuildUsesRegisteredFactory(t *testing.T) {
	r := NewRegistry()
	var gotChannelID uint32
	var gotTransport map[string]any
	r.Register("virtual", func(channelID uint32, transport map[string]any) (FrontEnd, error) {
		gotChannelID = channelID
		gotTransport = transport
		return stubFrontEnd{}, nil
	})

	fe, err := r.Build(42, "virtual", map[string]any{"k": "v"})
	require.NoError(t, err)
	assert.NotNil(t, fe)
	assert.Equal(t, uint32(42), gotChannelID)
	assert.Equal(t, "v", gotTransport["k"])
}

func TestRegistry_BuildUnknownProtocolErrors(t *testing.T) {
	r := NewRegistry()
	_, err := r.Build(1, "nonexistent", nil)
	assert.Error(t, err)
}
