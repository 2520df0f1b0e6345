// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package control

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldmesh/comsrv/internal/keyspace"
	"github.com/fieldmesh/comsrv/internal/rtdb/memstore"
)

func TestDispatch_AdjustmentAliasEnqueues(t *testing.T) {
	store := memstore.New()
	d := New(store)

	id, err := d.Dispatch(context.Background(), Request{ChannelID: 1001, TypeAlias: "Adjustment", PointID: 201, Value: 4500.0})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	raw, err := store.ListLPop(context.Background(), keyspace.AdjustmentTodoQueue(1001))
	require.NoError(t, err)

	var cmd command
	require.NoError(t, json.Unmarshal(raw, &cmd))
	assert.Equal(t, id, cmd.CorrelationID)
	assert.Equal(t, uint32(201), cmd.PointID)
	assert.Equal(t, 4500.0, cmd.Value)
}

func TestDispatch_RejectsNonCommandTypes(t *testing.T) {
	d := New(memstore.New())
	_, err := d.Dispatch(context.Background(), Request{ChannelID: 1, TypeAlias: "T", PointID: 1})
	assert.Error(t, err)
}

func TestDispatch_RejectsUnknownAlias(t *testing.T) {
	d := New(memstore.New())
	_, err := d.Dispatch(context.Background(), Request{ChannelID: 1, TypeAlias: "bogus", PointID: 1})
	assert.Error(t, err)
}

func TestDispatchBatch_PartialSuccess(t *testing.T) {
	d := New(memstore.New())
	reqs := []Request{
		{ChannelID: 1001, TypeAlias: "C", PointID: 1},
		{ChannelID: 1001, TypeAlias: "bogus", PointID: 2},
		{ChannelID: 1001, TypeAlias: "A", PointID: 3, Value: 1.5},
	}
	report := d.DispatchBatch(context.Background(), reqs)
	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 2, report.Succeeded)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, uint32(2), report.Errors[0].PointID)
}
