// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fieldmesh/comsrv/internal/points"
)

func TestCache_EmptyByDefault(t *testing.T) {
	c := NewCache()
	_, ok := c.LookupC2M("missing")
	assert.False(t, ok)
	_, ok = c.LookupC2C("missing")
	assert.False(t, ok)
	c2m, c2c := c.Len()
	assert.Equal(t, 0, c2m)
	assert.Equal(t, 0, c2c)
}

func TestBuilder_CommitInstallsAtomically(t *testing.T) {
	c := NewCache()
	b := NewBuilder()
	b.AddC2M("route1", M2Target{InstanceID: 7, PointID: 100})
	b.AddC2C("route2", C2Target{ChannelID: 9, PointType: points.Signal, PointID: 3})
	b.Commit(c)

	target, ok := c.LookupC2M("route1")
	assert.True(t, ok)
	assert.Equal(t, M2Target{InstanceID: 7, PointID: 100}, target)

	c2target, ok := c.LookupC2C("route2")
	assert.True(t, ok)
	assert.Equal(t, C2Target{ChannelID: 9, PointType: points.Signal, PointID: 3}, c2target)

	c2m, c2c := c.Len()
	assert.Equal(t, 1, c2m)
	assert.Equal(t, 1, c2c)
}

func TestBuilder_CommitReplacesPreviousSnapshotWholesale(t *testing.T) {
	c := NewCache()
	NewBuilder().AddC2M("stale", M2Target{InstanceID: 1}).Commit(c)

	NewBuilder().AddC2M("fresh", M2Target{InstanceID: 2}).Commit(c)

	_, ok := c.LookupC2M("stale")
	assert.False(t, ok, "commit must replace the whole snapshot, not merge into it")
	_, ok = c.LookupC2M("fresh")
	assert.True(t, ok)
}
