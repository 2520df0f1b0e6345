// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package points

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePointType_AcceptsAliases(t *testing.T) {
	cases := map[string]PointType{
		"t": Telemetry, "Telemetry": Telemetry,
		"s": Signal, "SIGNAL": Signal,
		"c": Control, "control": Control,
		"a": Adjustment, " Adjustment ": Adjustment,
	}
	for alias, want := range cases {
		got, err := ParsePointType(alias)
		require.NoError(t, err, alias)
		assert.Equal(t, want, got, alias)
	}
}

func TestParsePointType_RejectsUnknown(t *testing.T) {
	_, err := ParsePointType("bogus")
	assert.Error(t, err)
}

func TestPointType_Letter(t *testing.T) {
	assert.Equal(t, "T", Telemetry.Letter())
	assert.Equal(t, "S", Signal.Letter())
	assert.Equal(t, "C", Control.Letter())
	assert.Equal(t, "A", Adjustment.Letter())
	assert.Equal(t, "?", PointType(99).Letter())
}

func TestNewFloatValue_RejectsNonFinite(t *testing.T) {
	_, err := NewFloatValue(math.NaN())
	assert.Error(t, err)
	_, err = NewFloatValue(math.Inf(1))
	assert.Error(t, err)

	v, err := NewFloatValue(3.14)
	require.NoError(t, err)
	assert.Equal(t, KindFloat, v.Kind)
}

func TestPointValue_AsFloat(t *testing.T) {
	f, ok := NewIntValue(7).AsFloat()
	assert.True(t, ok)
	assert.Equal(t, 7.0, f)

	f, ok = NewBoolValue(true).AsFloat()
	assert.True(t, ok)
	assert.Equal(t, 1.0, f)

	f, ok = NewBoolValue(false).AsFloat()
	assert.True(t, ok)
	assert.Equal(t, 0.0, f)

	_, ok = NewStringValue("x").AsFloat()
	assert.False(t, ok)
}

func TestChannelPointUpdate_RawOrValue(t *testing.T) {
	u := ChannelPointUpdate{Value: 10}
	assert.Equal(t, 10.0, u.RawOrValue())

	raw := 5.0
	u.RawValue = &raw
	assert.Equal(t, 5.0, u.RawOrValue())
}
