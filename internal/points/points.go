// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package points defines the wire-level data model shared by every component
// of the real-time data plane: point types, point values, data batches
// produced by a single poll, and the channel-point updates consumed by the
// batch router.
package points

import (
	"fmt"
	"math"
	"strings"
)

// PointType is the tagged enum of addressable point kinds. Its short code
// (a single uppercase letter) is the on-wire token used throughout the
// keyspace contract.
type PointType int

const (
	Telemetry PointType = iota
	Signal
	Control
	Adjustment
)

// Letter returns the single-character wire token for a point type.
func (t PointType) Letter() string {
	switch t {
	case Telemetry:
		return "T"
	case Signal:
		return "S"
	case Control:
		return "C"
	case Adjustment:
		return "A"
	default:
		return "?"
	}
}

func (t PointType) String() string {
	switch t {
	case Telemetry:
		return "Telemetry"
	case Signal:
		return "Signal"
	case Control:
		return "Control"
	case Adjustment:
		return "Adjustment"
	default:
		return "Unknown"
	}
}

// ParsePointType normalizes any of the accepted aliases: full name
// (case-insensitive), or single letter, lower or upper case.
func ParsePointType(alias string) (PointType, error) {
	switch strings.ToLower(strings.TrimSpace(alias)) {
	case "t", "telemetry":
		return Telemetry, nil
	case "s", "signal":
		return Signal, nil
	case "c", "control":
		return Control, nil
	case "a", "adjustment":
		return Adjustment, nil
	default:
		return 0, fmt.Errorf("points: unknown point type alias %q", alias)
	}
}

// ValueKind tags the variant held by a PointValue.
type ValueKind int

const (
	KindFloat ValueKind = iota
	KindInt
	KindBool
	KindString
	KindBinary
	KindNull
)

// PointValue is the tagged enum of values a DataPoint may carry. Only one of
// the fields is meaningful, selected by Kind. Float values must be finite;
// construct via NewFloatValue to enforce this.
type PointValue struct {
	Kind ValueKind
	F    float64
	I    int64
	B    bool
	S    string
	Bin  []byte
}

// NewFloatValue constructs a Float point value, rejecting NaN/Inf per the
// PointValue invariant.
func NewFloatValue(v float64) (PointValue, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return PointValue{}, fmt.Errorf("points: non-finite float value %v", v)
	}
	return PointValue{Kind: KindFloat, F: v}, nil
}

func NewIntValue(v int64) PointValue    { return PointValue{Kind: KindInt, I: v} }
func NewBoolValue(v bool) PointValue    { return PointValue{Kind: KindBool, B: v} }
func NewStringValue(v string) PointValue { return PointValue{Kind: KindString, S: v} }
func NewBinaryValue(v []byte) PointValue { return PointValue{Kind: KindBinary, Bin: v} }
func NullValue() PointValue              { return PointValue{Kind: KindNull} }

// AsFloat returns a best-effort float64 projection of the value, used when
// feeding the value into the transform pipeline which is float-only.
func (v PointValue) AsFloat() (float64, bool) {
	switch v.Kind {
	case KindFloat:
		return v.F, true
	case KindInt:
		return float64(v.I), true
	case KindBool:
		if v.B {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// DataPoint is a single sample: an addressable point id, its type, value and
// the unix-millisecond timestamp it was read at.
type DataPoint struct {
	ID          uint32
	DataType    PointType
	Value       PointValue
	TimestampMs int64
}

// DataBatch is the ordered output of a single poll_once() call. Points within
// a batch may be freely reordered within one (channel, point-type) group.
type DataBatch struct {
	ChannelID uint32
	Points    []DataPoint
}

// ChannelPointUpdate is the unit the batch router operates on: one
// transformed point value plus enough provenance to route and, if needed,
// cascade it.
type ChannelPointUpdate struct {
	ChannelID    uint32
	PointType    PointType
	PointID      uint32
	Value        float64
	RawValue     *float64
	CascadeDepth uint8
}

// RawOrValue returns RawValue if present, else Value -- the "raw or value"
// fallback readers and the 3-layer writer both rely on.
func (u ChannelPointUpdate) RawOrValue() float64 {
	if u.RawValue != nil {
		return *u.RawValue
	}
	return u.Value
}
