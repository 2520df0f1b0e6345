// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package keyspace is the pure, total mapping from (channel, point-type) and
// (instance) identifiers to the canonical RTDB keys. It is the wire-level
// schema shared with every downstream consumer of the RTDB -- nothing here
// should ever depend on component state.
package keyspace

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fieldmesh/comsrv/internal/points"
)

// ChannelHash returns the hash key holding a channel's points of one type:
// "comsrv:{channel_id}:{type_letter}".
func ChannelHash(channelID uint32, t points.PointType) string {
	return fmt.Sprintf("comsrv:%d:%s", channelID, t.Letter())
}

// InstanceMeasurementHash returns "inst:{instance_id}:M".
func InstanceMeasurementHash(instanceID uint16) string {
	return fmt.Sprintf("inst:%d:M", instanceID)
}

// InstanceActionHash returns "inst:{instance_id}:A".
func InstanceActionHash(instanceID uint16) string {
	return fmt.Sprintf("inst:%d:A", instanceID)
}

// ControlTodoQueue returns "comsrv:{channel_id}:C:TODO".
func ControlTodoQueue(channelID uint32) string {
	return fmt.Sprintf("comsrv:%d:C:TODO", channelID)
}

// AdjustmentTodoQueue returns "comsrv:{channel_id}:A:TODO".
func AdjustmentTodoQueue(channelID uint32) string {
	return fmt.Sprintf("comsrv:%d:A:TODO", channelID)
}

// TodoQueue picks the right TODO queue key for a point type; only Control
// and Adjustment have queues.
func TodoQueue(channelID uint32, t points.PointType) (string, error) {
	switch t {
	case points.Control:
		return ControlTodoQueue(channelID), nil
	case points.Adjustment:
		return AdjustmentTodoQueue(channelID), nil
	default:
		return "", fmt.Errorf("keyspace: point type %s has no TODO queue", t)
	}
}

// ValueField returns the hash field holding a point's value: "{p}".
func ValueField(pointID uint32) string { return strconv.FormatUint(uint64(pointID), 10) }

// TimestampField returns the hash field holding a point's timestamp: "ts:{p}".
func TimestampField(pointID uint32) string { return "ts:" + ValueField(pointID) }

// RawField returns the hash field holding a point's pre-transform raw value:
// "raw:{p}".
func RawField(pointID uint32) string { return "raw:" + ValueField(pointID) }

// InstanceField returns the field within an instance hash: "{point_id}".
func InstanceField(pointID uint32) string { return ValueField(pointID) }

// RouteKey builds the routing cache lookup key "{channel_id}:{type_letter}:{point_id}".
func RouteKey(channelID uint32, t points.PointType, pointID uint32) string {
	return fmt.Sprintf("%d:%s:%d", channelID, t.Letter(), pointID)
}

// ParseRouteKey is the inverse of RouteKey, used by configuration loaders
// that build the routing cache from a flat key list.
func ParseRouteKey(key string) (channelID uint32, t points.PointType, pointID uint32, err error) {
	parts := strings.SplitN(key, ":", 3)
	if len(parts) != 3 {
		return 0, 0, 0, fmt.Errorf("keyspace: malformed route key %q", key)
	}
	ch, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("keyspace: malformed route key %q: %w", key, err)
	}
	pt, err := points.ParsePointType(parts[1])
	if err != nil {
		return 0, 0, 0, fmt.Errorf("keyspace: malformed route key %q: %w", key, err)
	}
	pid, err := strconv.ParseUint(parts[2], 10, 32)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("keyspace: malformed route key %q: %w", key, err)
	}
	return uint32(ch), pt, uint32(pid), nil
}

// ChannelHashPattern returns the scan_match glob for every point-hash of a
// channel, across all four point types: "comsrv:{channel_id}:*".
func ChannelHashPattern(channelID uint32) string {
	return fmt.Sprintf("comsrv:%d:*", channelID)
}
