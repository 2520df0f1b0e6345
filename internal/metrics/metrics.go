// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package metrics exposes the Prometheus counters/gauges the data plane's
// hot-path components report through, wired via router.Hooks,
// transform.Registry.Stats, rtdb.WriteBuffer.Stats, and per-attempt calls
// from channelrt.Runtime's connect path.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	channelWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "comsrv_channel_writes_total",
			Help: "Total 3-layer channel hash field writes issued by the batch router",
		},
		[]string{"channel_id", "point_type"},
	)

	c2mWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "comsrv_c2m_writes_total",
			Help: "Total instance measurement hash fields written by C2M routing",
		},
		[]string{"instance_id"},
	)

	c2cForwardsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "comsrv_c2c_forwards_total",
			Help: "Total channel-to-channel cascade forwards produced",
		},
	)

	cascadeDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "comsrv_cascade_dropped_total",
			Help: "Total C2C forwards suppressed by the cascade-depth bound",
		},
	)

	transformerRegistrySize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "comsrv_transformer_registry_size",
			Help: "Number of loaded point transformers by type letter",
		},
		[]string{"point_type"},
	)

	// transformerRegistryLookups mirrors transform.Registry's own cumulative
	// counters (a Gauge, not a Counter: Stats() already reports the running
	// total, so reporting sets the absolute value rather than re-adding it
	// on every scrape).
	transformerRegistryLookups = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "comsrv_transformer_registry_lookups_total",
			Help: "Transformer registry cumulative lookups by outcome",
		},
		[]string{"outcome"}, // hit, miss, degraded
	)

	writeBufferFlushesTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "comsrv_write_buffer_flushes_total",
			Help: "Cumulative successful write buffer flushes",
		},
	)

	writeBufferDroppedTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "comsrv_write_buffer_dropped_fields_total",
			Help: "Cumulative hash fields dropped after exhausting write buffer flush retries",
		},
	)

	reconnectAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "comsrv_reconnect_attempts_total",
			Help: "Reconnect attempts by outcome",
		},
		[]string{"channel_id", "outcome"}, // success, failure
	)
)

// RecordChannelWrite reports a batch router channel-hash write.
func RecordChannelWrite(channelID string, pointType string, n int) {
	channelWritesTotal.WithLabelValues(channelID, pointType).Add(float64(n))
}

// RecordC2MWrite reports one instance-hash write carrying n fields; the
// counter grows by n.
func RecordC2MWrite(instanceID string, n int) {
	c2mWritesTotal.WithLabelValues(instanceID).Add(float64(n))
}

// RecordC2CForward reports n new cascade forwards produced in one call.
func RecordC2CForward(n int) {
	c2cForwardsTotal.Add(float64(n))
}

// RecordCascadeDropped reports one forward suppressed by the depth bound.
func RecordCascadeDropped() {
	cascadeDroppedTotal.Inc()
}

// RegistryStats is the subset of transform.Stats this package reports,
// kept decoupled from internal/transform's concrete type so metrics has no
// import-time dependency on it.
type RegistryStats struct {
	ByType      map[string]int
	Hits        uint64
	Misses      uint64
	DegradedHit uint64
}

func RecordRegistryStats(s RegistryStats) {
	for t, n := range s.ByType {
		transformerRegistrySize.WithLabelValues(t).Set(float64(n))
	}
	transformerRegistryLookups.WithLabelValues("hit").Set(float64(s.Hits))
	transformerRegistryLookups.WithLabelValues("miss").Set(float64(s.Misses))
	transformerRegistryLookups.WithLabelValues("degraded").Set(float64(s.DegradedHit))
}

// WriteBufferStats mirrors rtdb.BufferStats.
type WriteBufferStats struct {
	Flushes uint64
	Dropped uint64
}

func RecordWriteBufferStats(s WriteBufferStats) {
	writeBufferFlushesTotal.Set(float64(s.Flushes))
	writeBufferDroppedTotal.Set(float64(s.Dropped))
}

// RecordReconnectAttempt reports one reconnect outcome for a channel.
func RecordReconnectAttempt(channelID string, success bool) {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	reconnectAttemptsTotal.WithLabelValues(channelID, outcome).Inc()
}
