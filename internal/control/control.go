// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package control implements the Control/Adjustment Path (spec §4.8): the
// API-facing side that normalizes a point-type alias, rejects anything that
// isn't Control or Adjustment, and pushes the encoded command onto the
// channel's TODO queue for the Channel Runtime to drain. The payload carries
// the point id, the value and a correlation id; the Channel Runtime decodes
// the point id and value to issue the protocol write.
package control

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/fieldmesh/comsrv/internal/keyspace"
	"github.com/fieldmesh/comsrv/internal/points"
	"github.com/fieldmesh/comsrv/internal/rtdb"
	"github.com/fieldmesh/comsrv/pkg/log"
)

var logger = log.Component("CONTROL")

// Request is one inbound write: a channel, a point-type alias as received
// from the API (any of points.ParsePointType's accepted spellings), a point
// id, and the engineering value to write.
type Request struct {
	ChannelID uint32
	TypeAlias string
	PointID   uint32
	Value     float64
}

// command is the JSON payload pushed onto the TODO queue. The Channel
// Runtime reads point_id and value back from it; the correlation id travels
// with the command for tracing and is not acted on by the core.
type command struct {
	CorrelationID string  `json:"correlation_id"`
	PointID       uint32  `json:"point_id"`
	Value         float64 `json:"value"`
}

// PointError is one failed point within a batch report.
type PointError struct {
	PointID uint32 `json:"point_id"`
	Error   string `json:"error"`
}

// Report is the partial-success batch result spec §4.8 and §7 require.
type Report struct {
	Total     int          `json:"total"`
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
	Errors    []PointError `json:"errors"`
}

// Dispatcher pushes normalized control/adjustment commands onto RTDB TODO
// queues.
type Dispatcher struct {
	db rtdb.DB
}

func New(db rtdb.DB) *Dispatcher {
	return &Dispatcher{db: db}
}

// Dispatch handles one write: normalizes the type alias, rejects anything
// other than Control/Adjustment (those are the only point types with a
// TODO queue), stamps a correlation id, and right-pushes the encoded
// command. Returns the correlation id on success so the caller can
// correlate a later status report.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (correlationID string, err error) {
	t, err := points.ParsePointType(req.TypeAlias)
	if err != nil {
		return "", fmt.Errorf("control: %w", err)
	}
	if t != points.Control && t != points.Adjustment {
		return "", fmt.Errorf("control: point type %s has no TODO queue", t)
	}

	queueKey, err := keyspace.TodoQueue(req.ChannelID, t)
	if err != nil {
		return "", fmt.Errorf("control: %w", err)
	}

	id := uuid.New().String()
	payload, err := json.Marshal(command{CorrelationID: id, PointID: req.PointID, Value: req.Value})
	if err != nil {
		return "", fmt.Errorf("control: encode command: %w", err)
	}

	if err := d.db.ListRPush(ctx, queueKey, payload); err != nil {
		return "", fmt.Errorf("control: enqueue: %w", err)
	}
	logger.Infof("enqueued %s command channel=%d point=%d correlation=%s", t, req.ChannelID, req.PointID, id)
	return id, nil
}

// DispatchBatch applies Dispatch to each request, aggregating a partial
// success report per spec §7 -- one request's failure never aborts the
// others.
func (d *Dispatcher) DispatchBatch(ctx context.Context, reqs []Request) Report {
	report := Report{Total: len(reqs)}
	for _, req := range reqs {
		if _, err := d.Dispatch(ctx, req); err != nil {
			report.Failed++
			report.Errors = append(report.Errors, PointError{PointID: req.PointID, Error: err.Error()})
			continue
		}
		report.Succeeded++
	}
	return report
}
