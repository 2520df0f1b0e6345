// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rtdb

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/fieldmesh/comsrv/pkg/log"
)

var bufLog = log.Component("WRITEBUFFER")

// BufferConfig controls flush cadence and backpressure.
type BufferConfig struct {
	FlushInterval time.Duration
	MaxQueue      int
	MaxRetries    int
}

func DefaultBufferConfig() BufferConfig {
	return BufferConfig{
		FlushInterval: 50 * time.Millisecond,
		MaxQueue:      10000,
		MaxRetries:    3,
	}
}

// WriteBuffer coalesces pending hash writes in memory, keyed by target key
// so that successive HashMSet calls on the same key merge their field
// lists (last field value wins), and flushes them in the background via
// PipelineHashMSet. It is the buffered-mode backend for the Batch Router.
type WriteBuffer struct {
	db  DB
	cfg BufferConfig

	mu      sync.Mutex
	pending map[string][]HashField
	order   []string // key insertion order, for diagnostics only
	queued  int

	sched   gocron.Scheduler
	job     gocron.Job
	dropped atomic.Uint64
	flushes atomic.Uint64
}

// NewWriteBuffer creates and starts the background flush scheduler. Call
// Close to stop it and perform a final best-effort drain.
func NewWriteBuffer(db DB, cfg BufferConfig) (*WriteBuffer, error) {
	wb := &WriteBuffer{
		db:      db,
		cfg:     cfg,
		pending: make(map[string][]HashField),
	}

	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	wb.sched = s

	job, err := s.NewJob(
		gocron.DurationJob(cfg.FlushInterval),
		gocron.NewTask(func() { wb.Flush(context.Background()) }),
	)
	if err != nil {
		return nil, err
	}
	wb.job = job
	s.Start()
	return wb, nil
}

// BufferHashMSet enqueues a coalesced hash write. Once the number of queued
// fields reaches MaxQueue it flushes synchronously after enqueuing, to bound
// memory rather than silently drop.
func (wb *WriteBuffer) BufferHashMSet(key string, fields []HashField) {
	wb.mu.Lock()
	if _, exists := wb.pending[key]; !exists {
		wb.order = append(wb.order, key)
	}
	wb.pending[key] = append(wb.pending[key], fields...)
	wb.queued += len(fields)
	overflowing := wb.queued >= wb.cfg.MaxQueue
	wb.mu.Unlock()

	if overflowing {
		wb.Flush(context.Background())
	}
}

// Flush drains the current pending set and writes it via PipelineHashMSet,
// retrying with exponential backoff up to MaxRetries before dropping and
// incrementing the drop counter.
func (wb *WriteBuffer) Flush(ctx context.Context) {
	wb.mu.Lock()
	if len(wb.pending) == 0 {
		wb.mu.Unlock()
		return
	}
	ops := wb.pending
	wb.pending = make(map[string][]HashField)
	wb.order = nil
	wb.queued = 0
	wb.mu.Unlock()

	backoff := 10 * time.Millisecond
	var err error
retryLoop:
	for attempt := 0; attempt <= wb.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				err = ctx.Err()
				break retryLoop
			case <-time.After(backoff):
			}
			backoff *= 2
		}
		err = wb.db.PipelineHashMSet(ctx, ops)
		if err == nil {
			wb.flushes.Add(1)
			return
		}
		bufLog.Warnf("flush attempt %d/%d failed: %v", attempt+1, wb.cfg.MaxRetries+1, err)
	}

	n := 0
	for _, fs := range ops {
		n += len(fs)
	}
	wb.dropped.Add(uint64(n))
	bufLog.Errorf("dropped %d fields across %d keys after %d retries: %v", n, len(ops), wb.cfg.MaxRetries, err)
}

// Stats reports cumulative flush/drop counters for metrics export.
type BufferStats struct {
	Flushes uint64
	Dropped uint64
}

func (wb *WriteBuffer) Stats() BufferStats {
	return BufferStats{Flushes: wb.flushes.Load(), Dropped: wb.dropped.Load()}
}

// Close stops the periodic scheduler and performs one final best-effort
// drain, bounded by a 2s budget per the shutdown design in spec §5.
func (wb *WriteBuffer) Close() error {
	err := wb.sched.Shutdown()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	wb.Flush(ctx)
	return err
}
