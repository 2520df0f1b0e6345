// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rtdb

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyDB implements just enough of DB to drive WriteBuffer.Flush: it fails
// the first failAttempts calls to PipelineHashMSet, then succeeds.
type flakyDB struct {
	DB
	failAttempts int32
	calls        atomic.Int32
	lastOps      atomic.Pointer[map[string][]HashField]
}

func (f *flakyDB) PipelineHashMSet(_ context.Context, ops map[string][]HashField) error {
	n := f.calls.Add(1)
	cp := make(map[string][]HashField, len(ops))
	for k, v := range ops {
		cp[k] = v
	}
	f.lastOps.Store(&cp)
	if n <= f.failAttempts {
		return errors.New("boom")
	}
	return nil
}

func TestFlush_NoPendingIsNoOp(t *testing.T) {
	db := &flakyDB{}
	wb := &WriteBuffer{db: db, cfg: DefaultBufferConfig(), pending: make(map[string][]HashField)}
	wb.Flush(context.Background())
	assert.Equal(t, int32(0), db.calls.Load())
	assert.Equal(t, BufferStats{}, wb.Stats())
}

func TestFlush_SucceedsAfterRetries(t *testing.T) {
	db := &flakyDB{failAttempts: 2}
	cfg := DefaultBufferConfig()
	cfg.MaxRetries = 3
	wb := &WriteBuffer{db: db, cfg: cfg, pending: make(map[string][]HashField)}
	wb.BufferHashMSet("k1", []HashField{{Field: "f1", Value: []byte("v1")}})

	wb.Flush(context.Background())

	assert.Equal(t, int32(3), db.calls.Load())
	stats := wb.Stats()
	assert.Equal(t, uint64(1), stats.Flushes)
	assert.Equal(t, uint64(0), stats.Dropped)
}

func TestFlush_DropsAfterExhaustingRetries(t *testing.T) {
	db := &flakyDB{failAttempts: 100}
	cfg := DefaultBufferConfig()
	cfg.MaxRetries = 2
	wb := &WriteBuffer{db: db, cfg: cfg, pending: make(map[string][]HashField)}
	wb.BufferHashMSet("k1", []HashField{{Field: "f1", Value: []byte("v1")}, {Field: "f2", Value: []byte("v2")}})

	wb.Flush(context.Background())

	assert.Equal(t, int32(3), db.calls.Load(), "one initial attempt plus MaxRetries retries")
	stats := wb.Stats()
	assert.Equal(t, uint64(0), stats.Flushes)
	assert.Equal(t, uint64(2), stats.Dropped)
}

// TestFlush_AbortsImmediatelyOnCancellationDuringBackoff guards against the
// select-in-for-loop pitfall: a bare break inside the select only exits the
// select, not the retry loop, which previously caused Flush to keep calling
// PipelineHashMSet with an already-cancelled ctx instead of aborting.
func TestFlush_AbortsImmediatelyOnCancellationDuringBackoff(t *testing.T) {
	db := &flakyDB{failAttempts: 100}
	cfg := DefaultBufferConfig()
	cfg.MaxRetries = 10
	wb := &WriteBuffer{db: db, cfg: cfg, pending: make(map[string][]HashField)}
	wb.BufferHashMSet("k1", []HashField{{Field: "f1", Value: []byte("v1")}})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		wb.Flush(ctx)
		close(done)
	}()

	// Let the first (immediate) attempt fail, then cancel while the loop is
	// backed off waiting for the second attempt.
	time.Sleep(5 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Flush did not return promptly after context cancellation during backoff")
	}

	assert.LessOrEqual(t, db.calls.Load(), int32(2), "retry loop must abort on ctx.Done instead of retrying through every remaining attempt")
	stats := wb.Stats()
	assert.Equal(t, uint64(1), stats.Dropped)
}

func TestBufferHashMSet_CoalescesFieldsForSameKey(t *testing.T) {
	db := &flakyDB{}
	wb := &WriteBuffer{db: db, cfg: DefaultBufferConfig(), pending: make(map[string][]HashField)}

	wb.BufferHashMSet("k1", []HashField{{Field: "f1", Value: []byte("1")}})
	wb.BufferHashMSet("k1", []HashField{{Field: "f1", Value: []byte("2")}})

	wb.Flush(context.Background())

	ops := db.lastOps.Load()
	require.NotNil(t, ops)
	fields := (*ops)["k1"]
	require.Len(t, fields, 2)
	assert.Equal(t, "2", string(fields[1].Value))
}

func TestBufferHashMSet_OverflowTriggersSynchronousFlush(t *testing.T) {
	db := &flakyDB{}
	cfg := DefaultBufferConfig()
	cfg.MaxQueue = 2
	wb := &WriteBuffer{db: db, cfg: cfg, pending: make(map[string][]HashField)}

	wb.BufferHashMSet("k1", []HashField{{Field: "f1", Value: []byte("1")}, {Field: "f2", Value: []byte("2")}})

	assert.Equal(t, int32(1), db.calls.Load())
	assert.Equal(t, uint64(1), wb.Stats().Flushes)
}
