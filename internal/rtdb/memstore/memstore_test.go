// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldmesh/comsrv/internal/rtdb"
)

func TestGetSetDel(t *testing.T) {
	s := New()
	ctx := context.Background()

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, rtdb.ErrNotFound)

	require.NoError(t, s.Set(ctx, "k", []byte("v")))
	v, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", string(v))

	require.NoError(t, s.Del(ctx, "k"))
	_, err = s.Get(ctx, "k")
	assert.ErrorIs(t, err, rtdb.ErrNotFound)
}

func TestIncrByFloat_AbsentKeyStartsAtZero(t *testing.T) {
	s := New()
	ctx := context.Background()
	v, err := s.IncrByFloat(ctx, "counter", 1.5)
	require.NoError(t, err)
	assert.Equal(t, 1.5, v)

	v, err = s.IncrByFloat(ctx, "counter", 2.5)
	require.NoError(t, err)
	assert.Equal(t, 4.0, v)
}

func TestHashMSet_CoalescesLastWriterWins(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.HashMSet(ctx, "h", []rtdb.HashField{
		{Field: "f1", Value: []byte("1")},
		{Field: "f1", Value: []byte("2")},
		{Field: "f2", Value: []byte("a")},
	}))

	v, err := s.HashGet(ctx, "h", "f1")
	require.NoError(t, err)
	assert.Equal(t, "2", string(v))

	all, err := s.HashGetAll(ctx, "h")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestHashMGet_MissingFieldsReturnNilSlots(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.HashSet(ctx, "h", "f1", []byte("v1")))

	vals, err := s.HashMGet(ctx, "h", []string{"f1", "f2"})
	require.NoError(t, err)
	require.Len(t, vals, 2)
	assert.Equal(t, "v1", string(vals[0]))
	assert.Nil(t, vals[1])
}

func TestHashIncrBy(t *testing.T) {
	s := New()
	ctx := context.Background()
	v, err := s.HashIncrBy(ctx, "h", "f", 5)
	require.NoError(t, err)
	assert.Equal(t, int64(5), v)

	v, err = s.HashIncrBy(ctx, "h", "f", -2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), v)
}

func TestListLPushRPushPopOrdering(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.ListRPush(ctx, "l", []byte("a"), []byte("b")))
	require.NoError(t, s.ListLPush(ctx, "l", []byte("z")))

	v, err := s.ListLPop(ctx, "l")
	require.NoError(t, err)
	assert.Equal(t, "z", string(v))

	v, err = s.ListRPop(ctx, "l")
	require.NoError(t, err)
	assert.Equal(t, "b", string(v))
}

func TestListRangeAndTrim_NegativeIndices(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.ListRPush(ctx, "l", []byte("a"), []byte("b"), []byte("c"), []byte("d")))

	vals, err := s.ListRange(ctx, "l", -2, -1)
	require.NoError(t, err)
	require.Len(t, vals, 2)
	assert.Equal(t, "c", string(vals[0]))
	assert.Equal(t, "d", string(vals[1]))

	require.NoError(t, s.ListTrim(ctx, "l", 0, 1))
	vals, err = s.ListRange(ctx, "l", 0, -1)
	require.NoError(t, err)
	require.Len(t, vals, 2)
	assert.Equal(t, "a", string(vals[0]))
	assert.Equal(t, "b", string(vals[1]))
}

func TestListBLPop_UnblocksOnPush(t *testing.T) {
	s := New()
	ctx := context.Background()

	type result struct {
		key string
		val []byte
		err error
	}
	done := make(chan result, 1)
	go func() {
		k, v, err := s.ListBLPop(ctx, time.Second, "q1", "q2")
		done <- result{k, v, err}
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, s.ListRPush(ctx, "q2", []byte("payload")))

	select {
	case r := <-done:
		require.NoError(t, r.err)
		assert.Equal(t, "q2", r.key)
		assert.Equal(t, "payload", string(r.val))
	case <-time.After(time.Second):
		t.Fatal("ListBLPop did not unblock after push")
	}
}

func TestListBLPop_CancelledContext(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, _, err := s.ListBLPop(ctx, 0, "q1")
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("ListBLPop did not return after context cancellation")
	}
}

func TestSAddSRemSMembers_SortedOutput(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.SAdd(ctx, "s", "b", "a", "c"))
	members, err := s.SMembers(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, members)

	require.NoError(t, s.SRem(ctx, "s", "b"))
	members, err = s.SMembers(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, members)
}

func TestScanMatch_GlobAcrossAllBuckets(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "chan:1:T", []byte("x")))
	require.NoError(t, s.HashSet(ctx, "chan:2:T", "f", []byte("x")))
	require.NoError(t, s.ListRPush(ctx, "other:1", []byte("x")))

	keys, err := s.ScanMatch(ctx, "chan:*")
	require.NoError(t, err)
	assert.Equal(t, []string{"chan:1:T", "chan:2:T"}, keys)
}

func TestPipelineHashMSet_AppliesAllKeys(t *testing.T) {
	s := New()
	ctx := context.Background()
	err := s.PipelineHashMSet(ctx, map[string][]rtdb.HashField{
		"h1": {{Field: "f", Value: []byte("1")}},
		"h2": {{Field: "f", Value: []byte("2")}},
	})
	require.NoError(t, err)

	v1, err := s.HashGet(ctx, "h1", "f")
	require.NoError(t, err)
	assert.Equal(t, "1", string(v1))
	v2, err := s.HashGet(ctx, "h2", "f")
	require.NoError(t, err)
	assert.Equal(t, "2", string(v2))
}

func TestExists(t *testing.T) {
	s := New()
	ctx := context.Background()
	ok, err := s.Exists(ctx, "nope")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.ListRPush(ctx, "l", []byte("x")))
	ok, err = s.Exists(ctx, "l")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDump_IsDeterministic(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.HashSet(ctx, "h", "b", []byte("2")))
	require.NoError(t, s.HashSet(ctx, "h", "a", []byte("1")))

	assert.Equal(t, s.Dump(), s.Dump())
	assert.Contains(t, s.Dump(), "a=1")
	assert.Contains(t, s.Dump(), "b=2")
}
