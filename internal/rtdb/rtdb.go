// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package rtdb defines the uniform key/value/hash/list/set surface every
// real-time-database backend must implement (spec §4.2). Two backends ship:
// memstore (in-process, deterministic, used in tests and standalone
// deployments) and redisstore (a real network RTDB). The core never
// downcasts to a concrete backend.
package rtdb

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("rtdb: key or field not found")

// HashField is one (field, value) pair used by the multi-field hash
// operations.
type HashField struct {
	Field string
	Value []byte
}

// DB is the uniform surface every RTDB backend implements. All operations
// are context-aware so callers can enforce the per-op timeouts spec §5
// mandates.
type DB interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Del(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	IncrByFloat(ctx context.Context, key string, delta float64) (float64, error)

	HashSet(ctx context.Context, key, field string, value []byte) error
	HashMSet(ctx context.Context, key string, fields []HashField) error
	HashGet(ctx context.Context, key, field string) ([]byte, error)
	HashMGet(ctx context.Context, key string, fields []string) ([][]byte, error)
	HashGetAll(ctx context.Context, key string) (map[string][]byte, error)
	HashDel(ctx context.Context, key, field string) error
	HashDelMany(ctx context.Context, key string, fields []string) error
	HashIncrBy(ctx context.Context, key, field string, delta int64) (int64, error)

	ListLPush(ctx context.Context, key string, values ...[]byte) error
	ListRPush(ctx context.Context, key string, values ...[]byte) error
	ListLPop(ctx context.Context, key string) ([]byte, error)
	ListRPop(ctx context.Context, key string) ([]byte, error)
	ListRange(ctx context.Context, key string, start, stop int64) ([][]byte, error)
	ListTrim(ctx context.Context, key string, start, stop int64) error
	// ListBLPop blocks on the first non-empty of keys. timeout==0 blocks
	// indefinitely (until ctx is cancelled). Returns the key that produced
	// the value and the value itself.
	ListBLPop(ctx context.Context, timeout time.Duration, keys ...string) (key string, value []byte, err error)

	SAdd(ctx context.Context, key string, members ...string) error
	SRem(ctx context.Context, key string, members ...string) error
	SMembers(ctx context.Context, key string) ([]string, error)

	ScanMatch(ctx context.Context, pattern string) ([]string, error)

	// PipelineHashMSet batches multiple HashMSet calls into one round trip.
	PipelineHashMSet(ctx context.Context, ops map[string][]HashField) error

	Close() error
}
