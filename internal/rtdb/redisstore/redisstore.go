// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package redisstore is the "remote backend" for internal/rtdb.DB, backed by
// a real network RTDB. Redis's native hash/list/set commands map almost
// directly onto the required surface: HSET/HMGET map onto the per-point
// 3-layer hash writes, RPUSH/LPOP onto the control/adjustment TODO queues, and
// pipelines onto PipelineHashMSet.
package redisstore

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fieldmesh/comsrv/internal/rtdb"
)

// Store wraps a *redis.Client to satisfy internal/rtdb.DB.
type Store struct {
	client *redis.Client
}

// Config carries the connection parameters passed to redis.Options. TLS and
// pool settings are not exposed here and keep go-redis defaults.
type Config struct {
	Addr     string
	Username string
	Password string
	DB       int
}

func New(cfg Config) *Store {
	return &Store{client: redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})}
}

var _ rtdb.DB = (*Store)(nil)

func wrapNotFound(err error) error {
	if errors.Is(err, redis.Nil) {
		return rtdb.ErrNotFound
	}
	return err
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := s.client.Get(ctx, key).Bytes()
	return b, wrapNotFound(err)
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	return s.client.Set(ctx, key, value, 0).Err()
}

func (s *Store) Del(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, key).Result()
	return n > 0, err
}

func (s *Store) IncrByFloat(ctx context.Context, key string, delta float64) (float64, error) {
	return s.client.IncrByFloat(ctx, key, delta).Result()
}

func (s *Store) HashSet(ctx context.Context, key, field string, value []byte) error {
	return s.client.HSet(ctx, key, field, value).Err()
}

func (s *Store) HashMSet(ctx context.Context, key string, fields []rtdb.HashField) error {
	if len(fields) == 0 {
		return nil
	}
	args := make([]interface{}, 0, len(fields)*2)
	for _, f := range fields {
		args = append(args, f.Field, f.Value)
	}
	return s.client.HSet(ctx, key, args...).Err()
}

func (s *Store) HashGet(ctx context.Context, key, field string) ([]byte, error) {
	b, err := s.client.HGet(ctx, key, field).Bytes()
	return b, wrapNotFound(err)
}

func (s *Store) HashMGet(ctx context.Context, key string, fields []string) ([][]byte, error) {
	vals, err := s.client.HMGet(ctx, key, fields...).Result()
	if err != nil {
		return nil, err
	}
	out := make([][]byte, len(vals))
	for i, v := range vals {
		if v == nil {
			continue
		}
		if str, ok := v.(string); ok {
			out[i] = []byte(str)
		}
	}
	return out, nil
}

func (s *Store) HashGetAll(ctx context.Context, key string) (map[string][]byte, error) {
	m, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string][]byte, len(m))
	for k, v := range m {
		out[k] = []byte(v)
	}
	return out, nil
}

func (s *Store) HashDel(ctx context.Context, key, field string) error {
	return s.client.HDel(ctx, key, field).Err()
}

func (s *Store) HashDelMany(ctx context.Context, key string, fields []string) error {
	if len(fields) == 0 {
		return nil
	}
	return s.client.HDel(ctx, key, fields...).Err()
}

func (s *Store) HashIncrBy(ctx context.Context, key, field string, delta int64) (int64, error) {
	return s.client.HIncrBy(ctx, key, field, delta).Result()
}

func (s *Store) ListLPush(ctx context.Context, key string, values ...[]byte) error {
	return s.client.LPush(ctx, key, toArgs(values)...).Err()
}

func (s *Store) ListRPush(ctx context.Context, key string, values ...[]byte) error {
	return s.client.RPush(ctx, key, toArgs(values)...).Err()
}

func toArgs(values [][]byte) []interface{} {
	args := make([]interface{}, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}

func (s *Store) ListLPop(ctx context.Context, key string) ([]byte, error) {
	b, err := s.client.LPop(ctx, key).Bytes()
	return b, wrapNotFound(err)
}

func (s *Store) ListRPop(ctx context.Context, key string) ([]byte, error) {
	b, err := s.client.RPop(ctx, key).Bytes()
	return b, wrapNotFound(err)
}

func (s *Store) ListRange(ctx context.Context, key string, start, stop int64) ([][]byte, error) {
	vals, err := s.client.LRange(ctx, key, start, stop).Result()
	if err != nil {
		return nil, err
	}
	out := make([][]byte, len(vals))
	for i, v := range vals {
		out[i] = []byte(v)
	}
	return out, nil
}

func (s *Store) ListTrim(ctx context.Context, key string, start, stop int64) error {
	return s.client.LTrim(ctx, key, start, stop).Err()
}

// ListBLPop blocks across keys. timeout==0 blocks indefinitely (go-redis
// convention matches the spec's).
func (s *Store) ListBLPop(ctx context.Context, timeout time.Duration, keys ...string) (string, []byte, error) {
	res, err := s.client.BLPop(ctx, timeout, keys...).Result()
	if err != nil {
		return "", nil, wrapNotFound(err)
	}
	// BLPop returns [key, value].
	if len(res) != 2 {
		return "", nil, rtdb.ErrNotFound
	}
	return res[0], []byte(res[1]), nil
}

func (s *Store) SAdd(ctx context.Context, key string, members ...string) error {
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	return s.client.SAdd(ctx, key, args...).Err()
}

func (s *Store) SRem(ctx context.Context, key string, members ...string) error {
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	return s.client.SRem(ctx, key, args...).Err()
}

func (s *Store) SMembers(ctx context.Context, key string) ([]string, error) {
	return s.client.SMembers(ctx, key).Result()
}

func (s *Store) ScanMatch(ctx context.Context, pattern string) ([]string, error) {
	var out []string
	iter := s.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		out = append(out, iter.Val())
	}
	return out, iter.Err()
}

// PipelineHashMSet batches per-key HSET calls into a single pipelined round
// trip, the direct analogue of the write buffer's flush-time optimization.
func (s *Store) PipelineHashMSet(ctx context.Context, ops map[string][]rtdb.HashField) error {
	if len(ops) == 0 {
		return nil
	}
	pipe := s.client.Pipeline()
	for key, fields := range ops {
		if len(fields) == 0 {
			continue
		}
		args := make([]interface{}, 0, len(fields)*2)
		for _, f := range fields {
			args = append(args, f.Field, f.Value)
		}
		pipe.HSet(ctx, key, args...)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (s *Store) Close() error {
	return s.client.Close()
}
