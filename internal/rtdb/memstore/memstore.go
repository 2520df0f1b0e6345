// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package memstore is the in-memory RTDB backend: deterministic,
// single-process, used in tests and standalone deployments. It implements
// internal/rtdb.DB with one coarse-grained RWMutex guarding a handful of
// typed maps, following the teacher's Level-tree locking style (allow
// concurrent reads, take the write lock only to mutate a bucket).
package memstore

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fieldmesh/comsrv/internal/rtdb"
)

// Store is an in-memory DB implementation.
type Store struct {
	mu     sync.RWMutex
	scalar map[string][]byte
	hashes map[string]map[string][]byte
	lists  map[string][][]byte
	sets   map[string]map[string]struct{}

	// blpopCond is broadcast whenever any list is pushed to, so blocked
	// ListBLPop callers can re-check their key set.
	blpopCond *sync.Cond
}

func New() *Store {
	s := &Store{
		scalar: make(map[string][]byte),
		hashes: make(map[string]map[string][]byte),
		lists:  make(map[string][][]byte),
		sets:   make(map[string]map[string]struct{}),
	}
	s.blpopCond = sync.NewCond(&s.mu)
	return s
}

var _ rtdb.DB = (*Store)(nil)

func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.scalar[key]
	if !ok {
		return nil, rtdb.ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (s *Store) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scalar[key] = append([]byte(nil), value...)
	return nil
}

func (s *Store) Del(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.scalar, key)
	delete(s.hashes, key)
	delete(s.lists, key)
	delete(s.sets, key)
	return nil
}

func (s *Store) Exists(_ context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.scalar[key]; ok {
		return true, nil
	}
	if _, ok := s.hashes[key]; ok {
		return true, nil
	}
	if _, ok := s.lists[key]; ok {
		return true, nil
	}
	if _, ok := s.sets[key]; ok {
		return true, nil
	}
	return false, nil
}

// IncrByFloat treats a non-numeric or absent current value as 0, per the
// spec's documented backend-quality-of-implementation ambiguity -- this
// backend chooses silent-zero.
func (s *Store) IncrByFloat(_ context.Context, key string, delta float64) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := parseFloatOrZero(s.scalar[key])
	cur += delta
	s.scalar[key] = []byte(strconv.FormatFloat(cur, 'f', -1, 64))
	return cur, nil
}

func parseFloatOrZero(b []byte) float64 {
	if len(b) == 0 {
		return 0
	}
	f, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return 0
	}
	return f
}

func parseIntOrZero(b []byte) int64 {
	if len(b) == 0 {
		return 0
	}
	i, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return 0
	}
	return i
}

func (s *Store) hashBucket(key string) map[string][]byte {
	h, ok := s.hashes[key]
	if !ok {
		h = make(map[string][]byte)
		s.hashes[key] = h
	}
	return h
}

func (s *Store) HashSet(_ context.Context, key, field string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hashBucket(key)[field] = append([]byte(nil), value...)
	return nil
}

// HashMSet coalesces the field list in insertion order, last-writer-wins per
// field within the call, matching the spec's "successive HashMSet on the
// same key coalesce their field lists" write-buffer contract.
func (s *Store) HashMSet(_ context.Context, key string, fields []rtdb.HashField) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.hashBucket(key)
	for _, f := range fields {
		h[f.Field] = append([]byte(nil), f.Value...)
	}
	return nil
}

func (s *Store) HashGet(_ context.Context, key, field string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.hashes[key]
	if !ok {
		return nil, rtdb.ErrNotFound
	}
	v, ok := h[field]
	if !ok {
		return nil, rtdb.ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (s *Store) HashMGet(_ context.Context, key string, fields []string) ([][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h := s.hashes[key]
	out := make([][]byte, len(fields))
	for i, f := range fields {
		if v, ok := h[f]; ok {
			out[i] = append([]byte(nil), v...)
		}
	}
	return out, nil
}

func (s *Store) HashGetAll(_ context.Context, key string) (map[string][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h := s.hashes[key]
	out := make(map[string][]byte, len(h))
	for k, v := range h {
		out[k] = append([]byte(nil), v...)
	}
	return out, nil
}

func (s *Store) HashDel(_ context.Context, key, field string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.hashes[key]; ok {
		delete(h, field)
	}
	return nil
}

func (s *Store) HashDelMany(_ context.Context, key string, fields []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.hashes[key]
	if !ok {
		return nil
	}
	for _, f := range fields {
		delete(h, f)
	}
	return nil
}

func (s *Store) HashIncrBy(_ context.Context, key, field string, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.hashBucket(key)
	cur := parseIntOrZero(h[field]) + delta
	h[field] = []byte(strconv.FormatInt(cur, 10))
	return cur, nil
}

func (s *Store) ListLPush(_ context.Context, key string, values ...[]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range values {
		s.lists[key] = append([][]byte{append([]byte(nil), v...)}, s.lists[key]...)
	}
	s.blpopCond.Broadcast()
	return nil
}

func (s *Store) ListRPush(_ context.Context, key string, values ...[]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range values {
		s.lists[key] = append(s.lists[key], append([]byte(nil), v...))
	}
	s.blpopCond.Broadcast()
	return nil
}

func (s *Store) ListLPop(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.lists[key]
	if len(l) == 0 {
		return nil, rtdb.ErrNotFound
	}
	v := l[0]
	s.lists[key] = l[1:]
	return v, nil
}

func (s *Store) ListRPop(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.lists[key]
	if len(l) == 0 {
		return nil, rtdb.ErrNotFound
	}
	v := l[len(l)-1]
	s.lists[key] = l[:len(l)-1]
	return v, nil
}

func (s *Store) ListRange(_ context.Context, key string, start, stop int64) ([][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l := s.lists[key]
	n := int64(len(l))
	start, stop = clampRange(start, stop, n)
	if start > stop {
		return nil, nil
	}
	out := make([][]byte, 0, stop-start+1)
	for i := start; i <= stop; i++ {
		out = append(out, append([]byte(nil), l[i]...))
	}
	return out, nil
}

func (s *Store) ListTrim(_ context.Context, key string, start, stop int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.lists[key]
	n := int64(len(l))
	start, stop = clampRange(start, stop, n)
	if start > stop {
		s.lists[key] = nil
		return nil
	}
	s.lists[key] = append([][]byte(nil), l[start:stop+1]...)
	return nil
}

func clampRange(start, stop, n int64) (int64, int64) {
	if start < 0 {
		start = n + start
	}
	if stop < 0 {
		stop = n + stop
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	return start, stop
}

// ListBLPop blocks until one of keys has an element, ctx is cancelled, or
// timeout elapses (timeout==0 means block indefinitely, bounded only by ctx).
func (s *Store) ListBLPop(ctx context.Context, timeout time.Duration, keys ...string) (string, []byte, error) {
	deadline, hasDeadline := (time.Time{}), false
	if timeout > 0 {
		deadline, hasDeadline = time.Now().Add(timeout), true
	}

	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		s.mu.Lock()
		s.blpopCond.Broadcast()
		s.mu.Unlock()
		close(done)
	}()

	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		for _, k := range keys {
			l := s.lists[k]
			if len(l) > 0 {
				v := l[0]
				s.lists[k] = l[1:]
				return k, v, nil
			}
		}
		if ctx.Err() != nil {
			return "", nil, ctx.Err()
		}
		if hasDeadline && time.Now().After(deadline) {
			return "", nil, rtdb.ErrNotFound
		}
		if hasDeadline {
			timer := time.AfterFunc(time.Until(deadline), func() {
				s.mu.Lock()
				s.blpopCond.Broadcast()
				s.mu.Unlock()
			})
			s.blpopCond.Wait()
			timer.Stop()
		} else {
			s.blpopCond.Wait()
		}
	}
}

func (s *Store) SAdd(_ context.Context, key string, members ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.sets[key]
	if !ok {
		set = make(map[string]struct{})
		s.sets[key] = set
	}
	for _, m := range members {
		set[m] = struct{}{}
	}
	return nil
}

func (s *Store) SRem(_ context.Context, key string, members ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.sets[key]
	if !ok {
		return nil
	}
	for _, m := range members {
		delete(set, m)
	}
	return nil
}

func (s *Store) SMembers(_ context.Context, key string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := s.sets[key]
	out := make([]string, 0, len(set))
	for m := range set {
		out = append(out, m)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) ScanMatch(_ context.Context, pattern string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	seen := func(k string) {
		if globMatch(pattern, k) {
			out = append(out, k)
		}
	}
	for k := range s.scalar {
		seen(k)
	}
	for k := range s.hashes {
		seen(k)
	}
	for k := range s.lists {
		seen(k)
	}
	for k := range s.sets {
		seen(k)
	}
	sort.Strings(out)
	return out, nil
}

// globMatch supports the subset of glob syntax RTDB key patterns use: '*'
// and '?'.
func globMatch(pattern, s string) bool {
	return globMatchRunes([]rune(pattern), []rune(s))
}

func globMatchRunes(p, s []rune) bool {
	if len(p) == 0 {
		return len(s) == 0
	}
	switch p[0] {
	case '*':
		for i := 0; i <= len(s); i++ {
			if globMatchRunes(p[1:], s[i:]) {
				return true
			}
		}
		return false
	case '?':
		if len(s) == 0 {
			return false
		}
		return globMatchRunes(p[1:], s[1:])
	default:
		if len(s) == 0 || s[0] != p[0] {
			return false
		}
		return globMatchRunes(p[1:], s[1:])
	}
}

func (s *Store) PipelineHashMSet(ctx context.Context, ops map[string][]rtdb.HashField) error {
	// In-process store has no network round trip to batch; apply directly
	// under one lock acquisition per key to preserve per-key ordering.
	for key, fields := range ops {
		if err := s.HashMSet(ctx, key, fields); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Close() error { return nil }

// Dump returns a deterministic text rendering of all hashes, for tests.
func (s *Store) Dump() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var keys []string
	for k := range s.hashes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(": ")
		var fields []string
		for f := range s.hashes[k] {
			fields = append(fields, f)
		}
		sort.Strings(fields)
		for _, f := range fields {
			b.WriteString(f)
			b.WriteByte('=')
			b.Write(s.hashes[k][f])
			b.WriteByte(' ')
		}
		b.WriteByte('\n')
	}
	return b.String()
}
