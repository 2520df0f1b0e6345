// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package redisstore

import (
	"errors"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"

	"github.com/fieldmesh/comsrv/internal/rtdb"
)

func TestWrapNotFound_TranslatesRedisNil(t *testing.T) {
	assert.ErrorIs(t, wrapNotFound(redis.Nil), rtdb.ErrNotFound)
}

func TestWrapNotFound_PassesOtherErrorsThrough(t *testing.T) {
	boom := errors.New("connection refused")
	assert.ErrorIs(t, wrapNotFound(boom), boom)
}

func TestWrapNotFound_NilIsNil(t *testing.T) {
	assert.NoError(t, wrapNotFound(nil))
}

func TestToArgs_PreservesOrder(t *testing.T) {
	args := toArgs([][]byte{[]byte("a"), []byte("b"), []byte("c")})
	assert.Equal(t, []interface{}{[]byte("a"), []byte("b"), []byte("c")}, args)
}

func TestNew_ConfiguresClientWithoutDialing(t *testing.T) {
	s := New(Config{Addr: "127.0.0.1:0", DB: 3})
	assert.NotNil(t, s.client)
	var _ rtdb.DB = s
}
