// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package gpio

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldmesh/comsrv/internal/points"
)

func writeLineValue(t *testing.T, root string, gpioNum int, value string) {
	t.Helper()
	dir := filepath.Join(root, "gpio"+strconv.Itoa(gpioNum))
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "value"), []byte(value), 0o644))
}

func TestStart_FailsWhenLineNotExported(t *testing.T) {
	fe := New(Config{SysfsRoot: t.TempDir(), Lines: []Line{{PointID: 1, GPIO: 17}}})
	err := fe.Start(context.Background())
	assert.Error(t, err)
	assert.False(t, fe.IsConnected())
}

func TestStart_SucceedsWhenLinesExported(t *testing.T) {
	root := t.TempDir()
	writeLineValue(t, root, 17, "0")
	fe := New(Config{SysfsRoot: root, Lines: []Line{{PointID: 1, GPIO: 17}}})
	require.NoError(t, fe.Start(context.Background()))
	assert.True(t, fe.IsConnected())
}

func TestPollOnce_ReadsLineValues(t *testing.T) {
	root := t.TempDir()
	writeLineValue(t, root, 17, "1\n")
	writeLineValue(t, root, 27, "0\n")
	fe := New(Config{
		ChannelID: 9,
		SysfsRoot: root,
		Lines:     []Line{{PointID: 1, GPIO: 17, Input: true}, {PointID: 2, GPIO: 27, Input: true}},
	})
	require.NoError(t, fe.Start(context.Background()))

	batch, err := fe.PollOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, batch.Points, 2)

	byID := make(map[uint32]bool)
	for _, dp := range batch.Points {
		f, _ := dp.Value.AsFloat()
		byID[dp.ID] = f != 0
		assert.Equal(t, points.Signal, dp.DataType)
	}
	assert.True(t, byID[1])
	assert.False(t, byID[2])
}

func TestWritePoint_RejectsInputLine(t *testing.T) {
	root := t.TempDir()
	writeLineValue(t, root, 17, "0")
	fe := New(Config{SysfsRoot: root, Lines: []Line{{PointID: 1, GPIO: 17, Input: true}}})
	err := fe.WritePoint(context.Background(), points.Signal, 1, 1)
	assert.Error(t, err)
}

func TestWritePoint_WritesOutputLineValue(t *testing.T) {
	root := t.TempDir()
	writeLineValue(t, root, 22, "0")
	fe := New(Config{SysfsRoot: root, Lines: []Line{{PointID: 5, GPIO: 22, Input: false}}})

	require.NoError(t, fe.WritePoint(context.Background(), points.Signal, 5, 1))

	b, err := os.ReadFile(filepath.Join(root, "gpio22", "value"))
	require.NoError(t, err)
	assert.Equal(t, "1", string(b))
}

func TestWritePoint_UnknownPointErrors(t *testing.T) {
	fe := New(Config{SysfsRoot: t.TempDir()})
	err := fe.WritePoint(context.Background(), points.Signal, 99, 1)
	assert.Error(t, err)
}
