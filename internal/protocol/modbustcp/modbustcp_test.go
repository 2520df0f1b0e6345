// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package modbustcp

import (
	"context"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldmesh/comsrv/internal/points"
	"github.com/fieldmesh/comsrv/internal/timeutil"
)

func TestMbapFrame_HeaderFields(t *testing.T) {
	pdu := []byte{0x03, 0x00, 0x01, 0x00, 0x01}
	frame := mbapFrame(7, 5, pdu)
	require.Len(t, frame, 7+len(pdu))
	assert.Equal(t, uint16(7), binary.BigEndian.Uint16(frame[0:2]))
	assert.Equal(t, uint16(0), binary.BigEndian.Uint16(frame[2:4]), "protocol id is always 0")
	assert.Equal(t, uint16(1+len(pdu)), binary.BigEndian.Uint16(frame[4:6]))
	assert.Equal(t, byte(5), frame[6])
	assert.Equal(t, pdu, frame[7:])
}

// fakeModbusServer accepts one connection and replies to each request with a
// canned read-holding-registers response carrying value.
func fakeModbusServer(t *testing.T, value uint16) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			header := make([]byte, 7)
			if _, err := readFull(conn, header); err != nil {
				return
			}
			length := binary.BigEndian.Uint16(header[4:6])
			body := make([]byte, length-1)
			if _, err := readFull(conn, body); err != nil {
				return
			}

			var respPDU []byte
			if len(body) > 0 && body[0] == 0x03 {
				respPDU = []byte{0x03, 0x02, byte(value >> 8), byte(value)}
			} else {
				respPDU = []byte{0x06, 0x00, 0x00, 0x00, 0x00}
			}
			txID := binary.BigEndian.Uint16(header[0:2])
			conn.Write(mbapFrame(txID, header[6], respPDU))
		}
	}()
	return ln.Addr().String()
}

func TestPollOnce_DecodesHoldingRegister(t *testing.T) {
	addr := fakeModbusServer(t, 1234)
	clock := timeutil.NewVirtualProvider(time.Unix(1700000000, 0))
	fe := New(Config{
		ChannelID: 1,
		Addr:      addr,
		Registers: []Register{{PointID: 10, Address: 0, PointType: points.Telemetry}},
		Clock:     clock,
	})

	require.NoError(t, fe.Start(context.Background()))
	defer fe.Stop(context.Background())

	batch, err := fe.PollOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, batch.Points, 1)
	f, ok := batch.Points[0].Value.AsFloat()
	require.True(t, ok)
	assert.Equal(t, 1234.0, f)
}

func TestWritePoint_UnknownPointErrors(t *testing.T) {
	fe := New(Config{ChannelID: 1, Registers: []Register{{PointID: 1, Address: 0, PointType: points.Telemetry}}})
	err := fe.WritePoint(context.Background(), points.Telemetry, 99, 1)
	assert.Error(t, err)
}

func TestStartStop_TracksConnection(t *testing.T) {
	addr := fakeModbusServer(t, 0)
	fe := New(Config{ChannelID: 1, Addr: addr})
	assert.False(t, fe.IsConnected())
	require.NoError(t, fe.Start(context.Background()))
	assert.True(t, fe.IsConnected())
	require.NoError(t, fe.Stop(context.Background()))
	assert.False(t, fe.IsConnected())
}
