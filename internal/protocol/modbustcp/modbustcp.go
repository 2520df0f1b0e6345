// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package modbustcp is a minimal Modbus TCP front-end: MBAP framing plus
// function codes 0x03 (read holding registers) and 0x06 (write single
// register). Full PDU framing for every function code is explicitly out of
// scope (spec.md §1 "Protocol parsers ... the core consumes DataBatch
// values from them"); this front-end provides just enough real wire
// behavior to poll/write the register ranges a channel's point table
// names, using only net.Conn and encoding/binary (no verified third-party
// Modbus client was found in the retrieved corpus).
package modbustcp

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fieldmesh/comsrv/internal/points"
	"github.com/fieldmesh/comsrv/internal/timeutil"
)

// Register describes one point's location in the device's register map.
type Register struct {
	PointID  uint32
	Address  uint16
	PointType points.PointType
	// No scaling is applied before wrapping the raw register into a
	// points.DataPoint; transform is the core's job (C1), this front-end
	// only reports the raw register value.
}

// Config is this front-end's opaque Transport payload, as passed through
// RuntimeChannelConfig.Transport.
type Config struct {
	ChannelID   uint32
	Addr        string // host:port
	UnitID      byte
	Registers   []Register
	DialTimeout time.Duration
	IOTimeout   time.Duration
	Clock       timeutil.Provider
}

// FrontEnd implements protocol.FrontEnd over a single persistent TCP
// connection, exclusively owned by the Channel Runtime task that created
// it (spec §5).
type FrontEnd struct {
	cfg   Config
	clock timeutil.Provider

	mu        sync.Mutex
	conn      net.Conn
	connected atomic.Bool
	nextTxID  uint16
}

func New(cfg Config) *FrontEnd {
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	if cfg.IOTimeout == 0 {
		cfg.IOTimeout = 2 * time.Second
	}
	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.System
	}
	return &FrontEnd{cfg: cfg, clock: clock}
}

func (f *FrontEnd) Start(ctx context.Context) error {
	d := net.Dialer{Timeout: f.cfg.DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", f.cfg.Addr)
	if err != nil {
		return fmt.Errorf("modbustcp: dial %s: %w", f.cfg.Addr, err)
	}
	f.mu.Lock()
	f.conn = conn
	f.mu.Unlock()
	f.connected.Store(true)
	return nil
}

func (f *FrontEnd) Stop(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected.Store(false)
	if f.conn == nil {
		return nil
	}
	err := f.conn.Close()
	f.conn = nil
	return err
}

func (f *FrontEnd) IsConnected() bool { return f.connected.Load() }

func (f *FrontEnd) transactionID() uint16 {
	f.nextTxID++
	return f.nextTxID
}

// mbapFrame builds an MBAP header + PDU.
func mbapFrame(txID uint16, unitID byte, pdu []byte) []byte {
	frame := make([]byte, 7+len(pdu))
	binary.BigEndian.PutUint16(frame[0:2], txID)
	binary.BigEndian.PutUint16(frame[2:4], 0) // protocol id, always 0 for Modbus TCP
	binary.BigEndian.PutUint16(frame[4:6], uint16(1+len(pdu)))
	frame[6] = unitID
	copy(frame[7:], pdu)
	return frame
}

func (f *FrontEnd) roundTrip(ctx context.Context, pdu []byte) ([]byte, error) {
	f.mu.Lock()
	conn := f.conn
	f.mu.Unlock()
	if conn == nil {
		return nil, fmt.Errorf("modbustcp: not connected")
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(f.cfg.IOTimeout)
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, err
	}

	txID := f.transactionID()
	if _, err := conn.Write(mbapFrame(txID, f.cfg.UnitID, pdu)); err != nil {
		f.connected.Store(false)
		return nil, fmt.Errorf("modbustcp: write: %w", err)
	}

	header := make([]byte, 7)
	if _, err := readFull(conn, header); err != nil {
		f.connected.Store(false)
		return nil, fmt.Errorf("modbustcp: read header: %w", err)
	}
	length := binary.BigEndian.Uint16(header[4:6])
	if length == 0 || length > 253 {
		return nil, fmt.Errorf("modbustcp: implausible frame length %d", length)
	}
	body := make([]byte, length-1)
	if _, err := readFull(conn, body); err != nil {
		f.connected.Store(false)
		return nil, fmt.Errorf("modbustcp: read body: %w", err)
	}
	if len(body) > 0 && body[0]&0x80 != 0 {
		return nil, fmt.Errorf("modbustcp: exception response, function=0x%x code=%d", body[0]&0x7f, safeByte(body, 1))
	}
	return body, nil
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := conn.Read(buf[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

func safeByte(b []byte, i int) byte {
	if i < len(b) {
		return b[i]
	}
	return 0
}

// PollOnce reads each configured register individually with function code
// 0x03. One register per read call trades round trips for simplicity;
// batching contiguous addresses is a plausible follow-up, not required by
// the spec this front-end serves.
func (f *FrontEnd) PollOnce(ctx context.Context) (points.DataBatch, error) {
	now := f.clock.NowMillis()
	out := make([]points.DataPoint, 0, len(f.cfg.Registers))
	for _, reg := range f.cfg.Registers {
		pdu := make([]byte, 5)
		pdu[0] = 0x03
		binary.BigEndian.PutUint16(pdu[1:3], reg.Address)
		binary.BigEndian.PutUint16(pdu[3:5], 1)

		resp, err := f.roundTrip(ctx, pdu)
		if err != nil {
			return points.DataBatch{}, fmt.Errorf("modbustcp: read register %d: %w", reg.Address, err)
		}
		if len(resp) < 4 {
			return points.DataBatch{}, fmt.Errorf("modbustcp: short response for register %d", reg.Address)
		}
		raw := binary.BigEndian.Uint16(resp[2:4])
		out = append(out, points.DataPoint{
			ID:          reg.PointID,
			DataType:    reg.PointType,
			Value:       points.NewIntValue(int64(raw)),
			TimestampMs: now,
		})
	}
	return points.DataBatch{ChannelID: f.cfg.ChannelID, Points: out}, nil
}

// WritePoint issues function code 0x06 (write single register) against the
// configured register address for pointID; value is truncated to uint16,
// matching Modbus's native register width.
func (f *FrontEnd) WritePoint(ctx context.Context, t points.PointType, pointID uint32, value float64) error {
	for _, reg := range f.cfg.Registers {
		if reg.PointID == pointID && reg.PointType == t {
			pdu := make([]byte, 5)
			pdu[0] = 0x06
			binary.BigEndian.PutUint16(pdu[1:3], reg.Address)
			binary.BigEndian.PutUint16(pdu[3:5], uint16(int64(value)))
			_, err := f.roundTrip(ctx, pdu)
			return err
		}
	}
	return fmt.Errorf("modbustcp: no register mapped for point %d/%s", pointID, t)
}
