// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fieldmesh/comsrv/internal/channelrt"
	"github.com/fieldmesh/comsrv/internal/config"
	"github.com/fieldmesh/comsrv/internal/datastore"
	"github.com/fieldmesh/comsrv/internal/metrics"
	"github.com/fieldmesh/comsrv/internal/points"
	"github.com/fieldmesh/comsrv/internal/protocol"
	"github.com/fieldmesh/comsrv/internal/protocol/gpio"
	"github.com/fieldmesh/comsrv/internal/protocol/iec104"
	"github.com/fieldmesh/comsrv/internal/protocol/modbustcp"
	"github.com/fieldmesh/comsrv/internal/protocol/virtual"
	"github.com/fieldmesh/comsrv/internal/reconnect"
	"github.com/fieldmesh/comsrv/internal/routing"
	"github.com/fieldmesh/comsrv/internal/rtdb"
	"github.com/fieldmesh/comsrv/internal/rtdb/memstore"
	"github.com/fieldmesh/comsrv/internal/rtdb/redisstore"
	"github.com/fieldmesh/comsrv/internal/router"
	"github.com/fieldmesh/comsrv/internal/runtimeEnv"
	"github.com/fieldmesh/comsrv/internal/timeutil"
	"github.com/fieldmesh/comsrv/internal/transform"
	"github.com/fieldmesh/comsrv/pkg/log"
)

func main() {
	var flagConfigFile, flagListenAddr, flagLogLevel string
	flag.StringVar(&flagConfigFile, "config", "./comsrv.yaml", "Path to the service config file")
	flag.StringVar(&flagListenAddr, "listen", ":8090", "Address the Prometheus /metrics endpoint listens on")
	flag.StringVar(&flagLogLevel, "loglevel", "info", "Log level: debug, info, notice, warn, err, crit")
	flag.Parse()

	log.SetLogLevel(flagLogLevel)

	if err := runtimeEnv.LoadEnv("./.env"); err != nil && !os.IsNotExist(err) {
		log.Fatalf("parsing './.env' file failed: %s", err.Error())
	}

	cfg, err := config.Load(flagConfigFile)
	if err != nil {
		log.Fatalf("loading config: %s", err.Error())
	}

	db, err := buildBackend(cfg.RTDB)
	if err != nil {
		log.Fatalf("building RTDB backend: %s", err.Error())
	}
	defer db.Close()

	var buf *rtdb.WriteBuffer
	mode := router.Direct
	if cfg.RTDB.WriteBuffer.FlushIntervalMs > 0 {
		bufCfg := rtdb.DefaultBufferConfig()
		bufCfg.FlushInterval = time.Duration(cfg.RTDB.WriteBuffer.FlushIntervalMs) * time.Millisecond
		if cfg.RTDB.WriteBuffer.MaxQueue > 0 {
			bufCfg.MaxQueue = cfg.RTDB.WriteBuffer.MaxQueue
		}
		if cfg.RTDB.WriteBuffer.MaxRetries > 0 {
			bufCfg.MaxRetries = cfg.RTDB.WriteBuffer.MaxRetries
		}
		buf, err = rtdb.NewWriteBuffer(db, bufCfg)
		if err != nil {
			log.Fatalf("starting write buffer: %s", err.Error())
		}
		mode = router.Buffered
	}

	clock := timeutil.System
	registry := transform.NewRegistry()
	cache := routing.NewCache()
	rt := router.New(db, buf, mode, cache, clock)
	rt.SetHooks(router.Hooks{
		OnChannelWrite: func(channelID uint32, t points.PointType, n int) {
			metrics.RecordChannelWrite(fmt.Sprintf("%d", channelID), t.Letter(), n)
		},
		OnC2MWrite: func(instanceID uint16, n int) {
			metrics.RecordC2MWrite(fmt.Sprintf("%d", instanceID), n)
		},
		OnC2CForward:     metrics.RecordC2CForward,
		OnCascadeDropped: metrics.RecordCascadeDropped,
	})

	store := datastore.New(registry, rt)

	protoRegistry := protocol.NewRegistry()
	protoRegistry.Register("virtual", virtualFactory(clock))
	protoRegistry.Register("modbustcp", modbusFactory(clock))
	protoRegistry.Register("iec104", iec104Factory(clock))
	protoRegistry.Register("gpio", gpioFactory(clock))

	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	for _, ch := range cfg.Channels {
		if !ch.Enabled {
			continue
		}
		rcfg := ch.ToRuntimeConfig()
		registry.Load(rcfg)

		fe, err := protoRegistry.Build(rcfg.ChannelID, rcfg.ProtocolID, rcfg.Transport)
		if err != nil {
			log.Fatalf("channel %d: %s", rcfg.ChannelID, err.Error())
		}

		rtInstance := channelrt.New(channelrt.Config{
			Channel:         rcfg,
			FrontEnd:        fe,
			Store:           store,
			DB:              db,
			ReconnectPolicy: reconnect.DefaultPolicy(),
			Clock:           clock,
		})

		wg.Add(1)
		go func() {
			defer wg.Done()
			rtInstance.Run(ctx)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		reportMetricsLoop(ctx, registry, buf)
	}()

	metricsServer := &http.Server{Addr: flagListenAddr, Handler: promhttp.Handler()}
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Infof("metrics server listening at %s", flagListenAddr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("metrics server: %s", err.Error())
		}
	}()

	runtimeEnv.SystemdNotifiy(true, "running")

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	log.Info("shutting down")
	runtimeEnv.SystemdNotifiy(false, "shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	metricsServer.Shutdown(shutdownCtx)
	shutdownCancel()

	if buf != nil {
		buf.Close()
	}
	wg.Wait()
}

// buildBackend constructs the configured rtdb.DB implementation.
func buildBackend(cfg config.RTDBConfig) (rtdb.DB, error) {
	switch cfg.Backend {
	case "memory", "":
		return memstore.New(), nil
	case "redis":
		return redisstore.New(redisstore.Config{
			Addr:     cfg.Addr,
			Username: cfg.Username,
			Password: cfg.Password,
			DB:       cfg.DB,
		}), nil
	default:
		return nil, fmt.Errorf("unknown rtdb backend %q", cfg.Backend)
	}
}

// reportMetricsLoop periodically snapshots the registry and write buffer
// cumulative counters into the Prometheus gauges metrics.go exposes.
func reportMetricsLoop(ctx context.Context, registry *transform.Registry, buf *rtdb.WriteBuffer) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := registry.Stats()
			metrics.RecordRegistryStats(metrics.RegistryStats{
				ByType:      s.ByType,
				Hits:        s.Hits,
				Misses:      s.Misses,
				DegradedHit: s.DegradedHit,
			})
			if buf != nil {
				bs := buf.Stats()
				metrics.RecordWriteBufferStats(metrics.WriteBufferStats{Flushes: bs.Flushes, Dropped: bs.Dropped})
			}
		}
	}
}

func stringTransport(t map[string]any, key string) string {
	v, _ := t[key].(string)
	return v
}

func intTransport(t map[string]any, key string, def int) int {
	switch v := t[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}

// virtualFactory builds the in-process simulator front-end. Transport keys:
// telemetry_ids, signal_ids ([]int).
func virtualFactory(clock timeutil.Provider) protocol.Factory {
	return func(channelID uint32, transport map[string]any) (protocol.FrontEnd, error) {
		return virtual.New(virtual.Config{
			ChannelID:    channelID,
			TelemetryIDs: uint32Slice(transport["telemetry_ids"]),
			SignalIDs:    uint32Slice(transport["signal_ids"]),
			Clock:        clock,
		}), nil
	}
}

func uint32Slice(v any) []uint32 {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]uint32, 0, len(list))
	for _, e := range list {
		switch n := e.(type) {
		case int:
			out = append(out, uint32(n))
		case int64:
			out = append(out, uint32(n))
		case float64:
			out = append(out, uint32(n))
		}
	}
	return out
}

// modbusFactory builds a Modbus TCP front-end. Transport keys: addr,
// unit_id, registers ([]{point_id, address, point_type}).
func modbusFactory(clock timeutil.Provider) protocol.Factory {
	return func(channelID uint32, transport map[string]any) (protocol.FrontEnd, error) {
		regs, _ := transport["registers"].([]any)
		registers := make([]modbustcp.Register, 0, len(regs))
		for _, e := range regs {
			m, ok := e.(map[string]any)
			if !ok {
				continue
			}
			registers = append(registers, modbustcp.Register{
				PointID:   uint32(intTransport(m, "point_id", 0)),
				Address:   uint16(intTransport(m, "address", 0)),
				PointType: parsePointTypeOrTelemetry(stringTransport(m, "point_type")),
			})
		}
		return modbustcp.New(modbustcp.Config{
			ChannelID: channelID,
			Addr:      stringTransport(transport, "addr"),
			UnitID:    byte(intTransport(transport, "unit_id", 0)),
			Registers: registers,
			Clock:     clock,
		}), nil
	}
}

// iec104Factory builds an IEC 104 keepalive-only front-end. Transport keys: addr.
func iec104Factory(clock timeutil.Provider) protocol.Factory {
	return func(channelID uint32, transport map[string]any) (protocol.FrontEnd, error) {
		return iec104.New(iec104.Config{
			ChannelID: channelID,
			Addr:      stringTransport(transport, "addr"),
			Clock:     clock,
		}), nil
	}
}

// gpioFactory builds a sysfs GPIO front-end. Transport keys: sysfs_root,
// lines ([]{point_id, gpio, input}).
func gpioFactory(clock timeutil.Provider) protocol.Factory {
	return func(channelID uint32, transport map[string]any) (protocol.FrontEnd, error) {
		raw, _ := transport["lines"].([]any)
		lines := make([]gpio.Line, 0, len(raw))
		for _, e := range raw {
			m, ok := e.(map[string]any)
			if !ok {
				continue
			}
			input, _ := m["input"].(bool)
			lines = append(lines, gpio.Line{
				PointID: uint32(intTransport(m, "point_id", 0)),
				GPIO:    intTransport(m, "gpio", 0),
				Input:   input,
			})
		}
		return gpio.New(gpio.Config{
			ChannelID: channelID,
			SysfsRoot: stringTransport(transport, "sysfs_root"),
			Lines:     lines,
			Clock:     clock,
		}), nil
	}
}

// parsePointTypeOrTelemetry defaults an unrecognized or absent register
// point_type to Telemetry, since a register map entry with no point_type is
// most commonly a plain readout.
func parsePointTypeOrTelemetry(alias string) points.PointType {
	t, err := points.ParsePointType(alias)
	if err != nil {
		return points.Telemetry
	}
	return t
}
