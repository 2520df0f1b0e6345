// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

// rtdbChannelSchema validates the RTDB/channel-runtime sub-document of the
// service config before it is decoded into ServiceConfig -- the same
// schema-then-decode shape as the teacher's internal/memorystore
// configSchema.go.
const rtdbChannelSchema = `{
    "type": "object",
    "description": "RTDB backend and channel-runtime configuration for comsrv.",
    "required": ["rtdb"],
    "properties": {
        "rtdb": {
            "type": "object",
            "description": "Which RTDB backend to use and its connection parameters.",
            "required": ["backend"],
            "properties": {
                "backend": {
                    "description": "'memory' or 'redis'.",
                    "type": "string",
                    "enum": ["memory", "redis"]
                },
                "addr": {
                    "description": "host:port of the Redis server, required when backend is 'redis'.",
                    "type": "string"
                },
                "username": { "type": "string" },
                "password": { "type": "string" },
                "db": { "type": "integer" },
                "write_buffer": {
                    "type": "object",
                    "properties": {
                        "flush_interval_ms": { "type": "integer", "minimum": 1 },
                        "max_queue": { "type": "integer", "minimum": 1 },
                        "max_retries": { "type": "integer", "minimum": 0 }
                    }
                }
            }
        },
        "channels": {
            "type": "array",
            "description": "Per-channel runtime configuration.",
            "items": {
                "type": "object",
                "required": ["channel_id", "protocol_id"],
                "properties": {
                    "channel_id": { "type": "integer", "minimum": 0 },
                    "name": { "type": "string" },
                    "protocol_id": { "type": "string" },
                    "enabled": { "type": "boolean" },
                    "interval_ms": { "type": "integer", "minimum": 1 }
                }
            }
        }
    }
}`
