// SAGE - Secure Agent Guarantee Engine
// Copyright (C) 2025 SAGE-X-project
//
// This file is part of SAGE.
//
// SAGE is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SAGE is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with SAGE. If not, see <https://www.gnu.org/licenses/>.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CommandsDispatched tracks command envelopes dispatched by name
	CommandsDispatched = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "commands",
			Name:      "dispatched_total",
			Help:      "Total number of command envelopes dispatched",
		},
		[]string{"command", "status"}, // envelope (set by the router), success/failure
	)

	// UnknownCommands tracks command names not in the dispatch table
	UnknownCommands = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "commands",
			Name:      "unknown_total",
			Help:      "Total number of commands that did not match the dispatch table",
		},
	)

	// CommandDuration tracks decrypt-dispatch-encrypt latency
	CommandDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "commands",
			Name:      "duration_seconds",
			Help:      "Command envelope processing duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 12), // 0.1ms to 409ms
		},
		[]string{"command"},
	)

	// RouterBodyRejections tracks requests rejected by the body-size guard
	RouterBodyRejections = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "body_rejected_total",
			Help:      "Total number of requests rejected for exceeding the body-size limit",
		},
	)

	// RouterRequestDuration tracks end-to-end router request handling
	RouterRequestDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "request_duration_seconds",
			Help:      "Router request duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 14),
		},
		[]string{"uri"}, // request path as received, e.g. /ping, /connect, /command
	)

	// RequestBodySize tracks the size of accepted request bodies
	RequestBodySize = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "request_size_bytes",
			Help:      "Size of accepted request bodies in bytes",
			Buckets:   prometheus.ExponentialBuckets(64, 4, 10), // 64B to 16MB
		},
	)
)
