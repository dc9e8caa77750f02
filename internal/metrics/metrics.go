// Copyright (C) 2025  The popfilter authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package metrics keeps the process wide proxy counters. The counters are
// read by the management channel and exported to Prometheus at the same
// time.
package metrics

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	concurrentConnections atomic.Int64
	historicalAccesses    atomic.Int64
	transferredBytes      atomic.Int64
	retrievedMessages     atomic.Int64
)

var (
	promConnectionsCurrent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "popfilter_connections_current",
			Help: "Current number of proxied client connections",
		},
	)

	promConnectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "popfilter_connections_total",
			Help: "Total number of client connections accepted",
		},
	)

	promTransferredBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "popfilter_transferred_bytes_total",
			Help: "Total number of bytes relayed to clients",
		},
	)

	promRetrievedMessages = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "popfilter_retrieved_messages_total",
			Help: "Total number of messages retrieved through the proxy",
		},
	)
)

// Snapshot is a consistent-enough copy of all counters for reporting.
type Snapshot struct {
	ConcurrentConnections int64
	HistoricalAccesses    int64
	TransferredBytes      int64
	RetrievedMessages     int64
}

// ConnectionOpened records a newly accepted client connection.
func ConnectionOpened() {
	concurrentConnections.Add(1)
	historicalAccesses.Add(1)

	promConnectionsCurrent.Inc()
	promConnectionsTotal.Inc()
}

// ConnectionClosed records the end of a client connection.
func ConnectionClosed() {
	concurrentConnections.Add(-1)
	promConnectionsCurrent.Dec()
}

// AddTransferredBytes records bytes written towards the client.
func AddTransferredBytes(n int64) {
	if n <= 0 {
		return
	}

	transferredBytes.Add(n)
	promTransferredBytes.Add(float64(n))
}

// MessageRetrieved records a completed message retrieval.
func MessageRetrieved() {
	retrievedMessages.Add(1)
	promRetrievedMessages.Inc()
}

// Read returns the current counter values.
func Read() Snapshot {
	return Snapshot{
		ConcurrentConnections: concurrentConnections.Load(),
		HistoricalAccesses:    historicalAccesses.Load(),
		TransferredBytes:      transferredBytes.Load(),
		RetrievedMessages:     retrievedMessages.Load(),
	}
}

// Handler returns the http handler exposing the Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
