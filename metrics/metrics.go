// Copyright (C) 2019-2025, Ledgerd. All rights reserved.
// See the file LICENSE for licensing terms.

// Package metrics collects prometheus.Collector instances for the
// shell's own request/transaction/VP pipeline, defined directly against
// prometheus/client_golang with no bridging layer.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Collectors bundles every metric this core registers, grouped the
// way the teacher pack groups its own counters/gauges/histograms per
// subsystem rather than as one flat namespace.
type Collectors struct {
	RequestDuration *prometheus.HistogramVec
	RequestsTotal   *prometheus.CounterVec

	TxApplied    prometheus.Counter
	TxRejected   prometheus.Counter
	TxInvalid    prometheus.Counter
	TxGasUsed    prometheus.Histogram
	BlockGasUsed prometheus.Gauge

	VpHostErrors prometheus.Counter
}

const namespace = "shellcore"

// New constructs and registers every collector against reg.
func New(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "shell",
			Name:      "request_duration_seconds",
			Help:      "Latency of shell requests by message type.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"request"}),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "shell",
			Name:      "requests_total",
			Help:      "Shell requests processed by message type and outcome.",
		}, []string{"request", "outcome"}),
		TxApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tx",
			Name:      "applied_total",
			Help:      "Transactions committed (all VPs accepted, gas_used > 0).",
		}),
		TxRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tx",
			Name:      "rejected_total",
			Help:      "Transactions dropped because at least one VP rejected.",
		}),
		TxInvalid: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tx",
			Name:      "invalid_total",
			Help:      "Transactions that failed with a decode, gas, runner or VP-engine error.",
		}),
		TxGasUsed: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "tx",
			Name:      "gas_used",
			Help:      "Gas used per applied transaction.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 12),
		}),
		BlockGasUsed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "block",
			Name:      "gas_used",
			Help:      "Gas used by the most recently committed block.",
		}),
		VpHostErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "vp",
			Name:      "host_errors_total",
			Help:      "Validity-predicate invocations that host-errored (trap, gas, missing VP).",
		}),
	}

	reg.MustRegister(
		c.RequestDuration, c.RequestsTotal,
		c.TxApplied, c.TxRejected, c.TxInvalid, c.TxGasUsed, c.BlockGasUsed,
		c.VpHostErrors,
	)
	return c
}
