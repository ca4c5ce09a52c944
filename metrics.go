// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package sysprobe

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "sysprobe"

// serverMetrics record server activity.
type serverMetrics struct {
	accepted   prometheus.Counter     // sessions accepted into a slot
	rejected   prometheus.Counter     // connections closed because the table was full
	evicted    prometheus.Counter     // sessions torn down by the idle sweep
	closed     prometheus.Counter     // sessions fully torn down, for any reason
	active     prometheus.Gauge       // slots not free
	framesIn   *prometheus.CounterVec // by message kind
	bytesIn    prometheus.Counter
	bytesOut   prometheus.Counter
	dropped    *prometheus.CounterVec // by reason
	handshakes prometheus.Counter
	requests   *prometheus.CounterVec // by request kind and result code
}

// newServerMetrics constructs server metrics registered with reg.
// If reg == nil, the metrics are not registered anywhere.
func newServerMetrics(reg prometheus.Registerer) *serverMetrics {
	f := promauto.With(reg)
	counter := func(name, help string) prometheus.Counter {
		return f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace, Subsystem: "server", Name: name, Help: help,
		})
	}
	return &serverMetrics{
		accepted: counter("sessions_accepted_total", "Connections accepted into a session slot"),
		rejected: counter("sessions_rejected_total", "Connections closed because no slot was free"),
		evicted:  counter("sessions_evicted_total", "Sessions evicted for inactivity"),
		closed:   counter("sessions_closed_total", "Sessions torn down"),
		active: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace, Subsystem: "server",
			Name: "sessions_active", Help: "Session slots currently in use",
		}),
		framesIn: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Subsystem: "server",
			Name: "frames_received_total", Help: "Complete frames received, by message kind",
		}, []string{"kind"}),
		bytesIn:  counter("bytes_received_total", "Bytes read from sessions"),
		bytesOut: counter("bytes_sent_total", "Bytes written to sessions"),
		dropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Subsystem: "server",
			Name: "frames_dropped_total", Help: "Frames dropped without a reply, by reason",
		}, []string{"reason"}),
		handshakes: counter("handshakes_total", "Session keys exported to clients"),
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Subsystem: "server",
			Name: "requests_total", Help: "Requests dispatched, by kind and result",
		}, []string{"kind", "code"}),
	}
}
