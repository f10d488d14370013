// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package metrics exposes Prometheus counters for outbound calls to the
// indexer and debrid backends, served on a separate listener when enabled.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

type Collector struct {
	registry *prometheus.Registry

	upstreamRequests *prometheus.CounterVec
	resolveRuns      *prometheus.CounterVec
	resolveDuration  prometheus.Histogram
}

func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		upstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "debrr_upstream_requests_total",
			Help: "Outbound requests to upstream services by service and outcome.",
		}, []string{"service", "outcome"}),
		resolveRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "debrr_resolve_runs_total",
			Help: "Completed resolve pipelines by terminal state.",
		}, []string{"state"}),
		resolveDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "debrr_resolve_duration_seconds",
			Help:    "Wall-clock duration of full resolve pipelines.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
	}

	c.registry.MustRegister(c.upstreamRequests, c.resolveRuns, c.resolveDuration)
	return c
}

// RecordUpstream counts one outbound request. Service is "indexer" or
// "debrid"; outcome is "ok" or "error".
func (c *Collector) RecordUpstream(service string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.upstreamRequests.WithLabelValues(service, outcome).Inc()
}

// RecordResolve counts a finished pipeline run and its duration. State is one
// of "completed", "cancelled", "abandoned".
func (c *Collector) RecordResolve(state string, elapsed time.Duration) {
	c.resolveRuns.WithLabelValues(state).Inc()
	c.resolveDuration.Observe(elapsed.Seconds())
}

// Server serves the Prometheus scrape endpoint on its own listener.
type Server struct {
	server *http.Server
}

func NewServer(collector *Collector, host string, port int) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(collector.registry, promhttp.HandlerOpts{}))

	return &Server{
		server: &http.Server{
			Addr:              fmt.Sprintf("%s:%d", host, port),
			Handler:           mux,
			ReadHeaderTimeout: 15 * time.Second,
		},
	}
}

func (s *Server) ListenAndServe() error {
	log.Info().Str("addr", s.server.Addr).Msg("Starting metrics server")
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
