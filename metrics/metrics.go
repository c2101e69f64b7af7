// Copyright Louis Royer and the NextMN contributors. All rights reserved.
// Use of this source code is governed by a MIT-style license that can be
// found in the LICENSE file.
// SPDX-License-Identifier: MIT

// Package metrics counts packet outcomes and events and exposes them to Prometheus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/nextmn/upf-dataplane/engine"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Counters implements engine.Diagnostics with atomic counters, so that the
// packet path never touches a Prometheus metric directly.
type Counters struct {
	packets [engine.NumKinds]atomic.Uint64
	drops   [engine.NumReasons]atomic.Uint64
	events  [engine.NumEvents]atomic.Uint64
}

func (c *Counters) Event(info engine.EventInfo) {
	if info.Event < engine.NumEvents {
		c.events[info.Event].Add(1)
	}
}

func (c *Counters) Outcome(o engine.Outcome) {
	if o.Kind < engine.NumKinds {
		c.packets[o.Kind].Add(1)
	}
	if o.Kind != engine.OutcomeForward && o.Reason < engine.NumReasons {
		c.drops[o.Reason].Add(1)
	}
}

func (c *Counters) Packets(k engine.Kind) uint64 {
	return c.packets[k].Load()
}

func (c *Counters) Drops(r engine.Reason) uint64 {
	return c.drops[r].Load()
}

func (c *Counters) Events(e engine.Event) uint64 {
	return c.events[e].Load()
}

// SessionCounter reports the number of installed sessions.
type SessionCounter interface {
	Len() int
}

// collector implements prometheus.Collector, reading Counters on each scrape.
type collector struct {
	counters *Counters
	sessions SessionCounter

	packetsTotal  *prometheus.Desc
	dropsTotal    *prometheus.Desc
	eventsTotal   *prometheus.Desc
	sessionsTotal *prometheus.Desc
}

func newCollector(counters *Counters, sessions SessionCounter) *collector {
	return &collector{
		counters: counters,
		sessions: sessions,
		packetsTotal: prometheus.NewDesc(
			"upf_dataplane_packets_total",
			"Total packets processed, by outcome.",
			[]string{"outcome"}, nil,
		),
		dropsTotal: prometheus.NewDesc(
			"upf_dataplane_drops_total",
			"Total packets not forwarded, by reason.",
			[]string{"reason"}, nil,
		),
		eventsTotal: prometheus.NewDesc(
			"upf_dataplane_events_total",
			"Total diagnostic events, by event.",
			[]string{"event"}, nil,
		),
		sessionsTotal: prometheus.NewDesc(
			"upf_dataplane_sessions",
			"Number of installed PFCP sessions.",
			nil, nil,
		),
	}
}

func (c *collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.packetsTotal
	ch <- c.dropsTotal
	ch <- c.eventsTotal
	ch <- c.sessionsTotal
}

func (c *collector) Collect(ch chan<- prometheus.Metric) {
	for _, k := range engine.Kinds() {
		ch <- prometheus.MustNewConstMetric(c.packetsTotal, prometheus.CounterValue,
			float64(c.counters.Packets(k)), k.String())
	}
	for _, r := range engine.Reasons() {
		if r == engine.ReasonNone {
			continue
		}
		ch <- prometheus.MustNewConstMetric(c.dropsTotal, prometheus.CounterValue,
			float64(c.counters.Drops(r)), r.String())
	}
	for _, e := range engine.Events() {
		ch <- prometheus.MustNewConstMetric(c.eventsTotal, prometheus.CounterValue,
			float64(c.counters.Events(e)), e.String())
	}
	if c.sessions != nil {
		ch <- prometheus.MustNewConstMetric(c.sessionsTotal, prometheus.GaugeValue,
			float64(c.sessions.Len()))
	}
}

// NewPFCPMessages returns the counter of PFCP requests handled by the N4 server.
func NewPFCPMessages() *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "upf_dataplane_pfcp_messages_total",
		Help: "PFCP requests handled, by message type and response cause.",
	}, []string{"message_type", "cause"})
}

// NewRegistry returns a registry exposing counters, the session count and extra collectors.
func NewRegistry(counters *Counters, sessions SessionCounter, extra ...prometheus.Collector) (*prometheus.Registry, error) {
	registry := prometheus.NewRegistry()
	if err := registry.Register(newCollector(counters, sessions)); err != nil {
		return nil, err
	}
	for _, c := range extra {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// Serve exposes registry on addr under /metrics until ctx is done.
func Serve(ctx context.Context, addr string, registry *prometheus.Registry, logger logrus.FieldLogger) error {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("Metrics server shutdown")
		}
	}()
	logger.WithFields(logrus.Fields{"listen": addr}).Info("Metrics server started")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
