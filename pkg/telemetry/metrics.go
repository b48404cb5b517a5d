// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package telemetry exposes the server's Prometheus metrics.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RequestsTotal counts handled HTTP requests by route and status.
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "keyhive",
		Name:      "http_requests_total",
		Help:      "Handled HTTP requests.",
	}, []string{"method", "route", "status"})

	// RequestDuration observes request latency by route.
	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "keyhive",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	// AuthFailures counts rejected sign-in and token verifications.
	AuthFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "keyhive",
		Name:      "auth_failures_total",
		Help:      "Rejected authentication attempts.",
	}, []string{"reason"})

	// AuditDropped counts audit events dropped on queue overflow.
	AuditDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "keyhive",
		Name:      "audit_events_dropped_total",
		Help:      "Audit events dropped because the queue was full.",
	})

	// SharesConsumed counts successful share token redemptions.
	SharesConsumed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "keyhive",
		Name:      "shares_consumed_total",
		Help:      "Share tokens redeemed.",
	})
)

// Handler serves the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records per-request metrics. It runs after chi's routing so
// the route pattern, not the raw URL, becomes the label; raw URLs contain
// entry ids and would explode cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		RequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		RequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
