// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/stacklok/keyhive/pkg/logger"
)

// Rate limit windows. Auth endpoints get the tight budget since they are
// the ones worth brute-forcing.
const (
	rateWindow     = 15 * time.Minute
	authRateBudget = 20
	apiRateBudget  = 100

	// staleClientAge is how long an idle client's bucket survives before
	// the sweeper drops it.
	staleClientAge = time.Hour
)

// rateLimiter hands out one token bucket per client address.
type rateLimiter struct {
	mu      sync.Mutex
	clients map[string]*rateClient
	limit   rate.Limit
	burst   int
}

type rateClient struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newRateLimiter(budget int, window time.Duration) *rateLimiter {
	l := &rateLimiter{
		clients: make(map[string]*rateClient),
		limit:   rate.Every(window / time.Duration(budget)),
		burst:   budget,
	}
	go func() {
		ticker := time.NewTicker(staleClientAge)
		defer ticker.Stop()
		for range ticker.C {
			l.sweep()
		}
	}()
	return l
}

func (l *rateLimiter) allow(addr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	client, ok := l.clients[addr]
	if !ok {
		client = &rateClient{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[addr] = client
	}
	client.lastSeen = time.Now()
	return client.limiter.Allow()
}

// sweep drops buckets of clients not seen for staleClientAge. Run from a
// ticker; the map otherwise grows with every distinct address.
func (l *rateLimiter) sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := time.Now().Add(-staleClientAge)
	for addr, client := range l.clients {
		if client.lastSeen.Before(cutoff) {
			delete(l.clients, addr)
		}
	}
}

// middleware rejects over-budget clients with 429 and a Retry-After.
func (l *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.allow(clientAddr(r)) {
			w.Header().Set("Retry-After", strconv.Itoa(int(rateWindow.Seconds())))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"error": "too many requests",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientAddr strips the port from the remote address.
func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// corsMiddleware answers preflight requests and marks responses for the
// single configured frontend origin. Credentialed requests require an
// exact origin match; a wildcard would break cookie auth anyway.
func corsMiddleware(origin string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Origin") == origin {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Credentials", "true")
				h.Set("Vary", "Origin")
				if r.Method == http.MethodOptions {
					h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE")
					h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
					h.Set("Access-Control-Max-Age", "300")
					w.WriteHeader(http.StatusNoContent)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// loggingMiddleware logs one line per request with the chi request ID so
// entries correlate with handler error logs.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		logger.Infow("request",
			"request_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
		)
	})
}

// headersMiddleware defaults API responses to JSON.
func headersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") {
			w.Header().Set("Content-Type", "application/json")
		}
		next.ServeHTTP(w, r)
	})
}

// maxBytesMiddleware caps request bodies. Import is the one endpoint that
// legitimately carries a large payload and gets its own larger cap.
func maxBytesMiddleware(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, limit)
			}
			next.ServeHTTP(w, r)
		})
	}
}
