// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"context"
	"net"
	"net/http"
)

// RequestInfo carries the transport-level facts an audit event records
// about the request that caused it.
type RequestInfo struct {
	IP        string
	UserAgent string
}

// requestInfoContextKey keys RequestInfo in a request context. An empty
// struct type cannot collide with keys from other packages.
type requestInfoContextKey struct{}

// WithRequestInfo stores request info in the context.
func WithRequestInfo(ctx context.Context, info RequestInfo) context.Context {
	return context.WithValue(ctx, requestInfoContextKey{}, info)
}

// RequestInfoFromContext retrieves request info from the context.
func RequestInfoFromContext(ctx context.Context) (RequestInfo, bool) {
	info, ok := ctx.Value(requestInfoContextKey{}).(RequestInfo)
	return info, ok
}

// RequestInfoMiddleware annotates each request's context with the facts
// audit events record. It relies on chi's RealIP middleware having already
// rewritten RemoteAddr.
func RequestInfoMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := WithRequestInfo(r.Context(), RequestInfo{
			IP:        clientIP(r),
			UserAgent: r.UserAgent(),
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// clientIP strips the port from RemoteAddr, tolerating bare addresses.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
