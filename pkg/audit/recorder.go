// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package audit appends security-relevant actions to the account audit
// trail. Writes are fire-and-forget: a failed or dropped audit write is
// logged but never fails the operation that produced it.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/stacklok/keyhive/pkg/logger"
	"github.com/stacklok/keyhive/pkg/storage"
	"github.com/stacklok/keyhive/pkg/telemetry"
)

//go:generate mockgen -destination=mocks/mock_recorder.go -package=mocks -source=recorder.go

// Event is one action to record. ID and CreatedAt are assigned by the
// recorder; IP and UserAgent default to the request info carried in the
// context when left empty.
type Event struct {
	AccountID  string
	Action     string
	EntryID    string
	EntryTitle string
	IP         string
	UserAgent  string
	Metadata   map[string]string
}

// Recorder accepts audit events from the service layer.
type Recorder interface {
	// Record queues one event. It never blocks and never returns an
	// error; delivery is best-effort.
	Record(ctx context.Context, event Event)
}

// bufferSize bounds the queue between request handlers and the writer.
// Events beyond it are dropped with a log line rather than stalling the
// request.
const bufferSize = 1024

// writeTimeout bounds each store write so a wedged database cannot stall
// the writer goroutine forever.
const writeTimeout = 5 * time.Second

// AsyncRecorder buffers events on a channel and writes them from a single
// goroutine. Create it with NewAsyncRecorder and drive it with Run.
type AsyncRecorder struct {
	store  storage.AuditStore
	events chan storage.AuditEvent
}

var _ Recorder = (*AsyncRecorder)(nil)

// NewAsyncRecorder creates a recorder writing to the given store.
func NewAsyncRecorder(store storage.AuditStore) *AsyncRecorder {
	return &AsyncRecorder{
		store:  store,
		events: make(chan storage.AuditEvent, bufferSize),
	}
}

// Record queues one event, completing it from the request context.
func (r *AsyncRecorder) Record(ctx context.Context, event Event) {
	stored := storage.AuditEvent{
		ID:         uuid.NewString(),
		AccountID:  event.AccountID,
		Action:     event.Action,
		EntryID:    event.EntryID,
		EntryTitle: event.EntryTitle,
		IP:         event.IP,
		UserAgent:  event.UserAgent,
		Metadata:   event.Metadata,
		CreatedAt:  time.Now().UTC(),
	}

	if info, ok := RequestInfoFromContext(ctx); ok {
		if stored.IP == "" {
			stored.IP = info.IP
		}
		if stored.UserAgent == "" {
			stored.UserAgent = info.UserAgent
		}
	}

	select {
	case r.events <- stored:
	default:
		telemetry.AuditDropped.Inc()
		logger.Warnf("audit buffer full, dropping %s event for account %s",
			stored.Action, stored.AccountID)
	}
}

// Run writes queued events until ctx is cancelled, then drains whatever is
// already buffered before returning. It always returns nil so an errgroup
// peer shutting down is not treated as a failure.
func (r *AsyncRecorder) Run(ctx context.Context) error {
	for {
		select {
		case event := <-r.events:
			r.write(event)
		case <-ctx.Done():
			for {
				select {
				case event := <-r.events:
					r.write(event)
				default:
					return nil
				}
			}
		}
	}
}

func (r *AsyncRecorder) write(event storage.AuditEvent) {
	// Deliberately not the request context: the event must outlive the
	// request that produced it.
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := r.store.Append(ctx, event); err != nil {
		logger.Errorf("failed to write %s audit event for account %s: %v",
			event.Action, event.AccountID, err)
	}
}
