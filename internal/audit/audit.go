// Package audit writes the closed set of authentication security events to
// the operational log and, best-effort, to durable storage. The Orchestrator
// never blocks the response path on a persistence write: Log enqueues onto a
// small buffered channel and a background worker drains it, dropping the
// incoming event and bumping a metric when the queue is full rather than
// applying backpressure to request handling.
package audit

import (
	"context"
	"time"

	"github.com/dropDatabas3/hellojohn/internal/domain"
	"github.com/dropDatabas3/hellojohn/internal/observability/logger"
	"go.uber.org/zap"
)

// queueDepth bounds how many events may be buffered awaiting persistence.
// Sized generously above ordinary login-storm bursts; sustained overflow
// indicates the store is unreachable, at which point dropping is the
// correct choice over blocking every login response.
const queueDepth = 1024

// Writer persists AuditEvents and mirrors them onto the structured logger.
type Writer struct {
	repo    domain.AuditRepository
	log     *zap.Logger
	events  chan domain.AuditEvent
	dropped func()
}

// DropCounter is invoked once per event dropped because the queue was full.
// Wired to a prometheus counter by the caller; a nil DropCounter is a no-op.
type DropCounter func()

// NewWriter starts the background persistence worker. Close on shutdown
// lets the worker exit once it has drained the queue.
func NewWriter(repo domain.AuditRepository, onDrop DropCounter) *Writer {
	if onDrop == nil {
		onDrop = func() {}
	}
	w := &Writer{
		repo:    repo,
		log:     logger.Named("audit"),
		events:  make(chan domain.AuditEvent, queueDepth),
		dropped: onDrop,
	}
	go w.run()
	return w
}

// Log records an event. It never blocks the caller: if the queue is full,
// the event is dropped and DropCounter is invoked.
func (w *Writer) Log(userID *string, eventType domain.AuditEventType, success bool, ip, userAgent *string, metadata map[string]any) {
	evt := domain.AuditEvent{
		UserID:    userID,
		EventType: eventType,
		Success:   success,
		IPAddress: ip,
		UserAgent: userAgent,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}
	w.emit(evt)
	select {
	case w.events <- evt:
	default:
		w.dropped()
	}
}

func (w *Writer) emit(evt domain.AuditEvent) {
	fields := []zap.Field{
		logger.Event(string(evt.EventType)),
		zap.Bool("success", evt.Success),
	}
	if evt.UserID != nil {
		fields = append(fields, logger.UserID(*evt.UserID))
	}
	if evt.IPAddress != nil {
		fields = append(fields, logger.ClientIP(*evt.IPAddress))
	}
	if len(evt.Metadata) > 0 {
		fields = append(fields, logger.Any("metadata", evt.Metadata))
	}
	if evt.Success {
		w.log.Info("security_event", fields...)
	} else {
		w.log.Warn("security_event", fields...)
	}
}

func (w *Writer) run() {
	for evt := range w.events {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := w.repo.Insert(ctx, evt); err != nil {
			w.log.Error("audit_persist_failed", logger.Err(err), logger.Event(string(evt.EventType)))
		}
		cancel()
	}
}

// Close stops accepting new events. It returns at once and does not wait
// for the queue to drain; the worker persists what is still queued after
// Close returns.
func (w *Writer) Close() {
	close(w.events)
}

// Len reports how many events are currently buffered, for gauge sampling.
func (w *Writer) Len() int {
	return len(w.events)
}
