package observability

import (
	"context"
	"log/slog"
	"time"

	"github.com/martincostello/costellobot-sub000/internal/queue"
)

// LogEntry is a single structured log record retained in memory for the
// in-process log history.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
}

type queueHandler struct {
	next slog.Handler
	logs *queue.Queue[LogEntry]
}

// NewQueueHandler returns a slog handler that mirrors every record into the
// supplied log queue in addition to delegating to next.
func NewQueueHandler(next slog.Handler, logs *queue.Queue[LogEntry]) slog.Handler {
	return &queueHandler{next: next, logs: logs}
}

func (h *queueHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *queueHandler) Handle(ctx context.Context, record slog.Record) error {
	h.logs.Enqueue(LogEntry{
		Timestamp: record.Time,
		Level:     record.Level.String(),
		Message:   record.Message,
	})
	return h.next.Handle(ctx, record)
}

func (h *queueHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &queueHandler{next: h.next.WithAttrs(attrs), logs: h.logs}
}

func (h *queueHandler) WithGroup(name string) slog.Handler {
	return &queueHandler{next: h.next.WithGroup(name), logs: h.logs}
}
