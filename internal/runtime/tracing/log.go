package tracing

import (
	"context"

	"github.com/drblury/dagflow/internal/runtime/logging"
)

// LogTracer writes events as structured debug entries. Values are kept in
// full.
type LogTracer struct {
	log logging.ServiceLogger
}

func NewLogTracer(log logging.ServiceLogger) *LogTracer {
	return &LogTracer{log: logging.OrDiscard(log)}
}

func (l *LogTracer) Emit(_ context.Context, event Event) error {
	l.log.Debug("trace", logging.LogFields{
		"id":          event.MessageID,
		"operation":   event.Stage,
		"version":     event.Version,
		"child":       event.ChildID,
		"initializer": event.Initializer,
		"start":       event.Start,
		"duration":    event.Duration,
		"record":      event.Record,
	})
	return nil
}

func (l *LogTracer) Close() error { return nil }
