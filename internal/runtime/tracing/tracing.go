// Package tracing defines where per-message trace events go. A flow owns one
// Tracer; stages never reach for a global.
package tracing

import (
	"context"
	"errors"
	"time"
)

// Display widths used by sinks that print fixed-width lines.
const (
	StageWidth   = 24
	VersionWidth = 16
)

// Event describes one message passing through one stage.
type Event struct {
	MessageID   string        `json:"id"`
	Stage       string        `json:"operation"`
	Version     string        `json:"version"`
	ChildID     string        `json:"child"`
	Initializer string        `json:"initializer"`
	Start       time.Time     `json:"start"`
	Duration    time.Duration `json:"duration"`
	Record      string        `json:"record"`
}

// Tracer receives trace events. Emit may be called from many goroutines.
type Tracer interface {
	Emit(ctx context.Context, event Event) error
	Close() error
}

// Null drops every event.
type Null struct{}

func (Null) Emit(context.Context, Event) error { return nil }
func (Null) Close() error                      { return nil }

// Multi fans every event out to each tracer and joins their errors.
type Multi []Tracer

func (m Multi) Emit(ctx context.Context, event Event) error {
	var errs []error
	for _, t := range m {
		if t == nil {
			continue
		}
		if err := t.Emit(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, t := range m {
		if t == nil {
			continue
		}
		if err := t.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
