package tracing

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// FileTracer appends one fixed-width line per event. Stage and version are
// truncated to StageWidth and VersionWidth.
type FileTracer struct {
	mu     sync.Mutex
	w      io.Writer
	closer io.Closer
	now    func() time.Time
}

// OpenFile opens path for appending, creating it when missing.
func OpenFile(path string) (*FileTracer, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open trace file: %w", err)
	}
	return &FileTracer{w: f, closer: f, now: time.Now}, nil
}

// NewWriterTracer writes lines to w. Close leaves w open.
func NewWriterTracer(w io.Writer) *FileTracer {
	return &FileTracer{w: w, now: time.Now}
}

func (f *FileTracer) Emit(_ context.Context, event Event) error {
	line := FormatLine(f.now(), event)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.w == nil {
		return os.ErrClosed
	}
	_, err := io.WriteString(f.w, line)
	return err
}

func (f *FileTracer) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.w = nil
	if f.closer == nil {
		return nil
	}
	closer := f.closer
	f.closer = nil
	return closer.Close()
}

// FormatLine renders event the way FileTracer writes it, stamped with at.
func FormatLine(at time.Time, event Event) string {
	return fmt.Sprintf("[%s] id:%s operation:%-*s version:%-*s start:%-22s duration:%.10f child:%s init:%s record:%s\n",
		at.Format(time.RFC3339Nano),
		event.MessageID,
		StageWidth, Truncate(event.Stage, StageWidth),
		VersionWidth, Truncate(event.Version, VersionWidth),
		event.Start.Format(time.RFC3339Nano),
		event.Duration.Seconds(),
		event.ChildID,
		event.Initializer,
		event.Record,
	)
}
