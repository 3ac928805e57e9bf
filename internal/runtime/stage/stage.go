// Package stage defines the contract user stages implement and the Operation
// wrapper the flow drives them through.
//
// Only Stage is required. Initializer, Closer, Versioner and SensorExtender
// are discovered by type assertion, so a stage implements just the
// capabilities it needs.
package stage

import (
	"context"
	"iter"

	"github.com/drblury/dagflow/internal/runtime/message"
)

// Stage processes one message and returns its successors. Returning no
// messages drops the input from this path; nil entries are ignored.
type Stage interface {
	Execute(ctx context.Context, msg *message.Message) ([]*message.Message, error)
}

// Params is the shared configuration handed to every stage at flow init.
type Params map[string]any

// Initializer is implemented by stages that prepare resources before the
// first message.
type Initializer interface {
	Init(ctx context.Context, params Params) error
}

// Closer is implemented by stages that release resources after the last
// message. Close is called exactly once.
type Closer interface {
	Close() error
}

// Versioner overrides the derived version fingerprint.
type Versioner interface {
	Version() string
}

// SensorExtender adds stage specific values to Reading.Extra.
type SensorExtender interface {
	ExtendSensor(reading *Reading)
}

// Func adapts a function to Stage.
type Func func(ctx context.Context, msg *message.Message) ([]*message.Message, error)

func (f Func) Execute(ctx context.Context, msg *message.Message) ([]*message.Message, error) {
	return f(ctx, msg)
}

// Collect materializes a lazily produced sequence of messages.
func Collect(seq iter.Seq[*message.Message]) []*message.Message {
	var out []*message.Message
	for msg := range seq {
		out = append(out, msg)
	}
	return out
}

// One wraps a single message as a result slice.
func One(msg *message.Message) []*message.Message {
	return []*message.Message{msg}
}

// Get returns params[key] as T, or fallback when absent or of another type.
func Get[T any](params Params, key string, fallback T) T {
	if v, ok := params[key].(T); ok {
		return v
	}
	return fallback
}
