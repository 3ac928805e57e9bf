package flow

import (
	"github.com/drblury/dagflow/internal/runtime/config"
	"github.com/drblury/dagflow/internal/runtime/logging"
	"github.com/drblury/dagflow/internal/runtime/queue"
	"github.com/drblury/dagflow/internal/runtime/stage"
	"github.com/drblury/dagflow/internal/runtime/tracing"
)

// Option customises a Flow.
type Option func(*Flow)

// WithLogger sets the flow logger. Nil keeps the discard logger.
func WithLogger(log logging.ServiceLogger) Option {
	return func(f *Flow) {
		if log != nil {
			f.log = log
		}
	}
}

// WithTracer sets the sink for trace events.
func WithTracer(t tracing.Tracer) Option {
	return func(f *Flow) {
		if t != nil {
			f.tracer = t
		}
	}
}

// WithQueues makes the flow use reg instead of a private registry. Flows
// sharing a registry share node queues with the same name but each claims its
// own reply queue.
func WithQueues(reg *queue.Registry) Option {
	return func(f *Flow) {
		if reg != nil {
			f.queues = reg
		}
	}
}

// WithHooks observes every stage invocation. Repeated options merge.
func WithHooks(h stage.Hooks) Option {
	return func(f *Flow) {
		f.hooks = f.hooks.Merge(h)
	}
}

// WithSampleRate sets the probability that a message entering the flow is
// traced, clamped to [0, 1].
func WithSampleRate(rate float64) Option {
	return func(f *Flow) {
		f.sampleRate = min(max(rate, 0), 1)
	}
}

// WithReplyHandlers sets the number of reply routers, at least one.
func WithReplyHandlers(n int) Option {
	return func(f *Flow) {
		f.replyHandlers = max(n, 1)
	}
}

// WithConfig applies the flow settings of cfg.
func WithConfig(cfg config.Config) Option {
	return func(f *Flow) {
		WithSampleRate(cfg.SampleRate)(f)
		WithReplyHandlers(cfg.EffectiveReplyHandlers())(f)
	}
}
