package stage

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	dferrors "github.com/drblury/dagflow/internal/runtime/errors"
	"github.com/drblury/dagflow/internal/runtime/logging"
	"github.com/drblury/dagflow/internal/runtime/message"
	"github.com/drblury/dagflow/internal/runtime/queue"
	"github.com/drblury/dagflow/internal/runtime/tracing"
)

// Limits applied to per-node settings.
const (
	MaxRetryCount = 10
	MaxRetryDelay = 300 * time.Second
)

// Settings are the per-node tunables of an Operation.
type Settings struct {
	// SampleRate forces traces at this stage independently of the message
	// sampling decision. Zero disables forcing.
	SampleRate float64
	RetryCount int
	RetryDelay time.Duration
	// Version overrides the stage version fingerprint.
	Version string
}

// Clamp bounds SampleRate to [0, 1], RetryCount to [0, MaxRetryCount] and
// RetryDelay to [0, MaxRetryDelay].
func (s Settings) Clamp() Settings {
	s.SampleRate = clamp(s.SampleRate, 0, 1)
	s.RetryCount = clamp(s.RetryCount, 0, MaxRetryCount)
	s.RetryDelay = clamp(s.RetryDelay, 0, MaxRetryDelay)
	return s
}

func clamp[T int | float64 | time.Duration](v, lo, hi T) T {
	return min(max(v, lo), hi)
}

// Option customises an Operation.
type Option func(*Operation)

func WithTracer(t tracing.Tracer) Option {
	return func(o *Operation) {
		if t != nil {
			o.tracer = t
		}
	}
}

func WithLogger(log logging.ServiceLogger) Option {
	return func(o *Operation) {
		o.log = logging.OrDiscard(log)
	}
}

func WithHooks(h Hooks) Option {
	return func(o *Operation) {
		o.hooks = o.hooks.Merge(h)
	}
}

// Operation wraps a Stage bound to a graph node. It counts traffic, retries
// failed executions, propagates lineage and emits trace events.
type Operation struct {
	node     string
	stage    Stage
	settings Settings
	tracer   tracing.Tracer
	log      logging.ServiceLogger
	hooks    Hooks

	mu        sync.Mutex
	input     int64
	output    int64
	errored   int64
	failures  int64
	firstSeen time.Time
	active    time.Duration

	versionOnce sync.Once
	version     string
	closeOnce   sync.Once
	closeErr    error
}

// NewOperation binds s to node. Settings are clamped.
func NewOperation(node string, s Stage, settings Settings, opts ...Option) *Operation {
	o := &Operation{
		node:     node,
		stage:    s,
		settings: settings.Clamp(),
		tracer:   tracing.Null{},
		log:      logging.Discard(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.log = o.log.With(logging.LogFields{"node": node})
	return o
}

func (o *Operation) Node() string       { return o.node }
func (o *Operation) Stage() Stage       { return o.stage }
func (o *Operation) Settings() Settings { return o.settings }

// Version returns the stage version: the configured override, then the
// stage's own Versioner, then a fingerprint of the stage type.
func (o *Operation) Version() string {
	o.versionOnce.Do(func() {
		switch {
		case o.settings.Version != "":
			o.version = o.settings.Version
		default:
			if v, ok := o.stage.(Versioner); ok && v.Version() != "" {
				o.version = v.Version()
				return
			}
			o.version = Fingerprint(o.stage)
		}
	})
	return o.version
}

// Init forwards params to the stage when it implements Initializer.
func (o *Operation) Init(ctx context.Context, params Params) error {
	if in, ok := o.stage.(Initializer); ok {
		if err := in.Init(ctx, params); err != nil {
			return fmt.Errorf("init %s: %w", o.node, err)
		}
	}
	return nil
}

// Close closes the stage once. Later calls return the first result.
func (o *Operation) Close() error {
	o.closeOnce.Do(func() {
		if c, ok := o.stage.(Closer); ok {
			if err := c.Close(); err != nil {
				o.closeErr = fmt.Errorf("close %s: %w", o.node, err)
			}
		}
	})
	return o.closeErr
}

// Invoke runs the stage for msg and returns the surviving successors with
// lineage copied from msg. Stage failures are retried, counted and end in an
// empty result; only fatal errors are returned.
func (o *Operation) Invoke(ctx context.Context, msg *message.Message) ([]*message.Message, error) {
	start := time.Now()
	o.mu.Lock()
	if o.firstSeen.IsZero() {
		o.firstSeen = start
		o.log.Debug("First invocation", nil)
	}
	o.input++
	o.mu.Unlock()

	inv := Invocation{Node: o.node, MessageID: msg.ID, Initializer: msg.Initializer, StartedAt: start}
	o.hooks.start(inv)

	var fatal error
	results, err := backoff.Retry(ctx, func() ([]*message.Message, error) {
		inv.Attempt++
		out, err := o.execute(ctx, msg)
		if err == nil {
			return out, nil
		}
		o.mu.Lock()
		o.failures++
		o.mu.Unlock()
		if isFatal(ctx, err) {
			fatal = err
			return nil, backoff.Permanent(err)
		}
		o.hooks.failed(inv, err)
		return nil, err
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(o.settings.RetryDelay)),
		backoff.WithMaxTries(uint(o.settings.RetryCount+1)),
		backoff.WithMaxElapsedTime(0),
	)
	if err != nil && fatal == nil && ctx.Err() != nil {
		fatal = context.Cause(ctx)
	}

	duration := time.Since(start)
	inv.Duration = duration

	o.mu.Lock()
	o.active += duration
	if err != nil && fatal == nil {
		o.errored++
	}
	o.mu.Unlock()

	if fatal != nil {
		return nil, fatal
	}
	if err != nil {
		o.log.Debug("Dropping message after failed attempts", logging.LogFields{
			"message_id": msg.ID,
			"attempts":   inv.Attempt,
			"error":      err.Error(),
		})
		o.hooks.dropped(inv, err)
		o.trace(ctx, msg, "", start, duration)
		return nil, nil
	}

	survivors := results[:0:0]
	for _, r := range results {
		if r == nil {
			continue
		}
		r.Inherit(msg)
		r.RecordTiming(o.node, duration)
		survivors = append(survivors, r)
		o.trace(ctx, msg, r.ID, start, duration)
	}

	o.mu.Lock()
	o.output += int64(len(survivors))
	o.mu.Unlock()

	if len(survivors) == 0 {
		o.trace(ctx, msg, "", start, duration)
	}

	inv.Outputs = len(survivors)
	o.hooks.done(inv)
	return survivors, nil
}

// execute calls the stage, turning a panic into an error.
func (o *Operation) execute(ctx context.Context, msg *message.Message) (out []*message.Message, err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = fmt.Errorf("stage %s panicked: %w", o.node, e)
				return
			}
			err = fmt.Errorf("stage %s panicked: %v", o.node, r)
		}
	}()
	return o.stage.Execute(ctx, msg)
}

func isFatal(ctx context.Context, err error) bool {
	if dferrors.IsFatal(err) {
		return true
	}
	return ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded))
}

func (o *Operation) trace(ctx context.Context, msg *message.Message, child string, start time.Time, d time.Duration) {
	force := o.settings.SampleRate > 0 && message.Sample(o.settings.SampleRate)
	err := msg.Trace(ctx, o.tracer, message.TraceOptions{
		Stage:    o.node,
		Version:  o.Version(),
		Child:    child,
		Start:    start,
		Duration: d,
		Force:    force,
	})
	if err != nil {
		o.log.Error("Trace emission failed", err, logging.LogFields{"message_id": msg.ID})
	}
}

// Run is the worker loop. It takes messages from in, invokes the stage and
// posts every result to reply before acknowledging the input. It returns nil
// on a Terminate signal, and the fatal error or context cause otherwise.
func (o *Operation) Run(ctx context.Context, in, reply *queue.Queue) error {
	for {
		d, err := in.Get(ctx)
		if err != nil {
			return context.Cause(ctx)
		}
		if d.Signal == queue.Terminate {
			return nil
		}
		if d.Message == nil {
			in.Done()
			continue
		}

		results, err := o.Invoke(ctx, d.Message)
		for _, r := range results {
			reply.Put(queue.Delivery{From: o.node, Message: r})
		}
		in.Done()
		if err != nil {
			return err
		}
	}
}

// ReadSensor snapshots the operation counters.
func (o *Operation) ReadSensor() Reading {
	o.mu.Lock()
	reading := Reading{
		Process:        ProcessName(o.stage),
		Node:           o.node,
		Input:          o.input,
		Output:         o.output,
		Errored:        o.errored,
		FailedAttempts: o.failures,
		ExecutionStart: o.firstSeen,
		ExecutionTime:  o.active,
	}
	o.mu.Unlock()

	reading.Version = o.Version()
	if reading.Input > 0 {
		reading.Ratio = round(float64(reading.Output)/float64(reading.Input), 4)
	}
	if secs := reading.ExecutionTime.Seconds(); secs > 0 {
		reading.RecordsPerSecond = round(float64(reading.Input)/secs, 2)
		reading.ExecutionSeconds = round(secs, 4)
	}

	if ext, ok := o.stage.(SensorExtender); ok {
		scratch := reading
		scratch.Extra = map[string]any{}
		ext.ExtendSensor(&scratch)
		if len(scratch.Extra) > 0 {
			reading.Extra = scratch.Extra
		}
	}
	return reading
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
