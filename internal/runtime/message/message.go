// Package message defines the envelope that carries a payload through a flow.
//
// A message is created once at flow entry (or by a stage) and keeps its id for
// life. Traced and Initializer are lineage fields: every message derived from
// it inherits both unchanged, so a sampled record stays sampled across the
// whole graph and every descendant points back at the same root.
package message

import (
	"context"
	"maps"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/drblury/dagflow/internal/runtime/ids"
	"github.com/drblury/dagflow/internal/runtime/metadata"
	"github.com/drblury/dagflow/internal/runtime/tracing"
)

const (
	// CreateStage is the stage name reported when a message enters a flow.
	CreateStage = "Create Message"
	// DefaultVersion is reported when no stage version applies.
	DefaultVersion = "00000000"
)

// Message is the envelope routed between stages.
type Message struct {
	ID          string
	Payload     any
	Attributes  metadata.Metadata
	Traced      bool
	Initializer string

	mu      sync.Mutex
	timings map[string]time.Duration
}

// New wraps payload in a fresh root message, deciding Traced by a sampling
// draw at sampleRate.
func New(payload any, sampleRate float64) *Message {
	id := ids.New()
	return &Message{
		ID:          id,
		Payload:     payload,
		Attributes:  metadata.Metadata{},
		Traced:      Sample(sampleRate),
		Initializer: id,
	}
}

// Envelope carries attributes alongside a payload handed to a flow. The flow
// unwraps it so the resulting message starts with a copy of Attributes.
type Envelope struct {
	Payload    any
	Attributes metadata.Metadata
}

// FromValue builds a root message from v, unwrapping an Envelope.
func FromValue(v any, sampleRate float64) *Message {
	env, ok := v.(Envelope)
	if !ok {
		return New(v, sampleRate)
	}
	msg := New(env.Payload, sampleRate)
	msg.Attributes = env.Attributes.Clone()
	return msg
}

// NewChild is a convenience for stages emitting a new payload. The lineage
// fields are overwritten from the input message when the stage returns.
func NewChild(payload any) *Message {
	return New(payload, 0)
}

// Sample reports whether a message created at rate is traced. Rates at or
// above one always trace, rates at or below zero never do; anything between
// draws a uniform integer in [1, round(1/rate)] and traces on 1.
func Sample(rate float64) bool {
	switch {
	case rate >= 1:
		return true
	case rate > 0:
		n := int(math.Round(1 / rate))
		if n <= 1 {
			return true
		}
		return rand.IntN(n) == 0
	default:
		return false
	}
}

// Clone returns a message with the same id, payload and lineage as m but its
// own attributes and timings. Each extra branch of a fan-out receives one.
func (m *Message) Clone() *Message {
	c := &Message{
		ID:          m.ID,
		Payload:     m.Payload,
		Attributes:  m.Attributes.Clone(),
		Traced:      m.Traced,
		Initializer: m.Initializer,
	}
	c.timings = m.Timings()
	return c
}

// Inherit copies the lineage fields of parent onto m. A stage passing its
// input through leaves m unchanged.
func (m *Message) Inherit(parent *Message) {
	if m == parent {
		return
	}
	m.Traced = parent.Traced
	m.Initializer = parent.Initializer
}

// RecordTiming adds d to the time spent in stage.
func (m *Message) RecordTiming(stage string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.timings == nil {
		m.timings = make(map[string]time.Duration)
	}
	m.timings[stage] += d
}

// Timings returns a copy of the per-stage durations recorded so far.
func (m *Message) Timings() map[string]time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return maps.Clone(m.timings)
}

// TraceOptions describes one trace emission.
type TraceOptions struct {
	Stage    string
	Version  string
	Child    string
	Start    time.Time
	Duration time.Duration
	// Force emits even when the message was not sampled.
	Force bool
}

// Trace emits an event to tracer when the message is traced or opts.Force is
// set. An empty Child is reported as the nil id, meaning nothing followed.
func (m *Message) Trace(ctx context.Context, tracer tracing.Tracer, opts TraceOptions) error {
	if tracer == nil || !(m.Traced || opts.Force) {
		return nil
	}
	child := opts.Child
	if child == "" {
		child = ids.Nil
	}
	version := opts.Version
	if version == "" {
		version = DefaultVersion
	}
	return tracer.Emit(ctx, tracing.Event{
		MessageID:   m.ID,
		Stage:       opts.Stage,
		Version:     version,
		ChildID:     child,
		Initializer: m.Initializer,
		Start:       opts.Start,
		Duration:    opts.Duration,
		Record:      Record(m.Payload, m.Initializer),
	})
}

func (m *Message) String() string {
	return Record(m.Payload, m.Initializer)
}
