package stage

import (
	"time"

	"github.com/drblury/dagflow/internal/runtime/logging"
)

// Invocation describes one pass of a message through an Operation.
type Invocation struct {
	Node        string
	MessageID   string
	Initializer string
	// Attempt is 1 for the first execution and grows with each retry.
	Attempt   int
	StartedAt time.Time
	// Duration and Outputs are set for OnDone and OnDrop.
	Duration time.Duration
	Outputs  int
}

// Hooks observe the invocation life cycle. Every hook is optional.
type Hooks struct {
	OnStart func(inv Invocation)
	OnDone  func(inv Invocation)
	// OnError is called after each failed attempt.
	OnError func(inv Invocation, err error)
	// OnDrop is called when every attempt failed and the message is dropped.
	OnDrop func(inv Invocation, err error)
}

// Merge returns hooks that call h first, then other.
func (h Hooks) Merge(other Hooks) Hooks {
	return Hooks{
		OnStart: chain(h.OnStart, other.OnStart),
		OnDone:  chain(h.OnDone, other.OnDone),
		OnError: chainErr(h.OnError, other.OnError),
		OnDrop:  chainErr(h.OnDrop, other.OnDrop),
	}
}

func chain(a, b func(Invocation)) func(Invocation) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(inv Invocation) {
		a(inv)
		b(inv)
	}
}

func chainErr(a, b func(Invocation, error)) func(Invocation, error) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(inv Invocation, err error) {
		a(inv, err)
		b(inv, err)
	}
}

func (h Hooks) start(inv Invocation) {
	if h.OnStart != nil {
		h.OnStart(inv)
	}
}

func (h Hooks) done(inv Invocation) {
	if h.OnDone != nil {
		h.OnDone(inv)
	}
}

func (h Hooks) failed(inv Invocation, err error) {
	if h.OnError != nil {
		h.OnError(inv, err)
	}
}

func (h Hooks) dropped(inv Invocation, err error) {
	if h.OnDrop != nil {
		h.OnDrop(inv, err)
	}
}

// LoggingHooks logs failed attempts at debug and dropped messages at error.
func LoggingHooks(log logging.ServiceLogger) Hooks {
	log = logging.OrDiscard(log)
	return Hooks{
		OnError: func(inv Invocation, err error) {
			log.Debug("Stage attempt failed", logging.LogFields{
				"node":       inv.Node,
				"message_id": inv.MessageID,
				"attempt":    inv.Attempt,
				"error":      err.Error(),
			})
		},
		OnDrop: func(inv Invocation, err error) {
			log.Error("Stage dropped message", err, logging.LogFields{
				"node":        inv.Node,
				"message_id":  inv.MessageID,
				"attempts":    inv.Attempt,
				"duration_ms": inv.Duration.Milliseconds(),
			})
		},
	}
}
