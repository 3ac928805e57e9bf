// Package stages holds ready-made stages.
package stages

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/drblury/dagflow/internal/runtime/message"
	"github.com/drblury/dagflow/internal/runtime/stage"
)

// Passthrough emits every message unchanged.
type Passthrough struct{}

func (Passthrough) Execute(_ context.Context, msg *message.Message) ([]*message.Message, error) {
	return stage.One(msg), nil
}

// Print writes each payload on its own line and passes the message on.
type Print struct {
	mu sync.Mutex
	w  io.Writer
}

// NewPrint prints to w, or to standard output when w is nil.
func NewPrint(w io.Writer) *Print {
	if w == nil {
		w = os.Stdout
	}
	return &Print{w: w}
}

func (p *Print) Execute(_ context.Context, msg *message.Message) ([]*message.Message, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err := fmt.Fprintln(p.w, msg.Payload); err != nil {
		return nil, err
	}
	return stage.One(msg), nil
}

// Map applies fn to the payload and emits a message carrying the result.
func Map(fn func(payload any) (any, error)) stage.Func {
	return func(_ context.Context, msg *message.Message) ([]*message.Message, error) {
		out, err := fn(msg.Payload)
		if err != nil {
			return nil, err
		}
		child := message.NewChild(out)
		child.Attributes = msg.Attributes.Clone()
		return stage.One(child), nil
	}
}

// Filter passes on the messages whose payload satisfies keep.
func Filter(keep func(payload any) bool) stage.Func {
	return func(_ context.Context, msg *message.Message) ([]*message.Message, error) {
		if !keep(msg.Payload) {
			return nil, nil
		}
		return stage.One(msg), nil
	}
}
