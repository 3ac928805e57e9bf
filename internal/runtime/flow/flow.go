// Package flow runs a validated graph.
//
// A Flow owns one queue per node plus its own reply queue. Each node gets
// between one and five workers that take messages from the node queue, invoke the
// stage and post results on the reply queue. Reply routers move those results
// to the successor queues whose edge filter accepts them. Callers only see
// Init, Execute, Wait and Close.
package flow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/drblury/dagflow/internal/runtime/config"
	dferrors "github.com/drblury/dagflow/internal/runtime/errors"
	"github.com/drblury/dagflow/internal/runtime/graph"
	"github.com/drblury/dagflow/internal/runtime/logging"
	"github.com/drblury/dagflow/internal/runtime/message"
	"github.com/drblury/dagflow/internal/runtime/queue"
	"github.com/drblury/dagflow/internal/runtime/stage"
	"github.com/drblury/dagflow/internal/runtime/tracing"
)

const (
	MinConcurrency = 1
	MaxConcurrency = 5

	waitPollInterval = 5 * time.Millisecond
)

// State is the observable life cycle phase of a Flow.
type State string

const (
	StateUnconfigured State = "unconfigured"
	StateRunning      State = "running"
	StateIdle         State = "idle"
	StateClosed       State = "closed"
)

type phase int

const (
	phaseNew phase = iota
	phaseInitialized
	phaseClosed
)

// Flow executes a graph of stages.
type Flow struct {
	label   string
	graph   *graph.Graph
	order   []string
	entries []string
	ops     map[string]*stage.Operation

	queues        *queue.Registry
	reply         *queue.Queue
	tracer        tracing.Tracer
	log           logging.ServiceLogger
	hooks         stage.Hooks
	sampleRate    float64
	replyHandlers int

	paths sync.Map

	mu      sync.RWMutex
	phase   phase
	runCtx  context.Context
	cancel  context.CancelFunc
	workers map[string]int
	err     error

	workerWG sync.WaitGroup
	routerWG sync.WaitGroup
}

// New validates g and prepares a flow called label. Nothing runs until Init.
func New(label string, g *graph.Graph, opts ...Option) (*Flow, error) {
	if label == "" {
		return nil, dferrors.MissingLabelError{}
	}
	if g == nil {
		return nil, dferrors.ErrGraphRequired
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}

	f := &Flow{
		label:         label,
		graph:         g,
		order:         g.Names(),
		entries:       g.EntryNodes(),
		ops:           make(map[string]*stage.Operation, g.Len()),
		queues:        queue.NewRegistry(),
		tracer:        tracing.Null{},
		log:           logging.Discard(),
		replyHandlers: config.DefaultReplyHandlers,
		workers:       make(map[string]int, g.Len()),
		runCtx:        context.Background(),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.log = f.log.With(logging.LogFields{"flow": label})

	for _, n := range g.Nodes() {
		f.ops[n.Name] = stage.NewOperation(n.Name, n.Stage, n.Settings(),
			stage.WithTracer(f.tracer),
			stage.WithLogger(f.log),
			stage.WithHooks(f.hooks),
		)
		f.queues.Get(n.Name)
		f.workers[n.Name] = min(max(n.Concurrency, MinConcurrency), MaxConcurrency)
	}
	f.reply = f.queues.ClaimReply(label)

	f.log.Debug("Loaded pipeline", logging.LogFields{
		"operations":  len(f.order),
		"entry_nodes": len(f.entries),
	})
	return f, nil
}

// Init passes params to every stage, then starts the workers and reply
// routers. Cancelling ctx stops them; Close is the orderly way.
func (f *Flow) Init(ctx context.Context, params stage.Params) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch f.phase {
	case phaseInitialized:
		return dferrors.ErrAlreadyInitialized
	case phaseClosed:
		return dferrors.ErrFlowClosed
	}

	for i, name := range f.order {
		if err := f.ops[name].Init(ctx, params); err != nil {
			for _, done := range f.order[:i] {
				if cerr := f.ops[done].Close(); cerr != nil {
					err = errors.Join(err, cerr)
				}
			}
			return err
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	f.runCtx, f.cancel = runCtx, cancel
	reply := f.reply
	for _, name := range f.order {
		op, in := f.ops[name], f.queues.Get(name)
		for range f.workers[name] {
			f.workerWG.Add(1)
			go func() {
				defer f.workerWG.Done()
				if err := op.Run(runCtx, in, reply); err != nil {
					f.fail(name, err)
				}
			}()
		}
	}
	for range f.replyHandlers {
		f.routerWG.Add(1)
		go func() {
			defer f.routerWG.Done()
			if err := f.route(runCtx); err != nil {
				f.fail(f.reply.Name(), err)
			}
		}()
	}

	f.phase = phaseInitialized
	f.log.Info("Flow initialised", logging.LogFields{
		"workers":        f.workerTotal(),
		"reply_handlers": f.replyHandlers,
	})
	return nil
}

func (f *Flow) workerTotal() int {
	total := 0
	for _, n := range f.workers {
		total += n
	}
	return total
}

// Execute wraps each value in a new message and places it on every entry
// queue. value may be a single value, a slice (other than []byte) or an
// iter.Seq[any]; slices and sequences contribute one message per element.
// A message.Envelope element seeds the message attributes.
func (f *Flow) Execute(value any) error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	switch f.phase {
	case phaseNew:
		return &dferrors.DependenciesNotMetError{Operation: "Execute"}
	case phaseClosed:
		return dferrors.ErrFlowClosed
	}

	for v := range values(value) {
		msg := message.FromValue(v, f.sampleRate)
		if err := msg.Trace(f.runCtx, f.tracer, message.TraceOptions{
			Stage: message.CreateStage,
			Child: msg.ID,
			Start: time.Now(),
		}); err != nil {
			f.log.Error("Trace emission failed", err, logging.LogFields{"message_id": msg.ID})
		}
		f.dispatch(msg, f.entries)
	}
	return nil
}

// Running reports whether any queue, reply included, holds queued or
// unacknowledged work.
func (f *Flow) Running() bool {
	return !f.queues.Empty()
}

// Wait blocks until the flow is idle, a worker failed fatally or ctx is
// done.
func (f *Flow) Wait(ctx context.Context) error {
	ticker := time.NewTicker(waitPollInterval)
	defer ticker.Stop()
	for {
		if !f.Running() {
			return nil
		}
		if err := f.Err(); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Close stops the workers, then the routers, and closes every stage once.
// Work still queued behind the stop signals is abandoned, so callers
// normally Wait first. Closing twice is a no-op.
func (f *Flow) Close() error {
	f.mu.Lock()
	switch f.phase {
	case phaseNew:
		f.mu.Unlock()
		return &dferrors.DependenciesNotMetError{Operation: "Close"}
	case phaseClosed:
		f.mu.Unlock()
		return nil
	}
	f.phase = phaseClosed
	f.mu.Unlock()

	for _, name := range f.order {
		q := f.queues.Get(name)
		for range f.workers[name] {
			q.Terminate()
		}
	}
	f.workerWG.Wait()

	for range f.replyHandlers {
		f.reply.Terminate()
	}
	f.routerWG.Wait()
	f.cancel()

	var errs []error
	for _, name := range f.order {
		if err := f.ops[name].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	f.log.Info("Flow closed", nil)
	return errors.Join(errs...)
}

// fail records the first fatal error reported by a worker or router.
func (f *Flow) fail(node string, err error) {
	f.mu.Lock()
	first := f.err == nil
	if first {
		f.err = fmt.Errorf("node %s: %w", node, err)
	}
	f.mu.Unlock()
	f.log.Error("Worker stopped", err, logging.LogFields{"node": node})
}

// Err returns the first fatal error that stopped a worker or router.
func (f *Flow) Err() error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.err
}

func (f *Flow) Label() string { return f.label }

// State reports the life cycle phase; an initialised flow is running while
// work is pending and idle otherwise.
func (f *Flow) State() State {
	f.mu.RLock()
	p := f.phase
	f.mu.RUnlock()
	switch p {
	case phaseNew:
		return StateUnconfigured
	case phaseClosed:
		return StateClosed
	}
	if f.Running() {
		return StateRunning
	}
	return StateIdle
}

// ReadSensors snapshots every operation in node order.
func (f *Flow) ReadSensors() []stage.Reading {
	readings := make([]stage.Reading, 0, len(f.order))
	for _, name := range f.order {
		readings = append(readings, f.ops[name].ReadSensor())
	}
	return readings
}

// Adjacency maps every node to its successors.
func (f *Flow) Adjacency() map[string][]string {
	return f.graph.Adjacency()
}

// Draw renders the graph as a tree.
func (f *Flow) Draw(w io.Writer) error {
	return f.graph.Draw(w)
}

// QueueDepths returns the pending count of every queue by queue name.
func (f *Flow) QueueDepths() map[string]int {
	return f.queues.Sizes()
}

// EntryNodes returns the nodes that receive executed values.
func (f *Flow) EntryNodes() []string {
	return append([]string(nil), f.entries...)
}
