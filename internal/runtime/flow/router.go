package flow

import (
	"context"
	"fmt"

	"github.com/drblury/dagflow/internal/runtime/graph"
	"github.com/drblury/dagflow/internal/runtime/logging"
	"github.com/drblury/dagflow/internal/runtime/message"
	"github.com/drblury/dagflow/internal/runtime/queue"
)

// route is the reply router loop. It forwards every result a stage posted on
// the reply queue to the successors whose filter accepts it. The delivery is
// acknowledged only after it has been placed on its destinations.
func (f *Flow) route(ctx context.Context) error {
	reply := f.reply
	for {
		d, err := reply.Get(ctx)
		if err != nil {
			return context.Cause(ctx)
		}
		if d.Signal == queue.Terminate {
			return nil
		}
		if d.Message != nil {
			var targets []string
			for _, r := range f.routes(d.From) {
				if f.accepts(d.From, r, d.Message) {
					targets = append(targets, r.To)
				}
			}
			f.dispatch(d.Message, targets)
		}
		reply.Done()
	}
}

// dispatch places msg on every target queue. The first target gets msg and
// the others get clones taken before anything is queued, so concurrent
// branches never share a message.
func (f *Flow) dispatch(msg *message.Message, targets []string) {
	msgs := make([]*message.Message, len(targets))
	for i := range targets {
		if i == 0 {
			msgs[i] = msg
			continue
		}
		msgs[i] = msg.Clone()
	}
	for i, to := range targets {
		f.queues.Get(to).Put(queue.Delivery{Message: msgs[i]})
	}
}

// routes returns the cached successors of node, resolving them on first use.
// Concurrent first lookups may both resolve; the graph is immutable so either
// result is correct.
func (f *Flow) routes(node string) []graph.Route {
	if cached, ok := f.paths.Load(node); ok {
		return cached.([]graph.Route)
	}
	resolved, _ := f.paths.LoadOrStore(node, f.graph.Successors(node))
	return resolved.([]graph.Route)
}

// accepts evaluates the edge filter. A panicking filter rejects the message.
func (f *Flow) accepts(from string, r graph.Route, msg *message.Message) (ok bool) {
	defer func() {
		if p := recover(); p != nil {
			f.log.Error("Edge filter panicked", fmt.Errorf("%v", p), logging.LogFields{
				"from":       from,
				"to":         r.To,
				"message_id": msg.ID,
			})
			ok = false
		}
	}()
	return r.Filter(msg)
}

// InvalidatePaths drops cached routes for the named nodes, or for every node
// when none are named.
func (f *Flow) InvalidatePaths(nodes ...string) {
	if len(nodes) == 0 {
		f.paths.Clear()
		return
	}
	for _, n := range nodes {
		f.paths.Delete(n)
	}
}
