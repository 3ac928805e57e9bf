package graph

import (
	"errors"
	"fmt"

	dferrors "github.com/drblury/dagflow/internal/runtime/errors"
	"github.com/drblury/dagflow/internal/runtime/queue"
	"github.com/drblury/dagflow/internal/runtime/stage"
)

// Validate checks the structural invariants a flow relies on and joins every
// failure: a directed cycle, nodes without a stage, stages that cannot
// execute and node names whose queues would collide.
func (g *Graph) Validate() error {
	if g == nil {
		return dferrors.ErrGraphRequired
	}
	if len(g.order) == 0 {
		return dferrors.ErrEmptyGraph
	}

	var errs []error
	if cycle := g.findCycle(); cycle != nil {
		errs = append(errs, &dferrors.CyclicGraphError{Path: cycle})
	}

	queues := make(map[string]string, len(g.order))
	for _, name := range g.order {
		n := g.nodes[name]
		switch {
		case n.Stage == nil:
			errs = append(errs, &dferrors.MissingStageError{Node: name})
		case stage.IsNil(n.Stage):
			errs = append(errs, &dferrors.InvalidStageError{Node: name, Reason: fmt.Sprintf("stage is a nil %T", n.Stage)})
		}

		qname := queue.Normalize(name)
		switch other, taken := queues[qname]; {
		case qname == "":
			errs = append(errs, &dferrors.InvalidStageError{Node: name, Reason: "name has no letters or digits"})
		case queue.IsReserved(qname):
			errs = append(errs, &dferrors.InvalidStageError{Node: name, Reason: "name is reserved for the reply queue"})
		case taken:
			errs = append(errs, &dferrors.InvalidStageError{Node: name, Reason: fmt.Sprintf("queue %q is already used by node %q", qname, other)})
		default:
			queues[qname] = name
		}
	}

	return errors.Join(errs...)
}

const (
	unvisited = iota
	onStack
	finished
)

// findCycle runs a depth-first search and returns the first directed cycle
// found, with the starting node repeated at the end.
func (g *Graph) findCycle() []string {
	state := make(map[string]int, len(g.order))
	var stack []string

	var visit func(name string) []string
	visit = func(name string) []string {
		state[name] = onStack
		stack = append(stack, name)
		for _, r := range g.edges[name] {
			switch state[r.To] {
			case onStack:
				start := len(stack) - 1
				for stack[start] != r.To {
					start--
				}
				cycle := append([]string{}, stack[start:]...)
				return append(cycle, r.To)
			case unvisited:
				if cycle := visit(r.To); cycle != nil {
					return cycle
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[name] = finished
		return nil
	}

	for _, name := range g.order {
		if state[name] == unvisited {
			if cycle := visit(name); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}
