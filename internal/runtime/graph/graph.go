// Package graph models a pipeline as a directed acyclic graph of stages.
//
// A Graph is built up with AddNode, AddEdge and Chain, validated once by the
// flow that runs it and read concurrently afterwards. It must not be changed
// after it has been handed to a flow.
package graph

import (
	"slices"
	"time"

	"github.com/drblury/dagflow/internal/runtime/message"
	"github.com/drblury/dagflow/internal/runtime/stage"
)

// Filter decides whether a message travels along an edge.
type Filter func(msg *message.Message) bool

// Always passes every message.
func Always(*message.Message) bool { return true }

// Node binds a stage to a name together with its runtime tunables.
type Node struct {
	Name  string
	Stage stage.Stage
	// Concurrency is the number of workers, clamped to [1, 5].
	Concurrency int
	SampleRate  float64
	RetryCount  int
	RetryDelay  time.Duration
	Version     string
}

// Settings returns the operation settings of n.
func (n Node) Settings() stage.Settings {
	return stage.Settings{
		SampleRate: n.SampleRate,
		RetryCount: n.RetryCount,
		RetryDelay: n.RetryDelay,
		Version:    n.Version,
	}
}

// Route is one outgoing edge.
type Route struct {
	To     string
	Filter Filter
}

// Graph is the pipeline shape.
type Graph struct {
	order    []string
	nodes    map[string]*Node
	edges    map[string][]Route
	indegree map[string]int
}

func New() *Graph {
	return &Graph{
		nodes:    make(map[string]*Node),
		edges:    make(map[string][]Route),
		indegree: make(map[string]int),
	}
}

func (g *Graph) ensure(name string) *Node {
	n, ok := g.nodes[name]
	if !ok {
		n = &Node{Name: name}
		g.nodes[name] = n
		g.order = append(g.order, name)
	}
	return n
}

// AddNode declares n, replacing any earlier declaration with the same name
// while keeping its position.
func (g *Graph) AddNode(n Node) *Graph {
	existing := g.ensure(n.Name)
	*existing = n
	return g
}

// AddEdge connects from to to. A nil filter passes everything. Adding the
// same edge twice replaces its filter. Names not declared with AddNode are
// created without a stage and rejected by Validate.
func (g *Graph) AddEdge(from, to string, filter Filter) *Graph {
	if filter == nil {
		filter = Always
	}
	g.ensure(from)
	g.ensure(to)
	for i, r := range g.edges[from] {
		if r.To == to {
			g.edges[from][i].Filter = filter
			return g
		}
	}
	g.edges[from] = append(g.edges[from], Route{To: to, Filter: filter})
	g.indegree[to]++
	return g
}

// Chain declares nodes and links each to the next with an unfiltered edge.
func (g *Graph) Chain(nodes ...Node) *Graph {
	for i, n := range nodes {
		g.AddNode(n)
		if i > 0 {
			g.AddEdge(nodes[i-1].Name, n.Name, nil)
		}
	}
	return g
}

// Node returns the node called name.
func (g *Graph) Node(name string) (Node, bool) {
	n, ok := g.nodes[name]
	if !ok {
		return Node{}, false
	}
	return *n, true
}

// Nodes returns every node in insertion order.
func (g *Graph) Nodes() []Node {
	out := make([]Node, 0, len(g.order))
	for _, name := range g.order {
		out = append(out, *g.nodes[name])
	}
	return out
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.order) }

// EntryNodes returns the nodes without incoming edges in insertion order.
func (g *Graph) EntryNodes() []string {
	var entries []string
	for _, name := range g.order {
		if g.indegree[name] == 0 {
			entries = append(entries, name)
		}
	}
	return entries
}

// Successors returns the outgoing routes of name.
func (g *Graph) Successors(name string) []Route {
	return slices.Clone(g.edges[name])
}

// Adjacency maps every node to the names of its successors.
func (g *Graph) Adjacency() map[string][]string {
	adj := make(map[string][]string, len(g.order))
	for _, name := range g.order {
		next := make([]string, 0, len(g.edges[name]))
		for _, r := range g.edges[name] {
			next = append(next, r.To)
		}
		adj[name] = next
	}
	return adj
}

// Names returns every node name in insertion order.
func (g *Graph) Names() []string {
	return slices.Clone(g.order)
}
