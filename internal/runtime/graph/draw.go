package graph

import (
	"bufio"
	"io"
)

const (
	drawSpace  = "    "
	drawBranch = " │  "
	drawTee    = " ├─ "
	drawLast   = " └─ "
)

// Draw renders the graph as a tree rooted at the entry nodes. Nodes reached
// along several paths are printed under each parent.
func (g *Graph) Draw(w io.Writer) error {
	bw := bufio.NewWriter(w)
	bw.WriteString("Pipeline Entry\n")
	entries := g.EntryNodes()
	for i, entry := range entries {
		pointer, extension := drawTee, drawBranch
		if i == len(entries)-1 {
			pointer, extension = drawLast, drawSpace
		}
		bw.WriteString(pointer + entry + "\n")
		g.drawTree(bw, entry, extension, map[string]bool{entry: true})
	}
	return bw.Flush()
}

// drawTree writes the children of node. path guards against cycles in graphs
// that were never validated.
func (g *Graph) drawTree(w *bufio.Writer, node, prefix string, path map[string]bool) {
	routes := g.edges[node]
	for i, r := range routes {
		pointer, extension := drawTee, drawBranch
		if i == len(routes)-1 {
			pointer, extension = drawLast, drawSpace
		}
		w.WriteString(prefix + pointer + r.To + "\n")
		if path[r.To] {
			continue
		}
		path[r.To] = true
		g.drawTree(w, r.To, prefix+extension, path)
		delete(path, r.To)
	}
}
