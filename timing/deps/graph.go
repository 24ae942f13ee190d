// Package deps tracks which in-flight loads feed each architectural
// register, and turns that into a load-dependence depth for branches.
package deps

import (
	"sort"

	"github.com/sarchlab/convpred/insts"
)

// Graph is a directed graph over registers. An edge dest -> src means the
// current value of dest was produced, directly or through loads, from src.
type Graph struct {
	edges map[insts.RegID]map[insts.RegID]struct{}
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{edges: make(map[insts.RegID]map[insts.RegID]struct{})}
}

// AddEdge records that dest depends on src.
func (g *Graph) AddEdge(dest, src insts.RegID) {
	set, ok := g.edges[dest]
	if !ok {
		set = make(map[insts.RegID]struct{})
		g.edges[dest] = set
	}
	set[src] = struct{}{}
}

// SetEdges replaces the edges of dest with srcs. An empty srcs leaves dest
// without edges.
func (g *Graph) SetEdges(dest insts.RegID, srcs []insts.RegID) {
	delete(g.edges, dest)
	for _, src := range srcs {
		g.AddEdge(dest, src)
	}
}

// DeleteDestination removes the edges of dest and scrubs dest from the edge
// sets of every other register, so no stale reference to its retired value
// survives. Registers left without edges are dropped.
func (g *Graph) DeleteDestination(dest insts.RegID) {
	delete(g.edges, dest)
	for node, set := range g.edges {
		if _, ok := set[dest]; !ok {
			continue
		}
		delete(set, dest)
		if len(set) == 0 {
			delete(g.edges, node)
		}
	}
}

// Has returns true when dest has edges.
func (g *Graph) Has(dest insts.RegID) bool {
	_, ok := g.edges[dest]
	return ok
}

// Len returns the number of registers with edges.
func (g *Graph) Len() int {
	return len(g.edges)
}

// Edges returns the direct sources of dest in ascending order.
func (g *Graph) Edges(dest insts.RegID) []insts.RegID {
	return sortedRegs(g.edges[dest])
}

// Dependencies returns every register reachable from dest, in ascending
// order. dest itself is excluded even if a cycle leads back to it. The
// traversal uses an explicit stack and visits each register once.
func (g *Graph) Dependencies(dest insts.RegID) []insts.RegID {
	visited := map[insts.RegID]struct{}{dest: {}}
	found := make(map[insts.RegID]struct{})
	stack := []insts.RegID{dest}

	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		for src := range g.edges[node] {
			if _, ok := visited[src]; ok {
				continue
			}
			visited[src] = struct{}{}
			found[src] = struct{}{}
			stack = append(stack, src)
		}
	}

	return sortedRegs(found)
}

func sortedRegs(set map[insts.RegID]struct{}) []insts.RegID {
	regs := make([]insts.RegID, 0, len(set))
	for r := range set {
		regs = append(regs, r)
	}
	sort.Slice(regs, func(i, j int) bool { return regs[i] < regs[j] })
	return regs
}
