// Package pipenet models pipe networks as an explicit graph of pipe nodes.
// Connected components share one gas mixture; topology changes are
// applied through Repartition, a pure function of the old networks and
// the new graph.
// This package is PURE and must NOT import any infrastructure packages.
package pipenet

import (
	"sort"

	"github.com/MRamiBalles/StationAtmos/server/internal/domain/gas"
	"github.com/MRamiBalles/StationAtmos/server/internal/domain/tile"
)

// NodeID identifies a pipe node (one pipe segment or device port).
type NodeID uint64

// Node is a pipe segment with its internal volume.
type Node struct {
	ID       NodeID        `json:"id"`
	Volume   float64       `json:"volume"`
	Position tile.Vector2i `json:"position"`
}

// Link is an undirected pipe connection.
type Link struct {
	A NodeID `json:"a"`
	B NodeID `json:"b"`
}

// Graph is the pipe adjacency structure.
type Graph struct {
	nodes map[NodeID]Node
	adj   map[NodeID]map[NodeID]struct{}
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes: make(map[NodeID]Node),
		adj:   make(map[NodeID]map[NodeID]struct{}),
	}
}

// Clone deep-copies the graph.
func (g *Graph) Clone() *Graph {
	c := NewGraph()
	for id, n := range g.nodes {
		c.nodes[id] = n
		links := make(map[NodeID]struct{}, len(g.adj[id]))
		for o := range g.adj[id] {
			links[o] = struct{}{}
		}
		c.adj[id] = links
	}
	return c
}

// Node looks up a node.
func (g *Graph) Node(id NodeID) (Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Len returns the node count.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// AddNode inserts n. Non-positive volumes default to one pipe segment.
// Returns false if the node already exists.
func (g *Graph) AddNode(n Node) bool {
	if _, exists := g.nodes[n.ID]; exists {
		return false
	}
	if !(n.Volume > 0) {
		n.Volume = gas.PipeVolume
	}
	g.nodes[n.ID] = n
	g.adj[n.ID] = make(map[NodeID]struct{})
	return true
}

// RemoveNode deletes a node and all its links.
func (g *Graph) RemoveNode(id NodeID) bool {
	if _, ok := g.nodes[id]; !ok {
		return false
	}
	for o := range g.adj[id] {
		delete(g.adj[o], id)
	}
	delete(g.adj, id)
	delete(g.nodes, id)
	return true
}

// Link connects two existing nodes.
func (g *Graph) Link(a, b NodeID) bool {
	if a == b {
		return false
	}
	if _, ok := g.nodes[a]; !ok {
		return false
	}
	if _, ok := g.nodes[b]; !ok {
		return false
	}
	g.adj[a][b] = struct{}{}
	g.adj[b][a] = struct{}{}
	return true
}

// Unlink removes a connection.
func (g *Graph) Unlink(a, b NodeID) bool {
	if _, ok := g.adj[a][b]; !ok {
		return false
	}
	delete(g.adj[a], b)
	delete(g.adj[b], a)
	return true
}

// Linked reports whether a and b are directly connected.
func (g *Graph) Linked(a, b NodeID) bool {
	_, ok := g.adj[a][b]
	return ok
}

// Neighbors returns the directly linked nodes in ascending order.
func (g *Graph) Neighbors(id NodeID) []NodeID {
	out := make([]NodeID, 0, len(g.adj[id]))
	for o := range g.adj[id] {
		out = append(out, o)
	}
	sortIDs(out)
	return out
}

// Components returns the connected components reachable from seeds. Each
// component is sorted and components are ordered by their smallest node,
// so the result is deterministic. Unknown seeds are skipped.
func (g *Graph) Components(seeds []NodeID) [][]NodeID {
	ordered := append([]NodeID(nil), seeds...)
	sortIDs(ordered)

	seen := make(map[NodeID]bool)
	var comps [][]NodeID
	for _, seed := range ordered {
		if seen[seed] {
			continue
		}
		if _, ok := g.nodes[seed]; !ok {
			continue
		}
		var comp []NodeID
		queue := []NodeID{seed}
		seen[seed] = true
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			comp = append(comp, cur)
			for _, next := range g.Neighbors(cur) {
				if !seen[next] {
					seen[next] = true
					queue = append(queue, next)
				}
			}
		}
		sortIDs(comp)
		comps = append(comps, comp)
	}
	sort.Slice(comps, func(i, j int) bool { return comps[i][0] < comps[j][0] })
	return comps
}

// VolumeOf sums the volumes of the listed nodes present in g.
func (g *Graph) VolumeOf(ids []NodeID) float64 {
	var v float64
	for _, id := range ids {
		v += g.nodes[id].Volume
	}
	return v
}

func sortIDs(ids []NodeID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
